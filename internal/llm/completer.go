package llm

import "context"

// Completer answers one prompt with one text completion. It is the only
// surface herald needs from a language model.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
