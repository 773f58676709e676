package translate

import (
	"context"
	"fmt"
	"strings"

	"herald/internal/llm"
)

type llmBackend struct {
	completer llm.Completer
}

func (l *llmBackend) translate(ctx context.Context, text, target string) (string, error) {
	prompt := fmt.Sprintf(
		"Translate the following text to %s. Reply with the translation only, no explanations.\n\n%s",
		target, text)

	out, err := l.completer.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
