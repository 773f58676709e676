package llm

import "fmt"

type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
)

// NewCompleter builds a single-prompt completion client for the given
// provider. OpenAI-compatible endpoints (hosted or self-served) go through the
// openai client with a custom base URL.
func NewCompleter(provider Provider, model, baseURL string) (Completer, error) {
	switch provider {
	case ProviderOllama, "":
		return NewOllamaCompleter(model, baseURL)
	case ProviderOpenAI:
		return NewOpenAICompleter(model, baseURL)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}
