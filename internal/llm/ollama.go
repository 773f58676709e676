package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

type OllamaCompleter struct {
	client *ollama.LLM
	model  string
}

func NewOllamaCompleter(model, baseURL string) (Completer, error) {
	var opts []ollama.Option
	if model != "" {
		opts = append(opts, ollama.WithModel(model))
	}
	if baseURL != "" {
		opts = append(opts, ollama.WithServerURL(baseURL))
	}
	client, err := ollama.New(opts...)
	if err != nil {
		return nil, err
	}
	return &OllamaCompleter{client: client, model: model}, nil
}

func (a *OllamaCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, a.client, prompt,
		llms.WithModel(a.model),
		llms.WithTemperature(0),
	)
	if err != nil {
		return "", fmt.Errorf("ollama completion: %w", err)
	}
	return out, nil
}
