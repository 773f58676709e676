package translate

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	gtranslate "google.golang.org/api/translate/v2"
)

type googleBackend struct {
	svc *gtranslate.Service
}

func newGoogleBackend(apiKey string) (*googleBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google translation backend requires an API key")
	}
	svc, err := gtranslate.NewService(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create translate service: %w", err)
	}
	return &googleBackend{svc: svc}, nil
}

func (g *googleBackend) translate(ctx context.Context, text, target string) (string, error) {
	res, err := g.svc.Translations.List([]string{text}, target).Format("text").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	if len(res.Translations) == 0 {
		return "", fmt.Errorf("empty translation response")
	}
	return res.Translations[0].TranslatedText, nil
}
