package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"

	"herald/internal/config"
)

// TokenStore persists OAuth tokens between runs.
type TokenStore interface {
	SaveToken(token *oauth2.Token) error
	LoadToken() (*oauth2.Token, error)
}

// FileTokenStore is a file-based implementation of TokenStore.
type FileTokenStore struct {
	Path string
}

// SaveToken writes the token to store.Path.
func (store *FileTokenStore) SaveToken(token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	if err := os.WriteFile(store.Path, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

// LoadToken reads the token at store.Path. A missing file returns nil, nil.
func (store *FileTokenStore) LoadToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(store.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("unmarshal token: %w", err)
	}
	return &token, nil
}

// autoSaveTokenSource wraps an oauth2.TokenSource and persists refreshed
// tokens so the next process start reuses them.
type autoSaveTokenSource struct {
	source oauth2.TokenSource
	store  TokenStore
	last   *oauth2.Token
}

func (a *autoSaveTokenSource) Token() (*oauth2.Token, error) {
	token, err := a.source.Token()
	if err != nil {
		return nil, err
	}
	if a.last == nil || a.last.AccessToken != token.AccessToken {
		if err := a.store.SaveToken(token); err != nil {
			return nil, fmt.Errorf("save refreshed token: %w", err)
		}
		a.last = token
	}
	return token, nil
}

// googleClient builds an authenticated HTTP client from the configured
// credentials file. Service-account credentials are used directly; installed-
// app credentials need a previously stored token (the authorization dance
// itself is not herald's job).
func googleClient(ctx context.Context, cfg config.SourceConfig) (*http.Client, error) {
	data, err := os.ReadFile(config.ExpandPath(cfg.CredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var probe struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(data, &probe)

	if probe.Type == "service_account" {
		jwtCfg, err := google.JWTConfigFromJSON(data, gcal.CalendarReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("parse service account credentials: %w", err)
		}
		return jwtCfg.Client(ctx), nil
	}

	oauthCfg, err := google.ConfigFromJSON(data, gcal.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse oauth client credentials: %w", err)
	}

	tokenPath := cfg.TokenFile
	if tokenPath == "" {
		tokenPath = "~/.herald/token.json"
	}
	store := &FileTokenStore{Path: config.ExpandPath(tokenPath)}

	token, err := store.LoadToken()
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, fmt.Errorf("no stored token at %s; authorize the app there first", tokenPath)
	}

	src := &autoSaveTokenSource{
		source: oauth2.ReuseTokenSource(token, oauthCfg.TokenSource(ctx, token)),
		store:  store,
		last:   token,
	}
	return oauth2.NewClient(ctx, src), nil
}
