package translate

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"herald/internal/config"
	"herald/internal/llm"
)

// fallbackMark prefixes text that could not be translated, so readers can see
// they are looking at the untranslated original.
const fallbackMark = "⚠️ "

// backend is one translation provider. Backends may fail; the Service hides
// that from callers.
type backend interface {
	translate(ctx context.Context, text, target string) (string, error)
}

// Service translates text for a target language. Translate never fails: on
// backend error the original text comes back with a visible warning marker.
// Identical strings are served from a small in-process cache.
type Service struct {
	source  string
	backend backend

	mu    sync.RWMutex
	cache map[string]string
}

const cacheCap = 512

// New builds the Service selected by cfg. sourceLang is the language calendar
// entries are written in; requests for it pass through untouched.
func New(cfg config.TranslationConfig, sourceLang string) (*Service, error) {
	s := &Service{source: sourceLang, cache: make(map[string]string)}

	switch cfg.Backend {
	case "", "off":
		// nil backend: identity passthrough
	case "google":
		b, err := newGoogleBackend(cfg.GoogleAPIKey)
		if err != nil {
			return nil, err
		}
		s.backend = b
	case "llm":
		c, err := llm.NewCompleter(llm.Provider(cfg.LLMProvider), cfg.LLMModel, cfg.LLMBaseURL)
		if err != nil {
			return nil, err
		}
		s.backend = &llmBackend{completer: c}
	default:
		return nil, fmt.Errorf("unknown translation backend %q", cfg.Backend)
	}
	return s, nil
}

// Translate renders text in target. Empty text, a disabled backend, or a
// target equal to the source language all return text unchanged.
func (s *Service) Translate(ctx context.Context, text, target string) string {
	if s == nil || s.backend == nil || text == "" || target == "" || strings.EqualFold(target, s.source) {
		return text
	}

	key := target + "\x00" + text
	s.mu.RLock()
	got, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return got
	}

	out, err := s.backend.translate(ctx, text, target)
	if err != nil || strings.TrimSpace(out) == "" {
		log.Printf("[translate] %s translation failed: %v", target, err)
		return fallbackMark + text
	}

	s.mu.Lock()
	if len(s.cache) >= cacheCap {
		s.cache = make(map[string]string)
	}
	s.cache[key] = out
	s.mu.Unlock()
	return out
}
