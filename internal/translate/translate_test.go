package translate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"herald/internal/config"
)

type countingBackend struct {
	calls int
	err   error
}

func (c *countingBackend) translate(_ context.Context, text, target string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return "[" + target + "] " + text, nil
}

func newTestService(b backend) *Service {
	return &Service{source: "en", backend: b, cache: make(map[string]string)}
}

func TestTranslateOffIsPassthrough(t *testing.T) {
	s, err := New(config.TranslationConfig{Backend: "off"}, "en")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got := s.Translate(context.Background(), "Kickoff", "pt"); got != "Kickoff" {
		t.Fatalf("disabled backend must pass text through, got %q", got)
	}
}

func TestTranslateSkipsSourceLanguage(t *testing.T) {
	b := &countingBackend{}
	s := newTestService(b)

	if got := s.Translate(context.Background(), "Kickoff", "en"); got != "Kickoff" {
		t.Fatalf("source language must pass through, got %q", got)
	}
	if b.calls != 0 {
		t.Fatalf("backend must not be called for the source language")
	}
}

func TestTranslateFailureReturnsMarkedOriginal(t *testing.T) {
	s := newTestService(&countingBackend{err: errors.New("backend down")})

	got := s.Translate(context.Background(), "Kickoff", "pt")
	if !strings.HasSuffix(got, "Kickoff") || !strings.HasPrefix(got, fallbackMark) {
		t.Fatalf("failed translation must return the marked original, got %q", got)
	}
}

func TestTranslateCachesRepeats(t *testing.T) {
	b := &countingBackend{}
	s := newTestService(b)

	first := s.Translate(context.Background(), "Kickoff", "pt")
	second := s.Translate(context.Background(), "Kickoff", "pt")
	if first != second || first != "[pt] Kickoff" {
		t.Fatalf("unexpected translations: %q vs %q", first, second)
	}
	if b.calls != 1 {
		t.Fatalf("expected 1 backend call for identical input, got %d", b.calls)
	}

	// A different target misses the cache.
	s.Translate(context.Background(), "Kickoff", "de")
	if b.calls != 2 {
		t.Fatalf("different target must bypass the cache, got %d calls", b.calls)
	}
}

func TestTranslateFailureNotCached(t *testing.T) {
	b := &countingBackend{err: errors.New("backend down")}
	s := newTestService(b)

	s.Translate(context.Background(), "Kickoff", "pt")
	b.err = nil
	if got := s.Translate(context.Background(), "Kickoff", "pt"); got != "[pt] Kickoff" {
		t.Fatalf("recovered backend must translate again, got %q", got)
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	if _, err := New(config.TranslationConfig{Backend: "carrier-pigeon"}, "en"); err == nil {
		t.Fatalf("unknown backend must be rejected")
	}
}
