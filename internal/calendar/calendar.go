package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"herald/internal/config"
	"herald/internal/event"
)

// Window is the [From, To) interval queried from a source. A zero To leaves
// the window open-ended; Limit caps the number of returned events (0 = none).
type Window struct {
	From  time.Time
	To    time.Time
	Limit int
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if t.Before(w.From) {
		return false
	}
	return w.To.IsZero() || t.Before(w.To)
}

// Source fetches events from one calendar over an explicit time window.
// Implementations return events ascending by start, with recurring series
// expanded to single instances.
type Source interface {
	Fetch(ctx context.Context, w Window) ([]event.Event, error)
}

// Factory builds a Source from a domain's source configuration.
type Factory func(cfg config.SourceConfig) (Source, error)

var (
	registry   = make(map[string]Factory)
	registryMu sync.RWMutex
)

// Register adds a source factory under a type name. It is called from init()
// of the implementation files.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if f == nil {
		panic("calendar: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("calendar: Register called twice for source " + name)
	}

	registry[name] = f
}

// New builds the source named by cfg.Type.
func New(cfg config.SourceConfig) (Source, error) {
	registryMu.RLock()
	f, ok := registry[cfg.Type]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown calendar source type %q", cfg.Type)
	}
	return f(cfg)
}
