package store

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

// AnnouncedEvents is the persisted set of already-announced event ids. Each id
// carries the event's start time so stale entries can be pruned: once a start
// has passed, that event can never reappear in a future-facing window, so
// dropping its id cannot cause a re-announcement.
type AnnouncedEvents struct {
	path string

	mu  sync.Mutex
	ids map[string]time.Time
}

// OpenAnnounced loads the id set at path. A missing or malformed file yields
// an empty set; persisted state is best-effort and never fatal.
func OpenAnnounced(path string) *AnnouncedEvents {
	s := &AnnouncedEvents{path: path, ids: make(map[string]time.Time)}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[store] could not read %s: %v; starting empty", path, err)
		}
		return s
	}

	var byID map[string]time.Time
	if err := json.Unmarshal(data, &byID); err == nil && byID != nil {
		s.ids = byID
		return s
	}

	// Earlier versions persisted a flat id array without start times. Those
	// entries migrate with a zero start and age out on the next prune.
	var legacy []string
	if err := json.Unmarshal(data, &legacy); err == nil {
		for _, id := range legacy {
			s.ids[id] = time.Time{}
		}
		return s
	}

	log.Printf("[store] malformed announced set %s; starting empty", path)
	return s
}

// Contains reports whether id was already announced.
func (s *AnnouncedEvents) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Add records id as announced, remembering the event's start for pruning.
func (s *AnnouncedEvents) Add(id string, start time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = start
}

// Prune removes entries whose start is older than cutoff and returns how many
// were dropped.
func (s *AnnouncedEvents) Prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := 0
	for id, start := range s.ids {
		if start.Before(cutoff) {
			delete(s.ids, id)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of remembered ids.
func (s *AnnouncedEvents) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Save writes the whole set back to disk.
func (s *AnnouncedEvents) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(s.ids, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}
