package store

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
	"sync"
)

// SnapshotEntry preserves the display strings of a previously reconciled
// event. The id keying lives in the enclosing map; titles are never used for
// matching.
type SnapshotEntry struct {
	Title string `json:"title"`
	Start string `json:"start"`
}

// snapshotFile is the persisted layout: the id-keyed previous event view plus
// the ids of the last summary message posted per destination chat, so the
// replace-previous-post step survives restarts.
type snapshotFile struct {
	Events   map[string]SnapshotEntry `json:"events"`
	Messages map[string][]int         `json:"messages,omitempty"`
}

// Snapshot is the persisted previous "current events" view used for diffing.
// It is replaced wholesale on each reconciliation, never merged.
type Snapshot struct {
	path string

	mu   sync.Mutex
	data snapshotFile
}

// OpenSnapshot loads the snapshot at path; missing or malformed files yield
// an empty snapshot.
func OpenSnapshot(path string) *Snapshot {
	s := &Snapshot{path: path}
	s.data.Events = make(map[string]SnapshotEntry)
	s.data.Messages = make(map[string][]int)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[store] could not read %s: %v; starting empty", path, err)
		}
		return s
	}

	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		log.Printf("[store] malformed snapshot %s; starting empty", path)
		return s
	}
	if file.Events != nil {
		s.data.Events = file.Events
	}
	if file.Messages != nil {
		s.data.Messages = file.Messages
	}
	return s
}

// Events returns a copy of the previous event view.
func (s *Snapshot) Events() map[string]SnapshotEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]SnapshotEntry, len(s.data.Events))
	for id, e := range s.data.Events {
		out[id] = e
	}
	return out
}

// Replace swaps in the new event view wholesale. Message references are kept.
func (s *Snapshot) Replace(events map[string]SnapshotEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if events == nil {
		events = make(map[string]SnapshotEntry)
	}
	s.data.Events = events
}

// SetMessages records the message ids of the summary last posted to chat.
func (s *Snapshot) SetMessages(chat int64, ids []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Messages[strconv.FormatInt(chat, 10)] = ids
}

// Messages returns the recorded summary message ids for chat, if any.
func (s *Snapshot) Messages(chat int64) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Messages[strconv.FormatInt(chat, 10)]
}

// Save writes the snapshot back to disk.
func (s *Snapshot) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}
