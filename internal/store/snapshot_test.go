package store

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSnapshotReplaceIsWholesale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")

	s := OpenSnapshot(path)
	s.Replace(map[string]SnapshotEntry{
		"e1": {Title: "Standup", Start: "Monday, Jun 02 at 09:00"},
		"e2": {Title: "Retro", Start: "Tuesday, Jun 03 at 15:00"},
	})
	if err := s.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	s.Replace(map[string]SnapshotEntry{
		"e3": {Title: "Planning", Start: "Friday, Jun 06 at 11:00"},
	})

	events := s.Events()
	if len(events) != 1 {
		t.Fatalf("expected replace to drop old entries, got %d", len(events))
	}
	if _, ok := events["e1"]; ok {
		t.Fatalf("e1 should be gone after replace")
	}
}

func TestSnapshotSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")

	s := OpenSnapshot(path)
	s.Replace(map[string]SnapshotEntry{"e1": {Title: "Standup", Start: "9am"}})
	s.SetMessages(-100123, []int{42, 43})
	if err := s.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded := OpenSnapshot(path)
	events := reloaded.Events()
	if events["e1"].Title != "Standup" {
		t.Fatalf("expected event to survive reload, got %+v", events)
	}
	ids := reloaded.Messages(-100123)
	if len(ids) != 2 || ids[0] != 42 || ids[1] != 43 {
		t.Fatalf("expected message ids to survive reload, got %v", ids)
	}
	if got := reloaded.Messages(-999); got != nil {
		t.Fatalf("expected nil for unknown chat, got %v", got)
	}
}

func TestSnapshotMalformedFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	if err := os.WriteFile(path, []byte("[1,2,3"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	s := OpenSnapshot(path)
	if len(s.Events()) != 0 {
		t.Fatalf("expected empty snapshot for malformed file")
	}
}
