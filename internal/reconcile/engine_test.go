package reconcile

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"herald/internal/calendar"
	"herald/internal/event"
	"herald/internal/render"
	"herald/internal/store"
)

type fakeSource struct {
	events  []event.Event
	err     error
	windows []calendar.Window
}

func (f *fakeSource) Fetch(_ context.Context, w calendar.Window) ([]event.Event, error) {
	f.windows = append(f.windows, w)
	return f.events, f.err
}

type fakeMessenger struct {
	sent      []string
	deleted   [][]int
	nextID    int
	deleteErr error
	sendErr   error
}

func (f *fakeMessenger) Send(_ context.Context, _ int64, text string) ([]int, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, text)
	f.nextID++
	return []int{f.nextID}, nil
}

func (f *fakeMessenger) Delete(_ context.Context, _ int64, ids []int) error {
	f.deleted = append(f.deleted, ids)
	return f.deleteErr
}

var testNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, src calendar.Source, msgr Messenger) (*Engine, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.json")
	e := New(Options{
		Domain:     "events",
		Source:     src,
		Snapshot:   store.OpenSnapshot(path),
		Messenger:  msgr,
		Renderer:   render.New(time.UTC),
		Chat:       100,
		Lang:       "en",
		SourceLang: "en",
		MaxResults: 5,
		Logger:     log.New(os.Stderr, "", 0),
	})
	e.now = func() time.Time { return testNow }
	return e, path
}

func TestRunTagsUnseenEventsAsNew(t *testing.T) {
	src := &fakeSource{events: []event.Event{
		{ID: "e1", Title: "Kickoff", Start: testNow.Add(time.Hour)},
	}}
	msgr := &fakeMessenger{}
	e, path := newTestEngine(t, src, msgr)

	e.Tick(context.Background())

	if len(msgr.sent) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(msgr.sent))
	}
	if !strings.Contains(msgr.sent[0], "Kickoff (NEW)") {
		t.Fatalf("first sighting must be tagged NEW: %q", msgr.sent[0])
	}

	// Snapshot persisted: the next run over the same fetch drops the tag.
	reloaded := store.OpenSnapshot(path)
	if _, ok := reloaded.Events()["e1"]; !ok {
		t.Fatalf("expected e1 in the persisted snapshot")
	}

	e.Tick(context.Background())
	if strings.Contains(msgr.sent[1], "(NEW)") {
		t.Fatalf("already-seen event must not be tagged NEW again: %q", msgr.sent[1])
	}
}

func TestRunRendersEndedExactlyOnce(t *testing.T) {
	src := &fakeSource{} // current fetch is empty
	msgr := &fakeMessenger{}
	e, path := newTestEngine(t, src, msgr)

	e.opts.Snapshot.Replace(map[string]store.SnapshotEntry{
		"id1": {Title: "Standup", Start: "9am"},
	})

	e.Tick(context.Background())

	if len(msgr.sent) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(msgr.sent))
	}
	text := msgr.sent[0]
	if !strings.Contains(text, "<s><b>Standup</b> (Ended)</s>") {
		t.Fatalf("vanished event must be struck through and labeled ended: %q", text)
	}
	if strings.Count(text, "Standup") != 1 {
		t.Fatalf("ended entry must render exactly once: %q", text)
	}

	if got := store.OpenSnapshot(path).Events(); len(got) != 0 {
		t.Fatalf("snapshot must be replaced wholesale, got %d entries", len(got))
	}
}

func TestRunReplacesPreviousPost(t *testing.T) {
	src := &fakeSource{}
	msgr := &fakeMessenger{}
	e, _ := newTestEngine(t, src, msgr)
	e.opts.Snapshot.SetMessages(100, []int{41, 42})

	e.Tick(context.Background())

	if len(msgr.deleted) != 1 || len(msgr.deleted[0]) != 2 {
		t.Fatalf("expected the previous post to be deleted, got %v", msgr.deleted)
	}
	if got := e.opts.Snapshot.Messages(100); len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected the new message id to be recorded, got %v", got)
	}
}

func TestRunDeleteFailureIsNotFatal(t *testing.T) {
	src := &fakeSource{}
	msgr := &fakeMessenger{deleteErr: errors.New("message to delete not found")}
	e, _ := newTestEngine(t, src, msgr)
	e.opts.Snapshot.SetMessages(100, []int{7})

	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("delete failure must not fail the run: %v", err)
	}
	if len(msgr.sent) != 1 {
		t.Fatalf("summary must still be posted after a failed delete")
	}
}

func TestRunFetchErrorLeavesSnapshot(t *testing.T) {
	src := &fakeSource{err: errors.New("unavailable")}
	msgr := &fakeMessenger{}
	e, _ := newTestEngine(t, src, msgr)
	e.opts.Snapshot.Replace(map[string]store.SnapshotEntry{"id1": {Title: "Standup"}})

	if err := e.Run(context.Background()); err == nil {
		t.Fatalf("expected fetch error to be reported")
	}
	if len(msgr.sent) != 0 {
		t.Fatalf("nothing must be posted on fetch failure")
	}
	if len(e.opts.Snapshot.Events()) != 1 {
		t.Fatalf("snapshot must survive a failed fetch")
	}
}

func TestRunQueriesConfiguredLookahead(t *testing.T) {
	src := &fakeSource{}
	e, _ := newTestEngine(t, src, &fakeMessenger{})

	e.Tick(context.Background())

	if len(src.windows) != 1 {
		t.Fatalf("expected 1 fetch, got %d", len(src.windows))
	}
	w := src.windows[0]
	if !w.From.Equal(testNow) || !w.To.IsZero() || w.Limit != 5 {
		t.Fatalf("unexpected window: %+v", w)
	}
}

func TestUnconfiguredEngineIsNoop(t *testing.T) {
	e := New(Options{Domain: "events", Renderer: render.New(time.UTC), Logger: log.New(os.Stderr, "", 0)})
	if err := e.Run(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
