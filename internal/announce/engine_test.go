package announce

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
	"herald/internal/config"
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
	sent map[int64][]string
	fail map[int64]bool
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{sent: make(map[int64][]string), fail: make(map[int64]bool)}
}

func (f *fakeMessenger) Send(_ context.Context, chat int64, text string) ([]int, error) {
	if f.fail[chat] {
		return nil, errors.New("forbidden")
	}
	f.sent[chat] = append(f.sent[chat], text)
	return []int{len(f.sent[chat])}, nil
}

type upperTranslator struct{}

func (upperTranslator) Translate(_ context.Context, text, _ string) string {
	return strings.ToUpper(text)
}

var testNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, src calendar.Source, msgr Messenger, audiences []config.Audience) (*Engine, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "announced.json")
	e := New(Options{
		Domain:     "events",
		Source:     src,
		Announced:  store.OpenAnnounced(path),
		Messenger:  msgr,
		Renderer:   render.New(time.UTC),
		Audiences:  audiences,
		SourceLang: "en",
		Headline:   "EVENT STARTING NOW",
		Interval:   time.Minute,
		Logger:     log.New(os.Stderr, "", 0),
	})
	e.now = func() time.Time { return testNow }
	return e, path
}

func TestTickAnnouncesOncePerAudience(t *testing.T) {
	src := &fakeSource{events: []event.Event{
		{ID: "e1", Title: "Kickoff", Start: testNow.Add(30 * time.Second)},
	}}
	msgr := newFakeMessenger()
	audiences := []config.Audience{{Lang: "en", Chat: 100}, {Lang: "en", Chat: 200}}
	e, path := newTestEngine(t, src, msgr, audiences)

	e.Tick(context.Background())

	for _, chat := range []int64{100, 200} {
		if len(msgr.sent[chat]) != 1 {
			t.Fatalf("chat %d: expected 1 message, got %d", chat, len(msgr.sent[chat]))
		}
		if !strings.Contains(msgr.sent[chat][0], "Kickoff") {
			t.Fatalf("chat %d: message does not mention the event: %q", chat, msgr.sent[chat][0])
		}
	}

	// The id set must have been persisted and survive a reload.
	if !store.OpenAnnounced(path).Contains("e1") {
		t.Fatalf("expected e1 in the persisted announced set")
	}

	// A second tick with the identical fetch result sends nothing.
	e.Tick(context.Background())
	if len(msgr.sent[100]) != 1 || len(msgr.sent[200]) != 1 {
		t.Fatalf("second tick must not re-announce: %d/%d messages", len(msgr.sent[100]), len(msgr.sent[200]))
	}
}

func TestTickWindowMatchesInterval(t *testing.T) {
	src := &fakeSource{}
	e, _ := newTestEngine(t, src, newFakeMessenger(), []config.Audience{{Chat: 1}})

	e.Tick(context.Background())

	if len(src.windows) != 1 {
		t.Fatalf("expected 1 fetch, got %d", len(src.windows))
	}
	w := src.windows[0]
	if !w.From.Equal(testNow) || !w.To.Equal(testNow.Add(time.Minute)) {
		t.Fatalf("window [%v, %v), want [%v, %v)", w.From, w.To, testNow, testNow.Add(time.Minute))
	}
}

func TestTickFaultIsolation(t *testing.T) {
	src := &fakeSource{events: []event.Event{
		{ID: "e1", Title: "Kickoff", Start: testNow},
	}}
	msgr := newFakeMessenger()
	msgr.fail[100] = true
	e, _ := newTestEngine(t, src, msgr, []config.Audience{{Chat: 100}, {Chat: 200}})

	e.Tick(context.Background())

	if len(msgr.sent[200]) != 1 {
		t.Fatalf("a failing audience must not block the others, chat 200 got %d", len(msgr.sent[200]))
	}
	if !e.opts.Announced.Contains("e1") {
		t.Fatalf("event must be marked announced after all audiences were attempted")
	}
}

func TestTickFetchErrorIsAbsorbed(t *testing.T) {
	src := &fakeSource{err: errors.New("quota exceeded")}
	msgr := newFakeMessenger()
	e, path := newTestEngine(t, src, msgr, []config.Audience{{Chat: 1}})

	e.Tick(context.Background())

	if len(msgr.sent) != 0 {
		t.Fatalf("expected no sends on fetch failure")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("nothing was announced, store must not be persisted")
	}
}

func TestTickDoesNotPersistWithoutNewIDs(t *testing.T) {
	src := &fakeSource{events: []event.Event{{ID: "e1", Title: "Kickoff", Start: testNow}}}
	e, path := newTestEngine(t, src, newFakeMessenger(), []config.Audience{{Chat: 1}})
	e.opts.Announced.Add("e1", testNow)

	e.Tick(context.Background())

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("tick without new ids must not write the store file")
	}
}

func TestTickTranslatesForAudienceLanguage(t *testing.T) {
	src := &fakeSource{events: []event.Event{{ID: "e1", Title: "Kickoff", Start: testNow}}}
	msgr := newFakeMessenger()
	e, _ := newTestEngine(t, src, msgr, []config.Audience{{Lang: "pt", Chat: 1}, {Lang: "en", Chat: 2}})
	e.opts.Translator = upperTranslator{}

	e.Tick(context.Background())

	if !strings.Contains(msgr.sent[1][0], "KICKOFF") {
		t.Fatalf("pt audience should get translated title: %q", msgr.sent[1][0])
	}
	if !strings.Contains(msgr.sent[2][0], "Kickoff") {
		t.Fatalf("source-language audience must keep the original title: %q", msgr.sent[2][0])
	}
}

func TestAnnounceWindowDedupModes(t *testing.T) {
	cases := []struct {
		mode      string
		wantCount int
		wantSaved bool
	}{
		{config.ManualDedupIgnore, 2, false},
		{config.ManualDedupConsult, 1, false},
		{config.ManualDedupUpdate, 1, true},
	}

	for _, tc := range cases {
		src := &fakeSource{events: []event.Event{
			{ID: "old", Title: "Seen", Start: testNow.Add(time.Hour)},
			{ID: "new", Title: "Unseen", Start: testNow.Add(2 * time.Hour)},
		}}
		msgr := newFakeMessenger()
		e, path := newTestEngine(t, src, msgr, []config.Audience{{Chat: 1}})
		e.opts.ManualDedup = tc.mode
		e.opts.Announced.Add("old", testNow.Add(time.Hour))

		n, err := e.AnnounceWindow(context.Background(), 24*time.Hour, "Next 24 Hours")
		if err != nil {
			t.Fatalf("mode %s: unexpected err: %v", tc.mode, err)
		}
		if n != tc.wantCount {
			t.Fatalf("mode %s: expected %d events posted, got %d", tc.mode, tc.wantCount, n)
		}

		_, statErr := os.Stat(path)
		if tc.wantSaved && statErr != nil {
			t.Fatalf("mode %s: expected the store to be persisted", tc.mode)
		}
		if !tc.wantSaved && !os.IsNotExist(statErr) {
			t.Fatalf("mode %s: store must not be persisted", tc.mode)
		}
		if tc.mode == config.ManualDedupUpdate && !store.OpenAnnounced(path).Contains("new") {
			t.Fatalf("consult-and-update must record the new id")
		}
	}
}

func TestUpcomingTextListsEvents(t *testing.T) {
	src := &fakeSource{events: []event.Event{
		{ID: "e1", Title: "Kickoff", Start: testNow.Add(time.Hour)},
	}}
	e, _ := newTestEngine(t, src, newFakeMessenger(), nil)

	text, err := e.UpcomingText(context.Background(), 72*time.Hour, "en", "Sam")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !strings.Contains(text, "Kickoff") || !strings.Contains(text, "Requested by Sam") {
		t.Fatalf("unexpected upcoming text: %q", text)
	}
}
