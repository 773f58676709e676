package reconcile

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"herald/internal/calendar"
	"herald/internal/render"
	"herald/internal/store"
)

// ErrNotConfigured marks an engine whose domain is missing a source or a
// destination chat.
var ErrNotConfigured = errors.New("reconcile: domain not configured")

// Messenger posts and deletes summary messages at one destination chat.
type Messenger interface {
	Send(ctx context.Context, chat int64, text string) ([]int, error)
	Delete(ctx context.Context, chat int64, messageIDs []int) error
}

// Options assembles an Engine.
type Options struct {
	Domain     string
	Source     calendar.Source
	Snapshot   *store.Snapshot
	Messenger  Messenger
	Translator render.Translator
	Renderer   *render.Renderer
	Chat       int64
	Lang       string
	SourceLang string
	MaxResults int
	Logger     *log.Logger
}

// Engine maintains one live summary post: each run fetches a lookahead
// window, diffs it against the previous snapshot by event id, replaces the
// previously posted message, and persists the new snapshot wholesale.
type Engine struct {
	opts Options
	log  *log.Logger

	noopOnce sync.Once
	now      func() time.Time
}

func New(opts Options) *Engine {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 5
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Engine{opts: opts, log: opts.Logger, now: time.Now}
}

// Tick runs one reconciliation. Failures are logged and absorbed; the
// scheduler never sees them.
func (e *Engine) Tick(ctx context.Context) {
	if err := e.Run(ctx); err != nil && !errors.Is(err, ErrNotConfigured) {
		e.log.Printf("[summary:%s] reconciliation failed: %v", e.opts.Domain, err)
	}
}

// Run performs the reconciliation and reports the first hard failure, for
// on-demand triggers that want to tell the requester. Per-step delivery
// problems (deleting the old post) stay non-fatal.
func (e *Engine) Run(ctx context.Context) error {
	if e.opts.Source == nil || e.opts.Chat == 0 {
		e.noopOnce.Do(func() {
			e.log.Printf("[summary:%s] not configured (missing source or chat); ticks are no-ops", e.opts.Domain)
		})
		return ErrNotConfigured
	}

	now := e.now()
	events, err := e.opts.Source.Fetch(ctx, calendar.Window{From: now, Limit: e.opts.MaxResults})
	if err != nil {
		return err
	}

	prev := e.opts.Snapshot.Events()

	// Both classifications key on event id: new means the id was not in the
	// previous snapshot, ended means a previous id is gone from this fetch.
	next := make(map[string]store.SnapshotEntry, len(events))
	entries := make([]render.SummaryEntry, 0, len(events))
	labels := render.DefaultLabels("")
	for _, ev := range events {
		_, seen := prev[ev.ID]
		entries = append(entries, render.SummaryEntry{Event: ev, New: !seen})
		next[ev.ID] = store.SnapshotEntry{Title: ev.Title, Start: e.opts.Renderer.FormatStart(ev, labels)}
	}

	var ended []render.EndedEntry
	for id, entry := range prev {
		if _, still := next[id]; !still {
			ended = append(ended, render.EndedEntry{Title: entry.Title, Start: entry.Start})
		}
	}

	text := e.renderSummary(ctx, entries, ended)

	if old := e.opts.Snapshot.Messages(e.opts.Chat); len(old) > 0 {
		if err := e.opts.Messenger.Delete(ctx, e.opts.Chat, old); err != nil {
			e.log.Printf("[summary:%s] could not delete previous post: %v", e.opts.Domain, err)
		}
	}

	ids, sendErr := e.opts.Messenger.Send(ctx, e.opts.Chat, text)
	if sendErr != nil {
		e.log.Printf("[summary:%s] send failed: %v", e.opts.Domain, sendErr)
	} else {
		e.opts.Snapshot.SetMessages(e.opts.Chat, ids)
	}

	// The snapshot is replaced wholesale even when the send failed: the next
	// run diffs against what the calendar held now, not against a stale view.
	e.opts.Snapshot.Replace(next)
	if err := e.opts.Snapshot.Save(); err != nil {
		e.log.Printf("[summary:%s] could not persist snapshot: %v", e.opts.Domain, err)
	}
	return sendErr
}

func (e *Engine) renderSummary(ctx context.Context, entries []render.SummaryEntry, ended []render.EndedEntry) string {
	labels := render.DefaultLabels("")
	tr := e.opts.Translator
	if tr != nil && e.opts.Lang != "" && e.opts.Lang != e.opts.SourceLang {
		labels = labels.Translate(ctx, tr, e.opts.Lang)
		for i := range entries {
			entries[i].Event.Title = tr.Translate(ctx, entries[i].Event.Title, e.opts.Lang)
		}
	}
	p := render.Payload{Kind: render.KindSummary, Entries: entries, Ended: ended}
	return e.opts.Renderer.Render(p, labels)
}
