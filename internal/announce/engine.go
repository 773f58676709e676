package announce

import (
	"context"
	"log"
	"sync"
	"time"

	"herald/internal/calendar"
	"herald/internal/config"
	"herald/internal/event"
	"herald/internal/render"
	"herald/internal/store"
)

// Messenger delivers rendered text to one destination chat.
type Messenger interface {
	Send(ctx context.Context, chat int64, text string) ([]int, error)
}

// Options assembles an Engine. Source may be nil and Audiences may be empty;
// the engine then degrades to a logged one-time no-op instead of failing.
type Options struct {
	Domain     string
	Source     calendar.Source
	Announced  *store.AnnouncedEvents
	Messenger  Messenger
	Translator render.Translator
	Renderer   *render.Renderer
	Audiences  []config.Audience
	SourceLang string
	Headline   string
	Interval   time.Duration

	// Retention bounds dedup pruning: ids whose start is older than now
	// minus Retention are dropped before each persist. It must cover the
	// widest lookahead window any trigger can query, plus a safety margin.
	Retention time.Duration

	// ManualDedup controls whether on-demand windows consult and/or record
	// the announced-id set.
	ManualDedup string

	Logger *log.Logger
}

// Engine announces events the moment their start enters the current tick's
// window. Dedup is by event id and survives restarts through the announced
// store; a duplicate send after a crash between send and persist is accepted.
type Engine struct {
	opts Options
	log  *log.Logger

	noopOnce sync.Once

	// now is swapped out by tests.
	now func() time.Time
}

func New(opts Options) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Retention <= 0 {
		opts.Retention = 96 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Engine{opts: opts, log: opts.Logger, now: time.Now}
}

// Tick runs one announcement pass: fetch [now, now+interval), announce
// everything not yet announced, persist the id set if anything was new. All
// failures are logged and absorbed here; a tick never stops the scheduler.
func (e *Engine) Tick(ctx context.Context) {
	if e.opts.Source == nil || len(e.opts.Audiences) == 0 {
		e.noopOnce.Do(func() {
			e.log.Printf("[announce:%s] not configured (missing source or audiences); ticks are no-ops", e.opts.Domain)
		})
		return
	}

	now := e.now()
	window := calendar.Window{From: now, To: now.Add(e.opts.Interval)}

	events, err := e.opts.Source.Fetch(ctx, window)
	if err != nil {
		e.log.Printf("[announce:%s] fetch failed: %v", e.opts.Domain, err)
		return
	}

	announced := 0
	for _, ev := range events {
		if e.opts.Announced.Contains(ev.ID) {
			continue
		}
		e.fanout(ctx, ev)
		// Marked after all audiences were attempted, failures included, so a
		// partial fanout is not retried forever.
		e.opts.Announced.Add(ev.ID, ev.Start)
		announced++
	}

	if announced > 0 {
		e.persist(now)
	}
}

// fanout renders and delivers ev to every audience. A failure at one audience
// never blocks the rest.
func (e *Engine) fanout(ctx context.Context, ev event.Event) {
	for _, aud := range e.opts.Audiences {
		text := e.renderFor(ctx, ev, aud.Lang)
		if _, err := e.opts.Messenger.Send(ctx, aud.Chat, text); err != nil {
			e.log.Printf("[announce:%s] send to chat %d (%s) failed: %v", e.opts.Domain, aud.Chat, aud.Lang, err)
		}
	}
}

func (e *Engine) renderFor(ctx context.Context, ev event.Event, lang string) string {
	labels := render.DefaultLabels(e.opts.Headline)
	tr := e.opts.Translator
	if tr != nil && lang != "" && lang != e.opts.SourceLang {
		labels = labels.Translate(ctx, tr, lang)
		ev.Title = tr.Translate(ctx, ev.Title, lang)
		ev.Description = tr.Translate(ctx, ev.Description, lang)
	}
	return e.opts.Renderer.Render(render.Payload{Kind: render.KindAnnouncement, Event: ev}, labels)
}

func (e *Engine) persist(now time.Time) {
	if dropped := e.opts.Announced.Prune(now.Add(-e.opts.Retention)); dropped > 0 {
		e.log.Printf("[announce:%s] pruned %d stale announced ids", e.opts.Domain, dropped)
	}
	if err := e.opts.Announced.Save(); err != nil {
		e.log.Printf("[announce:%s] could not persist announced ids: %v", e.opts.Domain, err)
	}
}

// AnnounceWindow posts the events of the next window duration to every shared
// audience as one list message, for on-demand triggers. Whether the dedup set
// is consulted or updated follows the configured manual mode. It returns the
// number of events posted.
func (e *Engine) AnnounceWindow(ctx context.Context, window time.Duration, heading string) (int, error) {
	if e.opts.Source == nil || len(e.opts.Audiences) == 0 {
		return 0, ErrNotConfigured
	}

	now := e.now()
	events, err := e.opts.Source.Fetch(ctx, calendar.Window{From: now, To: now.Add(window)})
	if err != nil {
		return 0, err
	}

	mode := e.opts.ManualDedup
	if mode == config.ManualDedupConsult || mode == config.ManualDedupUpdate {
		kept := events[:0]
		for _, ev := range events {
			if !e.opts.Announced.Contains(ev.ID) {
				kept = append(kept, ev)
			}
		}
		events = kept
	}

	for _, aud := range e.opts.Audiences {
		labels := render.DefaultLabels(e.opts.Headline)
		labels.Upcoming = heading
		list := events
		tr := e.opts.Translator
		if tr != nil && aud.Lang != "" && aud.Lang != e.opts.SourceLang {
			labels = labels.Translate(ctx, tr, aud.Lang)
			list = make([]event.Event, len(events))
			copy(list, events)
			for i := range list {
				list[i].Title = tr.Translate(ctx, list[i].Title, aud.Lang)
				list[i].Description = tr.Translate(ctx, list[i].Description, aud.Lang)
			}
		}
		text := e.opts.Renderer.Render(render.Payload{Kind: render.KindUpcoming, Events: list}, labels)
		if _, err := e.opts.Messenger.Send(ctx, aud.Chat, text); err != nil {
			e.log.Printf("[announce:%s] manual send to chat %d failed: %v", e.opts.Domain, aud.Chat, err)
		}
	}

	if mode == config.ManualDedupUpdate && len(events) > 0 {
		for _, ev := range events {
			e.opts.Announced.Add(ev.ID, ev.Start)
		}
		e.persist(now)
	}
	return len(events), nil
}

// UpcomingText renders the next window duration as a private list for one
// requester, without touching the dedup set.
func (e *Engine) UpcomingText(ctx context.Context, window time.Duration, lang, requestedBy string) (string, error) {
	if e.opts.Source == nil {
		return "", ErrNotConfigured
	}

	now := e.now()
	events, err := e.opts.Source.Fetch(ctx, calendar.Window{From: now, To: now.Add(window), Limit: 25})
	if err != nil {
		return "", err
	}

	labels := render.DefaultLabels(e.opts.Headline)
	tr := e.opts.Translator
	if tr != nil && lang != "" && lang != e.opts.SourceLang {
		labels = labels.Translate(ctx, tr, lang)
		for i := range events {
			events[i].Title = tr.Translate(ctx, events[i].Title, lang)
			events[i].Description = tr.Translate(ctx, events[i].Description, lang)
		}
	}
	p := render.Payload{Kind: render.KindUpcoming, Events: events, RequestedBy: requestedBy}
	return e.opts.Renderer.Render(p, labels), nil
}
