package render

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"herald/internal/event"
)

// Payload kinds. Each kind has its own renderer; delivery picks the kind, the
// audience picks the language.
const (
	KindAnnouncement = "announcement"
	KindSummary      = "summary"
	KindUpcoming     = "upcoming"
)

// SummaryEntry is one line of a reconciled summary.
type SummaryEntry struct {
	Event event.Event
	New   bool
}

// EndedEntry is a previously posted event that vanished from the current
// fetch. Only the display strings survive, taken from the prior snapshot.
type EndedEntry struct {
	Title string
	Start string
}

// Payload is the tagged message variant handed to Render.
type Payload struct {
	Kind string

	// KindAnnouncement
	Event event.Event

	// KindSummary
	Entries []SummaryEntry
	Ended   []EndedEntry

	// KindUpcoming
	Events      []event.Event
	RequestedBy string
}

// Labels are the fixed strings around event data. They go through the
// translator once per audience; event titles and descriptions are translated
// separately.
type Labels struct {
	Headline string

	Time     string
	Link     string
	Notes    string
	When     string
	Where    string
	AllDay   string
	New      string
	Ended    string
	Upcoming string
	NoEvents string
	Summary  string
}

// DefaultLabels returns the source-language label set. The announcement
// headline is per-domain and filled in by the caller.
func DefaultLabels(headline string) Labels {
	return Labels{
		Headline: headline,
		Time:     "Time",
		Link:     "Link",
		Notes:    "Notes",
		When:     "When",
		Where:    "Where",
		AllDay:   "All-day",
		New:      "NEW",
		Ended:    "Ended",
		Upcoming: "Your Schedule for the Next 3 Days",
		NoEvents: "No upcoming events found.",
		Summary:  "Upcoming Events",
	}
}

// Translator is the slice of the translation service rendering needs.
type Translator interface {
	Translate(ctx context.Context, text, target string) string
}

// Translate runs every label through t for the target language.
func (l Labels) Translate(ctx context.Context, t Translator, target string) Labels {
	out := l
	out.Headline = t.Translate(ctx, l.Headline, target)
	out.Time = t.Translate(ctx, l.Time, target)
	out.Link = t.Translate(ctx, l.Link, target)
	out.Notes = t.Translate(ctx, l.Notes, target)
	out.When = t.Translate(ctx, l.When, target)
	out.Where = t.Translate(ctx, l.Where, target)
	out.AllDay = t.Translate(ctx, l.AllDay, target)
	out.New = t.Translate(ctx, l.New, target)
	out.Ended = t.Translate(ctx, l.Ended, target)
	out.Upcoming = t.Translate(ctx, l.Upcoming, target)
	out.NoEvents = t.Translate(ctx, l.NoEvents, target)
	out.Summary = t.Translate(ctx, l.Summary, target)
	return out
}

const divider = "---------------------------------"

// Renderer formats payloads as Telegram HTML. All instants render in one
// fixed configured offset, never the viewer's local time.
type Renderer struct {
	loc *time.Location
}

func New(loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{loc: loc}
}

// FormatStart renders an event start. Date-only events never get a clock
// time; timed events always carry the configured zone name.
func (r *Renderer) FormatStart(ev event.Event, labels Labels) string {
	if ev.AllDay {
		// All-day starts stay in their own location: converting a date-only
		// midnight across an offset would shift the date.
		return ev.Start.Format("Monday, Jan 02") + " (" + labels.AllDay + ")"
	}
	return ev.Start.In(r.loc).Format("Monday, Jan 02 at 15:04 (MST)")
}

// Render formats p for one audience.
func (r *Renderer) Render(p Payload, labels Labels) string {
	switch p.Kind {
	case KindAnnouncement:
		return r.renderAnnouncement(p.Event, labels)
	case KindSummary:
		return r.renderSummary(p, labels)
	case KindUpcoming:
		return r.renderUpcoming(p, labels)
	default:
		return ""
	}
}

func (r *Renderer) renderAnnouncement(ev event.Event, labels Labels) string {
	title := ev.Title
	if title == "" {
		title = "No Title"
	}

	parts := []string{
		fmt.Sprintf("<b>%s: %s</b>", html.EscapeString(labels.Headline), html.EscapeString(title)),
		divider,
		fmt.Sprintf("<b>%s:</b> %s", html.EscapeString(labels.Time), html.EscapeString(r.FormatStart(ev, labels))),
	}
	if ev.Link != "" {
		parts = append(parts, fmt.Sprintf("<b>%s:</b> %s", html.EscapeString(labels.Link), html.EscapeString(ev.Link)))
	}
	if ev.Description != "" {
		parts = append(parts, fmt.Sprintf("<b>%s:</b> %s", html.EscapeString(labels.Notes), html.EscapeString(ev.Description)))
	}
	return strings.Join(parts, "\n")
}

func (r *Renderer) renderSummary(p Payload, labels Labels) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n%s", html.EscapeString(labels.Summary), divider)

	if len(p.Entries) == 0 && len(p.Ended) == 0 {
		b.WriteString("\n" + html.EscapeString(labels.NoEvents))
		return b.String()
	}

	for _, entry := range p.Entries {
		ev := entry.Event
		title := ev.Title
		if title == "" {
			title = "No Title"
		}
		b.WriteString("\n\n<b>" + html.EscapeString(title))
		if entry.New {
			b.WriteString(" (" + html.EscapeString(labels.New) + ")")
		}
		b.WriteString("</b>")
		fmt.Fprintf(&b, "\n<b>%s:</b> %s", html.EscapeString(labels.When), html.EscapeString(r.FormatStart(ev, labels)))
		if ev.Location != "" {
			fmt.Fprintf(&b, "\n<b>%s:</b> %s", html.EscapeString(labels.Where), html.EscapeString(ev.Location))
		}
		if ev.Link != "" {
			fmt.Fprintf(&b, "\n<b>%s:</b> %s", html.EscapeString(labels.Link), html.EscapeString(ev.Link))
		}
	}

	for _, gone := range p.Ended {
		fmt.Fprintf(&b, "\n\n<s><b>%s</b> (%s)</s>", html.EscapeString(gone.Title), html.EscapeString(labels.Ended))
		if gone.Start != "" {
			fmt.Fprintf(&b, "\n<s>%s: %s</s>", html.EscapeString(labels.When), html.EscapeString(gone.Start))
		}
	}
	return b.String()
}

func (r *Renderer) renderUpcoming(p Payload, labels Labels) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n%s", html.EscapeString(labels.Upcoming), divider)

	if len(p.Events) == 0 {
		b.WriteString("\n" + html.EscapeString(labels.NoEvents))
	}
	for _, ev := range p.Events {
		title := ev.Title
		if title == "" {
			title = "No Title"
		}
		fmt.Fprintf(&b, "\n\n🗓 <b>%s</b>", html.EscapeString(title))
		fmt.Fprintf(&b, "\n<b>%s:</b> %s", html.EscapeString(labels.When), html.EscapeString(r.FormatStart(ev, labels)))
		if ev.Description != "" {
			fmt.Fprintf(&b, "\n<b>%s:</b> %s", html.EscapeString(labels.Notes), html.EscapeString(ev.Description))
		}
		if ev.Link != "" {
			fmt.Fprintf(&b, "\n<b>%s:</b> %s", html.EscapeString(labels.Link), html.EscapeString(ev.Link))
		}
	}

	if p.RequestedBy != "" {
		fmt.Fprintf(&b, "\n\n<i>Requested by %s</i>", html.EscapeString(p.RequestedBy))
	}
	return b.String()
}

// Split chunks text to fit a transport's per-message size limit, preferring
// line boundaries. A single line longer than max is split at the last space,
// or failing that at a rune boundary so a multi-byte character is never
// severed.
func Split(text string, max int) []string {
	if max <= 0 || len(text) <= max {
		return []string{text}
	}

	var chunks []string
	for len(text) > max {
		cut := strings.LastIndexByte(text[:max], '\n')
		if cut <= 0 {
			cut = hardCut(text, max)
		}
		chunks = append(chunks, strings.TrimRight(text[:cut], "\n "))
		text = strings.TrimLeft(text[cut:], "\n ")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// hardCut picks a break at or before max for a line with no newline to cut
// at: the last space if there is one, else backed up to a rune start.
func hardCut(text string, max int) int {
	if sp := strings.LastIndexByte(text[:max], ' '); sp > 0 {
		return sp
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	if cut == 0 {
		return max
	}
	return cut
}
