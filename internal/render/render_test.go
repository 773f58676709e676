package render

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"herald/internal/event"
)

func TestFormatStartUsesFixedOffset(t *testing.T) {
	loc := time.FixedZone("UTC-2", -2*3600)
	r := New(loc)
	labels := DefaultLabels("")

	ev := event.Event{Start: time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)}
	got := r.FormatStart(ev, labels)
	if !strings.Contains(got, "10:00") || !strings.Contains(got, "UTC-2") {
		t.Fatalf("timed event must render in the configured offset, got %q", got)
	}
}

func TestFormatStartAllDayHasNoClockTime(t *testing.T) {
	r := New(time.FixedZone("UTC-2", -2*3600))
	labels := DefaultLabels("")

	ev := event.Event{Start: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), AllDay: true}
	got := r.FormatStart(ev, labels)
	if strings.Contains(got, ":") {
		t.Fatalf("all-day event must not render a clock time, got %q", got)
	}
	if !strings.Contains(got, "All-day") {
		t.Fatalf("all-day event must be visually distinct, got %q", got)
	}
	// The date must not shift across the offset.
	if !strings.Contains(got, "Jun 02") {
		t.Fatalf("all-day date must stay on its own day, got %q", got)
	}
}

func TestAnnouncementEscapesHTML(t *testing.T) {
	r := New(time.UTC)
	p := Payload{Kind: KindAnnouncement, Event: event.Event{
		Title: "Q&A <live>",
		Start: time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC),
	}}

	got := r.Render(p, DefaultLabels("EVENT STARTING NOW"))
	if !strings.Contains(got, "Q&amp;A &lt;live&gt;") {
		t.Fatalf("title must be escaped, got %q", got)
	}
	if !strings.Contains(got, "EVENT STARTING NOW") {
		t.Fatalf("headline missing, got %q", got)
	}
}

func TestSummaryRendersNewAndEnded(t *testing.T) {
	r := New(time.UTC)
	p := Payload{
		Kind: KindSummary,
		Entries: []SummaryEntry{
			{Event: event.Event{Title: "Kickoff", Start: time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)}, New: true},
			{Event: event.Event{Title: "Standup", Start: time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC)}},
		},
		Ended: []EndedEntry{{Title: "Retro", Start: "Friday, May 30 at 16:00 (UTC)"}},
	}

	got := r.Render(p, DefaultLabels(""))
	if !strings.Contains(got, "Kickoff (NEW)") {
		t.Fatalf("new entry missing tag: %q", got)
	}
	if strings.Contains(got, "Standup (NEW)") {
		t.Fatalf("seen entry must not be tagged: %q", got)
	}
	if !strings.Contains(got, "<s><b>Retro</b> (Ended)</s>") {
		t.Fatalf("ended entry missing strikethrough: %q", got)
	}
}

func TestUpcomingEmptyList(t *testing.T) {
	r := New(time.UTC)
	got := r.Render(Payload{Kind: KindUpcoming}, DefaultLabels(""))
	if !strings.Contains(got, "No upcoming events found.") {
		t.Fatalf("empty list must say so, got %q", got)
	}
}

func TestSplitRespectsLimit(t *testing.T) {
	lines := make([]string, 100)
	for i := range lines {
		lines[i] = strings.Repeat("x", 80)
	}
	text := strings.Join(lines, "\n")

	chunks := Split(text, 1000)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for a %d-char text", len(text))
	}
	for i, c := range chunks {
		if len(c) > 1000 {
			t.Fatalf("chunk %d exceeds limit: %d chars", i, len(c))
		}
		if strings.HasPrefix(c, "\n") || strings.HasSuffix(c, "\n") {
			t.Fatalf("chunk %d has dangling newlines: %q", i, c)
		}
	}
	if joined := strings.Join(chunks, ""); strings.ReplaceAll(text, "\n", "") != strings.ReplaceAll(joined, "\n", "") {
		t.Fatalf("chunking lost content")
	}
}

func TestSplitHardBreaksLongLine(t *testing.T) {
	text := strings.Repeat("y", 2500)
	chunks := Split(text, 1000)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if len(c) > 1000 {
			t.Fatalf("chunk exceeds limit: %d chars", len(c))
		}
	}
}

func TestSplitNeverSeversARune(t *testing.T) {
	// 3-byte runes; 1000 is not a multiple of 3, so a byte-offset cut would
	// land mid-rune.
	text := strings.Repeat("日", 900)
	chunks := Split(text, 1000)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for a %d-byte text", len(text))
	}
	for i, c := range chunks {
		if len(c) > 1000 {
			t.Fatalf("chunk %d exceeds limit: %d bytes", i, len(c))
		}
		if !utf8.ValidString(c) {
			t.Fatalf("chunk %d severs a rune: %q", i, c[:12])
		}
	}
	if strings.Join(chunks, "") != text {
		t.Fatalf("chunking lost content")
	}
}

func TestSplitPrefersSpaceOnLongLine(t *testing.T) {
	text := strings.TrimRight(strings.Repeat("word ", 400), " ") // one long line, no newlines
	for i, c := range Split(text, 1000) {
		if len(c) > 1000 {
			t.Fatalf("chunk %d exceeds limit: %d bytes", i, len(c))
		}
		if strings.Contains(c, "wo rd") || !strings.HasSuffix(c, "word") {
			t.Fatalf("chunk %d must break between words: %q", i, c[len(c)-10:])
		}
	}
}

func TestSplitShortTextUntouched(t *testing.T) {
	chunks := Split("hello", 1000)
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Fatalf("short text must come back as one chunk, got %v", chunks)
	}
}
