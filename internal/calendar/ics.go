package calendar

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"herald/internal/config"
	"herald/internal/event"
)

func init() {
	Register("ics", newICSSource)
}

// openWindowHorizon bounds recurrence expansion when a window has no To.
const openWindowHorizon = 90 * 24 * time.Hour

type icsSource struct {
	id     string
	url    string
	client *http.Client

	mu           sync.Mutex
	etag         string
	lastModified string
	cached       []byte
}

func newICSSource(cfg config.SourceConfig) (Source, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("ics source requires url")
	}
	sum := sha256.Sum256([]byte(cfg.URL))
	return &icsSource{
		id:     hex.EncodeToString(sum[:4]),
		url:    cfg.URL,
		client: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (s *icsSource) Fetch(ctx context.Context, w Window) ([]event.Event, error) {
	body, err := s.download(ctx)
	if err != nil {
		return nil, err
	}

	events, err := expandICS(s.id, body, w)
	if err != nil {
		return nil, err
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
	if w.Limit > 0 && len(events) > w.Limit {
		events = events[:w.Limit]
	}
	return events, nil
}

// download fetches the feed honoring ETag/Last-Modified. On a 304, a non-OK
// status or a network error, the previously fetched body is reused when one
// exists.
func (s *icsSource) download(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	if s.etag != "" {
		req.Header.Set("If-None-Match", s.etag)
	}
	if s.lastModified != "" {
		req.Header.Set("If-Modified-Since", s.lastModified)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if len(s.cached) > 0 {
			log.Printf("[calendar] ics fetch failed (%v); using cached body for %s", err, redactURL(s.url))
			return s.cached, nil
		}
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		s.etag = resp.Header.Get("ETag")
		s.lastModified = resp.Header.Get("Last-Modified")
		s.cached = body
		return body, nil

	case http.StatusNotModified:
		if len(s.cached) == 0 {
			return nil, fmt.Errorf("got 304 from %s but nothing cached", redactURL(s.url))
		}
		return s.cached, nil

	default:
		if len(s.cached) > 0 {
			log.Printf("[calendar] ics fetch got %s; using cached body for %s", resp.Status, redactURL(s.url))
			return s.cached, nil
		}
		return nil, fmt.Errorf("fetch %s: %s", redactURL(s.url), resp.Status)
	}
}

type icsEvent struct {
	source       string
	uid          string
	summary      string
	description  string
	location     string
	link         string
	start        time.Time
	end          time.Time
	allDay       bool
	rawRRule     string
	exDates      []time.Time
	recurrenceID *time.Time
}

// expandICS parses the feed and expands recurrences into concrete instances
// whose starts fall inside w. Open-ended windows are expanded up to
// openWindowHorizon.
func expandICS(sourceID string, body []byte, w Window) ([]event.Event, error) {
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse ics: %w", err)
	}

	rangeEnd := w.To
	if rangeEnd.IsZero() {
		rangeEnd = w.From.Add(openWindowHorizon)
	}

	var parsed []icsEvent
	for _, ve := range cal.Events() {
		ie, err := parseVEvent(sourceID, ve)
		if err != nil {
			log.Printf("[calendar] skipping vevent: %v", err)
			continue
		}
		parsed = append(parsed, ie)
	}

	// VEVENTs carrying RECURRENCE-ID replace single instances of their series.
	overrides := make(map[string][]icsEvent)
	var bases []icsEvent
	for _, ie := range parsed {
		if ie.recurrenceID != nil {
			overrides[ie.uid] = append(overrides[ie.uid], ie)
			continue
		}
		bases = append(bases, ie)
	}

	var out []event.Event
	for _, base := range bases {
		out = append(out, expandInstances(base, overrides[base.uid], w.From, rangeEnd)...)
	}
	// Overrides are emitted on their own (possibly moved) start so that an
	// instance relocated into the window is not lost.
	for _, ovs := range overrides {
		for _, ov := range ovs {
			if !ov.start.Before(w.From) && ov.start.Before(rangeEnd) {
				out = append(out, instanceEvent(ov, ov.start, ov.end))
			}
		}
	}
	return out, nil
}

func expandInstances(ie icsEvent, ovs []icsEvent, from, to time.Time) []event.Event {
	overridden := func(t time.Time) bool {
		for _, ov := range ovs {
			if ov.recurrenceID != nil && ov.recurrenceID.In(t.Location()).Equal(t) {
				return true
			}
		}
		return false
	}

	if ie.rawRRule == "" {
		if !ie.start.Before(from) && ie.start.Before(to) && !overridden(ie.start) {
			return []event.Event{singleEvent(ie)}
		}
		return nil
	}

	r, err := rrule.StrToRRule(ie.rawRRule)
	if err != nil {
		log.Printf("[calendar] bad RRULE on %s: %v", ie.uid, err)
		return nil
	}
	r.DTStart(ie.start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ie.exDates {
		set.ExDate(ex.In(ie.start.Location()))
	}

	dur := ie.end.Sub(ie.start)
	var out []event.Event
	for _, t := range set.Between(from.In(ie.start.Location()), to.In(ie.start.Location()), true) {
		// Between is inclusive at both ends; the window is [from, to).
		if t.Before(from) || !t.Before(to) {
			continue
		}
		if overridden(t) {
			continue
		}
		out = append(out, instanceEvent(ie, t, t.Add(dur)))
	}
	return out
}

func singleEvent(ie icsEvent) event.Event {
	ev := instanceEvent(ie, ie.start, ie.end)
	if ie.uid != "" {
		// A non-recurring event keeps its UID as a stable identity.
		ev.ID = ie.uid
	}
	return ev
}

func instanceEvent(ie icsEvent, start, end time.Time) event.Event {
	key := start.UTC().Format("20060102T150405Z")
	id := ie.source + "-" + key + "-" + ie.summary
	if ie.uid != "" {
		id = ie.uid + "-" + key
	}
	return event.Event{
		ID:          id,
		Title:       ie.summary,
		Start:       start,
		End:         end,
		AllDay:      ie.allDay,
		Location:    ie.location,
		Description: ie.description,
		Link:        ie.link,
	}
}

func parseVEvent(sourceID string, ve *ical.VEvent) (icsEvent, error) {
	var out icsEvent
	out.source = sourceID

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.uid = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.location = p.Value
	}
	if p := ve.GetProperty("URL"); p != nil {
		out.link = p.Value
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return out, fmt.Errorf("vevent %q has no usable DTSTART", out.uid)
	}
	out.start = start
	if end, err := ve.GetEndAt(); err == nil {
		out.end = end
	} else {
		out.end = start
	}

	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			out.allDay = true
		}
		if !strings.Contains(p.Value, "T") {
			out.allDay = true
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.rawRRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part); err == nil {
				out.exDates = append(out.exDates, t)
			}
		}
	}
	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, err := parseICSTime(p.Value); err == nil {
			out.recurrenceID = &t
		}
	}

	return out, nil
}

// parseICSTime handles the basic DATE / DATE-TIME / UTC forms seen in EXDATE
// and RECURRENCE-ID values. Naive values are taken as UTC.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, time.UTC)
	}
	return time.ParseInLocation("20060102", v, time.UTC)
}

// redactURL hides everything past the host so feed tokens never hit the logs.
func redactURL(u string) string {
	i := strings.Index(u, "://")
	if i < 0 {
		return "ics://...(redacted)"
	}
	rest := u[i+3:]
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		return u[:i+3] + rest[:j] + "/...(redacted)"
	}
	return u
}
