package calendar

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"herald/internal/config"
	"herald/internal/event"
)

func init() {
	Register("google", newGoogleSource)
}

type googleSource struct {
	svc        *gcal.Service
	calendarID string
}

func newGoogleSource(cfg config.SourceConfig) (Source, error) {
	if cfg.CalendarID == "" {
		return nil, fmt.Errorf("google source requires calendar_id")
	}

	ctx := context.Background()
	var opts []option.ClientOption
	switch {
	case cfg.CredentialsFile != "":
		client, err := googleClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, option.WithHTTPClient(client))
	case os.Getenv("HERALD_GOOGLE_API_KEY") != "":
		// API keys only reach public calendars, which is all the bot needs
		// when no credentials file is configured.
		opts = append(opts, option.WithAPIKey(os.Getenv("HERALD_GOOGLE_API_KEY")))
	default:
		return nil, fmt.Errorf("google source requires credentials_file or HERALD_GOOGLE_API_KEY")
	}

	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return &googleSource{svc: svc, calendarID: cfg.CalendarID}, nil
}

func (g *googleSource) Fetch(ctx context.Context, w Window) ([]event.Event, error) {
	call := g.svc.Events.List(g.calendarID).
		Context(ctx).
		SingleEvents(true).
		OrderBy("startTime").
		TimeMin(w.From.Format(time.RFC3339))
	if !w.To.IsZero() {
		call = call.TimeMax(w.To.Format(time.RFC3339))
	}
	if w.Limit > 0 {
		call = call.MaxResults(int64(w.Limit))
	}

	res, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("list events for %s: %w", g.calendarID, err)
	}

	events := make([]event.Event, 0, len(res.Items))
	for _, item := range res.Items {
		ev, err := googleItemToEvent(item)
		if err != nil {
			log.Printf("[calendar] skipping malformed item: %v", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func googleItemToEvent(item *gcal.Event) (event.Event, error) {
	start, allDay, err := parseGoogleTime(item.Start)
	if err != nil {
		return event.Event{}, fmt.Errorf("event %s: %w", item.Id, err)
	}

	// End is optional; a bad or missing end leaves the zero value.
	end, _, _ := parseGoogleTime(item.End)

	return event.Event{
		ID:          item.Id,
		Title:       item.Summary,
		Start:       start,
		End:         end,
		AllDay:      allDay,
		Location:    item.Location,
		Description: item.Description,
		Link:        item.HtmlLink,
	}, nil
}

func parseGoogleTime(edt *gcal.EventDateTime) (time.Time, bool, error) {
	if edt == nil {
		return time.Time{}, false, fmt.Errorf("missing start/end")
	}
	if edt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, edt.DateTime)
		return t, false, err
	}
	if edt.Date != "" {
		t, err := time.Parse("2006-01-02", edt.Date)
		return t, true, err
	}
	return time.Time{}, false, fmt.Errorf("missing start/end")
}
