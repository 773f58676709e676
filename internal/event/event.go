package event

import "time"

// Event is one calendar entry as returned by a single fetch. The source-assigned
// ID is the only identity used for matching; titles are display-only and may
// collide or change between fetches.
type Event struct {
	ID          string
	Title       string
	Start       time.Time
	End         time.Time
	AllDay      bool
	Location    string
	Description string
	Link        string
}
