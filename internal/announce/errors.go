package announce

import "errors"

// ErrNotConfigured marks an engine whose domain is missing a source or any
// audience. Scheduled ticks absorb it; on-demand triggers report it to the
// requester.
var ErrNotConfigured = errors.New("announce: domain not configured")
