package reminder

import "time"

// FiredEvent is an append-only audit record of a reminder that was shown.
type FiredEvent struct {
	ID        string
	Identity  string
	Timestamp time.Time
	Message   string
}
