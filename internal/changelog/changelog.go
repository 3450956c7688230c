// Package changelog defines the append-only audit entries carried by
// movements and bookings.
package changelog

import (
	"time"

	"github.com/google/uuid"
)

// FieldChange records one field's prior and new value
type FieldChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// Entry is a single change-log record. Logs grow monotonically and are
// never pruned within a session.
type Entry struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Actor     string                 `json:"actor"`
	Action    string                 `json:"action"`
	Diff      map[string]FieldChange `json:"diff,omitempty"`
}

// NewEntry creates an entry stamped with the current time
func NewEntry(actor, action string, diff map[string]FieldChange) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Actor:     actor,
		Action:    action,
		Diff:      diff,
	}
}
