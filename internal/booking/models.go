package booking

import (
	"time"

	"github.com/rjmurr/movebook/internal/changelog"
)

// Status is the lifecycle state of a booking
type Status string

const (
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
)

// Valid reports whether s is a known status value
func (s Status) Valid() bool {
	switch s {
	case StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// TimeKind classifies the booking's planned time
type TimeKind string

const (
	TimeKindArrival   TimeKind = "ARR"
	TimeKindDeparture TimeKind = "DEP"
	TimeKindLocal     TimeKind = "LOC"
)

// Contact is who made the booking
type Contact struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Schedule is when the visit is planned. PlannedTimeLocalHHMM is canonical;
// PlannedTimeLocal is the pre-v2 alias kept so old documents and callers
// keep working.
type Schedule struct {
	DateISO              string   `json:"date_iso,omitempty"`
	PlannedTimeLocalHHMM string   `json:"planned_time_local_hhmm,omitempty"`
	PlannedTimeKind      TimeKind `json:"planned_time_kind,omitempty"`
	PlannedTimeLocal     string   `json:"planned_time_local,omitempty"` // legacy alias
}

// Aircraft identifies the visiting aircraft
type Aircraft struct {
	Registration string `json:"registration,omitempty"`
	Type         string `json:"type,omitempty"`
	Callsign     string `json:"callsign,omitempty"`
	POB          int    `json:"pob,omitempty"`
}

// MovementInfo carries the departure point of the inbound flight
type MovementInfo struct {
	Departure     string `json:"departure,omitempty"`
	DepartureName string `json:"departure_name,omitempty"`
}

// Ops holds operational notes
type Ops struct {
	NotesFromStrip string `json:"notes_from_strip,omitempty"`
	Remarks        string `json:"remarks,omitempty"`
	Handling       string `json:"handling,omitempty"`
}

// Charges holds the visit's fee lines
type Charges struct {
	Landing  float64 `json:"landing,omitempty"`
	Parking  float64 `json:"parking,omitempty"`
	Total    float64 `json:"total,omitempty"`
	Currency string  `json:"currency,omitempty"`
}

// Booking is a pre-arranged visit that may spin up a strip and stay
// synchronized with it.
type Booking struct {
	ID     int64  `json:"id"`
	Status Status `json:"status"`

	// Weak reference to the linked strip. Never traversed assuming
	// validity; always resolved through the movement store.
	LinkedStripID *int64 `json:"linked_strip_id,omitempty"`

	Contact  Contact      `json:"contact"`
	Schedule Schedule     `json:"schedule"`
	Aircraft Aircraft     `json:"aircraft"`
	Movement MovementInfo `json:"movement"`
	Ops      Ops          `json:"ops"`
	Charges  Charges      `json:"charges"`

	ChangeLog   []changelog.Entry `json:"change_log"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	CancelledAt *time.Time        `json:"cancelled_at,omitempty"`
}
