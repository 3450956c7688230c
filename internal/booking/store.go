package booking

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rjmurr/movebook/internal/changelog"
	"github.com/rjmurr/movebook/pkg/logger"
)

// ErrNotFound is returned when no booking has the requested id
var ErrNotFound = errors.New("booking not found")

// ValidationError is a rejected field input
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Persister is the write-through snapshot sink
type Persister interface {
	SaveBookings(bookings []*Booking) error
}

// Store owns the booking collection
type Store struct {
	mu        sync.RWMutex
	bookings  []*Booking // creation order
	byID      map[int64]*Booking
	persister Persister
	logger    *logger.Logger
}

// NewStore creates an empty booking store. persister may be nil for
// in-memory use (tests).
func NewStore(persister Persister, log *logger.Logger) *Store {
	return &Store{
		byID:      make(map[int64]*Booking),
		persister: persister,
		logger:    log.Named("booking-store"),
	}
}

// LoadFromPersistence replaces the collection with a previously persisted
// one. Call once at startup before first use.
func (s *Store) LoadFromPersistence(bookings []*Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bookings = make([]*Booking, 0, len(bookings))
	s.byID = make(map[int64]*Booking, len(bookings))
	for _, b := range bookings {
		s.bookings = append(s.bookings, b)
		s.byID[b.ID] = b
	}
	s.logger.Info("Loaded bookings", logger.Int("count", len(s.bookings)))
}

// Create allocates the next id and stamps timestamps
func (s *Store) Create(data *Booking, actor string) (*Booking, error) {
	if data.Status != "" && !data.Status.Valid() {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", data.Status)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b := *data
	b.ID = s.nextIDLocked()
	if b.Status == "" {
		b.Status = StatusConfirmed
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	b.ChangeLog = []changelog.Entry{changelog.NewEntry(actor, "created", nil)}

	s.bookings = append(s.bookings, &b)
	s.byID[b.ID] = &b
	s.persistLocked()

	s.logger.Info("Booking created",
		logger.Int64("id", b.ID),
		logger.String("callsign", b.Aircraft.Callsign))
	return &b, nil
}

// Group patches. Nested-group members are deep-merged: only explicitly set
// fields overwrite, everything else in the group is preserved.

type ContactPatch struct {
	Name  *string
	Phone *string
	Email *string
}

type SchedulePatch struct {
	DateISO              *string
	PlannedTimeLocalHHMM *string
	PlannedTimeKind      *TimeKind
	PlannedTimeLocal     *string
}

type AircraftPatch struct {
	Registration *string
	Type         *string
	Callsign     *string
	POB          *int
}

type MovementInfoPatch struct {
	Departure     *string
	DepartureName *string
}

type OpsPatch struct {
	NotesFromStrip *string
	Remarks        *string
	Handling       *string
}

type ChargesPatch struct {
	Landing  *float64
	Parking  *float64
	Total    *float64
	Currency *string
}

// Patch is a partial booking update. Top-level scalars are overwritten
// when set; nested groups are deep-merged.
type Patch struct {
	Status           *Status
	LinkedStripID    *int64
	ClearLinkedStrip bool
	CompletedAt      *time.Time
	CancelledAt      *time.Time

	Contact  *ContactPatch
	Schedule *SchedulePatch
	Aircraft *AircraftPatch
	Movement *MovementInfoPatch
	Ops      *OpsPatch
	Charges  *ChargesPatch
}

// applyField writes *p into *dst and records the change when values differ
func applyField[T comparable](diff map[string]changelog.FieldChange, field string, p *T, dst *T) {
	if p == nil || *p == *dst {
		return
	}
	diff[field] = changelog.FieldChange{From: *dst, To: *p}
	*dst = *p
}

// Update applies a diff-aware patch. The returned bool reports whether
// anything changed; a no-op patch appends no change-log entry, does not
// persist and must cause no notification upstream.
func (s *Store) Update(id int64, patch Patch, actor string) (*Booking, bool, error) {
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, false, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", *patch.Status)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.byID[id]
	if !ok {
		return nil, false, ErrNotFound
	}

	diff := make(map[string]changelog.FieldChange)

	applyField(diff, "status", patch.Status, &b.Status)

	switch {
	case patch.ClearLinkedStrip:
		if b.LinkedStripID != nil {
			diff["linked_strip_id"] = changelog.FieldChange{From: *b.LinkedStripID, To: nil}
			b.LinkedStripID = nil
		}
	case patch.LinkedStripID != nil:
		if b.LinkedStripID == nil || *b.LinkedStripID != *patch.LinkedStripID {
			var from any
			if b.LinkedStripID != nil {
				from = *b.LinkedStripID
			}
			diff["linked_strip_id"] = changelog.FieldChange{From: from, To: *patch.LinkedStripID}
			v := *patch.LinkedStripID
			b.LinkedStripID = &v
		}
	}

	if patch.CompletedAt != nil && (b.CompletedAt == nil || !b.CompletedAt.Equal(*patch.CompletedAt)) {
		diff["completed_at"] = changelog.FieldChange{From: b.CompletedAt, To: *patch.CompletedAt}
		t := *patch.CompletedAt
		b.CompletedAt = &t
	}
	if patch.CancelledAt != nil && (b.CancelledAt == nil || !b.CancelledAt.Equal(*patch.CancelledAt)) {
		diff["cancelled_at"] = changelog.FieldChange{From: b.CancelledAt, To: *patch.CancelledAt}
		t := *patch.CancelledAt
		b.CancelledAt = &t
	}

	if p := patch.Contact; p != nil {
		applyField(diff, "contact.name", p.Name, &b.Contact.Name)
		applyField(diff, "contact.phone", p.Phone, &b.Contact.Phone)
		applyField(diff, "contact.email", p.Email, &b.Contact.Email)
	}
	if p := patch.Schedule; p != nil {
		applyField(diff, "schedule.date_iso", p.DateISO, &b.Schedule.DateISO)
		applyField(diff, "schedule.planned_time_local_hhmm", p.PlannedTimeLocalHHMM, &b.Schedule.PlannedTimeLocalHHMM)
		applyField(diff, "schedule.planned_time_kind", p.PlannedTimeKind, &b.Schedule.PlannedTimeKind)
		applyField(diff, "schedule.planned_time_local", p.PlannedTimeLocal, &b.Schedule.PlannedTimeLocal)
	}
	if p := patch.Aircraft; p != nil {
		applyField(diff, "aircraft.registration", p.Registration, &b.Aircraft.Registration)
		applyField(diff, "aircraft.type", p.Type, &b.Aircraft.Type)
		applyField(diff, "aircraft.callsign", p.Callsign, &b.Aircraft.Callsign)
		applyField(diff, "aircraft.pob", p.POB, &b.Aircraft.POB)
	}
	if p := patch.Movement; p != nil {
		applyField(diff, "movement.departure", p.Departure, &b.Movement.Departure)
		applyField(diff, "movement.departure_name", p.DepartureName, &b.Movement.DepartureName)
	}
	if p := patch.Ops; p != nil {
		applyField(diff, "ops.notes_from_strip", p.NotesFromStrip, &b.Ops.NotesFromStrip)
		applyField(diff, "ops.remarks", p.Remarks, &b.Ops.Remarks)
		applyField(diff, "ops.handling", p.Handling, &b.Ops.Handling)
	}
	if p := patch.Charges; p != nil {
		applyField(diff, "charges.landing", p.Landing, &b.Charges.Landing)
		applyField(diff, "charges.parking", p.Parking, &b.Charges.Parking)
		applyField(diff, "charges.total", p.Total, &b.Charges.Total)
		applyField(diff, "charges.currency", p.Currency, &b.Charges.Currency)
	}

	if len(diff) == 0 {
		return b, false, nil
	}

	b.UpdatedAt = time.Now().UTC()
	b.ChangeLog = append(b.ChangeLog, changelog.NewEntry(actor, "updated", diff))
	s.persistLocked()
	return b, true, nil
}

// Delete hard-removes a booking
func (s *Store) Delete(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	for i, b := range s.bookings {
		if b.ID == id {
			s.bookings = append(s.bookings[:i], s.bookings[i+1:]...)
			break
		}
	}
	s.persistLocked()
	s.logger.Info("Booking deleted", logger.Int64("id", id))
	return true
}

// GetByID looks a booking up by id
func (s *Store) GetByID(id int64) (*Booking, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.byID[id]
	return b, ok
}

// List returns the collection in creation order
func (s *Store) List() []*Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Booking, len(s.bookings))
	copy(out, s.bookings)
	return out
}

func (s *Store) nextIDLocked() int64 {
	var max int64
	for _, b := range s.bookings {
		if b.ID > max {
			max = b.ID
		}
	}
	return max + 1
}

func (s *Store) persistLocked() {
	if s.persister == nil {
		return
	}
	if err := s.persister.SaveBookings(s.bookings); err != nil {
		s.logger.Error("Failed to persist bookings snapshot", logger.Error(err))
	}
}
