// Package linksync keeps linked movement/booking pairs consistent: it
// propagates shared fields between the two stores, repairs dangling weak
// references, and guards against re-entrant propagation loops.
package linksync

import (
	"errors"
	"sync"
	"time"

	"github.com/rjmurr/movebook/internal/booking"
	"github.com/rjmurr/movebook/internal/movement"
	"github.com/rjmurr/movebook/pkg/logger"
	"github.com/rjmurr/movebook/pkg/metrics"
)

const syncActor = "sync-engine"

// Notifier receives the single process-wide "data changed" signal. One
// notification per store write that actually changed persisted state,
// never for no-op patches.
type Notifier interface {
	NotifyDataChanged(source string)
}

// Engine consumes store events and applies counterpart patches. It never
// touches either collection directly, only the owning store's patch API.
type Engine struct {
	movements *movement.Store
	bookings  *booking.Store
	notifier  Notifier
	metrics   *metrics.Metrics
	logger    *logger.Logger

	// Reentrancy guard. A dispatch attempted while another is in flight
	// is dropped, not queued: callers that need it applied must
	// re-trigger the originating edit.
	dispatchMu sync.Mutex
}

// NewEngine creates a synchronization engine over the two stores
func NewEngine(movements *movement.Store, bookings *booking.Store, notifier Notifier, m *metrics.Metrics, log *logger.Logger) *Engine {
	return &Engine{
		movements: movements,
		bookings:  bookings,
		notifier:  notifier,
		metrics:   m,
		logger:    log.Named("linksync"),
	}
}

// OnMovementUpdated propagates a movement's shared fields into its linked
// booking. No-op when the movement is unlinked or the computed patch
// changes nothing.
func (e *Engine) OnMovementUpdated(m *movement.Movement) {
	if m == nil || m.BookingID == nil {
		return
	}
	if !e.dispatchMu.TryLock() {
		e.metrics.DroppedDispatches.Inc()
		e.logger.Debug("Dropped re-entrant propagation",
			logger.Int64("movement_id", m.ID),
			logger.Int64("booking_id", *m.BookingID))
		return
	}
	defer e.dispatchMu.Unlock()

	patch := e.bookingPatchFor(m)
	_, changed, err := e.bookings.Update(*m.BookingID, patch, syncActor)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			// Dangling pointer; reconciliation clears it
			e.logger.Debug("Movement references missing booking",
				logger.Int64("movement_id", m.ID),
				logger.Int64("booking_id", *m.BookingID))
			return
		}
		e.logger.Error("Failed to propagate movement update", logger.Error(err),
			logger.Int64("movement_id", m.ID))
		return
	}
	if changed {
		e.metrics.PropagationsTotal.Inc()
		e.notify("movement-sync")
	}
}

// bookingPatchFor maps strip fields onto the booking's nested groups. The
// planned time written depends on flight type: ARR/LOC carry the arrival
// time, DEP the departure time, OVR carries no time at all.
func (e *Engine) bookingPatchFor(m *movement.Movement) booking.Patch {
	sched := &booking.SchedulePatch{
		DateISO: strPtr(m.DOF),
	}
	switch m.FlightType {
	case movement.FlightTypeArrival:
		sched.PlannedTimeLocalHHMM = strPtr(m.PlannedArr)
		sched.PlannedTimeKind = kindPtr(booking.TimeKindArrival)
	case movement.FlightTypeLocal:
		sched.PlannedTimeLocalHHMM = strPtr(m.PlannedArr)
		sched.PlannedTimeKind = kindPtr(booking.TimeKindLocal)
	case movement.FlightTypeDeparture:
		sched.PlannedTimeLocalHHMM = strPtr(m.PlannedDep)
		sched.PlannedTimeKind = kindPtr(booking.TimeKindDeparture)
	}

	return booking.Patch{
		Schedule: sched,
		Aircraft: &booking.AircraftPatch{
			Registration: strPtr(m.Registration),
			Type:         strPtr(m.AircraftType),
			Callsign:     strPtr(m.Callsign),
			POB:          intPtr(m.POB),
		},
		Movement: &booking.MovementInfoPatch{
			Departure:     strPtr(m.DepAd),
			DepartureName: strPtr(m.DepName),
		},
		Ops: &booking.OpsPatch{
			NotesFromStrip: strPtr(m.Notes),
		},
	}
}

// OnMovementStatusChanged mirrors a strip's terminal transition onto its
// linked booking, stamping the matching terminal timestamp.
func (e *Engine) OnMovementStatusChanged(m *movement.Movement, newStatus movement.Status) {
	if m == nil || m.BookingID == nil || !newStatus.Terminal() {
		return
	}
	if !e.dispatchMu.TryLock() {
		e.metrics.DroppedDispatches.Inc()
		e.logger.Debug("Dropped re-entrant status propagation",
			logger.Int64("movement_id", m.ID))
		return
	}
	defer e.dispatchMu.Unlock()

	now := time.Now().UTC()
	var patch booking.Patch
	if newStatus == movement.StatusCompleted {
		st := booking.StatusCompleted
		patch = booking.Patch{Status: &st, CompletedAt: &now}
	} else {
		st := booking.StatusCancelled
		patch = booking.Patch{Status: &st, CancelledAt: &now}
	}

	_, changed, err := e.bookings.Update(*m.BookingID, patch, syncActor)
	if err != nil {
		if !errors.Is(err, booking.ErrNotFound) {
			e.logger.Error("Failed to propagate status change", logger.Error(err),
				logger.Int64("movement_id", m.ID))
		}
		return
	}
	if changed {
		e.metrics.PropagationsTotal.Inc()
		e.notify("movement-status-sync")
	}
}

// OnMovementDeleted clears the counterpart booking's back-reference after
// a strip was hard-deleted.
func (e *Engine) OnMovementDeleted(m *movement.Movement) {
	if m == nil || m.BookingID == nil {
		return
	}
	b, ok := e.bookings.GetByID(*m.BookingID)
	if !ok || b.LinkedStripID == nil || *b.LinkedStripID != m.ID {
		return
	}
	_, changed, err := e.bookings.Update(b.ID, booking.Patch{ClearLinkedStrip: true}, syncActor)
	if err != nil {
		e.logger.Error("Failed to clear booking back-reference", logger.Error(err),
			logger.Int64("booking_id", b.ID))
		return
	}
	if changed {
		e.notify("movement-delete")
	}
}

// ClearStripLinks clears the booking pointer on every movement that claims
// the given booking. Used when a booking is deleted or cancelled without
// cascading to its strip.
func (e *Engine) ClearStripLinks(bookingID int64) {
	cleared := 0
	for _, m := range e.movements.List() {
		if m.BookingID == nil || *m.BookingID != bookingID {
			continue
		}
		_, changed, err := e.movements.Update(m.ID, movement.Patch{ClearBookingID: true}, syncActor)
		if err != nil {
			e.logger.Error("Failed to clear strip link", logger.Error(err),
				logger.Int64("movement_id", m.ID))
			continue
		}
		if changed {
			cleared++
		}
	}
	if cleared > 0 {
		e.logger.Info("Cleared strip links",
			logger.Int64("booking_id", bookingID),
			logger.Int("count", cleared))
		e.notify("booking-delete")
	}
}

// OnBookingDeleted is the booking-side deletion hook
func (e *Engine) OnBookingDeleted(bookingID int64) {
	e.ClearStripLinks(bookingID)
}

func (e *Engine) notify(source string) {
	e.metrics.NotificationsTotal.WithLabelValues(source).Inc()
	if e.notifier != nil {
		e.notifier.NotifyDataChanged(source)
	}
}

func strPtr(s string) *string                      { return &s }
func intPtr(i int) *int                            { return &i }
func kindPtr(k booking.TimeKind) *booking.TimeKind { return &k }
