package linksync

import (
	"sort"

	"github.com/rjmurr/movebook/internal/booking"
	"github.com/rjmurr/movebook/internal/movement"
	"github.com/rjmurr/movebook/pkg/logger"
)

// Conflict is one booking claimed by more than one movement. It is
// reported, never auto-resolved: the records are left untouched until a
// human or an explicit repair action settles it.
type Conflict struct {
	BookingID   int64   `json:"booking_id"`
	MovementIDs []int64 `json:"movement_ids"`
}

// Summary is the outcome of one reconciliation pass
type Summary struct {
	ClearedMovementRefs int        `json:"cleared_movement_refs"`
	ClearedBookingRefs  int        `json:"cleared_booking_refs"`
	RepairedBookingRefs int        `json:"repaired_booking_refs"`
	Conflicts           []Conflict `json:"conflicts"`
}

// Empty reports whether the pass changed nothing and found no conflicts
func (s Summary) Empty() bool {
	return s.ClearedMovementRefs == 0 &&
		s.ClearedBookingRefs == 0 &&
		s.RepairedBookingRefs == 0 &&
		len(s.Conflicts) == 0
}

// ReconcileLinks runs the full-collection repair pass. It clears dangling
// pointers on both sides, repairs booking back-references that have
// exactly one claimant, and reports multi-claimant conflicts. It never
// deletes a movement or booking, only adjusts pointers, and is idempotent:
// re-running with no intervening mutation yields an empty summary.
//
// Run to completion at startup before the first render of any view that
// shows movement/booking linkage.
func (e *Engine) ReconcileLinks() Summary {
	var summary Summary

	bookingIDs := make(map[int64]bool)
	for _, b := range e.bookings.List() {
		bookingIDs[b.ID] = true
	}
	movementIDs := make(map[int64]bool)
	for _, m := range e.movements.List() {
		movementIDs[m.ID] = true
	}

	// (a) movements pointing at bookings that no longer exist
	for _, m := range e.movements.List() {
		if m.BookingID == nil || bookingIDs[*m.BookingID] {
			continue
		}
		_, changed, err := e.movements.Update(m.ID, movement.Patch{ClearBookingID: true}, syncActor)
		if err != nil {
			e.logger.Error("Failed to clear dangling booking reference", logger.Error(err),
				logger.Int64("movement_id", m.ID))
			continue
		}
		if changed {
			summary.ClearedMovementRefs++
			e.metrics.ReconcileClears.WithLabelValues("movement").Inc()
		}
	}

	// (b) bookings pointing at movements that no longer exist
	for _, b := range e.bookings.List() {
		if b.LinkedStripID == nil || movementIDs[*b.LinkedStripID] {
			continue
		}
		_, changed, err := e.bookings.Update(b.ID, booking.Patch{ClearLinkedStrip: true}, syncActor)
		if err != nil {
			e.logger.Error("Failed to clear dangling strip reference", logger.Error(err),
				logger.Int64("booking_id", b.ID))
			continue
		}
		if changed {
			summary.ClearedBookingRefs++
			e.metrics.ReconcileClears.WithLabelValues("booking").Inc()
		}
	}

	// Claims surviving the clears above
	claimants := make(map[int64][]int64)
	for _, m := range e.movements.List() {
		if m.BookingID != nil {
			claimants[*m.BookingID] = append(claimants[*m.BookingID], m.ID)
		}
	}

	// (c) repair single-claimant back-references, (d) report conflicts
	for _, b := range e.bookings.List() {
		ids := claimants[b.ID]
		switch {
		case len(ids) == 1:
			if b.LinkedStripID != nil && *b.LinkedStripID == ids[0] {
				continue
			}
			_, changed, err := e.bookings.Update(b.ID, booking.Patch{LinkedStripID: &ids[0]}, syncActor)
			if err != nil {
				e.logger.Error("Failed to repair strip reference", logger.Error(err),
					logger.Int64("booking_id", b.ID))
				continue
			}
			if changed {
				summary.RepairedBookingRefs++
				e.metrics.ReconcileRepairs.Inc()
			}
		case len(ids) > 1:
			sorted := append([]int64(nil), ids...)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
			summary.Conflicts = append(summary.Conflicts, Conflict{
				BookingID:   b.ID,
				MovementIDs: sorted,
			})
			e.metrics.ReconcileConflicts.Inc()
			e.logger.Warn("Multiple movements claim one booking",
				logger.Int64("booking_id", b.ID),
				logger.Any("movement_ids", sorted))
		}
	}

	if !summary.Empty() {
		e.logger.Info("Reconciliation pass finished",
			logger.Int("cleared_movement_refs", summary.ClearedMovementRefs),
			logger.Int("cleared_booking_refs", summary.ClearedBookingRefs),
			logger.Int("repaired_booking_refs", summary.RepairedBookingRefs),
			logger.Int("conflicts", len(summary.Conflicts)))
	}
	// Notify only when records were actually adjusted; a persisting
	// conflict is a report, not a change.
	if summary.ClearedMovementRefs+summary.ClearedBookingRefs+summary.RepairedBookingRefs > 0 {
		e.notify("reconcile")
	}
	return summary
}
