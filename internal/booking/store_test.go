package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjmurr/movebook/pkg/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(nil, logger.NewNop())
}

func strp(s string) *string { return &s }

func TestCreateDefaultsAndChangeLog(t *testing.T) {
	store := newTestStore(t)

	b, err := store.Create(&Booking{
		Contact:  Contact{Name: "J. Weber", Phone: "+49 170 0000000"},
		Aircraft: Aircraft{Registration: "D-EABC", Callsign: "DEABC"},
	}, "tester")
	require.NoError(t, err)

	assert.Equal(t, int64(1), b.ID)
	assert.Equal(t, StatusConfirmed, b.Status, "status defaults to CONFIRMED")
	require.Len(t, b.ChangeLog, 1)
	assert.Equal(t, "created", b.ChangeLog[0].Action)

	_, err = store.Create(&Booking{Status: "PENDING"}, "tester")
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestUpdateDeepMergesGroups(t *testing.T) {
	store := newTestStore(t)
	b, err := store.Create(&Booking{
		Contact: Contact{Name: "J. Weber", Phone: "+49 170 0000000", Email: "jw@example.com"},
		Schedule: Schedule{
			DateISO:              "2026-08-26",
			PlannedTimeLocalHHMM: "1030",
			PlannedTimeKind:      TimeKindArrival,
		},
	}, "tester")
	require.NoError(t, err)

	updated, changed, err := store.Update(b.ID, Patch{
		Contact:  &ContactPatch{Phone: strp("+49 171 1111111")},
		Schedule: &SchedulePatch{PlannedTimeLocalHHMM: strp("1100")},
	}, "tester")
	require.NoError(t, err)
	require.True(t, changed)

	// Touched members change, siblings survive
	assert.Equal(t, "+49 171 1111111", updated.Contact.Phone)
	assert.Equal(t, "J. Weber", updated.Contact.Name)
	assert.Equal(t, "jw@example.com", updated.Contact.Email)
	assert.Equal(t, "1100", updated.Schedule.PlannedTimeLocalHHMM)
	assert.Equal(t, "2026-08-26", updated.Schedule.DateISO)
	assert.Equal(t, TimeKindArrival, updated.Schedule.PlannedTimeKind)

	entry := updated.ChangeLog[len(updated.ChangeLog)-1]
	assert.Contains(t, entry.Diff, "contact.phone")
	assert.Contains(t, entry.Diff, "schedule.planned_time_local_hhmm")
	assert.NotContains(t, entry.Diff, "contact.name")
}

func TestUpdateNoOpSuppressed(t *testing.T) {
	store := newTestStore(t)
	b, err := store.Create(&Booking{
		Aircraft: Aircraft{Callsign: "DEABC", POB: 2},
	}, "tester")
	require.NoError(t, err)

	pob := 2
	same, changed, err := store.Update(b.ID, Patch{
		Aircraft: &AircraftPatch{Callsign: strp("DEABC"), POB: &pob},
	}, "tester")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, same.ChangeLog, 1, "no-op patch must not grow the change log")
}

func TestUpdateStatusAndTimestamps(t *testing.T) {
	store := newTestStore(t)
	b, err := store.Create(&Booking{}, "tester")
	require.NoError(t, err)

	done := StatusCompleted
	when := time.Date(2026, 8, 26, 14, 30, 0, 0, time.UTC)
	updated, changed, err := store.Update(b.ID, Patch{Status: &done, CompletedAt: &when}, "tester")
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, StatusCompleted, updated.Status)
	require.NotNil(t, updated.CompletedAt)
	assert.True(t, updated.CompletedAt.Equal(when))

	// Same timestamp again is a no-op
	_, changed, err = store.Update(b.ID, Patch{Status: &done, CompletedAt: &when}, "tester")
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestUpdateStripLink(t *testing.T) {
	store := newTestStore(t)
	b, err := store.Create(&Booking{}, "tester")
	require.NoError(t, err)

	stripID := int64(7)
	linked, changed, err := store.Update(b.ID, Patch{LinkedStripID: &stripID}, "tester")
	require.NoError(t, err)
	require.True(t, changed)
	require.NotNil(t, linked.LinkedStripID)
	assert.Equal(t, int64(7), *linked.LinkedStripID)

	cleared, changed, err := store.Update(b.ID, Patch{ClearLinkedStrip: true}, "tester")
	require.NoError(t, err)
	require.True(t, changed)
	assert.Nil(t, cleared.LinkedStripID)

	_, changed, err = store.Update(b.ID, Patch{ClearLinkedStrip: true}, "tester")
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestUpdateNotFound(t *testing.T) {
	store := newTestStore(t)
	_, _, err := store.Update(99, Patch{}, "tester")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	b, err := store.Create(&Booking{}, "tester")
	require.NoError(t, err)

	assert.True(t, store.Delete(b.ID))
	assert.False(t, store.Delete(b.ID))
	_, found := store.GetByID(b.ID)
	assert.False(t, found)
	assert.Empty(t, store.List())
}
