package sqlite

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjmurr/movebook/internal/booking"
	"github.com/rjmurr/movebook/internal/movement"
	"github.com/rjmurr/movebook/pkg/logger"
)

func newTestStore(t *testing.T) *SnapshotStore {
	t.Helper()
	store, err := NewSnapshotStore(filepath.Join(t.TempDir(), "test.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestMovementsRoundTrip(t *testing.T) {
	store := newTestStore(t)

	bookingID := int64(3)
	in := []*movement.Movement{
		{
			ID:         1,
			Status:     movement.StatusActive,
			FlightType: movement.FlightTypeArrival,
			Callsign:   "DEABC",
			BookingID:  &bookingID,
		},
		{
			ID:       2,
			Status:   movement.StatusPlanned,
			Callsign: "ROT",
			Formation: &movement.Formation{
				Label:      "ROT",
				WTCCurrent: movement.WTCLight,
				WTCMax:     movement.WTCMedium,
				Elements: []movement.FormationElement{
					{Callsign: "ROT1", Status: movement.StatusPlanned, WTC: movement.WTCLight},
					{Callsign: "ROT2", Status: movement.StatusCompleted, WTC: movement.WTCMedium},
				},
			},
		},
	}
	require.NoError(t, store.SaveMovements(in))

	out, err := store.LoadMovements()
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "DEABC", out[0].Callsign)
	require.NotNil(t, out[0].BookingID)
	assert.Equal(t, int64(3), *out[0].BookingID)
	require.NotNil(t, out[1].Formation)
	assert.Equal(t, movement.WTCMedium, out[1].Formation.WTCMax)
	assert.Len(t, out[1].Formation.Elements, 2)
}

func TestLoadMissingSnapshotsYieldEmpty(t *testing.T) {
	store := newTestStore(t)

	movements, err := store.LoadMovements()
	require.NoError(t, err)
	assert.Empty(t, movements)

	bookings, err := store.LoadBookings()
	require.NoError(t, err)
	assert.Empty(t, bookings)
}

func TestBookingsRoundTrip(t *testing.T) {
	store := newTestStore(t)

	stripID := int64(7)
	in := []*booking.Booking{
		{
			ID:            1,
			Status:        booking.StatusConfirmed,
			LinkedStripID: &stripID,
			Schedule: booking.Schedule{
				DateISO:              "2026-08-26",
				PlannedTimeLocalHHMM: "1030",
				PlannedTimeKind:      booking.TimeKindArrival,
			},
			Aircraft: booking.Aircraft{Registration: "D-EABC", Callsign: "DEABC"},
		},
	}
	require.NoError(t, store.SaveBookings(in))

	out, err := store.LoadBookings()
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "1030", out[0].Schedule.PlannedTimeLocalHHMM)
	require.NotNil(t, out[0].LinkedStripID)
	assert.Equal(t, int64(7), *out[0].LinkedStripID)
}

// writeV1Bookings plants a pre-migration snapshot plus the legacy board key
func writeV1Bookings(t *testing.T, store *SnapshotStore, bookings []*booking.Booking) {
	t.Helper()
	doc := bookingsDocument{
		SchemaVersion: 1,
		Timestamp:     time.Now().UTC(),
		Bookings:      bookings,
	}
	payload, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, store.writeSnapshot(bookingsKey, 1, payload))
	require.NoError(t, store.writeSnapshot(legacyBoardKey, 1, []byte(`{}`)))
}

func TestBookingsV1MigrationFillsCanonicalTime(t *testing.T) {
	store := newTestStore(t)
	writeV1Bookings(t, store, []*booking.Booking{
		{ID: 1, Schedule: booking.Schedule{PlannedTimeLocal: "0945"}},
		{ID: 2, Schedule: booking.Schedule{PlannedTimeLocalHHMM: "1100", PlannedTimeLocal: "1015"}},
		{ID: 3},
	})

	out, err := store.LoadBookings()
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, "0945", out[0].Schedule.PlannedTimeLocalHHMM, "empty canonical field fills from the alias")
	assert.Equal(t, "1100", out[1].Schedule.PlannedTimeLocalHHMM, "populated canonical field wins over the alias")
	assert.Empty(t, out[2].Schedule.PlannedTimeLocalHHMM)

	// The rewrite retires the legacy board key
	payload, _, err := store.readSnapshot(legacyBoardKey)
	require.NoError(t, err)
	assert.Nil(t, payload)

	// The snapshot is now at the current version
	_, version, err := store.readSnapshot(bookingsKey)
	require.NoError(t, err)
	assert.Equal(t, bookingsSchemaVersion, version)
}

func TestBookingsMigrationIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	writeV1Bookings(t, store, []*booking.Booking{
		{ID: 1, Schedule: booking.Schedule{PlannedTimeLocal: "0945"}},
	})

	first, err := store.LoadBookings()
	require.NoError(t, err)
	second, err := store.LoadBookings()
	require.NoError(t, err)

	assert.Equal(t, first[0].Schedule.PlannedTimeLocalHHMM, second[0].Schedule.PlannedTimeLocalHHMM)
}

func TestSaveOverwritesPriorSnapshot(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SaveMovements([]*movement.Movement{{ID: 1, Callsign: "A"}}))
	require.NoError(t, store.SaveMovements([]*movement.Movement{{ID: 2, Callsign: "B"}}))

	out, err := store.LoadMovements()
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "B", out[0].Callsign)
}
