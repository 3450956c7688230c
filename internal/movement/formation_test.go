package movement

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFormationBelowFloorIsNil(t *testing.T) {
	f, err := NewFormation("ROT", []FormationElement{{Callsign: "ROT1"}})
	require.NoError(t, err)
	assert.Nil(t, f)

	f, err = NewFormation("ROT", nil)
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestNewFormationAboveCapRejected(t *testing.T) {
	elements := make([]FormationElement, MaxFormationElements+1)
	for i := range elements {
		elements[i] = FormationElement{Callsign: fmt.Sprintf("ROT%d", i+1)}
	}
	_, err := NewFormation("ROT", elements)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestNewFormationDefaultsAndAggregates(t *testing.T) {
	f, err := NewFormation("ROT", []FormationElement{
		{Callsign: "ROT1", WTC: WTCLight},
		{Callsign: "ROT2", WTC: WTCMedium},
		{Callsign: "ROT3", WTC: WTCLight},
	})
	require.NoError(t, err)
	require.NotNil(t, f)

	for _, e := range f.Elements {
		assert.Equal(t, StatusPlanned, e.Status)
	}
	assert.Equal(t, WTCMedium, f.WTCCurrent)
	assert.Equal(t, WTCMedium, f.WTCMax)
}

func TestRecomputeCurrentDropsTerminalElements(t *testing.T) {
	f := &Formation{Elements: []FormationElement{
		{Callsign: "ROT1", WTC: WTCHeavy, Status: StatusCompleted},
		{Callsign: "ROT2", WTC: WTCLight, Status: StatusActive},
		{Callsign: "ROT3", WTC: WTCMedium, Status: StatusCancelled},
	}}
	f.Recompute()

	assert.Equal(t, WTCLight, f.WTCCurrent, "only PLANNED/ACTIVE elements count toward current")
	assert.Equal(t, WTCHeavy, f.WTCMax)
}

func TestWTCMaxNeverRegresses(t *testing.T) {
	f := &Formation{
		WTCMax: WTCHeavy,
		Elements: []FormationElement{
			{Callsign: "ROT1", WTC: WTCLight, Status: StatusPlanned},
		},
	}
	f.Recompute()
	assert.Equal(t, WTCHeavy, f.WTCMax, "max is monotone for the life of the formation")
	assert.Equal(t, WTCLight, f.WTCCurrent)
}

func TestCascadeOnMasterCompletion(t *testing.T) {
	store := newTestStore(t)
	f, err := NewFormation("ROT", []FormationElement{
		{Callsign: "ROT1", WTC: WTCLight, Status: StatusActive},
		{Callsign: "ROT2", WTC: WTCMedium, Status: StatusPlanned},
		{Callsign: "ROT3", WTC: WTCLight, Status: StatusCompleted},
	})
	require.NoError(t, err)

	m, err := store.Create(&Movement{Callsign: "ROT", FlightType: FlightTypeLocal, Formation: f}, "tester")
	require.NoError(t, err)

	updated, changed, err := store.SetStatus(m.ID, StatusCompleted, "tester")
	require.NoError(t, err)
	require.True(t, changed)

	for _, e := range updated.Formation.Elements {
		assert.Equal(t, StatusCompleted, e.Status)
	}
	assert.Empty(t, updated.Formation.WTCCurrent, "no live elements remain")
	assert.Equal(t, WTCMedium, updated.Formation.WTCMax)

	// Element transitions land in the same change-log entry as the master's
	entry := updated.ChangeLog[len(updated.ChangeLog)-1]
	assert.Contains(t, entry.Diff, "status")
	assert.Contains(t, entry.Diff, "formation.elements[0].status")
	assert.Contains(t, entry.Diff, "formation.elements[1].status")
	assert.NotContains(t, entry.Diff, "formation.elements[2].status", "already terminal element does not transition")
}

func TestCascadeCancelLeavesCompletedAlone(t *testing.T) {
	store := newTestStore(t)
	f, err := NewFormation("ROT", []FormationElement{
		{Callsign: "ROT1", Status: StatusCompleted},
		{Callsign: "ROT2", Status: StatusActive},
	})
	require.NoError(t, err)

	m, err := store.Create(&Movement{Callsign: "ROT", Formation: f}, "tester")
	require.NoError(t, err)

	updated, _, err := store.SetStatus(m.ID, StatusCancelled, "tester")
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, updated.Formation.Elements[0].Status, "cascade never regresses a terminal element")
	assert.Equal(t, StatusCancelled, updated.Formation.Elements[1].Status)
}

func TestCascadeOnlyOnTerminalTarget(t *testing.T) {
	store := newTestStore(t)
	f, err := NewFormation("ROT", []FormationElement{
		{Callsign: "ROT1", Status: StatusPlanned},
		{Callsign: "ROT2", Status: StatusPlanned},
	})
	require.NoError(t, err)

	m, err := store.Create(&Movement{Callsign: "ROT", Formation: f}, "tester")
	require.NoError(t, err)

	updated, _, err := store.SetStatus(m.ID, StatusActive, "tester")
	require.NoError(t, err)

	for _, e := range updated.Formation.Elements {
		assert.Equal(t, StatusPlanned, e.Status, "activating the master does not touch elements")
	}
}

func TestElementInheritanceResolvedAtReadTime(t *testing.T) {
	store := newTestStore(t)
	f, err := NewFormation("ROT", []FormationElement{
		{Callsign: "ROT1"},
		{Callsign: "ROT2", DepAd: "EDDK"},
	})
	require.NoError(t, err)

	m, err := store.Create(&Movement{Callsign: "ROT", DepAd: "EDKA", ArrAd: "EDDL", ActualDep: "0910", Formation: f}, "tester")
	require.NoError(t, err)

	assert.Equal(t, "EDKA", m.EffectiveElementDepAd(0), "empty element field inherits from master")
	assert.Equal(t, "EDDK", m.EffectiveElementDepAd(1), "non-empty element field wins")
	assert.Equal(t, "EDDL", m.EffectiveElementArrAd(0))
	assert.Equal(t, "0910", m.EffectiveElementDepActual(0))

	// A master edit reaches inheriting elements immediately
	updated, _, err := store.Update(m.ID, Patch{DepAd: strp("EDDH")}, "tester")
	require.NoError(t, err)
	assert.Equal(t, "EDDH", updated.EffectiveElementDepAd(0))
	assert.Equal(t, "EDDK", updated.EffectiveElementDepAd(1))
}

func TestUpdateElementBreaksInheritanceAndRecomputes(t *testing.T) {
	store := newTestStore(t)
	f, err := NewFormation("ROT", []FormationElement{
		{Callsign: "ROT1", WTC: WTCLight},
		{Callsign: "ROT2", WTC: WTCLight},
	})
	require.NoError(t, err)

	m, err := store.Create(&Movement{Callsign: "ROT", DepAd: "EDKA", Formation: f}, "tester")
	require.NoError(t, err)

	wtc := WTCHeavy
	updated, changed, err := store.UpdateElement(m.ID, 0, ElementPatch{
		DepAd: strp("EDDK"),
		WTC:   &wtc,
	}, "tester")
	require.NoError(t, err)
	require.True(t, changed)

	assert.Equal(t, "EDDK", updated.EffectiveElementDepAd(0))
	assert.Equal(t, "EDKA", updated.EffectiveElementDepAd(1))
	assert.Equal(t, WTCHeavy, updated.Formation.WTCCurrent, "aggregates refresh on element edit")

	_, _, err = store.UpdateElement(m.ID, 5, ElementPatch{DepAd: strp("EDDK")}, "tester")
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)

	_, _, err = store.UpdateElement(m.ID, 1, ElementPatch{DepAd: strp("xx")}, "tester")
	require.ErrorAs(t, err, &vErr)
	got, _ := store.GetByID(m.ID)
	assert.Empty(t, got.Formation.Elements[1].DepAd, "rejected edit retains the prior value")
}

func TestProduceArrival(t *testing.T) {
	store := newTestStore(t)
	f, err := NewFormation("ROT", []FormationElement{
		{Callsign: "ROT1", WTC: WTCLight, Status: StatusCompleted, DepActual: "0911"},
		{Callsign: "ROT2", WTC: WTCMedium, Status: StatusCancelled},
	})
	require.NoError(t, err)

	dep, err := store.Create(&Movement{
		Callsign:   "ROT",
		FlightType: FlightTypeDeparture,
		DOF:        "2026-08-26",
		PlannedArr: "1230",
		DepAd:      "EDKA",
		ArrAd:      "EDDL",
		Formation:  f,
	}, "tester")
	require.NoError(t, err)

	arr, err := store.ProduceArrival(dep.ID, "tester")
	require.NoError(t, err)

	assert.Equal(t, FlightTypeArrival, arr.FlightType)
	assert.Equal(t, StatusPlanned, arr.Status)
	assert.Equal(t, dep.DOF, arr.DOF)
	assert.Equal(t, dep.PlannedArr, arr.PlannedArr)
	assert.NotEqual(t, dep.ID, arr.ID)

	require.NotNil(t, arr.Formation)
	for _, e := range arr.Formation.Elements {
		assert.Equal(t, StatusPlanned, e.Status, "every element restarts, terminal ones included")
		assert.Empty(t, e.DepActual)
		assert.Empty(t, e.ArrActual)
	}
	assert.Equal(t, WTCMedium, arr.Formation.WTCCurrent)

	// Source strip is untouched
	src, _ := store.GetByID(dep.ID)
	assert.Equal(t, StatusCompleted, src.Formation.Elements[0].Status)
}

func TestProduceArrivalRejections(t *testing.T) {
	store := newTestStore(t)

	arrOnly, err := store.Create(&Movement{Callsign: "X", FlightType: FlightTypeArrival}, "tester")
	require.NoError(t, err)
	_, err = store.ProduceArrival(arrOnly.ID, "tester")
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)

	depSolo, err := store.Create(&Movement{Callsign: "Y", FlightType: FlightTypeDeparture}, "tester")
	require.NoError(t, err)
	_, err = store.ProduceArrival(depSolo.ID, "tester")
	require.ErrorAs(t, err, &vErr)

	_, err = store.ProduceArrival(999, "tester")
	assert.ErrorIs(t, err, ErrNotFound)
}
