package movement

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rjmurr/movebook/internal/changelog"
	"github.com/rjmurr/movebook/pkg/logger"
)

// ErrNotFound is returned when no movement has the requested id
var ErrNotFound = errors.New("movement not found")

// Persister is the write-through snapshot sink. A failed save is logged
// and the in-memory collection stays authoritative for the session.
type Persister interface {
	SaveMovements(movements []*Movement) error
}

// Store owns the movement collection. All mutation of movements goes
// through it; every operation persists synchronously before returning.
type Store struct {
	mu        sync.RWMutex
	movements []*Movement // creation order
	byID      map[int64]*Movement
	persister Persister
	logger    *logger.Logger
}

// NewStore creates an empty movement store. persister may be nil for
// in-memory use (tests).
func NewStore(persister Persister, log *logger.Logger) *Store {
	return &Store{
		byID:      make(map[int64]*Movement),
		persister: persister,
		logger:    log.Named("movement-store"),
	}
}

// LoadFromPersistence replaces the collection with a previously persisted
// one. Call once at startup before first use.
func (s *Store) LoadFromPersistence(movements []*Movement) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.movements = make([]*Movement, 0, len(movements))
	s.byID = make(map[int64]*Movement, len(movements))
	for _, m := range movements {
		// Invariant: a formation below the size floor is no formation
		if m.Formation != nil && len(m.Formation.Elements) < MinFormationElements {
			m.Formation = nil
		}
		s.movements = append(s.movements, m)
		s.byID[m.ID] = m
	}
	s.logger.Info("Loaded movements", logger.Int("count", len(s.movements)))
}

// Create allocates the next id, stamps timestamps and appends a "created"
// change-log entry. The partial's id and change log are overwritten.
func (s *Store) Create(partial *Movement, actor string) (*Movement, error) {
	if strings.TrimSpace(partial.Callsign) == "" {
		return nil, &ValidationError{Field: "callsign", Reason: "must not be blank"}
	}
	if partial.FlightType != "" && !partial.FlightType.Valid() {
		return nil, &ValidationError{Field: "flight_type", Reason: fmt.Sprintf("unknown flight type %q", partial.FlightType)}
	}
	if partial.Status != "" && !partial.Status.Valid() {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", partial.Status)}
	}
	if err := ValidateAerodromeCode("dep_ad", partial.DepAd); err != nil {
		return nil, err
	}
	if err := ValidateAerodromeCode("arr_ad", partial.ArrAd); err != nil {
		return nil, err
	}
	if partial.POB < 0 {
		return nil, &ValidationError{Field: "pob", Reason: "must not be negative"}
	}

	// Every formation enters through NewFormation so the element cap,
	// enums and aerodrome codes hold no matter how the caller built it.
	formation := partial.Formation
	if formation != nil {
		var err error
		formation, err = NewFormation(formation.Label, formation.Elements)
		if err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := *partial
	m.ID = s.nextIDLocked()
	if m.Status == "" {
		m.Status = StatusPlanned
	}
	m.Formation = formation
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	m.ChangeLog = []changelog.Entry{changelog.NewEntry(actor, "created", nil)}

	s.movements = append(s.movements, &m)
	s.byID[m.ID] = &m
	s.persistLocked()

	s.logger.Info("Movement created",
		logger.Int64("id", m.ID),
		logger.String("callsign", m.Callsign),
		logger.String("flight_type", string(m.FlightType)))
	return &m, nil
}

// Patch is a partial update; nil fields are left untouched. Status
// transitions go through SetStatus so formation cascades run.
type Patch struct {
	FlightType   *FlightType
	DOF          *string
	PlannedDep   *string
	PlannedArr   *string
	ActualDep    *string
	ActualArr    *string
	Callsign     *string
	Registration *string
	AircraftType *string
	POB          *int
	DepAd        *string
	DepName      *string
	ArrAd        *string
	TouchAndGo   *int
	Outstation   *int
	FISCalls     *int
	Notes        *string

	BookingID      *int64
	ClearBookingID bool
}

// applyField writes *p into *dst and records the change when values differ
func applyField[T comparable](diff map[string]changelog.FieldChange, field string, p *T, dst *T) {
	if p == nil || *p == *dst {
		return
	}
	diff[field] = changelog.FieldChange{From: *dst, To: *p}
	*dst = *p
}

// Update applies a field-level patch. The returned bool reports whether
// anything actually changed; a no-op patch is accepted but appends no
// change-log entry and does not persist.
func (s *Store) Update(id int64, patch Patch, actor string) (*Movement, bool, error) {
	if patch.FlightType != nil && !patch.FlightType.Valid() {
		return nil, false, &ValidationError{Field: "flight_type", Reason: fmt.Sprintf("unknown flight type %q", *patch.FlightType)}
	}
	if patch.Callsign != nil && strings.TrimSpace(*patch.Callsign) == "" {
		return nil, false, &ValidationError{Field: "callsign", Reason: "must not be blank"}
	}
	if patch.DepAd != nil {
		if err := ValidateAerodromeCode("dep_ad", *patch.DepAd); err != nil {
			return nil, false, err
		}
	}
	if patch.ArrAd != nil {
		if err := ValidateAerodromeCode("arr_ad", *patch.ArrAd); err != nil {
			return nil, false, err
		}
	}
	if patch.POB != nil && *patch.POB < 0 {
		return nil, false, &ValidationError{Field: "pob", Reason: "must not be negative"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return nil, false, ErrNotFound
	}

	diff := make(map[string]changelog.FieldChange)
	applyField(diff, "flight_type", patch.FlightType, &m.FlightType)
	applyField(diff, "dof", patch.DOF, &m.DOF)
	applyField(diff, "planned_dep", patch.PlannedDep, &m.PlannedDep)
	applyField(diff, "planned_arr", patch.PlannedArr, &m.PlannedArr)
	applyField(diff, "actual_dep", patch.ActualDep, &m.ActualDep)
	applyField(diff, "actual_arr", patch.ActualArr, &m.ActualArr)
	applyField(diff, "callsign", patch.Callsign, &m.Callsign)
	applyField(diff, "registration", patch.Registration, &m.Registration)
	applyField(diff, "aircraft_type", patch.AircraftType, &m.AircraftType)
	applyField(diff, "pob", patch.POB, &m.POB)
	applyField(diff, "dep_ad", patch.DepAd, &m.DepAd)
	applyField(diff, "dep_name", patch.DepName, &m.DepName)
	applyField(diff, "arr_ad", patch.ArrAd, &m.ArrAd)
	applyField(diff, "touch_and_go", patch.TouchAndGo, &m.TouchAndGo)
	applyField(diff, "outstation", patch.Outstation, &m.Outstation)
	applyField(diff, "fis_calls", patch.FISCalls, &m.FISCalls)
	applyField(diff, "notes", patch.Notes, &m.Notes)

	switch {
	case patch.ClearBookingID:
		if m.BookingID != nil {
			diff["booking_id"] = changelog.FieldChange{From: *m.BookingID, To: nil}
			m.BookingID = nil
		}
	case patch.BookingID != nil:
		if m.BookingID == nil || *m.BookingID != *patch.BookingID {
			var from any
			if m.BookingID != nil {
				from = *m.BookingID
			}
			diff["booking_id"] = changelog.FieldChange{From: from, To: *patch.BookingID}
			v := *patch.BookingID
			m.BookingID = &v
		}
	}

	if len(diff) == 0 {
		return m, false, nil
	}

	m.UpdatedAt = time.Now().UTC()
	m.ChangeLog = append(m.ChangeLog, changelog.NewEntry(actor, "updated", diff))
	s.persistLocked()
	return m, true, nil
}

// SetStatus transitions the movement's own status and runs the formation
// cascade when the new status is terminal.
func (s *Store) SetStatus(id int64, status Status, actor string) (*Movement, bool, error) {
	if !status.Valid() {
		return nil, false, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return nil, false, ErrNotFound
	}
	if m.Status == status {
		return m, false, nil
	}

	diff := map[string]changelog.FieldChange{
		"status": {From: m.Status, To: status},
	}
	m.Status = status

	if m.Formation != nil && status.Terminal() {
		before := make([]Status, len(m.Formation.Elements))
		for i, e := range m.Formation.Elements {
			before[i] = e.Status
		}
		if m.Formation.cascade(status) > 0 {
			for i, e := range m.Formation.Elements {
				if before[i] != e.Status {
					diff[fmt.Sprintf("formation.elements[%d].status", i)] = changelog.FieldChange{From: before[i], To: e.Status}
				}
			}
		}
	}

	m.UpdatedAt = time.Now().UTC()
	m.ChangeLog = append(m.ChangeLog, changelog.NewEntry(actor, "status", diff))
	s.persistLocked()

	s.logger.Info("Movement status changed",
		logger.Int64("id", m.ID),
		logger.String("status", string(status)))
	return m, true, nil
}

// ElementPatch is a partial update of one formation element
type ElementPatch struct {
	Callsign  *string
	Reg       *string
	Type      *string
	WTC       *WTC
	Status    *Status
	DepAd     *string
	ArrAd     *string
	DepActual *string
	ArrActual *string
}

// UpdateElement applies a patch to formation element idx. Setting DepAd or
// ArrAd to a non-empty value breaks inheritance from the master for that
// element only; malformed codes are rejected with the prior value retained.
func (s *Store) UpdateElement(id int64, idx int, patch ElementPatch, actor string) (*Movement, bool, error) {
	if patch.WTC != nil && *patch.WTC != "" && !patch.WTC.Valid() {
		return nil, false, &ValidationError{Field: "wtc", Reason: fmt.Sprintf("unknown wake turbulence category %q", *patch.WTC)}
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, false, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", *patch.Status)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return nil, false, ErrNotFound
	}
	if m.Formation == nil || idx < 0 || idx >= len(m.Formation.Elements) {
		return nil, false, &ValidationError{Field: "element", Reason: fmt.Sprintf("no formation element at index %d", idx)}
	}

	prefix := fmt.Sprintf("formation.elements[%d].", idx)
	if patch.DepAd != nil {
		if err := ValidateAerodromeCode(prefix+"dep_ad", *patch.DepAd); err != nil {
			return nil, false, err
		}
	}
	if patch.ArrAd != nil {
		if err := ValidateAerodromeCode(prefix+"arr_ad", *patch.ArrAd); err != nil {
			return nil, false, err
		}
	}

	e := &m.Formation.Elements[idx]
	diff := make(map[string]changelog.FieldChange)
	applyField(diff, prefix+"callsign", patch.Callsign, &e.Callsign)
	applyField(diff, prefix+"reg", patch.Reg, &e.Reg)
	applyField(diff, prefix+"type", patch.Type, &e.Type)
	applyField(diff, prefix+"wtc", patch.WTC, &e.WTC)
	applyField(diff, prefix+"status", patch.Status, &e.Status)
	applyField(diff, prefix+"dep_ad", patch.DepAd, &e.DepAd)
	applyField(diff, prefix+"arr_ad", patch.ArrAd, &e.ArrAd)
	applyField(diff, prefix+"dep_actual", patch.DepActual, &e.DepActual)
	applyField(diff, prefix+"arr_actual", patch.ArrActual, &e.ArrActual)

	if len(diff) == 0 {
		return m, false, nil
	}

	m.Formation.Recompute()
	m.UpdatedAt = time.Now().UTC()
	m.ChangeLog = append(m.ChangeLog, changelog.NewEntry(actor, "element-updated", diff))
	s.persistLocked()
	return m, true, nil
}

// ProduceArrival creates the ARR strip corresponding to a departed
// formation, e.g. for route midpoint handling. Structural fields carry
// over; every element starts a fresh PLANNED lifecycle.
func (s *Store) ProduceArrival(id int64, actor string) (*Movement, error) {
	s.mu.Lock()

	src, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	if src.FlightType != FlightTypeDeparture {
		s.mu.Unlock()
		return nil, &ValidationError{Field: "flight_type", Reason: "only a DEP strip can produce an arrival"}
	}
	if src.Formation == nil {
		s.mu.Unlock()
		return nil, &ValidationError{Field: "formation", Reason: "movement carries no formation"}
	}

	m := &Movement{
		Status:       StatusPlanned,
		FlightType:   FlightTypeArrival,
		DOF:          src.DOF,
		PlannedArr:   src.PlannedArr,
		Callsign:     src.Callsign,
		Registration: src.Registration,
		AircraftType: src.AircraftType,
		POB:          src.POB,
		DepAd:        src.DepAd,
		DepName:      src.DepName,
		ArrAd:        src.ArrAd,
		Formation:    src.Formation.cloneForArrival(),
	}
	m.ID = s.nextIDLocked()
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	m.ChangeLog = []changelog.Entry{changelog.NewEntry(actor, "produced-arrival", map[string]changelog.FieldChange{
		"source_movement_id": {From: nil, To: src.ID},
	})}

	s.movements = append(s.movements, m)
	s.byID[m.ID] = m
	s.persistLocked()
	s.mu.Unlock()

	s.logger.Info("Produced arrival strip",
		logger.Int64("source_id", src.ID),
		logger.Int64("id", m.ID))
	return m, nil
}

// Delete hard-removes a movement. Soft removal is the CANCELLED status.
func (s *Store) Delete(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	for i, m := range s.movements {
		if m.ID == id {
			s.movements = append(s.movements[:i], s.movements[i+1:]...)
			break
		}
	}
	s.persistLocked()
	s.logger.Info("Movement deleted", logger.Int64("id", id))
	return true
}

// GetByID looks a movement up by id
func (s *Store) GetByID(id int64) (*Movement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	return m, ok
}

// List returns the collection in creation order
func (s *Store) List() []*Movement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Movement, len(s.movements))
	copy(out, s.movements)
	return out
}

// Count returns the number of movements
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.movements)
}

func (s *Store) nextIDLocked() int64 {
	var max int64
	for _, m := range s.movements {
		if m.ID > max {
			max = m.ID
		}
	}
	return max + 1
}

// persistLocked writes the snapshot through. A failure is logged and the
// in-memory collection remains the source of truth for the session.
func (s *Store) persistLocked() {
	if s.persister == nil {
		return
	}
	if err := s.persister.SaveMovements(s.movements); err != nil {
		s.logger.Error("Failed to persist movements snapshot", logger.Error(err))
	}
}
