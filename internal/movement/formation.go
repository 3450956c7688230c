package movement

import "fmt"

const (
	// MinFormationElements is the floor below which a movement carries no
	// formation at all.
	MinFormationElements = 2
	// MaxFormationElements bounds the element list.
	MaxFormationElements = 12
)

// NewFormation builds a formation from the given elements. Fewer than two
// elements yields nil (the movement flies solo); more than twelve is
// rejected. Element statuses default to PLANNED and WTC aggregates are
// computed from scratch.
func NewFormation(label string, elements []FormationElement) (*Formation, error) {
	if len(elements) < MinFormationElements {
		return nil, nil
	}
	if len(elements) > MaxFormationElements {
		return nil, &ValidationError{
			Field:  "formation.elements",
			Reason: fmt.Sprintf("%d elements exceeds the maximum of %d", len(elements), MaxFormationElements),
		}
	}

	elems := make([]FormationElement, len(elements))
	copy(elems, elements)
	for i := range elems {
		if elems[i].Status == "" {
			elems[i].Status = StatusPlanned
		}
		if !elems[i].Status.Valid() {
			return nil, &ValidationError{
				Field:  fmt.Sprintf("formation.elements[%d].status", i),
				Reason: fmt.Sprintf("unknown status %q", elems[i].Status),
			}
		}
		if elems[i].WTC != "" && !elems[i].WTC.Valid() {
			return nil, &ValidationError{
				Field:  fmt.Sprintf("formation.elements[%d].wtc", i),
				Reason: fmt.Sprintf("unknown wake turbulence category %q", elems[i].WTC),
			}
		}
		if err := ValidateAerodromeCode(fmt.Sprintf("formation.elements[%d].dep_ad", i), elems[i].DepAd); err != nil {
			return nil, err
		}
		if err := ValidateAerodromeCode(fmt.Sprintf("formation.elements[%d].arr_ad", i), elems[i].ArrAd); err != nil {
			return nil, err
		}
	}

	f := &Formation{Label: label, Elements: elems}
	f.Recompute()
	return f, nil
}

// Recompute refreshes the WTC aggregates. WTCCurrent is the heaviest
// category among PLANNED/ACTIVE elements (empty when none remain);
// WTCMax only ever rises for the life of the formation.
func (f *Formation) Recompute() {
	var current WTC
	for _, e := range f.Elements {
		if e.Status != StatusPlanned && e.Status != StatusActive {
			continue
		}
		if e.WTC.HeavierThan(current) {
			current = e.WTC
		}
	}
	f.WTCCurrent = current

	for _, e := range f.Elements {
		if e.WTC.HeavierThan(f.WTCMax) {
			f.WTCMax = e.WTC
		}
	}
}

// cascade drives PLANNED/ACTIVE elements to the target terminal state.
// Elements already in a terminal state are left untouched; a cascade never
// regresses COMPLETED or CANCELLED. Returns the number of transitions.
func (f *Formation) cascade(target Status) int {
	transitioned := 0
	for i := range f.Elements {
		switch f.Elements[i].Status {
		case StatusPlanned, StatusActive:
			f.Elements[i].Status = target
			transitioned++
		}
	}
	f.Recompute()
	return transitioned
}

// cloneForArrival copies the formation's structural fields for a produced
// arrival strip. Every element restarts at PLANNED with actual times
// cleared: the produced strip is a fresh lifecycle, not a continuation, so
// even completed or cancelled elements reset.
func (f *Formation) cloneForArrival() *Formation {
	clone := &Formation{
		Label:    f.Label,
		Elements: make([]FormationElement, len(f.Elements)),
	}
	for i, e := range f.Elements {
		clone.Elements[i] = FormationElement{
			Callsign: e.Callsign,
			Reg:      e.Reg,
			Type:     e.Type,
			WTC:      e.WTC,
			Status:   StatusPlanned,
			DepAd:    e.DepAd,
			ArrAd:    e.ArrAd,
		}
	}
	clone.Recompute()
	return clone
}

// clone returns a deep copy
func (f *Formation) clone() *Formation {
	if f == nil {
		return nil
	}
	c := *f
	c.Elements = make([]FormationElement, len(f.Elements))
	copy(c.Elements, f.Elements)
	return &c
}

// EffectiveElementDepAd resolves element i's departure aerodrome.
// Inheritance is resolved at read time: an empty element field falls
// through to the master's, so master edits reach every element that has
// not set its own value.
func (m *Movement) EffectiveElementDepAd(i int) string {
	if m.Formation == nil || i < 0 || i >= len(m.Formation.Elements) {
		return ""
	}
	if ad := m.Formation.Elements[i].DepAd; ad != "" {
		return ad
	}
	return m.DepAd
}

// EffectiveElementArrAd resolves element i's arrival aerodrome
func (m *Movement) EffectiveElementArrAd(i int) string {
	if m.Formation == nil || i < 0 || i >= len(m.Formation.Elements) {
		return ""
	}
	if ad := m.Formation.Elements[i].ArrAd; ad != "" {
		return ad
	}
	return m.ArrAd
}

// EffectiveElementDepActual resolves element i's actual departure time,
// inheriting the master's unless the element broke inheritance.
func (m *Movement) EffectiveElementDepActual(i int) string {
	if m.Formation == nil || i < 0 || i >= len(m.Formation.Elements) {
		return ""
	}
	if t := m.Formation.Elements[i].DepActual; t != "" {
		return t
	}
	return m.ActualDep
}

// EffectiveElementArrActual resolves element i's actual arrival time
func (m *Movement) EffectiveElementArrActual(i int) string {
	if m.Formation == nil || i < 0 || i >= len(m.Formation.Elements) {
		return ""
	}
	if t := m.Formation.Elements[i].ArrActual; t != "" {
		return t
	}
	return m.ActualArr
}
