package movement

import (
	"fmt"
	"regexp"
	"time"

	"github.com/rjmurr/movebook/internal/changelog"
)

// Status is the lifecycle state of a movement or formation element
type Status string

const (
	StatusPlanned   Status = "PLANNED"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Valid reports whether s is a known status value
func (s Status) Valid() bool {
	switch s {
	case StatusPlanned, StatusActive, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s is a final state
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// FlightType classifies a movement relative to the aerodrome
type FlightType string

const (
	FlightTypeArrival    FlightType = "ARR"
	FlightTypeDeparture  FlightType = "DEP"
	FlightTypeLocal      FlightType = "LOC"
	FlightTypeOverflight FlightType = "OVR"
)

// Valid reports whether t is a known flight type
func (t FlightType) Valid() bool {
	switch t {
	case FlightTypeArrival, FlightTypeDeparture, FlightTypeLocal, FlightTypeOverflight:
		return true
	}
	return false
}

// WTC is an ICAO wake turbulence category
type WTC string

const (
	WTCLight  WTC = "L"
	WTCMedium WTC = "M"
	WTCHeavy  WTC = "H"
	WTCSuper  WTC = "J"
)

var wtcRank = map[WTC]int{WTCLight: 1, WTCMedium: 2, WTCHeavy: 3, WTCSuper: 4}

// Valid reports whether w is a known category. The empty value is not valid.
func (w WTC) Valid() bool {
	_, ok := wtcRank[w]
	return ok
}

// HeavierThan reports whether w outranks other. The empty value ranks below
// every category.
func (w WTC) HeavierThan(other WTC) bool {
	return wtcRank[w] > wtcRank[other]
}

// FormationElement is one aircraft within a formation. Lifecycle is bound to
// the master movement; elements are never persisted on their own.
type FormationElement struct {
	Callsign  string `json:"callsign"`
	Reg       string `json:"reg,omitempty"`
	Type      string `json:"type,omitempty"`
	WTC       WTC    `json:"wtc,omitempty"`
	Status    Status `json:"status"`
	DepAd     string `json:"dep_ad,omitempty"` // empty means inherit from master
	ArrAd     string `json:"arr_ad,omitempty"` // empty means inherit from master
	DepActual string `json:"dep_actual,omitempty"`
	ArrActual string `json:"arr_actual,omitempty"`
}

// Formation is the master/element sub-structure embedded in a movement
type Formation struct {
	Label      string             `json:"label,omitempty"`
	WTCCurrent WTC                `json:"wtc_current,omitempty"`
	WTCMax     WTC                `json:"wtc_max,omitempty"`
	Elements   []FormationElement `json:"elements"`
}

// Movement is a single flight's strip
type Movement struct {
	ID           int64      `json:"id"`
	Status       Status     `json:"status"`
	FlightType   FlightType `json:"flight_type"`
	DOF          string     `json:"dof,omitempty"` // date of flight, YYYY-MM-DD
	PlannedDep   string     `json:"planned_dep,omitempty"` // clock times, HHMM local
	PlannedArr   string     `json:"planned_arr,omitempty"`
	ActualDep    string     `json:"actual_dep,omitempty"`
	ActualArr    string     `json:"actual_arr,omitempty"`
	Callsign     string     `json:"callsign"`
	Registration string     `json:"registration,omitempty"`
	AircraftType string     `json:"aircraft_type,omitempty"`
	POB          int        `json:"pob,omitempty"`
	DepAd        string     `json:"dep_ad,omitempty"`
	DepName      string     `json:"dep_name,omitempty"`
	ArrAd        string     `json:"arr_ad,omitempty"`
	TouchAndGo   int        `json:"touch_and_go,omitempty"`
	Outstation   int        `json:"outstation,omitempty"`
	FISCalls     int        `json:"fis_calls,omitempty"`
	Notes        string     `json:"notes,omitempty"`

	// Weak reference to a booking. Reference and lookup only, never
	// ownership: resolve through the booking store, which may miss.
	BookingID *int64 `json:"booking_id,omitempty"`

	Formation *Formation        `json:"formation,omitempty"`
	ChangeLog []changelog.Entry `json:"change_log"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ValidationError is a rejected field input. The prior value is always
// retained when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

var aerodromeCodeRe = regexp.MustCompile(`^[A-Z0-9]{4}$`)

// ValidateAerodromeCode checks a 4-character aerodrome code. The empty
// string is accepted where it means "inherit".
func ValidateAerodromeCode(field, code string) error {
	if code == "" {
		return nil
	}
	if !aerodromeCodeRe.MatchString(code) {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("%q is not a 4-character aerodrome code", code)}
	}
	return nil
}
