package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rjmurr/movebook/internal/booking"
	"github.com/rjmurr/movebook/internal/config"
	"github.com/rjmurr/movebook/internal/linksync"
	"github.com/rjmurr/movebook/internal/movement"
	"github.com/rjmurr/movebook/internal/station"
	"github.com/rjmurr/movebook/internal/vkb"
	"github.com/rjmurr/movebook/internal/websocket"
	"github.com/rjmurr/movebook/pkg/logger"
)

// Handler contains the API handlers
type Handler struct {
	movements *movement.Store
	bookings  *booking.Store
	engine    *linksync.Engine
	vkbDB     *vkb.DB
	config    *config.Config
	logger    *logger.Logger
	wsServer  *websocket.Server
	actor     string
}

// NewHandler creates a new API handler
func NewHandler(movements *movement.Store, bookings *booking.Store, engine *linksync.Engine, vkbDB *vkb.DB, cfg *config.Config, log *logger.Logger, wsServer *websocket.Server) *Handler {
	return &Handler{
		movements: movements,
		bookings:  bookings,
		engine:    engine,
		vkbDB:     vkbDB,
		config:    cfg,
		logger:    log.Named("api-handler"),
		wsServer:  wsServer,
		actor:     cfg.Sync.Actor,
	}
}

// --- Movements ---

// ListMovements returns all movements in creation order
func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.movements.List())
}

// GetMovement returns one movement
func (h *Handler) GetMovement(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	m, found := h.movements.GetByID(id)
	if !found {
		http.Error(w, "Movement not found", http.StatusNotFound)
		return
	}
	h.respondJSON(w, http.StatusOK, m)
}

type createMovementRequest struct {
	movement.Movement
	FormationLabel    string                      `json:"formation_label,omitempty"`
	FormationElements []movement.FormationElement `json:"formation_elements,omitempty"`
}

// CreateMovement creates a strip from a booking submission or manual entry
func (h *Handler) CreateMovement(w http.ResponseWriter, r *http.Request) {
	var req createMovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	partial := req.Movement
	if len(req.FormationElements) > 0 {
		h.defaultElementWTCs(req.FormationElements)
		f, err := movement.NewFormation(req.FormationLabel, req.FormationElements)
		if err != nil {
			h.writeError(w, err)
			return
		}
		partial.Formation = f
	}

	m, err := h.movements.Create(&partial, h.actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.wsServer.NotifyDataChanged("movements")

	// A strip born from a booking links both ways
	if m.BookingID != nil {
		if _, changed, err := h.bookings.Update(*m.BookingID, booking.Patch{LinkedStripID: &m.ID}, h.actor); err == nil && changed {
			h.wsServer.NotifyDataChanged("bookings")
		}
		h.engine.OnMovementUpdated(m)
	}

	h.respondJSON(w, http.StatusCreated, m)
}

type movementPatchRequest struct {
	FlightType   *movement.FlightType `json:"flight_type"`
	DOF          *string              `json:"dof"`
	PlannedDep   *string              `json:"planned_dep"`
	PlannedArr   *string              `json:"planned_arr"`
	ActualDep    *string              `json:"actual_dep"`
	ActualArr    *string              `json:"actual_arr"`
	Callsign     *string              `json:"callsign"`
	Registration *string              `json:"registration"`
	AircraftType *string              `json:"aircraft_type"`
	POB          *int                 `json:"pob"`
	DepAd        *string              `json:"dep_ad"`
	DepName      *string              `json:"dep_name"`
	ArrAd        *string              `json:"arr_ad"`
	TouchAndGo   *int                 `json:"touch_and_go"`
	Outstation   *int                 `json:"outstation"`
	FISCalls     *int                 `json:"fis_calls"`
	Notes        *string              `json:"notes"`
	BookingID    *int64               `json:"booking_id"`
	ClearBooking bool                 `json:"clear_booking,omitempty"`
}

// UpdateMovement applies a field-level patch and propagates shared fields
// to the linked booking.
func (h *Handler) UpdateMovement(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var req movementPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	patch := movement.Patch{
		FlightType:     req.FlightType,
		DOF:            req.DOF,
		PlannedDep:     req.PlannedDep,
		PlannedArr:     req.PlannedArr,
		ActualDep:      req.ActualDep,
		ActualArr:      req.ActualArr,
		Callsign:       req.Callsign,
		Registration:   req.Registration,
		AircraftType:   req.AircraftType,
		POB:            req.POB,
		DepAd:          req.DepAd,
		DepName:        req.DepName,
		ArrAd:          req.ArrAd,
		TouchAndGo:     req.TouchAndGo,
		Outstation:     req.Outstation,
		FISCalls:       req.FISCalls,
		Notes:          req.Notes,
		BookingID:      req.BookingID,
		ClearBookingID: req.ClearBooking,
	}

	m, changed, err := h.movements.Update(id, patch, h.actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if changed {
		h.wsServer.NotifyDataChanged("movements")
		h.engine.OnMovementUpdated(m)
	}
	h.respondJSON(w, http.StatusOK, m)
}

type statusRequest struct {
	Status movement.Status `json:"status"`
}

// SetMovementStatus transitions a strip's status, cascading to formation
// elements and the linked booking.
func (h *Handler) SetMovementStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	m, changed, err := h.movements.SetStatus(id, req.Status, h.actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if changed {
		h.wsServer.NotifyDataChanged("movements")
		h.engine.OnMovementStatusChanged(m, req.Status)
	}
	h.respondJSON(w, http.StatusOK, m)
}

type elementPatchRequest struct {
	Callsign  *string          `json:"callsign"`
	Reg       *string          `json:"reg"`
	Type      *string          `json:"type"`
	WTC       *movement.WTC    `json:"wtc"`
	Status    *movement.Status `json:"status"`
	DepAd     *string          `json:"dep_ad"`
	ArrAd     *string          `json:"arr_ad"`
	DepActual *string          `json:"dep_actual"`
	ArrActual *string          `json:"arr_actual"`
}

// UpdateMovementElement patches one formation element
func (h *Handler) UpdateMovementElement(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	idx, err := strconv.Atoi(chi.URLParam(r, "idx"))
	if err != nil {
		http.Error(w, "Invalid element index", http.StatusBadRequest)
		return
	}
	var req elementPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	m, changed, err := h.movements.UpdateElement(id, idx, movement.ElementPatch{
		Callsign:  req.Callsign,
		Reg:       req.Reg,
		Type:      req.Type,
		WTC:       req.WTC,
		Status:    req.Status,
		DepAd:     req.DepAd,
		ArrAd:     req.ArrAd,
		DepActual: req.DepActual,
		ArrActual: req.ArrActual,
	}, h.actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if changed {
		h.wsServer.NotifyDataChanged("movements")
	}
	h.respondJSON(w, http.StatusOK, m)
}

// ProduceArrival creates the corresponding ARR strip for a departed
// formation.
func (h *Handler) ProduceArrival(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	m, err := h.movements.ProduceArrival(id, h.actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.wsServer.NotifyDataChanged("movements")
	h.respondJSON(w, http.StatusCreated, m)
}

// DeleteMovement hard-deletes a strip and clears the booking's
// back-reference.
func (h *Handler) DeleteMovement(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	m, found := h.movements.GetByID(id)
	if !found {
		http.Error(w, "Movement not found", http.StatusNotFound)
		return
	}
	if !h.movements.Delete(id) {
		http.Error(w, "Movement not found", http.StatusNotFound)
		return
	}
	h.wsServer.NotifyDataChanged("movements")
	h.engine.OnMovementDeleted(m)
	w.WriteHeader(http.StatusNoContent)
}

// --- Bookings ---

// ListBookings returns all bookings in creation order
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.bookings.List())
}

// GetBooking returns one booking
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	b, found := h.bookings.GetByID(id)
	if !found {
		http.Error(w, "Booking not found", http.StatusNotFound)
		return
	}
	h.respondJSON(w, http.StatusOK, b)
}

// CreateBooking creates a booking from the booking workflow
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var data booking.Booking
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	b, err := h.bookings.Create(&data, h.actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.wsServer.NotifyDataChanged("bookings")
	h.respondJSON(w, http.StatusCreated, b)
}

type bookingPatchRequest struct {
	Status           *booking.Status            `json:"status"`
	LinkedStripID    *int64                     `json:"linked_strip_id"`
	ClearLinkedStrip bool                       `json:"clear_linked_strip,omitempty"`
	Contact          *booking.ContactPatch      `json:"contact"`
	Schedule         *booking.SchedulePatch     `json:"schedule"`
	Aircraft         *booking.AircraftPatch     `json:"aircraft"`
	Movement         *booking.MovementInfoPatch `json:"movement"`
	Ops              *booking.OpsPatch          `json:"ops"`
	Charges          *booking.ChargesPatch      `json:"charges"`
}

// UpdateBooking applies a deep-merge patch. Cancelling a booking releases
// its strips' links without cascading to the strips themselves.
func (h *Handler) UpdateBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var req bookingPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	patch := booking.Patch{
		Status:           req.Status,
		LinkedStripID:    req.LinkedStripID,
		ClearLinkedStrip: req.ClearLinkedStrip,
		Contact:          req.Contact,
		Schedule:         req.Schedule,
		Aircraft:         req.Aircraft,
		Movement:         req.Movement,
		Ops:              req.Ops,
		Charges:          req.Charges,
	}
	if req.Status != nil && *req.Status == booking.StatusCancelled {
		now := time.Now().UTC()
		patch.CancelledAt = &now
	}

	b, changed, err := h.bookings.Update(id, patch, h.actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if changed {
		h.wsServer.NotifyDataChanged("bookings")
		if req.Status != nil && *req.Status == booking.StatusCancelled {
			h.engine.ClearStripLinks(b.ID)
		}
	}
	h.respondJSON(w, http.StatusOK, b)
}

// DeleteBooking hard-deletes a booking and releases its strips' links
func (h *Handler) DeleteBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	if !h.bookings.Delete(id) {
		http.Error(w, "Booking not found", http.StatusNotFound)
		return
	}
	h.wsServer.NotifyDataChanged("bookings")
	h.engine.OnBookingDeleted(id)
	w.WriteHeader(http.StatusNoContent)
}

// --- Misc ---

// Reconcile runs the link repair pass on demand
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	summary := h.engine.ReconcileLinks()
	h.respondJSON(w, http.StatusOK, summary)
}

// GetStation returns the aerodrome summary
func (h *Handler) GetStation(w http.ResponseWriter, r *http.Request) {
	st := h.config.Station
	h.respondJSON(w, http.StatusOK, station.InfoFor(
		st.AirportCode, st.Latitude, st.Longitude, st.ElevationFeet, time.Now()))
}

// GetAircraftType returns the VKB record for an ICAO type designator
func (h *Handler) GetAircraftType(w http.ResponseWriter, r *http.Request) {
	if h.vkbDB == nil {
		http.Error(w, "Aircraft type database not configured", http.StatusNotFound)
		return
	}
	rec, found := h.vkbDB.Get(chi.URLParam(r, "designator"))
	if !found {
		http.Error(w, "Unknown aircraft type", http.StatusNotFound)
		return
	}
	h.respondJSON(w, http.StatusOK, rec)
}

// defaultElementWTCs fills empty element WTCs from the aircraft-type table
func (h *Handler) defaultElementWTCs(elements []movement.FormationElement) {
	if h.vkbDB == nil {
		return
	}
	for i := range elements {
		if elements[i].WTC != "" || elements[i].Type == "" {
			continue
		}
		if wtc, ok := h.vkbDB.WTCFor(elements[i].Type); ok {
			elements[i].WTC = movement.WTC(wtc)
		}
	}
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", logger.Error(err))
	}
}

// writeError maps store errors onto HTTP statuses. Validation failures
// carry their human-readable reason to the caller.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var mvErr *movement.ValidationError
	var bkErr *booking.ValidationError
	switch {
	case errors.Is(err, movement.ErrNotFound), errors.Is(err, booking.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &mvErr), errors.As(err, &bkErr):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("Request failed", logger.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
