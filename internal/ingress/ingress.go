// Package ingress implements the HTTP endpoint that accepts new trip
// subscriptions: POST /trips validates the request body, normalizes the
// departure timestamp to UTC, persists the trip, and synchronously
// dispatches the reservation-confirmation notification so the response can
// report its outcome.
package ingress

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flightops/tripnotifier/internal/engine"
	"github.com/flightops/tripnotifier/internal/models"
	"github.com/flightops/tripnotifier/internal/store"
	"github.com/flightops/tripnotifier/internal/timez"
)

// CreateTripRequest is the JSON body accepted by POST /trips.
type CreateTripRequest struct {
	ClientName        string            `json:"client_name" validate:"required"`
	WhatsApp          string            `json:"whatsapp" validate:"required,e164"`
	FlightNumber      string            `json:"flight_number" validate:"required"`
	OriginIATA        string            `json:"origin_iata" validate:"required,len=3,uppercase"`
	DestinationIATA   string            `json:"destination_iata" validate:"required,len=3,uppercase"`
	DepartureDate     string            `json:"departure_date" validate:"required"`
	Status            string            `json:"status,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	ClientDescription string            `json:"client_description,omitempty"`
	AgencyID          string            `json:"agency_id,omitempty"`
}

// CreateTripResponse is returned on a successful POST /trips.
type CreateTripResponse struct {
	TripID                 string `json:"trip_id"`
	Status                 string `json:"status"`
	NextCheckAt            string `json:"next_check_at,omitempty"`
	ConfirmationSendStatus string `json:"confirmation_send_status"`
}

// errorResponse is the JSON body returned for any non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves the trip-creation endpoint.
type Handler struct {
	store    store.TripStore
	engine   *engine.Engine
	validate *validator.Validate
	logger   *zap.Logger
}

// NewHandler builds a Handler wired to its collaborators.
func NewHandler(s store.TripStore, e *engine.Engine, logger *zap.Logger) *Handler {
	return &Handler{
		store:    s,
		engine:   e,
		validate: validator.New(),
		logger:   logger,
	}
}

// Mux returns an http.Handler with the ingress routes registered.
func (h *Handler) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /trips", h.handleCreateTrip)
	return mux
}

func (h *Handler) handleCreateTrip(w http.ResponseWriter, r *http.Request) {
	var req CreateTripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("validation failed: %v", err))
		return
	}

	departureUTC, err := timez.ParseDeparture(req.DepartureDate, req.OriginIATA)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	status := req.Status
	if status == "" {
		status = models.StatusScheduled
	}

	now := time.Now().UTC()
	nextCheckAt := departureUTC.Add(-24 * time.Hour)
	if nextCheckAt.Before(now) {
		nextCheckAt = now
	}

	trip := &models.Trip{
		ID:                uuid.NewString(),
		ClientName:        req.ClientName,
		WhatsApp:          req.WhatsApp,
		FlightNumber:      req.FlightNumber,
		OriginIATA:        req.OriginIATA,
		DestinationIATA:   req.DestinationIATA,
		DepartureUTC:      departureUTC,
		Status:            status,
		Metadata:          req.Metadata,
		NextCheckAt:       &nextCheckAt,
		AgencyID:          req.AgencyID,
		ClientDescription: req.ClientDescription,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	ctx := r.Context()
	if err := h.store.Create(ctx, trip); err != nil {
		if errors.Is(err, store.ErrDuplicateTrip) {
			writeError(w, http.StatusConflict, "a trip for this whatsapp number, flight, and departure day already exists")
			return
		}
		h.logger.Error("failed to create trip", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create trip")
		return
	}

	confirmStatus, err := h.engine.ConfirmReservation(ctx, trip)
	if err != nil {
		// The trip is already persisted; a confirmation-pipeline failure
		// (hash computation, template lookup) is reported but does not
		// undo the creation. The scheduler will still poll this trip.
		h.logger.Error("reservation confirmation pipeline failed", zap.String("trip_id", trip.ID), zap.Error(err))
		confirmStatus = models.DeliveryFailed
	}

	resp := CreateTripResponse{
		TripID:                 trip.ID,
		Status:                 trip.Status,
		NextCheckAt:            nextCheckAt.Format(time.RFC3339),
		ConfirmationSendStatus: confirmStatus,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message})
}
