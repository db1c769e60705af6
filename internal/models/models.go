// Package models defines the data structures shared across the trip
// notification core.
package models

import "time"

// Trip lifecycle status constants.
const (
	StatusScheduled = "SCHEDULED"
	StatusDelayed   = "DELAYED"
	StatusBoarding  = "BOARDING"
	StatusInFlight  = "IN_FLIGHT"
	StatusCancelled = "CANCELLED"
	StatusLanded    = "LANDED"
	StatusArrived   = "ARRIVED"
	StatusCompleted = "COMPLETED"
)

// NotificationKind is the closed set of message kinds the engine can dispatch.
type NotificationKind string

const (
	KindReservationConfirmation NotificationKind = "RESERVATION_CONFIRMATION"
	KindReminder24h             NotificationKind = "REMINDER_24H"
	KindDelayed                 NotificationKind = "DELAYED"
	KindGateChange              NotificationKind = "GATE_CHANGE"
	KindCancelled               NotificationKind = "CANCELLED"
	KindBoarding                NotificationKind = "BOARDING"
	KindLandingWelcome          NotificationKind = "LANDING_WELCOME"
	KindItineraryReady          NotificationKind = "ITINERARY_READY"
)

// Delivery status constants for NotificationLogEntry.
const (
	DeliverySent       = "SENT"
	DeliveryFailed     = "FAILED"
	DeliverySuppressed = "SUPPRESSED"
)

// Change kind constants produced by the detector.
const (
	ChangeStatus        = "status_change"
	ChangeGate          = "gate_change"
	ChangeDepartureTime = "departure_time_change"
	ChangeCancellation  = "cancellation"
	ChangeBoarding      = "boarding"
	ChangeLanding       = "landing"
)

// Trip is a single passenger-flight subscription tracked end to end from
// creation through landing.
type Trip struct {
	ID                string
	ClientName        string
	WhatsApp          string
	FlightNumber      string
	OriginIATA        string
	DestinationIATA   string
	DepartureUTC      time.Time
	Status            string
	Gate              *string
	Metadata          map[string]string
	NextCheckAt       *time.Time
	AgencyID          string
	ClientDescription string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsTerminal returns true once the trip has reached a state where no further
// polling or notification is warranted.
func (t *Trip) IsTerminal() bool {
	switch t.Status {
	case StatusLanded, StatusArrived, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsDue reports whether the trip should be picked up by the scheduler at now.
// A trip with a nil NextCheckAt (terminal trips) is never due.
func (t *Trip) IsDue(now time.Time) bool {
	if t.IsTerminal() {
		return false
	}
	if t.NextCheckAt == nil {
		return false
	}
	return !t.NextCheckAt.After(now)
}

// GateOrDefault resolves the best-known gate string for display, falling back
// to metadata keys the ingress accepted, then to a placeholder. It never
// returns an empty string.
func (t *Trip) GateOrDefault(placeholder string) string {
	if t.Gate != nil && *t.Gate != "" {
		return *t.Gate
	}
	for _, key := range []string{"gate_origin", "gate", "departure_gate", "terminal_gate", "boarding_gate"} {
		if v, ok := t.Metadata[key]; ok && v != "" {
			return v
		}
	}
	return placeholder
}

// FlightStatusSnapshot is one observation of a flight from the external
// flight-data provider. Snapshots are append-only; the row with the greatest
// RecordedAt represents the engine's current known state for the trip.
type FlightStatusSnapshot struct {
	ID              string
	TripID          string
	Status          string
	GateOrigin      *string
	GateDestination *string
	EstimatedOut    *time.Time
	ActualOut       *time.Time
	EstimatedIn     *time.Time
	ActualIn        *time.Time
	RawPayload      string
	RecordedAt      time.Time
	Source          string
}

// NotificationLogEntry records one send attempt, successful or not. The
// tuple (TripID, Kind, IdempotencyHash, DeliverySent) must never repeat.
type NotificationLogEntry struct {
	ID                string
	TripID            string
	Kind              NotificationKind
	TemplateName      string
	DeliveryStatus    string
	ProviderMessageID string
	SentAt            time.Time
	RetryCount        int
	ErrorText         string
	IdempotencyHash   string
	EtaRound          string
	SuppressReason    string
}

// Change is a transient value produced by the detector describing one
// differing field between two flight-status snapshots.
type Change struct {
	Kind               string
	OldValue           string
	NewValue           string
	MappedNotification NotificationKind
}
