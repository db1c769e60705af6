// Package store defines the persistence contracts for trips, flight-status
// history, and the notification log, and provides a SQLite-backed
// implementation of all three.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/flightops/tripnotifier/internal/models"
)

// ErrNotFound is returned when a lookup by id finds no matching row.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicateTrip is returned by Create when the (whatsapp, flight_number,
// departure_date_day) uniqueness constraint is violated.
var ErrDuplicateTrip = errors.New("store: duplicate trip")

// TripPatch is a field-wise merge applied to a trip. A nil pointer field
// leaves the corresponding column untouched. NextCheckAt is the only field
// that may be explicitly cleared to null, via ClearNextCheckAt.
type TripPatch struct {
	Status           *string
	Gate             *string
	NextCheckAt      *time.Time
	ClearNextCheckAt bool
	Metadata         map[string]string
}

// TripStore is the persistence contract for the Trip entity.
type TripStore interface {
	Create(ctx context.Context, trip *models.Trip) error
	TripByID(ctx context.Context, id string) (*models.Trip, error)
	TripsDue(ctx context.Context, now time.Time, lookback time.Duration, limit int) ([]*models.Trip, error)
	UpdateTrip(ctx context.Context, id string, patch TripPatch) error
}

// StatusStore is the persistence contract for flight-status snapshots.
type StatusStore interface {
	AppendStatus(ctx context.Context, snap *models.FlightStatusSnapshot) error
	LatestStatus(ctx context.Context, tripID string) (*models.FlightStatusSnapshot, error)
}

// NotificationStore is the persistence contract for the notification log.
type NotificationStore interface {
	FindSent(ctx context.Context, tripID string, kind models.NotificationKind, hash string) (bool, error)
	Append(ctx context.Context, entry *models.NotificationLogEntry) error
	NotificationsWhere(ctx context.Context, tripID string, kind models.NotificationKind, since *time.Time) ([]*models.NotificationLogEntry, error)
	RecentDelaySends(ctx context.Context, tripID string, within time.Duration) ([]*models.NotificationLogEntry, error)
}

// RetentionStore is the persistence contract consumed by the cleanup loop.
type RetentionStore interface {
	TerminalTripsOlderThan(ctx context.Context, cutoff time.Time) ([]string, error)
	DeleteNotificationsForTrips(ctx context.Context, tripIDs []string) (int64, error)
	DeleteSnapshotsForTrips(ctx context.Context, tripIDs []string) (int64, error)
	DatabaseSizeBytes(ctx context.Context) (int64, error)
	RunIncrementalVacuum(ctx context.Context) error
}

// Store is the full persistence surface implemented by SQLiteStore.
type Store interface {
	TripStore
	StatusStore
	NotificationStore
	RetentionStore
	Close() error
	Ping() error
}
