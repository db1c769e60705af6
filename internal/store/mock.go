package store

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/flightops/tripnotifier/internal/models"
)

// MockStore is a testify mock implementing Store, used by callers that want
// to exercise the dispatch and scheduling logic without a real database.
type MockStore struct {
	mock.Mock
}

var _ Store = (*MockStore)(nil)

func (m *MockStore) Create(ctx context.Context, trip *models.Trip) error {
	args := m.Called(ctx, trip)
	return args.Error(0)
}

func (m *MockStore) TripByID(ctx context.Context, id string) (*models.Trip, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Trip), args.Error(1)
}

func (m *MockStore) TripsDue(ctx context.Context, now time.Time, lookback time.Duration, limit int) ([]*models.Trip, error) {
	args := m.Called(ctx, now, lookback, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Trip), args.Error(1)
}

func (m *MockStore) UpdateTrip(ctx context.Context, id string, patch TripPatch) error {
	args := m.Called(ctx, id, patch)
	return args.Error(0)
}

func (m *MockStore) AppendStatus(ctx context.Context, snap *models.FlightStatusSnapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

func (m *MockStore) LatestStatus(ctx context.Context, tripID string) (*models.FlightStatusSnapshot, error) {
	args := m.Called(ctx, tripID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FlightStatusSnapshot), args.Error(1)
}

func (m *MockStore) FindSent(ctx context.Context, tripID string, kind models.NotificationKind, hash string) (bool, error) {
	args := m.Called(ctx, tripID, kind, hash)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) Append(ctx context.Context, entry *models.NotificationLogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockStore) NotificationsWhere(ctx context.Context, tripID string, kind models.NotificationKind, since *time.Time) ([]*models.NotificationLogEntry, error) {
	args := m.Called(ctx, tripID, kind, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.NotificationLogEntry), args.Error(1)
}

func (m *MockStore) RecentDelaySends(ctx context.Context, tripID string, within time.Duration) ([]*models.NotificationLogEntry, error) {
	args := m.Called(ctx, tripID, within)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.NotificationLogEntry), args.Error(1)
}

func (m *MockStore) TerminalTripsOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStore) DeleteNotificationsForTrips(ctx context.Context, tripIDs []string) (int64, error) {
	args := m.Called(ctx, tripIDs)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) DeleteSnapshotsForTrips(ctx context.Context, tripIDs []string) (int64, error) {
	args := m.Called(ctx, tripIDs)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) DatabaseSizeBytes(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) RunIncrementalVacuum(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockStore) Ping() error {
	args := m.Called()
	return args.Error(0)
}
