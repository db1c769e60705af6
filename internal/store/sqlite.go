package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/flightops/tripnotifier/internal/models"
)

// SQLiteStore implements Store using SQLite via the go-sqlite3 driver.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// PRAGMAs required for a single-writer embedded database, and creates the
// schema if it does not already exist.
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// Single connection so WAL mode behaves correctly for an embedded
	// database and we avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.applyPragmas(); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying pragmas: %w", err)
	}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("sqlite store initialised", zap.String("path", dbPath))
	return s, nil
}

func (s *SQLiteStore) applyPragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA auto_vacuum=INCREMENTAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *SQLiteStore) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS trips (
			id                  TEXT PRIMARY KEY,
			client_name         TEXT NOT NULL,
			whatsapp            TEXT NOT NULL,
			flight_number       TEXT NOT NULL,
			origin_iata         TEXT NOT NULL,
			destination_iata    TEXT NOT NULL,
			departure_utc       TEXT NOT NULL,
			departure_date_day  TEXT NOT NULL,
			status              TEXT NOT NULL DEFAULT 'SCHEDULED',
			gate                TEXT,
			metadata            TEXT NOT NULL DEFAULT '{}',
			next_check_at       TEXT,
			agency_id           TEXT NOT NULL DEFAULT '',
			client_description  TEXT NOT NULL DEFAULT '',
			created_at          TEXT NOT NULL,
			updated_at          TEXT NOT NULL
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_trips_dedup ON trips (whatsapp, flight_number, departure_date_day);`,
		`CREATE INDEX IF NOT EXISTS idx_trips_next_check ON trips (next_check_at, status);`,
		`CREATE INDEX IF NOT EXISTS idx_trips_departure ON trips (departure_utc);`,

		`CREATE TABLE IF NOT EXISTS flight_status_snapshots (
			id               TEXT PRIMARY KEY,
			trip_id          TEXT NOT NULL,
			status           TEXT NOT NULL,
			gate_origin      TEXT,
			gate_destination TEXT,
			estimated_out    TEXT,
			actual_out       TEXT,
			estimated_in     TEXT,
			actual_in        TEXT,
			raw_payload      TEXT NOT NULL DEFAULT '',
			recorded_at      TEXT NOT NULL,
			source           TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_trip ON flight_status_snapshots (trip_id, recorded_at);`,

		`CREATE TABLE IF NOT EXISTS notifications_log (
			id                  TEXT PRIMARY KEY,
			trip_id             TEXT NOT NULL,
			kind                TEXT NOT NULL,
			template_name       TEXT NOT NULL DEFAULT '',
			delivery_status     TEXT NOT NULL,
			provider_message_id TEXT NOT NULL DEFAULT '',
			sent_at             TEXT NOT NULL,
			retry_count         INTEGER NOT NULL DEFAULT 0,
			error_text          TEXT NOT NULL DEFAULT '',
			idempotency_hash    TEXT NOT NULL DEFAULT '',
			eta_round           TEXT NOT NULL DEFAULT '',
			suppress_reason     TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_notifications_sent_dedup
			ON notifications_log (trip_id, kind, idempotency_hash)
			WHERE delivery_status = 'SENT';`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_trip_kind ON notifications_log (trip_id, kind, sent_at);`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping() error { return s.db.Ping() }

// ---------------------------------------------------------------------------
// TripStore
// ---------------------------------------------------------------------------

// Create inserts a new trip. It returns ErrDuplicateTrip when the
// (whatsapp, flight_number, departure_date_day) uniqueness constraint is
// violated.
func (s *SQLiteStore) Create(ctx context.Context, trip *models.Trip) error {
	metadata, err := json.Marshal(trip.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling trip metadata: %w", err)
	}

	const query = `
INSERT INTO trips (
	id, client_name, whatsapp, flight_number, origin_iata, destination_iata,
	departure_utc, departure_date_day, status, gate, metadata, next_check_at,
	agency_id, client_description, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		trip.ID,
		trip.ClientName,
		trip.WhatsApp,
		trip.FlightNumber,
		trip.OriginIATA,
		trip.DestinationIATA,
		trip.DepartureUTC.UTC().Format(time.RFC3339),
		trip.DepartureUTC.UTC().Format("2006-01-02"),
		trip.Status,
		trip.Gate,
		string(metadata),
		formatNullableTime(trip.NextCheckAt),
		trip.AgencyID,
		trip.ClientDescription,
		trip.CreatedAt.UTC().Format(time.RFC3339),
		trip.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if isUniqueConstraint(err, &sqliteErr) {
			return ErrDuplicateTrip
		}
		return fmt.Errorf("inserting trip: %w", err)
	}
	return nil
}

func isUniqueConstraint(err error, out *sqlite3.Error) bool {
	if se, ok := err.(sqlite3.Error); ok {
		*out = se
		return se.Code == sqlite3.ErrConstraint
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

const tripColumns = `id, client_name, whatsapp, flight_number, origin_iata, destination_iata,
	departure_utc, status, gate, metadata, next_check_at, agency_id, client_description,
	created_at, updated_at`

// TripByID retrieves a trip by its id.
func (s *SQLiteStore) TripByID(ctx context.Context, id string) (*models.Trip, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = ?`, id)
	trip, err := scanTrip(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return trip, err
}

// TripsDue returns trips whose next_check_at has arrived, excluding terminal
// trips and trips whose departure is further in the past than lookback.
func (s *SQLiteStore) TripsDue(ctx context.Context, now time.Time, lookback time.Duration, limit int) ([]*models.Trip, error) {
	const query = `SELECT ` + tripColumns + ` FROM trips
WHERE next_check_at IS NOT NULL
  AND next_check_at <= ?
  AND status NOT IN ('LANDED', 'ARRIVED', 'COMPLETED', 'CANCELLED')
  AND departure_utc > ?
ORDER BY next_check_at ASC
LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query,
		now.UTC().Format(time.RFC3339),
		now.Add(-lookback).UTC().Format(time.RFC3339),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying due trips: %w", err)
	}
	defer rows.Close()

	var trips []*models.Trip
	for rows.Next() {
		trip, err := scanTripRows(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, trip)
	}
	return trips, rows.Err()
}

// UpdateTrip applies a field-wise merge. Only NextCheckAt may be explicitly
// cleared to null, via patch.ClearNextCheckAt.
func (s *SQLiteStore) UpdateTrip(ctx context.Context, id string, patch TripPatch) error {
	var sets []string
	var args []interface{}

	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *patch.Status)
	}
	if patch.Gate != nil {
		sets = append(sets, "gate = ?")
		args = append(args, *patch.Gate)
	}
	if patch.ClearNextCheckAt {
		sets = append(sets, "next_check_at = NULL")
	} else if patch.NextCheckAt != nil {
		sets = append(sets, "next_check_at = ?")
		args = append(args, patch.NextCheckAt.UTC().Format(time.RFC3339))
	}
	if patch.Metadata != nil {
		metadata, err := json.Marshal(patch.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling metadata patch: %w", err)
		}
		sets = append(sets, "metadata = ?")
		args = append(args, string(metadata))
	}

	if len(sets) == 0 {
		return nil
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(time.RFC3339))
	args = append(args, id)

	query := fmt.Sprintf("UPDATE trips SET %s WHERE id = ?", strings.Join(sets, ", "))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("updating trip: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrip(row *sql.Row) (*models.Trip, error) {
	return scanTripFrom(row)
}

func scanTripRows(rows *sql.Rows) (*models.Trip, error) {
	return scanTripFrom(rows)
}

func scanTripFrom(scanner rowScanner) (*models.Trip, error) {
	var t models.Trip
	var departureUTC, createdAt, updatedAt string
	var gate sql.NullString
	var metadata string
	var nextCheckAt sql.NullString

	err := scanner.Scan(
		&t.ID, &t.ClientName, &t.WhatsApp, &t.FlightNumber, &t.OriginIATA, &t.DestinationIATA,
		&departureUTC, &t.Status, &gate, &metadata, &nextCheckAt, &t.AgencyID, &t.ClientDescription,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if gate.Valid {
		g := gate.String
		t.Gate = &g
	}

	if err := json.Unmarshal([]byte(metadata), &t.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshalling trip metadata: %w", err)
	}

	if t.DepartureUTC, err = time.Parse(time.RFC3339, departureUTC); err != nil {
		return nil, fmt.Errorf("parsing departure_utc: %w", err)
	}
	if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	if t.NextCheckAt, err = parseNullableTime(nextCheckAt); err != nil {
		return nil, fmt.Errorf("parsing next_check_at: %w", err)
	}

	return &t, nil
}

// ---------------------------------------------------------------------------
// StatusStore
// ---------------------------------------------------------------------------

// AppendStatus inserts a new, append-only flight-status snapshot.
func (s *SQLiteStore) AppendStatus(ctx context.Context, snap *models.FlightStatusSnapshot) error {
	const query = `
INSERT INTO flight_status_snapshots (
	id, trip_id, status, gate_origin, gate_destination, estimated_out, actual_out,
	estimated_in, actual_in, raw_payload, recorded_at, source
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		snap.ID, snap.TripID, snap.Status,
		snap.GateOrigin, snap.GateDestination,
		formatNullableTimePtr(snap.EstimatedOut), formatNullableTimePtr(snap.ActualOut),
		formatNullableTimePtr(snap.EstimatedIn), formatNullableTimePtr(snap.ActualIn),
		snap.RawPayload, snap.RecordedAt.UTC().Format(time.RFC3339), snap.Source,
	)
	if err != nil {
		return fmt.Errorf("appending flight status snapshot: %w", err)
	}
	return nil
}

// LatestStatus returns the snapshot with the greatest recorded_at for a
// trip, breaking ties by insertion order (SQLite rowid).
func (s *SQLiteStore) LatestStatus(ctx context.Context, tripID string) (*models.FlightStatusSnapshot, error) {
	const query = `SELECT
	id, trip_id, status, gate_origin, gate_destination, estimated_out, actual_out,
	estimated_in, actual_in, raw_payload, recorded_at, source
FROM flight_status_snapshots
WHERE trip_id = ?
ORDER BY recorded_at DESC, rowid DESC
LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, tripID)

	var snap models.FlightStatusSnapshot
	var recordedAt string
	var estOut, actOut, estIn, actIn sql.NullString

	err := row.Scan(
		&snap.ID, &snap.TripID, &snap.Status, &snap.GateOrigin, &snap.GateDestination,
		&estOut, &actOut, &estIn, &actIn, &snap.RawPayload, &recordedAt, &snap.Source,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning latest status: %w", err)
	}

	if snap.RecordedAt, err = time.Parse(time.RFC3339, recordedAt); err != nil {
		return nil, fmt.Errorf("parsing recorded_at: %w", err)
	}
	if snap.EstimatedOut, err = parseNullableTime(estOut); err != nil {
		return nil, err
	}
	if snap.ActualOut, err = parseNullableTime(actOut); err != nil {
		return nil, err
	}
	if snap.EstimatedIn, err = parseNullableTime(estIn); err != nil {
		return nil, err
	}
	if snap.ActualIn, err = parseNullableTime(actIn); err != nil {
		return nil, err
	}

	return &snap, nil
}

// ---------------------------------------------------------------------------
// NotificationStore
// ---------------------------------------------------------------------------

// FindSent reports whether a SENT row already exists for (tripID, kind, hash).
func (s *SQLiteStore) FindSent(ctx context.Context, tripID string, kind models.NotificationKind, hash string) (bool, error) {
	const query = `SELECT 1 FROM notifications_log
WHERE trip_id = ? AND kind = ? AND idempotency_hash = ? AND delivery_status = 'SENT'
LIMIT 1`

	var exists int
	err := s.db.QueryRowContext(ctx, query, tripID, string(kind), hash).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking sent notification: %w", err)
	}
	return true, nil
}

// Append records a send attempt, successful or not.
func (s *SQLiteStore) Append(ctx context.Context, entry *models.NotificationLogEntry) error {
	const query = `
INSERT INTO notifications_log (
	id, trip_id, kind, template_name, delivery_status, provider_message_id,
	sent_at, retry_count, error_text, idempotency_hash, eta_round, suppress_reason
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.TripID, string(entry.Kind), entry.TemplateName, entry.DeliveryStatus,
		entry.ProviderMessageID, entry.SentAt.UTC().Format(time.RFC3339), entry.RetryCount,
		entry.ErrorText, entry.IdempotencyHash, entry.EtaRound, entry.SuppressReason,
	)
	if err != nil {
		return fmt.Errorf("appending notification log entry: %w", err)
	}
	return nil
}

// NotificationsWhere returns notification-log rows for a trip/kind, optionally
// filtered to entries at or after since.
func (s *SQLiteStore) NotificationsWhere(ctx context.Context, tripID string, kind models.NotificationKind, since *time.Time) ([]*models.NotificationLogEntry, error) {
	query := `SELECT id, trip_id, kind, template_name, delivery_status, provider_message_id,
	sent_at, retry_count, error_text, idempotency_hash, eta_round, suppress_reason
FROM notifications_log WHERE trip_id = ? AND kind = ?`
	args := []interface{}{tripID, string(kind)}
	if since != nil {
		query += " AND sent_at >= ?"
		args = append(args, since.UTC().Format(time.RFC3339))
	}
	query += " ORDER BY sent_at ASC"

	return s.queryNotifications(ctx, query, args...)
}

// RecentDelaySends returns DELAYED SENT rows for a trip within the given
// lookback window, used for cooldown and same-ETA dedup checks.
func (s *SQLiteStore) RecentDelaySends(ctx context.Context, tripID string, within time.Duration) ([]*models.NotificationLogEntry, error) {
	const query = `SELECT id, trip_id, kind, template_name, delivery_status, provider_message_id,
	sent_at, retry_count, error_text, idempotency_hash, eta_round, suppress_reason
FROM notifications_log
WHERE trip_id = ? AND kind = 'DELAYED' AND delivery_status = 'SENT' AND sent_at >= ?
ORDER BY sent_at DESC`

	cutoff := time.Now().Add(-within).UTC().Format(time.RFC3339)
	return s.queryNotifications(ctx, query, tripID, cutoff)
}

func (s *SQLiteStore) queryNotifications(ctx context.Context, query string, args ...interface{}) ([]*models.NotificationLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	var entries []*models.NotificationLogEntry
	for rows.Next() {
		var e models.NotificationLogEntry
		var kind, sentAt string
		if err := rows.Scan(
			&e.ID, &e.TripID, &kind, &e.TemplateName, &e.DeliveryStatus, &e.ProviderMessageID,
			&sentAt, &e.RetryCount, &e.ErrorText, &e.IdempotencyHash, &e.EtaRound, &e.SuppressReason,
		); err != nil {
			return nil, fmt.Errorf("scanning notification row: %w", err)
		}
		e.Kind = models.NotificationKind(kind)
		if e.SentAt, err = time.Parse(time.RFC3339, sentAt); err != nil {
			return nil, fmt.Errorf("parsing sent_at: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// ---------------------------------------------------------------------------
// RetentionStore
// ---------------------------------------------------------------------------

// TerminalTripsOlderThan returns ids of trips in a terminal state whose
// last update predates cutoff.
func (s *SQLiteStore) TerminalTripsOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	const query = `SELECT id FROM trips
WHERE status IN ('LANDED', 'ARRIVED', 'COMPLETED', 'CANCELLED') AND updated_at < ?`

	rows, err := s.db.QueryContext(ctx, query, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("querying terminal trips: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteNotificationsForTrips removes notification-log rows for the given
// trips and returns the number of rows deleted.
func (s *SQLiteStore) DeleteNotificationsForTrips(ctx context.Context, tripIDs []string) (int64, error) {
	return s.deleteForTrips(ctx, "notifications_log", tripIDs)
}

// DeleteSnapshotsForTrips removes flight-status snapshot rows for the given
// trips and returns the number of rows deleted.
func (s *SQLiteStore) DeleteSnapshotsForTrips(ctx context.Context, tripIDs []string) (int64, error) {
	return s.deleteForTrips(ctx, "flight_status_snapshots", tripIDs)
}

func (s *SQLiteStore) deleteForTrips(ctx context.Context, table string, tripIDs []string) (int64, error) {
	if len(tripIDs) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(tripIDs))
	args := make([]interface{}, len(tripIDs))
	for i, id := range tripIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE trip_id IN (%s)", table, strings.Join(placeholders, ","))
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting from %s: %w", table, err)
	}
	return result.RowsAffected()
}

// DatabaseSizeBytes returns the current size of the database in bytes.
func (s *SQLiteStore) DatabaseSizeBytes(ctx context.Context) (int64, error) {
	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0, fmt.Errorf("page_count: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, fmt.Errorf("page_size: %w", err)
	}
	return pageCount * pageSize, nil
}

// RunIncrementalVacuum triggers an incremental vacuum to reclaim unused pages.
func (s *SQLiteStore) RunIncrementalVacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "PRAGMA incremental_vacuum")
	if err != nil {
		return fmt.Errorf("incremental vacuum: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

func formatNullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func formatNullableTimePtr(t *time.Time) sql.NullString {
	return formatNullableTime(t)
}

func parseNullableTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
