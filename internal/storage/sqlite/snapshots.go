// Package sqlite persists the movement and booking collections as keyed
// JSON snapshot documents, one row per collection.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rjmurr/movebook/internal/booking"
	"github.com/rjmurr/movebook/internal/movement"
	"github.com/rjmurr/movebook/pkg/logger"
	_ "modernc.org/sqlite"
)

const (
	movementsKey = "movements"
	bookingsKey  = "bookings"
	// Pre-split single-document key, superseded by the two keys above.
	// Dropped only after a successful read-and-rewrite.
	legacyBoardKey = "board"

	movementsSchemaVersion = 1
	bookingsSchemaVersion  = 2
)

// movementsDocument is the persisted movements record
type movementsDocument struct {
	SchemaVersion int                  `json:"schemaVersion"`
	Timestamp     time.Time            `json:"timestamp"`
	Movements     []*movement.Movement `json:"movements"`
}

// bookingsDocument is the persisted bookings record
type bookingsDocument struct {
	SchemaVersion int                `json:"schemaVersion"`
	Timestamp     time.Time          `json:"timestamp"`
	Bookings      []*booking.Booking `json:"bookings"`
}

// SnapshotStore is the SQLite-backed snapshot persistence
type SnapshotStore struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewSnapshotStore opens (or creates) the database at dbPath
func NewSnapshotStore(dbPath string, log *logger.Logger) (*SnapshotStore, error) {
	storageLogger := log.Named("sqlite")

	storageLogger.Info("Initializing SQLite storage", logger.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			key TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			payload TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create snapshots table: %w", err)
	}

	return &SnapshotStore{db: db, logger: storageLogger}, nil
}

// Close closes the database connection
func (s *SnapshotStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetDB returns the database connection
func (s *SnapshotStore) GetDB() *sql.DB {
	return s.db
}

// LoadMovements reads the movements snapshot. A missing record yields an
// empty collection.
func (s *SnapshotStore) LoadMovements() ([]*movement.Movement, error) {
	payload, _, err := s.readSnapshot(movementsKey)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return []*movement.Movement{}, nil
	}

	var doc movementsDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode movements snapshot: %w", err)
	}
	s.logger.Info("Loaded movements snapshot",
		logger.Int("count", len(doc.Movements)),
		logger.Int("schema_version", doc.SchemaVersion))
	return doc.Movements, nil
}

// SaveMovements writes the movements snapshot through
func (s *SnapshotStore) SaveMovements(movements []*movement.Movement) error {
	doc := movementsDocument{
		SchemaVersion: movementsSchemaVersion,
		Timestamp:     time.Now().UTC(),
		Movements:     movements,
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode movements snapshot: %w", err)
	}
	return s.writeSnapshot(movementsKey, movementsSchemaVersion, payload)
}

// LoadBookings reads the bookings snapshot, migrating pre-v2 documents on
// the way in. The migration is deterministic and idempotent: the canonical
// schedule.planned_time_local_hhmm is populated from the legacy alias, the
// document is rewritten at the current version, and only then is the
// superseded board key retired.
func (s *SnapshotStore) LoadBookings() ([]*booking.Booking, error) {
	payload, version, err := s.readSnapshot(bookingsKey)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return []*booking.Booking{}, nil
	}

	var doc bookingsDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode bookings snapshot: %w", err)
	}

	if version < bookingsSchemaVersion {
		migrated := migrateBookingsToV2(doc.Bookings)
		s.logger.Info("Migrated bookings snapshot",
			logger.Int("from_version", version),
			logger.Int("to_version", bookingsSchemaVersion),
			logger.Int("migrated", migrated))
		if err := s.SaveBookings(doc.Bookings); err != nil {
			return nil, fmt.Errorf("failed to rewrite migrated bookings snapshot: %w", err)
		}
		if _, err := s.db.Exec(`DELETE FROM snapshots WHERE key = ?`, legacyBoardKey); err != nil {
			s.logger.Error("Failed to retire legacy board snapshot", logger.Error(err))
		}
	}

	s.logger.Info("Loaded bookings snapshot", logger.Int("count", len(doc.Bookings)))
	return doc.Bookings, nil
}

// migrateBookingsToV2 fills the canonical HHMM field from the legacy alias
// where the canonical one is still empty. Returns how many bookings were
// touched.
func migrateBookingsToV2(bookings []*booking.Booking) int {
	migrated := 0
	for _, b := range bookings {
		if b.Schedule.PlannedTimeLocalHHMM == "" && b.Schedule.PlannedTimeLocal != "" {
			b.Schedule.PlannedTimeLocalHHMM = b.Schedule.PlannedTimeLocal
			migrated++
		}
	}
	return migrated
}

// SaveBookings writes the bookings snapshot through
func (s *SnapshotStore) SaveBookings(bookings []*booking.Booking) error {
	doc := bookingsDocument{
		SchemaVersion: bookingsSchemaVersion,
		Timestamp:     time.Now().UTC(),
		Bookings:      bookings,
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode bookings snapshot: %w", err)
	}
	return s.writeSnapshot(bookingsKey, bookingsSchemaVersion, payload)
}

func (s *SnapshotStore) readSnapshot(key string) ([]byte, int, error) {
	var payload string
	var version int
	err := s.db.QueryRow(
		`SELECT payload, schema_version FROM snapshots WHERE key = ?`, key,
	).Scan(&payload, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read snapshot %q: %w", key, err)
	}
	return []byte(payload), version, nil
}

func (s *SnapshotStore) writeSnapshot(key string, version int, payload []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO snapshots (key, schema_version, updated_at, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			schema_version = excluded.schema_version,
			updated_at = excluded.updated_at,
			payload = excluded.payload
	`, key, version, time.Now().UTC().Format(time.RFC3339), string(payload))
	if err != nil {
		return fmt.Errorf("failed to write snapshot %q: %w", key, err)
	}
	return nil
}
