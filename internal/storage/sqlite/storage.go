package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/yegors/co-gcs/pkg/logger"
	_ "modernc.org/sqlite"
)

// Import logger functions
var (
	String = logger.String
	Int    = logger.Int
	Error  = logger.Error
)

// Storage is the SQLite store for calibration tables and the vehicle event log
type Storage struct {
	db     *sql.DB
	logger *logger.Logger
}

// New opens (or creates) the database at dbPath
func New(dbPath string, log *logger.Logger) (*Storage, error) {
	storageLogger := log.Named("sqlite")

	storageLogger.Info("Initializing SQLite storage",
		logger.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool limits
	db.SetMaxOpenConns(1) // SQLite only supports one writer at a time
	db.SetMaxIdleConns(1)

	pragmas := []struct {
		stmt string
		what string
	}{
		{"PRAGMA journal_mode=WAL", "journal mode"},
		{"PRAGMA synchronous=NORMAL", "synchronous mode"},
		{"PRAGMA busy_timeout=5000", "busy timeout"},
		{"PRAGMA foreign_keys=ON", "foreign keys"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set %s: %w", p.what, err)
		}
	}

	if err := initDatabase(db, storageLogger); err != nil {
		db.Close()
		return nil, err
	}

	return &Storage{db: db, logger: storageLogger}, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// initDatabase initializes the database schema
func initDatabase(db *sql.DB, log *logger.Logger) error {
	log.Info("Initializing database schema")

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS input_calibrations (
			device_id TEXT NOT NULL,
			profile TEXT NOT NULL DEFAULT '',
			function TEXT NOT NULL,
			axis INTEGER NOT NULL,
			reversed INTEGER NOT NULL DEFAULT 0,
			min INTEGER NOT NULL,
			max INTEGER NOT NULL,
			trim INTEGER NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (device_id, function)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create input_calibrations table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS vehicle_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			system_id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at INTEGER NOT NULL -- unix milliseconds
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create vehicle_events table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_vehicle_events_system ON vehicle_events(system_id, id)`)
	if err != nil {
		return fmt.Errorf("failed to create vehicle_events index: %w", err)
	}

	return nil
}
