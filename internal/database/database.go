package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type DB struct {
	*sql.DB
	log *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL plus a busy timeout so concurrent workers don't trip over
	// sqlite's writer lock.
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{DB: db, log: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS appointments (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            workspace_id INTEGER NOT NULL,
            contact_id INTEGER NOT NULL,
            scheduled_at DATETIME NOT NULL,
            duration_minutes INTEGER NOT NULL DEFAULT 30,
            service_type TEXT,
            notes TEXT,
            status TEXT NOT NULL DEFAULT 'scheduled',
            sync_status TEXT NOT NULL DEFAULT 'pending',
            external_provider_id TEXT NOT NULL DEFAULT '',
            external_event_id TEXT NOT NULL DEFAULT '',
            external_event_secondary_id TEXT NOT NULL DEFAULT '',
            sync_error TEXT,
            last_synced_at DATETIME,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS messages (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            workspace_id INTEGER NOT NULL,
            conversation_id INTEGER NOT NULL,
            direction TEXT NOT NULL,
            from_number TEXT NOT NULL,
            to_number TEXT NOT NULL,
            body TEXT NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		// Idempotency ledger for inbound webhooks. The unique index is what
		// makes duplicate delivery a no-op.
		`CREATE TABLE IF NOT EXISTS webhook_events (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            provider TEXT NOT NULL,
            event_type TEXT NOT NULL,
            external_event_id TEXT NOT NULL,
            payload TEXT NOT NULL DEFAULT '',
            processed BOOLEAN NOT NULL DEFAULT 0,
            processed_at DATETIME,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            UNIQUE(provider, external_event_id)
        )`,

		`CREATE TABLE IF NOT EXISTS sync_jobs (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            subject_type TEXT NOT NULL,
            subject_id INTEGER NOT NULL,
            workspace_id INTEGER NOT NULL,
            operation TEXT NOT NULL,
            provider TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            max_retries INTEGER NOT NULL DEFAULT 3,
            scheduled_at DATETIME,
            claimed_at DATETIME,
            processed_at DATETIME,
            error_message TEXT,
            result_id TEXT,
            payload TEXT NOT NULL DEFAULT '{}',
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS integrations (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            workspace_id INTEGER NOT NULL,
            provider TEXT NOT NULL,
            credentials TEXT NOT NULL DEFAULT '{}',
            active BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            UNIQUE(workspace_id, provider)
        )`,

		`CREATE INDEX IF NOT EXISTS idx_appointments_external ON appointments(external_provider_id, external_event_id)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_workspace ON appointments(workspace_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_jobs_due ON sync_jobs(status, scheduled_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_jobs_subject ON sync_jobs(subject_type, subject_id, provider, operation)`,
		`CREATE INDEX IF NOT EXISTS idx_webhook_events_provider ON webhook_events(provider)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}
