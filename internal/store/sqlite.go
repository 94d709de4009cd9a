package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// IsProcessed reports whether the message already has a terminal
// outcome. ERROR rows do not count: those messages are retried.
func (s *SQLiteStore) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	if messageID == "" {
		return false, nil
	}

	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM processed_messages WHERE message_id = ? AND outcome != ?",
		messageID, OutcomeError,
	)
	if err != nil {
		return false, fmt.Errorf("checking processed message: %w", err)
	}
	return count > 0, nil
}

// RecordOutcome inserts or replaces the ledger row for a message.
func (s *SQLiteStore) RecordOutcome(ctx context.Context, m ProcessedMessage) error {
	if err := s.upsertProcessed(ctx, s.db, m); err != nil {
		return fmt.Errorf("recording outcome: %w", err)
	}
	return nil
}

// RecordRegistration writes the ledger row and the registration record
// atomically. A failure leaves neither behind.
func (s *SQLiteStore) RecordRegistration(ctx context.Context, m ProcessedMessage, r RegistrationRecord) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.upsertProcessed(ctx, tx, m); err != nil {
		return fmt.Errorf("recording registration: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO registrations (registration_number, registered_on, sender, subject, pdf_path)
		VALUES (?, ?, ?, ?, ?)`,
		r.Number, r.RegisteredOn, r.Sender, r.Subject, r.PDFPath,
	)
	if err != nil {
		return fmt.Errorf("recording registration %d: %w", r.Number, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing registration: %w", err)
	}
	return nil
}

// LastRegisteredNumber returns the highest registration number on
// record, or 0 when nothing was registered yet.
func (s *SQLiteStore) LastRegisteredNumber(ctx context.Context) (int, error) {
	var last int
	err := s.db.GetContext(ctx, &last,
		"SELECT COALESCE(MAX(registration_number), 0) FROM registrations",
	)
	if err != nil {
		return 0, fmt.Errorf("reading last registration number: %w", err)
	}
	return last, nil
}

func (s *SQLiteStore) upsertProcessed(ctx context.Context, db sqlx.ExecerContext, m ProcessedMessage) error {
	_, err := db.ExecContext(ctx, `
		INSERT OR REPLACE INTO processed_messages (
			id, message_id, uid, sender, subject, outcome, registration_number, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.MessageID, m.UID, m.Sender, m.Subject, m.Outcome,
		m.RegistrationNumber, m.ProcessedAt.UTC(),
	)
	return err
}
