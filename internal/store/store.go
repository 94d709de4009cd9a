package store

import (
	"context"
	"database/sql"
	"time"
)

// Outcome values recorded for a processed message.
const (
	OutcomeRegistered = "REGISTERED"
	OutcomeDownloaded = "DOWNLOADED"
	OutcomeSkipped    = "SKIPPED"
	OutcomeError      = "ERROR"
)

// ProcessedMessage is the ledger row for one handled mail message.
type ProcessedMessage struct {
	ID        string `db:"id"`
	MessageID string `db:"message_id"`
	UID       uint32 `db:"uid"`
	Sender    string `db:"sender"`
	Subject   string `db:"subject"`
	Outcome   string `db:"outcome"`

	// RegistrationNumber is set only for registered messages.
	RegistrationNumber sql.NullInt64 `db:"registration_number"`

	ProcessedAt time.Time `db:"processed_at"`
}

// RegistrationRecord mirrors one journal row, plus the path of the
// registered dossier.
type RegistrationRecord struct {
	Number       int    `db:"registration_number"`
	RegisteredOn string `db:"registered_on"` // DD.MM.YYYY
	Sender       string `db:"sender"`
	Subject      string `db:"subject"`
	PDFPath      string `db:"pdf_path"`
}

// Store is the persistence interface of the processing ledger.
type Store interface {
	// IsProcessed reports whether a message id was already handled with
	// a terminal outcome. Messages that ended in ERROR are not terminal
	// and will be offered again.
	IsProcessed(ctx context.Context, messageID string) (bool, error)

	// RecordOutcome inserts or replaces the ledger row for a message.
	RecordOutcome(ctx context.Context, m ProcessedMessage) error

	// RecordRegistration writes the ledger row and the registration
	// record in one transaction.
	RecordRegistration(ctx context.Context, m ProcessedMessage, r RegistrationRecord) error

	// LastRegisteredNumber returns the highest registration number on
	// record, or 0 when nothing was registered yet.
	LastRegisteredNumber(ctx context.Context) (int, error)

	Close() error
}
