package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS processed_messages (
	id                  TEXT PRIMARY KEY,
	message_id          TEXT NOT NULL UNIQUE,
	uid                 INTEGER NOT NULL DEFAULT 0,
	sender              TEXT NOT NULL DEFAULT '',
	subject             TEXT NOT NULL DEFAULT '',
	outcome             TEXT NOT NULL,
	registration_number INTEGER,
	processed_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS registrations (
	registration_number INTEGER PRIMARY KEY,
	registered_on       TEXT NOT NULL,
	sender              TEXT NOT NULL DEFAULT '',
	subject             TEXT NOT NULL DEFAULT '',
	pdf_path            TEXT NOT NULL DEFAULT '',
	created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_processed_outcome ON processed_messages(outcome);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
