package store

// Migration represents a single schema migration step. Each step carries
// the DDL for every dialect; statements must be idempotent.
type Migration struct {
	Version     int
	Description string
	SQLite      string
	Postgres    string
}

func (m Migration) ddl(d dialect) string {
	if d.name == postgresDialect.name {
		return m.Postgres
	}
	return m.SQLite
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "documents table",
		SQLite: `
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    collection TEXT NOT NULL,
    unique_key TEXT,
    body TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection, created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_unique_key ON documents(collection, unique_key);
`,
		Postgres: `
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    collection TEXT NOT NULL,
    unique_key TEXT,
    body TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection, created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_unique_key ON documents(collection, unique_key);
`,
	},
	{
		Version:     2,
		Description: "index owner and idea back-references",
		SQLite: `
CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(collection, json_extract(body, '$.ownerId'));
CREATE INDEX IF NOT EXISTS idx_documents_idea ON documents(collection, json_extract(body, '$.ideaId'));
CREATE INDEX IF NOT EXISTS idx_documents_external ON documents(collection, json_extract(body, '$.externalId'));
`,
		Postgres: `
CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(collection, (body::jsonb ->> 'ownerId'));
CREATE INDEX IF NOT EXISTS idx_documents_idea ON documents(collection, (body::jsonb ->> 'ideaId'));
CREATE INDEX IF NOT EXISTS idx_documents_external ON documents(collection, (body::jsonb ->> 'externalId'));
`,
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
