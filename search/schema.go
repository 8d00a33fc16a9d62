package search

import (
	"context"
	"database/sql"
)

const (
	docsTable    = "search_docs"
	pendingTable = "search_pending"
	fieldsTable  = "search_fields"
)

const ddl = `
CREATE TABLE IF NOT EXISTS search_docs (
    id         TEXT PRIMARY KEY,
    body       TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS search_pending (
    seq    INTEGER PRIMARY KEY AUTOINCREMENT,
    op     TEXT NOT NULL,
    doc_id TEXT,
    query  TEXT,
    body   TEXT
);
CREATE TABLE IF NOT EXISTS search_fields (
    name         TEXT PRIMARY KEY,
    dynamic      INTEGER NOT NULL DEFAULT 0,
    type         TEXT NOT NULL DEFAULT 'string',
    multi_valued INTEGER NOT NULL DEFAULT 0
);
`

// Pending operation kinds stored in search_pending.op.
const (
	opUpsert      = "upsert"
	opDelete      = "delete"
	opDeleteQuery = "delete_query"
)

// EnsureSchema creates the document, pending-write and field tables if they
// do not already exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, ddl)
	return err
}
