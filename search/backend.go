package search

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/viant/searchsync/index"
	"github.com/viant/searchsync/internal/docpath"
	"github.com/viant/searchsync/schema"
)

var logger = loggo.GetLogger("searchsync.search")

// DefaultUniqueKey is the field holding each document's key.
const DefaultUniqueKey = "_id"

// Options configures a Backend.
type Options struct {
	// UniqueKey names the field that keys documents. Defaults to "_id".
	UniqueKey string

	// Strict rejects documents carrying fields the schema does not declare,
	// as long as the schema declares any field at all.
	Strict bool
}

// Backend is a SQLite search index. Writes are staged until committed;
// queries only see committed documents.
type Backend struct {
	db   *sql.DB
	opts Options

	mu   sync.RWMutex
	snap *schema.Snapshot
}

// New creates a Backend on db, creating its tables if needed.
func New(ctx context.Context, db *sql.DB, opts Options) (*Backend, error) {
	if db == nil {
		return nil, errors.NotValidf("nil db")
	}
	if opts.UniqueKey == "" {
		opts.UniqueKey = DefaultUniqueKey
	}
	if err := EnsureSchema(ctx, db); err != nil {
		return nil, unavailable(err, "creating schema")
	}
	b := &Backend{db: db, opts: opts}
	if err := b.reloadSchema(ctx); err != nil {
		return nil, errors.Trace(err)
	}
	return b, nil
}

// UniqueKey returns the field keying documents.
func (b *Backend) UniqueKey() string { return b.opts.UniqueKey }

// DefineField declares an exact field.
func (b *Backend) DefineField(ctx context.Context, name string, info index.FieldInfo) error {
	if err := validateField(name); err != nil {
		return errors.Trace(err)
	}
	return b.define(ctx, name, false, info)
}

// DefineDynamicField declares a wildcard field pattern such as "cs_*".
func (b *Backend) DefineDynamicField(ctx context.Context, pattern string, info index.FieldInfo) error {
	if err := schema.ValidatePattern(pattern); err != nil {
		return errors.Trace(err)
	}
	return b.define(ctx, pattern, true, info)
}

func (b *Backend) define(ctx context.Context, name string, dynamic bool, info index.FieldInfo) error {
	typ := info.Type
	if typ == "" {
		typ = "string"
	}
	_, err := b.db.ExecContext(ctx, `
INSERT INTO search_fields(name, dynamic, type, multi_valued)
VALUES (?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
  dynamic = excluded.dynamic,
  type = excluded.type,
  multi_valued = excluded.multi_valued`, name, dynamic, typ, info.MultiValued)
	if err != nil {
		return unavailable(err, "defining field %q", name)
	}
	return errors.Trace(b.reloadSchema(ctx))
}

// Read is part of the index.SchemaSource interface.
func (b *Backend) Read(ctx context.Context) (*index.SchemaDescription, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT name, dynamic, type, multi_valued FROM search_fields ORDER BY name`)
	if err != nil {
		return nil, unavailable(err, "reading fields")
	}
	defer rows.Close()
	desc := &index.SchemaDescription{
		Fields:        map[string]index.FieldInfo{},
		DynamicFields: map[string]index.FieldInfo{},
	}
	for rows.Next() {
		var name string
		var dynamic bool
		var info index.FieldInfo
		if err := rows.Scan(&name, &dynamic, &info.Type, &info.MultiValued); err != nil {
			return nil, errors.WithType(errors.Annotate(err, "scanning field"), index.ValueFormat)
		}
		if dynamic {
			desc.DynamicFields[name] = info
		} else {
			desc.Fields[name] = info
		}
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err, "reading fields")
	}
	return desc, nil
}

// MatchingFields returns the declared fields and patterns that admit key.
// It calls search_field_match, so engine.RegisterSearchFunctions must run
// before the database is opened.
func (b *Backend) MatchingFields(ctx context.Context, key string) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT name FROM search_fields WHERE search_field_match(name, ?) = 1 ORDER BY name`, key)
	if err != nil {
		return nil, unavailable(err, "matching fields for %q", key)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.WithType(errors.Annotate(err, "scanning field"), index.ValueFormat)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err, "matching fields for %q", key)
	}
	return names, nil
}

func (b *Backend) reloadSchema(ctx context.Context) error {
	snap, err := schema.Build(ctx, b)
	if err != nil {
		return errors.Trace(err)
	}
	b.mu.Lock()
	b.snap = snap
	b.mu.Unlock()
	return nil
}

// BulkUpsert is part of the index.Backend interface. The whole batch is
// rejected when any document is invalid.
func (b *Backend) BulkUpsert(ctx context.Context, docs []index.Document, commit bool) error {
	if len(docs) == 0 {
		return nil
	}
	type encoded struct {
		id   string
		body []byte
	}
	batch := make([]encoded, 0, len(docs))
	for i, d := range docs {
		id, body, err := b.encode(d)
		if err != nil {
			return errors.WithType(errors.Annotatef(err, "document %d", i), index.BackendRejected)
		}
		batch = append(batch, encoded{id: id, body: body})
	}
	return b.write(ctx, commit, func(tx *sql.Tx) error {
		for _, e := range batch {
			if err := stage(ctx, tx, commit, opUpsert, e.id, "", e.body); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Backend) encode(doc index.Document) (string, []byte, error) {
	id := docpath.ID(doc[b.opts.UniqueKey])
	if id == "" {
		return "", nil, errors.Errorf("missing mandatory uniqueKey field %q", b.opts.UniqueKey)
	}
	if b.opts.Strict {
		b.mu.RLock()
		snap := b.snap
		b.mu.RUnlock()
		for k := range doc {
			if !snap.Allows(k) {
				return "", nil, errors.Errorf("unknown field %q", k)
			}
		}
	}
	body, err := EncodeDocument(doc)
	if err != nil {
		return "", nil, errors.Trace(err)
	}
	return id, body, nil
}

// DeleteByID is part of the index.Backend interface.
func (b *Backend) DeleteByID(ctx context.Context, id string, commit bool) error {
	if id == "" {
		return errors.WithType(errors.New("empty id"), index.BackendRejected)
	}
	return b.write(ctx, commit, func(tx *sql.Tx) error {
		return stage(ctx, tx, commit, opDelete, id, "", nil)
	})
}

// DeleteByQuery is part of the index.Backend interface.
func (b *Backend) DeleteByQuery(ctx context.Context, query string, commit bool) error {
	if _, err := parseQuery(query); err != nil {
		return errors.WithType(err, index.BackendRejected)
	}
	return b.write(ctx, commit, func(tx *sql.Tx) error {
		return stage(ctx, tx, commit, opDeleteQuery, "", query, nil)
	})
}

// Commit is part of the index.Backend interface.
func (b *Backend) Commit(ctx context.Context) error {
	return b.write(ctx, true, func(*sql.Tx) error { return nil })
}

// write runs fn in a transaction. With commit set, pending writes are
// applied first so the ones staged by fn keep their order.
func (b *Backend) write(ctx context.Context, commit bool, fn func(tx *sql.Tx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()
	if commit {
		n, err := applyPending(ctx, tx)
		if err != nil {
			return errors.Trace(err)
		}
		if n > 0 {
			logger.Debugf("committed %d pending writes", n)
		}
	}
	if err := fn(tx); err != nil {
		if errors.Is(err, index.BackendRejected) {
			return err
		}
		return unavailable(err, "writing")
	}
	if err := tx.Commit(); err != nil {
		return unavailable(err, "committing")
	}
	return nil
}

func stage(ctx context.Context, tx *sql.Tx, direct bool, op, id, query string, body []byte) error {
	if !direct {
		_, err := tx.ExecContext(ctx, `INSERT INTO search_pending(op, doc_id, query, body) VALUES (?, ?, ?, ?)`,
			op, id, query, string(body))
		return err
	}
	return apply(ctx, tx, op, id, query, string(body))
}

func apply(ctx context.Context, tx *sql.Tx, op, id, query, body string) error {
	switch op {
	case opUpsert:
		_, err := tx.ExecContext(ctx, `
INSERT INTO search_docs(id, body, updated_at)
VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(id) DO UPDATE SET
  body = excluded.body,
  updated_at = excluded.updated_at`, id, body)
		return err
	case opDelete:
		_, err := tx.ExecContext(ctx, `DELETE FROM search_docs WHERE id = ?`, id)
		return err
	case opDeleteQuery:
		clauses, err := parseQuery(query)
		if err != nil {
			return errors.WithType(err, index.BackendRejected)
		}
		cond := compile(clauses)
		_, err = tx.ExecContext(ctx, `DELETE FROM search_docs WHERE `+cond.sql, cond.args...)
		return err
	}
	return errors.NotValidf("pending operation %q", op)
}

func applyPending(ctx context.Context, tx *sql.Tx) (int, error) {
	type pending struct {
		seq                 int64
		op, id, query, body string
	}
	rows, err := tx.QueryContext(ctx, `SELECT seq, op, COALESCE(doc_id, ''), COALESCE(query, ''), COALESCE(body, '') FROM search_pending ORDER BY seq`)
	if err != nil {
		return 0, unavailable(err, "reading pending writes")
	}
	var ops []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.seq, &p.op, &p.id, &p.query, &p.body); err != nil {
			rows.Close()
			return 0, unavailable(err, "scanning pending writes")
		}
		ops = append(ops, p)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return 0, unavailable(err, "reading pending writes")
	}
	for _, p := range ops {
		if err := apply(ctx, tx, p.op, p.id, p.query, p.body); err != nil {
			return 0, unavailable(err, "applying pending write %d", p.seq)
		}
	}
	if len(ops) > 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM search_pending`); err != nil {
			return 0, unavailable(err, "clearing pending writes")
		}
	}
	return len(ops), nil
}

// Query is part of the index.Backend interface. Rows <= 0 means no limit.
func (b *Backend) Query(ctx context.Context, req index.QueryRequest) ([]index.Document, error) {
	clauses, err := parseQuery(req.Q)
	if err != nil {
		return nil, errors.WithType(err, index.BackendRejected)
	}
	cond := compile(clauses)
	stmt := "SELECT body FROM " + docsTable + " WHERE " + cond.sql
	args := cond.args
	var order []string
	for _, s := range req.Sort {
		if err := validateField(s.Field); err != nil {
			return nil, errors.WithType(err, index.BackendRejected)
		}
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		order = append(order, "json_extract(body, ?) "+dir)
		args = append(args, jsonPath(s.Field))
	}
	order = append(order, "rowid ASC")
	stmt += " ORDER BY " + strings.Join(order, ", ")
	if req.Rows > 0 {
		stmt += " LIMIT ?"
		args = append(args, req.Rows)
	}

	rows, err := b.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, unavailable(err, "querying %q", req.Q)
	}
	defer rows.Close()
	var out []index.Document
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, errors.WithType(errors.Annotate(err, "scanning document"), index.ValueFormat)
		}
		doc, err := DecodeDocument([]byte(body))
		if err != nil {
			return nil, errors.Trace(err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err, "querying %q", req.Q)
	}
	return out, nil
}

// Count returns the number of committed documents.
func (b *Backend) Count(ctx context.Context) (int, error) {
	var n int
	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+docsTable).Scan(&n); err != nil {
		return 0, unavailable(err, "counting documents")
	}
	return n, nil
}

// Pending returns the number of staged, uncommitted writes.
func (b *Backend) Pending(ctx context.Context) (int, error) {
	var n int
	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+pendingTable).Scan(&n); err != nil {
		return 0, unavailable(err, "counting pending writes")
	}
	return n, nil
}

// unavailable tags err as BackendUnavailable unless it already carries a
// backend error kind.
func unavailable(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	for _, kind := range []errors.ConstError{index.BackendRejected, index.BackendUnavailable, index.ValueFormat} {
		if errors.Is(err, kind) {
			return errors.Annotatef(err, format, args...)
		}
	}
	return errors.WithType(errors.Annotatef(err, format, args...), index.BackendUnavailable)
}

var (
	_ index.Backend      = (*Backend)(nil)
	_ index.SchemaSource = (*Backend)(nil)
)
