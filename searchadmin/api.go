package searchadmin

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"modernc.org/sqlite/vtab"

	"github.com/viant/searchsync/index"
)

var logger = loggo.GetLogger("searchsync.searchadmin")

// ModuleName is the name the virtual table module is registered under.
const ModuleName = "search_admin"

// Target is the backend surface administered through the table.
type Target interface {
	index.SchemaSource
	Commit(ctx context.Context) error
	DeleteByQuery(ctx context.Context, query string, commit bool) error
	Count(ctx context.Context) (int, error)
	Pending(ctx context.Context) (int, error)
	MatchingFields(ctx context.Context, key string) ([]string, error)
}

// Module implements vtab.Module for search_admin. The driver keeps modules
// in a process-wide registry, so the module resolves its target at query
// time.
type Module struct {
	mu     sync.RWMutex
	target Target
}

var module = &Module{}

// Table is a search_admin table instance.
type Table struct{ module *Module }

// Cursor iterates the rows produced by one operation.
type Cursor struct {
	table *Table
	rows  []string
	pos   int
}

// Register installs the search_admin module and points it at target.
// Calling it again retargets the module. Connections opened before the first
// call do not see the module.
func Register(db *sql.DB, target Target) error {
	if target == nil {
		return errors.NotValidf("nil target")
	}
	module.mu.Lock()
	module.target = target
	module.mu.Unlock()
	if err := vtab.RegisterModule(db, ModuleName, module); err != nil {
		if !strings.Contains(err.Error(), "already registered") {
			return errors.Annotatef(err, "registering %s", ModuleName)
		}
	}
	return nil
}

func (m *Module) current() Target {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.target
}

// Create is part of the vtab.Module interface.
func (m *Module) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.Connect(ctx, args)
}

// Connect is part of the vtab.Module interface.
func (m *Module) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("%s: need at least 3 args", ModuleName)
	}
	if err := ctx.Declare(fmt.Sprintf("CREATE TABLE %s(op)", args[2])); err != nil {
		return nil, err
	}
	return &Table{module: m}, nil
}

// BestIndex is part of the vtab.Table interface. Only op MATCH is usable.
func (t *Table) BestIndex(info *vtab.IndexInfo) error {
	for i := range info.Constraints {
		c := &info.Constraints[i]
		if !c.Usable {
			continue
		}
		if c.Column == 0 && c.Op == vtab.OpMATCH {
			c.ArgIndex = 1
			info.IdxNum = 1
			break
		}
	}
	return nil
}

func (t *Table) Open() (vtab.Cursor, error) { return &Cursor{table: t}, nil }
func (t *Table) Disconnect() error          { return nil }
func (t *Table) Destroy() error             { return nil }

// Filter runs the requested operation and buffers its output rows.
func (c *Cursor) Filter(idxNum int, _ string, vals []vtab.Value) error {
	c.rows = nil
	c.pos = 0
	if idxNum != 1 || len(vals) == 0 || vals[0] == nil {
		return nil
	}
	op, ok := vals[0].(string)
	if !ok {
		return fmt.Errorf("%s: MATCH expects an operation name as TEXT", ModuleName)
	}
	rows, err := Run(context.Background(), c.table.module.current(), op)
	if err != nil {
		logger.Errorf("%s %q failed: %v", ModuleName, op, err)
		return err
	}
	c.rows = rows
	return nil
}

func (c *Cursor) Next() error {
	if c.pos < len(c.rows) {
		c.pos++
	}
	return nil
}

func (c *Cursor) Eof() bool { return c.pos >= len(c.rows) }

func (c *Cursor) Column(col int) (vtab.Value, error) {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return nil, fmt.Errorf("%s: column out of range", ModuleName)
	}
	if col == 0 {
		return c.rows[c.pos], nil
	}
	return nil, nil
}

func (c *Cursor) Rowid() (int64, error) { return int64(c.pos + 1), nil }

func (c *Cursor) Close() error {
	c.rows = nil
	c.pos = 0
	return nil
}

// Run executes one admin operation against target and returns its result
// rows.
func Run(ctx context.Context, target Target, op string) ([]string, error) {
	if target == nil {
		return nil, errors.NotValidf("nil target")
	}
	name, arg, _ := strings.Cut(strings.TrimSpace(op), ":")
	switch strings.ToLower(name) {
	case "commit":
		pending, err := target.Pending(ctx)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if err := target.Commit(ctx); err != nil {
			return nil, errors.Trace(err)
		}
		return []string{fmt.Sprintf("committed:%d", pending)}, nil
	case "wipe":
		n, err := target.Count(ctx)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if err := target.DeleteByQuery(ctx, index.MatchAll, true); err != nil {
			return nil, errors.Trace(err)
		}
		logger.Infof("wiped %d documents", n)
		return []string{fmt.Sprintf("wiped:%d", n)}, nil
	case "count":
		n, err := target.Count(ctx)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return []string{fmt.Sprintf("count:%d", n)}, nil
	case "fields":
		desc, err := target.Read(ctx)
		if err != nil {
			return nil, errors.Trace(err)
		}
		var rows []string
		for name := range desc.Fields {
			rows = append(rows, name)
		}
		for name := range desc.DynamicFields {
			rows = append(rows, name)
		}
		sort.Strings(rows)
		return rows, nil
	case "match":
		if arg == "" {
			return nil, errors.NotValidf("%s match without a field", ModuleName)
		}
		rows, err := target.MatchingFields(ctx, arg)
		return rows, errors.Trace(err)
	}
	return nil, errors.NotSupportedf("%s operation %q", ModuleName, op)
}

// Exec creates the search_admin table on db if needed and runs op through
// it. db must be opened after Register.
func Exec(ctx context.Context, db *sql.DB, op string) ([]string, error) {
	if _, err := db.ExecContext(ctx, `CREATE VIRTUAL TABLE IF NOT EXISTS search_admin USING search_admin(op)`); err != nil {
		return nil, errors.Annotatef(err, "creating %s table", ModuleName)
	}
	rows, err := db.QueryContext(ctx, `SELECT op FROM search_admin WHERE op MATCH ?`, op)
	if err != nil {
		return nil, errors.Annotatef(err, "running %s %q", ModuleName, op)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Trace(err)
		}
		out = append(out, v)
	}
	return out, errors.Trace(rows.Err())
}
