package engine

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register pure-Go SQLite driver
)

// DefaultBusyTimeout is how long a connection waits on a locked database.
const DefaultBusyTimeout = 5 * time.Second

// Open opens a SQLite database using the modernc.org/sqlite driver.
//
// For file-based databases, pass a path like "./db.sqlite". For in-memory
// databases, pass ":memory:"; the pool is then capped at one connection
// because every new connection would see its own empty database.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// OpenFile opens a file database with WAL journaling and a busy timeout set
// on every pooled connection.
func OpenFile(path string, busyTimeout time.Duration) (*sql.DB, error) {
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, busyTimeout.Milliseconds())
	return sql.Open("sqlite", dsn)
}
