// Package querycache maintains the SQLite projection of the event log. It is
// a disposable read model: one row per live entity, filter/sort/search and
// pagination support, fully reconstructible by replaying the log from empty.
// It is never the source of truth.
package querycache

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Cache is the queryable projection of the event log.
type Cache struct {
	db *sql.DB
}

// Open creates or opens the projection database at path. WAL mode keeps
// reads concurrent with the single writer; busy_timeout absorbs transient
// lock contention.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open query cache: %w", err)
	}
	// SQLite allows one writer at a time; a single pooled connection avoids
	// SQLITE_BUSY between the reconciler and the adapter.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect query cache: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Cache{db: db}, nil
}

// Close releases the database handle.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// DB exposes the underlying handle for callers that need raw queries.
func (c *Cache) DB() *sql.DB {
	return c.db
}

// Reset drops all projected rows and the applied-event index, returning the
// cache to its empty state ahead of a full replay.
func (c *Cache) Reset() error {
	tables := []string{
		"applied_events", "workspaces", "sessions", "states",
		"traces", "conversations", "messages",
	}
	for _, table := range tables {
		if _, err := c.db.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < schemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}
