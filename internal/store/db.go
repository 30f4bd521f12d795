// Package store is the relational layer: a sqlite-backed DB handle, bootstrap
// DDL, and one repository per dataset, each built on the same chunked
// Upsert/BulkInsertIgnore core.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure Go driver, no cgo
)

// DB wraps the sqlite connection pool.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates the database directory if needed, opens the connection in
// WAL mode with foreign keys on, and verifies it is reachable.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)

	return &DB{conn: conn, path: dbPath}, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Bootstrap creates every table if it does not already exist. This is not
// migration tooling: no versioning, no up/down steps, no history table.
// Just the minimal DDL a fresh store needs.
func (db *DB) Bootstrap() error {
	for _, stmt := range schemaStatements {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
	}
	return nil
}
