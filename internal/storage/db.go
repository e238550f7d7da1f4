package storage

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// Open opens or creates a SQLite database at the given path
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Single connection so the pragma below applies to every query
	conn.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return nil, err
	}

	// Initialize schema
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, err
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &DB{conn: conn, now: time.Now}, nil
}

// migrate upgrades databases created before nodes.target existed
func migrate(conn *sql.DB) error {
	var n int
	if err := conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info('nodes') WHERE name = 'target'`,
	).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err := conn.Exec(`
		ALTER TABLE nodes ADD COLUMN target TEXT NOT NULL DEFAULT '';
		UPDATE nodes SET target = name;`)
	return err
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Clear removes all saved runs
func (db *DB) Clear() error {
	_, err := db.conn.Exec("DELETE FROM functions; DELETE FROM nodes; DELETE FROM runs;")
	return err
}
