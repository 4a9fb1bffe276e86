package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"
)

var _ Store = (*DB)(nil)

// DB is a document store backed by SQLite or Postgres.
type DB struct {
	ops
	conn *sql.DB
	path string
}

// Open opens a store for the named driver. For sqlite target is a file
// path, for postgres a DSN.
func Open(ctx context.Context, driver, target string) (*DB, error) {
	switch driver {
	case "sqlite", "":
		return OpenSQLite(ctx, target)
	case "postgres":
		return OpenPostgres(ctx, target)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// OpenSQLite creates or opens a SQLite database at the given path.
func OpenSQLite(ctx context.Context, dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps PRAGMAs in effect and serialises writers.
	conn.SetMaxOpenConns(1)

	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return finishOpen(ctx, conn, sqliteDialect, dbPath)
}

// OpenPostgres connects to Postgres through the pgx database/sql driver.
func OpenPostgres(ctx context.Context, dsn string) (*DB, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	conn.SetMaxOpenConns(25)
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return finishOpen(ctx, conn, postgresDialect, "")
}

func finishOpen(ctx context.Context, conn *sql.DB, d dialect, path string) (*DB, error) {
	if err := migrate(ctx, conn, d); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &DB{ops: ops{q: conn, d: d}, conn: conn, path: path}, nil
}

// RunInTx runs fn inside one transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (db *DB) RunInTx(ctx context.Context, fn func(Ops) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ops{q: tx, d: db.d}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Patch merges fields into a document in its own transaction so the
// read-modify-write is not interleaved with other writers.
func (db *DB) Patch(ctx context.Context, collection, id string, fields map[string]any) error {
	return db.RunInTx(ctx, func(tx Ops) error {
		return tx.Patch(ctx, collection, id, fields)
	})
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path, empty for Postgres.
func (db *DB) Path() string {
	return db.path
}

// Driver returns the dialect name.
func (db *DB) Driver() string {
	return db.d.name
}

// Stats counts documents per collection.
func (db *DB) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT collection, COUNT(*) FROM documents GROUP BY collection")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var coll string
		var n int
		if err := rows.Scan(&coll, &n); err != nil {
			return nil, err
		}
		stats[coll] = n
	}
	return stats, rows.Err()
}
