package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// dialect isolates the SQL differences between the supported drivers.
type dialect struct {
	name string
	// jsonText returns an expression extracting a top-level string field
	// from the body column. field must already be validated.
	jsonText func(field string) string
	rebind   func(query string) string
	// unique reports whether err is a unique-constraint violation.
	unique     func(err error) bool
	getVersion func(ctx context.Context, conn *sql.DB) (int, error)
	setVersion func(ctx context.Context, conn *sql.DB, version int) error
}

var sqliteDialect = dialect{
	name: "sqlite",
	jsonText: func(field string) string {
		return fmt.Sprintf("json_extract(body, '$.%s')", field)
	},
	rebind: func(q string) string { return q },
	unique: func(err error) bool {
		var se *sqlite.Error
		if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return true
		}
		return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
	},
	getVersion: func(ctx context.Context, conn *sql.DB) (int, error) {
		var version int
		if err := conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
			return 0, fmt.Errorf("reading schema version: %w", err)
		}
		return version, nil
	},
	setVersion: func(ctx context.Context, conn *sql.DB, version int) error {
		// Set user_version outside the transaction (modernc/sqlite requirement).
		_, err := conn.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version))
		return err
	},
}

var postgresDialect = dialect{
	name: "postgres",
	jsonText: func(field string) string {
		return fmt.Sprintf("(body::jsonb ->> '%s')", field)
	},
	rebind: rebindDollar,
	unique: func(err error) bool {
		var pgErr *pgconn.PgError
		return errors.As(err, &pgErr) && pgErr.Code == "23505"
	},
	getVersion: func(ctx context.Context, conn *sql.DB) (int, error) {
		if _, err := conn.ExecContext(ctx,
			`CREATE TABLE IF NOT EXISTS store_meta (key TEXT PRIMARY KEY, value INTEGER NOT NULL)`,
		); err != nil {
			return 0, fmt.Errorf("ensuring store_meta: %w", err)
		}
		var version int
		err := conn.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = 'schema_version'`).Scan(&version)
		if err == sql.ErrNoRows {
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("reading schema version: %w", err)
		}
		return version, nil
	},
	setVersion: func(ctx context.Context, conn *sql.DB, version int) error {
		_, err := conn.ExecContext(ctx,
			`INSERT INTO store_meta (key, value) VALUES ('schema_version', $1)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, version,
		)
		return err
	},
}

// rebindDollar rewrites ? placeholders to $1, $2, ...
func rebindDollar(q string) string {
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
