package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

// migrate brings the database schema up to the latest version.
func migrate(ctx context.Context, conn *sql.DB, d dialect) error {
	current, err := d.getVersion(ctx, conn)
	if err != nil {
		return err
	}

	latest := latestVersion()
	if current >= latest {
		return nil
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		log.Printf("applying migration %d: %s", m.Version, m.Description)

		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.ExecContext(ctx, m.ddl(d)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		// If we crash here, the idempotent DDL lets the migration re-run.
		if err := d.setVersion(ctx, conn, m.Version); err != nil {
			return fmt.Errorf("setting version %d: %w", m.Version, err)
		}
	}

	return nil
}
