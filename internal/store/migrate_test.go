package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestMigrateNewDB(t *testing.T) {
	db := openTestDB(t)

	version, err := sqliteDialect.getVersion(context.Background(), db.conn)
	if err != nil {
		t.Fatalf("getVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d, got %d", latestVersion(), version)
	}
}

func TestMigrateFromVersionOne(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "v1.db")

	// Simulate a database that only has the first migration applied.
	raw, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := raw.Exec(migrations[0].SQLite); err != nil {
		t.Fatalf("apply v1: %v", err)
	}
	if _, err := raw.Exec("PRAGMA user_version = 1"); err != nil {
		t.Fatalf("stamp v1: %v", err)
	}
	raw.Close()

	db, err := OpenSQLite(ctx, dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	version, err := sqliteDialect.getVersion(ctx, db.conn)
	if err != nil {
		t.Fatalf("getVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d after upgrade, got %d", latestVersion(), version)
	}

	var count int
	if err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name='idx_documents_owner'",
	).Scan(&count); err != nil {
		t.Fatalf("checking index: %v", err)
	}
	if count != 1 {
		t.Error("expected owner index to be created by migration 2")
	}
}

func TestMigrateIdempotent(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "idem.db")

	db1, err := OpenSQLite(ctx, dbPath)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	db1.Close()

	db2, err := OpenSQLite(ctx, dbPath)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer db2.Close()

	version, err := sqliteDialect.getVersion(ctx, db2.conn)
	if err != nil {
		t.Fatalf("getVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d, got %d", latestVersion(), version)
	}
}

func TestGetSchemaVersionNewDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	version, err := sqliteDialect.getVersion(context.Background(), conn)
	if err != nil {
		t.Fatalf("getVersion: %v", err)
	}
	if version != 0 {
		t.Errorf("expected version 0 on new db, got %d", version)
	}
}

func TestMigrationDDLPerDialect(t *testing.T) {
	for _, m := range migrations {
		if m.ddl(sqliteDialect) == "" || m.ddl(postgresDialect) == "" {
			t.Errorf("migration %d missing DDL for a dialect", m.Version)
		}
	}
}
