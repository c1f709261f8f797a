package sqlitemigrate

import (
	"database/sql"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func openMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func countMigrations(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(1) FROM schema_migrations").Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	return n
}

func TestApplyMigrationsRequiresDB(t *testing.T) {
	if err := ApplyMigrations(nil, fstest.MapFS{}, ""); err == nil {
		t.Fatal("expected error for nil db")
	}
}

func TestApplyMigrationsRunsInOrder(t *testing.T) {
	db := openMemoryDB(t)
	migrations := fstest.MapFS{
		"0002_alter.sql":  &fstest.MapFile{Data: []byte("ALTER TABLE items ADD COLUMN label TEXT;")},
		"0001_create.sql": &fstest.MapFile{Data: []byte("CREATE TABLE items (id TEXT PRIMARY KEY);")},
	}

	if err := ApplyMigrations(db, migrations, ""); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if got := countMigrations(t, db); got != 2 {
		t.Fatalf("expected 2 recorded migrations, got %d", got)
	}
	if _, err := db.Exec("INSERT INTO items (id, label) VALUES ('a', 'b')"); err != nil {
		t.Fatalf("expected both migrations applied: %v", err)
	}
}

func TestApplyMigrationsSkipsApplied(t *testing.T) {
	db := openMemoryDB(t)
	migrations := fstest.MapFS{
		"0001_create.sql": &fstest.MapFile{Data: []byte("CREATE TABLE items (id TEXT PRIMARY KEY);")},
	}

	if err := ApplyMigrations(db, migrations, ""); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	// A re-run must not re-execute the script (CREATE TABLE would fail).
	if err := ApplyMigrations(db, migrations, ""); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if got := countMigrations(t, db); got != 1 {
		t.Fatalf("expected 1 recorded migration, got %d", got)
	}
}

func TestApplyMigrationsDoesNotRecordFailure(t *testing.T) {
	db := openMemoryDB(t)
	migrations := fstest.MapFS{
		"0001_bad.sql": &fstest.MapFile{Data: []byte("THIS IS NOT SQL;")},
	}

	if err := ApplyMigrations(db, migrations, ""); err == nil {
		t.Fatal("expected error for invalid migration")
	}
	if got := countMigrations(t, db); got != 0 {
		t.Fatalf("expected no recorded migrations, got %d", got)
	}
}

func TestApplyMigrationsRespectsRoot(t *testing.T) {
	db := openMemoryDB(t)
	migrations := fstest.MapFS{
		"core/0001_create.sql": &fstest.MapFile{Data: []byte("CREATE TABLE items (id TEXT PRIMARY KEY);")},
		"other/0001_other.sql": &fstest.MapFile{Data: []byte("CREATE TABLE ignored (id TEXT PRIMARY KEY);")},
	}

	if err := ApplyMigrations(db, migrations, "core"); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	var name string
	if err := db.QueryRow("SELECT name FROM schema_migrations").Scan(&name); err != nil {
		t.Fatalf("read recorded migration: %v", err)
	}
	if name != "core/0001_create.sql" {
		t.Fatalf("expected root-prefixed key, got %q", name)
	}
	if _, err := db.Exec("INSERT INTO ignored (id) VALUES ('a')"); err == nil {
		t.Fatal("expected table outside root to be absent")
	}
}
