package migrate

import (
	"database/sql"
	"testing"

	_ "github.com/marcboeker/go-duckdb"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunCreatesAnalysisSchema(t *testing.T) {
	db := openTestDB(t)

	if err := NewRunner(db).Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, table := range []string{"block_rows", "schema_migrations"} {
		var name string
		if err := db.QueryRow("SELECT table_name FROM information_schema.tables WHERE table_name = ?", table).Scan(&name); err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}

	var recorded string
	if err := db.QueryRow("SELECT name FROM schema_migrations WHERE version = 1").Scan(&recorded); err != nil {
		t.Fatalf("reading recorded migration: %v", err)
	}
	if recorded != "001_block_rows.sql" {
		t.Errorf("recorded migration = %q, want 001_block_rows.sql", recorded)
	}
}

func TestStatusAcrossRuns(t *testing.T) {
	db := openTestDB(t)
	r := NewRunner(db)

	cur, pending, err := r.Status()
	if err != nil {
		t.Fatalf("Status before run: %v", err)
	}
	if cur != 0 || pending != 1 {
		t.Errorf("before run: version=%d pending=%d, want 0/1", cur, pending)
	}

	// Running twice must not re-apply anything.
	for i := 0; i < 2; i++ {
		if err := r.Run(); err != nil {
			t.Fatalf("Run %d: %v", i+1, err)
		}
	}

	cur, pending, err = r.Status()
	if err != nil {
		t.Fatalf("Status after run: %v", err)
	}
	if cur != 1 || pending != 0 {
		t.Errorf("after run: version=%d pending=%d, want 1/0", cur, pending)
	}

	var applied int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied); err != nil {
		t.Fatalf("counting applied migrations: %v", err)
	}
	if applied != 1 {
		t.Errorf("applied migrations = %d, want 1", applied)
	}
}
