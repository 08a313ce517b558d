// Package migrate applies the embedded, versioned schema migrations that
// shape the analysis database.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Runner tracks and applies schema migrations on one database connection.
type Runner struct{ db *sql.DB }

// NewRunner creates a migration runner for the given database connection.
func NewRunner(db *sql.DB) *Runner {
	return &Runner{db: db}
}

type migration struct {
	version int
	name    string
	sql     string
}

// loadAll reads every embedded NNN_name.sql file, ordered by version.
func loadAll() ([]migration, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("reading embedded migrations: %w", err)
	}

	var all []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(e.Name(), "_")
		if !ok {
			continue
		}
		ver, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("parsing version from %s: %w", e.Name(), err)
		}
		data, err := migrationFS.ReadFile("migrations/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		all = append(all, migration{version: ver, name: e.Name(), sql: string(data)})
	}

	sort.Slice(all, func(i, j int) bool { return all[i].version < all[j].version })
	return all, nil
}

func (r *Runner) ensureVersionTable() error {
	_, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       VARCHAR NOT NULL,
		applied_at TIMESTAMP DEFAULT current_timestamp
	)`)
	return err
}

func (r *Runner) currentVersion() (int, error) {
	var v sql.NullInt64
	if err := r.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&v); err != nil {
		return 0, err
	}
	if !v.Valid {
		return 0, nil
	}
	return int(v.Int64), nil
}

// pending returns the migrations above the currently applied version.
func (r *Runner) pending() ([]migration, error) {
	if err := r.ensureVersionTable(); err != nil {
		return nil, fmt.Errorf("creating schema_migrations: %w", err)
	}

	current, err := r.currentVersion()
	if err != nil {
		return nil, fmt.Errorf("reading applied version: %w", err)
	}

	all, err := loadAll()
	if err != nil {
		return nil, err
	}

	var out []migration
	for _, m := range all {
		if m.version > current {
			out = append(out, m)
		}
	}
	return out, nil
}

// Run applies all pending migrations in version order, each in its own
// transaction, recording the version as it goes.
func (r *Runner) Run() error {
	todo, err := r.pending()
	if err != nil {
		return err
	}

	for _, m := range todo {
		if err := r.apply(m); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) apply(m migration) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx for %s: %w", m.name, err)
	}
	if _, err := tx.Exec(m.sql); err != nil {
		tx.Rollback()
		return fmt.Errorf("executing %s: %w", m.name, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.version, m.name); err != nil {
		tx.Rollback()
		return fmt.Errorf("recording %s: %w", m.name, err)
	}
	return tx.Commit()
}

// Status reports the applied schema version and how many migrations remain.
func (r *Runner) Status() (current int, pending int, err error) {
	todo, err := r.pending()
	if err != nil {
		return 0, 0, err
	}
	current, err = r.currentVersion()
	if err != nil {
		return 0, 0, fmt.Errorf("reading applied version: %w", err)
	}
	return current, len(todo), nil
}
