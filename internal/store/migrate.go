package store

import (
	"context"
	"database/sql"
	"fmt"
)

// migration is one additive schema step. Steps run in order, each in its own
// transaction, and are recorded in schema_version.
type migration struct {
	version int
	name    string
	apply   func(ctx context.Context, tx *sql.Tx) error
}

// column is a reports column declared by the current schema.
type column struct {
	name string
	typ  string
}

var migrations = []migration{
	{version: 1, name: "create reports", apply: func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS reports (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp TEXT,
    grid_voltage REAL,
    grid_frequency REAL,
    cooling_temp REAL,
    cooling_humidity INTEGER,
    file_integrity INTEGER,
    error_count INTEGER,
    cpu_usage INTEGER,
    memory_usage INTEGER,
    network_traffic REAL,
    network_traffic_breach INTEGER,
    firewall_alerts INTEGER,
    status TEXT,
    report_text TEXT
)`)
		return err
	}},
	{version: 2, name: "add feedback", apply: addColumn(column{"feedback", "TEXT"})},
	{version: 3, name: "add profile", apply: addColumn(column{"profile", "TEXT"})},
	{version: 4, name: "index status", apply: func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status)`)
		return err
	}},
}

// declared lists every column the current schema expects beyond those created
// in version 1.
var declared = []column{
	{"feedback", "TEXT"},
	{"profile", "TEXT"},
}

// EnsureSchema applies pending migrations and then adds any declared column
// the table still lacks. Running it again is a no-op.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return wrap("create schema_version", err)
	}

	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.runMigration(ctx, m); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("reconcile columns", err)
	}
	defer tx.Rollback()
	for _, c := range declared {
		if err := addColumn(c)(ctx, tx); err != nil {
			return wrap("reconcile columns", err)
		}
	}
	return wrap("reconcile columns", tx.Commit())
}

// SchemaVersion returns the highest applied migration, 0 for a fresh file.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&v)
	if err != nil {
		return 0, wrap("read schema_version", err)
	}
	return v, nil
}

func (s *Store) runMigration(ctx context.Context, m migration) error {
	op := fmt.Sprintf("migration %d (%s)", m.version, m.name)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap(op, err)
	}
	defer tx.Rollback()

	if err := m.apply(ctx, tx); err != nil {
		return wrap(op, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, m.version); err != nil {
		return wrap(op, err)
	}
	return wrap(op, tx.Commit())
}

// addColumn returns a step that adds c to reports unless it already exists,
// which is the case for databases written by older builds.
func addColumn(c column) func(ctx context.Context, tx *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		have, err := columns(ctx, tx)
		if err != nil {
			return err
		}
		if have[c.name] {
			return nil
		}
		_, err = tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE reports ADD COLUMN %s %s`, c.name, c.typ))
		return err
	}
}

func columns(ctx context.Context, tx *sql.Tx) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, `PRAGMA table_info(reports)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}
