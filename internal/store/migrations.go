package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS rft_observations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    well TEXT NOT NULL,
    ensemble TEXT NOT NULL,
    real INTEGER NOT NULL DEFAULT 0,
    date TEXT NOT NULL,
    zone TEXT NOT NULL,
    obs REAL,
    simulated REAL,
    stddev REAL,
    diff REAL,
    active INTEGER NOT NULL DEFAULT 1,
    east REAL,
    north REAL,
    year REAL
);

CREATE INDEX IF NOT EXISTS idx_rft_well ON rft_observations(well);
CREATE INDEX IF NOT EXISTS idx_rft_ensemble ON rft_observations(ensemble);

CREATE TABLE IF NOT EXISTS fault_lines (
    poly_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    x REAL NOT NULL,
    y REAL NOT NULL,
    PRIMARY KEY (poly_id, seq)
);

CREATE TABLE IF NOT EXISTS surfaces (
    name TEXT PRIMARY KEY,
    location TEXT NOT NULL,
    unit TEXT NOT NULL DEFAULT '',
    colormap TEXT NOT NULL DEFAULT '',
    min_value REAL,
    max_value REAL,
    created_at DATETIME NOT NULL
);
`,
	},
	{
		Version:     2,
		Description: "Add import_runs table for import auditing",
		SQL: `
CREATE TABLE IF NOT EXISTS import_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    kind TEXT NOT NULL,
    location TEXT NOT NULL,
    size_bytes INTEGER,
    records_parsed INTEGER,
    records_stored INTEGER,
    skipped BOOLEAN NOT NULL DEFAULT FALSE,
    success BOOLEAN NOT NULL DEFAULT FALSE,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_import_runs_started ON import_runs(started_at);
`,
	},
	{
		Version:     3,
		Description: "Add raw_payloads table for imported source files",
		SQL: `
CREATE TABLE IF NOT EXISTS raw_payloads (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    import_run_id INTEGER REFERENCES import_runs(id),
    fetched_at DATETIME NOT NULL,
    kind TEXT NOT NULL,
    location TEXT NOT NULL,
    payload_compressed BLOB NOT NULL,
    payload_hash TEXT NOT NULL,
    UNIQUE(kind, payload_hash)
);

CREATE INDEX IF NOT EXISTS idx_raw_payloads_location ON raw_payloads(kind, location, fetched_at);
`,
	},
	{
		Version:     4,
		Description: "Add well zonation and pressure profiles",
		SQL: `
ALTER TABLE rft_observations ADD COLUMN tvd REAL;
ALTER TABLE rft_observations ADD COLUMN obs_err REAL;

CREATE TABLE IF NOT EXISTS formations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    well TEXT NOT NULL,
    zone TEXT NOT NULL,
    top_tvd REAL NOT NULL,
    base_tvd REAL
);

CREATE INDEX IF NOT EXISTS idx_formations_well ON formations(well);

CREATE TABLE IF NOT EXISTS observed_pressures (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    well TEXT NOT NULL,
    date TEXT NOT NULL,
    depth REAL NOT NULL,
    pressure REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_observed_pressures_well ON observed_pressures(well, date);

CREATE TABLE IF NOT EXISTS simulated_pressures (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    well TEXT NOT NULL,
    date TEXT NOT NULL,
    ensemble TEXT NOT NULL,
    real INTEGER NOT NULL DEFAULT 0,
    depth REAL NOT NULL,
    pressure REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_simulated_pressures_well ON simulated_pressures(well, date);
`,
	},
}

// Migrate applies every migration that has not been recorded in
// schema_migrations, each in its own transaction.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.ensureMigrationsTable(ctx); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		s.log.Info("applying migration", zap.Int("version", m.Version), zap.String("description", m.Description))

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func (s *Store) ensureMigrationsTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations(ctx context.Context) (map[int]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
