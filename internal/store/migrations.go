package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"
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
CREATE TABLE IF NOT EXISTS stations (
    station_id TEXT PRIMARY KEY,
    idx INTEGER NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS station_attributes (
    station_id TEXT NOT NULL,
    name TEXT NOT NULL,
    num_value REAL,
    text_value TEXT,
    PRIMARY KEY (station_id, name)
);

CREATE TABLE IF NOT EXISTS records (
    station_id TEXT NOT NULL,
    observed_at DATETIME NOT NULL,
    power REAL,
    lmd_totalirrad REAL,
    lmd_diffuseirrad REAL,
    lmd_temperature REAL,
    lmd_pressure REAL,
    lmd_winddirection REAL,
    lmd_windspeed REAL,
    nwp_globalirrad REAL,
    nwp_directirrad REAL,
    nwp_temperature REAL,
    nwp_humidity REAL,
    nwp_windspeed REAL,
    nwp_winddirection REAL,
    nwp_pressure REAL,
    PRIMARY KEY (station_id, observed_at)
);
`,
	},
	{
		Version:     2,
		Description: "Clear-sky irradiance tables",
		SQL: `
CREATE TABLE IF NOT EXISTS clearsky_irradiance (
    name TEXT NOT NULL,
    observed_at DATETIME NOT NULL,
    ghi REAL NOT NULL,
    dni REAL NOT NULL,
    dhi REAL NOT NULL,
    PRIMARY KEY (name, observed_at)
);
`,
	},
	{
		Version:     3,
		Description: "Import run auditing and source files",
		SQL: `
CREATE TABLE IF NOT EXISTS import_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    kind TEXT NOT NULL,
    target TEXT NOT NULL,
    records_parsed INTEGER,
    records_stored INTEGER,
    success BOOLEAN DEFAULT FALSE,
    error_message TEXT
);

CREATE TABLE IF NOT EXISTS source_files (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    import_run_id INTEGER,
    imported_at DATETIME NOT NULL,
    name TEXT NOT NULL,
    payload_compressed BLOB NOT NULL,
    payload_hash TEXT NOT NULL UNIQUE
);

CREATE INDEX IF NOT EXISTS idx_source_files_name ON source_files(name);
`,
	},
}

// Migrate applies every migration not yet recorded in schema_migrations.
func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		slog.Info("migrations: applying", "version", m.Version, "description", m.Description)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
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

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
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

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
