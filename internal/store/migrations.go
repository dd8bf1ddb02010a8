package store

import (
	"context"
	"database/sql"
	"fmt"
)

// migration is one schema step. New migrations are appended; existing
// entries never change.
type migration struct {
	version     int
	description string
	statements  []string
}

var migrations = []migration{
	{
		version:     1,
		description: "build runs",
		statements: []string{`
			CREATE TABLE IF NOT EXISTS builds (
				id                  TEXT PRIMARY KEY,
				tier                TEXT NOT NULL,
				asof                TEXT NOT NULL,
				baseline_window     TEXT NOT NULL,
				status              TEXT NOT NULL,
				forced              INTEGER NOT NULL DEFAULT 0,
				spc_build_id        TEXT,
				capability_build_id TEXT,
				spc_skipped         INTEGER NOT NULL DEFAULT 0,
				capability_skipped  INTEGER NOT NULL DEFAULT 0,
				limits_rows         INTEGER NOT NULL DEFAULT 0,
				alerts_rows         INTEGER NOT NULL DEFAULT 0,
				capability_rows     INTEGER NOT NULL DEFAULT 0,
				error               TEXT,
				started_at          TEXT NOT NULL,
				finished_at         TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_builds_tier_asof ON builds (tier, asof)`,
		},
	},
	{
		version:     2,
		description: "spc limits and alerts",
		statements: []string{`
			CREATE TABLE IF NOT EXISTS spc_limits (
				tier            TEXT NOT NULL,
				asof            TEXT NOT NULL,
				baseline_window TEXT NOT NULL,
				pos             INTEGER NOT NULL,
				step_key        TEXT NOT NULL,
				n               INTEGER NOT NULL,
				xbar            REAL NOT NULL,
				mrbar           REAL,
				sigma           REAL,
				ucl             REAL,
				lcl             REAL,
				ucl_mr          REAL,
				lcl_mr          REAL NOT NULL,
				PRIMARY KEY (tier, asof, step_key)
			)`, `
			CREATE TABLE IF NOT EXISTS spc_alerts (
				tier        TEXT NOT NULL,
				asof        TEXT NOT NULL,
				pos         INTEGER NOT NULL,
				step_key    TEXT NOT NULL,
				n_points    INTEGER NOT NULL,
				n_alerts    INTEGER NOT NULL,
				n_i3sigma   INTEGER NOT NULL,
				n_mr3sigma  INTEGER NOT NULL,
				first_alert TEXT,
				last_alert  TEXT,
				PRIMARY KEY (tier, asof, step_key)
			)`,
		},
	},
	{
		version:     3,
		description: "capability",
		statements: []string{`
			CREATE TABLE IF NOT EXISTS capability (
				tier             TEXT NOT NULL,
				asof             TEXT NOT NULL,
				baseline_window  TEXT NOT NULL,
				pos              INTEGER NOT NULL,
				step_key         TEXT NOT NULL,
				n                INTEGER NOT NULL,
				n_mr             INTEGER NOT NULL,
				mean             REAL NOT NULL,
				std_overall      REAL,
				mrbar            REAL,
				sigma_within     REAL,
				lsl              REAL NOT NULL,
				usl              REAL NOT NULL,
				tol_span         REAL NOT NULL,
				pp               REAL,
				ppk              REAL,
				cp               REAL,
				cpk              REAL,
				tol_variants_lsl INTEGER NOT NULL,
				tol_variants_usl INTEGER NOT NULL,
				tol_inconsistent INTEGER NOT NULL,
				PRIMARY KEY (tier, asof, step_key)
			)`,
		},
	},
}

// Migrate applies pending migrations, each in its own transaction.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version     INTEGER PRIMARY KEY,
			description TEXT,
			applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		s.logger.InfoContext(ctx, "applying migration", "version", m.version, "description", m.description)

		err := s.inTx(ctx, func(tx *sql.Tx) error {
			for _, stmt := range m.statements {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_version (version, description) VALUES (?, ?)",
				m.version, m.description)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d failed: %w", m.version, err)
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var current int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return current, nil
}
