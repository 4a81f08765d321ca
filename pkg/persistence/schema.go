package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Schema versions. Each store tracks its own row in schema_version.
const (
	AnalyticsSchemaVersion = 2
	HistorySchemaVersion   = 1
)

// Store names recorded in schema_version.
const (
	StoreAnalytics = "analytics"
	StoreHistory   = "history"
)

// pkColumn is replaced with the dialect's auto-increment primary key.
const pkColumn = "{{pk}}"

func (d Dialect) ddl(stmt string) string {
	pk := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if d == DialectPostgres {
		pk = "SERIAL PRIMARY KEY"
	}
	return strings.ReplaceAll(stmt, pkColumn, pk)
}

// InitializeAnalyticsSchema creates or migrates the fighters/fights/titles schema.
// It is idempotent.
func InitializeAnalyticsSchema(ctx context.Context, db *sql.DB, d Dialect) error {
	return ensureSchema(ctx, db, d, StoreAnalytics, AnalyticsSchemaVersion, createAnalyticsSchema, migrateAnalytics)
}

// InitializeHistorySchema creates the run history tables.
func InitializeHistorySchema(ctx context.Context, db *sql.DB, d Dialect) error {
	return ensureSchema(ctx, db, d, StoreHistory, HistorySchemaVersion, createHistorySchema, nil)
}

type migrateFunc func(ctx context.Context, db *sql.DB, d Dialect, version int) error

func ensureSchema(
	ctx context.Context,
	db *sql.DB,
	d Dialect,
	store string,
	target int,
	create func(context.Context, *sql.DB, Dialect) error,
	migrate migrateFunc,
) error {
	current, err := GetSchemaVersion(ctx, db, d, store)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}
	switch {
	case current == 0:
		if err := create(ctx, db, d); err != nil {
			return err
		}
		return setSchemaVersion(ctx, db, d, store, target)
	case current == target:
		return nil
	case current > target:
		return fmt.Errorf("database schema version %d is newer than supported version %d", current, target)
	}
	for version := current + 1; version <= target; version++ {
		if migrate == nil {
			return fmt.Errorf("no migration to version %d", version)
		}
		if err := migrate(ctx, db, d, version); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", version, err)
		}
		if err := setSchemaVersion(ctx, db, d, store, version); err != nil {
			return fmt.Errorf("failed to update schema version to %d: %w", version, err)
		}
	}
	return nil
}

func execAll(ctx context.Context, db *sql.DB, d Dialect, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, d.ddl(stmt)); err != nil {
			return fmt.Errorf("failed to execute %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func createAnalyticsSchema(ctx context.Context, db *sql.DB, d Dialect) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS fighters (
			id ` + pkColumn + `,
			name TEXT NOT NULL UNIQUE,
			nickname TEXT,
			nationality TEXT,
			weight_class TEXT,
			record_wins INTEGER DEFAULT 0,
			record_losses INTEGER DEFAULT 0,
			record_draws INTEGER DEFAULT 0,
			ko_percentage REAL DEFAULT 0.0,
			reach INTEGER,
			height INTEGER,
			stance TEXT,
			birth_date TEXT,
			debut_date TEXT,
			active BOOLEAN DEFAULT TRUE,
			age INTEGER,
			description TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS fights (
			id ` + pkColumn + `,
			date TEXT NOT NULL,
			fighter1_id INTEGER NOT NULL REFERENCES fighters(id),
			fighter2_id INTEGER NOT NULL REFERENCES fighters(id),
			winner_id INTEGER REFERENCES fighters(id),
			method TEXT,
			round INTEGER,
			time TEXT,
			title_fight BOOLEAN DEFAULT FALSE,
			weight_class TEXT,
			location TEXT,
			status TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS titles (
			id ` + pkColumn + `,
			fighter_id INTEGER NOT NULL REFERENCES fighters(id),
			title_name TEXT NOT NULL,
			organization TEXT,
			won_date TEXT NOT NULL,
			lost_date TEXT,
			defenses_count INTEGER DEFAULT 0
		)`,
	}
	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_fighters_name ON fighters(name)",
		"CREATE INDEX IF NOT EXISTS idx_fighters_weight_class ON fighters(weight_class)",
		"CREATE INDEX IF NOT EXISTS idx_fights_date ON fights(date)",
		"CREATE INDEX IF NOT EXISTS idx_fights_fighter1 ON fights(fighter1_id)",
		"CREATE INDEX IF NOT EXISTS idx_fights_fighter2 ON fights(fighter2_id)",
		"CREATE INDEX IF NOT EXISTS idx_titles_fighter ON titles(fighter_id)",
	}
	if err := execAll(ctx, db, d, tables); err != nil {
		return fmt.Errorf("failed to create analytics tables: %w", err)
	}
	if err := execAll(ctx, db, d, indices); err != nil {
		return fmt.Errorf("failed to create analytics indices: %w", err)
	}
	return nil
}

// migrateAnalytics upgrades databases created before schema versioning, which may lack
// titles.organization and the per-fighter fight indices.
func migrateAnalytics(ctx context.Context, db *sql.DB, d Dialect, version int) error {
	switch version {
	case 2:
		exists, err := hasColumn(ctx, db, d, "titles", "organization")
		if err != nil {
			return err
		}
		stmts := []string{
			"CREATE INDEX IF NOT EXISTS idx_fights_fighter1 ON fights(fighter1_id)",
			"CREATE INDEX IF NOT EXISTS idx_fights_fighter2 ON fights(fighter2_id)",
			"CREATE INDEX IF NOT EXISTS idx_titles_fighter ON titles(fighter_id)",
		}
		if !exists {
			stmts = append([]string{"ALTER TABLE titles ADD COLUMN organization TEXT"}, stmts...)
		}
		return execAll(ctx, db, d, stmts)
	default:
		return fmt.Errorf("unknown analytics migration version: %d", version)
	}
}

func createHistorySchema(ctx context.Context, db *sql.DB, d Dialect) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			query TEXT NOT NULL,
			answer TEXT,
			error TEXT,
			error_kind TEXT,
			iterations INTEGER NOT NULL DEFAULT 0,
			elapsed_ms BIGINT NOT NULL DEFAULT 0,
			model TEXT,
			transcript TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS run_tool_calls (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			tool_name TEXT NOT NULL,
			provider_name TEXT,
			outcome TEXT NOT NULL,
			duration_ms REAL NOT NULL,
			PRIMARY KEY (run_id, seq)
		)`,
		"CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at)",
		"CREATE INDEX IF NOT EXISTS idx_run_tool_calls_tool ON run_tool_calls(tool_name)",
	}
	if err := execAll(ctx, db, d, stmts); err != nil {
		return fmt.Errorf("failed to create history tables: %w", err)
	}
	return nil
}

func setSchemaVersion(ctx context.Context, db *sql.DB, d Dialect, store string, version int) error {
	if _, err := db.ExecContext(ctx, d.Rebind("DELETE FROM schema_version WHERE store = ?"), store); err != nil {
		return fmt.Errorf("database exec error: %w", err)
	}
	if _, err := db.ExecContext(ctx,
		d.Rebind("INSERT INTO schema_version (store, version) VALUES (?, ?)"), store, version); err != nil {
		return fmt.Errorf("database exec error: %w", err)
	}
	return nil
}

// GetSchemaVersion returns the recorded version of a store, or 0 for a fresh database.
// An analytics database with a fighters table but no version row predates versioning and reports 1.
func GetSchemaVersion(ctx context.Context, db *sql.DB, d Dialect, store string) (int, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		store TEXT PRIMARY KEY,
		version INTEGER NOT NULL
	)`); err != nil {
		return 0, fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err := db.QueryRowContext(ctx, d.Rebind("SELECT version FROM schema_version WHERE store = ?"), store).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if store != StoreAnalytics {
			return 0, nil
		}
		legacy, lerr := hasTable(ctx, db, d, "fighters")
		if lerr != nil {
			return 0, lerr
		}
		if legacy {
			return 1, nil
		}
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("schema version scan error: %w", err)
	}
	return version, nil
}

func hasTable(ctx context.Context, db *sql.DB, d Dialect, name string) (bool, error) {
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	if d == DialectPostgres {
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?"
	}
	var n int
	if err := db.QueryRowContext(ctx, d.Rebind(query), name).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to inspect tables: %w", err)
	}
	return n > 0, nil
}

func hasColumn(ctx context.Context, db *sql.DB, d Dialect, table, column string) (bool, error) {
	query := "SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?"
	if d == DialectPostgres {
		query = "SELECT COUNT(*) FROM information_schema.columns WHERE table_name = ? AND column_name = ?"
	}
	var n int
	if err := db.QueryRowContext(ctx, d.Rebind(query), table, column).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to inspect %s columns: %w", table, err)
	}
	return n > 0, nil
}
