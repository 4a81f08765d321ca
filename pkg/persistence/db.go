// Package persistence opens the SQL stores used by boxonomics: the fighter analytics database
// and the run history archive.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver ("pgx")
	_ "modernc.org/sqlite"             // SQLite driver ("sqlite")

	"boxonomics/pkg/config"
	"boxonomics/pkg/logx"
)

// Dialect captures the SQL differences between the supported drivers.
type Dialect string

const (
	// DialectSQLite is the default embedded store.
	DialectSQLite Dialect = config.DriverSQLite
	// DialectPostgres serves the analytics store from PostgreSQL.
	DialectPostgres Dialect = config.DriverPostgres
)

// ParseDialect maps a config driver name to a Dialect. Empty means SQLite.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", config.DriverSQLite, "sqlite3":
		return DialectSQLite, nil
	case config.DriverPostgres, "postgresql", "pgx":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// DriverName returns the database/sql driver registered for d.
func (d Dialect) DriverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

// Rebind rewrites ? placeholders into the dialect's native form.
// Question marks inside single-quoted literals are left alone.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// SQLiteDSN builds a modernc.org/sqlite DSN for a file path.
// Read-only connections are used while serving queries.
func SQLiteDSN(path string, readOnly bool) string {
	params := []string{"_pragma=foreign_keys(1)", "_pragma=busy_timeout(5000)"}
	if readOnly {
		params = append(params, "mode=ro")
	} else {
		params = append(params, "_pragma=journal_mode(WAL)")
	}
	return "file:" + path + "?" + strings.Join(params, "&")
}

// MemoryDSN returns a shared-cache in-memory SQLite DSN. Connections using the same name see the same data.
func MemoryDSN(name string) string {
	return "file:" + name + "?mode=memory&cache=shared&_pragma=foreign_keys(1)"
}

// Open opens and pings a database. SQLite pools are limited to one writer.
func Open(ctx context.Context, d Dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", d, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", d, err)
	}
	if d == DialectSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	logx.NewLogger("persistence").Debug("📦 Opened %s database", d)
	return db, nil
}

// OpenAnalytics opens the analytics store described by cfg. The SQLite store is opened
// read-only unless writable is set (init-db and tests).
func OpenAnalytics(ctx context.Context, cfg config.AnalyticsConfig, writable bool) (*sql.DB, Dialect, error) {
	d, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, "", err
	}
	dsn := cfg.DSN
	if dsn == "" {
		if d == DialectPostgres {
			return nil, "", fmt.Errorf("analytics.dsn is required for the postgres driver")
		}
		path := cfg.Path
		if path == "" {
			path = config.DefaultDBPath
		}
		dsn = SQLiteDSN(path, !writable)
	}
	db, err := Open(ctx, d, dsn)
	if err != nil {
		return nil, "", err
	}
	return db, d, nil
}
