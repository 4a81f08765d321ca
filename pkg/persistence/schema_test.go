package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeAnalyticsSchemaIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)

	require.NoError(t, InitializeAnalyticsSchema(ctx, db, DialectSQLite))
	require.NoError(t, InitializeAnalyticsSchema(ctx, db, DialectSQLite))

	v, err := GetSchemaVersion(ctx, db, DialectSQLite, StoreAnalytics)
	require.NoError(t, err)
	assert.Equal(t, AnalyticsSchemaVersion, v)

	for _, table := range []string{"fighters", "fights", "titles"} {
		ok, err := hasTable(ctx, db, DialectSQLite, table)
		require.NoError(t, err)
		assert.True(t, ok, table)
	}
}

func TestStoresShareDatabase(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)

	require.NoError(t, InitializeHistorySchema(ctx, db, DialectSQLite))
	v, err := GetSchemaVersion(ctx, db, DialectSQLite, StoreAnalytics)
	require.NoError(t, err)
	assert.Equal(t, 0, v, "history tables do not count as an analytics store")

	require.NoError(t, InitializeAnalyticsSchema(ctx, db, DialectSQLite))
	v, err = GetSchemaVersion(ctx, db, DialectSQLite, StoreHistory)
	require.NoError(t, err)
	assert.Equal(t, HistorySchemaVersion, v)
}

func TestLegacyAnalyticsDatabaseIsMigrated(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)

	for _, stmt := range []string{
		`CREATE TABLE fighters (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL UNIQUE,
			nickname TEXT, nationality TEXT, weight_class TEXT, record_wins INTEGER DEFAULT 0,
			record_losses INTEGER DEFAULT 0, record_draws INTEGER DEFAULT 0, ko_percentage REAL DEFAULT 0.0,
			reach INTEGER, height INTEGER, stance TEXT, birth_date TEXT, debut_date TEXT,
			active BOOLEAN DEFAULT TRUE, age INTEGER, description TEXT)`,
		`CREATE TABLE fights (id INTEGER PRIMARY KEY AUTOINCREMENT, date TEXT NOT NULL,
			fighter1_id INTEGER NOT NULL, fighter2_id INTEGER NOT NULL, winner_id INTEGER, method TEXT,
			round INTEGER, time TEXT, title_fight BOOLEAN DEFAULT FALSE, weight_class TEXT,
			location TEXT, status TEXT)`,
		`CREATE TABLE titles (id INTEGER PRIMARY KEY AUTOINCREMENT, fighter_id INTEGER NOT NULL,
			title_name TEXT NOT NULL, won_date TEXT NOT NULL, lost_date TEXT, defenses_count INTEGER DEFAULT 0)`,
	} {
		_, err := db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}

	v, err := GetSchemaVersion(ctx, db, DialectSQLite, StoreAnalytics)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	require.NoError(t, InitializeAnalyticsSchema(ctx, db, DialectSQLite))

	has, err := hasColumn(ctx, db, DialectSQLite, "titles", "organization")
	require.NoError(t, err)
	assert.True(t, has)

	v, err = GetSchemaVersion(ctx, db, DialectSQLite, StoreAnalytics)
	require.NoError(t, err)
	assert.Equal(t, AnalyticsSchemaVersion, v)
}

func TestNewerSchemaIsRejected(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)

	require.NoError(t, InitializeHistorySchema(ctx, db, DialectSQLite))
	require.NoError(t, setSchemaVersion(ctx, db, DialectSQLite, StoreHistory, HistorySchemaVersion+1))

	err := InitializeHistorySchema(ctx, db, DialectSQLite)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestPostgresDDLUsesSerial(t *testing.T) {
	stmt := "CREATE TABLE t (id " + pkColumn + ")"
	assert.Equal(t, "CREATE TABLE t (id SERIAL PRIMARY KEY)", DialectPostgres.ddl(stmt))
	assert.Equal(t, "CREATE TABLE t (id INTEGER PRIMARY KEY AUTOINCREMENT)", DialectSQLite.ddl(stmt))
}
