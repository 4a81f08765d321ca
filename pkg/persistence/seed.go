package persistence

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Fight statuses used by the analytics tools.
const (
	StatusFinished   = "FINISHED"
	StatusNotStarted = "NOT_STARTED"
)

//go:embed fixtures/sample.yaml
var sampleFixture []byte

// FighterSeed is one fighter row in a fixture.
type FighterSeed struct {
	Active       *bool   `yaml:"active"`
	Name         string  `yaml:"name"`
	Nickname     string  `yaml:"nickname"`
	Nationality  string  `yaml:"nationality"`
	WeightClass  string  `yaml:"weight_class"`
	Stance       string  `yaml:"stance"`
	BirthDate    string  `yaml:"birth_date"`
	DebutDate    string  `yaml:"debut_date"`
	KOPercentage float64 `yaml:"ko_percentage"`
	Wins         int     `yaml:"wins"`
	Losses       int     `yaml:"losses"`
	Draws        int     `yaml:"draws"`
	Reach        int     `yaml:"reach"`
	Height       int     `yaml:"height"`
}

// FightSeed is one fight. Fighters are referenced by name; an empty Winner is a draw or a future fight.
type FightSeed struct {
	Date        string `yaml:"date"`
	Fighter1    string `yaml:"fighter1"`
	Fighter2    string `yaml:"fighter2"`
	Winner      string `yaml:"winner"`
	Method      string `yaml:"method"`
	Time        string `yaml:"time"`
	WeightClass string `yaml:"weight_class"`
	Location    string `yaml:"location"`
	Status      string `yaml:"status"`
	Round       int    `yaml:"round"`
	TitleFight  bool   `yaml:"title_fight"`
}

// TitleSeed is one championship reign.
type TitleSeed struct {
	Fighter      string `yaml:"fighter"`
	Title        string `yaml:"title"`
	Organization string `yaml:"organization"`
	WonDate      string `yaml:"won_date"`
	LostDate     string `yaml:"lost_date"`
	Defenses     int    `yaml:"defenses"`
}

// Fixture is the YAML seed format accepted by init-db.
type Fixture struct {
	Fighters []FighterSeed `yaml:"fighters"`
	Fights   []FightSeed   `yaml:"fights"`
	Titles   []TitleSeed   `yaml:"titles"`
}

// SeedStats counts rows written by Seed.
type SeedStats struct {
	Fighters int
	Fights   int
	Titles   int
}

// ParseFixture decodes a YAML fixture.
func ParseFixture(data []byte) (*Fixture, error) {
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	return &fx, nil
}

// LoadFixture reads a YAML fixture from disk.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture %s: %w", path, err)
	}
	return ParseFixture(data)
}

// SampleFixture returns the built-in demo data set.
func SampleFixture() *Fixture {
	fx, err := ParseFixture(sampleFixture)
	if err != nil {
		panic(fmt.Sprintf("embedded sample fixture is invalid: %v", err))
	}
	return fx
}

// ResolveDate expands "+Nd" relative dates against now and returns other values unchanged.
func ResolveDate(value string, now time.Time) (string, error) {
	if !strings.HasPrefix(value, "+") || !strings.HasSuffix(value, "d") {
		return value, nil
	}
	days, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(value, "+"), "d"))
	if err != nil {
		return "", fmt.Errorf("invalid relative date %q: %w", value, err)
	}
	return now.AddDate(0, 0, days).Format(time.DateOnly), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}

// Seed writes a fixture into an initialized analytics store in one transaction.
// Fighters are upserted by name, so seeding twice updates rather than duplicates them.
func Seed(ctx context.Context, db *sql.DB, d Dialect, fx *Fixture, now time.Time) (SeedStats, error) {
	var stats SeedStats
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	upsert := d.Rebind(`
		INSERT INTO fighters (
			name, nickname, nationality, weight_class,
			record_wins, record_losses, record_draws, ko_percentage,
			reach, height, stance, birth_date, debut_date, active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			nickname = excluded.nickname,
			nationality = excluded.nationality,
			weight_class = excluded.weight_class,
			record_wins = excluded.record_wins,
			record_losses = excluded.record_losses,
			record_draws = excluded.record_draws,
			ko_percentage = excluded.ko_percentage,
			reach = excluded.reach,
			height = excluded.height,
			stance = excluded.stance,
			birth_date = excluded.birth_date,
			debut_date = excluded.debut_date,
			active = excluded.active`)
	for i := range fx.Fighters {
		f := &fx.Fighters[i]
		if f.Name == "" {
			return stats, fmt.Errorf("fighter %d has no name", i)
		}
		active := f.Active == nil || *f.Active
		if _, err := tx.ExecContext(ctx, upsert,
			f.Name, nullString(f.Nickname), nullString(f.Nationality), nullString(f.WeightClass),
			f.Wins, f.Losses, f.Draws, f.KOPercentage,
			nullInt(f.Reach), nullInt(f.Height), nullString(f.Stance),
			nullString(f.BirthDate), nullString(f.DebutDate), active,
		); err != nil {
			return stats, fmt.Errorf("failed to upsert fighter %s: %w", f.Name, err)
		}
		stats.Fighters++
	}

	ids := make(map[string]int64)
	lookup := func(name string) (int64, error) {
		if id, ok := ids[name]; ok {
			return id, nil
		}
		var id int64
		err := tx.QueryRowContext(ctx, d.Rebind("SELECT id FROM fighters WHERE name = ?"), name).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("unknown fighter %q: %w", name, err)
		}
		ids[name] = id
		return id, nil
	}

	insertFight := d.Rebind(`
		INSERT INTO fights (
			date, fighter1_id, fighter2_id, winner_id, method, round, time,
			title_fight, weight_class, location, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	for i := range fx.Fights {
		f := &fx.Fights[i]
		date, err := ResolveDate(f.Date, now)
		if err != nil {
			return stats, err
		}
		id1, err := lookup(f.Fighter1)
		if err != nil {
			return stats, err
		}
		id2, err := lookup(f.Fighter2)
		if err != nil {
			return stats, err
		}
		var winner sql.NullInt64
		if f.Winner != "" {
			w, err := lookup(f.Winner)
			if err != nil {
				return stats, err
			}
			winner = sql.NullInt64{Int64: w, Valid: true}
		}
		status := f.Status
		if status == "" {
			status = StatusFinished
		}
		if _, err := tx.ExecContext(ctx, insertFight,
			date, id1, id2, winner, nullString(f.Method), nullInt(f.Round), nullString(f.Time),
			f.TitleFight, nullString(f.WeightClass), nullString(f.Location), status,
		); err != nil {
			return stats, fmt.Errorf("failed to insert fight %s vs %s: %w", f.Fighter1, f.Fighter2, err)
		}
		stats.Fights++
	}

	insertTitle := d.Rebind(`
		INSERT INTO titles (fighter_id, title_name, organization, won_date, lost_date, defenses_count)
		VALUES (?, ?, ?, ?, ?, ?)`)
	for i := range fx.Titles {
		t := &fx.Titles[i]
		id, err := lookup(t.Fighter)
		if err != nil {
			return stats, err
		}
		if _, err := tx.ExecContext(ctx, insertTitle,
			id, t.Title, nullString(t.Organization), t.WonDate, nullString(t.LostDate), t.Defenses,
		); err != nil {
			return stats, fmt.Errorf("failed to insert title %s for %s: %w", t.Title, t.Fighter, err)
		}
		stats.Titles++
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("failed to commit seed: %w", err)
	}
	return stats, nil
}
