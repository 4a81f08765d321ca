package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"
)

// Fight results as seen from one fighter's corner.
const (
	ResultWin  = "Win"
	ResultLoss = "Loss"
	ResultDraw = "Draw"
)

type fighterRow struct {
	Nickname    sql.NullString
	Nationality sql.NullString
	WeightClass sql.NullString
	Stance      sql.NullString
	BirthDate   sql.NullString
	DebutDate   sql.NullString
	Reach       sql.NullInt64
	Height      sql.NullInt64
	Name        string
	ID          int64
	Wins        int
	Losses      int
	Draws       int
	KO          float64
	Active      bool
}

// bout is one fight from a single fighter's perspective.
type bout struct {
	Date         string
	Method       string
	Opponent     string
	Result       string
	Round        int
	OpponentWins int
	TitleFight   bool
}

func (b bout) stoppage() bool {
	return b.Result == ResultWin && (b.Method == "KO" || b.Method == "TKO" || b.Method == "RTD")
}

const fighterColumns = `id, name, nickname, nationality, weight_class, record_wins, record_losses, record_draws,
	ko_percentage, reach, height, stance, birth_date, debut_date, active`

func scanFighter(row interface{ Scan(...any) error }) (*fighterRow, error) {
	var f fighterRow
	var active sql.NullBool
	var ko sql.NullFloat64
	err := row.Scan(&f.ID, &f.Name, &f.Nickname, &f.Nationality, &f.WeightClass,
		&f.Wins, &f.Losses, &f.Draws, &ko, &f.Reach, &f.Height, &f.Stance,
		&f.BirthDate, &f.DebutDate, &active)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers add context
	}
	f.KO = ko.Float64
	f.Active = !active.Valid || active.Bool
	return &f, nil
}

// findFighter resolves a partial, case-insensitive name. An exact match wins, then the most wins.
// It returns nil when nothing matches.
func (p *Provider) findFighter(ctx context.Context, name string) (*fighterRow, error) {
	row := p.db.QueryRowContext(ctx, p.dialect.Rebind(`
		SELECT `+fighterColumns+`
		FROM fighters
		WHERE LOWER(name) LIKE LOWER(?)
		ORDER BY CASE WHEN LOWER(name) = LOWER(?) THEN 0 ELSE 1 END, record_wins DESC
		LIMIT 1`), "%"+name+"%", name)
	f, err := scanFighter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up fighter %q: %w", name, err)
	}
	return f, nil
}

// bouts returns a fighter's fights with the given status, oldest first.
func (p *Provider) bouts(ctx context.Context, fighterID int64, status string) ([]bout, error) {
	rows, err := p.db.QueryContext(ctx, p.dialect.Rebind(`
		SELECT f.date, f.method, f.round, f.title_fight,
			CASE WHEN f.winner_id = ? THEN 'Win' WHEN f.winner_id IS NULL THEN 'Draw' ELSE 'Loss' END,
			CASE WHEN f.fighter1_id = ? THEN o2.name ELSE o1.name END,
			CASE WHEN f.fighter1_id = ? THEN o2.record_wins ELSE o1.record_wins END
		FROM fights f
		LEFT JOIN fighters o1 ON f.fighter1_id = o1.id
		LEFT JOIN fighters o2 ON f.fighter2_id = o2.id
		WHERE (f.fighter1_id = ? OR f.fighter2_id = ?) AND f.status = ?
		ORDER BY f.date ASC, f.id ASC`),
		fighterID, fighterID, fighterID, fighterID, fighterID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query fights: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []bout
	for rows.Next() {
		var (
			b                bout
			method, opponent sql.NullString
			round, oppWins   sql.NullInt64
			title            sql.NullBool
		)
		if err := rows.Scan(&b.Date, &method, &round, &title, &b.Result, &opponent, &oppWins); err != nil {
			return nil, fmt.Errorf("failed to scan fight: %w", err)
		}
		b.Method = method.String
		b.Round = int(round.Int64)
		b.TitleFight = title.Bool
		b.Opponent = opponent.String
		b.OpponentWins = int(oppWins.Int64)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate fights: %w", err)
	}
	return out, nil
}

// TitleReign is one championship held by a fighter.
type TitleReign struct {
	Organization  *string `json:"organization,omitempty"`
	LostDate      *string `json:"lost_date"`
	TitleName     string  `json:"title_name"`
	WonDate       string  `json:"won_date"`
	DefensesCount int     `json:"defenses_count"`
}

func (p *Provider) titles(ctx context.Context, fighterID int64, newestFirst bool) ([]TitleReign, error) {
	order := "ASC"
	if newestFirst {
		order = "DESC"
	}
	rows, err := p.db.QueryContext(ctx, p.dialect.Rebind(`
		SELECT title_name, organization, won_date, lost_date, defenses_count
		FROM titles WHERE fighter_id = ? ORDER BY won_date `+order), fighterID)
	if err != nil {
		return nil, fmt.Errorf("failed to query titles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []TitleReign{}
	for rows.Next() {
		var (
			t         TitleReign
			org, lost sql.NullString
			defenses  sql.NullInt64
		)
		if err := rows.Scan(&t.TitleName, &org, &t.WonDate, &lost, &defenses); err != nil {
			return nil, fmt.Errorf("failed to scan title: %w", err)
		}
		t.Organization = nullable(org)
		t.LostDate = nullable(lost)
		t.DefensesCount = int(defenses.Int64)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate titles: %w", err)
	}
	return out, nil
}

func nullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func nullableInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func formatRecord(wins, losses, draws int) string {
	return fmt.Sprintf("%d-%d-%d", wins, losses, draws)
}

// parseCareerDate accepts YYYY-MM-DD or a bare year.
func parseCareerDate(s string) (time.Time, bool) {
	if len(s) == 4 {
		t, err := time.Parse("2006", s)
		return t, err == nil
	}
	t, err := time.Parse(time.DateOnly, s)
	return t, err == nil
}

// wholeYears counts 365-day years between two instants.
func wholeYears(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24 / 365)
}

func round1(x float64) float64 { return math.Round(x*10) / 10 }

func round2(x float64) float64 { return math.Round(x*100) / 100 }

func notFound(name string) map[string]any {
	return map[string]any{"error": fmt.Sprintf("Fighter '%s' not found", name)}
}
