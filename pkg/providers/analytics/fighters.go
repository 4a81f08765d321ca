package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"boxonomics/pkg/persistence"
	"boxonomics/pkg/tools"
)

// RecordDetails is the numeric breakdown of a professional record.
type RecordDetails struct {
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	Draws        int     `json:"draws"`
	KOPercentage float64 `json:"ko_percentage"`
}

// PhysicalStats are tale-of-the-tape measurements.
type PhysicalStats struct {
	ReachCm  *int   `json:"reach_cm"`
	HeightCm *int   `json:"height_cm"`
	Stance   string `json:"stance,omitempty"`
}

// NotableWin is a victory over an opponent with more than 30 wins.
type NotableWin struct {
	Opponent string `json:"opponent"`
	Date     string `json:"date"`
	Method   string `json:"method,omitempty"`
	Round    int    `json:"round,omitempty"`
}

// FighterStats is the get_fighter_stats result.
type FighterStats struct {
	Age               *int          `json:"age"`
	CareerLengthYears *int          `json:"career_length_years"`
	Name              string        `json:"name"`
	Nickname          string        `json:"nickname,omitempty"`
	Nationality       string        `json:"nationality,omitempty"`
	WeightClass       string        `json:"weight_class,omitempty"`
	Record            string        `json:"record"`
	PhysicalStats     PhysicalStats `json:"physical_stats"`
	Titles            []TitleReign  `json:"titles"`
	NotableWins       []NotableWin  `json:"notable_wins"`
	RecordDetails     RecordDetails `json:"record_details"`
	TotalFights       int           `json:"total_fights"`
	Active            bool          `json:"active"`
}

const notableOpponentWins = 30

func (p *Provider) getFighterStats(ctx context.Context, args map[string]any) (any, error) {
	name, err := tools.RequireString(args, "name")
	if err != nil {
		return nil, err
	}
	stats, err := p.fighterStats(ctx, name)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		return map[string]any{
			"error":      fmt.Sprintf("Fighter '%s' not found", name),
			"suggestion": "Try searching with a different spelling or check available fighters",
		}, nil
	}
	return stats, nil
}

// fighterStats returns nil when the fighter is unknown.
func (p *Provider) fighterStats(ctx context.Context, name string) (*FighterStats, error) {
	f, err := p.findFighter(ctx, name)
	if err != nil || f == nil {
		return nil, err
	}

	titles, err := p.titles(ctx, f.ID, true)
	if err != nil {
		return nil, err
	}
	wins, err := p.notableWins(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	var total int
	if err := p.db.QueryRowContext(ctx, p.dialect.Rebind(
		"SELECT COUNT(*) FROM fights WHERE fighter1_id = ? OR fighter2_id = ?"), f.ID, f.ID).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count fights: %w", err)
	}

	now := p.now()
	stats := &FighterStats{
		Name:        f.Name,
		Nickname:    f.Nickname.String,
		Nationality: f.Nationality.String,
		WeightClass: f.WeightClass.String,
		Record:      formatRecord(f.Wins, f.Losses, f.Draws),
		RecordDetails: RecordDetails{
			Wins:         f.Wins,
			Losses:       f.Losses,
			Draws:        f.Draws,
			KOPercentage: round1(f.KO),
		},
		PhysicalStats: PhysicalStats{
			ReachCm:  nullableInt(f.Reach),
			HeightCm: nullableInt(f.Height),
			Stance:   f.Stance.String,
		},
		Active:      f.Active,
		TotalFights: total,
		Titles:      titles,
		NotableWins: wins,
	}
	if birth, err := time.Parse(time.DateOnly, f.BirthDate.String); err == nil {
		age := wholeYears(birth, now)
		stats.Age = &age
	}
	if debut, ok := parseCareerDate(f.DebutDate.String); ok {
		years := wholeYears(debut, now)
		stats.CareerLengthYears = &years
	}
	return stats, nil
}

func (p *Provider) notableWins(ctx context.Context, fighterID int64) ([]NotableWin, error) {
	rows, err := p.db.QueryContext(ctx, p.dialect.Rebind(`
		SELECT o.name, f.date, f.method, f.round
		FROM fights f
		JOIN fighters o ON o.id = CASE WHEN f.fighter1_id = ? THEN f.fighter2_id ELSE f.fighter1_id END
		WHERE (f.fighter1_id = ? OR f.fighter2_id = ?) AND f.winner_id = ? AND o.record_wins > ?
		ORDER BY f.date DESC
		LIMIT 5`), fighterID, fighterID, fighterID, fighterID, notableOpponentWins)
	if err != nil {
		return nil, fmt.Errorf("failed to query notable wins: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []NotableWin{}
	for rows.Next() {
		var w NotableWin
		var method sql.NullString
		var round sql.NullInt64
		if err := rows.Scan(&w.Opponent, &w.Date, &method, &round); err != nil {
			return nil, fmt.Errorf("failed to scan notable win: %w", err)
		}
		w.Method = method.String
		w.Round = int(round.Int64)
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notable wins: %w", err)
	}
	return out, nil
}

// Comparison is the compare_fighters result.
type Comparison struct {
	Fighter1            string   `json:"fighter1"`
	Fighter2            string   `json:"fighter2"`
	Fighter1Record      string   `json:"fighter1_record"`
	Fighter2Record      string   `json:"fighter2_record"`
	StatisticalFavorite string   `json:"statistical_favorite"`
	Analysis            string   `json:"analysis"`
	Fighter1Advantages  []string `json:"fighter1_advantages"`
	Fighter2Advantages  []string `json:"fighter2_advantages"`
	Confidence          float64  `json:"confidence"`
}

// TooCloseToCall is the favourite reported when neither fighter holds more advantages.
const TooCloseToCall = "Too close to call"

func (p *Provider) compareFighters(ctx context.Context, args map[string]any) (any, error) {
	name1, err := tools.RequireString(args, "fighter1")
	if err != nil {
		return nil, err
	}
	name2, err := tools.RequireString(args, "fighter2")
	if err != nil {
		return nil, err
	}
	s1, err := p.fighterStats(ctx, name1)
	if err != nil {
		return nil, err
	}
	if s1 == nil {
		return notFound(name1), nil
	}
	s2, err := p.fighterStats(ctx, name2)
	if err != nil {
		return nil, err
	}
	if s2 == nil {
		return notFound(name2), nil
	}
	return compareStats(s1, s2), nil
}

func compareStats(s1, s2 *FighterStats) *Comparison {
	adv1, adv2 := []string{}, []string{}
	r1, r2 := s1.RecordDetails, s2.RecordDetails

	switch {
	case r1.KOPercentage > r2.KOPercentage+5:
		adv1 = append(adv1, fmt.Sprintf("Superior knockout power (%.1f%% vs %.1f%%)", r1.KOPercentage, r2.KOPercentage))
	case r2.KOPercentage > r1.KOPercentage+5:
		adv2 = append(adv2, fmt.Sprintf("Superior knockout power (%.1f%% vs %.1f%%)", r2.KOPercentage, r1.KOPercentage))
	}

	switch {
	case r1.Wins > r2.Wins+10:
		adv1 = append(adv1, fmt.Sprintf("More experienced (%d wins vs %d wins)", r1.Wins, r2.Wins))
	case r2.Wins > r1.Wins+10:
		adv2 = append(adv2, fmt.Sprintf("More experienced (%d wins vs %d wins)", r2.Wins, r1.Wins))
	}

	switch {
	case r1.Losses < r2.Losses:
		adv1 = append(adv1, fmt.Sprintf("Better defensive record (%d losses vs %d losses)", r1.Losses, r2.Losses))
	case r2.Losses < r1.Losses:
		adv2 = append(adv2, fmt.Sprintf("Better defensive record (%d losses vs %d losses)", r2.Losses, r1.Losses))
	}

	if s1.PhysicalStats.ReachCm != nil && s2.PhysicalStats.ReachCm != nil {
		reach1, reach2 := *s1.PhysicalStats.ReachCm, *s2.PhysicalStats.ReachCm
		diff := reach1 - reach2
		switch {
		case diff > 5:
			adv1 = append(adv1, fmt.Sprintf("Longer reach (%dcm vs %dcm, +%dcm advantage)", reach1, reach2, diff))
		case diff < -5:
			adv2 = append(adv2, fmt.Sprintf("Longer reach (%dcm vs %dcm, +%dcm advantage)", reach2, reach1, -diff))
		}
	}

	t1, t2 := len(s1.Titles), len(s2.Titles)
	switch {
	case t1 > t2:
		adv1 = append(adv1, fmt.Sprintf("More championship experience (%d titles vs %d titles)", t1, t2))
	case t2 > t1:
		adv2 = append(adv2, fmt.Sprintf("More championship experience (%d titles vs %d titles)", t2, t1))
	}

	score1, score2 := len(adv1), len(adv2)
	favorite, confidence := TooCloseToCall, 0.5
	switch {
	case score1 > score2:
		favorite = s1.Name
		confidence = math.Min(0.7+float64(score1-score2)*0.1, 0.95)
	case score2 > score1:
		favorite = s2.Name
		confidence = math.Min(0.7+float64(score2-score1)*0.1, 0.95)
	}

	return &Comparison{
		Fighter1:            s1.Name,
		Fighter2:            s2.Name,
		Fighter1Record:      s1.Record,
		Fighter2Record:      s2.Record,
		Fighter1Advantages:  adv1,
		Fighter2Advantages:  adv2,
		StatisticalFavorite: favorite,
		Confidence:          round2(confidence),
		Analysis:            fmt.Sprintf("Based on %d key factors analyzed", score1+score2),
	}
}

// FighterSummary is one search_fighters hit.
type FighterSummary struct {
	Name         string  `json:"name"`
	Nickname     string  `json:"nickname,omitempty"`
	Record       string  `json:"record"`
	WeightClass  string  `json:"weight_class,omitempty"`
	Nationality  string  `json:"nationality,omitempty"`
	KOPercentage float64 `json:"ko_percentage"`
	Active       bool    `json:"active"`
}

const searchLimit = 10

func (p *Provider) searchFighters(ctx context.Context, args map[string]any) (any, error) {
	query := tools.StringArg(args, "query", "")
	weightClass := tools.StringArg(args, "weight_class", "")
	activeOnly := tools.BoolArg(args, "active_only", false)

	var (
		where  []string
		params []any
	)
	if query != "" {
		where = append(where, "LOWER(name) LIKE LOWER(?)")
		params = append(params, "%"+query+"%")
	}
	if weightClass != "" {
		where = append(where, "LOWER(weight_class) = LOWER(?)")
		params = append(params, weightClass)
	}
	if activeOnly {
		where = append(where, "active = ?")
		params = append(params, true)
	}
	sqlText := "SELECT " + fighterColumns + " FROM fighters"
	if len(where) > 0 {
		sqlText += " WHERE " + strings.Join(where, " AND ")
	}
	sqlText += " ORDER BY record_wins DESC, name LIMIT ?"
	params = append(params, searchLimit)

	rows, err := p.db.QueryContext(ctx, p.dialect.Rebind(sqlText), params...)
	if err != nil {
		return nil, fmt.Errorf("failed to search fighters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []FighterSummary{}
	for rows.Next() {
		f, err := scanFighter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fighter: %w", err)
		}
		out = append(out, FighterSummary{
			Name:         f.Name,
			Nickname:     f.Nickname.String,
			Record:       formatRecord(f.Wins, f.Losses, f.Draws),
			WeightClass:  f.WeightClass.String,
			Nationality:  f.Nationality.String,
			Active:       f.Active,
			KOPercentage: round1(f.KO),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate fighters: %w", err)
	}
	return out, nil
}

// Milestone is a dated career event.
type Milestone struct {
	Date         string `json:"date"`
	Event        string `json:"event"`
	Significance string `json:"significance"`
}

// CareerSpan bounds a career from debut to the latest finished fight.
type CareerSpan struct {
	DebutDate string  `json:"debut_date"`
	LastFight string  `json:"last_fight"`
	Years     float64 `json:"years"`
}

// YearRecord is one calendar year of results.
type YearRecord struct {
	Year   string `json:"year"`
	Wins   int    `json:"wins"`
	Losses int    `json:"losses"`
	Draws  int    `json:"draws"`
}

// Timeline is the fighter_career_timeline result.
type Timeline struct {
	CareerSpan         *CareerSpan  `json:"career_span"`
	Fighter            string       `json:"fighter"`
	Milestones         []Milestone  `json:"milestones"`
	YearByYear         []YearRecord `json:"year_by_year"`
	TotalFights        int          `json:"total_fights"`
	ChampionshipReigns int          `json:"championship_reigns"`
}

const maxMilestones = 10

func (p *Provider) careerTimeline(ctx context.Context, args map[string]any) (any, error) {
	name, err := tools.RequireString(args, "name")
	if err != nil {
		return nil, err
	}
	f, err := p.findFighter(ctx, name)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return notFound(name), nil
	}
	fights, err := p.bouts(ctx, f.ID, persistence.StatusFinished)
	if err != nil {
		return nil, err
	}
	titles, err := p.titles(ctx, f.ID, false)
	if err != nil {
		return nil, err
	}

	var milestones []Milestone
	debut := f.DebutDate.String
	if debut != "" {
		milestones = append(milestones, Milestone{Date: debut, Event: "Professional Debut", Significance: "Start of professional career"})
	}
	if len(titles) > 0 {
		milestones = append(milestones, Milestone{
			Date:         titles[0].WonDate,
			Event:        "Won " + titles[0].TitleName,
			Significance: "First world championship",
		})
	}
	for _, b := range fights {
		if b.TitleFight && b.Result == ResultWin {
			milestones = append(milestones, Milestone{
				Date:         b.Date,
				Event:        fmt.Sprintf("Defeated %s for title", b.Opponent),
				Significance: fmt.Sprintf("%s victory in round %d", b.Method, b.Round),
			})
		}
	}
	sortMilestones(milestones)
	if len(milestones) > maxMilestones {
		milestones = milestones[:maxMilestones]
	}

	tl := &Timeline{
		Fighter:            f.Name,
		TotalFights:        len(fights),
		Milestones:         milestones,
		YearByYear:         yearByYear(fights),
		ChampionshipReigns: len(titles),
	}
	if tl.Milestones == nil {
		tl.Milestones = []Milestone{}
	}
	if debut != "" && len(fights) > 0 {
		start, ok1 := parseCareerDate(debut)
		last, ok2 := parseCareerDate(fights[len(fights)-1].Date)
		if ok1 && ok2 {
			tl.CareerSpan = &CareerSpan{
				DebutDate: debut,
				LastFight: fights[len(fights)-1].Date,
				Years:     round1(last.Sub(start).Hours() / 24 / 365),
			}
		}
	}
	return tl, nil
}

func sortMilestones(ms []Milestone) {
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].Date < ms[j].Date })
}

func yearByYear(fights []bout) []YearRecord {
	out := []YearRecord{}
	index := map[string]int{}
	for _, b := range fights {
		if len(b.Date) < 4 {
			continue
		}
		year := b.Date[:4]
		i, ok := index[year]
		if !ok {
			out = append(out, YearRecord{Year: year})
			i = len(out) - 1
			index[year] = i
		}
		switch b.Result {
		case ResultWin:
			out[i].Wins++
		case ResultLoss:
			out[i].Losses++
		default:
			out[i].Draws++
		}
	}
	return out
}

// UpcomingFight is one scheduled bout.
type UpcomingFight struct {
	Date        string `json:"date"`
	Fighter1    string `json:"fighter1"`
	Fighter2    string `json:"fighter2"`
	WeightClass string `json:"weight_class"`
	Location    string `json:"location"`
	Status      string `json:"status"`
	TitleFight  bool   `json:"title_fight"`
}

// dateRanges maps date_range values to days ahead. Unknown values use 30.
var dateRanges = map[string]int{"7d": 7, "30d": 30, "60d": 60, "90d": 90, "3m": 90, "6m": 180}

func rangeDays(r string) int {
	if days, ok := dateRanges[strings.ToLower(r)]; ok {
		return days
	}
	return 30
}

func (p *Provider) upcomingFights(ctx context.Context, args map[string]any) (any, error) {
	days := rangeDays(tools.StringArg(args, "date_range", "30d"))
	weightClass := tools.StringArg(args, "weight_class", "")

	now := p.now()
	sqlText := `
		SELECT f.date, a.name, b.name, f.title_fight, f.weight_class, f.location, f.status
		FROM fights f
		JOIN fighters a ON f.fighter1_id = a.id
		JOIN fighters b ON f.fighter2_id = b.id
		WHERE f.status = ? AND f.date <= ? AND f.date >= ?`
	params := []any{persistence.StatusNotStarted, now.AddDate(0, 0, days).Format(time.DateOnly), p.today()}
	if weightClass != "" {
		sqlText += " AND LOWER(f.weight_class) = LOWER(?)"
		params = append(params, weightClass)
	}
	sqlText += " ORDER BY f.date ASC"

	rows, err := p.db.QueryContext(ctx, p.dialect.Rebind(sqlText), params...)
	if err != nil {
		return nil, fmt.Errorf("failed to query upcoming fights: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []UpcomingFight{}
	for rows.Next() {
		var (
			u             UpcomingFight
			title         sql.NullBool
			wc, loc, stat sql.NullString
		)
		if err := rows.Scan(&u.Date, &u.Fighter1, &u.Fighter2, &title, &wc, &loc, &stat); err != nil {
			return nil, fmt.Errorf("failed to scan upcoming fight: %w", err)
		}
		u.TitleFight = title.Bool
		u.WeightClass = orDefault(wc.String, "Unknown")
		u.Location = orDefault(loc.String, "TBA")
		u.Status = stat.String
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate upcoming fights: %w", err)
	}
	return out, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
