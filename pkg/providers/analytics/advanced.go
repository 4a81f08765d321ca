package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"boxonomics/pkg/persistence"
	"boxonomics/pkg/tools"
)

// DefaultTrajectoryWindow is the rolling window used when none is given.
const DefaultTrajectoryWindow = 5

// PhaseStats summarizes one third of a career.
type PhaseStats struct {
	Fights      int     `json:"fights"`
	Wins        int     `json:"wins"`
	WinRate     float64 `json:"win_rate"`
	TitleFights int     `json:"title_fights"`
}

// RecentBout is a compact fight line used in form guides and histories.
type RecentBout struct {
	Date     string `json:"date"`
	Opponent string `json:"opponent"`
	Result   string `json:"result"`
	Method   string `json:"method,omitempty"`
}

// Trajectory is the analyze_career_trajectory result.
type Trajectory struct {
	CareerPhases        map[string]PhaseStats `json:"career_phases"`
	Fighter             string                `json:"fighter"`
	Interpretation      string                `json:"interpretation"`
	CareerSpan          TrajectorySpan        `json:"career_span"`
	RecentForm          RecentForm            `json:"recent_form"`
	CurrentTrajectory   TrendSummary          `json:"current_trajectory"`
	TotalFightsAnalyzed int                   `json:"total_fights_analyzed"`
}

// TrajectorySpan bounds the analyzed fights.
type TrajectorySpan struct {
	FirstFight  string  `json:"first_fight"`
	LastFight   string  `json:"last_fight"`
	YearsActive float64 `json:"years_active"`
}

// TrendSummary classifies the change in rolling win rate.
type TrendSummary struct {
	Trend                 string  `json:"trend"`
	TrendStrength         string  `json:"trend_strength"`
	RecentWinRate         float64 `json:"recent_win_rate"`
	ChangeFromEarlyCareer float64 `json:"change_from_early_career"`
	RecentKORate          float64 `json:"recent_ko_rate"`
	RecentOpponentQuality float64 `json:"recent_opponent_avg_wins"`
}

// RecentForm lists the last five fights.
type RecentForm struct {
	LastFive   []RecentBout `json:"last_5_fights"`
	LastRecord string       `json:"last_5_record"`
}

// Trend thresholds on the change in rolling win rate.
const (
	strongTrend   = 0.15
	moderateTrend = 0.05
)

func (p *Provider) careerTrajectory(ctx context.Context, args map[string]any) (any, error) {
	name, err := tools.RequireString(args, "name")
	if err != nil {
		return nil, err
	}
	window := tools.IntArg(args, "window", DefaultTrajectoryWindow)
	if window < 1 {
		window = DefaultTrajectoryWindow
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
	if len(fights) < window {
		return map[string]any{
			"fighter":      f.Name,
			"total_fights": len(fights),
			"error":        fmt.Sprintf("Not enough fights for trajectory analysis (need at least %d)", window),
		}, nil
	}
	return trajectory(f.Name, fights, window), nil
}

func trajectory(name string, fights []bout, window int) *Trajectory {
	var winRates, koRates, quality []float64
	for end := window; end <= len(fights); end++ {
		w := fights[end-window : end]
		var wins, kos, oppWins int
		for _, b := range w {
			if b.Result == ResultWin {
				wins++
			}
			if b.stoppage() {
				kos++
			}
			oppWins += b.OpponentWins
		}
		n := float64(len(w))
		winRates = append(winRates, float64(wins)/n)
		koRates = append(koRates, float64(kos)/n)
		quality = append(quality, float64(oppWins)/n)
	}

	recent := meanOf(tail(winRates, 3))
	early := meanOf(head(winRates, 3))
	diff := recent - early

	trend, strength := "Stable", "Consistent"
	switch {
	case diff > strongTrend:
		trend, strength = "Improving", "Strong"
	case diff > moderateTrend:
		trend, strength = "Improving", "Moderate"
	case diff < -strongTrend:
		trend, strength = "Declining", "Strong"
	case diff < -moderateTrend:
		trend, strength = "Declining", "Moderate"
	}

	total := len(fights)
	first, last := fights[0], fights[total-1]
	span := TrajectorySpan{FirstFight: first.Date, LastFight: last.Date}
	if t0, ok := parseCareerDate(first.Date); ok {
		if t1, ok := parseCareerDate(last.Date); ok {
			span.YearsActive = round1(t1.Sub(t0).Hours() / 24 / 365)
		}
	}

	lastFive := tail(fights, 5)
	form := RecentForm{LastFive: make([]RecentBout, 0, len(lastFive))}
	var formWins, formLosses int
	for _, b := range lastFive {
		form.LastFive = append(form.LastFive, recentBout(b))
		switch b.Result {
		case ResultWin:
			formWins++
		case ResultLoss:
			formLosses++
		}
	}
	form.LastRecord = fmt.Sprintf("%d-%d", formWins, formLosses)

	return &Trajectory{
		Fighter:             name,
		TotalFightsAnalyzed: total,
		CareerSpan:          span,
		CurrentTrajectory: TrendSummary{
			Trend:                 trend,
			TrendStrength:         strength,
			RecentWinRate:         round1(recent * 100),
			ChangeFromEarlyCareer: round1(diff * 100),
			RecentKORate:          round1(koRates[len(koRates)-1] * 100),
			RecentOpponentQuality: round1(quality[len(quality)-1]),
		},
		CareerPhases: map[string]PhaseStats{
			"early_career": phaseStats(fights[:total/3]),
			"mid_career":   phaseStats(fights[total/3 : 2*total/3]),
			"late_career":  phaseStats(fights[2*total/3:]),
		},
		RecentForm: form,
		Interpretation: fmt.Sprintf("%s is currently %s with %s momentum based on rolling %d-fight analysis.",
			name, strings.ToLower(trend), strings.ToLower(strength), window),
	}
}

func phaseStats(fights []bout) PhaseStats {
	ps := PhaseStats{Fights: len(fights)}
	for _, b := range fights {
		if b.Result == ResultWin {
			ps.Wins++
		}
		if b.TitleFight {
			ps.TitleFights++
		}
	}
	if ps.Fights > 0 {
		ps.WinRate = round2(float64(ps.Wins) / float64(ps.Fights))
	}
	return ps
}

func recentBout(b bout) RecentBout {
	return RecentBout{Date: b.Date, Opponent: b.Opponent, Result: b.Result, Method: b.Method}
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func head[T any](xs []T, n int) []T {
	if len(xs) < n {
		return xs
	}
	return xs[:n]
}

func tail[T any](xs []T, n int) []T {
	if len(xs) < n {
		return xs
	}
	return xs[len(xs)-n:]
}

// Even marks a common opponent (or overall comparison) with no edge either way.
const Even = "Even"

// CommonOpponents is the compare_common_opponents result.
type CommonOpponents struct {
	Score                map[string]float64 `json:"score,omitempty"`
	Fighter1             string             `json:"fighter1"`
	Fighter2             string             `json:"fighter2"`
	OverallAdvantage     string             `json:"overall_advantage,omitempty"`
	Analysis             string             `json:"analysis"`
	DetailedComparisons  []map[string]any   `json:"detailed_comparisons,omitempty"`
	CommonOpponentsCount int                `json:"common_opponents_count"`
	Confidence           float64            `json:"confidence,omitempty"`
}

type opponent struct {
	name string
	id   int64
}

func (p *Provider) commonOpponents(ctx context.Context, args map[string]any) (any, error) {
	name1, err := tools.RequireString(args, "fighter1")
	if err != nil {
		return nil, err
	}
	name2, err := tools.RequireString(args, "fighter2")
	if err != nil {
		return nil, err
	}
	f1, err := p.findFighter(ctx, name1)
	if err != nil {
		return nil, err
	}
	f2, err := p.findFighter(ctx, name2)
	if err != nil {
		return nil, err
	}
	if f1 == nil || f2 == nil {
		return map[string]any{"error": "One or both fighters not found"}, nil
	}

	opponents, err := p.sharedOpponents(ctx, f1.ID, f2.ID)
	if err != nil {
		return nil, err
	}
	if len(opponents) == 0 {
		return &CommonOpponents{
			Fighter1: f1.Name,
			Fighter2: f2.Name,
			Analysis: "No common opponents found - direct statistical comparison recommended",
		}, nil
	}

	var score1, score2 float64
	comparisons := make([]map[string]any, 0, len(opponents))
	for _, opp := range opponents {
		r1, err := p.latestBout(ctx, f1.ID, opp.id)
		if err != nil {
			return nil, err
		}
		r2, err := p.latestBout(ctx, f2.ID, opp.id)
		if err != nil {
			return nil, err
		}
		cmp := map[string]any{
			"opponent":          opp.name,
			f1.Name + "_result": r1.Result,
			f1.Name + "_method": r1.Method,
			f1.Name + "_round":  r1.Round,
			f2.Name + "_result": r2.Result,
			f2.Name + "_method": r2.Method,
			f2.Name + "_round":  r2.Round,
		}
		d1, d2, advantage := scoreCommon(f1.Name, f2.Name, r1, r2)
		score1 += d1
		score2 += d2
		cmp["advantage"] = advantage
		comparisons = append(comparisons, cmp)
	}

	overall, confidence := Even, 0.5
	switch {
	case score1 > score2:
		overall = f1.Name
		confidence = math.Min(0.6+(score1-score2)*0.1, 0.9)
	case score2 > score1:
		overall = f2.Name
		confidence = math.Min(0.6+(score2-score1)*0.1, 0.9)
	}
	confidence = round2(confidence)

	return &CommonOpponents{
		Fighter1:             f1.Name,
		Fighter2:             f2.Name,
		CommonOpponentsCount: len(opponents),
		Score:                map[string]float64{f1.Name: score1, f2.Name: score2},
		OverallAdvantage:     overall,
		Confidence:           confidence,
		DetailedComparisons:  comparisons,
		Analysis: fmt.Sprintf("Based on %d common opponents, %s has performed better with %.0f%% confidence.",
			len(opponents), overall, confidence*100),
	}, nil
}

func knockout(method string) bool {
	return method == "KO" || method == "TKO"
}

// scoreCommon awards 1 for a win the other fighter did not match and 0.5 for the only stoppage
// when both won.
func scoreCommon(name1, name2 string, r1, r2 bout) (float64, float64, string) {
	win1, win2 := r1.Result == ResultWin, r2.Result == ResultWin
	switch {
	case win1 && !win2:
		return 1, 0, name1
	case win2 && !win1:
		return 0, 1, name2
	case win1 && win2:
		if knockout(r1.Method) && !knockout(r2.Method) {
			return 0.5, 0, name1 + " (more impressive win)"
		}
		if knockout(r2.Method) && !knockout(r1.Method) {
			return 0, 0.5, name2 + " (more impressive win)"
		}
	}
	return 0, 0, Even
}

// sharedOpponents lists finished-fight opponents both fighters have met, by name.
func (p *Provider) sharedOpponents(ctx context.Context, id1, id2 int64) ([]opponent, error) {
	rows, err := p.db.QueryContext(ctx, p.dialect.Rebind(`
		SELECT o.id, o.name FROM fighters o
		WHERE o.id IN (
			SELECT CASE WHEN fighter1_id = ? THEN fighter2_id ELSE fighter1_id END
			FROM fights WHERE (fighter1_id = ? OR fighter2_id = ?) AND status = ?
			INTERSECT
			SELECT CASE WHEN fighter1_id = ? THEN fighter2_id ELSE fighter1_id END
			FROM fights WHERE (fighter1_id = ? OR fighter2_id = ?) AND status = ?
		)
		ORDER BY o.name`),
		id1, id1, id1, persistence.StatusFinished,
		id2, id2, id2, persistence.StatusFinished)
	if err != nil {
		return nil, fmt.Errorf("failed to query common opponents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []opponent
	for rows.Next() {
		var o opponent
		if err := rows.Scan(&o.id, &o.name); err != nil {
			return nil, fmt.Errorf("failed to scan opponent: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate opponents: %w", err)
	}
	return out, nil
}

// latestBout returns the most recent finished fight between two fighters.
func (p *Provider) latestBout(ctx context.Context, fighterID, opponentID int64) (bout, error) {
	var (
		b      bout
		method sql.NullString
		round  sql.NullInt64
	)
	err := p.db.QueryRowContext(ctx, p.dialect.Rebind(`
		SELECT date, method, round,
			CASE WHEN winner_id = ? THEN 'Win' WHEN winner_id IS NULL THEN 'Draw' ELSE 'Loss' END
		FROM fights
		WHERE ((fighter1_id = ? AND fighter2_id = ?) OR (fighter2_id = ? AND fighter1_id = ?)) AND status = ?
		ORDER BY date DESC
		LIMIT 1`),
		fighterID, fighterID, opponentID, fighterID, opponentID, persistence.StatusFinished,
	).Scan(&b.Date, &method, &round, &b.Result)
	if errors.Is(err, sql.ErrNoRows) {
		return b, fmt.Errorf("no fight between fighters %d and %d", fighterID, opponentID)
	}
	if err != nil {
		return b, fmt.Errorf("failed to query head-to-head: %w", err)
	}
	b.Method = method.String
	b.Round = int(round.Int64)
	return b, nil
}

// TitleRecordStats are the championship-bout numbers.
type TitleRecordStats struct {
	TotalTitleFights int     `json:"total_title_fights"`
	Wins             int     `json:"wins"`
	Losses           int     `json:"losses"`
	Draws            int     `json:"draws"`
	WinRate          float64 `json:"win_rate"`
	KORate           float64 `json:"ko_rate"`
}

// NonTitleStats are the comparison numbers for regular bouts.
type NonTitleStats struct {
	TotalFights int     `json:"total_fights"`
	WinRate     float64 `json:"win_rate"`
	KORate      float64 `json:"ko_rate"`
}

// PerformanceComparison says whether a fighter rises to the occasion.
type PerformanceComparison struct {
	RisesToOccasion   *bool   `json:"rises_to_occasion"`
	Assessment        string  `json:"assessment"`
	WinRateDifference float64 `json:"win_rate_difference"`
}

// Pedigree summarizes championships held.
type Pedigree struct {
	CurrentTitles []string `json:"current_titles"`
	TitlesWon     int      `json:"titles_won"`
	TotalDefenses int      `json:"total_defenses"`
}

// TitlePerformance is the analyze_title_fight_performance result.
type TitlePerformance struct {
	Fighter               string                `json:"fighter"`
	TitleFightRecord      string                `json:"title_fight_record"`
	Analysis              string                `json:"analysis"`
	TitleFightHistory     []RecentBout          `json:"title_fight_history"`
	ChampionshipPedigree  Pedigree              `json:"championship_pedigree"`
	PerformanceComparison PerformanceComparison `json:"performance_comparison"`
	NonTitleStatistics    NonTitleStats         `json:"non_title_statistics"`
	TitleFightStatistics  TitleRecordStats      `json:"title_fight_statistics"`
}

const occasionThreshold = 0.1

func (p *Provider) titlePerformance(ctx context.Context, args map[string]any) (any, error) {
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
	titles, err := p.titles(ctx, f.ID, true)
	if err != nil {
		return nil, err
	}

	var title, regular []bout
	for _, b := range fights {
		if b.TitleFight {
			title = append(title, b)
		} else {
			regular = append(regular, b)
		}
	}
	if len(title) == 0 {
		return map[string]any{
			"fighter":      f.Name,
			"title_fights": 0,
			"analysis":     "No title fight experience in database",
		}, nil
	}
	return titleAnalysis(f.Name, title, regular, titles), nil
}

func rates(fights []bout) (winRate, koRate float64) {
	if len(fights) == 0 {
		return 0, 0
	}
	var wins, kos int
	for _, b := range fights {
		if b.Result == ResultWin {
			wins++
		}
		if b.stoppage() {
			kos++
		}
	}
	n := float64(len(fights))
	return float64(wins) / n, float64(kos) / n
}

func titleAnalysis(name string, title, regular []bout, reigns []TitleReign) *TitlePerformance {
	var wins, losses, draws int
	history := make([]RecentBout, 0, len(title))
	for _, b := range title {
		switch b.Result {
		case ResultWin:
			wins++
		case ResultLoss:
			losses++
		default:
			draws++
		}
		history = append(history, recentBout(b))
	}
	titleWin, titleKO := rates(title)
	regularWin, regularKO := rates(regular)
	diff := titleWin - regularWin

	var rises *bool
	assessment := "Same"
	yes, no := true, false
	switch {
	case diff > occasionThreshold:
		rises, assessment = &yes, "Significantly better"
	case diff > 0:
		rises, assessment = &yes, "Slightly better"
	case diff < -occasionThreshold:
		rises, assessment = &no, "Significantly worse"
	case diff < 0:
		rises, assessment = &no, "Slightly worse"
	}

	pedigree := Pedigree{TitlesWon: len(reigns), CurrentTitles: []string{}}
	for _, t := range reigns {
		pedigree.TotalDefenses += t.DefensesCount
		if t.LostDate == nil || *t.LostDate == "" {
			pedigree.CurrentTitles = append(pedigree.CurrentTitles, t.TitleName)
		}
	}

	return &TitlePerformance{
		Fighter:          name,
		TitleFightRecord: formatRecord(wins, losses, draws),
		TitleFightStatistics: TitleRecordStats{
			TotalTitleFights: len(title),
			Wins:             wins,
			Losses:           losses,
			Draws:            draws,
			WinRate:          round1(titleWin * 100),
			KORate:           round1(titleKO * 100),
		},
		NonTitleStatistics: NonTitleStats{
			TotalFights: len(regular),
			WinRate:     round1(regularWin * 100),
			KORate:      round1(regularKO * 100),
		},
		PerformanceComparison: PerformanceComparison{
			RisesToOccasion:   rises,
			Assessment:        assessment,
			WinRateDifference: round1(diff * 100),
		},
		ChampionshipPedigree: pedigree,
		TitleFightHistory:    history,
		Analysis: fmt.Sprintf("%s performs %s in title fights compared to regular fights, with a %.0f%% win rate in championship bouts.",
			name, strings.ToLower(assessment), titleWin*100),
	}
}
