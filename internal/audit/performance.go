package audit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/wonny/confluence/internal/contracts"
	"github.com/wonny/confluence/pkg/logger"
)

// ErrUnknownPeriod is returned for a period name ParsePeriod does not know
var ErrUnknownPeriod = errors.New("unknown period")

// defaultOdds prices picks published without odds (standard -110 juice)
const defaultOdds = -110

// Analyzer computes graded-pick performance from the ledger
// ⭐ SSOT: 성과 분석 로직은 여기서만
type Analyzer struct {
	ledger   contracts.PickLedger
	contract *contracts.Contract
	now      func() time.Time
	logger   *logger.Logger
}

// NewAnalyzer creates a new performance analyzer
func NewAnalyzer(l contracts.PickLedger, c *contracts.Contract, log *logger.Logger) *Analyzer {
	return &Analyzer{
		ledger:   l,
		contract: c,
		now:      time.Now,
		logger:   log.WithField("module", "audit"),
	}
}

// Filter narrows the analysed picks. Zero Sport = all sports.
type Filter struct {
	Period string // 7D, 30D, 90D, YTD, ALL
	Sport  contracts.Sport
}

// Record is the win/loss line of a group of picks. Units assume a flat
// one-unit stake at the pick's odds.
type Record struct {
	Picks   int     `json:"picks"`
	Pending int     `json:"pending"`
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	Pushes  int     `json:"pushes"`
	HitRate float64 `json:"hit_rate"` // wins / (wins + losses)
	Units   float64 `json:"units"`
	ROI     float64 `json:"roi"` // units per graded stake
}

// PerformanceReport represents performance analysis report
type PerformanceReport struct {
	Period    string          `json:"period"`
	Sport     contracts.Sport `json:"sport,omitempty"`
	StartDate time.Time       `json:"start_date"`
	EndDate   time.Time       `json:"end_date"`

	Overall  Record                      `json:"overall"`
	ByTier   map[contracts.Tier]Record   `json:"by_tier"`
	BySport  map[contracts.Sport]Record  `json:"by_sport"`
	BySide   map[contracts.Side]Record   `json:"by_side"`
	ByStream map[contracts.Stream]Record `json:"by_stream"`

	// 채점 순서 기준 누적 units
	MaxDrawdown         float64 `json:"max_drawdown"` // units, peak to trough
	LongestLosingStreak int     `json:"longest_losing_streak"`

	Engines []Attribution `json:"engines"`
}

// ParsePeriod resolves a period name to [start, end]. ALL starts at the
// zero time.
func ParsePeriod(period string, now time.Time) (time.Time, time.Time, error) {
	switch strings.ToUpper(period) {
	case "7D":
		return now.AddDate(0, 0, -7), now, nil
	case "30D", "":
		return now.AddDate(0, 0, -30), now, nil
	case "90D":
		return now.AddDate(0, 0, -90), now, nil
	case "YTD":
		return time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location()), now, nil
	case "ALL":
		return time.Time{}, now, nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("%w %q (7D, 30D, 90D, YTD, ALL)", ErrUnknownPeriod, period)
}

// Analyze performs performance analysis over picks published in the period
func (a *Analyzer) Analyze(ctx context.Context, f Filter) (*PerformanceReport, error) {
	startDate, endDate, err := ParsePeriod(f.Period, a.now().UTC())
	if err != nil {
		return nil, err
	}
	period := strings.ToUpper(f.Period)
	if period == "" {
		period = "30D"
	}

	all, err := a.ledger.Picks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read picks: %w", err)
	}

	picks := make([]contracts.PublishedPick, 0, len(all))
	for _, p := range all {
		if f.Sport != "" && p.Candidate.Sport != f.Sport {
			continue
		}
		if p.CreatedAt.Before(startDate) || p.CreatedAt.After(endDate) {
			continue
		}
		picks = append(picks, p)
	}

	report := &PerformanceReport{
		Period:    period,
		Sport:     f.Sport,
		StartDate: startDate,
		EndDate:   endDate,
		ByTier:    make(map[contracts.Tier]Record),
		BySport:   make(map[contracts.Sport]Record),
		BySide:    make(map[contracts.Side]Record),
		ByStream:  make(map[contracts.Stream]Record),
	}

	for i := range picks {
		p := &picks[i]
		c := &p.Candidate
		report.Overall = tally(report.Overall, p)
		report.ByTier[c.Tier] = tally(report.ByTier[c.Tier], p)
		report.BySport[c.Sport] = tally(report.BySport[c.Sport], p)
		report.BySide[c.Side] = tally(report.BySide[c.Side], p)
		report.ByStream[c.Stream()] = tally(report.ByStream[c.Stream()], p)
	}

	report.Overall = finish(report.Overall)
	finishMap(report.ByTier)
	finishMap(report.BySport)
	finishMap(report.BySide)
	finishMap(report.ByStream)

	graded := gradedInOrder(picks)
	report.MaxDrawdown = round4(calculateMaxDrawdown(graded))
	report.LongestLosingStreak = calculateLosingStreak(graded)
	report.Engines = a.attribute(graded, report.Overall.HitRate)

	a.logger.WithFields(map[string]interface{}{
		"period":       period,
		"sport":        f.Sport,
		"picks":        report.Overall.Picks,
		"hit_rate":     report.Overall.HitRate,
		"units":        report.Overall.Units,
		"max_drawdown": report.MaxDrawdown,
	}).Info("Performance analysis completed")

	return report, nil
}

// tally adds one pick to a record
func tally(r Record, p *contracts.PublishedPick) Record {
	r.Picks++
	if !p.IsGraded() {
		r.Pending++
		return r
	}
	switch *p.Result {
	case contracts.ResultWin:
		r.Wins++
	case contracts.ResultLoss:
		r.Losses++
	case contracts.ResultPush:
		r.Pushes++
	}
	r.Units += PickUnits(p)
	return r
}

// finish derives the rates once counting is done
func finish(r Record) Record {
	if decisive := r.Wins + r.Losses; decisive > 0 {
		r.HitRate = round4(float64(r.Wins) / float64(decisive))
	}
	if stakes := r.Wins + r.Losses + r.Pushes; stakes > 0 {
		r.ROI = round4(r.Units / float64(stakes))
	}
	r.Units = round4(r.Units)
	return r
}

func finishMap[K comparable](m map[K]Record) {
	for k, r := range m {
		m[k] = finish(r)
	}
}

// PickUnits is the flat-stake return of a graded pick: the American-odds
// payout on a win, -1 on a loss, 0 on a push or while pending.
func PickUnits(p *contracts.PublishedPick) float64 {
	if !p.IsGraded() {
		return 0
	}
	switch *p.Result {
	case contracts.ResultWin:
		return payout(p.Candidate.Odds)
	case contracts.ResultLoss:
		return -1
	}
	return 0
}

func payout(odds int) float64 {
	if odds == 0 {
		odds = defaultOdds
	}
	if odds > 0 {
		return float64(odds) / 100
	}
	return 100 / float64(-odds)
}

// gradedInOrder returns graded picks sorted by (graded_at, pick_id)
func gradedInOrder(picks []contracts.PublishedPick) []contracts.PublishedPick {
	graded := make([]contracts.PublishedPick, 0, len(picks))
	for _, p := range picks {
		if p.IsGraded() {
			graded = append(graded, p)
		}
	}
	sort.Slice(graded, func(i, j int) bool {
		gi, gj := *graded[i].GradedAt, *graded[j].GradedAt
		if !gi.Equal(gj) {
			return gi.Before(gj)
		}
		return graded[i].PickID < graded[j].PickID
	})
	return graded
}

// calculateMaxDrawdown returns the deepest peak-to-trough fall of the
// cumulative units curve
func calculateMaxDrawdown(graded []contracts.PublishedPick) float64 {
	var cum, peak, maxDD float64
	for i := range graded {
		cum += PickUnits(&graded[i])
		if cum > peak {
			peak = cum
		}
		if dd := peak - cum; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// calculateLosingStreak counts consecutive losses; pushes do not break a streak
func calculateLosingStreak(graded []contracts.PublishedPick) int {
	longest, cur := 0, 0
	for i := range graded {
		switch *graded[i].Result {
		case contracts.ResultLoss:
			cur++
			if cur > longest {
				longest = cur
			}
		case contracts.ResultWin:
			cur = 0
		}
	}
	return longest
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
