package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/confluence/internal/contracts"
	"github.com/wonny/confluence/pkg/logger"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type memLedger struct {
	picks []contracts.PublishedPick
}

func (m *memLedger) Publish(context.Context, []contracts.PublishedPick) (int, error) { return 0, nil }
func (m *memLedger) Grade(context.Context, []contracts.GradeInput) (*contracts.GradeReport, error) {
	return &contracts.GradeReport{}, nil
}
func (m *memLedger) Picks(context.Context) ([]contracts.PublishedPick, error) { return m.picks, nil }

type fixture struct {
	player    string
	sport     contracts.Sport
	side      contracts.Side
	tier      contracts.Tier
	odds      int
	age       time.Duration // before now
	result    contracts.Result
	gradedAt  int // minutes after publish day; 0 = pending
	ai, resch float64
}

func build(t *testing.T, fx fixture) contracts.PublishedPick {
	t.Helper()
	created := now.Add(-fx.age)
	c := contracts.NewPropCandidate(fx.sport, "evt-"+fx.player, created, fx.player, "points", 20.5, fx.side, "dk")
	c.Odds = fx.odds
	c.Engines = contracts.NewEngineScoreSet(
		contracts.NewEngineScore(contracts.EngineAI, fx.ai),
		contracts.NewEngineScore(contracts.EngineResearch, fx.resch),
		contracts.NewEngineScore(contracts.EngineEsoteric, 5),
		contracts.NewEngineScore(contracts.EngineJarvis, 5),
	)
	require.NoError(t, c.ApplyScore(contracts.ScoreCard{FinalScore: 7, Decision: contracts.TierDecision{Tier: fx.tier}}))
	p, err := contracts.NewPublishedPick(c, created, "run", "hash", "neutral")
	require.NoError(t, err)
	if fx.gradedAt > 0 {
		require.NoError(t, p.ApplyGrade(fx.result, 0, now.AddDate(0, 0, -1).Add(time.Duration(fx.gradedAt)*time.Minute)))
	}
	return p
}

func newAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	day := 24 * time.Hour
	fixtures := []fixture{
		{"a", contracts.SportNBA, contracts.SideOver, contracts.TierTitanium, 150, 2 * day, contracts.ResultWin, 1, 6, 8.0},
		{"b", contracts.SportNBA, contracts.SideUnder, contracts.TierEdgeLean, 0, 2 * day, contracts.ResultLoss, 2, 5, 8.0},
		{"c", contracts.SportNFL, contracts.SideOver, contracts.TierGoldStar, -120, 2 * day, contracts.ResultWin, 5, 8.5, 6},
		{"d", contracts.SportNBA, contracts.SideOver, contracts.TierEdgeLean, -110, 2 * day, contracts.ResultLoss, 3, 5, 8.2},
		{"e", contracts.SportNBA, contracts.SideOver, contracts.TierEdgeLean, -110, 2 * day, contracts.ResultPush, 4, 5, 5},
		{"f", contracts.SportNBA, contracts.SideOver, contracts.TierEdgeLean, -110, day, "", 0, 5, 5},
		{"old", contracts.SportNBA, contracts.SideOver, contracts.TierEdgeLean, 100, 60 * day, contracts.ResultWin, 6, 5, 5},
	}
	l := &memLedger{}
	for _, fx := range fixtures {
		l.picks = append(l.picks, build(t, fx))
	}
	a := NewAnalyzer(l, contracts.DefaultContract(), logger.Nop())
	a.now = func() time.Time { return now }
	return a
}

func TestAnalyze(t *testing.T) {
	r, err := newAnalyzer(t).Analyze(context.Background(), Filter{Period: "30d"})
	require.NoError(t, err)

	assert.Equal(t, "30D", r.Period)
	assert.Equal(t, now.AddDate(0, 0, -30), r.StartDate)

	o := r.Overall
	assert.Equal(t, 6, o.Picks)
	assert.Equal(t, 1, o.Pending)
	assert.Equal(t, 2, o.Wins)
	assert.Equal(t, 2, o.Losses)
	assert.Equal(t, 1, o.Pushes)
	assert.Equal(t, 0.5, o.HitRate)
	assert.InDelta(t, 0.3333, o.Units, 1e-4)
	assert.InDelta(t, 0.0667, o.ROI, 1e-4)

	assert.Equal(t, Record{Picks: 1, Wins: 1, HitRate: 1, Units: 1.5, ROI: 1.5}, r.ByTier[contracts.TierTitanium])
	assert.InDelta(t, 0.8333, r.BySport[contracts.SportNFL].Units, 1e-4)
	assert.Equal(t, -1.0, r.BySide[contracts.SideUnder].ROI)
	assert.Equal(t, 6, r.ByStream[contracts.StreamProps].Picks)

	// W L L P W in grading order: peak 1.5, trough -0.5
	assert.InDelta(t, 2.0, r.MaxDrawdown, 1e-9)
	assert.Equal(t, 2, r.LongestLosingStreak)
}

func TestAnalyze_Attribution(t *testing.T) {
	r, err := newAnalyzer(t).Analyze(context.Background(), Filter{Period: "30D"})
	require.NoError(t, err)
	require.Len(t, r.Engines, 4)

	byEngine := make(map[contracts.Engine]Attribution)
	for _, a := range r.Engines {
		byEngine[a.Engine] = a
	}

	research := byEngine[contracts.EngineResearch]
	assert.Equal(t, 3, research.Qualifying)
	assert.InDelta(t, 0.3333, research.HitRate, 1e-4)
	assert.InDelta(t, -0.1667, research.Edge, 1e-4)
	assert.InDelta(t, 7.0, research.AvgWin, 1e-9)
	assert.InDelta(t, 8.1, research.AvgLoss, 1e-9)

	ai := byEngine[contracts.EngineAI]
	assert.Equal(t, 1, ai.Qualifying)
	assert.Equal(t, 1.0, ai.HitRate)
	assert.Equal(t, 0.5, ai.Edge)

	assert.Equal(t, 0, byEngine[contracts.EngineJarvis].Qualifying)
}

func TestAnalyze_Filters(t *testing.T) {
	a := newAnalyzer(t)
	ctx := context.Background()

	r, err := a.Analyze(ctx, Filter{Period: "30D", Sport: contracts.SportNBA})
	require.NoError(t, err)
	assert.Equal(t, 5, r.Overall.Picks)
	assert.InDelta(t, 0.3333, r.Overall.HitRate, 1e-4)
	assert.InDelta(t, -0.5, r.Overall.Units, 1e-9)
	assert.NotContains(t, r.BySport, contracts.SportNFL)

	r, err = a.Analyze(ctx, Filter{Period: "ALL"})
	require.NoError(t, err)
	assert.Equal(t, 7, r.Overall.Picks)
	assert.Equal(t, 3, r.Overall.Wins)

	r, err = a.Analyze(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, "30D", r.Period)

	_, err = a.Analyze(ctx, Filter{Period: "2W"})
	assert.ErrorIs(t, err, ErrUnknownPeriod)
}

func TestPickUnits(t *testing.T) {
	tests := []struct {
		name   string
		odds   int
		result contracts.Result
		want   float64
	}{
		{"plus money win", 150, contracts.ResultWin, 1.5},
		{"minus money win", -200, contracts.ResultWin, 0.5},
		{"default juice", 0, contracts.ResultWin, 100.0 / 110},
		{"loss", 300, contracts.ResultLoss, -1},
		{"push", -110, contracts.ResultPush, 0},
		{"pending", -110, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gradedAt := 0
			if tt.result != "" {
				gradedAt = 1
			}
			p := build(t, fixture{player: "x", sport: contracts.SportNHL, side: contracts.SideOver,
				tier: contracts.TierEdgeLean, odds: tt.odds, result: tt.result, gradedAt: gradedAt})
			assert.InDelta(t, tt.want, PickUnits(&p), 1e-9)
		})
	}
}
