package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/confluence/internal/contracts"
	"github.com/wonny/confluence/internal/metrics"
	"github.com/wonny/confluence/internal/s0_engines"
	"github.com/wonny/confluence/pkg/logger"
)

type slowEngine struct{}

func (slowEngine) Engine() contracts.Engine { return contracts.EngineEsoteric }
func (slowEngine) Score(ctx context.Context, mc s0_engines.MatchContext) (s0_engines.EngineResult, error) {
	if mc.Features["slow"] == 0 {
		return s0_engines.EngineResult{Score: 5, Available: true}, nil
	}
	<-ctx.Done()
	return s0_engines.EngineResult{}, ctx.Err()
}

func newTestScorer(t *testing.T, engines []s0_engines.EngineProvider) (*Scorer, *metrics.Metrics) {
	t.Helper()
	c := contracts.DefaultContract()
	col, err := s0_engines.NewCollector(c, engines,
		s0_engines.DefaultModifierProviders(c, s0_engines.Flags{EnableConfluence: true, EnableSideCalibration: true}),
		logger.Nop())
	require.NoError(t, err)
	m := metrics.New()
	return NewScorer(c, col, Options{Workers: 4, CandidateTimeout: 50 * time.Millisecond}, m, zerolog.Nop()), m
}

func propInput(player string, side contracts.Side, ai, research, esoteric, jarvis float64) s0_engines.MatchContext {
	return s0_engines.MatchContext{
		Candidate: contracts.NewPropCandidate(contracts.SportNBA, "evt-1", testStart, player, "points", 25.5, side, "dk"),
		Engines: map[contracts.Engine]s0_engines.EngineResult{
			contracts.EngineAI:       {Score: ai, Available: true},
			contracts.EngineResearch: {Score: research, Available: true},
			contracts.EngineEsoteric: {Score: esoteric, Available: true},
			contracts.EngineJarvis:   {Score: jarvis, Available: true},
		},
		Modifiers: map[contracts.ModifierName]s0_engines.ModifierResult{},
	}
}

func TestScoreOne_FullBreakdown(t *testing.T) {
	s, _ := newTestScorer(t, s0_engines.DefaultEngineProviders())
	c := contracts.DefaultContract()

	mc := propInput("Jayson Tatum", contracts.SideOver, 8.5, 8.2, 6.0, 8.4)
	col, err := s.collector.Collect(context.Background(), mc)
	require.NoError(t, err)

	w := contracts.NeutralWeightConfig(c, contracts.SportNBA)
	out, err := s.ScoreOne(mc.Candidate, col, w, "neutral")
	require.NoError(t, err)

	require.True(t, out.IsScored())
	assert.False(t, mc.Candidate.IsScored(), "input untouched")

	// 8.5·.25 + 8.2·.35 + 6·.15 + 8.4·.25 = 7.995; spread 2.5 keeps confluence at MODERATE
	assert.InDelta(t, 7.995, out.BaseScore, 1e-9)
	conf, ok := out.Card.Boost.Term(contracts.ModConfluence)
	require.True(t, ok)
	assert.Equal(t, 0.5, conf.Value)
	assert.InDelta(t, 8.495, out.FinalScore, 1e-9)
	assert.Equal(t, contracts.TierTitanium, out.Tier)
	assert.Equal(t, 3, out.Card.Decision.QualifyingCount)
	assert.Equal(t, "neutral", out.Card.Base.WeightsVersion)

	_, err = s.ScoreOne(out, col, w, "neutral")
	assert.ErrorIs(t, err, contracts.ErrInvalidCandidate, "a scored candidate is not re-scored")
}

func TestScoreBatch_TimeoutFailsOnlyThatCandidate(t *testing.T) {
	engines := []s0_engines.EngineProvider{
		s0_engines.NewStaticEngineProvider(contracts.EngineAI),
		s0_engines.NewStaticEngineProvider(contracts.EngineResearch),
		slowEngine{},
		s0_engines.NewStaticEngineProvider(contracts.EngineJarvis),
	}
	s, m := newTestScorer(t, engines)

	fast := propInput("Jayson Tatum", contracts.SideOver, 7, 7, 0, 7)
	slow := propInput("Jaylen Brown", contracts.SideOver, 7, 7, 0, 7)
	slow.Features = map[string]float64{"slow": 1}

	res, err := s.ScoreBatch(context.Background(), []s0_engines.MatchContext{fast, slow}, contracts.NewWeightSnapshot(nil, time.Now()))
	require.NoError(t, err)

	require.Len(t, res.Scored, 1)
	assert.Equal(t, fast.Candidate.ID, res.Scored[0].ID)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, slow.Candidate.ID, res.Failed[0].CandidateID)
	assert.ErrorIs(t, res.Failed[0].Err, contracts.ErrCandidateTimeout)
	assert.Equal(t, "neutral", res.WeightsVersion)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CandidateFailures.WithLabelValues("NBA", "timeout")))
}

func TestScoreBatch_InvalidAndDuplicate(t *testing.T) {
	s, _ := newTestScorer(t, s0_engines.DefaultEngineProviders())

	good := propInput("Jayson Tatum", contracts.SideOver, 7, 7, 7, 7)
	bad := propInput("Jaylen Brown", contracts.SideHome, 7, 7, 7, 7) // HOME on a prop

	res, err := s.ScoreBatch(context.Background(), []s0_engines.MatchContext{good, bad, good}, contracts.NewWeightSnapshot(nil, time.Now()))
	require.NoError(t, err)
	assert.Len(t, res.Scored, 1)
	require.Len(t, res.Failed, 2)
	assert.ErrorIs(t, res.Failed[0].Err, contracts.ErrInvalidCandidate)
	assert.Equal(t, "duplicate", res.Failed[1].Reason)
}

func TestScoreBatch_InvariantHalts(t *testing.T) {
	s, _ := newTestScorer(t, s0_engines.DefaultEngineProviders())
	c := contracts.DefaultContract()

	w := contracts.NeutralWeightConfig(c, contracts.SportNBA)
	w.Multipliers[contracts.EngineAI] = 4.0 // corrupt table
	snap := contracts.NewWeightSnapshot([]contracts.WeightConfig{w}, time.Now())

	res, err := s.ScoreBatch(context.Background(), []s0_engines.MatchContext{
		propInput("Jayson Tatum", contracts.SideOver, 7, 7, 7, 7),
	}, snap)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, contracts.ErrInvariantViolation)
}

func TestScoreBatch_DeterministicOrder(t *testing.T) {
	s, _ := newTestScorer(t, s0_engines.DefaultEngineProviders())

	var inputs []s0_engines.MatchContext
	for i, player := range []string{"A One", "B Two", "C Three", "D Four", "E Five", "F Six"} {
		inputs = append(inputs, propInput(player, contracts.SideUnder, float64(i), 5, 5, 5))
	}

	snap := contracts.NewWeightSnapshot(nil, time.Now())
	first, err := s.ScoreBatch(context.Background(), inputs, snap)
	require.NoError(t, err)
	second, err := s.ScoreBatch(context.Background(), inputs, snap)
	require.NoError(t, err)

	require.Len(t, first.Scored, len(inputs))
	for i := range inputs {
		assert.Equal(t, inputs[i].Candidate.ID, first.Scored[i].ID)
		assert.Equal(t, first.Scored[i].FinalScore, second.Scored[i].FinalScore)
	}
}
