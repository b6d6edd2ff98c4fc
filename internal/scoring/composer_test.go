package scoring

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/confluence/internal/contracts"
)

var testStart = time.Date(2026, 1, 15, 0, 30, 0, 0, time.UTC)

func engineSet(ai, research, esoteric, jarvis float64) contracts.EngineScoreSet {
	return contracts.NewEngineScoreSet(
		contracts.NewEngineScore(contracts.EngineAI, ai),
		contracts.NewEngineScore(contracts.EngineResearch, research),
		contracts.NewEngineScore(contracts.EngineEsoteric, esoteric),
		contracts.NewEngineScore(contracts.EngineJarvis, jarvis),
	)
}

func TestComposer_DefaultWeights(t *testing.T) {
	c := contracts.DefaultContract()
	comp := NewComposer(c)

	got, err := comp.Compose(engineSet(8, 6, 4, 10), contracts.NeutralWeightConfig(c, contracts.SportNBA), "neutral")
	require.NoError(t, err)

	// 8·0.25 + 6·0.35 + 4·0.15 + 10·0.25
	assert.InDelta(t, 7.2, got.BaseScore, 1e-9)
	require.Len(t, got.Terms, 4)
	assert.Equal(t, contracts.EngineAI, got.Terms[0].Engine)
	assert.True(t, got.Terms[0].Qualifies)
	assert.False(t, got.Terms[1].Qualifies)
	assert.True(t, got.Terms[3].Qualifies)
	assert.Equal(t, "neutral", got.WeightsVersion)
}

// Property: base_score equals the documented weighted sum for random inputs
func TestComposer_WeightedSumProperty(t *testing.T) {
	c := contracts.DefaultContract()
	comp := NewComposer(c)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 2000; i++ {
		w := contracts.NeutralWeightConfig(c, contracts.SportNBA)
		for _, e := range contracts.AllEngines() {
			w.Multipliers[e] = c.MultiplierMin + rng.Float64()*(c.MultiplierMax-c.MultiplierMin)
		}

		var scores []contracts.EngineScore
		for _, e := range contracts.AllEngines() {
			if rng.Intn(5) == 0 {
				continue // unavailable
			}
			scores = append(scores, contracts.NewEngineScore(e, rng.Float64()*10))
		}
		set := contracts.NewEngineScoreSet(scores...)

		eff, err := w.EffectiveWeights(c)
		require.NoError(t, err)

		want := 0.0
		for _, e := range contracts.AllEngines() {
			if es := set.Get(e); es.Available {
				want += es.Score * eff[e]
			}
		}

		got, err := comp.Compose(set, w, "v")
		require.NoError(t, err)
		assert.InDelta(t, want, got.BaseScore, 1e-9)
		assert.GreaterOrEqual(t, got.BaseScore, 0.0)
		assert.LessOrEqual(t, got.BaseScore, 10.0)
	}
}

func TestComposer_UnavailableContributesZero(t *testing.T) {
	c := contracts.DefaultContract()
	comp := NewComposer(c)

	set := contracts.NewEngineScoreSet(
		contracts.NewEngineScore(contracts.EngineAI, 9),
		contracts.NewEngineScore(contracts.EngineResearch, 9),
	)
	got, err := comp.Compose(set, contracts.NeutralWeightConfig(c, contracts.SportNBA), "v")
	require.NoError(t, err)

	// no re-normalization over the available subset
	assert.InDelta(t, 9*0.25+9*0.35, got.BaseScore, 1e-9)
	assert.Equal(t, 0.0, got.Terms[2].Contribution)
	assert.False(t, got.Terms[2].Available)
	assert.False(t, got.Terms[2].Qualifies)
}

func TestComposer_InvariantViolations(t *testing.T) {
	c := contracts.DefaultContract()
	comp := NewComposer(c)

	w := contracts.NeutralWeightConfig(c, contracts.SportNBA)
	w.Multipliers[contracts.EngineAI] = 3
	_, err := comp.Compose(engineSet(5, 5, 5, 5), w, "v")
	assert.ErrorIs(t, err, contracts.ErrInvariantViolation)

	bad := engineSet(5, 5, 5, 5)
	bad.AI.Score = 10.5
	_, err = comp.Compose(bad, contracts.NeutralWeightConfig(c, contracts.SportNBA), "v")
	assert.ErrorIs(t, err, contracts.ErrInvariantViolation)

	placeholder := engineSet(5, 5, 5, 5)
	placeholder.Jarvis = contracts.EngineScore{Engine: contracts.EngineJarvis, Score: 5, Available: false}
	_, err = comp.Compose(placeholder, contracts.NeutralWeightConfig(c, contracts.SportNBA), "v")
	assert.ErrorIs(t, err, contracts.ErrInvariantViolation, "unavailable engine must not carry a placeholder")
}
