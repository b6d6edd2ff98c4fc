package contracts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightConfig_EffectiveWeightsSumToOne(t *testing.T) {
	c := DefaultContract()

	cases := []map[Engine]float64{
		c.NeutralMultipliers(),
		{EngineAI: 1.5, EngineResearch: 0.5, EngineEsoteric: 1.0, EngineJarvis: 1.2},
		{EngineAI: 0.5, EngineResearch: 0.5, EngineEsoteric: 0.5, EngineJarvis: 0.5},
	}

	for _, mult := range cases {
		w := NeutralWeightConfig(c, SportNBA)
		w.Multipliers = mult
		require.NoError(t, w.Validate(c))

		eff, err := w.EffectiveWeights(c)
		require.NoError(t, err)

		sum := 0.0
		for _, v := range eff {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
}

func TestWeightConfig_NeutralMatchesBase(t *testing.T) {
	c := DefaultContract()
	eff, err := NeutralWeightConfig(c, SportNFL).EffectiveWeights(c)
	require.NoError(t, err)
	for e, w := range c.BaseWeights {
		assert.InDelta(t, w, eff[e], 1e-12)
	}
}

func TestWeightConfig_ValidateBounds(t *testing.T) {
	c := DefaultContract()

	w := NeutralWeightConfig(c, SportNBA)
	w.Multipliers[EngineJarvis] = 2.0
	assert.ErrorIs(t, w.Validate(c), ErrInvariantViolation)

	w = NeutralWeightConfig(c, SportNBA)
	w.SideCalibration[SideOver] = 0.9
	assert.ErrorIs(t, w.Validate(c), ErrInvariantViolation)

	w = NeutralWeightConfig(c, SportNBA)
	w.SideCalibration[SideHome] = 0.1
	assert.ErrorIs(t, w.Validate(c), ErrInvariantViolation)
}

func TestWeightConfig_CloneIsDeep(t *testing.T) {
	c := DefaultContract()
	w := NeutralWeightConfig(c, SportNBA)
	cp := w.Clone()
	cp.Multipliers[EngineAI] = 1.3
	cp.SideCalibration[SideOver] = 0.2

	assert.Equal(t, 1.0, w.Multipliers[EngineAI])
	assert.Equal(t, 0.0, w.SideCalibration[SideOver])
}

func TestWeightSnapshot_ImmutableAndVersioned(t *testing.T) {
	c := DefaultContract()
	nba := NeutralWeightConfig(c, SportNBA)
	nba.Multipliers[EngineAI] = 1.1

	snap := NewWeightSnapshot([]WeightConfig{nba}, time.Now())
	nba.Multipliers[EngineAI] = 1.4 // caller mutation after freeze

	got := snap.For(c, SportNBA)
	assert.Equal(t, 1.1, got.Multipliers[EngineAI])

	got.Multipliers[EngineAI] = 0.7 // reader mutation of its copy
	assert.Equal(t, 1.1, snap.For(c, SportNBA).Multipliers[EngineAI])

	assert.Equal(t, 1.0, snap.For(c, SportMLB).Multipliers[EngineAI], "absent sport is neutral")
	assert.Equal(t, []Sport{SportNBA}, snap.Sports())

	same := NewWeightSnapshot([]WeightConfig{snap.For(c, SportNBA)}, time.Now())
	assert.Equal(t, snap.Version(), same.Version())
	assert.Equal(t, "neutral", NewWeightSnapshot(nil, time.Now()).Version())
}

func TestWatermark_Precedes(t *testing.T) {
	at := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	graded := func(id string, seq int64, when time.Time) *PublishedPick {
		r := ResultWin
		return &PublishedPick{PickID: id, Result: &r, GradedAt: &when, GradeSeq: seq}
	}

	// tables without a ledger position compare (graded_at, pick_id)
	w := Watermark{GradedAt: at, PickID: "pk_b"}
	assert.True(t, w.Precedes(graded("pk_a", 0, at.Add(time.Second))))
	assert.True(t, w.Precedes(graded("pk_c", 0, at)))
	assert.False(t, w.Precedes(graded("pk_b", 0, at)))
	assert.False(t, w.Precedes(graded("pk_a", 0, at)))
	assert.False(t, w.Precedes(graded("pk_z", 0, at.Add(-time.Second))))
	assert.False(t, w.Precedes(&PublishedPick{PickID: "pk_z"}), "pending")

	// ledger position wins over the grader's clock
	w = WatermarkAt(graded("pk_b", 10, at))
	assert.Equal(t, int64(10), w.Seq)
	assert.True(t, w.Precedes(graded("pk_a", 11, at.Add(-time.Hour))))
	assert.False(t, w.Precedes(graded("pk_z", 9, at.Add(time.Hour))))
	assert.False(t, w.Precedes(graded("pk_b", 10, at)))

	assert.True(t, Watermark{}.IsZero())
	assert.False(t, w.IsZero())
}
