package contracts

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// ModifierName identifies a post-base modifier.
type ModifierName string

const (
	ModContext         ModifierName = "context"
	ModConfluence      ModifierName = "confluence"
	ModResonance       ModifierName = "resonance"
	ModSimulation      ModifierName = "simulation"
	ModSearchTrend     ModifierName = "search_trend"
	ModHookDiscipline  ModifierName = "hook_discipline"
	ModExpertConsensus ModifierName = "expert_consensus"
	ModPropCorrelation ModifierName = "prop_correlation"
	ModSideCalibration ModifierName = "side_calibration"
)

// AllModifiers returns modifiers in canonical breakdown order
func AllModifiers() []ModifierName {
	return []ModifierName{
		ModContext,
		ModConfluence,
		ModResonance,
		ModSimulation,
		ModSearchTrend,
		ModHookDiscipline,
		ModExpertConsensus,
		ModPropCorrelation,
		ModSideCalibration,
	}
}

// ModifierCap is the documented bound of a single modifier.
// Standalone modifiers must never be folded into the confluence term.
type ModifierCap struct {
	Low        float64 `json:"low" yaml:"low"`
	High       float64 `json:"high" yaml:"high"`
	Standalone bool    `json:"standalone" yaml:"standalone"`
}

// Contains reports whether v lies within the cap
func (c ModifierCap) Contains(v float64) bool {
	return v >= c.Low && v <= c.High
}

// TierGate defines the rule for one tier.
// Tiers are evaluated best → worst; the first satisfied gate wins.
type TierGate struct {
	Tier                 Tier               `json:"tier" yaml:"tier"`
	MinScore             float64            `json:"min_score" yaml:"min_score"`
	MinQualifyingEngines int                `json:"min_qualifying_engines,omitempty" yaml:"min_qualifying_engines,omitempty"`
	EngineMinimums       map[Engine]float64 `json:"engine_minimums,omitempty" yaml:"engine_minimums,omitempty"`
	Publishable          bool               `json:"publishable" yaml:"publishable"`
}

// Contract is the central invariant registry.
// ⭐ SSOT: 엔진 가중치, cap, threshold, tier gate는 여기서만 정의
// 다른 컴포넌트는 *Contract를 주입받아 읽기만 하고 사본을 보관하지 않음
type Contract struct {
	Version string `json:"version" yaml:"version"`

	// Base composer
	BaseWeights        map[Engine]float64 `json:"base_weights" yaml:"base_weights"`
	WeightSumTolerance float64            `json:"weight_sum_tolerance" yaml:"weight_sum_tolerance"`
	EngineScoreMin     float64            `json:"engine_score_min" yaml:"engine_score_min"`
	EngineScoreMax     float64            `json:"engine_score_max" yaml:"engine_score_max"`

	// 3-of-4 rule
	QualifyingThreshold float64 `json:"qualifying_threshold" yaml:"qualifying_threshold"`

	// Boost aggregator
	Modifiers       map[ModifierName]ModifierCap `json:"modifiers" yaml:"modifiers"`
	CombinedCapLow  float64                      `json:"combined_cap_low" yaml:"combined_cap_low"`
	CombinedCapHigh float64                      `json:"combined_cap_high" yaml:"combined_cap_high"`

	// Final score / tiers
	FinalScoreMin   float64    `json:"final_score_min" yaml:"final_score_min"`
	FinalScoreMax   float64    `json:"final_score_max" yaml:"final_score_max"`
	Tiers           []TierGate `json:"tiers" yaml:"tiers"`
	MinPublishScore float64    `json:"min_publish_score" yaml:"min_publish_score"`

	// Learner bounds
	MultiplierMin float64 `json:"multiplier_min" yaml:"multiplier_min"`
	MultiplierMax float64 `json:"multiplier_max" yaml:"multiplier_max"`
}

// Hard floors no strategy file may relax
const (
	// MinTopTierEngines is the "3 of 4" in the top-tier rule
	MinTopTierEngines = 3
	// MaxWeightSumTolerance bounds how far Σ weight may drift from 1.0
	MaxWeightSumTolerance = 1e-6
)

// DefaultContract returns the production contract.
// Every call returns a fresh value; callers share it by pointer.
func DefaultContract() *Contract {
	return &Contract{
		Version: "v1",
		BaseWeights: map[Engine]float64{
			EngineAI:       0.25,
			EngineResearch: 0.35,
			EngineEsoteric: 0.15,
			EngineJarvis:   0.25,
		},
		WeightSumTolerance: 1e-6,
		EngineScoreMin:     0.0,
		EngineScoreMax:     10.0,

		QualifyingThreshold: 8.0,

		Modifiers: map[ModifierName]ModifierCap{
			ModContext:         {Low: -0.35, High: 0.35},
			ModConfluence:      {Low: 0.0, High: 1.0},
			ModResonance:       {Low: 0.0, High: 1.0, Standalone: true},
			ModSimulation:      {Low: -0.5, High: 0.5, Standalone: true},
			ModSearchTrend:     {Low: 0.0, High: 0.55},
			ModHookDiscipline:  {Low: -0.25, High: 0.0},
			ModExpertConsensus: {Low: 0.0, High: 0.35},
			ModPropCorrelation: {Low: -0.2, High: 0.2},
			ModSideCalibration: {Low: -0.5, High: 0.5},
		},
		CombinedCapLow:  -1.5,
		CombinedCapHigh: 1.5,

		FinalScoreMin: 0.0,
		FinalScoreMax: 10.0,
		Tiers: []TierGate{
			{Tier: TierTitanium, MinScore: 8.0, MinQualifyingEngines: 3, Publishable: true},
			{
				Tier:     TierGoldStar,
				MinScore: 7.5,
				EngineMinimums: map[Engine]float64{
					EngineAI:       6.8,
					EngineResearch: 5.5,
					EngineJarvis:   6.5,
					EngineEsoteric: 4.0,
				},
				Publishable: true,
			},
			{Tier: TierEdgeLean, MinScore: 6.5, Publishable: true},
			{Tier: TierMonitor, MinScore: 5.5},
			{Tier: TierPass, MinScore: 0.0},
		},
		MinPublishScore: 6.5,

		MultiplierMin: 0.5,
		MultiplierMax: 1.5,
	}
}

// Validate checks the contract's own invariants.
// 실패 시 ErrInvariantViolation (복구 불가)
func (c *Contract) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil contract", ErrInvariantViolation)
	}

	// === Weights ===
	sum := 0.0
	for _, e := range AllEngines() {
		w, ok := c.BaseWeights[e]
		if !ok {
			return fmt.Errorf("%w: base weight for engine %s missing", ErrInvariantViolation, e)
		}
		if w < 0 {
			return fmt.Errorf("%w: negative base weight %s=%.4f", ErrInvariantViolation, e, w)
		}
		sum += w
	}
	if len(c.BaseWeights) != len(AllEngines()) {
		return fmt.Errorf("%w: unknown engine in base weights", ErrInvariantViolation)
	}
	if c.WeightSumTolerance < 0 || c.WeightSumTolerance > MaxWeightSumTolerance {
		return fmt.Errorf("%w: weight sum tolerance %g outside [0, %g]", ErrInvariantViolation, c.WeightSumTolerance, MaxWeightSumTolerance)
	}
	if err := CheckWeightSum(sum, c.WeightSumTolerance); err != nil {
		return err
	}
	if c.EngineScoreMin >= c.EngineScoreMax {
		return fmt.Errorf("%w: engine score range [%.2f, %.2f]", ErrInvariantViolation, c.EngineScoreMin, c.EngineScoreMax)
	}
	if c.QualifyingThreshold < c.EngineScoreMin || c.QualifyingThreshold > c.EngineScoreMax {
		return fmt.Errorf("%w: qualifying threshold %.2f outside engine range", ErrInvariantViolation, c.QualifyingThreshold)
	}

	// === Modifiers ===
	for _, name := range AllModifiers() {
		cp, ok := c.Modifiers[name]
		if !ok {
			return fmt.Errorf("%w: cap for modifier %s missing", ErrInvariantViolation, name)
		}
		// 0 must be a legal value: an unavailable modifier contributes 0
		if cp.Low > 0 || cp.High < 0 {
			return fmt.Errorf("%w: modifier %s cap [%.2f, %.2f] must contain 0", ErrInvariantViolation, name, cp.Low, cp.High)
		}
	}
	if len(c.Modifiers) != len(AllModifiers()) {
		return fmt.Errorf("%w: unknown modifier in caps", ErrInvariantViolation)
	}
	if c.CombinedCapLow > 0 || c.CombinedCapHigh < 0 {
		return fmt.Errorf("%w: combined cap [%.2f, %.2f] must contain 0", ErrInvariantViolation, c.CombinedCapLow, c.CombinedCapHigh)
	}

	// === Tiers ===
	if c.FinalScoreMin >= c.FinalScoreMax {
		return fmt.Errorf("%w: final score range", ErrInvariantViolation)
	}
	if len(c.Tiers) == 0 {
		return fmt.Errorf("%w: no tiers", ErrInvariantViolation)
	}
	seen := make(map[Tier]bool, len(c.Tiers))
	for i, g := range c.Tiers {
		if seen[g.Tier] {
			return fmt.Errorf("%w: duplicate tier %s", ErrInvariantViolation, g.Tier)
		}
		seen[g.Tier] = true
		if i > 0 && g.MinScore > c.Tiers[i-1].MinScore {
			return fmt.Errorf("%w: tier %s min_score above previous tier", ErrInvariantViolation, g.Tier)
		}
		if g.Publishable && g.MinScore < c.MinPublishScore {
			return fmt.Errorf("%w: publishable tier %s below min publish score %.2f", ErrInvariantViolation, g.Tier, c.MinPublishScore)
		}
		for e := range g.EngineMinimums {
			if !e.IsValid() {
				return fmt.Errorf("%w: tier %s gates unknown engine %s", ErrInvariantViolation, g.Tier, e)
			}
		}
		if g.MinQualifyingEngines > len(AllEngines()) {
			return fmt.Errorf("%w: tier %s requires %d engines", ErrInvariantViolation, g.Tier, g.MinQualifyingEngines)
		}
	}
	if !seen[TierTitanium] || c.Tiers[0].Tier != TierTitanium || c.Tiers[0].MinQualifyingEngines == 0 {
		return fmt.Errorf("%w: first tier must be %s with an engine count rule", ErrInvariantViolation, TierTitanium)
	}
	if c.Tiers[0].MinQualifyingEngines < MinTopTierEngines {
		return fmt.Errorf("%w: %s requires %d qualifying engines, at least %d", ErrInvariantViolation, TierTitanium, c.Tiers[0].MinQualifyingEngines, MinTopTierEngines)
	}
	last := c.Tiers[len(c.Tiers)-1]
	if last.MinScore > c.FinalScoreMin || last.Publishable {
		return fmt.Errorf("%w: last tier must be a non-published catch-all", ErrInvariantViolation)
	}

	// === Learner bounds ===
	if c.MultiplierMin <= 0 || c.MultiplierMin > 1 || c.MultiplierMax < 1 {
		return fmt.Errorf("%w: multiplier range [%.2f, %.2f] must contain 1 and stay positive", ErrInvariantViolation, c.MultiplierMin, c.MultiplierMax)
	}

	return nil
}

// CheckWeightSum verifies Σ weight == 1.0 within tolerance
func CheckWeightSum(sum, tolerance float64) error {
	if tolerance <= 0 {
		tolerance = 1e-6
	}
	if math.IsNaN(sum) || math.Abs(sum-1.0) > tolerance {
		return fmt.Errorf("%w: engine weights sum to %.9f, must be 1.0", ErrInvariantViolation, sum)
	}
	return nil
}

// Cap returns the cap for a modifier
func (c *Contract) Cap(name ModifierName) (ModifierCap, bool) {
	cp, ok := c.Modifiers[name]
	return cp, ok
}

// Gate returns the gate of a tier
func (c *Contract) Gate(t Tier) (TierGate, bool) {
	for _, g := range c.Tiers {
		if g.Tier == t {
			return g, true
		}
	}
	return TierGate{}, false
}

// TopGate returns the top-tier gate (3-of-4 rule)
func (c *Contract) TopGate() TierGate {
	return c.Tiers[0]
}

// IsPublishable reports whether a tier may cross the publish boundary
func (c *Contract) IsPublishable(t Tier) bool {
	g, ok := c.Gate(t)
	return ok && g.Publishable
}

// NeutralMultipliers returns multiplier 1.0 for every engine
func (c *Contract) NeutralMultipliers() map[Engine]float64 {
	m := make(map[Engine]float64, len(AllEngines()))
	for _, e := range AllEngines() {
		m[e] = 1.0
	}
	return m
}

// ClampMultiplier bounds a multiplier to the contract's safe range
func (c *Contract) ClampMultiplier(v float64) float64 {
	return Clamp(v, c.MultiplierMin, c.MultiplierMax)
}

// Hash returns sha256 of the canonical JSON form.
// encoding/json sorts map keys, so the hash is deterministic.
func (c *Contract) Hash() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// GatedEngines returns the engines a tier gates on, sorted
func (g TierGate) GatedEngines() []Engine {
	engines := make([]Engine, 0, len(g.EngineMinimums))
	for e := range g.EngineMinimums {
		engines = append(engines, e)
	}
	sort.Slice(engines, func(i, j int) bool { return engines[i] < engines[j] })
	return engines
}

// Clamp bounds v to [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
