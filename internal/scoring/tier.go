package scoring

import (
	"fmt"

	"github.com/wonny/confluence/internal/contracts"
)

// Classifier assigns tiers from (final_score, engine scores) (S3)
// ⭐ SSOT: tier 규칙은 Contract.Tiers에서만 읽음
type Classifier struct {
	contract *contracts.Contract
}

// NewClassifier creates a tier classifier
func NewClassifier(c *contracts.Contract) *Classifier {
	return &Classifier{contract: c}
}

// FinalScore clamps base + applied boost to the final score bound
func (c *Classifier) FinalScore(base, applied float64) float64 {
	return contracts.Clamp(base+applied, c.contract.FinalScoreMin, c.contract.FinalScoreMax)
}

// Classify walks the gates best → worst; the first satisfied gate wins.
// Gates above the assigned tier are listed in FailedGates. When a gate's
// engine rule held but its score floor did not, an override reason is kept.
func (c *Classifier) Classify(final float64, engines contracts.EngineScoreSet) contracts.TierDecision {
	d := contracts.TierDecision{
		QualifyingCount: engines.QualifyingCount(c.contract.QualifyingThreshold),
	}

	for _, g := range c.contract.Tiers {
		engineFails := c.engineRuleFailures(g, engines, d.QualifyingCount)
		scoreOK := final >= g.MinScore
		if g.Publishable && final < c.contract.MinPublishScore {
			scoreOK = false
		}

		if scoreOK && len(engineFails) == 0 {
			d.Tier = g.Tier
			return d
		}

		fails := engineFails
		if !scoreOK {
			fails = append([]string{fmt.Sprintf("final %.2f < %.2f", final, g.MinScore)}, fails...)
		}
		for _, f := range fails {
			d.FailedGates = append(d.FailedGates, fmt.Sprintf("%s: %s", g.Tier, f))
		}

		if !scoreOK && len(engineFails) == 0 && hasEngineRule(g) {
			d.OverrideReasons = append(d.OverrideReasons, fmt.Sprintf(
				"%s engine rule met (%d engines ≥ %.1f) but final %.2f < %.2f",
				g.Tier, d.QualifyingCount, c.contract.QualifyingThreshold, final, g.MinScore))
		}
	}

	// Validated contracts end with a catch-all; reaching here means the
	// final score is below every gate.
	d.Tier = c.contract.Tiers[len(c.contract.Tiers)-1].Tier
	return d
}

// ValidateTier re-derives the tier and reports any mismatch
func (c *Classifier) ValidateTier(tier contracts.Tier, engines contracts.EngineScoreSet, final float64) error {
	if final < c.contract.FinalScoreMin || final > c.contract.FinalScoreMax {
		return fmt.Errorf("%w: final score %.4f outside [%.1f, %.1f]",
			contracts.ErrInvariantViolation, final, c.contract.FinalScoreMin, c.contract.FinalScoreMax)
	}
	want := c.Classify(final, engines).Tier
	if want != tier {
		return fmt.Errorf("%w: assigned %s, re-derived %s (final %.4f, %d qualifying)",
			contracts.ErrTierMismatch, tier, want, final, engines.QualifyingCount(c.contract.QualifyingThreshold))
	}
	return nil
}

// Publishable is the publish boundary predicate
func (c *Classifier) Publishable(tier contracts.Tier, final float64) bool {
	return final >= c.contract.MinPublishScore && c.contract.IsPublishable(tier)
}

// MinPublishScore returns the publish floor
func (c *Classifier) MinPublishScore() float64 {
	return c.contract.MinPublishScore
}

func (c *Classifier) engineRuleFailures(g contracts.TierGate, engines contracts.EngineScoreSet, qualifying int) []string {
	var fails []string
	if g.MinQualifyingEngines > 0 && qualifying < g.MinQualifyingEngines {
		fails = append(fails, fmt.Sprintf("%d/%d engines ≥ %.1f",
			qualifying, g.MinQualifyingEngines, c.contract.QualifyingThreshold))
	}
	// a single failing engine blocks the tier
	for _, e := range g.GatedEngines() {
		min := g.EngineMinimums[e]
		es := engines.Get(e)
		switch {
		case !es.Available:
			fails = append(fails, fmt.Sprintf("%s unavailable (needs ≥ %.1f)", e, min))
		case es.Score < min:
			fails = append(fails, fmt.Sprintf("%s %.2f < %.1f", e, es.Score, min))
		}
	}
	return fails
}

func hasEngineRule(g contracts.TierGate) bool {
	return g.MinQualifyingEngines > 0 || len(g.EngineMinimums) > 0
}
