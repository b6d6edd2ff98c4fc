// Package scoring turns collected engine scores and modifiers into a final
// score and tier (stages S1-S3).
package scoring

import (
	"fmt"

	"github.com/wonny/confluence/internal/contracts"
)

// Composer computes base_score = Σ engine_i · weight_i (S1)
type Composer struct {
	contract *contracts.Contract
}

// NewComposer creates a base composer
func NewComposer(c *contracts.Contract) *Composer {
	return &Composer{contract: c}
}

// Compose is pure arithmetic over finalized engine scores.
// Unavailable engines contribute 0; weights are never re-normalized over the
// available subset.
func (c *Composer) Compose(engines contracts.EngineScoreSet, w contracts.WeightConfig, weightsVersion string) (contracts.BaseBreakdown, error) {
	if err := engines.Validate(c.contract); err != nil {
		return contracts.BaseBreakdown{}, err
	}
	if err := w.Validate(c.contract); err != nil {
		return contracts.BaseBreakdown{}, err
	}

	weights, err := w.EffectiveWeights(c.contract)
	if err != nil {
		return contracts.BaseBreakdown{}, err
	}

	out := contracts.BaseBreakdown{
		Terms:          make([]contracts.EngineContribution, 0, len(contracts.AllEngines())),
		WeightsVersion: weightsVersion,
	}

	for _, e := range contracts.AllEngines() {
		es := engines.Get(e)
		mult, ok := w.Multipliers[e]
		if !ok {
			mult = 1.0
		}

		term := contracts.EngineContribution{
			Engine:     e,
			Score:      es.Score,
			Weight:     weights[e],
			Multiplier: mult,
			Available:  es.Available,
		}
		if es.Available {
			term.Contribution = es.Score * weights[e]
			term.Qualifies = es.Score >= c.contract.QualifyingThreshold
		}

		out.BaseScore += term.Contribution
		out.Terms = append(out.Terms, term)
	}

	// Σ w = 1 and scores in range keep base in range; anything else is a defect
	if out.BaseScore < c.contract.EngineScoreMin-1e-9 || out.BaseScore > c.contract.EngineScoreMax+1e-9 {
		return contracts.BaseBreakdown{}, fmt.Errorf("%w: base score %.6f outside engine range",
			contracts.ErrInvariantViolation, out.BaseScore)
	}

	return out, nil
}
