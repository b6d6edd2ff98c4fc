package scoring

import (
	"fmt"
	"math"

	"github.com/wonny/confluence/internal/contracts"
)

// Aggregator sums individually capped modifiers under the combined cap (S2)
type Aggregator struct {
	contract *contracts.Contract
}

// NewAggregator creates a boost aggregator
func NewAggregator(c *contracts.Contract) *Aggregator {
	return &Aggregator{contract: c}
}

// Aggregate validates every modifier against its contract cap, sums the
// available ones and clamps the sum to the combined cap.
//
// Excess beyond the combined cap is dropped, never rescaled. Standalone
// modifiers (resonance, simulation) always appear as their own terms.
func (a *Aggregator) Aggregate(mods []contracts.Modifier) (contracts.BoostBreakdown, error) {
	out := contracts.BoostBreakdown{
		Terms: make([]contracts.BoostTerm, 0, len(mods)),
	}

	seen := make(map[contracts.ModifierName]bool, len(mods))
	for _, m := range mods {
		if err := a.check(m); err != nil {
			return contracts.BoostBreakdown{}, err
		}
		if seen[m.Name] {
			return contracts.BoostBreakdown{}, fmt.Errorf("%w: modifier %s submitted twice",
				contracts.ErrInvariantViolation, m.Name)
		}
		seen[m.Name] = true

		out.Terms = append(out.Terms, contracts.BoostTerm{
			Name:      m.Name,
			Value:     m.Value,
			CapLow:    m.CapLow,
			CapHigh:   m.CapHigh,
			Available: m.Available,
			Reasons:   append([]string(nil), m.Reasons...),
		})
		if m.Available {
			out.PreClampSum += m.Value
		}
	}

	// resonance / simulation are never folded into confluence
	for _, name := range contracts.AllModifiers() {
		cp, ok := a.contract.Cap(name)
		if !ok || !cp.Standalone || seen[name] {
			continue
		}
		out.Terms = append(out.Terms, contracts.BoostTerm{
			Name:    name,
			CapLow:  cp.Low,
			CapHigh: cp.High,
			Reasons: []string{fmt.Sprintf("%s modifier unavailable: not submitted", name)},
		})
	}

	out.Applied = contracts.Clamp(out.PreClampSum, a.contract.CombinedCapLow, a.contract.CombinedCapHigh)
	out.ClampedExcess = out.PreClampSum - out.Applied
	out.Clamped = out.ClampedExcess != 0

	return out, nil
}

// check enforces the producer-side cap contract
func (a *Aggregator) check(m contracts.Modifier) error {
	cp, ok := a.contract.Cap(m.Name)
	if !ok {
		return fmt.Errorf("%w: unknown modifier %q", contracts.ErrInvariantViolation, m.Name)
	}
	if m.CapLow != cp.Low || m.CapHigh != cp.High {
		return fmt.Errorf("%w: modifier %s carries cap [%.2f, %.2f], contract has [%.2f, %.2f]",
			contracts.ErrInvariantViolation, m.Name, m.CapLow, m.CapHigh, cp.Low, cp.High)
	}
	if math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
		return fmt.Errorf("%w: modifier %s value not finite", contracts.ErrInvariantViolation, m.Name)
	}
	if !m.Available {
		if m.Value != 0 {
			return fmt.Errorf("%w: unavailable modifier %s has value %.4f",
				contracts.ErrInvariantViolation, m.Name, m.Value)
		}
		return nil
	}
	if !cp.Contains(m.Value) {
		return fmt.Errorf("%w: modifier %s value %.4f exceeds its cap [%.2f, %.2f]",
			contracts.ErrInvariantViolation, m.Name, m.Value, cp.Low, cp.High)
	}
	return nil
}
