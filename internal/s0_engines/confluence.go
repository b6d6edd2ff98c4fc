package s0_engines

import (
	"context"
	"fmt"

	"github.com/wonny/confluence/internal/contracts"
)

// Confluence thresholds
const (
	confluenceHighScore      = 7.5
	confluenceStrongCount    = 3
	confluenceStrongSpread   = 1.5
	confluenceStrongBoost    = 1.0
	confluenceModerateCount  = 2
	confluenceModerateSpread = 2.5
	confluenceModerateBoost  = 0.5
)

// ConfluenceProvider turns engine agreement into the confluence modifier.
//
// STRONG:   ≥3 engines at ≥7.5 and spread of available scores ≤1.5
// MODERATE: ≥2 engines at ≥7.5 and spread ≤2.5
// otherwise 0 (still available, so the breakdown shows it was evaluated)
type ConfluenceProvider struct {
	contract *contracts.Contract
}

// NewConfluenceProvider creates a confluence provider
func NewConfluenceProvider(c *contracts.Contract) *ConfluenceProvider {
	return &ConfluenceProvider{contract: c}
}

// Name implements ModifierProvider
func (p *ConfluenceProvider) Name() contracts.ModifierName { return contracts.ModConfluence }

// Evaluate implements ModifierProvider
func (p *ConfluenceProvider) Evaluate(_ context.Context, _ MatchContext, engines contracts.EngineScoreSet) (ModifierResult, error) {
	if engines.AvailableCount() < 2 {
		return ModifierResult{Reasons: []string{"fewer than 2 engines available"}}, nil
	}

	high := engines.QualifyingCount(confluenceHighScore)
	spread := scoreSpread(engines)

	switch {
	case high >= confluenceStrongCount && spread <= confluenceStrongSpread:
		return ModifierResult{
			Value:     confluenceStrongBoost,
			Available: true,
			Reasons:   []string{fmt.Sprintf("STRONG: %d engines ≥%.1f, spread %.2f", high, confluenceHighScore, spread)},
		}, nil
	case high >= confluenceModerateCount && spread <= confluenceModerateSpread:
		return ModifierResult{
			Value:     confluenceModerateBoost,
			Available: true,
			Reasons:   []string{fmt.Sprintf("MODERATE: %d engines ≥%.1f, spread %.2f", high, confluenceHighScore, spread)},
		}, nil
	}

	return ModifierResult{
		Value:     0,
		Available: true,
		Reasons:   []string{fmt.Sprintf("DIVERGENT: %d engines ≥%.1f, spread %.2f", high, confluenceHighScore, spread)},
	}, nil
}

// scoreSpread is max-min over available engine scores
func scoreSpread(engines contracts.EngineScoreSet) float64 {
	lo, hi := 0.0, 0.0
	first := true
	for _, es := range engines.All() {
		if !es.Available {
			continue
		}
		if first {
			lo, hi = es.Score, es.Score
			first = false
			continue
		}
		if es.Score < lo {
			lo = es.Score
		}
		if es.Score > hi {
			hi = es.Score
		}
	}
	return hi - lo
}

// SideCalibrationProvider applies the learned per-side calibration
type SideCalibrationProvider struct{}

// NewSideCalibrationProvider creates a side calibration provider
func NewSideCalibrationProvider() *SideCalibrationProvider {
	return &SideCalibrationProvider{}
}

// Name implements ModifierProvider
func (p *SideCalibrationProvider) Name() contracts.ModifierName { return contracts.ModSideCalibration }

// Evaluate implements ModifierProvider
func (p *SideCalibrationProvider) Evaluate(_ context.Context, mc MatchContext, _ contracts.EngineScoreSet) (ModifierResult, error) {
	side := mc.Candidate.Side
	if !side.IsDirectional() {
		return ModifierResult{Reasons: []string{fmt.Sprintf("side %s has no calibration", side)}}, nil
	}

	v := mc.Weights.SideCalibration[side]
	return ModifierResult{
		Value:     v,
		Available: true,
		Reasons:   []string{fmt.Sprintf("%s %s calibration v%d", mc.Weights.Sport, side, mc.Weights.Version)},
	}, nil
}
