// Package s0_engines collects engine scores and modifier values for one
// candidate (stage S0). Providers are pluggable; failures degrade to an
// explicit "unavailable" term instead of failing the candidate.
package s0_engines

import (
	"context"
	"fmt"

	"github.com/wonny/confluence/internal/contracts"
)

// MatchContext is everything a provider may read about one candidate.
// ⭐ SSOT: 후보 1개에 대한 S0 입력 단위 (API/CLI 요청 행)
type MatchContext struct {
	Candidate contracts.Candidate `json:"candidate"`

	// Features are opaque numeric inputs forwarded to remote engines
	Features map[string]float64 `json:"features,omitempty"`

	// Precomputed results supplied by the caller
	Engines   map[contracts.Engine]EngineResult         `json:"engines,omitempty"`
	Modifiers map[contracts.ModifierName]ModifierResult `json:"modifiers,omitempty"`

	// Weights is the sport's config from the batch snapshot (set by the pipeline)
	Weights contracts.WeightConfig `json:"-"`
}

// EngineResult is a provider's raw answer for one engine
type EngineResult struct {
	Score     float64  `json:"score"`
	Available bool     `json:"available"`
	Reasons   []string `json:"reasons,omitempty"`
}

// ModifierResult is a provider's raw answer for one modifier
type ModifierResult struct {
	Value     float64  `json:"value"`
	Available bool     `json:"available"`
	Reasons   []string `json:"reasons,omitempty"`
}

// EngineProvider produces one engine's score
type EngineProvider interface {
	Engine() contracts.Engine
	Score(ctx context.Context, mc MatchContext) (EngineResult, error)
}

// ModifierProvider produces one modifier from the candidate and its engine scores
type ModifierProvider interface {
	Name() contracts.ModifierName
	Evaluate(ctx context.Context, mc MatchContext, engines contracts.EngineScoreSet) (ModifierResult, error)
}

// StaticEngineProvider reads a precomputed engine score from the context
type StaticEngineProvider struct {
	engine contracts.Engine
}

// NewStaticEngineProvider creates a provider for e
func NewStaticEngineProvider(e contracts.Engine) *StaticEngineProvider {
	return &StaticEngineProvider{engine: e}
}

// Engine implements EngineProvider
func (p *StaticEngineProvider) Engine() contracts.Engine { return p.engine }

// Score implements EngineProvider
func (p *StaticEngineProvider) Score(_ context.Context, mc MatchContext) (EngineResult, error) {
	r, ok := mc.Engines[p.engine]
	if !ok {
		return EngineResult{Reasons: []string{"no precomputed score supplied"}}, nil
	}
	return r, nil
}

// StaticModifierProvider reads a precomputed modifier from the context
type StaticModifierProvider struct {
	name contracts.ModifierName
}

// NewStaticModifierProvider creates a provider for name
func NewStaticModifierProvider(name contracts.ModifierName) *StaticModifierProvider {
	return &StaticModifierProvider{name: name}
}

// Name implements ModifierProvider
func (p *StaticModifierProvider) Name() contracts.ModifierName { return p.name }

// Evaluate implements ModifierProvider
func (p *StaticModifierProvider) Evaluate(_ context.Context, mc MatchContext, _ contracts.EngineScoreSet) (ModifierResult, error) {
	r, ok := mc.Modifiers[p.name]
	if !ok {
		return ModifierResult{Reasons: []string{"not supplied"}}, nil
	}
	return r, nil
}

// Flags selects the built-in providers. Mirrors config.Flags.
type Flags struct {
	EnableConfluence      bool
	EnableSideCalibration bool
}

// DefaultEngineProviders returns a static provider per engine
func DefaultEngineProviders() []EngineProvider {
	providers := make([]EngineProvider, 0, len(contracts.AllEngines()))
	for _, e := range contracts.AllEngines() {
		providers = append(providers, NewStaticEngineProvider(e))
	}
	return providers
}

// DefaultModifierProviders returns one provider per contract modifier.
// Confluence and side calibration are computed when their flag is on;
// side calibration is omitted entirely when off.
func DefaultModifierProviders(c *contracts.Contract, flags Flags) []ModifierProvider {
	var providers []ModifierProvider
	for _, name := range contracts.AllModifiers() {
		if _, ok := c.Cap(name); !ok {
			continue
		}
		switch name {
		case contracts.ModConfluence:
			if flags.EnableConfluence {
				providers = append(providers, NewConfluenceProvider(c))
				continue
			}
		case contracts.ModSideCalibration:
			if flags.EnableSideCalibration {
				providers = append(providers, NewSideCalibrationProvider())
			}
			continue
		}
		providers = append(providers, NewStaticModifierProvider(name))
	}
	return providers
}

func validateProviders(engines []EngineProvider, modifiers []ModifierProvider) error {
	seenE := make(map[contracts.Engine]bool)
	for _, p := range engines {
		if !p.Engine().IsValid() {
			return fmt.Errorf("unknown engine provider %q", p.Engine())
		}
		if seenE[p.Engine()] {
			return fmt.Errorf("duplicate engine provider %q", p.Engine())
		}
		seenE[p.Engine()] = true
	}
	seenM := make(map[contracts.ModifierName]bool)
	for _, p := range modifiers {
		if seenM[p.Name()] {
			return fmt.Errorf("duplicate modifier provider %q", p.Name())
		}
		seenM[p.Name()] = true
	}
	return nil
}
