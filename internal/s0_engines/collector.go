package s0_engines

import (
	"context"
	"fmt"
	"math"

	"github.com/wonny/confluence/internal/contracts"
	"github.com/wonny/confluence/pkg/logger"
)

// Collected is the S0 output for one candidate
type Collected struct {
	Engines   contracts.EngineScoreSet `json:"engines"`
	Modifiers []contracts.Modifier     `json:"modifiers"`
}

// Collector runs all providers for one candidate
// ⭐ SSOT: 엔진/모디파이어 수집은 여기서만
type Collector struct {
	contract  *contracts.Contract
	engines   []EngineProvider
	modifiers []ModifierProvider
	logger    *logger.Logger
}

// NewCollector creates a collector. Providers are validated once here.
func NewCollector(c *contracts.Contract, engines []EngineProvider, modifiers []ModifierProvider, log *logger.Logger) (*Collector, error) {
	if err := validateProviders(engines, modifiers); err != nil {
		return nil, err
	}
	for _, m := range modifiers {
		if _, ok := c.Cap(m.Name()); !ok {
			return nil, fmt.Errorf("modifier provider %q has no contract cap", m.Name())
		}
	}
	return &Collector{
		contract:  c,
		engines:   engines,
		modifiers: modifiers,
		logger:    log.WithField("module", "s0_engines"),
	}, nil
}

// Collect gathers engine scores concurrently, then modifiers in order.
//
// Provider errors and unavailability become explicit "unavailable" terms.
// Only cancellation of ctx fails the candidate (ErrCandidateTimeout), and
// it does so as soon as ctx ends: a provider that ignores ctx is abandoned,
// not waited for.
func (c *Collector) Collect(ctx context.Context, mc MatchContext) (Collected, error) {
	if err := ctx.Err(); err != nil {
		return Collected{}, c.timeoutErr(mc, err)
	}

	type slot struct {
		i     int
		score contracts.EngineScore
	}
	// buffered so abandoned providers never block on send
	done := make(chan slot, len(c.engines))
	for i, p := range c.engines {
		i, p := i, p
		go func() {
			done <- slot{i, c.scoreEngine(ctx, p, mc)}
		}()
	}

	results := make([]contracts.EngineScore, len(c.engines))
	for range c.engines {
		select {
		case r := <-done:
			results[r.i] = r.score
		case <-ctx.Done():
			return Collected{}, c.timeoutErr(mc, ctx.Err())
		}
	}
	set := contracts.NewEngineScoreSet(results...)

	mods := make([]contracts.Modifier, 0, len(c.modifiers))
	for _, p := range c.modifiers {
		m, err := await(ctx, func() contracts.Modifier {
			return c.evaluateModifier(ctx, p, mc, set)
		})
		if err != nil {
			return Collected{}, c.timeoutErr(mc, err)
		}
		mods = append(mods, m)
	}

	return Collected{Engines: set, Modifiers: mods}, nil
}

// await runs fn on its own goroutine and returns its value, or ctx's error
// once ctx ends. An abandoned fn finishes in the background.
func await[T any](ctx context.Context, fn func() T) (T, error) {
	ch := make(chan T, 1)
	go func() { ch <- fn() }()
	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (c *Collector) scoreEngine(ctx context.Context, p EngineProvider, mc MatchContext) contracts.EngineScore {
	e := p.Engine()
	r, err := p.Score(ctx, mc)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.WithError(err).WithFields(map[string]interface{}{
				"candidate_id": mc.Candidate.ID,
				"engine":       string(e),
			}).Warn("Engine provider failed")
		}
		return contracts.UnavailableEngine(e, err.Error())
	}
	if !r.Available {
		return contracts.UnavailableEngine(e, firstReason(r.Reasons))
	}
	if math.IsNaN(r.Score) || r.Score < c.contract.EngineScoreMin || r.Score > c.contract.EngineScoreMax {
		return contracts.UnavailableEngine(e, fmt.Sprintf("score %.3f outside [%.1f, %.1f]",
			r.Score, c.contract.EngineScoreMin, c.contract.EngineScoreMax))
	}
	return contracts.NewEngineScore(e, r.Score, r.Reasons...)
}

func (c *Collector) evaluateModifier(ctx context.Context, p ModifierProvider, mc MatchContext, set contracts.EngineScoreSet) contracts.Modifier {
	name := p.Name()
	r, err := p.Evaluate(ctx, mc, set)
	if err != nil {
		c.logger.WithError(err).WithFields(map[string]interface{}{
			"candidate_id": mc.Candidate.ID,
			"modifier":     string(name),
		}).Warn("Modifier provider failed")
		return contracts.UnavailableModifier(c.contract, name, err.Error())
	}
	if !r.Available {
		return contracts.UnavailableModifier(c.contract, name, firstReason(r.Reasons))
	}
	m, err := contracts.NewModifier(c.contract, name, r.Value, r.Reasons...)
	if err != nil {
		return contracts.UnavailableModifier(c.contract, name, err.Error())
	}
	return m
}

func (c *Collector) timeoutErr(mc MatchContext, cause error) error {
	return fmt.Errorf("%w: candidate %s: %v", contracts.ErrCandidateTimeout, mc.Candidate.ID, cause)
}

func firstReason(reasons []string) string {
	if len(reasons) == 0 {
		return ""
	}
	return reasons[0]
}
