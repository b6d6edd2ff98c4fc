package contracts

import (
	"fmt"
	"math"
)

// EngineScore is one engine's output for a candidate.
// The producing engine is the only writer; downstream stages read only.
type EngineScore struct {
	Engine    Engine   `json:"engine"`
	Score     float64  `json:"score"`
	Available bool     `json:"available"`
	Reasons   []string `json:"reasons"`
}

// NewEngineScore builds an available engine score
func NewEngineScore(e Engine, score float64, reasons ...string) EngineScore {
	return EngineScore{Engine: e, Score: score, Available: true, Reasons: append([]string(nil), reasons...)}
}

// UnavailableEngine builds the explicit "engine unavailable" value.
// Score is always 0 so it contributes nothing to the weighted sum.
func UnavailableEngine(e Engine, reason string) EngineScore {
	msg := fmt.Sprintf("%s engine unavailable", e)
	if reason != "" {
		msg += ": " + reason
	}
	return EngineScore{Engine: e, Score: 0, Available: false, Reasons: []string{msg}}
}

// EngineScoreSet holds the four engine scores of a candidate.
type EngineScoreSet struct {
	AI       EngineScore `json:"ai"`
	Research EngineScore `json:"research"`
	Esoteric EngineScore `json:"esoteric"`
	Jarvis   EngineScore `json:"jarvis"`
}

// NewEngineScoreSet assembles a set from individual scores; engines not
// present are marked unavailable.
func NewEngineScoreSet(scores ...EngineScore) EngineScoreSet {
	set := EngineScoreSet{
		AI:       UnavailableEngine(EngineAI, "no result"),
		Research: UnavailableEngine(EngineResearch, "no result"),
		Esoteric: UnavailableEngine(EngineEsoteric, "no result"),
		Jarvis:   UnavailableEngine(EngineJarvis, "no result"),
	}
	for _, s := range scores {
		switch s.Engine {
		case EngineAI:
			set.AI = s
		case EngineResearch:
			set.Research = s
		case EngineEsoteric:
			set.Esoteric = s
		case EngineJarvis:
			set.Jarvis = s
		}
	}
	return set
}

// Get returns the score of one engine
func (s EngineScoreSet) Get(e Engine) EngineScore {
	switch e {
	case EngineAI:
		return s.AI
	case EngineResearch:
		return s.Research
	case EngineEsoteric:
		return s.Esoteric
	case EngineJarvis:
		return s.Jarvis
	}
	return UnavailableEngine(e, "unknown engine")
}

// All returns the four scores in canonical engine order
func (s EngineScoreSet) All() []EngineScore {
	return []EngineScore{s.AI, s.Research, s.Esoteric, s.Jarvis}
}

// AvailableCount returns how many engines produced a score
func (s EngineScoreSet) AvailableCount() int {
	n := 0
	for _, es := range s.All() {
		if es.Available {
			n++
		}
	}
	return n
}

// QualifyingCount counts available engines scoring ≥ threshold.
// Unavailable engines never count.
func (s EngineScoreSet) QualifyingCount(threshold float64) int {
	n := 0
	for _, es := range s.All() {
		if es.Available && es.Score >= threshold {
			n++
		}
	}
	return n
}

// Validate checks every available score lies within the contract bound
// and unavailable engines carry a zero score.
func (s EngineScoreSet) Validate(c *Contract) error {
	for _, e := range AllEngines() {
		es := s.Get(e)
		if es.Engine != e {
			return fmt.Errorf("%w: engine slot %s holds %q", ErrInvariantViolation, e, es.Engine)
		}
		if !es.Available {
			if es.Score != 0 {
				return fmt.Errorf("%w: unavailable engine %s has nonzero score %.4f", ErrInvariantViolation, e, es.Score)
			}
			continue
		}
		if math.IsNaN(es.Score) || es.Score < c.EngineScoreMin || es.Score > c.EngineScoreMax {
			return fmt.Errorf("%w: engine %s score %.4f outside [%.1f, %.1f]",
				ErrInvariantViolation, e, es.Score, c.EngineScoreMin, c.EngineScoreMax)
		}
	}
	return nil
}

// Modifier is a named, individually capped additive term.
type Modifier struct {
	Name      ModifierName `json:"name"`
	Value     float64      `json:"value"`
	CapLow    float64      `json:"cap_low"`
	CapHigh   float64      `json:"cap_high"`
	Available bool         `json:"available"`
	Reasons   []string     `json:"reasons"`
}

// NewModifier builds a modifier carrying the contract caps.
// Producers clamp their own value; a value clamped here is recorded in reasons.
func NewModifier(c *Contract, name ModifierName, value float64, reasons ...string) (Modifier, error) {
	cp, ok := c.Cap(name)
	if !ok {
		return Modifier{}, fmt.Errorf("%w: unknown modifier %s", ErrInvariantViolation, name)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Modifier{}, fmt.Errorf("%w: modifier %s value is not finite", ErrInvariantViolation, name)
	}
	m := Modifier{
		Name:      name,
		Value:     value,
		CapLow:    cp.Low,
		CapHigh:   cp.High,
		Available: true,
		Reasons:   append([]string(nil), reasons...),
	}
	if !cp.Contains(value) {
		m.Value = Clamp(value, cp.Low, cp.High)
		m.Reasons = append(m.Reasons, fmt.Sprintf("%s capped %.3f → %.3f", name, value, m.Value))
	}
	return m, nil
}

// UnavailableModifier contributes 0 and says why
func UnavailableModifier(c *Contract, name ModifierName, reason string) Modifier {
	cp, _ := c.Cap(name)
	msg := fmt.Sprintf("%s modifier unavailable", name)
	if reason != "" {
		msg += ": " + reason
	}
	return Modifier{
		Name:    name,
		CapLow:  cp.Low,
		CapHigh: cp.High,
		Reasons: []string{msg},
	}
}
