package contracts

// EngineContribution is one named summand of base_score.
type EngineContribution struct {
	Engine       Engine  `json:"engine"`
	Score        float64 `json:"score"`
	Weight       float64 `json:"weight"`
	Multiplier   float64 `json:"multiplier"`
	Contribution float64 `json:"contribution"`
	Available    bool    `json:"available"`
	Qualifies    bool    `json:"qualifies"` // score ≥ qualifying threshold
}

// BaseBreakdown is the audit trail of the base composer (S1)
type BaseBreakdown struct {
	Terms          []EngineContribution `json:"terms"`
	BaseScore      float64              `json:"base_score"`
	WeightsVersion string               `json:"weights_version"`
}

// BoostTerm is one named summand of the modifier sum
type BoostTerm struct {
	Name      ModifierName `json:"name"`
	Value     float64      `json:"value"`
	CapLow    float64      `json:"cap_low"`
	CapHigh   float64      `json:"cap_high"`
	Available bool         `json:"available"`
	Reasons   []string     `json:"reasons,omitempty"`
}

// BoostBreakdown is the audit trail of the boost aggregator (S2).
// PreClampSum and Applied are both exposed so capping is never silent.
type BoostBreakdown struct {
	Terms         []BoostTerm `json:"terms"`
	PreClampSum   float64     `json:"pre_clamp_sum"`
	Applied       float64     `json:"applied"`
	ClampedExcess float64     `json:"clamped_excess"` // PreClampSum - Applied
	Clamped       bool        `json:"clamped"`
}

// Term returns the breakdown term for a modifier
func (b BoostBreakdown) Term(name ModifierName) (BoostTerm, bool) {
	for _, t := range b.Terms {
		if t.Name == name {
			return t, true
		}
	}
	return BoostTerm{}, false
}

// TierDecision is the output of the tier classifier (S3)
type TierDecision struct {
	Tier            Tier     `json:"tier"`
	QualifyingCount int      `json:"qualifying_count"`
	FailedGates     []string `json:"failed_gates,omitempty"`
	// OverrideReasons explains every case where a higher tier's engine rule
	// was met but the tier was not assigned.
	OverrideReasons []string `json:"override_reasons,omitempty"`
}

// ScoreCard is the complete per-candidate breakdown
type ScoreCard struct {
	Base       BaseBreakdown  `json:"base"`
	Boost      BoostBreakdown `json:"boost"`
	RawFinal   float64        `json:"raw_final"` // base + applied, before [0,10] clamp
	FinalScore float64        `json:"final_score"`
	Decision   TierDecision   `json:"decision"`
}
