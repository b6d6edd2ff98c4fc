package strategyconfig

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/wonny/confluence/internal/contracts"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

// Validate checks all required constraints
// 실패 시 error 반환 (프로그램 중단)
func Validate(cfg *Config) error {
	// === Meta ===
	if cfg.Meta.StrategyID == "" {
		return ValidationError{"meta.strategy_id", "required"}
	}
	if cfg.Meta.Timezone == "" {
		return ValidationError{"meta.timezone", "required"}
	}
	if _, err := time.LoadLocation(cfg.Meta.Timezone); err != nil {
		return ValidationError{"meta.timezone", err.Error()}
	}

	// === Contract ===
	weights := make([]float64, 0, len(cfg.Contract.BaseWeights))
	for _, e := range contracts.AllEngines() {
		weights = append(weights, cfg.Contract.BaseWeights[e])
	}
	if err := validateWeightsSum(weights, 1.0, 1e-6); err != nil {
		return ValidationError{"contract.base_weights", err.Error()}
	}
	if err := cfg.Contract.Validate(); err != nil {
		return ValidationError{"contract", err.Error()}
	}

	// === Learner ===
	l := cfg.Learner
	if l.MinSamples <= 0 {
		return ValidationError{"learner.min_samples", "must be > 0"}
	}
	if l.WindowSize < l.MinSamples {
		return ValidationError{"learner.window_size", fmt.Sprintf("must be >= min_samples=%d", l.MinSamples)}
	}
	if l.Side.MinPerSide <= 0 {
		return ValidationError{"learner.side.min_per_side", "must be > 0"}
	}
	if err := validateRatio(l.Side.MinSkew, "learner.side.min_skew"); err != nil {
		return err
	}
	sideCap, _ := cfg.Contract.Cap(contracts.ModSideCalibration)
	if l.Side.Step <= 0 || l.Side.Step > sideCap.High {
		return ValidationError{"learner.side.step", fmt.Sprintf("must be in (0, %.2f]", sideCap.High)}
	}

	if l.Engine.EndorseScore < cfg.Contract.EngineScoreMin || l.Engine.EndorseScore > cfg.Contract.EngineScoreMax {
		return ValidationError{"learner.engine.endorse_score", "must lie within the engine score range"}
	}
	if l.Engine.MinEndorsements <= 0 {
		return ValidationError{"learner.engine.min_endorsements", "must be > 0"}
	}
	if err := validateRatio(l.Engine.MinEdge, "learner.engine.min_edge"); err != nil {
		return err
	}
	if l.Engine.Step <= 0 || l.Engine.Step >= cfg.Contract.MultiplierMax-cfg.Contract.MultiplierMin {
		return ValidationError{"learner.engine.step", "must be > 0 and smaller than the multiplier range"}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	// 작은 윈도우는 노이즈에 과민
	if cfg.Learner.WindowSize < 100 {
		warnings = append(warnings, Warning{
			Code:    "SMALL_WINDOW",
			Message: "learner window < 100: multipliers will chase noise",
		})
	}

	// combined cap이 넓으면 modifier가 base를 압도
	if cfg.Contract.CombinedCapHigh > 2.0 || cfg.Contract.CombinedCapLow < -2.0 {
		warnings = append(warnings, Warning{
			Code:    "WIDE_COMBINED_CAP",
			Message: "combined boost cap wider than ±2.0",
		})
	}

	if cfg.Contract.MinPublishScore < 6.0 {
		warnings = append(warnings, Warning{
			Code:    "LOW_PUBLISH_FLOOR",
			Message: "min_publish_score < 6.0: low-conviction picks will be published",
		})
	}

	return warnings
}

// === Helper Functions ===

func validateWeightsSum(weights []float64, target float64, epsilon float64) error {
	if len(weights) == 0 {
		return errors.New("must not be empty")
	}
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if math.Abs(sum-target) > epsilon {
		return fmt.Errorf("must sum to %.2f, got %.4f", target, sum)
	}
	return nil
}

// validateRatio는 비율 값이 (0, 1) 범위인지 검증
func validateRatio(v float64, field string) error {
	if v <= 0 || v >= 1 {
		return ValidationError{field, "must be in range (0, 1)"}
	}
	return nil
}
