package contracts

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"
)

// Watermark is the last graded pick folded into a WeightConfig.
// Seq is the ledger position of its GRADED event; grades are consumed in
// ledger order, so a grade stamped with an earlier clock is still new.
// Tables written before Seq existed fall back to (GradedAt, PickID).
type Watermark struct {
	Seq      int64     `json:"seq,omitempty"`
	GradedAt time.Time `json:"graded_at"`
	PickID   string    `json:"pick_id"`
}

// IsZero reports whether nothing has been consumed yet
func (w Watermark) IsZero() bool {
	return w.Seq == 0 && w.GradedAt.IsZero() && w.PickID == ""
}

// Precedes reports whether a graded pick is strictly after the watermark
func (w Watermark) Precedes(p *PublishedPick) bool {
	if p.GradedAt == nil {
		return false
	}
	if w.Seq > 0 && p.GradeSeq > 0 {
		return p.GradeSeq > w.Seq
	}
	at := *p.GradedAt
	if at.After(w.GradedAt) {
		return true
	}
	return at.Equal(w.GradedAt) && p.PickID > w.PickID
}

// WatermarkAt returns the watermark that ends at p
func WatermarkAt(p *PublishedPick) Watermark {
	w := Watermark{Seq: p.GradeSeq, PickID: p.PickID}
	if p.GradedAt != nil {
		w.GradedAt = *p.GradedAt
	}
	return w
}

// WeightConfig is the per-sport table of learned multipliers.
// ⭐ SSOT: S7 learner만 쓰고, S1/S2는 스냅샷으로 읽기만 함
type WeightConfig struct {
	Sport           Sport              `json:"sport"`
	Multipliers     map[Engine]float64 `json:"multipliers"`
	SideCalibration map[Side]float64   `json:"side_calibration"`
	LastUpdated     time.Time          `json:"last_updated"`
	SamplesSeen     int                `json:"samples_seen"`
	Watermark       Watermark          `json:"watermark"`
	Version         int64              `json:"version"`
}

// NeutralWeightConfig returns multipliers of 1.0 and zero side calibration
func NeutralWeightConfig(c *Contract, sport Sport) WeightConfig {
	return WeightConfig{
		Sport:       sport,
		Multipliers: c.NeutralMultipliers(),
		SideCalibration: map[Side]float64{
			SideOver:  0,
			SideUnder: 0,
		},
	}
}

// Clone returns a deep copy
func (w WeightConfig) Clone() WeightConfig {
	out := w
	out.Multipliers = make(map[Engine]float64, len(w.Multipliers))
	for k, v := range w.Multipliers {
		out.Multipliers[k] = v
	}
	out.SideCalibration = make(map[Side]float64, len(w.SideCalibration))
	for k, v := range w.SideCalibration {
		out.SideCalibration[k] = v
	}
	return out
}

// Validate checks multipliers and side calibration stay in bounds and the
// effective weights still sum to 1.0.
func (w WeightConfig) Validate(c *Contract) error {
	for _, e := range AllEngines() {
		m, ok := w.Multipliers[e]
		if !ok {
			return fmt.Errorf("%w: %s multiplier for %s missing", ErrInvariantViolation, w.Sport, e)
		}
		if math.IsNaN(m) || m < c.MultiplierMin || m > c.MultiplierMax {
			return fmt.Errorf("%w: %s multiplier %s=%.4f outside [%.2f, %.2f]",
				ErrInvariantViolation, w.Sport, e, m, c.MultiplierMin, c.MultiplierMax)
		}
	}
	cp, _ := c.Cap(ModSideCalibration)
	for side, v := range w.SideCalibration {
		if !side.IsDirectional() {
			return fmt.Errorf("%w: %s side calibration for non-directional side %s", ErrInvariantViolation, w.Sport, side)
		}
		if !cp.Contains(v) {
			return fmt.Errorf("%w: %s side calibration %s=%.4f outside cap", ErrInvariantViolation, w.Sport, side, v)
		}
	}
	_, err := w.EffectiveWeights(c)
	return err
}

// EffectiveWeights returns base_i·mult_i normalized so Σ == 1.0.
// The sum is re-checked; a violation is fatal.
func (w WeightConfig) EffectiveWeights(c *Contract) (map[Engine]float64, error) {
	raw := make(map[Engine]float64, len(AllEngines()))
	total := 0.0
	for _, e := range AllEngines() {
		m, ok := w.Multipliers[e]
		if !ok {
			m = 1.0
		}
		v := c.BaseWeights[e] * m
		raw[e] = v
		total += v
	}
	if total <= 0 || math.IsNaN(total) {
		return nil, fmt.Errorf("%w: %s effective weight total %.6f", ErrInvariantViolation, w.Sport, total)
	}

	out := make(map[Engine]float64, len(raw))
	sum := 0.0
	for _, e := range AllEngines() {
		out[e] = raw[e] / total
		sum += out[e]
	}
	if err := CheckWeightSum(sum, c.WeightSumTolerance); err != nil {
		return nil, fmt.Errorf("%s: %w", w.Sport, err)
	}
	return out, nil
}

// WeightSnapshot is an immutable view of every sport's WeightConfig,
// taken once at the start of a scoring cycle.
type WeightSnapshot struct {
	version  string
	loadedAt time.Time
	configs  map[Sport]WeightConfig
}

// NewWeightSnapshot freezes the given configs
func NewWeightSnapshot(configs []WeightConfig, loadedAt time.Time) *WeightSnapshot {
	m := make(map[Sport]WeightConfig, len(configs))
	for _, cfg := range configs {
		m[cfg.Sport] = cfg.Clone()
	}
	return &WeightSnapshot{
		version:  snapshotVersion(m),
		loadedAt: loadedAt,
		configs:  m,
	}
}

// Version identifies the snapshot content
func (s *WeightSnapshot) Version() string {
	return s.version
}

// LoadedAt returns when the snapshot was read
func (s *WeightSnapshot) LoadedAt() time.Time {
	return s.loadedAt
}

// For returns a copy of the sport's config, or neutral if absent
func (s *WeightSnapshot) For(c *Contract, sport Sport) WeightConfig {
	if s != nil {
		if cfg, ok := s.configs[sport]; ok {
			return cfg.Clone()
		}
	}
	return NeutralWeightConfig(c, sport)
}

// Sports returns the sports present, sorted
func (s *WeightSnapshot) Sports() []Sport {
	out := make([]Sport, 0, len(s.configs))
	for sp := range s.configs {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func snapshotVersion(m map[Sport]WeightConfig) string {
	if len(m) == 0 {
		return "neutral"
	}
	sports := make([]string, 0, len(m))
	for sp := range m {
		sports = append(sports, string(sp))
	}
	sort.Strings(sports)

	h := sha256.New()
	for _, sp := range sports {
		b, _ := json.Marshal(m[Sport(sp)])
		h.Write(b)
	}
	return hex.EncodeToString(h.Sum(nil))[:12]
}
