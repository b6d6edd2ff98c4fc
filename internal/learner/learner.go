package learner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/confluence/internal/contracts"
	"github.com/wonny/confluence/internal/metrics"
	"github.com/wonny/confluence/internal/strategyconfig"
)

// =============================================================================
// Adaptive Weight Learner (S7)
// =============================================================================

// State is the per-sport run state
type State string

const (
	StatePendingPicks   State = "PENDING_PICKS"
	StateGraded         State = "GRADED"
	StateBiasComputed   State = "BIAS_COMPUTED"
	StateWeightsUpdated State = "WEIGHTS_UPDATED"
	StatePersisted      State = "PERSISTED"
	StateSkipped        State = "SKIPPED"
)

// Skip reasons
const (
	ReasonNoNewPicks          = "no new graded picks"
	ReasonInsufficientSamples = "insufficient samples"
)

// Params are the learning knobs
type Params struct {
	WindowSize int
	MinSamples int

	SideMinPerSide int
	SideMinSkew    float64
	SideStep       float64

	EndorseScore    float64
	MinEndorsements int
	MinEdge         float64
	EngineStep      float64
}

// ParamsFromStrategy maps the strategy file's learner section
func ParamsFromStrategy(l strategyconfig.Learner) Params {
	return Params{
		WindowSize:      l.WindowSize,
		MinSamples:      l.MinSamples,
		SideMinPerSide:  l.Side.MinPerSide,
		SideMinSkew:     l.Side.MinSkew,
		SideStep:        l.Side.Step,
		EndorseScore:    l.Engine.EndorseScore,
		MinEndorsements: l.Engine.MinEndorsements,
		MinEdge:         l.Engine.MinEdge,
		EngineStep:      l.Engine.Step,
	}
}

// DefaultParams returns the production parameters
func DefaultParams() Params {
	return ParamsFromStrategy(strategyconfig.Default().Learner)
}

// SideStat is the hit rate of one side inside the window
type SideStat struct {
	Side    contracts.Side `json:"side"`
	Samples int            `json:"samples"`
	Hits    int            `json:"hits"`
	HitRate float64        `json:"hit_rate"`
}

// EngineEdge is the hit rate of picks an engine endorsed vs the window baseline
type EngineEdge struct {
	Engine       contracts.Engine `json:"engine"`
	Endorsements int              `json:"endorsements"`
	HitRate      float64          `json:"hit_rate"`
	Edge         float64          `json:"edge"`
	Before       float64          `json:"before"`
	After        float64          `json:"after"`
	Adjusted     bool             `json:"adjusted"`
}

// Report is the outcome of one learner run for one sport
type Report struct {
	Sport       contracts.Sport `json:"sport"`
	State       State           `json:"state"`
	Transitions []State         `json:"transitions"`
	Reason      string          `json:"reason,omitempty"`

	NewPicks   int     `json:"new_picks"`
	WindowSize int     `json:"window_size"`
	Baseline   float64 `json:"baseline"`

	Over         SideStat                   `json:"over"`
	Under        SideStat                   `json:"under"`
	Skew         float64                    `json:"skew"`
	SideAdjusted bool                       `json:"side_adjusted"`
	SideBefore   map[contracts.Side]float64 `json:"side_before,omitempty"`
	SideAfter    map[contracts.Side]float64 `json:"side_after,omitempty"`

	Engines []EngineEdge `json:"engines,omitempty"`

	VersionBefore int64     `json:"version_before"`
	VersionAfter  int64     `json:"version_after"`
	StartedAt     time.Time `json:"started_at"`
	Duration      int64     `json:"duration_ms"`
}

func (r *Report) advance(s State) {
	r.State = s
	r.Transitions = append(r.Transitions, s)
}

// Learner updates per-sport WeightConfig from graded picks.
// ⭐ SSOT: WeightConfig의 유일한 writer
type Learner struct {
	contract *contracts.Contract
	ledger   contracts.PickLedger
	store    contracts.WeightStore
	params   Params
	metrics  *metrics.Metrics
	now      func() time.Time
	log      zerolog.Logger
}

// New creates a learner. metrics may be nil.
func New(c *contracts.Contract, ledger contracts.PickLedger, store contracts.WeightStore, p Params, m *metrics.Metrics, log zerolog.Logger) *Learner {
	return &Learner{
		contract: c,
		ledger:   ledger,
		store:    store,
		params:   p,
		metrics:  m,
		now:      time.Now,
		log:      log.With().Str("component", "learner").Logger(),
	}
}

// RunAll runs every sport; one sport failing does not stop the others
func (l *Learner) RunAll(ctx context.Context, sports []contracts.Sport) ([]*Report, error) {
	reports := make([]*Report, 0, len(sports))
	var errs []error
	for _, sport := range sports {
		rep, err := l.Run(ctx, sport)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sport, err))
			continue
		}
		reports = append(reports, rep)
	}
	return reports, errors.Join(errs...)
}

// Run executes PENDING_PICKS → GRADED → BIAS_COMPUTED → WEIGHTS_UPDATED → PERSISTED
// for one sport while holding the sport's writer lock. Any error before the
// save leaves the persisted table untouched.
func (l *Learner) Run(ctx context.Context, sport contracts.Sport) (*Report, error) {
	start := l.now()
	rep := &Report{Sport: sport, StartedAt: start.UTC()}
	rep.advance(StatePendingPicks)

	rep, err := l.run(ctx, sport, rep)
	rep.Duration = time.Since(start).Milliseconds()
	if err != nil {
		l.metrics.ObserveLearnerRun(string(sport), "error")
		l.log.Error().Err(err).Str("sport", string(sport)).Str("state", string(rep.State)).Msg("learner run failed")
		return rep, err
	}
	l.metrics.ObserveLearnerRun(string(sport), string(rep.State))
	return rep, nil
}

func (l *Learner) run(ctx context.Context, sport contracts.Sport, rep *Report) (*Report, error) {
	release, err := l.store.Acquire(ctx, sport)
	if err != nil {
		return rep, err
	}
	defer func() {
		if rerr := release(); rerr != nil {
			l.log.Warn().Err(rerr).Str("sport", string(sport)).Msg("failed to release weight lock")
		}
	}()

	current, err := l.store.Load(ctx, sport)
	if err != nil {
		return rep, err
	}
	rep.VersionBefore = current.Version
	rep.VersionAfter = current.Version

	picks, err := l.ledger.Picks(ctx)
	if err != nil {
		return rep, fmt.Errorf("read ledger: %w", err)
	}

	// === PENDING_PICKS → GRADED ===
	graded := gradedFor(picks, sport)
	fresh := since(graded, current.Watermark)
	rep.NewPicks = len(fresh)
	if len(fresh) == 0 {
		return l.skip(rep, ReasonNoNewPicks), nil
	}
	rep.advance(StateGraded)

	window := recentDecisive(graded, l.params.WindowSize)
	rep.WindowSize = len(window)
	if len(window) < l.params.MinSamples {
		return l.skip(rep, ReasonInsufficientSamples), nil
	}

	// === BIAS_COMPUTED ===
	rep.Baseline = hitRate(window)
	rep.Over, rep.Under = sideStats(window)
	rep.Skew = rep.Over.HitRate - rep.Under.HitRate
	rep.advance(StateBiasComputed)

	// === WEIGHTS_UPDATED ===
	next := current.Clone()
	l.updateSides(&next, rep)
	l.updateEngines(&next, window, rep)

	last := fresh[len(fresh)-1]
	next.Watermark = contracts.WatermarkAt(&last)
	next.SamplesSeen += len(fresh)
	next.LastUpdated = l.now().UTC()
	next.Version = current.Version + 1

	// Σ == 1.0 after every update; a violation is fatal
	if err := next.Validate(l.contract); err != nil {
		return rep, err
	}
	rep.advance(StateWeightsUpdated)

	// === PERSISTED ===
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	if err := l.store.Save(ctx, next, current.Version); err != nil {
		return rep, err
	}
	rep.VersionAfter = next.Version
	rep.advance(StatePersisted)

	l.metrics.SetWeights(string(sport), engineGauges(next), sideGauges(next))
	l.log.Info().
		Str("sport", string(sport)).
		Int("new_picks", rep.NewPicks).
		Int("window", rep.WindowSize).
		Float64("skew", rep.Skew).
		Bool("side_adjusted", rep.SideAdjusted).
		Int64("version", next.Version).
		Msg("weights updated")

	return rep, nil
}

func (l *Learner) skip(rep *Report, reason string) *Report {
	rep.Reason = reason
	rep.advance(StateSkipped)
	l.log.Info().
		Str("sport", string(rep.Sport)).
		Str("reason", reason).
		Int("new_picks", rep.NewPicks).
		Int("window", rep.WindowSize).
		Msg("learner skipped")
	return rep
}

// updateSides moves side_calibration one step toward the side that hits more
func (l *Learner) updateSides(cfg *contracts.WeightConfig, rep *Report) {
	rep.SideBefore = copySides(cfg.SideCalibration)
	defer func() { rep.SideAfter = copySides(cfg.SideCalibration) }()

	if rep.Over.Samples < l.params.SideMinPerSide || rep.Under.Samples < l.params.SideMinPerSide {
		return
	}
	if math.Abs(rep.Skew) < l.params.SideMinSkew {
		return
	}

	cp, _ := l.contract.Cap(contracts.ModSideCalibration)
	step := l.params.SideStep * sign(rep.Skew)
	cfg.SideCalibration[contracts.SideOver] = round4(contracts.Clamp(cfg.SideCalibration[contracts.SideOver]+step, cp.Low, cp.High))
	cfg.SideCalibration[contracts.SideUnder] = round4(contracts.Clamp(cfg.SideCalibration[contracts.SideUnder]-step, cp.Low, cp.High))
	rep.SideAdjusted = true
}

// updateEngines nudges each engine's multiplier by the edge of the picks it endorsed
func (l *Learner) updateEngines(cfg *contracts.WeightConfig, window []contracts.PublishedPick, rep *Report) {
	for _, e := range contracts.AllEngines() {
		edge := EngineEdge{Engine: e, Before: cfg.Multipliers[e]}

		var endorsed []contracts.PublishedPick
		for _, p := range window {
			es := p.Candidate.Engines.Get(e)
			if es.Available && es.Score >= l.params.EndorseScore {
				endorsed = append(endorsed, p)
			}
		}
		edge.Endorsements = len(endorsed)
		if len(endorsed) > 0 {
			edge.HitRate = hitRate(endorsed)
			edge.Edge = edge.HitRate - rep.Baseline
		}

		if edge.Endorsements >= l.params.MinEndorsements && math.Abs(edge.Edge) >= l.params.MinEdge {
			m := cfg.Multipliers[e] + l.params.EngineStep*sign(edge.Edge)
			cfg.Multipliers[e] = round4(contracts.Clamp(m, l.contract.MultiplierMin, l.contract.MultiplierMax))
			edge.Adjusted = cfg.Multipliers[e] != edge.Before
		}
		edge.After = cfg.Multipliers[e]
		rep.Engines = append(rep.Engines, edge)
	}
}

// =============================================================================
// Pick selection
// =============================================================================

// gradedFor returns the sport's graded picks, one per pick id, in ledger
// order (GRADED event position). Picks without a ledger position are
// ordered by (graded_at, pick_id).
func gradedFor(picks []contracts.PublishedPick, sport contracts.Sport) []contracts.PublishedPick {
	seen := make(map[string]bool, len(picks))
	out := make([]contracts.PublishedPick, 0, len(picks))
	bySeq := true
	for _, p := range picks {
		if p.Candidate.Sport != sport || !p.IsGraded() || p.GradedAt == nil {
			continue
		}
		if seen[p.PickID] {
			continue
		}
		seen[p.PickID] = true
		out = append(out, p)
		bySeq = bySeq && p.GradeSeq > 0
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if bySeq {
			return a.GradeSeq < b.GradeSeq
		}
		if !a.GradedAt.Equal(*b.GradedAt) {
			return a.GradedAt.Before(*b.GradedAt)
		}
		return a.PickID < b.PickID
	})
	return out
}

// since returns the picks strictly after the watermark
func since(graded []contracts.PublishedPick, w contracts.Watermark) []contracts.PublishedPick {
	out := make([]contracts.PublishedPick, 0, len(graded))
	for i := range graded {
		if w.Precedes(&graded[i]) {
			out = append(out, graded[i])
		}
	}
	return out
}

// recentDecisive returns the last n WIN/LOSS picks
func recentDecisive(graded []contracts.PublishedPick, n int) []contracts.PublishedPick {
	out := make([]contracts.PublishedPick, 0, n)
	for i := len(graded) - 1; i >= 0 && len(out) < n; i-- {
		if _, decisive := graded[i].Hit(); decisive {
			out = append(out, graded[i])
		}
	}
	return out
}

func hitRate(picks []contracts.PublishedPick) float64 {
	if len(picks) == 0 {
		return 0
	}
	hits := 0
	for _, p := range picks {
		if hit, _ := p.Hit(); hit {
			hits++
		}
	}
	return float64(hits) / float64(len(picks))
}

func sideStats(window []contracts.PublishedPick) (SideStat, SideStat) {
	over := SideStat{Side: contracts.SideOver}
	under := SideStat{Side: contracts.SideUnder}
	for _, p := range window {
		var s *SideStat
		switch p.Candidate.Side {
		case contracts.SideOver:
			s = &over
		case contracts.SideUnder:
			s = &under
		default:
			continue
		}
		s.Samples++
		if hit, _ := p.Hit(); hit {
			s.Hits++
		}
	}
	for _, s := range []*SideStat{&over, &under} {
		if s.Samples > 0 {
			s.HitRate = float64(s.Hits) / float64(s.Samples)
		}
	}
	return over, under
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

func copySides(m map[contracts.Side]float64) map[contracts.Side]float64 {
	out := make(map[contracts.Side]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func engineGauges(cfg contracts.WeightConfig) map[string]float64 {
	out := make(map[string]float64, len(cfg.Multipliers))
	for e, v := range cfg.Multipliers {
		out[string(e)] = v
	}
	return out
}

func sideGauges(cfg contracts.WeightConfig) map[string]float64 {
	out := make(map[string]float64, len(cfg.SideCalibration))
	for s, v := range cfg.SideCalibration {
		out[string(s)] = v
	}
	return out
}
