// Package metrics provides Prometheus metrics for the scoring engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects scoring, gating, grading and learner metrics.
// ⭐ SSOT: 메트릭 정의는 여기서만
//
// All record methods are nil-safe so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Scoring
	CandidatesScored  *prometheus.CounterVec
	CandidateFailures *prometheus.CounterVec
	BoostClamped      *prometheus.CounterVec
	BatchDuration     *prometheus.HistogramVec

	// Gate / publish
	ContradictionBlocks *prometheus.CounterVec
	BoundaryRejections  *prometheus.CounterVec
	PicksPublished      *prometheus.CounterVec

	// Grading
	GradesApplied   *prometheus.CounterVec
	GradeRejections *prometheus.CounterVec

	// Learner
	LearnerRuns      *prometheus.CounterVec
	WeightMultiplier *prometheus.GaugeVec
	SideCalibration  *prometheus.GaugeVec
}

// New creates a metrics set on a private registry
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		CandidatesScored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confluence_candidates_scored_total",
				Help: "Candidates scored, by sport and tier",
			},
			[]string{"sport", "tier"},
		),
		CandidateFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confluence_candidate_failures_total",
				Help: "Candidates that could not be scored, by reason",
			},
			[]string{"sport", "reason"},
		),
		BoostClamped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confluence_boost_clamped_total",
				Help: "Modifier sums that hit the combined cap, by direction",
			},
			[]string{"sport", "direction"},
		),
		BatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "confluence_batch_duration_seconds",
				Help:    "Batch scoring duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"sport"},
		),
		ContradictionBlocks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confluence_contradiction_blocks_total",
				Help: "Candidates removed by the contradiction gate",
			},
			[]string{"stream"},
		),
		BoundaryRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confluence_publish_boundary_rejections_total",
				Help: "Candidates stopped at the publish boundary",
			},
			[]string{"tier"},
		),
		PicksPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confluence_picks_published_total",
				Help: "Picks appended to the ledger",
			},
			[]string{"sport", "tier"},
		),
		GradesApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confluence_grades_applied_total",
				Help: "Grading tuples applied, by result",
			},
			[]string{"result"},
		),
		GradeRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confluence_grade_rejections_total",
				Help: "Grading tuples rejected, by reason",
			},
			[]string{"reason"},
		),
		LearnerRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confluence_learner_runs_total",
				Help: "Learner runs by sport and final state",
			},
			[]string{"sport", "state"},
		),
		WeightMultiplier: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "confluence_weight_multiplier",
				Help: "Current learned engine multiplier",
			},
			[]string{"sport", "engine"},
		),
		SideCalibration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "confluence_side_calibration",
				Help: "Current learned side calibration",
			},
			[]string{"sport", "side"},
		),
	}

	registry.MustRegister(
		m.CandidatesScored,
		m.CandidateFailures,
		m.BoostClamped,
		m.BatchDuration,
		m.ContradictionBlocks,
		m.BoundaryRejections,
		m.PicksPublished,
		m.GradesApplied,
		m.GradeRejections,
		m.LearnerRuns,
		m.WeightMultiplier,
		m.SideCalibration,
	)

	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the registry for scraping
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveScored records a scored candidate
func (m *Metrics) ObserveScored(sport, tier string) {
	if m == nil {
		return
	}
	m.CandidatesScored.WithLabelValues(sport, tier).Inc()
}

// ObserveFailure records a candidate that failed scoring
func (m *Metrics) ObserveFailure(sport, reason string) {
	if m == nil {
		return
	}
	m.CandidateFailures.WithLabelValues(sport, reason).Inc()
}

// ObserveClamp records a combined-cap clamp
func (m *Metrics) ObserveClamp(sport string, excess float64) {
	if m == nil || excess == 0 {
		return
	}
	direction := "high"
	if excess < 0 {
		direction = "low"
	}
	m.BoostClamped.WithLabelValues(sport, direction).Inc()
}

// ObserveBatch records batch duration in seconds
func (m *Metrics) ObserveBatch(sport string, seconds float64) {
	if m == nil {
		return
	}
	m.BatchDuration.WithLabelValues(sport).Observe(seconds)
}

// ObserveBlocked records contradiction gate removals
func (m *Metrics) ObserveBlocked(stream string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.ContradictionBlocks.WithLabelValues(stream).Add(float64(n))
}

// ObserveBoundaryRejection records a candidate stopped at the publish boundary
func (m *Metrics) ObserveBoundaryRejection(tier string) {
	if m == nil {
		return
	}
	m.BoundaryRejections.WithLabelValues(tier).Inc()
}

// ObservePublished records a newly appended pick
func (m *Metrics) ObservePublished(sport, tier string) {
	if m == nil {
		return
	}
	m.PicksPublished.WithLabelValues(sport, tier).Inc()
}

// ObserveGrade records an applied grade
func (m *Metrics) ObserveGrade(result string) {
	if m == nil {
		return
	}
	m.GradesApplied.WithLabelValues(result).Inc()
}

// ObserveGradeRejection records a rejected grading tuple
func (m *Metrics) ObserveGradeRejection(reason string) {
	if m == nil {
		return
	}
	m.GradeRejections.WithLabelValues(reason).Inc()
}

// ObserveLearnerRun records the final state of a learner run
func (m *Metrics) ObserveLearnerRun(sport, state string) {
	if m == nil {
		return
	}
	m.LearnerRuns.WithLabelValues(sport, state).Inc()
}

// SetWeights publishes the current multipliers and side calibration
func (m *Metrics) SetWeights(sport string, multipliers map[string]float64, sides map[string]float64) {
	if m == nil {
		return
	}
	for engine, v := range multipliers {
		m.WeightMultiplier.WithLabelValues(sport, engine).Set(v)
	}
	for side, v := range sides {
		m.SideCalibration.WithLabelValues(sport, side).Set(v)
	}
}
