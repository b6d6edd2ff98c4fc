package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/confluence/internal/contracts"
	"github.com/wonny/confluence/internal/metrics"
	"github.com/wonny/confluence/internal/s0_engines"
)

// Options tunes batch scoring
type Options struct {
	Workers          int
	CandidateTimeout time.Duration
}

// CandidateFailure is a candidate dropped from the batch without halting it
type CandidateFailure struct {
	CandidateID string `json:"candidate_id"`
	Reason      string `json:"reason"`
	Err         error  `json:"-"`
}

// BatchResult is the outcome of ScoreBatch
type BatchResult struct {
	Scored         []contracts.Candidate `json:"scored"` // input order
	Failed         []CandidateFailure    `json:"failed"`
	WeightsVersion string                `json:"weights_version"`
	Duration       time.Duration         `json:"duration"`
}

// Scorer runs S0→S3 for candidates
// ⭐ SSOT: 후보 스코어링 진입점 (API, CLI, pipeline 공용)
type Scorer struct {
	contract   *contracts.Contract
	collector  *s0_engines.Collector
	composer   *Composer
	aggregator *Aggregator
	classifier *Classifier
	opts       Options
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

// NewScorer creates a scorer. metrics may be nil.
func NewScorer(c *contracts.Contract, collector *s0_engines.Collector, opts Options, m *metrics.Metrics, log zerolog.Logger) *Scorer {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.CandidateTimeout <= 0 {
		opts.CandidateTimeout = 3 * time.Second
	}
	return &Scorer{
		contract:   c,
		collector:  collector,
		composer:   NewComposer(c),
		aggregator: NewAggregator(c),
		classifier: NewClassifier(c),
		opts:       opts,
		metrics:    m,
		log:        log.With().Str("component", "scoring").Logger(),
	}
}

// Classifier exposes the tier rules (publish boundary)
func (s *Scorer) Classifier() *Classifier {
	return s.classifier
}

// ScoreOne composes, boosts, clamps, classifies and validates one candidate.
// Pure: no I/O, the input candidate is not modified.
func (s *Scorer) ScoreOne(cand contracts.Candidate, col s0_engines.Collected, w contracts.WeightConfig, weightsVersion string) (contracts.Candidate, error) {
	if err := checkInput(&cand); err != nil {
		return contracts.Candidate{}, err
	}

	base, err := s.composer.Compose(col.Engines, w, weightsVersion)
	if err != nil {
		return contracts.Candidate{}, fmt.Errorf("compose %s: %w", cand.ID, err)
	}

	boost, err := s.aggregator.Aggregate(col.Modifiers)
	if err != nil {
		return contracts.Candidate{}, fmt.Errorf("boost %s: %w", cand.ID, err)
	}

	raw := base.BaseScore + boost.Applied
	final := s.classifier.FinalScore(base.BaseScore, boost.Applied)
	decision := s.classifier.Classify(final, col.Engines)

	if err := s.classifier.ValidateTier(decision.Tier, col.Engines, final); err != nil {
		return contracts.Candidate{}, fmt.Errorf("classify %s: %w", cand.ID, err)
	}

	out := cand
	out.Engines = col.Engines
	out.Modifiers = append([]contracts.Modifier(nil), col.Modifiers...)
	if err := out.ApplyScore(contracts.ScoreCard{
		Base:       base,
		Boost:      boost,
		RawFinal:   raw,
		FinalScore: final,
		Decision:   decision,
	}); err != nil {
		return contracts.Candidate{}, err
	}

	return out, nil
}

// ScoreBatch collects and scores candidates concurrently against one snapshot.
//
// Invalid or timed-out candidates are reported in Failed and the batch goes
// on. An invariant violation halts the whole batch and is returned.
func (s *Scorer) ScoreBatch(ctx context.Context, inputs []s0_engines.MatchContext, snap *contracts.WeightSnapshot) (*BatchResult, error) {
	start := time.Now()
	result := &BatchResult{WeightsVersion: snap.Version()}
	inputs = append([]s0_engines.MatchContext(nil), inputs...)

	scored := make([]*contracts.Candidate, len(inputs))
	failures := make([]*CandidateFailure, len(inputs))

	seen := make(map[string]bool, len(inputs))
	for i := range inputs {
		cand := &inputs[i].Candidate
		if err := checkInput(cand); err != nil {
			failures[i] = &CandidateFailure{CandidateID: cand.ID, Reason: "invalid", Err: err}
			continue
		}
		if seen[cand.ID] {
			failures[i] = &CandidateFailure{
				CandidateID: cand.ID,
				Reason:      "duplicate",
				Err:         fmt.Errorf("%w: duplicate candidate id %s", contracts.ErrInvalidCandidate, cand.ID),
			}
			continue
		}
		seen[cand.ID] = true
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)

	for i := range inputs {
		if failures[i] != nil {
			continue
		}
		i := i
		g.Go(func() error {
			mc := inputs[i]
			w := snap.For(s.contract, mc.Candidate.Sport)
			mc.Weights = w

			cctx, cancel := context.WithTimeout(gctx, s.opts.CandidateTimeout)
			defer cancel()

			col, err := s.collector.Collect(cctx, mc)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failures[i] = &CandidateFailure{CandidateID: mc.Candidate.ID, Reason: "timeout", Err: err}
				return nil
			}

			out, err := s.ScoreOne(mc.Candidate, col, w, snap.Version())
			switch {
			case err == nil:
				scored[i] = &out
				return nil
			case errors.Is(err, contracts.ErrInvariantViolation):
				return err
			default:
				failures[i] = &CandidateFailure{CandidateID: mc.Candidate.ID, Reason: "invalid", Err: err}
				return nil
			}
		})
	}

	if err := g.Wait(); err != nil {
		s.log.Error().Err(err).Int("candidates", len(inputs)).Msg("scoring batch halted")
		return nil, err
	}

	for i := range inputs {
		if scored[i] != nil {
			c := *scored[i]
			result.Scored = append(result.Scored, c)
			s.metrics.ObserveScored(string(c.Sport), string(c.Tier))
			s.metrics.ObserveClamp(string(c.Sport), c.Card.Boost.ClampedExcess)
		}
		if f := failures[i]; f != nil {
			result.Failed = append(result.Failed, *f)
			s.metrics.ObserveFailure(string(inputs[i].Candidate.Sport), f.Reason)
			s.log.Warn().Err(f.Err).Str("candidate_id", f.CandidateID).Str("reason", f.Reason).Msg("candidate failed")
		}
	}

	result.Duration = time.Since(start)
	s.metrics.ObserveBatch(batchSport(inputs), result.Duration.Seconds())

	s.log.Info().
		Int("scored", len(result.Scored)).
		Int("failed", len(result.Failed)).
		Str("weights_version", result.WeightsVersion).
		Dur("duration", result.Duration).
		Msg("scoring batch complete")

	return result, nil
}

// checkInput validates the candidate and assigns its ID when absent
func checkInput(c *contracts.Candidate) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.IsScored() || c.Tier != "" {
		return fmt.Errorf("%w: candidate %s already carries a score", contracts.ErrInvalidCandidate, c.ID)
	}
	if c.ID == "" {
		c.ID = c.ComputeID()
	}
	return nil
}

func batchSport(inputs []s0_engines.MatchContext) string {
	if len(inputs) == 0 {
		return "none"
	}
	sport := inputs[0].Candidate.Sport
	for _, in := range inputs[1:] {
		if in.Candidate.Sport != sport {
			return "mixed"
		}
	}
	return string(sport)
}
