package selection

import (
	"errors"
	"fmt"

	"github.com/wonny/confluence/internal/contracts"
	"github.com/wonny/confluence/internal/metrics"
	"github.com/wonny/confluence/internal/scoring"
	"github.com/wonny/confluence/pkg/logger"
)

// Boundary rejection reasons
const (
	ReasonUnscored       = "unscored"
	ReasonBlocked        = "blocked_by_contradiction"
	ReasonBelowMinimum   = "below_min_publish_score"
	ReasonNotPublishable = "tier_not_publishable"
	ReasonTierMismatch   = "tier_mismatch"
)

// Rejection is a candidate stopped at the publish boundary
type Rejection struct {
	CandidateID string         `json:"candidate_id"`
	Tier        contracts.Tier `json:"tier"`
	FinalScore  float64        `json:"final_score"`
	Reason      string         `json:"reason"`
}

// BoundaryResult is the outcome of Filter
type BoundaryResult struct {
	Passed   []contracts.Candidate `json:"passed"`
	Rejected []Rejection           `json:"rejected"`
	Filtered map[string]int        `json:"filtered"` // reason -> count
}

// Boundary is the publish threshold
// ⭐ SSOT: publish 가능 여부는 여기서만 판단 (final ≥ min_publish_score, 공개 tier)
type Boundary struct {
	classifier *scoring.Classifier
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

// NewBoundary creates a publish boundary. metrics may be nil.
func NewBoundary(classifier *scoring.Classifier, log *logger.Logger, m *metrics.Metrics) *Boundary {
	return &Boundary{
		classifier: classifier,
		logger:     log.WithField("module", "boundary"),
		metrics:    m,
	}
}

// Filter keeps only candidates that may be published.
// The tier is re-derived here so a corrupted candidate never leaks out. A
// tier that does not re-derive is an invariant breach: the whole batch is
// still classified for the report, and the returned error (ErrTierMismatch)
// must halt the run.
func (b *Boundary) Filter(batch []contracts.Candidate) (BoundaryResult, error) {
	res := BoundaryResult{
		Passed:   make([]contracts.Candidate, 0, len(batch)),
		Filtered: make(map[string]int),
	}

	var violations []error
	for i := range batch {
		c := batch[i]
		reason, err := b.check(&c)
		if err != nil {
			violations = append(violations, fmt.Errorf("candidate %s: %w", c.ID, err))
		}
		if reason == "" {
			res.Passed = append(res.Passed, c)
			continue
		}
		res.Filtered[reason]++
		res.Rejected = append(res.Rejected, Rejection{
			CandidateID: c.ID,
			Tier:        c.Tier,
			FinalScore:  c.FinalScore,
			Reason:      reason,
		})
		b.metrics.ObserveBoundaryRejection(string(c.Tier))
	}

	b.logger.WithFields(map[string]interface{}{
		"total_input":  len(batch),
		"passed":       len(res.Passed),
		"filtered_out": len(batch) - len(res.Passed),
		"filters":      res.Filtered,
	}).Info("Publish boundary completed")

	if len(violations) > 0 {
		return res, errors.Join(violations...)
	}
	return res, nil
}

func (b *Boundary) check(c *contracts.Candidate) (string, error) {
	if !c.IsScored() {
		return ReasonUnscored, nil
	}
	if c.BlockedByContradiction {
		return ReasonBlocked, nil
	}
	if err := b.classifier.ValidateTier(c.Tier, c.Engines, c.FinalScore); err != nil {
		b.logger.WithError(err).WithField("candidate_id", c.ID).Error("Tier re-derivation failed at publish boundary")
		return ReasonTierMismatch, err
	}
	if !b.classifier.Publishable(c.Tier, c.FinalScore) {
		if c.FinalScore < b.classifier.MinPublishScore() {
			return ReasonBelowMinimum, nil
		}
		return ReasonNotPublishable, nil
	}
	return "", nil
}
