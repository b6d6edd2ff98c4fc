package contracts

import (
	"fmt"
	"time"
)

// PickStatus is the lifecycle state of a published pick
type PickStatus string

const (
	PickPending PickStatus = "PENDING"
	PickGraded  PickStatus = "GRADED" // terminal
)

// PublishedPick is a candidate that crossed the publish boundary.
// ⭐ SSOT: S5 → S6/S7 픽 데이터 전달
//
// Result/ActualValue/GradedAt are absent until graded and, once set,
// are never cleared.
type PublishedPick struct {
	PickID         string    `json:"pick_id"`
	CreatedAt      time.Time `json:"created_at"`
	RunID          string    `json:"run_id,omitempty"`
	ContractHash   string    `json:"contract_hash"`
	WeightsVersion string    `json:"weights_version"`
	Candidate      Candidate `json:"candidate"`

	Result      *Result    `json:"result,omitempty"`
	ActualValue *float64   `json:"actual_value,omitempty"`
	GradedAt    *time.Time `json:"graded_at,omitempty"`

	// GradeSeq is the ledger position of the GRADED event (0 while pending).
	// Set by the ledger fold, never by the grader.
	GradeSeq int64 `json:"grade_seq,omitempty"`
}

// NewPublishedPick snapshots a scored candidate
func NewPublishedPick(c Candidate, createdAt time.Time, runID, contractHash, weightsVersion string) (PublishedPick, error) {
	if !c.IsScored() {
		return PublishedPick{}, fmt.Errorf("%w: candidate %s not scored", ErrInvariantViolation, c.ID)
	}
	if c.BlockedByContradiction {
		return PublishedPick{}, fmt.Errorf("%w: candidate %s blocked by %s", ErrInvariantViolation, c.ID, c.BlockedBy)
	}
	return PublishedPick{
		PickID:         c.PickID(),
		CreatedAt:      createdAt.UTC(),
		RunID:          runID,
		ContractHash:   contractHash,
		WeightsVersion: weightsVersion,
		Candidate:      c,
	}, nil
}

// Status returns the lifecycle state
func (p *PublishedPick) Status() PickStatus {
	if p.Result != nil {
		return PickGraded
	}
	return PickPending
}

// IsGraded reports whether a result is attached
func (p *PublishedPick) IsGraded() bool {
	return p.Result != nil
}

// ApplyGrade attaches the result exactly once
func (p *PublishedPick) ApplyGrade(result Result, actual float64, at time.Time) error {
	if p.Result != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyGraded, p.PickID)
	}
	if _, err := ParseResult(string(result)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidGrading, err)
	}
	r := result
	v := actual
	t := at.UTC()
	p.Result = &r
	p.ActualValue = &v
	p.GradedAt = &t
	return nil
}

// Hit reports WIN=true, LOSS=false; PUSH and pending are not decisive
func (p *PublishedPick) Hit() (hit bool, decisive bool) {
	if p.Result == nil {
		return false, false
	}
	switch *p.Result {
	case ResultWin:
		return true, true
	case ResultLoss:
		return false, true
	}
	return false, false
}

// GradeInput is one tuple of the grading feed
type GradeInput struct {
	PickID      string  `json:"pick_id"`
	Result      Result  `json:"result"`
	ActualValue float64 `json:"actual_value"`
}

// GradeRejection records a feed tuple that was not applied
type GradeRejection struct {
	PickID string `json:"pick_id"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// GradeReport is the observable outcome of a grading batch
type GradeReport struct {
	Accepted []string         `json:"accepted"`
	Rejected []GradeRejection `json:"rejected"`
}
