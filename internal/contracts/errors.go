package contracts

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across stages.
// 호출자는 errors.Is로 분기 (fatal vs 후보 단위 실패)
var (
	// ErrInvariantViolation halts the affected scoring run.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrTierMismatch means a tier could not be re-derived from its inputs.
	// It wraps ErrInvariantViolation.
	ErrTierMismatch = fmt.Errorf("%w: tier mismatch", ErrInvariantViolation)

	// ErrAlreadyScored is returned when derived score fields are written twice.
	ErrAlreadyScored = fmt.Errorf("%w: candidate already scored", ErrInvariantViolation)

	// ErrCandidateTimeout fails a single candidate; the batch continues.
	ErrCandidateTimeout = errors.New("candidate scoring timed out")

	// ErrInvalidCandidate rejects malformed input (missing variant, bad side).
	ErrInvalidCandidate = errors.New("invalid candidate")

	// Grading feed rejections
	ErrUnknownPick    = errors.New("unknown pick id")
	ErrAlreadyGraded  = errors.New("pick already graded")
	ErrInvalidGrading = errors.New("invalid grading input")

	// Weight store
	ErrConcurrentUpdate = errors.New("weight config changed on disk during update")
	ErrLocked           = errors.New("weight config is locked by another learner run")
)
