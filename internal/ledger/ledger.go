package ledger

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/wonny/confluence/internal/contracts"
	"github.com/wonny/confluence/internal/metrics"
	"github.com/wonny/confluence/pkg/logger"
)

// Grade rejection reasons
const (
	RejectUnknown       = "unknown_pick"
	RejectAlreadyGraded = "already_graded"
	RejectInvalid       = "invalid"
)

// Ledger is the pick log (S5 publish, S6 grade)
// ⭐ SSOT: 픽 기록/채점은 여기서만 (append-only, 결과는 한 번만 기록)
type Ledger struct {
	store   Store
	mu      sync.Mutex // serializes read-fold-append within the process; store.Lock across processes
	now     func() time.Time
	logger  *logger.Logger
	metrics *metrics.Metrics
}

var _ contracts.PickLedger = (*Ledger)(nil)

// New creates a ledger over a store. metrics may be nil.
func New(store Store, log *logger.Logger, m *metrics.Metrics) *Ledger {
	return &Ledger{
		store:   store,
		now:     time.Now,
		logger:  log.WithField("module", "ledger"),
		metrics: m,
	}
}

// Close releases the backend
func (l *Ledger) Close() error {
	return l.store.Close()
}

// Publish appends PUBLISHED events. A pick_id already in the ledger, or
// repeated within the batch, is skipped.
func (l *Ledger) Publish(ctx context.Context, picks []contracts.PublishedPick) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	unlock, err := l.store.Lock(ctx)
	if err != nil {
		return 0, err
	}
	defer l.release(unlock)

	current, err := l.fold(ctx)
	if err != nil {
		return 0, err
	}

	at := l.now().UTC()
	events := make([]Event, 0, len(picks))
	for _, p := range picks {
		if p.PickID == "" {
			return 0, fmt.Errorf("%w: pick without pick_id", contracts.ErrInvariantViolation)
		}
		if p.IsGraded() {
			return 0, fmt.Errorf("%w: pick %s published with a result", contracts.ErrInvariantViolation, p.PickID)
		}
		if _, exists := current[p.PickID]; exists {
			continue
		}
		pick := p
		current[p.PickID] = &pick
		events = append(events, Event{Event: EventPublished, At: at, Pick: p})
	}

	if len(events) == 0 {
		l.logger.WithField("input", len(picks)).Debug("Publish: nothing new")
		return 0, nil
	}
	stored, err := l.store.Append(ctx, events)
	if err != nil {
		return 0, fmt.Errorf("append published picks: %w", err)
	}

	published := 0
	for i, ev := range events {
		if !stored[i] {
			continue
		}
		published++
		l.metrics.ObservePublished(string(ev.Pick.Candidate.Sport), string(ev.Pick.Candidate.Tier))
	}
	l.logger.WithFields(map[string]interface{}{
		"input":     len(picks),
		"published": published,
		"skipped":   len(picks) - published,
	}).Info("Picks published")

	return published, nil
}

// Grade applies grading tuples. Every tuple ends up either accepted or
// rejected with a reason; nothing is dropped silently.
//
// The fold that validates the batch and the append run under the store's
// writer lock, so a concurrent grader in another process sees this batch
// and its own duplicate is rejected.
func (l *Ledger) Grade(ctx context.Context, inputs []contracts.GradeInput) (*contracts.GradeReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	unlock, err := l.store.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer l.release(unlock)

	current, err := l.fold(ctx)
	if err != nil {
		return nil, err
	}

	report := &contracts.GradeReport{
		Accepted: make([]string, 0, len(inputs)),
	}
	at := l.now().UTC()
	events := make([]Event, 0, len(inputs))
	var rejected []contracts.GradeRejection

	for _, in := range inputs {
		result, reason, err := l.checkGrade(current, in)
		if err != nil {
			rejected = append(rejected, contracts.GradeRejection{PickID: in.PickID, Reason: reason, Err: err})
			continue
		}

		p := *current[in.PickID]
		if err := p.ApplyGrade(result, in.ActualValue, at); err != nil {
			rejected = append(rejected, contracts.GradeRejection{PickID: in.PickID, Reason: RejectInvalid, Err: err})
			continue
		}
		current[in.PickID] = &p
		events = append(events, Event{Event: EventGraded, At: at, Pick: p})
	}

	var stored []bool
	if len(events) > 0 {
		stored, err = l.store.Append(ctx, events)
		if err != nil {
			return nil, fmt.Errorf("append grades: %w", err)
		}
	}

	// the store is the judge of what was recorded
	for i, ev := range events {
		if !stored[i] {
			rejected = append(rejected, contracts.GradeRejection{
				PickID: ev.Pick.PickID,
				Reason: RejectAlreadyGraded,
				Err:    fmt.Errorf("%w: %s (recorded by another writer)", contracts.ErrAlreadyGraded, ev.Pick.PickID),
			})
			continue
		}
		report.Accepted = append(report.Accepted, ev.Pick.PickID)
		l.metrics.ObserveGrade(string(*ev.Pick.Result))
	}
	report.Rejected = rejected

	for _, rej := range report.Rejected {
		l.metrics.ObserveGradeRejection(rej.Reason)
		l.logger.WithError(rej.Err).WithFields(map[string]interface{}{
			"pick_id": rej.PickID,
			"reason":  rej.Reason,
		}).Warn("Grade rejected")
	}
	l.logger.WithFields(map[string]interface{}{
		"input":    len(inputs),
		"accepted": len(report.Accepted),
		"rejected": len(report.Rejected),
	}).Info("Grading completed")

	return report, nil
}

// Picks folds the log into the current pick set, ordered by pick_id
func (l *Ledger) Picks(ctx context.Context) ([]contracts.PublishedPick, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, err := l.fold(ctx)
	if err != nil {
		return nil, err
	}
	return sortedPicks(current), nil
}

func (l *Ledger) release(unlock func() error) {
	if err := unlock(); err != nil {
		l.logger.WithError(err).Warn("Failed to release ledger lock")
	}
}

func (l *Ledger) fold(ctx context.Context) (map[string]*contracts.PublishedPick, error) {
	events, err := l.store.Events(ctx)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return Fold(events), nil
}

// checkGrade returns the normalized result, or a rejection reason
func (l *Ledger) checkGrade(current map[string]*contracts.PublishedPick, in contracts.GradeInput) (contracts.Result, string, error) {
	result, err := contracts.ParseResult(string(in.Result))
	if err != nil {
		return "", RejectInvalid, fmt.Errorf("%w: %v", contracts.ErrInvalidGrading, err)
	}
	if math.IsNaN(in.ActualValue) || math.IsInf(in.ActualValue, 0) {
		return "", RejectInvalid, fmt.Errorf("%w: actual_value is not finite", contracts.ErrInvalidGrading)
	}
	p, ok := current[in.PickID]
	if !ok {
		return "", RejectUnknown, fmt.Errorf("%w: %s", contracts.ErrUnknownPick, in.PickID)
	}
	if p.IsGraded() {
		return "", RejectAlreadyGraded, fmt.Errorf("%w: %s", contracts.ErrAlreadyGraded, in.PickID)
	}
	return result, "", nil
}
