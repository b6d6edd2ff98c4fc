package ledger

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/confluence/internal/contracts"
	"github.com/wonny/confluence/internal/metrics"
	"github.com/wonny/confluence/pkg/logger"
)

var slate = time.Date(2026, 1, 15, 0, 30, 0, 0, time.UTC)

func testPick(t *testing.T, player string, side contracts.Side) contracts.PublishedPick {
	t.Helper()
	c := contracts.NewPropCandidate(contracts.SportNBA, "evt-1", slate, player, "points", 25.5, side, "dk")
	require.NoError(t, c.ApplyScore(contracts.ScoreCard{
		FinalScore: 7.0,
		Decision:   contracts.TierDecision{Tier: contracts.TierEdgeLean},
	}))
	p, err := contracts.NewPublishedPick(c, slate, "run-1", "hash", "neutral")
	require.NoError(t, err)
	return p
}

func newFileLedger(t *testing.T) (*Ledger, *FileStore, *metrics.Metrics) {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "data", "picks.jsonl"))
	require.NoError(t, err)
	m := metrics.New()
	l := New(store, logger.Nop(), m)
	l.now = func() time.Time { return slate.Add(6 * time.Hour) }
	return l, store, m
}

func TestPublish_Idempotent(t *testing.T) {
	ctx := context.Background()
	l, _, m := newFileLedger(t)

	a := testPick(t, "LeBron James", contracts.SideOver)
	b := testPick(t, "Anthony Davis", contracts.SideUnder)

	n, err := l.Publish(ctx, []contracts.PublishedPick{a, b, a})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = l.Publish(ctx, []contracts.PublishedPick{a})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	picks, err := l.Picks(ctx)
	require.NoError(t, err)
	require.Len(t, picks, 2)
	assert.Less(t, picks[0].PickID, picks[1].PickID)
	assert.Equal(t, contracts.PickPending, picks[0].Status())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PicksPublished.WithLabelValues("NBA", "EDGE_LEAN")))
}

func TestPublish_RejectsGradedPick(t *testing.T) {
	l, _, _ := newFileLedger(t)
	p := testPick(t, "LeBron James", contracts.SideOver)
	require.NoError(t, p.ApplyGrade(contracts.ResultWin, 30, slate))

	_, err := l.Publish(context.Background(), []contracts.PublishedPick{p})
	assert.ErrorIs(t, err, contracts.ErrInvariantViolation)
}

func TestGrade(t *testing.T) {
	ctx := context.Background()
	l, _, m := newFileLedger(t)

	a := testPick(t, "LeBron James", contracts.SideOver)
	b := testPick(t, "Anthony Davis", contracts.SideUnder)
	_, err := l.Publish(ctx, []contracts.PublishedPick{a, b})
	require.NoError(t, err)

	report, err := l.Grade(ctx, []contracts.GradeInput{
		{PickID: a.PickID, Result: "win", ActualValue: 31},
		{PickID: a.PickID, Result: contracts.ResultLoss, ActualValue: 20}, // second grade in the same batch
		{PickID: "pk_missing", Result: contracts.ResultWin, ActualValue: 1},
		{PickID: b.PickID, Result: "DRAW", ActualValue: 1},
		{PickID: b.PickID, Result: contracts.ResultPush, ActualValue: math.NaN()},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{a.PickID}, report.Accepted)
	require.Len(t, report.Rejected, 4)
	assert.Equal(t, RejectAlreadyGraded, report.Rejected[0].Reason)
	assert.ErrorIs(t, report.Rejected[0].Err, contracts.ErrAlreadyGraded)
	assert.Equal(t, RejectUnknown, report.Rejected[1].Reason)
	assert.ErrorIs(t, report.Rejected[1].Err, contracts.ErrUnknownPick)
	assert.Equal(t, RejectInvalid, report.Rejected[2].Reason)
	assert.ErrorIs(t, report.Rejected[3].Err, contracts.ErrInvalidGrading)

	// a later batch cannot overwrite the result
	report, err = l.Grade(ctx, []contracts.GradeInput{{PickID: a.PickID, Result: contracts.ResultLoss, ActualValue: 10}})
	require.NoError(t, err)
	assert.Empty(t, report.Accepted)
	assert.Equal(t, RejectAlreadyGraded, report.Rejected[0].Reason)

	picks, err := l.Picks(ctx)
	require.NoError(t, err)
	for _, p := range picks {
		if p.PickID == a.PickID {
			require.True(t, p.IsGraded())
			assert.Equal(t, contracts.ResultWin, *p.Result)
			assert.Equal(t, 31.0, *p.ActualValue)
			assert.True(t, slate.Add(6*time.Hour).Equal(*p.GradedAt))
		} else {
			assert.False(t, p.IsGraded())
		}
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.GradesApplied.WithLabelValues("WIN")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.GradeRejections.WithLabelValues(RejectAlreadyGraded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GradeRejections.WithLabelValues(RejectUnknown)))
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	l, store, _ := newFileLedger(t)

	a := testPick(t, "LeBron James", contracts.SideOver)
	_, err := l.Publish(ctx, []contracts.PublishedPick{a})
	require.NoError(t, err)

	reopened, err := NewFileStore(store.Path())
	require.NoError(t, err)
	picks, err := New(reopened, logger.Nop(), nil).Picks(ctx)
	require.NoError(t, err)
	require.Len(t, picks, 1)
	assert.Equal(t, a.PickID, picks[0].PickID)
	assert.Equal(t, a.Candidate.FinalScore, picks[0].Candidate.FinalScore)
}

func TestFileStore_TornTail(t *testing.T) {
	ctx := context.Background()
	l, store, _ := newFileLedger(t)

	_, err := l.Publish(ctx, []contracts.PublishedPick{testPick(t, "LeBron James", contracts.SideOver)})
	require.NoError(t, err)

	f, err := os.OpenFile(store.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"event":"PUBLISHED","at":"2026-01-`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	events, err := store.Events(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestFileStore_CorruptMiddleLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "picks.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{not json}\n{}\n"), 0o644))

	store, err := NewFileStore(path)
	require.NoError(t, err)
	_, err = store.Events(context.Background())
	assert.Error(t, err)
}

func TestFold_FirstWins(t *testing.T) {
	p := testPick(t, "LeBron James", contracts.SideOver)

	win := p
	require.NoError(t, win.ApplyGrade(contracts.ResultWin, 30, slate))
	loss := p
	require.NoError(t, loss.ApplyGrade(contracts.ResultLoss, 10, slate))

	orphan := testPick(t, "Nobody", contracts.SideUnder)
	require.NoError(t, orphan.ApplyGrade(contracts.ResultWin, 1, slate))

	picks := Fold([]Event{
		{Event: EventGraded, At: slate, Pick: orphan}, // grade before publish is ignored
		{Event: EventPublished, At: slate, Pick: p},
		{Event: EventGraded, At: slate, Pick: win},
		{Event: EventGraded, At: slate, Pick: loss},
		{Event: EventPublished, At: slate, Pick: p},
	})

	require.Len(t, picks, 1)
	got := picks[p.PickID]
	require.NotNil(t, got)
	assert.Equal(t, contracts.ResultWin, *got.Result)
}

func TestGrade_TwoWritersOnOneFile(t *testing.T) {
	ctx := context.Background()
	a, store, _ := newFileLedger(t)

	p := testPick(t, "LeBron James", contracts.SideOver)
	_, err := a.Publish(ctx, []contracts.PublishedPick{p})
	require.NoError(t, err)

	// B is a second process over the same log
	otherStore, err := NewFileStore(store.Path())
	require.NoError(t, err)
	b := New(otherStore, logger.Nop(), nil)

	type outcome struct {
		report *contracts.GradeReport
		err    error
	}
	fromB := make(chan outcome, 1)

	// B grades while A sits between its fold and its append
	gradedAt := slate.Add(6 * time.Hour)
	a.now = func() time.Time {
		go func() {
			rep, err := b.Grade(ctx, []contracts.GradeInput{{PickID: p.PickID, Result: contracts.ResultLoss, ActualValue: 12}})
			fromB <- outcome{rep, err}
		}()
		time.Sleep(50 * time.Millisecond)
		return gradedAt
	}

	repA, err := a.Grade(ctx, []contracts.GradeInput{{PickID: p.PickID, Result: contracts.ResultWin, ActualValue: 31}})
	require.NoError(t, err)
	assert.Equal(t, []string{p.PickID}, repA.Accepted)

	gotB := <-fromB
	require.NoError(t, gotB.err)
	assert.Empty(t, gotB.report.Accepted)
	require.Len(t, gotB.report.Rejected, 1)
	assert.Equal(t, RejectAlreadyGraded, gotB.report.Rejected[0].Reason)

	picks, err := b.Picks(ctx)
	require.NoError(t, err)
	require.Len(t, picks, 1)
	assert.Equal(t, contracts.ResultWin, *picks[0].Result)
}

func TestFileStore_LockBlocksOtherWriter(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "picks.jsonl")
	first, err := NewFileStore(path)
	require.NoError(t, err)
	second, err := NewFileStore(path)
	require.NoError(t, err)

	unlock, err := first.Lock(ctx)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	_, err = second.Lock(waitCtx)
	cancel()
	assert.Error(t, err)

	require.NoError(t, unlock())
	require.NoError(t, unlock(), "double unlock is harmless")

	unlock, err = second.Lock(ctx)
	require.NoError(t, err)
	require.NoError(t, unlock())
}

// rivalStore reports GRADED events as already recorded, the way the
// Postgres unique index does when another writer got there first
type rivalStore struct {
	*FileStore
}

func (r rivalStore) Append(ctx context.Context, events []Event) ([]bool, error) {
	stored := make([]bool, len(events))
	var keep []Event
	for i, ev := range events {
		if ev.Event == EventGraded {
			continue
		}
		stored[i] = true
		keep = append(keep, ev)
	}
	if len(keep) > 0 {
		if _, err := r.FileStore.Append(ctx, keep); err != nil {
			return nil, err
		}
	}
	return stored, nil
}

func TestGrade_StoreConflictIsRejected(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "picks.jsonl"))
	require.NoError(t, err)
	m := metrics.New()
	l := New(rivalStore{store}, logger.Nop(), m)

	p := testPick(t, "LeBron James", contracts.SideOver)
	n, err := l.Publish(ctx, []contracts.PublishedPick{p})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	report, err := l.Grade(ctx, []contracts.GradeInput{
		{PickID: p.PickID, Result: contracts.ResultWin, ActualValue: 31},
		{PickID: "pk_missing", Result: contracts.ResultWin, ActualValue: 1},
	})
	require.NoError(t, err)
	assert.Empty(t, report.Accepted)
	require.Len(t, report.Rejected, 2)
	assert.Equal(t, RejectUnknown, report.Rejected[0].Reason)
	assert.Equal(t, p.PickID, report.Rejected[1].PickID)
	assert.Equal(t, RejectAlreadyGraded, report.Rejected[1].Reason)
	assert.ErrorIs(t, report.Rejected[1].Err, contracts.ErrAlreadyGraded)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.GradesApplied.WithLabelValues("WIN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GradeRejections.WithLabelValues(RejectAlreadyGraded)))
}

func TestFileStore_AppendAfterTornTail(t *testing.T) {
	ctx := context.Background()
	l, store, _ := newFileLedger(t)

	a := testPick(t, "LeBron James", contracts.SideOver)
	_, err := l.Publish(ctx, []contracts.PublishedPick{a})
	require.NoError(t, err)

	f, err := os.OpenFile(store.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"event":"PUBLISHED","at":"2026-01-`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	b := testPick(t, "Anthony Davis", contracts.SideUnder)
	_, err = l.Publish(ctx, []contracts.PublishedPick{b})
	require.NoError(t, err)
	report, err := l.Grade(ctx, []contracts.GradeInput{{PickID: b.PickID, Result: contracts.ResultPush, ActualValue: 25.5}})
	require.NoError(t, err)
	assert.Len(t, report.Accepted, 1)

	events, err := store.Events(ctx)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.Seq)
	}

	picks, err := l.Picks(ctx)
	require.NoError(t, err)
	for _, p := range picks {
		if p.PickID == b.PickID {
			assert.Equal(t, int64(3), p.GradeSeq)
		} else {
			assert.Zero(t, p.GradeSeq)
		}
	}
}
