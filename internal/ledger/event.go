package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/wonny/confluence/internal/contracts"
)

// EventType is the kind of a ledger event
type EventType string

const (
	EventPublished EventType = "PUBLISHED"
	EventGraded    EventType = "GRADED"
)

// Event is one append-only ledger record.
// GRADED events carry the full pick with its result attached.
type Event struct {
	Event EventType               `json:"event"`
	At    time.Time               `json:"at"`
	Pick  contracts.PublishedPick `json:"pick"`

	// Seq is the position in the log, assigned by the store on read
	Seq int64 `json:"-"`
}

// Store is an append-only event log backend shared by several processes
type Store interface {
	// Lock takes the cross-process writer lock. Ledger holds it from the
	// fold that validates a batch until the batch is appended.
	Lock(ctx context.Context) (unlock func() error, err error)

	// Append writes events in order and reports, per event, whether it was
	// stored. Either the whole call is durable or it fails.
	Append(ctx context.Context, events []Event) ([]bool, error)

	// Events returns every event in append order with Seq set
	Events(ctx context.Context) ([]Event, error)

	Close() error
}

// Fold replays events into the current pick set.
//
// The first PUBLISHED event for a pick_id wins; later ones are ignored.
// The first GRADED event for a published, ungraded pick sets the result
// and GradeSeq; results are never cleared or replaced.
func Fold(events []Event) map[string]*contracts.PublishedPick {
	picks := make(map[string]*contracts.PublishedPick)
	for _, ev := range events {
		id := ev.Pick.PickID
		switch ev.Event {
		case EventPublished:
			if _, ok := picks[id]; ok {
				continue
			}
			p := ev.Pick
			p.Result, p.ActualValue, p.GradedAt, p.GradeSeq = nil, nil, nil, 0
			picks[id] = &p
		case EventGraded:
			p, ok := picks[id]
			if !ok || p.IsGraded() || ev.Pick.Result == nil {
				continue
			}
			actual := 0.0
			if ev.Pick.ActualValue != nil {
				actual = *ev.Pick.ActualValue
			}
			at := ev.At
			if ev.Pick.GradedAt != nil {
				at = *ev.Pick.GradedAt
			}
			if p.ApplyGrade(*ev.Pick.Result, actual, at) == nil {
				p.GradeSeq = ev.Seq
			}
		}
	}
	return picks
}

// sortedPicks returns the folded picks ordered by pick_id
func sortedPicks(m map[string]*contracts.PublishedPick) []contracts.PublishedPick {
	out := make([]contracts.PublishedPick, 0, len(m))
	for _, p := range m {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PickID < out[j].PickID })
	return out
}
