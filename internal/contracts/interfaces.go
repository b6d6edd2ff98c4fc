package contracts

import (
	"context"
)

// PickLedger is the append-only pick log (S5/S6)
// ⭐ SSOT: 픽 저장/채점 인터페이스
type PickLedger interface {
	// Publish appends picks; an already-published pick_id is a no-op.
	// Returns the number of newly appended picks.
	Publish(ctx context.Context, picks []PublishedPick) (int, error)

	// Grade applies grading tuples. Unknown or already graded ids are
	// rejected in the report, never silently dropped.
	Grade(ctx context.Context, inputs []GradeInput) (*GradeReport, error)

	// Picks folds the log into the current pick set, ordered by pick_id
	Picks(ctx context.Context) ([]PublishedPick, error)
}

// WeightStore persists WeightConfig (S7 writes, S1/S2 read)
// ⭐ SSOT: 가중치 저장소 인터페이스
type WeightStore interface {
	// Snapshot reads every sport once for a scoring cycle
	Snapshot(ctx context.Context) (*WeightSnapshot, error)

	// Load reads one sport; a missing table yields the neutral config
	Load(ctx context.Context, sport Sport) (WeightConfig, error)

	// Acquire takes the single-writer intent for a sport
	Acquire(ctx context.Context, sport Sport) (release func() error, err error)

	// Save atomically replaces the sport's table. expectedVersion must match
	// the on-disk version, otherwise ErrConcurrentUpdate.
	Save(ctx context.Context, cfg WeightConfig, expectedVersion int64) error
}
