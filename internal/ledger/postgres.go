package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE SCHEMA IF NOT EXISTS ledger;

CREATE TABLE IF NOT EXISTS ledger.pick_events (
	seq        BIGSERIAL PRIMARY KEY,
	pick_id    TEXT        NOT NULL,
	event      TEXT        NOT NULL,
	at         TIMESTAMPTZ NOT NULL,
	payload    JSONB       NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS pick_events_pick_event_uq
	ON ledger.pick_events (pick_id, event);
`

// writerLockKey is the pg_advisory_lock key shared by every ledger writer
const writerLockKey int64 = 0x70696b5f6c6564 // "pik_led"

// PostgresStore keeps the event log in ledger.pick_events.
// (pick_id, event) is unique, so a pick is published and graded at most
// once even with several writers; Seq is the seq column.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store on an existing pool
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the ledger table if missing
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create ledger schema: %w", err)
	}
	return nil
}

// Lock takes a session advisory lock on a dedicated connection
func (s *PostgresStore) Lock(ctx context.Context) (func() error, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", writerLockKey); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to lock ledger: %w", err)
	}

	var once sync.Once
	return func() error {
		var uerr error
		once.Do(func() {
			defer conn.Release()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", writerLockKey); err != nil {
				// a session lock that cannot be released must not return to the pool
				_ = conn.Conn().Close(ctx)
				uerr = fmt.Errorf("failed to unlock ledger: %w", err)
			}
		})
		return uerr
	}, nil
}

// Append inserts events in one transaction. An event whose (pick_id, event)
// row already exists inserts nothing and is reported not stored.
func (s *PostgresStore) Append(ctx context.Context, events []Event) ([]bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO ledger.pick_events (pick_id, event, at, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (pick_id, event) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, ev := range events {
		payload, err := json.Marshal(ev.Pick)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal pick %s: %w", ev.Pick.PickID, err)
		}
		batch.Queue(query, ev.Pick.PickID, string(ev.Event), ev.At, payload)
	}

	stored := make([]bool, len(events))
	br := tx.SendBatch(ctx, batch)
	for i := range events {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return nil, fmt.Errorf("failed to insert ledger event: %w", err)
		}
		stored[i] = tag.RowsAffected() == 1
	}
	if err := br.Close(); err != nil {
		return nil, fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return stored, nil
}

// Events returns the log in insertion order
func (s *PostgresStore) Events(ctx context.Context) ([]Event, error) {
	query := `
		SELECT seq, event, at, payload
		FROM ledger.pick_events
		ORDER BY seq ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger events: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0)
	for rows.Next() {
		var ev Event
		var eventType string
		var payload []byte
		if err := rows.Scan(&ev.Seq, &eventType, &ev.At, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		ev.Event = EventType(eventType)
		if err := json.Unmarshal(payload, &ev.Pick); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pick: %w", err)
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return events, nil
}

// Close is a no-op; the pool belongs to pkg/database
func (s *PostgresStore) Close() error {
	return nil
}
