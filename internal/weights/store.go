package weights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/wonny/confluence/internal/contracts"
	"github.com/wonny/confluence/pkg/logger"
)

// Store keeps one JSON table per sport in a directory
// ⭐ SSOT: 가중치 파일 읽기/쓰기는 여기서만 (S7 writer 1개, S1/S2는 Snapshot으로 읽기)
type Store struct {
	dir      string
	contract *contracts.Contract
	now      func() time.Time
	logger   *logger.Logger
}

var _ contracts.WeightStore = (*Store)(nil)

// NewStore creates the directory if needed
func NewStore(dir string, c *contracts.Contract, log *logger.Logger) (*Store, error) {
	if dir == "" {
		return nil, errors.New("weights dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create weights dir: %w", err)
	}
	return &Store{
		dir:      dir,
		contract: c,
		now:      time.Now,
		logger:   log.WithField("module", "weights"),
	}, nil
}

func (s *Store) path(sport contracts.Sport) string {
	return filepath.Join(s.dir, string(sport)+".json")
}

func (s *Store) lockPath(sport contracts.Sport) string {
	return filepath.Join(s.dir, string(sport)+".lock")
}

// Load reads one sport; a missing table yields the neutral config
func (s *Store) Load(ctx context.Context, sport contracts.Sport) (contracts.WeightConfig, error) {
	cfg, _, err := s.read(ctx, sport)
	return cfg, err
}

// read returns the config and whether it exists on disk
func (s *Store) read(ctx context.Context, sport contracts.Sport) (contracts.WeightConfig, bool, error) {
	if err := ctx.Err(); err != nil {
		return contracts.WeightConfig{}, false, err
	}

	data, err := os.ReadFile(s.path(sport))
	if errors.Is(err, fs.ErrNotExist) {
		return contracts.NeutralWeightConfig(s.contract, sport), false, nil
	}
	if err != nil {
		return contracts.WeightConfig{}, false, fmt.Errorf("read %s weights: %w", sport, err)
	}

	var cfg contracts.WeightConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return contracts.WeightConfig{}, false, fmt.Errorf("decode %s weights: %w", sport, err)
	}
	if cfg.Sport != sport {
		return contracts.WeightConfig{}, false, fmt.Errorf("%w: %s table holds sport %q", contracts.ErrInvariantViolation, sport, cfg.Sport)
	}
	if err := cfg.Validate(s.contract); err != nil {
		return contracts.WeightConfig{}, false, fmt.Errorf("load %s weights: %w", sport, err)
	}
	return cfg, true, nil
}

// Snapshot reads every sport once. Sports without a table are left out
// and resolve to neutral through WeightSnapshot.For.
func (s *Store) Snapshot(ctx context.Context) (*contracts.WeightSnapshot, error) {
	configs := make([]contracts.WeightConfig, 0, len(contracts.AllSports()))
	for _, sport := range contracts.AllSports() {
		cfg, exists, err := s.read(ctx, sport)
		if err != nil {
			return nil, err
		}
		if exists {
			configs = append(configs, cfg)
		}
	}

	snap := contracts.NewWeightSnapshot(configs, s.now())
	s.logger.WithFields(map[string]interface{}{
		"sports":  len(configs),
		"version": snap.Version(),
	}).Debug("Weight snapshot loaded")
	return snap, nil
}

// Save atomically replaces the sport's table: temp file in the same
// directory, fsync, rename. The on-disk version must still equal
// expectedVersion.
func (s *Store) Save(ctx context.Context, cfg contracts.WeightConfig, expectedVersion int64) error {
	if err := cfg.Validate(s.contract); err != nil {
		return fmt.Errorf("save %s weights: %w", cfg.Sport, err)
	}
	if cfg.Version <= expectedVersion {
		return fmt.Errorf("%w: %s new version %d must exceed %d", contracts.ErrInvariantViolation, cfg.Sport, cfg.Version, expectedVersion)
	}

	current, _, err := s.read(ctx, cfg.Sport)
	if err != nil {
		return err
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%w: %s on-disk version %d, expected %d", contracts.ErrConcurrentUpdate, cfg.Sport, current.Version, expectedVersion)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s weights: %w", cfg.Sport, err)
	}
	if err := writeFileAtomic(s.path(cfg.Sport), data); err != nil {
		return fmt.Errorf("write %s weights: %w", cfg.Sport, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"sport":   cfg.Sport,
		"version": cfg.Version,
	}).Info("Weight table saved")
	return nil
}

// Acquire takes the single-writer lock for a sport: an OS advisory lock on
// <sport>.lock. The lock dies with the holding process, so a file left
// behind by a crashed learner never blocks the next run. The file itself is
// never removed; removing it would let a second writer lock a fresh inode.
func (s *Store) Acquire(ctx context.Context, sport contracts.Sport) (func() error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fl := flock.New(s.lockPath(sport))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s weights: %w", sport, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", contracts.ErrLocked, sport)
	}

	s.logger.WithField("sport", sport).Debug("Weight lock acquired")
	return func() error {
		if err := fl.Unlock(); err != nil {
			return fmt.Errorf("release %s lock: %w", sport, err)
		}
		return nil
	}, nil
}

// writeFileAtomic writes data next to path and renames it into place
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}

	// persist the rename itself
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}
