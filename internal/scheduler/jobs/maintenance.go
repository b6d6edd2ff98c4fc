package jobs

import (
	"context"

	"github.com/wonny/confluence/internal/contracts"
	"github.com/wonny/confluence/internal/metrics"
	"github.com/wonny/confluence/pkg/logger"
)

// WeightGaugeJob republishes the persisted weight tables as gauges, so a
// process that does not run the learner still exports current weights
type WeightGaugeJob struct {
	store   contracts.WeightStore
	metrics *metrics.Metrics
	logger  *logger.Logger
}

// NewWeightGaugeJob creates a new weight gauge job
func NewWeightGaugeJob(store contracts.WeightStore, m *metrics.Metrics, log *logger.Logger) *WeightGaugeJob {
	return &WeightGaugeJob{
		store:   store,
		metrics: m,
		logger:  log.WithField("job", "weight_gauges"),
	}
}

// Name returns the job name
func (j *WeightGaugeJob) Name() string {
	return "weight_gauges"
}

// Schedule returns the cron schedule (every 5 minutes)
func (j *WeightGaugeJob) Schedule() string {
	return "0 */5 * * * *"
}

// Run reads one snapshot and updates the gauges
func (j *WeightGaugeJob) Run(ctx context.Context) error {
	snap, err := j.store.Snapshot(ctx)
	if err != nil {
		return err
	}

	for _, sport := range snap.Sports() {
		cfg := snap.For(nil, sport)
		mult := make(map[string]float64, len(cfg.Multipliers))
		for e, v := range cfg.Multipliers {
			mult[string(e)] = v
		}
		sides := make(map[string]float64, len(cfg.SideCalibration))
		for s, v := range cfg.SideCalibration {
			sides[string(s)] = v
		}
		j.metrics.SetWeights(string(sport), mult, sides)
	}

	j.logger.WithFields(map[string]interface{}{
		"sports":  len(snap.Sports()),
		"version": snap.Version(),
	}).Debug("Weight gauges refreshed")

	return nil
}
