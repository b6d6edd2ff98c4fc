package jobs

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/confluence/internal/contracts"
	"github.com/wonny/confluence/internal/learner"
	"github.com/wonny/confluence/internal/metrics"
	"github.com/wonny/confluence/internal/weights"
	"github.com/wonny/confluence/pkg/logger"
)

type fakeLearner struct {
	err   error
	calls []contracts.Sport
}

func (f *fakeLearner) Run(_ context.Context, sport contracts.Sport) (*learner.Report, error) {
	f.calls = append(f.calls, sport)
	if f.err != nil {
		return nil, f.err
	}
	return &learner.Report{Sport: sport, State: learner.StateSkipped, Reason: learner.ReasonNoNewPicks}, nil
}

func TestLearnerJobs(t *testing.T) {
	fl := &fakeLearner{}
	list := LearnerJobs(fl, []contracts.Sport{contracts.SportNBA, contracts.SportNCAAB}, "", logger.Nop())
	require.Len(t, list, 2)

	assert.Equal(t, "learner_nba", list[0].Name())
	assert.Equal(t, "learner_ncaab", list[1].Name())
	assert.Equal(t, DefaultLearnerSchedule, list[0].Schedule())
	assert.Nil(t, list[0].LastReport())

	require.NoError(t, list[1].Run(context.Background()))
	assert.Equal(t, []contracts.Sport{contracts.SportNCAAB}, fl.calls)
	require.NotNil(t, list[1].LastReport())
	assert.Equal(t, learner.StateSkipped, list[1].LastReport().State)
}

func TestLearnerJob_PropagatesLock(t *testing.T) {
	fl := &fakeLearner{err: fmt.Errorf("%w: NBA", contracts.ErrLocked)}
	job := NewLearnerJob(fl, contracts.SportNBA, "0 0 7 * * *", logger.Nop())

	assert.Equal(t, "0 0 7 * * *", job.Schedule())
	err := job.Run(context.Background())
	assert.ErrorIs(t, err, contracts.ErrLocked)
	assert.Nil(t, job.LastReport())
}

func TestWeightGaugeJob(t *testing.T) {
	ctx := context.Background()
	c := contracts.DefaultContract()
	store, err := weights.NewStore(t.TempDir(), c, logger.Nop())
	require.NoError(t, err)

	cfg := contracts.NeutralWeightConfig(c, contracts.SportNHL)
	cfg.Multipliers[contracts.EngineJarvis] = 1.1
	cfg.SideCalibration[contracts.SideUnder] = 0.05
	cfg.Version = 1
	require.NoError(t, store.Save(ctx, cfg, 0))

	m := metrics.New()
	job := NewWeightGaugeJob(store, m, logger.Nop())
	assert.Equal(t, "weight_gauges", job.Name())
	require.NoError(t, job.Run(ctx))

	assert.Equal(t, 1.1, testutil.ToFloat64(m.WeightMultiplier.WithLabelValues("NHL", "jarvis")))
	assert.Equal(t, 0.05, testutil.ToFloat64(m.SideCalibration.WithLabelValues("NHL", "UNDER")))
}
