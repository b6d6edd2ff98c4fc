package jobs

import (
	"context"
	"strings"
	"sync"

	"github.com/wonny/confluence/internal/contracts"
	"github.com/wonny/confluence/internal/learner"
	"github.com/wonny/confluence/pkg/logger"
)

// DefaultLearnerSchedule runs the learner daily at 06:15, after the
// overnight grading feed has landed
const DefaultLearnerSchedule = "0 15 6 * * *"

// SportLearner is the part of learner.Learner the job needs
type SportLearner interface {
	Run(ctx context.Context, sport contracts.Sport) (*learner.Report, error)
}

// LearnerJob runs the S7 learner for one sport
type LearnerJob struct {
	learner  SportLearner
	sport    contracts.Sport
	schedule string
	logger   *logger.Logger

	mu   sync.Mutex
	last *learner.Report
}

// NewLearnerJob creates a learner job. An empty schedule uses DefaultLearnerSchedule.
func NewLearnerJob(l SportLearner, sport contracts.Sport, schedule string, log *logger.Logger) *LearnerJob {
	if schedule == "" {
		schedule = DefaultLearnerSchedule
	}
	return &LearnerJob{
		learner:  l,
		sport:    sport,
		schedule: schedule,
		logger:   log.WithField("job", "learner").WithField("sport", string(sport)),
	}
}

// LearnerJobs creates one job per sport
func LearnerJobs(l SportLearner, sports []contracts.Sport, schedule string, log *logger.Logger) []*LearnerJob {
	out := make([]*LearnerJob, 0, len(sports))
	for _, sport := range sports {
		out = append(out, NewLearnerJob(l, sport, schedule, log))
	}
	return out
}

// Name returns the job name
func (j *LearnerJob) Name() string {
	return "learner_" + strings.ToLower(string(j.sport))
}

// Schedule returns the cron schedule
func (j *LearnerJob) Schedule() string {
	return j.schedule
}

// LastReport returns the report of the latest successful run
func (j *LearnerJob) LastReport() *learner.Report {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last
}

// Run executes one learner pass. A skipped run is a success; a locked
// sport is an error so the scheduler retries it.
func (j *LearnerJob) Run(ctx context.Context) error {
	j.logger.Debug("Starting scheduled learner run")

	rep, err := j.learner.Run(ctx, j.sport)
	if err != nil {
		return err
	}
	j.mu.Lock()
	j.last = rep
	j.mu.Unlock()

	j.logger.WithFields(map[string]interface{}{
		"state":     rep.State,
		"reason":    rep.Reason,
		"new_picks": rep.NewPicks,
		"version":   rep.VersionAfter,
	}).Info("Learner run finished")

	return nil
}
