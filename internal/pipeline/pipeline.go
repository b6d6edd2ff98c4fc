package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/confluence/internal/contracts"
	"github.com/wonny/confluence/internal/s0_engines"
	"github.com/wonny/confluence/internal/scoring"
	"github.com/wonny/confluence/internal/selection"
	"github.com/wonny/confluence/pkg/logger"
)

// Pipeline coordinates one scoring cycle
// ⭐ SSOT: 파이프라인 조율은 여기서만
//
// S0~S3 (scoring) → boundary → S4 gate → S5 publish
type Pipeline struct {
	contract     *contracts.Contract
	contractHash string

	scorer   *scoring.Scorer
	boundary *selection.Boundary
	gate     *selection.Gate

	weights contracts.WeightStore
	ledger  contracts.PickLedger // nil: scoring only

	now    func() time.Time
	logger *logger.Logger
}

// RunConfig holds configuration for a pipeline run
type RunConfig struct {
	RunID   string // generated when empty
	Publish bool   // append kept candidates to the ledger
}

// RunResult holds the results of a complete pipeline run
type RunResult struct {
	RunID           string                     `json:"run_id"`
	Success         bool                       `json:"success"`
	Error           string                     `json:"error,omitempty"`
	CompletedStages []string                   `json:"completed_stages"`
	Scored          []contracts.Candidate      `json:"scored"`
	Failed          []scoring.CandidateFailure `json:"failed"`
	Rejected        []selection.Rejection      `json:"rejected"`
	Kept            []contracts.Candidate      `json:"kept"`
	Blocked         []contracts.Candidate      `json:"blocked"`
	Picks           []contracts.PublishedPick  `json:"picks,omitempty"`
	NewlyPublished  int                        `json:"newly_published"`
	Snapshot        contracts.PipelineSnapshot `json:"snapshot"`
	Duration        time.Duration              `json:"duration"`
}

// New creates a pipeline. ledger may be nil when nothing is published.
func New(
	c *contracts.Contract,
	scorer *scoring.Scorer,
	boundary *selection.Boundary,
	gate *selection.Gate,
	weights contracts.WeightStore,
	ledger contracts.PickLedger,
	log *logger.Logger,
) (*Pipeline, error) {
	hash, err := c.Hash()
	if err != nil {
		return nil, fmt.Errorf("hash contract: %w", err)
	}
	return &Pipeline{
		contract:     c,
		contractHash: hash,
		scorer:       scorer,
		boundary:     boundary,
		gate:         gate,
		weights:      weights,
		ledger:       ledger,
		now:          time.Now,
		logger:       log.WithField("module", "pipeline"),
	}, nil
}

// ContractHash returns the hash stamped on every run
func (p *Pipeline) ContractHash() string {
	return p.contractHash
}

// Run executes one cycle against a single weight snapshot taken up front.
// An invariant violation halts the run; the result still describes how far
// it got.
func (p *Pipeline) Run(ctx context.Context, inputs []s0_engines.MatchContext, cfg RunConfig) (*RunResult, error) {
	startTime := p.now()
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}

	result := &RunResult{
		RunID:           cfg.RunID,
		CompletedStages: make([]string, 0, 4),
		Snapshot: contracts.PipelineSnapshot{
			RunID:          cfg.RunID,
			Sport:          batchSport(inputs),
			Timestamp:      startTime.Unix(),
			ContractHash:   p.contractHash,
			CandidateCount: len(inputs),
			Results:        make(map[contracts.Stage]contracts.PipelineResult),
		},
	}

	log := p.logger.WithRun(cfg.RunID)
	log.WithFields(map[string]interface{}{
		"candidates": len(inputs),
		"publish":    cfg.Publish,
	}).Info("Starting pipeline run")

	fail := func(stage contracts.Stage, err error) (*RunResult, error) {
		err = fmt.Errorf("%s failed: %w", stage.ShortName(), err)
		result.Error = err.Error()
		result.Duration = time.Since(startTime)
		log.WithError(err).Error("Pipeline run failed")
		return result, err
	}

	// Weight snapshot: read once, never mid-cycle
	snap, err := p.weights.Snapshot(ctx)
	if err != nil {
		return fail(contracts.StageCompose, fmt.Errorf("load weight snapshot: %w", err))
	}
	result.Snapshot.WeightsVersion = snap.Version()

	// S0~S3: collect, compose, boost, classify
	stageStart := time.Now()
	batch, err := p.scorer.ScoreBatch(ctx, inputs, snap)
	if err != nil {
		result.Snapshot.Results[contracts.StageTier] = stageResult(contracts.StageTier, len(inputs), 0, stageStart, err)
		return fail(contracts.StageTier, err)
	}
	result.Scored = batch.Scored
	result.Failed = batch.Failed
	res := stageResult(contracts.StageTier, len(inputs), len(batch.Scored), stageStart, nil)
	res.Metadata = map[string]interface{}{"failed": len(batch.Failed)}
	result.Snapshot.Results[contracts.StageTier] = res
	result.CompletedStages = append(result.CompletedStages, "S0-S3:Scoring")

	// S4: publish boundary, then contradiction gate over the full batch
	stageStart = time.Now()
	bounded, err := p.boundary.Filter(batch.Scored)
	if err != nil {
		result.Rejected = bounded.Rejected
		result.Snapshot.Results[contracts.StageGate] = stageResult(contracts.StageGate, len(batch.Scored), 0, stageStart, err)
		return fail(contracts.StageGate, err)
	}
	gated := p.gate.Apply(bounded.Passed)
	result.Rejected = bounded.Rejected
	result.Kept = gated.Kept
	result.Blocked = gated.Blocked
	res = stageResult(contracts.StageGate, len(batch.Scored), len(gated.Kept), stageStart, nil)
	res.Metadata = map[string]interface{}{
		"rejected": len(bounded.Rejected),
		"blocked":  len(gated.Blocked),
	}
	result.Snapshot.Results[contracts.StageGate] = res
	result.CompletedStages = append(result.CompletedStages, "S4:Gate")

	// S5: publish
	picks := make([]contracts.PublishedPick, 0, len(gated.Kept))
	for _, c := range gated.Kept {
		pick, err := contracts.NewPublishedPick(c, startTime, cfg.RunID, p.contractHash, snap.Version())
		if err != nil {
			result.Snapshot.Results[contracts.StagePublish] = stageResult(contracts.StagePublish, len(gated.Kept), 0, stageStart, err)
			return fail(contracts.StagePublish, err)
		}
		picks = append(picks, pick)
	}
	result.Picks = picks
	result.Snapshot.PublishedCount = len(picks)

	if cfg.Publish && p.ledger != nil {
		stageStart = time.Now()
		n, err := p.ledger.Publish(ctx, picks)
		if err != nil {
			result.Snapshot.Results[contracts.StagePublish] = stageResult(contracts.StagePublish, len(picks), 0, stageStart, err)
			return fail(contracts.StagePublish, err)
		}
		result.NewlyPublished = n
		result.Snapshot.Results[contracts.StagePublish] = stageResult(contracts.StagePublish, len(picks), n, stageStart, nil)
		result.CompletedStages = append(result.CompletedStages, "S5:Publish")
	} else if cfg.Publish {
		log.Warn("Publish requested without a ledger; skipping S5")
	}

	result.Success = true
	result.Duration = time.Since(startTime)

	log.WithFields(map[string]interface{}{
		"duration":        result.Duration.Seconds(),
		"scored":          len(result.Scored),
		"failed":          len(result.Failed),
		"kept":            len(result.Kept),
		"newly_published": result.NewlyPublished,
		"weights_version": result.Snapshot.WeightsVersion,
	}).Info("Pipeline run completed successfully")

	return result, nil
}

func stageResult(stage contracts.Stage, in, out int, start time.Time, err error) contracts.PipelineResult {
	r := contracts.PipelineResult{
		Stage:       stage,
		Success:     err == nil,
		InputCount:  in,
		OutputCount: out,
		Duration:    time.Since(start).Milliseconds(),
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// batchSport returns the single sport of the batch, or "" when mixed
func batchSport(inputs []s0_engines.MatchContext) contracts.Sport {
	if len(inputs) == 0 {
		return ""
	}
	sport := inputs[0].Candidate.Sport
	for _, in := range inputs[1:] {
		if in.Candidate.Sport != sport {
			return ""
		}
	}
	return sport
}
