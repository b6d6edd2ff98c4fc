package commands

import (
	"context"
	"fmt"

	"github.com/wonny/confluence/internal/contracts"
	"github.com/wonny/confluence/internal/learner"
	"github.com/wonny/confluence/internal/ledger"
	"github.com/wonny/confluence/internal/metrics"
	"github.com/wonny/confluence/internal/pipeline"
	"github.com/wonny/confluence/internal/s0_engines"
	"github.com/wonny/confluence/internal/scoring"
	"github.com/wonny/confluence/internal/selection"
	"github.com/wonny/confluence/internal/strategyconfig"
	"github.com/wonny/confluence/internal/weights"
	"github.com/wonny/confluence/pkg/config"
	"github.com/wonny/confluence/pkg/httputil"
	"github.com/wonny/confluence/pkg/logger"
)

// app holds every wired component of one process
type app struct {
	cfg          *config.Config
	log          *logger.Logger
	strategy     *strategyconfig.Config
	strategyYAML []byte
	contract     *contracts.Contract
	metrics      *metrics.Metrics
	ledger       *ledger.Ledger
	weights      *weights.Store
	pipeline     *pipeline.Pipeline
	learner      *learner.Learner
	sports       []contracts.Sport // learner sports
}

// newApp loads config and wires the scoring stack
// ⭐ SSOT: 컴포넌트 조립은 여기서만
func newApp(ctx context.Context) (*app, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if env != "" {
		cfg.Env = env
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if strategyFile != "" {
		cfg.Scoring.StrategyFile = strategyFile
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	// 3. Strategy (contract + learner params)
	strategy, raw, err := strategyconfig.LoadOrDefault(cfg.Scoring.StrategyFile)
	if err != nil {
		return nil, fmt.Errorf("load strategy: %w", err)
	}
	for _, w := range strategyconfig.Warn(strategy) {
		log.WithField("code", w.Code).Warn(w.Message)
	}
	contract := strategy.ContractRef()

	sports := make([]contracts.Sport, 0, len(cfg.Learner.Sports))
	for _, s := range cfg.Learner.Sports {
		sport, err := contracts.ParseSport(s)
		if err != nil {
			return nil, fmt.Errorf("LEARNER_SPORTS: %w", err)
		}
		sports = append(sports, sport)
	}

	m := metrics.New()

	// 4. Engine + modifier providers (S0)
	engines := s0_engines.DefaultEngineProviders()
	if cfg.Flags.EnableHTTPEngines {
		client := httputil.New(cfg.Engines.Timeout, log.Component("httputil")).
			WithRateLimit(cfg.Engines.RatePerSecond, cfg.Scoring.Workers)
		engines, err = s0_engines.HTTPEngineProviders(cfg.Engines.Endpoints, client, s0_engines.DefaultBreakerConfig(), log)
		if err != nil {
			return nil, err
		}
	}
	modifiers := s0_engines.DefaultModifierProviders(contract, s0_engines.Flags{
		EnableConfluence:      cfg.Flags.EnableConfluence,
		EnableSideCalibration: cfg.Flags.EnableSideCalibration,
	})
	col, err := s0_engines.NewCollector(contract, engines, modifiers, log)
	if err != nil {
		return nil, err
	}

	// 5. Scorer + selection (S1-S4)
	scorer := scoring.NewScorer(contract, col, scoring.Options{
		Workers:          cfg.Scoring.Workers,
		CandidateTimeout: cfg.Scoring.CandidateTimeout,
	}, m, log.Component("scoring"))
	boundary := selection.NewBoundary(scorer.Classifier(), log, m)
	gate := selection.NewGate(log, m)

	// 6. Storage (S5-S7)
	l, err := ledger.Open(ctx, cfg, log, m)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	store, err := weights.NewStore(cfg.Storage.WeightsDir, contract, log)
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("open weights: %w", err)
	}

	p, err := pipeline.New(contract, scorer, boundary, gate, store, l, log)
	if err != nil {
		l.Close()
		return nil, err
	}

	lrn := learner.New(contract, l, store, learner.ParamsFromStrategy(strategy.Learner), m, log.Component("learner"))

	log.WithFields(map[string]interface{}{
		"strategy":      strategy.Meta.StrategyID,
		"contract_hash": p.ContractHash(),
		"ledger":        cfg.Storage.LedgerBackend,
		"http_engines":  cfg.Flags.EnableHTTPEngines,
	}).Debug("Components wired")

	return &app{
		cfg:          cfg,
		log:          log,
		strategy:     strategy,
		strategyYAML: raw,
		contract:     contract,
		metrics:      m,
		ledger:       l,
		weights:      store,
		pipeline:     p,
		learner:      lrn,
		sports:       sports,
	}, nil
}

// Close releases the ledger (and its DB pool, if any)
func (a *app) Close() {
	if err := a.ledger.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close ledger")
	}
}
