package handlers

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/wonny/confluence/internal/contracts"
	"github.com/wonny/confluence/internal/pipeline"
	"github.com/wonny/confluence/internal/s0_engines"
	"github.com/wonny/confluence/internal/scoring"
	"github.com/wonny/confluence/internal/selection"
	"github.com/wonny/confluence/pkg/logger"
	"github.com/wonny/confluence/pkg/redis"
)

// ScoreHandler is the batch scoring interface
// ⭐ SSOT: POST /api/score
type ScoreHandler struct {
	pipeline *pipeline.Pipeline
	weights  contracts.WeightStore
	cache    *redis.Cache // nil: caching off
	maxBatch int
	logger   *logger.Logger
}

// NewScoreHandler creates a new score handler. cache may be nil; maxBatch
// caps the candidates per request (the server write deadline is sized on it).
func NewScoreHandler(p *pipeline.Pipeline, weights contracts.WeightStore, cache *redis.Cache, maxBatch int, log *logger.Logger) *ScoreHandler {
	return &ScoreHandler{
		pipeline: p,
		weights:  weights,
		cache:    cache,
		maxBatch: maxBatch,
		logger:   log.WithField("handler", "score"),
	}
}

// ScoreRequest is a batch of raw candidate contexts
type ScoreRequest struct {
	Sport      string                    `json:"sport,omitempty"` // fills candidates without a sport
	Candidates []s0_engines.MatchContext `json:"candidates"`
	Publish    bool                      `json:"publish,omitempty"`
}

// BlockedRef is one candidate removed by the contradiction gate
type BlockedRef struct {
	CandidateID string `json:"candidate_id"`
	BlockedBy   string `json:"blocked_by"`
}

// StreamOutcome is the gate result of one output stream
type StreamOutcome struct {
	Kept    []string     `json:"kept"`
	Blocked []BlockedRef `json:"blocked"`
}

// ScoreResponse carries every classified candidate with its breakdown and
// the gate outcome per stream
type ScoreResponse struct {
	RunID          string                                       `json:"run_id"`
	ContractHash   string                                       `json:"contract_hash"`
	WeightsVersion string                                       `json:"weights_version"`
	Candidates     []contracts.Candidate                        `json:"candidates"`
	Failed         []scoring.CandidateFailure                   `json:"failed"`
	Rejected       []selection.Rejection                        `json:"rejected"`
	Gate           map[contracts.Stream]StreamOutcome           `json:"gate"`
	Picks          []contracts.PublishedPick                    `json:"picks"`
	Published      int                                          `json:"published"`
	Stages         map[contracts.Stage]contracts.PipelineResult `json:"stages"`
	Cached         bool                                         `json:"cached"`
}

// RequestHash digests a raw request body for the response cache
func RequestHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:16])
}

// Score runs the pipeline over the submitted candidates
// POST /api/score
func (h *ScoreHandler) Score(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readBody(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req ScoreRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Candidates) == 0 {
		respondError(w, http.StatusBadRequest, "candidates is required")
		return
	}
	if h.maxBatch > 0 && len(req.Candidates) > h.maxBatch {
		respondError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("batch of %d candidates exceeds the limit of %d", len(req.Candidates), h.maxBatch))
		return
	}
	if err := applySport(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Publishing has side effects, so only read-only requests are cached
	cacheable := h.cache != nil && !req.Publish
	reqHash := RequestHash(body)

	if cacheable {
		snap, err := h.weights.Snapshot(ctx)
		if err != nil {
			h.logger.WithError(err).Error("Failed to read weight snapshot")
			respondError(w, http.StatusInternalServerError, "Failed to read weights")
			return
		}
		var cached ScoreResponse
		found, err := h.cache.Get(ctx, redis.ScoreKey(reqHash, snap.Version()), &cached)
		if err != nil {
			h.logger.WithError(err).Warn("Score cache read failed")
		}
		if found {
			cached.Cached = true
			respondJSON(w, http.StatusOK, cached)
			return
		}
	}

	res, err := h.pipeline.Run(ctx, req.Candidates, pipeline.RunConfig{Publish: req.Publish})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, contracts.ErrInvariantViolation) || errors.Is(err, contracts.ErrTierMismatch) {
			status = http.StatusUnprocessableEntity
		}
		h.logger.WithError(err).Error("Scoring run failed")
		respondError(w, status, err.Error())
		return
	}

	resp := buildScoreResponse(res)
	if cacheable {
		key := redis.ScoreKey(reqHash, resp.WeightsVersion)
		if err := h.cache.Set(ctx, key, resp, redis.TTLScore); err != nil {
			h.logger.WithError(err).Warn("Score cache write failed")
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

func applySport(req *ScoreRequest) error {
	if req.Sport == "" {
		return nil
	}
	sport, err := contracts.ParseSport(req.Sport)
	if err != nil {
		return err
	}
	for i := range req.Candidates {
		c := &req.Candidates[i].Candidate
		switch c.Sport {
		case "":
			c.Sport = sport
		case sport:
		default:
			return fmt.Errorf("candidate %s has sport %s, request sport is %s", c.ID, c.Sport, sport)
		}
	}
	return nil
}

func buildScoreResponse(res *pipeline.RunResult) ScoreResponse {
	resp := ScoreResponse{
		RunID:          res.RunID,
		ContractHash:   res.Snapshot.ContractHash,
		WeightsVersion: res.Snapshot.WeightsVersion,
		Candidates:     res.Scored,
		Failed:         res.Failed,
		Rejected:       res.Rejected,
		Gate:           make(map[contracts.Stream]StreamOutcome),
		Picks:          res.Picks,
		Published:      res.NewlyPublished,
		Stages:         res.Snapshot.Results,
	}
	for _, c := range res.Kept {
		out := resp.Gate[c.Stream()]
		out.Kept = append(out.Kept, c.ID)
		resp.Gate[c.Stream()] = out
	}
	for _, c := range res.Blocked {
		out := resp.Gate[c.Stream()]
		out.Blocked = append(out.Blocked, BlockedRef{CandidateID: c.ID, BlockedBy: c.BlockedBy})
		resp.Gate[c.Stream()] = out
	}
	return resp
}
