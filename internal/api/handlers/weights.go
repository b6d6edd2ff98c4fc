package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/confluence/internal/contracts"
	"github.com/wonny/confluence/pkg/logger"
)

// WeightsHandler serves the learned weight configs
type WeightsHandler struct {
	store    contracts.WeightStore
	contract *contracts.Contract
	logger   *logger.Logger
}

// NewWeightsHandler creates a new weights handler
func NewWeightsHandler(store contracts.WeightStore, c *contracts.Contract, log *logger.Logger) *WeightsHandler {
	return &WeightsHandler{
		store:    store,
		contract: c,
		logger:   log.WithField("handler", "weights"),
	}
}

// WeightsResponse is a sport's config plus the weights it resolves to
type WeightsResponse struct {
	Config    contracts.WeightConfig       `json:"config"`
	Effective map[contracts.Engine]float64 `json:"effective_weights"`
}

// Get returns the current config of one sport
// GET /api/weights/{sport}
func (h *WeightsHandler) Get(w http.ResponseWriter, r *http.Request) {
	sport, err := contracts.ParseSport(mux.Vars(r)["sport"])
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	cfg, err := h.store.Load(r.Context(), sport)
	if err != nil {
		h.logger.WithError(err).WithField("sport", sport).Error("Failed to load weights")
		respondError(w, http.StatusInternalServerError, "Failed to load weights")
		return
	}

	eff, err := cfg.EffectiveWeights(h.contract)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, WeightsResponse{Config: cfg, Effective: eff})
}
