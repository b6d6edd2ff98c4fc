package handlers

import (
	"errors"
	"net/http"

	"github.com/wonny/confluence/internal/audit"
	"github.com/wonny/confluence/internal/contracts"
	"github.com/wonny/confluence/pkg/logger"
)

// PerformanceHandler serves graded-pick performance
type PerformanceHandler struct {
	analyzer *audit.Analyzer
	logger   *logger.Logger
}

// NewPerformanceHandler creates a new performance handler
func NewPerformanceHandler(a *audit.Analyzer, log *logger.Logger) *PerformanceHandler {
	return &PerformanceHandler{
		analyzer: a,
		logger:   log.WithField("handler", "performance"),
	}
}

// Get returns the performance report
// GET /api/performance?period=30D&sport=NBA
func (h *PerformanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := audit.Filter{Period: q.Get("period")}

	if v := q.Get("sport"); v != "" {
		sport, err := contracts.ParseSport(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Sport = sport
	}
	report, err := h.analyzer.Analyze(r.Context(), f)
	if errors.Is(err, audit.ErrUnknownPeriod) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Performance analysis failed")
		respondError(w, http.StatusInternalServerError, "Failed to analyze performance")
		return
	}

	respondJSON(w, http.StatusOK, report)
}
