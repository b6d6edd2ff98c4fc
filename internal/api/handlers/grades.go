package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/wonny/confluence/internal/contracts"
	"github.com/wonny/confluence/internal/ledger"
	"github.com/wonny/confluence/pkg/logger"
)

// GradeHandler exposes the pick ledger: grading feed in, picks out
// ⭐ SSOT: POST /api/grades, GET /api/picks
type GradeHandler struct {
	ledger *ledger.Ledger
	logger *logger.Logger
}

// NewGradeHandler creates a new grade handler
func NewGradeHandler(l *ledger.Ledger, log *logger.Logger) *GradeHandler {
	return &GradeHandler{
		ledger: l,
		logger: log.WithField("handler", "grades"),
	}
}

// Grade applies a batch of grading tuples
// POST /api/grades
func (h *GradeHandler) Grade(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var inputs []contracts.GradeInput
	if err := json.Unmarshal(body, &inputs); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	report, err := h.ledger.Grade(r.Context(), inputs)
	if err != nil {
		h.logger.WithError(err).Error("Grading failed")
		respondError(w, http.StatusInternalServerError, "Failed to grade picks")
		return
	}

	if report.Rejected == nil {
		report.Rejected = []contracts.GradeRejection{}
	}
	respondJSON(w, http.StatusOK, report)
}

// PicksResponse lists ledger picks after filtering
type PicksResponse struct {
	Picks []contracts.PublishedPick `json:"picks"`
	Count int                       `json:"count"`
}

// ListPicks returns the folded ledger
// GET /api/picks?sport=NBA&status=PENDING
func (h *GradeHandler) ListPicks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var sport contracts.Sport
	if v := q.Get("sport"); v != "" {
		s, err := contracts.ParseSport(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		sport = s
	}

	var status contracts.PickStatus
	switch v := contracts.PickStatus(strings.ToUpper(q.Get("status"))); v {
	case "":
	case contracts.PickPending, contracts.PickGraded:
		status = v
	default:
		respondError(w, http.StatusBadRequest, "status must be PENDING or GRADED")
		return
	}

	all, err := h.ledger.Picks(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to read ledger")
		respondError(w, http.StatusInternalServerError, "Failed to read picks")
		return
	}

	picks := make([]contracts.PublishedPick, 0, len(all))
	for i := range all {
		p := &all[i]
		if sport != "" && p.Candidate.Sport != sport {
			continue
		}
		if status != "" && p.Status() != status {
			continue
		}
		picks = append(picks, *p)
	}

	respondJSON(w, http.StatusOK, PicksResponse{Picks: picks, Count: len(picks)})
}
