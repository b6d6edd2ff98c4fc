package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/wonny/confluence/pkg/database"
	"github.com/wonny/confluence/pkg/redis"
)

// HealthHandler reports the backends the service depends on.
// db is nil with the file ledger; redis may be disabled.
type HealthHandler struct {
	db      *database.DB
	redis   *redis.Client
	service string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *database.DB, rc *redis.Client, service string) *HealthHandler {
	return &HealthHandler{db: db, redis: rc, service: service}
}

// HealthResponse is the /health body
type HealthResponse struct {
	Status   string                 `json:"status"`
	Service  string                 `json:"service"`
	Database *database.HealthStatus `json:"database,omitempty"`
	Redis    string                 `json:"redis"`
}

// Health pings each configured backend
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Service: h.service, Redis: "disabled"}

	if h.db != nil {
		st := h.db.HealthCheck(ctx)
		resp.Database = &st
		if !st.Healthy {
			resp.Status = "degraded"
		}
	}

	if h.redis.Enabled() {
		if err := h.redis.Redis().Ping(ctx).Err(); err != nil {
			resp.Redis = err.Error()
			resp.Status = "degraded"
		} else {
			resp.Redis = "ok"
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, resp)
}
