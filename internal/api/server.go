package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wonny/confluence/pkg/config"
	"github.com/wonny/confluence/pkg/logger"
)

// writeSlack covers weight snapshot, gate, publish and encoding on top of
// the collection deadline of a full batch
const writeSlack = 10 * time.Second

// Server is the scoring API server
// ⭐ SSOT: API 서버 타임아웃은 이 파일에서만 (배치 크기 × 후보 타임아웃 기준)
type Server struct {
	httpServer *http.Server
	logger     *logger.Logger
	env        string
}

// New creates the API server. The write deadline is sized so the largest
// accepted /api/score batch can finish even when every candidate runs into
// its collection timeout.
func New(cfg *config.Config, log *logger.Logger, router http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadTimeout:       cfg.API.ReadTimeout,
			ReadHeaderTimeout: cfg.API.ReadHeaderTimeout,
			WriteTimeout:      WriteTimeout(cfg),
			IdleTimeout:       cfg.API.IdleTimeout,
		},
		logger: log.WithField("module", "api"),
		env:    cfg.Env,
	}
}

// WriteTimeout is the response deadline for one request
func WriteTimeout(cfg *config.Config) time.Duration {
	return cfg.API.ReadTimeout + cfg.ScoreDeadline() + writeSlack
}

// Start serves until Shutdown
func (s *Server) Start() error {
	s.logger.WithFields(map[string]interface{}{
		"addr":          s.httpServer.Addr,
		"env":           s.env,
		"write_timeout": s.httpServer.WriteTimeout.String(),
	}).Info("Starting API server")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight batches until ctx ends
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
