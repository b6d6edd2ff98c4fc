package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/confluence/internal/api"
	"github.com/wonny/confluence/internal/api/handlers"
	"github.com/wonny/confluence/internal/audit"
	"github.com/wonny/confluence/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

Endpoints:
  GET  /health                - Health check
  GET  /metrics               - Prometheus metrics
  POST /api/score             - 후보 배치 스코어링
  POST /api/grades            - 채점 피드 반영
  GET  /api/picks             - 원장 픽 조회 (?sport=&status=)
  GET  /api/weights/{sport}   - 학습된 가중치 조회
  GET  /api/performance       - 채점 성과 (?period=30D&sport=)

Example:
  go run ./cmd/confluence api
  go run ./cmd/confluence api --port 8080`,
	RunE: runAPIServer,
}

var apiPort string

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (default: PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Confluence API Server ===")

	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg, log := a.cfg, a.log
	if apiPort != "" {
		cfg.Port = apiPort
	}

	// Redis is optional; a disabled config yields a no-op client
	rc, err := redis.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer rc.Close()

	var cache *redis.Cache
	if cfg.Flags.EnableResponseCache && rc.Enabled() {
		cache = redis.NewCache(rc, "confluence")
		log.Info("Score response cache enabled")
	}

	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		metricsHandler = a.metrics.Handler()
	}

	router := api.NewRouter(api.Handlers{
		Score:       handlers.NewScoreHandler(a.pipeline, a.weights, cache, cfg.API.MaxBatch, log),
		Grades:      handlers.NewGradeHandler(a.ledger, log),
		Weights:     handlers.NewWeightsHandler(a.weights, a.contract, log),
		Health:      handlers.NewHealthHandler(a.ledger.Database(), rc, "confluence-api"),
		Performance: handlers.NewPerformanceHandler(audit.NewAnalyzer(a.ledger, a.contract, log), log),
		Metrics:     metricsHandler,
	}, log)

	server := api.New(cfg, log, router)

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
