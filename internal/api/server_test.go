package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wonny/confluence/pkg/config"
	"github.com/wonny/confluence/pkg/logger"
)

func TestNew_TimeoutsCoverLargestBatch(t *testing.T) {
	cfg := &config.Config{
		Port: "8089",
		Env:  "development",
		API: config.APIConfig{
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       time.Minute,
			MaxBatch:          500,
		},
		Scoring: config.ScoringConfig{Workers: 8, CandidateTimeout: 3 * time.Second},
	}

	s := New(cfg, logger.Nop(), nil)
	hs := s.httpServer

	assert.Equal(t, ":8089", hs.Addr)
	assert.Equal(t, 5*time.Second, hs.ReadHeaderTimeout)
	assert.Equal(t, 15*time.Second, hs.ReadTimeout)
	assert.Equal(t, time.Minute, hs.IdleTimeout)

	// 500 candidates / 8 workers = 63 waves of 3s
	assert.Equal(t, 189*time.Second, cfg.ScoreDeadline())
	assert.Equal(t, 15*time.Second+189*time.Second+writeSlack, hs.WriteTimeout)
	assert.Greater(t, hs.WriteTimeout, cfg.ScoreDeadline())
}
