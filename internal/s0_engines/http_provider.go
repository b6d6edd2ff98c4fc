package s0_engines

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wonny/confluence/internal/contracts"
	"github.com/wonny/confluence/pkg/httputil"
	"github.com/wonny/confluence/pkg/logger"
)

// BreakerConfig tunes the per-engine circuit breaker
type BreakerConfig struct {
	MaxRequests         uint32        // half-open trial requests
	Interval            time.Duration // closed-state count reset
	Timeout             time.Duration // open → half-open
	ConsecutiveFailures uint32
}

// DefaultBreakerConfig returns the production breaker settings
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// engineRequest is the body posted to a remote engine
type engineRequest struct {
	Engine    contracts.Engine    `json:"engine"`
	Candidate contracts.Candidate `json:"candidate"`
	Features  map[string]float64  `json:"features,omitempty"`
}

// engineResponse is what a remote engine returns
type engineResponse struct {
	Score     float64  `json:"score"`
	Available *bool    `json:"available,omitempty"` // absent = true
	Reasons   []string `json:"reasons,omitempty"`
}

// HTTPEngineProvider scores one engine through a remote service.
// An open breaker short-circuits to "unavailable" without a request.
type HTTPEngineProvider struct {
	engine   contracts.Engine
	endpoint string
	client   *httputil.Client
	breaker  *gobreaker.CircuitBreaker
	logger   *logger.Logger
}

// NewHTTPEngineProvider creates a remote engine provider
func NewHTTPEngineProvider(e contracts.Engine, endpoint string, client *httputil.Client, bc BreakerConfig, log *logger.Logger) *HTTPEngineProvider {
	p := &HTTPEngineProvider{
		engine:   e,
		endpoint: endpoint,
		client:   client,
		logger:   log.WithFields(map[string]interface{}{"module": "s0_engines", "engine": string(e)}),
	}

	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "engine-" + string(e),
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bc.ConsecutiveFailures
		},
		// a caller's own deadline is not the remote engine's fault
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.WithFields(map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Engine circuit breaker state changed")
		},
	})

	return p
}

// Engine implements EngineProvider
func (p *HTTPEngineProvider) Engine() contracts.Engine { return p.engine }

// State exposes the breaker state for health reporting
func (p *HTTPEngineProvider) State() gobreaker.State { return p.breaker.State() }

// Score implements EngineProvider
func (p *HTTPEngineProvider) Score(ctx context.Context, mc MatchContext) (EngineResult, error) {
	out, err := p.breaker.Execute(func() (interface{}, error) {
		resp, err := p.client.PostJSON(ctx, p.endpoint, engineRequest{
			Engine:    p.engine,
			Candidate: mc.Candidate,
			Features:  mc.Features,
		})
		if err != nil {
			return nil, err
		}

		var body engineResponse
		if err := httputil.DecodeJSON(resp, &body); err != nil {
			return nil, err
		}
		return body, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return EngineResult{Reasons: []string{fmt.Sprintf("circuit %s", p.breaker.State())}}, nil
	}
	if err != nil {
		return EngineResult{}, fmt.Errorf("engine %s: %w", p.engine, err)
	}

	body := out.(engineResponse)
	available := body.Available == nil || *body.Available
	return EngineResult{Score: body.Score, Available: available, Reasons: body.Reasons}, nil
}

// HTTPEngineProviders builds one remote provider per configured endpoint.
// Engines without an endpoint keep the static provider.
func HTTPEngineProviders(endpoints map[string]string, client *httputil.Client, bc BreakerConfig, log *logger.Logger) ([]EngineProvider, error) {
	providers := make([]EngineProvider, 0, len(contracts.AllEngines()))
	for name := range endpoints {
		if !contracts.Engine(name).IsValid() {
			return nil, fmt.Errorf("engine endpoint for unknown engine %q", name)
		}
	}
	for _, e := range contracts.AllEngines() {
		if url, ok := endpoints[string(e)]; ok && url != "" {
			providers = append(providers, NewHTTPEngineProvider(e, url, client, bc, log))
			continue
		}
		providers = append(providers, NewStaticEngineProvider(e))
	}
	return providers, nil
}
