package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveScored("NBA", "TITANIUM")
	m.ObserveFailure("NBA", "timeout")
	m.ObserveClamp("NBA", 0.4)
	m.ObserveBlocked("PROPS", 2)
	m.ObserveGradeRejection("unknown")
	m.SetWeights("NBA", map[string]float64{"ai": 1.1}, nil)
}

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveScored("NBA", "TITANIUM")
	m.ObserveScored("NBA", "TITANIUM")
	m.ObserveClamp("NBA", -0.2)
	m.ObserveBlocked("PROPS", 3)
	m.ObserveBlocked("GAMES", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CandidatesScored.WithLabelValues("NBA", "TITANIUM")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BoostClamped.WithLabelValues("NBA", "low")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ContradictionBlocks.WithLabelValues("PROPS")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ContradictionBlocks.WithLabelValues("GAMES")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.SetWeights("NFL", map[string]float64{"research": 1.05}, map[string]float64{"OVER": 0.05})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `confluence_weight_multiplier{engine="research",sport="NFL"} 1.05`), body)
	assert.True(t, strings.Contains(body, `confluence_side_calibration{side="OVER",sport="NFL"} 0.05`), body)
}
