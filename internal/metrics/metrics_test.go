package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveFetch("ok", time.Second)
		m.ChunkMerged("backfill", 10, 1)
		m.UnitFinished("completed")
		m.ReplaceRetried()
		m.FallbackWrite()
		m.RunFinished(time.Now())
	})
}

func TestMetricsCountAndServe(t *testing.T) {
	m := NewMetrics()
	m.ChunkMerged("backfill", 10, 2)
	m.ChunkMerged("topup", 3, 0)
	m.ObserveFetch("transient", 20*time.Millisecond)
	m.FallbackWrite()

	// a second instance must not collide with the first
	require.NotPanics(t, func() { NewMetrics() })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	assert.Contains(t, text, `harvester_fetch_attempts_total{outcome="transient"} 1`)
	assert.Contains(t, text, `harvester_chunks_total{mode="backfill"} 1`)
	assert.Contains(t, text, "harvester_candles_merged_total 13")
	assert.Contains(t, text, "harvester_rows_rejected_total 2")
	assert.Contains(t, text, "harvester_fallback_writes_total 1")
}
