package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSyncMetrics(reg)

	m.RecordCollected(CollectApply)
	m.RecordCollected(CollectApply)
	m.RecordCollected(CollectConnect)
	m.RecordFetched(FetchNetwork, 3)
	m.RecordPeerReport("invalid_block")
	m.SetProgress(4, 6)
	m.ApplyTimer()()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.collectedBlocks.WithLabelValues("apply")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.collectedBlocks.WithLabelValues("connect")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.fetchedBlocks.WithLabelValues("network")))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.remainingLeaves))

	count, err := testutil.GatherAndCount(reg, "chainsync_apply_block_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNilSyncMetricsIsNoop(t *testing.T) {
	var m *SyncMetrics
	m.RecordCollected(CollectApply)
	m.RecordFailed("x")
	m.SetProgress(1, 1)
	m.ApplyTimer()()
}

func TestRegisterMetrics(t *testing.T) {
	DefaultSyncMetrics().RecordCollected(CollectApply)

	mux := http.NewServeMux()
	RegisterMetrics(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chainsync_collected_blocks_total")
}

func TestIncreasePanicCount(t *testing.T) {
	before := testutil.ToFloat64(panicCount.WithLabelValues("PeerScoring"))
	IncreasePanicCount("PeerScoring")
	assert.Equal(t, before+1, testutil.ToFloat64(panicCount.WithLabelValues("PeerScoring")))
	assert.Zero(t, testutil.ToFloat64(panicCount.WithLabelValues("NeverPanicked")))
}
