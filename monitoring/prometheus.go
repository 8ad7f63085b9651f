package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type CollectPath string

const (
	CollectApply   CollectPath = "apply"
	CollectConnect CollectPath = "connect"
)

type FetchSource string

const (
	FetchLocal   FetchSource = "local"
	FetchNetwork FetchSource = "network"
)

// SyncMetrics is the observability handle of the sync pipeline. A nil
// *SyncMetrics is valid and records nothing.
type SyncMetrics struct {
	applyBlockTime  prometheus.Histogram
	collectedBlocks *prometheus.CounterVec
	failedBlocks    *prometheus.CounterVec
	fetchedBlocks   *prometheus.CounterVec
	peerReports     *prometheus.CounterVec
	syncProgress    prometheus.Gauge
	remainingLeaves prometheus.Gauge
}

// NewSyncMetrics registers the sync metrics with reg.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	factory := promauto.With(reg)
	return &SyncMetrics{
		applyBlockTime: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chainsync_apply_block_seconds",
				Help:    "Time spent verifying and applying one synced block",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
		),
		collectedBlocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainsync_collected_blocks_total",
				Help: "Blocks added to the chain by the sync collector",
			},
			[]string{"path"},
		),
		failedBlocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainsync_failed_blocks_total",
				Help: "Synced blocks rejected by the chain",
			},
			[]string{"reason"},
		),
		fetchedBlocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainsync_fetched_blocks_total",
				Help: "Blocks resolved by the sync task",
			},
			[]string{"source"},
		),
		peerReports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainsync_peer_reports_total",
				Help: "Peer misbehaviour reports raised by sync",
			},
			[]string{"reason"},
		),
		syncProgress: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "chainsync_sync_progress_leaves",
				Help: "Accumulator leaves consumed by the running sync",
			},
		),
		remainingLeaves: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "chainsync_sync_remaining_leaves",
				Help: "Accumulator leaves left to sync",
			},
		),
	}
}

var (
	defaultOnce    sync.Once
	defaultMetrics *SyncMetrics
)

// DefaultSyncMetrics returns metrics registered once on the default registry.
func DefaultSyncMetrics() *SyncMetrics {
	defaultOnce.Do(func() {
		defaultMetrics = NewSyncMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// RegisterMetrics exposes the default registry on /metrics.
func RegisterMetrics(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
}

// ApplyTimer starts timing a block application; call the returned func when
// it completes.
func (m *SyncMetrics) ApplyTimer() func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.applyBlockTime.Observe(time.Since(start).Seconds())
	}
}

func (m *SyncMetrics) RecordCollected(path CollectPath) {
	if m == nil {
		return
	}
	m.collectedBlocks.WithLabelValues(string(path)).Inc()
}

func (m *SyncMetrics) RecordFailed(reason string) {
	if m == nil {
		return
	}
	m.failedBlocks.WithLabelValues(reason).Inc()
}

func (m *SyncMetrics) RecordFetched(source FetchSource, n int) {
	if m == nil || n == 0 {
		return
	}
	m.fetchedBlocks.WithLabelValues(string(source)).Add(float64(n))
}

func (m *SyncMetrics) RecordPeerReport(reason string) {
	if m == nil {
		return
	}
	m.peerReports.WithLabelValues(reason).Inc()
}

func (m *SyncMetrics) SetProgress(done, remaining uint64) {
	if m == nil {
		return
	}
	m.syncProgress.Set(float64(done))
	m.remainingLeaves.Set(float64(remaining))
}

var panicCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chainsync_panics_total",
	Help: "Panics recovered in background goroutines, by component",
}, []string{"component"})

func IncreasePanicCount(component string) {
	panicCount.WithLabelValues(component).Inc()
}
