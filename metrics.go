package ternsecure

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter.
//
// MetricID values are stable for the lifetime of a process and index fixed-size arrays.
type MetricID uint16

const (
	// MetricRequest counts every request the engine serves.
	MetricRequest MetricID = iota
	// MetricPreflight counts OPTIONS requests answered by the CORS stage.
	MetricPreflight
	// MetricRejectedCORS counts requests rejected for their origin.
	MetricRejectedCORS
	// MetricRejectedSecurity counts CSRF, header and user-agent rejections.
	MetricRejectedSecurity
	// MetricRejectedRoute counts path and endpoint rejections.
	MetricRejectedRoute
	// MetricRejectedBody counts body-stage rejections.
	MetricRejectedBody
	// MetricVerifySuccess counts verify calls that returned claims.
	MetricVerifySuccess
	// MetricVerifyFailure counts verify calls without a usable session.
	MetricVerifyFailure
	// MetricSessionCreated counts successful createsession calls.
	MetricSessionCreated
	// MetricSessionCreationFailure counts createsession calls that failed upstream.
	MetricSessionCreationFailure
	// MetricRefreshSuccess counts successful refresh calls.
	MetricRefreshSuccess
	// MetricRefreshFailure counts refresh calls that failed.
	MetricRefreshFailure
	// MetricSessionRevoked counts revoke calls.
	MetricSessionRevoked
	// MetricPasswordResetRequest counts password-reset emails sent.
	MetricPasswordResetRequest
	// MetricPasswordResetFailure counts password-reset emails that failed.
	MetricPasswordResetFailure
	// MetricRateLimitHit counts requests denied by a rate limit.
	MetricRateLimitHit
	// MetricPanicRecovered counts handler panics turned into 500 responses.
	MetricPanicRecovered
	// MetricRequestLatency is the request latency histogram.
	MetricRequestLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and the request latency histogram.
//
// A nil or disabled Metrics ignores every update.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of the counters and histograms.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics builds Metrics from cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to a counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the latency histogram. Only MetricRequestLatency has one.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricRequestLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of a counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter, and the histogram when latency is enabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricRequestLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricRequestLatency].buckets[i])
		}
		s.Histograms[MetricRequestLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}

// stageMetric maps a rejecting validation stage to its counter.
func stageMetric(stage Stage) (MetricID, bool) {
	switch stage {
	case StageCORS:
		return MetricRejectedCORS, true
	case StageSecurity:
		return MetricRejectedSecurity, true
	case StagePath, StageEndpoint:
		return MetricRejectedRoute, true
	case StageBody:
		return MetricRejectedBody, true
	default:
		return 0, false
	}
}
