package authkit

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one counter or histogram in the in-process metrics
// set. IDs are dense and stable within a release; exporters iterate them
// by range.
type MetricID uint16

const (
	// MetricAccessIssued counts access tokens minted, by StartSession and
	// Refresh combined.
	MetricAccessIssued MetricID = iota
	// MetricAccessValidated counts access tokens that passed validation.
	MetricAccessValidated
	// MetricAccessRejected counts access tokens that failed validation,
	// expired and malformed alike.
	MetricAccessRejected
	// MetricRefreshSuccess counts completed refresh rotations.
	MetricRefreshSuccess
	// MetricRefreshInvalid counts refresh attempts rejected for any
	// reason other than throttling.
	MetricRefreshInvalid
	// MetricRefreshThrottled counts refresh attempts stopped by the
	// per-session throttle.
	MetricRefreshThrottled
	// MetricSessionCreated counts sessions written to the registry.
	MetricSessionCreated
	// MetricSessionLimitHit counts session creations refused by the
	// per-user cap.
	MetricSessionLimitHit
	// MetricSessionRevoked counts single-session revocations that
	// removed a record.
	MetricSessionRevoked
	// MetricBulkRevoked counts sessions removed by RevokeAllUserSessions.
	MetricBulkRevoked
	// MetricSweptExpired counts records reaped by SweepExpired.
	MetricSweptExpired
	// MetricSweptInactive counts records reaped by SweepInactive.
	MetricSweptInactive
	// MetricDeviceChange counts sessions where the presented device
	// fingerprint diverged from the stored one.
	MetricDeviceChange
	// MetricSuspicionFlagged counts DetectSuspiciousActivity verdicts
	// that came back positive.
	MetricSuspicionFlagged
	// MetricSecurityEventLogged counts security events persisted to
	// Redis.
	MetricSecurityEventLogged
	// MetricValidateLatency is the ValidateAccess latency histogram. It
	// has no counter meaning; use Observe, not Inc.
	MetricValidateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

// paddedCounter keeps each counter on its own cache line so hot
// counters written from different goroutines do not false-share.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds the engine's atomic counters and the optional validation
// latency histogram. A nil *Metrics is valid and drops everything.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
// Exporters consume it; it shares no memory with the live Metrics.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a Metrics instance. When cfg.Enabled is false every
// operation is a no-op and Snapshot returns empty maps.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the validation latency histogram is
// being recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter. Safe from any goroutine.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Add adds n to the counter. Sweeps and bulk revocation report how many
// records they removed in one call.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records one latency sample. Only MetricValidateLatency has a
// histogram; other IDs are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricValidateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current reading of one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters and, when latency tracking is on, the
// validation histogram buckets.
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
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
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
