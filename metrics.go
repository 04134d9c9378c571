package oneflowauth

import "sync/atomic"

// MetricID identifies one counter in the session metrics set.
type MetricID uint16

const (
	// MetricLoginSuccess is an exported constant used by the session library.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure is an exported constant used by the session library.
	MetricLoginFailure
	// MetricLoginNetworkFailure is an exported constant used by the session library.
	MetricLoginNetworkFailure
	// MetricLogout is an exported constant used by the session library.
	MetricLogout
	// MetricHydrateSuccess is an exported constant used by the session library.
	MetricHydrateSuccess
	// MetricHydrateEmpty is an exported constant used by the session library.
	MetricHydrateEmpty
	// MetricHydrateCorrupt is an exported constant used by the session library.
	MetricHydrateCorrupt
	// MetricIdentityUpdated is an exported constant used by the session library.
	MetricIdentityUpdated
	// MetricTokenRotated is an exported constant used by the session library.
	MetricTokenRotated
	// MetricStorageDegraded is an exported constant used by the session library.
	MetricStorageDegraded
	metricIDCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is the process-wide counter set for one Store. Counters are padded
// to avoid false sharing between concurrently bumped IDs.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// NewMetrics creates a Metrics set; a disabled set makes Inc a no-op.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
	}
}

// Inc bumps one counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Snapshot copies every counter into a map.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Counters: make(map[MetricID]uint64, int(metricIDCount)),
	}
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snap.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return snap
}
