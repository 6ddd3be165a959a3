package obs

import (
	"sync/atomic"
	"time"
)

// Metrics collects lightweight counters and latency stats for the virtual
// brokerage. A nil *Metrics is a valid no-op receiver.
type Metrics struct {
	ordersAdmitted  uint64
	ordersRejected  uint64
	fillsApplied    uint64
	eventsForwarded uint64

	admissionLatency LatencyStats
	batchLatency     LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	OrdersAdmitted   uint64
	OrdersRejected   uint64
	FillsApplied     uint64
	EventsForwarded  uint64
	AdmissionLatency LatencySnapshot
	BatchLatency     LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncAdmitted records an order that passed the admission gate.
func (m *Metrics) IncAdmitted() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.ordersAdmitted, 1)
}

// IncRejected records an order refused by the admission gate.
func (m *Metrics) IncRejected() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.ordersRejected, 1)
}

// AddFills records fills applied to the ledger.
func (m *Metrics) AddFills(n int) {
	if m == nil || n <= 0 {
		return
	}
	atomic.AddUint64(&m.fillsApplied, uint64(n))
}

// IncForwarded records an event forwarded to observers.
func (m *Metrics) IncForwarded() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.eventsForwarded, 1)
}

// ObserveAdmission measures one admission check.
func (m *Metrics) ObserveAdmission(d time.Duration) {
	if m == nil {
		return
	}
	m.admissionLatency.Observe(d)
}

// ObserveBatch measures one batch application.
func (m *Metrics) ObserveBatch(d time.Duration) {
	if m == nil {
		return
	}
	m.batchLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		OrdersAdmitted:   atomic.LoadUint64(&m.ordersAdmitted),
		OrdersRejected:   atomic.LoadUint64(&m.ordersRejected),
		FillsApplied:     atomic.LoadUint64(&m.fillsApplied),
		EventsForwarded:  atomic.LoadUint64(&m.eventsForwarded),
		AdmissionLatency: m.admissionLatency.Snapshot(),
		BatchLatency:     m.batchLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
