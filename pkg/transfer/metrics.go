package transfer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the transfer counters. A nil *Metrics records nothing.
type Metrics struct {
	replicaWrites *prometheus.CounterVec
	replicaReads  *prometheus.CounterVec
	failovers     prometheus.Counter
	bytes         *prometheus.CounterVec
	blockSeconds  *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		replicaWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "griddfs_replica_writes_total",
			Help: "Replica block writes by result.",
		}, []string{"result"}),
		replicaReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "griddfs_replica_reads_total",
			Help: "Replica block reads by result.",
		}, []string{"result"}),
		failovers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "griddfs_block_failovers_total",
			Help: "Blocks served by a replica other than the first preference.",
		}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "griddfs_transfer_bytes_total",
			Help: "File bytes moved by completed transfers.",
		}, []string{"op"}),
		blockSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "griddfs_block_transfer_seconds",
			Help:    "Time to write or read one block across its replicas.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"op"}),
	}
	if reg != nil {
		reg.MustRegister(m.replicaWrites, m.replicaReads, m.failovers, m.bytes, m.blockSeconds)
	}
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) replicaWrite(err error) {
	if m == nil {
		return
	}
	m.replicaWrites.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) replicaRead(err error) {
	if m == nil {
		return
	}
	m.replicaReads.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) failover() {
	if m == nil {
		return
	}
	m.failovers.Inc()
}

func (m *Metrics) transferred(op string, n int64) {
	if m == nil {
		return
	}
	m.bytes.WithLabelValues(op).Add(float64(n))
}

func (m *Metrics) block(op string, start time.Time) {
	if m == nil {
		return
	}
	m.blockSeconds.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
