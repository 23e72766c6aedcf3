// Package metrics holds the Prometheus instrumentation for the proxy.
// A single Metrics value is constructed at startup and threaded into the
// listener and every connection pipeline it spawns.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the proxy emits: one struct
// constructed once against a Registerer, passed by pointer to whatever
// needs to record against it.
type Metrics struct {
	// ConnectionsTotal counts every accepted client connection.
	ConnectionsTotal prometheus.Counter
	// ConnectionsOpen is the number of client connections currently
	// being served.
	ConnectionsOpen prometheus.Gauge
	// FramesTotal counts classified agent-protocol frames by direction
	// ("client"/"upstream") and opcode name.
	FramesTotal *prometheus.CounterVec
	// ActionsTotal counts policy decisions by action kind.
	ActionsTotal *prometheus.CounterVec
	// QueueDepth observes the pending-responder queue depth at the point
	// a connection tears down, bucketed so operators can see whether the
	// configured queue capacity is ever approached.
	QueueDepth prometheus.Histogram
}

// New creates and registers every collector against reg.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ConnectionsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "gubinge",
			Name:      "connections_total",
			Help:      "Total number of client connections accepted.",
		}),
		ConnectionsOpen: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "gubinge",
			Name:      "connections_open",
			Help:      "Number of client connections currently being served.",
		}),
		FramesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "gubinge",
			Name:      "frames_total",
			Help:      "Total number of framed agent-protocol messages observed.",
		}, []string{"direction", "opcode"}),
		ActionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "gubinge",
			Name:      "action_total",
			Help:      "Total number of policy decisions taken, by action kind.",
		}, []string{"action"}),
		QueueDepth: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: "gubinge",
			Name:      "pending_queue_depth",
			Help:      "Depth of the pending-responder queue observed at connection teardown.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64, 128, 256},
		}),
	}
}
