package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the relay's prometheus collectors. Registered against an
// injected registry so tests can use a fresh one.
type Metrics struct {
	ConnectionsActive *prometheus.GaugeVec
	MessagesRouted    *prometheus.CounterVec
	MessagesDropped   prometheus.Counter
	TestsStored       prometheus.Gauge
	TestsExpired      prometheus.Counter
	ScreenshotsSaved  prometheus.Counter
	VisionFailures    prometheus.Counter
	SocketsReaped     prometheus.Counter
}

// New creates and registers the relay collectors.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "quizrelay",
			Name:      "connections_active",
			Help:      "Currently registered sockets by role.",
		}, []string{"role"}),
		MessagesRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quizrelay",
			Name:      "messages_routed_total",
			Help:      "Inbound messages dispatched by type.",
		}, []string{"type"}),
		MessagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quizrelay",
			Name:      "messages_dropped_total",
			Help:      "Frames dropped as malformed, unknown or unauthorized.",
		}),
		TestsStored: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "quizrelay",
			Name:      "tests_stored",
			Help:      "Tests currently held in memory.",
		}),
		TestsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quizrelay",
			Name:      "tests_expired_total",
			Help:      "Tests removed by the retention sweep.",
		}),
		ScreenshotsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quizrelay",
			Name:      "screenshots_saved_total",
			Help:      "Screenshot images written to disk.",
		}),
		VisionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quizrelay",
			Name:      "vision_failures_total",
			Help:      "External describer calls that fell back to a human.",
		}),
		SocketsReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quizrelay",
			Name:      "sockets_reaped_total",
			Help:      "Sockets closed by the liveness sweep.",
		}),
	}

	reg.MustRegister(
		m.ConnectionsActive,
		m.MessagesRouted,
		m.MessagesDropped,
		m.TestsStored,
		m.TestsExpired,
		m.ScreenshotsSaved,
		m.VisionFailures,
		m.SocketsReaped,
	)

	return m
}
