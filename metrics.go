package eposcan

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus counters exported by a Device. Unlike the
// promauto globals in the ambient stack's metrics package, a Device owns
// its own registry: library code may have several devices alive in one
// process (e.g. in tests), and registering into the global default
// registry would collide when a second Device is built.
type Metrics struct {
	Registry      *prometheus.Registry
	FramesSent    prometheus.Counter
	FramesRecv    prometheus.Counter
	COBsSent      prometheus.Counter
	COBsRecv      prometheus.Counter
	OpenTotal     prometheus.Counter
	CloseTotal    prometheus.Counter
	TimeoutTotal  prometheus.Counter
	ErrorsByLayer *prometheus.CounterVec
}

// NewMetrics builds a fresh, independently-registered Metrics set.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		Registry: registry,
		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eposcan_frames_sent_total",
			Help: "Total wire frames sent across all back-ends.",
		}),
		FramesRecv: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eposcan_frames_received_total",
			Help: "Total wire frames received across all back-ends.",
		}),
		COBsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eposcan_cobs_sent_total",
			Help: "Total CANopen COBs sent.",
		}),
		COBsRecv: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eposcan_cobs_received_total",
			Help: "Total CANopen COBs received.",
		}),
		OpenTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eposcan_open_total",
			Help: "Total successful device Open calls.",
		}),
		CloseTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eposcan_close_total",
			Help: "Total successful device Close calls.",
		}),
		TimeoutTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eposcan_timeout_total",
			Help: "Total TIMEOUT errors raised by any back-end.",
		}),
		ErrorsByLayer: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eposcan_errors_total",
			Help: "Errors raised, labeled by Code.",
		}, []string{"code"}),
	}
	registry.MustRegister(m.FramesSent, m.FramesRecv, m.COBsSent, m.COBsRecv,
		m.OpenTotal, m.CloseTotal, m.TimeoutTotal, m.ErrorsByLayer)
	return m
}

func (m *Metrics) countError(err error) {
	if m == nil || err == nil {
		return
	}
	if e, ok := err.(*Error); ok {
		m.ErrorsByLayer.WithLabelValues(e.Code.String()).Inc()
		if e.Code == CodeTimeout {
			m.TimeoutTotal.Inc()
		}
	}
}
