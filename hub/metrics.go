package hub

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the hub's Prometheus instruments.
type metrics struct {
	connsOpen       prometheus.Gauge
	connsTotal      prometheus.Counter
	handshakeFailed prometheus.Counter
	sidCollisions   prometheus.Counter
	broadcasts      prometheus.Counter
	chats           prometheus.Counter
	kicks           prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		connsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "adchub",
			Name:      "connections_open",
			Help:      "Number of currently open ADC connections.",
		}),
		connsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adchub",
			Name:      "connections_total",
			Help:      "Total number of accepted ADC connections.",
		}),
		handshakeFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adchub",
			Name:      "handshake_failed_total",
			Help:      "Total number of sessions that failed the PROTOCOL/IDENTIFY/VERIFY handshake.",
		}),
		sidCollisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adchub",
			Name:      "sid_collisions_total",
			Help:      "Total number of SID candidates rejected for colliding with a live session.",
		}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adchub",
			Name:      "broadcasts_total",
			Help:      "Total number of broadcast lines sent to the NORMAL roster.",
		}),
		chats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adchub",
			Name:      "chat_messages_total",
			Help:      "Total number of chat messages relayed through the hub.",
		}),
		kicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adchub",
			Name:      "kicks_total",
			Help:      "Total number of administrative kicks issued.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.connsOpen, m.connsTotal, m.handshakeFailed,
			m.sidCollisions, m.broadcasts, m.chats, m.kicks,
		)
	}
	return m
}
