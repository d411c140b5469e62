package signaling

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the Prometheus metrics of one Server.
type metrics struct {
	peers       prometheus.Gauge
	advertisers prometheus.Gauge
	messages    *prometheus.CounterVec
	links       prometheus.Counter
	accepted    prometheus.Counter
	rejected    *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		peers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "blesock",
			Subsystem: "signal",
			Name:      "peers",
			Help:      "Number of connected WebSocket peers",
		}),
		advertisers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "blesock",
			Subsystem: "signal",
			Name:      "advertisers",
			Help:      "Number of peers currently advertising",
		}),
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blesock",
			Subsystem: "signal",
			Name:      "messages_total",
			Help:      "Signaling messages received, by type",
		}, []string{"type"}),
		links: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "blesock",
			Subsystem: "signal",
			Name:      "links_total",
			Help:      "Links allocated between a central and a peripheral",
		}),
		accepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "blesock",
			Subsystem: "signal",
			Name:      "links_accepted_total",
			Help:      "Links the peripheral reported as authenticated",
		}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blesock",
			Subsystem: "signal",
			Name:      "rejected_total",
			Help:      "Requests the server refused, by reason",
		}, []string{"reason"}),
	}
}
