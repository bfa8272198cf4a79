package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the server's Prometheus collectors.
type Metrics struct {
	requests   *prometheus.CounterVec
	broadcasts *prometheus.CounterVec
	clients    prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "syncache",
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "HTTP requests by method and status class.",
		}, []string{"method", "status"}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "syncache",
			Subsystem: "server",
			Name:      "broadcasts_total",
			Help:      "Realtime messages broadcast by collection and event.",
		}, []string{"collection", "event"}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "syncache",
			Subsystem: "server",
			Name:      "realtime_clients",
			Help:      "Connected websocket subscribers.",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.requests,
		m.broadcasts,
		m.clients,
		collectors.NewGoCollector(),
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
