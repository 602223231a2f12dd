// Package metrics provides Prometheus instrumentation for the presence relay.
// It exposes gauges for connection and presence counts, counters for message
// throughput, and a histogram for message handling latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// OnlineUsers tracks the number of logged-in profiles not marked offline.
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_online_users",
		Help: "Current number of online users in the presence registry",
	})

	// MessagesTotal counts private messages processed, labeled by outcome:
	// "delivered" (recipient online), "queued" (recipient absent, archived
	// only), "dropped" (invalid or rate limited).
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_messages_total",
		Help: "Total number of private messages processed",
	}, []string{"outcome"})

	// MessageLatency records send-message handling latency in seconds.
	MessageLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_message_latency_seconds",
		Help:    "Send-message handling latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// TypingSignalsTotal counts relayed typing indicators.
	TypingSignalsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_typing_signals_total",
		Help: "Total number of typing indicators relayed",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		OnlineUsers,
		MessagesTotal,
		MessageLatency,
		TypingSignalsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
