// Package metrics exposes Prometheus instruments for engine outcomes and
// backend latency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	chatSends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "designdesk",
		Name:      "chat_sends_total",
		Help:      "Chat sends by surface and outcome kind.",
	}, []string{"surface", "outcome"})

	analyses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "designdesk",
		Name:      "review_analyses_total",
		Help:      "Review analyses by outcome.",
	}, []string{"outcome"})

	staleResponses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "designdesk",
		Name:      "stale_responses_total",
		Help:      "Backend responses discarded because a newer request had started.",
	}, []string{"operation"})

	backendLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "designdesk",
		Name:      "backend_request_duration_seconds",
		Help:      "Latency of calls to the assistant backend.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"endpoint", "result"})

	workspaces = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "designdesk",
		Name:      "workspaces_active",
		Help:      "Number of live tab workspaces.",
	})
)

func init() {
	prometheus.MustRegister(chatSends, analyses, staleResponses, backendLatency, workspaces)
}

// ChatSend records the outcome kind of a chat send.
func ChatSend(surface, outcome string) {
	chatSends.WithLabelValues(surface, outcome).Inc()
}

// Analysis records the outcome of an analysis.
func Analysis(outcome string) {
	analyses.WithLabelValues(outcome).Inc()
}

// StaleResponse records a discarded out-of-order response.
func StaleResponse(operation string) {
	staleResponses.WithLabelValues(operation).Inc()
}

// BackendRequest records the latency of a backend call.
func BackendRequest(endpoint string, ok bool, d time.Duration) {
	result := "ok"
	if !ok {
		result = "error"
	}
	backendLatency.WithLabelValues(endpoint, result).Observe(d.Seconds())
}

// SetWorkspaces sets the live workspace gauge.
func SetWorkspaces(n int) {
	workspaces.Set(float64(n))
}
