package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector of the process. It is separate from the
// default registry so tests can build their own.
var Registry = prometheus.NewRegistry()

var (
	// TurnsTotal counts finished turns by outcome (ok, transcription, generation).
	TurnsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "zvoice_turns_total",
			Help: "Total number of processed turns by outcome",
		},
		[]string{"outcome"},
	)

	// PortLatency observes each external port call.
	PortLatency = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zvoice_port_latency_seconds",
			Help:    "Latency of transcription, generation and synthesis calls",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"port", "provider", "result"},
	)

	// SynthesisSkipped counts turns answered without audio, by reason.
	SynthesisSkipped = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "zvoice_synthesis_skipped_total",
			Help: "Turns that produced no audio",
		},
		[]string{"reason"},
	)

	// TokensTotal accumulates provider-reported token usage.
	TokensTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "zvoice_tokens_total",
			Help: "Token usage reported by generation providers",
		},
		[]string{"kind"},
	)

	// TurnInFlight is 1 while the worker is processing a turn.
	TurnInFlight = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "zvoice_turn_in_flight",
			Help: "Whether a turn is currently being processed",
		},
	)

	// RequestCount counts HTTP requests.
	RequestCount = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "zvoice_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObservePort records one port call.
func ObservePort(port, provider string, seconds float64, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	PortLatency.WithLabelValues(port, provider, result).Observe(seconds)
}
