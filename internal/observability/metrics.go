// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Cycle metrics
	CyclesTotal   *prometheus.CounterVec
	CycleDuration *prometheus.HistogramVec

	// Buyback metrics
	BuybacksTotal      prometheus.Counter
	SolSpentTotal      prometheus.Counter
	TokensBoughtTotal  prometheus.Counter
	SeenSignatureCount prometheus.Gauge

	// Hub metrics
	ConnectedClients prometheus.Gauge
	MessagesSent     *prometheus.CounterVec
	BroadcastDrops   prometheus.Counter

	// External call metrics
	RPCCallLatency     *prometheus.HistogramVec
	JupiterCallLatency *prometheus.HistogramVec

	// Journal metrics
	JournalWrites *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "buyback_relay"
	}

	return &Metrics{
		// Cycle metrics
		CyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "cycles_total",
			Help:      "Total number of poll cycles by mode and status",
		}, []string{"mode", "status"}),
		CycleDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "cycle_duration_seconds",
			Help:      "Poll cycle duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"mode"}),

		// Buyback metrics
		BuybacksTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "buyback",
			Name:      "events_total",
			Help:      "Total number of buyback events applied",
		}),
		SolSpentTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "buyback",
			Name:      "sol_spent_total",
			Help:      "Total SOL spent across all buybacks",
		}),
		TokensBoughtTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "buyback",
			Name:      "tokens_bought_total",
			Help:      "Total tokens received across all buybacks",
		}),
		SeenSignatureCount: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "buyback",
			Name:      "seen_signatures",
			Help:      "Current number of retained seen signatures",
		}),

		// Hub metrics
		ConnectedClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "connected_clients",
			Help:      "Current number of connected WebSocket clients",
		}),
		MessagesSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "messages_sent_total",
			Help:      "Total number of WebSocket messages sent by type",
		}, []string{"type"}),
		BroadcastDrops: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "broadcast_drops_total",
			Help:      "Total number of clients dropped on broadcast write failure",
		}),

		// External call metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		JupiterCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jupiter",
			Name:      "call_latency_seconds",
			Help:      "Jupiter API call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),

		// Journal metrics
		JournalWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "writes_total",
			Help:      "Total number of journal writes by status",
		}, []string{"status"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordCycle records a completed poll cycle.
func RecordCycle(mode, status string, durationSeconds float64) {
	DefaultMetrics.CyclesTotal.WithLabelValues(mode, status).Inc()
	DefaultMetrics.CycleDuration.WithLabelValues(mode).Observe(durationSeconds)
}

// RecordBuyback records an applied buyback event.
func RecordBuyback(solSpent, tokensReceived float64) {
	DefaultMetrics.BuybacksTotal.Inc()
	DefaultMetrics.SolSpentTotal.Add(solSpent)
	DefaultMetrics.TokensBoughtTotal.Add(tokensReceived)
}

// UpdateSeenSignatures updates the retained-signature gauge.
func UpdateSeenSignatures(n int) {
	DefaultMetrics.SeenSignatureCount.Set(float64(n))
}

// UpdateConnectedClients updates the connected-client gauge.
func UpdateConnectedClients(n int) {
	DefaultMetrics.ConnectedClients.Set(float64(n))
}

// RecordMessageSent increments the sent-message counter for a message type.
func RecordMessageSent(messageType string) {
	DefaultMetrics.MessagesSent.WithLabelValues(messageType).Inc()
}

// RecordBroadcastDrop increments the dropped-client counter.
func RecordBroadcastDrop() {
	DefaultMetrics.BroadcastDrops.Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordJupiterLatency records Jupiter API call latency.
func RecordJupiterLatency(endpoint string, seconds float64) {
	DefaultMetrics.JupiterCallLatency.WithLabelValues(endpoint).Observe(seconds)
}

// RecordJournalWrite records a journal write outcome.
func RecordJournalWrite(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.JournalWrites.WithLabelValues(status).Inc()
}
