package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"txdecoder/internal/resilience"
)

// Metrics holds the decoder's prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	StrategyAttempts *prometheus.CounterVec
	StrategyLatency  *prometheus.HistogramVec
	Decodes          *prometheus.CounterVec
	DecodeLatency    *prometheus.HistogramVec
	BreakerState     *prometheus.GaugeVec
	BreakerTrips     *prometheus.CounterVec
	PoolConcurrency  *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		StrategyAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "txdecoder_strategy_attempts_total",
			Help: "Strategy attempts by strategy id and outcome",
		}, []string{"strategy", "outcome"}),
		StrategyLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "txdecoder_strategy_latency_seconds",
			Help:    "Strategy attempt latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"strategy"}),
		Decodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "txdecoder_decodes_total",
			Help: "Decode requests by kind and outcome",
		}, []string{"kind", "outcome"}),
		DecodeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "txdecoder_decode_latency_seconds",
			Help:    "Decode latency in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "txdecoder_circuit_breaker_state",
			Help: "Circuit breaker state per key (0=closed, 1=open, 2=half-open)",
		}, []string{"key"}),
		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "txdecoder_circuit_breaker_trips_total",
			Help: "Times a circuit breaker opened",
		}, []string{"key"}),
		PoolConcurrency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "txdecoder_request_pool_concurrency",
			Help: "Current request pool concurrency per chain",
		}, []string{"chain_id"}),
	}
	m.registry.MustRegister(
		m.StrategyAttempts,
		m.StrategyLatency,
		m.Decodes,
		m.DecodeLatency,
		m.BreakerState,
		m.BreakerTrips,
		m.PoolConcurrency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveStrategy(id string, outcome string, elapsed time.Duration) {
	m.StrategyAttempts.WithLabelValues(id, outcome).Inc()
	m.StrategyLatency.WithLabelValues(id).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveDecode(kind string, outcome string, elapsed time.Duration) {
	m.Decodes.WithLabelValues(kind, outcome).Inc()
	m.DecodeLatency.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// BreakerStateChanged is a resilience.BreakerConfig.OnStateChange hook.
func (m *Metrics) BreakerStateChanged(key string, _, to resilience.State) {
	m.BreakerState.WithLabelValues(key).Set(float64(to))
	if to == resilience.StateOpen {
		m.BreakerTrips.WithLabelValues(key).Inc()
	}
}

// PoolAdjusted is a resilience.PoolConfig.OnAdjust hook.
func (m *Metrics) PoolAdjusted(chainID uint64, concurrency int) {
	m.PoolConcurrency.WithLabelValues(strconv.FormatUint(chainID, 10)).Set(float64(concurrency))
}
