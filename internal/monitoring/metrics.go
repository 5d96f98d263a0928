package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pipeline metrics
	candlesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeengine_candles_processed_total",
			Help: "Candle-closed events processed, including redeliveries",
		},
		[]string{"symbol", "timeframe"},
	)

	duplicateEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeengine_duplicate_events_total",
			Help: "Events short-circuited by an idempotency-key hit",
		},
		[]string{"stage"},
	)

	handlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradeengine_handler_duration_seconds",
			Help:    "Time spent in each pipeline stage handler",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// Decision metrics
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeengine_decisions_total",
			Help: "Trade decisions by engine and action",
		},
		[]string{"engine", "action"},
	)

	providerFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tradeengine_provider_fallbacks_total",
			Help: "AI provider failures substituted by the deterministic engine",
		},
	)

	// Risk metrics
	riskOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeengine_risk_outcomes_total",
			Help: "Risk evaluations by outcome and violated rule",
		},
		[]string{"outcome", "rule"},
	)

	// Execution metrics
	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeengine_orders_total",
			Help: "Orders built and submitted",
		},
		[]string{"symbol", "side", "type"},
	)

	fillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeengine_fills_total",
			Help: "Fills applied to the portfolio",
		},
		[]string{"symbol", "side"},
	)

	// Portfolio metrics
	portfolioEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradeengine_portfolio_equity",
			Help: "Current portfolio equity in quote currency",
		},
	)
)

func init() {
	prometheus.MustRegister(candlesProcessed)
	prometheus.MustRegister(duplicateEvents)
	prometheus.MustRegister(handlerDuration)
	prometheus.MustRegister(decisionsTotal)
	prometheus.MustRegister(providerFallbacks)
	prometheus.MustRegister(riskOutcomes)
	prometheus.MustRegister(ordersTotal)
	prometheus.MustRegister(fillsTotal)
	prometheus.MustRegister(portfolioEquity)
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordCandle counts one processed candle event.
func RecordCandle(symbol, timeframe string) {
	candlesProcessed.WithLabelValues(symbol, timeframe).Inc()
}

// RecordDuplicate counts an idempotency short-circuit at a stage.
func RecordDuplicate(stage string) {
	duplicateEvents.WithLabelValues(stage).Inc()
}

// ObserveHandler records how long a stage handler took.
func ObserveHandler(stage string, seconds float64) {
	handlerDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordDecision counts a decision by engine and action.
func RecordDecision(engine, action string) {
	decisionsTotal.WithLabelValues(engine, action).Inc()
}

// RecordProviderFallback counts a deterministic substitution.
func RecordProviderFallback() {
	providerFallbacks.Inc()
}

// RecordRiskOutcome counts a risk evaluation result.
func RecordRiskOutcome(outcome, rule string) {
	riskOutcomes.WithLabelValues(outcome, rule).Inc()
}

// RecordOrder counts a submitted order.
func RecordOrder(symbol, side, orderType string) {
	ordersTotal.WithLabelValues(symbol, side, orderType).Inc()
}

// RecordFill counts an applied fill.
func RecordFill(symbol, side string) {
	fillsTotal.WithLabelValues(symbol, side).Inc()
}

// UpdateEquity publishes the latest equity mark.
func UpdateEquity(equity float64) {
	portfolioEquity.Set(equity)
}
