package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

type Collector struct {
	registry              *prometheus.Registry
	transactionsProcessed *prometheus.CounterVec
	transactionsFailed    *prometheus.CounterVec
	transactionDuration   prometheus.Histogram
	riskScoreDistribution prometheus.Histogram
	accountBalance        *prometheus.GaugeVec
	activeHolds           *prometheus.GaugeVec
	idempotentReplays     prometheus.Counter
	velocityBlocks        prometheus.Counter
	logger                *slog.Logger
}

func NewCollector(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()

	return &Collector{
		registry: registry,
		transactionsProcessed: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "transactions_processed_total",
			Help: "Total number of completed transactions",
		}, []string{"type"}),
		transactionsFailed: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "transactions_failed_total",
			Help: "Total number of failed transactions",
		}, []string{"type", "reason"}),
		transactionDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "transaction_processing_duration_seconds",
			Help:    "Time taken to process a transaction end to end",
			Buckets: prometheus.DefBuckets,
		}),
		riskScoreDistribution: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "transaction_risk_score_distribution",
			Help:    "Distribution of fraud risk scores",
			Buckets: []float64{0, 20, 40, 60, 80, 100},
		}),
		accountBalance: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
			Name: "account_balance",
			Help: "Current cached account balance",
		}, []string{"account_id", "currency"}),
		activeHolds: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
			Name: "active_holds",
			Help: "Number of active holds by type",
		}, []string{"hold_type"}),
		idempotentReplays: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "idempotent_replays_total",
			Help: "Requests served from the idempotency cache",
		}),
		velocityBlocks: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "velocity_blocks_total",
			Help: "Transactions rejected by velocity throttling",
		}),
		logger: logger,
	}
}

// RecordTransaction counts one finished movement. An empty reason means
// success; otherwise reason is the persisted failure reason.
func (c *Collector) RecordTransaction(txType string, duration time.Duration, reason string) {
	if reason == "" {
		c.transactionsProcessed.WithLabelValues(txType).Inc()
	} else {
		c.transactionsFailed.WithLabelValues(txType, reason).Inc()
		if reason == "VELOCITY_BLOCKED" {
			c.velocityBlocks.Inc()
		}
	}
	c.transactionDuration.Observe(duration.Seconds())
}

func (c *Collector) ObserveRiskScore(score int) {
	c.riskScoreDistribution.Observe(float64(score))
}

func (c *Collector) SetAccountBalance(accountID, currency string, balance decimal.Decimal) {
	c.accountBalance.WithLabelValues(accountID, currency).Set(balance.InexactFloat64())
}

func (c *Collector) HoldPlaced(holdType string) {
	c.activeHolds.WithLabelValues(holdType).Inc()
}

func (c *Collector) HoldSettled(holdType string) {
	c.activeHolds.WithLabelValues(holdType).Dec()
}

func (c *Collector) IdempotentReplay() {
	c.idempotentReplays.Inc()
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// StartServer exposes /metrics on its own listener and returns the server so
// the caller can shut it down.
func (c *Collector) StartServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		c.logger.Info("Starting metrics server", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()

	return server
}
