package infra

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	UpdatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bondarb_updates_total",
		Help: "Market data updates processed",
	})

	StaleUpdatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bondarb_stale_updates_total",
		Help: "Updates dropped as stale (timestamp older than the book)",
	})

	CrossedBooksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bondarb_crossed_books_total",
		Help: "Updates rejected because they would cross the book",
	})

	OpportunitiesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bondarb_opportunities_total",
		Help: "Arbitrage opportunities detected",
	})

	TradesExecutedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bondarb_trades_executed_total",
		Help: "Arbitrage sequences that completed all legs",
	})

	LegsFilledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bondarb_legs_filled_total",
		Help: "Individual legs confirmed filled",
	})

	RetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bondarb_retries_total",
		Help: "Transient submission failures seen",
	})

	LegLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bondarb_leg_latency_seconds",
		Help:    "Submission-to-resolution latency per leg",
		Buckets: prometheus.DefBuckets,
	})

	BalanceGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bondarb_balance",
		Help: "Current ledger balance by currency",
	}, []string{"currency"})
)

func init() {
	prometheus.MustRegister(
		UpdatesTotal,
		StaleUpdatesTotal,
		CrossedBooksTotal,
		OpportunitiesTotal,
		TradesExecutedTotal,
		LegsFilledTotal,
		RetriesTotal,
		LegLatency,
		BalanceGauge,
	)
}

// ServeMetrics starts the metrics and health-check HTTP server. An empty
// addr disables it.
func ServeMetrics(ctx context.Context, addr string) {
	if addr == "" {
		slog.Info("metrics disabled: empty addr")
		return
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		slog.Info("metrics server started", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
}
