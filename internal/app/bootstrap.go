// Package app wires configuration, infrastructure and the trading engine
// into a runnable simulation.
package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"bond_arb/internal/commission"
	"bond_arb/internal/domain"
	"bond_arb/internal/engine"
	"bond_arb/internal/execution"
	"bond_arb/internal/infra"
	"bond_arb/internal/infra/storage"
	"bond_arb/internal/report"
	"bond_arb/internal/strategy"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config    *infra.Config
	Set       *domain.InstrumentSet
	Ledger    *domain.Ledger
	FXClient  *infra.FXRateClient
	Gateway   *execution.SimGateway
	Reporter  *report.Reporter
	Sequencer *engine.Sequencer

	jsonlSink *report.JSONLSink
	store     *storage.Store
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads configuration and builds the full component graph.
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("🚀 Bootstrapping bond arbitrage simulator...")

	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	pairs := make([]domain.BondPair, 0, len(cfg.Pairs))
	for _, p := range cfg.Pairs {
		pair, err := domain.NewBondPair(p.Name, p.PesoSecurity, p.DollarSecurity)
		if err != nil {
			return fmt.Errorf("pair %q: %w", p.Name, err)
		}
		pairs = append(pairs, pair)
	}
	set, err := domain.NewInstrumentSet(pairs)
	if err != nil {
		return err
	}
	b.Set = set

	b.Ledger = domain.NewLedger(
		decimal.NewFromFloat(cfg.Risk.InitialARSBalance),
		decimal.NewFromFloat(cfg.Risk.InitialUSDBalance),
		cfg.Risk.AllowNegativeBalance,
	)
	if cfg.Risk.AllowNegativeBalance {
		slog.Warn("negative balance overdrafts are ENABLED")
	}

	comm, err := commission.NewModel(
		decimal.NewFromFloat(cfg.Commission.ARSBps),
		decimal.NewFromFloat(cfg.Commission.USDBps),
	)
	if err != nil {
		return err
	}

	b.FXClient = infra.NewFXRateClient(
		decimal.NewFromFloat(cfg.FX.EODRate),
		cfg.FX.URL,
		cfg.FX.PollIntervalSec,
	)

	b.Gateway = execution.NewSimGateway(
		time.Duration(cfg.Execution.GatewayLatencyMS) * time.Millisecond,
	)
	executor := execution.NewSequencer(b.Gateway, b.Ledger, comm, execution.Config{
		MaxRetries: cfg.Execution.MaxRetries,
		RetryDelay: time.Duration(cfg.Execution.RetryDelayMS) * time.Millisecond,
		UseBackoff: cfg.Execution.UseBackoff,
	})

	var sinks []report.Sink
	if cfg.Report.JSONLPath != "" {
		sink, err := report.OpenJSONLSink(cfg.Report.JSONLPath)
		if err != nil {
			return fmt.Errorf("opening JSONL report: %w", err)
		}
		b.jsonlSink = sink
		sinks = append(sinks, sink)
	}
	if cfg.Storage.Path != "" {
		store, err := storage.NewStore(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("opening trade store: %w", err)
		}
		b.store = store
		sinks = append(sinks, store)
		slog.Info("✅ Trade database initialized", slog.String("path", cfg.Storage.Path))
	}
	b.Reporter = report.NewReporter(b.Ledger, sinks...)

	eval := strategy.NewEvaluator(set, comm, cfg.Risk.MaxBookDepth)
	b.Sequencer = engine.NewSequencer(
		1024,
		set,
		b.Ledger,
		eval,
		executor,
		b.Reporter,
		b.FXClient,
		cfg.Risk.MaxIterationsPerTick,
	)

	slog.Info("✅ Engine assembled",
		slog.Int("pairs", len(pairs)),
		slog.String("mode", cfg.Data.Mode))
	return nil
}

// Close releases report sinks and storage handles.
func (b *Bootstrap) Close() {
	if b.jsonlSink != nil {
		if err := b.jsonlSink.Close(); err != nil {
			slog.Error("closing JSONL sink", slog.Any("error", err))
		}
	}
}
