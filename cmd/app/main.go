package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"bond_arb/internal/app"
	"bond_arb/internal/feed"
	"bond_arb/internal/infra"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := bootstrap.Config

	if cfg.Metrics.Addr != "" {
		go infra.ServeMetrics(ctx, cfg.Metrics.Addr)
	}

	if err := bootstrap.FXClient.Start(ctx); err != nil {
		slog.Error("Failed to start FX rate client", slog.Any("error", err))
	}
	defer bootstrap.FXClient.Stop()

	seq := bootstrap.Sequencer

	switch cfg.Data.Mode {
	case "replay":
		// Deterministic single timeline: the replayer drives the
		// sequencer directly instead of going through the inbox.
		replayer := feed.NewCSVReplayer(cfg.Data.Dir)
		if err := replayer.RunReplay(ctx, seq); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("❌ Replay failed", slog.Any("error", err))
			os.Exit(1)
		}
		bootstrap.Reporter.LogSummary()

	case "live":
		go seq.Run(ctx)
		slog.InfoContext(ctx, "✅ Sequencer (Hotpath) started")

		nextSeq := uint64(0)
		worker := feed.NewWSWorker(cfg.Data.WSURL, cfg.Data.Securities, seq.Inbox(), &nextSeq)
		if err := worker.Connect(ctx); err != nil {
			slog.Error("Failed to connect market data feed", slog.Any("error", err))
			os.Exit(1)
		}
		defer worker.Disconnect()
		slog.InfoContext(ctx, "✅ Market data worker started",
			slog.Int("securities", len(cfg.Data.Securities)))

		<-ctx.Done()
		bootstrap.Reporter.LogSummary()
	}

	slog.Info("👋 Shutting down gracefully...")
}
