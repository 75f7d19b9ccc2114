package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chris-cpz/strategy-growth-momentum-dca/internal/broker"
	"github.com/chris-cpz/strategy-growth-momentum-dca/internal/config"
	"github.com/chris-cpz/strategy-growth-momentum-dca/internal/engine"
	"github.com/chris-cpz/strategy-growth-momentum-dca/internal/logging"
	"github.com/chris-cpz/strategy-growth-momentum-dca/internal/md"
	"github.com/chris-cpz/strategy-growth-momentum-dca/internal/metrics"
	"github.com/chris-cpz/strategy-growth-momentum-dca/internal/regime"
	"github.com/chris-cpz/strategy-growth-momentum-dca/internal/risk"
	"github.com/chris-cpz/strategy-growth-momentum-dca/internal/state"
	"github.com/chris-cpz/strategy-growth-momentum-dca/internal/strategy"
	"github.com/chris-cpz/strategy-growth-momentum-dca/internal/trace"
	"github.com/google/uuid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewLogger("info").Fatal().Err(err).Msg("config error")
	}
	log := logging.NewLogger(cfg.LogLevel)

	if err := trace.Init(cfg.Tracing, os.Stderr); err != nil {
		log.Error().Err(err).Msg("failed to initialize tracer")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = trace.Shutdown(ctx)
	}()

	if cfg.MetricsAddr != "" {
		srv := metrics.Serve(cfg.MetricsAddr, log)
		defer srv.Close()
	}

	runID := uuid.NewString()
	decisions, err := engine.NewDecisionLogger(cfg.DecisionsPath, runID, log)
	if err != nil {
		log.Fatal().Err(err).Msg("decision logger error")
	}
	defer func() {
		if err := decisions.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close decision logger")
		}
	}()

	store := state.NewStore()
	switch err := store.Load(cfg.CheckpointPath); {
	case err == nil:
		log.Info().Str("path", cfg.CheckpointPath).Msg("loaded checkpoint")
	case errors.Is(err, os.ErrNotExist):
		log.Info().Str("path", cfg.CheckpointPath).Msg("no checkpoint, starting fresh")
	default:
		log.Fatal().Err(err).Str("path", cfg.CheckpointPath).Msg("checkpoint unreadable")
	}

	marketData := md.New(cfg.APIKey, cfg.APISecret, cfg.Feed, log)
	brokerClient := broker.New(cfg.APIKey, cfg.APISecret, cfg.BaseURL(), log)
	regimeProvider := regime.NewProvider(marketData, vixSource(cfg), cfg.Benchmark, cfg.RSIPeriod, log)
	strat := strategy.NewMomentum(cfg.SMAWindow, cfg.RSIThreshold, cfg.VIXThreshold)
	gate := risk.Gate{Log: log}
	engineImpl := engine.New(cfg, strat, gate, marketData, regimeProvider, brokerClient, store, decisions, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalChan
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	log.Info().Str("run_id", runID).Str("mode", string(cfg.Mode)).Strs("symbols", cfg.Symbols).Float64("dca_amount", cfg.DCAAmount).Int("runs_per_day", cfg.RunsPerDay).Msg("starting growth momentum dca")

	if cfg.Mode != config.ModeDryRun {
		engine.Reconcile(ctx, brokerClient, store, cfg.Symbols, log)
	}

	if cfg.Once {
		if _, err := engineImpl.RunCycle(ctx); err != nil {
			log.Error().Err(err).Msg("dca cycle finished with error")
		}
	} else {
		if cfg.Mode != config.ModeDryRun {
			go engine.ReconcileLoop(ctx, brokerClient, store, cfg.Symbols, cfg.ReconcileInterval, log)
		}
		scheduler := engine.NewScheduler(engineImpl, brokerClient, store, cfg.CheckpointPath, cfg.RunsPerDay, cfg.SessionLength, cfg.PollInterval, log)
		if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("scheduler stopped")
		}
	}

	if err := store.Save(cfg.CheckpointPath); err != nil {
		log.Error().Err(err).Msg("failed to save checkpoint")
	}
	log.Info().Msg("bot shutdown complete")
}

func vixSource(cfg config.Config) regime.VIXSource {
	if cfg.VIXSource == config.VIXSourceStatic {
		return regime.StaticSource(cfg.VIXStatic)
	}
	return regime.ScrapeSource{URL: cfg.VIXURL, Selector: cfg.VIXSelector, Timeout: cfg.VIXTimeout}
}
