package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/polyarb/config"
	"github.com/alejandrodnm/polyarb/internal/adapters/httpapi"
	"github.com/alejandrodnm/polyarb/internal/adapters/notify"
	"github.com/alejandrodnm/polyarb/internal/detector"
	"github.com/alejandrodnm/polyarb/internal/ports"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run devuelve el código de salida; así los defers se ejecutan antes de os.Exit.
func run(args []string) int {
	fs := flag.NewFlagSet("detector", flag.ContinueOnError)
	configPath := fs.String("config", "config/config.yaml", "path to config file")
	once := fs.Bool("once", false, "run one detection tick and exit")
	dryRun := fs.Bool("dry-run", false, "detect and report without persisting opportunities")
	verbose := fs.Bool("verbose", false, "set log level to debug")
	logFormat := fs.String("format", "", "log format: text|json (overrides config)")
	table := fs.Bool("table", false, "print accepted opportunities as a table")
	recent := fs.Int("recent", 0, "print the last N stored opportunities and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		return 1
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *table {
		cfg.Notify.Table = true
	}
	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err, "path", *configPath)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *recent > 0 {
		if err := printRecent(ctx, cfg, *recent); err != nil {
			slog.Error("failed to list opportunities", "err", err)
			return 1
		}
		return 0
	}

	slog.Info("polyarb starting",
		"config", *configPath,
		"interval", cfg.CheckInterval(),
		"dry_run", *dryRun,
		"once", *once,
		"storage", cfg.Storage.Driver,
	)

	pairs, err := cfg.TokenPairs()
	if err != nil {
		slog.Error("invalid pairs", "err", err)
		return 1
	}

	sources, err := buildSources(ctx, cfg)
	if err != nil {
		slog.Error("failed to build price sources", "err", err)
		return 1
	}

	var store ports.OpportunityStore
	if !*dryRun {
		s, err := openStore(ctx, cfg)
		if err != nil {
			slog.Error("failed to open storage", "err", err, "driver", cfg.Storage.Driver)
			return 1
		}
		defer s.Close()
		pruneHistory(ctx, s, cfg.Retention())
		store = s
	}

	notifiers, closeNotifiers, err := buildNotifiers(ctx, cfg)
	if err != nil {
		slog.Error("failed to build notifiers", "err", err)
		return 1
	}
	defer closeNotifiers()

	gas, err := buildGasPricer(ctx, cfg)
	if err != nil {
		slog.Error("failed to build gas oracle", "err", err)
		return 1
	}

	thresholds, err := cfg.Thresholds()
	if err != nil {
		slog.Error("invalid thresholds", "err", err)
		return 1
	}
	notional, err := cfg.TradeNotional()
	if err != nil {
		slog.Error("invalid trade amount", "err", err)
		return 1
	}

	agg := detector.NewAggregator(detector.AggregatorConfig{
		FetchTimeout:  cfg.FetchTimeout(),
		MaxConcurrent: cfg.Detector.MaxConcurrentFetches,
	}, sources)

	eval := detector.NewEvaluator(detector.EvaluatorConfig{
		TradeNotional: notional,
		Thresholds:    thresholds,
		Gas:           cfg.GasModel(),
		VenueOrder:    agg.Venues(),
	}, store, gas)

	loop := detector.New(detector.Config{
		Interval: cfg.CheckInterval(),
		Pairs:    pairs,
		Once:     *once,
	}, agg, eval, notifiers...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(gctx) })
	if cfg.API.Enabled && !*once {
		api := httpapi.New(cfg.API.Addr, store, agg.Venues())
		g.Go(func() error { return api.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		slog.Error("detector exited with error", "err", err)
		return 1
	}

	slog.Info("polyarb stopped cleanly")
	return 0
}

func printRecent(ctx context.Context, cfg *config.Config, n int) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	opps, err := store.ListRecent(ctx, n)
	if err != nil {
		return err
	}
	return notify.RenderTable(os.Stdout, opps)
}

func pruneHistory(ctx context.Context, store ports.OpportunityStore, retention time.Duration) {
	if retention <= 0 {
		return
	}
	n, err := store.Prune(ctx, time.Now().Add(-retention))
	if err != nil {
		slog.Warn("prune failed", "err", err)
		return
	}
	if n > 0 {
		slog.Info("pruned old opportunities", "deleted", n, "retention", retention)
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
