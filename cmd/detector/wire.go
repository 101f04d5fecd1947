package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polyarb/config"
	"github.com/alejandrodnm/polyarb/internal/adapters/dex"
	"github.com/alejandrodnm/polyarb/internal/adapters/notify"
	"github.com/alejandrodnm/polyarb/internal/adapters/quoteapi"
	"github.com/alejandrodnm/polyarb/internal/adapters/storage"
	"github.com/alejandrodnm/polyarb/internal/detector"
	"github.com/alejandrodnm/polyarb/internal/ports"
)

const dialTimeout = 10 * time.Second

// buildSources crea una fuente por venue habilitado, en el orden configurado.
// Cada venue router tiene su propio cliente RPC.
func buildSources(ctx context.Context, cfg *config.Config) ([]ports.PriceSource, error) {
	var sources []ports.PriceSource
	for _, v := range cfg.EnabledVenues() {
		switch v.Kind {
		case config.KindRouter:
			dctx, cancel := context.WithTimeout(ctx, dialTimeout)
			client, err := dex.Dial(dctx, cfg.Chain.RPCURL)
			cancel()
			if err != nil {
				return nil, fmt.Errorf("venue %s: %w", v.Name, err)
			}
			src, err := dex.NewRouterSource(dex.RouterConfig{
				Name:           v.Name,
				RouterAddress:  v.RouterAddress,
				FactoryAddress: v.FactoryAddress,
				RatePerSec:     v.RatePerSec,
			}, client)
			if err != nil {
				client.Close()
				return nil, err
			}
			sources = append(sources, src)

		case config.KindQuoteAPI:
			sources = append(sources, quoteapi.New(quoteapi.Config{
				Name:       v.Name,
				BaseURL:    v.BaseURL,
				APIKey:     v.APIKey,
				ChainID:    cfg.Chain.ChainID,
				RatePerSec: v.RatePerSec,
			}))

		case config.KindStatic:
			src, err := dex.NewStaticSource(v.Name, v.Prices)
			if err != nil {
				return nil, err
			}
			sources = append(sources, src)

		default:
			return nil, fmt.Errorf("venue %s: unknown kind %q", v.Name, v.Kind)
		}
		slog.Debug("venue registered", "venue", v.Name, "kind", v.Kind)
	}
	return sources, nil
}

// buildGasPricer devuelve el oráculo RPC si gas.live está activo; si no, el
// precio estático de configuración.
func buildGasPricer(ctx context.Context, cfg *config.Config) (ports.GasPricer, error) {
	if !cfg.Gas.Live {
		return detector.StaticGasPricer(cfg.Gas.PriceGwei), nil
	}
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	client, err := dex.Dial(dctx, cfg.Chain.RPCURL)
	if err != nil {
		return nil, err
	}
	return dex.NewGasOracle(client, cfg.GasCacheTTL()), nil
}

// openStore abre el backend de persistencia configurado.
func openStore(ctx context.Context, cfg *config.Config) (ports.OpportunityStore, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		dctx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()
		return storage.NewPostgresStorage(dctx, cfg.Storage.DSN)
	default:
		return storage.NewSQLiteStorage(cfg.Storage.DSN)
	}
}

// buildNotifiers crea los notificadores configurados. El cierre devuelto
// libera las conexiones abiertas.
func buildNotifiers(ctx context.Context, cfg *config.Config) ([]ports.Notifier, func(), error) {
	var (
		notifiers []ports.Notifier
		closers   []func() error
	)
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	if cfg.Notify.Console || cfg.Notify.Table {
		notifiers = append(notifiers, notify.NewConsole(cfg.Notify.Table))
	}

	if cfg.Notify.Redis.Enabled {
		r, err := notify.NewRedis(ctx, notify.RedisConfig{
			Addr:     cfg.Notify.Redis.Addr,
			Password: cfg.Notify.Redis.Password,
			DB:       cfg.Notify.Redis.DB,
			Channel:  cfg.Notify.Redis.Channel,
			Stream:   cfg.Notify.Redis.Stream,
		})
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		notifiers = append(notifiers, r)
		closers = append(closers, r.Close)
	}

	return notifiers, closeAll, nil
}
