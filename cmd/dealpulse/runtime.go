package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/marcosevegrand/dealpulse/internal/alert"
	"github.com/marcosevegrand/dealpulse/internal/config"
	"github.com/marcosevegrand/dealpulse/internal/extractor"
	"github.com/marcosevegrand/dealpulse/internal/notify"
	"github.com/marcosevegrand/dealpulse/internal/refresh"
	"github.com/marcosevegrand/dealpulse/internal/scraper"
	"github.com/marcosevegrand/dealpulse/internal/storage"
	"github.com/marcosevegrand/dealpulse/internal/tracking"
)

// runtime holds the wired components for one process
type runtime struct {
	cfg       *config.Config
	logger    zerolog.Logger
	store     tracking.Store
	scheduler *refresh.Scheduler
	closers   []func()
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	rt := &runtime{cfg: cfg, logger: newLogger(cfg)}

	store, err := rt.openStore(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.store = store

	notifier, marker, err := rt.openNotifier(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}

	evaluator := alert.NewEvaluator(alert.Config{
		Threshold:  decimal.NewFromFloat(cfg.Alerts.Threshold),
		Window:     cfg.Alerts.Window(),
		MinSamples: cfg.Alerts.MinSamples,
	}, rt.logger.With().Str("component", "evaluator").Logger())

	scheduler, err := refresh.NewScheduler(refresh.Config{
		StaleAfter:     cfg.Refresh.StaleAfter(),
		Concurrency:    cfg.Refresh.Concurrency,
		FetchTimeout:   cfg.Fetch.Timeout(),
		MaxRetries:     cfg.Refresh.MaxRetries,
		BackoffBase:    cfg.Refresh.BackoffBase(),
		BackoffMax:     cfg.Refresh.BackoffMax(),
		JitterFraction: cfg.Refresh.JitterFraction,
	}, refresh.Deps{
		Store:     store,
		Fetcher:   newRequester(cfg, rt.logger),
		Resolver:  newChain(cfg, rt.logger),
		Evaluator: evaluator,
		Notifier:  notifier,
		Marker:    marker,
		Logger:    rt.logger.With().Str("component", "scheduler").Logger(),
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.scheduler = scheduler
	return rt, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Logging.Format == "json" {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func newRequester(cfg *config.Config, logger zerolog.Logger) *scraper.Requester {
	return scraper.NewRequester(scraper.Options{
		UserAgent:        cfg.Fetch.UserAgent,
		MaxBodyBytes:     cfg.Fetch.MaxBodyBytes,
		Delay:            cfg.Fetch.Delay(),
		RespectRobotsTxt: cfg.Fetch.RespectRobotsTxt,
		Logger:           logger.With().Str("component", "fetcher").Logger(),
	})
}

// newChain registers the extraction strategies in priority order
func newChain(cfg *config.Config, logger zerolog.Logger) *extractor.Chain {
	chain := extractor.NewChain(logger.With().Str("component", "extractor").Logger())

	if !cfg.Extraction.DisableStructured {
		chain.Register(&extractor.StructuredDataStrategy{
			Hosts:           cfg.Extraction.StructuredHosts,
			DefaultCurrency: cfg.Extraction.DefaultCurrency,
		}, cfg.Extraction.StructuredPriority)
	}

	chain.Register(extractor.NewHeuristicStrategy(
		cfg.Extraction.PriceSelectors,
		cfg.Extraction.TitleSelectors,
		cfg.Extraction.DefaultCurrency,
	), cfg.Extraction.HeuristicPriority)

	return chain
}

func (rt *runtime) openStore(ctx context.Context) (tracking.Store, error) {
	var store tracking.Store

	switch rt.cfg.Storage.Driver {
	case "postgres":
		pg, err := storage.OpenPostgres(ctx, rt.cfg.Storage.DSN)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, pg.Close)
		if rt.cfg.Storage.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		store = pg
		rt.logger.Info().Msg("connected to postgres")
	default:
		store = storage.NewMemoryStore()
	}

	if path := rt.cfg.Storage.SeedFile; path != "" {
		products, err := storage.LoadSeedFile(path)
		if err != nil {
			return nil, err
		}
		seeder, ok := store.(storage.Seeder)
		if !ok {
			return nil, fmt.Errorf("storage driver %s cannot be seeded", rt.cfg.Storage.Driver)
		}
		if err := seeder.Seed(ctx, products...); err != nil {
			return nil, err
		}
		rt.logger.Info().Int("products", len(products)).Str("file", path).Msg("seeded products")
	}

	return store, nil
}

func (rt *runtime) openNotifier(ctx context.Context) (tracking.Notifier, tracking.Marker, error) {
	switch rt.cfg.Notify.Driver {
	case "redis":
		rdb, err := notify.Connect(ctx, rt.cfg.Notify.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		rt.closers = append(rt.closers, func() { _ = rdb.Close() })

		sink := notify.NewRedisSink(rdb, rt.cfg.Notify.QueueKey)
		marker := notify.NewRedisMarker(rdb, rt.cfg.Notify.MarkerPrefix, rt.cfg.Notify.DedupTTL())
		rt.logger.Info().Msg("connected to redis")
		return notify.NewDigestNotifier(sink, nil), marker, nil
	default:
		sink := notify.NewLogSink(rt.logger.With().Str("component", "notify").Logger())
		return notify.NewDigestNotifier(sink, nil), notify.NewMemoryMarker(), nil
	}
}
