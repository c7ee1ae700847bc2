// Command searcher serves the search HTTP API. It opens the committed
// indexes (building them first when rebuildOnStart is set), caches results
// in Redis when enabled, and reloads when an index-complete event arrives
// on Kafka.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/journal"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/notify"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/router"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "data_dir", cfg.Indexer.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	c, err := catalog.New(cfg.Indexer, catalog.WithMetrics(m), catalog.WithPhraseBonus(cfg.Search.PhraseBonus))
	if err != nil {
		slog.Error("failed to create catalog", "error", err)
		os.Exit(1)
	}
	defer c.Close()
	if err := openIndexes(ctx, c, cfg); err != nil {
		slog.Error("failed to open indexes", "error", err)
		os.Exit(1)
	}

	checker := health.NewChecker()
	checker.Register("indexes", func(context.Context) error {
		_, err := c.Stats()
		return err
	}, health.Required)

	var queryCache *cache.QueryCache
	var invalidator notify.Invalidator
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			invalidator = queryCache
			checker.Register("redis", redisClient.Ping, health.Optional)
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	opts := handler.Options{
		Cache:        queryCache,
		Metrics:      m,
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxResults:   cfg.Search.MaxResults,
	}
	if cfg.Postgres.Enabled {
		pg, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, build journal disabled", "error", err)
		} else {
			defer pg.Close()
			opts.Builds = journal.New(pg)
			checker.Register("postgres", pg.Ping, health.Optional)
		}
	}

	if cfg.Analytics.Enabled {
		opts.Analytics = analytics.NewAggregator(cfg.Analytics.Window)
		if cfg.Kafka.Enabled {
			producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
			defer producer.Close()
			collector := analytics.NewCollector(producer, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
			collector.Start(ctx)
			defer collector.Close()
			opts.Events = collector
		}
	}

	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete, notify.Handler(c, invalidator))
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("index-complete consumer stopped", "error", err)
			}
		}()
		slog.Info("listening for index builds", "topic", cfg.Kafka.Topics.IndexComplete, "group", cfg.Kafka.ConsumerGroup)
	}

	h := handler.New(c, opts)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router.New(h, checker, m, cfg.Search.Timeout),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}

// openIndexes loads the committed indexes, building them first when asked
// to or when none exist yet.
func openIndexes(ctx context.Context, c *catalog.Catalog, cfg *config.Config) error {
	if !cfg.Indexer.RebuildOnStart {
		err := c.Reload()
		if err == nil || !errors.Is(err, apperrors.ErrIndexNotFound) {
			return err
		}
		slog.Info("no committed indexes, building")
	}
	return resilience.WithTimeout(ctx, cfg.Indexer.BuildTimeout, "index build", func(ctx context.Context) error {
		summary, err := c.Build(ctx, corpus.NewLoader(cfg.Corpus))
		if err != nil {
			return err
		}
		slog.Info("indexes built", "files", summary.Files, "duration_ms", summary.Duration.Milliseconds())
		return nil
	})
}
