// Command indexer rebuilds both indexes once, records the build in the
// journal when PostgreSQL is enabled, and announces the new generations on
// Kafka when enabled.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/journal"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/notify"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/tracing"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("indexer failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	buildID := uuid.NewString()
	log := slog.Default().With("build_id", buildID)
	log.Info("starting index build", "corpus", cfg.Corpus.Dir, "data_dir", cfg.Indexer.DataDir)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer shutdown(context.Background())
	}

	var j *journal.Journal
	if cfg.Postgres.Enabled {
		pg, err := postgres.New(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer pg.Close()
		j = journal.New(pg)
		if err := j.Migrate(ctx); err != nil {
			return fmt.Errorf("migrating journal: %w", err)
		}
	}

	c, err := catalog.New(cfg.Indexer, catalog.WithMetrics(m), catalog.WithPhraseBonus(cfg.Search.PhraseBonus))
	if err != nil {
		return err
	}
	defer c.Close()

	var summary *catalog.Summary
	traceCtx, span := tracing.Start(ctx, "index-build", buildID)
	err = resilience.WithTimeout(traceCtx, cfg.Indexer.BuildTimeout, "index build", func(ctx context.Context) error {
		var err error
		summary, err = c.Build(ctx, corpus.NewLoader(cfg.Corpus))
		return err
	})
	span.End()
	span.Log(ctx, log, slog.LevelInfo)
	if err != nil {
		if j != nil {
			for _, spec := range c.Specs() {
				if jErr := j.RecordFailure(context.WithoutCancel(ctx), buildID, spec.Name, err); jErr != nil {
					log.Error("failed to journal build failure", "error", jErr)
				}
			}
		}
		return err
	}

	fmt.Printf("%d files indexed in %d ms\n", summary.Files, summary.Duration.Milliseconds())
	for _, r := range summary.Reports {
		fmt.Printf("  %-14s %d documents, %d terms, %d skipped, generation %d\n",
			r.Index, r.Documents, r.Terms, len(r.Skipped), r.Generation)
	}

	if j != nil {
		if err := j.RecordSuccess(ctx, buildID, summary); err != nil {
			log.Error("failed to journal build", "error", err)
		}
	}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer producer.Close()
		if err := notify.NewPublisher(producer, m).Publish(ctx, buildID, summary); err != nil {
			log.Error("failed to announce build", "error", err)
		}
	}
	return nil
}
