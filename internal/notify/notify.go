// Package notify announces committed index generations over Kafka so that
// search nodes sharing the index directory reload without a restart.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/resilience"
)

// IndexComplete is published once per index after a build commits.
type IndexComplete struct {
	BuildID     string    `json:"build_id"`
	Index       string    `json:"index"`
	Generation  uint64    `json:"generation"`
	Documents   int       `json:"documents"`
	Terms       int       `json:"terms"`
	Skipped     int       `json:"skipped"`
	CompletedAt time.Time `json:"completed_at"`
}

// Events converts a build summary into one event per index, keyed by index
// name so that events for the same index stay ordered.
func Events(buildID string, summary *catalog.Summary, now time.Time) []kafka.Event {
	events := make([]kafka.Event, 0, len(summary.Reports))
	for _, r := range summary.Reports {
		events = append(events, kafka.Event{
			Key: r.Index,
			Value: IndexComplete{
				BuildID:     buildID,
				Index:       r.Index,
				Generation:  r.Generation,
				Documents:   r.Documents,
				Terms:       r.Terms,
				Skipped:     len(r.Skipped),
				CompletedAt: now.UTC(),
			},
		})
	}
	return events
}

// BatchPublisher is implemented by *kafka.Producer.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

type Publisher struct {
	out     BatchPublisher
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	logger  *slog.Logger
}

// NewPublisher wraps out with retry and a circuit breaker. m may be nil.
func NewPublisher(out BatchPublisher, m *metrics.Metrics) *Publisher {
	cbCfg := resilience.CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: 30 * time.Second}
	if m != nil {
		cbCfg.OnStateChange = func(name string, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	return &Publisher{
		out:     out,
		breaker: resilience.NewCircuitBreaker("kafka-index-complete", cbCfg),
		retry: resilience.RetryConfig{
			MaxAttempts:  4,
			InitialDelay: 200 * time.Millisecond,
			Retryable: func(err error) bool {
				return !errors.Is(err, resilience.ErrCircuitOpen)
			},
		},
		logger: logger.WithComponent("notify"),
	}
}

// Publish announces every index in summary. The indexes are already
// committed when this runs, so a failure here only delays reloads.
func (p *Publisher) Publish(ctx context.Context, buildID string, summary *catalog.Summary) error {
	events := Events(buildID, summary, time.Now())
	if len(events) == 0 {
		return nil
	}
	err := resilience.Retry(ctx, "publish index-complete", p.retry, func() error {
		return p.breaker.Execute(func() error {
			return p.out.PublishBatch(ctx, events)
		})
	})
	if err != nil {
		return err
	}
	p.logger.Info("index completion published", "build_id", buildID, "events", len(events))
	return nil
}

// Reloader is implemented by *catalog.Catalog.
type Reloader interface {
	Generation(index string) (uint64, bool)
	Reload() error
}

// Invalidator is implemented by *cache.QueryCache.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Handler returns a kafka.MessageHandler that reloads r when an event
// announces a generation newer than the open one, then drops cached
// results. inv may be nil. Undecodable events are logged and committed.
func Handler(r Reloader, inv Invalidator) kafka.MessageHandler {
	log := logger.WithComponent("notify")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[IndexComplete](value)
		if err != nil {
			log.Error("dropping undecodable event", "key", string(key), "error", err)
			return nil
		}
		if current, ok := r.Generation(event.Index); ok && current >= event.Generation {
			log.Debug("generation already open",
				"index", event.Index,
				"open", current,
				"announced", event.Generation,
			)
			return nil
		}
		if err := r.Reload(); err != nil {
			return err
		}
		log.Info("reloaded after build",
			"build_id", event.BuildID,
			"index", event.Index,
			"generation", event.Generation,
		)
		if inv != nil {
			if err := inv.Invalidate(ctx); err != nil {
				log.Warn("cache invalidation failed", "error", err)
			}
		}
		return nil
	}
}
