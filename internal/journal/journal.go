// Package journal records every index build in PostgreSQL: one row per index
// per build, plus the files each build skipped.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/resilience"
)

const (
	StatusCommitted = "committed"
	StatusFailed    = "failed"
)

// Schema creates the journal tables. Every statement is idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS index_builds (
		build_id     UUID        NOT NULL,
		index_name   TEXT        NOT NULL,
		status       TEXT        NOT NULL,
		generation   BIGINT      NOT NULL DEFAULT 0,
		documents    INTEGER     NOT NULL DEFAULT 0,
		terms        INTEGER     NOT NULL DEFAULT 0,
		tokens       BIGINT      NOT NULL DEFAULT 0,
		skipped      INTEGER     NOT NULL DEFAULT 0,
		duration_ms  BIGINT      NOT NULL DEFAULT 0,
		error        TEXT,
		completed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (build_id, index_name)
	)`,
	`CREATE TABLE IF NOT EXISTS index_build_skips (
		build_id   UUID NOT NULL,
		index_name TEXT NOT NULL,
		source     TEXT NOT NULL,
		reason     TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_index_builds_completed_at ON index_builds (completed_at DESC)`,
}

// Build is one journal row.
type Build struct {
	BuildID     string    `json:"build_id"`
	Index       string    `json:"index"`
	Status      string    `json:"status"`
	Generation  uint64    `json:"generation"`
	Documents   int       `json:"documents"`
	Terms       int       `json:"terms"`
	Tokens      int       `json:"tokens"`
	Skipped     int       `json:"skipped"`
	DurationMs  int64     `json:"duration_ms"`
	Error       string    `json:"error,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

type Journal struct {
	client *postgres.Client
	retry  resilience.RetryConfig
	logger *slog.Logger
}

// New creates a Journal. Transient database errors are retried.
func New(client *postgres.Client) *Journal {
	return &Journal{
		client: client,
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 250 * time.Millisecond,
			Retryable:    postgres.IsTransient,
		},
		logger: logger.WithComponent("journal"),
	}
}

// Migrate creates the journal tables if they are missing.
func (j *Journal) Migrate(ctx context.Context) error {
	return j.client.Exec(ctx, Schema...)
}

// RecordSuccess stores the reports of a committed build in one transaction.
func (j *Journal) RecordSuccess(ctx context.Context, buildID string, summary *catalog.Summary) error {
	err := resilience.Retry(ctx, "journal record", j.retry, func() error {
		return j.client.InTx(ctx, func(tx *sql.Tx) error {
			for _, r := range summary.Reports {
				_, err := tx.ExecContext(ctx,
					`INSERT INTO index_builds
						(build_id, index_name, status, generation, documents, terms, tokens, skipped, duration_ms)
					 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
					 ON CONFLICT (build_id, index_name) DO NOTHING`,
					buildID, r.Index, StatusCommitted, int64(r.Generation), r.Documents, r.Terms, r.Tokens,
					len(r.Skipped), r.Duration.Milliseconds(),
				)
				if err != nil {
					return fmt.Errorf("inserting build of %s: %w", r.Index, err)
				}
				for _, s := range r.Skipped {
					if _, err := tx.ExecContext(ctx,
						`INSERT INTO index_build_skips (build_id, index_name, source, reason) VALUES ($1, $2, $3, $4)`,
						buildID, r.Index, s.Source, s.Reason,
					); err != nil {
						return fmt.Errorf("inserting skip of %s: %w", s.Source, err)
					}
				}
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	j.logger.Info("build recorded", "build_id", buildID, "indexes", len(summary.Reports))
	return nil
}

// RecordFailure stores a build that did not commit.
func (j *Journal) RecordFailure(ctx context.Context, buildID string, index string, buildErr error) error {
	return resilience.Retry(ctx, "journal record failure", j.retry, func() error {
		_, err := j.client.DB.ExecContext(ctx,
			`INSERT INTO index_builds (build_id, index_name, status, error)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (build_id, index_name) DO NOTHING`,
			buildID, index, StatusFailed, buildErr.Error(),
		)
		return err
	})
}

// Recent returns the newest builds first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Build, error) {
	rows, err := j.client.DB.QueryContext(ctx,
		`SELECT build_id, index_name, status, generation, documents, terms, tokens, skipped, duration_ms,
		        COALESCE(error, ''), completed_at
		 FROM index_builds
		 ORDER BY completed_at DESC, index_name
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying builds: %w", err)
	}
	defer rows.Close()

	builds := make([]Build, 0, limit)
	for rows.Next() {
		var b Build
		var generation int64
		if err := rows.Scan(&b.BuildID, &b.Index, &b.Status, &generation, &b.Documents, &b.Terms, &b.Tokens,
			&b.Skipped, &b.DurationMs, &b.Error, &b.CompletedAt); err != nil {
			return nil, fmt.Errorf("scanning build: %w", err)
		}
		b.Generation = uint64(generation)
		builds = append(builds, b)
	}
	return builds, rows.Err()
}

// Skips returns the files a build left out of index.
func (j *Journal) Skips(ctx context.Context, buildID, index string) (map[string]string, error) {
	rows, err := j.client.DB.QueryContext(ctx,
		`SELECT source, reason FROM index_build_skips WHERE build_id = $1 AND index_name = $2`,
		buildID, index)
	if err != nil {
		return nil, fmt.Errorf("querying skips: %w", err)
	}
	defer rows.Close()
	skips := make(map[string]string)
	for rows.Next() {
		var source, reason string
		if err := rows.Scan(&source, &reason); err != nil {
			return nil, fmt.Errorf("scanning skip: %w", err)
		}
		skips[source] = reason
	}
	return skips, rows.Err()
}
