// Package handler serves the search HTTP API over the catalog.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/journal"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/tracing"
)

// Searcher is implemented by *catalog.Catalog.
type Searcher interface {
	Parse(queryText string) (*parser.Query, error)
	Execute(ctx context.Context, q *parser.Query, k int) (*executor.SearchResult, error)
	Stats() ([]catalog.IndexStats, error)
	Reload() error
}

// BuildLister is implemented by *journal.Journal.
type BuildLister interface {
	Recent(ctx context.Context, limit int) ([]journal.Build, error)
}

// Options carries the optional collaborators. A nil Cache, Builds or
// Analytics disables the matching feature. Answered queries go to Analytics
// and, when set, to Events as well.
type Options struct {
	Cache        *cache.QueryCache
	Builds       BuildLister
	Analytics    *analytics.Aggregator
	Events       analytics.Tracker
	Metrics      *metrics.Metrics
	DefaultLimit int
	MaxResults   int
}

type Handler struct {
	searcher     Searcher
	cache        *cache.QueryCache
	builds       BuildLister
	analytics    *analytics.Aggregator
	events       analytics.Tee
	metrics      *metrics.Metrics
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

func New(searcher Searcher, opts Options) *Handler {
	var events analytics.Tee
	if opts.Analytics != nil {
		events = append(events, opts.Analytics)
	}
	if opts.Events != nil {
		events = append(events, opts.Events)
	}
	return &Handler{
		searcher:     searcher,
		cache:        opts.Cache,
		builds:       opts.Builds,
		analytics:    opts.Analytics,
		events:       events,
		metrics:      opts.Metrics,
		defaultLimit: opts.DefaultLimit,
		maxResults:   opts.MaxResults,
		logger:       logger.WithComponent("search-handler"),
	}
}

// Search handles GET /api/v1/search?q=<field> <terms>&limit=<n>.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	queryText := r.URL.Query().Get("q")
	if queryText == "" {
		h.writeError(w, apperrors.Errorf(apperrors.ErrInvalidArgument, "query parameter 'q' is required"))
		return
	}
	limit, err := h.limit(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	ctx, span := tracing.Start(ctx, "search", middleware.GetRequestID(ctx))
	defer func() {
		span.End()
		span.Log(ctx, log, slog.LevelDebug)
	}()

	_, parseSpan := tracing.Child(ctx, "parse")
	q, err := h.searcher.Parse(queryText)
	parseSpan.End()
	if err != nil {
		h.writeError(w, err)
		return
	}
	span.Set("index", q.Index)

	_, execSpan := tracing.Child(ctx, "execute")
	var result *executor.SearchResult
	cacheStatus := analytics.CacheDisabled
	if h.cache != nil {
		var hit bool
		result, hit, err = h.cache.GetOrCompute(ctx, q, limit, func() (*executor.SearchResult, error) {
			return h.searcher.Execute(ctx, q, limit)
		})
		cacheStatus = analytics.CacheMiss
		if hit {
			cacheStatus = analytics.CacheHit
		}
	} else {
		result, err = h.searcher.Execute(ctx, q, limit)
	}
	execSpan.Set("cache", cacheStatus)
	execSpan.End()
	if err != nil {
		log.Error("search failed", "query", queryText, "error", err)
		h.writeError(w, err)
		return
	}

	took := time.Since(start)
	if h.metrics != nil {
		h.metrics.SearchLatency.WithLabelValues(q.Index, cacheStatus).Observe(took.Seconds())
	}
	h.events.Track(analytics.SearchEvent{
		Query:     q.String(),
		Index:     q.Index,
		TotalHits: result.TotalHits,
		Returned:  len(result.Hits),
		LatencyMs: took.Milliseconds(),
		Cache:     cacheStatus,
		RequestID: middleware.GetRequestID(ctx),
		Timestamp: start.UTC(),
	})
	log.Info("search completed",
		"query", q.String(),
		"index", q.Index,
		"total_hits", result.TotalHits,
		"returned", len(result.Hits),
		"cache", cacheStatus,
		"latency_ms", took.Milliseconds(),
		"request_id", middleware.GetRequestID(ctx),
	)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) limit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return h.defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperrors.Errorf(apperrors.ErrInvalidArgument, "limit must be a positive integer, got %q", raw)
	}
	return min(n, h.maxResults), nil
}

// Indexes handles GET /api/v1/indexes.
func (h *Handler) Indexes(w http.ResponseWriter, r *http.Request) {
	stats, err := h.searcher.Stats()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"indexes": stats})
}

// Reload handles POST /api/v1/indexes/reload.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.searcher.Reload(); err != nil {
		h.logger.Error("reload failed", "error", err)
		h.writeError(w, err)
		return
	}
	if h.cache != nil {
		if err := h.cache.Invalidate(r.Context()); err != nil {
			h.logger.Warn("cache invalidation after reload failed", "error", err)
		}
	}
	h.Indexes(w, r)
}

// Builds handles GET /api/v1/builds.
func (h *Handler) Builds(w http.ResponseWriter, r *http.Request) {
	if h.builds == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "build journal is disabled"})
		return
	}
	limit, err := h.limit(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	builds, err := h.builds.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("listing builds failed", "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"builds": builds})
}

// Analytics handles GET /api/v1/analytics.
func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	if h.analytics == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "analytics is disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.analytics.Stats())
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "caching is disabled"})
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cache invalidation failed"})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err to a status code. Server-side failures are not echoed
// to the client.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = http.StatusText(status)
		if errors.Is(err, apperrors.ErrTimeout) {
			message = "search timed out"
		}
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
