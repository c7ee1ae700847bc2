// Package router wires the search service routes.
package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/middleware"
)

// New builds the search service handler.
//
// Route table:
//
//	GET    /api/v1/search             → run a query
//	GET    /api/v1/indexes            → describe the open indexes
//	POST   /api/v1/indexes/reload     → reopen the committed generations
//	GET    /api/v1/builds             → recent builds from the journal
//	GET    /api/v1/analytics          → query statistics
//	GET    /api/v1/cache/stats        → cache hit/miss counters
//	POST   /api/v1/cache/invalidate   → drop cached results
//	GET    /health/live, /health/ready
//
// Middleware chain (outermost first):
//
//	RequestID → Metrics → Timeout (API routes only) → handler
func New(h *handler.Handler, checker *health.Checker, m *metrics.Metrics, timeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if m != nil {
		r.Use(middleware.Metrics(m))
	}

	r.Get("/health/live", checker.Live)
	r.Get("/health/ready", checker.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		if timeout > 0 {
			r.Use(middleware.Timeout(timeout))
		}
		r.Get("/search", h.Search)
		r.Get("/indexes", h.Indexes)
		r.Post("/indexes/reload", h.Reload)
		r.Get("/builds", h.Builds)
		r.Get("/analytics", h.Analytics)
		r.Get("/cache/stats", h.CacheStats)
		r.Post("/cache/invalidate", h.CacheInvalidate)
	})
	return r
}
