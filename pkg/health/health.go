// Package health runs readiness checks for the search service (open indexes,
// Redis, PostgreSQL) in parallel and serves liveness and readiness probes.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Check probes one dependency; a nil error means it is usable.
type Check func(ctx context.Context) error

// Severity says what a failing check does to the overall status.
type Severity int

const (
	// Required dependencies take the service out of rotation when down.
	Required Severity = iota
	// Optional dependencies only degrade it: search works without its cache
	// or its build journal.
	Optional
)

type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency"`
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  time.Time                  `json:"timestamp"`
}

type registration struct {
	check    Check
	severity Severity
}

// Checker runs registered checks, each bounded by its own timeout.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]registration
	timeout time.Duration
	logger  *slog.Logger
}

func NewChecker() *Checker {
	return &Checker{
		checks:  make(map[string]registration),
		timeout: 2 * time.Second,
		logger:  slog.Default().With("component", "health"),
	}
}

// Register adds or replaces the check called name.
func (c *Checker) Register(name string, check Check, severity Severity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = registration{check: check, severity: severity}
}

// Run executes every check concurrently. The overall status is down if a
// required check failed, degraded if only optional ones did, up otherwise.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]registration, len(c.checks))
	for name, reg := range c.checks {
		checks[name] = reg
	}
	c.mu.RUnlock()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(checks)),
		Timestamp:  time.Now().UTC(),
	}
	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, reg := range checks {
		wg.Go(func() {
			result := c.probe(ctx, reg)
			mu.Lock()
			report.Components[name] = result
			mu.Unlock()
		})
	}
	wg.Wait()

	for name, comp := range report.Components {
		switch comp.Status {
		case StatusDown:
			report.Status = StatusDown
		case StatusDegraded:
			if report.Status == StatusUp {
				report.Status = StatusDegraded
			}
		}
		if comp.Status != StatusUp {
			c.logger.Warn("health check failed", "check", name, "status", comp.Status, "error", comp.Message)
		}
	}
	return report
}

func (c *Checker) probe(ctx context.Context, reg registration) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()
	err := reg.check(ctx)
	result := ComponentHealth{Status: StatusUp, Latency: time.Since(start).Round(time.Microsecond).String()}
	if err != nil {
		result.Status = StatusDown
		if reg.severity == Optional {
			result.Status = StatusDegraded
		}
		result.Message = err.Error()
	}
	return result
}

// Live reports that the process is serving; it runs no checks.
func (c *Checker) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Ready answers 503 only when a required check is down.
func (c *Checker) Ready(w http.ResponseWriter, r *http.Request) {
	report := c.Run(r.Context())
	code := http.StatusOK
	if report.Status == StatusDown {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, report)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
