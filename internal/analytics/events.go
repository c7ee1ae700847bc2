// Package analytics keeps running statistics about the queries the search
// service answers and forwards each search as an event to Kafka.
package analytics

import "time"

// Cache outcomes carried by SearchEvent.Cache.
const (
	CacheHit      = "hit"
	CacheMiss     = "miss"
	CacheDisabled = "disabled"
)

// SearchEvent describes one answered query. Query is the canonical form
// produced by the parser, so equivalent spellings aggregate together.
type SearchEvent struct {
	Query     string    `json:"query"`
	Index     string    `json:"index"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	Cache     string    `json:"cache"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Tracker receives search events. Implementations must not block.
type Tracker interface {
	Track(SearchEvent)
}

// Tee fans each event out to every tracker.
type Tee []Tracker

func (t Tee) Track(ev SearchEvent) {
	for _, tr := range t {
		tr.Track(ev)
	}
}
