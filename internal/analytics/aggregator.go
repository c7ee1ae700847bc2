package analytics

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

const defaultWindow = 10000

// Stats is the snapshot served by the analytics endpoint.
type Stats struct {
	TotalSearches     int64            `json:"total_searches"`
	ByIndex           map[string]int64 `json:"by_index"`
	CacheHits         int64            `json:"cache_hits"`
	CacheMisses       int64            `json:"cache_misses"`
	ZeroResultCount   int64            `json:"zero_result_count"`
	AvgLatencyMs      float64          `json:"avg_latency_ms"`
	P50LatencyMs      int64            `json:"p50_latency_ms"`
	P95LatencyMs      int64            `json:"p95_latency_ms"`
	P99LatencyMs      int64            `json:"p99_latency_ms"`
	TopQueries        []QueryCount     `json:"top_queries"`
	ZeroResultQueries []QueryCount     `json:"zero_result_queries"`
	QueriesPerMinute  float64          `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator accumulates search events in memory. Latency percentiles are
// computed over the most recent window of events.
type Aggregator struct {
	mu          sync.Mutex
	total       int64
	byIndex     map[string]int64
	cacheHits   int64
	cacheMisses int64
	zeroResults int64
	latencies   []int64
	next        int
	queries     map[string]int64
	zeroQueries map[string]int64
	started     time.Time
	now         func() time.Time
}

// NewAggregator keeps the latencies of the last window events; window <= 0
// selects the default of 10000.
func NewAggregator(window int) *Aggregator {
	if window <= 0 {
		window = defaultWindow
	}
	return &Aggregator{
		byIndex:     make(map[string]int64),
		latencies:   make([]int64, 0, window),
		queries:     make(map[string]int64),
		zeroQueries: make(map[string]int64),
		started:     time.Now(),
		now:         time.Now,
	}
}

func (a *Aggregator) Track(ev SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	a.byIndex[ev.Index]++
	switch ev.Cache {
	case CacheHit:
		a.cacheHits++
	case CacheMiss:
		a.cacheMisses++
	}
	a.queries[ev.Query]++
	if ev.TotalHits == 0 {
		a.zeroResults++
		a.zeroQueries[ev.Query]++
	}

	if len(a.latencies) < cap(a.latencies) {
		a.latencies = append(a.latencies, ev.LatencyMs)
	} else {
		a.latencies[a.next] = ev.LatencyMs
		a.next = (a.next + 1) % len(a.latencies)
	}
}

// Stats returns a snapshot with the ten most frequent queries and the ten
// most frequent zero-result queries.
func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := Stats{
		TotalSearches:     a.total,
		ByIndex:           make(map[string]int64, len(a.byIndex)),
		CacheHits:         a.cacheHits,
		CacheMisses:       a.cacheMisses,
		ZeroResultCount:   a.zeroResults,
		TopQueries:        topN(a.queries, 10),
		ZeroResultQueries: topN(a.zeroQueries, 10),
	}
	for k, v := range a.byIndex {
		stats.ByIndex[k] = v
	}

	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}

	if elapsed := a.now().Sub(a.started).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(a.total) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	idx := pct * len(sorted) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count, then by query so equal counts list stably.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	slices.SortFunc(result, func(x, y QueryCount) int {
		if c := cmp.Compare(y.Count, x.Count); c != 0 {
			return c
		}
		return cmp.Compare(x.Query, y.Query)
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
