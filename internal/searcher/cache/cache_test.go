package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/analyzer"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/redis"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

func (s *memStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", pkgredis.Nil
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = string(value)
	return nil
}

func (s *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

var fields = parser.Fields{
	"name":    {Field: "name", Index: "name-index", Analyzer: analyzer.NewWhitespace()},
	"content": {Field: "content", Index: "content-index", Analyzer: analyzer.NewItalian()},
}

func mustParse(t *testing.T, text string) *parser.Query {
	t.Helper()
	q, err := parser.Parse(text, fields)
	if err != nil {
		t.Fatalf("Parse(%q): %v", text, err)
	}
	return q
}

func TestKeyUsesAnalysedQuery(t *testing.T) {
	tests := []struct {
		a, b  string
		equal bool
	}{
		{"content gatto", "CONTENT Gatto", true},
		{"content il gatto", "content gatto", true},
		{"content gatto", "name gatto", false},
		{"content gatto cane", "content cane gatto", false},
		{`content "gatto nero"`, "content gatto nero", false},
	}
	for _, tt := range tests {
		same := Key(mustParse(t, tt.a), 10) == Key(mustParse(t, tt.b), 10)
		if same != tt.equal {
			t.Errorf("Key(%q) == Key(%q) is %v, want %v", tt.a, tt.b, same, tt.equal)
		}
	}
	q := mustParse(t, "content gatto")
	if Key(q, 10) == Key(q, 20) {
		t.Error("limit must be part of the key")
	}
	if !strings.HasPrefix(Key(q, 10), keyPrefix) {
		t.Errorf("key %q lacks prefix", Key(q, 10))
	}
}

func TestGetOrCompute(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	c := New(newMemStore(), time.Minute, m)
	ctx := context.Background()
	q := mustParse(t, "content gatto")
	want := &executor.SearchResult{Query: q.String(), Index: q.Index, TotalHits: 1, Hits: []executor.Hit{
		{Rank: 1, DocID: 3, Score: 1.5, Fields: map[string]string{"file": "gatto.txt"}},
	}}

	var calls atomic.Int32
	compute := func() (*executor.SearchResult, error) {
		calls.Add(1)
		return want, nil
	}
	got, hit, err := c.GetOrCompute(ctx, q, 10, compute)
	if err != nil || hit || got != want {
		t.Fatalf("first call: %+v hit=%v err=%v", got, hit, err)
	}
	got, hit, err = c.GetOrCompute(ctx, q, 10, compute)
	if err != nil || !hit {
		t.Fatalf("second call: hit=%v err=%v", hit, err)
	}
	if got.Hits[0].Fields["file"] != "gatto.txt" || got.Hits[0].Score != 1.5 {
		t.Errorf("cached result = %+v", got)
	}
	if calls.Load() != 1 {
		t.Errorf("compute ran %d times", calls.Load())
	}
	if hits, misses := c.Stats(); hits != 1 || misses != 1 {
		t.Errorf("stats = %d hits, %d misses", hits, misses)
	}
	if testutil.ToFloat64(m.CacheHitsTotal) != 1 || testutil.ToFloat64(m.CacheMissesTotal) != 1 {
		t.Error("cache metrics not recorded")
	}

	if err := c.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, hit, _ = c.GetOrCompute(ctx, q, 10, compute); hit {
		t.Error("expected a miss after Invalidate")
	}
}

func TestGetOrComputeErrorIsNotCached(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	q := mustParse(t, "content gatto")
	boom := errors.New("boom")
	if _, _, err := c.GetOrCompute(context.Background(), q, 10, func() (*executor.SearchResult, error) {
		return nil, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, ok := c.Get(context.Background(), q, 10); ok {
		t.Error("errors must not be cached")
	}
}
