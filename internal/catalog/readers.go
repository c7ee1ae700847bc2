package catalog

import (
	"log/slog"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/executor"
)

// readerSet is one generation of open readers, reference counted so that a
// reload never closes files under a running query. The catalog holds one
// reference while the set is current.
type readerSet struct {
	refs      atomic.Int64
	readers   []*indexer.Reader
	executors map[string]*executor.Executor
}

// tryRef takes a reference unless the set has already been retired.
func (s *readerSet) tryRef() bool {
	for {
		n := s.refs.Load()
		if n <= 0 {
			return false
		}
		if s.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (s *readerSet) release() {
	if s.refs.Add(-1) == 0 {
		s.closeAll()
	}
}

func (s *readerSet) closeAll() {
	for _, r := range s.readers {
		if err := r.Close(); err != nil {
			slog.Warn("closing index reader", "index", r.Name(), "error", err)
		}
	}
}
