package index

import (
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/analyzer"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/document"
)

// MemoryIndex accumulates postings and stored fields while a build is in
// progress. Document ids are handed out in insertion order, so appending to
// a term's list keeps it sorted.
type MemoryIndex struct {
	mu        sync.RWMutex
	index     map[string]map[string]PostingList
	stored    []map[string]string
	analyzers analyzer.PerField
	size      int64
}

func NewMemoryIndex(analyzers analyzer.PerField) *MemoryIndex {
	return &MemoryIndex{
		index:     make(map[string]map[string]PostingList),
		analyzers: analyzers,
	}
}

// AddDocument analyses every indexed field of doc and returns the id it was
// assigned along with the number of tokens produced.
func (m *MemoryIndex) AddDocument(doc *document.Document) (int, int) {
	fieldTerms := make(map[string]map[string]*Posting)
	tokenCount := 0

	m.mu.Lock()
	defer m.mu.Unlock()
	docID := len(m.stored)

	for _, name := range doc.FieldNames() {
		field := doc.Fields[name]
		if !field.Indexed {
			continue
		}
		a := m.analyzers.For(name)
		if a == nil {
			continue
		}
		termData := make(map[string]*Posting)
		for token := range a.Analyze(field.Text) {
			p, exists := termData[token.Term]
			if !exists {
				p = &Posting{
					DocID:     docID,
					Positions: make([]int, 0, 4),
				}
				termData[token.Term] = p
			}
			p.Frequency++
			p.Positions = append(p.Positions, token.Position)
			tokenCount++
		}
		fieldTerms[name] = termData
	}

	for name, termData := range fieldTerms {
		terms, exists := m.index[name]
		if !exists {
			terms = make(map[string]PostingList)
			m.index[name] = terms
		}
		for term, posting := range termData {
			terms[term] = append(terms[term], *posting)
			m.size += int64(len(term) + len(posting.Positions)*8 + 64)
		}
	}
	stored := doc.StoredValues()
	for _, v := range stored {
		m.size += int64(len(v))
	}
	m.stored = append(m.stored, stored)
	return docID, tokenCount
}

// Snapshot returns the term dictionary ordered by field and term.
func (m *MemoryIndex) Snapshot() []TermEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]TermEntry, 0)
	for field, terms := range m.index {
		for term, postings := range terms {
			entries = append(entries, TermEntry{
				Field:    field,
				Term:     term,
				Postings: postings,
			})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Less(entries[j])
	})
	return entries
}

// StoredFields returns the stored values indexed by document id.
func (m *MemoryIndex) StoredFields() []map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]map[string]string, len(m.stored))
	copy(out, m.stored)
	return out
}

func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.stored)
}
