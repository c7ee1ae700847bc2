// Package executor evaluates parsed queries against an index reader and
// returns ranked, decorated hits.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/logger"
)

// Source is the read side of one index. *indexer.Reader implements it.
type Source interface {
	Name() string
	LookupTerm(field, term string) (index.PostingList, error)
	DocumentCount() int
	StoredFields(docID int) (map[string]string, error)
}

type Hit struct {
	Rank   int               `json:"rank"`
	DocID  int               `json:"doc_id"`
	Score  float64           `json:"score"`
	Fields map[string]string `json:"fields"`
}

type SearchResult struct {
	Query     string        `json:"query"`
	Index     string        `json:"index"`
	TotalHits int           `json:"total_hits"`
	Hits      []Hit         `json:"hits"`
	Took      time.Duration `json:"took_ns"`
}

type Executor struct {
	source      Source
	phraseBonus float64
	logger      *slog.Logger
}

type Option func(*Executor)

// WithPhraseBonus overrides ranker.DefaultPhraseBonus.
func WithPhraseBonus(bonus float64) Option {
	return func(e *Executor) {
		if bonus > 0 {
			e.phraseBonus = bonus
		}
	}
}

func New(source Source, opts ...Option) *Executor {
	e := &Executor{
		source:      source,
		phraseBonus: ranker.DefaultPhraseBonus,
		logger:      logger.WithComponent("query-executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// matches is the outcome of evaluating one clause: the matching documents
// and the score each of them earned.
type matches struct {
	docs   *roaring.Bitmap
	scores map[uint32]float64
}

func none() matches {
	return matches{docs: roaring.New(), scores: map[uint32]float64{}}
}

// Execute runs q and returns the k best hits. A query that matches nothing
// returns an empty result, not an error.
func (e *Executor) Execute(ctx context.Context, q *parser.Query, k int) (*SearchResult, error) {
	if k <= 0 {
		return nil, apperrors.Errorf(apperrors.ErrInvalidArgument, "result limit must be positive, got %d", k)
	}
	if q == nil || q.Root == nil {
		return nil, apperrors.Errorf(apperrors.ErrInvalidArgument, "empty query")
	}
	if q.Index != e.source.Name() {
		return nil, apperrors.Errorf(apperrors.ErrInvalidArgument, "query targets %q, executor serves %q", q.Index, e.source.Name())
	}
	start := time.Now()

	m, err := e.eval(ctx, q.Field, q.Root)
	if err != nil {
		return nil, err
	}

	top := ranker.NewTopK(k)
	it := m.docs.Iterator()
	for it.HasNext() {
		id := it.Next()
		top.Push(ranker.ScoredDoc{DocID: int(id), Score: m.scores[id]})
	}
	ranked := top.Result()

	hits := make([]Hit, 0, len(ranked))
	for i, doc := range ranked {
		fields, err := e.source.StoredFields(doc.DocID)
		if err != nil {
			return nil, fmt.Errorf("loading stored fields of document %d: %w", doc.DocID, err)
		}
		hits = append(hits, Hit{Rank: i + 1, DocID: doc.DocID, Score: doc.Score, Fields: fields})
	}

	result := &SearchResult{
		Query:     q.Raw,
		Index:     q.Index,
		TotalHits: int(m.docs.GetCardinality()),
		Hits:      hits,
		Took:      time.Since(start),
	}
	e.logger.Debug("query executed",
		"query", q.String(),
		"index", q.Index,
		"candidates", result.TotalHits,
		"results", len(hits),
	)
	return result, nil
}

func (e *Executor) eval(ctx context.Context, field string, c parser.Clause) (matches, error) {
	if err := ctx.Err(); err != nil {
		return matches{}, apperrors.Wrap(apperrors.ErrTimeout, err, "evaluating query")
	}
	switch c := c.(type) {
	case *parser.TermClause:
		return e.evalTerm(field, c.Term)
	case *parser.PhraseClause:
		return e.evalPhrase(field, c)
	case *parser.BooleanClause:
		return e.evalBoolean(ctx, field, c)
	}
	return matches{}, apperrors.Errorf(apperrors.ErrInvalidArgument, "unsupported clause %T", c)
}

func (e *Executor) lookup(field, term string) (index.PostingList, error) {
	postings, err := e.source.LookupTerm(field, term)
	if err != nil {
		return nil, fmt.Errorf("searching term %q: %w", term, err)
	}
	return postings, nil
}

func (e *Executor) evalTerm(field, term string) (matches, error) {
	postings, err := e.lookup(field, term)
	if err != nil {
		return matches{}, err
	}
	m := none()
	total := e.source.DocumentCount()
	for _, p := range postings {
		id := uint32(p.DocID)
		m.docs.Add(id)
		m.scores[id] = ranker.TermScore(p.Frequency, len(postings), total)
	}
	return m, nil
}

func (e *Executor) evalPhrase(field string, c *parser.PhraseClause) (matches, error) {
	lists := make([]index.PostingList, len(c.Terms))
	sets := make([]*roaring.Bitmap, len(c.Terms))
	for i, term := range c.Terms {
		postings, err := e.lookup(field, term)
		if err != nil {
			return matches{}, err
		}
		if len(postings) == 0 {
			return none(), nil
		}
		lists[i] = postings
		sets[i] = docSet(postings)
	}

	m := none()
	total := e.source.DocumentCount()
	candidates := roaring.FastAnd(sets...)
	it := candidates.Iterator()
	for it.HasNext() {
		id := it.Next()
		occurrences := make([]index.Posting, len(lists))
		for i, postings := range lists {
			occurrences[i], _ = postings.Find(int(id))
		}
		if !phraseAt(occurrences, c.Positions) {
			continue
		}
		var score float64
		for i, p := range occurrences {
			score += ranker.TermScore(p.Frequency, len(lists[i]), total)
		}
		m.docs.Add(id)
		m.scores[id] = e.phraseBonus * score
	}
	return m, nil
}

// phraseAt reports whether some occurrence of the first term is followed by
// every other term at its expected offset.
func phraseAt(occurrences []index.Posting, offsets []int) bool {
	for _, start := range occurrences[0].Positions {
		base := start - offsets[0]
		found := true
		for i := 1; i < len(occurrences); i++ {
			if _, ok := slices.BinarySearch(occurrences[i].Positions, base+offsets[i]); !ok {
				found = false
				break
			}
		}
		if found {
			return true
		}
	}
	return false
}

// evalBoolean applies Lucene semantics: with required clauses the optional
// ones only add score; without them any optional clause matches. Prohibited
// clauses remove documents and never match on their own.
func (e *Executor) evalBoolean(ctx context.Context, field string, c *parser.BooleanClause) (matches, error) {
	var must, should, mustNot []matches
	for _, item := range c.Clauses {
		m, err := e.eval(ctx, field, item.Clause)
		if err != nil {
			return matches{}, err
		}
		switch item.Occur {
		case parser.Must:
			must = append(must, m)
		case parser.MustNot:
			mustNot = append(mustNot, m)
		default:
			should = append(should, m)
		}
	}

	result := none()
	switch {
	case len(must) > 0:
		result.docs = roaring.FastAnd(bitmaps(must)...)
	case len(should) > 0:
		result.docs = roaring.FastOr(bitmaps(should)...)
	default:
		return result, nil
	}
	if len(mustNot) > 0 {
		result.docs.AndNot(roaring.FastOr(bitmaps(mustNot)...))
	}

	it := result.docs.Iterator()
	for it.HasNext() {
		id := it.Next()
		var score float64
		for _, m := range must {
			score += m.scores[id]
		}
		for _, m := range should {
			score += m.scores[id]
		}
		result.scores[id] = score
	}
	return result, nil
}

func docSet(postings index.PostingList) *roaring.Bitmap {
	b := roaring.New()
	for _, p := range postings {
		b.Add(uint32(p.DocID))
	}
	return b
}

func bitmaps(ms []matches) []*roaring.Bitmap {
	out := make([]*roaring.Bitmap, len(ms))
	for i, m := range ms {
		out[i] = m.docs
	}
	return out
}
