// Package catalog owns the two indexes the search engine serves side by
// side: name-index over file names and content-index over file contents.
// It builds both from one corpus scan, keeps a reader set open for queries
// and swaps it atomically after a rebuild.
package catalog

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/analyzer"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/tracing"
)

const (
	NameIndex    = "name-index"
	ContentIndex = "content-index"

	FieldName    = "name"
	FieldContent = "content"
	FieldFile    = "file"
	FieldPath    = "path"
)

// IndexSpec describes one index: the selector that routes queries to it,
// the field it searches, and how its documents are built.
type IndexSpec struct {
	Name     string
	Selector string
	// Aliases are extra selectors for the same index.
	Aliases  []string
	Field    string
	Analyzer analyzer.Analyzer
	// NeedsContent is false for indexes that only look at file metadata.
	NeedsContent bool
	Document     func(f corpus.File) *document.Document
}

// Specs returns the index specs for cfg.
func Specs(cfg config.IndexerConfig) ([]IndexSpec, error) {
	nameAnalyzer, err := analyzer.ByName(cfg.NameAnalyzer)
	if err != nil {
		return nil, fmt.Errorf("name analyzer: %w", err)
	}
	contentAnalyzer, err := analyzer.ByName(cfg.ContentAnalyzer)
	if err != nil {
		return nil, fmt.Errorf("content analyzer: %w", err)
	}
	return []IndexSpec{
		{
			Name:     NameIndex,
			Selector: "name",
			Aliases:  []string{"nome"},
			Field:    FieldName,
			Analyzer: nameAnalyzer,
			Document: func(f corpus.File) *document.Document {
				return document.New(f.Name).
					AddText(FieldName, f.Name, false).
					AddStored(FieldFile, f.Name).
					AddStored(FieldPath, f.Path)
			},
		},
		{
			Name:         ContentIndex,
			Selector:     "content",
			Aliases:      []string{"contenuto"},
			Field:        FieldContent,
			Analyzer:     contentAnalyzer,
			NeedsContent: true,
			Document: func(f corpus.File) *document.Document {
				return document.New(f.Name).
					AddText(FieldContent, f.Content, false).
					AddStored(FieldFile, f.Name).
					AddStored(FieldPath, f.Path)
			},
		},
	}, nil
}

// Summary reports a full rebuild.
type Summary struct {
	Files    int
	Reports  []*indexer.BuildReport
	Duration time.Duration
}

// IndexStats describes the open generation of one index.
type IndexStats struct {
	Name       string    `json:"name"`
	Selector   string    `json:"selector"`
	Field      string    `json:"field"`
	Analyzer   string    `json:"analyzer"`
	Documents  int       `json:"documents"`
	Terms      int       `json:"terms"`
	Generation uint64    `json:"generation"`
	BuiltAt    time.Time `json:"built_at"`
}

type Catalog struct {
	root        string
	specs       []IndexSpec
	fields      parser.Fields
	builder     *indexer.Builder
	phraseBonus float64
	metrics     *metrics.Metrics
	logger      *slog.Logger

	reloadMu sync.Mutex
	current  atomic.Pointer[readerSet]
}

type Option func(*Catalog)

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Catalog) { c.metrics = m }
}

func WithPhraseBonus(bonus float64) Option {
	return func(c *Catalog) { c.phraseBonus = bonus }
}

// New creates a Catalog storing its indexes under cfg.DataDir. No index is
// opened until Build or Reload is called.
func New(cfg config.IndexerConfig, opts ...Option) (*Catalog, error) {
	specs, err := Specs(cfg)
	if err != nil {
		return nil, err
	}
	c := &Catalog{
		root:    cfg.DataDir,
		specs:   specs,
		fields:  make(parser.Fields, len(specs)),
		builder: indexer.NewBuilder(cfg.DataDir),
		logger:  logger.WithComponent("catalog"),
	}
	for _, s := range specs {
		fs := parser.FieldSpec{Field: s.Field, Index: s.Name, Analyzer: s.Analyzer}
		c.fields[s.Selector] = fs
		for _, alias := range s.Aliases {
			c.fields[alias] = fs
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Catalog) Specs() []IndexSpec {
	return c.specs
}

func (c *Catalog) Fields() parser.Fields {
	return c.fields
}

// Build scans the corpus once and rebuilds every index concurrently, then
// reloads the readers. A failure in one index cancels the others; indexes
// that were already committed stay committed.
func (c *Catalog) Build(ctx context.Context, loader *corpus.Loader) (*Summary, error) {
	start := time.Now()
	_, scan := tracing.Child(ctx, "scan")
	entries, err := loader.Scan(ctx)
	scan.Set("files", len(entries))
	scan.End()
	if err != nil {
		return nil, fmt.Errorf("scanning corpus: %w", err)
	}

	reports := make([]*indexer.BuildReport, len(c.specs))
	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range c.specs {
		g.Go(func() error {
			_, span := tracing.Child(gctx, spec.Name)
			defer span.End()
			report, err := c.builder.Build(gctx, spec.Name, analyzer.PerField{Default: spec.Analyzer}, documents(spec, loader, entries))
			c.recordBuild(spec.Name, report, err)
			if err != nil {
				span.Set("error", err.Error())
				return fmt.Errorf("building %s: %w", spec.Name, err)
			}
			span.Set("generation", report.Generation, "documents", report.Documents, "terms", report.Terms, "skipped", len(report.Skipped))
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	summary := &Summary{Files: len(entries), Reports: reports, Duration: time.Since(start)}
	c.logger.Info("indexes built",
		"files", summary.Files,
		"duration_ms", summary.Duration.Milliseconds(),
	)
	return summary, nil
}

// documents turns corpus entries into the document stream of one index.
func documents(spec IndexSpec, loader *corpus.Loader, entries []corpus.Entry) iter.Seq2[*document.Document, error] {
	return func(yield func(*document.Document, error) bool) {
		if !spec.NeedsContent {
			for _, e := range entries {
				if !yield(spec.Document(corpus.File{Entry: e}), nil) {
					return
				}
			}
			return
		}
		for f, err := range loader.Files(entries) {
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if !yield(spec.Document(f), nil) {
				return
			}
		}
	}
}

func (c *Catalog) recordBuild(name string, report *indexer.BuildReport, err error) {
	if c.metrics == nil {
		return
	}
	if err != nil {
		c.metrics.IndexBuildsTotal.WithLabelValues(name, "error").Inc()
		return
	}
	c.metrics.IndexBuildsTotal.WithLabelValues(name, "ok").Inc()
	c.metrics.IndexBuildDuration.WithLabelValues(name).Observe(report.Duration.Seconds())
	c.metrics.DocsIndexedTotal.WithLabelValues(name).Add(float64(report.Documents))
	c.metrics.DocsSkippedTotal.WithLabelValues(name).Add(float64(len(report.Skipped)))
}

// Reload opens the committed generation of every index and swaps it in.
// Queries already running finish on the previous readers, which are closed
// once the last of them completes.
func (c *Catalog) Reload() error {
	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()

	set := &readerSet{executors: make(map[string]*executor.Executor, len(c.specs))}
	for _, spec := range c.specs {
		r, err := indexer.Open(c.root, spec.Name)
		if err != nil {
			set.closeAll()
			return fmt.Errorf("opening %s: %w", spec.Name, err)
		}
		set.readers = append(set.readers, r)
		set.executors[spec.Name] = executor.New(r, executor.WithPhraseBonus(c.phraseBonus))
		if c.metrics != nil {
			c.metrics.IndexDocCount.WithLabelValues(spec.Name).Set(float64(r.DocumentCount()))
			c.metrics.IndexGeneration.WithLabelValues(spec.Name).Set(float64(r.Generation()))
		}
	}
	set.refs.Store(1)
	if old := c.current.Swap(set); old != nil {
		old.release()
	}
	c.logger.Info("readers reloaded", "indexes", len(set.readers))
	return nil
}

// Parse parses a console/API query against the catalog's selectors.
func (c *Catalog) Parse(queryText string) (*parser.Query, error) {
	return parser.Parse(queryText, c.fields)
}

// Search parses queryText and returns the k best hits from the index its
// selector names.
func (c *Catalog) Search(ctx context.Context, queryText string, k int) (*executor.SearchResult, error) {
	q, err := c.Parse(queryText)
	if err != nil {
		return nil, err
	}
	return c.Execute(ctx, q, k)
}

// Execute runs an already parsed query.
func (c *Catalog) Execute(ctx context.Context, q *parser.Query, k int) (*executor.SearchResult, error) {
	set, err := c.acquire()
	if err != nil {
		return nil, err
	}
	defer set.release()

	ex, ok := set.executors[q.Index]
	if !ok {
		return nil, apperrors.Errorf(apperrors.ErrIndexNotFound, "index %q", q.Index)
	}
	result, err := ex.Execute(ctx, q, k)
	c.recordSearch(q.Index, result, err)
	return result, err
}

func (c *Catalog) recordSearch(index string, result *executor.SearchResult, err error) {
	if c.metrics == nil {
		return
	}
	switch {
	case err != nil:
		c.metrics.SearchQueriesTotal.WithLabelValues(index, "error").Inc()
		return
	case result.TotalHits == 0:
		c.metrics.SearchQueriesTotal.WithLabelValues(index, "zero_result").Inc()
	default:
		c.metrics.SearchQueriesTotal.WithLabelValues(index, "hit").Inc()
	}
	c.metrics.SearchResultsCount.WithLabelValues(index).Observe(float64(result.TotalHits))
}

// Stats describes every open index.
func (c *Catalog) Stats() ([]IndexStats, error) {
	set, err := c.acquire()
	if err != nil {
		return nil, err
	}
	defer set.release()
	out := make([]IndexStats, 0, len(c.specs))
	for i, spec := range c.specs {
		r := set.readers[i]
		out = append(out, IndexStats{
			Name:       spec.Name,
			Selector:   spec.Selector,
			Field:      spec.Field,
			Analyzer:   spec.Analyzer.Name(),
			Documents:  r.DocumentCount(),
			Terms:      r.TermCount(),
			Generation: r.Generation(),
			BuiltAt:    r.BuiltAt(),
		})
	}
	return out, nil
}

// Ready reports whether readers are open.
func (c *Catalog) Ready() bool {
	return c.current.Load() != nil
}

// Close releases the open readers.
func (c *Catalog) Close() error {
	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()
	if old := c.current.Swap(nil); old != nil {
		old.release()
	}
	return nil
}

func (c *Catalog) acquire() (*readerSet, error) {
	for {
		set := c.current.Load()
		if set == nil {
			return nil, apperrors.Errorf(apperrors.ErrIndexNotFound, "indexes not loaded")
		}
		if set.tryRef() {
			return set, nil
		}
	}
}

// Generation returns the generation of the open readers of index.
func (c *Catalog) Generation(index string) (uint64, bool) {
	set, err := c.acquire()
	if err != nil {
		return 0, false
	}
	defer set.release()
	for _, r := range set.readers {
		if r.Name() == index {
			return r.Generation(), true
		}
	}
	return 0, false
}
