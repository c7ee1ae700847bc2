// Package indexer builds named, immutable indexes on disk and opens them
// for reading. Each index lives in its own directory under a root:
//
//	<root>/<name>/CURRENT           name of the live segment file
//	<root>/<name>/seg_<gen>.spdx    one segment per committed build
//
// A build writes a new segment and then swaps CURRENT, so readers see either
// the previous index or the new one, never a mix.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/analyzer"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/logger"
)

const currentFile = "CURRENT"

// Skipped names a document the build left out and why.
type Skipped struct {
	Source string
	Reason string
}

// BuildReport summarises a committed build.
type BuildReport struct {
	Index      string
	Generation uint64
	Documents  int
	Terms      int
	Tokens     int
	Skipped    []Skipped
	Duration   time.Duration
}

// Builder writes indexes under a root directory. Builds of different names
// may run concurrently; a second build of a name already being built fails
// with ErrBuildInProgress.
type Builder struct {
	root   string
	logger *slog.Logger

	mu       sync.Mutex
	building map[string]struct{}
}

func NewBuilder(root string) *Builder {
	return &Builder{
		root:     root,
		logger:   logger.WithComponent("indexer"),
		building: make(map[string]struct{}),
	}
}

func (b *Builder) acquire(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, busy := b.building[name]; busy {
		return apperrors.Errorf(apperrors.ErrBuildInProgress, "index %q", name)
	}
	b.building[name] = struct{}{}
	return nil
}

func (b *Builder) release(name string) {
	b.mu.Lock()
	delete(b.building, name)
	b.mu.Unlock()
}

// Build consumes docs once and commits them as the new contents of the index
// called name. Document failures yielded by the stream, nil documents and
// documents that fail validation are skipped and reported; any other stream error, a
// cancelled context or a write failure aborts the build and leaves the
// previously committed index in place.
func (b *Builder) Build(ctx context.Context, name string, fields analyzer.PerField, docs iter.Seq2[*document.Document, error]) (*BuildReport, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := b.acquire(name); err != nil {
		return nil, err
	}
	defer b.release(name)

	start := time.Now()
	report := &BuildReport{Index: name}
	mem := index.NewMemoryIndex(fields)

	for doc, err := range docs {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("building %s: %w", name, ctxErr)
		}
		if err != nil {
			var failure *document.Failure
			if !errors.As(err, &failure) {
				return nil, fmt.Errorf("building %s: reading documents: %w", name, err)
			}
			report.Skipped = append(report.Skipped, Skipped{Source: failure.Source, Reason: failure.Err.Error()})
			b.logger.Warn("skipping document", "index", name, "source", failure.Source, "error", failure.Err)
			continue
		}
		if doc == nil {
			report.Skipped = append(report.Skipped, Skipped{Reason: "nil document"})
			b.logger.Warn("skipping nil document", "index", name)
			continue
		}
		if err := document.Validate(doc); err != nil {
			report.Skipped = append(report.Skipped, Skipped{Source: doc.Source, Reason: err.Error()})
			b.logger.Warn("skipping invalid document", "index", name, "source", doc.Source, "error", err)
			continue
		}
		docID, tokens := mem.AddDocument(doc)
		report.Tokens += tokens
		b.logger.Debug("document indexed in memory",
			"index", name,
			"doc_id", docID,
			"source", doc.Source,
			"token_count", tokens,
			"mem_size", mem.Size(),
		)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("building %s: %w", name, err)
	}

	dir := filepath.Join(b.root, name)
	previous, err := readCurrent(dir)
	if err != nil && !errors.Is(err, apperrors.ErrIndexNotFound) {
		b.logger.Warn("ignoring unreadable CURRENT", "index", name, "error", err)
	}
	generation := uint64(1)
	if gen, ok := parseGeneration(previous); ok {
		generation = gen + 1
	}

	snapshot := mem.Snapshot()
	segName, err := segment.NewWriter(dir).Write(generation, snapshot, mem.StoredFields())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, err, "writing segment for "+name)
	}
	if err := writeCurrent(dir, segName); err != nil {
		os.Remove(filepath.Join(dir, segName))
		return nil, apperrors.Wrap(apperrors.ErrIO, err, "publishing segment for "+name)
	}
	b.removeStale(dir, segName)

	report.Generation = generation
	report.Documents = mem.DocCount()
	report.Terms = len(snapshot)
	report.Duration = time.Since(start)
	b.logger.Info("index committed",
		"index", name,
		"segment", segName,
		"documents", report.Documents,
		"terms", report.Terms,
		"skipped", len(report.Skipped),
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, nil
}

// ValidateName rejects index names that cannot be used as a single
// directory component.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return apperrors.Errorf(apperrors.ErrInvalidArgument, "invalid index name %q", name)
	}
	return nil
}

func readCurrent(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, currentFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", apperrors.Wrap(apperrors.ErrIndexNotFound, err, dir)
		}
		return "", apperrors.Wrap(apperrors.ErrIO, err, "reading "+currentFile)
	}
	name := strings.TrimSpace(string(data))
	if _, ok := parseGeneration(name); !ok {
		return "", apperrors.Errorf(apperrors.ErrCorruptIndex, "%s: invalid segment name %q", dir, name)
	}
	return name, nil
}

func writeCurrent(dir, segName string) error {
	tmp := filepath.Join(dir, currentFile+".tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(segName + "\n"); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, currentFile))
}

// parseGeneration extracts the generation from a segment file name.
func parseGeneration(segName string) (uint64, bool) {
	var gen uint64
	if segName == "" || segment.FileName(0) == segName {
		return 0, false
	}
	if _, err := fmt.Sscanf(segName, "seg_%d.spdx", &gen); err != nil {
		return 0, false
	}
	if segment.FileName(gen) != segName {
		return 0, false
	}
	return gen, true
}

// removeStale deletes segments and temp files other than keep. Open readers
// keep their file handles, so this never disturbs a running search.
func (b *Builder) removeStale(dir, keep string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		b.logger.Warn("listing index directory", "dir", dir, "error", err)
		return
	}
	for _, entry := range entries {
		n := entry.Name()
		if entry.IsDir() || n == keep || n == currentFile {
			continue
		}
		if !strings.HasSuffix(n, segment.FileExt) && !strings.HasSuffix(n, segment.FileExt+".tmp") {
			continue
		}
		if err := os.Remove(filepath.Join(dir, n)); err != nil {
			b.logger.Warn("removing stale segment", "segment", n, "error", err)
		}
	}
}
