package indexer

import (
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/analyzer"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/errors"
)

var contentFields = analyzer.PerField{Default: analyzer.NewItalian()}

func contentDoc(file, text string) *document.Document {
	return document.New(file).
		AddText("content", text, false).
		AddStored("file", file).
		AddStored("path", "/data/"+file)
}

func stream(items ...any) iter.Seq2[*document.Document, error] {
	return func(yield func(*document.Document, error) bool) {
		for _, it := range items {
			var ok bool
			switch v := it.(type) {
			case *document.Document:
				ok = yield(v, nil)
			case error:
				ok = yield(nil, v)
			}
			if !ok {
				return
			}
		}
	}
}

func TestBuildCountsAndSkips(t *testing.T) {
	root := t.TempDir()
	b := NewBuilder(root)
	report, err := b.Build(context.Background(), "content-index", contentFields, stream(
		contentDoc("a.txt", "il gatto nero corre"),
		&document.Failure{Source: "broken.txt", Err: os.ErrPermission},
		contentDoc("b.txt", "la canzone del mare"),
		document.New("empty.txt"),
		contentDoc("c.txt", "gatto"),
	))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if report.Documents != 3 {
		t.Errorf("Documents = %d, want 3", report.Documents)
	}
	if len(report.Skipped) != 2 {
		t.Fatalf("expected 2 skipped documents, got %+v", report.Skipped)
	}
	if report.Skipped[0].Source != "broken.txt" || report.Skipped[1].Source != "empty.txt" {
		t.Errorf("unexpected skipped sources: %+v", report.Skipped)
	}
	if report.Generation != 1 {
		t.Errorf("Generation = %d, want 1", report.Generation)
	}

	r, err := Open(root, "content-index")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	if r.DocumentCount() != 3 {
		t.Errorf("DocumentCount = %d, want 3", r.DocumentCount())
	}
	if r.TermCount() != report.Terms {
		t.Errorf("TermCount = %d, report says %d", r.TermCount(), report.Terms)
	}
}

func TestBuildAbortsOnStreamError(t *testing.T) {
	root := t.TempDir()
	b := NewBuilder(root)
	boom := errors.New("disk vanished")
	_, err := b.Build(context.Background(), "content-index", contentFields, stream(contentDoc("a.txt", "uno"), boom))
	if !errors.Is(err, boom) {
		t.Fatalf("expected the stream error, got %v", err)
	}
	if _, err := Open(root, "content-index"); !errors.Is(err, apperrors.ErrIndexNotFound) {
		t.Errorf("a failed first build must leave no index, got %v", err)
	}
}

func TestBuildHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewBuilder(t.TempDir()).Build(ctx, "content-index", contentFields, stream(contentDoc("a.txt", "uno")))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBuildEmptyCorpus(t *testing.T) {
	root := t.TempDir()
	if _, err := NewBuilder(root).Build(context.Background(), "content-index", contentFields, stream()); err != nil {
		t.Fatalf("Build: %v", err)
	}
	r, err := Open(root, "content-index")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	if r.DocumentCount() != 0 {
		t.Errorf("DocumentCount = %d, want 0", r.DocumentCount())
	}
	postings, err := r.LookupTerm("content", "gatt")
	if err != nil || len(postings) != 0 {
		t.Errorf("expected no postings, got %v, %v", postings, err)
	}
}

func TestBuildSkipsNilDocument(t *testing.T) {
	var missing *document.Document
	doc := document.New("a.txt").AddText("name", "a.txt", true)
	report, err := NewBuilder(t.TempDir()).Build(context.Background(), "name-index", analyzer.PerField{Default: analyzer.NewWhitespace()}, stream(missing, doc))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if report.Documents != 1 {
		t.Errorf("Documents = %d, want 1", report.Documents)
	}
	if len(report.Skipped) != 1 || report.Skipped[0].Reason != "nil document" {
		t.Errorf("Skipped = %+v", report.Skipped)
	}
}

func TestStoredFieldsRoundTrip(t *testing.T) {
	root := t.TempDir()
	values := []string{
		"Perché.txt",
		"città, caffè; «virgolette»!",
		"日本語 テキスト",
		"tab\tand \"quotes\"",
	}
	items := make([]any, len(values))
	for i, v := range values {
		items[i] = document.New(v).AddText("name", v, true).AddStored("file", v)
	}
	if _, err := NewBuilder(root).Build(context.Background(), "name-index", analyzer.PerField{Default: analyzer.NewWhitespace()}, stream(items...)); err != nil {
		t.Fatalf("Build: %v", err)
	}
	r, err := Open(root, "name-index")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	for i, want := range values {
		fields, err := r.StoredFields(i)
		if err != nil {
			t.Fatalf("StoredFields(%d): %v", i, err)
		}
		if fields["file"] != want || fields["name"] != want {
			t.Errorf("StoredFields(%d) = %q, want %q", i, fields, want)
		}
	}
	if _, err := r.StoredFields(len(values)); !errors.Is(err, apperrors.ErrInvalidDocumentID) {
		t.Errorf("expected ErrInvalidDocumentID, got %v", err)
	}
}

func TestStoredFieldsKeepRawBytes(t *testing.T) {
	root := t.TempDir()
	const path = "/data/caf\xe9.txt"
	doc := document.New(path).AddText("name", path, true).AddStored("file", path)
	if _, err := NewBuilder(root).Build(context.Background(), "name-index", analyzer.PerField{Default: analyzer.NewWhitespace()}, stream(doc)); err != nil {
		t.Fatalf("Build: %v", err)
	}
	r, err := Open(root, "name-index")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	fields, err := r.StoredFields(0)
	if err != nil {
		t.Fatalf("StoredFields: %v", err)
	}
	if fields["file"] != path || fields["name"] != path {
		t.Errorf("StoredFields(0) = %q, want %q", fields, path)
	}
}

func TestRebuildIsAtomicForOpenReaders(t *testing.T) {
	root := t.TempDir()
	b := NewBuilder(root)
	ctx := context.Background()
	if _, err := b.Build(ctx, "content-index", contentFields, stream(contentDoc("a.txt", "gatto"))); err != nil {
		t.Fatalf("first Build: %v", err)
	}
	old, err := Open(root, "content-index")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer old.Close()

	report, err := b.Build(ctx, "content-index", contentFields, stream(
		contentDoc("b.txt", "cane"),
		contentDoc("c.txt", "cane gatto"),
	))
	if err != nil {
		t.Fatalf("second Build: %v", err)
	}
	if report.Generation != 2 {
		t.Errorf("Generation = %d, want 2", report.Generation)
	}

	if old.DocumentCount() != 1 {
		t.Errorf("old reader changed: %d documents", old.DocumentCount())
	}
	fields, err := old.StoredFields(0)
	if err != nil || fields["file"] != "a.txt" {
		t.Errorf("old reader lost its stored fields: %v, %v", fields, err)
	}

	fresh, err := Open(root, "content-index")
	if err != nil {
		t.Fatalf("Open after rebuild: %v", err)
	}
	defer fresh.Close()
	if fresh.DocumentCount() != 2 || fresh.Generation() != 2 {
		t.Errorf("new reader sees %d docs at generation %d", fresh.DocumentCount(), fresh.Generation())
	}

	segs, _ := filepath.Glob(filepath.Join(root, "content-index", "seg_*"))
	if len(segs) != 1 {
		t.Errorf("expected stale segments to be removed, found %v", segs)
	}
}

func TestFailedRebuildKeepsPreviousIndex(t *testing.T) {
	root := t.TempDir()
	b := NewBuilder(root)
	ctx := context.Background()
	if _, err := b.Build(ctx, "content-index", contentFields, stream(contentDoc("a.txt", "gatto"))); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := b.Build(ctx, "content-index", contentFields, stream(errors.New("boom"))); err == nil {
		t.Fatal("expected the rebuild to fail")
	}
	r, err := Open(root, "content-index")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	if r.DocumentCount() != 1 || r.Generation() != 1 {
		t.Errorf("previous index not preserved: %d docs, generation %d", r.DocumentCount(), r.Generation())
	}
}

func TestConcurrentBuildOfSameNameIsRejected(t *testing.T) {
	b := NewBuilder(t.TempDir())
	started := make(chan struct{})
	release := make(chan struct{})
	blocking := func(yield func(*document.Document, error) bool) {
		close(started)
		<-release
		yield(contentDoc("a.txt", "gatto"), nil)
	}

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = b.Build(context.Background(), "content-index", contentFields, blocking)
	}()
	<-started

	_, err := b.Build(context.Background(), "content-index", contentFields, stream())
	if !errors.Is(err, apperrors.ErrBuildInProgress) {
		t.Errorf("expected ErrBuildInProgress, got %v", err)
	}
	if _, err := b.Build(context.Background(), "name-index", contentFields, stream()); err != nil {
		t.Errorf("a different index must build concurrently: %v", err)
	}

	close(release)
	wg.Wait()
	if firstErr != nil {
		t.Fatalf("first Build: %v", firstErr)
	}
	if _, err := b.Build(context.Background(), "content-index", contentFields, stream()); err != nil {
		t.Errorf("lock not released after build: %v", err)
	}
}

func TestOpenErrors(t *testing.T) {
	root := t.TempDir()
	if _, err := Open(root, "missing"); !errors.Is(err, apperrors.ErrIndexNotFound) {
		t.Errorf("missing directory: expected ErrIndexNotFound, got %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "no-current"), 0755); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(root, "no-current"); !errors.Is(err, apperrors.ErrIndexNotFound) {
		t.Errorf("missing CURRENT: expected ErrIndexNotFound, got %v", err)
	}
	if _, err := Open(root, "../escape"); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Errorf("bad name: expected ErrInvalidArgument, got %v", err)
	}
}

func TestOpenCorruptIndex(t *testing.T) {
	root := t.TempDir()
	if _, err := NewBuilder(root).Build(context.Background(), "content-index", contentFields, stream(contentDoc("a.txt", "gatto nero"))); err != nil {
		t.Fatalf("Build: %v", err)
	}
	dir := filepath.Join(root, "content-index")

	seg := filepath.Join(dir, "seg_1.spdx")
	data, err := os.ReadFile(seg)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)/2] ^= 0x20
	if err := os.WriteFile(seg, data, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(root, "content-index"); !errors.Is(err, apperrors.ErrCorruptIndex) {
		t.Errorf("flipped byte: expected ErrCorruptIndex, got %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "CURRENT"), []byte("../../etc/passwd\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(root, "content-index"); !errors.Is(err, apperrors.ErrCorruptIndex) {
		t.Errorf("bad CURRENT: expected ErrCorruptIndex, got %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "CURRENT"), []byte("seg_9.spdx\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(root, "content-index"); !errors.Is(err, apperrors.ErrCorruptIndex) {
		t.Errorf("dangling CURRENT: expected ErrCorruptIndex, got %v", err)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	docs := func() iter.Seq2[*document.Document, error] {
		return stream(
			contentDoc("a.txt", "il mare e il sole"),
			contentDoc("b.txt", "sole sole sole"),
			contentDoc("c.txt", "la luna"),
		)
	}
	sol := analyzer.Collect(analyzer.NewItalian(), "sole")[0].Term
	var files [2][]byte
	for i := range files {
		root := t.TempDir()
		if _, err := NewBuilder(root).Build(context.Background(), "content-index", contentFields, docs()); err != nil {
			t.Fatalf("Build: %v", err)
		}
		r, err := Open(root, "content-index")
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		postings, err := r.LookupTerm("content", sol)
		r.Close()
		if err != nil {
			t.Fatalf("LookupTerm: %v", err)
		}
		if len(postings) != 2 || postings[0].DocID != 0 || postings[1].Frequency != 3 {
			t.Errorf("unexpected postings for sol: %+v", postings)
		}
		data, err := os.ReadFile(filepath.Join(root, "content-index", "seg_1.spdx"))
		if err != nil {
			t.Fatal(err)
		}
		files[i] = data[segment.HeaderSize:]
	}
	if string(files[0]) != string(files[1]) {
		t.Error("two builds of the same corpus produced different segment bodies")
	}
}
