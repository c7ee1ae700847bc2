package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/analyzer"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/errors"
)

var fields = parser.Fields{
	"name":    {Field: "name", Index: "name-index", Analyzer: analyzer.NewWhitespace()},
	"content": {Field: "content", Index: "content-index", Analyzer: analyzer.NewItalian()},
}

type file struct {
	name, text string
}

// openIndexes builds both indexes over files and returns an executor for
// each, keyed by index name.
func openIndexes(t *testing.T, files ...file) map[string]*Executor {
	t.Helper()
	root := t.TempDir()
	b := indexer.NewBuilder(root)
	ctx := context.Background()

	nameDocs := func(yield func(*document.Document, error) bool) {
		for _, f := range files {
			doc := document.New(f.name).AddText("name", f.name, false).
				AddStored("file", f.name).AddStored("path", "/corpus/"+f.name)
			if !yield(doc, nil) {
				return
			}
		}
	}
	contentDocs := func(yield func(*document.Document, error) bool) {
		for _, f := range files {
			doc := document.New(f.name).AddText("content", f.text, false).
				AddStored("file", f.name).AddStored("path", "/corpus/"+f.name)
			if !yield(doc, nil) {
				return
			}
		}
	}
	if _, err := b.Build(ctx, "name-index", analyzer.PerField{Default: analyzer.NewWhitespace()}, nameDocs); err != nil {
		t.Fatalf("building name-index: %v", err)
	}
	if _, err := b.Build(ctx, "content-index", analyzer.PerField{Default: analyzer.NewItalian()}, contentDocs); err != nil {
		t.Fatalf("building content-index: %v", err)
	}

	out := make(map[string]*Executor)
	for _, name := range []string{"name-index", "content-index"} {
		r, err := indexer.Open(root, name)
		if err != nil {
			t.Fatalf("opening %s: %v", name, err)
		}
		t.Cleanup(func() { r.Close() })
		out[name] = New(r)
	}
	return out
}

func search(t *testing.T, executors map[string]*Executor, query string, k int) *SearchResult {
	t.Helper()
	q, err := parser.Parse(query, fields)
	if err != nil {
		t.Fatalf("Parse(%q): %v", query, err)
	}
	res, err := executors[q.Index].Execute(context.Background(), q, k)
	if err != nil {
		t.Fatalf("Execute(%q): %v", query, err)
	}
	return res
}

func hitFiles(res *SearchResult) []string {
	out := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		out[i] = h.Fields["file"]
	}
	return out
}

var corpus = []file{
	{"gatto.txt", "il gatto nero corre"},
	{"cane.txt", "il cane nero dorme"},
	{"Canzone.txt", "la canzone del mare"},
	{"raccolta.txt", "canzoni e poesie"},
	{"inverso.txt", "nero gatto e bianco"},
}

func TestPhraseMatchesOnlyInOrder(t *testing.T) {
	ex := openIndexes(t, corpus...)

	res := search(t, ex, `content "gatto nero"`, 10)
	if got := hitFiles(res); len(got) != 1 || got[0] != "gatto.txt" {
		t.Errorf(`"gatto nero" matched %v, want [gatto.txt]`, got)
	}

	res = search(t, ex, `content "nero gatto"`, 10)
	if got := hitFiles(res); len(got) != 1 || got[0] != "inverso.txt" {
		t.Errorf(`"nero gatto" matched %v, want [inverso.txt]`, got)
	}
}

func TestPhraseAcrossStopWordGap(t *testing.T) {
	ex := openIndexes(t, corpus...)
	res := search(t, ex, `content "il gatto nero corre"`, 10)
	if got := hitFiles(res); len(got) != 1 || got[0] != "gatto.txt" {
		t.Errorf("matched %v, want [gatto.txt]", got)
	}
	res = search(t, ex, `content "canzone mare"`, 10)
	if res.TotalHits != 0 {
		t.Errorf("a phrase must respect the removed stop word gap, got %v", hitFiles(res))
	}
}

func TestPhraseScoresAboveLooseTerms(t *testing.T) {
	ex := openIndexes(t, corpus...)
	phrase := search(t, ex, `content "gatto nero"`, 10)
	loose := search(t, ex, `content gatto nero`, 10)
	if len(phrase.Hits) == 0 || len(loose.Hits) == 0 {
		t.Fatal("expected matches")
	}
	if phrase.Hits[0].Score != ranker.DefaultPhraseBonus*loose.Hits[0].Score {
		t.Errorf("phrase score %v, want %v times %v", phrase.Hits[0].Score, ranker.DefaultPhraseBonus, loose.Hits[0].Score)
	}
}

func TestNameQueryFindsFileWithExtension(t *testing.T) {
	ex := openIndexes(t, corpus...)
	for _, q := range []string{"name canzone", "name Canzone.txt", "NAME CANZONE"} {
		res := search(t, ex, q, 10)
		if got := hitFiles(res); len(got) != 1 || got[0] != "Canzone.txt" {
			t.Errorf("%s matched %v, want [Canzone.txt]", q, got)
		}
	}
	res := search(t, ex, "name canzone", 10)
	if res.Hits[0].Fields["path"] != "/corpus/Canzone.txt" {
		t.Errorf("unexpected path %q", res.Hits[0].Fields["path"])
	}
}

func TestStemEquivalentTermsMatch(t *testing.T) {
	ex := openIndexes(t, corpus...)
	res := search(t, ex, "content canzone", 10)
	got := hitFiles(res)
	if len(got) != 2 {
		t.Fatalf("expected canzone to match both inflections, got %v", got)
	}
}

func TestAbsentTermReturnsEmptyResult(t *testing.T) {
	ex := openIndexes(t, corpus...)
	res := search(t, ex, "content astronave", 10)
	if res.TotalHits != 0 || len(res.Hits) != 0 || res.Hits == nil {
		t.Errorf("expected an empty, non-nil hit list, got %+v", res)
	}
	res = search(t, ex, "content il la", 10)
	if res.TotalHits != 0 {
		t.Errorf("stop words only must match nothing, got %v", hitFiles(res))
	}
}

func TestHigherFrequencyRanksFirst(t *testing.T) {
	ex := openIndexes(t,
		file{"uno.txt", "sole"},
		file{"tre.txt", "sole sole sole"},
		file{"luna.txt", "luna"},
	)
	res := search(t, ex, "content sole", 10)
	if got := hitFiles(res); len(got) != 2 || got[0] != "tre.txt" {
		t.Fatalf("ranking %v, want tre.txt first", got)
	}
	if res.Hits[0].Score <= res.Hits[1].Score {
		t.Errorf("scores not descending: %v", res.Hits)
	}
	if res.Hits[0].Rank != 1 || res.Hits[1].Rank != 2 {
		t.Errorf("unexpected ranks %d, %d", res.Hits[0].Rank, res.Hits[1].Rank)
	}
}

func TestTiesBreakByDocumentID(t *testing.T) {
	ex := openIndexes(t,
		file{"b.txt", "mare"},
		file{"a.txt", "mare"},
		file{"c.txt", "monte"},
	)
	res := search(t, ex, "content mare", 10)
	if got := hitFiles(res); len(got) != 2 || got[0] != "b.txt" || got[1] != "a.txt" {
		t.Errorf("ties must follow insertion order, got %v", got)
	}
}

func TestRankingIsDeterministic(t *testing.T) {
	first := search(t, openIndexes(t, corpus...), "content gatto nero canzone", 10)
	second := search(t, openIndexes(t, corpus...), "content gatto nero canzone", 10)
	if len(first.Hits) != len(second.Hits) {
		t.Fatalf("hit counts differ: %d vs %d", len(first.Hits), len(second.Hits))
	}
	for i := range first.Hits {
		a, b := first.Hits[i], second.Hits[i]
		if a.DocID != b.DocID || a.Score != b.Score {
			t.Errorf("hit %d differs: %+v vs %+v", i, a, b)
		}
	}
}

func TestBooleanOccur(t *testing.T) {
	ex := openIndexes(t, corpus...)
	tests := []struct {
		query string
		want  []string
	}{
		{"content +nero -cane", []string{"gatto.txt", "inverso.txt"}},
		{"content +nero +dorme", []string{"cane.txt"}},
		{"content -nero", nil},
		{"content +poesie gatto", []string{"raccolta.txt"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			res := search(t, ex, tt.query, 10)
			got := map[string]bool{}
			for _, f := range hitFiles(res) {
				got[f] = true
			}
			if len(got) != len(tt.want) {
				t.Fatalf("matched %v, want %v", hitFiles(res), tt.want)
			}
			for _, w := range tt.want {
				if !got[w] {
					t.Errorf("missing %s in %v", w, hitFiles(res))
				}
			}
		})
	}
}

func TestLimit(t *testing.T) {
	ex := openIndexes(t, corpus...)
	res := search(t, ex, "content nero", 1)
	if len(res.Hits) != 1 || res.TotalHits != 3 {
		t.Errorf("expected 1 hit of 3, got %d of %d", len(res.Hits), res.TotalHits)
	}

	q, err := parser.Parse("content nero", fields)
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range []int{0, -3} {
		if _, err := ex["content-index"].Execute(context.Background(), q, k); !errors.Is(err, apperrors.ErrInvalidArgument) {
			t.Errorf("k=%d: expected ErrInvalidArgument, got %v", k, err)
		}
	}
}

func TestQueryForAnotherIndexIsRejected(t *testing.T) {
	ex := openIndexes(t, corpus...)
	q, err := parser.Parse("name gatto", fields)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ex["content-index"].Execute(context.Background(), q, 10); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestCancelledContext(t *testing.T) {
	ex := openIndexes(t, corpus...)
	q, err := parser.Parse("content gatto", fields)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ex["content-index"].Execute(ctx, q, 10); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
