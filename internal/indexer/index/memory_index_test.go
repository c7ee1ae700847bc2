package index

import (
	"slices"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/analyzer"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/document"
)

func newTestIndex() *MemoryIndex {
	return NewMemoryIndex(analyzer.PerField{
		Default: analyzer.NewWhitespace(),
	})
}

// postings looks a term up through the snapshot the segment writer consumes.
func postings(mi *MemoryIndex, field, term string) PostingList {
	for _, e := range mi.Snapshot() {
		if e.Field == field && e.Term == term {
			return e.Postings
		}
	}
	return nil
}

func TestAddDocumentAssignsContiguousIDs(t *testing.T) {
	mi := newTestIndex()
	for i, text := range []string{"uno", "due", "tre"} {
		id, tokens := mi.AddDocument(document.New(text).AddText("body", text, false))
		if id != i {
			t.Errorf("doc %q got id %d, want %d", text, id, i)
		}
		if tokens != 1 {
			t.Errorf("doc %q produced %d tokens, want 1", text, tokens)
		}
	}
	if mi.DocCount() != 3 {
		t.Errorf("DocCount() = %d, want 3", mi.DocCount())
	}
}

func TestPostingsCarryFrequencyAndPositions(t *testing.T) {
	mi := newTestIndex()
	mi.AddDocument(document.New("a").AddText("body", "rosso blu rosso verde rosso", false))
	mi.AddDocument(document.New("b").AddText("body", "blu", false))

	rosso := postings(mi, "body", "rosso")
	if len(rosso) != 1 {
		t.Fatalf("expected 1 posting for rosso, got %d", len(rosso))
	}
	if rosso[0].Frequency != 3 || !slices.Equal(rosso[0].Positions, []int{0, 2, 4}) {
		t.Errorf("unexpected posting %+v", rosso[0])
	}
	blu := postings(mi, "body", "blu")
	if len(blu) != 2 || blu[0].DocID != 0 || blu[1].DocID != 1 {
		t.Errorf("blu postings = %+v, want docs 0 and 1", blu)
	}
	if got := postings(mi, "other", "blu"); got != nil {
		t.Errorf("expected no postings for another field, got %v", got)
	}
}

func TestStoredOnlyFieldsAreNotIndexed(t *testing.T) {
	mi := newTestIndex()
	mi.AddDocument(document.New("a").
		AddText("body", "ciao", false).
		AddStored("path", "/tmp/ciao mondo.txt"))

	if got := postings(mi, "path", "ciao"); got != nil {
		t.Errorf("stored-only field was indexed: %v", got)
	}
	stored := mi.StoredFields()
	if len(stored) != 1 || stored[0]["path"] != "/tmp/ciao mondo.txt" {
		t.Errorf("StoredFields() = %v", stored)
	}
	if _, ok := stored[0]["body"]; ok {
		t.Error("unstored field leaked into stored values")
	}
}

func TestSnapshotIsSortedByFieldThenTerm(t *testing.T) {
	mi := newTestIndex()
	mi.AddDocument(document.New("a").
		AddText("title", "zeta alfa", false).
		AddText("body", "mu beta", false))

	snap := mi.Snapshot()
	got := make([]string, len(snap))
	for i, e := range snap {
		got[i] = e.Field + ":" + e.Term
	}
	want := []string{"body:beta", "body:mu", "title:alfa", "title:zeta"}
	if !slices.Equal(got, want) {
		t.Errorf("Snapshot() order = %v, want %v", got, want)
	}
}

func TestPostingListFind(t *testing.T) {
	pl := PostingList{{DocID: 1}, {DocID: 4}, {DocID: 9}}
	if p, ok := pl.Find(4); !ok || p.DocID != 4 {
		t.Errorf("Find(4) = %+v, %v", p, ok)
	}
	if _, ok := pl.Find(5); ok {
		t.Error("Find(5) should miss")
	}
	if _, ok := pl.Find(10); ok {
		t.Error("Find(10) should miss")
	}
}
