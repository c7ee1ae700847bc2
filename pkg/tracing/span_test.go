package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
)

func TestChildInheritsTraceID(t *testing.T) {
	ctx, root := Start(context.Background(), "index-build", "b-1")
	_, child := Child(ctx, "content-index")
	if child.TraceID != "b-1" {
		t.Errorf("child trace ID = %q", child.TraceID)
	}
	if got := root.Children(); len(got) != 1 || got[0] != child {
		t.Errorf("children = %v", got)
	}
}

func TestChildWithoutParentIsRoot(t *testing.T) {
	ctx, span := Child(context.Background(), "scan")
	if FromContext(ctx) != span || span.TraceID != "" {
		t.Errorf("span = %+v", span)
	}
}

func TestEndIsIdempotent(t *testing.T) {
	_, span := Start(context.Background(), "search", "r-1")
	span.End()
	d := span.Duration()
	span.End()
	if span.Duration() != d {
		t.Error("second End changed the duration")
	}
}

func TestConcurrentChildren(t *testing.T) {
	ctx, root := Start(context.Background(), "index-build", "b-1")
	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			_, s := Child(ctx, "index")
			s.Set("documents", 3)
			s.End()
		})
	}
	wg.Wait()
	if n := len(root.Children()); n != 8 {
		t.Errorf("children = %d, want 8", n)
	}
}

func TestLogWritesTree(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx, root := Start(context.Background(), "search", "r-1")
	_, parse := Child(ctx, "parse")
	parse.Set("index", "content-index")
	parse.End()
	root.End()
	root.Log(ctx, logger, slog.LevelDebug)

	var records []map[string]any
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			t.Fatal(err)
		}
		records = append(records, rec)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records", len(records))
	}
	if records[0]["span"] != "search" || records[1]["span"] != "parse" {
		t.Errorf("order = %v, %v", records[0]["span"], records[1]["span"])
	}
	if records[1]["depth"] != float64(1) || records[1]["index"] != "content-index" || records[1]["trace_id"] != "r-1" {
		t.Errorf("child record = %v", records[1])
	}
}

func TestLogSkipsDisabledLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx, root := Start(context.Background(), "search", "r-1")
	root.End()
	root.Log(ctx, logger, slog.LevelDebug)
	if buf.Len() != 0 {
		t.Errorf("unexpected output %q", buf.String())
	}
}
