package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/metrics"
)

type fakeOut struct {
	failures int
	calls    int
	events   []kafka.Event
}

func (f *fakeOut) PublishBatch(_ context.Context, events []kafka.Event) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("broker unavailable")
	}
	f.events = append(f.events, events...)
	return nil
}

func summary() *catalog.Summary {
	return &catalog.Summary{
		Files: 3,
		Reports: []*indexer.BuildReport{
			{Index: catalog.NameIndex, Generation: 5, Documents: 3, Terms: 4},
			{Index: catalog.ContentIndex, Generation: 5, Documents: 2, Terms: 9, Skipped: []indexer.Skipped{{Source: "x.txt"}}},
		},
	}
}

func TestEvents(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	events := Events("b-1", summary(), now)
	if len(events) != 2 {
		t.Fatalf("got %d events", len(events))
	}
	ev := events[1].Value.(IndexComplete)
	if events[1].Key != catalog.ContentIndex || ev.Skipped != 1 || ev.Generation != 5 || ev.BuildID != "b-1" {
		t.Errorf("event = %+v", ev)
	}
	if ev.CompletedAt.Location() != time.UTC {
		t.Error("timestamps must be UTC")
	}
}

func TestPublishRetries(t *testing.T) {
	out := &fakeOut{failures: 2}
	p := NewPublisher(out, metrics.New(prometheus.NewRegistry()))
	p.retry.InitialDelay = time.Millisecond
	if err := p.Publish(context.Background(), "b-1", summary()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if out.calls != 3 || len(out.events) != 2 {
		t.Errorf("calls = %d, events = %d", out.calls, len(out.events))
	}
}

func TestPublishGivesUp(t *testing.T) {
	out := &fakeOut{failures: 100}
	p := NewPublisher(out, nil)
	p.retry.InitialDelay = time.Millisecond
	if err := p.Publish(context.Background(), "b-1", summary()); err == nil {
		t.Fatal("expected an error")
	}
	if out.calls != 3 {
		t.Errorf("the breaker should stop calls after 3 failures, got %d", out.calls)
	}
}

type fakeReloader struct {
	open    map[string]uint64
	reloads int
	err     error
}

func (f *fakeReloader) Generation(index string) (uint64, bool) {
	g, ok := f.open[index]
	return g, ok
}

func (f *fakeReloader) Reload() error {
	f.reloads++
	return f.err
}

type fakeInvalidator struct{ calls int }

func (f *fakeInvalidator) Invalidate(context.Context) error {
	f.calls++
	return nil
}

func encode(t *testing.T, ev IndexComplete) []byte {
	t.Helper()
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestHandler(t *testing.T) {
	tests := []struct {
		name        string
		open        map[string]uint64
		value       []byte
		reloadErr   error
		wantReloads int
		wantErr     bool
	}{
		{"newer generation", map[string]uint64{catalog.ContentIndex: 4}, encode(t, IndexComplete{Index: catalog.ContentIndex, Generation: 5}), nil, 1, false},
		{"same generation", map[string]uint64{catalog.ContentIndex: 5}, encode(t, IndexComplete{Index: catalog.ContentIndex, Generation: 5}), nil, 0, false},
		{"nothing open", nil, encode(t, IndexComplete{Index: catalog.NameIndex, Generation: 1}), nil, 1, false},
		{"garbage", nil, []byte("not json"), nil, 0, false},
		{"reload fails", nil, encode(t, IndexComplete{Index: catalog.NameIndex, Generation: 1}), errors.New("corrupt"), 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeReloader{open: tt.open, err: tt.reloadErr}
			inv := &fakeInvalidator{}
			err := Handler(r, inv)(context.Background(), nil, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if r.reloads != tt.wantReloads {
				t.Errorf("reloads = %d, want %d", r.reloads, tt.wantReloads)
			}
			wantInv := 0
			if tt.wantReloads == 1 && !tt.wantErr {
				wantInv = 1
			}
			if inv.calls != wantInv {
				t.Errorf("invalidations = %d, want %d", inv.calls, wantInv)
			}
		})
	}
}
