package journal

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/postgres"
)

// newJournal connects to the database named by FS_TEST_POSTGRES_HOST and
// skips the test when it is unset.
func newJournal(t *testing.T) *Journal {
	t.Helper()
	host := os.Getenv("FS_TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("FS_TEST_POSTGRES_HOST not set")
	}
	cfg := config.Default().Postgres
	cfg.Host = host
	client, err := postgres.New(cfg)
	if err != nil {
		t.Fatalf("connecting: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	j := New(client)
	if err := j.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return j
}

func TestRecordAndList(t *testing.T) {
	j := newJournal(t)
	ctx := context.Background()
	buildID := uuid.NewString()
	summary := &catalog.Summary{Reports: []*indexer.BuildReport{
		{Index: catalog.NameIndex, Generation: 3, Documents: 2, Terms: 2, Duration: time.Millisecond},
		{Index: catalog.ContentIndex, Generation: 3, Documents: 1, Terms: 5,
			Skipped: []indexer.Skipped{{Source: "rotto.txt", Reason: "permission denied"}}},
	}}
	if err := j.RecordSuccess(ctx, buildID, summary); err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}
	// An empty summary records nothing.
	if err := j.RecordSuccess(ctx, uuid.NewString(), &catalog.Summary{}); err != nil {
		t.Fatalf("empty summary: %v", err)
	}

	builds, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	found := 0
	for _, b := range builds {
		if b.BuildID == buildID {
			found++
			if b.Status != StatusCommitted || b.Generation != 3 {
				t.Errorf("build = %+v", b)
			}
		}
	}
	if found != 2 {
		t.Errorf("found %d rows for the build, want 2", found)
	}

	skips, err := j.Skips(ctx, buildID, catalog.ContentIndex)
	if err != nil {
		t.Fatalf("Skips: %v", err)
	}
	if skips["rotto.txt"] != "permission denied" {
		t.Errorf("skips = %v", skips)
	}
}

func TestRecordFailure(t *testing.T) {
	j := newJournal(t)
	ctx := context.Background()
	buildID := uuid.NewString()
	if err := j.RecordFailure(ctx, buildID, catalog.ContentIndex, errors.New("disk full")); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	builds, err := j.Recent(ctx, 50)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	for _, b := range builds {
		if b.BuildID == buildID {
			if b.Status != StatusFailed || b.Error != "disk full" {
				t.Errorf("build = %+v", b)
			}
			return
		}
	}
	t.Error("failed build not listed")
}
