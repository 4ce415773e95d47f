package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/quaero/internal/model"
	"github.com/ternarybob/quaero/internal/objectstore"
)

// countingExporter records how many times Export ran per table, optionally
// blocking until released so tests can assert single-flight behavior.
type countingExporter struct {
	mu      sync.Mutex
	calls   map[string]int
	release chan struct{}
	failFor map[string]bool
}

func newCountingExporter() *countingExporter {
	return &countingExporter{calls: make(map[string]int), failFor: make(map[string]bool)}
}

func (e *countingExporter) Export(ctx context.Context, tableName string, creationTime time.Time) (model.ExportReference, error) {
	e.mu.Lock()
	e.calls[tableName]++
	e.mu.Unlock()

	if e.release != nil {
		<-e.release
	}

	if e.failFor[tableName] {
		return model.ExportReference{}, errors.New("boom")
	}
	return model.ExportReference{Type: model.ExportTypeObjectStore, TableName: tableName}, nil
}

func (e *countingExporter) callCount(tableName string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[tableName]
}

func TestResolveExportReferencesSingleFlight(t *testing.T) {
	exporter := newCountingExporter()
	exporter.release = make(chan struct{})
	c := New(exporter, arbor.NewNoOpLogger())

	var wg sync.WaitGroup
	var successes int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			refs, err := c.ResolveExportReferences(context.Background(), []string{"events_daily"}, time.Now())
			if err == nil && refs["events_daily"].TableName == "events_daily" {
				atomic.AddInt32(&successes, 1)
			}
		}()
	}

	// Let every goroutine queue up on the same slot before unblocking it.
	time.Sleep(20 * time.Millisecond)
	close(exporter.release)
	wg.Wait()

	if successes != 10 {
		t.Errorf("expected all 10 callers to succeed, got %d", successes)
	}
	if got := exporter.callCount("events_daily"); got != 1 {
		t.Errorf("expected exactly 1 export call, got %d", got)
	}
}

func TestResolveExportReferencesFailure(t *testing.T) {
	exporter := newCountingExporter()
	exporter.failFor["broken_table"] = true
	c := New(exporter, arbor.NewNoOpLogger())

	_, err := c.ResolveExportReferences(context.Background(), []string{"broken_table"}, time.Now())
	if !errors.Is(err, model.ErrDependencyExportFailed) {
		t.Errorf("expected ErrDependencyExportFailed, got %v", err)
	}
}

func TestAddAndInspectExportTableReferences(t *testing.T) {
	exporter := newCountingExporter()
	c := New(exporter, arbor.NewNoOpLogger())

	c.AddExportTableReferences(map[string]model.ExportReference{
		"seeded_table": {Type: model.ExportTypeObjectStore, TableName: "seeded_table"},
	})

	refs := c.InspectExportTableReferences()
	if _, ok := refs["seeded_table"]; !ok {
		t.Fatalf("expected seeded_table to be present, got %v", refs)
	}

	// Resolving a seeded table must not trigger a fresh export.
	_, err := c.ResolveExportReferences(context.Background(), []string{"seeded_table"}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error resolving seeded table: %v", err)
	}
	if got := exporter.callCount("seeded_table"); got != 0 {
		t.Errorf("expected 0 export calls for a seeded table, got %d", got)
	}
}

func TestLocalExporterExport(t *testing.T) {
	store, err := objectstore.New(t.TempDir(), "metrics-bucket")
	if err != nil {
		t.Fatalf("objectstore.New() error: %v", err)
	}
	exporter := NewLocalExporter(store)

	ref, err := exporter.Export(context.Background(), "events_daily", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Export() error: %v", err)
	}
	if ref.Type != model.ExportTypeObjectStore {
		t.Errorf("expected ExportTypeObjectStore, got %v", ref.Type)
	}
	if want := "gs://metrics-bucket/exports/2024-01-01/events_daily/*.parquet"; ref.Payload["uri"] != want {
		t.Errorf("Payload[uri] = %q, want %q", ref.Payload["uri"], want)
	}
}
