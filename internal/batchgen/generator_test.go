package batchgen

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ternarybob/quaero/internal/model"
	"github.com/ternarybob/quaero/internal/render"
)

func collect(t *testing.T, out <-chan Batch, errs <-chan error) ([]Batch, error) {
	t.Helper()
	var batches []Batch
	var genErr error
	for out != nil || errs != nil {
		select {
		case b, ok := <-out:
			if !ok {
				out = nil
				continue
			}
			batches = append(batches, b)
		case e, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			genErr = e
		}
	}
	return batches, genErr
}

func TestGenerateSplitsIntoWindows(t *testing.T) {
	req := model.SubmitRequest{
		QueryString:   "select * from t where ts between @metrics_start and @metrics_end",
		SourceDialect: "duckdb",
		Start:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:           time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		BatchSizeDays: 5,
	}

	out, errs := Generate(context.Background(), render.NewTokenRenderer(), req, nil)
	batches, err := collect(t, out, errs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}
	if batches[0].Index != 0 || batches[1].Index != 1 {
		t.Errorf("expected batches in ascending index order, got %+v", batches)
	}
	if !batches[0].Start.Equal(req.Start) {
		t.Errorf("first batch should start at the request's start: got %v", batches[0].Start)
	}
	if !batches[1].End.Equal(req.End) {
		t.Errorf("last batch should end at the request's end: got %v", batches[1].End)
	}
}

func TestGenerateEmptyWindow(t *testing.T) {
	req := model.SubmitRequest{
		QueryString:   "select 1",
		SourceDialect: "duckdb",
		Start:         time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		End:           time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		BatchSizeDays: 1,
	}

	out, errs := Generate(context.Background(), render.NewTokenRenderer(), req, nil)
	batches, err := collect(t, out, errs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batches) != 0 {
		t.Errorf("expected no batches for an inverted window, got %d", len(batches))
	}
}

func TestGenerateUsesDependentTableBindings(t *testing.T) {
	req := model.SubmitRequest{
		QueryString:   "select * from @dep:events as e where e.ts between @metrics_start and @metrics_end",
		SourceDialect: "duckdb",
		Start:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:           time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		BatchSizeDays: 1,
	}

	out, errs := Generate(context.Background(), render.NewTokenRenderer(), req, map[string]string{"events": "sqlmesh__events__abc"})
	batches, err := collect(t, out, errs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}
	if want := "select * from sqlmesh__events__abc as e"; !strings.Contains(batches[0].Query, want) {
		t.Errorf("expected rendered query to reference the resolved table, got: %q", batches[0].Query)
	}
}

func TestGenerateRespectsCancellation(t *testing.T) {
	req := model.SubmitRequest{
		QueryString:   "select 1",
		SourceDialect: "duckdb",
		Start:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:           time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		BatchSizeDays: 1,
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, errs := Generate(ctx, render.NewTokenRenderer(), req, nil)
	batches, err := collect(t, out, errs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batches) > 1 {
		t.Errorf("expected cancellation to stop generation quickly, got %d batches", len(batches))
	}
}
