package cluster

import (
	"context"
	"testing"

	"github.com/ternarybob/quaero/internal/objectstore"
)

func TestLocalExecutorExecuteWritesFileAtOutputPath(t *testing.T) {
	store, err := objectstore.New(t.TempDir(), "metrics-bucket")
	if err != nil {
		t.Fatalf("objectstore.New() error: %v", err)
	}
	executor := NewLocalExecutor(store)

	task := Task{
		JobID:      "export_abc",
		TaskID:     "export_abc-0",
		Query:      "select 1",
		OutputPath: "export_abc/0.parquet",
	}
	if err := executor.Execute(context.Background(), task); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	keys, err := store.List("export_abc/*.parquet")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(keys) != 1 || keys[0] != "export_abc/0.parquet" {
		t.Fatalf("expected a single file at export_abc/0.parquet, got %v", keys)
	}

	data, err := store.Get("export_abc/0.parquet")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected non-empty staged result")
	}
}

func TestLocalExecutorExecuteRespectsCancellation(t *testing.T) {
	store, err := objectstore.New(t.TempDir(), "metrics-bucket")
	if err != nil {
		t.Fatalf("objectstore.New() error: %v", err)
	}
	executor := NewLocalExecutor(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = executor.Execute(ctx, Task{OutputPath: "export_abc/0.parquet"})
	if err == nil {
		t.Fatal("expected Execute to fail on a cancelled context")
	}
}
