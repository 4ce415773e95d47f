package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/quaero/internal/cache"
	"github.com/ternarybob/quaero/internal/cluster"
	"github.com/ternarybob/quaero/internal/importadapter"
	"github.com/ternarybob/quaero/internal/jobstore"
	"github.com/ternarybob/quaero/internal/model"
	"github.com/ternarybob/quaero/internal/objectstore"
)

// fakeExporter returns an immediately-ready reference for any table.
type fakeExporter struct{}

func (fakeExporter) Export(ctx context.Context, tableName string, creationTime time.Time) (model.ExportReference, error) {
	return model.ExportReference{Type: model.ExportTypeObjectStore, TableName: tableName}, nil
}

// fakeExecutor succeeds unless the query string contains failMarker.
type fakeExecutor struct {
	failMarker string
}

func (e fakeExecutor) Execute(ctx context.Context, task cluster.Task) error {
	if e.failMarker != "" && len(task.Query) > 0 {
		for i := 0; i+len(e.failMarker) <= len(task.Query); i++ {
			if task.Query[i:i+len(e.failMarker)] == e.failMarker {
				return errors.New("simulated worker failure")
			}
		}
	}
	return nil
}

// fakeAdapter records whether ImportReference was called.
type fakeAdapter struct {
	imported  bool
	failImport bool
}

func (a *fakeAdapter) TranslateReference(staged model.ExportReference) (model.ExportReference, error) {
	final := staged
	final.Type = model.ExportTypeWarehouseNative
	return final, nil
}

func (a *fakeAdapter) ImportReference(staged, final model.ExportReference) error {
	if a.failImport {
		return errors.New("import boom")
	}
	a.imported = true
	return nil
}

var _ importadapter.Adapter = (*fakeAdapter)(nil)

func newTestScheduler(t *testing.T, executor cluster.Executor, adapter *fakeAdapter) (*Scheduler, *jobstore.Store) {
	t.Helper()

	store, err := objectstore.New(t.TempDir(), "metrics-bucket")
	if err != nil {
		t.Fatalf("objectstore.New() error: %v", err)
	}

	cacheMgr := cache.New(fakeExporter{}, arbor.NewNoOpLogger())
	clusterMgr := cluster.NewManager(executor, arbor.NewNoOpLogger())
	jobs := jobstore.New(arbor.NewNoOpLogger())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := clusterMgr.StartCluster(ctx, 1, 4); err != nil {
		t.Fatalf("StartCluster() error: %v", err)
	}

	s := New(cacheMgr, clusterMgr, jobs, adapter, store, "results", arbor.NewNoOpLogger())
	return s, jobs
}

func waitForTerminal(t *testing.T, s *Scheduler, jobID string) model.JobStatusResponse {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := s.JobStatus(jobID, false)
		if err != nil {
			t.Fatalf("JobStatus() error: %v", err)
		}
		if resp.Status == model.JobCompleted || resp.Status == model.JobFailed {
			return resp
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", jobID)
	return model.JobStatusResponse{}
}

func baseRequest() model.SubmitRequest {
	return model.SubmitRequest{
		QueryString:   "select * from t where ts between @metrics_start and @metrics_end",
		SourceDialect: "duckdb",
		Start:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:           time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		BatchSizeDays: 1,
		Columns:       []model.Column{{Name: "id", Type: "BIGINT"}},
		ExecutionTime: time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC),
	}
}

func TestSubmitJobCompletesSuccessfully(t *testing.T) {
	adapter := &fakeAdapter{}
	s, _ := newTestScheduler(t, fakeExecutor{}, adapter)

	resp, err := s.SubmitJob(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("SubmitJob() error: %v", err)
	}
	if resp.JobID == "" {
		t.Fatal("expected a non-empty job id")
	}
	if resp.ExportReference.Type != model.ExportTypeWarehouseNative {
		t.Errorf("expected the translated final reference, got %+v", resp.ExportReference)
	}

	final := waitForTerminal(t, s, resp.JobID)
	if final.Status != model.JobCompleted {
		t.Fatalf("expected job to complete, got %v (cause=%q)", final.Status, final.Cause)
	}
	if final.Progress.Completed != 2 || final.Progress.Total != 2 {
		t.Errorf("unexpected progress: %+v", final.Progress)
	}
	if !adapter.imported {
		t.Error("expected ImportReference to have been called")
	}
}

func TestSubmitJobFailsWhenATaskFails(t *testing.T) {
	adapter := &fakeAdapter{}
	s, _ := newTestScheduler(t, fakeExecutor{failMarker: "2024-01-02"}, adapter)

	resp, err := s.SubmitJob(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("SubmitJob() error: %v", err)
	}

	final := waitForTerminal(t, s, resp.JobID)
	if final.Status != model.JobFailed {
		t.Fatalf("expected job to fail, got %v", final.Status)
	}
	if final.Cause == "" {
		t.Error("expected a failure cause to be recorded")
	}
	if adapter.imported {
		t.Error("expected ImportReference not to be called when a task fails")
	}
}

func TestSubmitJobFailsWhenImportFails(t *testing.T) {
	adapter := &fakeAdapter{failImport: true}
	s, _ := newTestScheduler(t, fakeExecutor{}, adapter)

	resp, err := s.SubmitJob(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("SubmitJob() error: %v", err)
	}

	final := waitForTerminal(t, s, resp.JobID)
	if final.Status != model.JobFailed {
		t.Fatalf("expected job to fail, got %v", final.Status)
	}
}

func TestSubmitJobRejectsInvalidRequest(t *testing.T) {
	adapter := &fakeAdapter{}
	s, _ := newTestScheduler(t, fakeExecutor{}, adapter)

	req := baseRequest()
	req.QueryString = ""

	_, err := s.SubmitJob(context.Background(), req)
	if !errors.Is(err, model.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestResubmitProducesFreshJobID(t *testing.T) {
	adapter := &fakeAdapter{}
	s, _ := newTestScheduler(t, fakeExecutor{}, adapter)

	first, err := s.SubmitJob(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("SubmitJob() error: %v", err)
	}
	second, err := s.SubmitJob(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("SubmitJob() error: %v", err)
	}

	if first.JobID == second.JobID {
		t.Error("expected resubmission to produce a distinct job id")
	}

	waitForTerminal(t, s, first.JobID)
	waitForTerminal(t, s, second.JobID)
}
