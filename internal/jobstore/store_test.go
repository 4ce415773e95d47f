package jobstore

import (
	"errors"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/quaero/internal/model"
)

func TestCreateJobStartsPending(t *testing.T) {
	s := New(arbor.NewNoOpLogger())
	s.CreateJob("job1", model.SubmitRequest{})

	resp, err := s.GetJobStatus("job1", false)
	if err != nil {
		t.Fatalf("GetJobStatus() error: %v", err)
	}
	if resp.Status != model.JobPending {
		t.Errorf("expected JobPending, got %v", resp.Status)
	}
	if resp.Progress.Total != 0 {
		t.Errorf("expected 0 total tasks before registration, got %d", resp.Progress.Total)
	}
}

func TestGetJobStatusUnknownJob(t *testing.T) {
	s := New(arbor.NewNoOpLogger())
	_, err := s.GetJobStatus("missing", false)
	if !errors.Is(err, model.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestTransitionTaskUpdatesProgress(t *testing.T) {
	s := New(arbor.NewNoOpLogger())
	s.CreateJob("job1", model.SubmitRequest{})

	if err := s.RegisterTask("job1", model.Task{TaskID: "job1-0"}); err != nil {
		t.Fatalf("RegisterTask() error: %v", err)
	}
	if err := s.RegisterTask("job1", model.Task{TaskID: "job1-1"}); err != nil {
		t.Fatalf("RegisterTask() error: %v", err)
	}

	if err := s.TransitionJob("job1", model.JobRunning, ""); err != nil {
		t.Fatalf("TransitionJob() error: %v", err)
	}
	if err := s.TransitionTask("job1", "job1-0", model.TaskSucceeded, ""); err != nil {
		t.Fatalf("TransitionTask() error: %v", err)
	}

	resp, err := s.GetJobStatus("job1", false)
	if err != nil {
		t.Fatalf("GetJobStatus() error: %v", err)
	}
	if resp.Status != model.JobRunning {
		t.Errorf("expected JobRunning, got %v", resp.Status)
	}
	if resp.Progress.Completed != 1 || resp.Progress.Total != 2 {
		t.Errorf("unexpected progress: %+v", resp.Progress)
	}
}

func TestTransitionJobFailedSetsCause(t *testing.T) {
	s := New(arbor.NewNoOpLogger())
	s.CreateJob("job1", model.SubmitRequest{})

	if err := s.TransitionJob("job1", model.JobFailed, "dependency export failed"); err != nil {
		t.Fatalf("TransitionJob() error: %v", err)
	}

	resp, err := s.GetJobStatus("job1", false)
	if err != nil {
		t.Fatalf("GetJobStatus() error: %v", err)
	}
	if resp.Status != model.JobFailed {
		t.Errorf("expected JobFailed, got %v", resp.Status)
	}
	if resp.Cause != "dependency export failed" {
		t.Errorf("expected cause to be set, got %q", resp.Cause)
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	s := New(arbor.NewNoOpLogger())
	s.CreateJob("job1", model.SubmitRequest{})

	ch, unsub := s.Subscribe("job1", 4)
	defer unsub()

	if err := s.TransitionJob("job1", model.JobRunning, ""); err != nil {
		t.Fatalf("TransitionJob() error: %v", err)
	}

	select {
	case evt := <-ch:
		if evt.Status.Status != model.JobRunning {
			t.Errorf("expected JobRunning event, got %v", evt.Status.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscription event")
	}
}

func TestSubscribeAllReceivesEveryJob(t *testing.T) {
	s := New(arbor.NewNoOpLogger())
	ch, unsub := s.SubscribeAll(8)
	defer unsub()

	s.CreateJob("job1", model.SubmitRequest{})
	s.CreateJob("job2", model.SubmitRequest{})

	seen := make(map[string]bool)
	for i := 0; i < 2; i++ {
		select {
		case evt := <-ch:
			seen[evt.JobID] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for broadcast event")
		}
	}
	if !seen["job1"] || !seen["job2"] {
		t.Errorf("expected events from both jobs, got %v", seen)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	s := New(arbor.NewNoOpLogger())
	s.CreateJob("job1", model.SubmitRequest{})

	ch, unsub := s.Subscribe("job1", 4)
	unsub()

	if err := s.TransitionJob("job1", model.JobRunning, ""); err != nil {
		t.Fatalf("TransitionJob() error: %v", err)
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to be closed after unsubscribe")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("expected closed channel to return immediately")
	}
}

func TestDeriveStatsComputesTransitionDurations(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	updates := []model.JobUpdate{
		{Time: created, Scope: model.ScopeJob, Status: model.JobPending},
		{Time: created.Add(2 * time.Second), Scope: model.ScopeJob, Status: model.JobRunning},
		{Time: created.Add(5 * time.Second), Scope: model.ScopeJob, Status: model.JobCompleted},
	}

	stats := deriveStats(created, updates)
	if stats["pending_to_running_seconds"] != 2 {
		t.Errorf("pending_to_running_seconds = %v, want 2", stats["pending_to_running_seconds"])
	}
	if stats["running_to_completed_seconds"] != 3 {
		t.Errorf("running_to_completed_seconds = %v, want 3", stats["running_to_completed_seconds"])
	}
	if _, ok := stats["running_to_failed_seconds"]; ok {
		t.Errorf("did not expect running_to_failed_seconds for a completed job")
	}
}
