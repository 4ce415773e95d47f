// Package jobstore implements the Job State Store (spec §4.4): the
// in-memory job/task state machine, its append-only updates-log, and the
// push-style publish/subscribe bridge update events go out over.
//
// Grounded on metrics_tools/compute/service.py's job_state_lock +
// AsyncIOEventEmitter pattern (_create_job_state/_update_job_state/
// emit_job_state), translated into a single sync.Mutex plus per-job and
// broadcast Go channels, per spec §9's "typed publish/subscribe" redesign
// note.
package jobstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/quaero/internal/model"
)

// job is the store's internal record: owned by the store for its entire
// lifetime (spec §3 Ownership).
type job struct {
	jobID     string
	createdAt time.Time
	request   model.SubmitRequest
	tasks     map[string]model.Task
	taskOrder []string
	updates   []model.JobUpdate
}

func (j *job) latestStatus() model.JobStatus {
	for i := len(j.updates) - 1; i >= 0; i-- {
		if j.updates[i].Scope == model.ScopeJob {
			return j.updates[i].Status
		}
	}
	return model.JobPending
}

func (j *job) progress() model.Progress {
	completed := 0
	for _, t := range j.tasks {
		if t.Status == model.TaskSucceeded || t.Status == model.TaskFailed || t.Status == model.TaskCancelled {
			completed++
		}
	}
	return model.Progress{Completed: completed, Total: len(j.tasks)}
}

func (j *job) snapshot(includeStats bool) model.JobStatusResponse {
	latest := j.updates[len(j.updates)-1]
	resp := model.JobStatusResponse{
		JobID:     j.jobID,
		CreatedAt: j.createdAt,
		UpdatedAt: latest.Time,
		Status:    j.latestStatus(),
		Progress:  j.progress(),
	}
	if resp.Status == model.JobFailed {
		for i := len(j.updates) - 1; i >= 0; i-- {
			if j.updates[i].Scope == model.ScopeJob && j.updates[i].Exception != "" {
				resp.Cause = j.updates[i].Exception
				break
			}
		}
	}
	if includeStats {
		resp.Stats = deriveStats(j.createdAt, j.updates)
	}
	return resp
}

// deriveStats computes duration-between-transitions stats on demand from
// the updates-log, exactly as the original's QueryJobState.as_response does
// (see SPEC_FULL.md SUPPLEMENTED FEATURES) - never stored incrementally.
func deriveStats(createdAt time.Time, updates []model.JobUpdate) map[string]float64 {
	stats := make(map[string]float64)

	var pendingToRunning, runningToCompleted, runningToFailed *time.Time
	for _, u := range updates {
		if u.Scope != model.ScopeJob {
			continue
		}
		switch u.Status {
		case model.JobRunning:
			if pendingToRunning == nil {
				t := u.Time
				pendingToRunning = &t
			}
		case model.JobCompleted:
			if runningToCompleted == nil {
				t := u.Time
				runningToCompleted = &t
			}
		case model.JobFailed:
			if runningToFailed == nil {
				t := u.Time
				runningToFailed = &t
			}
		}
	}

	if pendingToRunning != nil {
		stats["pending_to_running_seconds"] = pendingToRunning.Sub(createdAt).Seconds()
		if runningToCompleted != nil {
			stats["running_to_completed_seconds"] = runningToCompleted.Sub(*pendingToRunning).Seconds()
		}
		if runningToFailed != nil {
			stats["running_to_failed_seconds"] = runningToFailed.Sub(*pendingToRunning).Seconds()
		}
	}
	return stats
}

// Event is delivered to subscribers: a deep-copied, fully-applied snapshot
// plus the update that produced it (spec §9 "deep-copy-before-emit").
type Event struct {
	JobID  string
	Status model.JobStatusResponse
	Update model.JobUpdate
}

type subscription struct {
	id uint64
	ch chan Event
}

// Store is the Job State Store (spec §4.4). Exactly one mutex guards every
// job's state (spec §5 locking discipline); events are emitted after the
// lock is released using a value (not pointer) snapshot.
type Store struct {
	mu        sync.Mutex
	jobs      map[string]*job
	broadcast []subscription
	perJob    map[string][]subscription
	nextSubID uint64
	logger    arbor.ILogger
}

// New constructs an empty Store.
func New(logger arbor.ILogger) *Store {
	return &Store{
		jobs:   make(map[string]*job),
		perJob: make(map[string][]subscription),
		logger: logger,
	}
}

// CreateJob records a freshly-submitted job in state "pending" (spec §4.1
// step 2, §3 Job).
func (s *Store) CreateJob(jobID string, request model.SubmitRequest) {
	now := time.Now()

	s.mu.Lock()
	tasks := make(map[string]model.Task, request.BatchCount())
	j := &job{
		jobID:     jobID,
		createdAt: now,
		request:   request,
		tasks:     tasks,
		updates: []model.JobUpdate{
			{Time: now, Scope: model.ScopeJob, Status: model.JobPending},
		},
	}
	s.jobs[jobID] = j
	event := s.buildEvent(j, j.updates[0])
	subs := s.subscribersLocked(jobID)
	s.mu.Unlock()

	s.publish(subs, event)
}

// RegisterTask adds a task in "pending" status to the job, ahead of dispatch.
func (s *Store) RegisterTask(jobID string, task model.Task) error {
	s.mu.Lock()
	j, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", model.ErrJobNotFound, jobID)
	}
	task.Status = model.TaskPending
	j.tasks[task.TaskID] = task
	j.taskOrder = append(j.taskOrder, task.TaskID)
	s.mu.Unlock()
	return nil
}

// TransitionJob appends a job-scope update and broadcasts the new snapshot.
func (s *Store) TransitionJob(jobID string, status model.JobStatus, exception string) error {
	return s.appendUpdate(jobID, model.JobUpdate{
		Time:      time.Now(),
		Scope:     model.ScopeJob,
		Status:    status,
		Exception: exception,
	})
}

// TransitionTask appends a task-scope update, updates the task's own
// status, and broadcasts the new snapshot.
func (s *Store) TransitionTask(jobID, taskID string, status model.TaskStatus, exception string) error {
	s.mu.Lock()
	j, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", model.ErrJobNotFound, jobID)
	}
	task, ok := j.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("task %s not registered on job %s", taskID, jobID)
	}
	task.Status = status
	task.LastException = exception
	j.tasks[taskID] = task

	update := model.JobUpdate{
		Time:          time.Now(),
		Scope:         model.ScopeTask,
		Status:        j.latestStatus(),
		TaskID:        taskID,
		TaskStatus:    status,
		TaskException: exception,
	}
	j.updates = append(j.updates, update)
	event := s.buildEvent(j, update)
	subs := s.subscribersLocked(jobID)
	s.mu.Unlock()

	s.publish(subs, event)
	return nil
}

func (s *Store) appendUpdate(jobID string, update model.JobUpdate) error {
	s.mu.Lock()
	j, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", model.ErrJobNotFound, jobID)
	}
	j.updates = append(j.updates, update)
	event := s.buildEvent(j, update)
	subs := s.subscribersLocked(jobID)
	s.mu.Unlock()

	s.publish(subs, event)

	if s.logger != nil {
		s.logger.Debug().Str("job_id", jobID).Str("status", string(update.Status)).Msg("job state updated")
	}
	return nil
}

// buildEvent must be called with s.mu held; it copies everything it needs
// out of the job record so nothing mutable escapes the lock (spec §9
// deep-copy-before-emit).
func (s *Store) buildEvent(j *job, update model.JobUpdate) Event {
	return Event{
		JobID:  j.jobID,
		Status: j.snapshot(false),
		Update: update,
	}
}

// subscribersLocked must be called with s.mu held.
func (s *Store) subscribersLocked(jobID string) []subscription {
	all := make([]subscription, 0, len(s.broadcast)+len(s.perJob[jobID]))
	all = append(all, s.broadcast...)
	all = append(all, s.perJob[jobID]...)
	return all
}

// publish never holds s.mu: sends are non-blocking against a bounded
// buffer, and a full subscriber channel drops the event rather than stall
// the mutator (spec §5: "Locks are never held across a suspension point").
func (s *Store) publish(subs []subscription, event Event) {
	for _, sub := range subs {
		select {
		case sub.ch <- event:
		default:
			if s.logger != nil {
				s.logger.Warn().Str("job_id", event.JobID).Msg("subscriber channel full, dropping update")
			}
		}
	}
}

// GetJobStatus returns a point-in-time snapshot, optionally including
// derived stats.
func (s *Store) GetJobStatus(jobID string, includeStats bool) (model.JobStatusResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return model.JobStatusResponse{}, fmt.Errorf("%w: %s", model.ErrJobNotFound, jobID)
	}
	return j.snapshot(includeStats), nil
}

// Unsubscribe drops a subscription and closes its channel.
type Unsubscribe func()

// Subscribe registers handler-less push delivery for one job's updates;
// the caller receives a channel instead of a callback so it can select
// against it alongside its own cancellation (spec §4.1 "handler invoked
// on a dedicated event channel, never inline with the mutator").
func (s *Store) Subscribe(jobID string, bufferSize int) (<-chan Event, Unsubscribe) {
	return s.subscribe(jobID, bufferSize, false)
}

// SubscribeAll registers for every job's updates (the "any job" channel, spec §4.4).
func (s *Store) SubscribeAll(bufferSize int) (<-chan Event, Unsubscribe) {
	return s.subscribe("", bufferSize, true)
}

func (s *Store) subscribe(jobID string, bufferSize int, broadcastAll bool) (<-chan Event, Unsubscribe) {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	ch := make(chan Event, bufferSize)

	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	sub := subscription{id: id, ch: ch}
	if broadcastAll {
		s.broadcast = append(s.broadcast, sub)
	} else {
		s.perJob[jobID] = append(s.perJob[jobID], sub)
	}
	s.mu.Unlock()

	unsub := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if broadcastAll {
			s.broadcast = removeSub(s.broadcast, id)
		} else {
			s.perJob[jobID] = removeSub(s.perJob[jobID], id)
		}
		close(ch)
	}
	return ch, unsub
}

func removeSub(subs []subscription, id uint64) []subscription {
	out := subs[:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}
