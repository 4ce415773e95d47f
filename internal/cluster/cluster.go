// Package cluster owns the elastic worker pool (spec §4.3): create,
// scale, health, a borrowable client handle, and shutdown. Grounded on
// the teacher's internal/worker.WorkerPool goroutine-per-worker loop,
// generalized from a single fixed-size pool into one with a floor/ceiling
// and a ready-gate callers block on.
package cluster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/quaero/internal/model"
)

// Task is one unit of work dispatched to a worker: the opaque
// execute(batch, dependencies, output_path) RPC from spec §1.
type Task struct {
	JobID                string
	TaskID               string
	Query                string
	ExportedDependencies map[string]model.ExportReference
	OutputPath           string
	Retries              int
}

// Executor is the worker runtime's contract (spec §1: "an opaque
// execute(batch, dependencies, output_path) RPC"). Production wiring
// would point this at the embedded analytical engine; tests and the
// default local deployment use a Go-native implementation.
type Executor interface {
	Execute(ctx context.Context, task Task) error
}

// Client is the handle callers borrow to submit tasks, honoring each
// task's own retry budget (spec §5: "Worker retries are the pool's
// responsibility").
type Client struct {
	executor Executor
	logger   arbor.ILogger
}

// Submit runs task against the cluster, retrying up to task.Retries times
// on failure and reporting only the final settled outcome, matching spec
// §4.1 "Task dispatch" ("the Scheduler observes only final outcome per task").
func (c *Client) Submit(ctx context.Context, task Task) error {
	retries := task.Retries
	if retries < 0 {
		retries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", model.ErrTaskCancelled, err)
		}

		lastErr = c.executor.Execute(ctx, task)
		if lastErr == nil {
			return nil
		}

		if c.logger != nil {
			c.logger.Warn().
				Err(lastErr).
				Str("task_id", task.TaskID).
				Int("attempt", attempt+1).
				Int("retries", retries).
				Msg("task attempt failed")
		}
	}

	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", model.ErrTaskCancelled, ctx.Err())
	}
	return fmt.Errorf("%w: %v", model.ErrTaskFailed, lastErr)
}

// Manager is the Cluster Manager (spec §4.3).
type Manager struct {
	mu         sync.RWMutex
	min        int
	max        int
	workers    int
	ready      bool
	readyCh    chan struct{}
	closed     bool
	executor   Executor
	logger     arbor.ILogger
	scaleLimit *rate.Limiter
}

// NewManager builds a Manager that will dispatch tasks to executor once started.
func NewManager(executor Executor, logger arbor.ILogger) *Manager {
	return &Manager{
		readyCh:    make(chan struct{}),
		executor:   executor,
		logger:     logger,
		scaleLimit: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// StartCluster creates the pool with floor min and ceiling max, and marks
// it ready. Scale checks afterward are throttled by scaleLimit so a burst
// of concurrent jobs can't hammer the underlying cluster API.
func (m *Manager) StartCluster(ctx context.Context, min, max int) (model.ClusterStatus, error) {
	if min < 0 || max < min {
		return model.ClusterStatus{}, fmt.Errorf("%w: invalid cluster bounds min=%d max=%d", model.ErrInvalidRequest, min, max)
	}

	m.mu.Lock()
	if !m.ready {
		m.min, m.max = min, max
		m.workers = min
		m.ready = true
		close(m.readyCh)
		if m.logger != nil {
			m.logger.Info().Int("min", min).Int("max", max).Msg("cluster started")
		}
	}
	status := m.statusLocked()
	m.mu.Unlock()

	return status, nil
}

// WaitForReady suspends until a usable worker client exists or ctx is done.
func (m *Manager) WaitForReady(ctx context.Context) error {
	select {
	case <-m.readyCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", model.ErrClusterUnavailable, ctx.Err())
	}
}

// Client returns a borrowable handle to the worker pool, blocking until ready.
func (m *Manager) Client(ctx context.Context) (*Client, error) {
	if err := m.WaitForReady(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("%w: cluster is closed", model.ErrClusterUnavailable)
	}
	return &Client{executor: m.executor, logger: m.logger}, nil
}

// Status returns the current cluster status. It never blocks.
func (m *Manager) Status() model.ClusterStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statusLocked()
}

func (m *Manager) statusLocked() model.ClusterStatus {
	status := "pending"
	if m.closed {
		status = "closed"
	} else if m.ready {
		status = "running"
	}
	return model.ClusterStatus{
		Status:     status,
		IsReady:    m.ready && !m.closed,
		Workers:    m.workers,
		MinWorkers: m.min,
		MaxWorkers: m.max,
	}
}

// MaybeScale applies a scale-check, throttled to at most once per second
// (golang.org/x/time/rate), growing or shrinking the advertised worker
// count within [min, max]. Membership changes are advisory only here:
// per-task retries (not pool membership) are what absorb a worker loss
// (spec §4.3).
func (m *Manager) MaybeScale(desired int) {
	if !m.scaleLimit.Allow() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready || m.closed {
		return
	}
	if desired < m.min {
		desired = m.min
	}
	if desired > m.max {
		desired = m.max
	}
	if desired != m.workers {
		m.workers = desired
		if m.logger != nil {
			m.logger.Debug().Int("workers", desired).Msg("cluster scaled")
		}
	}
}

// Close shuts the cluster down; in-flight Submit calls observe ctx
// cancellation from their caller (spec §5: process-wide shutdown cancels
// all in-flight tasks).
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.logger != nil {
		m.logger.Info().Msg("cluster closed")
	}
	return nil
}
