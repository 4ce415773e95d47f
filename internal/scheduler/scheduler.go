// Package scheduler implements the Scheduler (spec §4.1): the component
// that accepts a submit-job request, resolves its dependencies through the
// Export Cache, fans the job out into per-batch tasks on the Cluster
// Manager, and promotes the assembled result through the Import Adapter.
//
// Grounded on metrics_tools/compute/service.py's MetricsCalculationService
// (submit_job/_handle_query_job_submit_request/_batch_query_to_scheduler/
// resolve_dependent_tables/_notify_job_*), translated from asyncio tasks
// and an AsyncIOEventEmitter into goroutines and the jobstore package's
// channel-based pub/sub.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/quaero/internal/batchgen"
	"github.com/ternarybob/quaero/internal/cache"
	"github.com/ternarybob/quaero/internal/cluster"
	"github.com/ternarybob/quaero/internal/common"
	"github.com/ternarybob/quaero/internal/importadapter"
	"github.com/ternarybob/quaero/internal/jobstore"
	"github.com/ternarybob/quaero/internal/model"
	"github.com/ternarybob/quaero/internal/objectstore"
	"github.com/ternarybob/quaero/internal/render"
)

// defaultTaskRetries is how many times the Cluster Manager retries a single
// batch task before the Scheduler treats it as settled-failed (spec §4.1).
const defaultTaskRetries = 3

// Scheduler is the central orchestrator described in spec §4.1.
type Scheduler struct {
	cache            *cache.Cache
	clusterMgr       *cluster.Manager
	jobs             *jobstore.Store
	importAdapter    importadapter.Adapter
	objectStore      *objectstore.Store
	renderer         render.Renderer
	resultPathPrefix string
	logger           arbor.ILogger

	statsCron *cron.Cron
}

// New builds a Scheduler wiring together every collaborator spec §4.1 names.
func New(
	cacheMgr *cache.Cache,
	clusterMgr *cluster.Manager,
	jobs *jobstore.Store,
	importAdapter importadapter.Adapter,
	objectStore *objectstore.Store,
	resultPathPrefix string,
	logger arbor.ILogger,
) *Scheduler {
	return &Scheduler{
		cache:            cacheMgr,
		clusterMgr:       clusterMgr,
		jobs:             jobs,
		importAdapter:    importAdapter,
		objectStore:      objectStore,
		renderer:         render.NewTokenRenderer(),
		resultPathPrefix: resultPathPrefix,
		logger:           logger,
	}
}

// StartCluster delegates to the Cluster Manager (spec §4.1/§4.3).
func (s *Scheduler) StartCluster(ctx context.Context, min, max int) (model.ClusterStatus, error) {
	if s.logger != nil {
		s.logger.Debug().Msg("starting cluster")
	}
	return s.clusterMgr.StartCluster(ctx, min, max)
}

// ClusterStatus reports the Cluster Manager's current status.
func (s *Scheduler) ClusterStatus() model.ClusterStatus {
	return s.clusterMgr.Status()
}

// Close shuts down the cluster and the stats reporter, if running. Export
// Cache exports already in flight run to completion; they are not owned
// by the cluster (spec §4.2 vs §4.3).
func (s *Scheduler) Close() error {
	s.StopStatsReporter()
	return s.clusterMgr.Close()
}

// StartStatsReporter schedules a periodic cluster-health log line at the
// given cron spec (e.g. "@every 30s"). Calling it a second time replaces
// the previous schedule.
func (s *Scheduler) StartStatsReporter(spec string) error {
	s.StopStatsReporter()

	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		status := s.clusterMgr.Status()
		if s.logger != nil {
			s.logger.Info().
				Str("cluster_status", status.Status).
				Bool("cluster_ready", status.IsReady).
				Int("workers", status.Workers).
				Msg("periodic cluster health report")
		}
	})
	if err != nil {
		return fmt.Errorf("scheduler: invalid stats reporter schedule %q: %w", spec, err)
	}

	c.Start()
	s.statsCron = c
	return nil
}

// StopStatsReporter cancels the periodic health report, if one is running.
func (s *Scheduler) StopStatsReporter() {
	if s.statsCron != nil {
		s.statsCron.Stop()
		s.statsCron = nil
	}
}

// SubmitJob accepts a job, assigns it a fresh id and result path, and
// dispatches orchestration to a background goroutine, returning as soon as
// the job is recorded pending (spec §4.1 step 1-3). Resubmitting the same
// logical request is always a fresh job id and a fresh result path, so
// nothing from a prior attempt is ever partially overwritten (spec §4.1
// "idempotent overwrite via fresh identity").
func (s *Scheduler) SubmitJob(ctx context.Context, req model.SubmitRequest) (model.SubmitResponse, error) {
	if err := req.Validate(); err != nil {
		return model.SubmitResponse{}, err
	}

	jobID := common.NewJobID()
	if s.logger != nil {
		s.logger.Debug().Str("job_id", jobID).Msg("submitting job")
	}

	resultPathBase := path.Join(
		s.resultPathPrefix,
		req.ExecutionTime.Format("2006/01/02/15"),
		jobID,
	)
	resultGlob := s.objectStore.URI(path.Join(resultPathBase, "*.parquet"))

	calculationExport := model.ExportReference{
		Type:      model.ExportTypeObjectStore,
		TableName: jobID,
		Columns:   req.ColumnsDef(),
		Payload:   map[string]string{"uri": resultGlob},
	}

	finalExport, err := s.importAdapter.TranslateReference(calculationExport)
	if err != nil {
		return model.SubmitResponse{}, fmt.Errorf("%w: translate reference: %v", model.ErrInvalidRequest, err)
	}

	s.jobs.CreateJob(jobID, req)

	common.SafeGo(s.logger, "scheduler.run", func() {
		s.run(jobID, resultPathBase, req, calculationExport, finalExport)
	})

	return model.SubmitResponse{JobID: jobID, ExportReference: finalExport}, nil
}

// JobStatus returns a point-in-time snapshot of a job, matching
// get_job_status's include_stats flag.
func (s *Scheduler) JobStatus(jobID string, includeStats bool) (model.JobStatusResponse, error) {
	return s.jobs.GetJobStatus(jobID, includeStats)
}

// SubscribeJobUpdates pushes every update for one job to the returned
// channel until Unsubscribe is called, mirroring listen_for_job_updates.
func (s *Scheduler) SubscribeJobUpdates(jobID string) (<-chan jobstore.Event, jobstore.Unsubscribe) {
	return s.jobs.Subscribe(jobID, 32)
}

// SubscribeAllJobUpdates pushes every job's updates to the returned channel.
func (s *Scheduler) SubscribeAllJobUpdates() (<-chan jobstore.Event, jobstore.Unsubscribe) {
	return s.jobs.SubscribeAll(32)
}

// InspectExportedTableReferences exposes the Export Cache's ready entries,
// mirroring inspect_exported_table_references (spec §4.2, test/diagnostic use).
func (s *Scheduler) InspectExportedTableReferences() map[string]model.ExportReference {
	return s.cache.InspectExportTableReferences()
}

// AddExistingExportedTableReferences seeds the Export Cache, mirroring
// add_existing_exported_table_references (spec §4.2, test use).
func (s *Scheduler) AddExistingExportedTableReferences(refs map[string]model.ExportReference) {
	s.cache.AddExportTableReferences(refs)
}

// run performs the full job lifecycle in the background: wait for the
// cluster, resolve dependencies, generate and dispatch batches, wait for
// every task, and promote the result. Any step's failure transitions the
// job to failed and stops (spec §4.1 "Job failure handling").
func (s *Scheduler) run(
	jobID string,
	resultPathBase string,
	req model.SubmitRequest,
	calculationExport model.ExportReference,
	finalExport model.ExportReference,
) {
	ctx := context.Background()

	if s.logger != nil {
		s.logger.Debug().Str("job_id", jobID).Msg("waiting for cluster to be ready")
	}
	if err := s.clusterMgr.WaitForReady(ctx); err != nil {
		s.failJob(jobID, false, err)
		return
	}

	if s.logger != nil {
		s.logger.Debug().Str("job_id", jobID).Msg("waiting for dependencies to be exported")
	}
	exportedDependentTables, err := s.resolveDependencies(ctx, req)
	if err != nil {
		if s.logger != nil {
			s.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to export dependencies")
		}
		s.failJob(jobID, false, err)
		return
	}

	exportedDependentTableNames := make(map[string]string, len(exportedDependentTables))
	for logical, ref := range exportedDependentTables {
		exportedDependentTableNames[logical] = ref.TableName
	}

	client, err := s.clusterMgr.Client(ctx)
	if err != nil {
		s.failJob(jobID, false, err)
		return
	}

	batches, renderErrs := batchgen.Generate(ctx, s.renderer, req, exportedDependentTableNames)

	type outcome struct {
		taskID string
		err    error
	}
	results := make(chan outcome)
	total := 0
	started := false

	for batch := range batches {
		if !started {
			started = true
			if err := s.jobs.TransitionJob(jobID, model.JobRunning, ""); err != nil && s.logger != nil {
				s.logger.Warn().Err(err).Str("job_id", jobID).Msg("failed to transition job to running")
			}
		}

		taskID := fmt.Sprintf("%s-%d", jobID, batch.Index)
		outputPath := path.Join(resultPathBase, fmt.Sprintf("%d.parquet", batch.Index))

		if err := s.jobs.RegisterTask(jobID, model.Task{TaskID: taskID, BatchIndex: batch.Index, OutputPath: outputPath}); err != nil && s.logger != nil {
			s.logger.Warn().Err(err).Str("job_id", jobID).Str("task_id", taskID).Msg("failed to register task")
		}

		total++
		task := cluster.Task{
			JobID:                jobID,
			TaskID:               taskID,
			Query:                batch.Query,
			ExportedDependencies: exportedDependentTables,
			OutputPath:           outputPath,
			Retries:              defaultTaskRetries,
		}

		common.SafeGo(s.logger, "scheduler.submitTask", func() {
			taskErr := client.Submit(ctx, task)
			s.notifyTaskOutcome(jobID, taskID, taskErr)
			results <- outcome{taskID: taskID, err: taskErr}
		})
	}

	if err := <-renderErrs; err != nil {
		s.failJob(jobID, false, err)
		return
	}

	if total != req.BatchCount() && s.logger != nil {
		s.logger.Warn().Str("job_id", jobID).Int("dispatched", total).Int("expected", req.BatchCount()).Msg("batch count mismatch")
	}

	var failures int
	for i := 0; i < total; i++ {
		o := <-results
		if o.err != nil {
			failures++
			if s.logger != nil {
				s.logger.Error().Err(o.err).Str("job_id", jobID).Str("task_id", o.taskID).Msg("task failed with uncaught exception")
			}
		}
	}

	if failures > 0 {
		s.failJob(jobID, false, fmt.Errorf("%w: %d of %d tasks failed", model.ErrTaskFailed, failures, total))
		return
	}

	if s.logger != nil {
		s.logger.Info().Str("job_id", jobID).Msg("importing final result into the warehouse")
	}
	if err := s.importAdapter.ImportReference(calculationExport, finalExport); err != nil {
		s.failJob(jobID, false, fmt.Errorf("%w: %v", model.ErrImportFailed, err))
		return
	}

	if s.logger != nil {
		s.logger.Debug().Str("job_id", jobID).Msg("notifying job completed")
	}
	if err := s.jobs.TransitionJob(jobID, model.JobCompleted, ""); err != nil && s.logger != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("failed to transition job to completed")
	}
}

func (s *Scheduler) notifyTaskOutcome(jobID, taskID string, err error) {
	status := model.TaskSucceeded
	exception := ""
	switch {
	case err == nil:
		status = model.TaskSucceeded
	case isCancelled(err):
		status = model.TaskCancelled
		exception = err.Error()
	default:
		status = model.TaskFailed
		exception = err.Error()
	}
	if updateErr := s.jobs.TransitionTask(jobID, taskID, status, exception); updateErr != nil && s.logger != nil {
		s.logger.Warn().Err(updateErr).Str("job_id", jobID).Str("task_id", taskID).Msg("failed to transition task")
	}
}

func isCancelled(err error) bool {
	return errors.Is(err, model.ErrTaskCancelled)
}

func (s *Scheduler) failJob(jobID string, hasRemainingTasks bool, cause error) {
	_ = hasRemainingTasks // mirrors the source's has_remaining_tasks flag; this port always treats a failure as terminal
	if err := s.jobs.TransitionJob(jobID, model.JobFailed, cause.Error()); err != nil && s.logger != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("failed to transition job to failed")
	}
}

// resolveDependencies inverts the logical-name -> actual-name dependent
// tables map, resolves the actual names through the Export Cache, then
// inverts the result back to logical names (spec §4.1 "Dependency
// resolution"), exactly mirroring resolve_dependent_tables.
func (s *Scheduler) resolveDependencies(ctx context.Context, req model.SubmitRequest) (map[string]model.ExportReference, error) {
	if len(req.DependentTablesMap) == 0 {
		return map[string]model.ExportReference{}, nil
	}

	actualToLogical := make(map[string]string, len(req.DependentTablesMap))
	actualNames := make([]string, 0, len(req.DependentTablesMap))
	for logical, actual := range req.DependentTablesMap {
		actualToLogical[actual] = logical
		actualNames = append(actualNames, actual)
	}

	references, err := s.cache.ResolveExportReferences(ctx, actualNames, req.ExecutionTime)
	if err != nil {
		return nil, err
	}

	out := make(map[string]model.ExportReference, len(references))
	for actual, ref := range references {
		logical, ok := actualToLogical[actual]
		if !ok {
			continue
		}
		out[logical] = ref
	}
	return out, nil
}
