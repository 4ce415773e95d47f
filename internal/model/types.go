// Package model holds the wire and in-memory data types shared by every
// component of the metrics calculation service: export references, the
// job/task state machine, and the submit request/response shapes.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// structValidator is a single shared validator instance, matching the
// teacher's convention of constructing go-playground/validator once
// rather than per-call.
var structValidator = validator.New(validator.WithRequiredStructEnabled())

// ExportType identifies where a staged dataset physically lives.
type ExportType string

const (
	ExportTypeObjectStore     ExportType = "object-store"
	ExportTypeWarehouseNative ExportType = "warehouse-native"
	ExportTypeLocalFS         ExportType = "local-filesystem"
)

// columnDialectTypes maps a handful of common source-dialect type
// spellings to their equivalent spelling in other dialects. This is
// intentionally not a full SQL type algebra (see SPEC_FULL.md) - it only
// needs to keep column metadata self-consistent as it moves between the
// duckdb-style source dialect and the warehouse dialects this service
// targets.
var columnDialectTypes = map[string]map[string]string{
	"BOOLEAN": {"duckdb": "BOOLEAN", "trino": "BOOLEAN", "sqlite": "INTEGER"},
	"BIGINT":  {"duckdb": "BIGINT", "trino": "BIGINT", "sqlite": "INTEGER"},
	"INTEGER": {"duckdb": "INTEGER", "trino": "INTEGER", "sqlite": "INTEGER"},
	"DOUBLE":  {"duckdb": "DOUBLE", "trino": "DOUBLE", "sqlite": "REAL"},
	"VARCHAR": {"duckdb": "VARCHAR", "trino": "VARCHAR", "sqlite": "TEXT"},
	"TEXT":    {"duckdb": "VARCHAR", "trino": "VARCHAR", "sqlite": "TEXT"},
	"DATE":    {"duckdb": "DATE", "trino": "DATE", "sqlite": "TEXT"},
	"TIMESTAMP": {"duckdb": "TIMESTAMP", "trino": "TIMESTAMP", "sqlite": "TEXT"},
}

// Column is an ordered (name, type-in-source-dialect) pair.
type Column struct {
	Name string `validate:"required"`
	Type string `validate:"required"`
}

// ColumnsDefinition is an ordered sequence of columns plus the dialect
// their types are expressed in. Ordering is significant and preserved
// across every operation in this package.
type ColumnsDefinition struct {
	Columns []Column
	Dialect string
}

// ColumnsAs translates every column's type into targetDialect, preserving
// order. Types with no known mapping pass through unchanged - this mirrors
// the original implementation's reliance on a fixed, small type map rather
// than a general dialect parser (see SPEC_FULL.md SUPPLEMENTED FEATURES).
func (c ColumnsDefinition) ColumnsAs(targetDialect string) []Column {
	out := make([]Column, len(c.Columns))
	for i, col := range c.Columns {
		out[i] = col
		if mapping, ok := columnDialectTypes[strings.ToUpper(col.Type)]; ok {
			if translated, ok := mapping[strings.ToLower(targetDialect)]; ok {
				out[i].Type = translated
			}
		}
	}
	return out
}

// ExportReference is an immutable descriptor for a staged dataset.
type ExportReference struct {
	Type        ExportType
	CatalogName string
	SchemaName  string
	TableName   string
	Columns     ColumnsDefinition
	// Payload carries the type-specific locator, e.g. {"uri": "gs://bucket/prefix/*.parquet"}.
	Payload map[string]string
}

// TableFQN returns the fully-qualified name, skipping empty qualifiers.
func (e ExportReference) TableFQN() string {
	parts := make([]string, 0, 3)
	if e.CatalogName != "" {
		parts = append(parts, e.CatalogName)
	}
	if e.SchemaName != "" {
		parts = append(parts, e.SchemaName)
	}
	parts = append(parts, e.TableName)
	return strings.Join(parts, ".")
}

// MetricRef is the opaque entity-type/window/unit descriptor echoed to
// the worker runtime. The core never interprets it.
type MetricRef struct {
	EntityType     string
	Window         *int
	Unit           string
	TimeAggregation string
}

// SubmitRequest is the wire shape of a submit-job request (spec §6).
type SubmitRequest struct {
	QueryString   string `validate:"required"`
	SourceDialect string `validate:"required"`
	Start         time.Time
	End           time.Time
	BatchSizeDays int          `validate:"gt=0"`
	Columns       []Column     `validate:"required,min=1,dive"`
	Ref           MetricRef
	Locals        map[string]any
	// DependentTablesMap maps a job's logical reference name to the
	// actual (system-generated) warehouse table name.
	DependentTablesMap map[string]string `validate:"omitempty,dive,keys,required,endkeys,required"`
	Retries            int
	ExecutionTime      time.Time
}

// ColumnsDef builds the ColumnsDefinition implied by this request.
func (r SubmitRequest) ColumnsDef() ColumnsDefinition {
	return ColumnsDefinition{Columns: r.Columns, Dialect: r.SourceDialect}
}

// BatchCount returns ceil((end-start+1 day) / batch-size) in days, or 0
// when the window is empty/inverted (spec §8 boundary behavior).
func (r SubmitRequest) BatchCount() int {
	if r.End.Before(r.Start) {
		return 0
	}
	totalDays := int(r.End.Sub(r.Start).Hours()/24) + 1
	if r.BatchSizeDays <= 0 {
		return 0
	}
	count := totalDays / r.BatchSizeDays
	if totalDays%r.BatchSizeDays != 0 {
		count++
	}
	return count
}

// Validate applies the structural checks spec §6 implies for a
// submit-job request, independent of anything the cluster or cache need
// to resolve at runtime. Struct tags carry the rules; this just wraps
// go-playground/validator's failure into the service's own error kind.
func (r SubmitRequest) Validate() error {
	if strings.TrimSpace(r.QueryString) == "" {
		return fmt.Errorf("%w: query-string is empty", ErrInvalidRequest)
	}
	if err := structValidator.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// SubmitResponse is returned synchronously from SubmitJob.
type SubmitResponse struct {
	JobID           string
	ExportReference ExportReference
}

// TaskStatus is the lifecycle of a single batch task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Task is one batch's execution record.
type Task struct {
	TaskID        string
	BatchIndex    int
	OutputPath    string
	Status        TaskStatus
	LastException string
}

// JobStatus is the lifecycle of a job as a whole.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// UpdateScope distinguishes job-level from task-level update events.
type UpdateScope string

const (
	ScopeJob  UpdateScope = "job"
	ScopeTask UpdateScope = "task"
)

// JobUpdate is one entry in a job's append-only updates-log.
type JobUpdate struct {
	Time   time.Time
	Scope  UpdateScope
	Status JobStatus // meaningful for ScopeJob; mirrors parent job status for ScopeTask
	// Task fields, set only when Scope == ScopeTask.
	TaskID        string
	TaskStatus    TaskStatus
	TaskException string
	// Exception carries the job-scope failure cause, set only when Scope == ScopeJob and Status == JobFailed.
	Exception string
}

// Progress reports completed/total task counts.
type Progress struct {
	Completed int
	Total     int
}

// JobStatusResponse is the snapshot returned by JobStatus and pushed to subscribers.
type JobStatusResponse struct {
	JobID     string
	CreatedAt time.Time
	UpdatedAt time.Time
	Status    JobStatus
	Progress  Progress
	Cause     string
	Stats     map[string]float64
}

// ClusterStatus reports the elastic worker pool's state.
type ClusterStatus struct {
	Status       string
	IsReady      bool
	Workers      int
	MinWorkers   int
	MaxWorkers   int
}
