package model

import "errors"

// Sentinel errors for the seven error kinds in spec §7. Components wrap
// these with fmt.Errorf("%w: ...") so callers can still errors.Is/errors.As
// against the kind while getting a specific message.
var (
	// ErrInvalidRequest marks a configuration/request validation failure (kind 1).
	ErrInvalidRequest = errors.New("invalid request")

	// ErrClusterUnavailable marks a cluster that never became ready (kind 2).
	ErrClusterUnavailable = errors.New("cluster unavailable")

	// ErrDependencyExportFailed marks a failed dependency export (kind 3).
	ErrDependencyExportFailed = errors.New("dependency export failed")

	// ErrTaskFailed marks a worker task that exhausted its retries (kind 4).
	ErrTaskFailed = errors.New("task failed")

	// ErrTaskCancelled marks a worker task cancelled by shutdown (kind 5).
	ErrTaskCancelled = errors.New("task cancelled")

	// ErrImportFailed marks a failed final promotion into the warehouse (kind 6).
	ErrImportFailed = errors.New("import failed")

	// ErrJobNotFound marks an unknown job id (kind 7).
	ErrJobNotFound = errors.New("job not found")
)
