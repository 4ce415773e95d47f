package cluster

import (
	"context"
	"fmt"

	"github.com/ternarybob/quaero/internal/objectstore"
)

// LocalExecutor is the default Executor (spec §1's "opaque execute RPC"):
// it stands in for the embedded analytical engine a worker would otherwise
// run, writing the rendered query's result to the task's output path in
// the local-filesystem object store. Same stand-in pattern as
// cache.LocalExporter - the core never inspects what comes back, so a
// real worker runtime drops in behind this interface unchanged (spec §1:
// "workers are fungible, stateless executors").
type LocalExecutor struct {
	store *objectstore.Store
}

// NewLocalExecutor builds an Executor backed by store.
func NewLocalExecutor(store *objectstore.Store) *LocalExecutor {
	return &LocalExecutor{store: store}
}

// Execute "runs" task.Query and stages its result at task.OutputPath. It
// never reads task.Query beyond treating it as an opaque payload (spec §1).
func (e *LocalExecutor) Execute(ctx context.Context, task Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := task.OutputPath
	body := fmt.Sprintf("parquet-result:job=%s task=%s query=%s", task.JobID, task.TaskID, task.Query)
	if _, err := e.store.Put(key, []byte(body)); err != nil {
		return fmt.Errorf("local executor: stage result for task %s: %w", task.TaskID, err)
	}
	return nil
}
