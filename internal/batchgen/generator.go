// Package batchgen turns a submitted job into the ordered, non-restartable
// stream of rendered per-batch queries described in spec §4.1 "Batch
// generation". Grounded on the lazy async generator in
// metrics_tools/compute/service.py:generate_query_batches, reworked as an
// unbuffered Go channel instead of a Python async generator, so each batch
// is rendered only once the consumer is ready to receive it.
package batchgen

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/quaero/internal/model"
	"github.com/ternarybob/quaero/internal/render"
)

// Batch is one rendered query for a contiguous sub-window of the job.
type Batch struct {
	Index int
	Query string
	Start time.Time
	End   time.Time
}

// Generate walks [start, end] forward in batchSizeDays-day windows and
// sends one rendered Batch per window on the returned channel, in
// ascending time order. The last window may be shorter than batchSizeDays.
// The channel is closed when the window is exhausted or ctx is cancelled.
//
// exportedDependentTables must already be the logical-name -> exported
// reference table-name map (the caller is responsible for resolving and
// inverting the cache's actual-name keys first, see scheduler.resolveDependencies).
func Generate(
	ctx context.Context,
	renderer render.Renderer,
	req model.SubmitRequest,
	exportedDependentTables map[string]string,
) (<-chan Batch, <-chan error) {
	out := make(chan Batch)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		if req.End.Before(req.Start) {
			return
		}

		depBindings := render.DependentTableBindings(exportedDependentTables)
		index := 0
		windowStart := req.Start

		for !windowStart.After(req.End) {
			if ctx.Err() != nil {
				return
			}

			windowEnd := windowStart.AddDate(0, 0, req.BatchSizeDays-1)
			if windowEnd.After(req.End) {
				windowEnd = req.End
			}

			bindings := append(render.WindowBindings(windowStart, windowEnd), depBindings...)
			query, err := renderer.Render(req.QueryString, bindings)
			if err != nil {
				select {
				case errs <- fmt.Errorf("render batch %d: %w", index, err):
				case <-ctx.Done():
				}
				return
			}

			batch := Batch{Index: index, Query: query, Start: windowStart, End: windowEnd}
			select {
			case out <- batch:
			case <-ctx.Done():
				return
			}

			index++
			windowStart = windowEnd.AddDate(0, 0, 1)
		}
	}()

	return out, errs
}
