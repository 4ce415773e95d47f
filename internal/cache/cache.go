// Package cache implements the dependency export cache (spec §4.2): a
// deduplicated, single-flight map from warehouse table name to a staged
// export reference. Grounded on metrics_tools/compute/service.py's
// resolve_dependent_tables/cache_manager usage and on the teacher's
// mutex-guarded in-memory state pattern (internal/jobs/state).
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/quaero/internal/model"
	"github.com/ternarybob/quaero/internal/objectstore"
)

type slotState string

const (
	slotExporting slotState = "exporting"
	slotReady     slotState = "ready"
	slotFailed    slotState = "failed"
)

type slot struct {
	state slotState
	ref   model.ExportReference
	err   error
	done  chan struct{} // closed when state transitions out of exporting
}

// Exporter materializes a warehouse table to a fresh object-store prefix.
// It is the one opaque collaborator the cache does not implement itself -
// in this repository it is backed by a local parquet-manifest writer
// (see NewLocalExporter) that stands in for the real warehouse client.
type Exporter interface {
	Export(ctx context.Context, tableName string, creationTime time.Time) (model.ExportReference, error)
}

// Cache is the export cache described in spec §4.2. Exactly one lock
// guards the slot map (spec §5 locking discipline); the lock is never
// held across the suspension point of actually running an export.
type Cache struct {
	mu       sync.Mutex
	slots    map[string]*slot
	exporter Exporter
	logger   arbor.ILogger
}

// New constructs an empty Cache backed by exporter.
func New(exporter Exporter, logger arbor.ILogger) *Cache {
	return &Cache{
		slots:    make(map[string]*slot),
		exporter: exporter,
		logger:   logger,
	}
}

// ResolveExportReferences resolves every requested table name to its
// export reference, exporting at most once per name even under
// concurrent callers (spec §8 single-flight invariant).
func (c *Cache) ResolveExportReferences(ctx context.Context, tableNames []string, executionTime time.Time) (map[string]model.ExportReference, error) {
	waiters := make(map[string]*slot, len(tableNames))

	c.mu.Lock()
	for _, name := range tableNames {
		s, exists := c.slots[name]
		if !exists {
			s = &slot{state: slotExporting, done: make(chan struct{})}
			c.slots[name] = s
			c.startExport(name, s, executionTime)
		}
		waiters[name] = s
	}
	c.mu.Unlock()

	out := make(map[string]model.ExportReference, len(tableNames))
	for name, s := range waiters {
		select {
		case <-s.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		c.mu.Lock()
		state, ref, err := s.state, s.ref, s.err
		c.mu.Unlock()

		if state == slotFailed {
			return nil, fmt.Errorf("%w: table %s: %v", model.ErrDependencyExportFailed, name, err)
		}
		out[name] = ref
	}
	return out, nil
}

// startExport launches the export task for a freshly-created slot. Must
// be called with c.mu held; the goroutine itself never holds the lock
// across the call to Export (spec §5: state mutations are not suspension
// points, but the export itself runs unlocked).
func (c *Cache) startExport(name string, s *slot, executionTime time.Time) {
	go func() {
		ref, err := c.exporter.Export(context.Background(), name, executionTime)

		c.mu.Lock()
		if err != nil {
			s.state = slotFailed
			s.err = err
			if c.logger != nil {
				c.logger.Error().Err(err).Str("table", name).Msg("dependency export failed")
			}
		} else {
			s.state = slotReady
			s.ref = ref
			if c.logger != nil {
				c.logger.Info().Str("table", name).Msg("dependency export ready")
			}
		}
		close(s.done)
		c.mu.Unlock()
	}()
}

// AddExportTableReferences is a test hook (spec §4.2) that seeds the
// cache with an already-ready reference, bypassing the exporter.
func (c *Cache) AddExportTableReferences(refs map[string]model.ExportReference) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name, ref := range refs {
		done := make(chan struct{})
		close(done)
		c.slots[name] = &slot{state: slotReady, ref: ref, done: done}
	}
}

// InspectExportTableReferences returns a snapshot of every ready entry.
func (c *Cache) InspectExportTableReferences() map[string]model.ExportReference {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]model.ExportReference)
	for name, s := range c.slots {
		if s.state == slotReady {
			out[name] = s.ref
		}
	}
	return out
}

// LocalExporter is the default Exporter: it writes a one-row parquet-named
// manifest file per table into an object store prefix bucketed by
// (table name, day), so repeated same-day calls reuse the same prefix
// (spec §4.2 "Export task").
type LocalExporter struct {
	store *objectstore.Store
}

// NewLocalExporter builds an Exporter backed by store.
func NewLocalExporter(store *objectstore.Store) *LocalExporter {
	return &LocalExporter{store: store}
}

func (e *LocalExporter) Export(ctx context.Context, tableName string, creationTime time.Time) (model.ExportReference, error) {
	prefix := fmt.Sprintf("exports/%s/%s", creationTime.Format("2006-01-02"), tableName)
	key := prefix + "/data.parquet"

	if _, err := e.store.Put(key, []byte("parquet-export:"+tableName)); err != nil {
		return model.ExportReference{}, err
	}

	uri := e.store.URI(prefix + "/*.parquet")
	return model.ExportReference{
		Type:      model.ExportTypeObjectStore,
		TableName: tableName,
		Columns:   model.ColumnsDefinition{Dialect: "duckdb"},
		Payload:   map[string]string{"uri": uri},
	}, nil
}
