// Package badgerwarehouse is the default local warehouse backend: it
// promotes a staged export into an embedded github.com/dgraph-io/badger/v4
// store indexed with github.com/timshannon/badgerhold/v4, standing in for
// a remote analytical warehouse (spec §4.5). Grounded on the teacher's use
// of badger/badgerhold as its default embedded store (see go.mod; the
// teacher itself never opens badgerhold directly, so the indexing shape
// here follows badgerhold's own documented struct-tag conventions).
package badgerwarehouse

import (
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/quaero/internal/importadapter"
	"github.com/ternarybob/quaero/internal/model"
)

// record is the promoted form of one ExportReference, as stored in badgerhold.
type record struct {
	TableFQN   string `badgerholdKey:"TableFQN"`
	Type       string
	TableName  string
	URI        string
	ImportedAt time.Time
}

// Warehouse is an importadapter.Adapter backed by an embedded badger store.
type Warehouse struct {
	store *badgerhold.Store
}

// Open opens (creating if necessary) a badger-backed warehouse at dir.
func Open(dir string) (*Warehouse, error) {
	opts := badgerhold.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	opts.Options = opts.Options.WithLogger(nil)

	store, err := badgerhold.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerwarehouse: open %s: %w", dir, err)
	}
	return &Warehouse{store: store}, nil
}

// Close releases the underlying badger store.
func (w *Warehouse) Close() error {
	return w.store.Close()
}

var _ importadapter.Adapter = (*Warehouse)(nil)

// TranslateReference computes the final warehouse-native reference for a
// staged export, without writing anything (spec §4.5 "pure and deterministic").
func (w *Warehouse) TranslateReference(staged model.ExportReference) (model.ExportReference, error) {
	final := staged
	final.Type = model.ExportTypeWarehouseNative
	final.Columns = model.ColumnsDefinition{
		Columns: staged.Columns.ColumnsAs("duckdb"),
		Dialect: "duckdb",
	}
	final.Payload = map[string]string{"key": final.TableFQN()}
	return final, nil
}

// ImportReference promotes staged into the warehouse at final's location.
// Upserting by TableFQN makes repeated calls with the same arguments
// idempotent (spec §4.5).
func (w *Warehouse) ImportReference(staged, final model.ExportReference) error {
	rec := record{
		TableFQN:   final.TableFQN(),
		Type:       string(staged.Type),
		TableName:  staged.TableName,
		URI:        staged.Payload["uri"],
		ImportedAt: time.Now(),
	}
	if err := w.store.Upsert(rec.TableFQN, rec); err != nil {
		return fmt.Errorf("%w: badgerwarehouse upsert %s: %v", model.ErrImportFailed, rec.TableFQN, err)
	}
	return nil
}

// Lookup returns the previously-imported record for a table FQN, used by
// tests and diagnostics to confirm a promotion took effect.
func (w *Warehouse) Lookup(tableFQN string) (model.ExportReference, error) {
	var rec record
	if err := w.store.Get(tableFQN, &rec); err != nil {
		if err == badger.ErrKeyNotFound {
			return model.ExportReference{}, fmt.Errorf("%w: %s", model.ErrImportFailed, tableFQN)
		}
		return model.ExportReference{}, err
	}
	return model.ExportReference{
		Type:      model.ExportType(rec.Type),
		TableName: rec.TableName,
		Payload:   map[string]string{"uri": rec.URI},
	}, nil
}
