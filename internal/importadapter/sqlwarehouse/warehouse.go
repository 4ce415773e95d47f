// Package sqlwarehouse is the alternate warehouse backend: it promotes a
// staged export into a table in a database/sql database, using
// modernc.org/sqlite as the default driver. Grounded on the teacher's
// internal/storage/sqlite connection package, which opens modernc.org/sqlite
// under the driver name "sqlite" (not "sqlite3") the same way.
package sqlwarehouse

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ternarybob/quaero/internal/importadapter"
	"github.com/ternarybob/quaero/internal/model"
)

const createTableStmt = `
CREATE TABLE IF NOT EXISTS warehouse_exports (
	table_fqn   TEXT PRIMARY KEY,
	export_type TEXT NOT NULL,
	table_name  TEXT NOT NULL,
	uri         TEXT NOT NULL,
	imported_at TEXT NOT NULL
)`

// Warehouse is an importadapter.Adapter backed by a database/sql database.
type Warehouse struct {
	db *sql.DB
}

// Open opens (creating if necessary) a sqlite-backed warehouse at path.
func Open(path string) (*Warehouse, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlwarehouse: open %s: %w", path, err)
	}
	if _, err := db.Exec(createTableStmt); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlwarehouse: create schema: %w", err)
	}
	return &Warehouse{db: db}, nil
}

// Close releases the underlying database handle.
func (w *Warehouse) Close() error {
	return w.db.Close()
}

var _ importadapter.Adapter = (*Warehouse)(nil)

// TranslateReference computes the final warehouse-native reference for a
// staged export, without touching the database (spec §4.5).
func (w *Warehouse) TranslateReference(staged model.ExportReference) (model.ExportReference, error) {
	final := staged
	final.Type = model.ExportTypeWarehouseNative
	final.Columns = model.ColumnsDefinition{
		Columns: staged.Columns.ColumnsAs("sqlite"),
		Dialect: "sqlite",
	}
	final.Payload = map[string]string{"table_fqn": final.TableFQN()}
	return final, nil
}

// ImportReference promotes staged into the warehouse at final's location.
// The REPLACE INTO keeps repeated calls with the same arguments idempotent
// (spec §4.5 "idempotent overwrite").
func (w *Warehouse) ImportReference(staged, final model.ExportReference) error {
	_, err := w.db.Exec(
		`REPLACE INTO warehouse_exports (table_fqn, export_type, table_name, uri, imported_at) VALUES (?, ?, ?, ?, ?)`,
		final.TableFQN(), string(staged.Type), staged.TableName, staged.Payload["uri"], time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("%w: sqlwarehouse replace %s: %v", model.ErrImportFailed, final.TableFQN(), err)
	}
	return nil
}

// Lookup returns the previously-imported record for a table FQN.
func (w *Warehouse) Lookup(tableFQN string) (model.ExportReference, error) {
	var exportType, tableName, uri string
	row := w.db.QueryRow(`SELECT export_type, table_name, uri FROM warehouse_exports WHERE table_fqn = ?`, tableFQN)
	if err := row.Scan(&exportType, &tableName, &uri); err != nil {
		if err == sql.ErrNoRows {
			return model.ExportReference{}, fmt.Errorf("%w: %s", model.ErrImportFailed, tableFQN)
		}
		return model.ExportReference{}, err
	}
	return model.ExportReference{
		Type:      model.ExportType(exportType),
		TableName: tableName,
		Payload:   map[string]string{"uri": uri},
	}, nil
}
