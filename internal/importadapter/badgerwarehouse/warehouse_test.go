package badgerwarehouse

import (
	"testing"

	"github.com/ternarybob/quaero/internal/model"
)

func TestTranslateReference(t *testing.T) {
	w, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer w.Close()

	staged := model.ExportReference{
		Type:      model.ExportTypeObjectStore,
		TableName: "export_abc123",
		Columns: model.ColumnsDefinition{
			Dialect: "duckdb",
			Columns: []model.Column{{Name: "is_active", Type: "BOOLEAN"}},
		},
		Payload: map[string]string{"uri": "gs://bucket/export_abc123/*.parquet"},
	}

	final, err := w.TranslateReference(staged)
	if err != nil {
		t.Fatalf("TranslateReference() error: %v", err)
	}
	if final.Type != model.ExportTypeWarehouseNative {
		t.Errorf("expected ExportTypeWarehouseNative, got %v", final.Type)
	}
	if final.Payload["key"] != final.TableFQN() {
		t.Errorf("expected payload key to be the table FQN, got %q", final.Payload["key"])
	}
}

func TestImportReferenceIsIdempotent(t *testing.T) {
	w, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer w.Close()

	staged := model.ExportReference{
		Type:      model.ExportTypeObjectStore,
		TableName: "export_abc123",
		Payload:   map[string]string{"uri": "gs://bucket/export_abc123/*.parquet"},
	}
	final, err := w.TranslateReference(staged)
	if err != nil {
		t.Fatalf("TranslateReference() error: %v", err)
	}

	if err := w.ImportReference(staged, final); err != nil {
		t.Fatalf("ImportReference() error (1st call): %v", err)
	}
	if err := w.ImportReference(staged, final); err != nil {
		t.Fatalf("ImportReference() error (2nd call): %v", err)
	}

	got, err := w.Lookup(final.TableFQN())
	if err != nil {
		t.Fatalf("Lookup() error: %v", err)
	}
	if got.TableName != staged.TableName {
		t.Errorf("Lookup() table name = %q, want %q", got.TableName, staged.TableName)
	}
}
