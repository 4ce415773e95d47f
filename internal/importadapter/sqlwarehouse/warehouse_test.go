package sqlwarehouse

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/quaero/internal/model"
)

func TestTranslateReference(t *testing.T) {
	w, err := Open(filepath.Join(t.TempDir(), "warehouse.db"))
	require.NoError(t, err)
	defer w.Close()

	staged := model.ExportReference{
		Type:      model.ExportTypeObjectStore,
		TableName: "export_abc123",
		Columns: model.ColumnsDefinition{
			Dialect: "duckdb",
			Columns: []model.Column{{Name: "is_active", Type: "BOOLEAN"}},
		},
	}

	final, err := w.TranslateReference(staged)
	require.NoError(t, err)
	assert.Equal(t, model.ExportTypeWarehouseNative, final.Type)
	require.Len(t, final.Columns.Columns, 1)
	assert.Equal(t, "INTEGER", final.Columns.Columns[0].Type, "expected BOOLEAN to translate to sqlite INTEGER")
}

func TestImportAndLookup(t *testing.T) {
	w, err := Open(filepath.Join(t.TempDir(), "warehouse.db"))
	require.NoError(t, err)
	defer w.Close()

	staged := model.ExportReference{
		Type:      model.ExportTypeObjectStore,
		TableName: "export_abc123",
		Payload:   map[string]string{"uri": "gs://bucket/export_abc123/*.parquet"},
	}
	final, err := w.TranslateReference(staged)
	require.NoError(t, err)

	err = w.ImportReference(staged, final)
	require.NoError(t, err)

	got, err := w.Lookup(final.TableFQN())
	require.NoError(t, err)
	assert.Equal(t, staged.TableName, got.TableName)
}

func TestLookupMissingReturnsImportFailed(t *testing.T) {
	w, err := Open(filepath.Join(t.TempDir(), "warehouse.db"))
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Lookup("does_not_exist")
	assert.ErrorIs(t, err, model.ErrImportFailed, "expected ErrImportFailed looking up a missing table")
}
