package model

import (
	"errors"
	"testing"
	"time"
)

func TestColumnsDefinitionColumnsAs(t *testing.T) {
	def := ColumnsDefinition{
		Dialect: "duckdb",
		Columns: []Column{
			{Name: "id", Type: "BIGINT"},
			{Name: "is_active", Type: "BOOLEAN"},
			{Name: "label", Type: "VARCHAR"},
			{Name: "unmapped", Type: "JSON"},
		},
	}

	got := def.ColumnsAs("sqlite")
	want := []Column{
		{Name: "id", Type: "INTEGER"},
		{Name: "is_active", Type: "INTEGER"},
		{Name: "label", Type: "TEXT"},
		{Name: "unmapped", Type: "JSON"},
	}

	if len(got) != len(want) {
		t.Fatalf("expected %d columns, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("column %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestExportReferenceTableFQN(t *testing.T) {
	tests := []struct {
		name string
		ref  ExportReference
		want string
	}{
		{
			name: "table only",
			ref:  ExportReference{TableName: "events_daily"},
			want: "events_daily",
		},
		{
			name: "schema and table",
			ref:  ExportReference{SchemaName: "metrics", TableName: "events_daily"},
			want: "metrics.events_daily",
		},
		{
			name: "catalog schema and table",
			ref:  ExportReference{CatalogName: "warehouse", SchemaName: "metrics", TableName: "events_daily"},
			want: "warehouse.metrics.events_daily",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.ref.TableFQN(); got != tc.want {
				t.Errorf("TableFQN() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSubmitRequestBatchCount(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		end           time.Time
		batchSizeDays int
		want          int
	}{
		{name: "exact multiple", end: start.AddDate(0, 0, 9), batchSizeDays: 5, want: 2},
		{name: "remainder rounds up", end: start.AddDate(0, 0, 10), batchSizeDays: 5, want: 3},
		{name: "single day", end: start, batchSizeDays: 1, want: 1},
		{name: "inverted window", end: start.AddDate(0, 0, -1), batchSizeDays: 1, want: 0},
		{name: "non-positive batch size", end: start.AddDate(0, 0, 5), batchSizeDays: 0, want: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := SubmitRequest{Start: start, End: tc.end, BatchSizeDays: tc.batchSizeDays}
			if got := req.BatchCount(); got != tc.want {
				t.Errorf("BatchCount() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestSubmitRequestValidate(t *testing.T) {
	valid := SubmitRequest{
		QueryString:   "select 1",
		SourceDialect: "duckdb",
		BatchSizeDays: 1,
		Columns:       []Column{{Name: "id", Type: "BIGINT"}},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid request to pass, got: %v", err)
	}

	tests := []struct {
		name string
		req  SubmitRequest
	}{
		{name: "empty query", req: SubmitRequest{SourceDialect: "duckdb", BatchSizeDays: 1, Columns: valid.Columns}},
		{name: "empty dialect", req: SubmitRequest{QueryString: "select 1", BatchSizeDays: 1, Columns: valid.Columns}},
		{name: "zero batch size", req: SubmitRequest{QueryString: "select 1", SourceDialect: "duckdb", Columns: valid.Columns}},
		{name: "no columns", req: SubmitRequest{QueryString: "select 1", SourceDialect: "duckdb", BatchSizeDays: 1}},
		{
			name: "blank dependent table name",
			req: SubmitRequest{
				QueryString: "select 1", SourceDialect: "duckdb", BatchSizeDays: 1, Columns: valid.Columns,
				DependentTablesMap: map[string]string{"logical": ""},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got: %v", err)
			}
		})
	}
}
