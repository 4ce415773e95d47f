package render

import (
	"testing"
	"time"
)

func TestTokenRendererRender(t *testing.T) {
	r := NewTokenRenderer()

	bindings := []Binding{
		{Name: "metrics_start", Value: "'2024-01-01'"},
		{Name: "metrics_sample_date", Value: "'2024-01-07'"},
	}

	query := "select * from t where ts between @metrics_start and @metrics_sample_date"
	got, err := r.Render(query, bindings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "select * from t where ts between '2024-01-01' and '2024-01-07'"
	if got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestTokenRendererLongestNameFirst(t *testing.T) {
	r := NewTokenRenderer()

	bindings := []Binding{
		{Name: "metrics", Value: "SHORT"},
		{Name: "metrics_sample_date", Value: "LONG"},
	}

	got, err := r.Render("@metrics_sample_date", bindings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "LONG" {
		t.Errorf("expected longer binding name to win, got %q", got)
	}
}

func TestWindowBindings(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	bindings := WindowBindings(start, end)
	if len(bindings) != 3 {
		t.Fatalf("expected 3 bindings, got %d", len(bindings))
	}

	byName := make(map[string]string, len(bindings))
	for _, b := range bindings {
		byName[b.Name] = b.Value
	}

	if byName["metrics_start"] != "'2024-03-01'" {
		t.Errorf("metrics_start = %q", byName["metrics_start"])
	}
	if byName["metrics_end"] != "'2024-03-05'" {
		t.Errorf("metrics_end = %q", byName["metrics_end"])
	}
	if byName["metrics_sample_date"] != byName["metrics_end"] {
		t.Errorf("metrics_sample_date should mirror metrics_end")
	}
}

func TestDependentTableBindings(t *testing.T) {
	bindings := DependentTableBindings(map[string]string{
		"metrics.events_daily_to_artifact": "sqlmesh__metrics.events_daily_to_artifact__abc123",
	})
	if len(bindings) != 1 {
		t.Fatalf("expected 1 binding, got %d", len(bindings))
	}
	if bindings[0].Name != "dep:metrics.events_daily_to_artifact" {
		t.Errorf("unexpected binding name: %q", bindings[0].Name)
	}
	if bindings[0].Value != "sqlmesh__metrics.events_daily_to_artifact__abc123" {
		t.Errorf("unexpected binding value: %q", bindings[0].Value)
	}
}
