// Package render implements the small query-rendering interface spec §9
// calls out: the decorator/proxy-based SQL macro evaluator in the source
// system becomes a single Render(query, bindings) -> string call here.
// The core only ever stores the resulting strings; it never parses or
// re-interprets SQL.
package render

import (
	"sort"
	"strings"
	"time"
)

// Binding is one substitution target. Queries reference bindings with an
// "@name" token, matching the source system's @metrics_start-style macros.
type Binding struct {
	Name  string
	Value string
}

// Renderer renders a query template against a set of bindings.
type Renderer interface {
	Render(query string, bindings []Binding) (string, error)
}

// TokenRenderer implements Renderer with plain "@name" token substitution.
// It is deliberately textual: the core treats query strings as opaque
// payloads pre-templated by the data-transformation layer (spec §1), so no
// SQL-aware rewriting belongs here.
type TokenRenderer struct{}

// NewTokenRenderer constructs the default renderer.
func NewTokenRenderer() *TokenRenderer { return &TokenRenderer{} }

// Render substitutes every "@name" occurrence with its bound value. Longer
// names are substituted first so "@metrics_sample_date" isn't clobbered by
// a shorter "@metrics" binding.
func (TokenRenderer) Render(query string, bindings []Binding) (string, error) {
	sorted := make([]Binding, len(bindings))
	copy(sorted, bindings)
	sort.Slice(sorted, func(i, j int) bool {
		return len(sorted[i].Name) > len(sorted[j].Name)
	})

	out := query
	for _, b := range sorted {
		out = strings.ReplaceAll(out, "@"+b.Name, b.Value)
	}
	return out, nil
}

// WindowBindings returns the @metrics_start/@metrics_end/@metrics_sample_date
// bindings for one batch window, matching the source's rolling-query macros.
func WindowBindings(start, end time.Time) []Binding {
	return []Binding{
		{Name: "metrics_start", Value: quoteDate(start)},
		{Name: "metrics_end", Value: quoteDate(end)},
		{Name: "metrics_sample_date", Value: quoteDate(end)},
	}
}

// DependentTableBindings turns a logical-name -> exported-table-name map
// into bindings of the form "@dep:logical_name".
func DependentTableBindings(exported map[string]string) []Binding {
	bindings := make([]Binding, 0, len(exported))
	for logical, actual := range exported {
		bindings = append(bindings, Binding{Name: "dep:" + logical, Value: actual})
	}
	return bindings
}

func quoteDate(t time.Time) string {
	return "'" + t.Format("2006-01-02") + "'"
}
