// Package importadapter defines the only interface between this service
// and "the warehouse" (spec §4.5): translating a staged export reference
// into its final warehouse-native form, and promoting it there.
package importadapter

import "github.com/ternarybob/quaero/internal/model"

// Adapter is implemented once per warehouse backend. TranslateReference
// must be pure and deterministic - it only computes what the final
// reference would look like, it performs no I/O (spec §4.5). ImportReference
// performs the actual promotion and must be safe to call again with the
// same arguments (spec §4.5 "idempotent overwrite").
type Adapter interface {
	// TranslateReference computes the final warehouse-native reference a
	// staged export would be promoted to, without touching the warehouse.
	TranslateReference(staged model.ExportReference) (model.ExportReference, error)

	// ImportReference promotes staged into final, overwriting any prior
	// contents at final's location. Calling it twice with the same
	// arguments leaves the warehouse in the same state as calling it once.
	ImportReference(staged, final model.ExportReference) error
}
