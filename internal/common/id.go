package common

import (
	"strings"

	"github.com/google/uuid"
)

// NewJobID generates a unique calculation job id with the "export_" prefix.
// Format: export_<uuid without dashes>
func NewJobID() string {
	return "export_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}
