package core

// validation.go checks that a file's headers carry every mandatory field
// before any row is coerced. All missing fields are reported together.

import (
	"fmt"
	"strings"
)

// MissingRequired returns the mandatory canonical fields absent from mapping,
// in the order Nome, CodigoEstrutura, Situacao. An empty slice means the
// mapping is complete.
func MissingRequired(mapping HeaderMapping) []string {
	missing := []string{}
	for _, field := range requiredFields {
		if mapping[field] == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

// ValidateHeaders maps headers and fails with a single MissingRequiredColumns
// error naming every unresolved mandatory field. The mapping is returned in
// both cases so callers can report what was resolved.
func ValidateHeaders(headers []string) (HeaderMapping, error) {
	mapping := MapHeaders(headers)
	if missing := MissingRequired(mapping); len(missing) > 0 {
		return mapping, &IngestError{
			kind:    ErrMissingColumns,
			Missing: missing,
			msg:     fmt.Sprintf("required columns not found: %s", strings.Join(missing, ", ")),
		}
	}
	return mapping, nil
}
