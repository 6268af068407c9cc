package vector

import (
	"fmt"
	"regexp"
)

// MaxCollectionNameLength bounds accepted collection names.
const MaxCollectionNameLength = 255

var collectionNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateCollectionName rejects names that cannot be used as a table or
// collection identifier in every backend.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name is empty", ErrValidation)
	}
	if len(name) > MaxCollectionNameLength {
		return fmt.Errorf("%w: collection name longer than %d bytes", ErrValidation, MaxCollectionNameLength)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name %q must match %s", ErrValidation, name, collectionNamePattern)
	}
	return nil
}

// CheckDimension verifies every record embedding has width dim.
func CheckDimension(records []Record, dim int) error {
	for _, r := range records {
		if len(r.Embedding) != dim {
			return fmt.Errorf("%w: record %q has %d dimensions, collection expects %d",
				ErrDimensionMismatch, r.ID, len(r.Embedding), dim)
		}
	}
	return nil
}
