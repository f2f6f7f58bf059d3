// Package id generates and validates TypeID identifiers for engine records.
//
// IDs are K-sortable (UUIDv7-based), globally unique and URL-safe in the
// format "prefix_suffix", so a calculation ID is recognisable on sight in
// logs and invoice metadata.
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the record type encoded in a TypeID.
type Prefix string

const (
	PrefixCalculation Prefix = "taxcalc" // Calculation record
)

// New generates an ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) string {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return tid.String()
}

// NewCalculationID generates a new calculation record ID.
func NewCalculationID() string { return New(PrefixCalculation) }

// Parse validates s as a TypeID and returns its prefix.
func Parse(s string) (Prefix, error) {
	if s == "" {
		return "", fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("id: parse %q: %w", s, err)
	}
	return Prefix(tid.Prefix()), nil
}

// ValidateCalculationID checks that s is a calculation record ID.
func ValidateCalculationID(s string) error {
	p, err := Parse(s)
	if err != nil {
		return err
	}
	if p != PrefixCalculation {
		return fmt.Errorf("id: expected prefix %q, got %q", PrefixCalculation, p)
	}
	return nil
}
