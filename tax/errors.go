/*
errors.go - Centralized error and warning types for the tax engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Store implementations and the HTTP layer map onto these.

ERROR CATEGORIES:
  1. Fatal calculation errors - UnresolvableAddressError blocks the document
  2. Lifecycle errors - InvalidTransitionError, record left unchanged
  3. Store errors - not found, concurrent modification, duplicates

WARNINGS:
  Warnings never fail a calculation. They are attached to the
  CalculationRecord metadata so a human can review without blocking billing:
    rate_data           malformed rate skipped
    rate_overlap        overlapping rate superseded by a higher-ranked one
    exemption_conflict  two exemptions tied on percentage and priority
    exemption_condition exemption condition could not be evaluated

SEE ALSO:
  - executor.go: Emits rate_data and rate_overlap warnings
  - exemption.go: Emits exemption_* warnings
  - api/handlers.go: HTTP status mapping
*/
package tax

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnresolvableAddress is returned when an address matches no
	// jurisdiction. Callers must not default to zero tax.
	ErrUnresolvableAddress = errors.New("unresolvable address")

	// ErrInvalidTransition is returned for illegal lifecycle transitions.
	ErrInvalidTransition = errors.New("invalid calculation transition")

	// ErrCalculationNotFound is returned when a calculation ID does not exist.
	ErrCalculationNotFound = errors.New("calculation not found")

	// ErrConcurrentModification is returned when optimistic locking detects a conflict.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrInvalidInput is returned for malformed calculation requests.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateCalculation is returned when a record ID already exists.
	ErrDuplicateCalculation = errors.New("duplicate calculation id")

	// ErrRateConflict is returned when a rate ID is re-saved with different
	// content. Rate tables are append-only; a change needs a new rate ID.
	ErrRateConflict = errors.New("rate definition already exists with different content")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// UnresolvableAddressError explains why an address could not be mapped to
// any taxing jurisdiction.
type UnresolvableAddressError struct {
	Address Address
	Reason  string
}

func (e *UnresolvableAddressError) Error() string {
	return fmt.Sprintf("unresolvable address (country=%q state=%q postal=%q): %s",
		e.Address.Country, e.Address.State, e.Address.PostalCode, e.Reason)
}

func (e *UnresolvableAddressError) Unwrap() error {
	return ErrUnresolvableAddress
}

// InvalidTransitionError describes a rejected lifecycle change.
type InvalidTransitionError struct {
	ID     CalculationID
	From   Status
	To     Status
	Reason string
	cause  error
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("calculation %s: cannot transition %s -> %s", e.ID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Unwrap exposes both the transition sentinel and, for optimistic-lock
// conflicts, ErrConcurrentModification.
func (e *InvalidTransitionError) Unwrap() []error {
	if e.cause != nil {
		return []error{ErrInvalidTransition, e.cause}
	}
	return []error{ErrInvalidTransition}
}

// InputError names the offending request field.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input: %s %s", e.Field, e.Reason)
}

func (e *InputError) Unwrap() error { return ErrInvalidInput }

// =============================================================================
// WARNINGS - Non-fatal, recorded on the calculation
// =============================================================================

type WarningCode string

const (
	WarnRateData           WarningCode = "rate_data"
	WarnRateOverlap        WarningCode = "rate_overlap"
	WarnExemptionConflict  WarningCode = "exemption_conflict"
	WarnExemptionCondition WarningCode = "exemption_condition"
)

type Warning struct {
	Code        WarningCode `json:"code"`
	RateID      RateID      `json:"rate_id,omitempty"`
	ExemptionID ExemptionID `json:"exemption_id,omitempty"`
	Message     string      `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Code, w.Message)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrUnresolvableAddress) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrDuplicateCalculation) ||
		errors.Is(err, ErrRateConflict)
}

// IsNotFound returns true if the error indicates a missing calculation.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCalculationNotFound)
}
