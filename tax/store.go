/*
store.go - Persistence and reference-data interfaces

PURPOSE:
  Defines the boundary between the engine and the outside world:
  - Reference data (jurisdictions, rates, exemptions) is READ by the engine
    and maintained by external administrative processes.
  - Calculation records are WRITTEN by the engine through RecordStore.

KEY INTERFACES:
  JurisdictionSource: Candidate jurisdictions for a country
  RateSource:         Rate definitions for a set of jurisdictions
  ExemptionSource:    A customer's exemption certificates
  ReferenceData:      All three together
  RecordStore:        CalculationRecord persistence

APPEND-ONLY REFERENCE DATA:
  Rate tables are never edited in place. A new rate gets a new effective
  window, so historical calculations stay reproducible and concurrent
  calculations never observe a rate changing mid-computation.

RECORD STORE CONTRACT:
  - Create(): single atomic write, no partial breakdown is ever visible
  - Transition(): compare-and-swap on (status, version)
  - CreateAdjustment(): transitions the prior record and creates its
    successor in one atomic step
  - NO method rewrites a breakdown. Ever.

IMPLEMENTATIONS:
  - tax/store/memory.go: In-memory for tests and the CLI
  - store/sqlite/sqlite.go: SQLite
  - store/postgres/postgres.go: PostgreSQL (records only)
*/
package tax

import (
	"bytes"
	"context"
	"encoding/json"
	"time"
)

// =============================================================================
// REFERENCE DATA - Read-only from the engine's perspective
// =============================================================================

type JurisdictionSource interface {
	// Jurisdictions returns every jurisdiction defined for a country
	// (normalized ISO code). Matching against the address is done by the engine.
	Jurisdictions(ctx context.Context, country string) ([]Jurisdiction, error)
}

type RateSource interface {
	// Rates returns every rate definition, in any window, attached to one of
	// the given jurisdictions. Window/category filtering is done by the engine.
	Rates(ctx context.Context, jurisdictions []JurisdictionID) ([]RateDefinition, error)
}

type ExemptionSource interface {
	// ActiveExemptions returns the customer's exemptions as of the date.
	// Implementations may pre-filter; the engine re-checks verification and window.
	ActiveExemptions(ctx context.Context, customerID CustomerID, asOf Date) ([]Exemption, error)
}

//go:generate mockgen -destination=mocks/mock_tax.go -package=mocks github.com/warp/tax-engine/tax ReferenceData,RecordStore

type ReferenceData interface {
	JurisdictionSource
	RateSource
	ExemptionSource
}

// ReferenceWriter is implemented by stores that can be seeded with reference
// data (factory loader, demo scenarios). It is not used by the engine.
type ReferenceWriter interface {
	SaveJurisdiction(ctx context.Context, j Jurisdiction) error
	SaveRate(ctx context.Context, r RateDefinition) error
	SaveExemption(ctx context.Context, e Exemption) error
}

// =============================================================================
// RECORD STORE
// =============================================================================

// StatusUpdate is an optimistic status change. It applies only if the stored
// record still has status From and version Version.
type StatusUpdate struct {
	ID      CalculationID
	From    Status
	Version int
	To      Status
	At      time.Time

	Document     *DocumentRef  // set when applying
	Reason       string        // void or adjustment reason
	SupersededBy CalculationID // set when adjusting
}

type RecordFilter struct {
	Calculable *CalculableRef
	Document   *DocumentRef
	Status     *Status
	Limit      int
}

type RecordStore interface {
	Create(ctx context.Context, rec *CalculationRecord) error
	Get(ctx context.Context, id CalculationID) (*CalculationRecord, error)
	List(ctx context.Context, filter RecordFilter) ([]CalculationRecord, error)

	// Transition applies the update or returns ErrConcurrentModification
	// when the stored status/version no longer match.
	Transition(ctx context.Context, update StatusUpdate) error

	// CreateAdjustment applies update to the prior record and creates the
	// successor atomically.
	CreateAdjustment(ctx context.Context, update StatusUpdate, successor *CalculationRecord) error

	// SetValidation records the outcome of a re-derivation audit.
	// It never touches breakdown or status.
	SetValidation(ctx context.Context, id CalculationID, status ValidationStatus, at time.Time) error
}

// SameRate reports whether two rate definitions have identical content.
// Stores use it to make re-loading the same rate table idempotent.
func SameRate(a, b RateDefinition) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ja, jb)
}

// Matches applies a RecordFilter to one record. Limit is not checked.
func (f RecordFilter) Matches(rec *CalculationRecord) bool {
	if f.Calculable != nil && rec.Calculable != *f.Calculable {
		return false
	}
	if f.Document != nil && (rec.Document == nil || *rec.Document != *f.Document) {
		return false
	}
	if f.Status != nil && rec.Status != *f.Status {
		return false
	}
	return true
}
