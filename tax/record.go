/*
record.go - CalculationRecord and its lifecycle

PURPOSE:
  A CalculationRecord is the persisted, auditable outcome of one
  calculation. It carries everything needed to explain and re-derive the
  result: the full input snapshot (including the resolved jurisdictions,
  the rates and the exemptions that were in force), the itemized breakdown
  and the totals.

LIFECYCLE:
  draft -> calculated -> applied -> adjusted -> voided

    calculated -> applied   (bound to an invoice or quote)
    calculated -> adjusted  (superseded by an adjustment record)
    applied    -> adjusted
    calculated -> voided
    applied    -> voided

  Once applied the breakdown is immutable. Corrections never rewrite it;
  they produce a new record of type "adjustment" pointing back at the
  original via AdjustsID.

POLYMORPHIC CALCULABLE:
  The thing being taxed is a tagged reference (kind + id), so invoice lines,
  quote lines and adjustment lines share the same record shape without
  nullable foreign keys per kind.
*/
package tax

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusDraft      Status = "draft"
	StatusCalculated Status = "calculated"
	StatusApplied    Status = "applied"
	StatusAdjusted   Status = "adjusted"
	StatusVoided     Status = "voided"
)

var transitions = map[Status][]Status{
	StatusDraft:      {StatusCalculated},
	StatusCalculated: {StatusApplied, StatusAdjusted, StatusVoided},
	StatusApplied:    {StatusAdjusted, StatusVoided},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal is true for statuses that accept no further transition.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

type RecordType string

const (
	RecordCalculation RecordType = "calculation"
	RecordAdjustment  RecordType = "adjustment"
)

// ValidationStatus is the audit state of a record.
type ValidationStatus string

const (
	ValidationValid       ValidationStatus = "valid"
	ValidationNeedsReview ValidationStatus = "needs_review"
	ValidationVerified    ValidationStatus = "verified"
	ValidationMismatch    ValidationStatus = "mismatch"
)

// =============================================================================
// REFERENCES - Tagged, storage-agnostic
// =============================================================================

type CalculableKind string

const (
	CalculableInvoiceLine CalculableKind = "invoice_line"
	CalculableQuoteLine   CalculableKind = "quote_line"
	CalculableAdjustment  CalculableKind = "adjustment"
)

func (k CalculableKind) Valid() bool {
	switch k {
	case CalculableInvoiceLine, CalculableQuoteLine, CalculableAdjustment:
		return true
	}
	return false
}

// CalculableRef identifies the line item being taxed.
type CalculableRef struct {
	Kind CalculableKind `json:"kind"`
	ID   string         `json:"id"`
}

type DocumentKind string

const (
	DocumentInvoice DocumentKind = "invoice"
	DocumentQuote   DocumentKind = "quote"
)

func (k DocumentKind) Valid() bool {
	return k == DocumentInvoice || k == DocumentQuote
}

// DocumentRef identifies the invoice or quote a calculation is applied to.
type DocumentRef struct {
	Kind DocumentKind `json:"kind"`
	ID   string       `json:"id"`
}

// =============================================================================
// INPUT SNAPSHOT
// =============================================================================

// CalculationInput is everything the executor saw. Re-running the pipeline
// on it must reproduce the stored breakdown exactly.
type CalculationInput struct {
	CustomerID  CustomerID      `json:"customer_id,omitempty"`
	BaseAmount  decimal.Decimal `json:"base_amount"`
	Quantity    int             `json:"quantity"`
	Units       UnitCounts      `json:"units"`
	Category    CategoryID      `json:"category"`
	ServiceType string          `json:"service_type,omitempty"`
	Address     Address         `json:"address"`
	AsOf        Date            `json:"as_of"`
	Currency    string          `json:"currency"`

	Jurisdictions []Jurisdiction   `json:"jurisdictions"`
	Rates         []RateDefinition `json:"rates"`
	Exemptions    []Exemption      `json:"exemptions"`
}

// FilterContext returns the exemption-matching context of the snapshot.
func (in CalculationInput) FilterContext() FilterContext {
	return FilterContext{
		CustomerID:  in.CustomerID,
		BaseAmount:  in.BaseAmount,
		Quantity:    in.Quantity,
		Category:    in.Category,
		ServiceType: in.ServiceType,
		Address:     in.Address,
		AsOf:        in.AsOf,
	}
}

// Rederive re-runs exemption filtering and execution over the snapshot.
func Rederive(in CalculationInput) ExecutionResult {
	adjustments, warnings := FilterExemptions(in.Rates, in.Exemptions, in.FilterContext())
	res := Execute(ExecutionInput{
		BaseAmount:    in.BaseAmount,
		Quantity:      in.Quantity,
		Units:         in.Units,
		Rates:         in.Rates,
		Adjustments:   adjustments,
		Jurisdictions: in.Jurisdictions,
	})
	res.Warnings = append(warnings, res.Warnings...)
	return res
}

// =============================================================================
// CALCULATION RECORD
// =============================================================================

type Metadata struct {
	RatesConsidered     []RateID         `json:"rates_considered"`
	RatesApplied        []RateID         `json:"rates_applied"`
	RatesSkipped        []SkippedRate    `json:"rates_skipped,omitempty"`
	RatesSuperseded     []SupersededRate `json:"rates_superseded,omitempty"`
	Warnings            []Warning        `json:"warnings,omitempty"`
	DurationMicros      int64            `json:"duration_micros"`
	EngineVersion       string           `json:"engine_version"`
	CacheHit            bool             `json:"cache_hit"`
	SourceCalculationID CalculationID    `json:"source_calculation_id,omitempty"`
	Fingerprint         string           `json:"fingerprint,omitempty"`
}

type CalculationRecord struct {
	ID         CalculationID `json:"id"`
	RecordType RecordType    `json:"record_type"`
	Calculable CalculableRef `json:"calculable"`
	Document   *DocumentRef  `json:"document,omitempty"`
	Status     Status        `json:"status"`
	Version    int           `json:"version"`

	Input             CalculationInput   `json:"input"`
	Breakdown         []BreakdownEntry   `json:"breakdown"`
	ExemptionsApplied []AppliedExemption `json:"exemptions_applied"`

	LineAmount    decimal.Decimal `json:"line_amount"`
	TotalTax      decimal.Decimal `json:"total_tax"`
	InclusiveTax  decimal.Decimal `json:"inclusive_tax"`
	FinalAmount   decimal.Decimal `json:"final_amount"`
	EffectiveRate decimal.Decimal `json:"effective_rate"`
	Currency      string          `json:"currency"`

	Metadata         Metadata         `json:"metadata"`
	ValidationStatus ValidationStatus `json:"validation_status"`
	ValidatedAt      *time.Time       `json:"validated_at,omitempty"`

	// Adjustment chain
	AdjustsID    CalculationID    `json:"adjusts_id,omitempty"`
	SupersededBy CalculationID    `json:"superseded_by,omitempty"`
	TaxDelta     *decimal.Decimal `json:"tax_delta,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	VoidReason   string           `json:"void_reason,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	AppliedAt  *time.Time `json:"applied_at,omitempty"`
	AdjustedAt *time.Time `json:"adjusted_at,omitempty"`
	VoidedAt   *time.Time `json:"voided_at,omitempty"`
}

// ApplyResult copies an execution result into the record. The record gets
// its own copy of every slice.
func (r *CalculationRecord) ApplyResult(res ExecutionResult) {
	res = res.Clone()
	r.Breakdown = res.Breakdown
	r.ExemptionsApplied = res.ExemptionsApplied
	r.LineAmount = res.LineAmount
	r.TotalTax = res.TotalTax
	r.InclusiveTax = res.InclusiveTax
	r.FinalAmount = res.FinalAmount
	r.EffectiveRate = res.EffectiveRate

	r.Metadata.RatesConsidered = res.RatesConsidered
	r.Metadata.RatesApplied = make([]RateID, len(res.Breakdown))
	for i, e := range res.Breakdown {
		r.Metadata.RatesApplied[i] = e.RateID
	}
	r.Metadata.RatesSkipped = res.RatesSkipped
	r.Metadata.RatesSuperseded = res.RatesSuperseded
	r.Metadata.Warnings = res.Warnings
}

// StatusUpdate builds a compare-and-swap update against the record's
// current status and version.
func (r *CalculationRecord) StatusUpdate(to Status, at time.Time) StatusUpdate {
	return StatusUpdate{ID: r.ID, From: r.Status, Version: r.Version, To: to, At: at}
}

// Apply mutates the record the way a store applies an update. Stores call
// it after the compare-and-swap succeeds so every backend agrees on the
// resulting fields.
func (u StatusUpdate) Apply(r *CalculationRecord) {
	r.Status = u.To
	r.Version++
	at := u.At
	switch u.To {
	case StatusApplied:
		r.AppliedAt = &at
		r.Document = u.Document
	case StatusAdjusted:
		r.AdjustedAt = &at
		r.SupersededBy = u.SupersededBy
		r.Reason = u.Reason
	case StatusVoided:
		r.VoidedAt = &at
		r.VoidReason = u.Reason
	}
}

// SameResult compares the monetary outcome of a record with a re-derived
// result, entry by entry.
func (r *CalculationRecord) SameResult(res ExecutionResult) bool {
	if !r.TotalTax.Equal(res.TotalTax) || !r.FinalAmount.Equal(res.FinalAmount) ||
		!r.LineAmount.Equal(res.LineAmount) || len(r.Breakdown) != len(res.Breakdown) {
		return false
	}
	for i, e := range r.Breakdown {
		o := res.Breakdown[i]
		if e.RateID != o.RateID || !e.Contribution.Equal(o.Contribution) ||
			!e.AmountWaived.Equal(o.AmountWaived) || !e.TaxableBase.Equal(o.TaxableBase) {
			return false
		}
	}
	return true
}
