package tax

import (
	"slices"

	"github.com/mitchellh/copystructure"
	"github.com/shopspring/decimal"
)

// =============================================================================
// CLONING - Records, snapshots and results never share backing arrays
// =============================================================================

// Clone returns a deep copy of the record. Stores and the result cache hand
// out clones so a caller editing its copy cannot rewrite a stored breakdown.
func (r *CalculationRecord) Clone() *CalculationRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Input = r.Input.Clone()
	c.Breakdown = cloneEach(r.Breakdown, BreakdownEntry.clone)
	c.ExemptionsApplied = slices.Clone(r.ExemptionsApplied)
	c.Metadata = r.Metadata.clone()
	if r.Document != nil {
		doc := *r.Document
		c.Document = &doc
	}
	c.TaxDelta = cloneDecimal(r.TaxDelta)
	c.ValidatedAt = clonePtr(r.ValidatedAt)
	c.AppliedAt = clonePtr(r.AppliedAt)
	c.AdjustedAt = clonePtr(r.AdjustedAt)
	c.VoidedAt = clonePtr(r.VoidedAt)
	return &c
}

// Clone returns a deep copy of the snapshot.
func (in CalculationInput) Clone() CalculationInput {
	c := in
	c.Units = UnitCounts{
		Lines:   cloneDecimal(in.Units.Lines),
		Minutes: cloneDecimal(in.Units.Minutes),
		Units:   cloneDecimal(in.Units.Units),
	}
	c.Jurisdictions = cloneEach(in.Jurisdictions, Jurisdiction.Clone)
	c.Rates = cloneEach(in.Rates, RateDefinition.Clone)
	c.Exemptions = cloneEach(in.Exemptions, Exemption.Clone)
	return c
}

// Clone returns a deep copy of the result.
func (res ExecutionResult) Clone() ExecutionResult {
	c := res
	c.Breakdown = cloneEach(res.Breakdown, BreakdownEntry.clone)
	c.ExemptionsApplied = slices.Clone(res.ExemptionsApplied)
	c.RatesConsidered = slices.Clone(res.RatesConsidered)
	c.RatesSkipped = slices.Clone(res.RatesSkipped)
	c.RatesSuperseded = slices.Clone(res.RatesSuperseded)
	c.Warnings = slices.Clone(res.Warnings)
	return c
}

func (m Metadata) clone() Metadata {
	c := m
	c.RatesConsidered = slices.Clone(m.RatesConsidered)
	c.RatesApplied = slices.Clone(m.RatesApplied)
	c.RatesSkipped = slices.Clone(m.RatesSkipped)
	c.RatesSuperseded = slices.Clone(m.RatesSuperseded)
	c.Warnings = slices.Clone(m.Warnings)
	return c
}

func (e BreakdownEntry) clone() BreakdownEntry {
	e.Exemption.Cap = cloneDecimal(e.Exemption.Cap)
	return e
}

// Clone returns a deep copy of the jurisdiction.
func (j Jurisdiction) Clone() Jurisdiction {
	j.Scope.PostalCodes = slices.Clone(j.Scope.PostalCodes)
	j.Scope.PostalPrefixes = slices.Clone(j.Scope.PostalPrefixes)
	j.Window = j.Window.clone()
	return j
}

// Clone returns a deep copy of the rate.
func (r RateDefinition) Clone() RateDefinition {
	r.ServiceTypes = slices.Clone(r.ServiceTypes)
	r.Percentage = cloneDecimal(r.Percentage)
	r.FixedAmount = cloneDecimal(r.FixedAmount)
	r.MinimumThreshold = cloneDecimal(r.MinimumThreshold)
	r.MaximumAmount = cloneDecimal(r.MaximumAmount)
	r.Tiers = cloneEach(r.Tiers, func(t Tier) Tier {
		t.UpTo = cloneDecimal(t.UpTo)
		return t
	})
	r.Window = r.Window.clone()
	return r
}

// Clone returns a deep copy of the exemption.
func (e Exemption) Clone() Exemption {
	e.Jurisdictions = slices.Clone(e.Jurisdictions)
	e.Categories = slices.Clone(e.Categories)
	e.ServiceTypes = slices.Clone(e.ServiceTypes)
	e.TaxTypes = slices.Clone(e.TaxTypes)
	e.MaximumAmount = cloneDecimal(e.MaximumAmount)
	e.VerifiedAt = clonePtr(e.VerifiedAt)
	e.Window = e.Window.clone()
	if e.Condition != nil {
		// conditions are decoded JSON: maps, slices and scalars only
		e.Condition = copystructure.Must(copystructure.Copy(e.Condition)).(map[string]any)
	}
	return e
}

func (w Window) clone() Window {
	w.Expiry = clonePtr(w.Expiry)
	return w
}

// cloneEach keeps nil and empty slices apart; the snapshot JSON tells them apart too.
func cloneEach[T any](s []T, fn func(T) T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	for i, v := range s {
		out[i] = fn(v)
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal { return clonePtr(d) }
