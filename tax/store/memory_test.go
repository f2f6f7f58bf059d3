package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tax-engine/tax"
)

func record(id tax.CalculationID, line string) *tax.CalculationRecord {
	return &tax.CalculationRecord{
		ID: id, RecordType: tax.RecordCalculation, Status: tax.StatusCalculated, Version: 1,
		Calculable: tax.CalculableRef{Kind: tax.CalculableInvoiceLine, ID: line},
		TotalTax:   tax.MustParseDecimal("5"),
	}
}

func TestMemory_CreateGetList(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Create(ctx, record("c1", "line-1")))
	require.NoError(t, m.Create(ctx, record("c2", "line-2")))
	require.NoError(t, m.Create(ctx, record("c3", "line-1")))
	assert.ErrorIs(t, m.Create(ctx, record("c1", "line-9")), tax.ErrDuplicateCalculation)

	_, err := m.Get(ctx, "nope")
	assert.ErrorIs(t, err, tax.ErrCalculationNotFound)

	line1 := tax.CalculableRef{Kind: tax.CalculableInvoiceLine, ID: "line-1"}
	got, err := m.List(ctx, tax.RecordFilter{Calculable: &line1})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, tax.CalculationID("c1"), got[0].ID, "insertion order")

	got, err = m.List(ctx, tax.RecordFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMemory_RecordsAreCopies(t *testing.T) {
	// GIVEN: A stored record with a breakdown
	// WHEN: The caller edits the record it saved and the ones it read back
	// THEN: The stored breakdown never changes

	ctx := context.Background()
	m := NewMemory()
	rec := record("c1", "line-1")
	rec.Breakdown = []tax.BreakdownEntry{{RateID: "st-5", Contribution: tax.MustParseDecimal("5")}}
	require.NoError(t, m.Create(ctx, rec))

	rec.Breakdown[0].Contribution = tax.MustParseDecimal("999")
	got, err := m.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "5", got.Breakdown[0].Contribution.String())

	got.Breakdown[0].Contribution = tax.MustParseDecimal("999")
	listed, err := m.List(ctx, tax.RecordFilter{})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "5", listed[0].Breakdown[0].Contribution.String())

	listed[0].Breakdown[0].Contribution = tax.MustParseDecimal("999")
	got, err = m.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "5", got.Breakdown[0].Contribution.String())
}

func TestMemory_TransitionCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	rec := record("c1", "line-1")
	require.NoError(t, m.Create(ctx, rec))

	// GIVEN: two updates built from the same version
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	first := rec.StatusUpdate(tax.StatusApplied, at)
	second := rec.StatusUpdate(tax.StatusVoided, at)

	// THEN: only the first wins
	require.NoError(t, m.Transition(ctx, first))
	assert.ErrorIs(t, m.Transition(ctx, second), tax.ErrConcurrentModification)

	got, err := m.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, tax.StatusApplied, got.Status)
	assert.Equal(t, 2, got.Version)
}

func TestMemory_CreateAdjustmentAllOrNothing(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	prior := record("c1", "line-1")
	require.NoError(t, m.Create(ctx, prior))
	require.NoError(t, m.Create(ctx, record("taken", "line-2")))

	update := prior.StatusUpdate(tax.StatusAdjusted, time.Now())
	update.SupersededBy = "taken"

	// GIVEN: a successor whose ID already exists
	err := m.CreateAdjustment(ctx, update, record("taken", "line-1"))
	assert.ErrorIs(t, err, tax.ErrDuplicateCalculation)

	// THEN: the prior record is untouched
	got, _ := m.Get(ctx, "c1")
	assert.Equal(t, tax.StatusCalculated, got.Status)

	update.SupersededBy = "c2"
	require.NoError(t, m.CreateAdjustment(ctx, update, record("c2", "line-1")))
	got, _ = m.Get(ctx, "c1")
	assert.Equal(t, tax.StatusAdjusted, got.Status)
	assert.Equal(t, tax.CalculationID("c2"), got.SupersededBy)
}

func TestMemory_ReferenceData(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.SaveJurisdiction(ctx, tax.Jurisdiction{ID: "us-ca", Kind: tax.KindState, Scope: tax.GeoScope{Country: "US", State: "CA"}}))
	require.NoError(t, m.SaveJurisdiction(ctx, tax.Jurisdiction{ID: "us", Kind: tax.KindFederal, Scope: tax.GeoScope{Country: "US"}}))
	require.NoError(t, m.SaveJurisdiction(ctx, tax.Jurisdiction{ID: "gb", Kind: tax.KindFederal, Scope: tax.GeoScope{Country: "GB"}}))

	js, err := m.Jurisdictions(ctx, "US")
	require.NoError(t, err)
	require.Len(t, js, 2)
	assert.Equal(t, tax.JurisdictionID("us"), js[0].ID)

	rate := tax.RateDefinition{ID: "r1", JurisdictionID: "us", Shape: tax.ShapeFixed, FixedAmount: tax.DecimalPtr("1")}
	require.NoError(t, m.SaveRate(ctx, rate))
	require.NoError(t, m.SaveRate(ctx, rate), "identical re-save is a no-op")
	rate.FixedAmount = tax.DecimalPtr("2")
	assert.ErrorIs(t, m.SaveRate(ctx, rate), tax.ErrRateConflict)

	rates, err := m.Rates(ctx, []tax.JurisdictionID{"us", "gb"})
	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.Equal(t, "1", rates[0].FixedAmount.String())

	*rates[0].FixedAmount = tax.MustParseDecimal("9")
	rates, err = m.Rates(ctx, []tax.JurisdictionID{"us"})
	require.NoError(t, err)
	assert.Equal(t, "1", rates[0].FixedAmount.String(), "returned rates are copies")

	require.NoError(t, m.SaveExemption(ctx, tax.Exemption{ID: "e2", CustomerID: "c"}))
	require.NoError(t, m.SaveExemption(ctx, tax.Exemption{ID: "e1", CustomerID: "c"}))
	require.NoError(t, m.SaveExemption(ctx, tax.Exemption{ID: "e3", CustomerID: "other"}))
	ex, err := m.ActiveExemptions(ctx, "c", tax.Date{})
	require.NoError(t, err)
	require.Len(t, ex, 2)
	assert.Equal(t, tax.ExemptionID("e1"), ex[0].ID)
}

func TestMemory_JurisdictionCountryIgnoresCase(t *testing.T) {
	// GIVEN: Jurisdictions saved with a lower-case country
	// WHEN: Resolving an address through the engine
	// THEN: They are found, as they are on the SQLite store

	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.SaveJurisdiction(ctx, tax.Jurisdiction{ID: "us", Kind: tax.KindFederal, Scope: tax.GeoScope{Country: "us"}}))
	require.NoError(t, m.SaveJurisdiction(ctx, tax.Jurisdiction{ID: "us-tx", Kind: tax.KindState, Scope: tax.GeoScope{Country: " Us ", State: "TX"}}))

	js, err := m.Jurisdictions(ctx, "US")
	require.NoError(t, err)
	assert.Len(t, js, 2)

	engine := tax.NewEngine(m, m)
	resolved, err := engine.ResolveJurisdictions(ctx, tax.Address{Country: "US", State: "tx"}, tax.MustParseDate("2025-06-01"))
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	assert.Equal(t, tax.JurisdictionID("us"), resolved[0].ID)
	assert.Equal(t, tax.JurisdictionID("us-tx"), resolved[1].ID)
}
