package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tax-engine/id"
	"github.com/warp/tax-engine/tax"
)

// Integration tests run only when DATABASE_URL points at a disposable database.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	store, err := New(context.Background(), url, nil)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func newRecord() *tax.CalculationRecord {
	return &tax.CalculationRecord{
		ID:                tax.CalculationID(id.NewCalculationID()),
		RecordType:        tax.RecordCalculation,
		Calculable:        tax.CalculableRef{Kind: tax.CalculableInvoiceLine, ID: "line-" + id.NewCalculationID()},
		Status:            tax.StatusCalculated,
		Version:           1,
		Input:             tax.CalculationInput{BaseAmount: tax.MustParseDecimal("100"), Quantity: 1, Currency: "USD"},
		Breakdown:         []tax.BreakdownEntry{},
		ExemptionsApplied: []tax.AppliedExemption{},
		LineAmount:        tax.MustParseDecimal("100"),
		TotalTax:          tax.MustParseDecimal("7.5"),
		InclusiveTax:      tax.MustParseDecimal("0"),
		FinalAmount:       tax.MustParseDecimal("107.5"),
		EffectiveRate:     tax.MustParseDecimal("0.075"),
		Currency:          "USD",
		ValidationStatus:  tax.ValidationValid,
		CreatedAt:         time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestPostgres_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	rec := newRecord()
	require.NoError(t, store.Create(ctx, rec))
	assert.ErrorIs(t, store.Create(ctx, rec), tax.ErrDuplicateCalculation)

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, got.TotalTax.Equal(rec.TotalTax))

	doc := &tax.DocumentRef{Kind: tax.DocumentInvoice, ID: "inv-1"}
	require.NoError(t, store.Transition(ctx, tax.StatusUpdate{
		ID: rec.ID, From: tax.StatusCalculated, Version: 1, To: tax.StatusApplied, At: time.Now(), Document: doc,
	}))
	err = store.Transition(ctx, tax.StatusUpdate{
		ID: rec.ID, From: tax.StatusCalculated, Version: 1, To: tax.StatusVoided, At: time.Now(),
	})
	assert.ErrorIs(t, err, tax.ErrConcurrentModification)

	successor := newRecord()
	successor.RecordType = tax.RecordAdjustment
	successor.AdjustsID = rec.ID
	require.NoError(t, store.CreateAdjustment(ctx, tax.StatusUpdate{
		ID: rec.ID, From: tax.StatusApplied, Version: 2, To: tax.StatusAdjusted,
		At: time.Now(), Reason: "rate correction", SupersededBy: successor.ID,
	}, successor))

	prior, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, tax.StatusAdjusted, prior.Status)
	assert.Equal(t, successor.ID, prior.SupersededBy)
	assert.Equal(t, doc, prior.Document)

	list, err := store.List(ctx, tax.RecordFilter{Document: doc})
	require.NoError(t, err)
	assert.NotEmpty(t, list)

	require.NoError(t, store.SetValidation(ctx, rec.ID, tax.ValidationVerified, time.Now()))
	_, err = store.Get(ctx, "taxcalc_missing")
	assert.ErrorIs(t, err, tax.ErrCalculationNotFound)
}

func TestPostgres_TransitionIsCompareAndSwap(t *testing.T) {
	// GIVEN: One calculated record
	// WHEN: Several writers race to void it from the same version
	// THEN: Exactly one wins; the others see a concurrent modification

	ctx := context.Background()
	store := newTestStore(t)
	rec := newRecord()
	require.NoError(t, store.Create(ctx, rec))

	const writers = 8
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Transition(ctx, tax.StatusUpdate{
				ID: rec.ID, From: tax.StatusCalculated, Version: 1, To: tax.StatusVoided, At: time.Now(), Reason: "duplicate",
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, tax.ErrConcurrentModification)
	}
	assert.Equal(t, 1, wins)

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, tax.StatusVoided, got.Status)
	assert.Equal(t, 2, got.Version)
}
