/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each scenario loads the sample reference data and produces
	the documented totals. These double as end-to-end checks of the engine
	against realistic telecom reference data.
*/
package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tax-engine/tax"
)

func runScenario(t *testing.T, h *Handler, id string) *ScenarioResultDTO {
	t.Helper()
	result, err := h.RunScenario(context.Background(), id)
	require.NoError(t, err)
	return result
}

func totals(result *ScenarioResultDTO) []string {
	out := make([]string, len(result.Calculations))
	for i, c := range result.Calculations {
		out[i] = c.TotalTax.StringFixed(2)
	}
	return out
}

func TestScenario_USTelecom(t *testing.T) {
	// GIVEN: US telecom scenario
	// WHEN: Loading the scenario
	// THEN: Los Angeles, Austin, Buffalo and Sacramento lines carry their documented tax

	h, _ := setupTestHandler(t)
	result := runScenario(t, h, "us-telecom")

	assert.Equal(t, "us-telecom", result.Scenario.ID)
	assert.Equal(t, 10, result.Reference.Jurisdictions)
	assert.Equal(t, []string{"27.10", "7.50", "3.70", "36.30"}, totals(result))

	buffalo := result.Calculations[2]
	assert.Equal(t, tax.ValidationNeedsReview, buffalo.ValidationStatus)
	require.Len(t, buffalo.Metadata.RatesSuperseded, 1)
}

func TestScenario_ExemptCustomers(t *testing.T) {
	// GIVEN: Reseller, non-profit and agency customers
	// THEN: USF waived, non-profit capped at 5.00 per rate, agency exempt only on large orders

	h, _ := setupTestHandler(t)
	result := runScenario(t, h, "exempt-customers")

	assert.Equal(t, []string{"0.00", "18.05", "7.50", "0.00"}, totals(result))

	reseller := result.Calculations[0]
	require.Len(t, reseller.ExemptionsApplied, 1)
	assert.Equal(t, tax.ExemptionID("ex-reseller-usf"), reseller.ExemptionsApplied[0].ExemptionID)
	assert.Equal(t, "$36.30", reseller.Display.Exemptions[0].Waived)
}

func TestScenario_UKVAT(t *testing.T) {
	// GIVEN: A 120.00 GBP VAT-inclusive price
	// THEN: 24.00 VAT is reported and the customer still pays 120.00

	h, _ := setupTestHandler(t)
	result := runScenario(t, h, "uk-vat")

	require.Len(t, result.Calculations, 1)
	vat := result.Calculations[0]
	assert.Equal(t, "GBP", vat.Currency)
	assert.Equal(t, "£24.00", vat.Display.InclusiveTax)
	assert.Equal(t, "£120.00", vat.Display.FinalAmount)
}

func TestScenario_AdjustmentTrail(t *testing.T) {
	// GIVEN: Adjustment trail scenario
	// THEN: The original is applied-then-adjusted and linked to its correction

	h, _ := setupTestHandler(t)
	result := runScenario(t, h, "adjustment-trail")

	require.Len(t, result.Calculations, 2)
	prior, adjustment := result.Calculations[0], result.Calculations[1]

	assert.Equal(t, tax.StatusAdjusted, prior.Status)
	require.NotNil(t, prior.Document)
	assert.Equal(t, tax.DocumentInvoice, prior.Document.Kind)
	assert.Equal(t, adjustment.ID, prior.SupersededBy)
	assert.Equal(t, "7.50", prior.TotalTax.StringFixed(2))

	assert.Equal(t, tax.RecordAdjustment, adjustment.RecordType)
	assert.Equal(t, "8.50", adjustment.TotalTax.StringFixed(2))
	assert.Equal(t, "$1.00", adjustment.Display.TaxDelta)
}

func TestScenario_ReloadIsIdempotentForReferenceData(t *testing.T) {
	// GIVEN: A scenario loaded twice
	// THEN: Reference loading does not conflict and a second set of records exists

	h, _ := setupTestHandler(t)
	runScenario(t, h, "uk-vat")
	runScenario(t, h, "uk-vat")

	recs, err := h.Engine.ListCalculations(context.Background(), tax.RecordFilter{})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestScenarioEndpoints(t *testing.T) {
	_, router := setupTestHandler(t)

	list := decode[[]ScenarioDTO](t, do(t, router, http.MethodGet, "/api/scenarios", nil))
	assert.Len(t, list, len(scenarios))

	rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "no-such-scenario"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "us-telecom"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[ScenarioResultDTO](t, rec).Calculations, 4)

	current := decode[ScenarioDTO](t, do(t, router, http.MethodGet, "/api/scenarios/current", nil))
	assert.Equal(t, "us-telecom", current.ID)
}

func TestCurrentScenario_ConcurrentLoadAndRead(t *testing.T) {
	// GIVEN: Scenarios being loaded while clients poll the current one
	// THEN: Every read succeeds and the last load wins

	h, router := setupTestHandler(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	codes := make(chan int, 20)
	for _, id := range []string{"uk-vat", "us-telecom", "uk-vat", "us-telecom"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := h.RunScenario(ctx, id)
			errs <- err
		}(id)
	}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/scenarios/current", nil))
			codes <- rec.Code
		}()
	}
	wg.Wait()
	close(errs)
	close(codes)

	for err := range errs {
		assert.NoError(t, err)
	}
	for code := range codes {
		assert.Equal(t, http.StatusOK, code)
	}

	runScenario(t, h, "uk-vat")
	current := decode[ScenarioDTO](t, do(t, router, http.MethodGet, "/api/scenarios/current", nil))
	assert.Equal(t, "uk-vat", current.ID)
}
