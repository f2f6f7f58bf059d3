/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that load the sample telecom reference data
	and run realistic calculations against it. Each scenario demonstrates a
	specific feature of the engine.

AVAILABLE SCENARIOS:

	us-telecom:       Federal, state, county, city and district taxes on US lines
	exempt-customers: Reseller, non-profit and conditional agency exemptions
	uk-vat:           Tax-inclusive pricing with recoverable VAT
	adjustment-trail: Calculate, apply to an invoice, then adjust

HOW SCENARIOS WORK:
 1. Load the sample reference document via the factory (idempotent)
 2. Build telecom service lines for sample addresses
 3. Calculate each line through the engine (records are persisted)
 4. Optionally apply or adjust the resulting records

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "us-telecom"}

NOTE:

	Scenarios never delete data. Loading the same scenario twice records a
	second set of calculations against the same reference data.

SEE ALSO:
  - telecom/reference.go: Sample reference document
  - handlers.go: Reference loading
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/tax-engine/factory"
	"github.com/warp/tax-engine/tax"
	"github.com/warp/tax-engine/telecom"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// scenarioDate falls inside every sample rate window.
var scenarioDate = tax.NewDate(2025, 6, 1)

var scenarios = []ScenarioDTO{
	{
		ID:          "us-telecom",
		Name:        "US Telecom Lines",
		Description: "VoIP and landline charges across federal, state, county, city and district jurisdictions",
		Category:    "telecom",
	},
	{
		ID:          "exempt-customers",
		Name:        "Exempt Customers",
		Description: "Reseller USF waiver, capped non-profit exemption and a conditional agency exemption",
		Category:    "exemptions",
	},
	{
		ID:          "uk-vat",
		Name:        "UK VAT",
		Description: "Tax-inclusive pricing: VAT is carved out of the price, not added to it",
		Category:    "international",
	},
	{
		ID:          "adjustment-trail",
		Name:        "Adjustment Trail",
		Description: "Calculate, apply to an invoice, then correct the line with a linked adjustment",
		Category:    "lifecycle",
	},
}

type scenarioLoader func(ctx context.Context, h *Handler) ([]*tax.CalculationRecord, error)

var scenarioLoaders = map[string]scenarioLoader{
	"us-telecom":       loadUSTelecomScenario,
	"exempt-customers": loadExemptCustomersScenario,
	"uk-vat":           loadUKVATScenario,
	"adjustment-trail": loadAdjustmentTrailScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the most recently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	current, _ := h.currentScenario.Load().(string)
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads the sample reference data and runs a scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.RunScenario(r.Context(), req.ScenarioID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RunScenario loads the sample reference data and runs one scenario.
func (h *Handler) RunScenario(ctx context.Context, id string) (*ScenarioResultDTO, error) {
	loader, ok := scenarioLoaders[id]
	if !ok {
		return nil, &tax.InputError{Field: "scenario_id", Reason: fmt.Sprintf("unknown scenario %q", id)}
	}

	summary, err := h.loadSampleReference(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load sample reference data: %w", err)
	}
	recs, err := loader(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", id, err)
	}

	h.currentScenario.Store(id)
	h.Logger.Info("scenario loaded", zap.String("scenario", id), zap.Int("calculations", len(recs)))

	result := &ScenarioResultDTO{Reference: summary, Calculations: make([]CalculationDTO, len(recs))}
	for _, s := range scenarios {
		if s.ID == id {
			result.Scenario = s
		}
	}
	for i, rec := range recs {
		result.Calculations[i] = toCalculationDTO(rec)
	}
	return result, nil
}

func (h *Handler) loadSampleReference(ctx context.Context) (factory.LoadSummary, error) {
	set, err := h.Factory.Parse([]byte(telecom.SampleReferenceYAML()))
	if err != nil {
		return factory.LoadSummary{}, err
	}
	summary, err := h.Factory.Load(ctx, h.Reference, set)
	if err != nil {
		return summary, err
	}
	h.Engine.Cache().Purge()
	return summary, nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func scenarioLine(scenario string, n int, customer tax.CustomerID, category tax.CategoryID, st telecom.ServiceType, amount, address string) telecom.ServiceLine {
	return telecom.ServiceLine{
		Calculable:    tax.CalculableRef{Kind: tax.CalculableInvoiceLine, ID: fmt.Sprintf("%s-line-%d", scenario, n)},
		Customer:      customer,
		Category:      category,
		ServiceType:   st,
		MonthlyCharge: decimal.RequireFromString(amount),
		Address:       telecom.SampleAddresses[address],
		AsOf:          scenarioDate,
	}
}

func calculateLines(ctx context.Context, h *Handler, lines []telecom.ServiceLine) ([]*tax.CalculationRecord, error) {
	recs := make([]*tax.CalculationRecord, 0, len(lines))
	for _, line := range lines {
		rec, err := h.Engine.Calculate(ctx, line.ToCalculateRequest())
		if err != nil {
			return nil, fmt.Errorf("line %s: %w", line.Calculable.ID, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// loadUSTelecomScenario: one line per US sample address.
//
// Expected results:
//   - Los Angeles VoIP, 2 seats, 200.00 local: 911 + tiered UUT + capped CST + transit fee = 27.10
//   - Austin landline 100.00 local: 5% state + 2.50 city 911 = 7.50
//   - Buffalo landline 100.00 intrastate: excise 2.5% + 1.20 911 = 3.70 (legacy 3% excise superseded)
//   - Sacramento landline 100.00 interstate: USF 36.3% (Q2 factor)
func loadUSTelecomScenario(ctx context.Context, h *Handler) ([]*tax.CalculationRecord, error) {
	const id = "us-telecom"
	la := scenarioLine(id, 1, telecom.CustomerRetail, telecom.CategoryLocalVoice, telecom.ServiceVoIP, "200.00", "los-angeles")
	la.AccessLines = 2

	return calculateLines(ctx, h, []telecom.ServiceLine{
		la,
		scenarioLine(id, 2, telecom.CustomerRetail, telecom.CategoryLocalVoice, telecom.ServiceLandline, "100.00", "austin"),
		scenarioLine(id, 3, telecom.CustomerRetail, telecom.CategoryIntrastateVoice, telecom.ServiceLandline, "100.00", "buffalo"),
		scenarioLine(id, 4, telecom.CustomerRetail, telecom.CategoryInterstateVoice, telecom.ServiceLandline, "100.00", "sacramento"),
	})
}

// loadExemptCustomersScenario: the same kinds of lines for exempt customers.
func loadExemptCustomersScenario(ctx context.Context, h *Handler) ([]*tax.CalculationRecord, error) {
	const id = "exempt-customers"
	nonprofit := scenarioLine(id, 2, telecom.CustomerNonProfit, telecom.CategoryLocalVoice, telecom.ServiceVoIP, "200.00", "los-angeles")
	nonprofit.AccessLines = 2

	return calculateLines(ctx, h, []telecom.ServiceLine{
		scenarioLine(id, 1, telecom.CustomerReseller, telecom.CategoryInterstateVoice, telecom.ServiceLandline, "100.00", "sacramento"),
		nonprofit,
		scenarioLine(id, 3, telecom.CustomerAgency, telecom.CategoryLocalVoice, telecom.ServiceLandline, "100.00", "austin"),
		scenarioLine(id, 4, telecom.CustomerAgency, telecom.CategoryLocalVoice, telecom.ServiceLandline, "1000.00", "austin"),
	})
}

// loadUKVATScenario: a 120.00 GBP price that already includes 20% VAT.
func loadUKVATScenario(ctx context.Context, h *Handler) ([]*tax.CalculationRecord, error) {
	line := scenarioLine("uk-vat", 1, telecom.CustomerRetail, telecom.CategoryLocalVoice, telecom.ServiceVoIP, "120.00", "london")
	line.Currency = "GBP"
	return calculateLines(ctx, h, []telecom.ServiceLine{line})
}

// loadAdjustmentTrailScenario calculates an Austin line, applies it to an
// invoice and then corrects the charge from 100.00 to 120.00.
func loadAdjustmentTrailScenario(ctx context.Context, h *Handler) ([]*tax.CalculationRecord, error) {
	const id = "adjustment-trail"
	recs, err := calculateLines(ctx, h, []telecom.ServiceLine{
		scenarioLine(id, 1, telecom.CustomerRetail, telecom.CategoryLocalVoice, telecom.ServiceLandline, "100.00", "austin"),
	})
	if err != nil {
		return nil, err
	}

	original := recs[0]
	doc := tax.DocumentRef{Kind: tax.DocumentInvoice, ID: "inv-" + original.Calculable.ID}
	applied, err := h.Engine.ApplyTo(ctx, original.ID, doc)
	if err != nil {
		return nil, err
	}

	corrected := decimal.RequireFromString("120.00")
	adjustment, err := h.Engine.Adjust(ctx, applied.ID, "monthly charge corrected", tax.Corrections{BaseAmount: &corrected})
	if err != nil {
		return nil, err
	}

	prior, err := h.Engine.GetCalculation(ctx, original.ID)
	if err != nil {
		return nil, err
	}
	return []*tax.CalculationRecord{prior, adjustment}, nil
}
