/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:

	Defines the JSON structures for API communication. Requests are decoded
	into these types and converted to engine requests; responses wrap the
	domain records and add currency-formatted display strings.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:

	Monetary amounts travel as decimal strings ("107.50"). Numbers are
	accepted on input but strings are preferred so no precision is lost in
	JavaScript clients. Display fields ("$107.50") are for humans only and
	are never parsed back.

VALIDATION:

	Shape validation (missing kind, bad date) happens here; business
	validation is left to the engine, which returns tax.ErrInvalidInput.

SEE ALSO:
  - handlers.go: Uses these types
  - tax/record.go: CalculationRecord
*/
package api

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/warp/tax-engine/factory"
	"github.com/warp/tax-engine/tax"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CalculateRequest is the body of POST /api/calculations.
type CalculateRequest struct {
	CalculableKind string          `json:"calculable_kind"`
	CalculableID   string          `json:"calculable_id"`
	CustomerID     string          `json:"customer_id,omitempty"`
	BaseAmount     decimal.Decimal `json:"base_amount"`
	Quantity       int             `json:"quantity,omitempty"`
	Units          tax.UnitCounts  `json:"units,omitempty"`
	Category       string          `json:"category"`
	ServiceType    string          `json:"service_type,omitempty"`
	Address        tax.Address     `json:"address"`
	AsOf           tax.Date        `json:"as_of,omitempty"`
	Currency       string          `json:"currency,omitempty"`
	SkipCache      bool            `json:"skip_cache,omitempty"`
}

func (r CalculateRequest) toEngine() (tax.CalculateRequest, error) {
	kind := tax.CalculableKind(r.CalculableKind)
	if kind == "" {
		kind = tax.CalculableInvoiceLine
	}
	if !kind.Valid() {
		return tax.CalculateRequest{}, &tax.InputError{Field: "calculable_kind", Reason: fmt.Sprintf("unknown kind %q", r.CalculableKind)}
	}
	if r.CalculableID == "" {
		return tax.CalculateRequest{}, &tax.InputError{Field: "calculable_id", Reason: "is required"}
	}
	return tax.CalculateRequest{
		Calculable:  tax.CalculableRef{Kind: kind, ID: r.CalculableID},
		CustomerID:  tax.CustomerID(r.CustomerID),
		BaseAmount:  r.BaseAmount,
		Quantity:    r.Quantity,
		Units:       r.Units,
		Category:    tax.CategoryID(r.Category),
		ServiceType: r.ServiceType,
		Address:     r.Address,
		AsOf:        r.AsOf,
		Currency:    r.Currency,
		SkipCache:   r.SkipCache,
	}, nil
}

// ApplyRequest binds a calculation to an invoice or quote.
type ApplyRequest struct {
	DocumentKind string `json:"document_kind"`
	DocumentID   string `json:"document_id"`
}

// VoidRequest cancels a calculation.
type VoidRequest struct {
	Reason string `json:"reason"`
}

// AdjustRequest corrects a calculation. Omitted fields keep the value of
// the calculation being adjusted.
type AdjustRequest struct {
	Reason      string           `json:"reason"`
	BaseAmount  *decimal.Decimal `json:"base_amount,omitempty"`
	Quantity    *int             `json:"quantity,omitempty"`
	Units       *tax.UnitCounts  `json:"units,omitempty"`
	Category    *string          `json:"category,omitempty"`
	ServiceType *string          `json:"service_type,omitempty"`
	Address     *tax.Address     `json:"address,omitempty"`
	AsOf        *tax.Date        `json:"as_of,omitempty"`
}

func (r AdjustRequest) corrections() tax.Corrections {
	c := tax.Corrections{
		BaseAmount:  r.BaseAmount,
		Quantity:    r.Quantity,
		Units:       r.Units,
		ServiceType: r.ServiceType,
		Address:     r.Address,
		AsOf:        r.AsOf,
	}
	if r.Category != nil {
		cat := tax.CategoryID(*r.Category)
		c.Category = &cat
	}
	return c
}

// ResolveRequest is the body of POST /api/jurisdictions/resolve.
type ResolveRequest struct {
	Address tax.Address `json:"address"`
	AsOf    tax.Date    `json:"as_of,omitempty"`
}

// LoadScenarioRequest selects a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// CalculationDTO is a stored calculation plus display strings.
type CalculationDTO struct {
	*tax.CalculationRecord
	Display DisplayDTO `json:"display"`
}

// DisplayDTO holds formatted amounts in the record's currency.
type DisplayDTO struct {
	LineAmount    string             `json:"line_amount"`
	TotalTax      string             `json:"total_tax"`
	InclusiveTax  string             `json:"inclusive_tax,omitempty"`
	FinalAmount   string             `json:"final_amount"`
	EffectiveRate string             `json:"effective_rate"`
	TaxDelta      string             `json:"tax_delta,omitempty"`
	Lines         []DisplayLineDTO   `json:"lines"`
	Exemptions    []DisplayWaiverDTO `json:"exemptions,omitempty"`
}

// DisplayLineDTO is one breakdown row for an invoice printout.
type DisplayLineDTO struct {
	Jurisdiction string `json:"jurisdiction"`
	TaxType      string `json:"tax_type,omitempty"`
	Contribution string `json:"contribution"`
	Waived       string `json:"waived,omitempty"`
}

type DisplayWaiverDTO struct {
	ExemptionID string `json:"exemption_id"`
	RateID      string `json:"rate_id"`
	Waived      string `json:"waived"`
}

func toCalculationDTO(rec *tax.CalculationRecord) CalculationDTO {
	cur := rec.Currency
	d := DisplayDTO{
		LineAmount:    tax.FormatAmount(rec.LineAmount, cur),
		TotalTax:      tax.FormatAmount(rec.TotalTax, cur),
		FinalAmount:   tax.FormatAmount(rec.FinalAmount, cur),
		EffectiveRate: formatPercent(rec.EffectiveRate),
		Lines:         make([]DisplayLineDTO, len(rec.Breakdown)),
	}
	if !rec.InclusiveTax.IsZero() {
		d.InclusiveTax = tax.FormatAmount(rec.InclusiveTax, cur)
	}
	if rec.TaxDelta != nil {
		d.TaxDelta = tax.FormatAmount(*rec.TaxDelta, cur)
	}
	for i, e := range rec.Breakdown {
		line := DisplayLineDTO{
			Jurisdiction: e.JurisdictionName,
			TaxType:      e.TaxType,
			Contribution: tax.FormatAmount(e.Contribution, cur),
		}
		if !e.AmountWaived.IsZero() {
			line.Waived = tax.FormatAmount(e.AmountWaived, cur)
		}
		d.Lines[i] = line
	}
	for _, ex := range rec.ExemptionsApplied {
		d.Exemptions = append(d.Exemptions, DisplayWaiverDTO{
			ExemptionID: string(ex.ExemptionID),
			RateID:      string(ex.RateID),
			Waived:      tax.FormatAmount(ex.AmountWaived, cur),
		})
	}
	return CalculationDTO{CalculationRecord: rec, Display: d}
}

func toCalculationDTOs(recs []tax.CalculationRecord) []CalculationDTO {
	dtos := make([]CalculationDTO, len(recs))
	for i := range recs {
		dtos[i] = toCalculationDTO(&recs[i])
	}
	return dtos
}

// formatPercent renders a fractional rate (0.075) as "7.5%".
func formatPercent(rate decimal.Decimal) string {
	return rate.Shift(2).Round(4).String() + "%"
}

// JurisdictionDTO is a resolved jurisdiction.
type JurisdictionDTO struct {
	tax.Jurisdiction
	Breadth int `json:"breadth"`
}

// ResolveResponse lists the jurisdictions for an address, broadest first.
type ResolveResponse struct {
	AsOf          string            `json:"as_of,omitempty"`
	Jurisdictions []JurisdictionDTO `json:"jurisdictions"`
}

// RatesResponse lists the effective rates for an address and category.
// Overlapping rates are all listed; the executor decides which one wins.
type RatesResponse struct {
	AsOf     string               `json:"as_of,omitempty"`
	Category string               `json:"category"`
	Rates    []tax.RateDefinition `json:"rates"`
}

// ExemptionsResponse lists a customer's active exemption certificates.
type ExemptionsResponse struct {
	CustomerID string          `json:"customer_id"`
	AsOf       string          `json:"as_of,omitempty"`
	Exemptions []tax.Exemption `json:"exemptions"`
}

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// ScenarioResultDTO is returned after loading a scenario.
type ScenarioResultDTO struct {
	Scenario     ScenarioDTO         `json:"scenario"`
	Reference    factory.LoadSummary `json:"reference"`
	Calculations []CalculationDTO    `json:"calculations"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func parseLimit(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, &tax.InputError{Field: "limit", Reason: "must be a non-negative integer"}
	}
	return n, nil
}
