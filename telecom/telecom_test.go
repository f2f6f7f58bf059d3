package telecom_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tax-engine/factory"
	"github.com/warp/tax-engine/tax"
	"github.com/warp/tax-engine/tax/store"
	"github.com/warp/tax-engine/telecom"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var june2025 = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

func newSampleEngine(t *testing.T) *tax.Engine {
	t.Helper()
	f := factory.NewReferenceFactory()
	set, err := f.Parse([]byte(telecom.SampleReferenceYAML()))
	require.NoError(t, err)

	mem := store.NewMemory()
	_, err = f.Load(context.Background(), mem, set)
	require.NoError(t, err)

	return tax.NewEngine(mem, mem, tax.WithClock(func() time.Time { return june2025 }))
}

func line(id string, customer tax.CustomerID, category tax.CategoryID, st telecom.ServiceType, charge string, lines int, where string) telecom.ServiceLine {
	return telecom.ServiceLine{
		Calculable:    tax.CalculableRef{Kind: tax.CalculableInvoiceLine, ID: id},
		Customer:      customer,
		Category:      category,
		ServiceType:   st,
		MonthlyCharge: decimal.RequireFromString(charge),
		AccessLines:   lines,
		Address:       telecom.SampleAddresses[where],
	}
}

func calc(t *testing.T, e *tax.Engine, l telecom.ServiceLine) *tax.CalculationRecord {
	t.Helper()
	rec, err := e.Calculate(context.Background(), l.ToCalculateRequest())
	require.NoError(t, err)
	return rec
}

func contributions(rec *tax.CalculationRecord) map[tax.RateID]string {
	out := make(map[tax.RateID]string, len(rec.Breakdown))
	for _, b := range rec.Breakdown {
		out[b.RateID] = b.Contribution.StringFixed(2)
	}
	return out
}

// =============================================================================
// SAMPLE DOCUMENT
// =============================================================================

func TestSampleReference_Parses(t *testing.T) {
	set, err := factory.NewReferenceFactory().Parse([]byte(telecom.SampleReferenceYAML()))
	require.NoError(t, err)
	assert.Len(t, set.Jurisdictions, 10)
	assert.NotEmpty(t, set.Rates)
	assert.Len(t, set.Exemptions, 4)
}

func TestCategories_Registered(t *testing.T) {
	for _, c := range telecom.Categories() {
		got, ok := tax.LookupCategory(c.ID)
		assert.True(t, ok, "category %s should be registered", c.ID)
		assert.Equal(t, c.Name, got.Name)
	}
}

func TestServiceLine_ToCalculateRequest(t *testing.T) {
	// GIVEN: A 3-seat VoIP line with usage minutes
	// WHEN: Converting to an engine request
	// THEN: The charge is taxed once and lines/minutes become unit counts

	l := line("inv-1", telecom.CustomerRetail, telecom.CategoryLocalVoice, telecom.ServiceVoIP, "75", 3, "austin")
	l.Minutes = decimal.NewFromInt(420)
	req := l.ToCalculateRequest()

	assert.Equal(t, 1, req.Quantity)
	assert.Equal(t, "voip", req.ServiceType)
	require.NotNil(t, req.Units.Lines)
	assert.Equal(t, "3", req.Units.Lines.String())
	require.NotNil(t, req.Units.Minutes)
	assert.Equal(t, "420", req.Units.Minutes.String())
	assert.Nil(t, req.Units.Units)
}

// =============================================================================
// END-TO-END CALCULATIONS
// =============================================================================

func TestAustinLocalVoice_PercentagePlusFixedFee(t *testing.T) {
	// GIVEN: 100.00 local voice in Austin (5% state + 2.50 city 911)
	// THEN: 7.50 tax, 107.50 final, 7.5% effective

	e := newSampleEngine(t)
	rec := calc(t, e, line("inv-1", telecom.CustomerRetail, telecom.CategoryLocalVoice, telecom.ServiceLandline, "100.00", 1, "austin"))

	assert.Equal(t, "7.50", rec.TotalTax.StringFixed(2))
	assert.Equal(t, "107.50", rec.FinalAmount.StringFixed(2))
	assert.True(t, rec.EffectiveRate.Equal(decimal.RequireFromString("0.075")))
	assert.Equal(t, map[tax.RateID]string{"us-tx-telecom": "5.00", "us-tx-austin-911": "2.50"}, contributions(rec))
}

func TestLosAngelesVoIP_AllLayers(t *testing.T) {
	// GIVEN: 200.00 two-seat VoIP in downtown LA
	// THEN: state 911 per line, tiered county UUT, city CST and transit fee all apply

	e := newSampleEngine(t)
	rec := calc(t, e, line("inv-2", telecom.CustomerRetail, telecom.CategoryLocalVoice, telecom.ServiceVoIP, "200.00", 2, "los-angeles"))

	assert.Equal(t, map[tax.RateID]string{
		"us-ca-911":             "0.60",
		"us-ca-la-county-uut":   "7.50",
		"us-ca-los-angeles-cst": "18.00",
		"us-ca-la-transit-fee":  "1.00",
	}, contributions(rec))
	assert.Equal(t, "27.10", rec.TotalTax.StringFixed(2))

	kinds := make([]tax.JurisdictionKind, len(rec.Input.Jurisdictions))
	for i, j := range rec.Input.Jurisdictions {
		kinds[i] = j.Kind
	}
	assert.Equal(t, []tax.JurisdictionKind{tax.KindFederal, tax.KindState, tax.KindCounty, tax.KindMunicipal, tax.KindSpecialDistrict}, kinds)
}

func TestNonProfit_PartialCappedExemption(t *testing.T) {
	// GIVEN: The same LA line for a 50% non-profit certificate capped at 5.00
	// THEN: Each California rate is halved, the city CST waiver is capped,
	//       and the transit district (not on the certificate) is unchanged

	e := newSampleEngine(t)
	rec := calc(t, e, line("inv-3", telecom.CustomerNonProfit, telecom.CategoryLocalVoice, telecom.ServiceVoIP, "200.00", 2, "los-angeles"))

	assert.Equal(t, map[tax.RateID]string{
		"us-ca-911":             "0.30",
		"us-ca-la-county-uut":   "3.75",
		"us-ca-los-angeles-cst": "13.00",
		"us-ca-la-transit-fee":  "1.00",
	}, contributions(rec))
	assert.Equal(t, "18.05", rec.TotalTax.StringFixed(2))
	assert.Len(t, rec.ExemptionsApplied, 3)
}

func TestReseller_USFExemptPendingCertificateIgnored(t *testing.T) {
	// GIVEN: A reseller with a verified USF certificate and a pending blanket one
	// THEN: USF is fully waived (entry kept), nothing else is touched

	e := newSampleEngine(t)
	rec := calc(t, e, line("inv-4", telecom.CustomerReseller, telecom.CategoryInterstateVoice, telecom.ServiceLandline, "100", 0, "sacramento"))

	require.Len(t, rec.Breakdown, 1)
	assert.Equal(t, tax.RateID("us-usf-2025q2"), rec.Breakdown[0].RateID)
	assert.Equal(t, tax.AdjustFull, rec.Breakdown[0].Exemption.Kind)
	assert.True(t, rec.TotalTax.IsZero())
	assert.Equal(t, "36.30", rec.Breakdown[0].AmountWaived.StringFixed(2))
}

func TestAgency_ConditionalExemption(t *testing.T) {
	// GIVEN: An agency certificate conditioned on orders of 1000 or more
	// THEN: Small orders pay tax, large ones do not

	e := newSampleEngine(t)
	small := calc(t, e, line("inv-5", telecom.CustomerAgency, telecom.CategoryLocalVoice, telecom.ServiceLandline, "100", 1, "austin"))
	large := calc(t, e, line("inv-6", telecom.CustomerAgency, telecom.CategoryLocalVoice, telecom.ServiceLandline, "1000", 1, "austin"))

	assert.Equal(t, "7.50", small.TotalTax.StringFixed(2))
	assert.True(t, large.TotalTax.IsZero())
}

func TestNewYork_LegacyExciseSuperseded(t *testing.T) {
	// GIVEN: Two excise rows for the same jurisdiction, category and tax type
	// THEN: The higher-ranked row applies and the other is disclosed

	e := newSampleEngine(t)
	rec := calc(t, e, line("inv-7", telecom.CustomerRetail, telecom.CategoryIntrastateVoice, telecom.ServiceLandline, "100", 1, "buffalo"))

	assert.Equal(t, map[tax.RateID]string{"us-ny-excise": "2.50", "us-ny-911": "1.20"}, contributions(rec))
	require.Len(t, rec.Metadata.RatesSuperseded, 1)
	assert.Equal(t, tax.RateID("us-ny-excise-legacy"), rec.Metadata.RatesSuperseded[0].RateID)
	assert.Equal(t, tax.ValidationNeedsReview, rec.ValidationStatus)
}

func TestNewYork_MCTDDeMinimis(t *testing.T) {
	// GIVEN: A 20.00 line in Manhattan; 0.375% is 0.075, under the 0.10 minimum
	// THEN: The surcharge entry is present with a zero contribution

	e := newSampleEngine(t)
	rec := calc(t, e, line("inv-8", telecom.CustomerRetail, telecom.CategoryLocalVoice, telecom.ServiceWireless, "20", 1, "new-york"))

	var found bool
	for _, b := range rec.Breakdown {
		if b.RateID == "us-ny-mctd-surcharge" {
			found = true
			assert.True(t, b.Contribution.IsZero())
			assert.Equal(t, "below_minimum_threshold", b.ThresholdNote)
		}
	}
	assert.True(t, found)
}

func TestLondon_InclusiveVAT(t *testing.T) {
	// GIVEN: A 120.00 GBP line under tax-inclusive 20% VAT
	// THEN: VAT is reported but the customer pays the line amount

	e := newSampleEngine(t)
	l := line("inv-9", telecom.CustomerRetail, telecom.CategoryBroadband, telecom.ServiceBroadband, "120", 1, "london")
	l.Currency = "GBP"
	rec := calc(t, e, l)

	assert.Equal(t, "24.00", rec.TotalTax.StringFixed(2))
	assert.Equal(t, "24.00", rec.InclusiveTax.StringFixed(2))
	assert.Equal(t, "120.00", rec.FinalAmount.StringFixed(2))
	assert.Equal(t, "GBP", rec.Currency)
}

func TestExemptionYAML_Loads(t *testing.T) {
	doc := telecom.ExemptionYAML("ex-x", "cust-x", "resale", "100", "us", "us-ca")
	set, err := factory.NewReferenceFactory().Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, set.Exemptions, 1)
	ex := set.Exemptions[0]
	assert.Equal(t, tax.ScopeSpecific, ex.Scope)
	assert.Equal(t, []tax.JurisdictionID{"us", "us-ca"}, ex.Jurisdictions)
	assert.True(t, ex.IsActive(tax.NewDate(2025, time.June, 1)))
}
