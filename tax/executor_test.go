package tax_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tax-engine/tax"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	federal = tax.Jurisdiction{ID: "fed", Kind: tax.KindFederal, Name: "Federal", Scope: tax.GeoScope{Country: "US"}}
	state   = tax.Jurisdiction{ID: "st", Kind: tax.KindState, Name: "State", Scope: tax.GeoScope{Country: "US", State: "CA"}}
	city    = tax.Jurisdiction{ID: "city", Kind: tax.KindMunicipal, Name: "City", Scope: tax.GeoScope{Country: "US", State: "CA", Municipality: "SPRINGFIELD"}}
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func pctRate(id tax.RateID, j tax.JurisdictionID, pct string, priority int) tax.RateDefinition {
	return tax.RateDefinition{
		ID: id, JurisdictionID: j, TaxType: string(id),
		Shape: tax.ShapePercentage, Percentage: tax.DecimalPtr(pct),
		Method: tax.MethodStandard, Priority: priority,
	}
}

func fixedRate(id tax.RateID, j tax.JurisdictionID, amount string, priority int) tax.RateDefinition {
	return tax.RateDefinition{
		ID: id, JurisdictionID: j, TaxType: string(id),
		Shape: tax.ShapeFixed, FixedAmount: tax.DecimalPtr(amount),
		Method: tax.MethodStandard, Priority: priority,
	}
}

func execute(base string, rates ...tax.RateDefinition) tax.ExecutionResult {
	return tax.Execute(tax.ExecutionInput{
		BaseAmount:    dec(base),
		Quantity:      1,
		Rates:         rates,
		Jurisdictions: []tax.Jurisdiction{federal, state, city},
	})
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]any{"want %s got %s", want, got.String()}, msgAndArgs...)...)
}

// =============================================================================
// WORKED EXAMPLES
// =============================================================================

func TestExecute_PercentagePlusFixed(t *testing.T) {
	// GIVEN: 100.00 with a 5% state rate and a 2.50 city fee
	// THEN: 7.50 tax, 107.50 final, 0.075 effective rate

	res := execute("100.00", pctRate("st-5", "st", "5", 10), fixedRate("city-fee", "city", "2.50", 20))

	assertMoney(t, "7.50", res.TotalTax)
	assertMoney(t, "107.50", res.FinalAmount)
	assertMoney(t, "0.075", res.EffectiveRate)
	require.Len(t, res.Breakdown, 2)
	assert.Equal(t, tax.RateID("st-5"), res.Breakdown[0].RateID)
	assert.Equal(t, 1, res.Breakdown[0].Sequence)
	assert.Equal(t, "State", res.Breakdown[0].JurisdictionName)
}

func TestExecute_HalfFederalExemption(t *testing.T) {
	// GIVEN: 100.00 at a 10% federal rate with a 50% exemption on it
	// THEN: 5.00 tax and the waiver is listed

	rate := pctRate("fed-10", "fed", "10", 10)
	res := tax.Execute(tax.ExecutionInput{
		BaseAmount: dec("100.00"), Quantity: 1,
		Rates:         []tax.RateDefinition{rate},
		Jurisdictions: []tax.Jurisdiction{federal},
		Adjustments: map[tax.RateID]tax.Adjustment{
			"fed-10": {Kind: tax.AdjustPartial, ExemptionID: "ex-1", Percentage: dec("50")},
		},
	})

	assertMoney(t, "5.00", res.TotalTax)
	require.Len(t, res.ExemptionsApplied, 1)
	assert.Equal(t, tax.ExemptionID("ex-1"), res.ExemptionsApplied[0].ExemptionID)
	assertMoney(t, "5.00", res.ExemptionsApplied[0].AmountWaived)
}

func TestExecute_ZeroBaseStillOwesFixedFee(t *testing.T) {
	res := execute("0", pctRate("st-5", "st", "5", 10), fixedRate("fee", "city", "1.00", 20))

	assertMoney(t, "1.00", res.TotalTax)
	assertMoney(t, "0", res.EffectiveRate)
	assert.Len(t, res.Breakdown, 2)
}

func TestExecute_RefundIsNegative(t *testing.T) {
	// GIVEN: A -50.00 credit line at 5% plus a 1.00 fee
	// THEN: Both contributions are negative, mirroring the charge

	res := execute("-50.00", pctRate("st-5", "st", "5", 10), fixedRate("fee", "city", "1.00", 20))

	assertMoney(t, "-2.50", res.Breakdown[0].Contribution)
	assertMoney(t, "-1.00", res.Breakdown[1].Contribution)
	assertMoney(t, "-3.50", res.TotalTax)
	assertMoney(t, "-53.50", res.FinalAmount)
}

func TestExecute_EmptyRates(t *testing.T) {
	res := execute("100")

	assertMoney(t, "0", res.TotalTax)
	assertMoney(t, "100", res.FinalAmount)
	require.NotNil(t, res.Breakdown)
	assert.Empty(t, res.Breakdown)
	assert.NotNil(t, res.ExemptionsApplied)
}

// =============================================================================
// PROPERTIES
// =============================================================================

func TestExecute_StandardRatesAreAdditive(t *testing.T) {
	// GIVEN: Several standard rates
	// THEN: Total equals the sum of each rate applied alone

	rates := []tax.RateDefinition{
		pctRate("a", "fed", "3.3", 10),
		pctRate("b", "st", "6.25", 20),
		pctRate("c", "city", "1.1", 30),
		fixedRate("d", "city", "0.45", 40),
	}
	for _, base := range []string{"0", "1", "19.99", "100", "1234.56", "-87.13"} {
		together := execute(base, rates...)
		sum := decimal.Zero
		for _, r := range rates {
			sum = sum.Add(execute(base, r).TotalTax)
		}
		assertMoney(t, sum.String(), together.TotalTax, "base %s", base)
	}
}

func TestExecute_CompoundNeverLowerThanStandard(t *testing.T) {
	// GIVEN: The same rate set once standard and once with a compounding last rate
	// THEN: Compound total >= standard total for positive bases

	standard := []tax.RateDefinition{pctRate("a", "st", "6", 10), pctRate("b", "city", "2", 20)}
	compound := []tax.RateDefinition{pctRate("a", "st", "6", 10), pctRate("b", "city", "2", 20)}
	compound[1].Method = tax.MethodCompound

	for _, base := range []string{"1", "10", "99.99", "100", "5000"} {
		s := execute(base, standard...)
		c := execute(base, compound...)
		assert.True(t, c.TotalTax.GreaterThanOrEqual(s.TotalTax), "base %s: compound %s < standard %s", base, c.TotalTax, s.TotalTax)
	}

	c := execute("100", compound...)
	assertMoney(t, "106", c.Breakdown[1].TaxableBase)
	assertMoney(t, "2.12", c.Breakdown[1].Contribution)
	assert.True(t, c.Breakdown[1].Compounded)
}

func TestExecute_CompoundFlagOnStandardMethod(t *testing.T) {
	r := pctRate("b", "city", "10", 20)
	r.Compound = true
	res := execute("100", pctRate("a", "st", "10", 10), r)

	assertMoney(t, "11", res.Breakdown[1].Contribution)
}

func TestExecute_FullExemptionKeepsEntry(t *testing.T) {
	res := tax.Execute(tax.ExecutionInput{
		BaseAmount: dec("100"), Quantity: 1,
		Rates:         []tax.RateDefinition{pctRate("a", "st", "5", 10)},
		Jurisdictions: []tax.Jurisdiction{state},
		Adjustments:   map[tax.RateID]tax.Adjustment{"a": {Kind: tax.AdjustFull, ExemptionID: "ex", Percentage: dec("100")}},
	})

	assertMoney(t, "0", res.TotalTax)
	require.Len(t, res.Breakdown, 1)
	assertMoney(t, "5", res.Breakdown[0].BeforeExemption)
	assertMoney(t, "5", res.Breakdown[0].AmountWaived)
	assertMoney(t, "0", res.Breakdown[0].Contribution)
}

func TestExecute_PartialExemptionCapped(t *testing.T) {
	res := tax.Execute(tax.ExecutionInput{
		BaseAmount: dec("1000"), Quantity: 1,
		Rates:         []tax.RateDefinition{pctRate("a", "st", "10", 10)},
		Jurisdictions: []tax.Jurisdiction{state},
		Adjustments: map[tax.RateID]tax.Adjustment{
			"a": {Kind: tax.AdjustPartial, ExemptionID: "ex", Percentage: dec("50"), Cap: tax.DecimalPtr("20")},
		},
	})

	assertMoney(t, "20", res.Breakdown[0].AmountWaived)
	assertMoney(t, "80", res.TotalTax)
}

func TestExecute_Deterministic(t *testing.T) {
	rates := []tax.RateDefinition{fixedRate("z", "city", "1", 10), pctRate("a", "st", "7.125", 10), pctRate("m", "fed", "2", 10)}
	first := execute("333.33", rates...)
	reversed := execute("333.33", rates[2], rates[1], rates[0])

	assert.Equal(t, first.Breakdown, reversed.Breakdown)
	assert.Equal(t, first.TotalTax, reversed.TotalTax)
	// equal priority: broader jurisdiction first
	assert.Equal(t, []tax.RateID{"m", "a", "z"}, []tax.RateID{first.Breakdown[0].RateID, first.Breakdown[1].RateID, first.Breakdown[2].RateID})
}

// =============================================================================
// SHAPES
// =============================================================================

func TestExecute_Tiered(t *testing.T) {
	r := tax.RateDefinition{
		ID: "tier", JurisdictionID: "st", Shape: tax.ShapeTiered, Method: tax.MethodStandard,
		Tiers: []tax.Tier{
			{UpTo: tax.DecimalPtr("100"), Percentage: dec("10")},
			{UpTo: tax.DecimalPtr("500"), Percentage: dec("5")},
			{Percentage: dec("1")},
		},
	}

	tests := []struct{ base, want string }{
		{"50", "5"},
		{"100", "10"},
		{"300", "20"},
		{"1000", "35"},
		{"-300", "-20"},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			assertMoney(t, tt.want, execute(tt.base, r).TotalTax)
		})
	}
}

func TestExecute_PerUnitShapes(t *testing.T) {
	perLine := tax.RateDefinition{ID: "pl", JurisdictionID: "st", TaxType: "e911", Shape: tax.ShapePerLine, FixedAmount: tax.DecimalPtr("0.75"), Method: tax.MethodStandard}
	perMinute := tax.RateDefinition{ID: "pm", JurisdictionID: "st", TaxType: "usage", Shape: tax.ShapePerMinute, FixedAmount: tax.DecimalPtr("0.002"), Method: tax.MethodStandard}

	lines := dec("4")
	minutes := dec("1500")
	res := tax.Execute(tax.ExecutionInput{
		BaseAmount: dec("80"), Quantity: 2,
		Units:         tax.UnitCounts{Lines: &lines, Minutes: &minutes},
		Rates:         []tax.RateDefinition{perLine, perMinute},
		Jurisdictions: []tax.Jurisdiction{state},
	})
	assertMoney(t, "3.00", res.Breakdown[0].Contribution)
	assertMoney(t, "3.00", res.Breakdown[1].Contribution)
	assertMoney(t, "160", res.LineAmount)

	// without unit counts the line quantity is used
	res = tax.Execute(tax.ExecutionInput{
		BaseAmount: dec("80"), Quantity: 2,
		Rates:         []tax.RateDefinition{perLine},
		Jurisdictions: []tax.Jurisdiction{state},
	})
	assertMoney(t, "1.50", res.TotalTax)
}

func TestExecute_Thresholds(t *testing.T) {
	deMinimis := pctRate("dm", "city", "0.5", 10)
	deMinimis.MinimumThreshold = tax.DecimalPtr("0.10")
	capped := pctRate("cap", "st", "10", 20)
	capped.MaximumAmount = tax.DecimalPtr("25")

	res := execute("10", deMinimis, capped)
	assertMoney(t, "0", res.Breakdown[0].Contribution)
	assert.Equal(t, "below_minimum_threshold", res.Breakdown[0].ThresholdNote)
	assertMoney(t, "1", res.Breakdown[1].Contribution)

	res = execute("1000", deMinimis, capped)
	assertMoney(t, "5", res.Breakdown[0].Contribution)
	assertMoney(t, "25", res.Breakdown[1].Contribution)
	assert.Equal(t, "capped_at_maximum", res.Breakdown[1].ThresholdNote)

	res = execute("-1000", capped)
	assertMoney(t, "-25", res.TotalTax)
}

func TestExecute_BankersRounding(t *testing.T) {
	// 0.125 rounds half-to-even down, 0.135 rounds up
	res := execute("2.5", pctRate("a", "st", "5", 10))
	assertMoney(t, "0.125", res.Breakdown[0].PreRounding)
	assertMoney(t, "0.12", res.Breakdown[0].Contribution)

	res = execute("2.7", pctRate("a", "st", "5", 10))
	assertMoney(t, "0.14", res.Breakdown[0].Contribution)
}

// =============================================================================
// METHODS
// =============================================================================

func TestExecute_InclusivePeelsOffBase(t *testing.T) {
	// GIVEN: 120.00 with a 20% inclusive rate followed by a 10% compound rate
	// THEN: The inclusive tax is excluded from the final amount and the
	//       compound base is the reduced running base plus prior tax

	vat := pctRate("vat", "fed", "20", 10)
	vat.Method = tax.MethodInclusive
	levy := pctRate("levy", "st", "10", 20)
	levy.Method = tax.MethodCompound

	res := execute("120", vat, levy)

	assert.True(t, res.Breakdown[0].Inclusive)
	assertMoney(t, "24", res.Breakdown[0].Contribution)
	assertMoney(t, "120", res.Breakdown[1].TaxableBase) // (120 - 24) + 24
	assertMoney(t, "12", res.Breakdown[1].Contribution)
	assertMoney(t, "36", res.TotalTax)
	assertMoney(t, "24", res.InclusiveTax)
	assertMoney(t, "132", res.FinalAmount)
}

func TestExecute_AdditiveAndExclusiveUseLineBase(t *testing.T) {
	a := pctRate("a", "fed", "10", 10)
	a.Method = tax.MethodAdditive
	b := pctRate("b", "st", "10", 20)
	b.Method = tax.MethodExclusive

	res := execute("100", a, b)
	assertMoney(t, "100", res.Breakdown[1].TaxableBase)
	assertMoney(t, "20", res.TotalTax)
}

// =============================================================================
// DATA QUALITY
// =============================================================================

func TestExecute_MalformedRatesSkipped(t *testing.T) {
	noPct := tax.RateDefinition{ID: "no-pct", JurisdictionID: "st", Shape: tax.ShapePercentage}
	badShape := tax.RateDefinition{ID: "bad-shape", JurisdictionID: "st", Shape: "bogus"}
	badMethod := pctRate("bad-method", "st", "1", 10)
	badMethod.Method = "sideways"
	negative := pctRate("negative", "st", "-1", 10)
	noTiers := tax.RateDefinition{ID: "no-tiers", JurisdictionID: "st", Shape: tax.ShapeTiered}
	noFixed := tax.RateDefinition{ID: "no-fixed", JurisdictionID: "st", Shape: tax.ShapePerLine}

	res := execute("100", noPct, badShape, badMethod, negative, noTiers, noFixed, pctRate("ok", "st", "5", 10))

	assertMoney(t, "5", res.TotalTax)
	assert.Len(t, res.RatesSkipped, 6)
	assert.Len(t, res.RatesConsidered, 7)
	for _, w := range res.Warnings {
		assert.Equal(t, tax.WarnRateData, w.Code)
	}
}

func TestExecute_OverlapSuperseded(t *testing.T) {
	// GIVEN: Two rates for the same jurisdiction, category and tax type
	// THEN: Only the higher-ranked one applies; the other is disclosed

	winner := pctRate("ca-2025", "st", "6", 10)
	winner.TaxType = "sales"
	loser := pctRate("ca-2024", "st", "7", 20)
	loser.TaxType = "SALES"

	res := execute("100", loser, winner)

	assertMoney(t, "6", res.TotalTax)
	require.Len(t, res.RatesSuperseded, 1)
	assert.Equal(t, tax.SupersededRate{RateID: "ca-2024", By: "ca-2025"}, res.RatesSuperseded[0])
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, tax.WarnRateOverlap, res.Warnings[0].Code)
}

func TestExecute_DifferentServiceScopesDoNotOverlap(t *testing.T) {
	a := pctRate("a", "st", "1", 10)
	a.TaxType = "e911"
	a.ServiceTypes = []string{"voip"}
	b := pctRate("b", "st", "1", 10)
	b.TaxType = "e911"
	b.ServiceTypes = []string{"wireless"}

	res := execute("100", a, b)
	assert.Len(t, res.Breakdown, 2)
	assert.Empty(t, res.RatesSuperseded)
}

func TestEffectiveRate(t *testing.T) {
	assertMoney(t, "0", tax.EffectiveRate(dec("5"), decimal.Zero))
	assertMoney(t, "0.33333333", tax.EffectiveRate(dec("1"), dec("3")))
}
