package tax_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tax-engine/tax"
)

func verifiedExemption(id tax.ExemptionID, pct string) tax.Exemption {
	verified := tax.MustParseDate("2024-06-01")
	return tax.Exemption{
		ID: id, CustomerID: "cust-1", Type: "resale",
		Scope: tax.ScopeBlanket, Percentage: dec(pct),
		Verification: tax.VerificationVerified, VerifiedAt: &verified,
		Window: tax.Window{Effective: tax.MustParseDate("2024-01-01")},
	}
}

var filterCtx = tax.FilterContext{
	CustomerID: "cust-1", BaseAmount: dec("100"), Quantity: 1,
	Category: "voice", ServiceType: "voip",
	Address: tax.Address{Country: "US", State: "CA"},
	AsOf:    tax.MustParseDate("2025-03-01"),
}

func TestFilterExemptions_InactiveNeverApply(t *testing.T) {
	rates := []tax.RateDefinition{pctRate("a", "st", "5", 10)}
	pending := verifiedExemption("pending", "100")
	pending.Verification = tax.VerificationPending
	rejected := verifiedExemption("rejected", "100")
	rejected.Verification = tax.VerificationRejected
	expiry := tax.MustParseDate("2025-01-01")
	expired := verifiedExemption("expired", "100")
	expired.Window.Expiry = &expiry

	adj, warnings := tax.FilterExemptions(rates, []tax.Exemption{pending, rejected, expired}, filterCtx)

	assert.Empty(t, warnings)
	assert.Equal(t, tax.AdjustNone, adj["a"].Kind)
}

func TestFilterExemptions_SpecificScope(t *testing.T) {
	fedRate := pctRate("usf", "fed", "10", 10)
	fedRate.TaxType = "usf"
	stateRate := pctRate("sales", "st", "5", 20)
	stateRate.TaxType = "sales"

	fedOnly := verifiedExemption("fed-only", "50")
	fedOnly.Scope = tax.ScopeSpecific
	fedOnly.Jurisdictions = []tax.JurisdictionID{"fed"}

	byTaxType := verifiedExemption("sales-only", "100")
	byTaxType.Scope = tax.ScopeSpecific
	byTaxType.TaxTypes = []string{"SALES"}
	byTaxType.ServiceTypes = []string{"voip"}

	emptySpecific := verifiedExemption("empty", "100")
	emptySpecific.Scope = tax.ScopeSpecific

	adj, _ := tax.FilterExemptions([]tax.RateDefinition{fedRate, stateRate}, []tax.Exemption{fedOnly, byTaxType, emptySpecific}, filterCtx)

	assert.Equal(t, tax.AdjustPartial, adj["usf"].Kind)
	assert.Equal(t, tax.ExemptionID("fed-only"), adj["usf"].ExemptionID)
	assert.Equal(t, tax.AdjustFull, adj["sales"].Kind)
	assert.Equal(t, tax.ExemptionID("sales-only"), adj["sales"].ExemptionID)
}

func TestFilterExemptions_WinnerSelection(t *testing.T) {
	rates := []tax.RateDefinition{pctRate("a", "st", "5", 10)}

	tests := []struct {
		name       string
		exemptions func() []tax.Exemption
		want       tax.ExemptionID
		conflict   bool
	}{
		{
			name: "highest percentage wins",
			exemptions: func() []tax.Exemption {
				return []tax.Exemption{verifiedExemption("low", "25"), verifiedExemption("high", "75")}
			},
			want: "high",
		},
		{
			name: "lower priority number wins a percentage tie",
			exemptions: func() []tax.Exemption {
				a, b := verifiedExemption("a", "50"), verifiedExemption("b", "50")
				a.Priority, b.Priority = 5, 1
				return []tax.Exemption{a, b}
			},
			want: "b",
		},
		{
			name: "most recently verified breaks a full tie and warns",
			exemptions: func() []tax.Exemption {
				a, b := verifiedExemption("a", "50"), verifiedExemption("b", "50")
				later := tax.MustParseDate("2024-09-01")
				b.VerifiedAt = &later
				return []tax.Exemption{a, b}
			},
			want:     "b",
			conflict: true,
		},
		{
			name: "lowest id as last resort",
			exemptions: func() []tax.Exemption {
				return []tax.Exemption{verifiedExemption("zeta", "50"), verifiedExemption("alpha", "50")}
			},
			want:     "alpha",
			conflict: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adj, warnings := tax.FilterExemptions(rates, tt.exemptions(), filterCtx)
			assert.Equal(t, tt.want, adj["a"].ExemptionID)
			if tt.conflict {
				require.Len(t, warnings, 1)
				assert.Equal(t, tax.WarnExemptionConflict, warnings[0].Code)
			} else {
				assert.Empty(t, warnings)
			}
		})
	}
}

func TestFilterExemptions_PartialWithCapIsNotFull(t *testing.T) {
	ex := verifiedExemption("capped", "100")
	ex.MaximumAmount = tax.DecimalPtr("10")

	adj, _ := tax.FilterExemptions([]tax.RateDefinition{pctRate("a", "st", "5", 10)}, []tax.Exemption{ex}, filterCtx)
	assert.Equal(t, tax.AdjustPartial, adj["a"].Kind)
	require.NotNil(t, adj["a"].Cap)
}

func TestFilterExemptions_Conditions(t *testing.T) {
	rates := []tax.RateDefinition{pctRate("a", "st", "5", 10), pctRate("b", "fed", "5", 10)}

	stateOnly := verifiedExemption("state-only", "100")
	stateOnly.Condition = map[string]any{"==": []any{map[string]any{"var": "rate.jurisdiction"}, "st"}}

	bigOrders := verifiedExemption("big", "100")
	bigOrders.Condition = map[string]any{">": []any{map[string]any{"var": "line.base_amount"}, 500}}

	adj, warnings := tax.FilterExemptions(rates, []tax.Exemption{stateOnly, bigOrders}, filterCtx)
	assert.Empty(t, warnings)
	assert.Equal(t, tax.AdjustFull, adj["a"].Kind)
	assert.Equal(t, tax.AdjustNone, adj["b"].Kind)
}

func TestFilterExemptions_BrokenConditionWarns(t *testing.T) {
	broken := verifiedExemption("broken", "100")
	broken.Condition = map[string]any{"==": make(chan int)}

	adj, warnings := tax.FilterExemptions([]tax.RateDefinition{pctRate("a", "st", "5", 10)}, []tax.Exemption{broken}, filterCtx)
	assert.Equal(t, tax.AdjustNone, adj["a"].Kind)
	require.Len(t, warnings, 1)
	assert.Equal(t, tax.WarnExemptionCondition, warnings[0].Code)
	assert.Equal(t, tax.ExemptionID("broken"), warnings[0].ExemptionID)
}

func TestFilterExemptions_DoesNotMutateInput(t *testing.T) {
	exemptions := []tax.Exemption{verifiedExemption("b", "50"), verifiedExemption("a", "50")}
	tax.FilterExemptions([]tax.RateDefinition{pctRate("a", "st", "5", 10)}, exemptions, filterCtx)
	assert.Equal(t, tax.ExemptionID("b"), exemptions[0].ID)
}
