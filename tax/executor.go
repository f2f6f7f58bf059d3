/*
executor.go - The calculation algorithm

PURPOSE:
  Applies every surviving rate to a line, in a deterministic order, and
  produces an itemized breakdown plus totals. This is a pure function:
  same input, same breakdown, byte for byte.

ALGORITHM:
  1. Validate rates; malformed ones are skipped with a rate_data warning
     (a billing document must never be blocked by one bad rate row)
  2. Sort: priority asc -> jurisdiction breadth -> rate ID
  3. Resolve overlaps: same jurisdiction + category + tax type + service
     scope keeps the first rate in sort order, the rest are superseded
  4. lineBase = base x quantity, runningBase = lineBase, cumulativeTax = 0
  5. For each rate:
       taxable base  inclusive -> runningBase
                     compound  -> runningBase + cumulativeTax
                     otherwise -> lineBase
       raw amount    by shape (percentage, fixed, tiered, per_*)
       thresholds    |raw| < minimum -> 0 (de minimis), |raw| <= maximum
       exemption     partial waives p% (capped), full waives everything
       rounding      half-to-even at 2 places, both values recorded
     Inclusive contributions are peeled off runningBase.
  6. total = sum(contributions), final = lineBase + total - inclusive portion,
     effective rate = total / lineBase (0 when lineBase is 0)

SIGN HANDLING:
  Refund lines (negative base) run the identical algorithm. Base-dependent
  shapes turn negative naturally; base-independent fees take the sign of
  the line so a refund mirrors its original charge. Zero-value lines still
  owe fixed fees.

SEE ALSO:
  - exemption.go: Produces the adjustments consumed here
  - recorder.go: Persists the result
*/
package tax

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// RoundingPlaces is the precision of every recorded contribution.
const RoundingPlaces = 2

// =============================================================================
// INPUT / OUTPUT
// =============================================================================

type ExecutionInput struct {
	BaseAmount    decimal.Decimal
	Quantity      int
	Units         UnitCounts
	Rates         []RateDefinition
	Adjustments   map[RateID]Adjustment
	Jurisdictions []Jurisdiction
}

// BreakdownEntry explains one rate's contribution.
type BreakdownEntry struct {
	Sequence         int               `json:"sequence"`
	JurisdictionID   JurisdictionID    `json:"jurisdiction_id"`
	JurisdictionKind JurisdictionKind  `json:"jurisdiction_kind"`
	JurisdictionName string            `json:"jurisdiction_name"`
	RateID           RateID            `json:"rate_id"`
	TaxType          string            `json:"tax_type,omitempty"`
	Shape            RateShape         `json:"shape"`
	Method           CalculationMethod `json:"method"`
	Compounded       bool              `json:"compounded,omitempty"`
	Inclusive        bool              `json:"inclusive,omitempty"`
	Recoverable      bool              `json:"recoverable,omitempty"`

	TaxableBase     decimal.Decimal `json:"taxable_base"`
	RawAmount       decimal.Decimal `json:"raw_amount"`
	ThresholdNote   string          `json:"threshold_note,omitempty"`
	BeforeExemption decimal.Decimal `json:"before_exemption"`
	Exemption       Adjustment      `json:"exemption"`
	AmountWaived    decimal.Decimal `json:"amount_waived"`
	PreRounding     decimal.Decimal `json:"pre_rounding"`
	Contribution    decimal.Decimal `json:"contribution"`
}

type AppliedExemption struct {
	ExemptionID   ExemptionID     `json:"exemption_id"`
	ExemptionType string          `json:"exemption_type,omitempty"`
	RateID        RateID          `json:"rate_id"`
	AmountWaived  decimal.Decimal `json:"amount_waived"`
}

type SkippedRate struct {
	RateID RateID `json:"rate_id"`
	Reason string `json:"reason"`
}

type SupersededRate struct {
	RateID RateID `json:"rate_id"`
	By     RateID `json:"superseded_by"`
}

type ExecutionResult struct {
	LineAmount    decimal.Decimal `json:"line_amount"`
	TotalTax      decimal.Decimal `json:"total_tax"`
	InclusiveTax  decimal.Decimal `json:"inclusive_tax"`
	FinalAmount   decimal.Decimal `json:"final_amount"`
	EffectiveRate decimal.Decimal `json:"effective_rate"`

	Breakdown         []BreakdownEntry   `json:"breakdown"`
	ExemptionsApplied []AppliedExemption `json:"exemptions_applied"`

	RatesConsidered []RateID         `json:"rates_considered"`
	RatesSkipped    []SkippedRate    `json:"rates_skipped,omitempty"`
	RatesSuperseded []SupersededRate `json:"rates_superseded,omitempty"`
	Warnings        []Warning        `json:"warnings,omitempty"`
}

// =============================================================================
// EXECUTE
// =============================================================================

// Execute runs the calculation. It never fails: bad rates are skipped and
// reported in the result.
func Execute(in ExecutionInput) ExecutionResult {
	quantity := in.Quantity
	if quantity < 1 {
		quantity = 1
	}

	res := ExecutionResult{
		Breakdown:         []BreakdownEntry{},
		ExemptionsApplied: []AppliedExemption{},
		RatesConsidered:   make([]RateID, 0, len(in.Rates)),
	}

	jurisdictions := make(map[JurisdictionID]Jurisdiction, len(in.Jurisdictions))
	for _, j := range in.Jurisdictions {
		jurisdictions[j.ID] = j
	}

	// 1. validate
	valid := make([]RateDefinition, 0, len(in.Rates))
	for _, r := range in.Rates {
		res.RatesConsidered = append(res.RatesConsidered, r.ID)
		if reason := validateRate(r); reason != "" {
			res.RatesSkipped = append(res.RatesSkipped, SkippedRate{RateID: r.ID, Reason: reason})
			res.Warnings = append(res.Warnings, Warning{
				Code:    WarnRateData,
				RateID:  r.ID,
				Message: "rate skipped: " + reason,
			})
			continue
		}
		if r.Method == "" {
			r.Method = MethodStandard
		}
		valid = append(valid, r)
	}

	// 2. order
	sortRates(valid, jurisdictions)

	// 3. overlaps
	applicable := make([]RateDefinition, 0, len(valid))
	winners := make(map[string]RateID)
	for _, r := range valid {
		key := overlapKey(r)
		if winner, ok := winners[key]; ok {
			res.RatesSuperseded = append(res.RatesSuperseded, SupersededRate{RateID: r.ID, By: winner})
			res.Warnings = append(res.Warnings, Warning{
				Code:    WarnRateOverlap,
				RateID:  r.ID,
				Message: fmt.Sprintf("overlaps %s for the same jurisdiction, category and tax type; superseded", winner),
			})
			continue
		}
		winners[key] = r.ID
		applicable = append(applicable, r)
	}

	// 4. running state
	lineBase := in.BaseAmount.Mul(decimal.NewFromInt(int64(quantity)))
	runningBase := lineBase
	cumulativeTax := decimal.Zero
	inclusiveTax := decimal.Zero
	sign := decimal.NewFromInt(1)
	if lineBase.IsNegative() {
		sign = decimal.NewFromInt(-1)
	}

	// 5. apply
	for i, r := range applicable {
		j := jurisdictions[r.JurisdictionID]
		entry := BreakdownEntry{
			Sequence:         i + 1,
			JurisdictionID:   r.JurisdictionID,
			JurisdictionKind: j.Kind,
			JurisdictionName: j.Name,
			RateID:           r.ID,
			TaxType:          r.TaxType,
			Shape:            r.Shape,
			Method:           r.Method,
			Recoverable:      r.Recoverable,
		}

		switch {
		case r.Method == MethodInclusive:
			entry.Inclusive = true
			entry.TaxableBase = runningBase
		case r.IsCompounding():
			entry.Compounded = true
			entry.TaxableBase = runningBase.Add(cumulativeTax)
		default:
			entry.TaxableBase = lineBase
		}

		entry.RawAmount = rawAmount(r, entry.TaxableBase, in.Units, quantity, sign)

		amount, note := applyThresholds(r, entry.RawAmount)
		entry.ThresholdNote = note
		entry.BeforeExemption = amount

		adj, ok := in.Adjustments[r.ID]
		if !ok {
			adj = noAdjustment
		}
		entry.Exemption = adj
		waived := exemptionWaiver(adj, amount)
		entry.AmountWaived = waived
		amount = amount.Sub(waived)

		entry.PreRounding = amount
		entry.Contribution = amount.RoundBank(RoundingPlaces)

		cumulativeTax = cumulativeTax.Add(entry.Contribution)
		if entry.Inclusive {
			inclusiveTax = inclusiveTax.Add(entry.Contribution)
			runningBase = runningBase.Sub(entry.Contribution)
		}

		if adj.Kind != AdjustNone && !waived.IsZero() {
			res.ExemptionsApplied = append(res.ExemptionsApplied, AppliedExemption{
				ExemptionID:   adj.ExemptionID,
				ExemptionType: adj.ExemptionType,
				RateID:        r.ID,
				AmountWaived:  waived.RoundBank(RoundingPlaces),
			})
		}
		res.Breakdown = append(res.Breakdown, entry)
	}

	// 6. totals
	res.LineAmount = lineBase
	res.TotalTax = cumulativeTax
	res.InclusiveTax = inclusiveTax
	res.FinalAmount = lineBase.Add(cumulativeTax).Sub(inclusiveTax)
	res.EffectiveRate = EffectiveRate(cumulativeTax, lineBase)
	return res
}

// EffectiveRate is total / base as a fraction, defined as 0 for a zero base.
func EffectiveRate(total, base decimal.Decimal) decimal.Decimal {
	if base.IsZero() {
		return decimal.Zero
	}
	return total.DivRound(base, 8)
}

// =============================================================================
// VALIDATION & ORDERING
// =============================================================================

// validateRate returns "" for a usable rate, or why it must be skipped.
func validateRate(r RateDefinition) string {
	switch r.Method {
	case "", MethodStandard, MethodCompound, MethodAdditive, MethodInclusive, MethodExclusive:
	default:
		return fmt.Sprintf("unknown calculation method %q", r.Method)
	}

	switch r.Shape {
	case ShapePercentage:
		if r.Percentage == nil {
			return "percentage rate without percentage"
		}
		if r.Percentage.IsNegative() {
			return "negative percentage"
		}
	case ShapeFixed, ShapePerLine, ShapePerMinute, ShapePerUnit:
		if r.FixedAmount == nil {
			return fmt.Sprintf("%s rate without fixed amount", r.Shape)
		}
	case ShapeTiered:
		if len(r.Tiers) == 0 {
			return "tiered rate without tiers"
		}
		var prev *decimal.Decimal
		for i, t := range r.Tiers {
			if t.Percentage.IsNegative() {
				return "tier with negative percentage"
			}
			if t.UpTo == nil {
				if i != len(r.Tiers)-1 {
					return "open-ended tier must be last"
				}
				continue
			}
			if prev != nil && !t.UpTo.GreaterThan(*prev) {
				return "tier boundaries must be strictly ascending"
			}
			prev = t.UpTo
		}
	default:
		return fmt.Sprintf("unknown rate shape %q", r.Shape)
	}

	if r.MaximumAmount != nil && r.MaximumAmount.IsNegative() {
		return "negative maximum amount"
	}
	return ""
}

func sortRates(rates []RateDefinition, jurisdictions map[JurisdictionID]Jurisdiction) {
	breadth := func(r RateDefinition) int {
		if j, ok := jurisdictions[r.JurisdictionID]; ok {
			return j.Kind.Breadth()
		}
		return JurisdictionKind("").Breadth()
	}
	sort.SliceStable(rates, func(i, j int) bool {
		a, b := rates[i], rates[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if ba, bb := breadth(a), breadth(b); ba != bb {
			return ba < bb
		}
		return a.ID < b.ID
	})
}

func overlapKey(r RateDefinition) string {
	types := make([]string, len(r.ServiceTypes))
	for i, st := range r.ServiceTypes {
		types[i] = strings.ToLower(st)
	}
	sort.Strings(types)
	return strings.Join([]string{
		string(r.JurisdictionID),
		string(r.CategoryID),
		strings.ToLower(r.TaxType),
		strings.Join(types, ","),
	}, "|")
}

// =============================================================================
// SHAPES, THRESHOLDS, EXEMPTIONS
// =============================================================================

func rawAmount(r RateDefinition, taxable decimal.Decimal, units UnitCounts, quantity int, sign decimal.Decimal) decimal.Decimal {
	switch r.Shape {
	case ShapePercentage:
		return taxable.Mul(*r.Percentage).Div(hundred)
	case ShapeFixed:
		return r.FixedAmount.Mul(sign)
	case ShapeTiered:
		return tieredAmount(r.Tiers, taxable)
	case ShapePerLine, ShapePerMinute, ShapePerUnit:
		return r.FixedAmount.Mul(units.For(r.Shape, quantity)).Mul(sign)
	}
	return decimal.Zero
}

// tieredAmount sums each tier's percentage over the part of |taxable| that
// falls inside the tier, then restores the sign.
func tieredAmount(tiers []Tier, taxable decimal.Decimal) decimal.Decimal {
	abs := taxable.Abs()
	lower := decimal.Zero
	total := decimal.Zero

	for _, t := range tiers {
		if !abs.GreaterThan(lower) {
			break
		}
		upper := abs
		if t.UpTo != nil && t.UpTo.LessThan(abs) {
			upper = *t.UpTo
		}
		if upper.GreaterThan(lower) {
			total = total.Add(upper.Sub(lower).Mul(t.Percentage).Div(hundred))
		}
		if t.UpTo == nil {
			break
		}
		lower = *t.UpTo
	}

	if taxable.IsNegative() {
		return total.Neg()
	}
	return total
}

// applyThresholds gates by the de-minimis minimum and clamps to the maximum.
// Comparisons use magnitudes so refunds mirror charges.
func applyThresholds(r RateDefinition, raw decimal.Decimal) (decimal.Decimal, string) {
	if r.MinimumThreshold != nil && r.MinimumThreshold.IsPositive() && raw.Abs().LessThan(*r.MinimumThreshold) {
		return decimal.Zero, "below_minimum_threshold"
	}
	if r.MaximumAmount != nil && raw.Abs().GreaterThan(*r.MaximumAmount) {
		if raw.IsNegative() {
			return r.MaximumAmount.Neg(), "capped_at_maximum"
		}
		return *r.MaximumAmount, "capped_at_maximum"
	}
	return raw, ""
}

// exemptionWaiver returns the portion of amount waived by the adjustment.
func exemptionWaiver(adj Adjustment, amount decimal.Decimal) decimal.Decimal {
	switch adj.Kind {
	case AdjustFull:
		return amount
	case AdjustPartial:
		waived := amount.Mul(adj.Percentage).Div(hundred)
		if adj.Cap != nil && waived.Abs().GreaterThan(*adj.Cap) {
			if waived.IsNegative() {
				return adj.Cap.Neg()
			}
			return *adj.Cap
		}
		return waived
	}
	return decimal.Zero
}
