/*
exemption.go - Exemption filter

PURPOSE:
  Decides, for every selected rate, whether one of the customer's exemption
  certificates reduces it, and by how much. The filter is a pure function:
  it never mutates exemption records and depends only on its arguments.

MATCHING:
  1. Unverified or out-of-window exemptions are dropped first
  2. blanket scope matches every rate
  3. specific scope matches when every non-empty list (jurisdictions,
     categories, service types, tax types) contains the rate's value
  4. An optional JSONLogic condition must evaluate truthy

WINNER SELECTION (per rate):
  highest percentage -> lowest priority -> most recently verified -> lowest ID
  A tie on percentage AND priority is resolved by the later keys but also
  raises an exemption_conflict warning for administrative review.

OUTPUT:
  none | partial(percentage, cap) | full
*/
package tax

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/diegoholiveira/jsonlogic"
	"github.com/shopspring/decimal"
)

type AdjustmentKind string

const (
	AdjustNone    AdjustmentKind = "none"
	AdjustPartial AdjustmentKind = "partial"
	AdjustFull    AdjustmentKind = "full"
)

// Adjustment is the exemption outcome for one rate.
type Adjustment struct {
	Kind          AdjustmentKind   `json:"kind"`
	ExemptionID   ExemptionID      `json:"exemption_id,omitempty"`
	ExemptionType string           `json:"exemption_type,omitempty"`
	Percentage    decimal.Decimal  `json:"percentage"`
	Cap           *decimal.Decimal `json:"cap,omitempty"`
}

var noAdjustment = Adjustment{Kind: AdjustNone}

// FilterContext is the line-level information exemptions are matched and
// conditioned against.
type FilterContext struct {
	CustomerID  CustomerID
	BaseAmount  decimal.Decimal
	Quantity    int
	Category    CategoryID
	ServiceType string
	Address     Address
	AsOf        Date
}

// FilterExemptions returns an adjustment for every rate (keyed by rate ID)
// and the warnings raised while matching.
func FilterExemptions(rates []RateDefinition, exemptions []Exemption, fc FilterContext) (map[RateID]Adjustment, []Warning) {
	result := make(map[RateID]Adjustment, len(rates))
	var warnings []Warning

	active := make([]Exemption, 0, len(exemptions))
	for _, e := range exemptions {
		if e.IsActive(fc.AsOf) && e.Percentage.IsPositive() {
			active = append(active, e)
		}
	}

	conflictSeen := make(map[string]bool)
	for _, rate := range rates {
		var matches []Exemption
		for _, e := range active {
			if !exemptionCovers(e, rate, fc) {
				continue
			}
			if len(e.Condition) > 0 {
				ok, err := evaluateCondition(e.Condition, rate, fc)
				if err != nil {
					warnings = append(warnings, Warning{
						Code:        WarnExemptionCondition,
						RateID:      rate.ID,
						ExemptionID: e.ID,
						Message:     fmt.Sprintf("condition not evaluated, exemption ignored: %v", err),
					})
					continue
				}
				if !ok {
					continue
				}
			}
			matches = append(matches, e)
		}

		if len(matches) == 0 {
			result[rate.ID] = noAdjustment
			continue
		}

		sortExemptions(matches)
		winner := matches[0]
		if len(matches) > 1 && tiedOnRank(matches[0], matches[1]) {
			key := string(matches[0].ID) + "|" + string(matches[1].ID)
			if !conflictSeen[key] {
				conflictSeen[key] = true
				warnings = append(warnings, Warning{
					Code:        WarnExemptionConflict,
					RateID:      rate.ID,
					ExemptionID: winner.ID,
					Message: fmt.Sprintf("exemptions %s and %s tie at %s%% priority %d; %s selected",
						matches[0].ID, matches[1].ID, winner.Percentage, winner.Priority, winner.ID),
				})
			}
		}
		result[rate.ID] = adjustmentFor(winner)
	}

	return result, warnings
}

func adjustmentFor(e Exemption) Adjustment {
	pct := decimal.Min(e.Percentage, hundred)
	adj := Adjustment{
		Kind:          AdjustPartial,
		ExemptionID:   e.ID,
		ExemptionType: e.Type,
		Percentage:    pct,
		Cap:           e.MaximumAmount,
	}
	if pct.Equal(hundred) && e.MaximumAmount == nil {
		adj.Kind = AdjustFull
	}
	return adj
}

func tiedOnRank(a, b Exemption) bool {
	return a.Percentage.Equal(b.Percentage) && a.Priority == b.Priority
}

func sortExemptions(es []Exemption) {
	sort.SliceStable(es, func(i, j int) bool {
		a, b := es[i], es[j]
		if !a.Percentage.Equal(b.Percentage) {
			return a.Percentage.GreaterThan(b.Percentage)
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		av, bv := verifiedTime(a), verifiedTime(b)
		if !av.Equal(bv) {
			return av.After(bv)
		}
		return a.ID < b.ID
	})
}

func verifiedTime(e Exemption) Date {
	if e.VerifiedAt == nil {
		return Date{}
	}
	return *e.VerifiedAt
}

// exemptionCovers checks the declared scope of an exemption against a rate.
func exemptionCovers(e Exemption, rate RateDefinition, fc FilterContext) bool {
	if e.Scope == ScopeBlanket {
		return true
	}
	if len(e.Jurisdictions) == 0 && len(e.Categories) == 0 && len(e.ServiceTypes) == 0 && len(e.TaxTypes) == 0 {
		return false
	}

	if len(e.Jurisdictions) > 0 && !containsID(e.Jurisdictions, rate.JurisdictionID) {
		return false
	}
	if len(e.Categories) > 0 {
		cat := rate.CategoryID
		if cat == "" {
			cat = fc.Category
		}
		if !containsID(e.Categories, cat) {
			return false
		}
	}
	if len(e.ServiceTypes) > 0 && !containsFold(e.ServiceTypes, fc.ServiceType) {
		return false
	}
	if len(e.TaxTypes) > 0 && !containsFold(e.TaxTypes, rate.TaxType) {
		return false
	}
	return true
}

func containsID[T ~string](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsFold(list []string, v string) bool {
	for _, x := range list {
		if strings.EqualFold(x, v) {
			return true
		}
	}
	return false
}

// =============================================================================
// CONDITIONS - JSONLogic evaluated against the line and the rate
// =============================================================================

func conditionData(rate RateDefinition, fc FilterContext) map[string]any {
	addr := fc.Address.Normalize()
	base, _ := fc.BaseAmount.Float64()
	return map[string]any{
		"line": map[string]any{
			"base_amount":  base,
			"quantity":     fc.Quantity,
			"category":     string(fc.Category),
			"service_type": fc.ServiceType,
			"as_of":        fc.AsOf.String(),
			"customer_id":  string(fc.CustomerID),
		},
		"address": map[string]any{
			"country":      addr.Country,
			"state":        addr.State,
			"county":       addr.County,
			"municipality": addr.Municipality,
			"postal_code":  addr.PostalCode,
		},
		"rate": map[string]any{
			"id":           string(rate.ID),
			"jurisdiction": string(rate.JurisdictionID),
			"tax_type":     rate.TaxType,
			"shape":        string(rate.Shape),
		},
	}
}

func evaluateCondition(rule map[string]any, rate RateDefinition, fc FilterContext) (ok bool, err error) {
	// jsonlogic panics on some malformed rules
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("invalid condition: %v", r)
		}
	}()

	ruleJSON, err := json.Marshal(rule)
	if err != nil {
		return false, err
	}
	dataJSON, err := json.Marshal(conditionData(rate, fc))
	if err != nil {
		return false, err
	}

	var out bytes.Buffer
	if err := jsonlogic.Apply(bytes.NewReader(ruleJSON), bytes.NewReader(dataJSON), &out); err != nil {
		return false, err
	}

	var res any
	if out.Len() == 0 {
		return false, nil
	}
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		return false, err
	}
	return truthy(res), nil
}

// truthy follows JSONLogic truthiness: false, null, 0, "" and [] are falsy.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	default:
		return true
	}
}
