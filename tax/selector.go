package tax

import (
	"context"
	"fmt"
	"sort"
)

// =============================================================================
// RATE SELECTOR - Effective rate definitions for a line
// =============================================================================

type RateSelector struct {
	Source RateSource
}

func NewRateSelector(src RateSource) *RateSelector {
	return &RateSelector{Source: src}
}

// SelectionCriteria identifies what is being taxed and when.
type SelectionCriteria struct {
	Category    CategoryID
	ServiceType string
	AsOf        Date
}

// Select returns every effective rate for the jurisdictions. Overlapping
// definitions are all returned so the audit trail shows what was considered;
// an empty result is valid (no tax rules apply).
func (s *RateSelector) Select(ctx context.Context, jurisdictions []Jurisdiction, criteria SelectionCriteria) ([]RateDefinition, error) {
	if len(jurisdictions) == 0 {
		return nil, nil
	}
	ids := make([]JurisdictionID, len(jurisdictions))
	for i, j := range jurisdictions {
		ids[i] = j.ID
	}

	all, err := s.Source.Rates(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load rates: %w", err)
	}
	return SelectRates(all, ids, criteria), nil
}

// SelectRates is the pure filtering step. Output is sorted by rate ID so the
// selection is independent of storage order.
func SelectRates(rates []RateDefinition, jurisdictions []JurisdictionID, c SelectionCriteria) []RateDefinition {
	inSet := make(map[JurisdictionID]bool, len(jurisdictions))
	for _, id := range jurisdictions {
		inSet[id] = true
	}

	var selected []RateDefinition
	for _, r := range rates {
		if !inSet[r.JurisdictionID] {
			continue
		}
		if r.CategoryID != "" && r.CategoryID != c.Category {
			continue
		}
		if !r.AppliesToServiceType(c.ServiceType) {
			continue
		}
		if !r.Window.Contains(c.AsOf) {
			continue
		}
		selected = append(selected, r)
	}

	sort.SliceStable(selected, func(i, j int) bool { return selected[i].ID < selected[j].ID })
	return selected
}
