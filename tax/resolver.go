package tax

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// JURISDICTION RESOLVER - Address -> ordered taxing authorities
// =============================================================================

// JurisdictionResolver maps a service address to the jurisdictions that tax it.
type JurisdictionResolver struct {
	Source JurisdictionSource
}

func NewJurisdictionResolver(src JurisdictionSource) *JurisdictionResolver {
	return &JurisdictionResolver{Source: src}
}

// Resolve loads the candidate jurisdictions for the address's country and
// matches them. It fails with *UnresolvableAddressError when nothing matches.
func (r *JurisdictionResolver) Resolve(ctx context.Context, addr Address, asOf Date) ([]Jurisdiction, error) {
	norm := addr.Normalize()
	if err := validateCountry(norm); err != nil {
		return nil, err
	}

	candidates, err := r.Source.Jurisdictions(ctx, norm.Country)
	if err != nil {
		return nil, fmt.Errorf("failed to load jurisdictions for %s: %w", norm.Country, err)
	}

	matched := MatchJurisdictions(norm, asOf, candidates)
	if len(matched) == 0 {
		return nil, &UnresolvableAddressError{Address: addr, Reason: "no jurisdiction covers this address"}
	}
	return matched, nil
}

func validateCountry(addr Address) error {
	if addr.Country == "" {
		return &UnresolvableAddressError{Address: addr, Reason: "country is required"}
	}
	if len(addr.Country) != 2 {
		return &UnresolvableAddressError{Address: addr, Reason: "country must be an ISO 3166-1 alpha-2 code"}
	}
	for _, c := range addr.Country {
		if c < 'A' || c > 'Z' {
			return &UnresolvableAddressError{Address: addr, Reason: "country must be an ISO 3166-1 alpha-2 code"}
		}
	}
	return nil
}

// MatchJurisdictions is the pure matching step. The address must already be
// normalized. Results are ordered broadest to narrowest, then by ID.
func MatchJurisdictions(addr Address, asOf Date, candidates []Jurisdiction) []Jurisdiction {
	var matched []Jurisdiction
	for _, j := range candidates {
		if !j.Kind.Valid() || !j.Window.Contains(asOf) {
			continue
		}
		if scopeMatches(j.Scope, addr) {
			matched = append(matched, j)
		}
	}

	sort.SliceStable(matched, func(a, b int) bool {
		ba, bb := matched[a].Kind.Breadth(), matched[b].Kind.Breadth()
		if ba != bb {
			return ba < bb
		}
		return matched[a].ID < matched[b].ID
	})
	return matched
}

func scopeMatches(scope GeoScope, addr Address) bool {
	eq := func(want, got string) bool {
		return want == "" || strings.EqualFold(strings.TrimSpace(want), got)
	}
	if strings.TrimSpace(scope.Country) == "" || !eq(scope.Country, addr.Country) {
		return false
	}
	if !eq(scope.State, addr.State) || !eq(scope.County, addr.County) || !eq(scope.Municipality, addr.Municipality) {
		return false
	}
	if len(scope.PostalCodes) == 0 && len(scope.PostalPrefixes) == 0 {
		return true
	}
	if addr.PostalCode == "" {
		return false
	}
	for _, pc := range scope.PostalCodes {
		if strings.EqualFold(pc, addr.PostalCode) {
			return true
		}
	}
	for _, prefix := range scope.PostalPrefixes {
		if strings.HasPrefix(addr.PostalCode, strings.ToUpper(prefix)) {
			return true
		}
	}
	return false
}
