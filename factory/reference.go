/*
Package factory converts reference-data documents into tax engine types.

PURPOSE:

	Rate tables, jurisdictions and exemption certificates are maintained
	outside the engine. This package turns a YAML (or JSON, which is valid
	YAML) reference document into tax.Jurisdiction, tax.RateDefinition and
	tax.Exemption values, validates them, and loads them into any
	tax.ReferenceWriter.

DOCUMENT SCHEMA:

	categories:
	  - {id: interstate_voice, name: Interstate Voice}
	jurisdictions:
	  - id: us
	    kind: federal
	    name: United States
	    scope: {country: US}
	    effective: 2020-01-01
	rates:
	  - id: us-usf-2025q1
	    jurisdiction: us
	    category: interstate_voice
	    tax_type: usf
	    shape: percentage
	    percentage: "36.6"
	    method: standard
	    priority: 10
	    effective: 2025-01-01
	    expiry: 2025-04-01
	tiers:                      # external tier table, joined by rate id
	  - {rate: us-ca-911, up_to: "100", percentage: "1"}
	  - {rate: us-ca-911, percentage: "0.5"}
	exemptions:
	  - id: ex-1
	    customer: cust-1
	    type: resale
	    scope: blanket
	    percentage: "100"
	    verification: verified
	    effective: 2025-01-01
	    condition: {">": [{"var": "line.base_amount"}, 0]}

	Amounts are quoted strings so they are parsed exactly as decimals.

USAGE:

	f := factory.NewReferenceFactory()
	set, err := f.Parse(data)
	summary, err := f.Load(ctx, store, set)

SEE ALSO:
  - tax/store.go: ReferenceWriter
  - telecom/reference.go: Sample documents
*/
package factory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/tax-engine/tax"
)

// =============================================================================
// DOCUMENT SCHEMA TYPES
// =============================================================================

type ReferenceDocument struct {
	Categories    []CategoryDoc     `yaml:"categories" json:"categories"`
	Jurisdictions []JurisdictionDoc `yaml:"jurisdictions" json:"jurisdictions"`
	Rates         []RateDoc         `yaml:"rates" json:"rates"`
	Tiers         []TierDoc         `yaml:"tiers" json:"tiers"`
	Exemptions    []ExemptionDoc    `yaml:"exemptions" json:"exemptions"`
}

type CategoryDoc struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type ScopeDoc struct {
	Country        string   `yaml:"country"`
	State          string   `yaml:"state"`
	County         string   `yaml:"county"`
	Municipality   string   `yaml:"municipality"`
	PostalCodes    []string `yaml:"postal_codes"`
	PostalPrefixes []string `yaml:"postal_prefixes"`
}

type JurisdictionDoc struct {
	ID        string   `yaml:"id"`
	Kind      string   `yaml:"kind"`
	Name      string   `yaml:"name"`
	Authority string   `yaml:"authority"`
	Scope     ScopeDoc `yaml:"scope"`
	Effective string   `yaml:"effective"`
	Expiry    string   `yaml:"expiry"`
}

type RateDoc struct {
	ID               string   `yaml:"id"`
	Jurisdiction     string   `yaml:"jurisdiction"`
	Category         string   `yaml:"category"`
	ServiceTypes     []string `yaml:"service_types"`
	TaxType          string   `yaml:"tax_type"`
	Description      string   `yaml:"description"`
	Shape            string   `yaml:"shape"`
	Percentage       string   `yaml:"percentage"`
	FixedAmount      string   `yaml:"fixed_amount"`
	MinimumThreshold string   `yaml:"minimum_threshold"`
	MaximumAmount    string   `yaml:"maximum_amount"`
	Method           string   `yaml:"method"`
	Compound         bool     `yaml:"compound"`
	Recoverable      bool     `yaml:"recoverable"`
	Priority         int      `yaml:"priority"`
	Effective        string   `yaml:"effective"`
	Expiry           string   `yaml:"expiry"`
}

// TierDoc is one row of the external tier table. An empty UpTo is the
// open-ended top tier.
type TierDoc struct {
	Rate       string `yaml:"rate"`
	UpTo       string `yaml:"up_to"`
	Percentage string `yaml:"percentage"`
}

type ExemptionDoc struct {
	ID            string         `yaml:"id"`
	Customer      string         `yaml:"customer"`
	Type          string         `yaml:"type"`
	Certificate   string         `yaml:"certificate"`
	Scope         string         `yaml:"scope"`
	Jurisdictions []string       `yaml:"jurisdictions"`
	Categories    []string       `yaml:"categories"`
	ServiceTypes  []string       `yaml:"service_types"`
	TaxTypes      []string       `yaml:"tax_types"`
	Percentage    string         `yaml:"percentage"`
	MaximumAmount string         `yaml:"maximum_amount"`
	Priority      int            `yaml:"priority"`
	Verification  string         `yaml:"verification"`
	VerifiedAt    string         `yaml:"verified_at"`
	Effective     string         `yaml:"effective"`
	Expiry        string         `yaml:"expiry"`
	Condition     map[string]any `yaml:"condition"`
}

// ReferenceSet is a parsed, validated document.
type ReferenceSet struct {
	Categories    []tax.TaxCategory
	Jurisdictions []tax.Jurisdiction
	Rates         []tax.RateDefinition
	Exemptions    []tax.Exemption
}

// LoadSummary counts what was written.
type LoadSummary struct {
	Categories    int `json:"categories"`
	Jurisdictions int `json:"jurisdictions"`
	Rates         int `json:"rates"`
	Exemptions    int `json:"exemptions"`
}

// =============================================================================
// REFERENCE FACTORY
// =============================================================================

// ReferenceFactory converts reference documents to tax types.
type ReferenceFactory struct{}

func NewReferenceFactory() *ReferenceFactory {
	return &ReferenceFactory{}
}

// Parse decodes a YAML or JSON document.
func (f *ReferenceFactory) Parse(data []byte) (*ReferenceSet, error) {
	var doc ReferenceDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse reference document: %w", err)
	}
	return f.FromDocument(doc)
}

// ParseFile reads and parses a document from disk.
func (f *ReferenceFactory) ParseFile(path string) (*ReferenceSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference document: %w", err)
	}
	return f.Parse(data)
}

// FromDocument converts and validates a decoded document. Every problem is
// reported, not only the first.
func (f *ReferenceFactory) FromDocument(doc ReferenceDocument) (*ReferenceSet, error) {
	var errs []string
	fail := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	set := &ReferenceSet{}

	for _, cd := range doc.Categories {
		if cd.ID == "" {
			fail("category without id")
			continue
		}
		set.Categories = append(set.Categories, tax.TaxCategory{
			ID: tax.CategoryID(cd.ID), Name: cd.Name, Description: cd.Description,
		})
	}

	known := make(map[string]bool)
	for _, jd := range doc.Jurisdictions {
		j, err := parseJurisdiction(jd)
		if err != nil {
			fail("jurisdiction %q: %v", jd.ID, err)
			continue
		}
		known[jd.ID] = true
		set.Jurisdictions = append(set.Jurisdictions, j)
	}

	tiers, err := groupTiers(doc.Tiers)
	if err != nil {
		fail("tiers: %v", err)
	}

	seen := make(map[string]bool)
	for _, rd := range doc.Rates {
		if seen[rd.ID] {
			fail("rate %q: duplicate id", rd.ID)
			continue
		}
		seen[rd.ID] = true
		if len(known) > 0 && !known[rd.Jurisdiction] {
			fail("rate %q: unknown jurisdiction %q", rd.ID, rd.Jurisdiction)
			continue
		}
		r, err := parseRate(rd, tiers[rd.ID])
		if err != nil {
			fail("rate %q: %v", rd.ID, err)
			continue
		}
		set.Rates = append(set.Rates, r)
	}
	for rateID := range tiers {
		if !seen[rateID] {
			fail("tiers reference unknown rate %q", rateID)
		}
	}

	for _, ed := range doc.Exemptions {
		e, err := parseExemption(ed)
		if err != nil {
			fail("exemption %q: %v", ed.ID, err)
			continue
		}
		set.Exemptions = append(set.Exemptions, e)
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return nil, fmt.Errorf("%w: %s", tax.ErrInvalidInput, strings.Join(errs, "; "))
	}
	return set, nil
}

// Load registers the set's categories and writes everything else to w.
func (f *ReferenceFactory) Load(ctx context.Context, w tax.ReferenceWriter, set *ReferenceSet) (LoadSummary, error) {
	var s LoadSummary
	for _, c := range set.Categories {
		tax.RegisterCategory(c)
		s.Categories++
	}
	for _, j := range set.Jurisdictions {
		if err := w.SaveJurisdiction(ctx, j); err != nil {
			return s, fmt.Errorf("jurisdiction %s: %w", j.ID, err)
		}
		s.Jurisdictions++
	}
	for _, r := range set.Rates {
		if err := w.SaveRate(ctx, r); err != nil {
			return s, fmt.Errorf("rate %s: %w", r.ID, err)
		}
		s.Rates++
	}
	for _, e := range set.Exemptions {
		if err := w.SaveExemption(ctx, e); err != nil {
			return s, fmt.Errorf("exemption %s: %w", e.ID, err)
		}
		s.Exemptions++
	}
	return s, nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseJurisdiction(jd JurisdictionDoc) (tax.Jurisdiction, error) {
	if jd.ID == "" {
		return tax.Jurisdiction{}, fmt.Errorf("id is required")
	}
	kind := tax.JurisdictionKind(strings.ToLower(jd.Kind))
	if !kind.Valid() {
		return tax.Jurisdiction{}, fmt.Errorf("unknown kind %q", jd.Kind)
	}
	if len(strings.TrimSpace(jd.Scope.Country)) != 2 {
		return tax.Jurisdiction{}, fmt.Errorf("scope.country must be an ISO alpha-2 code")
	}
	window, err := parseWindow(jd.Effective, jd.Expiry)
	if err != nil {
		return tax.Jurisdiction{}, err
	}

	upper := func(ss []string) []string {
		out := make([]string, len(ss))
		for i, s := range ss {
			out[i] = strings.ToUpper(strings.TrimSpace(s))
		}
		return out
	}
	return tax.Jurisdiction{
		ID:        tax.JurisdictionID(jd.ID),
		Kind:      kind,
		Name:      jd.Name,
		Authority: jd.Authority,
		Scope: tax.GeoScope{
			Country:        strings.ToUpper(strings.TrimSpace(jd.Scope.Country)),
			State:          strings.ToUpper(strings.TrimSpace(jd.Scope.State)),
			County:         strings.ToUpper(strings.TrimSpace(jd.Scope.County)),
			Municipality:   strings.ToUpper(strings.TrimSpace(jd.Scope.Municipality)),
			PostalCodes:    upper(jd.Scope.PostalCodes),
			PostalPrefixes: upper(jd.Scope.PostalPrefixes),
		},
		Window: window,
	}, nil
}

func parseRate(rd RateDoc, tiers []tax.Tier) (tax.RateDefinition, error) {
	if rd.ID == "" {
		return tax.RateDefinition{}, fmt.Errorf("id is required")
	}
	if rd.Jurisdiction == "" {
		return tax.RateDefinition{}, fmt.Errorf("jurisdiction is required")
	}
	window, err := parseWindow(rd.Effective, rd.Expiry)
	if err != nil {
		return tax.RateDefinition{}, err
	}

	r := tax.RateDefinition{
		ID:             tax.RateID(rd.ID),
		JurisdictionID: tax.JurisdictionID(rd.Jurisdiction),
		CategoryID:     tax.CategoryID(rd.Category),
		ServiceTypes:   rd.ServiceTypes,
		TaxType:        rd.TaxType,
		Description:    rd.Description,
		Shape:          tax.RateShape(strings.ToLower(rd.Shape)),
		Method:         parseMethod(rd.Method),
		Compound:       rd.Compound,
		Recoverable:    rd.Recoverable,
		Priority:       rd.Priority,
		Window:         window,
		Tiers:          tiers,
	}

	fields := []struct {
		name string
		raw  string
		dst  **decimal.Decimal
	}{
		{"percentage", rd.Percentage, &r.Percentage},
		{"fixed_amount", rd.FixedAmount, &r.FixedAmount},
		{"minimum_threshold", rd.MinimumThreshold, &r.MinimumThreshold},
		{"maximum_amount", rd.MaximumAmount, &r.MaximumAmount},
	}
	for _, fd := range fields {
		d, err := parseOptionalDecimal(fd.raw)
		if err != nil {
			return tax.RateDefinition{}, fmt.Errorf("%s: %w", fd.name, err)
		}
		*fd.dst = d
	}

	switch {
	case r.Shape == tax.ShapePercentage:
		if r.Percentage == nil {
			return tax.RateDefinition{}, fmt.Errorf("percentage shape requires percentage")
		}
	case r.Shape == tax.ShapeFixed || r.Shape.IsUnitBased():
		if r.FixedAmount == nil {
			return tax.RateDefinition{}, fmt.Errorf("%s shape requires fixed_amount", r.Shape)
		}
	case r.Shape == tax.ShapeTiered:
		if len(r.Tiers) == 0 {
			return tax.RateDefinition{}, fmt.Errorf("tiered shape requires rows in the tier table")
		}
	default:
		return tax.RateDefinition{}, fmt.Errorf("unknown shape %q", rd.Shape)
	}
	if r.Method == "" {
		return tax.RateDefinition{}, fmt.Errorf("unknown method %q", rd.Method)
	}
	if r.Percentage != nil && r.Percentage.IsNegative() {
		return tax.RateDefinition{}, fmt.Errorf("percentage must not be negative")
	}
	return r, nil
}

func parseMethod(s string) tax.CalculationMethod {
	switch strings.ToLower(s) {
	case "", "standard":
		return tax.MethodStandard
	case "compound":
		return tax.MethodCompound
	case "additive":
		return tax.MethodAdditive
	case "inclusive":
		return tax.MethodInclusive
	case "exclusive":
		return tax.MethodExclusive
	default:
		return ""
	}
}

// groupTiers joins the tier table by rate id and orders each rate's tiers
// by upper bound, open-ended last.
func groupTiers(rows []TierDoc) (map[string][]tax.Tier, error) {
	grouped := make(map[string][]tax.Tier)
	for _, row := range rows {
		if row.Rate == "" {
			return nil, fmt.Errorf("tier row without rate")
		}
		pct, err := decimal.NewFromString(row.Percentage)
		if err != nil {
			return nil, fmt.Errorf("rate %q: invalid tier percentage %q", row.Rate, row.Percentage)
		}
		upTo, err := parseOptionalDecimal(row.UpTo)
		if err != nil {
			return nil, fmt.Errorf("rate %q: invalid up_to: %w", row.Rate, err)
		}
		grouped[row.Rate] = append(grouped[row.Rate], tax.Tier{UpTo: upTo, Percentage: pct})
	}

	for rate, tiers := range grouped {
		sort.SliceStable(tiers, func(i, j int) bool {
			a, b := tiers[i].UpTo, tiers[j].UpTo
			if a == nil || b == nil {
				return b == nil && a != nil
			}
			return a.LessThan(*b)
		})
		open := 0
		for _, t := range tiers {
			if t.UpTo == nil {
				open++
			}
		}
		if open > 1 {
			return nil, fmt.Errorf("rate %q: more than one open-ended tier", rate)
		}
	}
	return grouped, nil
}

func parseExemption(ed ExemptionDoc) (tax.Exemption, error) {
	if ed.ID == "" || ed.Customer == "" {
		return tax.Exemption{}, fmt.Errorf("id and customer are required")
	}
	pct, err := decimal.NewFromString(ed.Percentage)
	if err != nil {
		return tax.Exemption{}, fmt.Errorf("invalid percentage %q", ed.Percentage)
	}
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return tax.Exemption{}, fmt.Errorf("percentage must be between 0 and 100")
	}
	maxAmount, err := parseOptionalDecimal(ed.MaximumAmount)
	if err != nil {
		return tax.Exemption{}, fmt.Errorf("maximum_amount: %w", err)
	}
	window, err := parseWindow(ed.Effective, ed.Expiry)
	if err != nil {
		return tax.Exemption{}, err
	}

	scope := tax.ExemptionScope(strings.ToLower(ed.Scope))
	if scope == "" {
		scope = tax.ScopeSpecific
	}
	if scope != tax.ScopeBlanket && scope != tax.ScopeSpecific {
		return tax.Exemption{}, fmt.Errorf("unknown scope %q", ed.Scope)
	}

	verification := tax.VerificationStatus(strings.ToLower(ed.Verification))
	switch verification {
	case "":
		verification = tax.VerificationPending
	case tax.VerificationPending, tax.VerificationVerified, tax.VerificationRejected, tax.VerificationExpired:
	default:
		return tax.Exemption{}, fmt.Errorf("unknown verification status %q", ed.Verification)
	}

	e := tax.Exemption{
		ID:                tax.ExemptionID(ed.ID),
		CustomerID:        tax.CustomerID(ed.Customer),
		Type:              ed.Type,
		CertificateNumber: ed.Certificate,
		Scope:             scope,
		ServiceTypes:      ed.ServiceTypes,
		TaxTypes:          ed.TaxTypes,
		Percentage:        pct,
		MaximumAmount:     maxAmount,
		Priority:          ed.Priority,
		Verification:      verification,
		Window:            window,
		Condition:         ed.Condition,
	}
	for _, j := range ed.Jurisdictions {
		e.Jurisdictions = append(e.Jurisdictions, tax.JurisdictionID(j))
	}
	for _, c := range ed.Categories {
		e.Categories = append(e.Categories, tax.CategoryID(c))
	}
	if ed.VerifiedAt != "" {
		d, err := tax.ParseDate(ed.VerifiedAt)
		if err != nil {
			return tax.Exemption{}, err
		}
		e.VerifiedAt = &d
	}
	return e, nil
}

func parseWindow(effective, expiry string) (tax.Window, error) {
	var w tax.Window
	if effective != "" {
		d, err := tax.ParseDate(effective)
		if err != nil {
			return w, err
		}
		w.Effective = d
	}
	if expiry != "" {
		d, err := tax.ParseDate(expiry)
		if err != nil {
			return w, err
		}
		w.Expiry = &d
	}
	if !w.Valid() {
		return w, fmt.Errorf("expiry %s is not after effective %s", expiry, effective)
	}
	return w, nil
}

func parseOptionalDecimal(s string) (*decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid decimal %q", s)
	}
	return &d, nil
}
