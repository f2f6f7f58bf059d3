/*
Package tax provides the multi-jurisdiction tax calculation engine.

PURPOSE:
  This package contains the domain types and algorithms that turn a base
  amount, a service classification, an address and a set of exemptions into
  an itemized, auditable tax result. Telecom, SaaS or retail domains plug in
  their own categories and reference data; the engine itself has no
  knowledge of any specific tax regime.

KEY CONCEPTS IN THIS FILE (types.go):
  - Jurisdiction: A taxing authority tied to a geography
  - RateDefinition: A single tax rule (who, what, how much, when effective)
  - Exemption: A certificate-backed waiver for one customer
  - Address: The service/billing location used for resolution

DESIGN PRINCIPLES:
  1. Precision: All money uses decimal.Decimal, never float64
  2. Reproducibility: Reference data is append-only and time-windowed
  3. Type Safety: Strong typing for IDs prevents mixing rate/jurisdiction IDs
  4. Auditability: Every contribution is traceable to one rate definition

PIPELINE:
  Resolver -> Selector -> Exemption Filter -> Executor -> Recorder
  (with the ResultCache consulted first and populated last)

SEE ALSO:
  - executor.go: The calculation algorithm
  - record.go: CalculationRecord and its lifecycle
  - engine.go: Orchestration of the full pipeline
*/
package tax

import (
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type JurisdictionID string
type CategoryID string
type RateID string
type ExemptionID string
type CustomerID string
type CalculationID string

// =============================================================================
// JURISDICTION - A taxing authority
// =============================================================================

type JurisdictionKind string

const (
	KindFederal         JurisdictionKind = "federal"
	KindState           JurisdictionKind = "state"
	KindCounty          JurisdictionKind = "county"
	KindLocal           JurisdictionKind = "local"
	KindMunicipal       JurisdictionKind = "municipal"
	KindSpecialDistrict JurisdictionKind = "special_district"
)

// Breadth orders jurisdiction kinds from broadest (0) to narrowest.
// Unknown kinds sort after every known kind.
func (k JurisdictionKind) Breadth() int {
	switch k {
	case KindFederal:
		return 0
	case KindState:
		return 1
	case KindCounty:
		return 2
	case KindMunicipal, KindLocal:
		return 3
	case KindSpecialDistrict:
		return 4
	default:
		return 5
	}
}

func (k JurisdictionKind) Valid() bool { return k.Breadth() < 5 }

// GeoScope describes the geography a jurisdiction covers. Empty fields are
// wildcards; Country is always required.
type GeoScope struct {
	Country        string   `json:"country"`
	State          string   `json:"state,omitempty"`
	County         string   `json:"county,omitempty"`
	Municipality   string   `json:"municipality,omitempty"`
	PostalCodes    []string `json:"postal_codes,omitempty"`
	PostalPrefixes []string `json:"postal_prefixes,omitempty"`
}

type Jurisdiction struct {
	ID        JurisdictionID   `json:"id"`
	Kind      JurisdictionKind `json:"kind"`
	Name      string           `json:"name"`
	Authority string           `json:"authority,omitempty"`
	Scope     GeoScope         `json:"scope"`
	Window    Window           `json:"window"`
}

// =============================================================================
// ADDRESS
// =============================================================================

type Address struct {
	Street       string `json:"street,omitempty"`
	Municipality string `json:"municipality,omitempty"`
	County       string `json:"county,omitempty"`
	State        string `json:"state,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
	Country      string `json:"country"`
}

// Normalize upper-cases and trims the fields used for matching.
// Street is informational and left untouched.
func (a Address) Normalize() Address {
	norm := func(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }
	return Address{
		Street:       a.Street,
		Municipality: norm(a.Municipality),
		County:       norm(a.County),
		State:        norm(a.State),
		PostalCode:   norm(a.PostalCode),
		Country:      norm(a.Country),
	}
}

// =============================================================================
// RATE DEFINITION - The taxable rule
// =============================================================================

type RateShape string

const (
	ShapePercentage RateShape = "percentage"
	ShapeFixed      RateShape = "fixed"
	ShapeTiered     RateShape = "tiered"
	ShapePerLine    RateShape = "per_line"
	ShapePerMinute  RateShape = "per_minute"
	ShapePerUnit    RateShape = "per_unit"
)

// IsUnitBased reports whether the shape multiplies a fixed amount by a unit count.
func (s RateShape) IsUnitBased() bool {
	return s == ShapePerLine || s == ShapePerMinute || s == ShapePerUnit
}

type CalculationMethod string

const (
	MethodStandard  CalculationMethod = "standard"
	MethodCompound  CalculationMethod = "compound"
	MethodAdditive  CalculationMethod = "additive"
	MethodInclusive CalculationMethod = "inclusive"
	MethodExclusive CalculationMethod = "exclusive"
)

// Tier is one segment of a tiered rate. Segments are ordered by UpTo; a nil
// UpTo marks the open-ended top segment.
type Tier struct {
	UpTo       *decimal.Decimal `json:"up_to,omitempty"`
	Percentage decimal.Decimal  `json:"percentage"`
}

type RateDefinition struct {
	ID             RateID         `json:"id"`
	JurisdictionID JurisdictionID `json:"jurisdiction_id"`
	CategoryID     CategoryID     `json:"category_id,omitempty"`   // empty = applies to every category
	ServiceTypes   []string       `json:"service_types,omitempty"` // empty = every service type
	TaxType        string         `json:"tax_type,omitempty"`
	Description    string         `json:"description,omitempty"`

	Shape            RateShape        `json:"shape"`
	Percentage       *decimal.Decimal `json:"percentage,omitempty"`
	FixedAmount      *decimal.Decimal `json:"fixed_amount,omitempty"`
	MinimumThreshold *decimal.Decimal `json:"minimum_threshold,omitempty"`
	MaximumAmount    *decimal.Decimal `json:"maximum_amount,omitempty"`
	Tiers            []Tier           `json:"tiers,omitempty"`

	Method      CalculationMethod `json:"method"`
	Compound    bool              `json:"compound,omitempty"`
	Recoverable bool              `json:"recoverable,omitempty"`
	Priority    int               `json:"priority"`
	Window      Window            `json:"window"`
}

// AppliesToServiceType is true when the rate is unscoped or lists serviceType.
func (r RateDefinition) AppliesToServiceType(serviceType string) bool {
	if len(r.ServiceTypes) == 0 {
		return true
	}
	for _, st := range r.ServiceTypes {
		if strings.EqualFold(st, serviceType) {
			return true
		}
	}
	return false
}

// IsCompounding is true for tax-on-tax rates, by method or by flag.
func (r RateDefinition) IsCompounding() bool {
	return r.Method == MethodCompound || r.Compound
}

// =============================================================================
// EXEMPTION - Customer-scoped waiver
// =============================================================================

type ExemptionScope string

const (
	ScopeBlanket  ExemptionScope = "blanket"
	ScopeSpecific ExemptionScope = "specific"
)

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
	VerificationExpired  VerificationStatus = "expired"
)

type Exemption struct {
	ID                ExemptionID        `json:"id"`
	CustomerID        CustomerID         `json:"customer_id"`
	Type              string             `json:"type"` // resale, non_profit, government, ...
	CertificateNumber string             `json:"certificate_number,omitempty"`
	Scope             ExemptionScope     `json:"scope"`
	Jurisdictions     []JurisdictionID   `json:"jurisdictions,omitempty"`
	Categories        []CategoryID       `json:"categories,omitempty"`
	ServiceTypes      []string           `json:"service_types,omitempty"`
	TaxTypes          []string           `json:"tax_types,omitempty"`
	Percentage        decimal.Decimal    `json:"percentage"`
	MaximumAmount     *decimal.Decimal   `json:"maximum_amount,omitempty"`
	Priority          int                `json:"priority"`
	Verification      VerificationStatus `json:"verification_status"`
	VerifiedAt        *Date              `json:"verified_at,omitempty"`
	Window            Window             `json:"window"`

	// Condition is an optional JSONLogic rule evaluated against the
	// calculation context. A falsy result means the exemption does not apply.
	Condition map[string]any `json:"condition,omitempty"`
}

// IsActive reports whether the exemption may reduce tax on the given date.
func (e Exemption) IsActive(asOf Date) bool {
	return e.Verification == VerificationVerified && e.Window.Contains(asOf)
}

// =============================================================================
// UNIT COUNTS - Caller-supplied quantities for per-unit shapes
// =============================================================================

// UnitCounts carries the taxable unit count of per_line, per_minute and
// per_unit rates. A nil count falls back to the line quantity.
type UnitCounts struct {
	Lines   *decimal.Decimal `json:"lines,omitempty"`
	Minutes *decimal.Decimal `json:"minutes,omitempty"`
	Units   *decimal.Decimal `json:"units,omitempty"`
}

// For returns the unit count used by the given shape.
func (u UnitCounts) For(shape RateShape, quantity int) decimal.Decimal {
	var v *decimal.Decimal
	switch shape {
	case ShapePerLine:
		v = u.Lines
	case ShapePerMinute:
		v = u.Minutes
	case ShapePerUnit:
		v = u.Units
	}
	if v == nil {
		return decimal.NewFromInt(int64(quantity))
	}
	return *v
}

// =============================================================================
// HELPERS
// =============================================================================

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// DecimalPtr returns a pointer to a parsed decimal, for optional fields.
func DecimalPtr(s string) *decimal.Decimal {
	d := MustParseDecimal(s)
	return &d
}

var hundred = decimal.NewFromInt(100)
