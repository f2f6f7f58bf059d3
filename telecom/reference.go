/*
reference.go - Sample telecom reference data

PURPOSE:
  Provides ready-to-load reference documents for demos, the CLI and tests.
  The documents use the factory schema and are plain YAML strings so the
  telecom package does not depend on the factory package.

AVAILABLE DOCUMENTS:
  SampleReferenceYAML:  US federal/state/local plus UK VAT, with exemptions
  ExemptionYAML:        One exemption certificate, for ad-hoc loading

SAMPLE JURISDICTIONS:
  us                        federal      USF on interstate voice (quarterly)
  us-ca                     state        911 per line, PUC fee, sales on equipment
  us-ca-los-angeles-county  county       Tiered utility users tax
  us-ca-los-angeles         municipal    Communications services tax (capped)
  us-ca-la-transit          special      Fixed transit fee for 900xx/901xx
  us-tx / us-tx-austin      state/muni   5% telecom tax + 2.50 911 fee
  us-ny / us-ny-mctd        state/dist   Excise (with a superseded legacy row), MCTD
  gb                        federal      20% VAT, tax-inclusive pricing

SEE ALSO:
  - factory/reference.go: Document schema
  - api/scenarios.go: Demo scenarios built on these documents
*/
package telecom

import (
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/warp/tax-engine/tax"
)

// Sample customers referenced by the sample exemptions.
const (
	CustomerReseller  tax.CustomerID = "cust-reseller"
	CustomerNonProfit tax.CustomerID = "cust-nonprofit"
	CustomerAgency    tax.CustomerID = "cust-agency"
	CustomerRetail    tax.CustomerID = "cust-retail"
)

// SampleAddresses are service addresses covered by the sample document.
var SampleAddresses = map[string]tax.Address{
	"los-angeles": {Street: "200 N Spring St", Municipality: "Los Angeles", County: "Los Angeles", State: "CA", PostalCode: "90012", Country: "US"},
	"sacramento":  {Street: "1315 10th St", Municipality: "Sacramento", County: "Sacramento", State: "CA", PostalCode: "95814", Country: "US"},
	"austin":      {Street: "301 W 2nd St", Municipality: "Austin", County: "Travis", State: "TX", PostalCode: "78701", Country: "US"},
	"new-york":    {Street: "1 Centre St", Municipality: "New York", County: "New York", State: "NY", PostalCode: "10007", Country: "US"},
	"buffalo":     {Street: "65 Niagara Sq", Municipality: "Buffalo", County: "Erie", State: "NY", PostalCode: "14202", Country: "US"},
	"london":      {Street: "10 Downing St", Municipality: "London", PostalCode: "SW1A 2AA", Country: "GB"},
}

// SampleAddressNames returns the keys of SampleAddresses, sorted.
func SampleAddressNames() []string {
	names := make([]string, 0, len(SampleAddresses))
	for name := range SampleAddresses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SampleReferenceYAML returns the full sample reference document.
func SampleReferenceYAML() string {
	return sampleReference
}

// ExemptionYAML returns a document holding one verified exemption
// certificate for the customer, limited to the given jurisdictions (an
// empty list makes it blanket).
func ExemptionYAML(id string, customer tax.CustomerID, exemptionType, percentage string, jurisdictions ...string) string {
	ex := map[string]any{
		"id":           id,
		"customer":     string(customer),
		"type":         exemptionType,
		"percentage":   percentage,
		"verification": "verified",
		"effective":    "2024-01-01",
		"scope":        "blanket",
	}
	if len(jurisdictions) > 0 {
		ex["scope"] = "specific"
		ex["jurisdictions"] = jurisdictions
	}
	b, _ := yaml.Marshal(map[string]any{"exemptions": []map[string]any{ex}})
	return string(b)
}

const sampleReference = `
categories:
  - {id: interstate_voice, name: Interstate Voice}
  - {id: intrastate_voice, name: Intrastate Voice}
  - {id: local_voice, name: Local Voice}
  - {id: international_voice, name: International Voice}
  - {id: broadband, name: Broadband Internet Access}
  - {id: equipment, name: Equipment}

jurisdictions:
  - {id: us, kind: federal, name: United States, authority: FCC, scope: {country: US}, effective: 2000-01-01}
  - {id: us-ca, kind: state, name: California, authority: CDTFA, scope: {country: US, state: CA}, effective: 2000-01-01}
  - id: us-ca-los-angeles-county
    kind: county
    name: Los Angeles County
    scope: {country: US, state: CA, county: Los Angeles}
    effective: 2000-01-01
  - id: us-ca-los-angeles
    kind: municipal
    name: City of Los Angeles
    scope: {country: US, state: CA, municipality: Los Angeles}
    effective: 2000-01-01
  - id: us-ca-la-transit
    kind: special_district
    name: LA Metro Transit District
    scope: {country: US, state: CA, postal_prefixes: ["900", "901"]}
    effective: 2010-07-01
  - {id: us-tx, kind: state, name: Texas, authority: Comptroller, scope: {country: US, state: TX}, effective: 2000-01-01}
  - {id: us-tx-austin, kind: municipal, name: City of Austin, scope: {country: US, state: TX, municipality: Austin}, effective: 2000-01-01}
  - {id: us-ny, kind: state, name: New York, scope: {country: US, state: NY}, effective: 2000-01-01}
  - id: us-ny-mctd
    kind: special_district
    name: Metropolitan Commuter Transportation District
    scope: {country: US, state: NY, postal_prefixes: ["100", "101", "102", "103", "104", "112", "113", "114"]}
    effective: 2000-01-01
  - {id: gb, kind: federal, name: United Kingdom, authority: HMRC, scope: {country: GB}, effective: 2000-01-01}

rates:
  # Federal USF, one row per quarter
  - {id: us-usf-2025q1, jurisdiction: us, category: interstate_voice, tax_type: usf, shape: percentage, percentage: "36.6", priority: 10, effective: 2025-01-01, expiry: 2025-04-01}
  - {id: us-usf-2025q2, jurisdiction: us, category: interstate_voice, tax_type: usf, shape: percentage, percentage: "36.3", priority: 10, effective: 2025-04-01, expiry: 2025-07-01}
  - {id: us-usf-2025q3, jurisdiction: us, category: interstate_voice, tax_type: usf, shape: percentage, percentage: "36.6", priority: 10, effective: 2025-07-01, expiry: 2025-10-01}
  - {id: us-usf-2025q4, jurisdiction: us, category: interstate_voice, tax_type: usf, shape: percentage, percentage: "38.1", priority: 10, effective: 2025-10-01}

  # California
  - id: us-ca-911
    jurisdiction: us-ca
    service_types: [voip, wireless]
    tax_type: e911
    description: 911 emergency surcharge per access line
    shape: per_line
    fixed_amount: "0.30"
    priority: 30
    effective: 2024-01-01
  - {id: us-ca-puc, jurisdiction: us-ca, category: intrastate_voice, tax_type: puc_fee, shape: percentage, percentage: "0.95", priority: 20, recoverable: true, effective: 2024-01-01}
  - {id: us-ca-sales, jurisdiction: us-ca, category: equipment, tax_type: sales, shape: percentage, percentage: "7.25", priority: 20, effective: 2017-01-01}
  - {id: us-ca-la-county-uut, jurisdiction: us-ca-los-angeles-county, category: local_voice, tax_type: utility_users, shape: tiered, priority: 40, effective: 2024-01-01}
  - id: us-ca-los-angeles-cst
    jurisdiction: us-ca-los-angeles
    category: local_voice
    tax_type: communications_services
    shape: percentage
    percentage: "9"
    maximum_amount: "50"
    priority: 50
    effective: 2024-01-01
  - {id: us-ca-la-transit-fee, jurisdiction: us-ca-la-transit, category: local_voice, tax_type: transit_fee, shape: fixed, fixed_amount: "1.00", priority: 60, effective: 2024-01-01}

  # Texas
  - {id: us-tx-telecom, jurisdiction: us-tx, category: local_voice, tax_type: state_telecom, shape: percentage, percentage: "5", priority: 20, effective: 2024-01-01}
  - {id: us-tx-austin-911, jurisdiction: us-tx-austin, category: local_voice, tax_type: e911, shape: fixed, fixed_amount: "2.50", priority: 30, effective: 2024-01-01}
  - {id: us-tx-austin-gross-receipts, jurisdiction: us-tx-austin, category: intrastate_voice, tax_type: gross_receipts, shape: percentage, percentage: "2", method: compound, priority: 90, effective: 2024-01-01}
  - {id: us-tx-intrastate, jurisdiction: us-tx, category: intrastate_voice, tax_type: state_telecom, shape: percentage, percentage: "6.25", priority: 20, effective: 2024-01-01}

  # New York
  - {id: us-ny-excise, jurisdiction: us-ny, category: intrastate_voice, tax_type: excise, shape: percentage, percentage: "2.5", priority: 20, effective: 2024-01-01}
  - {id: us-ny-excise-legacy, jurisdiction: us-ny, category: intrastate_voice, tax_type: excise, shape: percentage, percentage: "3", priority: 25, effective: 2020-01-01}
  - {id: us-ny-911, jurisdiction: us-ny, service_types: [voip, wireless, landline], tax_type: e911, shape: per_line, fixed_amount: "1.20", priority: 30, effective: 2024-01-01}
  - {id: us-ny-mctd-surcharge, jurisdiction: us-ny-mctd, tax_type: mctd, shape: percentage, percentage: "0.375", minimum_threshold: "0.10", priority: 60, effective: 2024-01-01}

  # United Kingdom
  - {id: gb-vat, jurisdiction: gb, tax_type: vat, shape: percentage, percentage: "20", method: inclusive, recoverable: true, priority: 10, effective: 2011-01-04}

tiers:
  - {rate: us-ca-la-county-uut, up_to: "100", percentage: "5"}
  - {rate: us-ca-la-county-uut, percentage: "2.5"}

exemptions:
  - id: ex-reseller-usf
    customer: cust-reseller
    type: resale
    certificate: RS-2024-0001
    scope: specific
    jurisdictions: [us]
    tax_types: [usf]
    percentage: "100"
    verification: verified
    verified_at: 2024-01-15
    effective: 2024-01-01
  - id: ex-reseller-pending
    customer: cust-reseller
    type: resale
    scope: blanket
    percentage: "100"
    verification: pending
    effective: 2024-01-01
  - id: ex-nonprofit-ca
    customer: cust-nonprofit
    type: non_profit
    certificate: NP-CA-7781
    scope: specific
    jurisdictions: [us-ca, us-ca-los-angeles-county, us-ca-los-angeles]
    percentage: "50"
    maximum_amount: "5"
    verification: verified
    verified_at: 2024-03-01
    effective: 2024-01-01
  - id: ex-agency-large-orders
    customer: cust-agency
    type: government
    certificate: GOV-0042
    scope: blanket
    percentage: "100"
    verification: verified
    verified_at: 2024-02-01
    effective: 2024-01-01
    condition: {">=": [{"var": "line.base_amount"}, 1000]}
`
