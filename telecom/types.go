// Package telecom implements telecom and VoIP specific tax classification.
// It registers service categories with the tax engine and provides sample
// reference data for US and UK jurisdictions.
package telecom

import "github.com/warp/tax-engine/tax"

// =============================================================================
// TELECOM CATEGORIES
// =============================================================================

const (
	CategoryInterstateVoice tax.CategoryID = "interstate_voice"
	CategoryIntrastateVoice tax.CategoryID = "intrastate_voice"
	CategoryLocalVoice      tax.CategoryID = "local_voice"
	CategoryInternational   tax.CategoryID = "international_voice"
	CategoryBroadband       tax.CategoryID = "broadband"
	CategoryEquipment       tax.CategoryID = "equipment"
)

var categories = []tax.TaxCategory{
	{ID: CategoryInterstateVoice, Name: "Interstate Voice", Description: "Calls crossing state lines; USF assessable"},
	{ID: CategoryIntrastateVoice, Name: "Intrastate Voice", Description: "Toll calls within one state"},
	{ID: CategoryLocalVoice, Name: "Local Voice", Description: "Local exchange and VoIP seat charges"},
	{ID: CategoryInternational, Name: "International Voice"},
	{ID: CategoryBroadband, Name: "Broadband Internet Access"},
	{ID: CategoryEquipment, Name: "Equipment", Description: "Handsets and customer premises equipment"},
}

// Register all telecom categories with the tax registry
func init() {
	for _, c := range categories {
		tax.RegisterCategory(c)
	}
}

// Categories returns the telecom categories in declaration order.
func Categories() []tax.TaxCategory {
	out := make([]tax.TaxCategory, len(categories))
	copy(out, categories)
	return out
}

// =============================================================================
// SERVICE TYPES
// =============================================================================

// ServiceType narrows a rate within a category (a 911 fee may apply to VoIP
// and wireless lines but not to landlines).
type ServiceType string

const (
	ServiceVoIP      ServiceType = "voip"
	ServiceWireless  ServiceType = "wireless"
	ServiceLandline  ServiceType = "landline"
	ServiceBroadband ServiceType = "broadband"
)

// =============================================================================
// TAX TYPES
// =============================================================================

const (
	TaxUSF            = "usf"
	TaxE911           = "e911"
	TaxSales          = "sales"
	TaxUtilityUsers   = "utility_users"
	TaxCommunications = "communications_services"
	TaxTransitFee     = "transit_fee"
	TaxStateTelecom   = "state_telecom"
	TaxGrossReceipts  = "gross_receipts"
	TaxExcise         = "excise"
	TaxPUCFee         = "puc_fee"
	TaxMCTD           = "mctd"
	TaxVAT            = "vat"
	TaxRegulatoryFee  = "regulatory_fee"
)
