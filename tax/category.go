/*
category.go - Tax category registration and lookup

PURPOSE:
  Provides a registry for domain packages to register the tax categories
  they classify services into (interstate voice, equipment, digital goods...).
  Rate definitions and exemptions reference categories by ID; the registry
  turns those IDs back into named categories for display and validation.

HOW IT WORKS:
  1. Domain packages define their categories
  2. Domain packages register them on init()
  3. Factory/storage/API use the registry to describe categories

USAGE:
  // In telecom/types.go
  func init() {
      tax.RegisterCategory(CategoryInterstateVoice)
  }

  cat, ok := tax.LookupCategory("interstate_voice")

SEE ALSO:
  - types.go: RateDefinition.CategoryID
  - telecom/types.go: Telecom categories
*/
package tax

import (
	"sort"
	"sync"
)

type TaxCategory struct {
	ID          CategoryID `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
}

// =============================================================================
// CATEGORY REGISTRY
// =============================================================================

var (
	categoryRegistry = make(map[CategoryID]TaxCategory)
	registryMu       sync.RWMutex
)

// RegisterCategory adds a category to the global registry.
// Call this from domain package init() functions.
func RegisterCategory(c TaxCategory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	categoryRegistry[c.ID] = c
}

// LookupCategory finds a registered category by ID.
func LookupCategory(id CategoryID) (TaxCategory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	c, ok := categoryRegistry[id]
	return c, ok
}

// GetOrCreateCategory looks up a category, or returns a bare one named after
// its ID. Use this in deserialization when the domain might not be loaded.
func GetOrCreateCategory(id CategoryID) TaxCategory {
	if c, ok := LookupCategory(id); ok {
		return c
	}
	return TaxCategory{ID: id, Name: string(id)}
}

// ListCategories returns all registered categories sorted by ID.
func ListCategories() []TaxCategory {
	registryMu.RLock()
	defer registryMu.RUnlock()
	result := make([]TaxCategory, 0, len(categoryRegistry))
	for _, c := range categoryRegistry {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
