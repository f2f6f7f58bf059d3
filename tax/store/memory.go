// Package store provides the in-memory implementation of the tax engine's
// record store and reference data.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warp/tax-engine/tax"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev/CLI)
// =============================================================================

// Memory hands out deep copies; records and reference data it returns can
// be edited without touching what is stored.
type Memory struct {
	mu sync.RWMutex

	records map[tax.CalculationID]tax.CalculationRecord
	order   []tax.CalculationID // insertion order, for stable listing

	jurisdictions map[tax.JurisdictionID]tax.Jurisdiction
	rates         map[tax.RateID]tax.RateDefinition
	exemptions    map[tax.ExemptionID]tax.Exemption
}

func NewMemory() *Memory {
	return &Memory{
		records:       make(map[tax.CalculationID]tax.CalculationRecord),
		jurisdictions: make(map[tax.JurisdictionID]tax.Jurisdiction),
		rates:         make(map[tax.RateID]tax.RateDefinition),
		exemptions:    make(map[tax.ExemptionID]tax.Exemption),
	}
}

// =============================================================================
// RECORD STORE
// =============================================================================

func (m *Memory) Create(_ context.Context, rec *tax.CalculationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(rec)
}

func (m *Memory) createLocked(rec *tax.CalculationRecord) error {
	if _, exists := m.records[rec.ID]; exists {
		return tax.ErrDuplicateCalculation
	}
	m.records[rec.ID] = *rec.Clone()
	m.order = append(m.order, rec.ID)
	return nil
}

func (m *Memory) Get(_ context.Context, id tax.CalculationID) (*tax.CalculationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, tax.ErrCalculationNotFound
	}
	return rec.Clone(), nil
}

func (m *Memory) List(_ context.Context, filter tax.RecordFilter) ([]tax.CalculationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []tax.CalculationRecord{}
	for _, id := range m.order {
		rec := m.records[id]
		if !filter.Matches(&rec) {
			continue
		}
		result = append(result, *rec.Clone())
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result, nil
}

func (m *Memory) Transition(_ context.Context, u tax.StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(u)
}

func (m *Memory) transitionLocked(u tax.StatusUpdate) error {
	rec, ok := m.records[u.ID]
	if !ok {
		return tax.ErrCalculationNotFound
	}
	if rec.Status != u.From || rec.Version != u.Version {
		return tax.ErrConcurrentModification
	}
	u.Apply(&rec)
	m.records[u.ID] = rec
	return nil
}

// CreateAdjustment checks both preconditions before writing anything, so a
// failure leaves the store untouched.
func (m *Memory) CreateAdjustment(_ context.Context, u tax.StatusUpdate, successor *tax.CalculationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prior, ok := m.records[u.ID]
	if !ok {
		return tax.ErrCalculationNotFound
	}
	if prior.Status != u.From || prior.Version != u.Version {
		return tax.ErrConcurrentModification
	}
	if _, exists := m.records[successor.ID]; exists {
		return tax.ErrDuplicateCalculation
	}

	if err := m.transitionLocked(u); err != nil {
		return err
	}
	return m.createLocked(successor)
}

func (m *Memory) SetValidation(_ context.Context, id tax.CalculationID, status tax.ValidationStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return tax.ErrCalculationNotFound
	}
	rec.ValidationStatus = status
	rec.ValidatedAt = &at
	m.records[id] = rec
	return nil
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

func (m *Memory) SaveJurisdiction(_ context.Context, j tax.Jurisdiction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jurisdictions[j.ID] = j.Clone()
	return nil
}

// SaveRate appends a rate. Re-saving identical content is a no-op;
// changed content under an existing ID is rejected.
func (m *Memory) SaveRate(_ context.Context, r tax.RateDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.rates[r.ID]; ok {
		if tax.SameRate(existing, r) {
			return nil
		}
		return tax.ErrRateConflict
	}
	m.rates[r.ID] = r.Clone()
	return nil
}

func (m *Memory) SaveExemption(_ context.Context, e tax.Exemption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exemptions[e.ID] = e.Clone()
	return nil
}

// Jurisdictions matches the country case-insensitively, as the SQLite
// store's upper-cased country column does.
func (m *Memory) Jurisdictions(_ context.Context, country string) ([]tax.Jurisdiction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	country = strings.TrimSpace(country)
	var result []tax.Jurisdiction
	for _, j := range m.jurisdictions {
		if strings.EqualFold(strings.TrimSpace(j.Scope.Country), country) {
			result = append(result, j.Clone())
		}
	}
	sort.Slice(result, func(a, b int) bool { return result[a].ID < result[b].ID })
	return result, nil
}

func (m *Memory) Rates(_ context.Context, ids []tax.JurisdictionID) ([]tax.RateDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[tax.JurisdictionID]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var result []tax.RateDefinition
	for _, r := range m.rates {
		if wanted[r.JurisdictionID] {
			result = append(result, r.Clone())
		}
	}
	sort.Slice(result, func(a, b int) bool { return result[a].ID < result[b].ID })
	return result, nil
}

// ActiveExemptions returns every exemption of the customer; the engine
// applies verification and window checks itself.
func (m *Memory) ActiveExemptions(_ context.Context, customerID tax.CustomerID, _ tax.Date) ([]tax.Exemption, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []tax.Exemption
	for _, e := range m.exemptions {
		if e.CustomerID == customerID {
			result = append(result, e.Clone())
		}
	}
	sort.Slice(result, func(a, b int) bool { return result[a].ID < result[b].ID })
	return result, nil
}
