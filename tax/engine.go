/*
engine.go - Orchestration of the calculation pipeline

PURPOSE:
  Engine is the single entry point callers use. It wires the resolver,
  selector, exemption filter, executor, recorder and result cache together
  and exposes the record lifecycle.

CALCULATE FLOW:
  1. Validate and normalize the request
  2. Look up the customer's exemptions (they are part of the cache key)
  3. Fingerprint -> cache hit? reuse the result, still record a new row
  4. Resolve jurisdictions (unresolvable -> error, never zero tax)
  5. Select rates, filter exemptions, execute
  6. Record, then populate the cache

CONCURRENCY:
  Engine holds no per-request state. It is safe for concurrent use; the
  cache and the record store are the only shared structures.

USAGE:
  engine := tax.NewEngine(refData, recordStore,
      tax.WithLogger(logger),
      tax.WithCacheTTL(10*time.Minute),
  )
  rec, err := engine.Calculate(ctx, tax.CalculateRequest{...})
*/
package tax

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/tax-engine/id"
)

// EngineVersion is stamped on every record's metadata.
const EngineVersion = "1.0.0"

// =============================================================================
// REQUESTS
// =============================================================================

// CalculateRequest describes one line to tax.
type CalculateRequest struct {
	Calculable  CalculableRef
	CustomerID  CustomerID
	BaseAmount  decimal.Decimal
	Quantity    int
	Units       UnitCounts
	Category    CategoryID
	ServiceType string
	Address     Address
	AsOf        Date   // zero = today
	Currency    string // zero = USD

	// SkipCache forces a fresh computation even when a cached result exists.
	SkipCache bool
}

// Corrections are the fields an adjustment may change. Nil fields keep the
// value of the calculation being adjusted.
type Corrections struct {
	BaseAmount  *decimal.Decimal
	Quantity    *int
	Units       *UnitCounts
	Category    *CategoryID
	ServiceType *string
	Address     *Address
	AsOf        *Date
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	resolver  *JurisdictionResolver
	selector  *RateSelector
	exemption ExemptionSource
	recorder  *Recorder
	cache     *ResultCache

	logger   *zap.Logger
	now      func() time.Time
	newID    func() CalculationID
	cacheTTL time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithCacheTTL sets the result cache TTL. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.cacheTTL = ttl }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator replaces TypeID generation, for tests.
func WithIDGenerator(fn func() CalculationID) Option {
	return func(e *Engine) { e.newID = fn }
}

func NewEngine(ref ReferenceData, records RecordStore, opts ...Option) *Engine {
	e := &Engine{
		exemption: ref,
		logger:    zap.NewNop(),
		now:       time.Now,
		newID:     func() CalculationID { return CalculationID(id.NewCalculationID()) },
		cacheTTL:  DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.resolver = NewJurisdictionResolver(ref)
	e.selector = NewRateSelector(ref)
	e.recorder = NewRecorder(records, e.now, e.newID, e.logger)
	e.cache = NewResultCache(e.cacheTTL, e.now)
	return e
}

// Cache exposes the result cache (purge after reference reloads).
func (e *Engine) Cache() *ResultCache { return e.cache }

// =============================================================================
// CALCULATE
// =============================================================================

func (e *Engine) Calculate(ctx context.Context, req CalculateRequest) (*CalculationRecord, error) {
	start := e.now()

	input, err := e.normalize(req)
	if err != nil {
		return nil, err
	}
	if !req.Calculable.Kind.Valid() || req.Calculable.ID == "" {
		return nil, &InputError{Field: "calculable", Reason: "kind must be invoice_line, quote_line or adjustment and id is required"}
	}

	exemptions, err := e.customerExemptions(ctx, input.CustomerID, input.AsOf)
	if err != nil {
		return nil, err
	}
	fp := Fingerprint(input, exemptionIDs(exemptions))

	if !req.SkipCache {
		if hit, ok := e.cache.Get(fp); ok {
			// The fingerprint skips the street line, so the request's own
			// fields are kept and only the reference data is reused.
			input.Jurisdictions = hit.Input.Jurisdictions
			input.Rates = hit.Input.Rates
			input.Exemptions = hit.Input.Exemptions
			rec := &CalculationRecord{Calculable: req.Calculable, Input: input, Currency: input.Currency}
			rec.ApplyResult(hit.Result)
			rec.Metadata.CacheHit = true
			rec.Metadata.SourceCalculationID = hit.SourceID
			e.stamp(rec, fp, start)
			if err := e.recorder.Record(ctx, rec); err != nil {
				return nil, err
			}
			return rec, nil
		}
	}

	input.Exemptions = exemptions
	input, res, err := e.run(ctx, input)
	if err != nil {
		return nil, err
	}

	rec := &CalculationRecord{Calculable: req.Calculable, Input: input, Currency: input.Currency}
	rec.ApplyResult(res)
	e.stamp(rec, fp, start)
	if err := e.recorder.Record(ctx, rec); err != nil {
		return nil, err
	}

	e.cache.Put(fp, CachedResult{SourceID: rec.ID, Input: input, Result: res})
	e.logWarnings(rec)
	return rec, nil
}

// run resolves, selects and executes, filling the snapshot as it goes.
func (e *Engine) run(ctx context.Context, input CalculationInput) (CalculationInput, ExecutionResult, error) {
	jurisdictions, err := e.resolver.Resolve(ctx, input.Address, input.AsOf)
	if err != nil {
		return input, ExecutionResult{}, err
	}
	rates, err := e.selector.Select(ctx, jurisdictions, SelectionCriteria{
		Category:    input.Category,
		ServiceType: input.ServiceType,
		AsOf:        input.AsOf,
	})
	if err != nil {
		return input, ExecutionResult{}, err
	}

	input.Jurisdictions = jurisdictions
	input.Rates = rates
	if input.Rates == nil {
		input.Rates = []RateDefinition{}
	}
	if input.Exemptions == nil {
		input.Exemptions = []Exemption{}
	}
	return input, Rederive(input), nil
}

func (e *Engine) stamp(rec *CalculationRecord, fp string, start time.Time) {
	rec.Metadata.Fingerprint = fp
	rec.Metadata.EngineVersion = EngineVersion
	rec.Metadata.DurationMicros = e.now().Sub(start).Microseconds()
}

func (e *Engine) logWarnings(rec *CalculationRecord) {
	for _, w := range rec.Metadata.Warnings {
		e.logger.Warn("calculation warning",
			zap.String("id", string(rec.ID)),
			zap.String("code", string(w.Code)),
			zap.String("rate_id", string(w.RateID)),
			zap.String("exemption_id", string(w.ExemptionID)),
			zap.String("message", w.Message))
	}
}

func (e *Engine) normalize(req CalculateRequest) (CalculationInput, error) {
	if req.Quantity < 0 {
		return CalculationInput{}, &InputError{Field: "quantity", Reason: "must not be negative"}
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if strings.TrimSpace(string(req.Category)) == "" {
		return CalculationInput{}, &InputError{Field: "category", Reason: "is required"}
	}
	if req.AsOf.IsZero() {
		req.AsOf = DateOf(e.now().UTC())
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	if !ValidCurrency(currency) {
		return CalculationInput{}, &InputError{Field: "currency", Reason: fmt.Sprintf("%q is not an ISO 4217 code", req.Currency)}
	}

	return CalculationInput{
		CustomerID:  req.CustomerID,
		BaseAmount:  req.BaseAmount,
		Quantity:    req.Quantity,
		Units:       req.Units,
		Category:    req.Category,
		ServiceType: req.ServiceType,
		Address:     req.Address.Normalize(),
		AsOf:        req.AsOf,
		Currency:    currency,
	}, nil
}

func (e *Engine) customerExemptions(ctx context.Context, customer CustomerID, asOf Date) ([]Exemption, error) {
	if customer == "" {
		return []Exemption{}, nil
	}
	exemptions, err := e.exemption.ActiveExemptions(ctx, customer, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to load exemptions for %s: %w", customer, err)
	}
	if exemptions == nil {
		exemptions = []Exemption{}
	}
	return exemptions, nil
}

func exemptionIDs(es []Exemption) []ExemptionID {
	ids := make([]ExemptionID, len(es))
	for i, ex := range es {
		ids[i] = ex.ID
	}
	return ids
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func (e *Engine) ApplyTo(ctx context.Context, id CalculationID, doc DocumentRef) (*CalculationRecord, error) {
	return e.recorder.ApplyTo(ctx, id, doc)
}

func (e *Engine) Void(ctx context.Context, id CalculationID, reason string) (*CalculationRecord, error) {
	return e.recorder.Void(ctx, id, reason)
}

// Adjust recomputes a calculation with corrected inputs against current
// reference data and records the result as a linked adjustment. The prior
// record moves to adjusted; its breakdown is never rewritten.
func (e *Engine) Adjust(ctx context.Context, id CalculationID, reason string, c Corrections) (*CalculationRecord, error) {
	start := e.now()

	prior, err := e.recorder.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(prior.Status, StatusAdjusted) {
		return nil, &InvalidTransitionError{ID: id, From: prior.Status, To: StatusAdjusted}
	}

	req := c.merge(prior.Input)
	req.Calculable = prior.Calculable
	input, err := e.normalize(req)
	if err != nil {
		return nil, err
	}

	exemptions, err := e.customerExemptions(ctx, input.CustomerID, input.AsOf)
	if err != nil {
		return nil, err
	}
	input.Exemptions = exemptions
	input, res, err := e.run(ctx, input)
	if err != nil {
		return nil, err
	}

	successor := &CalculationRecord{Input: input, Currency: input.Currency}
	successor.ApplyResult(res)
	e.stamp(successor, Fingerprint(input, exemptionIDs(exemptions)), start)

	if err := e.recorder.Adjust(ctx, prior, reason, successor); err != nil {
		return nil, err
	}
	e.logWarnings(successor)
	return successor, nil
}

func (c Corrections) merge(in CalculationInput) CalculateRequest {
	req := CalculateRequest{
		CustomerID:  in.CustomerID,
		BaseAmount:  in.BaseAmount,
		Quantity:    in.Quantity,
		Units:       in.Units,
		Category:    in.Category,
		ServiceType: in.ServiceType,
		Address:     in.Address,
		AsOf:        in.AsOf,
		Currency:    in.Currency,
	}
	if c.BaseAmount != nil {
		req.BaseAmount = *c.BaseAmount
	}
	if c.Quantity != nil {
		req.Quantity = *c.Quantity
	}
	if c.Units != nil {
		req.Units = *c.Units
	}
	if c.Category != nil {
		req.Category = *c.Category
	}
	if c.ServiceType != nil {
		req.ServiceType = *c.ServiceType
	}
	if c.Address != nil {
		req.Address = *c.Address
	}
	if c.AsOf != nil {
		req.AsOf = *c.AsOf
	}
	return req
}

func (e *Engine) Verify(ctx context.Context, id CalculationID) (*CalculationRecord, error) {
	return e.recorder.Verify(ctx, id)
}

func (e *Engine) GetCalculation(ctx context.Context, id CalculationID) (*CalculationRecord, error) {
	return e.recorder.Get(ctx, id)
}

func (e *Engine) ListCalculations(ctx context.Context, filter RecordFilter) ([]CalculationRecord, error) {
	return e.recorder.List(ctx, filter)
}

// =============================================================================
// INSPECTION - The pipeline stages on their own
// =============================================================================

func (e *Engine) ResolveJurisdictions(ctx context.Context, addr Address, asOf Date) ([]Jurisdiction, error) {
	if asOf.IsZero() {
		asOf = DateOf(e.now().UTC())
	}
	return e.resolver.Resolve(ctx, addr, asOf)
}

// SelectRates returns the rates that would be considered for a line at addr.
func (e *Engine) SelectRates(ctx context.Context, addr Address, criteria SelectionCriteria) ([]RateDefinition, error) {
	if criteria.AsOf.IsZero() {
		criteria.AsOf = DateOf(e.now().UTC())
	}
	jurisdictions, err := e.resolver.Resolve(ctx, addr, criteria.AsOf)
	if err != nil {
		return nil, err
	}
	return e.selector.Select(ctx, jurisdictions, criteria)
}

// Exemptions returns the customer's exemptions that are active on asOf.
func (e *Engine) Exemptions(ctx context.Context, customer CustomerID, asOf Date) ([]Exemption, error) {
	if asOf.IsZero() {
		asOf = DateOf(e.now().UTC())
	}
	all, err := e.customerExemptions(ctx, customer, asOf)
	if err != nil {
		return nil, err
	}
	active := make([]Exemption, 0, len(all))
	for _, ex := range all {
		if ex.IsActive(asOf) {
			active = append(active, ex)
		}
	}
	return active, nil
}
