/*
handlers.go - HTTP API handlers for the tax engine

PURPOSE:

	Exposes the tax engine via REST API. Handles HTTP request/response and
	JSON serialization, and delegates every decision to tax.Engine.

ENDPOINTS:

	Calculations:
	  POST   /api/calculations               Calculate tax for one line
	  GET    /api/calculations               List records (filters below)
	  GET    /api/calculations/{id}          Get one record
	  POST   /api/calculations/{id}/apply    Bind to an invoice or quote
	  POST   /api/calculations/{id}/adjust   Record a corrected calculation
	  POST   /api/calculations/{id}/void     Cancel a record
	  POST   /api/calculations/{id}/verify   Re-derive and audit a record

	Reference data:
	  POST   /api/jurisdictions/resolve      Jurisdictions for an address
	  GET    /api/rates                      Effective rates for an address
	  GET    /api/exemptions                 Active exemptions for a customer
	  POST   /api/reference                  Load a YAML/JSON reference document

	Scenarios:
	  GET    /api/scenarios                  List demo scenarios
	  POST   /api/scenarios/load             Load a demo scenario

LIST FILTERS:

	calculable_kind + calculable_id, document_kind + document_id, status, limit

ERROR HANDLING:

	Errors are returned as JSON with appropriate HTTP status:
	- 400: Validation errors, invalid input
	- 404: Calculation not found
	- 409: Illegal lifecycle transition or rate conflict
	- 422: Address could not be resolved (tax could not be determined)
	- 500: Internal errors

SECURITY NOTE:

	No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/tax-engine/factory"
	"github.com/warp/tax-engine/tax"
)

// maxReferenceBody bounds POST /api/reference uploads.
const maxReferenceBody = 4 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine    *tax.Engine
	Reference tax.ReferenceWriter
	Factory   *factory.ReferenceFactory
	Logger    *zap.Logger

	// ID of the most recently loaded scenario (string)
	currentScenario atomic.Value
}

// NewHandler creates a handler. ref receives reference documents and
// scenarios; it is normally the same store the engine reads from.
func NewHandler(engine *tax.Engine, ref tax.ReferenceWriter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Engine:    engine,
		Reference: ref,
		Factory:   factory.NewReferenceFactory(),
		Logger:    logger,
	}
}

// =============================================================================
// CALCULATION HANDLERS
// =============================================================================

// Calculate taxes one line and records the result.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	var body CalculateRequest
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := body.toEngine()
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	rec, err := h.Engine.Calculate(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCalculationDTO(rec))
}

// ListCalculations returns records matching the query filters.
func (h *Handler) ListCalculations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter tax.RecordFilter

	if kind, id := q.Get("calculable_kind"), q.Get("calculable_id"); kind != "" || id != "" {
		filter.Calculable = &tax.CalculableRef{Kind: tax.CalculableKind(kind), ID: id}
	}
	if kind, id := q.Get("document_kind"), q.Get("document_id"); kind != "" || id != "" {
		filter.Document = &tax.DocumentRef{Kind: tax.DocumentKind(kind), ID: id}
	}
	if s := q.Get("status"); s != "" {
		status := tax.Status(s)
		filter.Status = &status
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	filter.Limit = limit

	recs, err := h.Engine.ListCalculations(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCalculationDTOs(recs))
}

// GetCalculation returns one record.
func (h *Handler) GetCalculation(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Engine.GetCalculation(r.Context(), calculationID(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCalculationDTO(rec))
}

// ApplyCalculation binds a record to an invoice or quote.
func (h *Handler) ApplyCalculation(w http.ResponseWriter, r *http.Request) {
	var body ApplyRequest
	if !decodeBody(w, r, &body) {
		return
	}
	doc := tax.DocumentRef{Kind: tax.DocumentKind(body.DocumentKind), ID: body.DocumentID}

	rec, err := h.Engine.ApplyTo(r.Context(), calculationID(r), doc)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCalculationDTO(rec))
}

// AdjustCalculation records a correction. The response is the new
// adjustment record; the original is left in the adjusted state.
func (h *Handler) AdjustCalculation(w http.ResponseWriter, r *http.Request) {
	var body AdjustRequest
	if !decodeBody(w, r, &body) {
		return
	}

	rec, err := h.Engine.Adjust(r.Context(), calculationID(r), body.Reason, body.corrections())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCalculationDTO(rec))
}

// VoidCalculation cancels a record.
func (h *Handler) VoidCalculation(w http.ResponseWriter, r *http.Request) {
	var body VoidRequest
	if !decodeBody(w, r, &body) {
		return
	}

	rec, err := h.Engine.Void(r.Context(), calculationID(r), body.Reason)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCalculationDTO(rec))
}

// VerifyCalculation re-derives a record from its input snapshot.
func (h *Handler) VerifyCalculation(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Engine.Verify(r.Context(), calculationID(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCalculationDTO(rec))
}

// =============================================================================
// REFERENCE DATA HANDLERS
// =============================================================================

// ResolveJurisdictions lists the jurisdictions covering an address.
func (h *Handler) ResolveJurisdictions(w http.ResponseWriter, r *http.Request) {
	var body ResolveRequest
	if !decodeBody(w, r, &body) {
		return
	}

	js, err := h.Engine.ResolveJurisdictions(r.Context(), body.Address, body.AsOf)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]JurisdictionDTO, len(js))
	for i, j := range js {
		dtos[i] = JurisdictionDTO{Jurisdiction: j, Breadth: j.Kind.Breadth()}
	}
	writeJSON(w, http.StatusOK, ResolveResponse{AsOf: body.AsOf.String(), Jurisdictions: dtos})
}

// ListRates returns the rates effective for an address and category.
// The address comes from query parameters: country, state, county,
// municipality, postal_code.
func (h *Handler) ListRates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	asOf, err := queryDate(q.Get("as_of"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	criteria := tax.SelectionCriteria{
		Category:    tax.CategoryID(q.Get("category")),
		ServiceType: q.Get("service_type"),
		AsOf:        asOf,
	}

	rates, err := h.Engine.SelectRates(r.Context(), addressFromQuery(r), criteria)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if rates == nil {
		rates = []tax.RateDefinition{}
	}
	writeJSON(w, http.StatusOK, RatesResponse{
		AsOf:     asOf.String(),
		Category: string(criteria.Category),
		Rates:    rates,
	})
}

// ListExemptions returns a customer's active exemptions.
func (h *Handler) ListExemptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	customer := q.Get("customer_id")
	if customer == "" {
		h.writeDomainError(w, &tax.InputError{Field: "customer_id", Reason: "is required"})
		return
	}
	asOf, err := queryDate(q.Get("as_of"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	exemptions, err := h.Engine.Exemptions(r.Context(), tax.CustomerID(customer), asOf)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ExemptionsResponse{
		CustomerID: customer,
		AsOf:       asOf.String(),
		Exemptions: exemptions,
	})
}

// LoadReference parses a reference document from the body and writes it
// to the reference store. The result cache is purged so new rates are
// visible immediately.
func (h *Handler) LoadReference(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxReferenceBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body", err)
		return
	}

	summary, err := h.loadReference(r, data)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) loadReference(r *http.Request, data []byte) (factory.LoadSummary, error) {
	set, err := h.Factory.Parse(data)
	if err != nil {
		return factory.LoadSummary{}, err
	}
	summary, err := h.Factory.Load(r.Context(), h.Reference, set)
	if err != nil {
		return summary, err
	}
	h.Engine.Cache().Purge()
	h.Logger.Info("reference data loaded",
		zap.Int("jurisdictions", summary.Jurisdictions),
		zap.Int("rates", summary.Rates),
		zap.Int("exemptions", summary.Exemptions))
	return summary, nil
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "engine_version": tax.EngineVersion})
}

// =============================================================================
// HELPERS
// =============================================================================

func calculationID(r *http.Request) tax.CalculationID {
	return tax.CalculationID(chi.URLParam(r, "id"))
}

func addressFromQuery(r *http.Request) tax.Address {
	q := r.URL.Query()
	return tax.Address{
		Country:      q.Get("country"),
		State:        q.Get("state"),
		County:       q.Get("county"),
		Municipality: q.Get("municipality"),
		PostalCode:   q.Get("postal_code"),
	}
}

func queryDate(s string) (tax.Date, error) {
	if s == "" {
		return tax.Date{}, nil
	}
	d, err := tax.ParseDate(s)
	if err != nil {
		return tax.Date{}, &tax.InputError{Field: "as_of", Reason: "must be YYYY-MM-DD"}
	}
	return d, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tax.ErrUnresolvableAddress):
		writeError(w, http.StatusUnprocessableEntity, "tax could not be determined for this address", err)
	case tax.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Calculation not found", err)
	case errors.Is(err, tax.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:     "Invalid calculation transition",
			Details:   err.Error(),
			Retryable: tax.IsRetryable(err),
		})
	case errors.Is(err, tax.ErrRateConflict), errors.Is(err, tax.ErrDuplicateCalculation):
		writeError(w, http.StatusConflict, "Conflict", err)
	case errors.Is(err, tax.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, strings.TrimPrefix(firstLine(err.Error()), "invalid input: "), err)
	default:
		h.Logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
