package tax

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// RECORDER - Persists records and drives their lifecycle
// =============================================================================

// Recorder owns every write to the RecordStore. Status changes go through
// compare-and-swap so two concurrent callers can never both succeed.
type Recorder struct {
	Store  RecordStore
	Now    func() time.Time
	NewID  func() CalculationID
	Logger *zap.Logger
}

func NewRecorder(store RecordStore, now func() time.Time, newID func() CalculationID, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{Store: store, Now: now, NewID: newID, Logger: logger}
}

// Record persists a new calculation in the calculated state.
func (r *Recorder) Record(ctx context.Context, rec *CalculationRecord) error {
	r.prepare(rec)
	if err := r.Store.Create(ctx, rec); err != nil {
		return fmt.Errorf("failed to record calculation %s: %w", rec.ID, err)
	}
	r.Logger.Debug("calculation recorded",
		zap.String("id", string(rec.ID)),
		zap.String("calculable", rec.Calculable.ID),
		zap.String("total_tax", rec.TotalTax.String()),
		zap.Bool("cache_hit", rec.Metadata.CacheHit))
	return nil
}

func (r *Recorder) prepare(rec *CalculationRecord) {
	if rec.ID == "" {
		rec.ID = r.NewID()
	}
	if rec.RecordType == "" {
		rec.RecordType = RecordCalculation
	}
	rec.Status = StatusCalculated
	rec.Version = 1
	rec.CreatedAt = r.Now()
	rec.ValidationStatus = ValidationValid
	if len(rec.Metadata.Warnings) > 0 {
		rec.ValidationStatus = ValidationNeedsReview
	}
}

func (r *Recorder) Get(ctx context.Context, id CalculationID) (*CalculationRecord, error) {
	return r.Store.Get(ctx, id)
}

func (r *Recorder) List(ctx context.Context, filter RecordFilter) ([]CalculationRecord, error) {
	return r.Store.List(ctx, filter)
}

// ApplyTo binds a calculated record to an invoice or quote. Applying the
// same document twice is a no-op; a different document is rejected.
func (r *Recorder) ApplyTo(ctx context.Context, id CalculationID, doc DocumentRef) (*CalculationRecord, error) {
	if !doc.Kind.Valid() || doc.ID == "" {
		return nil, &InputError{Field: "document", Reason: "kind must be invoice or quote and id is required"}
	}

	rec, err := r.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if done, err := appliedAlready(rec, doc); done || err != nil {
		return rec, err
	}
	if !CanTransition(rec.Status, StatusApplied) {
		return nil, &InvalidTransitionError{ID: id, From: rec.Status, To: StatusApplied}
	}

	update := rec.StatusUpdate(StatusApplied, r.Now())
	update.Document = &doc
	if err := r.Store.Transition(ctx, update); err != nil {
		if !errors.Is(err, ErrConcurrentModification) {
			return nil, err
		}
		// Lost the race. If the winner applied the same document we are done.
		current, getErr := r.Store.Get(ctx, id)
		if getErr == nil {
			if done, _ := appliedAlready(current, doc); done {
				return current, nil
			}
		}
		return nil, &InvalidTransitionError{ID: id, From: rec.Status, To: StatusApplied, cause: err}
	}

	r.Logger.Info("calculation applied",
		zap.String("id", string(id)),
		zap.String("document_kind", string(doc.Kind)),
		zap.String("document_id", doc.ID))
	return r.Store.Get(ctx, id)
}

func appliedAlready(rec *CalculationRecord, doc DocumentRef) (bool, error) {
	if rec.Status != StatusApplied || rec.Document == nil {
		return false, nil
	}
	if *rec.Document == doc {
		return true, nil
	}
	return false, &InvalidTransitionError{
		ID: rec.ID, From: rec.Status, To: StatusApplied,
		Reason: fmt.Sprintf("already applied to %s %s", rec.Document.Kind, rec.Document.ID),
	}
}

// Adjust marks prior as adjusted and persists successor as its linked
// adjustment record, atomically. The prior breakdown is not touched.
func (r *Recorder) Adjust(ctx context.Context, prior *CalculationRecord, reason string, successor *CalculationRecord) error {
	if reason == "" {
		return &InputError{Field: "reason", Reason: "an adjustment reason is required"}
	}
	if !CanTransition(prior.Status, StatusAdjusted) {
		return &InvalidTransitionError{ID: prior.ID, From: prior.Status, To: StatusAdjusted}
	}

	successor.RecordType = RecordAdjustment
	successor.AdjustsID = prior.ID
	successor.Calculable = prior.Calculable
	successor.Reason = reason
	delta := successor.TotalTax.Sub(prior.TotalTax)
	successor.TaxDelta = &delta
	r.prepare(successor)

	update := prior.StatusUpdate(StatusAdjusted, successor.CreatedAt)
	update.Reason = reason
	update.SupersededBy = successor.ID

	if err := r.Store.CreateAdjustment(ctx, update, successor); err != nil {
		if errors.Is(err, ErrConcurrentModification) {
			return &InvalidTransitionError{ID: prior.ID, From: prior.Status, To: StatusAdjusted, cause: err}
		}
		return fmt.Errorf("failed to adjust calculation %s: %w", prior.ID, err)
	}

	r.Logger.Info("calculation adjusted",
		zap.String("id", string(prior.ID)),
		zap.String("adjustment_id", string(successor.ID)),
		zap.String("tax_delta", delta.String()))
	return nil
}

// Void cancels a calculated or applied record.
func (r *Recorder) Void(ctx context.Context, id CalculationID, reason string) (*CalculationRecord, error) {
	if reason == "" {
		return nil, &InputError{Field: "reason", Reason: "a void reason is required"}
	}
	rec, err := r.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(rec.Status, StatusVoided) {
		return nil, &InvalidTransitionError{ID: id, From: rec.Status, To: StatusVoided}
	}

	update := rec.StatusUpdate(StatusVoided, r.Now())
	update.Reason = reason
	if err := r.Store.Transition(ctx, update); err != nil {
		if errors.Is(err, ErrConcurrentModification) {
			return nil, &InvalidTransitionError{ID: id, From: rec.Status, To: StatusVoided, cause: err}
		}
		return nil, err
	}

	r.Logger.Info("calculation voided", zap.String("id", string(id)), zap.String("reason", reason))
	return r.Store.Get(ctx, id)
}

// Verify re-derives a stored record from its input snapshot and records
// whether the result still matches.
func (r *Recorder) Verify(ctx context.Context, id CalculationID) (*CalculationRecord, error) {
	rec, err := r.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	status := ValidationVerified
	if !rec.SameResult(Rederive(rec.Input)) {
		status = ValidationMismatch
		r.Logger.Warn("calculation does not re-derive", zap.String("id", string(id)))
	}

	if err := r.Store.SetValidation(ctx, id, status, r.Now()); err != nil {
		return nil, fmt.Errorf("failed to record validation for %s: %w", id, err)
	}
	return r.Store.Get(ctx, id)
}
