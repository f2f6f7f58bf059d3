/*
Package sqlite provides a SQLite-backed implementation of the tax engine's
storage interfaces.

PURPOSE:
  Persists calculation records and the reference data (jurisdictions,
  rates, exemptions) the engine reads. The same shape is used by the
  PostgreSQL record store; only dialect details differ.

INTERFACES IMPLEMENTED:
  tax.RecordStore:     Calculation records and their lifecycle
  tax.ReferenceData:   Jurisdiction, rate and exemption lookups
  tax.ReferenceWriter: Seeding from reference documents

KEY TABLES:
  calculation_records: One row per calculation. Status, version and
                       timestamps are columns; input snapshot, breakdown
                       and metadata are JSON.
  jurisdictions:       Taxing authorities, keyed by country for lookup
  rates:               APPEND-ONLY rate definitions
  exemptions:          Customer exemption certificates

IMMUTABILITY:
  - No statement ever rewrites breakdown_json or input_json
  - rates rows are never updated; a changed rate needs a new ID
  - Status changes are compare-and-swap on (status, version)

CONCURRENCY:
  Uses sync.RWMutex around the connection, plus the version column for
  optimistic locking so the same code is correct under PostgreSQL.

USAGE:
  store, err := sqlite.New("./data/tax.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := tax.NewEngine(store, store)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - tax/store.go: Interface definitions
  - tax/store/memory.go: In-memory implementation for testing
  - store/postgres/postgres.go: PostgreSQL record store
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/tax-engine/tax"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// :memory: databases are per-connection
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Calculation records (breakdown immutable, status via CAS)
	CREATE TABLE IF NOT EXISTS calculation_records (
		id TEXT PRIMARY KEY,
		record_type TEXT NOT NULL,
		calculable_kind TEXT NOT NULL,
		calculable_id TEXT NOT NULL,
		document_kind TEXT,
		document_id TEXT,
		status TEXT NOT NULL,
		version INTEGER NOT NULL,
		line_amount TEXT NOT NULL,
		total_tax TEXT NOT NULL,
		inclusive_tax TEXT NOT NULL,
		final_amount TEXT NOT NULL,
		effective_rate TEXT NOT NULL,
		currency TEXT NOT NULL,
		validation_status TEXT NOT NULL,
		validated_at TEXT,
		adjusts_id TEXT,
		superseded_by TEXT,
		tax_delta TEXT,
		reason TEXT,
		void_reason TEXT,
		input_json TEXT NOT NULL,
		breakdown_json TEXT NOT NULL,
		exemptions_json TEXT NOT NULL,
		metadata_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		applied_at TEXT,
		adjusted_at TEXT,
		voided_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_records_calculable
		ON calculation_records(calculable_kind, calculable_id);
	CREATE INDEX IF NOT EXISTS idx_records_document
		ON calculation_records(document_kind, document_id) WHERE document_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_records_status
		ON calculation_records(status);

	-- Reference data
	CREATE TABLE IF NOT EXISTS jurisdictions (
		id TEXT PRIMARY KEY,
		country TEXT NOT NULL,
		kind TEXT NOT NULL,
		data_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jurisdictions_country
		ON jurisdictions(country);

	-- Rates (append-only)
	CREATE TABLE IF NOT EXISTS rates (
		id TEXT PRIMARY KEY,
		jurisdiction_id TEXT NOT NULL,
		category_id TEXT NOT NULL DEFAULT '',
		effective_date TEXT NOT NULL,
		expiry_date TEXT,
		data_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rates_jurisdiction
		ON rates(jurisdiction_id);

	CREATE TABLE IF NOT EXISTS exemptions (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		data_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_exemptions_customer
		ON exemptions(customer_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RECORD STORE
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const recordColumns = `id, record_type, calculable_kind, calculable_id, document_kind, document_id,
	status, version, line_amount, total_tax, inclusive_tax, final_amount, effective_rate, currency,
	validation_status, validated_at, adjusts_id, superseded_by, tax_delta, reason, void_reason,
	input_json, breakdown_json, exemptions_json, metadata_json,
	created_at, applied_at, adjusted_at, voided_at`

// Create inserts a record in a single statement.
func (s *Store) Create(ctx context.Context, rec *tax.CalculationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertRecord(ctx, s.db, rec)
}

func (s *Store) insertRecord(ctx context.Context, db execer, rec *tax.CalculationRecord) error {
	inputJSON, err := json.Marshal(rec.Input)
	if err != nil {
		return fmt.Errorf("failed to encode input: %w", err)
	}
	breakdownJSON, err := json.Marshal(rec.Breakdown)
	if err != nil {
		return fmt.Errorf("failed to encode breakdown: %w", err)
	}
	exemptionsJSON, err := json.Marshal(rec.ExemptionsApplied)
	if err != nil {
		return fmt.Errorf("failed to encode exemptions: %w", err)
	}
	metadataJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	var docKind, docID string
	if rec.Document != nil {
		docKind, docID = string(rec.Document.Kind), rec.Document.ID
	}

	query := `INSERT INTO calculation_records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = db.ExecContext(ctx, query,
		rec.ID,
		rec.RecordType,
		rec.Calculable.Kind,
		rec.Calculable.ID,
		nullString(docKind),
		nullString(docID),
		rec.Status,
		rec.Version,
		rec.LineAmount.String(),
		rec.TotalTax.String(),
		rec.InclusiveTax.String(),
		rec.FinalAmount.String(),
		rec.EffectiveRate.String(),
		rec.Currency,
		rec.ValidationStatus,
		nullTime(rec.ValidatedAt),
		nullString(string(rec.AdjustsID)),
		nullString(string(rec.SupersededBy)),
		nullDecimal(rec.TaxDelta),
		nullString(rec.Reason),
		nullString(rec.VoidReason),
		string(inputJSON),
		string(breakdownJSON),
		string(exemptionsJSON),
		string(metadataJSON),
		formatTime(rec.CreatedAt),
		nullTime(rec.AppliedAt),
		nullTime(rec.AdjustedAt),
		nullTime(rec.VoidedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return tax.ErrDuplicateCalculation
		}
		return fmt.Errorf("failed to insert calculation record: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id tax.CalculationID) (*tax.CalculationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getRecord(ctx, s.db, id)
}

func (s *Store) getRecord(ctx context.Context, db queryer, id tax.CalculationID) (*tax.CalculationRecord, error) {
	row := db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM calculation_records WHERE id = ?", id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tax.ErrCalculationNotFound
	}
	return rec, err
}

func (s *Store) List(ctx context.Context, filter tax.RecordFilter) ([]tax.CalculationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if filter.Calculable != nil {
		where = append(where, "calculable_kind = ? AND calculable_id = ?")
		args = append(args, filter.Calculable.Kind, filter.Calculable.ID)
	}
	if filter.Document != nil {
		where = append(where, "document_kind = ? AND document_id = ?")
		args = append(args, filter.Document.Kind, filter.Document.ID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, *filter.Status)
	}

	query := "SELECT " + recordColumns + " FROM calculation_records"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, rowid"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list calculation records: %w", err)
	}
	defer rows.Close()

	result := []tax.CalculationRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	return result, rows.Err()
}

// Transition applies a status change if (status, version) still match.
func (s *Store) Transition(ctx context.Context, u tax.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := s.transitionTx(ctx, sqlTx, u); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) transitionTx(ctx context.Context, sqlTx *sql.Tx, u tax.StatusUpdate) error {
	rec, err := s.getRecord(ctx, sqlTx, u.ID)
	if err != nil {
		return err
	}
	if rec.Status != u.From || rec.Version != u.Version {
		return tax.ErrConcurrentModification
	}
	u.Apply(rec)

	var docKind, docID string
	if rec.Document != nil {
		docKind, docID = string(rec.Document.Kind), rec.Document.ID
	}

	res, err := sqlTx.ExecContext(ctx, `
		UPDATE calculation_records SET
			status = ?, version = ?, document_kind = ?, document_id = ?,
			superseded_by = ?, reason = ?, void_reason = ?,
			applied_at = ?, adjusted_at = ?, voided_at = ?
		WHERE id = ? AND status = ? AND version = ?`,
		rec.Status, rec.Version, nullString(docKind), nullString(docID),
		nullString(string(rec.SupersededBy)), nullString(rec.Reason), nullString(rec.VoidReason),
		nullTime(rec.AppliedAt), nullTime(rec.AdjustedAt), nullTime(rec.VoidedAt),
		u.ID, u.From, u.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update calculation record: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return tax.ErrConcurrentModification
	}
	return nil
}

// CreateAdjustment transitions the prior record and inserts its successor
// in one SQL transaction.
func (s *Store) CreateAdjustment(ctx context.Context, u tax.StatusUpdate, successor *tax.CalculationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := s.transitionTx(ctx, sqlTx, u); err != nil {
		return err
	}
	if err := s.insertRecord(ctx, sqlTx, successor); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) SetValidation(ctx context.Context, id tax.CalculationID, status tax.ValidationStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE calculation_records SET validation_status = ?, validated_at = ? WHERE id = ?",
		status, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to update validation status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tax.ErrCalculationNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*tax.CalculationRecord, error) {
	var rec tax.CalculationRecord
	var docKind, docID, validatedAt, adjustsID, supersededBy, taxDelta, reason, voidReason sql.NullString
	var appliedAt, adjustedAt, voidedAt sql.NullString
	var lineAmount, totalTax, inclusiveTax, finalAmount, effectiveRate string
	var inputJSON, breakdownJSON, exemptionsJSON, metadataJSON, createdAt string

	err := row.Scan(
		&rec.ID, &rec.RecordType, &rec.Calculable.Kind, &rec.Calculable.ID, &docKind, &docID,
		&rec.Status, &rec.Version, &lineAmount, &totalTax, &inclusiveTax, &finalAmount, &effectiveRate, &rec.Currency,
		&rec.ValidationStatus, &validatedAt, &adjustsID, &supersededBy, &taxDelta, &reason, &voidReason,
		&inputJSON, &breakdownJSON, &exemptionsJSON, &metadataJSON,
		&createdAt, &appliedAt, &adjustedAt, &voidedAt,
	)
	if err != nil {
		return nil, err
	}

	if docID.Valid {
		rec.Document = &tax.DocumentRef{Kind: tax.DocumentKind(docKind.String), ID: docID.String}
	}
	rec.LineAmount = tax.MustParseDecimal(lineAmount)
	rec.TotalTax = tax.MustParseDecimal(totalTax)
	rec.InclusiveTax = tax.MustParseDecimal(inclusiveTax)
	rec.FinalAmount = tax.MustParseDecimal(finalAmount)
	rec.EffectiveRate = tax.MustParseDecimal(effectiveRate)
	rec.AdjustsID = tax.CalculationID(adjustsID.String)
	rec.SupersededBy = tax.CalculationID(supersededBy.String)
	rec.Reason = reason.String
	rec.VoidReason = voidReason.String
	if taxDelta.Valid {
		rec.TaxDelta = tax.DecimalPtr(taxDelta.String)
	}

	if err := json.Unmarshal([]byte(inputJSON), &rec.Input); err != nil {
		return nil, fmt.Errorf("failed to decode input of %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(breakdownJSON), &rec.Breakdown); err != nil {
		return nil, fmt.Errorf("failed to decode breakdown of %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(exemptionsJSON), &rec.ExemptionsApplied); err != nil {
		return nil, fmt.Errorf("failed to decode exemptions of %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(metadataJSON), &rec.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata of %s: %w", rec.ID, err)
	}

	rec.CreatedAt = parseTime(createdAt)
	rec.ValidatedAt = parseNullTime(validatedAt)
	rec.AppliedAt = parseNullTime(appliedAt)
	rec.AdjustedAt = parseNullTime(adjustedAt)
	rec.VoidedAt = parseNullTime(voidedAt)
	return &rec, nil
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

// SaveJurisdiction upserts a jurisdiction.
func (s *Store) SaveJurisdiction(ctx context.Context, j tax.Jurisdiction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(j)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jurisdictions (id, country, kind, data_json, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			country = excluded.country,
			kind = excluded.kind,
			data_json = excluded.data_json,
			updated_at = excluded.updated_at`,
		j.ID, strings.ToUpper(j.Scope.Country), j.Kind, string(data), formatTime(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("failed to save jurisdiction %s: %w", j.ID, err)
	}
	return nil
}

// SaveRate appends a rate. Identical re-saves are no-ops; a different
// definition under an existing ID returns tax.ErrRateConflict.
func (s *Store) SaveRate(ctx context.Context, r tax.RateDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing string
	err := s.db.QueryRowContext(ctx, "SELECT data_json FROM rates WHERE id = ?", r.ID).Scan(&existing)
	switch {
	case err == nil:
		var stored tax.RateDefinition
		if err := json.Unmarshal([]byte(existing), &stored); err != nil {
			return fmt.Errorf("failed to decode rate %s: %w", r.ID, err)
		}
		if tax.SameRate(stored, r) {
			return nil
		}
		return tax.ErrRateConflict
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("failed to look up rate %s: %w", r.ID, err)
	}

	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	var expiry *string
	if r.Window.Expiry != nil {
		e := r.Window.Expiry.String()
		expiry = &e
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rates (id, jurisdiction_id, category_id, effective_date, expiry_date, data_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.JurisdictionID, r.CategoryID, r.Window.Effective.String(), expiry, string(data),
		formatTime(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("failed to save rate %s: %w", r.ID, err)
	}
	return nil
}

// SaveExemption upserts an exemption (verification status changes over time).
func (s *Store) SaveExemption(ctx context.Context, e tax.Exemption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO exemptions (id, customer_id, data_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			customer_id = excluded.customer_id,
			data_json = excluded.data_json,
			updated_at = excluded.updated_at`,
		e.ID, e.CustomerID, string(data), formatTime(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("failed to save exemption %s: %w", e.ID, err)
	}
	return nil
}

func (s *Store) Jurisdictions(ctx context.Context, country string) ([]tax.Jurisdiction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryJSON[tax.Jurisdiction](ctx, s.db,
		"SELECT data_json FROM jurisdictions WHERE country = ? ORDER BY id", strings.ToUpper(country))
}

func (s *Store) Rates(ctx context.Context, ids []tax.JurisdictionID) ([]tax.RateDefinition, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := "SELECT data_json FROM rates WHERE jurisdiction_id IN (" + strings.Join(placeholders, ", ") + ") ORDER BY id"
	return queryJSON[tax.RateDefinition](ctx, s.db, query, args...)
}

func (s *Store) ActiveExemptions(ctx context.Context, customerID tax.CustomerID, _ tax.Date) ([]tax.Exemption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryJSON[tax.Exemption](ctx, s.db,
		"SELECT data_json FROM exemptions WHERE customer_id = ? ORDER BY id", customerID)
}

func queryJSON[T any](ctx context.Context, db *sql.DB, query string, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []T
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("failed to decode row: %w", err)
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

// Reset clears all data (for demo/testing).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"calculation_records", "rates", "exemptions", "jurisdictions"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
