/*
Package postgres provides a PostgreSQL-backed tax.RecordStore.

PURPOSE:
  Production persistence for calculation records. Reference data stays in
  whichever ReferenceData implementation the deployment loads (SQLite or
  the in-memory store seeded from a reference document).

SCHEMA:
  calculation_records mirrors the SQLite layout. Amounts are stored as
  their exact decimal text; input, breakdown and metadata are JSONB.

CONCURRENCY:
  - Create(): single INSERT
  - Transition(): compare-and-swap, UPDATE ... WHERE status = $ AND
    version = $; zero rows affected means another writer got there first
  - CreateAdjustment(): transition + insert in one transaction

SEE ALSO:
  - store/sqlite/sqlite.go: Same contract on SQLite
*/
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/warp/tax-engine/tax"
)

const schema = `
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
	validated_at TIMESTAMPTZ,
	adjusts_id TEXT,
	superseded_by TEXT,
	tax_delta TEXT,
	reason TEXT,
	void_reason TEXT,
	input_json JSONB NOT NULL,
	breakdown_json JSONB NOT NULL,
	exemptions_json JSONB NOT NULL,
	metadata_json JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	applied_at TIMESTAMPTZ,
	adjusted_at TIMESTAMPTZ,
	voided_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_records_calculable ON calculation_records(calculable_kind, calculable_id);
CREATE INDEX IF NOT EXISTS idx_records_document ON calculation_records(document_kind, document_id);
CREATE INDEX IF NOT EXISTS idx_records_status ON calculation_records(status);
`

const recordColumns = `id, record_type, calculable_kind, calculable_id, document_kind, document_id,
	status, version, line_amount, total_tax, inclusive_tax, final_amount, effective_rate, currency,
	validation_status, validated_at, adjusts_id, superseded_by, tax_delta, reason, void_reason,
	input_json, breakdown_json, exemptions_json, metadata_json,
	created_at, applied_at, adjusted_at, voided_at`

// Store implements tax.RecordStore on a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New connects to databaseURL and migrates the schema.
func New(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	s := &Store{pool: pool, logger: logger}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// withTransaction commits when fn succeeds and rolls back otherwise.
func (s *Store) withTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Error("failed to rollback transaction", zap.Error(rbErr))
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// =============================================================================
// RECORD STORE
// =============================================================================

func (s *Store) Create(ctx context.Context, rec *tax.CalculationRecord) error {
	return insertRecord(ctx, s.pool, rec)
}

func insertRecord(ctx context.Context, q querier, rec *tax.CalculationRecord) error {
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

	var docKind, docID *string
	if rec.Document != nil {
		k, id := string(rec.Document.Kind), rec.Document.ID
		docKind, docID = &k, &id
	}
	var taxDelta *string
	if rec.TaxDelta != nil {
		d := rec.TaxDelta.String()
		taxDelta = &d
	}

	_, err = q.Exec(ctx, `INSERT INTO calculation_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)`,
		string(rec.ID), string(rec.RecordType), string(rec.Calculable.Kind), rec.Calculable.ID, docKind, docID,
		string(rec.Status), rec.Version, rec.LineAmount.String(), rec.TotalTax.String(), rec.InclusiveTax.String(),
		rec.FinalAmount.String(), rec.EffectiveRate.String(), rec.Currency,
		string(rec.ValidationStatus), rec.ValidatedAt, optional(string(rec.AdjustsID)), optional(string(rec.SupersededBy)),
		taxDelta, optional(rec.Reason), optional(rec.VoidReason),
		inputJSON, breakdownJSON, exemptionsJSON, metadataJSON,
		rec.CreatedAt, rec.AppliedAt, rec.AdjustedAt, rec.VoidedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return tax.ErrDuplicateCalculation
		}
		return fmt.Errorf("failed to insert calculation record: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id tax.CalculationID) (*tax.CalculationRecord, error) {
	return getRecord(ctx, s.pool, id)
}

func getRecord(ctx context.Context, q querier, id tax.CalculationID) (*tax.CalculationRecord, error) {
	query := "SELECT " + recordColumns + " FROM calculation_records WHERE id = $1"
	rec, err := scanRecord(q.QueryRow(ctx, query, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tax.ErrCalculationNotFound
	}
	return rec, err
}

func (s *Store) List(ctx context.Context, filter tax.RecordFilter) ([]tax.CalculationRecord, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Calculable != nil {
		where = append(where, "calculable_kind = "+arg(string(filter.Calculable.Kind))+" AND calculable_id = "+arg(filter.Calculable.ID))
	}
	if filter.Document != nil {
		where = append(where, "document_kind = "+arg(string(filter.Document.Kind))+" AND document_id = "+arg(filter.Document.ID))
	}
	if filter.Status != nil {
		where = append(where, "status = "+arg(string(*filter.Status)))
	}

	query := "SELECT " + recordColumns + " FROM calculation_records"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
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

func (s *Store) Transition(ctx context.Context, u tax.StatusUpdate) error {
	return s.withTransaction(ctx, func(tx pgx.Tx) error {
		return transition(ctx, tx, u)
	})
}

func transition(ctx context.Context, tx pgx.Tx, u tax.StatusUpdate) error {
	rec, err := getRecord(ctx, tx, u.ID)
	if err != nil {
		return err
	}
	if rec.Status != u.From || rec.Version != u.Version {
		return tax.ErrConcurrentModification
	}
	u.Apply(rec)

	var docKind, docID *string
	if rec.Document != nil {
		k, id := string(rec.Document.Kind), rec.Document.ID
		docKind, docID = &k, &id
	}

	tag, err := tx.Exec(ctx, `
		UPDATE calculation_records SET
			status = $1, version = $2, document_kind = $3, document_id = $4,
			superseded_by = $5, reason = $6, void_reason = $7,
			applied_at = $8, adjusted_at = $9, voided_at = $10
		WHERE id = $11 AND status = $12 AND version = $13`,
		string(rec.Status), rec.Version, docKind, docID,
		optional(string(rec.SupersededBy)), optional(rec.Reason), optional(rec.VoidReason),
		rec.AppliedAt, rec.AdjustedAt, rec.VoidedAt,
		string(u.ID), string(u.From), u.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update calculation record: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return tax.ErrConcurrentModification
	}
	return nil
}

func (s *Store) CreateAdjustment(ctx context.Context, u tax.StatusUpdate, successor *tax.CalculationRecord) error {
	return s.withTransaction(ctx, func(tx pgx.Tx) error {
		if err := transition(ctx, tx, u); err != nil {
			return err
		}
		return insertRecord(ctx, tx, successor)
	})
}

func (s *Store) SetValidation(ctx context.Context, id tax.CalculationID, status tax.ValidationStatus, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE calculation_records SET validation_status = $1, validated_at = $2 WHERE id = $3",
		string(status), at, string(id))
	if err != nil {
		return fmt.Errorf("failed to update validation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tax.ErrCalculationNotFound
	}
	return nil
}

func scanRecord(row pgx.Row) (*tax.CalculationRecord, error) {
	var rec tax.CalculationRecord
	var id, recordType, calcKind, status, validation string
	var docKind, docID, adjustsID, supersededBy, taxDelta, reason, voidReason *string
	var lineAmount, totalTax, inclusiveTax, finalAmount, effectiveRate string
	var inputJSON, breakdownJSON, exemptionsJSON, metadataJSON []byte

	err := row.Scan(
		&id, &recordType, &calcKind, &rec.Calculable.ID, &docKind, &docID,
		&status, &rec.Version, &lineAmount, &totalTax, &inclusiveTax, &finalAmount, &effectiveRate, &rec.Currency,
		&validation, &rec.ValidatedAt, &adjustsID, &supersededBy, &taxDelta, &reason, &voidReason,
		&inputJSON, &breakdownJSON, &exemptionsJSON, &metadataJSON,
		&rec.CreatedAt, &rec.AppliedAt, &rec.AdjustedAt, &rec.VoidedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.ID = tax.CalculationID(id)
	rec.RecordType = tax.RecordType(recordType)
	rec.Calculable.Kind = tax.CalculableKind(calcKind)
	rec.Status = tax.Status(status)
	rec.ValidationStatus = tax.ValidationStatus(validation)
	if docID != nil && docKind != nil {
		rec.Document = &tax.DocumentRef{Kind: tax.DocumentKind(*docKind), ID: *docID}
	}
	rec.LineAmount = tax.MustParseDecimal(lineAmount)
	rec.TotalTax = tax.MustParseDecimal(totalTax)
	rec.InclusiveTax = tax.MustParseDecimal(inclusiveTax)
	rec.FinalAmount = tax.MustParseDecimal(finalAmount)
	rec.EffectiveRate = tax.MustParseDecimal(effectiveRate)
	rec.AdjustsID = tax.CalculationID(deref(adjustsID))
	rec.SupersededBy = tax.CalculationID(deref(supersededBy))
	rec.Reason = deref(reason)
	rec.VoidReason = deref(voidReason)
	if taxDelta != nil {
		rec.TaxDelta = tax.DecimalPtr(*taxDelta)
	}

	for _, part := range []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"input", inputJSON, &rec.Input},
		{"breakdown", breakdownJSON, &rec.Breakdown},
		{"exemptions", exemptionsJSON, &rec.ExemptionsApplied},
		{"metadata", metadataJSON, &rec.Metadata},
	} {
		if err := json.Unmarshal(part.raw, part.dst); err != nil {
			return nil, fmt.Errorf("failed to decode %s of %s: %w", part.name, id, err)
		}
	}
	return &rec, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
