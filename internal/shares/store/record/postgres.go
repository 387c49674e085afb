package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"shareledger/internal/shares/models"
	"shareledger/pkg/platform/sentinel"
	txcontext "shareledger/pkg/platform/tx"
)

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Postgres persists lots in share_records. Writes join the caller's
// transaction when one travels in the context.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const uniqueViolation = "23505"

const recordColumns = `id, owner_id, owner_type, share_offer_id, share_quantity, share_value,
	total_value, last_transaction_at, created_at, updated_at, created_by, updated_by`

func (s *Postgres) Create(ctx context.Context, r *models.Record) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO share_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		r.ID, r.Owner.ID, string(r.Owner.Type), r.ShareOfferID, r.ShareQuantity, r.ShareValue,
		r.TotalValue, r.LastTransactionAt, r.CreatedAt, r.UpdatedAt, r.CreatedBy, r.UpdatedBy,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert share record: %w", err)
	}
	return nil
}

// Get loads one lot. Inside an atomic unit the read takes the row lock, so
// two transfers draining the same lot serialize instead of both passing the
// quantity check against the same snapshot.
func (s *Postgres) Get(ctx context.Context, id uuid.UUID) (*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM share_records WHERE id = $1`
	if _, ok := txcontext.From(ctx); ok {
		query += ` FOR UPDATE`
	}
	row := s.execer(ctx).QueryRowContext(ctx, query, id)
	return scanRecord(row)
}

func (s *Postgres) Update(ctx context.Context, r *models.Record) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE share_records SET
			share_quantity = $2, share_value = $3, total_value = $4,
			last_transaction_at = $5, updated_at = $6, updated_by = $7
		WHERE id = $1`,
		r.ID, r.ShareQuantity, r.ShareValue, r.TotalValue,
		r.LastTransactionAt, r.UpdatedAt, r.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("update share record: %w", err)
	}
	return requireRow(res, "update share record")
}

func (s *Postgres) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM share_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete share record: %w", err)
	}
	return requireRow(res, "delete share record")
}

func (s *Postgres) FindByOwner(ctx context.Context, owner models.OwnerRef) ([]*models.Record, error) {
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM share_records
		WHERE owner_id = $1 AND owner_type = $2
		ORDER BY created_at ASC, id`,
		owner.ID, string(owner.Type),
	)
}

func (s *Postgres) FindByOffer(ctx context.Context, offerID uuid.UUID) ([]*models.Record, error) {
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM share_records
		WHERE share_offer_id = $1
		ORDER BY created_at ASC, id`,
		offerID,
	)
}

func (s *Postgres) List(ctx context.Context) ([]*models.Record, error) {
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM share_records
		ORDER BY created_at ASC, id`,
	)
}

func (s *Postgres) TopHolders(ctx context.Context, limit int) ([]Holder, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT owner_id, owner_type,
			SUM(share_quantity), SUM(total_value), COUNT(*)
		FROM share_records
		GROUP BY owner_id, owner_type
		ORDER BY SUM(total_value) DESC, owner_id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top holders: %w", err)
	}
	defer rows.Close()

	holders := make([]Holder, 0, limit)
	for rows.Next() {
		var (
			h         Holder
			ownerType string
			quantity  decimal.Decimal
			value     decimal.Decimal
		)
		if err := rows.Scan(&h.Owner.ID, &ownerType, &quantity, &value, &h.RecordCount); err != nil {
			return nil, fmt.Errorf("scan top holder: %w", err)
		}
		h.Owner.Type = models.OwnerType(ownerType)
		h.TotalQuantity = quantity
		h.TotalValue = value
		holders = append(holders, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top holders: %w", err)
	}
	return holders, nil
}

func (s *Postgres) queryRecords(ctx context.Context, query string, args ...any) ([]*models.Record, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query share records: %w", err)
	}
	defer rows.Close()

	records := make([]*models.Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate share records: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*models.Record, error) {
	var (
		r         models.Record
		ownerType string
	)
	err := row.Scan(
		&r.ID, &r.Owner.ID, &ownerType, &r.ShareOfferID, &r.ShareQuantity, &r.ShareValue,
		&r.TotalValue, &r.LastTransactionAt, &r.CreatedAt, &r.UpdatedAt, &r.CreatedBy, &r.UpdatedBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan share record: %w", err)
	}
	r.Owner.Type = models.OwnerType(ownerType)
	return &r, nil
}

func requireRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
