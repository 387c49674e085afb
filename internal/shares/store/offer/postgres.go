package offer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

// Postgres persists offers in share_offers. Writes join the caller's
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

const offerColumns = `id, name, description, price_per_share, total_shares_available, shares_sold,
	status, valid_from, valid_until, min_purchase_quantity, max_purchase_quantity,
	created_at, updated_at, created_by, updated_by`

func (s *Postgres) Create(ctx context.Context, o *models.Offer) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO share_offers (`+offerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		o.ID, o.Name, nullableString(o.Description), o.PricePerShare, o.TotalShares, o.SharesSold,
		string(o.Status), o.ValidFrom, o.ValidUntil, o.MinPurchase, o.MaxPurchase,
		o.CreatedAt, o.UpdatedAt, o.CreatedBy, o.UpdatedBy,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert offer: %w", err)
	}
	return nil
}

// Get loads one offer. Inside an atomic unit the read takes the row lock, so
// a validate-then-write sequence built on it cannot interleave with a
// concurrent writer and write back a stale shares_sold.
func (s *Postgres) Get(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM share_offers WHERE id = $1`
	if _, ok := txcontext.From(ctx); ok {
		query += ` FOR UPDATE`
	}
	row := s.execer(ctx).QueryRowContext(ctx, query, id)
	return scanOffer(row)
}

func (s *Postgres) Update(ctx context.Context, o *models.Offer) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE share_offers SET
			name = $2, description = $3, price_per_share = $4, total_shares_available = $5,
			shares_sold = $6, status = $7, valid_from = $8, valid_until = $9,
			min_purchase_quantity = $10, max_purchase_quantity = $11,
			updated_at = $12, updated_by = $13
		WHERE id = $1`,
		o.ID, o.Name, nullableString(o.Description), o.PricePerShare, o.TotalShares,
		o.SharesSold, string(o.Status), o.ValidFrom, o.ValidUntil,
		o.MinPurchase, o.MaxPurchase,
		o.UpdatedAt, o.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("update offer: %w", err)
	}
	return requireRow(res, "update offer")
}

func (s *Postgres) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM share_offers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete offer: %w", err)
	}
	return requireRow(res, "delete offer")
}

func (s *Postgres) List(ctx context.Context, f Filter) ([]*models.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM share_offers`
	args := []any{}
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += ` WHERE status = $1`
	}
	query += ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return s.queryOffers(ctx, query, args...)
}

// ApplySale is the write that enforces no-oversell on this backend: a single
// guarded UPDATE that only matches while the inventory bound still holds.
// Concurrent sales against the same row serialize on the row lock and the
// loser of an exhausted offer matches zero rows.
func (s *Postgres) ApplySale(ctx context.Context, id uuid.UUID, quantity decimal.Decimal, actor *uuid.UUID, now time.Time) (*models.Offer, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		UPDATE share_offers SET
			shares_sold = shares_sold + $2,
			status = CASE WHEN shares_sold + $2 >= total_shares_available THEN 'completed' ELSE status END,
			updated_at = $3,
			updated_by = COALESCE($4, updated_by)
		WHERE id = $1 AND shares_sold + $2 <= total_shares_available
		RETURNING `+offerColumns,
		id, quantity, now, actor,
	)
	o, err := scanOffer(row)
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, err
	}
	// Zero rows matched: either the offer is missing or the guard failed.
	if _, getErr := s.Get(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, sentinel.ErrOversold
}

// FindEligible returns active in-window offers that can absorb a purchase
// of the given quantity, cheapest first. A non-positive quantity matches
// any offer with inventory left.
func (s *Postgres) FindEligible(ctx context.Context, quantity decimal.Decimal, now time.Time) ([]*models.Offer, error) {
	if !quantity.IsPositive() {
		return s.queryOffers(ctx, `
			SELECT `+offerColumns+` FROM share_offers
			WHERE status = 'active'
			  AND (valid_from IS NULL OR valid_from <= $1)
			  AND (valid_until IS NULL OR valid_until > $1)
			  AND shares_sold < total_shares_available
			ORDER BY price_per_share ASC, created_at ASC`,
			now,
		)
	}
	return s.queryOffers(ctx, `
		SELECT `+offerColumns+` FROM share_offers
		WHERE status = 'active'
		  AND (valid_from IS NULL OR valid_from <= $1)
		  AND (valid_until IS NULL OR valid_until > $1)
		  AND shares_sold + $2 <= total_shares_available
		  AND (min_purchase_quantity IS NULL OR min_purchase_quantity <= $2)
		  AND (max_purchase_quantity IS NULL OR max_purchase_quantity >= $2)
		ORDER BY price_per_share ASC, created_at ASC`,
		now, quantity,
	)
}

func (s *Postgres) FindExpiringSoon(ctx context.Context, now time.Time, within time.Duration) ([]*models.Offer, error) {
	return s.queryOffers(ctx, `
		SELECT `+offerColumns+` FROM share_offers
		WHERE status = 'active'
		  AND valid_until IS NOT NULL
		  AND valid_until >= $1
		  AND valid_until <= $2
		ORDER BY valid_until ASC`,
		now, now.Add(within),
	)
}

func (s *Postgres) Stats(ctx context.Context) (models.OfferStats, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT status, COUNT(*),
			COALESCE(SUM(total_shares_available), 0),
			COALESCE(SUM(shares_sold), 0)
		FROM share_offers GROUP BY status`)
	if err != nil {
		return models.OfferStats{}, fmt.Errorf("query offer stats: %w", err)
	}
	defer rows.Close()

	stats := models.OfferStats{
		CountByStatus:      make(map[models.OfferStatus]int),
		TotalSharesOffered: decimal.Zero,
		TotalSharesSold:    decimal.Zero,
	}
	for rows.Next() {
		var (
			status  string
			count   int
			offered decimal.Decimal
			sold    decimal.Decimal
		)
		if err := rows.Scan(&status, &count, &offered, &sold); err != nil {
			return models.OfferStats{}, fmt.Errorf("scan offer stats: %w", err)
		}
		stats.CountByStatus[models.OfferStatus(status)] = count
		stats.TotalSharesOffered = stats.TotalSharesOffered.Add(offered)
		stats.TotalSharesSold = stats.TotalSharesSold.Add(sold)
	}
	if err := rows.Err(); err != nil {
		return models.OfferStats{}, fmt.Errorf("iterate offer stats: %w", err)
	}
	return stats, nil
}

func (s *Postgres) queryOffers(ctx context.Context, query string, args ...any) ([]*models.Offer, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query offers: %w", err)
	}
	defer rows.Close()

	offers := make([]*models.Offer, 0)
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate offers: %w", err)
	}
	return offers, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOffer(row scanner) (*models.Offer, error) {
	var (
		o           models.Offer
		description sql.NullString
		status      string
	)
	err := row.Scan(
		&o.ID, &o.Name, &description, &o.PricePerShare, &o.TotalShares, &o.SharesSold,
		&status, &o.ValidFrom, &o.ValidUntil, &o.MinPurchase, &o.MaxPurchase,
		&o.CreatedAt, &o.UpdatedAt, &o.CreatedBy, &o.UpdatedBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan offer: %w", err)
	}
	o.Description = description.String
	o.Status = models.OfferStatus(status)
	return &o, nil
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

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
