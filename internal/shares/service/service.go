// Package service orchestrates the share ledger: offer lifecycle,
// allocation (purchase and transfer), and ownership aggregation. Every
// mutation runs as one atomic unit through a tx.Runner keyed by the offer
// being touched, and every mutation leaves audit entries in the same unit.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"shareledger/internal/audit"
	"shareledger/internal/shares/metrics"
	"shareledger/internal/shares/models"
	"shareledger/internal/shares/store/offer"
	"shareledger/internal/shares/store/record"
	dErrors "shareledger/pkg/domain-errors"
	"shareledger/pkg/platform/sentinel"
	"shareledger/pkg/platform/tx"
)

type OfferStore interface {
	Create(ctx context.Context, o *models.Offer) error
	Get(ctx context.Context, id uuid.UUID) (*models.Offer, error)
	Update(ctx context.Context, o *models.Offer) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f offer.Filter) ([]*models.Offer, error)
	ApplySale(ctx context.Context, id uuid.UUID, quantity decimal.Decimal, actor *uuid.UUID, now time.Time) (*models.Offer, error)
	FindEligible(ctx context.Context, quantity decimal.Decimal, now time.Time) ([]*models.Offer, error)
	FindExpiringSoon(ctx context.Context, now time.Time, within time.Duration) ([]*models.Offer, error)
	Stats(ctx context.Context) (models.OfferStats, error)
}

type RecordStore interface {
	Create(ctx context.Context, r *models.Record) error
	Get(ctx context.Context, id uuid.UUID) (*models.Record, error)
	Update(ctx context.Context, r *models.Record) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByOwner(ctx context.Context, owner models.OwnerRef) ([]*models.Record, error)
	FindByOffer(ctx context.Context, offerID uuid.UUID) ([]*models.Record, error)
	TopHolders(ctx context.Context, limit int) ([]record.Holder, error)
}

// OwnerDirectory answers whether a polymorphic owner reference points at a
// real member or group.
type OwnerDirectory interface {
	Exists(ctx context.Context, owner models.OwnerRef) (bool, error)
}

// Auditor records immutable trail entries inside the caller's atomic unit
// and fans committed entries out afterwards.
type Auditor interface {
	Record(ctx context.Context, table string, recordID uuid.UUID, operation string, oldValues, newValues any) (audit.Entry, error)
	Announce(entries ...audit.Entry)
}

// Service orchestrates offers, ownership records and the audit trail.
type Service struct {
	offers  OfferStore
	records RecordStore
	owners  OwnerDirectory
	runner  tx.Runner
	auditor Auditor
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditor(a Auditor) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs a Service. The runner must match the store backends:
// KeyedMutexRunner for the in-memory stores, SQLRunner for postgres.
func New(offers OfferStore, records RecordStore, owners OwnerDirectory, runner tx.Runner, opts ...Option) *Service {
	s := &Service{offers: offers, records: records, owners: owners, runner: runner}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// recordAudit writes a trail entry when an auditor is configured. The entry
// joins the caller's batch; fan-out waits until the unit commits.
func (s *Service) recordAudit(ctx context.Context, batch *[]audit.Entry, table string, recordID uuid.UUID, op string, oldValues, newValues any) error {
	if s.auditor == nil {
		return nil
	}
	entry, err := s.auditor.Record(ctx, table, recordID, op, oldValues, newValues)
	if err != nil {
		return err
	}
	*batch = append(*batch, entry)
	return nil
}

// announce fans a committed batch out. Call only after RunInTx returned nil.
func (s *Service) announce(batch []audit.Entry) {
	if s.auditor == nil || len(batch) == 0 {
		return
	}
	s.auditor.Announce(batch...)
}

// translateOfferErr maps store sentinels on the offer read path to coded
// domain errors.
func translateOfferErr(err error, offerID uuid.UUID) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Newf(dErrors.CodeNotFound, "share offer %s not found", offerID)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "load share offer")
	}
}

func translateRecordErr(err error, recordID uuid.UUID) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Newf(dErrors.CodeNotFound, "share record %s not found", recordID)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "load share record")
	}
}

// requireOwner validates the reference and checks the directory.
func (s *Service) requireOwner(ctx context.Context, owner models.OwnerRef) error {
	if _, err := models.NewOwnerRef(owner.ID, owner.Type); err != nil {
		return err
	}
	exists, err := s.owners.Exists(ctx, owner)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "check owner")
	}
	if !exists {
		return dErrors.Newf(dErrors.CodeNotFound, "%s %s not found", owner.Type, owner.ID)
	}
	return nil
}
