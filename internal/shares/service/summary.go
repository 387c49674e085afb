package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"shareledger/internal/shares/models"
	"shareledger/internal/shares/store/record"
	dErrors "shareledger/pkg/domain-errors"
	"shareledger/pkg/requestcontext"
)

// OwnershipSummary aggregates an owner's lots into totals and a per-offer
// breakdown. The summary is computed from the ledger on every call; the
// redis read-model caches it for hot readers but is never authoritative.
func (s *Service) OwnershipSummary(ctx context.Context, owner models.OwnerRef) (*models.OwnershipSummary, error) {
	if err := s.requireOwner(ctx, owner); err != nil {
		return nil, err
	}

	records, err := s.records.FindByOwner(ctx, owner)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load ownership records")
	}
	return BuildOwnershipSummary(owner, records), nil
}

// BuildOwnershipSummary folds lots into an OwnershipSummary. Split out so
// the read-model worker can reuse the same aggregation.
func BuildOwnershipSummary(owner models.OwnerRef, records []*models.Record) *models.OwnershipSummary {
	summary := &models.OwnershipSummary{
		Owner:         owner,
		TotalQuantity: decimal.Zero,
		TotalValue:    decimal.Zero,
		PerOffer:      []models.OfferBreakdown{},
		Records:       records,
	}

	index := make(map[string]int)
	for _, r := range records {
		summary.TotalQuantity = summary.TotalQuantity.Add(r.ShareQuantity)
		summary.TotalValue = summary.TotalValue.Add(r.TotalValue)

		key := r.ShareOfferID.String()
		i, ok := index[key]
		if !ok {
			i = len(summary.PerOffer)
			index[key] = i
			summary.PerOffer = append(summary.PerOffer, models.OfferBreakdown{
				OfferID:    r.ShareOfferID,
				Quantity:   decimal.Zero,
				Value:      decimal.Zero,
				ShareValue: r.ShareValue,
			})
		}
		summary.PerOffer[i].Quantity = summary.PerOffer[i].Quantity.Add(r.ShareQuantity)
		summary.PerOffer[i].Value = summary.PerOffer[i].Value.Add(r.TotalValue)
		summary.PerOffer[i].PurchaseCount++
	}
	return summary
}

// FindEligibleOffers lists offers open to a purchase of the given quantity,
// cheapest first. Zero quantity means "any offer with inventory left".
func (s *Service) FindEligibleOffers(ctx context.Context, quantity decimal.Decimal) ([]*models.Offer, error) {
	if quantity.IsNegative() {
		return nil, dErrors.New(dErrors.CodeValidation, "quantity cannot be negative")
	}
	offers, err := s.offers.FindEligible(ctx, quantity, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "find eligible offers")
	}
	return offers, nil
}

// FindExpiringOffers lists active offers whose sale window closes within
// the horizon.
func (s *Service) FindExpiringOffers(ctx context.Context, within time.Duration) ([]*models.Offer, error) {
	if within <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "expiry horizon must be positive")
	}
	offers, err := s.offers.FindExpiringSoon(ctx, requestcontext.Now(ctx), within)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "find expiring offers")
	}
	return offers, nil
}

// OfferStats aggregates offer counters for reporting.
func (s *Service) OfferStats(ctx context.Context) (models.OfferStats, error) {
	stats, err := s.offers.Stats(ctx)
	if err != nil {
		return models.OfferStats{}, dErrors.Wrap(err, dErrors.CodeInternal, "offer stats")
	}
	return stats, nil
}

// TopHolders lists the largest positions across all offers.
func (s *Service) TopHolders(ctx context.Context, limit int) ([]record.Holder, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	holders, err := s.records.TopHolders(ctx, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "top holders")
	}
	return holders, nil
}

// OfferRecords lists the lots held against one offer.
func (s *Service) OfferRecords(ctx context.Context, offerID uuid.UUID) ([]*models.Record, error) {
	if _, err := s.offers.Get(ctx, offerID); err != nil {
		return nil, translateOfferErr(err, offerID)
	}
	records, err := s.records.FindByOffer(ctx, offerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load offer records")
	}
	return records, nil
}

// GetRecord loads one ownership lot.
func (s *Service) GetRecord(ctx context.Context, id uuid.UUID) (*models.Record, error) {
	r, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, translateRecordErr(err, id)
	}
	return r, nil
}
