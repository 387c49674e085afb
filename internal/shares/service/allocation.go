package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"shareledger/internal/audit"
	"shareledger/internal/shares/models"
	dErrors "shareledger/pkg/domain-errors"
	"shareledger/pkg/platform/sentinel"
	"shareledger/pkg/requestcontext"
)

// PurchaseInput describes one purchase attempt.
type PurchaseInput struct {
	OfferID  uuid.UUID
	Owner    models.OwnerRef
	Quantity decimal.Decimal
}

// TransactionSummary is the receipt returned by PurchaseShares.
type TransactionSummary struct {
	RecordID        uuid.UUID       `json:"record_id"`
	OfferID         uuid.UUID       `json:"offer_id"`
	OfferName       string          `json:"offer_name"`
	Owner           models.OwnerRef `json:"owner"`
	Quantity        decimal.Decimal `json:"quantity"`
	PricePerShare   decimal.Decimal `json:"price_per_share"`
	TotalCost       decimal.Decimal `json:"total_cost"`
	SharesRemaining decimal.Decimal `json:"shares_remaining"`
	OfferCompleted  bool            `json:"offer_completed"`
	ExecutedAt      time.Time       `json:"executed_at"`
}

// PurchaseShares allocates shares from an offer to an owner. Validation
// runs first; then the counter advance, the new ownership lot and both
// audit entries land as one atomic unit, so no interleaving can observe a
// counter without its lot or oversell the offer.
func (s *Service) PurchaseShares(ctx context.Context, in PurchaseInput) (*TransactionSummary, error) {
	start := time.Now()
	if !in.Quantity.IsPositive() {
		return nil, dErrors.New(dErrors.CodeValidation, "purchase quantity must be greater than zero")
	}

	actor := requestcontext.ActorID(ctx)
	now := requestcontext.Now(ctx)

	var (
		summary *TransactionSummary
		trail   []audit.Entry
	)
	err := s.runner.RunInTx(ctx, in.OfferID.String(), func(ctx context.Context) error {
		o, err := s.offers.Get(ctx, in.OfferID)
		if err != nil {
			return translateOfferErr(err, in.OfferID)
		}
		if err := checkPurchaseEligibility(o, in.Quantity, now); err != nil {
			return err
		}
		// The offer is vetted before the buyer, so a request that is wrong
		// on both counts reports the offer.
		if err := s.requireOwner(ctx, in.Owner); err != nil {
			return err
		}

		before := o.Clone()
		sold, err := s.offers.ApplySale(ctx, in.OfferID, in.Quantity, actor, now)
		if err != nil {
			if errors.Is(err, sentinel.ErrOversold) {
				if s.metrics != nil {
					s.metrics.IncrementOversellRejections()
				}
				return dErrors.Newf(dErrors.CodeBusinessRule, "cannot sell more shares than available in offer %s", in.OfferID).
					WithDetail("requested", in.Quantity.String()).
					WithDetail("available", o.SharesRemaining().String())
			}
			return translateOfferErr(err, in.OfferID)
		}

		lot, err := models.NewRecord(uuid.New(), in.Owner, o.ID, in.Quantity, o.PricePerShare, actor, now)
		if err != nil {
			return err
		}
		if err := s.records.Create(ctx, lot); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "create share record")
		}

		if err := s.recordAudit(ctx, &trail, audit.TableRecords, lot.ID, audit.OpPurchase, nil, lot); err != nil {
			return err
		}
		if err := s.recordAudit(ctx, &trail, audit.TableOffers, o.ID, audit.OpPurchase, before, sold); err != nil {
			return err
		}

		summary = &TransactionSummary{
			RecordID:        lot.ID,
			OfferID:         o.ID,
			OfferName:       o.Name,
			Owner:           in.Owner,
			Quantity:        in.Quantity,
			PricePerShare:   o.PricePerShare,
			TotalCost:       lot.TotalValue,
			SharesRemaining: sold.SharesRemaining(),
			OfferCompleted:  sold.Completed(),
			ExecutedAt:      now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.announce(trail)

	if s.metrics != nil {
		s.metrics.IncrementPurchases()
		if summary.OfferCompleted {
			s.metrics.IncrementOffersCompleted()
		}
		s.metrics.ObservePurchase(start)
	}
	s.logger.InfoContext(ctx, "shares purchased",
		"log_type", "audit",
		"offer_id", summary.OfferID,
		"owner_id", summary.Owner.ID,
		"owner_type", summary.Owner.Type,
		"quantity", summary.Quantity.String(),
		"total_cost", summary.TotalCost.String(),
		"offer_completed", summary.OfferCompleted,
	)
	return summary, nil
}

// checkPurchaseEligibility reports a coded error naming the first violated
// purchase precondition.
func checkPurchaseEligibility(o *models.Offer, quantity decimal.Decimal, now time.Time) error {
	if o.Status != models.StatusActive {
		return dErrors.Newf(dErrors.CodeBusinessRule, "offer %s is not open for purchase (status %s)", o.ID, o.Status)
	}
	if o.ValidFrom != nil && now.Before(*o.ValidFrom) {
		return dErrors.Newf(dErrors.CodeBusinessRule, "offer %s is not yet open for purchase", o.ID).
			WithDetail("valid_from", o.ValidFrom.Format(time.RFC3339))
	}
	if o.Expired(now) {
		return dErrors.Newf(dErrors.CodeBusinessRule, "offer %s has expired", o.ID).
			WithDetail("valid_until", o.ValidUntil.Format(time.RFC3339))
	}
	if o.MinPurchase != nil && quantity.LessThan(*o.MinPurchase) {
		return dErrors.Newf(dErrors.CodeValidation, "purchase quantity below the offer minimum").
			WithDetail("minimum", o.MinPurchase.String()).
			WithDetail("requested", quantity.String())
	}
	if o.MaxPurchase != nil && quantity.GreaterThan(*o.MaxPurchase) {
		return dErrors.Newf(dErrors.CodeValidation, "purchase quantity above the offer maximum").
			WithDetail("maximum", o.MaxPurchase.String()).
			WithDetail("requested", quantity.String())
	}
	return nil
}

// TransferInput moves quantity from an existing lot to another owner.
type TransferInput struct {
	RecordID uuid.UUID
	To       models.OwnerRef
	Quantity decimal.Decimal
}

// TransferSummary is the receipt returned by TransferShares.
type TransferSummary struct {
	SourceRecordID   uuid.UUID       `json:"source_record_id"`
	NewRecordID      uuid.UUID       `json:"new_record_id"`
	OfferID          uuid.UUID       `json:"offer_id"`
	From             models.OwnerRef `json:"from"`
	To               models.OwnerRef `json:"to"`
	Quantity         decimal.Decimal `json:"quantity"`
	ShareValue       decimal.Decimal `json:"share_value"`
	SourceDeleted    bool            `json:"source_deleted"`
	SourceRemaining  decimal.Decimal `json:"source_remaining"`
	ExecutedAt       time.Time       `json:"executed_at"`
}

// TransferShares moves shares between owners. The source lot shrinks (or is
// deleted when fully transferred) and the recipient gains a new lot at the
// same share value, so the total quantity over the offer is conserved. Both
// sides get audit entries in the same atomic unit.
func (s *Service) TransferShares(ctx context.Context, in TransferInput) (*TransferSummary, error) {
	start := time.Now()
	if !in.Quantity.IsPositive() {
		return nil, dErrors.New(dErrors.CodeValidation, "transfer quantity must be greater than zero")
	}
	if err := s.requireOwner(ctx, in.To); err != nil {
		return nil, err
	}

	// The lock key is the source lot's offer, so transfers serialize with
	// purchases touching the same offer. Resolve it before entering the
	// atomic unit; the lot is re-read inside.
	peek, err := s.records.Get(ctx, in.RecordID)
	if err != nil {
		return nil, translateRecordErr(err, in.RecordID)
	}

	actor := requestcontext.ActorID(ctx)
	now := requestcontext.Now(ctx)

	var (
		summary *TransferSummary
		trail   []audit.Entry
	)
	err = s.runner.RunInTx(ctx, peek.ShareOfferID.String(), func(ctx context.Context) error {
		source, err := s.records.Get(ctx, in.RecordID)
		if err != nil {
			return translateRecordErr(err, in.RecordID)
		}
		if source.Owner == in.To {
			return dErrors.New(dErrors.CodeValidation, "cannot transfer shares to the same owner")
		}
		if in.Quantity.GreaterThan(source.ShareQuantity) {
			return dErrors.New(dErrors.CodeValidation, "cannot transfer more shares than the record holds").
				WithDetail("requested", in.Quantity.String()).
				WithDetail("held", source.ShareQuantity.String())
		}

		before := source.Clone()
		fullTransfer := in.Quantity.Equal(source.ShareQuantity)
		if fullTransfer {
			if err := s.records.Delete(ctx, source.ID); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "delete source record")
			}
			if err := s.recordAudit(ctx, &trail, audit.TableRecords, source.ID, audit.OpTransferOut, before, nil); err != nil {
				return err
			}
		} else {
			if err := source.SetQuantity(source.ShareQuantity.Sub(in.Quantity), actor, now); err != nil {
				return err
			}
			if err := s.records.Update(ctx, source); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "update source record")
			}
			if err := s.recordAudit(ctx, &trail, audit.TableRecords, source.ID, audit.OpTransferOut, before, source); err != nil {
				return err
			}
		}

		incoming, err := models.NewRecord(uuid.New(), in.To, source.ShareOfferID, in.Quantity, source.ShareValue, actor, now)
		if err != nil {
			return err
		}
		if err := s.records.Create(ctx, incoming); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "create recipient record")
		}
		if err := s.recordAudit(ctx, &trail, audit.TableRecords, incoming.ID, audit.OpTransferIn, nil, incoming); err != nil {
			return err
		}

		remaining := decimal.Zero
		if !fullTransfer {
			remaining = source.ShareQuantity
		}
		summary = &TransferSummary{
			SourceRecordID:  source.ID,
			NewRecordID:     incoming.ID,
			OfferID:         source.ShareOfferID,
			From:            before.Owner,
			To:              in.To,
			Quantity:        in.Quantity,
			ShareValue:      source.ShareValue,
			SourceDeleted:   fullTransfer,
			SourceRemaining: remaining,
			ExecutedAt:      now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.announce(trail)

	if s.metrics != nil {
		s.metrics.IncrementTransfers()
		s.metrics.ObserveTransfer(start)
	}
	s.logger.InfoContext(ctx, "shares transferred",
		"log_type", "audit",
		"offer_id", summary.OfferID,
		"from_owner_id", summary.From.ID,
		"to_owner_id", summary.To.ID,
		"quantity", summary.Quantity.String(),
		"source_deleted", summary.SourceDeleted,
	)
	return summary, nil
}
