package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"shareledger/internal/audit"
	"shareledger/internal/shares/models"
	"shareledger/internal/shares/store/offer"
	dErrors "shareledger/pkg/domain-errors"
	"shareledger/pkg/platform/sentinel"
	"shareledger/pkg/requestcontext"
)

// CreateOfferInput carries the fields an administrator sets when drafting an
// offer.
type CreateOfferInput struct {
	Name          string
	Description   string
	PricePerShare decimal.Decimal
	TotalShares   decimal.Decimal
	ValidFrom     *time.Time
	ValidUntil    *time.Time
	MinPurchase   *decimal.Decimal
	MaxPurchase   *decimal.Decimal
}

func (in CreateOfferInput) validateWindowAndBounds() error {
	if in.ValidFrom != nil && in.ValidUntil != nil && !in.ValidFrom.Before(*in.ValidUntil) {
		return dErrors.New(dErrors.CodeValidation, "valid_from must be before valid_until")
	}
	if in.MinPurchase != nil && !in.MinPurchase.IsPositive() {
		return dErrors.New(dErrors.CodeValidation, "min purchase quantity must be greater than zero")
	}
	if in.MaxPurchase != nil && !in.MaxPurchase.IsPositive() {
		return dErrors.New(dErrors.CodeValidation, "max purchase quantity must be greater than zero")
	}
	if in.MinPurchase != nil && in.MaxPurchase != nil && in.MinPurchase.GreaterThan(*in.MaxPurchase) {
		return dErrors.New(dErrors.CodeValidation, "min purchase quantity cannot exceed max purchase quantity")
	}
	return nil
}

// CreateOffer drafts a new offer.
func (s *Service) CreateOffer(ctx context.Context, in CreateOfferInput) (*models.Offer, error) {
	if err := in.validateWindowAndBounds(); err != nil {
		return nil, err
	}
	actor := requestcontext.ActorID(ctx)
	now := requestcontext.Now(ctx)

	o, err := models.NewOffer(uuid.New(), in.Name, in.Description, in.PricePerShare, in.TotalShares, actor, now)
	if err != nil {
		return nil, err
	}
	o.ValidFrom = in.ValidFrom
	o.ValidUntil = in.ValidUntil
	o.MinPurchase = in.MinPurchase
	o.MaxPurchase = in.MaxPurchase

	var trail []audit.Entry
	err = s.runner.RunInTx(ctx, o.ID.String(), func(ctx context.Context) error {
		if err := s.offers.Create(ctx, o); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "create offer")
		}
		return s.recordAudit(ctx, &trail, audit.TableOffers, o.ID, audit.OpCreate, nil, o)
	})
	if err != nil {
		return nil, err
	}
	s.announce(trail)

	s.logger.InfoContext(ctx, "share offer created",
		"log_type", "audit",
		"offer_id", o.ID,
		"name", o.Name,
		"total_shares", o.TotalShares.String(),
	)
	return o, nil
}

// UpdateOfferInput carries editable fields. Nil pointers leave the current
// value in place; Description uses a pointer for the same reason.
type UpdateOfferInput struct {
	Name          *string
	Description   *string
	PricePerShare *decimal.Decimal
	TotalShares   *decimal.Decimal
	ValidFrom     *time.Time
	ValidUntil    *time.Time
	MinPurchase   *decimal.Decimal
	MaxPurchase   *decimal.Decimal
}

// UpdateOffer edits a draft offer. Once an offer leaves draft its terms are
// fixed; only the lifecycle operations may touch it.
func (s *Service) UpdateOffer(ctx context.Context, id uuid.UUID, in UpdateOfferInput) (*models.Offer, error) {
	var (
		updated *models.Offer
		trail   []audit.Entry
	)
	err := s.runner.RunInTx(ctx, id.String(), func(ctx context.Context) error {
		o, err := s.offers.Get(ctx, id)
		if err != nil {
			return translateOfferErr(err, id)
		}
		if o.Status != models.StatusDraft {
			return dErrors.Newf(dErrors.CodeBusinessRule, "only draft offers can be edited (offer %s is %s)", o.ID, o.Status)
		}
		before := o.Clone()

		if in.Name != nil {
			if *in.Name == "" {
				return dErrors.New(dErrors.CodeValidation, "offer name cannot be empty")
			}
			o.Name = *in.Name
		}
		if in.Description != nil {
			o.Description = *in.Description
		}
		if in.PricePerShare != nil {
			if !in.PricePerShare.IsPositive() {
				return dErrors.New(dErrors.CodeValidation, "price per share must be greater than zero")
			}
			o.PricePerShare = *in.PricePerShare
		}
		if in.TotalShares != nil {
			if !in.TotalShares.IsPositive() {
				return dErrors.New(dErrors.CodeValidation, "total shares available must be greater than zero")
			}
			o.TotalShares = *in.TotalShares
		}
		if in.ValidFrom != nil {
			o.ValidFrom = in.ValidFrom
		}
		if in.ValidUntil != nil {
			o.ValidUntil = in.ValidUntil
		}
		if in.MinPurchase != nil {
			o.MinPurchase = in.MinPurchase
		}
		if in.MaxPurchase != nil {
			o.MaxPurchase = in.MaxPurchase
		}
		check := CreateOfferInput{
			ValidFrom:   o.ValidFrom,
			ValidUntil:  o.ValidUntil,
			MinPurchase: o.MinPurchase,
			MaxPurchase: o.MaxPurchase,
		}
		if err := check.validateWindowAndBounds(); err != nil {
			return err
		}

		o.UpdatedAt = requestcontext.Now(ctx)
		if actor := requestcontext.ActorID(ctx); actor != nil {
			o.UpdatedBy = actor
		}
		if err := s.offers.Update(ctx, o); err != nil {
			return translateOfferErr(err, id)
		}
		updated = o
		return s.recordAudit(ctx, &trail, audit.TableOffers, o.ID, audit.OpUpdate, before, o)
	})
	if err != nil {
		return nil, err
	}
	s.announce(trail)
	return updated, nil
}

// GetOffer loads a single offer.
func (s *Service) GetOffer(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	o, err := s.offers.Get(ctx, id)
	if err != nil {
		return nil, translateOfferErr(err, id)
	}
	return o, nil
}

// ListOffers returns offers, optionally filtered by status.
func (s *Service) ListOffers(ctx context.Context, f offer.Filter) ([]*models.Offer, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown offer status %q", f.Status)
	}
	offers, err := s.offers.List(ctx, f)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list offers")
	}
	return offers, nil
}

// ActivateOffer opens a draft offer for purchase.
func (s *Service) ActivateOffer(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	return s.transition(ctx, id, "activated",
		func(o *models.Offer) error { return o.CanActivate() },
		(*models.Offer).ApplyActivation,
	)
}

// PauseOffer temporarily closes an active offer.
func (s *Service) PauseOffer(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	return s.transition(ctx, id, "paused",
		func(o *models.Offer) error { return o.CanPause() },
		(*models.Offer).ApplyPause,
	)
}

// ResumeOffer reopens a paused offer.
func (s *Service) ResumeOffer(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	return s.transition(ctx, id, "resumed",
		func(o *models.Offer) error { return o.CanResume() },
		(*models.Offer).ApplyResume,
	)
}

// CancelOffer withdraws a non-terminal offer.
func (s *Service) CancelOffer(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	return s.transition(ctx, id, "cancelled",
		func(o *models.Offer) error { return o.CanCancel() },
		(*models.Offer).ApplyCancellation,
	)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, verb string,
	can func(*models.Offer) error,
	apply func(*models.Offer, *uuid.UUID, time.Time),
) (*models.Offer, error) {
	var (
		result *models.Offer
		trail  []audit.Entry
	)
	err := s.runner.RunInTx(ctx, id.String(), func(ctx context.Context) error {
		o, err := s.offers.Get(ctx, id)
		if err != nil {
			return translateOfferErr(err, id)
		}
		if err := can(o); err != nil {
			return err
		}
		before := o.Clone()
		apply(o, requestcontext.ActorID(ctx), requestcontext.Now(ctx))
		if err := s.offers.Update(ctx, o); err != nil {
			return translateOfferErr(err, id)
		}
		result = o
		return s.recordAudit(ctx, &trail, audit.TableOffers, o.ID, audit.OpStatusChange, before, o)
	})
	if err != nil {
		return nil, err
	}
	s.announce(trail)

	s.logger.InfoContext(ctx, "share offer "+verb,
		"log_type", "audit",
		"offer_id", id,
		"status", result.Status,
	)
	return result, nil
}

// DeleteOffer removes a draft offer. Offers with any sales history are
// never deleted; they are cancelled instead.
func (s *Service) DeleteOffer(ctx context.Context, id uuid.UUID) error {
	var trail []audit.Entry
	err := s.runner.RunInTx(ctx, id.String(), func(ctx context.Context) error {
		o, err := s.offers.Get(ctx, id)
		if err != nil {
			return translateOfferErr(err, id)
		}
		if err := o.CanDelete(); err != nil {
			return err
		}
		if err := s.offers.Delete(ctx, id); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return translateOfferErr(err, id)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "delete offer")
		}
		return s.recordAudit(ctx, &trail, audit.TableOffers, id, audit.OpDelete, o, nil)
	})
	if err != nil {
		return err
	}
	s.announce(trail)

	s.logger.InfoContext(ctx, "share offer deleted",
		"log_type", "audit",
		"offer_id", id,
	)
	return nil
}
