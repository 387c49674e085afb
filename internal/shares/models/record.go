package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dErrors "shareledger/pkg/domain-errors"
)

// OwnerType discriminates the polymorphic owner of a share record.
type OwnerType string

const (
	OwnerMember OwnerType = "member"
	OwnerGroup  OwnerType = "group"
)

// Valid reports whether t is a known owner type.
func (t OwnerType) Valid() bool {
	return t == OwnerMember || t == OwnerGroup
}

// OwnerRef is a tagged reference to a member or group. Carrying the id and
// the kind together makes "owner kind unknown" unrepresentable instead of a
// runtime null check over two foreign keys.
type OwnerRef struct {
	ID   uuid.UUID `json:"id"`
	Type OwnerType `json:"type"`
}

// NewOwnerRef validates and builds an owner reference.
func NewOwnerRef(id uuid.UUID, ownerType OwnerType) (OwnerRef, error) {
	if id == uuid.Nil {
		return OwnerRef{}, dErrors.New(dErrors.CodeValidation, "owner id is required")
	}
	if !ownerType.Valid() {
		return OwnerRef{}, dErrors.Newf(dErrors.CodeValidation, "unknown owner type %q", ownerType)
	}
	return OwnerRef{ID: id, Type: ownerType}, nil
}

// Record is one ownership lot: how many shares of a given offer an owner
// holds, at the price fixed when the shares were acquired.
//
// Invariant: TotalValue == ShareQuantity × ShareValue, recomputed on every
// mutation by SetQuantity.
type Record struct {
	ID                uuid.UUID       `json:"id"`
	Owner             OwnerRef        `json:"owner"`
	ShareOfferID      uuid.UUID       `json:"share_offer_id"`
	ShareQuantity     decimal.Decimal `json:"share_quantity"`
	ShareValue        decimal.Decimal `json:"share_value"`
	TotalValue        decimal.Decimal `json:"total_value"`
	LastTransactionAt *time.Time      `json:"last_transaction_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	CreatedBy         *uuid.UUID      `json:"created_by,omitempty"`
	UpdatedBy         *uuid.UUID      `json:"updated_by,omitempty"`
}

// NewRecord constructs a lot at acquisition time. The share value is copied
// from the offer's current price so later price changes never rewrite
// existing holdings.
func NewRecord(id uuid.UUID, owner OwnerRef, offerID uuid.UUID, quantity, shareValue decimal.Decimal, actor *uuid.UUID, now time.Time) (*Record, error) {
	if !quantity.IsPositive() {
		return nil, dErrors.New(dErrors.CodeValidation, "share quantity must be greater than zero")
	}
	if shareValue.IsNegative() {
		return nil, dErrors.New(dErrors.CodeValidation, "share value cannot be negative")
	}
	txAt := now
	return &Record{
		ID:                id,
		Owner:             owner,
		ShareOfferID:      offerID,
		ShareQuantity:     quantity,
		ShareValue:        shareValue,
		TotalValue:        quantity.Mul(shareValue),
		LastTransactionAt: &txAt,
		CreatedAt:         now,
		UpdatedAt:         now,
		CreatedBy:         actor,
		UpdatedBy:         actor,
	}, nil
}

// SetQuantity mutates the lot's quantity, recomputing the derived total and
// stamping the transaction time. The quantity must stay positive; a lot that
// reaches zero is deleted, not kept.
func (r *Record) SetQuantity(quantity decimal.Decimal, actor *uuid.UUID, now time.Time) error {
	if !quantity.IsPositive() {
		return dErrors.New(dErrors.CodeValidation, "share quantity must be greater than zero")
	}
	r.ShareQuantity = quantity
	r.TotalValue = quantity.Mul(r.ShareValue)
	txAt := now
	r.LastTransactionAt = &txAt
	r.UpdatedAt = now
	if actor != nil {
		r.UpdatedBy = actor
	}
	return nil
}

// Clone returns a deep copy so in-memory stores never leak internal
// pointers to callers.
func (r *Record) Clone() *Record {
	cp := *r
	cp.LastTransactionAt = copyTime(r.LastTransactionAt)
	cp.CreatedBy = copyUUID(r.CreatedBy)
	cp.UpdatedBy = copyUUID(r.UpdatedBy)
	return &cp
}

// OwnershipSummary is the read-only projection over an owner's lots.
type OwnershipSummary struct {
	Owner         OwnerRef         `json:"owner"`
	TotalQuantity decimal.Decimal  `json:"total_quantity"`
	TotalValue    decimal.Decimal  `json:"total_value"`
	PerOffer      []OfferBreakdown `json:"per_offer_breakdown"`
	Records       []*Record        `json:"records"`
}

// OfferBreakdown aggregates an owner's lots for a single offer.
type OfferBreakdown struct {
	OfferID       uuid.UUID       `json:"offer_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	Value         decimal.Decimal `json:"value"`
	ShareValue    decimal.Decimal `json:"share_value"`
	PurchaseCount int             `json:"purchase_count"`
}
