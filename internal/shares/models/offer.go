package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dErrors "shareledger/pkg/domain-errors"
)

// OfferStatus is the lifecycle state of a share offer.
type OfferStatus string

const (
	// StatusDraft: being prepared, invisible to buyers, freely editable,
	// the only state that allows deletion.
	StatusDraft OfferStatus = "draft"
	// StatusActive: open for purchase, subject to validity dates and
	// quantity limits.
	StatusActive OfferStatus = "active"
	// StatusPaused: temporarily closed; can be resumed.
	StatusPaused OfferStatus = "paused"
	// StatusCompleted: all shares sold. Terminal.
	StatusCompleted OfferStatus = "completed"
	// StatusCancelled: withdrawn by an administrator. Terminal.
	StatusCancelled OfferStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s OfferStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusPaused, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed out of s.
func (s OfferStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Offer is the aggregate root for a batch of shares for sale.
//
// Invariants:
//   - 0 <= SharesSold <= TotalShares at all times
//   - SharesRemaining() == TotalShares - SharesSold
//   - status transitions are monotonic except the active<->paused cycle
//
// SharesSold is only ever advanced through ApplySale, which re-checks the
// inventory bound at the moment of write; the allocation service runs that
// check and the corresponding ledger write as one atomic unit.
type Offer struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	PricePerShare decimal.Decimal `json:"price_per_share"`
	TotalShares   decimal.Decimal `json:"total_shares_available"`
	SharesSold    decimal.Decimal `json:"shares_sold"`
	Status        OfferStatus     `json:"status"`
	ValidFrom     *time.Time      `json:"valid_from,omitempty"`
	ValidUntil    *time.Time      `json:"valid_until,omitempty"`
	MinPurchase   *decimal.Decimal `json:"min_purchase_quantity,omitempty"`
	MaxPurchase   *decimal.Decimal `json:"max_purchase_quantity,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	CreatedBy     *uuid.UUID      `json:"created_by,omitempty"`
	UpdatedBy     *uuid.UUID      `json:"updated_by,omitempty"`
}

// NewOffer constructs a draft offer, validating construction invariants.
func NewOffer(id uuid.UUID, name, description string, price, total decimal.Decimal, createdBy *uuid.UUID, now time.Time) (*Offer, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "offer name cannot be empty")
	}
	if !price.IsPositive() {
		return nil, dErrors.New(dErrors.CodeValidation, "price per share must be greater than zero")
	}
	if !total.IsPositive() {
		return nil, dErrors.New(dErrors.CodeValidation, "total shares available must be greater than zero")
	}
	return &Offer{
		ID:            id,
		Name:          name,
		Description:   description,
		PricePerShare: price,
		TotalShares:   total,
		SharesSold:    decimal.Zero,
		Status:        StatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
		CreatedBy:     createdBy,
		UpdatedBy:     createdBy,
	}, nil
}

// SharesRemaining is the derived inventory counter. It is recomputed, never
// stored independently, so it cannot drift from SharesSold.
func (o *Offer) SharesRemaining() decimal.Decimal {
	return o.TotalShares.Sub(o.SharesSold)
}

// Completed reports whether the offer sold out.
func (o *Offer) Completed() bool { return o.Status == StatusCompleted }

// InValidityWindow reports whether now falls inside the optional sale window.
func (o *Offer) InValidityWindow(now time.Time) bool {
	if o.ValidFrom != nil && now.Before(*o.ValidFrom) {
		return false
	}
	if o.ValidUntil != nil && !now.Before(*o.ValidUntil) {
		return false
	}
	return true
}

// Expired reports whether the sale window has closed. Expiry is a computed
// predicate, not a stored status: eligibility checks and status queries read
// the same clock and cannot disagree.
func (o *Offer) Expired(now time.Time) bool {
	return o.ValidUntil != nil && !now.Before(*o.ValidUntil)
}

// QuantityWithinBounds checks the per-purchase min/max constraints.
func (o *Offer) QuantityWithinBounds(quantity decimal.Decimal) bool {
	if o.MinPurchase != nil && quantity.LessThan(*o.MinPurchase) {
		return false
	}
	if o.MaxPurchase != nil && quantity.GreaterThan(*o.MaxPurchase) {
		return false
	}
	return true
}

// EligibleForPurchase runs the full purchase-eligibility predicate: active,
// inside the validity window, quantity within bounds and within remaining
// inventory.
func (o *Offer) EligibleForPurchase(quantity decimal.Decimal, now time.Time) bool {
	return o.Status == StatusActive &&
		o.InValidityWindow(now) &&
		o.QuantityWithinBounds(quantity) &&
		quantity.LessThanOrEqual(o.SharesRemaining())
}

// CanActivate checks the draft -> active transition.
func (o *Offer) CanActivate() error {
	if o.Status != StatusDraft {
		return dErrors.Newf(dErrors.CodeBusinessRule, "only draft offers can be activated (offer %s is %s)", o.ID, o.Status)
	}
	return nil
}

// ApplyActivation transitions the offer to active. Call CanActivate first.
func (o *Offer) ApplyActivation(actor *uuid.UUID, now time.Time) {
	o.Status = StatusActive
	o.touch(actor, now)
}

// CanPause checks the active -> paused transition.
func (o *Offer) CanPause() error {
	if o.Status != StatusActive {
		return dErrors.Newf(dErrors.CodeBusinessRule, "only active offers can be paused (offer %s is %s)", o.ID, o.Status)
	}
	return nil
}

// ApplyPause transitions the offer to paused. Call CanPause first.
func (o *Offer) ApplyPause(actor *uuid.UUID, now time.Time) {
	o.Status = StatusPaused
	o.touch(actor, now)
}

// CanResume checks the paused -> active transition.
func (o *Offer) CanResume() error {
	if o.Status != StatusPaused {
		return dErrors.Newf(dErrors.CodeBusinessRule, "only paused offers can be resumed (offer %s is %s)", o.ID, o.Status)
	}
	return nil
}

// ApplyResume transitions the offer back to active. Call CanResume first.
func (o *Offer) ApplyResume(actor *uuid.UUID, now time.Time) {
	o.Status = StatusActive
	o.touch(actor, now)
}

// CanCancel checks that the offer is not already terminal.
func (o *Offer) CanCancel() error {
	if o.Status.Terminal() {
		return dErrors.Newf(dErrors.CodeBusinessRule, "cannot cancel %s offer %s", o.Status, o.ID)
	}
	return nil
}

// ApplyCancellation transitions the offer to cancelled. Call CanCancel first.
func (o *Offer) ApplyCancellation(actor *uuid.UUID, now time.Time) {
	o.Status = StatusCancelled
	o.touch(actor, now)
}

// CanDelete checks that the offer is still a draft; sold offers keep their
// history.
func (o *Offer) CanDelete() error {
	if o.Status != StatusDraft {
		return dErrors.Newf(dErrors.CodeBusinessRule, "only draft offers can be deleted (offer %s is %s)", o.ID, o.Status)
	}
	return nil
}

// ApplySale advances the sold counter by quantity, re-checking the inventory
// bound at the moment of write. When the offer sells out it transitions to
// completed automatically. Callers must hold whatever lock or transaction
// makes this indivisible from the matching ledger write.
func (o *Offer) ApplySale(quantity decimal.Decimal, actor *uuid.UUID, now time.Time) error {
	newSold := o.SharesSold.Add(quantity)
	if newSold.GreaterThan(o.TotalShares) {
		return dErrors.Newf(dErrors.CodeBusinessRule, "cannot sell more shares than available in offer %s", o.ID).
			WithDetail("requested", quantity.String()).
			WithDetail("available", o.SharesRemaining().String())
	}
	o.SharesSold = newSold
	if o.SharesSold.GreaterThanOrEqual(o.TotalShares) {
		o.Status = StatusCompleted
	}
	o.touch(actor, now)
	return nil
}

func (o *Offer) touch(actor *uuid.UUID, now time.Time) {
	o.UpdatedAt = now
	if actor != nil {
		o.UpdatedBy = actor
	}
}

// Clone returns a deep copy so in-memory stores never leak internal
// pointers to callers.
func (o *Offer) Clone() *Offer {
	cp := *o
	cp.ValidFrom = copyTime(o.ValidFrom)
	cp.ValidUntil = copyTime(o.ValidUntil)
	cp.MinPurchase = copyDecimal(o.MinPurchase)
	cp.MaxPurchase = copyDecimal(o.MaxPurchase)
	cp.CreatedBy = copyUUID(o.CreatedBy)
	cp.UpdatedBy = copyUUID(o.UpdatedBy)
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func copyDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	cp := *d
	return &cp
}

func copyUUID(u *uuid.UUID) *uuid.UUID {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}

// OfferStats aggregates offer counters for reporting.
type OfferStats struct {
	CountByStatus      map[OfferStatus]int `json:"count_by_status"`
	TotalSharesOffered decimal.Decimal     `json:"total_shares_offered"`
	TotalSharesSold    decimal.Decimal     `json:"total_shares_sold"`
}
