// Package offer persists share offers. Two backends implement the same
// surface: an in-process map for tests and single-node runs, and postgres
// for real deployments.
package offer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"shareledger/internal/shares/models"
	"shareledger/pkg/platform/sentinel"
)

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Status models.OfferStatus
	Limit  int
	Offset int
}

// InMemory keeps offers in a map guarded by a RWMutex. Writers that must be
// atomic with ledger writes are additionally serialized per offer by the
// allocation service's runner, so the store itself only guards map safety.
type InMemory struct {
	mu     sync.RWMutex
	offers map[uuid.UUID]*models.Offer
}

func NewInMemory() *InMemory {
	return &InMemory{offers: make(map[uuid.UUID]*models.Offer)}
}

func (s *InMemory) Create(_ context.Context, o *models.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.offers[o.ID]; ok {
		return sentinel.ErrConflict
	}
	s.offers[o.ID] = o.Clone()
	return nil
}

func (s *InMemory) Get(_ context.Context, id uuid.UUID) (*models.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.offers[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return o.Clone(), nil
}

// Update replaces the stored offer wholesale. The caller is expected to have
// read-modified-written under the per-offer serialization the service
// provides.
func (s *InMemory) Update(_ context.Context, o *models.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.offers[o.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.offers[o.ID] = o.Clone()
	return nil
}

func (s *InMemory) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.offers[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.offers, id)
	return nil
}

func (s *InMemory) List(_ context.Context, f Filter) ([]*models.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*models.Offer, 0, len(s.offers))
	for _, o := range s.offers {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		matched = append(matched, o.Clone())
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return paginate(matched, f.Limit, f.Offset), nil
}

// ApplySale advances the sold counter under the store lock, re-checking the
// inventory bound through the model. Oversell is reported as
// sentinel.ErrOversold so both backends fail the same way.
func (s *InMemory) ApplySale(_ context.Context, id uuid.UUID, quantity decimal.Decimal, actor *uuid.UUID, now time.Time) (*models.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := o.ApplySale(quantity, actor, now); err != nil {
		return nil, sentinel.ErrOversold
	}
	return o.Clone(), nil
}

// FindEligible returns active offers inside their validity window that can
// absorb a purchase of the given quantity, cheapest first. A non-positive
// quantity matches any offer with inventory left.
func (s *InMemory) FindEligible(_ context.Context, quantity decimal.Decimal, now time.Time) ([]*models.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	eligible := make([]*models.Offer, 0)
	for _, o := range s.offers {
		if o.Status != models.StatusActive {
			continue
		}
		if !o.InValidityWindow(now) {
			continue
		}
		if quantity.IsPositive() {
			if !o.QuantityWithinBounds(quantity) || quantity.GreaterThan(o.SharesRemaining()) {
				continue
			}
		} else if !o.SharesRemaining().IsPositive() {
			continue
		}
		eligible = append(eligible, o.Clone())
	}
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].PricePerShare.LessThan(eligible[j].PricePerShare)
	})
	return eligible, nil
}

// FindExpiringSoon returns active offers whose sale window closes within the
// given horizon, soonest first.
func (s *InMemory) FindExpiringSoon(_ context.Context, now time.Time, within time.Duration) ([]*models.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	horizon := now.Add(within)
	expiring := make([]*models.Offer, 0)
	for _, o := range s.offers {
		if o.Status != models.StatusActive || o.ValidUntil == nil {
			continue
		}
		if o.ValidUntil.Before(now) || o.ValidUntil.After(horizon) {
			continue
		}
		expiring = append(expiring, o.Clone())
	}
	sort.Slice(expiring, func(i, j int) bool {
		return expiring[i].ValidUntil.Before(*expiring[j].ValidUntil)
	})
	return expiring, nil
}

func (s *InMemory) Stats(_ context.Context) (models.OfferStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := models.OfferStats{
		CountByStatus:      make(map[models.OfferStatus]int),
		TotalSharesOffered: decimal.Zero,
		TotalSharesSold:    decimal.Zero,
	}
	for _, o := range s.offers {
		stats.CountByStatus[o.Status]++
		stats.TotalSharesOffered = stats.TotalSharesOffered.Add(o.TotalShares)
		stats.TotalSharesSold = stats.TotalSharesSold.Add(o.SharesSold)
	}
	return stats, nil
}

func paginate(offers []*models.Offer, limit, offset int) []*models.Offer {
	if offset > 0 {
		if offset >= len(offers) {
			return []*models.Offer{}
		}
		offers = offers[offset:]
	}
	if limit > 0 && len(offers) > limit {
		offers = offers[:limit]
	}
	return offers
}
