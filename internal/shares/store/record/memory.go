// Package record persists ownership lots. Like the offer store it ships an
// in-process backend and a postgres backend behind the same surface.
package record

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"shareledger/internal/shares/models"
	"shareledger/pkg/platform/sentinel"
)

// Holder aggregates one owner's position across all lots.
type Holder struct {
	Owner         models.OwnerRef `json:"owner"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	TotalValue    decimal.Decimal `json:"total_value"`
	RecordCount   int             `json:"record_count"`
}

// InMemory keeps lots in a map guarded by a RWMutex.
type InMemory struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*models.Record
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[uuid.UUID]*models.Record)}
}

func (s *InMemory) Create(_ context.Context, r *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.ID]; ok {
		return sentinel.ErrConflict
	}
	s.records[r.ID] = r.Clone()
	return nil
}

func (s *InMemory) Get(_ context.Context, id uuid.UUID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *InMemory) Update(_ context.Context, r *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.records[r.ID] = r.Clone()
	return nil
}

func (s *InMemory) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

// FindByOwner returns the owner's lots, oldest first so summaries read in
// acquisition order.
func (s *InMemory) FindByOwner(_ context.Context, owner models.OwnerRef) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*models.Record, 0)
	for _, r := range s.records {
		if r.Owner == owner {
			matched = append(matched, r.Clone())
		}
	}
	sortByCreation(matched)
	return matched, nil
}

func (s *InMemory) FindByOffer(_ context.Context, offerID uuid.UUID) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*models.Record, 0)
	for _, r := range s.records {
		if r.ShareOfferID == offerID {
			matched = append(matched, r.Clone())
		}
	}
	sortByCreation(matched)
	return matched, nil
}

// List returns every lot, oldest first.
func (s *InMemory) List(_ context.Context) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*models.Record, 0, len(s.records))
	for _, r := range s.records {
		all = append(all, r.Clone())
	}
	sortByCreation(all)
	return all, nil
}

// TopHolders aggregates each owner's position across all lots, largest
// total value first.
func (s *InMemory) TopHolders(_ context.Context, limit int) ([]Holder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byOwner := make(map[models.OwnerRef]*Holder)
	for _, r := range s.records {
		h, ok := byOwner[r.Owner]
		if !ok {
			h = &Holder{Owner: r.Owner, TotalQuantity: decimal.Zero, TotalValue: decimal.Zero}
			byOwner[r.Owner] = h
		}
		h.TotalQuantity = h.TotalQuantity.Add(r.ShareQuantity)
		h.TotalValue = h.TotalValue.Add(r.TotalValue)
		h.RecordCount++
	}

	holders := make([]Holder, 0, len(byOwner))
	for _, h := range byOwner {
		holders = append(holders, *h)
	}
	sort.Slice(holders, func(i, j int) bool {
		if !holders[i].TotalValue.Equal(holders[j].TotalValue) {
			return holders[i].TotalValue.GreaterThan(holders[j].TotalValue)
		}
		return holders[i].Owner.ID.String() < holders[j].Owner.ID.String()
	})
	if limit > 0 && len(holders) > limit {
		holders = holders[:limit]
	}
	return holders, nil
}

func sortByCreation(records []*models.Record) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID.String() < records[j].ID.String()
	})
}
