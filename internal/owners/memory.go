package owners

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"shareledger/internal/shares/models"
	"shareledger/pkg/platform/sentinel"
)

// InMemory keeps members and groups in process. It favors clarity over
// performance, like the rest of the in-memory backend.
type InMemory struct {
	mu      sync.RWMutex
	members map[uuid.UUID]Member
	groups  map[uuid.UUID]Group
}

func NewInMemory() *InMemory {
	return &InMemory{
		members: make(map[uuid.UUID]Member),
		groups:  make(map[uuid.UUID]Group),
	}
}

func (s *InMemory) CreateMember(_ context.Context, m Member) error {
	if err := validateName(m.Name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[m.ID]; ok {
		return sentinel.ErrConflict
	}
	s.members[m.ID] = m
	return nil
}

func (s *InMemory) CreateGroup(_ context.Context, g Group) error {
	if err := validateName(g.Name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[g.ID]; ok {
		return sentinel.ErrConflict
	}
	s.groups[g.ID] = g
	return nil
}

func (s *InMemory) GetMember(_ context.Context, id uuid.UUID) (Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.members[id]; ok {
		return m, nil
	}
	return Member{}, sentinel.ErrNotFound
}

func (s *InMemory) GetGroup(_ context.Context, id uuid.UUID) (Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if g, ok := s.groups[id]; ok {
		return g, nil
	}
	return Group{}, sentinel.ErrNotFound
}

func (s *InMemory) Exists(_ context.Context, owner models.OwnerRef) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch owner.Type {
	case models.OwnerMember:
		_, ok := s.members[owner.ID]
		return ok, nil
	case models.OwnerGroup:
		_, ok := s.groups[owner.ID]
		return ok, nil
	}
	return false, nil
}
