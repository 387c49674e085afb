// Package memory is the in-process audit store used by the memory backend
// and by unit tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"shareledger/internal/audit"
)

type Store struct {
	mu      sync.RWMutex
	entries []audit.Entry
}

func New() *Store {
	return &Store{}
}

func (s *Store) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// List returns matching entries newest first.
func (s *Store) List(_ context.Context, q audit.Query) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]audit.Entry, 0)
	for _, e := range s.entries {
		if !matches(e, q) {
			continue
		}
		matched = append(matched, e)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].ChangedAt.After(matched[j].ChangedAt)
	})

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return []audit.Entry{}, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func (s *Store) Prune(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	var removed int64
	for _, e := range s.entries {
		if e.ChangedAt.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return removed, nil
}

func matches(e audit.Entry, q audit.Query) bool {
	if q.Table != "" && e.TableName != q.Table {
		return false
	}
	if q.RecordID != nil && e.RecordID != *q.RecordID {
		return false
	}
	if q.Operation != "" && e.Operation != q.Operation {
		return false
	}
	if q.ChangedBy != nil {
		if e.ChangedBy == nil || *e.ChangedBy != *q.ChangedBy {
			return false
		}
	}
	if q.From != nil && e.ChangedAt.Before(*q.From) {
		return false
	}
	if q.To != nil && e.ChangedAt.After(*q.To) {
		return false
	}
	return true
}
