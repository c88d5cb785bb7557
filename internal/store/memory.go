package store

import (
	"context"
	"sync"

	"github.com/atmx/stake-ledger/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	positions map[string]*model.Position
	audit     []model.AuditRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		positions: make(map[string]*model.Position),
	}
}

func (s *MemoryStore) GetPosition(_ context.Context, account string) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[account]
	if !ok {
		return nil, ErrPositionNotFound
	}
	copy := *p
	return &copy, nil
}

func (s *MemoryStore) SavePosition(_ context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	copy := *p
	s.positions[p.Account] = &copy
	return nil
}

func (s *MemoryStore) DeletePosition(_ context.Context, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[account]; !ok {
		return ErrPositionNotFound
	}
	delete(s.positions, account)
	return nil
}

func (s *MemoryStore) ListPositions(_ context.Context) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	positions := make([]model.Position, 0, len(s.positions))
	for _, p := range s.positions {
		positions = append(positions, *p)
	}
	return positions, nil
}

func (s *MemoryStore) AppendAuditRecord(_ context.Context, rec *model.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.audit = append(s.audit, *rec)
	return nil
}

func (s *MemoryStore) GetAuditRecords(_ context.Context, account string) ([]model.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.AuditRecord
	for _, rec := range s.audit {
		if rec.Account == account {
			result = append(result, rec)
		}
	}
	return result, nil
}
