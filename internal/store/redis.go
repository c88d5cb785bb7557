package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/stake-ledger/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) SavePosition(ctx context.Context, p *model.Position) error {
	if err := s.primary.SavePosition(ctx, p); err != nil {
		return err
	}
	s.cachePosition(ctx, p)
	return nil
}

func (s *CachedStore) DeletePosition(ctx context.Context, account string) error {
	if err := s.primary.DeletePosition(ctx, account); err != nil {
		return err
	}
	s.rdb.Del(ctx, positionKey(account))
	return nil
}

func (s *CachedStore) AppendAuditRecord(ctx context.Context, rec *model.AuditRecord) error {
	if err := s.primary.AppendAuditRecord(ctx, rec); err != nil {
		return err
	}
	// Invalidate the audit trail cache for this account.
	s.rdb.Del(ctx, auditKey(rec.Account))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetPosition(ctx context.Context, account string) (*model.Position, error) {
	data, err := s.rdb.Get(ctx, positionKey(account)).Bytes()
	if err == nil {
		var p model.Position
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	// Cache miss: read from primary.
	p, err := s.primary.GetPosition(ctx, account)
	if err != nil {
		return nil, err
	}

	s.cachePosition(ctx, p)
	return p, nil
}

func (s *CachedStore) GetAuditRecords(ctx context.Context, account string) ([]model.AuditRecord, error) {
	data, err := s.rdb.Get(ctx, auditKey(account)).Bytes()
	if err == nil {
		var records []model.AuditRecord
		if json.Unmarshal(data, &records) == nil {
			return records, nil
		}
	}

	// Cache miss.
	records, err := s.primary.GetAuditRecords(ctx, account)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(records); err == nil {
		s.rdb.Set(ctx, auditKey(account), data, s.ttl)
	}
	return records, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListPositions(ctx context.Context) ([]model.Position, error) {
	return s.primary.ListPositions(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) cachePosition(ctx context.Context, p *model.Position) {
	if data, err := json.Marshal(p); err == nil {
		s.rdb.Set(ctx, positionKey(p.Account), data, s.ttl)
	}
}

func positionKey(account string) string { return fmt.Sprintf("position:%s", account) }
func auditKey(account string) string    { return fmt.Sprintf("audit:%s", account) }
