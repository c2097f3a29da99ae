package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openfolio/ledger-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache over account and position reads. ApplyTrade goes to the primary
// store and invalidates both keys; reads check Redis first then fall back
// to the primary.
//
// History is never cached: it is append-only and read far less often than
// balances and positions.
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

// --- Write path (write to primary, invalidate cache) ---

func (s *CachedStore) CreateAccount(ctx context.Context, a *model.Account) error {
	if err := s.primary.CreateAccount(ctx, a); err != nil {
		return err
	}
	s.cacheAccount(ctx, a)
	return nil
}

func (s *CachedStore) ApplyTrade(ctx context.Context, mut TradeMutation) error {
	if err := s.primary.ApplyTrade(ctx, mut); err != nil {
		// A conflict means the snapshot this mutation was computed from is
		// stale. If that snapshot came from the cache, it must be dropped
		// here too, otherwise every retry re-reads the same stale values
		// and re-conflicts until the TTL expires.
		if errors.Is(err, ErrConflict) {
			s.rdb.Del(ctx, accountKey(mut.AccountID), positionsKey(mut.AccountID))
		}
		return err
	}
	// Invalidate; the next read re-populates from the primary.
	s.rdb.Del(ctx, accountKey(mut.AccountID), positionsKey(mut.AccountID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	data, err := s.rdb.Get(ctx, accountKey(id)).Bytes()
	if err == nil {
		var a model.Account
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}

	a, err := s.primary.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheAccount(ctx, a)
	return a, nil
}

func (s *CachedStore) ListPositions(ctx context.Context, accountID string) ([]model.Position, error) {
	data, err := s.rdb.Get(ctx, positionsKey(accountID)).Bytes()
	if err == nil {
		var positions []model.Position
		if json.Unmarshal(data, &positions) == nil {
			return positions, nil
		}
	}

	positions, err := s.primary.ListPositions(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(positions); err == nil {
		s.rdb.Set(ctx, positionsKey(accountID), data, s.ttl)
	}
	return positions, nil
}

// --- Passthrough (not cached) ---

// GetPosition always reads the primary: the trade engine's snapshot reads
// must observe committed state, otherwise every retry would re-read the
// same stale values and re-conflict.
func (s *CachedStore) GetPosition(ctx context.Context, accountID, sym string) (*model.Position, error) {
	return s.primary.GetPosition(ctx, accountID, sym)
}

func (s *CachedStore) ListHistory(ctx context.Context, accountID string) ([]model.HistoryEntry, error) {
	return s.primary.ListHistory(ctx, accountID)
}

// --- Cache helpers ---

func (s *CachedStore) cacheAccount(ctx context.Context, a *model.Account) {
	if data, err := json.Marshal(a); err == nil {
		s.rdb.Set(ctx, accountKey(a.ID), data, s.ttl)
	}
}

func accountKey(id string) string { return fmt.Sprintf("account:%s", id) }

func positionsKey(accountID string) string { return fmt.Sprintf("positions:%s", accountID) }
