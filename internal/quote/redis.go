package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openfolio/ledger-engine/internal/model"
)

// CachedProvider wraps a primary Provider with a short-TTL Redis cache.
// A cached price is still captured exactly once per order — the engine
// reads the provider a single time per attempt regardless of where the
// value came from.
type CachedProvider struct {
	primary Provider
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedProvider creates a cached wrapper around a primary provider.
func NewCachedProvider(primary Provider, rdb *redis.Client, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (p *CachedProvider) Lookup(ctx context.Context, sym string) (*model.Quote, error) {
	data, err := p.rdb.Get(ctx, quoteKey(sym)).Bytes()
	if err == nil {
		var q model.Quote
		if json.Unmarshal(data, &q) == nil {
			return &q, nil
		}
	}

	q, err := p.primary.Lookup(ctx, sym)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(q); err == nil {
		p.rdb.Set(ctx, quoteKey(sym), data, p.ttl)
	}
	return q, nil
}

func quoteKey(sym string) string { return fmt.Sprintf("quote:%s", sym) }
