// Package quote provides market price lookups for ticker symbols.
// The engine treats an unknown symbol and any provider failure identically:
// both surface as ErrUnavailable and the order is rejected before any
// state mutation.
package quote

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/openfolio/ledger-engine/internal/model"
)

// ErrUnavailable is returned when a symbol cannot be resolved to a price —
// unknown symbol, provider error, or timeout.
var ErrUnavailable = errors.New("quote: symbol unavailable")

// Provider resolves a symbol to its current name and price.
type Provider interface {
	Lookup(ctx context.Context, sym string) (*model.Quote, error)
}

// StaticProvider serves quotes from a fixed table. Used for tests and for
// development mode when no quote API is configured.
type StaticProvider struct {
	quotes map[string]model.Quote
}

// NewStaticProvider creates a provider with a fixed symbol → price table.
func NewStaticProvider(prices map[string]decimal.Decimal) *StaticProvider {
	quotes := make(map[string]model.Quote, len(prices))
	for sym, price := range prices {
		quotes[sym] = model.Quote{Symbol: sym, Name: sym, Price: price}
	}
	return &StaticProvider{quotes: quotes}
}

// SetPrice updates or adds one symbol's price.
func (p *StaticProvider) SetPrice(sym string, price decimal.Decimal) {
	p.quotes[sym] = model.Quote{Symbol: sym, Name: sym, Price: price}
}

func (p *StaticProvider) Lookup(_ context.Context, sym string) (*model.Quote, error) {
	q, ok := p.quotes[sym]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, sym)
	}
	copy := q
	return &copy, nil
}
