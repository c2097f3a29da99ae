// Package engine implements the order-validation and execution state machine
// for buy and sell trades. Validation is fail-fast and its ordering is part
// of the contract: symbol resolution, then share count, then funds (buy) or
// owned shares (sell). A rejected order leaves no state change behind.
//
// Concurrency is delegated to the ledger store's optimistic guards: the
// engine reads a snapshot, computes the mutation, and applies it; if a
// concurrent trade moved the account in between, ApplyTrade reports
// ledger.ErrConflict and the engine re-runs the whole order — fresh quote,
// fresh reads, full re-validation — up to a bounded number of attempts.
//
// All monetary values use shopspring/decimal — never float64 for money.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openfolio/ledger-engine/internal/ledger"
	"github.com/openfolio/ledger-engine/internal/metrics"
	"github.com/openfolio/ledger-engine/internal/model"
	"github.com/openfolio/ledger-engine/internal/position"
	"github.com/openfolio/ledger-engine/internal/quote"
	"github.com/openfolio/ledger-engine/internal/symbol"
)

var (
	// ErrInvalidSymbol is returned when the symbol is empty, malformed,
	// or cannot be resolved by the quote provider.
	ErrInvalidSymbol = errors.New("engine: invalid or unknown symbol")

	// ErrInvalidShareCount is returned when the requested share count is
	// not a positive integer.
	ErrInvalidShareCount = errors.New("engine: share count must be positive")

	// ErrInsufficientFunds is returned when a buy's total price exceeds
	// the account's cash balance.
	ErrInsufficientFunds = errors.New("engine: insufficient cash balance")

	// ErrInsufficientShares is returned when a sell requests more shares
	// than the account owns.
	ErrInsufficientShares = errors.New("engine: insufficient shares owned")
)

// defaultMaxAttempts bounds the conflict retry loop. An order that still
// conflicts after this many full re-validations is surfaced as a hard
// failure.
const defaultMaxAttempts = 3

// Engine validates and executes trades against the ledger store.
type Engine struct {
	store       ledger.Store
	quotes      quote.Provider
	maxAttempts int
}

// New creates a trade engine over the given store and quote provider.
func New(store ledger.Store, quotes quote.Provider) *Engine {
	return &Engine{
		store:       store,
		quotes:      quotes,
		maxAttempts: defaultMaxAttempts,
	}
}

// Buy purchases shares of a symbol at the current quoted price, debiting
// the account's cash balance.
func (e *Engine) Buy(ctx context.Context, accountID, rawSymbol string, shares int64) (*model.TradeReceipt, error) {
	return e.execute(ctx, accountID, rawSymbol, shares, model.OperationBuy)
}

// Sell disposes shares of a symbol at the current quoted price, crediting
// the account's cash balance. Selling a position down to zero removes it.
func (e *Engine) Sell(ctx context.Context, accountID, rawSymbol string, shares int64) (*model.TradeReceipt, error) {
	return e.execute(ctx, accountID, rawSymbol, shares, model.OperationSell)
}

// execute drives the retry loop around attempt. Conflicts re-run the whole
// attempt; any other error is final.
func (e *Engine) execute(ctx context.Context, accountID, rawSymbol string, shares int64, op string) (*model.TradeReceipt, error) {
	start := time.Now()

	var receipt *model.TradeReceipt
	var err error

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		receipt, err = e.attempt(ctx, accountID, rawSymbol, shares, op)
		if err == nil {
			metrics.TradesTotal.WithLabelValues(op).Inc()
			metrics.TradeLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
			return receipt, nil
		}
		if !errors.Is(err, ledger.ErrConflict) {
			metrics.TradeRejections.WithLabelValues(reasonLabel(err)).Inc()
			return nil, err
		}

		metrics.TradeConflicts.Inc()
		slog.Warn("trade conflicted, re-validating",
			"account", accountID,
			"symbol", rawSymbol,
			"operation", op,
			"attempt", attempt,
		)
	}

	return nil, fmt.Errorf("trade for account %s not applied after %d attempts: %w",
		accountID, e.maxAttempts, err)
}

// attempt runs one full pass: resolve the quote, validate in contract order,
// compute the mutation from a fresh snapshot, and apply it. The quoted price
// captured here is used for both validation and execution — it is never
// re-fetched within the attempt.
func (e *Engine) attempt(ctx context.Context, accountID, rawSymbol string, shares int64, op string) (*model.TradeReceipt, error) {
	// 1. Symbol must be well-formed and resolvable.
	sym, err := symbol.Normalize(rawSymbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSymbol, err)
	}
	q, err := e.quotes.Lookup(ctx, sym)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSymbol, err)
	}

	// 2. Share count must be a positive integer.
	if shares < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidShareCount, shares)
	}

	account, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	pos, err := e.store.GetPosition(ctx, accountID, sym)
	if err != nil {
		return nil, err
	}

	total := q.Price.Mul(decimal.NewFromInt(shares))

	mut := ledger.TradeMutation{
		AccountID:      accountID,
		Symbol:         sym,
		ExpectedCash:   account.CashBalance,
		ExpectedShares: position.SharesOwned(pos),
	}

	switch op {
	case model.OperationBuy:
		// 3. Total price must fit within the cash balance.
		if total.GreaterThan(account.CashBalance) {
			return nil, fmt.Errorf("%w: need %s, have %s",
				ErrInsufficientFunds, total, account.CashBalance)
		}
		next := position.AfterBuy(pos, accountID, sym, shares, q.Price)
		mut.NewCash = account.CashBalance.Sub(total)
		mut.NewShares = next.Shares
		mut.NewCostBasis = next.CostBasis

	case model.OperationSell:
		// 4. The account must own at least the requested shares.
		owned := position.SharesOwned(pos)
		if owned < shares {
			return nil, fmt.Errorf("%w: own %d, requested %d",
				ErrInsufficientShares, owned, shares)
		}
		next, _ := position.AfterSell(*pos, shares)
		mut.NewCash = account.CashBalance.Add(total)
		mut.NewShares = next.Shares
		mut.NewCostBasis = next.CostBasis

	default:
		return nil, fmt.Errorf("engine: unknown operation %q", op)
	}

	signed := shares
	if op == model.OperationSell {
		signed = -shares
	}
	mut.Entry = model.HistoryEntry{
		ID:           uuid.New().String(),
		AccountID:    accountID,
		Symbol:       sym,
		Shares:       signed,
		UnitPrice:    q.Price,
		TotalPrice:   total,
		Operation:    op,
		TransactedAt: time.Now().UTC(),
	}

	if err := e.store.ApplyTrade(ctx, mut); err != nil {
		return nil, err
	}

	slog.Info("trade executed",
		"account", accountID,
		"symbol", sym,
		"operation", op,
		"shares", shares,
		"unit_price", q.Price.String(),
		"total_price", total.String(),
		"new_cash", mut.NewCash.String(),
	)

	return &model.TradeReceipt{
		Symbol:         sym,
		Shares:         shares,
		UnitPrice:      q.Price,
		TotalPrice:     total,
		NewCashBalance: mut.NewCash,
	}, nil
}

// reasonLabel maps a rejection error to a low-cardinality metric label.
func reasonLabel(err error) string {
	switch {
	case errors.Is(err, ErrInvalidSymbol):
		return "invalid_symbol"
	case errors.Is(err, ErrInvalidShareCount):
		return "invalid_share_count"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInsufficientShares):
		return "insufficient_shares"
	case errors.Is(err, ledger.ErrNotFound):
		return "account_not_found"
	default:
		return "storage_error"
	}
}
