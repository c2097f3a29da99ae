// Package ledger defines the persistence interface for the trade ledger.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/openfolio/ledger-engine/internal/model"
)

var (
	// ErrNotFound is returned when a requested account does not exist.
	ErrNotFound = errors.New("ledger: not found")

	// ErrConflict is returned by ApplyTrade when the underlying state
	// changed since the read that produced the mutation. Transient; the
	// trade engine re-validates against fresh state and retries.
	ErrConflict = errors.New("ledger: concurrent modification")
)

// TradeMutation is the atomic write set for one executed trade. The
// Expected* fields carry the read snapshot the mutation was computed from;
// they guard the writes so a concurrent trade on the same account surfaces
// as ErrConflict instead of a lost update.
type TradeMutation struct {
	AccountID string
	Symbol    string

	// Snapshot the mutation was computed against.
	ExpectedCash   decimal.Decimal
	ExpectedShares int64 // 0 = no position row existed at read time

	// Resulting state.
	NewCash      decimal.Decimal
	NewShares    int64 // 0 = delete the position row
	NewCostBasis decimal.Decimal

	// History record to append.
	Entry model.HistoryEntry
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Account operations ---

	// CreateAccount persists a new account.
	CreateAccount(ctx context.Context, account *model.Account) error

	// GetAccount retrieves an account by ID. Returns ErrNotFound if absent.
	GetAccount(ctx context.Context, id string) (*model.Account, error)

	// --- Position queries ---

	// GetPosition retrieves one position. Returns (nil, nil) if the
	// account holds no shares of the symbol — absence is a normal state,
	// not an error.
	GetPosition(ctx context.Context, accountID, sym string) (*model.Position, error)

	// ListPositions returns all open positions for an account.
	ListPositions(ctx context.Context, accountID string) ([]model.Position, error)

	// --- Immutable history ---

	// ListHistory returns all trade records for an account in execution order.
	ListHistory(ctx context.Context, accountID string) ([]model.HistoryEntry, error)

	// --- Trade application ---

	// ApplyTrade atomically applies one trade: upserts or deletes the
	// position row, adjusts the account cash balance, and appends one
	// history entry. Either all three sub-writes commit or none do.
	// Returns ErrConflict if the guarded state no longer matches the
	// mutation's snapshot.
	ApplyTrade(ctx context.Context, mut TradeMutation) error
}
