// Package model defines the core domain types shared across the ledger engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade operations recorded in history entries.
const (
	OperationBuy  = "BUY"
	OperationSell = "SELL"
)

// Account holds a user's cash balance. Accounts are created at registration
// and never deleted; the cash balance is mutated only by the trade engine.
type Account struct {
	ID          string          `json:"id" db:"id"`
	CashBalance decimal.Decimal `json:"cash_balance" db:"cash_balance"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// Position is an account's current holding of one symbol. Keyed uniquely by
// (account_id, symbol). A position row only exists while shares > 0; the row
// is deleted when a sell brings shares to zero.
type Position struct {
	AccountID string          `json:"account_id" db:"account_id"`
	Symbol    string          `json:"symbol" db:"symbol"`
	Shares    int64           `json:"shares" db:"shares"`
	CostBasis decimal.Decimal `json:"cost_basis" db:"cost_basis"` // accumulated cost, average-cost model
}

// HistoryEntry is an immutable record of one executed trade.
// Once created, these are never modified or deleted.
// Shares is signed: positive for buys, negative for sells.
type HistoryEntry struct {
	ID           string          `json:"id" db:"id"`
	AccountID    string          `json:"account_id" db:"account_id"`
	Symbol       string          `json:"symbol" db:"symbol"`
	Shares       int64           `json:"shares" db:"shares"`
	UnitPrice    decimal.Decimal `json:"unit_price" db:"unit_price"`
	TotalPrice   decimal.Decimal `json:"total_price" db:"total_price"`
	Operation    string          `json:"operation" db:"operation"` // "BUY" or "SELL"
	TransactedAt time.Time       `json:"transacted_at" db:"transacted_at"`
}

// Quote is a point-in-time price for a symbol, as returned by the quote
// provider. The price is captured once per order and used for both
// validation and execution.
type Quote struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
}

// TradeReceipt summarizes a successfully executed trade.
type TradeReceipt struct {
	Symbol         string          `json:"symbol"`
	Shares         int64           `json:"shares"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	NewCashBalance decimal.Decimal `json:"new_cash_balance"`
}

// Holding is one row of a portfolio view: a position marked to the current
// market price.
type Holding struct {
	Symbol      string          `json:"symbol"`
	Name        string          `json:"name"`
	Shares      int64           `json:"shares"`
	Price       decimal.Decimal `json:"price"`
	MarketValue decimal.Decimal `json:"market_value"`
	CostBasis   decimal.Decimal `json:"cost_basis"`
}

// Portfolio aggregates an account's holdings with cash and grand total.
type Portfolio struct {
	AccountID   string          `json:"account_id"`
	Holdings    []Holding       `json:"holdings"`
	CashBalance decimal.Decimal `json:"cash_balance"`
	TotalValue  decimal.Decimal `json:"total_value"` // cash + Σ market value
}
