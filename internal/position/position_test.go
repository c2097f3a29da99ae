package position

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/openfolio/ledger-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestSharesOwned_NilPosition(t *testing.T) {
	if got := SharesOwned(nil); got != 0 {
		t.Errorf("expected 0 shares for absent position, got %d", got)
	}
}

func TestSharesOwned(t *testing.T) {
	p := &model.Position{Shares: 7}
	if got := SharesOwned(p); got != 7 {
		t.Errorf("expected 7 shares, got %d", got)
	}
}

func TestAfterBuy_FirstBuy(t *testing.T) {
	p := AfterBuy(nil, "acct1", "AAPL", 10, d(100))

	if p.AccountID != "acct1" {
		t.Errorf("expected account_id=acct1, got %s", p.AccountID)
	}
	if p.Symbol != "AAPL" {
		t.Errorf("expected symbol=AAPL, got %s", p.Symbol)
	}
	if p.Shares != 10 {
		t.Errorf("expected 10 shares, got %d", p.Shares)
	}
	if !p.CostBasis.Equal(d(1000)) {
		t.Errorf("expected cost basis 1000, got %s", p.CostBasis)
	}
}

func TestAfterBuy_AddsToExisting(t *testing.T) {
	current := &model.Position{
		AccountID: "acct1",
		Symbol:    "AAPL",
		Shares:    10,
		CostBasis: d(1000),
	}

	p := AfterBuy(current, "acct1", "AAPL", 5, d(120))

	if p.Shares != 15 {
		t.Errorf("expected 15 shares, got %d", p.Shares)
	}
	if !p.CostBasis.Equal(d(1600)) {
		t.Errorf("expected cost basis 1600, got %s", p.CostBasis)
	}
}

func TestAfterSell_Partial(t *testing.T) {
	current := model.Position{
		AccountID: "acct1",
		Symbol:    "AAPL",
		Shares:    10,
		CostBasis: d(1000),
	}

	p, closed := AfterSell(current, 4)

	if closed {
		t.Error("partial sell should not close the position")
	}
	if p.Shares != 6 {
		t.Errorf("expected 6 shares, got %d", p.Shares)
	}
	// Proportional reduction: 1000 × 6/10 = 600.
	if !p.CostBasis.Equal(d(600)) {
		t.Errorf("expected cost basis 600, got %s", p.CostBasis)
	}
}

func TestAfterSell_Full(t *testing.T) {
	current := model.Position{
		AccountID: "acct1",
		Symbol:    "AAPL",
		Shares:    6,
		CostBasis: d(600),
	}

	p, closed := AfterSell(current, 6)

	if !closed {
		t.Error("selling all shares should close the position")
	}
	if p.Shares != 0 {
		t.Errorf("expected 0 shares, got %d", p.Shares)
	}
	if !p.CostBasis.IsZero() {
		t.Errorf("expected zero cost basis, got %s", p.CostBasis)
	}
}

func TestAfterSell_AverageCostUnchangedByPartialSell(t *testing.T) {
	// Selling at any market price must not move the average cost of the
	// remaining shares.
	current := model.Position{
		AccountID: "acct1",
		Symbol:    "NFLX",
		Shares:    9,
		CostBasis: d(2700), // avg 300
	}

	p, _ := AfterSell(current, 3)

	avg := AverageCost(p)
	if !avg.Equal(d(300)) {
		t.Errorf("expected average cost 300 after partial sell, got %s", avg)
	}
}

func TestAverageCost(t *testing.T) {
	p := model.Position{Shares: 3, CostBasis: d(100)}
	if got := AverageCost(p); !got.Equal(d(33.3333)) {
		t.Errorf("expected average cost 33.3333, got %s", got)
	}
}

func TestAverageCost_EmptyPosition(t *testing.T) {
	if got := AverageCost(model.Position{}); !got.IsZero() {
		t.Errorf("expected zero average cost for empty position, got %s", got)
	}
}

func TestBuySellRoundTrip_BasisConserved(t *testing.T) {
	// Buy 10 @ 100, buy 5 @ 120, sell 15 → closed with zero basis.
	p := AfterBuy(nil, "acct1", "AAPL", 10, d(100))
	p = AfterBuy(&p, "acct1", "AAPL", 5, d(120))

	out, closed := AfterSell(p, 15)
	if !closed {
		t.Fatal("expected position closed")
	}
	if out.Shares != 0 || !out.CostBasis.IsZero() {
		t.Errorf("expected empty position, got shares=%d basis=%s", out.Shares, out.CostBasis)
	}
}
