package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openfolio/ledger-engine/internal/engine"
	"github.com/openfolio/ledger-engine/internal/ledger"
	"github.com/openfolio/ledger-engine/internal/model"
	"github.com/openfolio/ledger-engine/internal/quote"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// newTestEnv creates an engine over an in-memory store and a static quote
// provider, with one funded account.
func newTestEnv(t *testing.T, cash float64) (*engine.Engine, *ledger.MemoryStore, *quote.StaticProvider) {
	t.Helper()
	ms := ledger.NewMemoryStore()
	quotes := quote.NewStaticProvider(map[string]decimal.Decimal{
		"AAPL": d(100),
		"NFLX": d(250),
	})

	err := ms.CreateAccount(context.Background(), &model.Account{
		ID:          "acct1",
		CashBalance: d(cash),
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}

	return engine.New(ms, quotes), ms, quotes
}

// --- Buy ---

func TestBuy_DebitsCashAndOpensPosition(t *testing.T) {
	e, ms, _ := newTestEnv(t, 10000)
	ctx := context.Background()

	receipt, err := e.Buy(ctx, "acct1", "AAPL", 10)
	if err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	if receipt.Symbol != "AAPL" || receipt.Shares != 10 {
		t.Errorf("unexpected receipt: %+v", receipt)
	}
	if !receipt.UnitPrice.Equal(d(100)) {
		t.Errorf("expected unit price 100, got %s", receipt.UnitPrice)
	}
	if !receipt.TotalPrice.Equal(d(1000)) {
		t.Errorf("expected total price 1000, got %s", receipt.TotalPrice)
	}
	if !receipt.NewCashBalance.Equal(d(9000)) {
		t.Errorf("expected new cash 9000, got %s", receipt.NewCashBalance)
	}

	a, _ := ms.GetAccount(ctx, "acct1")
	if !a.CashBalance.Equal(d(9000)) {
		t.Errorf("expected stored cash 9000, got %s", a.CashBalance)
	}
	p, _ := ms.GetPosition(ctx, "acct1", "AAPL")
	if p == nil || p.Shares != 10 {
		t.Fatalf("expected 10 shares, got %+v", p)
	}
	if !p.CostBasis.Equal(d(1000)) {
		t.Errorf("expected cost basis 1000, got %s", p.CostBasis)
	}
}

func TestBuy_NormalizesSymbol(t *testing.T) {
	e, ms, _ := newTestEnv(t, 10000)
	ctx := context.Background()

	if _, err := e.Buy(ctx, "acct1", "  aapl ", 1); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	p, _ := ms.GetPosition(ctx, "acct1", "AAPL")
	if p == nil {
		t.Fatal("expected position keyed by normalized symbol")
	}
}

func TestBuy_InsufficientFunds(t *testing.T) {
	e, ms, quotes := newTestEnv(t, 100)
	ctx := context.Background()
	quotes.SetPrice("AAPL", d(50))

	// cash=100, price=50, shares=3 → cost=150 > 100.
	_, err := e.Buy(ctx, "acct1", "AAPL", 3)
	if !errors.Is(err, engine.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// No state mutation.
	a, _ := ms.GetAccount(ctx, "acct1")
	if !a.CashBalance.Equal(d(100)) {
		t.Errorf("cash mutated on rejection: %s", a.CashBalance)
	}
	if p, _ := ms.GetPosition(ctx, "acct1", "AAPL"); p != nil {
		t.Errorf("position created on rejection: %+v", p)
	}
	if entries, _ := ms.ListHistory(ctx, "acct1"); len(entries) != 0 {
		t.Errorf("history appended on rejection: %d entries", len(entries))
	}
}

func TestBuy_ExactCashAllowed(t *testing.T) {
	e, _, quotes := newTestEnv(t, 100)
	quotes.SetPrice("AAPL", d(50))

	receipt, err := e.Buy(context.Background(), "acct1", "AAPL", 2)
	if err != nil {
		t.Fatalf("buy at exact cash should succeed: %v", err)
	}
	if !receipt.NewCashBalance.IsZero() {
		t.Errorf("expected zero cash after spending it all, got %s", receipt.NewCashBalance)
	}
}

// --- Sell ---

func TestSell_CreditsCashAndReducesPosition(t *testing.T) {
	e, ms, quotes := newTestEnv(t, 10000)
	ctx := context.Background()

	if _, err := e.Buy(ctx, "acct1", "AAPL", 10); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	quotes.SetPrice("AAPL", d(120))
	receipt, err := e.Sell(ctx, "acct1", "AAPL", 4)
	if err != nil {
		t.Fatalf("sell failed: %v", err)
	}

	if !receipt.TotalPrice.Equal(d(480)) {
		t.Errorf("expected total 480, got %s", receipt.TotalPrice)
	}
	if !receipt.NewCashBalance.Equal(d(9480)) {
		t.Errorf("expected cash 9480, got %s", receipt.NewCashBalance)
	}

	p, _ := ms.GetPosition(ctx, "acct1", "AAPL")
	if p == nil || p.Shares != 6 {
		t.Fatalf("expected 6 shares remaining, got %+v", p)
	}
	// Average-cost basis: 1000 × 6/10.
	if !p.CostBasis.Equal(d(600)) {
		t.Errorf("expected cost basis 600, got %s", p.CostBasis)
	}
}

func TestSell_InsufficientShares(t *testing.T) {
	e, ms, _ := newTestEnv(t, 10000)
	ctx := context.Background()

	if _, err := e.Buy(ctx, "acct1", "AAPL", 5); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	_, err := e.Sell(ctx, "acct1", "AAPL", 10)
	if !errors.Is(err, engine.ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}

	// No mutation: the position and cash still reflect only the buy.
	a, _ := ms.GetAccount(ctx, "acct1")
	if !a.CashBalance.Equal(d(9500)) {
		t.Errorf("cash mutated on rejection: %s", a.CashBalance)
	}
	p, _ := ms.GetPosition(ctx, "acct1", "AAPL")
	if p == nil || p.Shares != 5 {
		t.Errorf("position mutated on rejection: %+v", p)
	}
}

func TestSell_NothingOwned(t *testing.T) {
	e, _, _ := newTestEnv(t, 10000)

	_, err := e.Sell(context.Background(), "acct1", "AAPL", 1)
	if !errors.Is(err, engine.ErrInsufficientShares) {
		t.Errorf("expected ErrInsufficientShares for empty position, got %v", err)
	}
}

// --- Validation order & taxonomy ---

func TestValidation_SymbolCheckedBeforeShareCount(t *testing.T) {
	e, _, _ := newTestEnv(t, 10000)

	// Both the symbol and the share count are invalid; the symbol error
	// must win — callers rely on deterministic first-failure reporting.
	_, err := e.Buy(context.Background(), "acct1", "NO SUCH", 0)
	if !errors.Is(err, engine.ErrInvalidSymbol) {
		t.Errorf("expected ErrInvalidSymbol first, got %v", err)
	}
}

func TestValidation_UnknownSymbol(t *testing.T) {
	e, _, _ := newTestEnv(t, 10000)

	_, err := e.Buy(context.Background(), "acct1", "ZZZZ", 1)
	if !errors.Is(err, engine.ErrInvalidSymbol) {
		t.Errorf("expected ErrInvalidSymbol for unresolvable symbol, got %v", err)
	}
}

func TestValidation_ShareCount(t *testing.T) {
	e, _, _ := newTestEnv(t, 10000)
	ctx := context.Background()

	for _, shares := range []int64{0, -1, -100} {
		_, err := e.Buy(ctx, "acct1", "AAPL", shares)
		if !errors.Is(err, engine.ErrInvalidShareCount) {
			t.Errorf("shares=%d: expected ErrInvalidShareCount, got %v", shares, err)
		}
		_, err = e.Sell(ctx, "acct1", "AAPL", shares)
		if !errors.Is(err, engine.ErrInvalidShareCount) {
			t.Errorf("shares=%d: expected ErrInvalidShareCount, got %v", shares, err)
		}
	}
}

func TestValidation_AccountNotFound(t *testing.T) {
	e, _, _ := newTestEnv(t, 10000)

	_, err := e.Buy(context.Background(), "ghost", "AAPL", 1)
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// --- End-to-end scenario ---

func TestScenario_BuySellSellOut(t *testing.T) {
	e, ms, quotes := newTestEnv(t, 10000)
	ctx := context.Background()

	// Buy 10 @ 100 → cash 9000, 10 shares.
	if _, err := e.Buy(ctx, "acct1", "AAPL", 10); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	// Sell 4 @ 120 → cash 9480, 6 shares.
	quotes.SetPrice("AAPL", d(120))
	if _, err := e.Sell(ctx, "acct1", "AAPL", 4); err != nil {
		t.Fatalf("first sell failed: %v", err)
	}

	// Sell remaining 6 @ 110 → cash 10140, position removed.
	quotes.SetPrice("AAPL", d(110))
	receipt, err := e.Sell(ctx, "acct1", "AAPL", 6)
	if err != nil {
		t.Fatalf("final sell failed: %v", err)
	}
	if !receipt.NewCashBalance.Equal(d(10140)) {
		t.Errorf("expected final cash 10140, got %s", receipt.NewCashBalance)
	}

	if p, _ := ms.GetPosition(ctx, "acct1", "AAPL"); p != nil {
		t.Errorf("expected position row removed, got %+v", p)
	}

	entries, _ := ms.ListHistory(ctx, "acct1")
	if len(entries) != 3 {
		t.Fatalf("expected exactly 3 history entries, got %d", len(entries))
	}
	var sum int64
	for _, entry := range entries {
		sum += entry.Shares
	}
	if sum != 0 {
		t.Errorf("expected signed shares to sum to 0, got %d", sum)
	}
}

func TestHistorySum_TracksPosition(t *testing.T) {
	e, ms, _ := newTestEnv(t, 100000)
	ctx := context.Background()

	trades := []struct {
		op     string
		shares int64
	}{
		{model.OperationBuy, 10},
		{model.OperationBuy, 7},
		{model.OperationSell, 5},
		{model.OperationBuy, 3},
		{model.OperationSell, 8},
	}
	for i, tr := range trades {
		var err error
		if tr.op == model.OperationBuy {
			_, err = e.Buy(ctx, "acct1", "AAPL", tr.shares)
		} else {
			_, err = e.Sell(ctx, "acct1", "AAPL", tr.shares)
		}
		if err != nil {
			t.Fatalf("trade %d failed: %v", i, err)
		}

		entries, _ := ms.ListHistory(ctx, "acct1")
		var sum int64
		for _, entry := range entries {
			sum += entry.Shares
		}
		p, _ := ms.GetPosition(ctx, "acct1", "AAPL")
		owned := int64(0)
		if p != nil {
			owned = p.Shares
		}
		if sum != owned {
			t.Errorf("after trade %d: history sum %d != position shares %d", i, sum, owned)
		}
	}
}

// --- Conflict handling ---

func TestConcurrentBuys_NoLostUpdate(t *testing.T) {
	e, ms, _ := newTestEnv(t, 10000)
	ctx := context.Background()

	// Two concurrent buys for the same account. Whichever loses the race
	// must retry against fresh state; both must land in full.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.Buy(ctx, "acct1", "AAPL", 10)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("buy %d failed: %v", i, err)
		}
	}

	a, _ := ms.GetAccount(ctx, "acct1")
	if !a.CashBalance.Equal(d(8000)) {
		t.Errorf("expected cash 8000 after both buys, got %s", a.CashBalance)
	}
	p, _ := ms.GetPosition(ctx, "acct1", "AAPL")
	if p == nil || p.Shares != 20 {
		t.Fatalf("expected 20 shares after both buys, got %+v", p)
	}
	entries, _ := ms.ListHistory(ctx, "acct1")
	if len(entries) != 2 {
		t.Errorf("expected 2 history entries, got %d", len(entries))
	}
}

// conflictStore always reports a conflict from ApplyTrade, simulating an
// account under constant concurrent modification.
type conflictStore struct {
	*ledger.MemoryStore
	attempts int
}

func (s *conflictStore) ApplyTrade(ctx context.Context, mut ledger.TradeMutation) error {
	s.attempts++
	return ledger.ErrConflict
}

func TestConflictRetriesExhausted(t *testing.T) {
	ms := ledger.NewMemoryStore()
	ms.CreateAccount(context.Background(), &model.Account{
		ID:          "acct1",
		CashBalance: d(10000),
		CreatedAt:   time.Now().UTC(),
	})
	cs := &conflictStore{MemoryStore: ms}
	quotes := quote.NewStaticProvider(map[string]decimal.Decimal{"AAPL": d(100)})
	e := engine.New(cs, quotes)

	_, err := e.Buy(context.Background(), "acct1", "AAPL", 1)
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if !errors.Is(err, ledger.ErrConflict) {
		t.Errorf("exhausted retries should carry the conflict cause, got %v", err)
	}
	if cs.attempts != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", cs.attempts)
	}
}
