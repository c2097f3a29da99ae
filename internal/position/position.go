// Package position computes the read-side of the ledger: resulting share
// counts and cost basis for a proposed trade. All functions are pure and
// deterministic — no store access, no side effects.
//
// Cost basis follows the average-cost model: buys add shares×price to the
// basis; partial sells reduce the basis proportionally to the shares sold,
// not by the sale proceeds. FIFO lot tracking is deliberately not used.
//
// All monetary values use shopspring/decimal — never float64 for money.
package position

import (
	"github.com/shopspring/decimal"

	"github.com/openfolio/ledger-engine/internal/model"
)

// basisScale is the number of decimal places cost basis is rounded to
// after proportional reduction.
const basisScale int32 = 4

// SharesOwned returns the share count of a position, or 0 if the position
// is absent (nil).
func SharesOwned(p *model.Position) int64 {
	if p == nil {
		return 0
	}
	return p.Shares
}

// AfterBuy returns the position resulting from buying shares at unitPrice.
// For a first buy, current is nil and a fresh position is created.
//
//	shares'     = shares + delta
//	cost_basis' = cost_basis + delta × unitPrice
func AfterBuy(current *model.Position, accountID, sym string, shares int64, unitPrice decimal.Decimal) model.Position {
	cost := unitPrice.Mul(decimal.NewFromInt(shares))
	if current == nil {
		return model.Position{
			AccountID: accountID,
			Symbol:    sym,
			Shares:    shares,
			CostBasis: cost,
		}
	}
	return model.Position{
		AccountID: current.AccountID,
		Symbol:    current.Symbol,
		Shares:    current.Shares + shares,
		CostBasis: current.CostBasis.Add(cost),
	}
}

// AfterSell returns the position resulting from selling shares, and whether
// the position is closed (shares reached 0). Callers must have already
// checked that current.Shares >= shares.
//
//	shares'     = shares - delta
//	cost_basis' = cost_basis × shares' / shares   (proportional reduction)
//
// A closed position carries zero shares and zero basis; the store deletes
// the row rather than persisting it.
func AfterSell(current model.Position, shares int64) (model.Position, bool) {
	remaining := current.Shares - shares
	if remaining <= 0 {
		return model.Position{
			AccountID: current.AccountID,
			Symbol:    current.Symbol,
			Shares:    0,
			CostBasis: decimal.Zero,
		}, true
	}

	ratio := decimal.NewFromInt(remaining).Div(decimal.NewFromInt(current.Shares))
	return model.Position{
		AccountID: current.AccountID,
		Symbol:    current.Symbol,
		Shares:    remaining,
		CostBasis: current.CostBasis.Mul(ratio).Round(basisScale),
	}, false
}

// AverageCost returns the per-share average cost of a position.
// Returns zero for an empty position.
func AverageCost(p model.Position) decimal.Decimal {
	if p.Shares <= 0 {
		return decimal.Zero
	}
	return p.CostBasis.Div(decimal.NewFromInt(p.Shares)).Round(basisScale)
}
