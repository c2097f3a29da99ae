// Package web provides the HTTP handlers for accounts, quotes, trades,
// history, and portfolio queries.
//
// All monetary values use shopspring/decimal — never float64 for money.
package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openfolio/ledger-engine/internal/engine"
	"github.com/openfolio/ledger-engine/internal/ledger"
	"github.com/openfolio/ledger-engine/internal/model"
	"github.com/openfolio/ledger-engine/internal/position"
	"github.com/openfolio/ledger-engine/internal/quote"
	"github.com/openfolio/ledger-engine/internal/symbol"
)

// defaultStartingCash is the cash balance a new account is seeded with
// when the request does not specify one.
var defaultStartingCash = decimal.NewFromInt(10000)

// Service handles the HTTP API. Trade execution is delegated to the engine;
// read-side queries go straight to the store.
type Service struct {
	store        ledger.Store
	quotes       quote.Provider
	engine       *engine.Engine
	hub          *FeedHub // optional WebSocket hub for trade broadcasts
	startingCash decimal.Decimal
}

// NewService creates a new web service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(store ledger.Store, quotes quote.Provider, eng *engine.Engine, hub *FeedHub) *Service {
	return &Service{
		store:        store,
		quotes:       quotes,
		engine:       eng,
		hub:          hub,
		startingCash: defaultStartingCash,
	}
}

// --- Request types ---

// CreateAccountRequest is the JSON body for account creation.
type CreateAccountRequest struct {
	StartingCash decimal.Decimal `json:"starting_cash"` // 0 → default 10000
}

// TradeRequest is the JSON body for POST /accounts/{accountID}/buy and /sell.
type TradeRequest struct {
	Symbol string `json:"symbol"`
	Shares int64  `json:"shares"`
}

// --- HTTP Handlers ---

// CreateAccount handles POST /api/v1/accounts
func (s *Service) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	cash := req.StartingCash
	if cash.LessThanOrEqual(decimal.Zero) {
		cash = s.startingCash
	}

	account := &model.Account{
		ID:          uuid.New().String(),
		CashBalance: cash,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.store.CreateAccount(r.Context(), account); err != nil {
		writeError(w, "failed to create account", http.StatusInternalServerError)
		return
	}

	slog.Info("account created", "id", account.ID, "cash", cash.String())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(account)
}

// GetAccount handles GET /api/v1/accounts/{accountID}
func (s *Service) GetAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	account, err := s.store.GetAccount(r.Context(), accountID)
	if err != nil {
		writeError(w, "account not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}

// GetQuote handles GET /api/v1/quote/{symbol}
func (s *Service) GetQuote(w http.ResponseWriter, r *http.Request) {
	sym, err := symbol.Normalize(chi.URLParam(r, "symbol"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	q, err := s.quotes.Lookup(r.Context(), sym)
	if err != nil {
		writeError(w, "invalid symbol: "+sym, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(q)
}

// Buy handles POST /api/v1/accounts/{accountID}/buy
func (s *Service) Buy(w http.ResponseWriter, r *http.Request) {
	s.trade(w, r, model.OperationBuy)
}

// Sell handles POST /api/v1/accounts/{accountID}/sell
func (s *Service) Sell(w http.ResponseWriter, r *http.Request) {
	s.trade(w, r, model.OperationSell)
}

func (s *Service) trade(w http.ResponseWriter, r *http.Request, op string) {
	accountID := chi.URLParam(r, "accountID")

	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var receipt *model.TradeReceipt
	var err error
	if op == model.OperationBuy {
		receipt, err = s.engine.Buy(r.Context(), accountID, req.Symbol, req.Shares)
	} else {
		receipt, err = s.engine.Sell(r.Context(), accountID, req.Symbol, req.Shares)
	}
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	if s.hub != nil {
		s.hub.Broadcast(FeedMessage{
			Type:       "trade_executed",
			AccountID:  accountID,
			Symbol:     receipt.Symbol,
			Operation:  op,
			Shares:     receipt.Shares,
			UnitPrice:  receipt.UnitPrice.String(),
			TotalPrice: receipt.TotalPrice.String(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(receipt)
}

// GetHistory handles GET /api/v1/accounts/{accountID}/history
func (s *Service) GetHistory(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	if _, err := s.store.GetAccount(r.Context(), accountID); err != nil {
		writeError(w, "account not found", http.StatusNotFound)
		return
	}

	entries, err := s.store.ListHistory(r.Context(), accountID)
	if err != nil {
		writeError(w, "failed to load history", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.HistoryEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// GetPortfolio handles GET /api/v1/accounts/{accountID}/portfolio
// Returns the account's holdings marked to current prices, plus cash and
// the grand total.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	ctx := r.Context()

	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		writeError(w, "account not found", http.StatusNotFound)
		return
	}

	positions, err := s.store.ListPositions(ctx, accountID)
	if err != nil {
		writeError(w, "failed to load positions", http.StatusInternalServerError)
		return
	}

	holdings := make([]model.Holding, 0, len(positions))
	total := account.CashBalance

	for _, p := range positions {
		h := model.Holding{
			Symbol:    p.Symbol,
			Shares:    p.Shares,
			CostBasis: p.CostBasis,
		}

		// Mark to market. If the provider is down, fall back to the
		// average cost so the portfolio view stays serviceable.
		q, err := s.quotes.Lookup(ctx, p.Symbol)
		if err != nil {
			h.Name = p.Symbol
			h.Price = position.AverageCost(p)
		} else {
			h.Name = q.Name
			h.Price = q.Price
		}

		h.MarketValue = h.Price.Mul(decimal.NewFromInt(p.Shares))
		total = total.Add(h.MarketValue)
		holdings = append(holdings, h)
	}

	portfolio := model.Portfolio{
		AccountID:   accountID,
		Holdings:    holdings,
		CashBalance: account.CashBalance,
		TotalValue:  total,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(portfolio)
}

// statusFor maps trade engine errors to HTTP status codes. Validation
// failures are client errors; conflicts that survived the retry bound and
// storage failures are server errors.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidSymbol),
		errors.Is(err, engine.ErrInvalidShareCount):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrInsufficientFunds),
		errors.Is(err, engine.ErrInsufficientShares):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
