package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/openfolio/ledger-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
//
// ApplyTrade enforces the same snapshot guards as PostgresStore, so
// concurrency behavior (including ErrConflict) matches the real backend.
type MemoryStore struct {
	mu        sync.RWMutex
	accounts  map[string]*model.Account
	positions map[string]*model.Position // key: accountID + "/" + symbol
	history   []model.HistoryEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[string]*model.Account),
		positions: make(map[string]*model.Position),
	}
}

func posKey(accountID, sym string) string {
	return accountID + "/" + sym
}

func (s *MemoryStore) CreateAccount(_ context.Context, a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[a.ID]; ok {
		return fmt.Errorf("account %s already exists", a.ID)
	}

	// Store a copy to avoid external mutation.
	copy := *a
	s.accounts[a.ID] = &copy
	return nil
}

func (s *MemoryStore) GetAccount(_ context.Context, id string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	copy := *a
	return &copy, nil
}

func (s *MemoryStore) GetPosition(_ context.Context, accountID, sym string) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[posKey(accountID, sym)]
	if !ok {
		return nil, nil
	}
	copy := *p
	return &copy, nil
}

func (s *MemoryStore) ListPositions(_ context.Context, accountID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var positions []model.Position
	for _, p := range s.positions {
		if p.AccountID == accountID {
			positions = append(positions, *p)
		}
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Symbol < positions[j].Symbol
	})
	return positions, nil
}

func (s *MemoryStore) ListHistory(_ context.Context, accountID string) ([]model.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []model.HistoryEntry
	for _, e := range s.history {
		if e.AccountID == accountID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (s *MemoryStore) ApplyTrade(_ context.Context, mut TradeMutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[mut.AccountID]
	if !ok {
		return fmt.Errorf("account %s: %w", mut.AccountID, ErrNotFound)
	}

	// Guard checks first: nothing is written unless every guard passes.
	if !a.CashBalance.Equal(mut.ExpectedCash) {
		return fmt.Errorf("cash balance moved for account %s: %w", mut.AccountID, ErrConflict)
	}

	key := posKey(mut.AccountID, mut.Symbol)
	p, exists := s.positions[key]
	currentShares := int64(0)
	if exists {
		currentShares = p.Shares
	}
	if currentShares != mut.ExpectedShares {
		return fmt.Errorf("position moved for %s/%s: %w", mut.AccountID, mut.Symbol, ErrConflict)
	}

	// All guards passed: apply the three sub-writes together.
	a.CashBalance = mut.NewCash

	if mut.NewShares == 0 {
		delete(s.positions, key)
	} else {
		s.positions[key] = &model.Position{
			AccountID: mut.AccountID,
			Symbol:    mut.Symbol,
			Shares:    mut.NewShares,
			CostBasis: mut.NewCostBasis,
		}
	}

	s.history = append(s.history, mut.Entry)
	return nil
}
