package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/openfolio/ledger-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
//
// Expected schema:
//
//	accounts  (id TEXT PRIMARY KEY, cash_balance NUMERIC NOT NULL, created_at TIMESTAMPTZ NOT NULL)
//	positions (account_id TEXT, symbol TEXT, shares BIGINT NOT NULL, cost_basis NUMERIC NOT NULL,
//	           UNIQUE (account_id, symbol))
//	history   (id TEXT PRIMARY KEY, account_id TEXT, symbol TEXT, shares BIGINT NOT NULL,
//	           unit_price NUMERIC NOT NULL, total_price NUMERIC NOT NULL,
//	           operation TEXT NOT NULL, transacted_at TIMESTAMPTZ NOT NULL)
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateAccount(ctx context.Context, a *model.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, cash_balance, created_at)
		 VALUES ($1, $2::NUMERIC, $3)`,
		a.ID, a.CashBalance.String(), a.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	var a model.Account
	var cash string

	err := s.pool.QueryRow(ctx,
		`SELECT id, cash_balance::TEXT, created_at
		 FROM accounts WHERE id = $1`, id).
		Scan(&a.ID, &cash, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}

	a.CashBalance, _ = decimal.NewFromString(cash)
	return &a, nil
}

func (s *PostgresStore) GetPosition(ctx context.Context, accountID, sym string) (*model.Position, error) {
	var p model.Position
	var basis string

	err := s.pool.QueryRow(ctx,
		`SELECT account_id, symbol, shares, cost_basis::TEXT
		 FROM positions WHERE account_id = $1 AND symbol = $2`, accountID, sym).
		Scan(&p.AccountID, &p.Symbol, &p.Shares, &basis)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get position %s/%s: %w", accountID, sym, err)
	}

	p.CostBasis, _ = decimal.NewFromString(basis)
	return &p, nil
}

func (s *PostgresStore) ListPositions(ctx context.Context, accountID string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT account_id, symbol, shares, cost_basis::TEXT
		 FROM positions WHERE account_id = $1 ORDER BY symbol`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var p model.Position
		var basis string
		if err := rows.Scan(&p.AccountID, &p.Symbol, &p.Shares, &basis); err != nil {
			return nil, err
		}
		p.CostBasis, _ = decimal.NewFromString(basis)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (s *PostgresStore) ListHistory(ctx context.Context, accountID string) ([]model.HistoryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, symbol, shares,
		        unit_price::TEXT, total_price::TEXT, operation, transacted_at
		 FROM history WHERE account_id = $1 ORDER BY transacted_at, id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.HistoryEntry
	for rows.Next() {
		var e model.HistoryEntry
		var unit, total string
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Symbol, &e.Shares,
			&unit, &total, &e.Operation, &e.TransactedAt); err != nil {
			return nil, err
		}
		e.UnitPrice, _ = decimal.NewFromString(unit)
		e.TotalPrice, _ = decimal.NewFromString(total)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ApplyTrade runs the three sub-writes in one transaction. Each write is
// guarded by the mutation's read snapshot: the cash update requires the
// balance to still equal ExpectedCash, and the position write requires the
// share count to still equal ExpectedShares. A zero-row result on a guarded
// write means another trade landed in between — the transaction rolls back
// and ErrConflict is returned.
func (s *PostgresStore) ApplyTrade(ctx context.Context, mut TradeMutation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin trade tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// 1. Cash balance, guarded by the snapshot value.
	ct, err := tx.Exec(ctx,
		`UPDATE accounts SET cash_balance = $3::NUMERIC
		 WHERE id = $1 AND cash_balance = $2::NUMERIC`,
		mut.AccountID, mut.ExpectedCash.String(), mut.NewCash.String(),
	)
	if err != nil {
		return fmt.Errorf("update cash for %s: %w", mut.AccountID, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("cash balance moved for account %s: %w", mut.AccountID, ErrConflict)
	}

	// 2. Position row: insert, update, or delete, each guarded the same way.
	switch {
	case mut.ExpectedShares == 0:
		// First buy of this symbol. ON CONFLICT DO NOTHING turns a race
		// with another first buy into a zero-row result.
		ct, err = tx.Exec(ctx,
			`INSERT INTO positions (account_id, symbol, shares, cost_basis)
			 VALUES ($1, $2, $3, $4::NUMERIC)
			 ON CONFLICT (account_id, symbol) DO NOTHING`,
			mut.AccountID, mut.Symbol, mut.NewShares, mut.NewCostBasis.String(),
		)
	case mut.NewShares == 0:
		// Full sell: the row must go away, never persist with zero shares.
		ct, err = tx.Exec(ctx,
			`DELETE FROM positions
			 WHERE account_id = $1 AND symbol = $2 AND shares = $3`,
			mut.AccountID, mut.Symbol, mut.ExpectedShares,
		)
	default:
		ct, err = tx.Exec(ctx,
			`UPDATE positions SET shares = $4, cost_basis = $5::NUMERIC
			 WHERE account_id = $1 AND symbol = $2 AND shares = $3`,
			mut.AccountID, mut.Symbol, mut.ExpectedShares,
			mut.NewShares, mut.NewCostBasis.String(),
		)
	}
	if err != nil {
		return fmt.Errorf("write position %s/%s: %w", mut.AccountID, mut.Symbol, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("position moved for %s/%s: %w", mut.AccountID, mut.Symbol, ErrConflict)
	}

	// 3. Append the immutable history record.
	e := mut.Entry
	_, err = tx.Exec(ctx,
		`INSERT INTO history (id, account_id, symbol, shares, unit_price, total_price, operation, transacted_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7, $8)`,
		e.ID, e.AccountID, e.Symbol, e.Shares,
		e.UnitPrice.String(), e.TotalPrice.String(), e.Operation, e.TransactedAt,
	)
	if err != nil {
		return fmt.Errorf("append history for %s: %w", mut.AccountID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit trade tx: %w", err)
	}
	return nil
}
