package token

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ledger is the Postgres-backed Adapter. Balances live in the balances table
// keyed by (address, currency); the custody account is the address that holds
// escrowed funds on behalf of the engine.
type Ledger struct {
	pool    *pgxpool.Pool
	custody string
}

func NewLedger(pool *pgxpool.Pool, custodyAddress string) *Ledger {
	return &Ledger{pool: pool, custody: custodyAddress}
}

// Transfer sends amount from the custody account to recipient.
func (l *Ledger) Transfer(ctx context.Context, currency, recipient string, amount int64) error {
	return l.TransferFrom(ctx, currency, l.custody, recipient, amount)
}

// TransferFrom pulls amount from sender into recipient. Debit and credit
// commit atomically; an uncovered debit leaves both balances untouched.
func (l *Ledger) TransferFrom(ctx context.Context, currency, sender, recipient string, amount int64) error {
	if amount <= 0 {
		return ErrBadAmount
	}
	if sender == "" || recipient == "" {
		return fmt.Errorf("token: empty transfer party")
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("token: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance int64
	err = tx.QueryRow(ctx,
		`SELECT amount FROM balances WHERE address=$1 AND currency=$2 FOR UPDATE`,
		sender, currency,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrInsufficientFunds
	}
	if err != nil {
		return fmt.Errorf("token: lock sender balance: %w", err)
	}
	if balance < amount {
		return ErrInsufficientFunds
	}

	if _, err := tx.Exec(ctx,
		`UPDATE balances SET amount = amount - $3 WHERE address=$1 AND currency=$2`,
		sender, currency, amount,
	); err != nil {
		return fmt.Errorf("token: debit sender: %w", err)
	}

	if _, err := tx.Exec(ctx, `
        INSERT INTO balances (address, currency, amount)
        VALUES ($1, $2, $3)
        ON CONFLICT (address, currency) DO UPDATE SET amount = balances.amount + EXCLUDED.amount
    `, recipient, currency, amount); err != nil {
		return fmt.Errorf("token: credit recipient: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("token: commit transfer: %w", err)
	}
	return nil
}

// Deposit credits freshly issued funds to an address. It backs account
// funding flows and test fixtures; settlement operations never mint.
func (l *Ledger) Deposit(ctx context.Context, address, currency string, amount int64) error {
	if amount <= 0 {
		return ErrBadAmount
	}
	if _, err := l.pool.Exec(ctx, `
        INSERT INTO balances (address, currency, amount)
        VALUES ($1, $2, $3)
        ON CONFLICT (address, currency) DO UPDATE SET amount = balances.amount + EXCLUDED.amount
    `, address, currency, amount); err != nil {
		return fmt.Errorf("token: deposit: %w", err)
	}
	return nil
}

// Balance reads the current amount for an address, zero when the address has
// never held the currency.
func (l *Ledger) Balance(ctx context.Context, address, currency string) (int64, error) {
	var balance int64
	err := l.pool.QueryRow(ctx,
		`SELECT amount FROM balances WHERE address=$1 AND currency=$2`,
		address, currency,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("token: read balance: %w", err)
	}
	return balance, nil
}
