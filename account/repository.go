package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals that the account does not exist.
	ErrNotFound = errors.New("account: not found")
	// ErrDuplicateEmail signals that the email is already registered.
	ErrDuplicateEmail = errors.New("account: email already exists")
)

// Repository handles data access for accounts.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (Account, error)
	GetByEmail(ctx context.Context, email string) (Account, error)
	GetByAddress(ctx context.Context, address string) (Account, error)
}

// CreateParams contains write parameters for creating accounts.
type CreateParams struct {
	Email        string
	FullName     string
	PasswordHash string
	Address      string
	Role         Role
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Create(ctx context.Context, params CreateParams) (Account, error) {
	const insertSQL = `
		INSERT INTO accounts (email, full_name, password_hash, address, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, email, full_name, password_hash, address, role, created_at, updated_at
	`

	acct, err := scanAccount(r.pool.QueryRow(ctx, insertSQL,
		params.Email, params.FullName, params.PasswordHash, params.Address, params.Role))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, ErrDuplicateEmail
		}
		return Account{}, fmt.Errorf("account: create: %w", err)
	}

	return acct, nil
}

func (r *PGRepository) GetByEmail(ctx context.Context, email string) (Account, error) {
	const selectSQL = `
		SELECT id, email, full_name, password_hash, address, role, created_at, updated_at
		FROM accounts
		WHERE email = $1
	`

	acct, err := scanAccount(r.pool.QueryRow(ctx, selectSQL, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("account: get by email: %w", err)
	}

	return acct, nil
}

func (r *PGRepository) GetByAddress(ctx context.Context, address string) (Account, error) {
	const selectSQL = `
		SELECT id, email, full_name, password_hash, address, role, created_at, updated_at
		FROM accounts
		WHERE address = $1
	`

	acct, err := scanAccount(r.pool.QueryRow(ctx, selectSQL, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("account: get by address: %w", err)
	}

	return acct, nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var acct Account
	err := row.Scan(
		&acct.ID,
		&acct.Email,
		&acct.FullName,
		&acct.PasswordHash,
		&acct.Address,
		&acct.Role,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	)
	if err != nil {
		return Account{}, err
	}
	return acct, nil
}
