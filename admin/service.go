// Package admin owns the singleton engine configuration: the administrator
// address and the arbiter registry settings. Everything is set once at
// initialization and read-only afterwards, except a one-time admin transfer.
package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"escrowflow/token"
)

var (
	ErrNotAdmin       = errors.New("admin: caller is not admin")
	ErrZeroAddress    = errors.New("admin: empty address")
	ErrNativeStaking  = errors.New("admin: staking currency must be a token currency")
	ErrNotInitialized = errors.New("admin: registry not initialized")
)

type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// Initialize seeds the admin address. A second call is a silent no-op, the
// stored admin always wins.
func (s *Service) Initialize(ctx context.Context, adminAddress string) error {
	if adminAddress == "" {
		return ErrZeroAddress
	}
	if _, err := s.pool.Exec(ctx, `
UPDATE engine_config
SET admin_address = $1, updated_at = get_tx_timestamp()
WHERE id = 1 AND admin_address = ''
`, adminAddress); err != nil {
		return fmt.Errorf("admin: initialize: %w", err)
	}
	return nil
}

// InitializeRegistry sets the staking currency and minimum stake once. The
// registry only accepts token currencies, never the native sentinel.
func (s *Service) InitializeRegistry(ctx context.Context, stakingCurrency string, minStake int64) error {
	if stakingCurrency == "" || stakingCurrency == token.Native {
		return ErrNativeStaking
	}
	if minStake < 0 {
		return fmt.Errorf("admin: negative min stake")
	}
	if _, err := s.pool.Exec(ctx, `
UPDATE engine_config
SET staking_currency = $1, min_stake = $2, updated_at = get_tx_timestamp()
WHERE id = 1 AND staking_currency = ''
`, stakingCurrency, minStake); err != nil {
		return fmt.Errorf("admin: initialize registry: %w", err)
	}
	return nil
}

// Admin returns the current administrator address.
func (s *Service) Admin(ctx context.Context) (string, error) {
	var addr string
	if err := s.pool.QueryRow(ctx, `SELECT admin_address FROM engine_config WHERE id = 1`).Scan(&addr); err != nil {
		return "", fmt.Errorf("admin: read admin: %w", err)
	}
	return addr, nil
}

// TransferAdmin hands the admin role to a new address. Admin-only.
func (s *Service) TransferAdmin(ctx context.Context, caller, newAdmin string) error {
	if newAdmin == "" {
		return ErrZeroAddress
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE engine_config
SET admin_address = $2, updated_at = get_tx_timestamp()
WHERE id = 1 AND admin_address = $1
`, caller, newAdmin)
	if err != nil {
		return fmt.Errorf("admin: transfer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotAdmin
	}
	return nil
}

// RequireAdmin fails unless caller is the stored admin.
func (s *Service) RequireAdmin(ctx context.Context, caller string) error {
	admin, err := s.Admin(ctx)
	if err != nil {
		return err
	}
	if caller == "" || caller != admin {
		return ErrNotAdmin
	}
	return nil
}

// RegistrySettings returns the staking currency and minimum stake.
func (s *Service) RegistrySettings(ctx context.Context) (string, int64, error) {
	var (
		currency string
		minStake int64
	)
	if err := s.pool.QueryRow(ctx,
		`SELECT staking_currency, min_stake FROM engine_config WHERE id = 1`,
	).Scan(&currency, &minStake); err != nil {
		return "", 0, fmt.Errorf("admin: read registry settings: %w", err)
	}
	if currency == "" {
		return "", 0, ErrNotInitialized
	}
	return currency, minStake, nil
}
