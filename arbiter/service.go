package arbiter

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"escrowflow/metrics"
	"escrowflow/token"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store defines the data access required by the registry service.
type Store interface {
	UpsertStake(ctx context.Context, tx pgx.Tx, address string, amount int64) (Profile, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, address string) (Profile, error)
	ApplySlash(ctx context.Context, tx pgx.Tx, address string, stake int64, reputation int, active bool) error
	Get(ctx context.Context, address string) (Profile, error)
	AppendRegistryEvent(ctx context.Context, tx pgx.Tx, eventType, actor string, payload map[string]any) error
	EnqueueOutbox(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// Config exposes the registry settings and the admin gate.
type Config interface {
	RegistrySettings(ctx context.Context) (stakingCurrency string, minStake int64, err error)
	RequireAdmin(ctx context.Context, caller string) error
}

// Service is the arbiter bonding and reputation registry. It is independent
// of any specific deal: it gates who may credibly be designated an arbiter
// and penalizes misconduct after the fact.
type Service struct {
	pool    TxBeginner
	store   Store
	cfg     Config
	adapter token.Adapter
	custody string
	log     *zap.SugaredLogger
	metrics *metrics.Engine
}

func NewService(pool TxBeginner, store Store, cfg Config, adapter token.Adapter, custodyAddress string, log *zap.SugaredLogger, m *metrics.Engine) *Service {
	return &Service{
		pool:    pool,
		store:   store,
		cfg:     cfg,
		adapter: adapter,
		custody: custodyAddress,
		log:     log,
		metrics: m,
	}
}

// Register stakes amount for the caller. The first stake creates the profile
// with reputation 100; repeat stakes are additive. Staking goes through the
// token path only; the registry never accepts native currency.
func (s *Service) Register(ctx context.Context, caller string, amount int64) (Profile, error) {
	currency, minStake, err := s.cfg.RegistrySettings(ctx)
	if err != nil {
		return Profile{}, err
	}
	if amount < minStake {
		return Profile{}, ErrLowStake
	}

	if err := s.adapter.TransferFrom(ctx, currency, caller, s.custody, amount); err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	profile, err := s.recordStake(ctx, caller, amount)
	if err != nil {
		if refundErr := s.adapter.Transfer(ctx, currency, caller, amount); refundErr != nil {
			s.log.Errorw("refund after failed stake insert", "arbiter", caller, "amount", amount, "err", refundErr)
		}
		return Profile{}, err
	}

	if s.metrics != nil {
		s.metrics.ArbitersRegistered.Inc()
	}
	return profile, nil
}

func (s *Service) recordStake(ctx context.Context, caller string, amount int64) (Profile, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Profile{}, fmt.Errorf("arbiter: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	profile, err := s.store.UpsertStake(ctx, tx, caller, amount)
	if err != nil {
		return Profile{}, err
	}

	payload := map[string]any{
		"arbiter": caller,
		"amount":  amount,
		"stake":   profile.Stake,
	}
	if err := s.store.AppendRegistryEvent(ctx, tx, EventArbiterRegistered, caller, payload); err != nil {
		return Profile{}, err
	}
	if err := s.store.EnqueueOutbox(ctx, tx, TopicArbiterRegistered, payload); err != nil {
		return Profile{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Profile{}, fmt.Errorf("arbiter: commit stake: %w", err)
	}
	return profile, nil
}

// Slash deducts stake and reputation from a misbehaving arbiter. Admin only.
// Slashed funds stay debited from the recorded stake; no destination is
// defined for them here.
func (s *Service) Slash(ctx context.Context, caller, address string, amount int64, reason SlashReason) (Profile, error) {
	if err := s.cfg.RequireAdmin(ctx, caller); err != nil {
		return Profile{}, err
	}
	if amount < 0 {
		return Profile{}, ErrBadAmount
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Profile{}, fmt.Errorf("arbiter: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := s.store.GetForUpdate(ctx, tx, address)
	if err != nil {
		return Profile{}, err
	}
	if p.Stake < amount {
		return Profile{}, ErrLowStake
	}

	p.Stake -= amount
	penalty := reason.Penalty()
	if p.Reputation > penalty {
		p.Reputation -= penalty
	} else {
		p.Reputation = 0
		p.Active = false
	}

	if err := s.store.ApplySlash(ctx, tx, address, p.Stake, p.Reputation, p.Active); err != nil {
		return Profile{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Profile{}, fmt.Errorf("arbiter: commit slash: %w", err)
	}

	s.log.Infow("arbiter slashed",
		"arbiter", address, "amount", amount, "reason", reason.String(),
		"stake", p.Stake, "reputation", p.Reputation, "active", p.Active)
	if s.metrics != nil {
		s.metrics.ArbitersSlashed.Inc()
	}
	return p, nil
}

// Status returns (active, stake, reputation) for an address. An address that
// never staked reads as an inactive all-zero profile, mirroring the
// default-valued mapping read of the original registry.
func (s *Service) Status(ctx context.Context, address string) (Profile, error) {
	p, err := s.store.Get(ctx, address)
	if errors.Is(err, ErrNotFound) {
		return Profile{Address: address}, nil
	}
	if err != nil {
		return Profile{}, err
	}
	return p, nil
}
