package dispute

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"escrowflow/deal"
	"escrowflow/metrics"
	"escrowflow/token"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store defines the data access required by the resolution service.
type Store interface {
	GetDealForUpdate(ctx context.Context, tx pgx.Tx, dealID int64) (deal.Deal, error)
	MarkResolved(ctx context.Context, tx pgx.Tx, dealID int64, ruling deal.Ruling) error
	CreditResolution(ctx context.Context, tx pgx.Tx, arbiter string) error
	AppendEvent(ctx context.Context, tx pgx.Tx, dealID int64, eventType, actor string, payload map[string]any) error
	EnqueueOutbox(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// Service is the dispute resolution engine. Resolving is the single, final
// decision point for a dispute: the ruling is committed before any payout
// leg runs, and no appeal path exists.
type Service struct {
	pool    TxBeginner
	store   Store
	adapter token.Adapter
	log     *zap.SugaredLogger
	metrics *metrics.Engine
}

func NewService(pool TxBeginner, store Store, adapter token.Adapter, log *zap.SugaredLogger, m *metrics.Engine) *Service {
	if store == nil {
		store = NewRepository()
	}
	return &Service{pool: pool, store: store, adapter: adapter, log: log, metrics: m}
}

// Resolve applies the arbiter's binding split ruling. The arbiter may award
// less than the remaining balance but never more; a 5% resolution fee is
// deducted independently from each share and paid to the arbiter on the
// total.
func (s *Service) Resolve(ctx context.Context, caller string, dealID, payerShare, payeeShare int64) (Resolution, error) {
	if payerShare < 0 || payeeShare < 0 {
		return Resolution{}, ErrBadShare
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("dispute: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.store.GetDealForUpdate(ctx, tx, dealID)
	if err != nil {
		return Resolution{}, err
	}
	if d.Status != deal.StatusDisputed {
		return Resolution{}, ErrNotDisputed
	}
	if d.Resolved {
		return Resolution{}, ErrAlreadyResolved
	}
	if caller != d.Arbiter {
		return Resolution{}, ErrNotArbiter
	}

	totalPayout := payerShare + payeeShare
	if totalPayout > d.RemainingAmount {
		return Resolution{}, ErrOverRemaining
	}

	res := Resolution{
		DealID:   dealID,
		NetPayer: payerShare - deal.ResolutionFee(payerShare),
		NetPayee: payeeShare - deal.ResolutionFee(payeeShare),
		Fee:      deal.ResolutionFee(totalPayout),
	}
	switch {
	case payerShare > payeeShare:
		res.Ruling = deal.RulingPayer
	case payeeShare > payerShare:
		res.Ruling = deal.RulingPayee
	default:
		res.Ruling = deal.RulingSplit
	}

	if err := s.store.MarkResolved(ctx, tx, dealID, res.Ruling); err != nil {
		return Resolution{}, err
	}
	if err := s.store.CreditResolution(ctx, tx, d.Arbiter); err != nil {
		return Resolution{}, err
	}

	payload := map[string]any{
		"deal_id":      dealID,
		"payer_amount": res.NetPayer,
		"payee_amount": res.NetPayee,
		"arbiter_fee":  res.Fee,
		"ruling":       res.Ruling.String(),
	}
	if err := s.store.AppendEvent(ctx, tx, dealID, deal.EventDisputeResolved, caller, payload); err != nil {
		return Resolution{}, err
	}
	if err := s.store.EnqueueOutbox(ctx, tx, deal.TopicDisputeResolved, payload); err != nil {
		return Resolution{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Resolution{}, fmt.Errorf("dispute: commit resolution: %w", err)
	}

	// Payout legs run strictly after commit; failures are recorded, never
	// rolled back.
	s.payLeg(ctx, dealID, d.Currency, "payer_share", d.Payer, res.NetPayer)
	s.payLeg(ctx, dealID, d.Currency, "payee_share", d.Payee, res.NetPayee)
	s.payLeg(ctx, dealID, d.Currency, "arbiter_fee", d.Arbiter, res.Fee)

	if s.metrics != nil {
		s.metrics.DisputesResolved.Inc()
	}
	return res, nil
}

func (s *Service) payLeg(ctx context.Context, dealID int64, currency, leg, recipient string, amount int64) {
	if amount <= 0 {
		return
	}
	err := s.adapter.Transfer(ctx, currency, recipient, amount)
	if err == nil {
		return
	}

	s.log.Errorw("resolution payout failed after commit",
		"deal_id", dealID, "leg", leg, "recipient", recipient, "amount", amount, "err", err)
	if s.metrics != nil {
		s.metrics.TransferFailures.Inc()
	}

	tx, beginErr := s.pool.Begin(ctx)
	if beginErr != nil {
		return
	}
	defer tx.Rollback(ctx)
	payload := map[string]any{
		"deal_id":   dealID,
		"leg":       leg,
		"recipient": recipient,
		"amount":    amount,
		"error":     err.Error(),
	}
	if appendErr := s.store.AppendEvent(ctx, tx, dealID, deal.EventTransferFailed, "", payload); appendErr != nil {
		return
	}
	_ = tx.Commit(ctx)
}
