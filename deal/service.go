package deal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"escrowflow/metrics"
	"escrowflow/token"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store defines the data access required by the service.
type Store interface {
	InsertDeal(ctx context.Context, tx pgx.Tx, params CreateParams) (Deal, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, dealID int64) (Deal, error)
	ReleaseMilestone(ctx context.Context, tx pgx.Tx, dealID int64, index int, remaining int64, status Status) error
	MarkDisputed(ctx context.Context, tx pgx.Tx, dealID int64) error
	AppendEvent(ctx context.Context, tx pgx.Tx, dealID int64, eventType, actor string, payload map[string]any) error
	EnqueueOutbox(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// Service implements the deal lifecycle and milestone release engine. Every
// operation commits all storage mutations before any outbound transfer is
// attempted, so a reentrant or concurrent call observes the deal in its new
// state and is rejected by the ordinary guards.
type Service struct {
	pool    TxBeginner
	store   Store
	adapter token.Adapter
	escrow  string
	log     *zap.SugaredLogger
	metrics *metrics.Engine
	now     func() time.Time
}

func NewService(pool TxBeginner, store Store, adapter token.Adapter, escrowAddress string, log *zap.SugaredLogger, m *metrics.Engine) *Service {
	if store == nil {
		store = NewRepository()
	}
	return &Service{
		pool:    pool,
		store:   store,
		adapter: adapter,
		escrow:  escrowAddress,
		log:     log,
		metrics: m,
		now:     time.Now,
	}
}

// ReleaseResult reports the amounts computed for a milestone release.
type ReleaseResult struct {
	Payout int64
	Fee    int64
	Status Status
}

// Create validates, funds and stores a new deal in one step. caller becomes
// the payer; funds are pulled before the deal row exists, and the insert is
// compensated with a refund if it cannot be committed.
func (s *Service) Create(ctx context.Context, caller string, params CreateParams) (int64, error) {
	params.Payer = caller

	if params.Amount <= 0 {
		return 0, ErrZeroAmount
	}
	if caller == "" || params.Payee == "" || params.Arbiter == "" {
		return 0, ErrZeroAddress
	}
	n := len(params.MilestoneAmounts)
	if len(params.MilestoneEndTimes) != n || len(params.MilestoneApprovals) != n {
		return 0, ErrLengthMismatch
	}
	if n == 0 {
		return 0, ErrNoMilestones
	}
	var sum int64
	for _, amt := range params.MilestoneAmounts {
		if amt < 0 {
			return 0, ErrZeroAmount
		}
		sum += amt
	}
	if sum != params.Amount {
		return 0, ErrSumMismatch
	}

	if params.Currency == token.Native && params.AttachedValue != params.Amount {
		return 0, ErrValueMismatch
	}

	// Collect the funds before creating the deal; a failed pull aborts the
	// whole operation with nothing stored.
	if err := s.adapter.TransferFrom(ctx, params.Currency, caller, s.escrow, params.Amount); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	dealID, err := s.createFunded(ctx, caller, params)
	if err != nil {
		// Funds were pulled but the deal never existed; send them back.
		if refundErr := s.adapter.Transfer(ctx, params.Currency, caller, params.Amount); refundErr != nil {
			s.log.Errorw("refund after failed deal insert", "payer", caller, "amount", params.Amount, "err", refundErr)
		}
		return 0, err
	}

	if s.metrics != nil {
		s.metrics.DealsCreated.Inc()
	}
	return dealID, nil
}

func (s *Service) createFunded(ctx context.Context, caller string, params CreateParams) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("deal: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.store.InsertDeal(ctx, tx, params)
	if err != nil {
		return 0, err
	}

	payload := map[string]any{
		"deal_id":  d.ID,
		"payer":    d.Payer,
		"payee":    d.Payee,
		"arbiter":  d.Arbiter,
		"currency": d.Currency,
		"amount":   params.Amount,
	}
	if err := s.store.AppendEvent(ctx, tx, d.ID, EventDealCreated, caller, payload); err != nil {
		return 0, err
	}
	if err := s.store.EnqueueOutbox(ctx, tx, TopicDealCreated, payload); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("deal: commit create: %w", err)
	}
	return d.ID, nil
}

// ReleaseMilestone pays out one milestone. The payer may always release; any
// other caller needs the milestone to be free of manual approval and past its
// time lock. State is committed before the payout transfer, and a failed
// transfer is recorded but never rolled back.
func (s *Service) ReleaseMilestone(ctx context.Context, caller string, dealID int64, index int) (ReleaseResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ReleaseResult{}, fmt.Errorf("deal: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.store.GetForUpdate(ctx, tx, dealID)
	if err != nil {
		return ReleaseResult{}, err
	}
	if !d.Status.releasable() {
		return ReleaseResult{}, ErrBadStatus
	}
	if index < 0 || index >= len(d.Milestones) {
		return ReleaseResult{}, ErrBadIndex
	}
	m := d.Milestones[index]
	if m.Released {
		return ReleaseResult{}, ErrAlreadyReleased
	}

	if caller != d.Payer {
		if m.RequiresApproval {
			return ReleaseResult{}, ErrNotAuthorized
		}
		if m.EndTime != nil && s.now().Before(*m.EndTime) {
			return ReleaseResult{}, ErrTimeLocked
		}
	}

	remaining := d.RemainingAmount - m.Amount
	status := StatusActive
	if remaining == 0 {
		status = StatusCompleted
	}

	if err := s.store.ReleaseMilestone(ctx, tx, dealID, index, remaining, status); err != nil {
		return ReleaseResult{}, err
	}

	fee := ReleaseFee(m.Amount)
	payout := m.Amount - fee

	payload := map[string]any{
		"deal_id": dealID,
		"index":   index,
		"payee":   d.Payee,
		"amount":  payout,
		"fee":     fee,
		"status":  status.String(),
	}
	if err := s.store.AppendEvent(ctx, tx, dealID, EventMilestoneReleased, caller, payload); err != nil {
		return ReleaseResult{}, err
	}
	if err := s.store.EnqueueOutbox(ctx, tx, TopicMilestoneReleased, payload); err != nil {
		return ReleaseResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return ReleaseResult{}, fmt.Errorf("deal: commit release: %w", err)
	}

	if payout > 0 {
		if err := s.adapter.Transfer(ctx, d.Currency, d.Payee, payout); err != nil {
			s.noteTransferFailure(ctx, dealID, "milestone_payout", d.Payee, payout, err)
		}
	}

	if s.metrics != nil {
		s.metrics.MilestonesReleased.Inc()
	}
	return ReleaseResult{Payout: payout, Fee: fee, Status: status}, nil
}

// RaiseDispute escalates a deal. Only the payer or payee may open a dispute,
// and only while funds remain unreleased.
func (s *Service) RaiseDispute(ctx context.Context, caller string, dealID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("deal: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.store.GetForUpdate(ctx, tx, dealID)
	if err != nil {
		return err
	}
	if !d.Status.releasable() {
		return ErrBadStatus
	}
	if caller != d.Payer && caller != d.Payee {
		return ErrNotAuthorized
	}

	if err := s.store.MarkDisputed(ctx, tx, dealID); err != nil {
		return err
	}

	payload := map[string]any{
		"deal_id":   dealID,
		"initiator": caller,
	}
	if err := s.store.AppendEvent(ctx, tx, dealID, EventDisputeRaised, caller, payload); err != nil {
		return err
	}
	if err := s.store.EnqueueOutbox(ctx, tx, TopicDisputeRaised, payload); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("deal: commit dispute: %w", err)
	}

	if s.metrics != nil {
		s.metrics.DisputesRaised.Inc()
	}
	return nil
}

// noteTransferFailure records a failed post-commit payout. The committed
// ledger state stands; the failure is surfaced for operators only.
func (s *Service) noteTransferFailure(ctx context.Context, dealID int64, leg, recipient string, amount int64, cause error) {
	s.log.Errorw("payout transfer failed after commit",
		"deal_id", dealID, "leg", leg, "recipient", recipient, "amount", amount, "err", cause)
	if s.metrics != nil {
		s.metrics.TransferFailures.Inc()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return
	}
	defer tx.Rollback(ctx)
	payload := map[string]any{
		"deal_id":   dealID,
		"leg":       leg,
		"recipient": recipient,
		"amount":    amount,
		"error":     cause.Error(),
	}
	if err := s.store.AppendEvent(ctx, tx, dealID, EventTransferFailed, "", payload); err != nil {
		return
	}
	_ = tx.Commit(ctx)
}
