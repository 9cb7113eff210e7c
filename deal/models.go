package deal

import "time"

// Deal is a custodial agreement between a payer and a payee with funds held
// by the engine. Rows are permanent ledger entries; terminal states are
// Completed and Cancelled.
type Deal struct {
	ID              int64
	RefID           string
	Payer           string
	Payee           string
	Arbiter         string
	Currency        string
	RemainingAmount int64
	Status          Status
	Resolved        bool
	Ruling          Ruling
	CreatedAt       time.Time
	Milestones      []Milestone
}

// Milestone is a sub-amount of a deal releasable independently. A nil
// EndTime means no time lock.
type Milestone struct {
	Amount           int64
	Released         bool
	EndTime          *time.Time
	RequiresApproval bool
}

// CreateParams carries everything needed to create and fund a deal in one
// step. AttachedValue is the value sent along with the call; the native
// currency path requires it to exactly equal Amount.
type CreateParams struct {
	RefID              string
	Payer              string
	Payee              string
	Arbiter            string
	Currency           string
	Amount             int64
	AttachedValue      int64
	MilestoneAmounts   []int64
	MilestoneEndTimes  []*time.Time
	MilestoneApprovals []bool
}

// Event types appended to the deal_events log.
const (
	EventDealCreated       = "DEAL_CREATED"
	EventMilestoneReleased = "MILESTONE_RELEASED"
	EventDisputeRaised     = "DISPUTE_RAISED"
	EventDisputeResolved   = "DISPUTE_RESOLVED"
	EventTransferFailed    = "TRANSFER_FAILED"
)

// Outbox topics published for off-chain observers.
const (
	TopicDealCreated       = "deal.created"
	TopicMilestoneReleased = "deal.milestone_released"
	TopicDisputeRaised     = "deal.disputed"
	TopicDisputeResolved   = "deal.resolved"
)
