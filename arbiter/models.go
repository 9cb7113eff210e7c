package arbiter

import (
	"errors"
	"time"
)

var (
	ErrLowStake       = errors.New("arbiter: stake below required amount")
	ErrNotFound       = errors.New("arbiter: not registered")
	ErrBadAmount      = errors.New("arbiter: amount must not be negative")
	ErrTransferFailed = errors.New("arbiter: stake transfer failed")
)

// Profile is the bonding and reputation record for one arbiter. Profiles are
// created implicitly on first stake and never deleted.
type Profile struct {
	Address          string
	Stake            int64
	Reputation       int
	DisputesResolved int
	Active           bool
	CreatedAt        time.Time
}

// DefaultReputation is assigned on an arbiter's first stake.
const DefaultReputation = 100

// SlashReason identifies the misconduct behind an admin slash. The integer
// mapping is the wire representation.
type SlashReason int

const (
	ReasonCollusion     SlashReason = 0
	ReasonTimeout       SlashReason = 1
	ReasonUnfairRulings SlashReason = 2
)

// Penalty maps a reason to its reputation cost. Unrecognized reasons cost
// nothing beyond the stake deduction.
func (r SlashReason) Penalty() int {
	switch r {
	case ReasonCollusion:
		return 50
	case ReasonTimeout:
		return 10
	case ReasonUnfairRulings:
		return 20
	default:
		return 0
	}
}

func (r SlashReason) String() string {
	switch r {
	case ReasonCollusion:
		return "collusion"
	case ReasonTimeout:
		return "timeout"
	case ReasonUnfairRulings:
		return "unfair_rulings"
	default:
		return "unknown"
	}
}

// Event type and outbox topic for registry notifications.
const (
	EventArbiterRegistered = "ARBITER_REGISTERED"
	TopicArbiterRegistered = "arbiter.registered"
)
