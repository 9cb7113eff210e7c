package dispute

import (
	"errors"
	"time"

	"escrowflow/deal"
)

var (
	ErrNotDisputed     = errors.New("dispute: deal is not disputed")
	ErrAlreadyResolved = errors.New("dispute: already resolved")
	ErrNotArbiter      = errors.New("dispute: caller is not the assigned arbiter")
	ErrOverRemaining   = errors.New("dispute: shares exceed remaining amount")
	ErrBadShare        = errors.New("dispute: share must not be negative")
)

// Resolution reports the binding outcome of a dispute: the net amounts after
// the resolution fee and the ruling derived from the share comparison.
type Resolution struct {
	DealID   int64
	NetPayer int64
	NetPayee int64
	Fee      int64
	Ruling   deal.Ruling
}

// Record is the read-model row for a disputed or resolved deal.
type Record struct {
	DealID    int64
	Payer     string
	Payee     string
	Arbiter   string
	Status    deal.Status
	Resolved  bool
	Ruling    deal.Ruling
	UpdatedAt time.Time
}
