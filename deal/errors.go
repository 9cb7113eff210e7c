package deal

import "errors"

// Every failure aborts the whole operation; nothing is retried internally.
// The short codes are the stable, test-observable contract surfaced by the
// API layer.
var (
	ErrNotFound        = errors.New("deal: not found")
	ErrBadStatus       = errors.New("deal: operation not allowed in current status")
	ErrAlreadyReleased = errors.New("deal: milestone already released")
	ErrBadIndex        = errors.New("deal: milestone index out of range")
	ErrZeroAmount      = errors.New("deal: amount must be positive")
	ErrZeroAddress     = errors.New("deal: empty address")
	ErrLengthMismatch  = errors.New("deal: milestone array lengths differ")
	ErrNoMilestones    = errors.New("deal: at least one milestone required")
	ErrSumMismatch     = errors.New("deal: milestone amounts do not sum to deal amount")
	ErrValueMismatch   = errors.New("deal: attached value does not equal deal amount")
	ErrTimeLocked      = errors.New("deal: milestone time lock has not elapsed")
	ErrNotAuthorized   = errors.New("deal: caller not authorized")
	ErrNotAdmin        = errors.New("deal: caller is not admin")
	ErrTransferFailed  = errors.New("deal: currency transfer failed")
)
