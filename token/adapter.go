package token

import (
	"context"
	"errors"
)

// Native is the currency identifier for the chain-native settlement currency.
// Every other identifier names a fungible-token currency.
const Native = "native"

var (
	// ErrInsufficientFunds signals the sender balance cannot cover the amount.
	ErrInsufficientFunds = errors.New("token: insufficient funds")
	// ErrBadAmount signals a zero or negative transfer amount.
	ErrBadAmount = errors.New("token: amount must be positive")
)

// Adapter moves value between settlement addresses. A returned error covers
// both a failed call and a call that reported failure; callers treat the two
// identically and abort the enclosing operation, except for post-commit payout
// legs which log the error and keep the committed ledger state.
type Adapter interface {
	// Transfer sends amount from the adapter's custody account to recipient.
	Transfer(ctx context.Context, currency, recipient string, amount int64) error
	// TransferFrom pulls amount from sender into recipient.
	TransferFrom(ctx context.Context, currency, sender, recipient string, amount int64) error
}
