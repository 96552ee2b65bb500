// Package settlement defines the contract with the external asset-transfer
// network. The concrete client is constructed once at startup and injected;
// nothing in the core touches it as ambient state.
package settlement

import (
	"context"
	"errors"
)

// ErrTimeout marks a call whose outcome is UNKNOWN. Callers must never treat
// it as a definite failure: a timed-out value transfer may still have settled
// and requires reconciliation, not a re-send.
var ErrTimeout = errors.New("settlement: call timed out, outcome unknown")

// ErrTransient marks a definite failure that is safe to retry for idempotent
// operations (account lookups, balance fetches).
var ErrTransient = errors.New("settlement: transient network error")

type TransferRequest struct {
	From      string
	To        string
	Amount    float64
	AssetRef  string
	ClientRef string // caller-supplied idempotency reference
}

type Receipt struct {
	TransactionID string
	Status        string
}

const StatusSuccess = "SUCCESS"

func (r Receipt) OK() bool { return r.Status == StatusSuccess }

type Balance struct {
	Account string
	Amount  float64
}

type Client interface {
	// Transfer moves value between two network accounts. An ErrTimeout return
	// means the outcome is unknown; any other error means the transfer did
	// not settle.
	Transfer(ctx context.Context, req TransferRequest) (Receipt, error)
	// FetchBalance reads an account's balance. Idempotent, safe to retry.
	FetchBalance(ctx context.Context, account string) (Balance, error)
}

// IsUnknownOutcome reports whether err leaves the transfer outcome ambiguous.
func IsUnknownOutcome(err error) bool { return errors.Is(err, ErrTimeout) }
