// Package settlemock is a function-backed settlement client for tests.
package settlemock

import (
	"context"
	"fmt"
	"sync"

	"coopfund-backend/internal/external/settlement"
)

// Ensure compile-time compliance
var _ settlement.Client = (*Client)(nil)

// Client satisfies settlement.Client. Fill in the function fields you need in
// a test; unfilled ones succeed with canned values. Calls are recorded so
// tests can assert how many transfers actually went out.
type Client struct {
	TransferFn     func(ctx context.Context, req settlement.TransferRequest) (settlement.Receipt, error)
	FetchBalanceFn func(ctx context.Context, account string) (settlement.Balance, error)

	mu        sync.Mutex
	transfers []settlement.TransferRequest
	balances  []string
}

func New() *Client { return &Client{} }

func (m *Client) Transfer(ctx context.Context, req settlement.TransferRequest) (settlement.Receipt, error) {
	m.mu.Lock()
	m.transfers = append(m.transfers, req)
	n := len(m.transfers)
	m.mu.Unlock()

	if m.TransferFn != nil {
		return m.TransferFn(ctx, req)
	}
	return settlement.Receipt{
		TransactionID: fmt.Sprintf("ext-tx-%d", n),
		Status:        settlement.StatusSuccess,
	}, nil
}

func (m *Client) FetchBalance(ctx context.Context, account string) (settlement.Balance, error) {
	m.mu.Lock()
	m.balances = append(m.balances, account)
	m.mu.Unlock()

	if m.FetchBalanceFn != nil {
		return m.FetchBalanceFn(ctx, account)
	}
	return settlement.Balance{Account: account, Amount: 0}, nil
}

// Transfers returns a copy of every transfer request seen so far.
func (m *Client) Transfers() []settlement.TransferRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]settlement.TransferRequest, len(m.transfers))
	copy(out, m.transfers)
	return out
}

// TransferCount reports how many transfer calls were made.
func (m *Client) TransferCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transfers)
}
