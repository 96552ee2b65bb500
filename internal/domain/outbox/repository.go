package outbox

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, t *Transfer) error
	Save(ctx context.Context, t *Transfer) error
	GetByID(ctx context.Context, id uint64) (*Transfer, error)
	// ListRetryable returns pending and failed transfers, oldest first.
	ListRetryable(ctx context.Context, maxAttempts int) ([]Transfer, error)
	// ListStaleSending returns sending transfers untouched since the cutoff;
	// these have an unknown outcome and need manual reconciliation.
	ListStaleSending(ctx context.Context, cutoff time.Time) ([]Transfer, error)

	CreateAttempt(ctx context.Context, a *Attempt) error
	ListAttempts(ctx context.Context, outboxID uint64) ([]Attempt, error)
}
