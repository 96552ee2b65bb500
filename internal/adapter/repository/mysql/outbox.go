package mysql

import (
	"context"
	"time"

	outboxDomain "coopfund-backend/internal/domain/outbox"

	"gorm.io/gorm"
)

type OutboxRepository struct{ db *gorm.DB }

func NewOutboxRepository(db *gorm.DB) *OutboxRepository { return &OutboxRepository{db: db} }

func (r *OutboxRepository) Create(ctx context.Context, t *outboxDomain.Transfer) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *OutboxRepository) Save(ctx context.Context, t *outboxDomain.Transfer) error {
	return r.db.WithContext(ctx).Save(t).Error
}

func (r *OutboxRepository) GetByID(ctx context.Context, id uint64) (*outboxDomain.Transfer, error) {
	var out outboxDomain.Transfer
	res := r.db.WithContext(ctx).First(&out, id)
	return &out, res.Error
}

func (r *OutboxRepository) ListRetryable(ctx context.Context, maxAttempts int) ([]outboxDomain.Transfer, error) {
	var out []outboxDomain.Transfer
	res := r.db.WithContext(ctx).
		Where("status IN ? AND attempts < ?",
			[]outboxDomain.TransferStatus{outboxDomain.StatusPending, outboxDomain.StatusFailed},
			maxAttempts).
		Order("created_at ASC, id ASC").
		Find(&out)
	return out, res.Error
}

func (r *OutboxRepository) ListStaleSending(ctx context.Context, cutoff time.Time) ([]outboxDomain.Transfer, error) {
	var out []outboxDomain.Transfer
	res := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", outboxDomain.StatusSending, cutoff).
		Order("updated_at ASC").
		Find(&out)
	return out, res.Error
}

func (r *OutboxRepository) CreateAttempt(ctx context.Context, a *outboxDomain.Attempt) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *OutboxRepository) ListAttempts(ctx context.Context, outboxID uint64) ([]outboxDomain.Attempt, error) {
	var out []outboxDomain.Attempt
	res := r.db.WithContext(ctx).
		Where("outbox_id = ?", outboxID).
		Order("attempt_at ASC, id ASC").
		Find(&out)
	return out, res.Error
}
