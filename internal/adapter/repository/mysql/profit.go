package mysql

import (
	"context"
	"errors"

	profitDomain "coopfund-backend/internal/domain/profit"

	"gorm.io/gorm"
)

type ProfitRepository struct{ db *gorm.DB }

func NewProfitRepository(db *gorm.DB) *ProfitRepository { return &ProfitRepository{db: db} }

// GetPool returns nil without error when the group has no pool yet; callers
// create it lazily on first accrual.
func (r *ProfitRepository) GetPool(ctx context.Context, groupID uint64) (*profitDomain.Pool, error) {
	var out profitDomain.Pool
	res := r.db.WithContext(ctx).Where("group_id = ?", groupID).First(&out)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &out, res.Error
}

func (r *ProfitRepository) SavePool(ctx context.Context, p *profitDomain.Pool) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *ProfitRepository) CreateDistribution(ctx context.Context, d *profitDomain.Distribution) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *ProfitRepository) ListDistributions(ctx context.Context, groupID uint64) ([]profitDomain.Distribution, error) {
	var out []profitDomain.Distribution
	res := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("distributed_at DESC, id DESC").
		Find(&out)
	return out, res.Error
}

func (r *ProfitRepository) CreateShareDetail(ctx context.Context, s *profitDomain.ShareDetail) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *ProfitRepository) ListShareDetails(ctx context.Context, distributionID uint64) ([]profitDomain.ShareDetail, error) {
	var out []profitDomain.ShareDetail
	res := r.db.WithContext(ctx).
		Where("distribution_id = ?", distributionID).
		Order("user_id ASC").
		Find(&out)
	return out, res.Error
}
