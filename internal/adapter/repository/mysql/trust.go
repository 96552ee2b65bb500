package mysql

import (
	"context"
	"errors"

	trustDomain "coopfund-backend/internal/domain/trust"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TrustRepository struct{ db *gorm.DB }

func NewTrustRepository(db *gorm.DB) *TrustRepository { return &TrustRepository{db: db} }

// Get returns nil without error when no snapshot exists yet.
func (r *TrustRepository) Get(ctx context.Context, groupID, userID uint64) (*trustDomain.Score, error) {
	var out trustDomain.Score
	res := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		First(&out)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &out, res.Error
}

func (r *TrustRepository) Save(ctx context.Context, s *trustDomain.Score) error {
	return r.db.WithContext(ctx).Save(s).Error
}

// UpsertHistory keeps at most one history row per (group,user) per day; a
// recomputation on the same day replaces that day's delta.
func (r *TrustRepository) UpsertHistory(ctx context.Context, h *trustDomain.HistoryEntry) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_id"}, {Name: "user_id"}, {Name: "snapshot_date"}},
			DoUpdates: clause.AssignmentColumns([]string{"delta", "score_after", "reason"}),
		}).
		Create(h).Error
}

func (r *TrustRepository) ListHistory(ctx context.Context, groupID, userID uint64, limit int) ([]trustDomain.HistoryEntry, error) {
	var out []trustDomain.HistoryEntry
	q := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Order("snapshot_date DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	res := q.Find(&out)
	return out, res.Error
}
