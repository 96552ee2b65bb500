package mysql

import (
	"context"
	"time"

	groupDomain "coopfund-backend/internal/domain/group"

	"gorm.io/gorm"
)

type GroupRepository struct{ db *gorm.DB }

func NewGroupRepository(db *gorm.DB) *GroupRepository { return &GroupRepository{db: db} }

func (r *GroupRepository) Create(ctx context.Context, g *groupDomain.Group) error {
	return r.db.WithContext(ctx).Create(g).Error
}

func (r *GroupRepository) Save(ctx context.Context, g *groupDomain.Group) error {
	return r.db.WithContext(ctx).Save(g).Error
}

func (r *GroupRepository) GetByID(ctx context.Context, id uint64) (*groupDomain.Group, error) {
	var out groupDomain.Group
	res := r.db.WithContext(ctx).First(&out, id)
	return &out, res.Error
}

func (r *GroupRepository) GetBySlug(ctx context.Context, slug string) (*groupDomain.Group, error) {
	var out groupDomain.Group
	res := r.db.WithContext(ctx).Where("slug = ?", slug).First(&out)
	return &out, res.Error
}

func (r *GroupRepository) ListGroupIDs(ctx context.Context) ([]uint64, error) {
	var out []uint64
	res := r.db.WithContext(ctx).Model(&groupDomain.Group{}).
		Order("id ASC").
		Pluck("id", &out)
	return out, res.Error
}

func (r *GroupRepository) CreateMembership(ctx context.Context, m *groupDomain.Membership) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *GroupRepository) GetMembership(ctx context.Context, groupID, userID uint64) (*groupDomain.Membership, error) {
	var out groupDomain.Membership
	res := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		First(&out)
	return &out, res.Error
}

func (r *GroupRepository) CountMembers(ctx context.Context, groupID uint64) (int, error) {
	var n int64
	res := r.db.WithContext(ctx).Model(&groupDomain.Membership{}).
		Where("group_id = ?", groupID).
		Count(&n)
	return int(n), res.Error
}

func (r *GroupRepository) ListMembers(ctx context.Context, groupID uint64) ([]groupDomain.Membership, error) {
	var out []groupDomain.Membership
	res := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("joined_at ASC, id ASC").
		Find(&out)
	return out, res.Error
}

func (r *GroupRepository) ListAdminIDs(ctx context.Context, groupID uint64) ([]uint64, error) {
	var out []uint64
	res := r.db.WithContext(ctx).Model(&groupDomain.Membership{}).
		Where("group_id = ? AND role = ?", groupID, groupDomain.RoleAdmin).
		Pluck("user_id", &out)
	return out, res.Error
}

func (r *GroupRepository) GetBalance(ctx context.Context, groupID, userID uint64) (*groupDomain.MemberBalance, error) {
	var out groupDomain.MemberBalance
	res := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		First(&out)
	return &out, res.Error
}

func (r *GroupRepository) SaveBalance(ctx context.Context, b *groupDomain.MemberBalance) error {
	return r.db.WithContext(ctx).Save(b).Error
}

func (r *GroupRepository) ListBalances(ctx context.Context, groupID uint64) ([]groupDomain.MemberBalance, error) {
	var out []groupDomain.MemberBalance
	res := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("user_id ASC").
		Find(&out)
	return out, res.Error
}

func (r *GroupRepository) CreateDeposit(ctx context.Context, d *groupDomain.Deposit) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *GroupRepository) CountDeposits(ctx context.Context, groupID, userID uint64, since *time.Time) (int, error) {
	var n int64
	q := r.db.WithContext(ctx).Model(&groupDomain.Deposit{}).
		Where("group_id = ? AND user_id = ?", groupID, userID)
	if since != nil {
		q = q.Where("created_at >= ?", *since)
	}
	res := q.Count(&n)
	return int(n), res.Error
}

func (r *GroupRepository) SumDeposits(ctx context.Context, groupID uint64, userID *uint64, since *time.Time) (float64, error) {
	var sum float64
	q := r.db.WithContext(ctx).Model(&groupDomain.Deposit{}).
		Where("group_id = ?", groupID)
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	if since != nil {
		q = q.Where("created_at >= ?", *since)
	}
	res := q.Select("COALESCE(SUM(amount), 0)").Scan(&sum)
	return sum, res.Error
}

func (r *GroupRepository) CreatePolicyRule(ctx context.Context, rule *groupDomain.PolicyRule) error {
	return r.db.WithContext(ctx).Create(rule).Error
}

func (r *GroupRepository) GetPolicyRule(ctx context.Context, groupID uint64) (*groupDomain.PolicyRule, error) {
	var out groupDomain.PolicyRule
	res := r.db.WithContext(ctx).Where("group_id = ?", groupID).First(&out)
	return &out, res.Error
}

func (r *GroupRepository) CreateAlert(ctx context.Context, a *groupDomain.Alert) error {
	return r.db.WithContext(ctx).Create(a).Error
}
