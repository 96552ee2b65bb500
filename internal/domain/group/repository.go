package group

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, g *Group) error
	Save(ctx context.Context, g *Group) error
	GetByID(ctx context.Context, id uint64) (*Group, error)
	GetBySlug(ctx context.Context, slug string) (*Group, error)
	ListGroupIDs(ctx context.Context) ([]uint64, error)

	CreateMembership(ctx context.Context, m *Membership) error
	GetMembership(ctx context.Context, groupID, userID uint64) (*Membership, error)
	CountMembers(ctx context.Context, groupID uint64) (int, error)
	ListMembers(ctx context.Context, groupID uint64) ([]Membership, error)
	ListAdminIDs(ctx context.Context, groupID uint64) ([]uint64, error)

	GetBalance(ctx context.Context, groupID, userID uint64) (*MemberBalance, error)
	SaveBalance(ctx context.Context, b *MemberBalance) error
	ListBalances(ctx context.Context, groupID uint64) ([]MemberBalance, error)

	CreateDeposit(ctx context.Context, d *Deposit) error
	CountDeposits(ctx context.Context, groupID, userID uint64, since *time.Time) (int, error)
	SumDeposits(ctx context.Context, groupID uint64, userID *uint64, since *time.Time) (float64, error)

	CreatePolicyRule(ctx context.Context, r *PolicyRule) error
	GetPolicyRule(ctx context.Context, groupID uint64) (*PolicyRule, error)

	CreateAlert(ctx context.Context, a *Alert) error
}
