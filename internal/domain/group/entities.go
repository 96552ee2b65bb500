package group

import (
	"time"
)

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// Group is a cooperative savings circle. Created once by its founding admin,
// mutated only through admin config changes, never deleted.
type Group struct {
	ID        uint64 `gorm:"primaryKey;column:id" json:"-"`
	Name      string `gorm:"size:120;not null" json:"name"`
	Slug      string `gorm:"size:120;uniqueIndex:ux_groups_slug;not null" json:"slug"`
	CreatedBy uint64 `gorm:"column:created_by;not null" json:"created_by"`

	// VaultAccount is the group's pooled-funds account on the external
	// settlement network. Provisioning it is out of scope.
	VaultAccount string `gorm:"size:100" json:"vault_account"`

	InterestRate float64 `gorm:"type:decimal(6,4);default:0.10" json:"interest_rate"`
	MinBalance   float64 `gorm:"type:decimal(18,2);default:0" json:"min_balance"`

	ProfitReservePct   float64 `gorm:"type:decimal(5,2);default:10" json:"profit_reserve_pct"`
	AdminCutPct        float64 `gorm:"type:decimal(5,2);default:0" json:"admin_cut_pct"`
	DistributeOnProfit bool    `gorm:"not null;default:true" json:"distribute_on_profit"`

	LastProfitSettlement *time.Time `json:"last_profit_settlement,omitempty"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"-"`
}

func (Group) TableName() string { return "cooperative_groups" }

// NormalizedRate returns the interest rate as a fraction; groups configured
// with a percentage figure (e.g. 12 for 12%) are normalized down.
func (g *Group) NormalizedRate() float64 {
	r := g.InterestRate
	if r > 1 {
		r = r / 100.0
	}
	return r
}

// Membership is the (group,user) pair. Role is the only mutable field.
type Membership struct {
	ID       uint64    `gorm:"primaryKey;column:id" json:"-"`
	GroupID  uint64    `gorm:"not null;uniqueIndex:ux_memberships_group_user;index:idx_memberships_group_role" json:"group_id"`
	UserID   uint64    `gorm:"not null;uniqueIndex:ux_memberships_group_user" json:"user_id"`
	Role     Role      `gorm:"size:20;not null;default:'member';index:idx_memberships_group_role" json:"role"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

func (Membership) TableName() string { return "group_memberships" }

// MemberBalance tracks a member's position inside a group. Updated only by
// deposit, withdraw and distribution flows.
type MemberBalance struct {
	ID                uint64     `gorm:"primaryKey;column:id" json:"-"`
	GroupID           uint64     `gorm:"not null;uniqueIndex:ux_balances_group_user" json:"group_id"`
	UserID            uint64     `gorm:"not null;uniqueIndex:ux_balances_group_user" json:"user_id"`
	TotalDeposit      float64    `gorm:"type:decimal(18,2);not null;default:0" json:"total_deposit"`
	InterestEarned    float64    `gorm:"type:decimal(18,2);not null;default:0" json:"interest_earned"`
	TotalWithdrawn    float64    `gorm:"type:decimal(18,2);not null;default:0" json:"total_withdrawn"`
	LastProfitShareAt *time.Time `json:"last_profit_share_at,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"-"`
}

func (MemberBalance) TableName() string { return "member_balances" }

func (b *MemberBalance) NetPosition() float64 {
	return b.TotalDeposit + b.InterestEarned - b.TotalWithdrawn
}

// Deposit is a single deposit event. MemberBalance aggregates these; the
// trust engine reads them back for cadence metrics.
type Deposit struct {
	ID        uint64    `gorm:"primaryKey;column:id" json:"-"`
	GroupID   uint64    `gorm:"not null;index:idx_deposits_group_user_created" json:"group_id"`
	UserID    uint64    `gorm:"not null;index:idx_deposits_group_user_created" json:"user_id"`
	Amount    float64   `gorm:"type:decimal(18,2);not null" json:"amount"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_deposits_group_user_created" json:"created_at"`
}

func (Deposit) TableName() string { return "deposits" }

// PolicyRule holds per-group governance thresholds and trust-score weights.
type PolicyRule struct {
	ID      uint64 `gorm:"primaryKey;column:id" json:"-"`
	GroupID uint64 `gorm:"not null;uniqueIndex:ux_policy_rules_group" json:"group_id"`

	QuorumPercent      float64  `gorm:"type:decimal(5,2);not null;default:50" json:"quorum_percent"`
	MaxLoanPctOfPool   float64  `gorm:"type:decimal(6,2);not null;default:25" json:"max_loan_pct_of_pool"`
	MaxLoanPerMember   *float64 `gorm:"type:decimal(18,2)" json:"max_loan_per_member,omitempty"`
	MinDepositAmount   *float64 `gorm:"type:decimal(18,2)" json:"min_deposit_amount,omitempty"`
	PenaltyRateMonthly *float64 `gorm:"type:decimal(6,2)" json:"penalty_rate_monthly,omitempty"`

	// Ceiling for the loan-request-frequency ramp: at MaxFreqRatio times the
	// group average the sub-metric reaches zero.
	MaxFreqRatio float64 `gorm:"type:decimal(4,1);not null;default:4" json:"max_freq_ratio"`

	// Trust score weights; sum ideally 100.
	WDepositConsistency  float64 `gorm:"type:decimal(5,2);not null;default:15" json:"w_deposit_consistency"`
	WRepaymentTimeliness float64 `gorm:"type:decimal(5,2);not null;default:20" json:"w_repayment_timeliness"`
	WOntimeRepayments    float64 `gorm:"type:decimal(5,2);not null;default:15" json:"w_ontime_repayments"`
	WVotingParticipation float64 `gorm:"type:decimal(5,2);not null;default:5" json:"w_voting_participation"`
	WLoanRequestFreq     float64 `gorm:"type:decimal(5,2);not null;default:5" json:"w_loan_request_freq"`
	WLoanApprovalRate    float64 `gorm:"type:decimal(5,2);not null;default:10" json:"w_loan_approval_rate"`
	WDisbursalTimeliness float64 `gorm:"type:decimal(5,2);not null;default:10" json:"w_disbursal_timeliness"`
	WSelfRepayment       float64 `gorm:"type:decimal(5,2);not null;default:10" json:"w_self_repayment"`
	WThirdPartyFlag      float64 `gorm:"type:decimal(5,2);not null;default:5" json:"w_thirdparty_flag"`
	WProfitContribution  float64 `gorm:"type:decimal(5,2);not null;default:5" json:"w_profit_contribution"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"-"`
}

func (PolicyRule) TableName() string { return "policy_rules" }

// DefaultPolicyRule returns the rule a new group starts with.
func DefaultPolicyRule(groupID uint64) *PolicyRule {
	return &PolicyRule{
		GroupID:              groupID,
		QuorumPercent:        50,
		MaxLoanPctOfPool:     25,
		MaxFreqRatio:         4,
		WDepositConsistency:  15,
		WRepaymentTimeliness: 20,
		WOntimeRepayments:    15,
		WVotingParticipation: 5,
		WLoanRequestFreq:     5,
		WLoanApprovalRate:    10,
		WDisbursalTimeliness: 10,
		WSelfRepayment:       10,
		WThirdPartyFlag:      5,
		WProfitContribution:  5,
	}
}

// Alert is an admin-facing flag raised by quarantine and reconciliation paths.
type Alert struct {
	ID        uint64    `gorm:"primaryKey;column:id" json:"-"`
	UserID    uint64    `gorm:"not null;index" json:"user_id"`
	Message   string    `gorm:"size:255;not null" json:"message"`
	Level     string    `gorm:"size:20;default:'info'" json:"level"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Alert) TableName() string { return "alerts" }
