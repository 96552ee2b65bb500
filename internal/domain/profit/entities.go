package profit

import (
	"time"
)

// Pool is a group's accumulated, not-yet-distributed interest income.
// Monotonically increased by accrual, decreased only by a distribution run.
type Pool struct {
	ID              uint64    `gorm:"primaryKey;column:id" json:"-"`
	GroupID         uint64    `gorm:"not null;uniqueIndex:ux_profit_pools_group" json:"group_id"`
	AccruedInterest float64   `gorm:"type:decimal(18,2);not null;default:0" json:"accrued_interest"`
	Expenses        float64   `gorm:"type:decimal(18,2);not null;default:0" json:"expenses"`
	NetAvailable    float64   `gorm:"type:decimal(18,2);not null;default:0" json:"net_available"`
	LastUpdated     time.Time `gorm:"autoUpdateTime" json:"last_updated"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Pool) TableName() string { return "profit_pools" }

// Distribution is the immutable audit record of one distribution run.
type Distribution struct {
	ID               uint64    `gorm:"primaryKey;column:id" json:"id"`
	GroupID          uint64    `gorm:"not null;index:idx_distributions_group_at" json:"group_id"`
	DistributedAt    time.Time `gorm:"not null;index:idx_distributions_group_at" json:"distributed_at"`
	TotalDistributed float64   `gorm:"type:decimal(18,2);not null;default:0" json:"total_distributed"`
	ReserveAmount    float64   `gorm:"type:decimal(18,2);not null;default:0" json:"reserve_amount"`
	AdminAmount      float64   `gorm:"type:decimal(18,2);not null;default:0" json:"admin_amount"`
	Note             string    `gorm:"size:255" json:"note,omitempty"`
}

func (Distribution) TableName() string { return "profit_distributions" }

// ShareDetail is one member's slice of a distribution run. Never edited.
type ShareDetail struct {
	ID              uint64  `gorm:"primaryKey;column:id" json:"-"`
	DistributionID  uint64  `gorm:"not null;index" json:"distribution_id"`
	UserID          uint64  `gorm:"not null;index" json:"user_id"`
	Amount          float64 `gorm:"type:decimal(18,2);not null;default:0" json:"amount"`
	DepositSnapshot float64 `gorm:"type:decimal(18,2);not null;default:0" json:"deposit_snapshot"`
}

func (ShareDetail) TableName() string { return "profit_share_details" }
