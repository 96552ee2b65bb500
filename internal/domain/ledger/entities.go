package ledger

import (
	"time"
)

// RefType discriminates what kind of value movement an entry records.
type RefType string

const (
	RefDeposit             RefType = "deposit"
	RefWithdraw            RefType = "withdraw"
	RefLoanDisbursal       RefType = "loan_disbursal"
	RefRepayment           RefType = "repayment"
	RefRepaymentApplied    RefType = "repayment_applied"
	RefProfitAccrual       RefType = "profit_accrual"
	RefProfitPoolCredit    RefType = "profit_pool_credit"
	RefProfitShare         RefType = "profit_share"
	RefProfitReserve       RefType = "profit_reserve"
	RefAdminCut            RefType = "admin_cut"
	RefCreditParked        RefType = "credit_parked"
	RefCreditApplied       RefType = "credit_applied"
	RefCreditInterest      RefType = "credit_interest"
	RefRefund              RefType = "refund"
	RefRefundRequired      RefType = "refund_required"
	RefReconcileAdjustment RefType = "reconcile_adjustment"
)

// Valid reports whether rt is a known ledger kind. Repositories refuse to
// append entries with unknown kinds.
func (rt RefType) Valid() bool {
	switch rt {
	case RefDeposit, RefWithdraw, RefLoanDisbursal, RefRepayment,
		RefRepaymentApplied, RefProfitAccrual, RefProfitPoolCredit,
		RefProfitShare, RefProfitReserve, RefAdminCut, RefCreditParked,
		RefCreditApplied, RefCreditInterest, RefRefund, RefRefundRequired,
		RefReconcileAdjustment:
		return true
	}
	return false
}

// VaultInflow reports whether entries of this kind move value into the vault.
func (rt RefType) VaultInflow() bool {
	return rt == RefDeposit || rt == RefRepayment
}

// VaultOutflow reports whether entries of this kind move value out of the vault.
func (rt RefType) VaultOutflow() bool {
	return rt == RefWithdraw || rt == RefLoanDisbursal || rt == RefRefund
}

// Entry is one immutable row of the transaction ledger: the single source of
// truth for money movement. The repository exposes no update or delete.
type Entry struct {
	ID      uint64  `gorm:"primaryKey;column:id" json:"-"`
	GroupID uint64  `gorm:"not null;index:idx_ledger_group_user_created" json:"group_id"`
	UserID  *uint64 `gorm:"index:idx_ledger_group_user_created" json:"user_id,omitempty"` // nil for system-level entries
	RefType RefType `gorm:"size:40;not null;index:idx_ledger_group_reftype" json:"ref_type"`
	RefID   *uint64 `json:"ref_id,omitempty"`
	Amount  float64 `gorm:"type:decimal(18,2);not null" json:"amount"`
	Note    string  `gorm:"size:255" json:"note,omitempty"`

	// External settlement reference, when the entry mirrors an on-network
	// transfer. Used by the outbox sweep to match settled transfers.
	ExternalTxID string `gorm:"size:128;index:idx_ledger_external_tx" json:"external_tx_id,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_ledger_group_user_created" json:"created_at"`
}

func (Entry) TableName() string { return "transaction_ledger" }

// CreditBalance is a member's parked overpayment inside a group.
type CreditBalance struct {
	ID               uint64     `gorm:"primaryKey;column:id" json:"-"`
	GroupID          uint64     `gorm:"not null;uniqueIndex:ux_credits_group_user" json:"group_id"`
	UserID           uint64     `gorm:"not null;uniqueIndex:ux_credits_group_user" json:"user_id"`
	Amount           float64    `gorm:"type:decimal(18,2);not null;default:0" json:"amount"`
	InterestEarned   float64    `gorm:"type:decimal(18,2);not null;default:0" json:"interest_earned"`
	LastInterestCalc *time.Time `json:"last_interest_calc,omitempty"`
	Source           string     `gorm:"size:40" json:"source,omitempty"` // OVERPAYMENT | REFUND | MANUAL_ADJUST
	Note             string     `gorm:"size:255" json:"-"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"-"`
}

func (CreditBalance) TableName() string { return "credit_balances" }
