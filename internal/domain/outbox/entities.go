package outbox

import (
	"time"
)

// TransferStatus tracks a settlement intent through its life.
//
//	pending: intent recorded, external call not yet made (safe to send)
//	sending: external call in flight or outcome unknown (NOT safe to re-send)
//	sent:    settled and locally recorded; terminal
//	failed:  external call definitively failed before settlement (safe to retry)
type TransferStatus string

const (
	StatusPending TransferStatus = "pending"
	StatusSending TransferStatus = "sending"
	StatusSent    TransferStatus = "sent"
	StatusFailed  TransferStatus = "failed"
)

// Purpose names the operation that queued the transfer.
type Purpose string

const (
	PurposeDeposit   Purpose = "deposit"
	PurposeWithdraw  Purpose = "withdraw"
	PurposeDisbursal Purpose = "loan_disbursal"
	PurposeRepayment Purpose = "repayment"
	PurposeRefund    Purpose = "refund"
)

// Transfer is a durable settlement intent, written before the external call so
// a crash or timeout leaves evidence to reconcile against.
type Transfer struct {
	ID          uint64         `gorm:"primaryKey;column:id" json:"id"`
	ClientRef   string         `gorm:"size:64;uniqueIndex:ux_outbox_client_ref" json:"client_ref"`
	GroupID     uint64         `gorm:"not null;index" json:"group_id"`
	FromAccount string         `gorm:"size:100;not null" json:"from_account"`
	ToAccount   string         `gorm:"size:100;not null" json:"to_account"`
	Amount      float64        `gorm:"type:decimal(18,2);not null" json:"amount"`
	AssetRef    string         `gorm:"size:64" json:"asset_ref,omitempty"`
	Purpose     Purpose        `gorm:"size:32;not null" json:"purpose"`
	RefID       *uint64        `json:"ref_id,omitempty"` // loan/repayment/deposit id the intent serves
	Status      TransferStatus `gorm:"size:16;not null;default:'pending';index:idx_outbox_status" json:"status"`
	Attempts    int            `gorm:"not null;default:0" json:"attempts"`
	LastError   string         `gorm:"type:text" json:"last_error,omitempty"`
	ExternalTx  string         `gorm:"size:128;index" json:"external_tx,omitempty"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Transfer) TableName() string { return "outbox_transfers" }

// Attempt is an append-only record of one try at executing a transfer.
type Attempt struct {
	ID         uint64    `gorm:"primaryKey;column:id" json:"-"`
	OutboxID   uint64    `gorm:"not null;index" json:"outbox_id"`
	AttemptAt  time.Time `gorm:"not null" json:"attempt_at"`
	Success    bool      `gorm:"not null" json:"success"`
	ExternalTx string    `gorm:"size:128" json:"external_tx,omitempty"`
	Error      string    `gorm:"type:text" json:"error,omitempty"`
}

func (Attempt) TableName() string { return "outbox_attempts" }
