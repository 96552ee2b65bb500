package loan

import (
	"time"
)

// Status is the authoritative loan lifecycle state.
type Status string

const (
	StatusApproved  Status = "approved"
	StatusActive    Status = "active"
	StatusClosed    Status = "closed"
	StatusDefaulted Status = "defaulted"
	StatusCancelled Status = "cancelled"
)

// CanTransition reports whether the one-directional state machine allows
// moving from s to next.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusApproved:
		return next == StatusActive || next == StatusCancelled
	case StatusActive:
		return next == StatusClosed || next == StatusDefaulted
	}
	return false
}

// RequestStatus is derived, never stored: a LoanRequest is an immutable intent
// record whose effective status follows its voting session and loan.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestApproved  RequestStatus = "approved"
	RequestRejected  RequestStatus = "rejected"
	RequestDisbursed RequestStatus = "disbursed"
)

// DeriveRequestStatus folds a request's session and loan into the effective
// request status. Either argument may be nil.
func DeriveRequestStatus(session *VotingSession, l *Loan) RequestStatus {
	if l != nil && l.Status != StatusApproved && l.Status != StatusCancelled {
		return RequestDisbursed
	}
	if session == nil || session.Status == SessionOngoing {
		return RequestPending
	}
	if session.Status == SessionRejected {
		return RequestRejected
	}
	return RequestApproved
}

// LoanRequest is the immutable intent that produces at most one Loan.
type LoanRequest struct {
	ID        uint64    `gorm:"primaryKey;column:id" json:"id"`
	GroupID   uint64    `gorm:"not null;index:idx_loan_requests_group_created" json:"group_id"`
	UserID    uint64    `gorm:"not null;index" json:"user_id"`
	Amount    float64   `gorm:"type:decimal(18,2);not null" json:"amount"`
	Purpose   string    `gorm:"size:200" json:"purpose,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_loan_requests_group_created" json:"created_at"`
}

func (LoanRequest) TableName() string { return "loan_requests" }

type SessionStatus string

const (
	SessionOngoing  SessionStatus = "ongoing"
	SessionApproved SessionStatus = "approved"
	SessionRejected SessionStatus = "rejected"
)

// VotingSession is one-to-one with a LoanRequest. Immutable after closing:
// ClosedAt is set exactly once.
type VotingSession struct {
	ID            uint64        `gorm:"primaryKey;column:id" json:"-"`
	GroupID       uint64        `gorm:"not null;index:idx_voting_sessions_group_created" json:"group_id"`
	LoanRequestID uint64        `gorm:"not null;uniqueIndex:ux_voting_sessions_request" json:"loan_request_id"`
	Status        SessionStatus `gorm:"size:20;not null;default:'ongoing'" json:"status"`
	StartedAt     time.Time     `gorm:"autoCreateTime" json:"started_at"`
	ClosedAt      *time.Time    `json:"closed_at,omitempty"`
	CreatedAt     time.Time     `gorm:"autoCreateTime;index:idx_voting_sessions_group_created" json:"-"`
}

func (VotingSession) TableName() string { return "voting_sessions" }

func (s *VotingSession) Closed() bool { return s.Status != SessionOngoing }

type Choice string

const (
	ChoiceYes Choice = "yes"
	ChoiceNo  Choice = "no"
)

// VoteRecord is append-only; the (session,voter) unique index enforces one
// vote per voter without pessimistic locking.
type VoteRecord struct {
	ID        uint64    `gorm:"primaryKey;column:id" json:"-"`
	SessionID uint64    `gorm:"not null;uniqueIndex:ux_votes_session_voter" json:"session_id"`
	VoterID   uint64    `gorm:"not null;uniqueIndex:ux_votes_session_voter" json:"voter_id"`
	Choice    Choice    `gorm:"size:5;not null" json:"choice"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (VoteRecord) TableName() string { return "vote_records" }

// Loan is created exactly once, idempotently, when a request's vote closes
// approved. It owns the authoritative state machine.
type Loan struct {
	ID              uint64     `gorm:"primaryKey;column:id" json:"id"`
	LoanRequestID   uint64     `gorm:"not null;uniqueIndex:ux_loans_request" json:"loan_request_id"`
	GroupID         uint64     `gorm:"not null;index:idx_loans_group_status" json:"group_id"`
	UserID          uint64     `gorm:"not null;index" json:"user_id"`
	Principal       float64    `gorm:"type:decimal(18,2);not null" json:"principal"`
	InterestRateAPY float64    `gorm:"type:decimal(5,2);not null;default:0" json:"interest_rate_apy"`
	TenureMonths    int        `gorm:"not null;default:12" json:"tenure_months"`
	Status          Status     `gorm:"size:20;not null;default:'approved';index:idx_loans_group_status" json:"status"`
	DisbursedAt     *time.Time `json:"disbursed_at,omitempty"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (Loan) TableName() string { return "loans" }

type ScheduleStatus string

const (
	ScheduleDue     ScheduleStatus = "due"
	SchedulePaid    ScheduleStatus = "paid"
	ScheduleOverdue ScheduleStatus = "overdue"
	ScheduleWaived  ScheduleStatus = "waived"
)

// ScheduleEntry is one installment of a loan's repayment schedule.
// Invariant: the sum of PrincipalComponent over a loan's schedule equals the
// loan principal within one cent.
type ScheduleEntry struct {
	ID                 uint64         `gorm:"primaryKey;column:id" json:"-"`
	LoanID             uint64         `gorm:"not null;uniqueIndex:ux_schedule_loan_installment" json:"loan_id"`
	InstallmentNo      int            `gorm:"not null;uniqueIndex:ux_schedule_loan_installment" json:"installment_no"`
	DueDate            time.Time      `gorm:"not null;index" json:"due_date"`
	DueAmount          float64        `gorm:"type:decimal(18,2);not null" json:"due_amount"`
	PrincipalComponent float64        `gorm:"type:decimal(18,2);not null;default:0" json:"principal_component"`
	InterestComponent  float64        `gorm:"type:decimal(18,2);not null;default:0" json:"interest_component"`
	Status             ScheduleStatus `gorm:"size:15;not null;default:'due'" json:"status"`
	PaidAt             *time.Time     `json:"paid_at,omitempty"`
	PaidRepaymentID    *uint64        `json:"paid_repayment_id,omitempty"`
}

func (ScheduleEntry) TableName() string { return "repayment_schedules" }

// Repayment is an append-only record of money offered against a loan,
// whether or not it has been applied yet.
type Repayment struct {
	ID        uint64    `gorm:"primaryKey;column:id" json:"id"`
	LoanID    uint64    `gorm:"not null;index:idx_repayments_loan_created" json:"loan_id"`
	PayerID   uint64    `gorm:"not null;index" json:"payer_id"`
	Amount    float64   `gorm:"type:decimal(18,2);not null" json:"amount"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_repayments_loan_created" json:"created_at"`
}

func (Repayment) TableName() string { return "repayments" }

type AuditStatus string

const (
	AuditOK       AuditStatus = "OK"
	AuditSuspect  AuditStatus = "SUSPECT"
	AuditApproved AuditStatus = "APPROVED"
	AuditRejected AuditStatus = "REJECTED"
)

// PaymentAudit records every repayment's provenance. Third-party payments are
// quarantined here with status SUSPECT until an admin decides.
type PaymentAudit struct {
	ID            uint64      `gorm:"primaryKey;column:id" json:"-"`
	RepaymentID   uint64      `gorm:"not null;index:idx_payment_audits_repayment" json:"repayment_id"`
	GroupID       uint64      `gorm:"not null;index:idx_payment_audits_group_status" json:"group_id"`
	LoanID        uint64      `gorm:"not null;index" json:"loan_id"`
	PayerID       uint64      `gorm:"not null" json:"payer_id"`
	BorrowerID    uint64      `gorm:"not null;index" json:"borrower_id"`
	Amount        float64     `gorm:"type:decimal(18,2);not null" json:"amount"`
	AppliedAmount float64     `gorm:"type:decimal(18,2);not null;default:0" json:"applied_amount"`
	Status        AuditStatus `gorm:"size:20;not null;index:idx_payment_audits_group_status" json:"status"`
	Reason        string      `gorm:"size:255" json:"reason,omitempty"`
	CreatedAt     time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time   `gorm:"autoUpdateTime" json:"-"`
}

func (PaymentAudit) TableName() string { return "payment_audits" }

// PaymentApproval tracks the admin decision for a quarantined repayment.
type PaymentApproval struct {
	ID             uint64     `gorm:"primaryKey;column:id" json:"-"`
	RepaymentID    uint64     `gorm:"not null;uniqueIndex:ux_payment_approvals_repayment" json:"repayment_id"`
	PayerID        uint64     `gorm:"not null" json:"payer_id"`
	ApproverID     *uint64    `json:"approver_id,omitempty"`
	IsAgentPayment bool       `gorm:"not null;default:false" json:"is_agent_payment"`
	Approved       bool       `gorm:"not null;default:false" json:"approved"`
	DecidedAt      *time.Time `json:"decided_at,omitempty"`
	Notes          string     `gorm:"size:255" json:"notes,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (PaymentApproval) TableName() string { return "payment_approvals" }
