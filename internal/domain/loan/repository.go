package loan

import (
	"context"
	"time"
)

type Repository interface {
	CreateRequest(ctx context.Context, lr *LoanRequest) error
	GetRequest(ctx context.Context, id uint64) (*LoanRequest, error)
	ListRequestsByGroup(ctx context.Context, groupID uint64, userID *uint64, since *time.Time) ([]LoanRequest, error)

	CreateSession(ctx context.Context, s *VotingSession) error
	GetSessionByRequest(ctx context.Context, loanRequestID uint64) (*VotingSession, error)
	SaveSession(ctx context.Context, s *VotingSession) error
	ListSessionsByGroup(ctx context.Context, groupID uint64, since *time.Time) ([]VotingSession, error)

	CreateVote(ctx context.Context, v *VoteRecord) error
	GetVote(ctx context.Context, sessionID, voterID uint64) (*VoteRecord, error)
	CountVotes(ctx context.Context, sessionID uint64, choice Choice) (int, error)
	CountVotesByVoter(ctx context.Context, groupID, voterID uint64) (int, error)

	Create(ctx context.Context, l *Loan) error
	Save(ctx context.Context, l *Loan) error
	GetByID(ctx context.Context, id uint64) (*Loan, error)
	GetByIDForUpdate(ctx context.Context, id uint64) (*Loan, error)
	GetByRequestID(ctx context.Context, loanRequestID uint64) (*Loan, error)
	ListByGroup(ctx context.Context, groupID uint64, userID *uint64) ([]Loan, error)
	CountActiveByGroup(ctx context.Context, groupID uint64) (int, error)

	CreateScheduleEntries(ctx context.Context, entries []ScheduleEntry) error
	ListSchedule(ctx context.Context, loanID uint64) ([]ScheduleEntry, error)
	ListDueSchedule(ctx context.Context, loanID uint64) ([]ScheduleEntry, error)
	SaveScheduleEntry(ctx context.Context, e *ScheduleEntry) error
	ListPaidScheduleForUser(ctx context.Context, groupID, userID uint64, since *time.Time) ([]ScheduleEntry, error)

	CreateRepayment(ctx context.Context, r *Repayment) error
	GetRepayment(ctx context.Context, id uint64) (*Repayment, error)
	SumRepayments(ctx context.Context, loanID uint64) (float64, error)
	ListRepaymentsForUserLoans(ctx context.Context, groupID, borrowerID uint64, since *time.Time) ([]Repayment, error)

	CreateAudit(ctx context.Context, a *PaymentAudit) error
	GetAuditByRepayment(ctx context.Context, repaymentID uint64) (*PaymentAudit, error)
	SaveAudit(ctx context.Context, a *PaymentAudit) error
	ListSuspectAudits(ctx context.Context, groupIDs []uint64) ([]PaymentAudit, error)
	CountSuspectAudits(ctx context.Context, groupID, borrowerID uint64, since *time.Time) (int, error)

	CreateApproval(ctx context.Context, a *PaymentApproval) error
	GetApprovalByRepayment(ctx context.Context, repaymentID uint64) (*PaymentApproval, error)
	SaveApproval(ctx context.Context, a *PaymentApproval) error
}
