package mysql

import (
	"context"
	"time"

	loanDomain "coopfund-backend/internal/domain/loan"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LoanRepository struct{ db *gorm.DB }

func NewLoanRepository(db *gorm.DB) *LoanRepository { return &LoanRepository{db: db} }

func (r *LoanRepository) CreateRequest(ctx context.Context, lr *loanDomain.LoanRequest) error {
	return r.db.WithContext(ctx).Create(lr).Error
}

func (r *LoanRepository) GetRequest(ctx context.Context, id uint64) (*loanDomain.LoanRequest, error) {
	var out loanDomain.LoanRequest
	res := r.db.WithContext(ctx).First(&out, id)
	return &out, res.Error
}

func (r *LoanRepository) ListRequestsByGroup(ctx context.Context, groupID uint64, userID *uint64, since *time.Time) ([]loanDomain.LoanRequest, error) {
	var out []loanDomain.LoanRequest
	q := r.db.WithContext(ctx).Where("group_id = ?", groupID)
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	if since != nil {
		q = q.Where("created_at >= ?", *since)
	}
	res := q.Order("created_at DESC, id DESC").Find(&out)
	return out, res.Error
}

func (r *LoanRepository) CreateSession(ctx context.Context, s *loanDomain.VotingSession) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *LoanRepository) GetSessionByRequest(ctx context.Context, loanRequestID uint64) (*loanDomain.VotingSession, error) {
	var out loanDomain.VotingSession
	res := r.db.WithContext(ctx).Where("loan_request_id = ?", loanRequestID).First(&out)
	return &out, res.Error
}

func (r *LoanRepository) SaveSession(ctx context.Context, s *loanDomain.VotingSession) error {
	return r.db.WithContext(ctx).Save(s).Error
}

func (r *LoanRepository) ListSessionsByGroup(ctx context.Context, groupID uint64, since *time.Time) ([]loanDomain.VotingSession, error) {
	var out []loanDomain.VotingSession
	q := r.db.WithContext(ctx).Where("group_id = ?", groupID)
	if since != nil {
		q = q.Where("created_at >= ?", *since)
	}
	res := q.Order("created_at ASC, id ASC").Find(&out)
	return out, res.Error
}

func (r *LoanRepository) CreateVote(ctx context.Context, v *loanDomain.VoteRecord) error {
	return r.db.WithContext(ctx).Create(v).Error
}

func (r *LoanRepository) GetVote(ctx context.Context, sessionID, voterID uint64) (*loanDomain.VoteRecord, error) {
	var out loanDomain.VoteRecord
	res := r.db.WithContext(ctx).
		Where("session_id = ? AND voter_id = ?", sessionID, voterID).
		First(&out)
	return &out, res.Error
}

func (r *LoanRepository) CountVotes(ctx context.Context, sessionID uint64, choice loanDomain.Choice) (int, error) {
	var n int64
	res := r.db.WithContext(ctx).Model(&loanDomain.VoteRecord{}).
		Where("session_id = ? AND choice = ?", sessionID, choice).
		Count(&n)
	return int(n), res.Error
}

func (r *LoanRepository) CountVotesByVoter(ctx context.Context, groupID, voterID uint64) (int, error) {
	var n int64
	res := r.db.WithContext(ctx).Model(&loanDomain.VoteRecord{}).
		Joins("JOIN voting_sessions ON voting_sessions.id = vote_records.session_id").
		Where("voting_sessions.group_id = ? AND vote_records.voter_id = ?", groupID, voterID).
		Count(&n)
	return int(n), res.Error
}

func (r *LoanRepository) Create(ctx context.Context, l *loanDomain.Loan) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *LoanRepository) Save(ctx context.Context, l *loanDomain.Loan) error {
	return r.db.WithContext(ctx).Save(l).Error
}

func (r *LoanRepository) GetByID(ctx context.Context, id uint64) (*loanDomain.Loan, error) {
	var out loanDomain.Loan
	res := r.db.WithContext(ctx).First(&out, id)
	return &out, res.Error
}

// GetByIDForUpdate locks the loan row for the rest of the transaction. This
// is the serialization point for concurrent repayment application. SQLite
// (tests) has no row locks; its transactions already serialize writers.
func (r *LoanRepository) GetByIDForUpdate(ctx context.Context, id uint64) (*loanDomain.Loan, error) {
	q := r.db.WithContext(ctx)
	if q.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var out loanDomain.Loan
	res := q.First(&out, id)
	return &out, res.Error
}

func (r *LoanRepository) GetByRequestID(ctx context.Context, loanRequestID uint64) (*loanDomain.Loan, error) {
	var out loanDomain.Loan
	res := r.db.WithContext(ctx).Where("loan_request_id = ?", loanRequestID).First(&out)
	return &out, res.Error
}

func (r *LoanRepository) ListByGroup(ctx context.Context, groupID uint64, userID *uint64) ([]loanDomain.Loan, error) {
	var out []loanDomain.Loan
	q := r.db.WithContext(ctx).Where("group_id = ?", groupID)
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	res := q.Order("created_at DESC, id DESC").Find(&out)
	return out, res.Error
}

func (r *LoanRepository) CountActiveByGroup(ctx context.Context, groupID uint64) (int, error) {
	var n int64
	res := r.db.WithContext(ctx).Model(&loanDomain.Loan{}).
		Where("group_id = ? AND status = ?", groupID, loanDomain.StatusActive).
		Count(&n)
	return int(n), res.Error
}

func (r *LoanRepository) CreateScheduleEntries(ctx context.Context, entries []loanDomain.ScheduleEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&entries).Error
}

func (r *LoanRepository) ListSchedule(ctx context.Context, loanID uint64) ([]loanDomain.ScheduleEntry, error) {
	var out []loanDomain.ScheduleEntry
	res := r.db.WithContext(ctx).
		Where("loan_id = ?", loanID).
		Order("installment_no ASC").
		Find(&out)
	return out, res.Error
}

func (r *LoanRepository) ListDueSchedule(ctx context.Context, loanID uint64) ([]loanDomain.ScheduleEntry, error) {
	var out []loanDomain.ScheduleEntry
	res := r.db.WithContext(ctx).
		Where("loan_id = ? AND status IN ?", loanID,
			[]loanDomain.ScheduleStatus{loanDomain.ScheduleDue, loanDomain.ScheduleOverdue}).
		Order("installment_no ASC").
		Find(&out)
	return out, res.Error
}

func (r *LoanRepository) SaveScheduleEntry(ctx context.Context, e *loanDomain.ScheduleEntry) error {
	return r.db.WithContext(ctx).Save(e).Error
}

func (r *LoanRepository) ListPaidScheduleForUser(ctx context.Context, groupID, userID uint64, since *time.Time) ([]loanDomain.ScheduleEntry, error) {
	var out []loanDomain.ScheduleEntry
	q := r.db.WithContext(ctx).Model(&loanDomain.ScheduleEntry{}).
		Joins("JOIN loans ON loans.id = repayment_schedules.loan_id").
		Where("loans.group_id = ? AND loans.user_id = ?", groupID, userID).
		Where("repayment_schedules.status = ?", loanDomain.SchedulePaid)
	if since != nil {
		q = q.Where("repayment_schedules.paid_at >= ?", *since)
	}
	res := q.Order("repayment_schedules.paid_at ASC").Find(&out)
	return out, res.Error
}

func (r *LoanRepository) CreateRepayment(ctx context.Context, rep *loanDomain.Repayment) error {
	return r.db.WithContext(ctx).Create(rep).Error
}

func (r *LoanRepository) GetRepayment(ctx context.Context, id uint64) (*loanDomain.Repayment, error) {
	var out loanDomain.Repayment
	res := r.db.WithContext(ctx).First(&out, id)
	return &out, res.Error
}

func (r *LoanRepository) SumRepayments(ctx context.Context, loanID uint64) (float64, error) {
	var sum float64
	res := r.db.WithContext(ctx).Model(&loanDomain.Repayment{}).
		Where("loan_id = ?", loanID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum)
	return sum, res.Error
}

func (r *LoanRepository) ListRepaymentsForUserLoans(ctx context.Context, groupID, borrowerID uint64, since *time.Time) ([]loanDomain.Repayment, error) {
	var out []loanDomain.Repayment
	q := r.db.WithContext(ctx).Model(&loanDomain.Repayment{}).
		Joins("JOIN loans ON loans.id = repayments.loan_id").
		Where("loans.group_id = ? AND loans.user_id = ?", groupID, borrowerID)
	if since != nil {
		q = q.Where("repayments.created_at >= ?", *since)
	}
	res := q.Order("repayments.created_at ASC").Find(&out)
	return out, res.Error
}

func (r *LoanRepository) CreateAudit(ctx context.Context, a *loanDomain.PaymentAudit) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *LoanRepository) GetAuditByRepayment(ctx context.Context, repaymentID uint64) (*loanDomain.PaymentAudit, error) {
	var out loanDomain.PaymentAudit
	res := r.db.WithContext(ctx).Where("repayment_id = ?", repaymentID).First(&out)
	return &out, res.Error
}

func (r *LoanRepository) SaveAudit(ctx context.Context, a *loanDomain.PaymentAudit) error {
	return r.db.WithContext(ctx).Save(a).Error
}

func (r *LoanRepository) ListSuspectAudits(ctx context.Context, groupIDs []uint64) ([]loanDomain.PaymentAudit, error) {
	var out []loanDomain.PaymentAudit
	if len(groupIDs) == 0 {
		return out, nil
	}
	res := r.db.WithContext(ctx).
		Where("group_id IN ? AND status = ?", groupIDs, loanDomain.AuditSuspect).
		Order("created_at ASC").
		Find(&out)
	return out, res.Error
}

func (r *LoanRepository) CountSuspectAudits(ctx context.Context, groupID, borrowerID uint64, since *time.Time) (int, error) {
	var n int64
	q := r.db.WithContext(ctx).Model(&loanDomain.PaymentAudit{}).
		Where("group_id = ? AND borrower_id = ?", groupID, borrowerID).
		Where("status IN ?", []loanDomain.AuditStatus{loanDomain.AuditSuspect, loanDomain.AuditRejected})
	if since != nil {
		q = q.Where("created_at >= ?", *since)
	}
	res := q.Count(&n)
	return int(n), res.Error
}

func (r *LoanRepository) CreateApproval(ctx context.Context, a *loanDomain.PaymentApproval) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *LoanRepository) GetApprovalByRepayment(ctx context.Context, repaymentID uint64) (*loanDomain.PaymentApproval, error) {
	var out loanDomain.PaymentApproval
	res := r.db.WithContext(ctx).Where("repayment_id = ?", repaymentID).First(&out)
	return &out, res.Error
}

func (r *LoanRepository) SaveApproval(ctx context.Context, a *loanDomain.PaymentApproval) error {
	return r.db.WithContext(ctx).Save(a).Error
}
