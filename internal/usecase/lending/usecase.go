// Package lending implements the loan lifecycle: request, vote, disbursal,
// repayment and the admin decisions around quarantined third-party payments.
package lending

import (
	"context"
	"log/slog"
	"time"

	"coopfund-backend/internal/domain/fault"
	"coopfund-backend/internal/domain/group"
	"coopfund-backend/internal/domain/loan"
	"coopfund-backend/internal/domain/uow"
	"coopfund-backend/internal/external/consensus"
	"coopfund-backend/internal/external/kyc"
	"coopfund-backend/internal/external/notify"
	"coopfund-backend/internal/external/settlement"
	"coopfund-backend/pkg/money"
)

type Usecase struct {
	uow      uow.UnitOfWork
	settle   settlement.Client
	accounts settlement.Directory
	verifier kyc.Verifier
	notifier notify.Dispatcher
	auditLog consensus.Publisher
	assetRef string
	now      func() time.Time
}

func NewUsecase(tx uow.UnitOfWork, client settlement.Client, dir settlement.Directory,
	verifier kyc.Verifier, n notify.Dispatcher, pub consensus.Publisher, assetRef string) *Usecase {
	return &Usecase{
		uow:      tx,
		settle:   client,
		accounts: dir,
		verifier: verifier,
		notifier: n,
		auditLog: pub,
		assetRef: assetRef,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source for tests.
func (u *Usecase) WithClock(now func() time.Time) *Usecase { u.now = now; return u }

type SubmitRequestInput struct {
	Amount  float64 `json:"amount" validate:"required,gt=0"`
	Purpose string  `json:"purpose" validate:"max=200"`
}

type RequestView struct {
	Request *loan.LoanRequest  `json:"request"`
	Status  loan.RequestStatus `json:"status"`
}

// SubmitLoanRequest creates the immutable request record and opens its voting
// session in one transaction. Eligibility: verified identity, membership, and
// the group's loan-size policy.
func (u *Usecase) SubmitLoanRequest(ctx context.Context, slug string, userID uint64, in SubmitRequestInput) (*RequestView, error) {
	amount := money.Round2(in.Amount)
	if amount <= 0 {
		return nil, fault.New(fault.Validation, "loan amount must be positive")
	}
	status, err := u.verifier.GetVerificationStatus(ctx, userID)
	if err != nil {
		return nil, fault.Wrap(fault.ExternalNetwork, "identity verification lookup failed", err)
	}
	if status != kyc.StatusVerified {
		return nil, fault.New(fault.Authorization, "identity must be verified before requesting a loan")
	}

	var req *loan.LoanRequest
	err = u.uow.WithinTx(ctx, func(r uow.Repos) error {
		g, err := r.Groups.GetBySlug(ctx, slug)
		if err != nil {
			return fault.Wrap(fault.NotFound, "group not found", err)
		}
		if _, err := r.Groups.GetMembership(ctx, g.ID, userID); err != nil {
			return fault.New(fault.Authorization, "not a member of this group")
		}

		bal, err := r.Groups.GetBalance(ctx, g.ID, userID)
		if err != nil || bal.NetPosition() < g.MinBalance {
			return fault.Newf(fault.Validation, "balance below the group minimum of %.2f required to borrow", g.MinBalance)
		}

		rule, err := r.Groups.GetPolicyRule(ctx, g.ID)
		if err == nil {
			if rule.MaxLoanPerMember != nil && amount > *rule.MaxLoanPerMember {
				return fault.Newf(fault.Validation, "amount exceeds the per-member cap of %.2f", *rule.MaxLoanPerMember)
			}
			poolTotal, err := r.Groups.SumDeposits(ctx, g.ID, nil, nil)
			if err != nil {
				return err
			}
			if limit := money.Round2(poolTotal * rule.MaxLoanPctOfPool / 100.0); limit > 0 && amount > limit {
				return fault.Newf(fault.Validation, "amount exceeds %.0f%% of the group pool (%.2f)", rule.MaxLoanPctOfPool, limit)
			}
		}

		req = &loan.LoanRequest{GroupID: g.ID, UserID: userID, Amount: amount, Purpose: in.Purpose}
		if err := r.Loans.CreateRequest(ctx, req); err != nil {
			return err
		}
		return r.Loans.CreateSession(ctx, &loan.VotingSession{
			GroupID:       g.ID,
			LoanRequestID: req.ID,
			Status:        loan.SessionOngoing,
		})
	})
	if err != nil {
		return nil, err
	}

	slog.Info("loan request submitted", "request_id", req.ID, "group_id", req.GroupID, "user_id", userID, "amount", amount)
	u.publish(ctx, consensus.Event{
		Action: "loan_request_submitted", GroupID: req.GroupID, ActorID: userID,
		Fields: map[string]any{"request_id": req.ID, "amount": amount},
	})
	return &RequestView{Request: req, Status: loan.RequestPending}, nil
}

// GetRequest returns a request with its derived status.
func (u *Usecase) GetRequest(ctx context.Context, requestID, actorID uint64) (*RequestView, error) {
	var out RequestView
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		req, err := r.Loans.GetRequest(ctx, requestID)
		if err != nil {
			return fault.Wrap(fault.NotFound, "loan request not found", err)
		}
		if _, err := r.Groups.GetMembership(ctx, req.GroupID, actorID); err != nil {
			return fault.New(fault.Authorization, "not a member of this group")
		}
		session, _ := r.Loans.GetSessionByRequest(ctx, req.ID)
		l, _ := r.Loans.GetByRequestID(ctx, req.ID)
		out = RequestView{Request: req, Status: loan.DeriveRequestStatus(session, l)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListLoans returns a group's loans; non-admins only see their own.
func (u *Usecase) ListLoans(ctx context.Context, slug string, actorID uint64) ([]loan.Loan, error) {
	var out []loan.Loan
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		g, err := r.Groups.GetBySlug(ctx, slug)
		if err != nil {
			return fault.Wrap(fault.NotFound, "group not found", err)
		}
		m, err := r.Groups.GetMembership(ctx, g.ID, actorID)
		if err != nil {
			return fault.New(fault.Authorization, "not a member of this group")
		}
		var filter *uint64
		if m.Role != group.RoleAdmin {
			self := actorID
			filter = &self
		}
		out, err = r.Loans.ListByGroup(ctx, g.ID, filter)
		return err
	})
	return out, err
}

func (u *Usecase) publish(ctx context.Context, ev consensus.Event) {
	if u.auditLog == nil {
		return
	}
	if err := u.auditLog.Publish(ctx, ev); err != nil {
		slog.Warn("consensus publish failed", "action", ev.Action, "error", err)
	}
}

func (u *Usecase) notifyGroupAdmins(ctx context.Context, groupID uint64, msg string) {
	_ = u.uow.WithinTx(ctx, func(r uow.Repos) error {
		ids, err := r.Groups.ListAdminIDs(ctx, groupID)
		if err == nil && len(ids) > 0 {
			u.notifier.NotifyMany(ctx, ids, msg)
		}
		return nil
	})
}
