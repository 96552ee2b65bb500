package lending

import (
	"context"
	"fmt"
	"log/slog"

	"coopfund-backend/internal/domain/fault"
	"coopfund-backend/internal/domain/group"
	"coopfund-backend/internal/domain/ledger"
	"coopfund-backend/internal/domain/loan"
	"coopfund-backend/internal/domain/outbox"
	"coopfund-backend/internal/domain/uow"
	"coopfund-backend/internal/external/consensus"
	"coopfund-backend/internal/external/notify"
	"coopfund-backend/internal/usecase/profit"
	"coopfund-backend/internal/usecase/transfers"
	"coopfund-backend/pkg/id"
	"coopfund-backend/pkg/money"
)

type ApprovalResult struct {
	RepaymentID      uint64  `json:"repayment_id"`
	AlreadyDecided   bool    `json:"already_decided"`
	Applied          float64 `json:"applied"`
	ParkedCredit     float64 `json:"parked_credit"`
	InstallmentsPaid int     `json:"installments_paid"`
	LoanClosed       bool    `json:"loan_closed"`
}

// AdminApprovePayment applies a quarantined third-party payment. The admin
// may apply less than the offered amount; whatever is not applied parks as
// credit for the borrower. Third-party funds arrive through the payment
// gateway outside this service, so approval moves no settlement money; it
// only books the application.
func (u *Usecase) AdminApprovePayment(ctx context.Context, repaymentID, actorID uint64, applyAmount *float64) (*ApprovalResult, error) {
	var (
		rep   *loan.Repayment
		l     *loan.Loan
		g     *group.Group
		audit *loan.PaymentAudit
	)
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		var err error
		rep, err = r.Loans.GetRepayment(ctx, repaymentID)
		if err != nil {
			return fault.Wrap(fault.NotFound, "repayment not found", err)
		}
		l, err = r.Loans.GetByID(ctx, rep.LoanID)
		if err != nil {
			return err
		}
		m, err := r.Groups.GetMembership(ctx, l.GroupID, actorID)
		if err != nil || m.Role != group.RoleAdmin {
			return fault.New(fault.Authorization, "only group admins can approve payments")
		}
		g, err = r.Groups.GetByID(ctx, l.GroupID)
		if err != nil {
			return err
		}
		audit, err = r.Loans.GetAuditByRepayment(ctx, repaymentID)
		if err != nil {
			return fault.Wrap(fault.NotFound, "payment audit not found", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch audit.Status {
	case loan.AuditApproved:
		return &ApprovalResult{RepaymentID: repaymentID, AlreadyDecided: true, Applied: audit.AppliedAmount}, nil
	case loan.AuditRejected:
		return nil, fault.New(fault.InvalidState, "payment was already rejected")
	case loan.AuditSuspect:
	default:
		return nil, fault.Newf(fault.InvalidState, "payment audit is %s, not awaiting approval", audit.Status)
	}

	amount := rep.Amount
	if applyAmount != nil {
		amount = money.Round2(*applyAmount)
		if amount <= 0 || amount > rep.Amount {
			return nil, fault.Newf(fault.Validation, "apply amount must be within (0, %.2f]", rep.Amount)
		}
	}
	leftover := money.Round2(rep.Amount - amount)

	var out ApprovalResult
	err = u.uow.WithinLoanTx(ctx, l.ID, func(r uow.Repos, locked *loan.Loan) error {
		// Re-read under the lock: another admin may have decided first.
		a, err := r.Loans.GetAuditByRepayment(ctx, repaymentID)
		if err != nil {
			return err
		}
		if a.Status != loan.AuditSuspect {
			out = ApprovalResult{RepaymentID: repaymentID, AlreadyDecided: true, Applied: a.AppliedAmount}
			return nil
		}

		res, err := applyToSchedule(ctx, r, locked, repaymentID, amount, u.now())
		if err != nil {
			return err
		}
		parked := money.Round2(res.Remainder + leftover)
		if parked > 0 {
			if err := parkCredit(ctx, r, locked.GroupID, locked.UserID, repaymentID, parked,
				"OVERPAYMENT", fmt.Sprintf("Unapplied portion of approved payment %d parked as credit", repaymentID)); err != nil {
				return err
			}
		}

		uid := locked.UserID
		repID := repaymentID
		if err := r.Ledger.Append(ctx, &ledger.Entry{
			GroupID: locked.GroupID,
			UserID:  &uid,
			RefType: ledger.RefRepaymentApplied,
			RefID:   &repID,
			Amount:  res.Applied,
			Note:    fmt.Sprintf("Approved third-party payment %d applied by admin %d", repaymentID, actorID),
		}); err != nil {
			return err
		}

		loanRef := locked.ID
		if err := profit.Accrue(ctx, r, locked.GroupID, profit.RepaymentInterest(g, res.AppliedPrincipal), &loanRef,
			fmt.Sprintf("Interest from approved payment %d on loan %d", repaymentID, locked.ID)); err != nil {
			return err
		}

		a.Status = loan.AuditApproved
		a.AppliedAmount = res.Applied
		if err := r.Loans.SaveAudit(ctx, a); err != nil {
			return err
		}
		ap, err := r.Loans.GetApprovalByRepayment(ctx, repaymentID)
		if err != nil {
			return err
		}
		now := u.now()
		approver := actorID
		ap.Approved = true
		ap.ApproverID = &approver
		ap.DecidedAt = &now
		if err := r.Loans.SaveApproval(ctx, ap); err != nil {
			return err
		}

		out = ApprovalResult{
			RepaymentID:      repaymentID,
			Applied:          res.Applied,
			ParkedCredit:     parked,
			InstallmentsPaid: res.InstallmentsPaid,
			LoanClosed:       res.Closed,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !out.AlreadyDecided {
		slog.Info("third-party payment approved",
			"repayment_id", repaymentID, "loan_id", l.ID, "admin_id", actorID,
			"applied", out.Applied, "parked", out.ParkedCredit, "closed", out.LoanClosed)
		u.publish(ctx, consensus.Event{
			Action: "payment_approved", GroupID: l.GroupID, ActorID: actorID,
			Fields: map[string]any{"repayment_id": repaymentID, "applied": out.Applied},
		})
		u.notifier.Notify(ctx, rep.PayerID, "Your payment was approved and applied", notify.LevelSuccess)
		if rep.PayerID != l.UserID {
			u.notifier.Notify(ctx, l.UserID, fmt.Sprintf("A payment of %.2f was applied to your loan", out.Applied), notify.LevelInfo)
		}
	}
	return &out, nil
}

type RejectionResult struct {
	RepaymentID    uint64 `json:"repayment_id"`
	AlreadyDecided bool   `json:"already_decided"`
	RefundIssued   bool   `json:"refund_issued"`
	RefundError    string `json:"refund_error,omitempty"`
}

// AdminRejectPayment marks a quarantined payment rejected and attempts a
// best-effort refund back to the payer. The rejection stands whether or not
// the refund settles; a failed refund stays in the outbox for the sweep.
func (u *Usecase) AdminRejectPayment(ctx context.Context, repaymentID, actorID uint64) (*RejectionResult, error) {
	var (
		rep       *loan.Repayment
		l         *loan.Loan
		g         *group.Group
		intent    *outbox.Transfer
		decided   bool
		payerAcct string
	)
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		var err error
		rep, err = r.Loans.GetRepayment(ctx, repaymentID)
		if err != nil {
			return fault.Wrap(fault.NotFound, "repayment not found", err)
		}
		l, err = r.Loans.GetByID(ctx, rep.LoanID)
		if err != nil {
			return err
		}
		m, err := r.Groups.GetMembership(ctx, l.GroupID, actorID)
		if err != nil || m.Role != group.RoleAdmin {
			return fault.New(fault.Authorization, "only group admins can reject payments")
		}
		g, err = r.Groups.GetByID(ctx, l.GroupID)
		if err != nil {
			return err
		}

		audit, err := r.Loans.GetAuditByRepayment(ctx, repaymentID)
		if err != nil {
			return fault.Wrap(fault.NotFound, "payment audit not found", err)
		}
		switch audit.Status {
		case loan.AuditRejected:
			decided = true
			return nil
		case loan.AuditSuspect:
		default:
			return fault.Newf(fault.InvalidState, "payment audit is %s, only suspect payments can be rejected", audit.Status)
		}

		audit.Status = loan.AuditRejected
		audit.Reason = fmt.Sprintf("Rejected by admin %d", actorID)
		if err := r.Loans.SaveAudit(ctx, audit); err != nil {
			return err
		}
		ap, err := r.Loans.GetApprovalByRepayment(ctx, repaymentID)
		if err != nil {
			return err
		}
		now := u.now()
		approver := actorID
		ap.Approved = false
		ap.ApproverID = &approver
		ap.DecidedAt = &now
		ap.Notes = "rejected"
		if err := r.Loans.SaveApproval(ctx, ap); err != nil {
			return err
		}

		payerAcct, err = u.accounts.UserAccount(ctx, rep.PayerID)
		if err != nil {
			// Refund is best-effort: the rejection still commits.
			slog.Warn("could not resolve payer account for refund", "repayment_id", repaymentID, "error", err)
			return nil
		}
		repID := rep.ID
		intent = &outbox.Transfer{
			ClientRef:   id.NewID32(),
			GroupID:     g.ID,
			FromAccount: g.VaultAccount,
			ToAccount:   payerAcct,
			Amount:      rep.Amount,
			AssetRef:    u.assetRef,
			Purpose:     outbox.PurposeRefund,
			RefID:       &repID,
			Status:      outbox.StatusPending,
		}
		return r.Outbox.Create(ctx, intent)
	})
	if err != nil {
		return nil, err
	}
	if decided {
		return &RejectionResult{RepaymentID: repaymentID, AlreadyDecided: true}, nil
	}

	out := RejectionResult{RepaymentID: repaymentID}
	if intent != nil {
		rcpt, refundErr := transfers.Execute(ctx, u.uow, u.settle, intent.ID, u.now)
		if refundErr != nil {
			out.RefundError = refundErr.Error()
			slog.Warn("refund transfer failed after rejection", "repayment_id", repaymentID, "error", refundErr)
		} else {
			out.RefundIssued = true
			recErr := u.uow.WithinTx(ctx, func(r uow.Repos) error {
				payer := rep.PayerID
				repID := rep.ID
				if err := r.Ledger.Append(ctx, &ledger.Entry{
					GroupID:      g.ID,
					UserID:       &payer,
					RefType:      ledger.RefRefund,
					RefID:        &repID,
					Amount:       rep.Amount,
					Note:         fmt.Sprintf("Refund of rejected payment %d to user %d", repaymentID, rep.PayerID),
					ExternalTxID: rcpt.TransactionID,
				}); err != nil {
					return err
				}
				t, err := r.Outbox.GetByID(ctx, intent.ID)
				if err != nil {
					return err
				}
				t.Status = outbox.StatusSent
				t.ExternalTx = rcpt.TransactionID
				return r.Outbox.Save(ctx, t)
			})
			if recErr != nil {
				payer := rep.PayerID
				transfers.Quarantine(ctx, u.uow, u.notifier, g.ID, &payer, rep.Amount, rcpt.TransactionID,
					fmt.Sprintf("Refund of %.2f for rejected payment %d settled externally (tx %s) but local recording failed", rep.Amount, repaymentID, rcpt.TransactionID))
			}
		}
	}

	slog.Info("third-party payment rejected",
		"repayment_id", repaymentID, "loan_id", l.ID, "admin_id", actorID, "refund_issued", out.RefundIssued)
	u.publish(ctx, consensus.Event{
		Action: "payment_rejected", GroupID: l.GroupID, ActorID: actorID,
		Fields: map[string]any{"repayment_id": repaymentID, "refund_issued": out.RefundIssued},
	})
	u.notifier.Notify(ctx, rep.PayerID, "Your payment was rejected", notify.LevelWarning)
	return &out, nil
}

// ListSuspectPayments returns the quarantined payments awaiting a decision in
// a group. Admin-only.
func (u *Usecase) ListSuspectPayments(ctx context.Context, slug string, actorID uint64) ([]loan.PaymentAudit, error) {
	var out []loan.PaymentAudit
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		g, err := r.Groups.GetBySlug(ctx, slug)
		if err != nil {
			return fault.Wrap(fault.NotFound, "group not found", err)
		}
		m, err := r.Groups.GetMembership(ctx, g.ID, actorID)
		if err != nil || m.Role != group.RoleAdmin {
			return fault.New(fault.Authorization, "only group admins can review payments")
		}
		out, err = r.Loans.ListSuspectAudits(ctx, []uint64{g.ID})
		return err
	})
	return out, err
}

// ListCredits returns the parked credit balances in a group. Admins see every
// member's credit, members only their own.
func (u *Usecase) ListCredits(ctx context.Context, slug string, actorID uint64) ([]ledger.CreditBalance, error) {
	var out []ledger.CreditBalance
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
		out, err = r.Ledger.ListCredits(ctx, g.ID, filter)
		return err
	})
	return out, err
}

type CreditApplicationResult struct {
	Applied          float64 `json:"applied"`
	RemainingCredit  float64 `json:"remaining_credit"`
	InstallmentsPaid int     `json:"installments_paid"`
	LoanClosed       bool    `json:"loan_closed"`
}

// AdminApplyCredit consumes a member's parked credit against one of their
// active loans. The money already sits in the vault, so no settlement
// transfer is involved; any portion no installment can absorb stays parked.
func (u *Usecase) AdminApplyCredit(ctx context.Context, creditID, actorID, loanID uint64, amount float64) (*CreditApplicationResult, error) {
	amount = money.Round2(amount)
	if amount <= 0 {
		return nil, fault.New(fault.Validation, "credit amount must be positive")
	}

	var out CreditApplicationResult
	err := u.uow.WithinLoanTx(ctx, loanID, func(r uow.Repos, locked *loan.Loan) error {
		m, err := r.Groups.GetMembership(ctx, locked.GroupID, actorID)
		if err != nil || m.Role != group.RoleAdmin {
			return fault.New(fault.Authorization, "only group admins can apply credit")
		}
		if locked.Status != loan.StatusActive {
			return fault.Newf(fault.InvalidState, "loan is %s, credit only applies to active loans", locked.Status)
		}

		cr, err := r.Ledger.GetCreditByID(ctx, creditID)
		if err != nil || cr == nil {
			return fault.New(fault.NotFound, "credit balance not found")
		}
		if cr.GroupID != locked.GroupID || cr.UserID != locked.UserID {
			return fault.New(fault.Validation, "credit does not belong to this loan's borrower")
		}
		if amount > cr.Amount {
			return fault.Newf(fault.Validation, "amount exceeds parked credit of %.2f", cr.Amount)
		}

		rep := &loan.Repayment{LoanID: locked.ID, PayerID: cr.UserID, Amount: amount}
		if err := r.Loans.CreateRepayment(ctx, rep); err != nil {
			return err
		}

		res, err := applyToSchedule(ctx, r, locked, rep.ID, amount, u.now())
		if err != nil {
			return err
		}
		// Only the applied portion leaves the credit; the remainder never
		// moved.
		cr.Amount = money.Round2(cr.Amount - res.Applied)
		if err := r.Ledger.SaveCredit(ctx, cr); err != nil {
			return err
		}

		uid := cr.UserID
		repID := rep.ID
		if err := r.Ledger.Append(ctx, &ledger.Entry{
			GroupID: locked.GroupID,
			UserID:  &uid,
			RefType: ledger.RefCreditApplied,
			RefID:   &repID,
			Amount:  res.Applied,
			Note:    fmt.Sprintf("Parked credit applied to loan %d by admin %d", locked.ID, actorID),
		}); err != nil {
			return err
		}

		if err := r.Loans.CreateAudit(ctx, &loan.PaymentAudit{
			RepaymentID:   rep.ID,
			GroupID:       locked.GroupID,
			LoanID:        locked.ID,
			PayerID:       cr.UserID,
			BorrowerID:    locked.UserID,
			Amount:        amount,
			AppliedAmount: res.Applied,
			Status:        loan.AuditOK,
			Reason:        "parked credit application",
		}); err != nil {
			return err
		}

		out = CreditApplicationResult{
			Applied:          res.Applied,
			RemainingCredit:  cr.Amount,
			InstallmentsPaid: res.InstallmentsPaid,
			LoanClosed:       res.Closed,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("credit applied to loan",
		"credit_id", creditID, "loan_id", loanID, "admin_id", actorID,
		"applied", out.Applied, "closed", out.LoanClosed)
	return &out, nil
}
