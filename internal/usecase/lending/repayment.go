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

type RepaymentResult struct {
	RepaymentID      uint64  `json:"repayment_id"`
	PendingApproval  bool    `json:"pending_approval"`
	Applied          float64 `json:"applied"`
	ParkedCredit     float64 `json:"parked_credit"`
	InstallmentsPaid int     `json:"installments_paid"`
	LoanClosed       bool    `json:"loan_closed"`
	ExternalTx       string  `json:"external_tx,omitempty"`
}

// RecordRepayment takes money offered against a loan. Self-repayments move
// value payer to vault and apply immediately; third-party payments are
// quarantined as SUSPECT and wait for an admin decision, with no settlement
// transfer yet.
func (u *Usecase) RecordRepayment(ctx context.Context, loanID, payerID uint64, amount float64) (*RepaymentResult, error) {
	amount = money.Round2(amount)
	if amount <= 0 {
		return nil, fault.New(fault.Validation, "repayment amount must be positive")
	}

	var (
		l *loan.Loan
		g *group.Group
	)
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		var err error
		l, err = r.Loans.GetByID(ctx, loanID)
		if err != nil {
			return fault.Wrap(fault.NotFound, "loan not found", err)
		}
		if l.Status != loan.StatusActive {
			return fault.Newf(fault.InvalidState, "loan is %s, repayments only apply to active loans", l.Status)
		}
		if _, err := r.Groups.GetMembership(ctx, l.GroupID, payerID); err != nil {
			return fault.New(fault.Authorization, "payer is not a member of this group")
		}
		g, err = r.Groups.GetByID(ctx, l.GroupID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if payerID != l.UserID {
		return u.recordThirdParty(ctx, l, payerID, amount)
	}
	return u.recordSelf(ctx, l, g, amount)
}

func (u *Usecase) recordSelf(ctx context.Context, l *loan.Loan, g *group.Group, amount float64) (*RepaymentResult, error) {
	payerAcct, err := u.accounts.UserAccount(ctx, l.UserID)
	if err != nil {
		return nil, fault.Wrap(fault.ExternalNetwork, "could not resolve payer account", err)
	}

	var intent *outbox.Transfer
	err = u.uow.WithinTx(ctx, func(r uow.Repos) error {
		loanID := l.ID
		intent = &outbox.Transfer{
			ClientRef:   id.NewID32(),
			GroupID:     g.ID,
			FromAccount: payerAcct,
			ToAccount:   g.VaultAccount,
			Amount:      amount,
			AssetRef:    u.assetRef,
			Purpose:     outbox.PurposeRepayment,
			RefID:       &loanID,
			Status:      outbox.StatusPending,
		}
		return r.Outbox.Create(ctx, intent)
	})
	if err != nil {
		return nil, err
	}

	rcpt, err := transfers.Execute(ctx, u.uow, u.settle, intent.ID, u.now)
	if err != nil {
		return nil, err
	}

	var out RepaymentResult
	err = u.uow.WithinLoanTx(ctx, l.ID, func(r uow.Repos, locked *loan.Loan) error {
		if locked.Status != loan.StatusActive {
			// A concurrent repayment closed the loan after our transfer
			// settled: the whole amount becomes parked credit.
			return u.settleAgainstClosed(ctx, r, locked, amount, rcpt.TransactionID, &out)
		}
		now := u.now()

		rep := &loan.Repayment{LoanID: locked.ID, PayerID: locked.UserID, Amount: amount}
		if err := r.Loans.CreateRepayment(ctx, rep); err != nil {
			return err
		}

		uid := locked.UserID
		repID := rep.ID
		if err := r.Ledger.Append(ctx, &ledger.Entry{
			GroupID:      locked.GroupID,
			UserID:       &uid,
			RefType:      ledger.RefRepayment,
			RefID:        &repID,
			Amount:       amount,
			Note:         fmt.Sprintf("Repayment %.2f against loan %d", amount, locked.ID),
			ExternalTxID: rcpt.TransactionID,
		}); err != nil {
			return err
		}

		res, err := applyToSchedule(ctx, r, locked, rep.ID, amount, now)
		if err != nil {
			return err
		}
		if res.Remainder > 0 {
			if err := parkCredit(ctx, r, locked.GroupID, locked.UserID, rep.ID, res.Remainder,
				"OVERPAYMENT", fmt.Sprintf("Overpayment %.2f on loan %d parked as credit", res.Remainder, locked.ID)); err != nil {
				return err
			}
		}

		loanRef := locked.ID
		interest := profit.RepaymentInterest(g, res.AppliedPrincipal)
		if err := profit.Accrue(ctx, r, locked.GroupID, interest, &loanRef,
			fmt.Sprintf("Interest from repayment %d on loan %d", rep.ID, locked.ID)); err != nil {
			return err
		}

		if err := r.Loans.CreateAudit(ctx, &loan.PaymentAudit{
			RepaymentID:   rep.ID,
			GroupID:       locked.GroupID,
			LoanID:        locked.ID,
			PayerID:       locked.UserID,
			BorrowerID:    locked.UserID,
			Amount:        amount,
			AppliedAmount: res.Applied,
			Status:        loan.AuditOK,
		}); err != nil {
			return err
		}

		t, err := r.Outbox.GetByID(ctx, intent.ID)
		if err != nil {
			return err
		}
		t.Status = outbox.StatusSent
		t.ExternalTx = rcpt.TransactionID
		t.RefID = &repID
		if err := r.Outbox.Save(ctx, t); err != nil {
			return err
		}

		out = RepaymentResult{
			RepaymentID:      rep.ID,
			Applied:          res.Applied,
			ParkedCredit:     res.Remainder,
			InstallmentsPaid: res.InstallmentsPaid,
			LoanClosed:       res.Closed,
			ExternalTx:       rcpt.TransactionID,
		}
		return nil
	})
	if err != nil {
		uid := l.UserID
		transfers.Quarantine(ctx, u.uow, u.notifier, l.GroupID, &uid, amount, rcpt.TransactionID,
			fmt.Sprintf("Repayment of %.2f on loan %d settled externally (tx %s) but local application failed", amount, l.ID, rcpt.TransactionID))
		return nil, fault.Wrap(fault.Consistency, "repayment settled externally but could not be applied", err)
	}

	slog.Info("repayment applied",
		"loan_id", l.ID, "user_id", l.UserID, "amount", amount,
		"applied", out.Applied, "parked", out.ParkedCredit, "closed", out.LoanClosed)
	if out.LoanClosed {
		u.publish(ctx, consensus.Event{
			Action: "loan_closed", GroupID: l.GroupID, ActorID: l.UserID,
			Fields: map[string]any{"loan_id": l.ID},
		})
		u.notifier.Notify(ctx, l.UserID, "Your loan is fully repaid and closed", notify.LevelSuccess)
	}
	return &out, nil
}

// settleAgainstClosed handles money that arrived for a loan no longer active:
// the transfer already settled, so the full amount parks as credit.
func (u *Usecase) settleAgainstClosed(ctx context.Context, r uow.Repos, locked *loan.Loan, amount float64, externalTx string, out *RepaymentResult) error {
	rep := &loan.Repayment{LoanID: locked.ID, PayerID: locked.UserID, Amount: amount}
	if err := r.Loans.CreateRepayment(ctx, rep); err != nil {
		return err
	}
	uid := locked.UserID
	repID := rep.ID
	if err := r.Ledger.Append(ctx, &ledger.Entry{
		GroupID:      locked.GroupID,
		UserID:       &uid,
		RefType:      ledger.RefRepayment,
		RefID:        &repID,
		Amount:       amount,
		Note:         fmt.Sprintf("Repayment %.2f against settled loan %d", amount, locked.ID),
		ExternalTxID: externalTx,
	}); err != nil {
		return err
	}
	if err := parkCredit(ctx, r, locked.GroupID, locked.UserID, rep.ID, amount,
		"OVERPAYMENT", fmt.Sprintf("Loan %d already settled, %.2f parked as credit", locked.ID, amount)); err != nil {
		return err
	}
	*out = RepaymentResult{RepaymentID: rep.ID, ParkedCredit: amount, ExternalTx: externalTx}
	return nil
}

func (u *Usecase) recordThirdParty(ctx context.Context, l *loan.Loan, payerID uint64, amount float64) (*RepaymentResult, error) {
	var out RepaymentResult
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		rep := &loan.Repayment{LoanID: l.ID, PayerID: payerID, Amount: amount}
		if err := r.Loans.CreateRepayment(ctx, rep); err != nil {
			return err
		}

		payer, err := r.Groups.GetMembership(ctx, l.GroupID, payerID)
		if err != nil {
			return fault.New(fault.Authorization, "payer is not a member of this group")
		}
		if err := r.Loans.CreateAudit(ctx, &loan.PaymentAudit{
			RepaymentID: rep.ID,
			GroupID:     l.GroupID,
			LoanID:      l.ID,
			PayerID:     payerID,
			BorrowerID:  l.UserID,
			Amount:      amount,
			Status:      loan.AuditSuspect,
			Reason:      fmt.Sprintf("Paid by user %d, not the borrower", payerID),
		}); err != nil {
			return err
		}
		if err := r.Loans.CreateApproval(ctx, &loan.PaymentApproval{
			RepaymentID:    rep.ID,
			PayerID:        payerID,
			IsAgentPayment: payer.Role == group.RoleAdmin,
		}); err != nil {
			return err
		}
		out = RepaymentResult{RepaymentID: rep.ID, PendingApproval: true}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("third-party repayment quarantined", "loan_id", l.ID, "payer_id", payerID, "amount", amount)
	u.notifyGroupAdmins(ctx, l.GroupID,
		fmt.Sprintf("Third-party payment of %.2f on loan %d needs review", amount, l.ID))
	return &out, nil
}
