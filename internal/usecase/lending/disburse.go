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
	"coopfund-backend/internal/usecase/transfers"
	"coopfund-backend/pkg/id"
	"coopfund-backend/pkg/money"
)

type DisburseResult struct {
	Loan            *loan.Loan `json:"loan"`
	AlreadyActive   bool       `json:"already_active"`
	ExternalTx      string     `json:"external_tx,omitempty"`
	InstallmentsGen int        `json:"installments_generated,omitempty"`
}

// Disburse moves the principal from the vault to the borrower and activates
// the loan. Idempotent: disbursing an already-active loan returns it
// unchanged with no new transfer.
func (u *Usecase) Disburse(ctx context.Context, loanRequestID, actorID uint64) (*DisburseResult, error) {
	var (
		l        *loan.Loan
		g        *group.Group
		intent   *outbox.Transfer
		borrower string
	)
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		target, err := r.Loans.GetByRequestID(ctx, loanRequestID)
		if err != nil || target == nil {
			return fault.New(fault.InvalidState, "loan request has no approved loan to disburse")
		}
		l = target

		m, err := r.Groups.GetMembership(ctx, l.GroupID, actorID)
		if err != nil || m.Role != group.RoleAdmin {
			return fault.New(fault.Authorization, "only group admins can disburse loans")
		}

		switch l.Status {
		case loan.StatusActive, loan.StatusClosed:
			return nil // idempotent success, handled below
		case loan.StatusApproved:
		default:
			return fault.Newf(fault.InvalidState, "loan is %s, not disbursable", l.Status)
		}

		g, err = r.Groups.GetByID(ctx, l.GroupID)
		if err != nil {
			return err
		}
		borrower, err = u.accounts.UserAccount(ctx, l.UserID)
		if err != nil {
			return fault.Wrap(fault.ExternalNetwork, "could not resolve borrower account", err)
		}

		loanID := l.ID
		intent = &outbox.Transfer{
			ClientRef:   id.NewID32(),
			GroupID:     g.ID,
			FromAccount: g.VaultAccount,
			ToAccount:   borrower,
			Amount:      l.Principal,
			AssetRef:    u.assetRef,
			Purpose:     outbox.PurposeDisbursal,
			RefID:       &loanID,
			Status:      outbox.StatusPending,
		}
		return r.Outbox.Create(ctx, intent)
	})
	if err != nil {
		return nil, err
	}
	if l.Status != loan.StatusApproved {
		return &DisburseResult{Loan: l, AlreadyActive: true}, nil
	}

	rcpt, err := transfers.Execute(ctx, u.uow, u.settle, intent.ID, u.now)
	if err != nil {
		return nil, err
	}

	var out DisburseResult
	err = u.uow.WithinLoanTx(ctx, l.ID, func(r uow.Repos, locked *loan.Loan) error {
		if locked.Status != loan.StatusApproved {
			// A concurrent disbursal won the race after our transfer left;
			// that should be impossible with the outbox intent recorded, but
			// never double-book the ledger if it happens.
			out = DisburseResult{Loan: locked, AlreadyActive: true, ExternalTx: rcpt.TransactionID}
			return nil
		}
		now := u.now()
		locked.Status = loan.StatusActive
		locked.DisbursedAt = &now
		if err := r.Loans.Save(ctx, locked); err != nil {
			return err
		}

		entries := buildSchedule(locked, now)
		if err := r.Loans.CreateScheduleEntries(ctx, entries); err != nil {
			return err
		}

		uid := locked.UserID
		loanID := locked.ID
		if err := r.Ledger.Append(ctx, &ledger.Entry{
			GroupID:      locked.GroupID,
			UserID:       &uid,
			RefType:      ledger.RefLoanDisbursal,
			RefID:        &loanID,
			Amount:       locked.Principal,
			Note:         fmt.Sprintf("Loan %d disbursed to user %d", locked.ID, locked.UserID),
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
		if err := r.Outbox.Save(ctx, t); err != nil {
			return err
		}

		out = DisburseResult{Loan: locked, ExternalTx: rcpt.TransactionID, InstallmentsGen: len(entries)}
		return nil
	})
	if err != nil {
		uid := l.UserID
		transfers.Quarantine(ctx, u.uow, u.notifier, l.GroupID, &uid, l.Principal, rcpt.TransactionID,
			fmt.Sprintf("Disbursal of %.2f for loan %d settled externally (tx %s) but local activation failed", l.Principal, l.ID, rcpt.TransactionID))
		return nil, fault.Wrap(fault.Consistency, "disbursal settled externally but could not be recorded", err)
	}

	if !out.AlreadyActive {
		slog.Info("loan disbursed",
			"loan_id", l.ID, "group_id", l.GroupID, "user_id", l.UserID,
			"principal", l.Principal, "installments", out.InstallmentsGen, "external_tx", rcpt.TransactionID)
		u.publish(ctx, consensus.Event{
			Action: "loan_disbursed", GroupID: l.GroupID, ActorID: actorID,
			Fields: map[string]any{"loan_id": l.ID, "principal": l.Principal, "external_tx": rcpt.TransactionID},
		})
		u.notifier.Notify(ctx, l.UserID, fmt.Sprintf("Your loan of %.2f has been disbursed", l.Principal), notify.LevelSuccess)
	}
	return &out, nil
}

// Schedule returns a loan's installment plan.
func (u *Usecase) Schedule(ctx context.Context, loanID, actorID uint64) ([]loan.ScheduleEntry, error) {
	var out []loan.ScheduleEntry
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		l, err := r.Loans.GetByID(ctx, loanID)
		if err != nil {
			return fault.Wrap(fault.NotFound, "loan not found", err)
		}
		m, err := r.Groups.GetMembership(ctx, l.GroupID, actorID)
		if err != nil {
			return fault.New(fault.Authorization, "not a member of this group")
		}
		if m.Role != group.RoleAdmin && l.UserID != actorID {
			return fault.New(fault.Authorization, "only the borrower or an admin can view the schedule")
		}
		out, err = r.Loans.ListSchedule(ctx, loanID)
		return err
	})
	return out, err
}

type LoanView struct {
	Loan           *loan.Loan `json:"loan"`
	TotalRepaid    float64    `json:"total_repaid"`
	OutstandingDue float64    `json:"outstanding_due"`
}

// GetLoan returns a loan with its repayment progress. Same visibility as the
// schedule: the borrower or a group admin.
func (u *Usecase) GetLoan(ctx context.Context, loanID, actorID uint64) (*LoanView, error) {
	var out LoanView
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		l, err := r.Loans.GetByID(ctx, loanID)
		if err != nil {
			return fault.Wrap(fault.NotFound, "loan not found", err)
		}
		m, err := r.Groups.GetMembership(ctx, l.GroupID, actorID)
		if err != nil {
			return fault.New(fault.Authorization, "not a member of this group")
		}
		if m.Role != group.RoleAdmin && l.UserID != actorID {
			return fault.New(fault.Authorization, "only the borrower or an admin can view this loan")
		}

		repaid, err := r.Loans.SumRepayments(ctx, loanID)
		if err != nil {
			return err
		}
		due, err := r.Loans.ListDueSchedule(ctx, loanID)
		if err != nil {
			return err
		}
		var outstanding float64
		for _, e := range due {
			outstanding += e.DueAmount
		}
		out = LoanView{Loan: l, TotalRepaid: money.Round2(repaid), OutstandingDue: money.Round2(outstanding)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
