package lending

import (
	"context"
	"time"

	"coopfund-backend/internal/domain/ledger"
	"coopfund-backend/internal/domain/loan"
	"coopfund-backend/internal/domain/uow"
	"coopfund-backend/pkg/money"
)

// applyOutcome reports what one application pass did to a locked loan.
type applyOutcome struct {
	Applied          float64 // sum of due amounts settled
	AppliedPrincipal float64
	AppliedInterest  float64
	Remainder        float64 // part of the amount no installment could absorb
	InstallmentsPaid int
	Closed           bool
}

// applyToSchedule walks the locked loan's unpaid installments in order and
// marks each one paid while the running amount still covers its full due
// amount. Partial coverage never marks an installment paid; what the caller
// does with the remainder (park it, leave it in credit) is its decision.
// The loan closes when no due installments remain. Must run inside
// WithinLoanTx so concurrent applications serialize on the loan row.
func applyToSchedule(ctx context.Context, r uow.Repos, locked *loan.Loan, repaymentID uint64, amount float64, now time.Time) (applyOutcome, error) {
	var out applyOutcome
	remaining := money.Round2(amount)

	due, err := r.Loans.ListDueSchedule(ctx, locked.ID)
	if err != nil {
		return out, err
	}

	dueLeft := len(due)
	for i := range due {
		e := due[i]
		// Half-cent tolerance so float drift never strands a fully-funded
		// installment.
		if remaining+0.005 < e.DueAmount {
			break
		}
		e.Status = loan.SchedulePaid
		paidAt := now
		e.PaidAt = &paidAt
		repID := repaymentID
		e.PaidRepaymentID = &repID
		if err := r.Loans.SaveScheduleEntry(ctx, &e); err != nil {
			return out, err
		}
		remaining = money.Round2(remaining - e.DueAmount)
		out.Applied = money.Round2(out.Applied + e.DueAmount)
		out.AppliedPrincipal = money.Round2(out.AppliedPrincipal + e.PrincipalComponent)
		out.AppliedInterest = money.Round2(out.AppliedInterest + e.InterestComponent)
		out.InstallmentsPaid++
		dueLeft--
	}
	out.Remainder = remaining

	if dueLeft == 0 && locked.Status == loan.StatusActive {
		locked.Status = loan.StatusClosed
		closedAt := now
		locked.ClosedAt = &closedAt
		if err := r.Loans.Save(ctx, locked); err != nil {
			return out, err
		}
		out.Closed = true
	}
	return out, nil
}

// parkCredit adds amount to the member's parked credit inside the group,
// appending the paired credit_parked ledger entry.
func parkCredit(ctx context.Context, r uow.Repos, groupID, userID, repaymentID uint64, amount float64, source, note string) error {
	amount = money.Round2(amount)
	if amount <= 0 {
		return nil
	}
	cr, err := r.Ledger.GetCredit(ctx, groupID, userID)
	if err != nil || cr == nil {
		cr = &ledger.CreditBalance{GroupID: groupID, UserID: userID}
	}
	cr.Amount = money.Round2(cr.Amount + amount)
	if cr.Source == "" {
		cr.Source = source
	}
	if err := r.Ledger.SaveCredit(ctx, cr); err != nil {
		return err
	}
	uid := userID
	repID := repaymentID
	return r.Ledger.Append(ctx, &ledger.Entry{
		GroupID: groupID,
		UserID:  &uid,
		RefType: ledger.RefCreditParked,
		RefID:   &repID,
		Amount:  amount,
		Note:    note,
	})
}
