// Package reconcile bridges local ledger state and the settlement network:
// the admin-triggered vault reconciliation report and the periodic outbox
// sweep.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"coopfund-backend/internal/domain/fault"
	"coopfund-backend/internal/domain/group"
	"coopfund-backend/internal/domain/ledger"
	"coopfund-backend/internal/domain/outbox"
	"coopfund-backend/internal/domain/uow"
	"coopfund-backend/internal/external/notify"
	"coopfund-backend/internal/external/settlement"
	"coopfund-backend/internal/usecase/transfers"
	"coopfund-backend/pkg/money"
)

type Usecase struct {
	uow      uow.UnitOfWork
	settle   settlement.Client
	notifier notify.Dispatcher
	retry    settlement.RetryPolicy

	// Epsilon is the tolerated vault drift before an adjustment is recorded.
	Epsilon float64
	// MaxAttempts bounds how often the sweep retries one outbox row.
	MaxAttempts int
	// StaleAfter is how long a sending row may sit untouched before it is
	// flagged for manual reconciliation.
	StaleAfter time.Duration

	now func() time.Time
}

func NewUsecase(tx uow.UnitOfWork, client settlement.Client, n notify.Dispatcher) *Usecase {
	return &Usecase{
		uow:         tx,
		settle:      client,
		notifier:    n,
		retry:       settlement.DefaultRetryPolicy(),
		Epsilon:     0.01,
		MaxAttempts: 5,
		StaleAfter:  15 * time.Minute,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source for tests.
func (u *Usecase) WithClock(now func() time.Time) *Usecase { u.now = now; return u }

// WithRetryPolicy overrides the balance-fetch retry policy for tests.
func (u *Usecase) WithRetryPolicy(p settlement.RetryPolicy) *Usecase { u.retry = p; return u }

type VaultReport struct {
	GroupID          uint64  `json:"group_id"`
	ExpectedVault    float64 `json:"expected_vault"`
	ReportedVault    float64 `json:"reported_vault"`
	Delta            float64 `json:"delta"`
	AdjustmentPosted bool    `json:"adjustment_posted"`
}

// ReconcileVault compares the ledger-implied vault balance against the
// network's report. Drift beyond epsilon is documented with one
// reconcile_adjustment entry; member balances are never touched.
func (u *Usecase) ReconcileVault(ctx context.Context, slug string, actorID uint64) (*VaultReport, error) {
	var (
		g        *group.Group
		expected float64
	)
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		var err error
		g, err = r.Groups.GetBySlug(ctx, slug)
		if err != nil {
			return fault.Wrap(fault.NotFound, "group not found", err)
		}
		m, err := r.Groups.GetMembership(ctx, g.ID, actorID)
		if err != nil || m.Role != group.RoleAdmin {
			return fault.New(fault.Authorization, "only group admins can reconcile the vault")
		}

		inflow, err := r.Ledger.SumByRefTypes(ctx, g.ID, []ledger.RefType{ledger.RefDeposit, ledger.RefRepayment})
		if err != nil {
			return err
		}
		outflow, err := r.Ledger.SumByRefTypes(ctx, g.ID, []ledger.RefType{ledger.RefWithdraw, ledger.RefLoanDisbursal, ledger.RefRefund})
		if err != nil {
			return err
		}
		expected = money.Round2(inflow - outflow)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Balance reads are idempotent, so transient errors get retried.
	var bal settlement.Balance
	err = u.retry.Do(ctx, func() error {
		var ferr error
		bal, ferr = u.settle.FetchBalance(ctx, g.VaultAccount)
		return ferr
	})
	if err != nil {
		return nil, fault.Wrap(fault.ExternalNetwork, "could not fetch vault balance", err)
	}

	report := &VaultReport{
		GroupID:       g.ID,
		ExpectedVault: expected,
		ReportedVault: bal.Amount,
		Delta:         money.Round2(bal.Amount - expected),
	}
	if math.Abs(report.Delta) > u.Epsilon {
		err = u.uow.WithinTx(ctx, func(r uow.Repos) error {
			return r.Ledger.Append(ctx, &ledger.Entry{
				GroupID: g.ID,
				RefType: ledger.RefReconcileAdjustment,
				Amount:  report.Delta,
				Note: fmt.Sprintf("Vault drift: network reports %.2f, ledger implies %.2f",
					bal.Amount, expected),
			})
		})
		if err != nil {
			return nil, err
		}
		report.AdjustmentPosted = true
		slog.Warn("vault drift detected",
			"group_id", g.ID, "expected", expected, "reported", bal.Amount, "delta", report.Delta)
	}
	return report, nil
}

type TransferTrail struct {
	Transfer *outbox.Transfer `json:"transfer"`
	Attempts []outbox.Attempt `json:"attempts"`
}

// GetTransferTrail returns an outbox transfer with its attempt history, for
// admins chasing a stuck or stale settlement.
func (u *Usecase) GetTransferTrail(ctx context.Context, transferID, actorID uint64) (*TransferTrail, error) {
	var out TransferTrail
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		t, err := r.Outbox.GetByID(ctx, transferID)
		if err != nil {
			return fault.Wrap(fault.NotFound, "transfer not found", err)
		}
		m, err := r.Groups.GetMembership(ctx, t.GroupID, actorID)
		if err != nil || m.Role != group.RoleAdmin {
			return fault.New(fault.Authorization, "only group admins can inspect transfers")
		}
		attempts, err := r.Outbox.ListAttempts(ctx, t.ID)
		if err != nil {
			return err
		}
		out = TransferTrail{Transfer: t, Attempts: attempts}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type SweepReport struct {
	Examined    int `json:"examined"`
	Settled     int `json:"settled"`
	MatchedOnly int `json:"matched_only"` // settled earlier, just marked sent
	Failed      int `json:"failed"`
	StaleAlerts int `json:"stale_alerts"`
}

// Sweep retries pending and failed outbox transfers and flags stale sending
// rows. Before re-sending it checks whether the transfer already settled
// (matched by external tx id in the ledger) so money is never sent twice.
// Only refund transfers are completed autonomously; other purposes get their
// row settled and an admin alert to finish the domain bookkeeping, because
// re-deriving a dead request's side effects here would be guesswork.
func (u *Usecase) Sweep(ctx context.Context) (*SweepReport, error) {
	var rows []outbox.Transfer
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		var err error
		rows, err = r.Outbox.ListRetryable(ctx, u.MaxAttempts)
		return err
	})
	if err != nil {
		return nil, err
	}

	report := &SweepReport{}
	for i := range rows {
		t := rows[i]
		report.Examined++

		if t.ExternalTx != "" {
			// A prior attempt settled; never re-send, just close the row out.
			already := false
			err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
				var err error
				already, err = r.Ledger.ExistsByExternalTxID(ctx, t.ExternalTx)
				return err
			})
			if err == nil {
				if err := u.markSettled(ctx, &t, t.ExternalTx, already); err == nil {
					report.MatchedOnly++
					continue
				}
			}
		}

		rcpt, err := transfers.Execute(ctx, u.uow, u.settle, t.ID, u.now)
		if err != nil {
			report.Failed++
			slog.Warn("outbox sweep attempt failed", "outbox_id", t.ID, "purpose", string(t.Purpose), "error", err)
			continue
		}
		if err := u.markSettled(ctx, &t, rcpt.TransactionID, false); err != nil {
			report.Failed++
			slog.Error("outbox sweep could not record settlement", "outbox_id", t.ID, "error", err)
			continue
		}
		report.Settled++
	}

	if alerts, err := u.flagStaleSending(ctx); err == nil {
		report.StaleAlerts = alerts
	} else {
		slog.Error("stale-sending scan failed", "error", err)
	}
	return report, nil
}

// markSettled closes an outbox row after the transfer settled. Refunds write
// their own ledger entry; every other purpose raises an admin alert so the
// originating flow's bookkeeping is finished by hand.
func (u *Usecase) markSettled(ctx context.Context, t *outbox.Transfer, externalTx string, ledgerMatched bool) error {
	return u.uow.WithinTx(ctx, func(r uow.Repos) error {
		row, err := r.Outbox.GetByID(ctx, t.ID)
		if err != nil {
			return err
		}
		row.Status = outbox.StatusSent
		row.ExternalTx = externalTx
		if err := r.Outbox.Save(ctx, row); err != nil {
			return err
		}

		if t.Purpose == outbox.PurposeRefund && !ledgerMatched {
			return r.Ledger.Append(ctx, &ledger.Entry{
				GroupID:      t.GroupID,
				RefType:      ledger.RefRefund,
				RefID:        t.RefID,
				Amount:       t.Amount,
				Note:         fmt.Sprintf("Refund settled by outbox sweep (transfer %d)", t.ID),
				ExternalTxID: externalTx,
			})
		}
		if !ledgerMatched {
			ids, err := r.Groups.ListAdminIDs(ctx, t.GroupID)
			if err != nil {
				return err
			}
			msg := fmt.Sprintf("Outbox transfer %d (%s, %.2f) settled on retry (tx %s); verify the originating record",
				t.ID, t.Purpose, t.Amount, externalTx)
			for _, id := range ids {
				if err := r.Groups.CreateAlert(ctx, &group.Alert{UserID: id, Message: msg, Level: string(notify.LevelWarning)}); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// flagStaleSending alerts admins about sending rows that have sat past the
// cutoff: their outcome is unknown and nobody is going to retry them.
func (u *Usecase) flagStaleSending(ctx context.Context) (int, error) {
	cutoff := u.now().Add(-u.StaleAfter)
	alerts := 0

	type pending struct {
		ids []uint64
		msg string
	}
	var toNotify []pending

	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		stale, err := r.Outbox.ListStaleSending(ctx, cutoff)
		if err != nil {
			return err
		}
		for i := range stale {
			t := stale[i]
			ids, err := r.Groups.ListAdminIDs(ctx, t.GroupID)
			if err != nil {
				return err
			}
			msg := fmt.Sprintf("Outbox transfer %d (%s, %.2f) has an unknown outcome since %s; reconcile manually",
				t.ID, t.Purpose, t.Amount, t.UpdatedAt.Format(time.RFC3339))
			for _, id := range ids {
				if err := r.Groups.CreateAlert(ctx, &group.Alert{UserID: id, Message: msg, Level: string(notify.LevelWarning)}); err != nil {
					return err
				}
			}
			toNotify = append(toNotify, pending{ids: ids, msg: msg})
			alerts++
		}
		return nil
	})
	if err != nil {
		return alerts, err
	}
	for _, p := range toNotify {
		u.notifier.NotifyMany(ctx, p.ids, p.msg)
	}
	return alerts, nil
}
