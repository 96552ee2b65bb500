// Package transfers holds the shared execution path for outbox-backed
// settlement transfers. Every flow that moves real value (deposit, withdraw,
// disbursal, repayment, refund) records a durable intent first, then runs the
// external call through Execute so attempt history and status transitions are
// consistent across flows.
package transfers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"coopfund-backend/internal/domain/fault"
	"coopfund-backend/internal/domain/group"
	"coopfund-backend/internal/domain/ledger"
	"coopfund-backend/internal/domain/outbox"
	"coopfund-backend/internal/domain/uow"
	"coopfund-backend/internal/external/notify"
	"coopfund-backend/internal/external/settlement"
)

// Execute runs the external settlement call for an already-recorded outbox
// intent. The row is moved to sending before the call; on a definite failure
// it is marked failed, on a timeout it is LEFT in sending because the outcome
// is unknown and a re-send could double-settle. On success the receipt's
// transaction id is stored on the row but the row stays sending: the caller
// marks it sent inside the same transaction as its local bookkeeping, so a
// crashed commit leaves a sending row with an external tx id for the sweep to
// reconcile.
func Execute(ctx context.Context, u uow.UnitOfWork, client settlement.Client, transferID uint64, now func() time.Time) (settlement.Receipt, error) {
	var req settlement.TransferRequest

	err := u.WithinTx(ctx, func(r uow.Repos) error {
		t, err := r.Outbox.GetByID(ctx, transferID)
		if err != nil {
			return err
		}
		if t.Status != outbox.StatusPending && t.Status != outbox.StatusFailed {
			return fault.Newf(fault.InvalidState, "outbox transfer %d is %s, not executable", t.ID, t.Status)
		}
		t.Status = outbox.StatusSending
		t.Attempts++
		req = settlement.TransferRequest{
			From:      t.FromAccount,
			To:        t.ToAccount,
			Amount:    t.Amount,
			AssetRef:  t.AssetRef,
			ClientRef: t.ClientRef,
		}
		return r.Outbox.Save(ctx, t)
	})
	if err != nil {
		return settlement.Receipt{}, err
	}

	rcpt, callErr := client.Transfer(ctx, req)
	if callErr == nil && !rcpt.OK() {
		callErr = fmt.Errorf("settlement returned status %q", rcpt.Status)
	}

	recErr := u.WithinTx(ctx, func(r uow.Repos) error {
		t, err := r.Outbox.GetByID(ctx, transferID)
		if err != nil {
			return err
		}
		a := &outbox.Attempt{OutboxID: t.ID, AttemptAt: now()}
		switch {
		case callErr == nil:
			a.Success = true
			a.ExternalTx = rcpt.TransactionID
			t.ExternalTx = rcpt.TransactionID
		case settlement.IsUnknownOutcome(callErr):
			// Outcome unknown: stay sending, never auto-retry.
			a.Error = callErr.Error()
			t.LastError = callErr.Error()
		default:
			a.Error = callErr.Error()
			t.Status = outbox.StatusFailed
			t.LastError = callErr.Error()
		}
		if err := r.Outbox.CreateAttempt(ctx, a); err != nil {
			return err
		}
		return r.Outbox.Save(ctx, t)
	})
	if recErr != nil {
		slog.Error("failed to record transfer attempt", "outbox_id", transferID, "error", recErr)
	}

	if callErr != nil {
		if settlement.IsUnknownOutcome(callErr) {
			return settlement.Receipt{}, fault.Wrap(fault.ExternalNetwork,
				"settlement call timed out with unknown outcome, transfer held for reconciliation", callErr)
		}
		return settlement.Receipt{}, fault.Wrap(fault.ExternalNetwork, "settlement transfer failed", callErr)
	}
	return rcpt, nil
}

// Quarantine records that money moved externally but the local commit failed.
// It writes a refund_required ledger entry plus an admin alert in a fresh
// transaction, best-effort, and notifies group admins. The transfer is never
// re-sent; an operator resolves the entry by hand.
func Quarantine(ctx context.Context, u uow.UnitOfWork, notifier notify.Dispatcher,
	groupID uint64, userID *uint64, amount float64, externalTx, detail string) {

	var adminIDs []uint64
	err := u.WithinTx(ctx, func(r uow.Repos) error {
		if err := r.Ledger.Append(ctx, &ledger.Entry{
			GroupID:      groupID,
			UserID:       userID,
			RefType:      ledger.RefRefundRequired,
			Amount:       amount,
			Note:         detail,
			ExternalTxID: externalTx,
		}); err != nil {
			return err
		}
		ids, err := r.Groups.ListAdminIDs(ctx, groupID)
		if err != nil {
			return err
		}
		adminIDs = ids
		for _, id := range ids {
			if err := r.Groups.CreateAlert(ctx, &group.Alert{
				UserID:  id,
				Message: detail,
				Level:   string(notify.LevelWarning),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// Last line of defense: the log is the only remaining record.
		slog.Error("QUARANTINE WRITE FAILED, manual intervention required",
			"group_id", groupID, "amount", amount, "external_tx", externalTx, "detail", detail, "error", err)
		return
	}

	slog.Error("transfer quarantined", "group_id", groupID, "amount", amount, "external_tx", externalTx, "detail", detail)
	if notifier != nil && len(adminIDs) > 0 {
		notifier.NotifyMany(ctx, adminIDs, detail)
	}
}
