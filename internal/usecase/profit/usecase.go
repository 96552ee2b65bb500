package profit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"coopfund-backend/internal/domain/fault"
	"coopfund-backend/internal/domain/group"
	"coopfund-backend/internal/domain/ledger"
	domainProfit "coopfund-backend/internal/domain/profit"
	"coopfund-backend/internal/domain/uow"
	"coopfund-backend/internal/external/notify"
	"coopfund-backend/pkg/money"
)

type Usecase struct {
	uow      uow.UnitOfWork
	notifier notify.Dispatcher
	now      func() time.Time
}

func NewUsecase(tx uow.UnitOfWork, n notify.Dispatcher) *Usecase {
	return &Usecase{uow: tx, notifier: n, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the time source for tests.
func (u *Usecase) WithClock(now func() time.Time) *Usecase { u.now = now; return u }

type ShareDTO struct {
	UserID          uint64  `json:"user_id"`
	Amount          float64 `json:"amount"`
	DepositSnapshot float64 `json:"deposit_snapshot"`
}

type DistributionResult struct {
	Ran              bool       `json:"ran"`
	Reason           string     `json:"reason,omitempty"`
	DistributionID   uint64     `json:"distribution_id,omitempty"`
	TotalDistributed float64    `json:"total_distributed"`
	Reserve          float64    `json:"reserve"`
	AdminCut         float64    `json:"admin_cut"`
	Shares           []ShareDTO `json:"shares,omitempty"`
}

// Distribute runs one profit-distribution pass for a group. It is invoked by
// the scheduler or the system endpoint, never as a regular admin action.
// A run with nothing to distribute is a no-op result, not an error.
func (u *Usecase) Distribute(ctx context.Context, groupID uint64, force bool) (*DistributionResult, error) {
	var out *DistributionResult

	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		grp, err := r.Groups.GetByID(ctx, groupID)
		if err != nil {
			return fault.Wrap(fault.NotFound, "group not found", err)
		}
		if !force && !grp.DistributeOnProfit {
			out = &DistributionResult{Ran: false, Reason: "group configured to not auto-distribute"}
			return nil
		}

		pool, err := r.Profit.GetPool(ctx, groupID)
		if err != nil {
			return err
		}
		if pool == nil || pool.NetAvailable <= 0 {
			out = &DistributionResult{Ran: false, Reason: "no profits available"}
			return nil
		}

		net := pool.NetAvailable
		reserveAmt := money.Round2(net * grp.ProfitReservePct / 100.0)
		adminAmt := money.Round2(net * grp.AdminCutPct / 100.0)
		distributable := money.Round2(net - reserveAmt - adminAmt)
		if distributable <= 0 {
			out = &DistributionResult{Ran: false, Reason: "nothing distributable after reserve and admin cut"}
			return nil
		}

		balances, err := r.Groups.ListBalances(ctx, groupID)
		if err != nil {
			return err
		}
		var totalDeposit float64
		for _, b := range balances {
			totalDeposit += b.TotalDeposit
		}
		if totalDeposit <= 0 {
			out = &DistributionResult{Ran: false, Reason: "no member deposits to distribute against"}
			return nil
		}

		now := u.now()
		dist := &domainProfit.Distribution{
			GroupID:          groupID,
			DistributedAt:    now,
			TotalDistributed: distributable,
			ReserveAmount:    reserveAmt,
			AdminAmount:      adminAmt,
			Note:             fmt.Sprintf("System distribution at %s", now.Format("2006-01-02 15:04:05")),
		}
		if err := r.Profit.CreateDistribution(ctx, dist); err != nil {
			return err
		}

		shares := make([]float64, len(balances))
		var shareSum float64
		for i, b := range balances {
			if b.TotalDeposit > 0 {
				shares[i] = money.Round2(b.TotalDeposit / totalDeposit * distributable)
			}
			shareSum += shares[i]
		}
		// Pin the rounding remainder on the last depositor with a nonzero
		// snapshot so the run reconciles to the cent.
		if diff := money.Round2(distributable - shareSum); diff != 0 {
			for i := len(balances) - 1; i >= 0; i-- {
				if balances[i].TotalDeposit > 0 {
					shares[i] = money.Round2(shares[i] + diff)
					shareSum = money.Round2(shareSum + diff)
					break
				}
			}
		}

		result := &DistributionResult{
			Ran:              true,
			DistributionID:   dist.ID,
			TotalDistributed: shareSum,
			Reserve:          reserveAmt,
			AdminCut:         adminAmt,
		}

		for i := range balances {
			share := shares[i]
			if share <= 0 {
				continue
			}
			b := balances[i]
			if err := r.Profit.CreateShareDetail(ctx, &domainProfit.ShareDetail{
				DistributionID:  dist.ID,
				UserID:          b.UserID,
				Amount:          share,
				DepositSnapshot: b.TotalDeposit,
			}); err != nil {
				return err
			}

			b.InterestEarned = money.Round2(b.InterestEarned + share)
			b.LastProfitShareAt = &now
			if err := r.Groups.SaveBalance(ctx, &b); err != nil {
				return err
			}

			uid := b.UserID
			distID := dist.ID
			if err := r.Ledger.Append(ctx, &ledger.Entry{
				GroupID: groupID,
				UserID:  &uid,
				RefType: ledger.RefProfitShare,
				RefID:   &distID,
				Amount:  share,
				Note:    fmt.Sprintf("Profit share %.2f from distribution %d", share, dist.ID),
			}); err != nil {
				return err
			}
			result.Shares = append(result.Shares, ShareDTO{UserID: b.UserID, Amount: share, DepositSnapshot: b.TotalDeposit})
		}

		distID := dist.ID
		if err := r.Ledger.Append(ctx, &ledger.Entry{
			GroupID: groupID, RefType: ledger.RefProfitReserve, RefID: &distID,
			Amount: reserveAmt, Note: fmt.Sprintf("Profit reserve from distribution %d", dist.ID),
		}); err != nil {
			return err
		}
		if err := r.Ledger.Append(ctx, &ledger.Entry{
			GroupID: groupID, RefType: ledger.RefAdminCut, RefID: &distID,
			Amount: adminAmt, Note: fmt.Sprintf("Admin cut from distribution %d", dist.ID),
		}); err != nil {
			return err
		}

		consumed := money.Round2(reserveAmt + adminAmt + shareSum)
		pool.NetAvailable = money.Round2(pool.NetAvailable - consumed)
		pool.AccruedInterest = money.Round2(pool.AccruedInterest - consumed)
		if pool.AccruedInterest < 0 {
			pool.AccruedInterest = 0
		}
		if err := r.Profit.SavePool(ctx, pool); err != nil {
			return err
		}

		grp.LastProfitSettlement = &now
		if err := r.Groups.Save(ctx, grp); err != nil {
			return err
		}

		out = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.Ran {
		slog.Info("profit distributed",
			"group_id", groupID, "total", out.TotalDistributed,
			"reserve", out.Reserve, "admin_cut", out.AdminCut, "shares", len(out.Shares))
		u.notifyAdmins(ctx, groupID, fmt.Sprintf(
			"Profit distributed: %.2f (reserve %.2f, admin %.2f)", out.TotalDistributed, out.Reserve, out.AdminCut))
	}
	return out, nil
}

func (u *Usecase) notifyAdmins(ctx context.Context, groupID uint64, msg string) {
	_ = u.uow.WithinTx(ctx, func(r uow.Repos) error {
		ids, err := r.Groups.ListAdminIDs(ctx, groupID)
		if err == nil && len(ids) > 0 {
			u.notifier.NotifyMany(ctx, ids, msg)
		}
		return nil
	})
}

// GetPool returns the pool snapshot for admin read endpoints.
func (u *Usecase) GetPool(ctx context.Context, groupID, actorID uint64) (*domainProfit.Pool, error) {
	var pool *domainProfit.Pool
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		m, err := r.Groups.GetMembership(ctx, groupID, actorID)
		if err != nil || m.Role != group.RoleAdmin {
			return fault.New(fault.Authorization, "only group admins can view the profit pool")
		}
		pool, err = r.Profit.GetPool(ctx, groupID)
		if err != nil {
			return err
		}
		if pool == nil {
			pool = &domainProfit.Pool{GroupID: groupID}
		}
		return nil
	})
	return pool, err
}

type DistributionView struct {
	Distribution domainProfit.Distribution  `json:"distribution"`
	Shares       []domainProfit.ShareDetail `json:"shares"`
}

// ListDistributions returns the immutable distribution trail for a group,
// each run with its per-member share breakdown.
func (u *Usecase) ListDistributions(ctx context.Context, groupID, actorID uint64) ([]DistributionView, error) {
	var out []DistributionView
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		m, err := r.Groups.GetMembership(ctx, groupID, actorID)
		if err != nil || m.Role != group.RoleAdmin {
			return fault.New(fault.Authorization, "only group admins can view distributions")
		}
		dists, err := r.Profit.ListDistributions(ctx, groupID)
		if err != nil {
			return err
		}
		out = make([]DistributionView, 0, len(dists))
		for _, d := range dists {
			shares, err := r.Profit.ListShareDetails(ctx, d.ID)
			if err != nil {
				return err
			}
			out = append(out, DistributionView{Distribution: d, Shares: shares})
		}
		return nil
	})
	return out, err
}

// AccrueCreditInterest is the system job that accrues daily interest on
// parked credit balances. Returns how many rows were updated.
func (u *Usecase) AccrueCreditInterest(ctx context.Context) (int, error) {
	const yearlyRate = 0.10
	updated := 0

	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		rows, err := r.Ledger.ListAllCredits(ctx)
		if err != nil {
			return err
		}
		now := u.now()
		for i := range rows {
			cl := rows[i]
			if cl.Amount <= 0 {
				continue
			}
			last := cl.CreatedAt
			if cl.LastInterestCalc != nil {
				last = *cl.LastInterestCalc
			}
			days := int(now.Sub(last).Hours() / 24)
			if days <= 0 {
				continue
			}
			interest := money.Round2(cl.Amount * yearlyRate / 365.0 * float64(days))
			if interest <= 0 {
				continue
			}

			cl.InterestEarned = money.Round2(cl.InterestEarned + interest)
			cl.LastInterestCalc = &now
			if err := r.Ledger.SaveCredit(ctx, &cl); err != nil {
				return err
			}

			uid := cl.UserID
			clID := cl.ID
			if err := r.Ledger.Append(ctx, &ledger.Entry{
				GroupID: cl.GroupID,
				UserID:  &uid,
				RefType: ledger.RefCreditInterest,
				RefID:   &clID,
				Amount:  interest,
				Note:    fmt.Sprintf("Interest accrual on parked credit %.2f over %d days", cl.Amount, days),
			}); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	return updated, err
}

// DistributeAll runs one distribution pass over every group. Groups that opt
// out of auto-distribution are skipped inside Distribute.
func (u *Usecase) DistributeAll(ctx context.Context) (int, error) {
	var ids []uint64
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		var lerr error
		ids, lerr = r.Groups.ListGroupIDs(ctx)
		return lerr
	})
	if err != nil {
		return 0, err
	}

	ran := 0
	for _, id := range ids {
		res, derr := u.Distribute(ctx, id, false)
		if derr != nil {
			slog.Error("profit distribution failed", "group_id", id, "err", derr)
			continue
		}
		if res.Ran {
			ran++
		}
	}
	return ran, nil
}
