package profit

import (
	"context"
	"fmt"

	"coopfund-backend/internal/domain/ledger"
	domainProfit "coopfund-backend/internal/domain/profit"
	"coopfund-backend/internal/domain/uow"
	"coopfund-backend/pkg/money"
)

// Accrue credits amount into the group's profit pool and appends the paired
// ledger entry. Runs inside the caller's transaction so the accrual commits or
// rolls back with the repayment that produced it.
func Accrue(ctx context.Context, r uow.Repos, groupID uint64, amount float64, refID *uint64, note string) error {
	amount = money.Round2(amount)
	if amount <= 0 {
		return nil
	}

	pool, err := r.Profit.GetPool(ctx, groupID)
	if err != nil {
		return err
	}
	if pool == nil {
		pool = &domainProfit.Pool{GroupID: groupID}
	}
	pool.AccruedInterest = money.Round2(pool.AccruedInterest + amount)
	pool.NetAvailable = money.Round2(pool.NetAvailable + amount)
	if err := r.Profit.SavePool(ctx, pool); err != nil {
		return err
	}

	return r.Ledger.Append(ctx, &ledger.Entry{
		GroupID: groupID,
		RefType: ledger.RefProfitPoolCredit,
		RefID:   refID,
		Amount:  amount,
		Note:    note,
	})
}

// AccrueFromWithdraw routes withdrawal interest into the pool with a
// profit_accrual ledger entry attributed to the withdrawing user.
func AccrueFromWithdraw(ctx context.Context, r uow.Repos, groupID, userID uint64, amount float64) error {
	amount = money.Round2(amount)
	if amount <= 0 {
		return nil
	}

	pool, err := r.Profit.GetPool(ctx, groupID)
	if err != nil {
		return err
	}
	if pool == nil {
		pool = &domainProfit.Pool{GroupID: groupID}
	}
	pool.AccruedInterest = money.Round2(pool.AccruedInterest + amount)
	pool.NetAvailable = money.Round2(pool.NetAvailable + amount)
	if err := r.Profit.SavePool(ctx, pool); err != nil {
		return err
	}

	uid := userID
	return r.Ledger.Append(ctx, &ledger.Entry{
		GroupID: groupID,
		UserID:  &uid,
		RefType: ledger.RefProfitAccrual,
		Amount:  amount,
		Note:    fmt.Sprintf("Withdrawal interest %.2f routed to profit pool", amount),
	})
}
