package profit

import (
	"coopfund-backend/internal/domain/group"
	"coopfund-backend/pkg/money"
)

// Routing says how an interest amount splits between immediate payout and the
// group profit pool. This is the single place that reads the
// distribute_on_profit policy flag; every interest-splitting call site uses it.
type Routing struct {
	PaidNow float64
	Pooled  float64
}

// RouteInterest applies the group's profit policy to an interest amount.
func RouteInterest(g *group.Group, interest float64) Routing {
	interest = money.Round2(interest)
	if interest <= 0 {
		return Routing{}
	}
	if g.DistributeOnProfit {
		return Routing{Pooled: interest}
	}
	return Routing{PaidNow: interest}
}

// RepaymentInterest computes the interest component accrued from an applied
// repayment amount under the legacy half-year model.
func RepaymentInterest(g *group.Group, applied float64) float64 {
	if applied <= 0 {
		return 0
	}
	return money.Round2(applied * g.NormalizedRate() / 2.0)
}

// WithdrawInterest computes the interest owed on a withdrawal when the group
// has had loan activity; zero otherwise.
func WithdrawInterest(g *group.Group, amount float64, hadLoanActivity bool) float64 {
	if !hadLoanActivity || amount <= 0 {
		return 0
	}
	return money.Round2(amount * g.NormalizedRate() / 2.0)
}
