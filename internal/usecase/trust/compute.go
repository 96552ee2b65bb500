// Package trust implements the weighted reliability score. Compute is a pure
// function over a collected input snapshot so it can be tested without a
// database; the collector assembles that snapshot from repositories.
package trust

import (
	"coopfund-backend/internal/domain/group"
	"coopfund-backend/pkg/money"
)

// Inputs is everything Compute needs, collected over the caller's window.
// Counters with a zero denominator leave their sub-metric undefined; an
// undefined metric is excluded from the weighted average entirely.
type Inputs struct {
	// Deposit consistency over a trailing six-month window.
	DepositCount    int
	ExpectedCadence int     // expected deposit count for the window
	DepositSum      float64 // user's deposits in window
	TargetDeposit   float64 // expected deposit sum for the window

	// Repayment behavior on the user's own loans.
	PaidInstallments   int // installments marked paid
	OnTimeInstallments int // of those, settled within due date + grace
	RepaymentTxCount   int // repayment transactions on the user's loans
	OnTimeLinkedTx     int // repayments linked to an on-time installment
	SelfPaidTx         int // repayments made by the borrower personally
	SuspectTx          int // repayments flagged SUSPECT

	// Voting since the user joined.
	SessionsSinceJoin int
	VotesCast         int

	// Request behavior.
	UserRequestRate  float64 // requests per window for this user
	GroupAvgRate     float64 // average requests per member in the group
	RequestCount     int
	ApprovedRequests int // requests reaching an approved-family status

	// Disbursal experience, averaged over the user's disbursed loans.
	DisbursedLoans   int
	AvgDisbursalDays float64

	// Contribution.
	GroupDepositSum float64 // group-wide deposit sum in window
}

// Metric is one sub-score in [0,100]. Defined is false when the underlying
// denominator was zero.
type Metric struct {
	Value   float64
	Defined bool
}

func metric(v float64) Metric {
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return Metric{Value: v, Defined: true}
}

func ratio(num, den int) Metric {
	if den == 0 {
		return Metric{}
	}
	return metric(float64(num) / float64(den) * 100)
}

// Metrics holds the ten sub-scores in policy-weight order.
type Metrics struct {
	DepositConsistency  Metric
	RepaymentTimeliness Metric
	OnTimeRepayments    Metric
	VotingParticipation Metric
	LoanRequestFreq     Metric
	LoanApprovalRate    Metric
	DisbursalTimeliness Metric
	SelfRepayment       Metric
	ThirdPartyFlag      Metric
	ProfitContribution  Metric
}

// Compute derives the ten sub-metrics and folds them into one weighted score.
// Undefined metrics drop out of both the numerator and the denominator, so a
// brand-new member is scored only on what they have actually done.
func Compute(in Inputs, rule *group.PolicyRule) (float64, Metrics) {
	var m Metrics

	// 1. Deposit consistency: blend of cadence adherence and amount adherence.
	if in.ExpectedCadence > 0 || in.TargetDeposit > 0 {
		var parts, total float64
		if in.ExpectedCadence > 0 {
			parts++
			total += clampRatio(float64(in.DepositCount) / float64(in.ExpectedCadence))
		}
		if in.TargetDeposit > 0 {
			parts++
			total += clampRatio(in.DepositSum / in.TargetDeposit)
		}
		m.DepositConsistency = metric(total / parts * 100)
	}

	// 2. Repayment timeliness: settled within grace, over paid installments.
	m.RepaymentTimeliness = ratio(in.OnTimeInstallments, in.PaidInstallments)

	// 3. On-time repayment ratio over repayment transactions.
	m.OnTimeRepayments = ratio(in.OnTimeLinkedTx, in.RepaymentTxCount)

	// 4. Voting participation since joining.
	m.VotingParticipation = ratio(in.VotesCast, in.SessionsSinceJoin)

	// 5. Request frequency, inverse-normalized against the group average.
	// A group with no request activity gives no signal either way, so the
	// metric stays undefined rather than rewarding or penalizing anyone.
	if in.GroupAvgRate > 0 {
		maxRatio := 4.0
		if rule != nil && rule.MaxFreqRatio > 1 {
			maxRatio = rule.MaxFreqRatio
		}
		r := in.UserRequestRate / in.GroupAvgRate
		switch {
		case r <= 1:
			m.LoanRequestFreq = metric(100)
		case r >= maxRatio:
			m.LoanRequestFreq = metric(0)
		default:
			m.LoanRequestFreq = metric((maxRatio - r) / (maxRatio - 1) * 100)
		}
	}

	// 6. Approval rate over the user's requests.
	m.LoanApprovalRate = ratio(in.ApprovedRequests, in.RequestCount)

	// 7. Disbursal timeliness, banded on average days to disbursal.
	if in.DisbursedLoans > 0 {
		d := in.AvgDisbursalDays
		switch {
		case d <= 1:
			m.DisbursalTimeliness = metric(100)
		case d <= 7:
			m.DisbursalTimeliness = metric(75)
		case d <= 14:
			m.DisbursalTimeliness = metric(50)
		case d <= 30:
			m.DisbursalTimeliness = metric(25)
		default:
			m.DisbursalTimeliness = metric(0)
		}
	}

	// 8. Self-repayment rate.
	m.SelfRepayment = ratio(in.SelfPaidTx, in.RepaymentTxCount)

	// 9. Third-party flag: inverse of the SUSPECT share.
	if in.RepaymentTxCount > 0 {
		m.ThirdPartyFlag = metric(100 - float64(in.SuspectTx)/float64(in.RepaymentTxCount)*100)
	}

	// 10. Share of the group's deposits.
	if in.GroupDepositSum > 0 {
		m.ProfitContribution = metric(in.DepositSum / in.GroupDepositSum * 100)
	}

	w := weightsFor(rule)
	pairs := []struct {
		m Metric
		w float64
	}{
		{m.DepositConsistency, w[0]},
		{m.RepaymentTimeliness, w[1]},
		{m.OnTimeRepayments, w[2]},
		{m.VotingParticipation, w[3]},
		{m.LoanRequestFreq, w[4]},
		{m.LoanApprovalRate, w[5]},
		{m.DisbursalTimeliness, w[6]},
		{m.SelfRepayment, w[7]},
		{m.ThirdPartyFlag, w[8]},
		{m.ProfitContribution, w[9]},
	}

	var weighted, totalWeight float64
	for _, p := range pairs {
		if !p.m.Defined || p.w <= 0 {
			continue
		}
		weighted += p.m.Value * p.w
		totalWeight += p.w
	}
	if totalWeight == 0 {
		return 0, m
	}
	score := weighted / totalWeight
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return money.Round2(score), m
}

func weightsFor(rule *group.PolicyRule) [10]float64 {
	if rule == nil {
		rule = group.DefaultPolicyRule(0)
	}
	return [10]float64{
		rule.WDepositConsistency,
		rule.WRepaymentTimeliness,
		rule.WOntimeRepayments,
		rule.WVotingParticipation,
		rule.WLoanRequestFreq,
		rule.WLoanApprovalRate,
		rule.WDisbursalTimeliness,
		rule.WSelfRepayment,
		rule.WThirdPartyFlag,
		rule.WProfitContribution,
	}
}

func clampRatio(r float64) float64 {
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}
