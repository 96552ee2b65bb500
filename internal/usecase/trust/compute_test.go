package trust

import (
	"math"
	"testing"

	"coopfund-backend/internal/domain/group"
)

func approxEqual(a, b float64) bool { return math.Abs(a-b) < 0.005 }

func TestCompute_NoHistoryScoresZero(t *testing.T) {
	score, m := Compute(Inputs{}, group.DefaultPolicyRule(0))
	if score != 0 {
		t.Fatalf("empty inputs scored %.2f", score)
	}
	for _, sub := range []Metric{
		m.DepositConsistency, m.RepaymentTimeliness, m.OnTimeRepayments,
		m.VotingParticipation, m.LoanRequestFreq, m.LoanApprovalRate,
		m.DisbursalTimeliness, m.SelfRepayment, m.ThirdPartyFlag,
		m.ProfitContribution,
	} {
		if sub.Defined {
			t.Fatalf("metric defined with no underlying activity: %+v", m)
		}
	}
}

func TestCompute_UndefinedMetricsDropFromBothSides(t *testing.T) {
	// Only voting has history: 1 of 2 sessions. The score must be exactly
	// that sub-metric, not dragged down by nine zero-weighted absences.
	score, m := Compute(Inputs{SessionsSinceJoin: 2, VotesCast: 1}, group.DefaultPolicyRule(0))
	if !m.VotingParticipation.Defined || !approxEqual(m.VotingParticipation.Value, 50) {
		t.Fatalf("voting metric %+v", m.VotingParticipation)
	}
	if !approxEqual(score, 50) {
		t.Fatalf("score %.2f, want 50.00", score)
	}
}

func TestCompute_PerfectRecordScores100(t *testing.T) {
	in := Inputs{
		DepositCount: 6, ExpectedCadence: 6, DepositSum: 600, TargetDeposit: 600,
		PaidInstallments: 10, OnTimeInstallments: 10,
		RepaymentTxCount: 10, OnTimeLinkedTx: 10, SelfPaidTx: 10, SuspectTx: 0,
		SessionsSinceJoin: 4, VotesCast: 4,
		UserRequestRate: 1, GroupAvgRate: 1,
		RequestCount: 2, ApprovedRequests: 2,
		DisbursedLoans: 2, AvgDisbursalDays: 0.5,
		GroupDepositSum: 600,
	}
	score, _ := Compute(in, group.DefaultPolicyRule(0))
	if !approxEqual(score, 100) {
		t.Fatalf("score %.2f, want 100.00", score)
	}
}

func TestCompute_DepositConsistencyBlendsCadenceAndAmount(t *testing.T) {
	// Half the expected cadence, amount overshooting the target. Overshoot
	// clamps to 1, so the blend is (0.5 + 1.0) / 2.
	in := Inputs{DepositCount: 3, ExpectedCadence: 6, DepositSum: 1200, TargetDeposit: 600}
	_, m := Compute(in, group.DefaultPolicyRule(0))
	if !approxEqual(m.DepositConsistency.Value, 75) {
		t.Fatalf("deposit consistency %.2f, want 75.00", m.DepositConsistency.Value)
	}
}

func TestCompute_RequestFrequencyRamp(t *testing.T) {
	rule := group.DefaultPolicyRule(0) // MaxFreqRatio 4
	cases := []struct {
		rate float64
		want float64
	}{
		{0.5, 100}, // below the group average
		{1, 100},   // at the average
		{2.5, 50},  // halfway up the ramp
		{4, 0},     // at the ceiling
		{9, 0},     // beyond it
	}
	for _, tc := range cases {
		_, m := Compute(Inputs{UserRequestRate: tc.rate, GroupAvgRate: 1}, rule)
		if !approxEqual(m.LoanRequestFreq.Value, tc.want) {
			t.Fatalf("rate %.1f scored %.2f, want %.2f", tc.rate, m.LoanRequestFreq.Value, tc.want)
		}
	}
}

func TestCompute_ZeroGroupAverageLeavesFreqUndefined(t *testing.T) {
	_, m := Compute(Inputs{UserRequestRate: 3, GroupAvgRate: 0}, group.DefaultPolicyRule(0))
	if m.LoanRequestFreq.Defined {
		t.Fatalf("freq metric defined with no group request activity: %+v", m.LoanRequestFreq)
	}
}

func TestCompute_DisbursalBands(t *testing.T) {
	cases := []struct {
		days float64
		want float64
	}{
		{0.5, 100}, {1, 100}, {3, 75}, {7, 75}, {10, 50}, {20, 25}, {45, 0},
	}
	for _, tc := range cases {
		_, m := Compute(Inputs{DisbursedLoans: 1, AvgDisbursalDays: tc.days}, group.DefaultPolicyRule(0))
		if !approxEqual(m.DisbursalTimeliness.Value, tc.want) {
			t.Fatalf("%.1f days scored %.2f, want %.2f", tc.days, m.DisbursalTimeliness.Value, tc.want)
		}
	}
}

func TestCompute_SuspectShareInvertsFlag(t *testing.T) {
	_, m := Compute(Inputs{RepaymentTxCount: 4, SuspectTx: 1}, group.DefaultPolicyRule(0))
	if !approxEqual(m.ThirdPartyFlag.Value, 75) {
		t.Fatalf("third-party flag %.2f, want 75.00", m.ThirdPartyFlag.Value)
	}
}

func TestCompute_WeightsSkewTheAverage(t *testing.T) {
	// Two defined metrics: perfect timeliness (weight 20) and zero voting
	// (weight 5). Weighted: 100*20 / 25 = 80.
	rule := group.DefaultPolicyRule(0)
	in := Inputs{
		PaidInstallments: 5, OnTimeInstallments: 5,
		SessionsSinceJoin: 3, VotesCast: 0,
	}
	score, _ := Compute(in, rule)
	if !approxEqual(score, 80) {
		t.Fatalf("score %.2f, want 80.00", score)
	}
}

func TestCompute_NilRuleFallsBackToDefaults(t *testing.T) {
	withNil, _ := Compute(Inputs{SessionsSinceJoin: 2, VotesCast: 1}, nil)
	withDefault, _ := Compute(Inputs{SessionsSinceJoin: 2, VotesCast: 1}, group.DefaultPolicyRule(0))
	if withNil != withDefault {
		t.Fatalf("nil rule scored %.2f, default rule %.2f", withNil, withDefault)
	}
}
