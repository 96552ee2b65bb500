package lending

import (
	"time"

	"coopfund-backend/internal/domain/loan"
	"coopfund-backend/pkg/money"
)

// buildSchedule generates the full installment plan for a freshly activated
// loan: equal principal slices with the last one absorbing the rounding
// remainder so the slices sum to the principal exactly, flat monthly interest
// on the outstanding principal, due dates at 30-day increments from
// disbursal.
func buildSchedule(l *loan.Loan, disbursedAt time.Time) []loan.ScheduleEntry {
	n := l.TenureMonths
	if n < 1 {
		n = 1
	}
	monthlyRate := l.InterestRateAPY / 100.0 / 12.0

	base := money.Round2(l.Principal / float64(n))
	outstanding := l.Principal

	entries := make([]loan.ScheduleEntry, 0, n)
	for i := 1; i <= n; i++ {
		principal := base
		if i == n {
			principal = money.Round2(l.Principal - base*float64(n-1))
		}
		interest := money.Round2(outstanding * monthlyRate)
		entries = append(entries, loan.ScheduleEntry{
			LoanID:             l.ID,
			InstallmentNo:      i,
			DueDate:            disbursedAt.Add(time.Duration(i) * 30 * 24 * time.Hour),
			DueAmount:          money.Round2(principal + interest),
			PrincipalComponent: principal,
			InterestComponent:  interest,
			Status:             loan.ScheduleDue,
		})
		outstanding = money.Round2(outstanding - principal)
	}
	return entries
}
