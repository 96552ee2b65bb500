package uow

import (
	"context"

	"coopfund-backend/internal/domain/group"
	"coopfund-backend/internal/domain/ledger"
	"coopfund-backend/internal/domain/loan"
	"coopfund-backend/internal/domain/outbox"
	"coopfund-backend/internal/domain/profit"
	"coopfund-backend/internal/domain/trust"
)

// Repos bundles every repository bound to the same transaction.
type Repos struct {
	Groups  group.Repository
	Ledger  ledger.Repository
	Loans   loan.Repository
	Profit  profit.Repository
	Outbox  outbox.Repository
	Trust   trust.Repository
}

type UnitOfWork interface {
	// WithinTx runs fn inside one all-or-nothing transaction.
	WithinTx(ctx context.Context, fn func(r Repos) error) error
	// WithinLoanTx locks the loan row first, then passes it in. This is the
	// per-loan serialization point for repayment application.
	WithinLoanTx(ctx context.Context, loanID uint64, fn func(r Repos, l *loan.Loan) error) error
}
