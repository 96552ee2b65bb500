// Package membership implements the group-facing savings flows: group
// creation, joining, deposits and withdrawals. Deposits and withdrawals are
// the two value-moving flows here and both go through the outbox.
package membership

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"coopfund-backend/internal/domain/fault"
	"coopfund-backend/internal/domain/group"
	"coopfund-backend/internal/domain/ledger"
	"coopfund-backend/internal/domain/outbox"
	"coopfund-backend/internal/domain/uow"
	"coopfund-backend/internal/external/kyc"
	"coopfund-backend/internal/external/notify"
	"coopfund-backend/internal/external/settlement"
	"coopfund-backend/internal/usecase/profit"
	"coopfund-backend/internal/usecase/transfers"
	"coopfund-backend/pkg/id"
	"coopfund-backend/pkg/money"
)

type Usecase struct {
	uow      uow.UnitOfWork
	settle   settlement.Client
	accounts settlement.Directory
	verifier kyc.Verifier
	notifier notify.Dispatcher
	assetRef string
	now      func() time.Time
}

func NewUsecase(tx uow.UnitOfWork, client settlement.Client, dir settlement.Directory,
	verifier kyc.Verifier, n notify.Dispatcher, assetRef string) *Usecase {
	return &Usecase{
		uow:      tx,
		settle:   client,
		accounts: dir,
		verifier: verifier,
		notifier: n,
		assetRef: assetRef,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source for tests.
func (u *Usecase) WithClock(now func() time.Time) *Usecase { u.now = now; return u }

type CreateGroupInput struct {
	Name         string  `json:"name" validate:"required,min=3,max=120"`
	VaultAccount string  `json:"vault_account" validate:"required,max=100"`
	InterestRate float64 `json:"interest_rate" validate:"gte=0"`
	MinBalance   float64 `json:"min_balance" validate:"gte=0"`
}

// CreateGroup creates a group with its founding admin membership and the
// default policy rule. The vault account must already exist on the settlement
// network; provisioning it is not this service's job.
func (u *Usecase) CreateGroup(ctx context.Context, actorID uint64, in CreateGroupInput) (*group.Group, error) {
	status, err := u.verifier.GetVerificationStatus(ctx, actorID)
	if err != nil {
		return nil, fault.Wrap(fault.ExternalNetwork, "identity verification lookup failed", err)
	}
	if status != kyc.StatusVerified {
		return nil, fault.New(fault.Authorization, "identity must be verified before creating a group")
	}

	g := &group.Group{
		Name:               strings.TrimSpace(in.Name),
		Slug:               slugify(in.Name),
		CreatedBy:          actorID,
		VaultAccount:       in.VaultAccount,
		InterestRate:       in.InterestRate,
		MinBalance:         in.MinBalance,
		ProfitReservePct:   10,
		DistributeOnProfit: true,
	}
	if g.InterestRate == 0 {
		g.InterestRate = 0.10
	}

	err = u.uow.WithinTx(ctx, func(r uow.Repos) error {
		if err := r.Groups.Create(ctx, g); err != nil {
			return err
		}
		if err := r.Groups.CreateMembership(ctx, &group.Membership{
			GroupID: g.ID, UserID: actorID, Role: group.RoleAdmin,
		}); err != nil {
			return err
		}
		if err := r.Groups.SaveBalance(ctx, &group.MemberBalance{GroupID: g.ID, UserID: actorID}); err != nil {
			return err
		}
		return r.Groups.CreatePolicyRule(ctx, group.DefaultPolicyRule(g.ID))
	})
	if err != nil {
		return nil, err
	}

	slog.Info("group created", "group_id", g.ID, "slug", g.Slug, "created_by", actorID)
	return g, nil
}

type JoinResult struct {
	GroupID       uint64 `json:"group_id"`
	AlreadyMember bool   `json:"already_member"`
}

// JoinGroup registers a verified user as a member. Joining twice is not an
// error, the second call just reports the existing membership.
func (u *Usecase) JoinGroup(ctx context.Context, slug string, userID uint64) (*JoinResult, error) {
	status, err := u.verifier.GetVerificationStatus(ctx, userID)
	if err != nil {
		return nil, fault.Wrap(fault.ExternalNetwork, "identity verification lookup failed", err)
	}
	if status != kyc.StatusVerified {
		return nil, fault.New(fault.Authorization, "identity must be verified before joining a group")
	}

	var out JoinResult
	err = u.uow.WithinTx(ctx, func(r uow.Repos) error {
		g, err := r.Groups.GetBySlug(ctx, slug)
		if err != nil {
			return fault.Wrap(fault.NotFound, "group not found", err)
		}
		out.GroupID = g.ID

		if m, err := r.Groups.GetMembership(ctx, g.ID, userID); err == nil && m != nil {
			out.AlreadyMember = true
			return nil
		}
		if err := r.Groups.CreateMembership(ctx, &group.Membership{
			GroupID: g.ID, UserID: userID, Role: group.RoleMember,
		}); err != nil {
			return err
		}
		return r.Groups.SaveBalance(ctx, &group.MemberBalance{GroupID: g.ID, UserID: userID})
	})
	if err != nil {
		return nil, err
	}
	if !out.AlreadyMember {
		u.notifier.Notify(ctx, userID, "Welcome to the group", notify.LevelSuccess)
	}
	return &out, nil
}

type DepositResult struct {
	DepositID    uint64  `json:"deposit_id"`
	Amount       float64 `json:"amount"`
	TotalDeposit float64 `json:"total_deposit"`
	ExternalTx   string  `json:"external_tx"`
}

// Deposit moves amount from the member's settlement account into the group
// vault and records it. The outbox intent is committed before the external
// call so a crash mid-flight leaves evidence instead of a silent gap.
func (u *Usecase) Deposit(ctx context.Context, slug string, userID uint64, amount float64) (*DepositResult, error) {
	amount = money.Round2(amount)
	if amount <= 0 {
		return nil, fault.New(fault.Validation, "deposit amount must be positive")
	}
	status, err := u.verifier.GetVerificationStatus(ctx, userID)
	if err != nil {
		return nil, fault.Wrap(fault.ExternalNetwork, "identity verification lookup failed", err)
	}
	if status != kyc.StatusVerified {
		return nil, fault.New(fault.Authorization, "identity must be verified before depositing")
	}

	userAcct, err := u.accounts.UserAccount(ctx, userID)
	if err != nil {
		return nil, fault.Wrap(fault.ExternalNetwork, "could not resolve member account", err)
	}

	var (
		g      *group.Group
		intent *outbox.Transfer
	)
	err = u.uow.WithinTx(ctx, func(r uow.Repos) error {
		g, err = r.Groups.GetBySlug(ctx, slug)
		if err != nil {
			return fault.Wrap(fault.NotFound, "group not found", err)
		}
		if _, err := r.Groups.GetMembership(ctx, g.ID, userID); err != nil {
			return fault.New(fault.Authorization, "not a member of this group")
		}
		rule, err := r.Groups.GetPolicyRule(ctx, g.ID)
		if err == nil && rule.MinDepositAmount != nil && amount < *rule.MinDepositAmount {
			return fault.Newf(fault.Validation, "deposit below group minimum of %.2f", *rule.MinDepositAmount)
		}

		intent = &outbox.Transfer{
			ClientRef:   id.NewID32(),
			GroupID:     g.ID,
			FromAccount: userAcct,
			ToAccount:   g.VaultAccount,
			Amount:      amount,
			AssetRef:    u.assetRef,
			Purpose:     outbox.PurposeDeposit,
			Status:      outbox.StatusPending,
		}
		return r.Outbox.Create(ctx, intent)
	})
	if err != nil {
		return nil, err
	}

	rcpt, err := transfers.Execute(ctx, u.uow, u.settle, intent.ID, u.now)
	if err != nil {
		return nil, err
	}

	var out DepositResult
	uid := userID
	err = u.uow.WithinTx(ctx, func(r uow.Repos) error {
		bal, err := r.Groups.GetBalance(ctx, g.ID, userID)
		if err != nil {
			bal = &group.MemberBalance{GroupID: g.ID, UserID: userID}
		}
		bal.TotalDeposit = money.Round2(bal.TotalDeposit + amount)
		if err := r.Groups.SaveBalance(ctx, bal); err != nil {
			return err
		}

		dep := &group.Deposit{GroupID: g.ID, UserID: userID, Amount: amount}
		if err := r.Groups.CreateDeposit(ctx, dep); err != nil {
			return err
		}
		depID := dep.ID
		if err := r.Ledger.Append(ctx, &ledger.Entry{
			GroupID:      g.ID,
			UserID:       &uid,
			RefType:      ledger.RefDeposit,
			RefID:        &depID,
			Amount:       amount,
			Note:         fmt.Sprintf("Deposit %.2f into %s", amount, g.Slug),
			ExternalTxID: rcpt.TransactionID,
		}); err != nil {
			return err
		}

		t, err := r.Outbox.GetByID(ctx, intent.ID)
		if err != nil {
			return err
		}
		t.Status = outbox.StatusSent
		t.ExternalTx = rcpt.TransactionID
		t.RefID = &depID
		if err := r.Outbox.Save(ctx, t); err != nil {
			return err
		}

		out = DepositResult{DepositID: dep.ID, Amount: amount, TotalDeposit: bal.TotalDeposit, ExternalTx: rcpt.TransactionID}
		return nil
	})
	if err != nil {
		transfers.Quarantine(ctx, u.uow, u.notifier, g.ID, &uid, amount, rcpt.TransactionID,
			fmt.Sprintf("Deposit of %.2f by user %d settled externally (tx %s) but local recording failed", amount, userID, rcpt.TransactionID))
		return nil, fault.Wrap(fault.Consistency, "deposit settled externally but could not be recorded", err)
	}

	slog.Info("deposit recorded", "group_id", g.ID, "user_id", userID, "amount", amount, "external_tx", rcpt.TransactionID)
	return &out, nil
}

type WithdrawResult struct {
	Amount         float64 `json:"amount"`
	InterestPaid   float64 `json:"interest_paid"`
	InterestPooled float64 `json:"interest_pooled"`
	Payout         float64 `json:"payout"`
	ExternalTx     string  `json:"external_tx"`
}

// Withdraw pays out amount (plus any immediately-payable interest) from the
// vault back to the member. Interest only accrues once the group has lent
// money out; where it goes is the group's distribute_on_profit policy call.
func (u *Usecase) Withdraw(ctx context.Context, slug string, userID uint64, amount float64) (*WithdrawResult, error) {
	amount = money.Round2(amount)
	if amount <= 0 {
		return nil, fault.New(fault.Validation, "withdrawal amount must be positive")
	}

	userAcct, err := u.accounts.UserAccount(ctx, userID)
	if err != nil {
		return nil, fault.Wrap(fault.ExternalNetwork, "could not resolve member account", err)
	}

	var (
		g       *group.Group
		intent  *outbox.Transfer
		routing profit.Routing
		payout  float64
	)
	err = u.uow.WithinTx(ctx, func(r uow.Repos) error {
		g, err = r.Groups.GetBySlug(ctx, slug)
		if err != nil {
			return fault.Wrap(fault.NotFound, "group not found", err)
		}
		if _, err := r.Groups.GetMembership(ctx, g.ID, userID); err != nil {
			return fault.New(fault.Authorization, "not a member of this group")
		}
		bal, err := r.Groups.GetBalance(ctx, g.ID, userID)
		if err != nil {
			return fault.New(fault.Validation, "no balance in this group")
		}
		if amount > bal.TotalDeposit {
			return fault.Newf(fault.Validation, "withdrawal %.2f exceeds deposits of %.2f", amount, bal.TotalDeposit)
		}
		if remaining := money.Round2(bal.NetPosition() - amount); remaining < g.MinBalance {
			return fault.Newf(fault.Validation, "withdrawal would leave balance below group minimum of %.2f", g.MinBalance)
		}

		disbursed, err := r.Ledger.SumByRefTypes(ctx, g.ID, []ledger.RefType{ledger.RefLoanDisbursal})
		if err != nil {
			return err
		}
		interest := profit.WithdrawInterest(g, amount, disbursed > 0)
		routing = profit.RouteInterest(g, interest)
		payout = money.Round2(amount + routing.PaidNow)

		intent = &outbox.Transfer{
			ClientRef:   id.NewID32(),
			GroupID:     g.ID,
			FromAccount: g.VaultAccount,
			ToAccount:   userAcct,
			Amount:      payout,
			AssetRef:    u.assetRef,
			Purpose:     outbox.PurposeWithdraw,
			Status:      outbox.StatusPending,
		}
		return r.Outbox.Create(ctx, intent)
	})
	if err != nil {
		return nil, err
	}

	rcpt, err := transfers.Execute(ctx, u.uow, u.settle, intent.ID, u.now)
	if err != nil {
		return nil, err
	}

	uid := userID
	err = u.uow.WithinTx(ctx, func(r uow.Repos) error {
		bal, err := r.Groups.GetBalance(ctx, g.ID, userID)
		if err != nil {
			return err
		}
		bal.TotalWithdrawn = money.Round2(bal.TotalWithdrawn + payout)
		bal.InterestEarned = money.Round2(bal.InterestEarned + routing.PaidNow)
		if err := r.Groups.SaveBalance(ctx, bal); err != nil {
			return err
		}

		if err := r.Ledger.Append(ctx, &ledger.Entry{
			GroupID:      g.ID,
			UserID:       &uid,
			RefType:      ledger.RefWithdraw,
			Amount:       payout,
			Note:         fmt.Sprintf("Withdrawal %.2f (interest paid %.2f) from %s", amount, routing.PaidNow, g.Slug),
			ExternalTxID: rcpt.TransactionID,
		}); err != nil {
			return err
		}
		if routing.Pooled > 0 {
			if err := profit.AccrueFromWithdraw(ctx, r, g.ID, userID, routing.Pooled); err != nil {
				return err
			}
		}

		t, err := r.Outbox.GetByID(ctx, intent.ID)
		if err != nil {
			return err
		}
		t.Status = outbox.StatusSent
		t.ExternalTx = rcpt.TransactionID
		return r.Outbox.Save(ctx, t)
	})
	if err != nil {
		transfers.Quarantine(ctx, u.uow, u.notifier, g.ID, &uid, payout, rcpt.TransactionID,
			fmt.Sprintf("Withdrawal payout of %.2f to user %d settled externally (tx %s) but local recording failed", payout, userID, rcpt.TransactionID))
		return nil, fault.Wrap(fault.Consistency, "withdrawal settled externally but could not be recorded", err)
	}

	slog.Info("withdrawal recorded",
		"group_id", g.ID, "user_id", userID, "amount", amount,
		"interest_paid", routing.PaidNow, "interest_pooled", routing.Pooled, "external_tx", rcpt.TransactionID)
	return &WithdrawResult{
		Amount:         amount,
		InterestPaid:   routing.PaidNow,
		InterestPooled: routing.Pooled,
		Payout:         payout,
		ExternalTx:     rcpt.TransactionID,
	}, nil
}

type BalanceView struct {
	Balance *group.MemberBalance  `json:"balance"`
	Credit  *ledger.CreditBalance `json:"credit,omitempty"`
}

// GetBalance returns the member's savings position plus any parked credit.
func (u *Usecase) GetBalance(ctx context.Context, slug string, userID uint64) (*BalanceView, error) {
	var out BalanceView
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		g, err := r.Groups.GetBySlug(ctx, slug)
		if err != nil {
			return fault.Wrap(fault.NotFound, "group not found", err)
		}
		if _, err := r.Groups.GetMembership(ctx, g.ID, userID); err != nil {
			return fault.New(fault.Authorization, "not a member of this group")
		}
		bal, err := r.Groups.GetBalance(ctx, g.ID, userID)
		if err != nil {
			bal = &group.MemberBalance{GroupID: g.ID, UserID: userID}
		}
		out.Balance = bal
		if cr, err := r.Ledger.GetCredit(ctx, g.ID, userID); err == nil {
			out.Credit = cr
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListLedger returns recent ledger entries for a group. Members see their own
// rows; admins may pass a nil user filter to see everything.
func (u *Usecase) ListLedger(ctx context.Context, slug string, actorID uint64, userFilter *uint64, limit int) ([]ledger.Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []ledger.Entry
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		g, err := r.Groups.GetBySlug(ctx, slug)
		if err != nil {
			return fault.Wrap(fault.NotFound, "group not found", err)
		}
		m, err := r.Groups.GetMembership(ctx, g.ID, actorID)
		if err != nil {
			return fault.New(fault.Authorization, "not a member of this group")
		}
		if m.Role != group.RoleAdmin {
			// Non-admins only ever see their own entries.
			self := actorID
			userFilter = &self
		}
		out, err = r.Ledger.ListByGroup(ctx, g.ID, userFilter, limit)
		return err
	})
	return out, err
}

type GroupOverview struct {
	Group         *group.Group `json:"group"`
	Members       int          `json:"members"`
	TotalDeposits float64      `json:"total_deposits"`
	ActiveLoans   int          `json:"active_loans"`
}

// GetGroup returns the group's settings and headline numbers for its members.
func (u *Usecase) GetGroup(ctx context.Context, slug string, actorID uint64) (*GroupOverview, error) {
	var out GroupOverview
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		g, err := r.Groups.GetBySlug(ctx, slug)
		if err != nil {
			return fault.Wrap(fault.NotFound, "group not found", err)
		}
		if _, err := r.Groups.GetMembership(ctx, g.ID, actorID); err != nil {
			return fault.New(fault.Authorization, "not a member of this group")
		}
		members, err := r.Groups.CountMembers(ctx, g.ID)
		if err != nil {
			return err
		}
		deposits, err := r.Groups.SumDeposits(ctx, g.ID, nil, nil)
		if err != nil {
			return err
		}
		active, err := r.Loans.CountActiveByGroup(ctx, g.ID)
		if err != nil {
			return err
		}
		out = GroupOverview{Group: g, Members: members, TotalDeposits: money.Round2(deposits), ActiveLoans: active}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// slugify builds a unique url-safe slug from the group name.
func slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ', r == '-', r == '_':
			return '-'
		}
		return -1
	}, s)
	s = strings.Trim(s, "-")
	return s + "-" + uuid.NewString()[:8]
}
