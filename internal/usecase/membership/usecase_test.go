package membership

import (
	"context"
	"math"
	"strings"
	"testing"

	"gorm.io/gorm"

	"coopfund-backend/internal/domain/fault"
	"coopfund-backend/internal/domain/group"
	"coopfund-backend/internal/domain/ledger"
	"coopfund-backend/internal/domain/loan"
	"coopfund-backend/internal/domain/outbox"
	"coopfund-backend/internal/domain/profit"
	"coopfund-backend/internal/domain/uow"
	"coopfund-backend/internal/external/kyc"
	"coopfund-backend/internal/external/settlement"
	"coopfund-backend/internal/testutil/dbtest"
	"coopfund-backend/internal/testutil/kycmock"
	"coopfund-backend/internal/testutil/notifymock"
	"coopfund-backend/internal/testutil/settlemock"
)

const memberID = uint64(7)

type fixture struct {
	txm    uow.UnitOfWork
	db     *gorm.DB
	uc     *Usecase
	settle *settlemock.Client
	kyc    *kycmock.Verifier
	notes  *notifymock.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	txm, gdb := dbtest.NewUoW(t)
	sc := settlemock.New()
	kv := kycmock.New()
	notes := notifymock.New()
	uc := NewUsecase(txm, sc, settlement.PrefixDirectory{}, kv, notes, "IDR")
	return &fixture{txm: txm, db: gdb, uc: uc, settle: sc, kyc: kv, notes: notes}
}

func approxEqual(a, b float64) bool { return math.Abs(a-b) < 0.005 }

// seedGroup creates a group with one member directly, bypassing CreateGroup,
// so savings tests control every field.
func seedGroup(t *testing.T, f *fixture, distributeOnProfit bool) *group.Group {
	t.Helper()
	g := &group.Group{
		Name:               "Simpan Pinjam",
		Slug:               "simpan-pinjam",
		CreatedBy:          memberID,
		VaultAccount:       "vault-sp",
		InterestRate:       0.10,
		ProfitReservePct:   10,
		DistributeOnProfit: distributeOnProfit,
	}
	if err := f.db.Create(g).Error; err != nil {
		t.Fatalf("seed group: %v", err)
	}
	if err := f.db.Create(&group.Membership{GroupID: g.ID, UserID: memberID, Role: group.RoleMember}).Error; err != nil {
		t.Fatalf("seed membership: %v", err)
	}
	if err := f.db.Create(&group.MemberBalance{GroupID: g.ID, UserID: memberID}).Error; err != nil {
		t.Fatalf("seed balance: %v", err)
	}
	if err := f.db.Create(group.DefaultPolicyRule(g.ID)).Error; err != nil {
		t.Fatalf("seed policy rule: %v", err)
	}
	return g
}

// --- CreateGroup / JoinGroup ---

func TestCreateGroup_SeedsAdminAndPolicy(t *testing.T) {
	f := newFixture(t)
	g, err := f.uc.CreateGroup(context.Background(), memberID, CreateGroupInput{
		Name: "Family Savings", VaultAccount: "vault-fam", MinBalance: 50,
	})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if !strings.HasPrefix(g.Slug, "family-savings-") {
		t.Fatalf("slug %q", g.Slug)
	}
	if g.InterestRate != 0.10 {
		t.Fatalf("unset interest rate should default to 0.10, got %v", g.InterestRate)
	}

	var m group.Membership
	if err := f.db.Where("group_id = ? AND user_id = ?", g.ID, memberID).First(&m).Error; err != nil {
		t.Fatalf("founder membership missing: %v", err)
	}
	if m.Role != group.RoleAdmin {
		t.Fatalf("founder role %s, want admin", m.Role)
	}
	var rule group.PolicyRule
	if err := f.db.Where("group_id = ?", g.ID).First(&rule).Error; err != nil {
		t.Fatalf("default policy rule missing: %v", err)
	}
	if rule.QuorumPercent != 50 || rule.MaxLoanPctOfPool != 25 {
		t.Fatalf("policy rule %+v", rule)
	}
}

func TestCreateGroup_RequiresVerifiedIdentity(t *testing.T) {
	f := newFixture(t)
	f.kyc.GetVerificationStatusFn = func(ctx context.Context, userID uint64) (kyc.Status, error) {
		return kyc.StatusPending, nil
	}
	_, err := f.uc.CreateGroup(context.Background(), memberID, CreateGroupInput{Name: "Nope", VaultAccount: "v"})
	if fault.KindOf(err) != fault.Authorization {
		t.Fatalf("want authorization fault, got %v", err)
	}
}

func TestJoinGroup_SecondJoinIsIdempotent(t *testing.T) {
	f := newFixture(t)
	g := seedGroup(t, f, true)
	ctx := context.Background()

	res, err := f.uc.JoinGroup(ctx, g.Slug, 42)
	if err != nil {
		t.Fatalf("first join: %v", err)
	}
	if res.AlreadyMember || res.GroupID != g.ID {
		t.Fatalf("first join %+v", res)
	}

	res, err = f.uc.JoinGroup(ctx, g.Slug, 42)
	if err != nil {
		t.Fatalf("second join: %v", err)
	}
	if !res.AlreadyMember {
		t.Fatalf("second join should report already_member")
	}

	var n int64
	f.db.Model(&group.Membership{}).Where("group_id = ? AND user_id = ?", g.ID, 42).Count(&n)
	if n != 1 {
		t.Fatalf("%d membership rows, want 1", n)
	}
	if f.notes.CountFor(42) != 1 {
		t.Fatalf("welcome notification should go out exactly once, got %d", f.notes.CountFor(42))
	}
}

func TestJoinGroup_UnknownGroup(t *testing.T) {
	f := newFixture(t)
	_, err := f.uc.JoinGroup(context.Background(), "nowhere", 42)
	if fault.KindOf(err) != fault.NotFound {
		t.Fatalf("want not-found fault, got %v", err)
	}
}

// --- Deposit ---

func TestDeposit_MovesMoneyAndBooksLedger(t *testing.T) {
	f := newFixture(t)
	g := seedGroup(t, f, true)

	res, err := f.uc.Deposit(context.Background(), g.Slug, memberID, 250)
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if !approxEqual(res.TotalDeposit, 250) || res.ExternalTx == "" {
		t.Fatalf("result %+v", res)
	}

	transfers := f.settle.Transfers()
	if len(transfers) != 1 {
		t.Fatalf("want 1 transfer, got %d", len(transfers))
	}
	if transfers[0].From != "user-7" || transfers[0].To != g.VaultAccount || transfers[0].Amount != 250 {
		t.Fatalf("transfer %+v", transfers[0])
	}

	var entry ledger.Entry
	if err := f.db.Where("group_id = ? AND ref_type = ?", g.ID, ledger.RefDeposit).First(&entry).Error; err != nil {
		t.Fatalf("deposit ledger entry missing: %v", err)
	}
	if entry.ExternalTxID != res.ExternalTx {
		t.Fatalf("ledger external tx %q, want %q", entry.ExternalTxID, res.ExternalTx)
	}

	var tr outbox.Transfer
	if err := f.db.Where("purpose = ?", outbox.PurposeDeposit).First(&tr).Error; err != nil {
		t.Fatalf("outbox row missing: %v", err)
	}
	if tr.Status != outbox.StatusSent || tr.ExternalTx != res.ExternalTx {
		t.Fatalf("outbox %+v", tr)
	}

	var bal group.MemberBalance
	f.db.Where("group_id = ? AND user_id = ?", g.ID, memberID).First(&bal)
	if !approxEqual(bal.TotalDeposit, 250) {
		t.Fatalf("balance %.2f, want 250.00", bal.TotalDeposit)
	}
}

func TestDeposit_AccumulatesBalance(t *testing.T) {
	f := newFixture(t)
	g := seedGroup(t, f, true)
	ctx := context.Background()

	if _, err := f.uc.Deposit(ctx, g.Slug, memberID, 100); err != nil {
		t.Fatalf("deposit 1: %v", err)
	}
	res, err := f.uc.Deposit(ctx, g.Slug, memberID, 50.50)
	if err != nil {
		t.Fatalf("deposit 2: %v", err)
	}
	if !approxEqual(res.TotalDeposit, 150.50) {
		t.Fatalf("total %.2f, want 150.50", res.TotalDeposit)
	}
}

func TestDeposit_NonMemberRejected(t *testing.T) {
	f := newFixture(t)
	g := seedGroup(t, f, true)
	_, err := f.uc.Deposit(context.Background(), g.Slug, 99, 100)
	if fault.KindOf(err) != fault.Authorization {
		t.Fatalf("want authorization fault, got %v", err)
	}
	if f.settle.TransferCount() != 0 {
		t.Fatalf("rejected deposit must not move money")
	}
}

func TestDeposit_BelowPolicyMinimum(t *testing.T) {
	f := newFixture(t)
	g := seedGroup(t, f, true)
	min := 100.0
	if err := f.db.Model(&group.PolicyRule{}).Where("group_id = ?", g.ID).Update("min_deposit_amount", min).Error; err != nil {
		t.Fatalf("set minimum: %v", err)
	}
	_, err := f.uc.Deposit(context.Background(), g.Slug, memberID, 50)
	if fault.KindOf(err) != fault.Validation {
		t.Fatalf("want validation fault, got %v", err)
	}
}

func TestDeposit_NonPositiveAmount(t *testing.T) {
	f := newFixture(t)
	g := seedGroup(t, f, true)
	if _, err := f.uc.Deposit(context.Background(), g.Slug, memberID, 0); fault.KindOf(err) != fault.Validation {
		t.Fatalf("want validation fault for zero amount")
	}
	if _, err := f.uc.Deposit(context.Background(), g.Slug, memberID, -5); fault.KindOf(err) != fault.Validation {
		t.Fatalf("want validation fault for negative amount")
	}
}

// --- Withdraw ---

func TestWithdraw_NoLoanActivityPaysNoInterest(t *testing.T) {
	f := newFixture(t)
	g := seedGroup(t, f, true)
	ctx := context.Background()
	if _, err := f.uc.Deposit(ctx, g.Slug, memberID, 500); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	res, err := f.uc.Withdraw(ctx, g.Slug, memberID, 200)
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if res.InterestPaid != 0 || res.InterestPooled != 0 || !approxEqual(res.Payout, 200) {
		t.Fatalf("result %+v", res)
	}
}

func TestWithdraw_InterestPoolsUnderDistributePolicy(t *testing.T) {
	f := newFixture(t)
	g := seedGroup(t, f, true) // distribute_on_profit: interest pools
	ctx := context.Background()
	if _, err := f.uc.Deposit(ctx, g.Slug, memberID, 500); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// Loan activity switches interest on.
	if err := f.db.Create(&ledger.Entry{GroupID: g.ID, RefType: ledger.RefLoanDisbursal, Amount: 300, Note: "seed"}).Error; err != nil {
		t.Fatalf("seed disbursal entry: %v", err)
	}

	res, err := f.uc.Withdraw(ctx, g.Slug, memberID, 200)
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	// 200 * 10%/2 = 10.00, pooled rather than paid out
	if !approxEqual(res.InterestPooled, 10) || res.InterestPaid != 0 {
		t.Fatalf("result %+v", res)
	}
	if !approxEqual(res.Payout, 200) {
		t.Fatalf("payout %.2f, want 200.00", res.Payout)
	}

	var pool profit.Pool
	if err := f.db.Where("group_id = ?", g.ID).First(&pool).Error; err != nil {
		t.Fatalf("profit pool missing: %v", err)
	}
	if !approxEqual(pool.AccruedInterest, 10) || !approxEqual(pool.NetAvailable, 10) {
		t.Fatalf("pool %+v", pool)
	}
}

func TestWithdraw_InterestPaidOutWhenNotDistributing(t *testing.T) {
	f := newFixture(t)
	g := seedGroup(t, f, false)
	ctx := context.Background()
	if _, err := f.uc.Deposit(ctx, g.Slug, memberID, 500); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.db.Create(&ledger.Entry{GroupID: g.ID, RefType: ledger.RefLoanDisbursal, Amount: 300, Note: "seed"}).Error; err != nil {
		t.Fatalf("seed disbursal entry: %v", err)
	}

	res, err := f.uc.Withdraw(ctx, g.Slug, memberID, 200)
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if !approxEqual(res.InterestPaid, 10) || res.InterestPooled != 0 {
		t.Fatalf("result %+v", res)
	}
	if !approxEqual(res.Payout, 210) {
		t.Fatalf("payout %.2f, want 210.00", res.Payout)
	}

	var bal group.MemberBalance
	f.db.Where("group_id = ? AND user_id = ?", g.ID, memberID).First(&bal)
	if !approxEqual(bal.InterestEarned, 10) {
		t.Fatalf("interest earned %.2f, want 10.00", bal.InterestEarned)
	}
}

func TestWithdraw_ExceedsDeposits(t *testing.T) {
	f := newFixture(t)
	g := seedGroup(t, f, true)
	ctx := context.Background()
	if _, err := f.uc.Deposit(ctx, g.Slug, memberID, 100); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	_, err := f.uc.Withdraw(ctx, g.Slug, memberID, 150)
	if fault.KindOf(err) != fault.Validation {
		t.Fatalf("want validation fault, got %v", err)
	}
}

func TestWithdraw_MinBalanceGuard(t *testing.T) {
	f := newFixture(t)
	g := seedGroup(t, f, true)
	ctx := context.Background()
	if err := f.db.Model(&group.Group{}).Where("id = ?", g.ID).Update("min_balance", 100).Error; err != nil {
		t.Fatalf("set min balance: %v", err)
	}
	if _, err := f.uc.Deposit(ctx, g.Slug, memberID, 150); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := f.uc.Withdraw(ctx, g.Slug, memberID, 100); fault.KindOf(err) != fault.Validation {
		t.Fatalf("withdrawal breaking the floor should fail validation")
	}
	if _, err := f.uc.Withdraw(ctx, g.Slug, memberID, 50); err != nil {
		t.Fatalf("withdrawal within the floor: %v", err)
	}
}

// --- Views ---

func TestGetBalance_IncludesParkedCredit(t *testing.T) {
	f := newFixture(t)
	g := seedGroup(t, f, true)
	ctx := context.Background()
	if _, err := f.uc.Deposit(ctx, g.Slug, memberID, 300); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.db.Create(&ledger.CreditBalance{GroupID: g.ID, UserID: memberID, Amount: 12.50, Source: "OVERPAYMENT"}).Error; err != nil {
		t.Fatalf("seed credit: %v", err)
	}

	view, err := f.uc.GetBalance(ctx, g.Slug, memberID)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if !approxEqual(view.Balance.TotalDeposit, 300) {
		t.Fatalf("balance %+v", view.Balance)
	}
	if view.Credit == nil || !approxEqual(view.Credit.Amount, 12.50) {
		t.Fatalf("credit %+v", view.Credit)
	}
}

func TestListLedger_NonAdminSeesOnlyOwnRows(t *testing.T) {
	f := newFixture(t)
	g := seedGroup(t, f, true)
	ctx := context.Background()
	if err := f.db.Create(&group.Membership{GroupID: g.ID, UserID: 8, Role: group.RoleMember}).Error; err != nil {
		t.Fatalf("seed second member: %v", err)
	}
	if _, err := f.uc.Deposit(ctx, g.Slug, memberID, 100); err != nil {
		t.Fatalf("deposit 7: %v", err)
	}
	if _, err := f.uc.Deposit(ctx, g.Slug, 8, 100); err != nil {
		t.Fatalf("deposit 8: %v", err)
	}

	entries, err := f.uc.ListLedger(ctx, g.Slug, memberID, nil, 100)
	if err != nil {
		t.Fatalf("ListLedger: %v", err)
	}
	for _, e := range entries {
		if e.UserID == nil || *e.UserID != memberID {
			t.Fatalf("non-admin saw foreign entry %+v", e)
		}
	}
	if len(entries) == 0 {
		t.Fatalf("member should see their own entries")
	}
}

// --- GetGroup ---

func TestGetGroup_ReportsHeadlineNumbers(t *testing.T) {
	f := newFixture(t)
	g := seedGroup(t, f, true)
	ctx := context.Background()

	if _, err := f.uc.Deposit(ctx, g.Slug, memberID, 250); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	// one active and one closed loan; only the active one counts
	if err := f.db.Create(&loan.Loan{LoanRequestID: 1, GroupID: g.ID, UserID: memberID, Principal: 100, Status: loan.StatusActive}).Error; err != nil {
		t.Fatalf("seed active loan: %v", err)
	}
	if err := f.db.Create(&loan.Loan{LoanRequestID: 2, GroupID: g.ID, UserID: memberID, Principal: 100, Status: loan.StatusClosed}).Error; err != nil {
		t.Fatalf("seed closed loan: %v", err)
	}

	view, err := f.uc.GetGroup(ctx, g.Slug, memberID)
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	if view.Members != 1 || view.ActiveLoans != 1 {
		t.Fatalf("view %+v", view)
	}
	if !approxEqual(view.TotalDeposits, 250) {
		t.Fatalf("total deposits %.2f, want 250.00", view.TotalDeposits)
	}
}

func TestGetGroup_NonMemberRejected(t *testing.T) {
	f := newFixture(t)
	g := seedGroup(t, f, true)

	_, err := f.uc.GetGroup(context.Background(), g.Slug, 99)
	if fault.KindOf(err) != fault.Authorization {
		t.Fatalf("want authorization fault, got %v", err)
	}
}
