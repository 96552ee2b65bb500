package mysql_test

import (
	"context"
	"errors"
	"testing"

	"coopfund-backend/internal/adapter/repository/mysql"
	"coopfund-backend/internal/domain/group"
	"coopfund-backend/internal/domain/ledger"
	"coopfund-backend/internal/domain/loan"
	"coopfund-backend/internal/domain/trust"
	"coopfund-backend/internal/domain/uow"
	"coopfund-backend/internal/testutil/dbtest"
)

func TestLedgerAppend_RefusesUnknownRefType(t *testing.T) {
	gdb := dbtest.Open(t)
	repo := mysql.NewLedgerRepository(gdb)

	err := repo.Append(context.Background(), &ledger.Entry{GroupID: 1, RefType: "typo_ref", Amount: 10})
	if err == nil {
		t.Fatalf("unknown ref type accepted")
	}
	var n int64
	gdb.Model(&ledger.Entry{}).Count(&n)
	if n != 0 {
		t.Fatalf("row written despite the rejection")
	}
}

func TestLedgerSumByRefTypes(t *testing.T) {
	gdb := dbtest.Open(t)
	repo := mysql.NewLedgerRepository(gdb)
	ctx := context.Background()

	for _, e := range []ledger.Entry{
		{GroupID: 1, RefType: ledger.RefDeposit, Amount: 100},
		{GroupID: 1, RefType: ledger.RefDeposit, Amount: 50.25},
		{GroupID: 1, RefType: ledger.RefWithdraw, Amount: 30},
		{GroupID: 2, RefType: ledger.RefDeposit, Amount: 999}, // other group
	} {
		entry := e
		if err := repo.Append(ctx, &entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	sum, err := repo.SumByRefTypes(ctx, 1, []ledger.RefType{ledger.RefDeposit})
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if sum != 150.25 {
		t.Fatalf("deposit sum %.2f, want 150.25", sum)
	}
	// empty group sums to zero, not an error
	sum, err = repo.SumByRefTypes(ctx, 9, []ledger.RefType{ledger.RefDeposit})
	if err != nil || sum != 0 {
		t.Fatalf("empty group sum %.2f err %v", sum, err)
	}
}

func TestLedgerExistsByExternalTxID(t *testing.T) {
	gdb := dbtest.Open(t)
	repo := mysql.NewLedgerRepository(gdb)
	ctx := context.Background()

	if err := repo.Append(ctx, &ledger.Entry{GroupID: 1, RefType: ledger.RefRefund, Amount: 5, ExternalTxID: "ext-a"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	for tx, want := range map[string]bool{"ext-a": true, "ext-b": false} {
		got, err := repo.ExistsByExternalTxID(ctx, tx)
		if err != nil {
			t.Fatalf("exists %q: %v", tx, err)
		}
		if got != want {
			t.Fatalf("exists %q = %v, want %v", tx, got, want)
		}
	}
}

func TestLedgerListByGroup_FilterAndLimit(t *testing.T) {
	gdb := dbtest.Open(t)
	repo := mysql.NewLedgerRepository(gdb)
	ctx := context.Background()

	u1, u2 := uint64(1), uint64(2)
	for i := 0; i < 3; i++ {
		if err := repo.Append(ctx, &ledger.Entry{GroupID: 1, UserID: &u1, RefType: ledger.RefDeposit, Amount: 10}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := repo.Append(ctx, &ledger.Entry{GroupID: 1, UserID: &u2, RefType: ledger.RefDeposit, Amount: 10}); err != nil {
		t.Fatalf("append: %v", err)
	}

	rows, err := repo.ListByGroup(ctx, 1, &u1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("%d rows, want limit 2", len(rows))
	}
	for _, e := range rows {
		if *e.UserID != u1 {
			t.Fatalf("filter leaked row for user %d", *e.UserID)
		}
	}
}

func TestTrustUpsertHistory_OneRowPerDay(t *testing.T) {
	gdb := dbtest.Open(t)
	repo := mysql.NewTrustRepository(gdb)
	ctx := context.Background()

	first := &trust.HistoryEntry{GroupID: 1, UserID: 2, SnapshotDate: "2026-08-20", Delta: 5, ScoreAfter: 55, Reason: "periodic recomputation"}
	if err := repo.UpsertHistory(ctx, first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	second := &trust.HistoryEntry{GroupID: 1, UserID: 2, SnapshotDate: "2026-08-20", Delta: -3, ScoreAfter: 52, Reason: "periodic recomputation"}
	if err := repo.UpsertHistory(ctx, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	other := &trust.HistoryEntry{GroupID: 1, UserID: 2, SnapshotDate: "2026-08-21", Delta: 1, ScoreAfter: 53, Reason: "periodic recomputation"}
	if err := repo.UpsertHistory(ctx, other); err != nil {
		t.Fatalf("next-day upsert: %v", err)
	}

	rows, err := repo.ListHistory(ctx, 1, 2, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("%d rows, want 2", len(rows))
	}
	// newest first, and the same-day row carries the replacement values
	if rows[0].SnapshotDate != "2026-08-21" || rows[1].ScoreAfter != 52 || rows[1].Delta != -3 {
		t.Fatalf("rows %+v", rows)
	}
}

func TestGroupListGroupIDs(t *testing.T) {
	gdb := dbtest.Open(t)
	repo := mysql.NewGroupRepository(gdb)
	ctx := context.Background()

	for _, slug := range []string{"one", "two"} {
		if err := repo.Create(ctx, &group.Group{Name: slug, Slug: slug, CreatedBy: 1, VaultAccount: "v-" + slug}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	ids, err := repo.ListGroupIDs(ctx)
	if err != nil {
		t.Fatalf("list ids: %v", err)
	}
	if len(ids) != 2 || ids[0] >= ids[1] {
		t.Fatalf("ids %v", ids)
	}
}

func TestGormUoW_RollsBackOnError(t *testing.T) {
	gdb := dbtest.Open(t)
	txm := mysql.NewGormUoW(gdb)
	ctx := context.Background()

	boom := errors.New("boom")
	err := txm.WithinTx(ctx, func(r uow.Repos) error {
		if err := r.Groups.Create(ctx, &group.Group{Name: "Ghost", Slug: "ghost", CreatedBy: 1, VaultAccount: "v-g"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err %v", err)
	}
	var n int64
	gdb.Model(&group.Group{}).Count(&n)
	if n != 0 {
		t.Fatalf("aborted transaction left %d rows", n)
	}
}

func TestGormUoW_WithinLoanTxLoadsTheLoan(t *testing.T) {
	gdb := dbtest.Open(t)
	txm := mysql.NewGormUoW(gdb)
	ctx := context.Background()

	l := &loan.Loan{GroupID: 1, UserID: 2, LoanRequestID: 3, Principal: 500, InterestRateAPY: 10, TenureMonths: 12, Status: loan.StatusApproved}
	if err := gdb.Create(l).Error; err != nil {
		t.Fatalf("seed loan: %v", err)
	}

	err := txm.WithinLoanTx(ctx, l.ID, func(r uow.Repos, locked *loan.Loan) error {
		if locked.ID != l.ID || locked.Principal != 500 {
			t.Fatalf("locked loan %+v", locked)
		}
		locked.Status = loan.StatusActive
		return r.Loans.Save(ctx, locked)
	})
	if err != nil {
		t.Fatalf("WithinLoanTx: %v", err)
	}
	var got loan.Loan
	gdb.First(&got, l.ID)
	if got.Status != loan.StatusActive {
		t.Fatalf("status %s after commit", got.Status)
	}

	if err := txm.WithinLoanTx(ctx, 999, func(uow.Repos, *loan.Loan) error { return nil }); err == nil {
		t.Fatalf("missing loan should fail the transaction")
	}
}
