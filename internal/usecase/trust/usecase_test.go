package trust

import (
	"context"
	"testing"

	"gorm.io/gorm"

	"coopfund-backend/internal/domain/fault"
	"coopfund-backend/internal/domain/group"
	domainTrust "coopfund-backend/internal/domain/trust"
	"coopfund-backend/internal/domain/uow"
	"coopfund-backend/internal/testutil/dbtest"
)

type fixture struct {
	txm uow.UnitOfWork
	db  *gorm.DB
	uc  *Usecase
	grp *group.Group
}

// admin is user 1, the scored member is user 2 with three in-window deposits.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	txm, gdb := dbtest.NewUoW(t)
	g := &group.Group{
		Name: "Tabungan Bersama", Slug: "tabungan-bersama",
		CreatedBy: 1, VaultAccount: "vault-tb", InterestRate: 0.10,
	}
	if err := gdb.Create(g).Error; err != nil {
		t.Fatalf("seed group: %v", err)
	}
	for uid, role := range map[uint64]group.Role{1: group.RoleAdmin, 2: group.RoleMember} {
		if err := gdb.Create(&group.Membership{GroupID: g.ID, UserID: uid, Role: role}).Error; err != nil {
			t.Fatalf("seed membership: %v", err)
		}
	}
	if err := gdb.Create(group.DefaultPolicyRule(g.ID)).Error; err != nil {
		t.Fatalf("seed policy rule: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := gdb.Create(&group.Deposit{GroupID: g.ID, UserID: 2, Amount: 100}).Error; err != nil {
			t.Fatalf("seed deposit: %v", err)
		}
	}
	return &fixture{txm: txm, db: gdb, uc: NewUsecase(txm), grp: g}
}

// Expected score for the fixture member: deposit cadence 3 of 6 expected
// (50, weight 15) plus full share of group deposits (100, weight 5) and
// nothing else defined, so (50*15 + 100*5) / 20.
const fixtureScore = 62.5

func TestUpdateTrustScore_PersistsScoreAndDailyHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.uc.UpdateTrustScore(ctx, f.grp.Slug, 2, 1, 0)
	if err != nil {
		t.Fatalf("UpdateTrustScore: %v", err)
	}
	if !approxEqual(view.Score, fixtureScore) {
		t.Fatalf("score %.2f, want %.2f", view.Score, fixtureScore)
	}

	var sc domainTrust.Score
	if err := f.db.Where("group_id = ? AND user_id = 2", f.grp.ID).First(&sc).Error; err != nil {
		t.Fatalf("score row missing: %v", err)
	}
	if !approxEqual(sc.Value, fixtureScore) {
		t.Fatalf("persisted %.2f", sc.Value)
	}

	var hist []domainTrust.HistoryEntry
	if err := f.db.Where("group_id = ? AND user_id = 2", f.grp.ID).Find(&hist).Error; err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 || !approxEqual(hist[0].Delta, fixtureScore) || !approxEqual(hist[0].ScoreAfter, fixtureScore) {
		t.Fatalf("history %+v", hist)
	}

	// same-day recompute updates the snapshot in place
	if _, err := f.uc.UpdateTrustScore(ctx, f.grp.Slug, 2, 1, 0); err != nil {
		t.Fatalf("second recompute: %v", err)
	}
	if err := f.db.Where("group_id = ? AND user_id = 2", f.grp.ID).Find(&hist).Error; err != nil {
		t.Fatalf("history reload: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("%d history rows for one day, want 1", len(hist))
	}
	if !approxEqual(hist[0].Delta, 0) {
		t.Fatalf("unchanged score should record a zero delta, got %.2f", hist[0].Delta)
	}
}

func TestComputeScore_IsReadOnly(t *testing.T) {
	f := newFixture(t)

	view, err := f.uc.ComputeScore(context.Background(), f.grp.Slug, 2, 2, 0)
	if err != nil {
		t.Fatalf("ComputeScore: %v", err)
	}
	if !approxEqual(view.Score, fixtureScore) {
		t.Fatalf("score %.2f, want %.2f", view.Score, fixtureScore)
	}

	var n int64
	f.db.Model(&domainTrust.Score{}).Count(&n)
	if n != 0 {
		t.Fatalf("read path persisted %d score rows", n)
	}
}

func TestScoreVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// member reading someone else's score
	if _, err := f.uc.ComputeScore(ctx, f.grp.Slug, 1, 2, 0); fault.KindOf(err) != fault.Authorization {
		t.Fatalf("member should not read another member's score")
	}
	// admin reading any member's score
	if _, err := f.uc.ComputeScore(ctx, f.grp.Slug, 2, 1, 0); err != nil {
		t.Fatalf("admin read: %v", err)
	}
	// outsider
	if _, err := f.uc.ComputeScore(ctx, f.grp.Slug, 2, 99, 0); fault.KindOf(err) != fault.Authorization {
		t.Fatalf("non-member should be rejected")
	}
}

func TestHistory_ReturnsTrail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.uc.UpdateTrustScore(ctx, f.grp.Slug, 2, 1, 0); err != nil {
		t.Fatalf("UpdateTrustScore: %v", err)
	}

	hist, err := f.uc.History(ctx, f.grp.Slug, 2, 2, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 1 || hist[0].Reason == "" {
		t.Fatalf("history %+v", hist)
	}
}

func TestRefreshAll_CoversEveryMember(t *testing.T) {
	f := newFixture(t)

	updated, err := f.uc.RefreshAll(context.Background(), 0)
	if err != nil {
		t.Fatalf("RefreshAll: %v", err)
	}
	if updated != 2 {
		t.Fatalf("updated %d members, want 2", updated)
	}

	var n int64
	f.db.Model(&domainTrust.Score{}).Where("group_id = ?", f.grp.ID).Count(&n)
	if n != 2 {
		t.Fatalf("%d score rows, want 2", n)
	}
}
