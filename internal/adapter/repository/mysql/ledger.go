package mysql

import (
	"context"
	"fmt"

	ledgerDomain "coopfund-backend/internal/domain/ledger"

	"gorm.io/gorm"
)

type LedgerRepository struct{ db *gorm.DB }

func NewLedgerRepository(db *gorm.DB) *LedgerRepository { return &LedgerRepository{db: db} }

// Append inserts a new entry. Unknown ref types are refused here so a typo in
// a call site can never pollute the ledger.
func (r *LedgerRepository) Append(ctx context.Context, e *ledgerDomain.Entry) error {
	if !e.RefType.Valid() {
		return fmt.Errorf("ledger: unknown ref type %q", e.RefType)
	}
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *LedgerRepository) ListByGroup(ctx context.Context, groupID uint64, userID *uint64, limit int) ([]ledgerDomain.Entry, error) {
	var out []ledgerDomain.Entry
	q := r.db.WithContext(ctx).Where("group_id = ?", groupID)
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	res := q.Order("created_at DESC, id DESC").Find(&out)
	return out, res.Error
}

func (r *LedgerRepository) SumByRefTypes(ctx context.Context, groupID uint64, types []ledgerDomain.RefType) (float64, error) {
	var sum float64
	res := r.db.WithContext(ctx).Model(&ledgerDomain.Entry{}).
		Where("group_id = ? AND ref_type IN ?", groupID, types).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum)
	return sum, res.Error
}

func (r *LedgerRepository) ExistsByExternalTxID(ctx context.Context, externalTxID string) (bool, error) {
	var n int64
	res := r.db.WithContext(ctx).Model(&ledgerDomain.Entry{}).
		Where("external_tx_id = ?", externalTxID).
		Count(&n)
	return n > 0, res.Error
}

func (r *LedgerRepository) GetCredit(ctx context.Context, groupID, userID uint64) (*ledgerDomain.CreditBalance, error) {
	var out ledgerDomain.CreditBalance
	res := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		First(&out)
	return &out, res.Error
}

func (r *LedgerRepository) GetCreditByID(ctx context.Context, id uint64) (*ledgerDomain.CreditBalance, error) {
	var out ledgerDomain.CreditBalance
	res := r.db.WithContext(ctx).First(&out, id)
	return &out, res.Error
}

func (r *LedgerRepository) SaveCredit(ctx context.Context, c *ledgerDomain.CreditBalance) error {
	return r.db.WithContext(ctx).Save(c).Error
}

func (r *LedgerRepository) ListCredits(ctx context.Context, groupID uint64, userID *uint64) ([]ledgerDomain.CreditBalance, error) {
	var out []ledgerDomain.CreditBalance
	q := r.db.WithContext(ctx).Where("group_id = ?", groupID)
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	res := q.Order("id ASC").Find(&out)
	return out, res.Error
}

func (r *LedgerRepository) ListAllCredits(ctx context.Context) ([]ledgerDomain.CreditBalance, error) {
	var out []ledgerDomain.CreditBalance
	res := r.db.WithContext(ctx).Where("amount > 0").Order("id ASC").Find(&out)
	return out, res.Error
}
