package ledger

import "context"

// Repository is append-only by construction: past entries can be listed and
// summed but never updated or deleted.
type Repository interface {
	Append(ctx context.Context, e *Entry) error
	ListByGroup(ctx context.Context, groupID uint64, userID *uint64, limit int) ([]Entry, error)
	SumByRefTypes(ctx context.Context, groupID uint64, types []RefType) (float64, error)
	ExistsByExternalTxID(ctx context.Context, externalTxID string) (bool, error)

	GetCredit(ctx context.Context, groupID, userID uint64) (*CreditBalance, error)
	GetCreditByID(ctx context.Context, id uint64) (*CreditBalance, error)
	SaveCredit(ctx context.Context, c *CreditBalance) error
	ListCredits(ctx context.Context, groupID uint64, userID *uint64) ([]CreditBalance, error)
	ListAllCredits(ctx context.Context) ([]CreditBalance, error)
}
