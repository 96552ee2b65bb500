package trust

import "context"

type Repository interface {
	Get(ctx context.Context, groupID, userID uint64) (*Score, error)
	Save(ctx context.Context, s *Score) error

	// UpsertHistory inserts or replaces the day's history row for the pair.
	UpsertHistory(ctx context.Context, h *HistoryEntry) error
	ListHistory(ctx context.Context, groupID, userID uint64, limit int) ([]HistoryEntry, error)
}
