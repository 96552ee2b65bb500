package trust

import (
	"time"
)

// Score is the current snapshot of a member's 0-100 reliability metric
// inside a group.
type Score struct {
	ID        uint64    `gorm:"primaryKey;column:id" json:"-"`
	GroupID   uint64    `gorm:"not null;uniqueIndex:ux_trust_scores_group_user" json:"group_id"`
	UserID    uint64    `gorm:"not null;uniqueIndex:ux_trust_scores_group_user" json:"user_id"`
	Value     float64   `gorm:"type:decimal(8,2);not null;default:0" json:"score"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Score) TableName() string { return "trust_scores" }

// HistoryEntry is an append-only score delta, deduplicated to one row per
// (group,user) per calendar day via SnapshotDate.
type HistoryEntry struct {
	ID           uint64    `gorm:"primaryKey;column:id" json:"-"`
	GroupID      uint64    `gorm:"not null;uniqueIndex:ux_trust_history_day" json:"group_id"`
	UserID       uint64    `gorm:"not null;uniqueIndex:ux_trust_history_day" json:"user_id"`
	SnapshotDate string    `gorm:"size:10;not null;uniqueIndex:ux_trust_history_day" json:"snapshot_date"` // YYYY-MM-DD
	Delta        float64   `gorm:"type:decimal(8,2);not null" json:"delta"`
	ScoreAfter   float64   `gorm:"type:decimal(8,2);not null" json:"score_after"`
	Reason       string    `gorm:"size:120;not null" json:"reason"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (HistoryEntry) TableName() string { return "trust_score_history" }
