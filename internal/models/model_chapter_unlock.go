package models

import (
	"time"

	"github.com/fablecast/entitlement/pkg/types"
)

// ChapterUnlock records a user's unlock of one chapter. Once unlocked the row
// never goes back to pending.
type ChapterUnlock struct {
	ID           string             `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	UserID       uint64             `gorm:"column:user_id;not null;uniqueIndex:uk_chapter_unlocks_user_chapter,priority:1" json:"user_id"`
	ChapterID    uint64             `gorm:"column:chapter_id;not null;uniqueIndex:uk_chapter_unlocks_user_chapter,priority:2" json:"chapter_id"`
	NovelID      uint64             `gorm:"column:novel_id;not null;index" json:"novel_id"`
	UnlockMethod types.UnlockMethod `gorm:"column:unlock_method;type:varchar(32);not null" json:"unlock_method"`
	Cost         int64              `gorm:"column:cost;not null" json:"cost"`
	Status       types.UnlockStatus `gorm:"column:status;type:varchar(32);not null;index:idx_chapter_unlocks_status_at,priority:1" json:"status"`
	UnlockAt     *time.Time         `gorm:"column:unlock_at;index:idx_chapter_unlocks_status_at,priority:2" json:"unlock_at"`
	Readed       bool               `gorm:"column:readed;not null" json:"readed"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func (ChapterUnlock) TableName() string { return "chapter_unlocks" }

// State resolves the row at now; a due pending row reads as unlocked.
func (u *ChapterUnlock) State(now time.Time) types.UnlockState {
	if u == nil {
		return types.UnlockStateNone
	}
	if u.Status == types.UnlockStatusUnlocked {
		return types.UnlockStateUnlocked
	}
	if u.UnlockAt != nil && !u.UnlockAt.After(now) {
		return types.UnlockStateUnlocked
	}
	return types.UnlockStatePending
}
