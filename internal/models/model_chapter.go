package models

import (
	"time"

	"github.com/fablecast/entitlement/pkg/types"
)

// Chapter is owned by the content pipeline; the ledger only reads it.
type Chapter struct {
	ID            uint64             `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	NovelID       uint64             `gorm:"column:novel_id;not null;uniqueIndex:uk_chapters_novel_number,priority:1" json:"novel_id"`
	ChapterNumber int                `gorm:"column:chapter_number;not null;uniqueIndex:uk_chapters_novel_number,priority:2" json:"chapter_number"`
	Title         string             `gorm:"column:title;type:varchar(255)" json:"title"`
	IsLocked      bool               `gorm:"column:is_locked;not null" json:"is_locked"`
	IsVIPOnly     bool               `gorm:"column:is_vip_only;not null" json:"is_vip_only"`
	IsAdvance     bool               `gorm:"column:is_advance;not null" json:"is_advance"`
	IsVisible     bool               `gorm:"column:is_visible;not null" json:"is_visible"`
	UnlockPrice   int64              `gorm:"column:unlock_price;not null" json:"unlock_price"`
	IsReleased    bool               `gorm:"column:is_released;not null" json:"is_released"`
	ReviewStatus  types.ReviewStatus `gorm:"column:review_status;type:varchar(32);not null;default:'pending'" json:"review_status"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

func (Chapter) TableName() string { return "chapters" }

// Published is the base predicate every read path applies first.
func (c *Chapter) Published() bool {
	return c.IsReleased && c.ReviewStatus == types.ReviewStatusApproved
}

// Paywalled reports whether reading needs an unlock or subsuming access.
func (c *Chapter) Paywalled() bool {
	return c.IsLocked || c.UnlockPrice > 0
}
