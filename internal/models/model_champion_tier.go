package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChampionTier is one entry of a novel's Champion catalog. tier_level is
// unique among the novel's active tiers.
type ChampionTier struct {
	ID              uint64          `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	NovelID         uint64          `gorm:"column:novel_id;not null;uniqueIndex:uk_champion_tiers_active_level,priority:1,where:is_active = true" json:"novel_id"`
	TierLevel       int             `gorm:"column:tier_level;not null;uniqueIndex:uk_champion_tiers_active_level,priority:2" json:"tier_level"`
	TierName        string          `gorm:"column:tier_name;type:varchar(128);not null" json:"tier_name"`
	MonthlyPrice    decimal.Decimal `gorm:"column:monthly_price;type:decimal(12,2);not null" json:"monthly_price"`
	Currency        string          `gorm:"column:currency;type:varchar(8);not null;default:'USD'" json:"currency"`
	AdvanceChapters int             `gorm:"column:advance_chapters;not null" json:"advance_chapters"`
	IsActive        bool            `gorm:"column:is_active;not null;index" json:"is_active"`
	SortOrder       int             `gorm:"column:sort_order;not null" json:"sort_order"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (ChampionTier) TableName() string { return "champion_tiers" }
