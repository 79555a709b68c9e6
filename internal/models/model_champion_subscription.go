package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChampionSubscription is the single subscription row of a (user, novel).
// Tier name, price and advance allowance are snapshots taken at subscribe
// time. Expiry is computed from EndDate, never stored.
type ChampionSubscription struct {
	ID            string          `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	UserID        uint64          `gorm:"column:user_id;not null;uniqueIndex:uk_champion_subscriptions_user_novel,priority:1" json:"user_id"`
	NovelID       uint64          `gorm:"column:novel_id;not null;uniqueIndex:uk_champion_subscriptions_user_novel,priority:2;index" json:"novel_id"`
	TierLevel     int             `gorm:"column:tier_level;not null" json:"tier_level"`
	TierName      string          `gorm:"column:tier_name;type:varchar(128);not null" json:"tier_name"`
	MonthlyPrice  decimal.Decimal `gorm:"column:monthly_price;type:decimal(12,2);not null" json:"monthly_price"`
	Currency      string          `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	// AdvanceChapters is the tier's allowance when subscribed; later tier
	// edits or deactivation do not change it.
	AdvanceChapters int       `gorm:"column:advance_chapters;not null;default:0" json:"advance_chapters"`
	StartDate       time.Time `gorm:"column:start_date;not null" json:"start_date"`
	EndDate         time.Time `gorm:"column:end_date;not null;index" json:"end_date"`
	PaymentMethod   string    `gorm:"column:payment_method;type:varchar(32);not null" json:"payment_method"`
	AutoRenew       bool      `gorm:"column:auto_renew;not null" json:"auto_renew"`
	IsActive        bool      `gorm:"column:is_active;not null" json:"is_active"`
	// TransactionID points at the champion_transactions row that produced this row.
	TransactionID string    `gorm:"column:transaction_id;type:varchar(36)" json:"transaction_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (ChampionSubscription) TableName() string { return "champion_subscriptions" }

// Current reports whether the subscription grants access at now.
func (s *ChampionSubscription) Current(now time.Time) bool {
	return s != nil && s.IsActive && s.EndDate.After(now)
}

func (s *ChampionSubscription) Snapshot() *MembershipSnapshot {
	if s == nil {
		return nil
	}
	return &MembershipSnapshot{
		TierLevel: s.TierLevel,
		TierName:  s.TierName,
		EndDate:   s.EndDate,
		IsActive:  s.IsActive,
	}
}
