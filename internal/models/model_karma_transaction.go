package models

import (
	"time"

	"github.com/fablecast/entitlement/pkg/types"
)

// KarmaTransaction is one entry of a user's Karma trail.
// BalanceAfter = BalanceBefore + KarmaAmount.
type KarmaTransaction struct {
	ID              string                     `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	UserID          uint64                     `gorm:"column:user_id;not null;index:idx_karma_transactions_user_created,priority:1" json:"user_id"`
	TransactionType types.KarmaTransactionType `gorm:"column:transaction_type;type:varchar(32);not null" json:"transaction_type"`
	KarmaAmount     int64                      `gorm:"column:karma_amount;not null" json:"karma_amount"`
	BalanceBefore   int64                      `gorm:"column:balance_before;not null" json:"balance_before"`
	BalanceAfter    int64                      `gorm:"column:balance_after;not null" json:"balance_after"`
	NovelID         *uint64                    `gorm:"column:novel_id" json:"novel_id"`
	ChapterID       *uint64                    `gorm:"column:chapter_id" json:"chapter_id"`
	Status          types.TransactionStatus    `gorm:"column:status;type:varchar(32);not null" json:"status"`
	Description     string                     `gorm:"column:description;type:varchar(255)" json:"description"`
	Provider        *string                    `gorm:"column:provider;type:varchar(32);uniqueIndex:uk_karma_transactions_provider_ref,priority:1" json:"provider"`
	ProviderRef     *string                    `gorm:"column:provider_ref;type:varchar(128);uniqueIndex:uk_karma_transactions_provider_ref,priority:2" json:"provider_ref"`
	CreatedAt       time.Time                  `gorm:"column:created_at;index:idx_karma_transactions_user_created,priority:2" json:"created_at"`
}

func (KarmaTransaction) TableName() string { return "karma_transactions" }
