package models

import (
	"time"

	"github.com/fablecast/entitlement/pkg/types"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// MembershipSnapshot is the Champion membership state around a transaction.
type MembershipSnapshot struct {
	TierLevel int       `json:"tier_level"`
	TierName  string    `json:"tier_name,omitempty"`
	EndDate   time.Time `json:"end_date"`
	IsActive  bool      `json:"is_active"`
}

// Optional champion_transactions columns. Older deployments may lack them.
const (
	ColumnProviderRef      = "provider_ref"
	ColumnCurrency         = "currency"
	ColumnMembershipBefore = "membership_before"
	ColumnMembershipAfter  = "membership_after"
)

// ChampionTransaction is the append-only history of Champion payments. Every
// subscription replace writes one row.
type ChampionTransaction struct {
	ID               string                  `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	UserID           uint64                  `gorm:"column:user_id;not null;index:idx_champion_transactions_user_created,priority:1" json:"user_id"`
	NovelID          uint64                  `gorm:"column:novel_id;not null" json:"novel_id"`
	TierLevel        int                     `gorm:"column:tier_level;not null" json:"tier_level"`
	TierName         string                  `gorm:"column:tier_name;type:varchar(128);not null" json:"tier_name"`
	MonthlyPrice     decimal.Decimal         `gorm:"column:monthly_price;type:decimal(12,2);not null" json:"monthly_price"`
	SubscriptionType types.SubscriptionType  `gorm:"column:subscription_type;type:varchar(32);not null" json:"subscription_type"`
	PaymentStatus    types.TransactionStatus `gorm:"column:payment_status;type:varchar(32);not null" json:"payment_status"`
	PaymentMethod    string                  `gorm:"column:payment_method;type:varchar(32);not null" json:"payment_method"`
	// Reference id issued to the payment provider.
	ProviderRef      *string                                `gorm:"column:provider_ref;type:varchar(128);uniqueIndex" json:"provider_ref"`
	Currency         *string                                `gorm:"column:currency;type:varchar(8)" json:"currency"`
	MembershipBefore datatypes.JSONType[*MembershipSnapshot] `gorm:"column:membership_before;type:jsonb" json:"membership_before"`
	MembershipAfter  datatypes.JSONType[*MembershipSnapshot] `gorm:"column:membership_after;type:jsonb" json:"membership_after"`
	CreatedAt        time.Time                              `gorm:"column:created_at;index:idx_champion_transactions_user_created,priority:2" json:"created_at"`
	UpdatedAt        time.Time                              `json:"updated_at"`
}

func (ChampionTransaction) TableName() string { return "champion_transactions" }
