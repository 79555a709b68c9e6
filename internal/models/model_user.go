package models

import "time"

// User is the account row as seen by the ledger. Karma is mutated only by the
// wallet service.
type User struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Karma     int64     `gorm:"column:karma;not null;default:0;check:chk_users_karma_non_negative,karma >= 0" json:"karma"`
	IsVIP     bool      `gorm:"column:is_vip;not null;default:false" json:"is_vip"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }
