package models

import (
	"time"

	"github.com/fablecast/entitlement/pkg/types"
)

type Novel struct {
	ID             uint64               `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Title          string               `gorm:"column:title;type:varchar(255);not null" json:"title"`
	ChampionStatus types.ChampionStatus `gorm:"column:champion_status;type:varchar(32);not null;default:'invalid'" json:"champion_status"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

func (Novel) TableName() string { return "novels" }
