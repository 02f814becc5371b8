package models

import (
	"time"

	"affluence/internal/domain"
)

// BalanceRepair is the audit trail left by the reconciliation auditor each
// time it corrects a cached balance. Bucket is empty for a total-only repair.
type BalanceRepair struct {
	ID        uint          `gorm:"primaryKey" json:"id"`
	UserID    uint          `gorm:"not null;index" json:"user_id"`
	Bucket    domain.Bucket `gorm:"size:16" json:"bucket"`
	Before    int64         `gorm:"not null" json:"before"`
	After     int64         `gorm:"not null" json:"after"`
	Delta     int64         `gorm:"not null" json:"delta"`
	Actor     string        `gorm:"size:64" json:"actor"`
	CreatedAt time.Time     `json:"created_at"`
}

func (BalanceRepair) TableName() string { return "balance_repairs" }
