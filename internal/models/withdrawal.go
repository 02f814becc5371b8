package models

import (
	"time"

	"affluence/internal/domain"
)

// Withdrawal tracks a payout request. The debit is posted to the ledger when
// the request is created; a failed payout is refunded with a credit.
type Withdrawal struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	UserID      uint          `gorm:"not null;index" json:"user_id"`
	Reference   string        `gorm:"size:64;uniqueIndex;not null" json:"reference"`
	BalanceType domain.Bucket `gorm:"size:16;not null" json:"balance_type"`
	Amount      int64         `gorm:"not null" json:"amount"`
	Status      string        `gorm:"size:20;not null;index" json:"status"` // pending, completed, failed
	ProviderRef string        `gorm:"size:128" json:"provider_ref"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	CompletedAt *time.Time    `json:"completed_at"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (Withdrawal) TableName() string {
	return "withdrawals"
}
