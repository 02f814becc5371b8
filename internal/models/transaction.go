package models

import (
	"time"

	"affluence/internal/domain"
)

// Transaction is an append-only ledger entry. Rows are never updated or
// deleted, so there is no soft-delete column.
type Transaction struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	UserID      uint             `gorm:"not null;index:idx_tx_user_created,priority:1;index:idx_tx_user_ref,priority:1" json:"user_id"`
	Type        domain.EntryType `gorm:"size:10;not null" json:"type"`
	BalanceType domain.Bucket    `gorm:"size:16;not null" json:"balance_type"`
	Amount      int64            `gorm:"not null" json:"amount"`
	Source      domain.TxSource  `gorm:"size:20;not null;index" json:"source"`
	Reference   string           `gorm:"size:128;index:idx_tx_user_ref,priority:2" json:"reference"`
	Actor       string           `gorm:"size:64" json:"actor,omitempty"`
	CreatedAt   time.Time        `gorm:"not null;index:idx_tx_user_created,priority:2" json:"created_at"`
}

func (Transaction) TableName() string { return "transactions" }

// Signed is the effect of t on its bucket.
func (t *Transaction) Signed() int64 {
	return t.Type.Signed(t.Amount)
}
