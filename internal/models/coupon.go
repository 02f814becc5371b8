package models

import (
	"time"

	"affluence/internal/domain"
)

// Coupon is a single-use reward token. BonusAmount is zero until the coupon is
// redeemed; it then records the amount credited at redemption time.
type Coupon struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	Code        string            `gorm:"uniqueIndex;size:32;not null" json:"code"`
	CouponType  domain.CouponType `gorm:"size:10;not null;default:'mega';index" json:"coupon_type"`
	Status      string            `gorm:"size:10;not null;default:'unused';index" json:"status"`
	UsedBy      *uint             `gorm:"index" json:"used_by"`
	UsedAt      *time.Time        `json:"used_at"`
	BonusAmount int64             `gorm:"not null;default:0" json:"bonus_amount"`
	CreatedBy   string            `gorm:"size:64" json:"created_by"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func (Coupon) TableName() string { return "coupons" }
