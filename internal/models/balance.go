package models

import (
	"fmt"
	"time"

	"affluence/internal/domain"
)

// Balance holds a user's bucketed balances in kobo. TotalBalance is a cached
// value: it always equals the sum of the three buckets after a commit.
type Balance struct {
	ID               uint      `gorm:"primaryKey" json:"-"`
	UserID           uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	MainBalance      int64     `gorm:"not null;default:0" json:"main_balance"`
	ActivityBalance  int64     `gorm:"not null;default:0" json:"activity_balance"`
	AffiliateBalance int64     `gorm:"not null;default:0" json:"affiliate_balance"`
	TotalBalance     int64     `gorm:"not null;default:0" json:"total_balance"`
	Version          int64     `gorm:"not null;default:0" json:"version"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (Balance) TableName() string { return "balances" }

// Bucket returns the value held in b's bucket.
func (b *Balance) Bucket(bucket domain.Bucket) (int64, error) {
	switch bucket {
	case domain.BucketMain:
		return b.MainBalance, nil
	case domain.BucketActivity:
		return b.ActivityBalance, nil
	case domain.BucketAffiliate:
		return b.AffiliateBalance, nil
	}
	return 0, fmt.Errorf("unknown bucket %q", string(bucket))
}

// SetBucket overwrites one bucket and recomputes the total.
func (b *Balance) SetBucket(bucket domain.Bucket, v int64) error {
	switch bucket {
	case domain.BucketMain:
		b.MainBalance = v
	case domain.BucketActivity:
		b.ActivityBalance = v
	case domain.BucketAffiliate:
		b.AffiliateBalance = v
	default:
		return fmt.Errorf("unknown bucket %q", string(bucket))
	}
	b.TotalBalance = b.Sum()
	return nil
}

// Sum is the authoritative total of the three buckets.
func (b *Balance) Sum() int64 {
	return b.MainBalance + b.ActivityBalance + b.AffiliateBalance
}
