package repository

import (
	"context"

	"affluence/internal/domain"
	"affluence/internal/models"

	"gorm.io/gorm"
)

// ReferralRepository answers referral questions from users.referred_by and
// the commission entries in the transaction log.
type ReferralRepository struct {
	db *gorm.DB
}

func NewReferralRepository(db *gorm.DB) *ReferralRepository {
	return &ReferralRepository{db: db}
}

// TopEarners ranks active users by affiliate balance.
func (r *ReferralRepository) TopEarners(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	counts := r.db.Model(&models.User{}).
		Select("referred_by AS code, COUNT(*) AS referral_count").
		Where("referred_by IS NOT NULL").
		Group("referred_by")

	var list []models.LeaderboardEntry
	err := r.db.WithContext(ctx).Table("users AS u").
		Select("u.id AS user_id, u.username, u.full_name, u.referral_code, "+
			"COALESCE(b.affiliate_balance, 0) AS affiliate_balance, "+
			"COALESCE(rc.referral_count, 0) AS referral_count").
		Joins("LEFT JOIN balances AS b ON b.user_id = u.id").
		Joins("LEFT JOIN (?) AS rc ON rc.code = u.referral_code", counts).
		Where("u.is_active = ?", true).
		Order("affiliate_balance DESC, u.id ASC").
		Limit(limit).
		Scan(&list).Error
	return list, wrap(err, "top earners")
}

func (r *ReferralRepository) ReferralCount(ctx context.Context, code string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("referred_by = ?", code).Count(&n).Error
	return n, wrap(err, "count referrals")
}

// CommissionEarned sums commission credits posted to userID.
func (r *ReferralRepository) CommissionEarned(ctx context.Context, userID uint) (int64, error) {
	var sum struct{ Total int64 }
	err := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("user_id = ? AND source = ? AND type = ?", userID, domain.SourceCommission, domain.EntryCredit).
		Scan(&sum).Error
	return sum.Total, wrap(err, "sum commissions")
}
