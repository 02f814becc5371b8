package repository

import (
	"context"

	"affluence/internal/domain"
	"affluence/internal/models"

	"gorm.io/gorm"
)

type AdminRepository struct {
	db *gorm.DB
}

func NewAdminRepository(db *gorm.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

func (r *AdminRepository) DashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	db := r.db.WithContext(ctx)
	var s models.DashboardStats
	counts := []struct {
		dst *int64
		q   *gorm.DB
	}{
		{&s.TotalUsers, db.Model(&models.User{})},
		{&s.ActiveUsers, db.Model(&models.User{}).Where("is_active = ?", true)},
		{&s.TotalReferrals, db.Model(&models.User{}).Where("referred_by IS NOT NULL")},
		{&s.TotalTransactions, db.Model(&models.Transaction{})},
		{&s.CouponsUsed, db.Model(&models.Coupon{}).Where("status = ?", domain.CouponUsed)},
		{&s.CouponsUnused, db.Model(&models.Coupon{}).Where("status = ?", domain.CouponUnused)},
		{&s.PendingWithdrawals, db.Model(&models.Withdrawal{}).Where("status = ?", domain.WithdrawalPending)},
	}
	for _, c := range counts {
		if err := c.q.Count(c.dst).Error; err != nil {
			return nil, wrap(err, "dashboard stats")
		}
	}

	var out struct{ Total int64 }
	if err := db.Model(&models.Balance{}).Select("COALESCE(SUM(total_balance), 0) AS total").Scan(&out).Error; err != nil {
		return nil, wrap(err, "dashboard stats")
	}
	s.OutstandingBalance = out.Total
	return &s, nil
}

// ListTransactions returns transactions newest first with an optional source
// filter. A zero userID lists every user.
func (r *AdminRepository) ListTransactions(ctx context.Context, userID uint, source string, page, limit int) ([]models.Transaction, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Transaction{})
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	}
	if source != "" {
		q = q.Where("source = ?", source)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, wrap(err, "count transactions")
	}
	var list []models.Transaction
	err := q.Order("created_at DESC, id DESC").Limit(limit).Offset(offset(page, limit)).Find(&list).Error
	return list, total, wrap(err, "list transactions")
}

func (r *AdminRepository) ListRepairs(ctx context.Context, userID uint, page, limit int) ([]models.BalanceRepair, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.BalanceRepair{})
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, wrap(err, "count repairs")
	}
	var list []models.BalanceRepair
	err := q.Order("id DESC").Limit(limit).Offset(offset(page, limit)).Find(&list).Error
	return list, total, wrap(err, "list repairs")
}

// Reports joins the admin and referral read models into one ReportStore.
type Reports struct {
	*AdminRepository
	*ReferralRepository
}

func NewReports(db *gorm.DB) *Reports {
	return &Reports{AdminRepository: NewAdminRepository(db), ReferralRepository: NewReferralRepository(db)}
}
