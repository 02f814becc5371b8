package repository

import (
	"context"
	"errors"
	"fmt"

	"affluence/internal/ledger"
	"affluence/internal/models"

	"gorm.io/gorm"
)

type CouponRepository struct {
	db *gorm.DB
}

func NewCouponRepository(db *gorm.DB) *CouponRepository {
	return &CouponRepository{db: db}
}

// CreateCoupons inserts the batch in one statement; a duplicate code fails
// the whole batch with domain.ErrConflict.
func (r *CouponRepository) CreateCoupons(ctx context.Context, coupons []models.Coupon) error {
	if len(coupons) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).CreateInBatches(coupons, 200).Error
	return wrap(err, "create coupons")
}

func (r *CouponRepository) GetCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	var c models.Coupon
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ledger.ErrCouponNotFound, code)
	}
	if err != nil {
		return nil, wrap(err, "get coupon")
	}
	return &c, nil
}

func (r *CouponRepository) ListCoupons(ctx context.Context, status, couponType string, page, limit int) ([]models.Coupon, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Coupon{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if couponType != "" {
		q = q.Where("coupon_type = ?", couponType)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, wrap(err, "count coupons")
	}
	var list []models.Coupon
	err := q.Order("id DESC").Limit(limit).Offset(offset(page, limit)).Find(&list).Error
	return list, total, wrap(err, "list coupons")
}
