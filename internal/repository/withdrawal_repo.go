package repository

import (
	"context"
	"fmt"

	"affluence/internal/domain"
	"affluence/internal/models"

	"gorm.io/gorm"
)

type WithdrawalRepository struct {
	db *gorm.DB
}

func NewWithdrawalRepository(db *gorm.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

func (r *WithdrawalRepository) CreateWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	return wrap(r.db.WithContext(ctx).Omit("User").Create(w).Error, "create withdrawal")
}

func (r *WithdrawalRepository) GetWithdrawal(ctx context.Context, id uint) (*models.Withdrawal, error) {
	var w models.Withdrawal
	if err := r.db.WithContext(ctx).First(&w, id).Error; err != nil {
		return nil, wrap(err, fmt.Sprintf("withdrawal %d", id))
	}
	return &w, nil
}

// UpdateWithdrawalStatus writes w's status fields only while the row is still
// in fromStatus.
func (r *WithdrawalRepository) UpdateWithdrawalStatus(ctx context.Context, id uint, fromStatus string, w *models.Withdrawal) error {
	res := r.db.WithContext(ctx).Model(&models.Withdrawal{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(map[string]interface{}{
			"status":       w.Status,
			"provider_ref": w.ProviderRef,
			"completed_at": w.CompletedAt,
		})
	if res.Error != nil {
		return wrap(res.Error, "update withdrawal")
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: withdrawal %d is not %s", domain.ErrConflict, id, fromStatus)
	}
	return nil
}

// ListWithdrawals returns withdrawals newest first; a zero userID lists all.
func (r *WithdrawalRepository) ListWithdrawals(ctx context.Context, userID uint, status string, page, limit int) ([]models.Withdrawal, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Withdrawal{})
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, wrap(err, "count withdrawals")
	}
	var list []models.Withdrawal
	err := q.Order("created_at DESC").Limit(limit).Offset(offset(page, limit)).Find(&list).Error
	return list, total, wrap(err, "list withdrawals")
}
