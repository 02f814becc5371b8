package repository

import (
	"context"

	"affluence/internal/models"

	"gorm.io/gorm"
)

type AuditLogRepository struct {
	db *gorm.DB
}

func NewAuditLogRepository(db *gorm.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

func (r *AuditLogRepository) CreateAuditLog(ctx context.Context, l *models.AuditLog) error {
	return wrap(r.db.WithContext(ctx).Create(l).Error, "create audit log")
}

func (r *AuditLogRepository) ListAuditLogs(ctx context.Context, page, limit int) ([]models.AuditLog, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.AuditLog{}).Count(&total).Error; err != nil {
		return nil, 0, wrap(err, "count audit logs")
	}
	var list []models.AuditLog
	err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Offset(offset(page, limit)).Find(&list).Error
	return list, total, wrap(err, "list audit logs")
}
