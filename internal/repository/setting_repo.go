package repository

import (
	"context"
	"errors"

	"affluence/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SettingRepository struct {
	db *gorm.DB
}

func NewSettingRepository(db *gorm.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

// GetSetting returns "" with no error for keys that were never set.
func (r *SettingRepository) GetSetting(ctx context.Context, key string) (string, error) {
	var s models.SystemSetting
	// Struct conditions let gorm quote the reserved "key" column per dialect.
	err := r.db.WithContext(ctx).Where(&models.SystemSetting{Key: key}).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", wrap(err, "get setting")
	}
	return s.Value, nil
}

func (r *SettingRepository) SetSetting(ctx context.Context, key, value, actor string) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_by", "updated_at"}),
	}).Create(&models.SystemSetting{Key: key, Value: value, UpdatedBy: actor}).Error
	return wrap(err, "set setting")
}

func (r *SettingRepository) ListSettings(ctx context.Context) ([]models.SystemSetting, error) {
	var list []models.SystemSetting
	err := r.db.WithContext(ctx).Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).Find(&list).Error
	return list, wrap(err, "list settings")
}
