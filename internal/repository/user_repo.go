package repository

import (
	"context"
	"errors"
	"fmt"

	"affluence/internal/ledger"
	"affluence/internal/models"

	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// CreateUser inserts u together with its empty balance row.
func (r *UserRepository) CreateUser(ctx context.Context, u *models.User) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Balance").Create(u).Error; err != nil {
			return err
		}
		return tx.Create(&models.Balance{UserID: u.ID}).Error
	})
	return wrap(err, "create user")
}

func (r *UserRepository) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).First(&u, id).Error
	if err != nil {
		return nil, userErr(err, fmt.Sprint(id))
	}
	return &u, nil
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if err != nil {
		return nil, userErr(err, email)
	}
	return &u, nil
}

func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&u).Error
	if err != nil {
		return nil, userErr(err, username)
	}
	return &u, nil
}

func (r *UserRepository) GetUserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).Where("referral_code = ?", code).First(&u).Error
	if err != nil {
		return nil, userErr(err, "referral code "+code)
	}
	return &u, nil
}

func (r *UserRepository) SetUserActive(ctx context.Context, id uint, active bool) error {
	return r.update(ctx, id, map[string]interface{}{"is_active": active})
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id uint, hash string) error {
	return r.update(ctx, id, map[string]interface{}{"password_hash": hash})
}

// SetUserRole promotes or demotes a user; used when seeding admins.
func (r *UserRepository) SetUserRole(ctx context.Context, id uint, role string) error {
	return r.update(ctx, id, map[string]interface{}{"role": role})
}

func (r *UserRepository) update(ctx context.Context, id uint, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return wrap(res.Error, "update user")
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %d", ledger.ErrUserNotFound, id)
	}
	return nil
}

// ListUsers returns users with search and pagination.
func (r *UserRepository) ListUsers(ctx context.Context, search string, page, limit int) ([]models.User, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.User{})
	if search != "" {
		q = q.Where("username LIKE ? OR email LIKE ? OR referral_code = ?", "%"+search+"%", "%"+search+"%", search)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, wrap(err, "count users")
	}
	var users []models.User
	err := q.Preload("Balance").Order("created_at DESC").Limit(limit).Offset(offset(page, limit)).Find(&users).Error
	return users, total, wrap(err, "list users")
}

func (r *UserRepository) ListReferredUsers(ctx context.Context, code string) ([]models.User, error) {
	var list []models.User
	err := r.db.WithContext(ctx).Where("referred_by = ?", code).Order("created_at DESC").Find(&list).Error
	return list, wrap(err, "list referred users")
}

func userErr(err error, who string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ledger.ErrUserNotFound, who)
	}
	return wrap(err, "get user "+who)
}

func offset(page, limit int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit
}
