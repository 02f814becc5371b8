package service

import (
	"context"

	"affluence/internal/models"
)

// The services depend on these narrow views of storage. The gorm
// repositories and the in-memory store both satisfy them. Lookups return
// ledger.ErrUserNotFound or ledger.ErrCouponNotFound for users and coupons,
// domain.ErrNotFound for everything else.

type UserStore interface {
	// CreateUser inserts u and its zeroed balance row in one transaction.
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id uint) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByReferralCode(ctx context.Context, code string) (*models.User, error)
	SetUserActive(ctx context.Context, id uint, active bool) error
	UpdatePassword(ctx context.Context, id uint, hash string) error
	SetUserRole(ctx context.Context, id uint, role string) error
	ListUsers(ctx context.Context, search string, page, limit int) ([]models.User, int64, error)
	// ListReferredUsers returns users whose referred_by is code.
	ListReferredUsers(ctx context.Context, code string) ([]models.User, error)
}

type CouponStore interface {
	CreateCoupons(ctx context.Context, coupons []models.Coupon) error
	GetCoupon(ctx context.Context, code string) (*models.Coupon, error)
	ListCoupons(ctx context.Context, status, couponType string, page, limit int) ([]models.Coupon, int64, error)
}

type SettingStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value, actor string) error
	ListSettings(ctx context.Context) ([]models.SystemSetting, error)
}

type TaskStore interface {
	CreateTask(ctx context.Context, t *models.Task) error
	GetTask(ctx context.Context, id uint) (*models.Task, error)
	ListTasks(ctx context.Context, activeOnly bool) ([]models.Task, error)
	SetTaskActive(ctx context.Context, id uint, active bool) error
}

type WithdrawalStore interface {
	CreateWithdrawal(ctx context.Context, w *models.Withdrawal) error
	GetWithdrawal(ctx context.Context, id uint) (*models.Withdrawal, error)
	// UpdateWithdrawalStatus moves a withdrawal out of fromStatus. It returns
	// domain.ErrConflict when the withdrawal is no longer in fromStatus.
	UpdateWithdrawalStatus(ctx context.Context, id uint, fromStatus string, w *models.Withdrawal) error
	ListWithdrawals(ctx context.Context, userID uint, status string, page, limit int) ([]models.Withdrawal, int64, error)
}

type AuditStore interface {
	CreateAuditLog(ctx context.Context, l *models.AuditLog) error
	ListAuditLogs(ctx context.Context, page, limit int) ([]models.AuditLog, int64, error)
}

type ReportStore interface {
	TopEarners(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
	ReferralCount(ctx context.Context, code string) (int64, error)
	// CommissionEarned sums commission credits posted to userID.
	CommissionEarned(ctx context.Context, userID uint) (int64, error)
	DashboardStats(ctx context.Context) (*models.DashboardStats, error)
	// ListTransactions is the newest-first display view of a user's log. A
	// zero userID lists every user.
	ListTransactions(ctx context.Context, userID uint, source string, page, limit int) ([]models.Transaction, int64, error)
	ListRepairs(ctx context.Context, userID uint, page, limit int) ([]models.BalanceRepair, int64, error)
}
