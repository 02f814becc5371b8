package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"affluence/internal/domain"
	"affluence/internal/ledger"
	"affluence/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerStore is the SQL implementation of ledger.Store. Each unit of work is
// one database transaction holding SELECT ... FOR UPDATE on the user's
// balance row.
type LedgerStore struct {
	db    *gorm.DB
	users *UserRepository
}

var _ ledger.Store = (*LedgerStore)(nil)

func NewLedgerStore(db *gorm.DB) *LedgerStore {
	return &LedgerStore{db: db, users: NewUserRepository(db)}
}

func (s *LedgerStore) InUserTx(ctx context.Context, userID uint, fn func(tx ledger.Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		var u models.User
		if err := db.First(&u, userID).Error; err != nil {
			return userErr(err, fmt.Sprint(userID))
		}
		b, err := lockBalance(db, userID)
		if err != nil {
			return err
		}
		return fn(&gormTx{db: db, user: u, balance: *b})
	})
	if err != nil && !errors.Is(err, ledger.ErrTransient) && isTransient(err) {
		return fmt.Errorf("%w: %v", ledger.ErrTransient, err)
	}
	return err
}

// lockBalance reads the balance row FOR UPDATE, creating it for users that
// predate balances.
func lockBalance(db *gorm.DB, userID uint) (*models.Balance, error) {
	var b models.Balance
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID).First(&b).Error
	if err == nil {
		return &b, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, wrap(err, "lock balance")
	}
	b = models.Balance{UserID: userID}
	if err := db.Create(&b).Error; err != nil {
		if isDuplicate(err) {
			// Another unit of work created it first; retrying will lock it.
			return nil, fmt.Errorf("%w: balance for user %d created concurrently", ledger.ErrTransient, userID)
		}
		return nil, wrap(err, "create balance")
	}
	return &b, nil
}

func (s *LedgerStore) GetUser(ctx context.Context, id uint) (*models.User, error) {
	return s.users.GetUser(ctx, id)
}

func (s *LedgerStore) GetUserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	return s.users.GetUserByReferralCode(ctx, code)
}

func (s *LedgerStore) GetBalance(ctx context.Context, userID uint) (*models.Balance, error) {
	var b models.Balance
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if _, uerr := s.users.GetUser(ctx, userID); uerr != nil {
			return nil, uerr
		}
		return &models.Balance{UserID: userID}, nil
	}
	if err != nil {
		return nil, wrap(err, "get balance")
	}
	return &b, nil
}

func (s *LedgerStore) TransactionsAfter(ctx context.Context, userID uint, after ledger.Cursor, limit int) ([]models.Transaction, error) {
	return transactionsAfter(s.db.WithContext(ctx), userID, after, limit)
}

func (s *LedgerStore) UserIDsAfter(ctx context.Context, afterID uint, limit int) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, wrap(err, "list user ids")
}

func transactionsAfter(db *gorm.DB, userID uint, after ledger.Cursor, limit int) ([]models.Transaction, error) {
	q := db.Where("user_id = ?", userID)
	if !after.CreatedAt.IsZero() || after.ID != 0 {
		q = q.Where("created_at > ? OR (created_at = ? AND id > ?)", after.CreatedAt, after.CreatedAt, after.ID)
	}
	var list []models.Transaction
	err := q.Order("created_at ASC, id ASC").Limit(limit).Find(&list).Error
	return list, wrap(err, "list transactions")
}

type gormTx struct {
	db      *gorm.DB
	user    models.User
	balance models.Balance
}

func (t *gormTx) User() *models.User       { return &t.user }
func (t *gormTx) Balance() *models.Balance { return &t.balance }

// SaveBalance writes b only if the row still has the version that was read.
func (t *gormTx) SaveBalance(b *models.Balance) error {
	now := time.Now().UTC()
	res := t.db.Model(&models.Balance{}).
		Where("id = ? AND version = ?", t.balance.ID, b.Version).
		Updates(map[string]interface{}{
			"main_balance":      b.MainBalance,
			"activity_balance":  b.ActivityBalance,
			"affiliate_balance": b.AffiliateBalance,
			"total_balance":     b.TotalBalance,
			"version":           b.Version + 1,
			"updated_at":        now,
		})
	if res.Error != nil {
		return wrap(res.Error, "save balance")
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("%w: balance %d changed since it was read", ledger.ErrTransient, t.balance.ID)
	}
	b.ID = t.balance.ID
	b.UserID = t.user.ID
	b.Version++
	b.UpdatedAt = now
	t.balance = *b
	return nil
}

func (t *gormTx) AppendTransaction(tr *models.Transaction) error {
	return wrap(t.db.Create(tr).Error, "append transaction")
}

func (t *gormTx) FindByReference(ref string) (*models.Transaction, error) {
	var tr models.Transaction
	err := t.db.Where("user_id = ? AND reference = ?", t.user.ID, ref).Order("id ASC").First(&tr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap(err, "find reference")
	}
	return &tr, nil
}

func (t *gormTx) TransactionsAfter(after ledger.Cursor, limit int) ([]models.Transaction, error) {
	return transactionsAfter(t.db, t.user.ID, after, limit)
}

// ClaimCoupon flips the coupon with a conditional UPDATE. A concurrent
// claimer blocks on the row until this transaction ends, then matches zero
// rows.
func (t *gormTx) ClaimCoupon(code string, at time.Time) (*models.Coupon, error) {
	uid := t.user.ID
	res := t.db.Model(&models.Coupon{}).
		Where("code = ? AND status = ?", code, domain.CouponUnused).
		Updates(map[string]interface{}{
			"status":     domain.CouponUsed,
			"used_by":    uid,
			"used_at":    at,
			"updated_at": at,
		})
	if res.Error != nil {
		return nil, wrap(res.Error, "claim coupon")
	}
	var c models.Coupon
	err := t.db.Where("code = ?", code).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ledger.ErrCouponNotFound, code)
	}
	if err != nil {
		return nil, wrap(err, "get coupon")
	}
	if res.RowsAffected != 1 {
		return nil, fmt.Errorf("%w: %s", ledger.ErrCouponAlreadyUsed, code)
	}
	return &c, nil
}

func (t *gormTx) SetCouponBonus(couponID uint, amount int64) error {
	err := t.db.Model(&models.Coupon{}).Where("id = ?", couponID).Update("bonus_amount", amount).Error
	return wrap(err, "set coupon bonus")
}

func (t *gormTx) RecordRepair(r *models.BalanceRepair) error {
	return wrap(t.db.Create(r).Error, "record repair")
}
