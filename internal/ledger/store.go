package ledger

import (
	"context"
	"time"

	"affluence/internal/models"
)

// Store is the durable record behind the ledger. Implementations must wrap
// retryable failures with ErrTransient.
type Store interface {
	// InUserTx runs fn as one atomic unit of work scoped to userID. The user's
	// balance row stays locked until fn returns; when fn returns an error
	// nothing written through tx is kept.
	InUserTx(ctx context.Context, userID uint, fn func(tx Tx) error) error

	GetUser(ctx context.Context, id uint) (*models.User, error)
	GetUserByReferralCode(ctx context.Context, code string) (*models.User, error)
	GetBalance(ctx context.Context, userID uint) (*models.Balance, error)
	TransactionsAfter(ctx context.Context, userID uint, after Cursor, limit int) ([]models.Transaction, error)
	UserIDsAfter(ctx context.Context, afterID uint, limit int) ([]uint, error)
}

// Tx is the view of the store inside InUserTx.
type Tx interface {
	User() *models.User
	// Balance is the working copy of the locked balance row.
	Balance() *models.Balance
	// SaveBalance persists b, bumps its version, and makes it the working copy.
	SaveBalance(b *models.Balance) error
	AppendTransaction(t *models.Transaction) error
	// FindByReference returns nil, nil when no transaction for the user
	// carries ref.
	FindByReference(ref string) (*models.Transaction, error)
	TransactionsAfter(after Cursor, limit int) ([]models.Transaction, error)
	// ClaimCoupon flips an unused coupon to used for the tx user in a single
	// compare-and-set. It fails with ErrCouponNotFound or ErrCouponAlreadyUsed.
	ClaimCoupon(code string, at time.Time) (*models.Coupon, error)
	SetCouponBonus(couponID uint, amount int64) error
	RecordRepair(r *models.BalanceRepair) error
}

// Cursor positions a scan of the transaction log. The zero value starts at the
// beginning.
type Cursor struct {
	CreatedAt time.Time
	ID        uint
}

// After reports whether t sorts after c in (created_at, id) order.
func (c Cursor) After(t *models.Transaction) bool {
	if t.CreatedAt.Equal(c.CreatedAt) {
		return t.ID > c.ID
	}
	return t.CreatedAt.After(c.CreatedAt)
}

func CursorOf(t *models.Transaction) Cursor {
	return Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
}
