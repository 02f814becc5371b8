package ledger

import "errors"

var (
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrUserInactive           = errors.New("user account is disabled")
	ErrUserNotFound           = errors.New("user not found")
	ErrInvalidBucket          = errors.New("invalid balance type")
	ErrInvalidEntryType       = errors.New("invalid transaction type")
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrMissingReference       = errors.New("reference is required")
	ErrDuplicateReference     = errors.New("reference already posted")
	ErrCouponNotFound         = errors.New("coupon not found")
	ErrCouponAlreadyUsed      = errors.New("coupon already used")
	ErrReconciliationMismatch = errors.New("balance does not match transaction log")
	ErrStoreUnavailable       = errors.New("ledger store unavailable, try again")

	// ErrTransient marks store failures that may succeed on retry (timeouts,
	// deadlocks, version conflicts, dropped connections). Stores wrap it.
	ErrTransient = errors.New("transient store failure")
)
