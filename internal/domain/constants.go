package domain

import (
	"errors"
	"fmt"
)

const (
	RoleUser     = "user"
	RoleSubadmin = "subadmin"
	RoleAdmin    = "admin"
)

// Bucket names one of the three balance categories kept per user.
type Bucket string

const (
	BucketMain      Bucket = "main"
	BucketActivity  Bucket = "activity"
	BucketAffiliate Bucket = "affiliate"
)

// Buckets lists every bucket in display order.
var Buckets = []Bucket{BucketMain, BucketActivity, BucketAffiliate}

func (b Bucket) Valid() bool {
	switch b {
	case BucketMain, BucketActivity, BucketAffiliate:
		return true
	}
	return false
}

func ParseBucket(s string) (Bucket, error) {
	b := Bucket(s)
	if !b.Valid() {
		return "", fmt.Errorf("unknown balance type %q", s)
	}
	return b, nil
}

// EntryType is the direction of a transaction.
type EntryType string

const (
	EntryCredit EntryType = "credit"
	EntryDebit  EntryType = "debit"
)

func (t EntryType) Valid() bool {
	return t == EntryCredit || t == EntryDebit
}

func ParseEntryType(s string) (EntryType, error) {
	t := EntryType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown transaction type %q", s)
	}
	return t, nil
}

// Signed returns the effect of amount on a bucket.
func (t EntryType) Signed(amount int64) int64 {
	switch t {
	case EntryCredit:
		return amount
	case EntryDebit:
		return -amount
	}
	panic(fmt.Sprintf("domain: unhandled entry type %q", string(t)))
}

// TxSource records which flow produced a transaction.
type TxSource string

const (
	SourceCoupon     TxSource = "coupon"
	SourceTask       TxSource = "task"
	SourceCommission TxSource = "commission"
	SourceWithdrawal TxSource = "withdrawal"
	SourceRefund     TxSource = "refund"
	SourceAdjustment TxSource = "adjustment"
)

func (s TxSource) Valid() bool {
	switch s {
	case SourceCoupon, SourceTask, SourceCommission, SourceWithdrawal, SourceRefund, SourceAdjustment:
		return true
	}
	return false
}

type CouponType string

const (
	CouponMega  CouponType = "mega"
	CouponAlpha CouponType = "alpha"
)

var CouponTypes = []CouponType{CouponMega, CouponAlpha}

func (t CouponType) Valid() bool {
	return t == CouponMega || t == CouponAlpha
}

// ErrUnknownCouponType is returned for coupon types outside CouponTypes,
// including values read back from storage.
var ErrUnknownCouponType = errors.New("unknown coupon type")

func ParseCouponType(s string) (CouponType, error) {
	t := CouponType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w %q", ErrUnknownCouponType, s)
	}
	return t, nil
}

// ParseStoredCouponType reads a coupon_type column. Rows created before
// coupon types existed have an empty value and are mega coupons.
func ParseStoredCouponType(s string) (CouponType, error) {
	if s == "" {
		return CouponMega, nil
	}
	return ParseCouponType(s)
}

// SettingKey is the system_settings key that overrides the bonus for this type.
func (t CouponType) SettingKey() (string, error) {
	switch t {
	case CouponMega:
		return SettingCouponBonusMega, nil
	case CouponAlpha:
		return SettingCouponBonusAlpha, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownCouponType, string(t))
	}
}

const (
	CouponUnused = "unused"
	CouponUsed   = "used"
)

const (
	TaskTypeLink  = "link"
	TaskTypeImage = "image"
	TaskTypeText  = "text"
)

const (
	WithdrawalPending   = "pending"
	WithdrawalCompleted = "completed"
	WithdrawalFailed    = "failed"
)

// System setting keys (admin-configurable, values in kobo or basis points).
const (
	SettingCouponBonusMega  = "coupon_bonus_mega"
	SettingCouponBonusAlpha = "coupon_bonus_alpha"
	SettingCommissionBPS    = "referral_commission_bps"
)
