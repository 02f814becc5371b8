package service

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"affluence/config"
	"affluence/internal/domain"
)

// Rules resolves reward amounts at call time: an admin-set value in
// system_settings wins over the configured default.
type Rules struct {
	settings SettingStore
	cfg      config.RewardsConfig
}

func NewRules(settings SettingStore, cfg config.RewardsConfig) *Rules {
	return &Rules{settings: settings, cfg: cfg}
}

func (r *Rules) CouponBonus(ctx context.Context, t domain.CouponType) (int64, error) {
	var fallback int64
	switch t {
	case domain.CouponMega:
		fallback = r.cfg.MegaBonusKobo
	case domain.CouponAlpha:
		fallback = r.cfg.AlphaBonusKobo
	default:
		return 0, fmt.Errorf("%w %q", domain.ErrUnknownCouponType, string(t))
	}
	key, err := t.SettingKey()
	if err != nil {
		return 0, err
	}
	return r.getSettingInt(ctx, key, fallback), nil
}

func (r *Rules) CommissionBPS(ctx context.Context) int64 {
	return r.getSettingInt(ctx, domain.SettingCommissionBPS, r.cfg.CommissionBPS)
}

func (r *Rules) CommissionOnCoupons() bool { return r.cfg.CommissionOnCoupons }

func (r *Rules) MinWithdrawal() int64 { return r.cfg.MinWithdrawalKobo }

// SetCouponBonus stores a new bonus for coupon type t.
func (r *Rules) SetCouponBonus(ctx context.Context, t domain.CouponType, kobo int64, actor string) error {
	key, err := t.SettingKey()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if kobo <= 0 {
		return fmt.Errorf("%w: bonus must be positive", ErrInvalidInput)
	}
	return r.settings.SetSetting(ctx, key, strconv.FormatInt(kobo, 10), actor)
}

func (r *Rules) SetCommissionBPS(ctx context.Context, bps int64, actor string) error {
	if bps < 0 || bps > 10000 {
		return fmt.Errorf("%w: commission rate must be between 0 and 10000 basis points", ErrInvalidInput)
	}
	return r.settings.SetSetting(ctx, domain.SettingCommissionBPS, strconv.FormatInt(bps, 10), actor)
}

// Snapshot is the current effective reward configuration.
func (r *Rules) Snapshot(ctx context.Context) map[string]int64 {
	snap := map[string]int64{
		domain.SettingCommissionBPS: r.CommissionBPS(ctx),
		"min_withdrawal":            r.MinWithdrawal(),
	}
	for _, t := range domain.CouponTypes {
		key, _ := t.SettingKey()
		snap[key], _ = r.CouponBonus(ctx, t)
	}
	return snap
}

func (r *Rules) getSettingInt(ctx context.Context, key string, fallback int64) int64 {
	if r.settings == nil {
		return fallback
	}
	val, err := r.settings.GetSetting(ctx, key)
	if err != nil || val == "" {
		return fallback
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil || n < 0 {
		log.Printf("[rules] ignoring bad setting %s=%q", key, val)
		return fallback
	}
	return n
}
