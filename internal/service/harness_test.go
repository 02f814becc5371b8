package service_test

import (
	"context"
	"testing"
	"time"

	"affluence/config"
	"affluence/internal/domain"
	"affluence/internal/ledger"
	"affluence/internal/lock"
	"affluence/internal/models"
	"affluence/internal/queue"
	"affluence/internal/service"
	"affluence/internal/store/memory"
)

type harness struct {
	cfg         *config.Config
	store       *memory.Store
	engine      *ledger.Engine
	rules       *service.Rules
	referrals   *service.ReferralService
	coupons     *service.CouponService
	tasks       *service.TaskService
	withdrawals *service.WithdrawalService
	auth        *service.AuthService
	admin       *service.AdminService
	board       *service.LeaderboardService
}

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			AccessSecret:  "access-secret",
			RefreshSecret: "refresh-secret",
			AccessExpiry:  time.Minute,
			RefreshExpiry: time.Hour,
			Issuer:        "affluence-test",
		},
		Rewards: config.RewardsConfig{
			MegaBonusKobo:       50000,
			AlphaBonusKobo:      200000,
			CommissionBPS:       1000,
			CommissionOnCoupons: true,
			CommissionMode:      "inline",
			MinWithdrawalKobo:   100000,
		},
	}
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithQueue(t, nil)
}

func newHarnessWithQueue(t *testing.T, q queue.Queue) *harness {
	t.Helper()
	cfg := testConfig()
	s := memory.New()
	e := ledger.NewEngine(s, lock.NewKeyedMutex(), ledger.Options{
		StoreTimeout: time.Second,
		LockTimeout:  2 * time.Second,
		MaxRetries:   3,
		RetryInitial: time.Millisecond,
		RetryMax:     2 * time.Millisecond,
	})
	rules := service.NewRules(s, cfg.Rewards)
	refs := service.NewReferralService(e, s, s, rules, q)
	coupons := service.NewCouponService(e, s, rules, refs)
	h := &harness{
		cfg:         cfg,
		store:       s,
		engine:      e,
		rules:       rules,
		referrals:   refs,
		coupons:     coupons,
		tasks:       service.NewTaskService(e, s, refs),
		withdrawals: service.NewWithdrawalService(e, s, rules),
		auth:        service.NewAuthService(cfg, s),
		board:       service.NewLeaderboardService(s, s),
	}
	h.admin = service.NewAdminService(e, ledger.NewAuditor(e, 0, 2), s, s, s, s, rules, coupons, refs)
	return h
}

// user creates an active user whose own referral code is "REF"+name.
func (h *harness) user(t *testing.T, name string, referredBy *models.User) *models.User {
	t.Helper()
	u := &models.User{
		Username:     name,
		Email:        name + "@example.com",
		ReferralCode: "REF" + name,
		IsActive:     true,
	}
	if referredBy != nil {
		code := referredBy.ReferralCode
		u.ReferredBy = &code
	}
	if err := h.store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func (h *harness) coupon(t *testing.T, code string, typ domain.CouponType) {
	t.Helper()
	c := models.Coupon{Code: code, CouponType: typ}
	if err := h.store.CreateCoupons(context.Background(), []models.Coupon{c}); err != nil {
		t.Fatalf("create coupon %s: %v", code, err)
	}
}

func (h *harness) balance(t *testing.T, userID uint) *models.Balance {
	t.Helper()
	b, err := h.store.GetBalance(context.Background(), userID)
	if err != nil {
		t.Fatalf("balance %d: %v", userID, err)
	}
	return b
}

func (h *harness) fund(t *testing.T, userID uint, amount int64, ref string) {
	t.Helper()
	_, err := h.admin.Adjust(context.Background(), service.Actor{ID: 1, Username: "root", Role: "admin"}, service.Adjustment{
		UserID:    userID,
		Bucket:    domain.BucketMain,
		Type:      domain.EntryCredit,
		Amount:    amount,
		Reference: ref,
	})
	if err != nil {
		t.Fatalf("fund %d: %v", userID, err)
	}
}
