// Package app assembles stores, the ledger engine and the services from
// configuration. Both binaries and the HTTP tests build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"affluence/config"
	"affluence/internal/database"
	"affluence/internal/ledger"
	"affluence/internal/lock"
	"affluence/internal/middleware"
	"affluence/internal/queue"
	"affluence/internal/repository"
	"affluence/internal/service"
	"affluence/internal/store/memory"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type App struct {
	Config  *config.Config
	Engine  *ledger.Engine
	Auditor *ledger.Auditor

	Auth        *service.AuthService
	Coupons     *service.CouponService
	Tasks       *service.TaskService
	Withdrawals *service.WithdrawalService
	Referrals   *service.ReferralService
	Leaderboard *service.LeaderboardService
	Admin       *service.AdminService

	// RequestLimit counts every request per client IP; WriteLimit counts
	// balance-changing requests per user.
	RequestLimit *middleware.Limiter
	WriteLimit   *middleware.Limiter

	// Memory is set when DB_DRIVER=memory.
	Memory *memory.Store

	db  *gorm.DB
	rdb *redis.Client
}

type stores struct {
	ledger      ledger.Store
	users       service.UserStore
	coupons     service.CouponStore
	settings    service.SettingStore
	tasks       service.TaskStore
	withdrawals service.WithdrawalStore
	audits      service.AuditStore
	reports     service.ReportStore
}

// New connects to the configured database and redis and wires the services.
// Close releases both.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}
	var st stores
	switch cfg.Database.Driver {
	case "memory":
		log.Printf("[app] using in-memory store; data is lost on exit")
		m := memory.New()
		a.Memory = m
		st = stores{m, m, m, m, m, m, m, m}
	default:
		db, err := database.NewDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		if err := database.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		a.db = db
		st = stores{
			ledger:      repository.NewLedgerStore(db),
			users:       repository.NewUserRepository(db),
			coupons:     repository.NewCouponRepository(db),
			settings:    repository.NewSettingRepository(db),
			tasks:       repository.NewTaskRepository(db),
			withdrawals: repository.NewWithdrawalRepository(db),
			audits:      repository.NewAuditLogRepository(db),
			reports:     repository.NewReports(db),
		}
	}

	rdb, err := database.ConnectRedis(&cfg.Redis)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.rdb = rdb

	var locker lock.Locker
	var q queue.Queue
	if rdb != nil {
		locker = lock.NewRedisLocker(rdb, cfg.Redis.Prefix, cfg.Ledger.EffectiveLockTTL())
		if cfg.Rewards.CommissionMode == "queue" {
			q = queue.NewRedisQueue(rdb, cfg.Redis.Prefix)
		}
	}

	a.Engine = ledger.NewEngine(st.ledger, locker, ledger.Options{
		StoreTimeout: cfg.Ledger.StoreTimeout,
		LockTimeout:  cfg.Ledger.LockTimeout,
		MaxRetries:   cfg.Ledger.MaxRetries,
		RetryInitial: cfg.Ledger.RetryInitial,
		RetryMax:     cfg.Ledger.RetryMax,
	})
	a.Auditor = ledger.NewAuditor(a.Engine, cfg.Ledger.ToleranceKobo, cfg.Ledger.ReconcileWorkers)

	rules := service.NewRules(st.settings, cfg.Rewards)
	a.Referrals = service.NewReferralService(a.Engine, st.users, st.reports, rules, q)
	a.Coupons = service.NewCouponService(a.Engine, st.coupons, rules, a.Referrals)
	a.Tasks = service.NewTaskService(a.Engine, st.tasks, a.Referrals)
	a.Withdrawals = service.NewWithdrawalService(a.Engine, st.withdrawals, rules)
	a.Auth = service.NewAuthService(cfg, st.users)
	a.Leaderboard = service.NewLeaderboardService(st.ledger, st.reports)
	a.Admin = service.NewAdminService(a.Engine, a.Auditor, st.users, st.reports, st.audits, st.settings, rules, a.Coupons, a.Referrals)

	a.RequestLimit = middleware.NewLimiter(cfg.Server.RateLimit, cfg.Server.RateWindow)
	a.WriteLimit = middleware.NewLimiter(cfg.Server.WriteRateLimit, cfg.Server.RateWindow)

	if err := a.Auth.SeedAdmin(ctx, cfg.Admin); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) Close() error {
	var errs []error
	for _, l := range []*middleware.Limiter{a.RequestLimit, a.WriteLimit} {
		if l != nil {
			l.Close()
		}
	}
	if a.rdb != nil {
		errs = append(errs, a.rdb.Close())
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
