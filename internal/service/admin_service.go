package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"affluence/internal/domain"
	"affluence/internal/ledger"
	"affluence/internal/models"
)

// Actor identifies who performed an administrative action.
type Actor struct {
	ID       uint
	Username string
	Role     string
	IP       string
}

// Tag is the actor string stored on transactions and repair records.
func (a Actor) Tag() string {
	if a.Username == "" {
		return fmt.Sprintf("%s:%d", a.Role, a.ID)
	}
	return a.Role + ":" + a.Username
}

type Adjustment struct {
	UserID    uint
	Bucket    domain.Bucket
	Type      domain.EntryType
	Amount    int64
	Reference string
	Note      string
}

type UserDetail struct {
	User          models.User          `json:"user"`
	Balance       models.Balance       `json:"balance"`
	ReferralCount int64                `json:"referral_count"`
	Transactions  []models.Transaction `json:"transactions"`
	Check         *ledger.Report       `json:"check,omitempty"`
}

// AdminService wraps every administrative operation with an audit log entry.
type AdminService struct {
	engine    *ledger.Engine
	auditor   *ledger.Auditor
	users     UserStore
	reports   ReportStore
	audits    AuditStore
	settings  SettingStore
	rules     *Rules
	coupons   *CouponService
	referrals *ReferralService
}

func NewAdminService(
	engine *ledger.Engine,
	auditor *ledger.Auditor,
	users UserStore,
	reports ReportStore,
	audits AuditStore,
	settings SettingStore,
	rules *Rules,
	coupons *CouponService,
	referrals *ReferralService,
) *AdminService {
	return &AdminService{
		engine:    engine,
		auditor:   auditor,
		users:     users,
		reports:   reports,
		audits:    audits,
		settings:  settings,
		rules:     rules,
		coupons:   coupons,
		referrals: referrals,
	}
}

func (s *AdminService) Dashboard(ctx context.Context) (*models.DashboardStats, error) {
	return s.reports.DashboardStats(ctx)
}

func (s *AdminService) ListUsers(ctx context.Context, search string, page, limit int) ([]models.User, int64, error) {
	return s.users.ListUsers(ctx, search, page, limit)
}

// InspectUser returns a user's balance, recent transactions and a dry-run
// reconciliation report.
func (s *AdminService) InspectUser(ctx context.Context, userID uint) (*UserDetail, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	b, err := s.engine.Store().GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	count, err := s.reports.ReferralCount(ctx, u.ReferralCode)
	if err != nil {
		return nil, err
	}
	txs, _, err := s.reports.ListTransactions(ctx, userID, "", 1, 50)
	if err != nil {
		return nil, err
	}
	d := &UserDetail{User: *u, Balance: *b, ReferralCount: count, Transactions: txs}
	if r, err := s.auditor.Check(ctx, userID); err == nil {
		d.Check = r
	} else {
		log.Printf("[admin] check user %d: %v", userID, err)
	}
	return d, nil
}

func (s *AdminService) SetUserActive(ctx context.Context, actor Actor, userID uint, active bool) error {
	if err := s.users.SetUserActive(ctx, userID, active); err != nil {
		return err
	}
	action := "user.disable"
	if active {
		action = "user.enable"
	}
	s.audit(ctx, actor, action, "user", userID, nil)
	return nil
}

// Adjust posts a manual credit or debit. The reference is required and may
// not repeat for the user.
func (s *AdminService) Adjust(ctx context.Context, actor Actor, in Adjustment) (*ledger.Result, error) {
	in.Reference = strings.TrimSpace(in.Reference)
	if in.Reference == "" {
		return nil, ledger.ErrMissingReference
	}
	res, err := s.engine.Post(ctx, ledger.Posting{
		UserID:      in.UserID,
		Bucket:      in.Bucket,
		Type:        in.Type,
		Amount:      in.Amount,
		Source:      domain.SourceAdjustment,
		Reference:   in.Reference,
		Actor:       actor.Tag(),
		Idempotency: ledger.IdempotencyReject,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[admin] %s posted %s %s to user %d %s (%s)", actor.Tag(), in.Type, domain.FormatKobo(in.Amount), in.UserID, in.Bucket, in.Reference)
	s.audit(ctx, actor, "ledger.adjust", "user", in.UserID, map[string]any{
		"bucket":    in.Bucket,
		"type":      in.Type,
		"amount":    in.Amount,
		"reference": in.Reference,
		"note":      in.Note,
		"tx_id":     res.Transaction.ID,
	})
	return res, nil
}

// Reconcile checks userID and, unless dryRun, repairs drift.
func (s *AdminService) Reconcile(ctx context.Context, actor Actor, userID uint, dryRun bool) (*ledger.Report, error) {
	if dryRun {
		return s.auditor.Check(ctx, userID)
	}
	r, err := s.auditor.Reconcile(ctx, userID, actor.Tag())
	if err != nil {
		return nil, err
	}
	if r.Repaired {
		s.audit(ctx, actor, "ledger.reconcile", "user", userID, map[string]any{"drifts": r.Drifts})
	}
	return r, nil
}

func (s *AdminService) ReconcileAll(ctx context.Context, actor Actor, dryRun bool) (*ledger.Summary, error) {
	if dryRun {
		return s.auditor.CheckAll(ctx)
	}
	sum, err := s.auditor.ReconcileAll(ctx, actor.Tag())
	if sum != nil {
		s.audit(ctx, actor, "ledger.reconcile_all", "ledger", 0, map[string]any{
			"checked":  sum.Checked,
			"repaired": sum.Repaired,
			"failed":   sum.Failed,
		})
	}
	return sum, err
}

func (s *AdminService) ListRepairs(ctx context.Context, userID uint, page, limit int) ([]models.BalanceRepair, int64, error) {
	return s.reports.ListRepairs(ctx, userID, page, limit)
}

func (s *AdminService) ListTransactions(ctx context.Context, userID uint, source string, page, limit int) ([]models.Transaction, int64, error) {
	return s.reports.ListTransactions(ctx, userID, source, page, limit)
}

func (s *AdminService) RepostCommissions(ctx context.Context, actor Actor, userID uint) (int, error) {
	n, err := s.referrals.RepostCommissions(ctx, userID)
	if n > 0 {
		s.audit(ctx, actor, "referral.repost", "user", userID, map[string]any{"posted": n})
	}
	return n, err
}

func (s *AdminService) GenerateCoupons(ctx context.Context, actor Actor, t domain.CouponType, count int) ([]models.Coupon, error) {
	list, err := s.coupons.Generate(ctx, t, count, actor.Tag())
	if err != nil {
		return nil, err
	}
	s.audit(ctx, actor, "coupon.generate", "coupon", 0, map[string]any{"type": t, "count": count})
	return list, nil
}

func (s *AdminService) SetCouponBonus(ctx context.Context, actor Actor, t domain.CouponType, kobo int64) error {
	if err := s.rules.SetCouponBonus(ctx, t, kobo, actor.Tag()); err != nil {
		return err
	}
	s.audit(ctx, actor, "settings.coupon_bonus", "setting", 0, map[string]any{"type": t, "amount": kobo})
	return nil
}

func (s *AdminService) SetCommissionBPS(ctx context.Context, actor Actor, bps int64) error {
	if err := s.rules.SetCommissionBPS(ctx, bps, actor.Tag()); err != nil {
		return err
	}
	s.audit(ctx, actor, "settings.commission_rate", "setting", 0, map[string]any{"bps": bps})
	return nil
}

func (s *AdminService) Settings(ctx context.Context) (map[string]int64, []models.SystemSetting, error) {
	stored, err := s.settings.ListSettings(ctx)
	if err != nil {
		return nil, nil, err
	}
	return s.rules.Snapshot(ctx), stored, nil
}

func (s *AdminService) ListAuditLogs(ctx context.Context, page, limit int) ([]models.AuditLog, int64, error) {
	return s.audits.ListAuditLogs(ctx, page, limit)
}

func (s *AdminService) audit(ctx context.Context, actor Actor, action, resource string, resourceID uint, meta map[string]any) {
	l := &models.AuditLog{
		Actor:    actor.Tag(),
		Action:   action,
		Resource: resource,
		IP:       actor.IP,
	}
	if actor.ID != 0 {
		id := actor.ID
		l.ActorID = &id
	}
	if resourceID != 0 {
		l.ResourceID = strconv.FormatUint(uint64(resourceID), 10)
	}
	if meta != nil {
		if b, err := json.Marshal(meta); err == nil {
			l.Metadata = string(b)
		}
	}
	if err := s.audits.CreateAuditLog(ctx, l); err != nil {
		log.Printf("[admin] audit %s by %s failed: %v", action, actor.Tag(), err)
	}
}

// IsNotFound reports whether err is any of the not-found outcomes.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, ledger.ErrUserNotFound) ||
		errors.Is(err, ErrTaskNotFound) ||
		errors.Is(err, ErrWithdrawalNotFound)
}
