package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"affluence/internal/domain"
	"affluence/internal/ledger"
	"affluence/internal/models"
)

const maxCouponBatch = 1000

type Redemption struct {
	Coupon      models.Coupon      `json:"coupon"`
	Amount      int64              `json:"amount"`
	Balance     models.Balance     `json:"balance"`
	Transaction models.Transaction `json:"transaction"`
}

type CouponService struct {
	engine    *ledger.Engine
	coupons   CouponStore
	rules     *Rules
	referrals *ReferralService
	tracer    trace.Tracer
}

func NewCouponService(engine *ledger.Engine, coupons CouponStore, rules *Rules, referrals *ReferralService) *CouponService {
	return &CouponService{
		engine:    engine,
		coupons:   coupons,
		rules:     rules,
		referrals: referrals,
		tracer:    otel.Tracer("affluence/service"),
	}
}

// NormalizeCode trims and upper-cases a coupon code as typed by a user.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Redeem claims code for userID and credits its bonus to the activity bucket.
// The claim and the credit commit together; the coupon row's status flip is
// a compare-and-set, so concurrent redeemers of one code get exactly one
// winner and ErrCouponAlreadyUsed for the rest.
func (s *CouponService) Redeem(ctx context.Context, userID uint, code string) (*Redemption, error) {
	code = NormalizeCode(code)
	ctx, span := s.tracer.Start(ctx, "coupon.Redeem", trace.WithAttributes(
		attribute.Int64("user_id", int64(userID)),
		attribute.String("code", code),
	))
	defer span.End()

	out, err := s.redeem(ctx, userID, code)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	log.Printf("[coupon] user %d redeemed %s (%s) for %s", userID, code, out.Coupon.CouponType, domain.FormatKobo(out.Amount))

	if s.referrals != nil {
		s.referrals.Trigger(ctx, out.Transaction)
	}
	return out, nil
}

func (s *CouponService) redeem(ctx context.Context, userID uint, code string) (*Redemption, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: empty code", ledger.ErrCouponNotFound)
	}
	// Fail fast on codes that are unknown or already spent, and resolve the
	// bonus outside the locked section. The claim below is authoritative.
	c, err := s.coupons.GetCoupon(ctx, code)
	if err != nil {
		return nil, err
	}
	if c.Status == domain.CouponUsed {
		return nil, fmt.Errorf("%w: %s", ledger.ErrCouponAlreadyUsed, code)
	}
	ct, err := domain.ParseStoredCouponType(string(c.CouponType))
	if err != nil {
		return nil, fmt.Errorf("coupon %s: %w", code, err)
	}
	amount, err := s.rules.CouponBonus(ctx, ct)
	if err != nil {
		return nil, err
	}

	var out *Redemption
	err = s.engine.Run(ctx, userID, func(tx ledger.Tx) error {
		if u := tx.User(); !u.IsActive {
			return fmt.Errorf("%w: user %d", ledger.ErrUserInactive, u.ID)
		}
		claimed, err := tx.ClaimCoupon(code, s.engine.Now())
		if err != nil {
			return err
		}
		res, err := s.engine.PostTx(tx, ledger.Posting{
			UserID:    userID,
			Bucket:    domain.BucketActivity,
			Type:      domain.EntryCredit,
			Amount:    amount,
			Source:    domain.SourceCoupon,
			Reference: code,
			// The claim already guarantees one use per code; a matching
			// reference here means the log and the coupon table disagree.
			Idempotency: ledger.IdempotencyReject,
		})
		if err != nil {
			return err
		}
		if err := tx.SetCouponBonus(claimed.ID, amount); err != nil {
			return err
		}
		claimed.BonusAmount = amount
		claimed.CouponType = ct
		out = &Redemption{Coupon: *claimed, Amount: amount, Balance: res.Balance, Transaction: res.Transaction}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Generate creates count unused coupons of type t. Codes look like
// MEGA-3F9A1C2B.
func (s *CouponService) Generate(ctx context.Context, t domain.CouponType, count int, createdBy string) ([]models.Coupon, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: coupon type %q", ErrInvalidInput, string(t))
	}
	if count < 1 || count > maxCouponBatch {
		return nil, fmt.Errorf("%w: count must be between 1 and %d", ErrInvalidInput, maxCouponBatch)
	}
	for attempt := 0; attempt < 3; attempt++ {
		batch := make([]models.Coupon, count)
		seen := make(map[string]bool, count)
		for i := range batch {
			code, err := newCouponCode(t)
			if err != nil {
				return nil, err
			}
			if seen[code] {
				code, err = newCouponCode(t)
				if err != nil {
					return nil, err
				}
			}
			seen[code] = true
			batch[i] = models.Coupon{
				Code:       code,
				CouponType: t,
				Status:     domain.CouponUnused,
				CreatedBy:  createdBy,
			}
		}
		err := s.coupons.CreateCoupons(ctx, batch)
		if err == nil {
			return batch, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		log.Printf("[coupon] code collision generating %d %s coupons, retrying", count, t)
	}
	return nil, fmt.Errorf("could not generate unique coupon codes")
}

func (s *CouponService) List(ctx context.Context, status, couponType string, page, limit int) ([]models.Coupon, int64, error) {
	return s.coupons.ListCoupons(ctx, status, couponType, page, limit)
}

func newCouponCode(t domain.CouponType) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	hex := strings.ReplaceAll(id.String(), "-", "")
	return strings.ToUpper(string(t)) + "-" + strings.ToUpper(hex[:8]), nil
}
