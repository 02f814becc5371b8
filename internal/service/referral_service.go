package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"

	"affluence/internal/domain"
	"affluence/internal/ledger"
	"affluence/internal/models"
	"affluence/internal/queue"
)

// CommissionRef is the reference of the commission earned from sourceRef. It
// makes the commission idempotent and traceable to the earning.
func CommissionRef(sourceRef string) string {
	return "commission:" + sourceRef
}

// ReferralService credits referrers a share of their referred users'
// qualifying earnings. Commissions run after the earning has committed and
// never undo it.
type ReferralService struct {
	engine  *ledger.Engine
	users   UserStore
	reports ReportStore
	rules   *Rules
	queue   queue.Queue // nil posts inline

	// Delay between failed dequeues while the broker is unreachable.
	retryInitial time.Duration
	retryMax     time.Duration
}

func NewReferralService(engine *ledger.Engine, users UserStore, reports ReportStore, rules *Rules, q queue.Queue) *ReferralService {
	return &ReferralService{
		engine:       engine,
		users:        users,
		reports:      reports,
		rules:        rules,
		queue:        q,
		retryInitial: 500 * time.Millisecond,
		retryMax:     30 * time.Second,
	}
}

// SetDequeueBackoff bounds the worker's wait after a failed dequeue.
func (s *ReferralService) SetDequeueBackoff(initial, max time.Duration) {
	s.retryInitial = initial
	s.retryMax = max
}

// Qualifies reports whether earnings from source pay a commission.
func (s *ReferralService) Qualifies(source domain.TxSource) bool {
	switch source {
	case domain.SourceTask:
		return true
	case domain.SourceCoupon:
		return s.rules.CommissionOnCoupons()
	}
	return false
}

// Trigger hands a committed earning to the commission processor. Failures are
// logged; the auditor's repost covers anything lost here.
func (s *ReferralService) Trigger(ctx context.Context, earned models.Transaction) {
	if !s.Qualifies(earned.Source) {
		return
	}
	job := queue.CommissionJob{
		SourceUserID: earned.UserID,
		SourceTxID:   earned.ID,
		SourceRef:    earned.Reference,
		Source:       earned.Source,
		Amount:       earned.Amount,
	}
	if s.queue != nil {
		if err := s.queue.Enqueue(ctx, job); err != nil {
			log.Printf("[referral] enqueue commission for %s failed: %v", job.SourceRef, err)
		}
		return
	}
	if _, err := s.Process(ctx, job); err != nil {
		log.Printf("[referral] commission for %s (user %d) failed: %v", job.SourceRef, job.SourceUserID, err)
	}
}

// Process posts the commission for job. It returns nil, nil when nothing is
// owed: no referrer, an unknown code, a self-referral, or a zero amount.
func (s *ReferralService) Process(ctx context.Context, job queue.CommissionJob) (*ledger.Result, error) {
	u, err := s.users.GetUser(ctx, job.SourceUserID)
	if err != nil {
		return nil, err
	}
	if u.ReferredBy == nil || *u.ReferredBy == "" {
		return nil, nil
	}
	referrer, err := s.users.GetUserByReferralCode(ctx, *u.ReferredBy)
	if errors.Is(err, ledger.ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if referrer.ID == u.ID {
		return nil, nil
	}
	amount := domain.ApplyBPS(job.Amount, s.rules.CommissionBPS(ctx))
	if amount <= 0 {
		return nil, nil
	}
	res, err := s.engine.Post(ctx, ledger.Posting{
		UserID:    referrer.ID,
		Bucket:    domain.BucketAffiliate,
		Type:      domain.EntryCredit,
		Amount:    amount,
		Source:    domain.SourceCommission,
		Reference: CommissionRef(job.SourceRef),
		// A job delivered twice (queue redelivery, repost) is already paid.
		Idempotency: ledger.IdempotencyReplay,
	})
	if err != nil {
		return nil, fmt.Errorf("credit referrer %d: %w", referrer.ID, err)
	}
	if !res.Replayed {
		log.Printf("[referral] user %d earned %s commission from %s", referrer.ID, domain.FormatKobo(amount), job.SourceRef)
	}
	return res, nil
}

// RunWorker consumes queued jobs until ctx is done.
func (s *ReferralService) RunWorker(ctx context.Context) error {
	if s.queue == nil {
		return nil
	}
	log.Printf("[referral] commission worker started")
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryInitial
	b.MaxInterval = s.retryMax
	b.Reset()
	for {
		job, err := s.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, queue.ErrClosed) {
				return err
			}
			wait := b.NextBackOff()
			log.Printf("[referral] dequeue failed, retrying in %s: %v", wait, err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		b.Reset()
		if _, err := s.Process(ctx, job); err != nil {
			log.Printf("[referral] commission for %s (user %d) failed: %v", job.SourceRef, job.SourceUserID, err)
		}
	}
}

// RepostCommissions replays userID's qualifying earnings through the
// processor. Commissions already paid are skipped, so it is safe to repeat.
// Missing commissions are paid at the current rate.
func (s *ReferralService) RepostCommissions(ctx context.Context, userID uint) (int, error) {
	posted := 0
	for t, err := range ledger.History(ctx, s.engine.Store(), userID) {
		if err != nil {
			return posted, err
		}
		if t.Type != domain.EntryCredit || !s.Qualifies(t.Source) {
			continue
		}
		res, err := s.Process(ctx, queue.CommissionJob{
			SourceUserID: t.UserID,
			SourceTxID:   t.ID,
			SourceRef:    t.Reference,
			Source:       t.Source,
			Amount:       t.Amount,
		})
		if err != nil {
			return posted, err
		}
		if res != nil && !res.Replayed {
			posted++
		}
	}
	return posted, nil
}

// Summary is userID's own view of their referrals.
func (s *ReferralService) Summary(ctx context.Context, userID uint) (*models.ReferralSummary, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	count, err := s.reports.ReferralCount(ctx, u.ReferralCode)
	if err != nil {
		return nil, err
	}
	b, err := s.engine.Store().GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	earned, err := s.reports.CommissionEarned(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.ReferralSummary{
		ReferralCode:     u.ReferralCode,
		ReferralCount:    count,
		AffiliateBalance: b.AffiliateBalance,
		CommissionEarned: earned,
	}, nil
}

func (s *ReferralService) ReferredUsers(ctx context.Context, userID uint) ([]models.User, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.users.ListReferredUsers(ctx, u.ReferralCode)
}
