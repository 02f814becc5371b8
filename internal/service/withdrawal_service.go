package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"affluence/internal/domain"
	"affluence/internal/ledger"
	"affluence/internal/models"
)

// RefundRef is the reference of the credit that returns a failed withdrawal.
func RefundRef(withdrawalRef string) string {
	return "refund:" + withdrawalRef
}

// WithdrawalService debits a bucket when a payout is requested and refunds it
// when the payout fails. Payout delivery itself happens outside the ledger.
type WithdrawalService struct {
	engine      *ledger.Engine
	withdrawals WithdrawalStore
	rules       *Rules
}

func NewWithdrawalService(engine *ledger.Engine, withdrawals WithdrawalStore, rules *Rules) *WithdrawalService {
	return &WithdrawalService{engine: engine, withdrawals: withdrawals, rules: rules}
}

func (s *WithdrawalService) Request(ctx context.Context, userID uint, bucket domain.Bucket, amount int64) (*models.Withdrawal, *models.Balance, error) {
	if !bucket.Valid() {
		return nil, nil, fmt.Errorf("%w: %q", ledger.ErrInvalidBucket, string(bucket))
	}
	if amount < s.rules.MinWithdrawal() {
		return nil, nil, fmt.Errorf("%w: minimum is %s", ErrBelowMinimum, domain.FormatKobo(s.rules.MinWithdrawal()))
	}
	ref := fmt.Sprintf("wd-%s", uuid.New().String())
	res, err := s.engine.Post(ctx, ledger.Posting{
		UserID:      userID,
		Bucket:      bucket,
		Type:        domain.EntryDebit,
		Amount:      amount,
		Source:      domain.SourceWithdrawal,
		Reference:   ref,
		Idempotency: ledger.IdempotencyReject,
	})
	if err != nil {
		return nil, nil, err
	}
	w := &models.Withdrawal{
		UserID:      userID,
		Reference:   ref,
		BalanceType: bucket,
		Amount:      amount,
		Status:      domain.WithdrawalPending,
	}
	if err := s.withdrawals.CreateWithdrawal(ctx, w); err != nil {
		log.Printf("[withdrawal] record %s failed, refunding: %v", ref, err)
		if _, rerr := s.refund(ctx, userID, bucket, amount, ref); rerr != nil {
			log.Printf("[withdrawal] refund %s failed: %v", ref, rerr)
		}
		return nil, nil, fmt.Errorf("record withdrawal: %w", err)
	}
	log.Printf("[withdrawal] user %d requested %s from %s (%s)", userID, domain.FormatKobo(amount), bucket, ref)
	return w, &res.Balance, nil
}

// Complete marks a pending withdrawal as paid out.
func (s *WithdrawalService) Complete(ctx context.Context, id uint, providerRef string) (*models.Withdrawal, error) {
	w, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	at := s.engine.Now()
	w.Status = domain.WithdrawalCompleted
	w.ProviderRef = providerRef
	w.CompletedAt = &at
	if err := s.withdrawals.UpdateWithdrawalStatus(ctx, id, domain.WithdrawalPending, w); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, ErrWithdrawalState
		}
		return nil, err
	}
	return w, nil
}

// Fail marks a withdrawal as failed and refunds it. Calling Fail again on a
// failed withdrawal retries the refund, which posts at most once.
func (s *WithdrawalService) Fail(ctx context.Context, id uint, providerRef string) (*models.Withdrawal, error) {
	w, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch w.Status {
	case domain.WithdrawalCompleted:
		return nil, ErrWithdrawalState
	case domain.WithdrawalPending:
		w.Status = domain.WithdrawalFailed
		w.ProviderRef = providerRef
		if err := s.withdrawals.UpdateWithdrawalStatus(ctx, id, domain.WithdrawalPending, w); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return nil, ErrWithdrawalState
			}
			return nil, err
		}
	}
	res, err := s.refund(ctx, w.UserID, w.BalanceType, w.Amount, w.Reference)
	if err != nil {
		return w, fmt.Errorf("refund %s: %w", w.Reference, err)
	}
	if !res.Replayed {
		log.Printf("[withdrawal] refunded %s to user %d (%s)", domain.FormatKobo(w.Amount), w.UserID, w.Reference)
	}
	return w, nil
}

func (s *WithdrawalService) List(ctx context.Context, userID uint, status string, page, limit int) ([]models.Withdrawal, int64, error) {
	return s.withdrawals.ListWithdrawals(ctx, userID, status, page, limit)
}

func (s *WithdrawalService) get(ctx context.Context, id uint) (*models.Withdrawal, error) {
	w, err := s.withdrawals.GetWithdrawal(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrWithdrawalNotFound
	}
	return w, err
}

func (s *WithdrawalService) refund(ctx context.Context, userID uint, bucket domain.Bucket, amount int64, ref string) (*ledger.Result, error) {
	return s.engine.Post(ctx, ledger.Posting{
		UserID:    userID,
		Bucket:    bucket,
		Type:      domain.EntryCredit,
		Amount:    amount,
		Source:    domain.SourceRefund,
		Reference: RefundRef(ref),
		// Refunds are retried by operators; the second one is a no-op.
		Idempotency: ledger.IdempotencyReplay,
		// Money taken from a disabled account still goes back to it.
		AllowInactive: true,
	})
}
