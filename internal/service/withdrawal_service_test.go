package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"affluence/internal/domain"
	"affluence/internal/ledger"
	"affluence/internal/service"
)

func TestWithdrawalRequestDebits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.user(t, "ada", nil)
	h.fund(t, u.ID, 300000, "seed")

	w, b, err := h.withdrawals.Request(ctx, u.ID, domain.BucketMain, 120000)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if w.Status != domain.WithdrawalPending || !strings.HasPrefix(w.Reference, "wd-") {
		t.Fatalf("unexpected withdrawal %+v", w)
	}
	if b.MainBalance != 180000 || b.TotalBalance != 180000 {
		t.Fatalf("unexpected balance %+v", b)
	}

	list, total, err := h.withdrawals.List(ctx, u.ID, domain.WithdrawalPending, 1, 10)
	if err != nil || total != 1 || list[0].ID != w.ID {
		t.Fatalf("list: %v, %d, %v", list, total, err)
	}
}

func TestWithdrawalRejectsBadRequests(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.user(t, "ada", nil)
	h.fund(t, u.ID, 150000, "seed")

	tests := []struct {
		name   string
		bucket domain.Bucket
		amount int64
		want   error
	}{
		{"below minimum", domain.BucketMain, 99999, service.ErrBelowMinimum},
		{"unknown bucket", "savings", 100000, ledger.ErrInvalidBucket},
		{"insufficient", domain.BucketMain, 150001, ledger.ErrInsufficientFunds},
		{"empty bucket", domain.BucketAffiliate, 100000, ledger.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := h.withdrawals.Request(ctx, u.ID, tt.bucket, tt.amount)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
	if b := h.balance(t, u.ID); b.MainBalance != 150000 {
		t.Fatalf("rejected requests changed balance: %+v", b)
	}
}

func TestWithdrawalFailRefundsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.user(t, "ada", nil)
	h.fund(t, u.ID, 200000, "seed")

	w, _, err := h.withdrawals.Request(ctx, u.ID, domain.BucketMain, 150000)
	if err != nil {
		t.Fatal(err)
	}
	// Refunds reach disabled accounts.
	if err := h.store.SetUserActive(ctx, u.ID, false); err != nil {
		t.Fatal(err)
	}
	failed, err := h.withdrawals.Fail(ctx, w.ID, "bank-declined")
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if failed.Status != domain.WithdrawalFailed || failed.ProviderRef != "bank-declined" {
		t.Fatalf("unexpected withdrawal %+v", failed)
	}
	if b := h.balance(t, u.ID); b.MainBalance != 200000 {
		t.Fatalf("main after refund = %d, want 200000", b.MainBalance)
	}

	if _, err := h.withdrawals.Fail(ctx, w.ID, "bank-declined"); err != nil {
		t.Fatalf("second fail: %v", err)
	}
	if b := h.balance(t, u.ID); b.MainBalance != 200000 {
		t.Fatalf("refund posted twice: main = %d", b.MainBalance)
	}
	refunds, _, _ := h.store.ListTransactions(ctx, u.ID, string(domain.SourceRefund), 1, 10)
	if len(refunds) != 1 || refunds[0].Reference != service.RefundRef(w.Reference) {
		t.Fatalf("refunds = %+v", refunds)
	}

	if _, err := h.withdrawals.Complete(ctx, w.ID, "late"); !errors.Is(err, service.ErrWithdrawalState) {
		t.Fatalf("complete after fail: got %v", err)
	}
}

func TestWithdrawalCompleteIsFinal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.user(t, "ada", nil)
	h.fund(t, u.ID, 100000, "seed")

	w, _, err := h.withdrawals.Request(ctx, u.ID, domain.BucketMain, 100000)
	if err != nil {
		t.Fatal(err)
	}
	done, err := h.withdrawals.Complete(ctx, w.ID, "PAYOUT-1")
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != domain.WithdrawalCompleted || done.CompletedAt == nil {
		t.Fatalf("unexpected withdrawal %+v", done)
	}
	if _, err := h.withdrawals.Fail(ctx, w.ID, "oops"); !errors.Is(err, service.ErrWithdrawalState) {
		t.Fatalf("fail after complete: got %v", err)
	}
	if _, err := h.withdrawals.Complete(ctx, 404, ""); !errors.Is(err, service.ErrWithdrawalNotFound) {
		t.Fatalf("missing withdrawal: got %v", err)
	}
	if b := h.balance(t, u.ID); b.TotalBalance != 0 {
		t.Fatalf("balance = %+v, want empty", b)
	}
}
