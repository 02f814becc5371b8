package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"affluence/internal/domain"
	"affluence/internal/ledger"
	"affluence/internal/models"
	"affluence/internal/store/memory"
)

func newUser(t *testing.T, s *memory.Store, name string) *models.User {
	t.Helper()
	u := &models.User{
		Username:     name,
		Email:        name + "@example.com",
		ReferralCode: "REF" + name,
		IsActive:     true,
	}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func fastOptions() ledger.Options {
	return ledger.Options{
		StoreTimeout: time.Second,
		LockTimeout:  time.Second,
		MaxRetries:   3,
		RetryInitial: time.Millisecond,
		RetryMax:     2 * time.Millisecond,
	}
}

func credit(userID uint, bucket domain.Bucket, amount int64, ref string) ledger.Posting {
	return ledger.Posting{
		UserID:    userID,
		Bucket:    bucket,
		Type:      domain.EntryCredit,
		Amount:    amount,
		Source:    domain.SourceAdjustment,
		Reference: ref,
	}
}

func TestPostCreditUpdatesBucketAndTotal(t *testing.T) {
	s := memory.New()
	e := ledger.NewEngine(s, nil, fastOptions())
	u := newUser(t, s, "ada")

	res, err := e.Post(context.Background(), credit(u.ID, domain.BucketActivity, 50000, "c1"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if res.Balance.ActivityBalance != 50000 || res.Balance.TotalBalance != 50000 {
		t.Fatalf("unexpected balance %+v", res.Balance)
	}
	if res.Transaction.ID == 0 || res.Transaction.Reference != "c1" {
		t.Fatalf("unexpected transaction %+v", res.Transaction)
	}

	b, err := s.GetBalance(context.Background(), u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if b.ActivityBalance != 50000 || b.TotalBalance != b.Sum() {
		t.Fatalf("stored balance %+v", b)
	}
}

func TestInsufficientFundsLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	e := ledger.NewEngine(s, nil, fastOptions())
	u := newUser(t, s, "bola")

	if _, err := e.Post(ctx, credit(u.ID, domain.BucketMain, 1000, "seed")); err != nil {
		t.Fatal(err)
	}
	_, err := e.Post(ctx, ledger.Posting{
		UserID: u.ID, Bucket: domain.BucketMain, Type: domain.EntryDebit,
		Amount: 1001, Source: domain.SourceWithdrawal, Reference: "wd-1",
	})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	b, _ := s.GetBalance(ctx, u.ID)
	if b.MainBalance != 1000 || b.TotalBalance != 1000 {
		t.Fatalf("balance changed after failed debit: %+v", b)
	}
	n := 0
	for _, err := range ledger.History(ctx, s, u.ID) {
		if err != nil {
			t.Fatal(err)
		}
		n++
	}
	if n != 1 {
		t.Fatalf("expected 1 transaction, got %d", n)
	}
}

func TestPostValidation(t *testing.T) {
	s := memory.New()
	e := ledger.NewEngine(s, nil, fastOptions())
	u := newUser(t, s, "chi")

	tests := []struct {
		name string
		p    ledger.Posting
		want error
	}{
		{"zero amount", credit(u.ID, domain.BucketMain, 0, "r"), ledger.ErrInvalidAmount},
		{"negative amount", credit(u.ID, domain.BucketMain, -5, "r"), ledger.ErrInvalidAmount},
		{"unknown bucket", credit(u.ID, "bonus", 5, "r"), ledger.ErrInvalidBucket},
		{"unknown user", credit(999, domain.BucketMain, 5, "r"), ledger.ErrUserNotFound},
		{"missing reference", ledger.Posting{
			UserID: u.ID, Bucket: domain.BucketMain, Type: domain.EntryCredit, Amount: 5,
			Source: domain.SourceTask, Idempotency: ledger.IdempotencyReject,
		}, ledger.ErrMissingReference},
		{"unknown type", ledger.Posting{
			UserID: u.ID, Bucket: domain.BucketMain, Type: "refund", Amount: 5, Source: domain.SourceTask,
		}, ledger.ErrInvalidEntryType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.Post(context.Background(), tt.p); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestInactiveUserRejectedUnlessAllowed(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	e := ledger.NewEngine(s, nil, fastOptions())
	u := newUser(t, s, "dayo")
	if err := s.SetUserActive(ctx, u.ID, false); err != nil {
		t.Fatal(err)
	}

	if _, err := e.Post(ctx, credit(u.ID, domain.BucketMain, 100, "a")); !errors.Is(err, ledger.ErrUserInactive) {
		t.Fatalf("expected ErrUserInactive, got %v", err)
	}
	p := credit(u.ID, domain.BucketMain, 100, "refund:wd-1")
	p.Source = domain.SourceRefund
	p.AllowInactive = true
	if _, err := e.Post(ctx, p); err != nil {
		t.Fatalf("refund to inactive user: %v", err)
	}
}

func TestIdempotencyReject(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	e := ledger.NewEngine(s, nil, fastOptions())
	u := newUser(t, s, "ebuka")

	p := credit(u.ID, domain.BucketActivity, 300, "task:1:user:1")
	p.Idempotency = ledger.IdempotencyReject
	if _, err := e.Post(ctx, p); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Post(ctx, p); !errors.Is(err, ledger.ErrDuplicateReference) {
		t.Fatalf("expected ErrDuplicateReference, got %v", err)
	}
	b, _ := s.GetBalance(ctx, u.ID)
	if b.ActivityBalance != 300 {
		t.Fatalf("expected a single credit, got %d", b.ActivityBalance)
	}
}

func TestIdempotencyReplayReturnsOriginal(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	e := ledger.NewEngine(s, nil, fastOptions())
	u := newUser(t, s, "funmi")

	p := credit(u.ID, domain.BucketAffiliate, 100, "commission:task:1:user:2")
	p.Idempotency = ledger.IdempotencyReplay
	first, err := e.Post(ctx, p)
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.Post(ctx, p)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Replayed || second.Transaction.ID != first.Transaction.ID {
		t.Fatalf("expected replay of transaction %d, got %+v", first.Transaction.ID, second)
	}
	if second.Balance.AffiliateBalance != 100 {
		t.Fatalf("expected affiliate 100, got %d", second.Balance.AffiliateBalance)
	}
}

func TestConcurrentPostsForOneUserLoseNothing(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	e := ledger.NewEngine(s, nil, fastOptions())
	u := newUser(t, s, "gbenga")

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Post(ctx, credit(u.ID, domain.BucketMain, 10, fmt.Sprintf("c%d", i)))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("post: %v", err)
		}
	}
	b, _ := s.GetBalance(ctx, u.ID)
	if b.MainBalance != n*10 || b.TotalBalance != n*10 {
		t.Fatalf("expected %d, got %+v", n*10, b)
	}
	if b.Version != n {
		t.Fatalf("expected version %d, got %d", n, b.Version)
	}
}

func TestTransientFailuresAreRetried(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	e := ledger.NewEngine(s, nil, fastOptions())
	u := newUser(t, s, "hauwa")

	s.FailNext(2)
	if _, err := e.Post(ctx, credit(u.ID, domain.BucketMain, 10, "r")); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	b, _ := s.GetBalance(ctx, u.ID)
	if b.MainBalance != 10 {
		t.Fatalf("expected exactly one credit, got %d", b.MainBalance)
	}
}

func TestExhaustedRetriesReportStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	e := ledger.NewEngine(s, nil, fastOptions())
	u := newUser(t, s, "ife")

	s.FailNext(10)
	_, err := e.Post(ctx, credit(u.ID, domain.BucketMain, 10, "r"))
	if !errors.Is(err, ledger.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	s.FailNext(0)
	b, _ := s.GetBalance(ctx, u.ID)
	if b.MainBalance != 0 {
		t.Fatalf("expected no partial effect, got %d", b.MainBalance)
	}
}

func TestRunRollsBackEveryWriteOnError(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	e := ledger.NewEngine(s, nil, fastOptions())
	u := newUser(t, s, "jide")
	boom := errors.New("boom")

	err := e.Run(ctx, u.ID, func(tx ledger.Tx) error {
		if _, err := e.PostTx(tx, credit(u.ID, domain.BucketMain, 10, "a")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	b, _ := s.GetBalance(ctx, u.ID)
	if b.MainBalance != 0 {
		t.Fatalf("expected rollback, got %+v", b)
	}
	for _, err := range ledger.History(ctx, s, u.ID) {
		if err != nil {
			t.Fatal(err)
		}
		t.Fatal("expected empty log after rollback")
	}
}

func TestHistoryReplaysInOrderAndRestarts(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	e := ledger.NewEngine(s, nil, fastOptions())
	u := newUser(t, s, "kemi")
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	step := 0
	e.SetClock(func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	})

	for i := range 5 {
		if _, err := e.Post(ctx, credit(u.ID, domain.BucketMain, int64(i+1), fmt.Sprintf("r%d", i))); err != nil {
			t.Fatal(err)
		}
	}
	seq := ledger.History(ctx, s, u.ID)
	for range 2 {
		var got []int64
		for tr, err := range seq {
			if err != nil {
				t.Fatal(err)
			}
			got = append(got, tr.Amount)
		}
		if fmt.Sprint(got) != "[1 2 3 4 5]" {
			t.Fatalf("unexpected order %v", got)
		}
	}
}

func TestReplayPagesThroughCursor(t *testing.T) {
	var log []models.Transaction
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 7 {
		log = append(log, models.Transaction{ID: uint(i + 1), Amount: int64(i), CreatedAt: base})
	}
	calls := 0
	pages := func(after ledger.Cursor, limit int) ([]models.Transaction, error) {
		calls++
		var out []models.Transaction
		for i := range log {
			if after.After(&log[i]) && len(out) < limit {
				out = append(out, log[i])
			}
		}
		return out, nil
	}
	n := 0
	for _, err := range ledger.Replay(pages, 3) {
		if err != nil {
			t.Fatal(err)
		}
		n++
	}
	if n != 7 || calls != 3 {
		t.Fatalf("expected 7 rows in 3 pages, got %d rows in %d pages", n, calls)
	}
}
