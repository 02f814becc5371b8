// Package ledger applies money-moving events to users' bucketed balances.
//
// Every posting runs as one unit of work: the balance row is updated and the
// transaction is appended together, or neither happens. Postings for one user
// are serialized through a per-user lock; postings for different users never
// share a lock.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"affluence/internal/domain"
	"affluence/internal/lock"
	"affluence/internal/models"
)

// Idempotency selects how a repeated reference is handled. Each call site
// picks one and documents why.
type Idempotency int

const (
	// IdempotencyNone skips the reference check.
	IdempotencyNone Idempotency = iota
	// IdempotencyReject fails a repeated reference with ErrDuplicateReference.
	IdempotencyReject
	// IdempotencyReplay treats a repeated reference as already done and
	// returns the original transaction.
	IdempotencyReplay
)

// Posting is a request to move money in one bucket.
type Posting struct {
	UserID      uint
	Bucket      domain.Bucket
	Type        domain.EntryType
	Amount      int64
	Source      domain.TxSource
	Reference   string
	Actor       string // optional, set on administrative postings
	Idempotency Idempotency
	// AllowInactive lets refunds reach disabled accounts.
	AllowInactive bool
}

// Result is the committed outcome of a posting.
type Result struct {
	Balance     models.Balance
	Transaction models.Transaction
	// Replayed is set when IdempotencyReplay found an earlier transaction
	// and nothing new was written.
	Replayed bool
}

type Options struct {
	StoreTimeout time.Duration
	LockTimeout  time.Duration
	MaxRetries   uint
	RetryInitial time.Duration
	RetryMax     time.Duration
}

func DefaultOptions() Options {
	return Options{
		StoreTimeout: 5 * time.Second,
		LockTimeout:  10 * time.Second,
		MaxRetries:   4,
		RetryInitial: 50 * time.Millisecond,
		RetryMax:     time.Second,
	}
}

type Engine struct {
	store  Store
	locker lock.Locker
	opts   Options
	tracer trace.Tracer
	now    func() time.Time
}

func NewEngine(store Store, locker lock.Locker, opts Options) *Engine {
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	def := DefaultOptions()
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = def.StoreTimeout
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = def.LockTimeout
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = def.MaxRetries
	}
	if opts.RetryInitial <= 0 {
		opts.RetryInitial = def.RetryInitial
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = def.RetryMax
	}
	return &Engine{
		store:  store,
		locker: locker,
		opts:   opts,
		tracer: otel.Tracer("affluence/ledger"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) Store() Store { return e.store }

// SetClock replaces the time source used for transaction timestamps.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

func (e *Engine) Now() time.Time { return e.now() }

// Post applies p atomically and returns the committed balance.
func (e *Engine) Post(ctx context.Context, p Posting) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "ledger.Post", trace.WithAttributes(
		attribute.Int64("user_id", int64(p.UserID)),
		attribute.String("bucket", string(p.Bucket)),
		attribute.String("type", string(p.Type)),
		attribute.String("source", string(p.Source)),
	))
	defer span.End()

	var res *Result
	err := e.Run(ctx, p.UserID, func(tx Tx) error {
		r, err := e.PostTx(tx, p)
		res = r
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return res, nil
}

// Run executes fn inside one store transaction while holding userID's lock.
// Transient store failures are retried with bounded backoff, so fn may run
// more than once and must not leak state between attempts.
func (e *Engine) Run(ctx context.Context, userID uint, fn func(tx Tx) error) error {
	lockCtx, cancel := context.WithTimeout(ctx, e.opts.LockTimeout)
	unlock, err := e.locker.Lock(lockCtx, userLockKey(userID))
	cancel()
	if err != nil {
		return fmt.Errorf("%w: lock user %d: %v", ErrStoreUnavailable, userID, err)
	}
	defer unlock()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.opts.RetryInitial
	b.MaxInterval = e.opts.RetryMax

	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		actx, cancel := context.WithTimeout(ctx, e.opts.StoreTimeout)
		defer cancel()
		err := e.store.InUserTx(actx, userID, fn)
		if err == nil {
			return struct{}{}, nil
		}
		if isTransient(err) && ctx.Err() == nil {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(e.opts.MaxRetries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			log.Printf("[ledger] user %d attempt %d failed, retrying in %s: %v", userID, attempt, wait, err)
		}),
	)
	if err == nil {
		return nil
	}
	if isTransient(err) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}

// PostTx applies p inside an open unit of work. Callers that need more than
// one write in the same unit (coupon redemption) use it through Run.
func (e *Engine) PostTx(tx Tx, p Posting) (*Result, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	u := tx.User()
	if !u.IsActive && !p.AllowInactive {
		return nil, fmt.Errorf("%w: user %d", ErrUserInactive, u.ID)
	}

	if p.Idempotency != IdempotencyNone {
		prev, err := tx.FindByReference(p.Reference)
		if err != nil {
			return nil, err
		}
		if prev != nil {
			if p.Idempotency == IdempotencyReject {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateReference, p.Reference)
			}
			return &Result{Balance: *tx.Balance(), Transaction: *prev, Replayed: true}, nil
		}
	}

	next := *tx.Balance()
	if err := ApplyDelta(&next, p.Bucket, p.Type.Signed(p.Amount)); err != nil {
		return nil, err
	}
	if err := tx.SaveBalance(&next); err != nil {
		return nil, err
	}
	t := models.Transaction{
		UserID:      p.UserID,
		Type:        p.Type,
		BalanceType: p.Bucket,
		Amount:      p.Amount,
		Source:      p.Source,
		Reference:   p.Reference,
		Actor:       p.Actor,
		CreatedAt:   e.now(),
	}
	if err := tx.AppendTransaction(&t); err != nil {
		return nil, err
	}
	return &Result{Balance: *tx.Balance(), Transaction: t}, nil
}

func validate(p Posting) error {
	if p.UserID == 0 {
		return ErrUserNotFound
	}
	if !p.Bucket.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidBucket, string(p.Bucket))
	}
	if !p.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidEntryType, string(p.Type))
	}
	if p.Amount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, p.Amount)
	}
	if !p.Source.Valid() {
		return fmt.Errorf("ledger: unknown source %q", string(p.Source))
	}
	if p.Idempotency != IdempotencyNone && p.Reference == "" {
		return ErrMissingReference
	}
	return nil
}

func isTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

func userLockKey(userID uint) string {
	return fmt.Sprintf("user:%d", userID)
}
