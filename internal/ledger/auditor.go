package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"affluence/internal/domain"
	"affluence/internal/models"
)

// Drift is one cached value that disagrees with the transaction log. An empty
// Bucket means the cached total.
type Drift struct {
	Bucket   domain.Bucket `json:"bucket"`
	Stored   int64         `json:"stored"`
	Computed int64         `json:"computed"`
}

func (d Drift) Delta() int64 { return d.Computed - d.Stored }

func (d Drift) Name() string {
	if d.Bucket == "" {
		return "total"
	}
	return string(d.Bucket)
}

type Report struct {
	UserID       uint           `json:"user_id"`
	Transactions int            `json:"transactions"`
	Stored       models.Balance `json:"stored"`
	Computed     models.Balance `json:"computed"`
	Drifts       []Drift        `json:"drifts"`
	Repaired     bool           `json:"repaired"`
}

// Err wraps ErrReconciliationMismatch when drift was found. The mismatch is
// informational: Reconcile has already repaired it.
func (r *Report) Err() error {
	if len(r.Drifts) == 0 {
		return nil
	}
	return fmt.Errorf("%w: user %d has %d drifted value(s)", ErrReconciliationMismatch, r.UserID, len(r.Drifts))
}

type Summary struct {
	Checked  int    `json:"checked"`
	Drifted  int    `json:"drifted"`
	Repaired int    `json:"repaired"`
	Failed   int    `json:"failed"`
	Failures []uint `json:"failures,omitempty"`
}

// Auditor replays the transaction log and corrects cached balances. It is
// the only path besides the Engine that writes balances, and it never touches
// transactions.
type Auditor struct {
	engine    *Engine
	tolerance int64
	workers   int
}

func NewAuditor(engine *Engine, toleranceKobo int64, workers int) *Auditor {
	if workers <= 0 {
		workers = 1
	}
	if toleranceKobo < 0 {
		toleranceKobo = 0
	}
	return &Auditor{engine: engine, tolerance: toleranceKobo, workers: workers}
}

// Check compares userID's balance with its log without writing anything.
func (a *Auditor) Check(ctx context.Context, userID uint) (*Report, error) {
	return a.run(ctx, userID, "", false)
}

// Reconcile compares userID's balance with its log and repairs any drift,
// holding the same lock as Post so no posting interleaves with the replay.
func (a *Auditor) Reconcile(ctx context.Context, userID uint, actor string) (*Report, error) {
	return a.run(ctx, userID, actor, true)
}

func (a *Auditor) run(ctx context.Context, userID uint, actor string, repair bool) (*Report, error) {
	ctx, span := a.engine.tracer.Start(ctx, "ledger.Reconcile", trace.WithAttributes(
		attribute.Int64("user_id", int64(userID)),
		attribute.Bool("repair", repair),
	))
	defer span.End()

	var report *Report
	err := a.engine.Run(ctx, userID, func(tx Tx) error {
		r, err := a.compare(tx, userID)
		if err != nil {
			return err
		}
		if repair && len(r.Drifts) > 0 {
			if err := a.repair(tx, r, actor); err != nil {
				return err
			}
		}
		report = r
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if report.Repaired {
		for _, d := range report.Drifts {
			log.Printf("[reconcile] user %d %s: %s -> %s (%+d kobo) by %q",
				userID, d.Name(), domain.FormatKobo(d.Stored), domain.FormatKobo(d.Computed), d.Delta(), actor)
		}
	}
	span.SetAttributes(attribute.Int("drifts", len(report.Drifts)))
	return report, nil
}

func (a *Auditor) compare(tx Tx, userID uint) (*Report, error) {
	stored := *tx.Balance()
	computed := models.Balance{ID: stored.ID, UserID: userID, Version: stored.Version}
	n := 0
	for t, err := range Replay(tx.TransactionsAfter, DefaultPageSize) {
		if err != nil {
			return nil, err
		}
		cur, err := computed.Bucket(t.BalanceType)
		if err != nil {
			return nil, fmt.Errorf("%w: transaction %d: %v", ErrInvalidBucket, t.ID, err)
		}
		if !t.Type.Valid() {
			return nil, fmt.Errorf("%w: transaction %d: %q", ErrInvalidEntryType, t.ID, string(t.Type))
		}
		if err := computed.SetBucket(t.BalanceType, cur+t.Signed()); err != nil {
			return nil, err
		}
		n++
	}
	computed.TotalBalance = computed.Sum()

	r := &Report{UserID: userID, Transactions: n, Stored: stored, Computed: computed}
	for _, b := range domain.Buckets {
		s, _ := stored.Bucket(b)
		c, _ := computed.Bucket(b)
		if abs(s-c) > a.tolerance {
			r.Drifts = append(r.Drifts, Drift{Bucket: b, Stored: s, Computed: c})
		}
	}
	// The total is derived, so it must equal the sum of the buckets it will
	// end up with exactly. Tolerance only applies to bucket drift.
	var want int64
	for _, b := range domain.Buckets {
		v, _ := stored.Bucket(b)
		for _, d := range r.Drifts {
			if d.Bucket == b {
				v = d.Computed
			}
		}
		want += v
	}
	if stored.TotalBalance != want {
		r.Drifts = append(r.Drifts, Drift{Stored: stored.TotalBalance, Computed: want})
	}
	return r, nil
}

func (a *Auditor) repair(tx Tx, r *Report, actor string) error {
	next := r.Stored
	for _, d := range r.Drifts {
		if d.Bucket == "" {
			continue
		}
		if err := next.SetBucket(d.Bucket, d.Computed); err != nil {
			return err
		}
		if d.Computed < 0 {
			log.Printf("[reconcile] user %d %s replays to a negative balance %s", r.UserID, d.Bucket, domain.FormatKobo(d.Computed))
		}
	}
	next.TotalBalance = next.Sum()
	if err := tx.SaveBalance(&next); err != nil {
		return err
	}
	now := a.engine.now()
	for _, d := range r.Drifts {
		after := d.Computed
		if d.Bucket == "" {
			after = next.TotalBalance
		}
		if err := tx.RecordRepair(&models.BalanceRepair{
			UserID:    r.UserID,
			Bucket:    d.Bucket,
			Before:    d.Stored,
			After:     after,
			Delta:     after - d.Stored,
			Actor:     actor,
			CreatedAt: now,
		}); err != nil {
			return err
		}
	}
	r.Repaired = true
	return nil
}

// ReconcileAll reconciles every user. Users are independent: a failure on one
// is counted and logged without stopping the rest.
func (a *Auditor) ReconcileAll(ctx context.Context, actor string) (*Summary, error) {
	return a.all(ctx, actor, true)
}

// CheckAll is ReconcileAll without writes.
func (a *Auditor) CheckAll(ctx context.Context) (*Summary, error) {
	return a.all(ctx, "", false)
}

func (a *Auditor) all(ctx context.Context, actor string, repair bool) (*Summary, error) {
	var (
		mu  sync.Mutex
		sum Summary
		g   errgroup.Group
	)
	g.SetLimit(a.workers)

	store := a.engine.store
	var after uint
	for {
		ids, err := store.UserIDsAfter(ctx, after, DefaultPageSize)
		if err != nil {
			_ = g.Wait()
			return &sum, fmt.Errorf("list users: %w", err)
		}
		for _, id := range ids {
			g.Go(func() error {
				r, err := a.run(ctx, id, actor, repair)
				mu.Lock()
				defer mu.Unlock()
				sum.Checked++
				if err != nil {
					sum.Failed++
					sum.Failures = append(sum.Failures, id)
					log.Printf("[reconcile] user %d: %v", id, err)
					return nil
				}
				if len(r.Drifts) > 0 {
					sum.Drifted++
				}
				if r.Repaired {
					sum.Repaired++
				}
				return nil
			})
		}
		if len(ids) < DefaultPageSize {
			break
		}
		after = ids[len(ids)-1]
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return &sum, err
	}
	if sum.Failed > 0 {
		return &sum, fmt.Errorf("reconcile: %d of %d users failed", sum.Failed, sum.Checked)
	}
	return &sum, nil
}

// IsMismatch reports whether err is the informational drift error.
func IsMismatch(err error) bool {
	return errors.Is(err, ErrReconciliationMismatch)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
