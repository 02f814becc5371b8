package worker

import (
	"context"
	"log"
	"time"

	"affluence/internal/ledger"
)

// Reconciler runs the auditor across every user on a fixed interval.
type Reconciler struct {
	Auditor  *ledger.Auditor
	Interval time.Duration
	Actor    string
}

func NewReconciler(a *ledger.Auditor, interval time.Duration) *Reconciler {
	return &Reconciler{Auditor: a, Interval: interval, Actor: "system:reconciler"}
}

// Start blocks until ctx is done. It runs one pass immediately.
func (r *Reconciler) Start(ctx context.Context) {
	if r.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	log.Printf("[reconcile] background worker started, every %s", r.Interval)

	r.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[reconcile] background worker stopped")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single pass and returns its summary.
func (r *Reconciler) RunOnce(ctx context.Context) *ledger.Summary {
	start := time.Now()
	sum, err := r.Auditor.ReconcileAll(ctx, r.Actor)
	if sum == nil {
		log.Printf("[reconcile] pass failed: %v", err)
		return nil
	}
	if err != nil {
		log.Printf("[reconcile] pass finished with errors: %v", err)
	}
	log.Printf("[reconcile] checked %d users, %d drifted, %d repaired, %d failed in %s",
		sum.Checked, sum.Drifted, sum.Repaired, sum.Failed, time.Since(start).Round(time.Millisecond))
	return sum
}
