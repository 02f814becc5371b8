// Command reconcile replays users' transaction logs and repairs drifted
// balances.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"affluence/config"
	"affluence/internal/app"
	"affluence/internal/ledger"
	"affluence/internal/service"
)

type runOptions struct {
	UserID     uint
	All        bool
	DryRun     bool
	Actor      string
	JSONOutput bool
}

func main() {
	var userID uint
	var all bool
	var dryRun bool
	var actor string
	var timeout time.Duration
	var jsonOutput bool

	flag.UintVar(&userID, "user", 0, "reconcile a single user ID")
	flag.BoolVar(&all, "all", false, "reconcile every user")
	flag.BoolVar(&dryRun, "dry-run", false, "report drift without repairing it")
	flag.StringVar(&actor, "actor", "cli", "actor recorded on repairs and audit logs")
	flag.DurationVar(&timeout, "timeout", 10*time.Minute, "give up after this long (0 = no limit)")
	flag.BoolVar(&jsonOutput, "json", false, "output JSON reports")
	flag.Parse()

	if (userID == 0) == !all {
		fmt.Fprintln(os.Stderr, "Error: pass exactly one of -user or -all")
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: close: %v\n", err)
		}
	}()

	code := run(ctx, a.Admin, runOptions{
		UserID:     userID,
		All:        all,
		DryRun:     dryRun,
		Actor:      actor,
		JSONOutput: jsonOutput,
	}, os.Stdout, os.Stderr)
	if code != 0 {
		a.Close()
		os.Exit(code)
	}
}

// run returns the process exit code: 0 when clean or repaired, 1 on errors,
// 3 when a dry run found drift.
func run(ctx context.Context, admin *service.AdminService, opts runOptions, stdout, stderr io.Writer) int {
	actor := service.Actor{Role: "system", Username: opts.Actor}
	if opts.All {
		sum, err := admin.ReconcileAll(ctx, actor, opts.DryRun)
		if sum == nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		if opts.JSONOutput {
			outputJSON(stdout, sum)
		} else {
			printSummary(stdout, sum, opts.DryRun)
		}
		switch {
		case err != nil:
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		case opts.DryRun && sum.Drifted > 0:
			return 3
		}
		return 0
	}

	r, err := admin.Reconcile(ctx, actor, opts.UserID, opts.DryRun)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		outputJSON(stdout, r)
	} else {
		printReport(stdout, r)
	}
	if opts.DryRun && errors.Is(r.Err(), ledger.ErrReconciliationMismatch) {
		return 3
	}
	return 0
}

func printReport(w io.Writer, r *ledger.Report) {
	fmt.Fprintf(w, "user %d: %d transactions replayed\n", r.UserID, r.Transactions)
	if len(r.Drifts) == 0 {
		fmt.Fprintln(w, "  balances match")
		return
	}
	for _, d := range r.Drifts {
		fmt.Fprintf(w, "  %-10s stored=%d computed=%d delta=%+d\n", d.Name(), d.Stored, d.Computed, d.Delta())
	}
	if r.Repaired {
		fmt.Fprintln(w, "  repaired")
	} else {
		fmt.Fprintln(w, "  not repaired (dry run)")
	}
}

func printSummary(w io.Writer, s *ledger.Summary, dryRun bool) {
	if dryRun {
		fmt.Fprintf(w, "checked %d users, %d drifted (dry run), %d failed\n", s.Checked, s.Drifted, s.Failed)
	} else {
		fmt.Fprintf(w, "checked %d users, %d drifted, %d repaired, %d failed\n", s.Checked, s.Drifted, s.Repaired, s.Failed)
	}
	for _, id := range s.Failures {
		fmt.Fprintf(w, "  failed: user %d\n", id)
	}
}

func outputJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
