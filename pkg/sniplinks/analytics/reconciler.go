package analytics

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/report"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/store"
)

// DefaultReconcileSchedule is how often click counters are rebuilt.
const DefaultReconcileSchedule = "@every 15m"

// Reconciler periodically resets click_count from the click log.
type Reconciler struct {
	counter  store.ClickCounter
	reporter report.Reporter
	timeout  time.Duration
	cron     *cron.Cron
}

// NewReconciler creates a reconciler. Call Start to schedule it.
func NewReconciler(counter store.ClickCounter, reporter report.Reporter) *Reconciler {
	if reporter == nil {
		reporter = report.Discard
	}
	return &Reconciler{
		counter:  counter,
		reporter: reporter,
		timeout:  time.Minute,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// RunOnce syncs every drifted counter and returns how many were fixed.
func (r *Reconciler) RunOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	fixed, err := r.counter.SyncClickCounts(ctx)
	if err != nil {
		r.reporter.Report(err, "reconcile click counts")
		return 0, err
	}
	if fixed > 0 {
		log.Printf("[RECONCILE] Corrected click_count on %d links", fixed)
	}
	return fixed, nil
}

// Start schedules RunOnce on spec, e.g. "@every 15m" or "0 3 * * *".
func (r *Reconciler) Start(spec string) error {
	if _, err := r.cron.AddFunc(spec, func() {
		r.RunOnce(context.Background())
	}); err != nil {
		return err
	}
	r.cron.Start()
	log.Printf("[RECONCILE] Scheduler started (%s)", spec)
	return nil
}

// Stop halts the schedule and waits for a running sync to finish or ctx to
// end.
func (r *Reconciler) Stop(ctx context.Context) error {
	select {
	case <-r.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
