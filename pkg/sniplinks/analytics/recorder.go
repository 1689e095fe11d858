// Package analytics records redirect clicks off the request path.
//
// The click log is authoritative. links.click_count is a cache of it that
// the Reconciler repairs when a best-effort increment was lost.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/models"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/report"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/store"
)

// MaxAttempts bounds the tries per write.
const MaxAttempts = 3

// Event is one redirect to be recorded.
type Event struct {
	LinkID    uint
	ClickedAt time.Time
	Referrer  string
	UserAgent string
	// RequestID tags reports with the redirect that produced the click.
	RequestID string
}

// ClickStore is the slice of the link store the recorder writes to.
type ClickStore interface {
	InsertClick(ctx context.Context, click *models.Click) error
	IncrementClickCount(ctx context.Context, linkID uint) error
}

// Recorder writes click rows and bumps the link counter.
type Recorder struct {
	store    ClickStore
	reporter report.Reporter
	backoff  time.Duration
}

// NewRecorder creates a recorder. A nil reporter discards reports.
func NewRecorder(st ClickStore, reporter report.Reporter) *Recorder {
	if reporter == nil {
		reporter = report.Discard
	}
	return &Recorder{store: st, reporter: reporter, backoff: 25 * time.Millisecond}
}

// Record stores ev. Both writes are attempted even if the first fails; the
// joined failures are returned after being reported.
func (r *Recorder) Record(ctx context.Context, ev Event) error {
	if ev.ClickedAt.IsZero() {
		ev.ClickedAt = time.Now()
	}
	click := &models.Click{
		ID:        uuid.NewString(),
		LinkID:    ev.LinkID,
		ClickedAt: ev.ClickedAt.UTC(),
		Referrer:  optional(ev.Referrer),
		UserAgent: optional(ev.UserAgent),
	}

	// click.ID is fixed across attempts, so a duplicate on a retry means an
	// earlier attempt that timed out had committed.
	attempts := 0
	clickErr := r.retry(ctx, func(ctx context.Context) error {
		attempts++
		err := r.store.InsertClick(ctx, click)
		if attempts > 1 && store.IsUniqueViolation(err) {
			return nil
		}
		return err
	})
	if clickErr != nil {
		clickErr = fmt.Errorf("insert click: %w", clickErr)
		r.reporter.Report(clickErr, "record click", r.fields(ev, "click_id", click.ID)...)
	}

	countErr := r.retry(ctx, func(ctx context.Context) error {
		return r.store.IncrementClickCount(ctx, ev.LinkID)
	})
	if countErr != nil {
		countErr = fmt.Errorf("increment click count: %w", countErr)
		r.reporter.Report(countErr, "increment click count", r.fields(ev)...)
	}

	return errors.Join(clickErr, countErr)
}

func (r *Recorder) fields(ev Event, extra ...any) []any {
	fields := append([]any{"link_id", ev.LinkID}, extra...)
	if ev.RequestID != "" {
		fields = append(fields, "request_id", ev.RequestID)
	}
	return fields
}

// retry runs fn until it succeeds, MaxAttempts is reached, ctx runs out or
// the failure is not worth repeating. Store timeouts are retried while ctx
// still has time left.
func (r *Recorder) retry(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if store.IsNotFound(err) || ctx.Err() != nil {
			return err
		}
		if attempt == MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(r.backoff * time.Duration(attempt)):
		}
	}
	return err
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
