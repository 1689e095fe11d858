// Package quota decides whether an account may create another link this
// calendar month.
//
// The count-then-insert sequence is not serialized per account: two
// concurrent requests from the same free account can both observe
// current = limit-1 and both succeed, leaving the account one link over.
// That overshoot is accepted; the limit is a product rule, not an invariant.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/sniplinks/sniplinks/pkg/sniplinks/models"
)

// DefaultFreeMonthlyLimit is the number of links a free account may create
// per calendar month.
const DefaultFreeMonthlyLimit = 10

// CountStore is the slice of the link store the enforcer reads.
type CountStore interface {
	CountLinksForOwnerInRange(ctx context.Context, owner string, start, end time.Time) (int64, error)
}

// Decision is the outcome of a quota check. Current and Limit are filled
// for metered tiers.
type Decision struct {
	Allowed   bool  `json:"allowed"`
	Unlimited bool  `json:"unlimited"`
	Current   int64 `json:"current"`
	Limit     int64 `json:"limit"`
}

// Enforcer applies the monthly link limit.
type Enforcer struct {
	store CountStore
	limit int64
	now   func() time.Time
}

// NewEnforcer creates an enforcer. A non-positive limit uses
// DefaultFreeMonthlyLimit.
func NewEnforcer(store CountStore, limit int64) *Enforcer {
	if limit <= 0 {
		limit = DefaultFreeMonthlyLimit
	}
	return &Enforcer{store: store, limit: limit, now: time.Now}
}

// WithClock returns a copy of e reading the time from now.
func (e *Enforcer) WithClock(now func() time.Time) *Enforcer {
	cp := *e
	cp.now = now
	return &cp
}

// Limit returns the free-tier monthly limit.
func (e *Enforcer) Limit() int64 { return e.limit }

// CheckAndReserve reports whether owner, on tier, may create one more link.
// Premium tiers are allowed without touching the store.
func (e *Enforcer) CheckAndReserve(ctx context.Context, owner string, tier models.Tier) (Decision, error) {
	if tier.Premium() {
		return Decision{Allowed: true, Unlimited: true}, nil
	}

	start, end := MonthWindow(e.now())
	current, err := e.store.CountLinksForOwnerInRange(ctx, owner, start, end)
	if err != nil {
		return Decision{}, fmt.Errorf("count links for %s: %w", owner, err)
	}
	return Decision{
		Allowed: current < e.limit,
		Current: current,
		Limit:   e.limit,
	}, nil
}

// MonthWindow returns [start of now's month, start of next month) in UTC.
func MonthWindow(now time.Time) (start, end time.Time) {
	now = now.UTC()
	start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
