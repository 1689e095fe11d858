// Package store is the persistence boundary of the engine. Every correctness
// critical invariant (short code uniqueness, counts) lives behind it.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sniplinks/sniplinks/pkg/sniplinks/models"
)

var (
	// ErrNotFound is returned when no link matches a short code.
	ErrNotFound = errors.New("link not found")
	// ErrUniqueViolation is returned when an insert collides on short_code.
	ErrUniqueViolation = errors.New("short code already exists")
	// ErrTimeout is returned when a store operation exceeds its deadline.
	ErrTimeout = errors.New("store operation timed out")
)

// LinkStore is the contract the engine consumes.
type LinkStore interface {
	// FindLinkByCode returns ErrNotFound when no link has code.
	FindLinkByCode(ctx context.Context, code string) (*models.Link, error)
	// InsertLinkUnique inserts link atomically, failing with
	// ErrUniqueViolation if the short code is taken. No prior existence
	// check is made.
	InsertLinkUnique(ctx context.Context, link *models.Link) error
	// IncrementClickCount adds one to the link's cached counter.
	IncrementClickCount(ctx context.Context, linkID uint) error
	// InsertClick appends to the click log.
	InsertClick(ctx context.Context, click *models.Click) error
	// CountLinksForOwnerInRange counts owner's links created in [start, end).
	CountLinksForOwnerInRange(ctx context.Context, owner string, start, end time.Time) (int64, error)
	// GetSubscriptionTier returns free for accounts without a profile.
	GetSubscriptionTier(ctx context.Context, owner string) (models.Tier, error)
}

// DailyClicks is the number of clicks on one UTC day.
type DailyClicks struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// ReferrerClicks is the number of clicks carrying one referrer.
type ReferrerClicks struct {
	Referrer string `json:"referrer"`
	Count    int64  `json:"count"`
}

// ClickStats summarizes a link's click log.
type ClickStats struct {
	TotalClicks  int64            `json:"total_clicks"`
	Daily        []DailyClicks    `json:"daily"`
	TopReferrers []ReferrerClicks `json:"top_referrers"`
}

// LinkLister serves the owner-facing listing endpoints.
type LinkLister interface {
	ListLinksForOwner(ctx context.Context, owner string, limit, offset int) ([]models.Link, int64, error)
	ClickStats(ctx context.Context, linkID uint, since time.Time) (*ClickStats, error)
}

// ClickCounter rebuilds cached counters from the click log.
type ClickCounter interface {
	// SyncClickCounts sets click_count to the click log count wherever the
	// two differ and returns the number of links corrected.
	SyncClickCounts(ctx context.Context) (int64, error)
}

// IsNotFound reports whether err is a not-found condition.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsUniqueViolation reports whether err is a short code collision.
func IsUniqueViolation(err error) bool { return errors.Is(err, ErrUniqueViolation) }

// IsTimeout reports whether err is a store deadline.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }
