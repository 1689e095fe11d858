package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sniplinks/sniplinks/pkg/sniplinks/models"
	"gorm.io/gorm"
)

// DefaultTimeout bounds each store operation.
const DefaultTimeout = 2 * time.Second

// GormStore implements LinkStore, LinkLister and ClickCounter over GORM.
type GormStore struct {
	db      *gorm.DB
	timeout time.Duration
}

// NewGormStore wraps db. A non-positive timeout uses DefaultTimeout.
func NewGormStore(db *gorm.DB, timeout time.Duration) *GormStore {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &GormStore{db: db, timeout: timeout}
}

var (
	_ LinkStore    = (*GormStore)(nil)
	_ LinkLister   = (*GormStore)(nil)
	_ ClickCounter = (*GormStore)(nil)
)

// withTimeout returns a session bound to ctx with the store deadline applied.
func (s *GormStore) withTimeout(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	return s.db.WithContext(ctx), cancel
}

// translate maps driver errors onto the store's sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), isUniqueMessage(err):
		return ErrUniqueViolation
	}
	return err
}

// isUniqueMessage catches drivers GORM cannot translate (libsql).
func isUniqueMessage(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "sqlstate 23505")
}

// FindLinkByCode implements LinkStore.
func (s *GormStore) FindLinkByCode(ctx context.Context, code string) (*models.Link, error) {
	db, cancel := s.withTimeout(ctx)
	defer cancel()

	var link models.Link
	if err := db.Where("short_code = ?", code).Take(&link).Error; err != nil {
		return nil, translate(err)
	}
	return &link, nil
}

// InsertLinkUnique implements LinkStore.
func (s *GormStore) InsertLinkUnique(ctx context.Context, link *models.Link) error {
	db, cancel := s.withTimeout(ctx)
	defer cancel()

	return translate(db.Create(link).Error)
}

// IncrementClickCount implements LinkStore.
func (s *GormStore) IncrementClickCount(ctx context.Context, linkID uint) error {
	db, cancel := s.withTimeout(ctx)
	defer cancel()

	res := db.Model(&models.Link{}).Where("id = ?", linkID).
		UpdateColumn("click_count", gorm.Expr("click_count + 1"))
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertClick implements LinkStore.
func (s *GormStore) InsertClick(ctx context.Context, click *models.Click) error {
	db, cancel := s.withTimeout(ctx)
	defer cancel()

	return translate(db.Create(click).Error)
}

// CountLinksForOwnerInRange implements LinkStore.
func (s *GormStore) CountLinksForOwnerInRange(ctx context.Context, owner string, start, end time.Time) (int64, error) {
	db, cancel := s.withTimeout(ctx)
	defer cancel()

	var count int64
	err := db.Model(&models.Link{}).
		Where("owner_id = ? AND created_at >= ? AND created_at < ?", owner, start, end).
		Count(&count).Error
	return count, translate(err)
}

// GetSubscriptionTier implements LinkStore.
func (s *GormStore) GetSubscriptionTier(ctx context.Context, owner string) (models.Tier, error) {
	db, cancel := s.withTimeout(ctx)
	defer cancel()

	var profile models.Profile
	if err := db.Where("id = ?", owner).Take(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.TierFree, nil
		}
		return models.TierFree, translate(err)
	}
	return models.ParseTier(string(profile.SubscriptionTier)), nil
}

// ListLinksForOwner implements LinkLister. Links come back newest first along
// with the owner's total link count.
func (s *GormStore) ListLinksForOwner(ctx context.Context, owner string, limit, offset int) ([]models.Link, int64, error) {
	db, cancel := s.withTimeout(ctx)
	defer cancel()

	var total int64
	if err := db.Model(&models.Link{}).Where("owner_id = ?", owner).Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}

	var links []models.Link
	err := db.Where("owner_id = ?", owner).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).Offset(offset).
		Find(&links).Error
	if err != nil {
		return nil, 0, translate(err)
	}
	return links, total, nil
}

// ClickStats implements LinkLister. Daily buckets cover clicks at or after since.
func (s *GormStore) ClickStats(ctx context.Context, linkID uint, since time.Time) (*ClickStats, error) {
	db, cancel := s.withTimeout(ctx)
	defer cancel()

	stats := &ClickStats{Daily: []DailyClicks{}, TopReferrers: []ReferrerClicks{}}
	if err := db.Model(&models.Click{}).Where("link_id = ?", linkID).Count(&stats.TotalClicks).Error; err != nil {
		return nil, translate(err)
	}

	// Bucketing happens here rather than in SQL so the same code serves
	// SQLite and Postgres date functions.
	var clickTimes []time.Time
	err := db.Model(&models.Click{}).
		Where("link_id = ? AND clicked_at >= ?", linkID, since).
		Order("clicked_at ASC").
		Pluck("clicked_at", &clickTimes).Error
	if err != nil {
		return nil, translate(err)
	}
	for _, at := range clickTimes {
		day := at.UTC().Format("2006-01-02")
		if n := len(stats.Daily); n > 0 && stats.Daily[n-1].Date == day {
			stats.Daily[n-1].Count++
			continue
		}
		stats.Daily = append(stats.Daily, DailyClicks{Date: day, Count: 1})
	}

	err = db.Model(&models.Click{}).
		Select("referrer, COUNT(*) AS count").
		Where("link_id = ? AND referrer IS NOT NULL AND referrer <> ''", linkID).
		Group("referrer").
		Order("count DESC").
		Limit(10).
		Scan(&stats.TopReferrers).Error
	if err != nil {
		return nil, translate(err)
	}
	return stats, nil
}

// SyncClickCounts implements ClickCounter.
func (s *GormStore) SyncClickCounts(ctx context.Context) (int64, error) {
	db, cancel := s.withTimeout(ctx)
	defer cancel()

	counts := db.Model(&models.Click{}).Select("COUNT(*)").Where("clicks.link_id = links.id")
	res := db.Model(&models.Link{}).
		Where("click_count <> (?)", counts).
		UpdateColumn("click_count", counts)
	return res.RowsAffected, translate(res.Error)
}
