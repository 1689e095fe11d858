package models

import "time"

// Link maps a short code to a destination URL.
// ShortCode is unique across all links; the unique index is the only thing
// that guarantees it. ClickCount is a cache of the click log.
type Link struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time `gorm:"index:idx_links_owner_created,priority:2" json:"created_at"`
	OriginalURL string    `gorm:"not null" json:"original_url"`
	ShortCode   string    `gorm:"uniqueIndex;size:64;not null" json:"short_code"`
	OwnerID     *string   `gorm:"size:64;index:idx_links_owner_created,priority:1" json:"owner_id,omitempty"`
	ClickCount  uint      `gorm:"default:0;not null" json:"click_count"`
}

// IsAnonymous reports whether the link was created without an account.
func (l *Link) IsAnonymous() bool {
	return l.OwnerID == nil
}

// OwnedBy reports whether owner created the link.
func (l *Link) OwnedBy(owner string) bool {
	return l.OwnerID != nil && *l.OwnerID == owner
}
