package models

import "time"

// Click is a single resolution of a short link. Rows are append-only and the
// click log is the source of truth for analytics.
type Click struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	LinkID    uint      `gorm:"not null;index" json:"link_id"`
	ClickedAt time.Time `gorm:"not null;index" json:"clicked_at"`
	Referrer  *string   `gorm:"type:text" json:"referrer,omitempty"`
	UserAgent *string   `gorm:"type:text" json:"user_agent,omitempty"`
}
