package models

import "time"

// Link is a short code mapped to a target URL.
// ExpiresAt nil means the link never expires. Clicks only ever grows.
type Link struct {
	ID        uint       `gorm:"primaryKey" json:"-"`
	ShortCode string     `gorm:"uniqueIndex;size:32;not null" json:"code"`
	LongURL   string     `gorm:"size:2048;not null" json:"original_url"`
	Custom    bool       `gorm:"not null;default:false" json:"custom"`
	Clicks    int64      `gorm:"not null;default:0" json:"clicks"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	ExpiresAt *time.Time `gorm:"index" json:"expires_at,omitempty"`
}

// ExpiredAt reports whether the link is expired at instant now.
// A link whose expiry equals now is still active.
func (l *Link) ExpiredAt(now time.Time) bool {
	return l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}

// LinkStats is the read-only view returned by the stats endpoint.
type LinkStats struct {
	Code         string      `json:"code"`
	OriginalURL  string      `json:"original_url"`
	Clicks       int64       `json:"clicks"`
	CreatedAt    time.Time   `json:"created_at"`
	ExpiresAt    *time.Time  `json:"expires_at,omitempty"`
	Active       bool        `json:"active"`
	RecentClicks []time.Time `json:"recent_clicks"`
}
