package models

import "time"

// Click is one recorded redirect of a short link, kept for analytics.
type Click struct {
	ID        uint      `gorm:"primaryKey"`
	ShortCode string    `gorm:"index;size:32;not null"`
	Timestamp time.Time `gorm:"index"`
	UserAgent string    `gorm:"size:255"`
	IPAddress string    `gorm:"size:50"` // fits IPv6
}

// ClickEvent is the lightweight value passed from the redirect handler
// to the click recorder through a channel.
type ClickEvent struct {
	ShortCode string
	Timestamp time.Time
	UserAgent string
	IPAddress string
}

// MaxRecentClicks bounds the click log kept per link.
const MaxRecentClicks = 100
