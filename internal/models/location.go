package models

import "time"

// Location is a point of interest. Locations are immutable once created.
type Location struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:200;not null;index" json:"name"`
	Category    string    `gorm:"size:50;not null;index;default:general" json:"category"`
	Latitude    float64   `gorm:"not null;index:idx_locations_lat_lng" json:"latitude"`
	Longitude   float64   `gorm:"not null;index:idx_locations_lat_lng" json:"longitude"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	Address     string    `gorm:"size:500" json:"address,omitempty"`
	Phone       string    `gorm:"size:20" json:"phone,omitempty"`
	Rating      float64   `gorm:"not null;default:0" json:"rating"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// NearbyLocation pairs a location with its distance from the query center.
type NearbyLocation struct {
	Location
	DistanceKm float64 `json:"distance_km"`
}
