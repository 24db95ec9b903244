package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/axellelanca/locashare/internal/models"
)

// ClickRepository stores the per-click log used by link stats.
type ClickRepository interface {
	CreateClick(ctx context.Context, click *models.Click) error
	// RecentClicks returns up to limit click timestamps, newest first.
	RecentClicks(ctx context.Context, shortCode string, limit int) ([]time.Time, error)
}

// GormClickRepository stores the click log with GORM.
type GormClickRepository struct {
	db *gorm.DB
}

var _ ClickRepository = (*GormClickRepository)(nil)

func NewClickRepository(db *gorm.DB) *GormClickRepository {
	return &GormClickRepository{db: db}
}

// CreateClick appends one click to the log.
func (r *GormClickRepository) CreateClick(ctx context.Context, click *models.Click) error {
	if err := r.db.WithContext(ctx).Create(click).Error; err != nil {
		return storeErr("clicks.Create", err)
	}
	return nil
}

func (r *GormClickRepository) RecentClicks(ctx context.Context, shortCode string, limit int) ([]time.Time, error) {
	var stamps []time.Time
	err := r.db.WithContext(ctx).Model(&models.Click{}).
		Where("short_code = ?", shortCode).
		Order("timestamp DESC").Order("id DESC").
		Limit(limit).
		Pluck("timestamp", &stamps).Error
	if err != nil {
		return nil, storeErr("clicks.Recent", err)
	}
	return stamps, nil
}
