package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	customerrors "github.com/axellelanca/locashare/internal/errors"
	"github.com/axellelanca/locashare/internal/models"
)

// LinkRepository defines data access for short links. Implementations must
// make CreateLink and IncrementClicks atomic in the store.
type LinkRepository interface {
	// CreateLink inserts the link, failing with a Conflict error when the
	// code is already taken.
	CreateLink(ctx context.Context, link *models.Link) error
	// ReplaceExpiredLink overwrites the link stored under link.ShortCode only
	// if that link is expired at now. Conflict when it is still active.
	ReplaceExpiredLink(ctx context.Context, link *models.Link, now time.Time) error
	GetLinkByShortCode(ctx context.Context, shortCode string) (*models.Link, error)
	GetAllLinks(ctx context.Context, limit int) ([]models.Link, error)
	IncrementClicks(ctx context.Context, shortCode string) error
	DeleteLink(ctx context.Context, shortCode string) error
	// PurgeExpired removes links that expired before the cutoff.
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// GormLinkRepository implements LinkRepository on GORM.
type GormLinkRepository struct {
	db *gorm.DB
}

var _ LinkRepository = (*GormLinkRepository)(nil)

// NewLinkRepository returns a GORM-backed link repository.
func NewLinkRepository(db *gorm.DB) *GormLinkRepository {
	return &GormLinkRepository{db: db}
}

func (r *GormLinkRepository) CreateLink(ctx context.Context, link *models.Link) error {
	if err := r.db.WithContext(ctx).Create(link).Error; err != nil {
		if isUniqueViolation(err) {
			return customerrors.Conflict("links.Create", "short code %q already in use", link.ShortCode)
		}
		return storeErr("links.Create", err)
	}
	return nil
}

func (r *GormLinkRepository) ReplaceExpiredLink(ctx context.Context, link *models.Link, now time.Time) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Link{}).
			Where("short_code = ? AND expires_at IS NOT NULL AND expires_at < ?", link.ShortCode, now).
			Updates(map[string]any{
				"long_url":   link.LongURL,
				"custom":     link.Custom,
				"clicks":     0,
				"created_at": link.CreatedAt,
				"expires_at": link.ExpiresAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return customerrors.Conflict("links.Replace", "short code %q already in use", link.ShortCode)
		}
		// the old link's history goes with it
		if err := tx.Where("short_code = ?", link.ShortCode).Delete(&models.Click{}).Error; err != nil {
			return err
		}
		return tx.Where("short_code = ?", link.ShortCode).First(link).Error
	})
	return storeErr("links.Replace", err)
}

// GetLinkByShortCode loads a link by its short code.
func (r *GormLinkRepository) GetLinkByShortCode(ctx context.Context, shortCode string) (*models.Link, error) {
	var link models.Link
	if err := r.db.WithContext(ctx).Where("short_code = ?", shortCode).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, customerrors.NotFound("links.Get", "short code %q not found", shortCode)
		}
		return nil, storeErr("links.Get", err)
	}
	return &link, nil
}

// GetAllLinks returns the newest links first.
func (r *GormLinkRepository) GetAllLinks(ctx context.Context, limit int) ([]models.Link, error) {
	var links []models.Link
	q := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&links).Error; err != nil {
		return nil, storeErr("links.List", err)
	}
	return links, nil
}

func (r *GormLinkRepository) IncrementClicks(ctx context.Context, shortCode string) error {
	res := r.db.WithContext(ctx).Model(&models.Link{}).
		Where("short_code = ?", shortCode).
		UpdateColumn("clicks", gorm.Expr("clicks + ?", 1))
	if res.Error != nil {
		return storeErr("links.IncrementClicks", res.Error)
	}
	if res.RowsAffected == 0 {
		return customerrors.NotFound("links.IncrementClicks", "short code %q not found", shortCode)
	}
	return nil
}

func (r *GormLinkRepository) DeleteLink(ctx context.Context, shortCode string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("short_code = ?", shortCode).Delete(&models.Link{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return customerrors.NotFound("links.Delete", "short code %q not found", shortCode)
		}
		return tx.Where("short_code = ?", shortCode).Delete(&models.Click{}).Error
	})
	return storeErr("links.Delete", err)
}

func (r *GormLinkRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	var purged int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		expired := tx.Model(&models.Link{}).
			Select("short_code").
			Where("expires_at IS NOT NULL AND expires_at < ?", before)
		if err := tx.Where("short_code IN (?)", expired).Delete(&models.Click{}).Error; err != nil {
			return err
		}
		res := tx.Where("expires_at IS NOT NULL AND expires_at < ?", before).Delete(&models.Link{})
		purged = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, storeErr("links.PurgeExpired", err)
	}
	return purged, nil
}
