package repository

import (
	"context"
	"errors"
	"sort"
	"strings"

	"gorm.io/gorm"

	customerrors "github.com/axellelanca/locashare/internal/errors"
	"github.com/axellelanca/locashare/internal/geo"
	"github.com/axellelanca/locashare/internal/models"
)

// LocationRepository is the spatial index behind the location service.
type LocationRepository interface {
	CreateLocation(ctx context.Context, loc *models.Location) error
	GetLocationByID(ctx context.Context, id uint) (*models.Location, error)
	// FindNearby returns locations within radiusKm of center, nearest first,
	// ties broken by ID. An empty category matches all.
	FindNearby(ctx context.Context, center geo.Point, radiusKm float64, category string, limit int) ([]models.NearbyLocation, error)
	SearchByName(ctx context.Context, term string, limit int) ([]models.Location, error)
	ListByCategory(ctx context.Context, category string, limit int) ([]models.Location, error)
	CountLocations(ctx context.Context) (int64, error)
}

// GormLocationRepository stores locations in SQLite through GORM. The radius
// query prefilters on a bounding box in SQL and computes exact great-circle
// distances in process.
type GormLocationRepository struct {
	db *gorm.DB
}

var _ LocationRepository = (*GormLocationRepository)(nil)

func NewLocationRepository(db *gorm.DB) *GormLocationRepository {
	return &GormLocationRepository{db: db}
}

func (r *GormLocationRepository) CreateLocation(ctx context.Context, loc *models.Location) error {
	if err := r.db.WithContext(ctx).Create(loc).Error; err != nil {
		return storeErr("locations.Create", err)
	}
	return nil
}

func (r *GormLocationRepository) GetLocationByID(ctx context.Context, id uint) (*models.Location, error) {
	var loc models.Location
	if err := r.db.WithContext(ctx).First(&loc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, customerrors.NotFound("locations.Get", "location %d not found", id)
		}
		return nil, storeErr("locations.Get", err)
	}
	return &loc, nil
}

func (r *GormLocationRepository) FindNearby(ctx context.Context, center geo.Point, radiusKm float64, category string, limit int) ([]models.NearbyLocation, error) {
	box := geo.BoundingBox(center, radiusKm)

	q := r.db.WithContext(ctx).Model(&models.Location{}).
		Where("latitude BETWEEN ? AND ?", box.MinLat, box.MaxLat)
	if box.WrapsAntimeridian {
		q = q.Where("(longitude >= ? OR longitude <= ?)", box.MinLng, box.MaxLng)
	} else {
		q = q.Where("longitude BETWEEN ? AND ?", box.MinLng, box.MaxLng)
	}
	if category != "" {
		q = q.Where("category = ?", category)
	}

	var candidates []models.Location
	if err := q.Find(&candidates).Error; err != nil {
		return nil, storeErr("locations.FindNearby", err)
	}

	results := make([]models.NearbyLocation, 0, len(candidates))
	for _, loc := range candidates {
		d := geo.DistanceKm(center, geo.Point{Lat: loc.Latitude, Lng: loc.Longitude})
		if d <= radiusKm {
			results = append(results, models.NearbyLocation{Location: loc, DistanceKm: d})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].DistanceKm != results[j].DistanceKm {
			return results[i].DistanceKm < results[j].DistanceKm
		}
		return results[i].ID < results[j].ID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (r *GormLocationRepository) SearchByName(ctx context.Context, term string, limit int) ([]models.Location, error) {
	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
	var locs []models.Location
	err := r.db.WithContext(ctx).
		Where(`LOWER(name) LIKE ? ESCAPE '\'`, pattern).
		Order("name ASC").Order("id ASC").
		Limit(limit).
		Find(&locs).Error
	if err != nil {
		return nil, storeErr("locations.SearchByName", err)
	}
	return locs, nil
}

func (r *GormLocationRepository) ListByCategory(ctx context.Context, category string, limit int) ([]models.Location, error) {
	var locs []models.Location
	err := r.db.WithContext(ctx).
		Where("category = ?", category).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&locs).Error
	if err != nil {
		return nil, storeErr("locations.ListByCategory", err)
	}
	return locs, nil
}

func (r *GormLocationRepository) CountLocations(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Location{}).Count(&n).Error; err != nil {
		return 0, storeErr("locations.Count", err)
	}
	return n, nil
}
