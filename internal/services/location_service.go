package services

import (
	"context"
	"log/slog"
	"math"
	"strings"

	customerrors "github.com/axellelanca/locashare/internal/errors"
	"github.com/axellelanca/locashare/internal/geo"
	"github.com/axellelanca/locashare/internal/models"
	"github.com/axellelanca/locashare/internal/repository"
)

// Limits applied by the location service.
type LocationLimits struct {
	MaxRadiusKm  float64
	DefaultLimit int
	MaxLimit     int
}

// DefaultLocationLimits matches the shipped configuration.
var DefaultLocationLimits = LocationLimits{MaxRadiusKm: 50, DefaultLimit: 20, MaxLimit: 100}

// maxLookupLimit caps name and category listings.
const maxLookupLimit = 50

// NearbyQuery describes a radius search.
type NearbyQuery struct {
	Center   geo.Point
	RadiusKm float64
	Category string // empty matches every category
	Limit    int    // <= 0 means the default limit
}

// LocationInput carries the fields of a new location.
type LocationInput struct {
	Name        string
	Category    string
	Latitude    float64
	Longitude   float64
	Description string
	Address     string
	Phone       string
	Rating      float64
}

// LocationService validates location requests and delegates to the spatial
// index.
type LocationService struct {
	repo       repository.LocationRepository
	categories *CategoryRegistry
	limits     LocationLimits
	store      StorePolicy
	logger     *slog.Logger
}

func NewLocationService(repo repository.LocationRepository, categories *CategoryRegistry, limits LocationLimits, store StorePolicy, logger *slog.Logger) *LocationService {
	if categories == nil {
		categories = NewCategoryRegistry()
	}
	return &LocationService{
		repo:       repo,
		categories: categories,
		limits:     limits,
		store:      store.orDefault(),
		logger:     logger.With(slog.String("component", "locations")),
	}
}

// Categories lists the accepted categories.
func (s *LocationService) Categories() []string { return s.categories.List() }

// FindNearby returns locations within the radius, nearest first. Store
// failures surface as StoreUnavailable without retry.
func (s *LocationService) FindNearby(ctx context.Context, q NearbyQuery) ([]models.NearbyLocation, error) {
	const op = "locations.FindNearby"
	if err := q.Center.Validate(); err != nil {
		return nil, customerrors.InvalidArgument(op, "%s", err.Error())
	}
	if math.IsNaN(q.RadiusKm) || q.RadiusKm <= 0 || q.RadiusKm > s.limits.MaxRadiusKm {
		return nil, customerrors.InvalidArgument(op, "radius_km must be in (0, %g]", s.limits.MaxRadiusKm)
	}
	category := normalizeCategory(q.Category)
	if category != "" && !s.categories.Contains(category) {
		return nil, customerrors.InvalidArgument(op, "unknown category %q", q.Category)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = s.limits.DefaultLimit
	}
	if limit > s.limits.MaxLimit {
		limit = s.limits.MaxLimit
	}

	var results []models.NearbyLocation
	err := s.store.do(ctx, func(ctx context.Context) error {
		var err error
		results, err = s.repo.FindNearby(ctx, q.Center, q.RadiusKm, category, limit)
		return err
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "nearby search failed", slog.Any("error", err))
		return nil, err
	}
	if results == nil {
		results = []models.NearbyLocation{}
	}
	return results, nil
}

// CreateLocation validates and stores a new location. Duplicates are allowed.
func (s *LocationService) CreateLocation(ctx context.Context, in LocationInput) (*models.Location, error) {
	const op = "locations.Create"
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, customerrors.InvalidArgument(op, "name is required")
	}
	if len(name) > 200 {
		return nil, customerrors.InvalidArgument(op, "name must be at most 200 characters")
	}
	if err := (geo.Point{Lat: in.Latitude, Lng: in.Longitude}).Validate(); err != nil {
		return nil, customerrors.InvalidArgument(op, "%s", err.Error())
	}
	category := normalizeCategory(in.Category)
	if category == "" {
		category = DefaultCategory
	}
	if !s.categories.Contains(category) {
		return nil, customerrors.InvalidArgument(op, "unknown category %q", in.Category)
	}
	if math.IsNaN(in.Rating) || in.Rating < 0 || in.Rating > 5 {
		return nil, customerrors.InvalidArgument(op, "rating must be within [0, 5]")
	}

	loc := &models.Location{
		Name:        name,
		Category:    category,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		Description: in.Description,
		Address:     in.Address,
		Phone:       in.Phone,
		Rating:      in.Rating,
	}
	if err := s.store.doRetry(ctx, func(ctx context.Context) error {
		return s.repo.CreateLocation(ctx, loc)
	}); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "location created", slog.Uint64("id", uint64(loc.ID)), slog.String("category", loc.Category))
	return loc, nil
}

func (s *LocationService) GetLocation(ctx context.Context, id uint) (*models.Location, error) {
	var loc *models.Location
	err := s.store.do(ctx, func(ctx context.Context) error {
		var err error
		loc, err = s.repo.GetLocationByID(ctx, id)
		return err
	})
	return loc, err
}

// SearchByName does a case-insensitive substring match on names.
func (s *LocationService) SearchByName(ctx context.Context, term string, limit int) ([]models.Location, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, customerrors.InvalidArgument("locations.SearchByName", "search term is required")
	}
	limit = clampLookup(limit)
	var locs []models.Location
	err := s.store.do(ctx, func(ctx context.Context) error {
		var err error
		locs, err = s.repo.SearchByName(ctx, term, limit)
		return err
	})
	if locs == nil && err == nil {
		locs = []models.Location{}
	}
	return locs, err
}

// ListByCategory returns the newest locations of a category.
func (s *LocationService) ListByCategory(ctx context.Context, category string, limit int) ([]models.Location, error) {
	if !s.categories.Contains(category) {
		return nil, customerrors.InvalidArgument("locations.ListByCategory", "unknown category %q", category)
	}
	limit = clampLookup(limit)
	var locs []models.Location
	err := s.store.do(ctx, func(ctx context.Context) error {
		var err error
		locs, err = s.repo.ListByCategory(ctx, normalizeCategory(category), limit)
		return err
	})
	if locs == nil && err == nil {
		locs = []models.Location{}
	}
	return locs, err
}

// Distance returns the great-circle distance between two stored locations.
func (s *LocationService) Distance(ctx context.Context, fromID, toID uint) (float64, error) {
	from, err := s.GetLocation(ctx, fromID)
	if err != nil {
		return 0, err
	}
	to, err := s.GetLocation(ctx, toID)
	if err != nil {
		return 0, err
	}
	return geo.DistanceKm(
		geo.Point{Lat: from.Latitude, Lng: from.Longitude},
		geo.Point{Lat: to.Latitude, Lng: to.Longitude},
	), nil
}

// Count reports how many locations are stored.
func (s *LocationService) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.store.do(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.repo.CountLocations(ctx)
		return err
	})
	return n, err
}

func clampLookup(limit int) int {
	if limit <= 0 || limit > maxLookupLimit {
		return maxLookupLimit
	}
	return limit
}
