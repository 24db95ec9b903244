package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	customerrors "github.com/axellelanca/locashare/internal/errors"
	"github.com/axellelanca/locashare/internal/geo"
	"github.com/axellelanca/locashare/internal/models"
)

const postgisSchema = `
CREATE EXTENSION IF NOT EXISTS postgis;
CREATE TABLE IF NOT EXISTS locations (
    id          BIGSERIAL PRIMARY KEY,
    name        VARCHAR(200) NOT NULL,
    category    VARCHAR(50)  NOT NULL DEFAULT 'general',
    latitude    DOUBLE PRECISION NOT NULL,
    longitude   DOUBLE PRECISION NOT NULL,
    geom        GEOGRAPHY(Point, 4326) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    address     VARCHAR(500) NOT NULL DEFAULT '',
    phone       VARCHAR(20)  NOT NULL DEFAULT '',
    rating      DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_locations_geom ON locations USING GIST (geom);
CREATE INDEX IF NOT EXISTS idx_locations_category ON locations (category);
CREATE INDEX IF NOT EXISTS idx_locations_name ON locations (LOWER(name));
`

const locationColumns = `id, name, category, latitude, longitude, description, address, phone, rating, created_at`

// PostgisLocationRepository serves the spatial index from PostgreSQL with the
// PostGIS extension. Distances come from ST_Distance on geography values.
type PostgisLocationRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ LocationRepository = (*PostgisLocationRepository)(nil)

// ConnectPostgres creates a pgx pool and checks the server answers.
func ConnectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	return pool, nil
}

func NewPostgisLocationRepository(pool *pgxpool.Pool, logger *slog.Logger) *PostgisLocationRepository {
	return &PostgisLocationRepository{pool: pool, logger: logger.With(slog.String("component", "postgis"))}
}

// Migrate creates the locations table and its GiST index if missing.
func (r *PostgisLocationRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, postgisSchema); err != nil {
		return fmt.Errorf("failed to apply postgis schema: %w", err)
	}
	return nil
}

func (r *PostgisLocationRepository) CreateLocation(ctx context.Context, loc *models.Location) error {
	const q = `
        INSERT INTO locations (name, category, latitude, longitude, geom, description, address, phone, rating)
        VALUES ($1, $2, $3, $4, ST_SetSRID(ST_MakePoint($4, $3), 4326)::geography, $5, $6, $7, $8)
        RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, q,
		loc.Name, loc.Category, loc.Latitude, loc.Longitude,
		loc.Description, loc.Address, loc.Phone, loc.Rating,
	).Scan(&loc.ID, &loc.CreatedAt)
	if err != nil {
		return storeErr("locations.Create", err)
	}
	return nil
}

func (r *PostgisLocationRepository) GetLocationByID(ctx context.Context, id uint) (*models.Location, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+locationColumns+` FROM locations WHERE id = $1`, int64(id))
	loc, err := scanLocation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customerrors.NotFound("locations.Get", "location %d not found", id)
		}
		return nil, storeErr("locations.Get", err)
	}
	return loc, nil
}

func (r *PostgisLocationRepository) FindNearby(ctx context.Context, center geo.Point, radiusKm float64, category string, limit int) ([]models.NearbyLocation, error) {
	query := `
        SELECT ` + locationColumns + `,
            ST_Distance(geom, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) AS distance_meters
        FROM locations
        WHERE ST_DWithin(geom, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)`
	args := []any{center.Lng, center.Lat, radiusKm * 1000}
	if category != "" {
		args = append(args, category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	query += " ORDER BY distance_meters ASC, id ASC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	r.logger.DebugContext(ctx, "nearby query", slog.Float64("radius_km", radiusKm), slog.String("category", category))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("locations.FindNearby", err)
	}
	defer rows.Close()

	var results []models.NearbyLocation
	for rows.Next() {
		var n models.NearbyLocation
		var meters float64
		if err := rows.Scan(
			&n.ID, &n.Name, &n.Category, &n.Latitude, &n.Longitude,
			&n.Description, &n.Address, &n.Phone, &n.Rating, &n.CreatedAt, &meters,
		); err != nil {
			return nil, storeErr("locations.FindNearby", err)
		}
		n.DistanceKm = meters / 1000
		results = append(results, n)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("locations.FindNearby", err)
	}
	return results, nil
}

func (r *PostgisLocationRepository) SearchByName(ctx context.Context, term string, limit int) ([]models.Location, error) {
	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
	return r.queryLocations(ctx, "locations.SearchByName",
		`SELECT `+locationColumns+` FROM locations WHERE LOWER(name) LIKE $1 ORDER BY name, id LIMIT $2`,
		pattern, limit)
}

func (r *PostgisLocationRepository) ListByCategory(ctx context.Context, category string, limit int) ([]models.Location, error) {
	return r.queryLocations(ctx, "locations.ListByCategory",
		`SELECT `+locationColumns+` FROM locations WHERE category = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		category, limit)
}

func (r *PostgisLocationRepository) CountLocations(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM locations`).Scan(&n); err != nil {
		return 0, storeErr("locations.Count", err)
	}
	return n, nil
}

func (r *PostgisLocationRepository) queryLocations(ctx context.Context, op, query string, args ...any) ([]models.Location, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr(op, err)
	}
	defer rows.Close()

	var locs []models.Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, storeErr(op, err)
		}
		locs = append(locs, *loc)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, err)
	}
	return locs, nil
}

func scanLocation(row pgx.Row) (*models.Location, error) {
	var loc models.Location
	err := row.Scan(
		&loc.ID, &loc.Name, &loc.Category, &loc.Latitude, &loc.Longitude,
		&loc.Description, &loc.Address, &loc.Phone, &loc.Rating, &loc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &loc, nil
}
