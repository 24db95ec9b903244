package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/axellelanca/locashare/internal/config"
	"github.com/axellelanca/locashare/internal/repository"
	"github.com/axellelanca/locashare/internal/services"
)

// Stores are the repositories selected by configuration: PostGIS for
// locations when postgres.dsn is set, Redis for links and clicks when
// redis.addr is set, SQLite otherwise.
type Stores struct {
	DB        *gorm.DB
	Postgis   *repository.PostgisLocationRepository // nil unless postgres.dsn is set
	Locations repository.LocationRepository
	Links     repository.LinkRepository
	Clicks    repository.ClickRepository

	pool  *pgxpool.Pool
	redis *redis.Client
}

// OpenStores connects every configured backend and migrates the SQLite
// schema.
func OpenStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stores, error) {
	db, err := repository.OpenSQLite(cfg.Database.Name)
	if err != nil {
		return nil, err
	}
	if err := repository.AutoMigrate(db); err != nil {
		return nil, err
	}
	s := &Stores{DB: db}

	s.Locations = repository.NewLocationRepository(db)
	if cfg.Postgres.DSN != "" {
		pool, err := repository.ConnectPostgres(ctx, cfg.Postgres.DSN)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.pool = pool
		s.Postgis = repository.NewPostgisLocationRepository(pool, logger)
		if err := s.Postgis.Migrate(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("postgis migration: %w", err)
		}
		s.Locations = s.Postgis
		logger.Info("location index on PostGIS")
	}

	linkRepo := repository.NewLinkRepository(db)
	s.Links, s.Clicks = linkRepo, repository.NewClickRepository(db)
	if cfg.Redis.Addr != "" {
		client, err := repository.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.redis = client
		store := repository.NewRedisStore(client, cfg.Links.Retention)
		s.Links, s.Clicks = store, store
		logger.Info("short links on Redis", slog.String("addr", cfg.Redis.Addr))
	}
	return s, nil
}

// Close releases every connection.
func (s *Stores) Close() error {
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	if s.pool != nil {
		s.pool.Close()
	}
	if s.DB != nil {
		if sqlDB, err := s.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}

// StorePolicy builds the store timeout and retry policy from cfg.
func StorePolicy(cfg *config.Config) services.StorePolicy {
	return services.StorePolicy{Timeout: cfg.Store.Timeout, RetryBackoff: cfg.Store.RetryBackoff}
}

// NewLocationService builds the location service on s.
func NewLocationService(cfg *config.Config, s *Stores, logger *slog.Logger) *services.LocationService {
	return services.NewLocationService(
		s.Locations,
		services.NewCategoryRegistry(cfg.Geo.ExtraCategories...),
		services.LocationLimits{
			MaxRadiusKm:  cfg.Geo.MaxRadiusKm,
			DefaultLimit: cfg.Geo.DefaultLimit,
			MaxLimit:     cfg.Geo.MaxLimit,
		},
		StorePolicy(cfg),
		logger,
	)
}

// NewLinkService builds the link service on s. clicks may be nil.
func NewLinkService(cfg *config.Config, s *Stores, clicks services.ClickQueue, logger *slog.Logger) *services.LinkService {
	return services.NewLinkService(s.Links, s.Clicks, clicks, services.LinkConfig{
		CodeLength:  cfg.Links.CodeLength,
		MaxAttempts: cfg.Links.MaxAttempts,
		CacheSize:   cfg.Links.CacheSize,
		CacheTTL:    cfg.Links.CacheTTL,
		Store:       StorePolicy(cfg),
	}, logger)
}
