package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	customerrors "github.com/axellelanca/locashare/internal/errors"
	"github.com/axellelanca/locashare/internal/geo"
	"github.com/axellelanca/locashare/internal/models"
)

func seedLocations(t *testing.T, repo *GormLocationRepository, locs ...models.Location) []models.Location {
	t.Helper()
	out := make([]models.Location, 0, len(locs))
	for _, l := range locs {
		l := l
		require.NoError(t, repo.CreateLocation(context.Background(), &l))
		out = append(out, l)
	}
	return out
}

func TestGormLocationFindNearby(t *testing.T) {
	repo := NewLocationRepository(newTestDB(t))
	ctx := context.Background()
	center := geo.Point{Lat: 37.5665, Lng: 126.9780} // Seoul City Hall

	seedLocations(t, repo,
		models.Location{Name: "Far Busan", Category: "restaurant", Latitude: 35.1796, Longitude: 129.0756},
		models.Location{Name: "Gyeongbokgung", Category: "temple", Latitude: 37.5796, Longitude: 126.9770},
		models.Location{Name: "City Hall Cafe", Category: "cafe", Latitude: 37.5665, Longitude: 126.9780},
		models.Location{Name: "Myeongdong", Category: "shopping", Latitude: 37.5636, Longitude: 126.9826},
	)

	results, err := repo.FindNearby(ctx, center, 5, "", 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "City Hall Cafe", results[0].Name)
	assert.Equal(t, 0.0, results[0].DistanceKm)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].DistanceKm, results[i].DistanceKm)
		assert.LessOrEqual(t, results[i].DistanceKm, 5.0)
	}

	filtered, err := repo.FindNearby(ctx, center, 5, "temple", 10)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "Gyeongbokgung", filtered[0].Name)

	limited, err := repo.FindNearby(ctx, center, 5, "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestGormLocationFindNearbyTiesOrderedByID(t *testing.T) {
	repo := NewLocationRepository(newTestDB(t))
	seeded := seedLocations(t, repo,
		models.Location{Name: "b", Category: "general", Latitude: 1, Longitude: 1},
		models.Location{Name: "a", Category: "general", Latitude: 1, Longitude: 1},
	)

	results, err := repo.FindNearby(context.Background(), geo.Point{Lat: 1, Lng: 1}, 1, "", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, seeded[0].ID, results[0].ID)
	assert.Equal(t, seeded[1].ID, results[1].ID)
}

func TestGormLocationFindNearbyAcrossAntimeridian(t *testing.T) {
	repo := NewLocationRepository(newTestDB(t))
	seedLocations(t, repo,
		models.Location{Name: "east", Category: "general", Latitude: 0, Longitude: 179.95},
		models.Location{Name: "west", Category: "general", Latitude: 0, Longitude: -179.95},
	)

	results, err := repo.FindNearby(context.Background(), geo.Point{Lat: 0, Lng: 179.99}, 20, "", 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestGormLocationGetSearchAndCategory(t *testing.T) {
	repo := NewLocationRepository(newTestDB(t))
	ctx := context.Background()
	seeded := seedLocations(t, repo,
		models.Location{Name: "Gwangjang Market", Category: "restaurant", Latitude: 37.57, Longitude: 127.0},
		models.Location{Name: "Namdaemun Market", Category: "shopping", Latitude: 37.559, Longitude: 126.977},
		models.Location{Name: "100%_Coffee", Category: "cafe", Latitude: 37.5, Longitude: 127.0},
	)

	got, err := repo.GetLocationByID(ctx, seeded[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Gwangjang Market", got.Name)

	_, err = repo.GetLocationByID(ctx, 9999)
	assert.True(t, errors.Is(err, customerrors.ErrNotFound))

	markets, err := repo.SearchByName(ctx, "MARKET", 50)
	require.NoError(t, err)
	require.Len(t, markets, 2)
	assert.Equal(t, "Gwangjang Market", markets[0].Name)

	// wildcards in the term are literal
	literal, err := repo.SearchByName(ctx, "%_", 50)
	require.NoError(t, err)
	require.Len(t, literal, 1)
	assert.Equal(t, "100%_Coffee", literal[0].Name)

	shops, err := repo.ListByCategory(ctx, "shopping", 50)
	require.NoError(t, err)
	require.Len(t, shops, 1)

	n, err := repo.CountLocations(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
