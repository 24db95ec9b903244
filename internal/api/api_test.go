package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axellelanca/locashare/internal/ai"
	"github.com/axellelanca/locashare/internal/realtime"
	"github.com/axellelanca/locashare/internal/repository"
	"github.com/axellelanca/locashare/internal/services"
)

type testApp struct {
	router    *gin.Engine
	handlers  *Handlers
	locations *services.LocationService
	links     *services.LinkService
	recorder  *services.ClickRecorder
	registry  *realtime.Registry
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := repository.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, repository.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	linkRepo := repository.NewLinkRepository(db)
	clickRepo := repository.NewClickRepository(db)
	recorder := services.NewClickRecorder(linkRepo, clickRepo, 16, 2, services.DefaultStorePolicy, logger)
	recorder.Start()
	t.Cleanup(func() { _ = recorder.Stop(context.Background()) })

	locations := services.NewLocationService(repository.NewLocationRepository(db), services.NewCategoryRegistry(),
		services.DefaultLocationLimits, services.DefaultStorePolicy, logger)
	links := services.NewLinkService(linkRepo, clickRepo, recorder, services.DefaultLinkConfig, logger)
	registry := realtime.NewRegistry(time.Minute, logger)
	dispatcher := realtime.NewDispatcher(64, 5*time.Second, logger)
	recommender := ai.StaticRecommender{Places: locations}

	h := NewHandlers(locations, links, recommender, registry, nil, dispatcher, Options{
		BaseURL:          "http://sho.rt",
		LocationInterval: 10 * time.Millisecond,
	}, logger)

	return &testApp{
		router:    NewRouter(h, logger),
		handlers:  h,
		locations: locations,
		links:     links,
		recorder:  recorder,
		registry:  registry,
	}
}

func (a *testApp) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)
	w := app.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 0, body["active_connections"])
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t)
	app.do(t, http.MethodGet, "/health", nil)
	w := app.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "locashare_http_requests_total")
}

func TestLocationsFlow(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodPost, "/api/locations", map[string]any{
		"name": "City Hall Cafe", "latitude": 37.5665, "longitude": 126.9780, "category": "cafe", "rating": 4.5,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[map[string]any](t, w)
	assert.Equal(t, "cafe", created["category"])

	app.do(t, http.MethodPost, "/api/locations", map[string]any{
		"name": "Far Temple", "latitude": 35.1796, "longitude": 129.0756, "category": "temple",
	})

	w = app.do(t, http.MethodPost, "/api/locations/nearby", map[string]any{
		"latitude": 37.5660, "longitude": 126.9770, "radius_km": 2,
	})
	require.Equal(t, http.StatusOK, w.Code)
	nearby := decode[[]map[string]any](t, w)
	require.Len(t, nearby, 1)
	assert.Equal(t, "City Hall Cafe", nearby[0]["name"])
	assert.Less(t, nearby[0]["distance_km"].(float64), 1.0)

	w = app.do(t, http.MethodGet, "/api/locations/search/hall", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]map[string]any](t, w), 1)

	w = app.do(t, http.MethodGet, "/api/locations/category/temple", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]map[string]any](t, w), 1)

	w = app.do(t, http.MethodGet, "/api/locations/1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = app.do(t, http.MethodGet, "/api/locations/distance?from=1&to=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, 325, decode[map[string]any](t, w)["distance_km"].(float64), 10)
}

func TestLocationErrors(t *testing.T) {
	app := newTestApp(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"radius too large", http.MethodPost, "/api/locations/nearby", map[string]any{"latitude": 0, "longitude": 0, "radius_km": 500}, http.StatusBadRequest},
		{"latitude out of range", http.MethodPost, "/api/locations/nearby", map[string]any{"latitude": 91, "longitude": 0}, http.StatusBadRequest},
		{"unknown category", http.MethodPost, "/api/locations/nearby", map[string]any{"latitude": 0, "longitude": 0, "category": "spaceport"}, http.StatusBadRequest},
		{"missing coordinates", http.MethodPost, "/api/locations/nearby", map[string]any{"radius_km": 1}, http.StatusUnprocessableEntity},
		{"missing name", http.MethodPost, "/api/locations", map[string]any{"latitude": 0, "longitude": 0}, http.StatusUnprocessableEntity},
		{"bad id", http.MethodGet, "/api/locations/abc", nil, http.StatusBadRequest},
		{"unknown id", http.MethodGet, "/api/locations/99", nil, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := app.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			assert.NotEmpty(t, decode[map[string]any](t, w)["detail"])
		})
	}
}

func TestShortURLFlow(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodPost, "/api/urls/create", map[string]any{"url": "https://example.com/page", "custom_code": "promo1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[CreateURLResponse](t, w)
	assert.Equal(t, "promo1", created.Code)
	assert.Equal(t, "http://sho.rt/s/promo1", created.ShortURL)
	assert.Nil(t, created.ExpiresAt)

	w = app.do(t, http.MethodPost, "/api/urls/create", map[string]any{"url": "https://other.example", "custom_code": "promo1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	for i := 0; i < 3; i++ {
		w = app.do(t, http.MethodGet, "/s/promo1", nil)
		require.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "https://example.com/page", w.Header().Get("Location"))
	}
	require.NoError(t, app.recorder.Stop(context.Background()))

	w = app.do(t, http.MethodGet, "/api/urls/stats/promo1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[map[string]any](t, w)
	assert.EqualValues(t, 3, stats["clicks"])
	assert.Equal(t, true, stats["active"])
	assert.Len(t, stats["recent_clicks"], 3)

	w = app.do(t, http.MethodGet, "/api/urls/list", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["total"])

	w = app.do(t, http.MethodDelete, "/api/urls/promo1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = app.do(t, http.MethodGet, "/s/promo1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestShortURLValidation(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodPost, "/api/urls/create", map[string]any{"url": "ftp://example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.do(t, http.MethodPost, "/api/urls/create", map[string]any{"url": "https://example.com", "expires_in_days": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.do(t, http.MethodPost, "/api/urls/create", map[string]any{})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = app.do(t, http.MethodGet, "/s/nope123", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "short link not found", decode[map[string]any](t, w)["detail"])
}

func TestBindErrorsNameJSONFields(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodPost, "/api/locations/nearby", map[string]any{"radius_km": 1})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.NotContains(t, w.Body.String(), "NearbyRequest")
	body := decode[struct {
		Detail string       `json:"detail"`
		Errors []FieldError `json:"errors"`
	}](t, w)
	assert.Equal(t, "invalid request", body.Detail)
	assert.ElementsMatch(t, []FieldError{
		{Field: "latitude", Message: "is required"},
		{Field: "longitude", Message: "is required"},
	}, body.Errors)

	w = app.do(t, http.MethodPost, "/api/urls/create", map[string]any{"url": 42})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.NotContains(t, w.Body.String(), "CreateURLRequest")
	assert.Contains(t, w.Body.String(), `"field":"url"`)

	req := httptest.NewRequest(http.MethodPost, "/api/urls/create", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "malformed JSON body", decode[map[string]any](t, rec)["detail"])
}

func TestRecommendCreatesShareLink(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodPost, "/api/chat/recommend", map[string]any{
		"message": "coffee", "latitude": 37.5665, "longitude": 126.9780,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[RecommendResponse](t, w)
	assert.Contains(t, resp.Response, "coffee")
	require.True(t, strings.HasPrefix(resp.ShareURL, "http://sho.rt/s/"))

	code := strings.TrimPrefix(resp.ShareURL, "http://sho.rt/s/")
	stats, err := app.links.Stats(context.Background(), code)
	require.NoError(t, err)
	require.NotNil(t, stats.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), *stats.ExpiresAt, time.Minute)
	assert.Contains(t, stats.OriginalURL, "/share/recommendation?")

	w = app.do(t, http.MethodGet, "/share/recommendation?q=coffee&lat=37.5665&lng=126.978", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode[map[string]any](t, w)["response"], "coffee")
}

func TestStreamAIChat(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodGet, "/api/stream/ai-chat?query=noodles&lat=37.5&lng=127.0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	var chunks []realtime.Chunk
	for _, line := range strings.Split(w.Body.String(), "\n") {
		if data, ok := strings.CutPrefix(line, "data:"); ok {
			var c realtime.Chunk
			require.NoError(t, json.Unmarshal([]byte(data), &c))
			chunks = append(chunks, c)
		}
	}
	require.NotEmpty(t, chunks)
	var text strings.Builder
	for i, c := range chunks {
		assert.Equal(t, uint64(i+1), c.Seq)
		if c.Type == realtime.ChunkAIToken {
			text.WriteString(c.Content)
		}
	}
	assert.Contains(t, text.String(), "noodles")
	assert.Equal(t, realtime.ChunkDone, chunks[len(chunks)-1].Type)

	w = app.do(t, http.MethodGet, "/api/stream/ai-chat", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStreamLocationStopsWithClient(t *testing.T) {
	app := newTestApp(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/stream/location/u42", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)

	body := w.Body.String()
	assert.Contains(t, body, `"type":"location_update"`)
	assert.Contains(t, body, `"user_id":"u42"`)
	assert.NotContains(t, body, `"type":"done"`)
}
