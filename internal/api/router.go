// Package api exposes the HTTP, WebSocket and SSE surface of the service.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/axellelanca/locashare/internal/ai"
	"github.com/axellelanca/locashare/internal/realtime"
	"github.com/axellelanca/locashare/internal/services"
)

// Version is reported by /health.
const Version = "0.1.0"

// Options are the façade settings taken from configuration.
type Options struct {
	BaseURL          string // used to build short and share URLs
	ShareTTLDays     int
	DefaultTTLDays   int // applied when a create request sets no expiry; 0 keeps links forever
	WriteTimeout     time.Duration
	LocationInterval time.Duration
}

// Handlers holds the dependencies shared by every route.
type Handlers struct {
	locations   *services.LocationService
	links       *services.LinkService
	recommender ai.Recommender
	registry    *realtime.Registry
	broadcaster realtime.Broadcaster
	dispatcher  *realtime.Dispatcher
	opts        Options
	upgrader    websocket.Upgrader
	logger      *slog.Logger
}

// NewHandlers wires the handlers. broadcaster may be nil, in which case
// broadcasts stay on this instance.
func NewHandlers(
	locations *services.LocationService,
	links *services.LinkService,
	recommender ai.Recommender,
	registry *realtime.Registry,
	broadcaster realtime.Broadcaster,
	dispatcher *realtime.Dispatcher,
	opts Options,
	logger *slog.Logger,
) *Handlers {
	if broadcaster == nil {
		broadcaster = realtime.LocalBroadcaster{Registry: registry}
	}
	if opts.ShareTTLDays <= 0 {
		opts.ShareTTLDays = 7
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.LocationInterval <= 0 {
		opts.LocationInterval = 5 * time.Second
	}
	return &Handlers{
		locations:   locations,
		links:       links,
		recommender: recommender,
		registry:    registry,
		broadcaster: broadcaster,
		dispatcher:  dispatcher,
		opts:        opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger.With(slog.String("component", "api")),
	}
}

// NewRouter builds a gin engine with logging, recovery and metrics
// middleware and every route registered.
func NewRouter(h *Handlers, logger *slog.Logger) *gin.Engine {
	useJSONFieldNames()
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger), Metrics())
	SetupRoutes(router, h)
	return router
}

// SetupRoutes registers all routes on router.
func SetupRoutes(router *gin.Engine, h *Handlers) {
	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		locations := api.Group("/locations")
		locations.POST("/nearby", h.FindNearby)
		locations.POST("", h.CreateLocation)
		locations.GET("/categories", h.ListCategories)
		locations.GET("/distance", h.Distance)
		locations.GET("/search/:query", h.SearchLocations)
		locations.GET("/category/:category", h.LocationsByCategory)
		locations.GET("/:id", h.GetLocation)

		urls := api.Group("/urls")
		urls.POST("/create", h.CreateShortURL)
		urls.GET("/stats/:code", h.URLStats)
		urls.GET("/list", h.ListURLs)
		urls.DELETE("/:code", h.DeleteURL)

		api.POST("/chat/recommend", h.Recommend)

		stream := api.Group("/stream")
		stream.GET("/ai-chat", h.StreamAIChat)
		stream.GET("/location/:userId", h.StreamLocation)
	}

	router.GET("/s/:code", h.Redirect)
	router.GET("/share/recommendation", h.SharedRecommendation)
	router.GET("/ws/chat/:userId", h.ChatSocket)
}

// Health reports liveness and a few counters. A failing location store
// turns the status to degraded.
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{
		"status":             "healthy",
		"version":            Version,
		"active_connections": h.registry.Count(),
	}
	n, err := h.locations.Count(c.Request.Context())
	if err != nil {
		h.logger.WarnContext(c.Request.Context(), "health check: location store unavailable", slog.Any("error", err))
		body["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["locations"] = n
	c.JSON(http.StatusOK, body)
}

func (h *Handlers) shortURL(code string) string {
	return h.opts.BaseURL + "/s/" + code
}
