package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	customerrors "github.com/axellelanca/locashare/internal/errors"
	"github.com/axellelanca/locashare/internal/geo"
	"github.com/axellelanca/locashare/internal/services"
)

const defaultNearbyRadiusKm = 5.0

// NearbyRequest is the body of POST /api/locations/nearby.
type NearbyRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
	RadiusKm  *float64 `json:"radius_km"`
	Category  string   `json:"category"`
	Limit     int      `json:"limit"`
}

// LocationRequest is the body of POST /api/locations.
type LocationRequest struct {
	Name        string   `json:"name" binding:"required"`
	Latitude    *float64 `json:"latitude" binding:"required"`
	Longitude   *float64 `json:"longitude" binding:"required"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Address     string   `json:"address"`
	Phone       string   `json:"phone"`
	Rating      float64  `json:"rating"`
}

func (h *Handlers) FindNearby(c *gin.Context) {
	var req NearbyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	radius := defaultNearbyRadiusKm
	if req.RadiusKm != nil {
		radius = *req.RadiusKm
	}
	results, err := h.locations.FindNearby(c.Request.Context(), services.NearbyQuery{
		Center:   geo.Point{Lat: *req.Latitude, Lng: *req.Longitude},
		RadiusKm: radius,
		Category: req.Category,
		Limit:    req.Limit,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *Handlers) CreateLocation(c *gin.Context) {
	var req LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	loc, err := h.locations.CreateLocation(c.Request.Context(), services.LocationInput{
		Name:        req.Name,
		Category:    req.Category,
		Latitude:    *req.Latitude,
		Longitude:   *req.Longitude,
		Description: req.Description,
		Address:     req.Address,
		Phone:       req.Phone,
		Rating:      req.Rating,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, loc)
}

func (h *Handlers) GetLocation(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	loc, err := h.locations.GetLocation(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loc)
}

func (h *Handlers) SearchLocations(c *gin.Context) {
	locs, err := h.locations.SearchByName(c.Request.Context(), c.Param("query"), queryInt(c, "limit"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, locs)
}

func (h *Handlers) LocationsByCategory(c *gin.Context) {
	locs, err := h.locations.ListByCategory(c.Request.Context(), c.Param("category"), queryInt(c, "limit"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, locs)
}

func (h *Handlers) ListCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": h.locations.Categories()})
}

// Distance handles GET /api/locations/distance?from=1&to=2.
func (h *Handlers) Distance(c *gin.Context) {
	from, err := parseID(c.Query("from"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	to, err := parseID(c.Query("to"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	km, err := h.locations.Distance(c.Request.Context(), from, to)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"from": from, "to": to, "distance_km": km})
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, customerrors.InvalidArgument("api.parseID", "invalid location id %q", raw)
	}
	return uint(id), nil
}

// queryInt reads an optional integer query parameter; junk reads as 0.
func queryInt(c *gin.Context, key string) int {
	n, _ := strconv.Atoi(c.Query(key))
	return n
}
