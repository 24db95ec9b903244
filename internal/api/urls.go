package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	customerrors "github.com/axellelanca/locashare/internal/errors"
	"github.com/axellelanca/locashare/internal/services"
)

// CreateURLRequest is the body of POST /api/urls/create. ExpiresInDays
// absent means the link never expires.
type CreateURLRequest struct {
	URL           string `json:"url" binding:"required"`
	CustomCode    string `json:"custom_code"`
	ExpiresInDays *int   `json:"expires_in_days"`
}

// CreateURLResponse is returned for a new short link.
type CreateURLResponse struct {
	Code        string     `json:"code"`
	ShortURL    string     `json:"short_url"`
	OriginalURL string     `json:"original_url"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func (h *Handlers) CreateShortURL(c *gin.Context) {
	var req CreateURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	ttl := req.ExpiresInDays
	if ttl == nil && h.opts.DefaultTTLDays > 0 {
		days := h.opts.DefaultTTLDays
		ttl = &days
	}
	link, err := h.links.CreateLink(c.Request.Context(), services.CreateLinkInput{
		URL:        req.URL,
		CustomCode: req.CustomCode,
		TTLDays:    ttl,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, CreateURLResponse{
		Code:        link.ShortCode,
		ShortURL:    h.shortURL(link.ShortCode),
		OriginalURL: link.LongURL,
		ExpiresAt:   link.ExpiresAt,
	})
}

func (h *Handlers) URLStats(c *gin.Context) {
	stats, err := h.links.Stats(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handlers) ListURLs(c *gin.Context) {
	links, err := h.links.List(c.Request.Context(), queryInt(c, "limit"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"urls": links, "total": len(links)})
}

func (h *Handlers) DeleteURL(c *gin.Context) {
	code := c.Param("code")
	if err := h.links.Delete(c.Request.Context(), code); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": code, "deleted": true})
}

// Redirect resolves a short code with a 302. Unknown and expired codes get
// the same 404, and store failures never reach the client.
func (h *Handlers) Redirect(c *gin.Context) {
	target, err := h.links.Resolve(c.Request.Context(), c.Param("code"), services.Visitor{
		UserAgent: c.GetHeader("User-Agent"),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		if customerrors.KindOf(err) == customerrors.KindNotFound {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"detail": "short link not found"})
			return
		}
		h.respondError(c, err)
		return
	}
	c.Redirect(http.StatusFound, target)
}
