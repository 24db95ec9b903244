package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/axellelanca/locashare/internal/realtime"
)

// StreamAIChat handles GET /api/stream/ai-chat?query=&lat=&lng= and streams
// the recommendation as server-sent events.
func (h *Handlers) StreamAIChat(c *gin.Context) {
	req, err := aiRequestFromQuery(c, "query")
	if err != nil {
		h.respondError(c, err)
		return
	}
	sreq := realtime.StreamRequest{Query: req.Query, Latitude: req.Latitude, Longitude: req.Longitude}
	h.serveStream(c, sreq, realtime.AIProducer(h.recommender, sreq))
}

// StreamLocation handles GET /api/stream/location/:userId.
func (h *Handlers) StreamLocation(c *gin.Context) {
	userID := c.Param("userId")
	sreq := realtime.StreamRequest{UserID: userID}
	h.serveStream(c, sreq, realtime.LocationProducer(userID, h.opts.LocationInterval, nil))
}

// serveStream relays a session to the client until it ends. A client that
// goes away cancels the session through the request context.
func (h *Handlers) serveStream(c *gin.Context, req realtime.StreamRequest, producer realtime.Producer) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	session := h.dispatcher.Open(c.Request.Context(), req, producer)
	defer session.Cancel()

	for chunk := range session.Events() {
		c.SSEvent("", chunk)
		c.Writer.Flush()
	}
	h.logger.DebugContext(c.Request.Context(), "stream closed",
		slog.String("session_id", session.ID), slog.String("state", session.State().String()))
}
