package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/axellelanca/locashare/internal/ai"
	customerrors "github.com/axellelanca/locashare/internal/errors"
	"github.com/axellelanca/locashare/internal/models"
	"github.com/axellelanca/locashare/internal/realtime"
	"github.com/axellelanca/locashare/internal/services"
)

const maxFrameBytes = 64 << 10

// RecommendRequest is the body of POST /api/chat/recommend.
type RecommendRequest struct {
	Message   string   `json:"message" binding:"required"`
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
	Category  string   `json:"category"`
}

// RecommendResponse carries the text and a short link to share it.
type RecommendResponse struct {
	Response string `json:"response"`
	ShareURL string `json:"share_url"`
}

func (h *Handlers) Recommend(c *gin.Context) {
	var req RecommendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	text, shareURL, err := h.recommendAndShare(c.Request.Context(), ai.Request{
		Query:     req.Message,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, RecommendResponse{Response: text, ShareURL: shareURL})
}

// recommendAndShare asks the recommender and stores a short-lived link that
// reopens the same recommendation.
func (h *Handlers) recommendAndShare(ctx context.Context, req ai.Request) (string, string, error) {
	text, err := h.recommender.Recommend(ctx, req)
	if err != nil {
		return "", "", err
	}

	q := url.Values{}
	q.Set("q", req.Query)
	if req.HasLocation() {
		q.Set("lat", strconv.FormatFloat(*req.Latitude, 'f', 6, 64))
		q.Set("lng", strconv.FormatFloat(*req.Longitude, 'f', 6, 64))
	}
	ttl := h.opts.ShareTTLDays
	link, err := h.links.CreateLink(ctx, services.CreateLinkInput{
		URL:     h.opts.BaseURL + "/share/recommendation?" + q.Encode(),
		TTLDays: &ttl,
	})
	if err != nil {
		return "", "", err
	}
	return text, h.shortURL(link.ShortCode), nil
}

// SharedRecommendation is the landing page of share links.
func (h *Handlers) SharedRecommendation(c *gin.Context) {
	req, err := aiRequestFromQuery(c, "q")
	if err != nil {
		h.respondError(c, err)
		return
	}
	text, err := h.recommender.Recommend(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"query":     req.Query,
		"latitude":  req.Latitude,
		"longitude": req.Longitude,
		"response":  text,
	})
}

// aiRequestFromQuery reads the query text from param and optional lat/lng.
func aiRequestFromQuery(c *gin.Context, param string) (ai.Request, error) {
	const op = "api.aiRequestFromQuery"
	req := ai.Request{Query: c.Query(param)}
	if req.Query == "" {
		return req, customerrors.InvalidArgument(op, "%s is required", param)
	}
	lat, lng := c.Query("lat"), c.Query("lng")
	if lat == "" && lng == "" {
		return req, nil
	}
	la, err1 := strconv.ParseFloat(lat, 64)
	ln, err2 := strconv.ParseFloat(lng, 64)
	if err1 != nil || err2 != nil {
		return req, customerrors.InvalidArgument(op, "lat and lng must both be numbers")
	}
	req.Latitude, req.Longitude = &la, &ln
	return req, nil
}

// ChatSocket upgrades GET /ws/chat/:userId and serves the chat protocol
// until the client leaves or the idle sweep closes the connection.
func (h *Handlers) ChatSocket(c *gin.Context) {
	userID := c.Param("userId")
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WarnContext(c.Request.Context(), "websocket upgrade failed", slog.Any("error", err))
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	ctx := c.Request.Context()
	connID := h.registry.Register(userID, realtime.NewWSSink(conn, h.opts.WriteTimeout))
	log := h.logger.With(slog.String("user_id", userID), slog.String("conn_id", connID))
	log.InfoContext(ctx, "websocket connected")

	h.broadcast(ctx, userID, models.ServerMessage{Type: models.MsgUserJoined, UserID: userID})
	defer func() {
		h.registry.Unregister(connID)
		h.broadcast(context.Background(), userID, models.ServerMessage{Type: models.MsgUserLeft, UserID: userID})
		log.Info("websocket disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.registry.Touch(connID)
		h.handleFrame(ctx, connID, userID, data)
	}
}

func (h *Handlers) handleFrame(ctx context.Context, connID, userID string, data []byte) {
	var msg models.ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.reply(ctx, connID, models.ServerMessage{Type: models.MsgError, Message: "invalid JSON"})
		return
	}

	switch msg.Type {
	case models.MsgChat:
		h.reply(ctx, connID, models.ServerMessage{Type: models.MsgChatResponse, UserID: userID, Message: msg.Message})
		h.broadcast(ctx, userID, models.ServerMessage{Type: models.MsgBroadcast, UserID: userID, Message: msg.Message})

	case models.MsgLocationRequest:
		if msg.Latitude == nil || msg.Longitude == nil {
			h.reply(ctx, connID, models.ServerMessage{Type: models.MsgError, Message: "lat and lng are required"})
			return
		}
		query := msg.Query
		if query == "" {
			query = msg.Message
		}
		if query == "" {
			query = "places nearby"
		}
		text, shareURL, err := h.recommendAndShare(ctx, ai.Request{Query: query, Latitude: msg.Latitude, Longitude: msg.Longitude})
		if err != nil {
			h.logger.ErrorContext(ctx, "websocket recommendation failed", slog.String("user_id", userID), slog.Any("error", err))
			h.reply(ctx, connID, models.ServerMessage{Type: models.MsgError, Message: "could not generate a recommendation"})
			return
		}
		h.reply(ctx, connID, models.ServerMessage{Type: models.MsgAIRecommendation, UserID: userID, Message: text, ShareURL: shareURL})

	case models.MsgPing:
		h.reply(ctx, connID, models.ServerMessage{Type: models.MsgPong})

	default:
		h.reply(ctx, connID, models.ServerMessage{Type: models.MsgError, Message: "unknown message type"})
	}
}

func (h *Handlers) reply(ctx context.Context, connID string, msg models.ServerMessage) {
	msg.Timestamp = time.Now().UTC()
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encode websocket frame", slog.Any("error", err))
		return
	}
	h.registry.SendTo(ctx, connID, data)
}

// broadcast sends msg to every connection not owned by from.
func (h *Handlers) broadcast(ctx context.Context, from string, msg models.ServerMessage) {
	msg.Timestamp = time.Now().UTC()
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encode websocket frame", slog.Any("error", err))
		return
	}
	h.broadcaster.BroadcastExcept(ctx, from, data)
}
