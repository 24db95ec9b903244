package models

import "time"

// Message types exchanged over the chat WebSocket.
const (
	MsgChat             = "chat"
	MsgChatResponse     = "chat_response"
	MsgBroadcast        = "broadcast"
	MsgLocationRequest  = "location_request"
	MsgAIRecommendation = "ai_recommendation"
	MsgPing             = "ping"
	MsgPong             = "pong"
	MsgUserJoined       = "user_joined"
	MsgUserLeft         = "user_left"
	MsgError            = "error"
)

// ChatMessage is the inbound WebSocket frame.
type ChatMessage struct {
	Type      string   `json:"type"`
	Message   string   `json:"message,omitempty"`
	Query     string   `json:"query,omitempty"`
	Latitude  *float64 `json:"lat,omitempty"`
	Longitude *float64 `json:"lng,omitempty"`
}

// ServerMessage is the outbound WebSocket frame.
type ServerMessage struct {
	Type      string    `json:"type"`
	Message   string    `json:"message,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	ShareURL  string    `json:"share_url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
