package realtime

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// WSSink adapts a gorilla WebSocket connection to Sink. The registry
// serialises Send calls, which gorilla requires of writers.
type WSSink struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func NewWSSink(conn *websocket.Conn, writeTimeout time.Duration) *WSSink {
	return &WSSink{conn: conn, writeTimeout: writeTimeout}
}

// Send writes one text frame, bounded by the write timeout or ctx deadline,
// whichever is sooner.
func (s *WSSink) Send(ctx context.Context, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline := time.Now().Add(s.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, msg)
}

// Close sends a close frame and closes the socket.
func (s *WSSink) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return s.conn.Close()
}
