package realtime

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const wsMaxReadBytes = 512

// NewUpgrader accepts same-origin requests and the listed origins.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(o, "/")] = true
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowed[origin] {
				return true
			}
			return strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://") == r.Host
		},
	}
}

// WSTransport sends each frame as one text message.
type WSTransport struct {
	conn *websocket.Conn
}

func NewWSTransport(conn *websocket.Conn) *WSTransport {
	conn.SetReadLimit(wsMaxReadBytes)
	return &WSTransport{conn: conn}
}

func (t *WSTransport) WriteFrame(ctx context.Context, frame []byte) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultWriteTimeout)
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, frame)
}

func (t *WSTransport) Close() error {
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
		time.Now().Add(time.Second))
	return t.conn.Close()
}

// Drain discards client messages until the peer goes away. The stream is
// server to client only; reading is how close frames get noticed.
func (t *WSTransport) Drain() error {
	for {
		if _, _, err := t.conn.ReadMessage(); err != nil {
			return err
		}
	}
}
