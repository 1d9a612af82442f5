package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"chatrelay/internal/stream"
)

const wsWriteWait = 5 * time.Second

// wsSink writes each frame as one text message.
type wsSink struct{ conn *websocket.Conn }

func (s wsSink) WriteFrame(frame []byte) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

func originAllowed(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" { // CLI/servers
			return true
		}
		for _, o := range allowed {
			o = strings.TrimSpace(o)
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// WS carries the same event frames as SSE over a WebSocket. Client messages
// are read only to notice disconnects.
func WS(allowedOrigins []string, svc ChatService, opts StreamOptions) http.HandlerFunc {
	upgrader := websocket.Upgrader{CheckOrigin: originAllowed(allowedOrigins)}

	return func(w http.ResponseWriter, r *http.Request) {
		if !upgrader.CheckOrigin(r) {
			WriteError(w, r, http.StatusForbidden, "origin_not_allowed", "origin not allowed")
			return
		}

		out := stream.NewOutbox(opts.SendQueue)
		id, ok := openSubscription(w, r, svc, out)
		if !ok {
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			svc.CloseSubscription(id)
			return
		}
		defer conn.Close()
		conn.SetReadLimit(512)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		sess := stream.NewSession(out, wsSink{conn}, tracker{svc}, opts.Session)
		sess.Registered(id)
		log.Debug().Str("subscriber", id).Str("transport", "ws").Msg("stream opened")
		reason := sess.Run(ctx)

		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
			time.Now().Add(wsWriteWait))
	}
}
