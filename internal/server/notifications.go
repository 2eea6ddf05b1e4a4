package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// pingInterval keeps idle notification sockets alive through proxies.
const pingInterval = 30 * time.Second

// handleNotifications upgrades to a WebSocket and streams change events as
// JSON objects. The optional topic parameter restricts the stream to one
// directory or document id; without it every event is sent.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket accept failed", slog.String("error", err.Error()))

		return
	}
	defer conn.CloseNow()

	sub := s.events.Subscribe(topic)
	defer s.events.Unsubscribe(sub)

	// The client never sends; CloseRead handles control frames and cancels
	// ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")

			return
		case ev, ok := <-sub:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "unsubscribed")

				return
			}

			if err := wsjson.Write(ctx, conn, ev); err != nil {
				s.logClosed(err)

				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, pingInterval)
			err := conn.Ping(pingCtx)
			cancel()

			if err != nil {
				s.logClosed(err)

				return
			}
		}
	}
}

func (s *Server) logClosed(err error) {
	if errors.Is(err, context.Canceled) || websocket.CloseStatus(err) != -1 {
		return
	}

	s.logger.Debug("notification stream ended", slog.String("error", err.Error()))
}
