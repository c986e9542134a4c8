package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/summitlabs/summit-api/internal/checkin"
)

const (
	watchWriteTimeout = 10 * time.Second
	watchPingInterval = 30 * time.Second
)

// watchEvent is the single message type the watch stream emits. It carries
// no record data: it only tells the client to pull the change feed.
type watchEvent struct {
	Type string `json:"type"`
}

// handleWatch upgrades to a websocket and emits a "changed" event whenever
// another device of the same user lands a successful push. The stream is
// best-effort; a client that misses events still converges by polling the
// change feed.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request, user checkin.UserID) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "watch_unavailable", "change notifications are disabled")

		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed",
			slog.String("user_id", user.String()),
			slog.String("error", err.Error()),
		)

		return
	}
	defer conn.CloseNow()

	nudges, cancel := s.hub.Subscribe(user)
	defer cancel()

	// No client-to-server messages are expected; CloseRead reads them off
	// and cancels the context when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	s.logger.Debug("watch stream opened", slog.String("user_id", user.String()))

	ping := time.NewTicker(watchPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")

			return

		case <-nudges:
			if err := writeWatchEvent(ctx, conn, watchEvent{Type: "changed"}); err != nil {
				if !errors.Is(err, context.Canceled) {
					s.logger.Debug("watch stream write failed",
						slog.String("user_id", user.String()),
						slog.String("error", err.Error()),
					)
				}

				return
			}

		case <-ping.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, watchWriteTimeout)
			err := conn.Ping(pingCtx)
			pingCancel()

			if err != nil {
				return
			}
		}
	}
}

func writeWatchEvent(ctx context.Context, conn *websocket.Conn, event watchEvent) error {
	writeCtx, cancel := context.WithTimeout(ctx, watchWriteTimeout)
	defer cancel()

	return wsjson.Write(writeCtx, conn, event)
}
