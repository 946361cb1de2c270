package ws

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/pokerboard-backend/internal/auth"
	"github.com/DoyleJ11/pokerboard-backend/internal/hub"
	"github.com/DoyleJ11/pokerboard-backend/internal/room"
)

type Config struct {
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	OutboxSize     int
	OriginPatterns []string
}

func (c Config) withDefaults() Config {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.OutboxSize <= 0 {
		c.OutboxSize = 16
	}
	return c
}

// Handler upgrades GET /ws/sessions/{sessionID} for an authenticated board
// member and relays frames between the socket and the session's room.
func Handler(h *hub.Hub, cfg Config, log *zap.Logger) http.HandlerFunc {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := strconv.ParseUint(chi.URLParam(r, "sessionID"), 10, 64)
		if err != nil || sessionID == 0 {
			http.Error(w, "bad session id", http.StatusBadRequest)
			return
		}

		user, _ := auth.UserFrom(r.Context())
		if _, err := h.Admit(r.Context(), uint(sessionID), user); err != nil {
			status := admitStatus(err)
			if status == http.StatusInternalServerError {
				log.Error("admit connection", zap.Uint64("session_id", sessionID), zap.Error(err))
			}
			http.Error(w, err.Error(), status)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: cfg.OriginPatterns,
		})
		if err != nil {
			log.Info("websocket accept", zap.Error(err))
			return
		}
		defer conn.CloseNow()

		rm, err := h.Attach(r.Context(), uint(sessionID))
		if err != nil {
			conn.Close(websocket.StatusTryAgainLater, "server shutting down")
			return
		}

		connID := uuid.NewString()
		out := make(chan []byte, cfg.OutboxSize)
		log := log.With(zap.Uint64("session_id", sessionID), zap.String("conn_id", connID), zap.Uint("user_id", user.ID))

		if !rm.Send(room.Join{ConnID: connID, User: user, Outbox: out}) {
			h.Detach(uint(sessionID))
			conn.Close(websocket.StatusTryAgainLater, "session closed")
			return
		}
		// Leave must reach the room before Detach can shut it down.
		defer func() {
			rm.Send(room.Leave{ConnID: connID})
			h.Detach(uint(sessionID))
		}()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go writeLoop(ctx, conn, out, cfg, log)

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					log.Debug("connection closed")
				default:
					if !errors.Is(err, context.Canceled) {
						log.Debug("read failed", zap.Error(err))
					}
				}
				return
			}
			if !rm.Send(room.FromClient{ConnID: connID, Data: data}) {
				return
			}
		}
	}
}

// writeLoop drains the outbox to the socket and keeps the peer alive with
// pings. A closed outbox means the room let go of this connection.
func writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan []byte, cfg Config, log *zap.Logger) {
	ping := time.NewTicker(cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case payload, ok := <-out:
			if !ok {
				conn.Close(websocket.StatusPolicyViolation, "connection dropped")
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, cfg.WriteTimeout)
			err := conn.Write(wctx, websocket.MessageText, payload)
			wcancel()
			if err != nil {
				log.Debug("write failed", zap.Error(err))
				conn.CloseNow()
				return
			}

		case <-ping.C:
			pctx, pcancel := context.WithTimeout(ctx, cfg.WriteTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				log.Debug("ping failed", zap.Error(err))
				conn.CloseNow()
				return
			}
		}
	}
}

func admitStatus(err error) int {
	switch {
	case errors.Is(err, hub.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, hub.ErrAnonymous):
		return http.StatusUnauthorized
	case errors.Is(err, hub.ErrNotMember), errors.Is(err, hub.ErrSessionClosed):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
