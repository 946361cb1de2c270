package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/pokerboard-backend/internal/auth"
	"github.com/DoyleJ11/pokerboard-backend/internal/hub"
	"github.com/DoyleJ11/pokerboard-backend/internal/ws"
)

type Deps struct {
	Hub   *hub.Hub
	Store Store
	Auth  *auth.Authenticator
	WS    ws.Config
	Log   *zap.Logger
}

func SetupRoutes(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	h := handlers{store: d.Store, log: d.Log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLog(d.Log))

	// Public routes
	r.Get("/healthz", Healthz)

	r.Group(func(r chi.Router) {
		r.Use(d.Auth.Require)
		r.Get("/ws/sessions/{sessionID}", ws.Handler(d.Hub, d.WS, d.Log.Named("ws")))
		r.Post("/pokerboards/{boardID}/sessions", h.createSession)
		r.Get("/pokerboards/{boardID}/session", h.activeSession)
		r.Put("/pokerboards/{boardID}/tickets/order", h.reorder)
		r.Get("/votes", h.votedTickets)
	})
	return r
}

func requestLog(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
