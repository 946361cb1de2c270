package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/pokerboard-backend/internal/auth"
	"github.com/DoyleJ11/pokerboard-backend/internal/httpapi"
	"github.com/DoyleJ11/pokerboard-backend/internal/hub"
	"github.com/DoyleJ11/pokerboard-backend/internal/room"
	"github.com/DoyleJ11/pokerboard-backend/internal/store"
	"github.com/DoyleJ11/pokerboard-backend/internal/telemetry"
	"github.com/DoyleJ11/pokerboard-backend/internal/ws"
)

const shutdownGrace = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) (err error) {
	log := a.log

	shutdownTracing, err := telemetry.Setup(ctx, a.cfg.OTelEndpoint)
	if err != nil {
		return err
	}

	st, err := store.Open(a.cfg.Store(), log.Named("store"))
	if err != nil {
		return multierr.Append(err, shutdownTracing(context.Background()))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		err = multierr.Combine(err, st.Close(), shutdownTracing(flushCtx))
	}()

	// An embedded database starts empty; create the schema up front.
	if a.cfg.DBDriver == store.DriverSQLite {
		if err := st.Migrate(ctx); err != nil {
			return err
		}
	}

	h := hub.NewHub(ctx, st, room.Options{Backend: st, Log: log.Named("room")})

	authn := &auth.Authenticator{Token: auth.StoreResolver{Store: st}, Log: log}
	if a.cfg.JWTSecret != "" {
		authn.Bearer = auth.JWTResolver{Secret: []byte(a.cfg.JWTSecret), Users: st}
	}

	srv := &http.Server{
		Addr: a.cfg.Addr,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Hub:   h,
			Store: st,
			Auth:  authn,
			WS: ws.Config{
				WriteTimeout:   a.cfg.WSWriteTimeout,
				PingInterval:   a.cfg.WSPingInterval,
				OutboxSize:     a.cfg.OutboxSize,
				OriginPatterns: a.cfg.OriginPatterns,
			},
			Log: log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		h.Shutdown()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
