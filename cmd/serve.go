package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"secondserve/discovery"
	"secondserve/handlers"
	"secondserve/lifecycle"
	"secondserve/middleware"
	"secondserve/notify"
	"secondserve/routes"
	"secondserve/websocket"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	var noSweep bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, websocket endpoint and expiry sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := bootstrap(ctx, opts)
			if err != nil {
				return err
			}
			defer app.close()
			return app.serve(ctx, !noSweep)
		},
	}
	cmd.Flags().BoolVar(&noSweep, "no-sweep", false, "Do not run the expiry sweeper in this process")
	return cmd
}

func (a *App) serve(ctx context.Context, sweep bool) error {
	cfg, logger := a.cfg, a.logger
	gin.SetMode(cfg.GinMode)

	ws := websocket.NewManager(logger, cfg.AllowedOrigins)
	go ws.Start(ctx)

	subs := a.subs
	sinks := []notify.Sink{ws}
	if cfg.PushEnabled() {
		sinks = append(sinks, notify.NewWebPushSink(subs, cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject, logger))
	} else {
		logger.Warn("VAPID keys not set, web push disabled")
	}

	hub := notify.NewHub(logger, notify.WithSinks(sinks...))
	hub.Start()
	defer hub.Close()

	engine := lifecycle.NewEngine(a.posts, hub, a.options...)
	disc := discovery.NewService(a.posts, a.users, a.cache,
		discovery.WithLogger(logger), discovery.WithMaxResults(cfg.NearbyLimit))

	if sweep {
		go engine.RunSweeper(ctx, cfg.SweepInterval)
	}

	router := routes.SetupRouter(routes.Deps{
		Food:           handlers.NewFoodHandler(engine, disc, logger),
		Pickup:         handlers.NewPickupHandler(engine, disc, logger),
		Push:           handlers.NewPushHandler(subs, cfg.VAPIDPublicKey, logger),
		WS:             ws,
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimiter:    middleware.NewRateLimiter(cfg.RateLimit, cfg.RateLimitWindow),
		Logger:         logger,
		Health:         a.health,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Forced shutdown", zap.Error(err))
		return err
	}
	logger.Info("Server stopped", zap.Int64("droppedEvents", hub.Dropped()))
	return nil
}
