package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portal/internal/auth"
	"portal/internal/config"
	"portal/internal/database"
	"portal/internal/handlers"
	"portal/internal/metrics"
	"portal/internal/server"
	"portal/internal/services"
	"portal/internal/views"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const discoveryTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		// No logger yet; zap's example logger writes JSON to stdout
		os.Exit(exitCode(zap.NewExample(), "invalid configuration", err))
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	zap.ReplaceGlobals(log)

	os.Exit(exitCode(log, "server stopped", run(cfg, log)))
}

// exitCode logs err, flushes log and returns the process exit status.
// os.Exit skips deferred calls, so the flush has to happen here.
func exitCode(log *zap.Logger, msg string, err error) int {
	code := 0
	if err != nil {
		log.Error(msg, zap.Error(err))
		code = 1
	}
	_ = log.Sync()
	return code
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.IsRelease() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func run(cfg config.Config, log *zap.Logger) error {
	gin.SetMode(cfg.Mode)

	db, err := database.Open(cfg.Database, cfg.IsRelease(), log)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(db); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), discoveryTimeout)
	authenticator, err := auth.NewOIDCAuthenticator(ctx, auth.OIDCConfig{
		IssuerURL:    cfg.Auth.IssuerURL,
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		RedirectURL:  cfg.CallbackURL(),
		Auth0Logout:  cfg.Auth.Auth0Logout,
	})
	cancel()
	if err != nil {
		return err
	}

	sealer, err := auth.NewSealer(cfg.Auth.Secret)
	if err != nil {
		return err
	}
	renderer, err := views.New()
	if err != nil {
		return err
	}

	m := metrics.New()
	provisioner := services.NewProvisioner(services.NewUserDirectory(db), m, log.Named("provisioning"))
	router := server.NewRouter(server.Dependencies{
		Auth: auth.NewManager(auth.ManagerConfig{
			Authenticator: authenticator,
			Sessions:      auth.NewSessionStore(db),
			Sealer:        sealer,
			Views:         renderer,
			Metrics:       m,
			Logger:        log,
			BaseURL:       cfg.BaseURL,
		}),
		Handlers: handlers.New(db, provisioner, renderer, log),
		Metrics:  m,
		Logger:   log,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", srv.Addr), zap.String("base_url", cfg.BaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}
