package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gurram46/Artha-Agent-sub001/internal/app"
	"github.com/gurram46/Artha-Agent-sub001/internal/config"
	"github.com/gurram46/Artha-Agent-sub001/internal/version"
)

func main() {
	cfg, err := config.LoadAndValidate(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	logger := app.NewLogger(os.Stdout, cfg)
	slog.SetDefault(logger)

	if cfg.Upstream.APIKey == "" {
		logger.Warn("UPSTREAM_API_KEY not set; requests go out unauthenticated")
	}
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup", "error", err)
		os.Exit(1)
	}

	writeTimeout := time.Duration(cfg.Server.RequestTimeoutSec)*time.Second + 5*time.Second
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           newRouter(a.Service, logger.With("component", "http")),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server listening",
			"addr", srv.Addr,
			"version", version.Version,
			"commit", version.Commit,
			"store", cfg.Store.Driver,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if err := a.Close(shutdownCtx); err != nil {
		logger.Warn("app close", "error", err)
	}
}
