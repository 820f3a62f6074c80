// Package app wires config into a running market data Service.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gurram46/Artha-Agent-sub001/internal/config"
	"github.com/gurram46/Artha-Agent-sub001/internal/httpx"
	"github.com/gurram46/Artha-Agent-sub001/internal/marketdata"
	"github.com/gurram46/Artha-Agent-sub001/internal/persist"
	"github.com/gurram46/Artha-Agent-sub001/internal/persist/filestore"
	"github.com/gurram46/Artha-Agent-sub001/internal/persist/pgstore"
	"github.com/gurram46/Artha-Agent-sub001/internal/persist/redisstore"
	"github.com/gurram46/Artha-Agent-sub001/internal/persist/sqlitestore"
	"github.com/gurram46/Artha-Agent-sub001/internal/provider"
	"github.com/gurram46/Artha-Agent-sub001/internal/provider/ratelimit"
	"github.com/gurram46/Artha-Agent-sub001/internal/provider/upstream"
)

// App bundles the Service with the resources it owns.
type App struct {
	Service  *marketdata.Service
	Fallback *persist.Fallback

	closers []func() error
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// SyncConfig converts the sync and upstream sections into Service timings.
func SyncConfig(cfg config.Config) marketdata.Config {
	return marketdata.Config{
		FreshnessWindow:   seconds(cfg.Sync.FreshnessSec),
		PersistenceWindow: seconds(cfg.Sync.PersistenceMaxAgeSec),
		PollInterval:      seconds(cfg.Sync.PollIntervalSec),
		Cooldown:          seconds(cfg.Sync.CooldownSec),
		TopTimeout:        seconds(cfg.Upstream.TopTimeoutSec),
		DetailTimeout:     seconds(cfg.Upstream.DetailTimeoutSec),
		SeriesTimeout:     seconds(cfg.Upstream.SeriesTimeoutSec),
	}
}

// NewUpstream builds the HTTP client chain: pooled transport, API client,
// then an optional client-side pacing decorator.
func NewUpstream(cfg config.Upstream) provider.Upstream {
	hc := httpx.New(0, cfg.UserAgent)

	var up provider.Upstream = upstream.New(
		upstream.WithBaseURL(cfg.BaseURL),
		upstream.WithHTTPClient(hc),
		upstream.WithAPIKey(cfg.APIKey),
	)
	if cfg.MaxRequestsPerMinute > 0 {
		up = &ratelimit.Limited{Upstream: up, Bucket: ratelimit.PerMinute(cfg.MaxRequestsPerMinute, cfg.Burst)}
	} else if cfg.MinRequestIntervalSec > 0 {
		up = &ratelimit.MinInterval{Upstream: up, Interval: seconds(cfg.MinRequestIntervalSec)}
	}
	return up
}

// OpenStore opens the configured persistence backend. The returned closer
// is never nil. Driver "none" yields a nil Store.
func OpenStore(ctx context.Context, cfg config.Store) (persist.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Driver {
	case "sqlite":
		s, err := sqlitestore.Open(cfg.Path)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case "file":
		s, err := filestore.New(filepath.Clean(cfg.Path))
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	case "redis":
		s, err := redisstore.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case "postgres":
		s, err := pgstore.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, noop, err
		}
		return s, func() error { s.Close(); return nil }, nil
	case "memory":
		return persist.NewMemory(), noop, nil
	case "none", "":
		return nil, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// New wires a Service from cfg. A store that cannot be opened is logged and
// replaced by no persistence; the Service runs without it.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, closeStore, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		logger.Warn("snapshot store unavailable, continuing without persistence",
			"driver", cfg.Store.Driver,
			"error", err,
		)
		store = nil
	}

	fb := persist.NewFallback(store, persist.WithLogger(logger.With("component", "persist")))
	svc := marketdata.New(NewUpstream(cfg.Upstream), SyncConfig(cfg),
		marketdata.WithLogger(logger.With("component", "marketdata")),
		marketdata.WithFallback(fb),
	)

	return &App{Service: svc, Fallback: fb, closers: []func() error{closeStore}}, nil
}

// Close shuts the Service down, waits for pending snapshot saves and
// releases the store.
func (a *App) Close(ctx context.Context) error {
	a.Service.Shutdown()
	err := a.Fallback.Flush(ctx)
	for _, c := range a.closers {
		err = errors.Join(err, c())
	}
	return err
}

// NewLogger returns a text logger writing to w at the configured level.
func NewLogger(w io.Writer, cfg config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}
