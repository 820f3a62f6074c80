package main

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/gurram46/Artha-Agent-sub001/internal/marketdata"
	"github.com/gurram46/Artha-Agent-sub001/internal/provider"
	"github.com/gurram46/Artha-Agent-sub001/internal/version"
)

type api struct {
	svc      *marketdata.Service
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	ID    string `json:"id,omitempty"`
}

type detailResponse struct {
	Quote *provider.Quote `json:"quote"`
}

func newRouter(svc *marketdata.Service, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	a := &api{
		svc:    svc,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	r := gin.New()
	r.Use(
		recoverPanic(logger),
		withCORS(),
		gzip.Gzip(gzip.BestSpeed, gzip.WithExcludedPaths([]string{"/api/v1/stream"})),
	)

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	v1 := r.Group("/api/v1")
	v1.GET("/quotes", a.handleTopQuotes)
	v1.GET("/quotes/:id", a.handleDetail)
	v1.GET("/quotes/:id/series", a.handleSeries)
	v1.GET("/status", a.handleStatus)
	v1.GET("/stream", a.handleStream)
	return r
}

func (a *api) handleTopQuotes(c *gin.Context) {
	c.JSON(http.StatusOK, a.svc.GetTopQuotes(c.Request.Context()))
}

func (a *api) handleDetail(c *gin.Context) {
	id := c.Param("id")
	q, err := a.svc.GetDetail(c.Request.Context(), id)
	if q == nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detailResponse{Quote: q})
}

func (a *api) handleSeries(c *gin.Context) {
	id := c.Param("id")
	w, err := provider.ParseWindow(c.Query("window"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), ID: id})
		return
	}
	series, err := a.svc.GetSeries(c.Request.Context(), id, w)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, series)
}

func (a *api) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version": version.Version,
		"commit":  version.Commit,
		"stats":   a.svc.Stats(),
	})
}

// statusFor maps a data-layer failure onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, marketdata.ErrInvalidWindow):
		return http.StatusBadRequest
	case errors.Is(err, provider.ErrNoDataAvailable):
		return http.StatusNotFound
	case errors.Is(err, provider.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, provider.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeError(c *gin.Context, err error) {
	if err == nil {
		err = provider.ErrNoDataAvailable
	}
	resp := errorResponse{Error: err.Error()}
	var fe *provider.FetchError
	if errors.As(err, &fe) {
		resp.Kind = fe.Kind.String()
		resp.ID = fe.ID
	}
	c.JSON(statusFor(err), resp)
}

func withCORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func recoverPanic(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("handler panic", "path", c.Request.URL.Path, "panic", rec)
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
			}
		}()
		c.Next()
	}
}
