package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lobbysim/eventpipe/internal/auth"
	"github.com/lobbysim/eventpipe/internal/broker"
	"github.com/lobbysim/eventpipe/internal/config"
	"github.com/lobbysim/eventpipe/internal/handlers"
	"github.com/lobbysim/eventpipe/internal/store"
	"github.com/lobbysim/eventpipe/internal/upstream"
)

// Deps are the collaborators the router serves. Everything except the
// config may be nil; the ingress degrades instead of refusing to boot.
type Deps struct {
	Store    *store.PostgresStore
	Broker   broker.Publisher
	Dialogue upstream.Dialogue
	Speech   upstream.Speech
	Logger   *slog.Logger
}

// NewRouter wires public endpoints and authenticated APIs.
// Public: /health, /ready
// Authenticated: /events, /metrics, /dialogue, /speech
func NewRouter(cfg config.Config, deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	// Liveness: confirms the process is running.
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness: confirms the configured dependencies are reachable.
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if deps.Store != nil {
			if err := deps.Store.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
				return
			}
		}
		if deps.Broker != nil {
			if err := deps.Broker.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	// Auth group identifies the calling client via X-API-Key.
	authGroup := r.Group("/")
	authGroup.Use(auth.APIKeyMiddleware(cfg.APIKeys))

	handlers.RegisterEventRoutes(authGroup, deps.Broker, deps.Store, deps.Logger)
	handlers.RegisterMetricRoutes(authGroup, deps.Store)
	handlers.RegisterProxyRoutes(authGroup, deps.Dialogue, deps.Speech, deps.Logger)

	return r
}
