package api

import (
	"context"
	"os"
	"time"

	"github.com/SUNET/fedtrust/pkg/logging"
	"github.com/gin-gonic/gin"
)

// StartBackgroundRefresher periodically calls the server's trust registry's
// Refresh method and records the timestamp of each successful call, so
// readiness and status endpoints reflect freshness without every request
// paying the refresh cost itself.
//
// The registry is refreshed immediately upon calling this function, before
// starting the background loop.
func StartBackgroundRefresher(serverCtx *ServerContext, freq time.Duration) error {
	refresh := func() {
		serverCtx.RLock()
		reg := serverCtx.Registry
		serverCtx.RUnlock()
		if reg == nil {
			return
		}

		if err := reg.Refresh(context.Background()); err != nil {
			serverCtx.Logger.Error("registry refresh failed", logging.F("error", err.Error()))
			return
		}

		serverCtx.Lock()
		serverCtx.LastResolved = time.Now()
		serverCtx.Unlock()
		serverCtx.Logger.Info("registry refreshed successfully")
	}

	refresh()

	go func() {
		for {
			time.Sleep(freq)
			refresh()
		}
	}()
	return nil
}

// NewServerContext creates a new ServerContext with a configured logger.
// The ServerContext will always have a valid logger - if none is provided,
// it will use the DefaultLogger.
func NewServerContext(logger logging.Logger) *ServerContext {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &ServerContext{
		Logger: logger,
	}
}

// RegisterAPIRoutes registers all API endpoints on the given Gin router using ServerContext.
// It sets up the following endpoints:
//
// GET /status - Returns this entity's id and Façade health
//
// GET /info - Returns metadata about the configured trust registry
//
// POST /evaluation - Implements the AuthZEN Trust Registry Profile evaluation endpoint
//
// GET /.well-known/openid-federation - Serves this entity's own signed entity configuration
//
// GET /fetch - Serves the federation fetch endpoint for a registered subordinate
func RegisterAPIRoutes(r *gin.Engine, serverCtx *ServerContext) {
	r.GET("/status", StatusHandler(serverCtx))
	r.GET("/info", InfoHandler(serverCtx))
	r.POST("/evaluation", AuthZENDecisionHandler(serverCtx))
	r.GET("/.well-known/openid-federation", EntityConfigurationHandler(serverCtx))
	r.GET("/fetch", FetchHandler(serverCtx))

	if os.Getenv("GO_TRUST_TEST_MODE") == "1" {
		r.POST("/test/shutdown", TestShutdownHandler(serverCtx))
		serverCtx.Logger.Warn("Test mode enabled: /test/shutdown endpoint is available")
	}
}
