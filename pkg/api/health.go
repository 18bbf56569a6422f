package api

import (
	"time"

	"github.com/SUNET/fedtrust/pkg/logging"
	"github.com/gin-gonic/gin"
)

// HealthResponse represents the response from health check endpoints
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadinessResponse represents the response from the readiness endpoint
type ReadinessResponse struct {
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
	EntityID     string    `json:"entity_id,omitempty"`
	LastResolved string    `json:"last_resolved,omitempty"`
	Ready        bool      `json:"ready"`
	Message      string    `json:"message,omitempty"`
}

// RegisterHealthEndpoints registers health check endpoints on the given Gin router.
// These endpoints are useful for Kubernetes liveness and readiness probes, load balancers,
// and monitoring systems.
//
// Endpoints:
//
//	GET /health       - Liveness probe: returns 200 if the server is running
//	GET /healthz      - Alias for /health
//	GET /ready        - Readiness probe: returns 200 if a Façade is configured and healthy
//	GET /readiness    - Alias for /ready
//
// The /health endpoint always returns 200 OK if the server is running, indicating
// that the process is alive and can handle requests.
//
// The /ready endpoint checks whether a Façade has been configured and reports
// itself healthy (its Collector and Chain Verifier are wired). If these
// conditions are not met, it returns 503 Service Unavailable.
func RegisterHealthEndpoints(r *gin.Engine, serverCtx *ServerContext) {
	r.GET("/health", HealthHandler(serverCtx))
	r.GET("/healthz", HealthHandler(serverCtx))
	r.GET("/ready", ReadinessHandler(serverCtx))
	r.GET("/readiness", ReadinessHandler(serverCtx))

	serverCtx.Logger.Info("Health check endpoints registered",
		logging.F("endpoints", []string{"/health", "/healthz", "/ready", "/readiness"}))
}

// HealthHandler godoc
// @Summary Liveness check
// @Description Returns OK if the server is running and able to handle requests
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
// @Router /healthz [get]
func HealthHandler(serverCtx *ServerContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		serverCtx.Logger.Debug("Health check requested",
			logging.F("remote_ip", c.ClientIP()),
			logging.F("endpoint", c.Request.URL.Path))

		c.JSON(200, HealthResponse{
			Status:    "ok",
			Timestamp: time.Now(),
		})
	}
}

// ReadinessHandler godoc
// @Summary Readiness check
// @Description Returns ready status once a Façade is configured and reports itself healthy
// @Tags Health
// @Produce json
// @Success 200 {object} ReadinessResponse "Service is ready"
// @Failure 503 {object} ReadinessResponse "Service is not ready"
// @Router /ready [get]
// @Router /readiness [get]
func ReadinessHandler(serverCtx *ServerContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		serverCtx.RLock()
		facadeConfigured := serverCtx.Facade != nil
		var healthy bool
		var entityID string
		if facadeConfigured {
			healthy = serverCtx.Facade.Healthy()
			entityID = serverCtx.BaseURL
		}
		lastResolved := ""
		if !serverCtx.LastResolved.IsZero() {
			lastResolved = serverCtx.LastResolved.Format(time.RFC3339)
		}
		serverCtx.RUnlock()

		isReady := facadeConfigured && healthy

		response := ReadinessResponse{
			Timestamp:    time.Now(),
			EntityID:     entityID,
			LastResolved: lastResolved,
			Ready:        isReady,
		}

		if isReady {
			response.Status = "ready"
			response.Message = "Service is ready to accept traffic"

			serverCtx.Logger.Debug("Readiness check passed",
				logging.F("remote_ip", c.ClientIP()),
				logging.F("endpoint", c.Request.URL.Path))

			c.JSON(200, response)
		} else {
			response.Status = "not_ready"
			if !facadeConfigured {
				response.Message = "Federation Entity Façade has not been configured yet"
			} else {
				response.Message = "Federation Entity Façade is not healthy"
			}

			serverCtx.Logger.Warn("Readiness check failed",
				logging.F("remote_ip", c.ClientIP()),
				logging.F("endpoint", c.Request.URL.Path),
				logging.F("reason", response.Message))

			c.JSON(503, response)
		}
	}
}
