package api

import (
	"net/http"
	"os"
	"time"

	"github.com/SUNET/fedtrust/pkg/authzen"
	"github.com/SUNET/fedtrust/pkg/federation"
	"github.com/SUNET/fedtrust/pkg/logging"
	"github.com/gin-gonic/gin"
)

// StatusHandler godoc
// @Summary Get server status
// @Description Returns this entity's id and whether its Façade is currently healthy
// @Tags Status
// @Produce json
// @Success 200 {object} map[string]interface{} "entity_id, healthy, last_resolved"
// @Router /status [get]
func StatusHandler(serverCtx *ServerContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		serverCtx.RLock()
		defer serverCtx.RUnlock()

		healthy := serverCtx.Facade != nil && serverCtx.Facade.Healthy()

		serverCtx.Logger.Info("API status request",
			logging.F("remote_ip", c.ClientIP()),
			logging.F("healthy", healthy))

		c.JSON(200, gin.H{
			"entity_id":     serverCtx.BaseURL,
			"healthy":       healthy,
			"last_resolved": serverCtx.LastResolved.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
}

// AuthZENDecisionHandler godoc
// @Summary Evaluate trust decision (AuthZEN)
// @Description Evaluates a name-to-key binding according to the AuthZEN Trust Registry Profile,
// @Description delegating the decision to the server's configured trust registry (an OpenID
// @Description Federation Façade, an ETSI TSL registry, or a CompositeRegistry combining several).
// @Tags AuthZEN
// @Accept json
// @Produce json
// @Param request body authzen.EvaluationRequest true "AuthZEN Evaluation Request"
// @Success 200 {object} authzen.EvaluationResponse "Trust decision (decision=true for trusted, false for untrusted)"
// @Failure 400 {object} map[string]string "Invalid request format"
// @Router /evaluation [post]
func AuthZENDecisionHandler(serverCtx *ServerContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req authzen.EvaluationRequest
		if err := c.BindJSON(&req); err != nil {
			serverCtx.Logger.Error("Invalid AuthZEN request",
				logging.F("remote_ip", c.ClientIP()), logging.F("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		if err := req.Validate(); err != nil {
			serverCtx.Logger.Warn("AuthZEN request failed validation",
				logging.F("remote_ip", c.ClientIP()), logging.F("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		serverCtx.RLock()
		reg := serverCtx.Registry
		serverCtx.RUnlock()

		if reg == nil {
			serverCtx.Logger.Error("AuthZEN request failed: no registry configured",
				logging.F("remote_ip", c.ClientIP()))
			c.JSON(200, authzen.EvaluationResponse{
				Decision: false,
				Context:  &authzen.EvaluationResponseContext{Reason: map[string]interface{}{"error": "no trust registry configured"}},
			})
			return
		}

		start := time.Now()
		resp, err := reg.Evaluate(c.Request.Context(), &req)
		if serverCtx.Metrics != nil {
			serverCtx.Metrics.RecordCertValidation(time.Since(start), err == nil && resp != nil && resp.Decision)
		}
		if err != nil {
			serverCtx.Logger.Error("AuthZEN evaluation failed",
				logging.F("remote_ip", c.ClientIP()), logging.F("error", err.Error()))
			c.JSON(200, authzen.EvaluationResponse{
				Decision: false,
				Context:  &authzen.EvaluationResponseContext{Reason: map[string]interface{}{"error": err.Error()}},
			})
			return
		}

		serverCtx.Logger.Info("AuthZEN request evaluated",
			logging.F("remote_ip", c.ClientIP()),
			logging.F("subject", req.Subject.ID),
			logging.F("decision", resp.Decision))
		c.JSON(200, resp)
	}
}

// InfoHandler godoc
// @Summary Get trust registry information
// @Description Returns metadata about the trust registry backing the AuthZEN evaluation endpoint
// @Tags Status
// @Produce json
// @Success 200 {object} map[string]interface{} "registry"
// @Router /info [get]
func InfoHandler(serverCtx *ServerContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		serverCtx.RLock()
		defer serverCtx.RUnlock()

		var info gin.H
		if serverCtx.Registry != nil {
			regInfo := serverCtx.Registry.Info()
			info = gin.H{
				"name":           regInfo.Name,
				"type":           regInfo.Type,
				"description":    regInfo.Description,
				"resource_types": serverCtx.Registry.SupportedResourceTypes(),
			}
		}

		serverCtx.Logger.Info("API info request", logging.F("remote_ip", c.ClientIP()))

		c.JSON(200, gin.H{"registry": info})
	}
}

// EntityConfigurationHandler serves this entity's own signed entity
// configuration at GET /.well-known/openid-federation (spec.md section 4.9
// item 5).
func EntityConfigurationHandler(serverCtx *ServerContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		serverCtx.RLock()
		f := serverCtx.Facade
		serverCtx.RUnlock()

		if f == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "entity not configured"})
			return
		}

		token, err := f.EntityConfigurationEndpointHandler()
		if err != nil {
			serverCtx.Logger.Error("failed to issue entity configuration", logging.F("error", err.Error()))
			c.String(http.StatusInternalServerError, "failed to issue entity configuration")
			return
		}
		c.Data(http.StatusOK, "application/entity-statement+jwt", []byte(token))
	}
}

// FetchHandler serves the federation fetch endpoint (spec.md section 4.9
// item 4): GET /fetch?iss=...&sub=..., returning the signed subordinate
// statement iss issued about sub.
func FetchHandler(serverCtx *ServerContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		serverCtx.RLock()
		f := serverCtx.Facade
		serverCtx.RUnlock()

		if f == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "entity not configured"})
			return
		}

		issParam := c.Query("iss")
		subParam := c.Query("sub")
		if issParam == "" || subParam == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "iss and sub query parameters are required"})
			return
		}

		iss, err := federation.NewIdentifier(issParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid iss: " + err.Error()})
			return
		}
		sub, err := federation.NewIdentifier(subParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sub: " + err.Error()})
			return
		}

		token, err := f.FetchEndpointHandler(iss, sub)
		if err != nil {
			serverCtx.Logger.Warn("fetch endpoint request failed",
				logging.F("iss", issParam), logging.F("sub", subParam), logging.F("error", err.Error()))
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "application/entity-statement+jwt", []byte(token))
	}
}

// TestShutdownHandler godoc (test mode only)
func TestShutdownHandler(serverCtx *ServerContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		serverCtx.Logger.Info("Shutdown requested via /test/shutdown endpoint",
			logging.F("remote_ip", c.ClientIP()))

		c.JSON(200, gin.H{"message": "shutting down"})

		go func() {
			time.Sleep(100 * time.Millisecond)
			os.Exit(0)
		}()
	}
}
