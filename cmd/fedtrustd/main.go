// Command fedtrustd runs the federation trust-chain engine as an HTTP
// service: it resolves trust chains for entities on request, evaluates
// AuthZEN trust decisions, and serves this entity's own federation
// endpoints (entity configuration, fetch).
//
// # Running the Application
//
// Command line options:
//
//	--config       Path to a YAML configuration file
//	--tsl-pipeline Optional ETSI TSL pipeline YAML, composed alongside the
//	               federation registry via OR logic when both are present
//	--version      Show version information
//	--help         Show help message
//
// # API Endpoints
//
//	GET  /status                        - Façade health and entity id
//	GET  /info                          - Configured trust registry metadata
//	POST /evaluation                    - AuthZEN Trust Registry Profile decision
//	GET  /.well-known/openid-federation - This entity's signed entity configuration
//	GET  /fetch                         - Federation fetch endpoint for a subordinate
//
// See: https://github.com/SUNET/fedtrust for more information
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/SUNET/fedtrust/docs/swagger" // registers the generated swagger spec
	"github.com/SUNET/fedtrust/pkg/api"
	"github.com/SUNET/fedtrust/pkg/bootstrap"
	"github.com/SUNET/fedtrust/pkg/config"
	"github.com/SUNET/fedtrust/pkg/logging"
	"github.com/SUNET/fedtrust/pkg/pipeline"
	"github.com/SUNET/fedtrust/pkg/registry"
	"github.com/SUNET/fedtrust/pkg/registry/etsi"
)

// @title fedtrust API
// @version 1.0
// @description Federation trust-chain engine: trust-chain resolution, AuthZEN trust decisions, and this entity's own federation endpoints.
// @termsOfService https://github.com/SUNET/fedtrust

// @contact.name SUNET
// @contact.url https://github.com/SUNET/fedtrust

// @license.name BSD-2-Clause
// @license.url https://opensource.org/licenses/BSD-2-Clause

// @host localhost:6001
// @BasePath /
// @schemes http https

// @tag.name Health
// @tag.description Health and readiness endpoints for orchestrators and monitoring

// @tag.name Status
// @tag.description Server status and trust registry information

// @tag.name AuthZEN
// @tag.description AuthZEN Trust Registry Profile evaluation endpoint

// @tag.name Federation
// @tag.description This entity's own OpenID Federation endpoints

// Version is set at build time using -ldflags.
var Version = "dev"

func usage() {
	prog := os.Args[0]
	fmt.Fprintf(os.Stderr, "\nUsage: %s [options]\n", prog)
	fmt.Fprintln(os.Stderr, "Options:")
	fmt.Fprintln(os.Stderr, "  --help          Show this help message and exit.")
	fmt.Fprintln(os.Stderr, "  --version       Show version information and exit.")
	fmt.Fprintln(os.Stderr, "  --config        Path to a YAML configuration file.")
	fmt.Fprintln(os.Stderr, "  --tsl-pipeline  Optional ETSI TSL pipeline YAML to compose into the trust registry.")
	fmt.Fprintln(os.Stderr, "")
}

func newLogger(cfg *config.Config) logging.Logger {
	levels := map[string]logging.LogLevel{
		"debug": logging.DebugLevel,
		"info":  logging.InfoLevel,
		"warn":  logging.WarnLevel,
		"error": logging.ErrorLevel,
	}
	level, ok := levels[cfg.Logging.Level]
	if !ok {
		level = logging.InfoLevel
	}
	if cfg.Logging.Format == "json" {
		return logging.JSONLogger(level)
	}
	return logging.NewLogger(level)
}

func main() {
	showHelp := flag.Bool("help", false, "Show help message")
	showVersion := flag.Bool("version", false, "Show version information")
	configPath := flag.String("config", "", "Path to YAML configuration file")
	tslPipelinePath := flag.String("tsl-pipeline", "", "Optional ETSI TSL pipeline YAML")
	flag.Parse()

	if *showHelp {
		usage()
		os.Exit(0)
	}
	if *showVersion {
		fmt.Println("Version:", Version)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)

	comp, err := bootstrap.Build(cfg, logger)
	if err != nil {
		logger.Error("failed to build runtime components", logging.F("error", err.Error()))
		os.Exit(1)
	}
	defer comp.Close()
	if comp.Facade == nil {
		logger.Warn("no signing_cert_path/signing_key_path configured: entity configuration and fetch endpoints will be unavailable")
	}

	var reg registry.TrustRegistry
	if comp.Facade != nil {
		reg = comp.Facade
	}
	if *tslPipelinePath != "" {
		pl, err := pipeline.NewPipeline(*tslPipelinePath)
		if err != nil {
			logger.Error("failed to load TSL pipeline", logging.F("error", err.Error()))
			os.Exit(1)
		}
		pl = pl.WithLogger(logger)
		tslCtx, err := pl.Process(pipeline.NewContext())
		if err != nil {
			logger.Error("failed to process TSL pipeline", logging.F("error", err.Error()))
			os.Exit(1)
		}
		tslRegistry := etsi.NewTSLRegistry(tslCtx, "tsl")
		if reg != nil {
			reg = registry.NewCompositeRegistry("fedtrust", registry.LogicOR, reg, tslRegistry)
		} else {
			reg = tslRegistry
		}
	}

	serverCtx := api.NewServerContext(logger)
	serverCtx.Facade = comp.Facade
	serverCtx.Registry = reg
	serverCtx.BaseURL = comp.EntityID.String()
	if cfg.Security.RateLimitRPS > 0 {
		serverCtx.RateLimiter = api.NewRateLimiter(cfg.Security.RateLimitRPS, cfg.Security.RateLimitRPS*2)
	}
	serverCtx.Metrics = api.NewMetrics()

	if err := api.StartBackgroundRefresher(serverCtx, cfg.Server.Frequency); err != nil {
		logger.Error("failed to start background refresher", logging.F("error", err.Error()))
		os.Exit(1)
	}

	r := gin.Default()
	if serverCtx.RateLimiter != nil {
		r.Use(serverCtx.RateLimiter.Middleware())
	}
	r.Use(serverCtx.Metrics.MetricsMiddleware())
	api.RegisterAPIRoutes(r, serverCtx)
	api.RegisterHealthEndpoints(r, serverCtx)
	api.RegisterMetricsEndpoint(r, serverCtx.Metrics)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	listenAddr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Info("API server listening", logging.F("address", listenAddr))
	logger.Info("Swagger UI available", logging.F("url", fmt.Sprintf("http://%s/swagger/index.html", listenAddr)))
	if err := r.Run(listenAddr); err != nil {
		logger.Error("API server error", logging.F("error", err.Error()))
		os.Exit(1)
	}
}
