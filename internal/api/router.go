package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/clipline/internal/api/handlers"
	"github.com/your-org/clipline/internal/auth"
	"github.com/your-org/clipline/internal/config"
)

type RouterConfig struct {
	APIKey   string
	Pipeline handlers.ProcessPipeline
	Store    interface {
		handlers.ObjectStatter
		handlers.Pinger
	}
	Signer      handlers.URLSigner
	Producer    handlers.JobPublisher
	QueuePinger handlers.QueuePinger
	Manager     handlers.Forwarder
	PipelineCfg config.PipelineConfig
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Store, cfg.QueuePinger)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authed := r.Group("")
	authed.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// Orchestration endpoints
	processH := handlers.NewProcessHandler(cfg.Pipeline, cfg.Store, cfg.Signer, cfg.Producer, cfg.PipelineCfg)
	authed.POST("/process", processH.Process)
	authed.POST("/process-async", processH.ProcessAsync)

	// Pass-through routes forwarded verbatim to the backing process.
	proxyH := handlers.NewProxyHandler(cfg.Manager)
	for _, path := range []string{
		"/health",
		"/ready",
		"/jobs",
		"/jobs/:id",
		"/debug",
		"/process-local",
		"/process-url",
		"/process-streaming",
	} {
		authed.Any(path, proxyH.Forward)
	}

	return r
}
