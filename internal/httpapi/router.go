package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/loominal/weft/internal/common/config"
	"github.com/loominal/weft/internal/common/httpmw"
	"github.com/loominal/weft/internal/common/logger"
	"github.com/loominal/weft/internal/project"
)

// NewRouter assembles the gin engine: ambient middleware, the
// unauthenticated health check, and the versioned /api surface
// (work/agents/targets/stats/websocket), each request resolved to its
// tenant project via the X-Project-ID header (see project.go).
func NewRouter(cfg *config.Config, log *logger.Logger, manager *project.Manager) *gin.Engine {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(httpmw.Recovery(log))
	engine.Use(httpmw.RequestLogger(log))
	engine.Use(httpmw.CORS())
	engine.Use(httpmw.Tracing())
	engine.Use(httpmw.RateLimit(cfg.Server.RequestsPerSecond))
	engine.Use(httpmw.ErrorHandler(log))

	SetupHealthRoutes(engine, manager)

	api := engine.Group("/api")
	api.Use(httpmw.Auth(cfg.Auth.Token))
	api.Use(resolveProject(manager))

	SetupWorkRoutes(api)
	SetupAgentRoutes(api)
	SetupTargetRoutes(api)
	SetupStatsRoutes(api, manager)

	api.GET("/ws", func(c *gin.Context) {
		projectContext(c).Hub.Upgrade(c)
	})

	return engine
}
