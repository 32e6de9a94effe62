package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loominal/weft/internal/project"
)

// HealthHandler serves the unauthenticated liveness probe.
type HealthHandler struct {
	manager *project.Manager
}

func NewHealthHandler(manager *project.Manager) *HealthHandler {
	return &HealthHandler{manager: manager}
}

// SetupHealthRoutes registers GET /health at the engine root, outside
// the authenticated /api group.
func SetupHealthRoutes(engine *gin.Engine, manager *project.Manager) {
	h := NewHealthHandler(manager)
	engine.GET("/health", h.Health)
}

func (h *HealthHandler) Health(c *gin.Context) {
	body := gin.H{
		"status":        "ok",
		"timestamp":     time.Now().UTC(),
		"documentation": "/api",
	}

	if ctx, ok := h.manager.Get(defaultProjectID); ok {
		stats := ctx.Stats()
		body["websocket"] = stats.WebSocket
	}

	c.JSON(http.StatusOK, body)
}
