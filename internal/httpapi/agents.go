package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loominal/weft/internal/agent"
	"github.com/loominal/weft/internal/batch"
	apperrors "github.com/loominal/weft/internal/common/errors"
	"github.com/loominal/weft/internal/cursor"
	"github.com/loominal/weft/internal/pagination"
	v1 "github.com/loominal/weft/pkg/api/v1"
)

// AgentHandler holds the HTTP handlers for /api/agents.
type AgentHandler struct{}

func NewAgentHandler() *AgentHandler { return &AgentHandler{} }

// SetupAgentRoutes registers the agent routes under group.
func SetupAgentRoutes(group *gin.RouterGroup) {
	h := NewAgentHandler()
	agents := group.Group("/agents")
	{
		agents.GET("", h.List)
		agents.GET("/:guid", h.Get)
		agents.POST("/:guid/shutdown", h.Shutdown)
		agents.POST("/shutdown-batch", h.ShutdownBatch)
	}
}

// List handles GET /api/agents.
func (h *AgentHandler) List(c *gin.Context) {
	agentType := c.Query("type")
	status := c.Query("status")
	capability := c.Query("capability")

	filterHash := cursor.FilterHash(map[string]string{"type": agentType, "status": status, "capability": capability})
	state, _, err := decodeListCursor(c, filterHash)
	if err != nil {
		c.Error(err)
		return
	}

	items := projectContext(c).Agents.List(agent.Filter{
		AgentType:  v1.AgentType(agentType),
		Status:     v1.AgentStatus(status),
		Capability: capability,
	})
	page := pagination.Paginate(items, state, filterHash)

	c.JSON(http.StatusOK, gin.H{
		"agents":     page.Items,
		"count":      page.Count,
		"total":      page.Total,
		"hasMore":    page.HasMore,
		"nextCursor": page.NextCursor,
		"prevCursor": page.PrevCursor,
	})
}

// Get handles GET /api/agents/:guid.
func (h *AgentHandler) Get(c *gin.Context) {
	guid := c.Param("guid")
	a, ok := projectContext(c).Agents.GetByGUID(guid)
	if !ok {
		c.Error(apperrors.NotFound("agent", guid))
		return
	}
	c.JSON(http.StatusOK, a)
}

type shutdownRequest struct {
	Graceful bool `json:"graceful"`
}

// Shutdown handles POST /api/agents/:guid/shutdown.
func (h *AgentHandler) Shutdown(c *gin.Context) {
	var req shutdownRequest
	req.Graceful = true
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(apperrors.BadRequest(err.Error()))
			return
		}
	}

	guid := c.Param("guid")
	if !projectContext(c).Agents.Shutdown(guid) {
		c.Error(apperrors.NotFound("agent", guid))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "agent shut down", "graceful": req.Graceful})
}

type shutdownBatchRequest struct {
	AgentGUIDs    []string          `json:"agentGuids"`
	Filter        map[string]string `json:"filter"`
	Graceful      bool              `json:"graceful"`
	GracePeriodMs int               `json:"gracePeriodMs"`
	Reason        string            `json:"reason"`
}

// ShutdownBatch handles POST /api/agents/shutdown-batch.
func (h *AgentHandler) ShutdownBatch(c *gin.Context) {
	var req shutdownBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.BadRequest(err.Error()))
		return
	}

	registry := projectContext(c).Agents
	ids, err := batch.ResolveSelection(req.AgentGUIDs, req.Filter, func(f map[string]string) []string {
		items := registry.List(agent.Filter{
			AgentType:  v1.AgentType(f["type"]),
			Status:     v1.AgentStatus(f["status"]),
			Capability: f["capability"],
		})
		out := make([]string, len(items))
		for i, a := range items {
			out[i] = a.GUID
		}
		return out
	})
	if err != nil {
		c.Error(err)
		return
	}

	result := batch.Apply(ids, func(guid string) error {
		if !registry.Shutdown(guid) {
			return apperrors.NotFound("agent", guid)
		}
		return nil
	})

	c.JSON(http.StatusOK, result)
}
