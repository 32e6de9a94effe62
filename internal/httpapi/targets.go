package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loominal/weft/internal/batch"
	apperrors "github.com/loominal/weft/internal/common/errors"
	"github.com/loominal/weft/internal/cursor"
	"github.com/loominal/weft/internal/pagination"
	"github.com/loominal/weft/internal/target"
	v1 "github.com/loominal/weft/pkg/api/v1"
)

// TargetHandler holds the HTTP handlers for /api/targets.
type TargetHandler struct{}

func NewTargetHandler() *TargetHandler { return &TargetHandler{} }

// SetupTargetRoutes registers the target routes under group.
func SetupTargetRoutes(group *gin.RouterGroup) {
	h := NewTargetHandler()
	targets := group.Group("/targets")
	{
		targets.GET("", h.List)
		targets.POST("", h.Create)
		targets.GET("/:id", h.Get)
		targets.PUT("/:id", h.Update)
		targets.DELETE("/:id", h.Delete)
		targets.POST("/:id/test", h.Test)
		targets.POST("/:id/spin-up", h.SpinUp)
		targets.POST("/:id/enable", h.Enable)
		targets.POST("/:id/disable", h.Disable)
		targets.POST("/disable-batch", h.DisableBatch)
	}
}

// List handles GET /api/targets.
func (h *TargetHandler) List(c *gin.Context) {
	agentType := c.Query("type")
	status := c.Query("status")
	mechanism := c.Query("mechanism")

	filterHash := cursor.FilterHash(map[string]string{"type": agentType, "status": status, "mechanism": mechanism})
	state, _, err := decodeListCursor(c, filterHash)
	if err != nil {
		c.Error(err)
		return
	}

	items := projectContext(c).Targets.List(target.Filter{
		AgentType: v1.AgentType(agentType),
		Status:    v1.TargetStatus(status),
		Mechanism: mechanism,
	})
	page := pagination.Paginate(items, state, filterHash)

	c.JSON(http.StatusOK, gin.H{
		"targets":    page.Items,
		"count":      page.Count,
		"total":      page.Total,
		"hasMore":    page.HasMore,
		"nextCursor": page.NextCursor,
		"prevCursor": page.PrevCursor,
	})
}

type createTargetRequest struct {
	Name         string       `json:"name" binding:"required"`
	AgentType    v1.AgentType `json:"agentType"`
	Capabilities []string     `json:"capabilities"`
	Boundaries   []string     `json:"boundaries"`
	Mechanism    string       `json:"mechanism" binding:"required"`
}

// Create handles POST /api/targets.
func (h *TargetHandler) Create(c *gin.Context) {
	var req createTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.BadRequest(err.Error()))
		return
	}
	if !validAgentType(req.AgentType) {
		c.Error(apperrors.BadRequest("agentType must be one of copilot-cli, claude-code"))
		return
	}

	t := projectContext(c).Targets.Register(target.RegisterRequest{
		Name:         req.Name,
		AgentType:    req.AgentType,
		Capabilities: req.Capabilities,
		Boundaries:   req.Boundaries,
		Mechanism:    req.Mechanism,
	})
	c.JSON(http.StatusCreated, t)
}

// Get handles GET /api/targets/:id.
func (h *TargetHandler) Get(c *gin.Context) {
	id := c.Param("id")
	t, ok := projectContext(c).Targets.GetByID(id)
	if !ok {
		c.Error(apperrors.NotFound("target", id))
		return
	}
	c.JSON(http.StatusOK, t)
}

type updateTargetRequest struct {
	Capabilities []string `json:"capabilities"`
	Boundaries   []string `json:"boundaries"`
}

// Update handles PUT /api/targets/:id, replacing capabilities/boundaries.
// Status transitions go through the dedicated enable/disable/test/
// spin-up actions instead.
func (h *TargetHandler) Update(c *gin.Context) {
	var req updateTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.BadRequest(err.Error()))
		return
	}

	id := c.Param("id")
	t, ok := projectContext(c).Targets.Update(id, target.UpdateRequest{
		Capabilities: req.Capabilities,
		Boundaries:   req.Boundaries,
	})
	if !ok {
		c.Error(apperrors.NotFound("target", id))
		return
	}
	c.JSON(http.StatusOK, t)
}

// Delete handles DELETE /api/targets/:id.
func (h *TargetHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if !projectContext(c).Targets.Remove(id) {
		c.Error(apperrors.NotFound("target", id))
		return
	}
	c.Status(http.StatusNoContent)
}

// Test handles POST /api/targets/:id/test.
func (h *TargetHandler) Test(c *gin.Context) {
	id := c.Param("id")
	health, err := projectContext(c).Targets.Test(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"health": health})
}

type spinUpRequest struct {
	WorkItemID *string `json:"workItemId"`
}

// SpinUp handles POST /api/targets/:id/spin-up.
func (h *TargetHandler) SpinUp(c *gin.Context) {
	var req spinUpRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(apperrors.BadRequest(err.Error()))
			return
		}
	}

	id := c.Param("id")
	if err := projectContext(c).Targets.TriggerSpinUp(c.Request.Context(), id, req.WorkItemID); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true, "message": "spin-up triggered"})
}

// Enable handles POST /api/targets/:id/enable.
func (h *TargetHandler) Enable(c *gin.Context) {
	id := c.Param("id")
	if !projectContext(c).Targets.Enable(id) {
		c.Error(apperrors.NotFound("target", id))
		return
	}
	t, _ := projectContext(c).Targets.GetByID(id)
	c.JSON(http.StatusOK, t)
}

// Disable handles POST /api/targets/:id/disable.
func (h *TargetHandler) Disable(c *gin.Context) {
	id := c.Param("id")
	if !projectContext(c).Targets.Disable(id) {
		c.Error(apperrors.NotFound("target", id))
		return
	}
	t, _ := projectContext(c).Targets.GetByID(id)
	c.JSON(http.StatusOK, t)
}

type disableBatchRequest struct {
	TargetIDs []string          `json:"targetIds"`
	Filter    map[string]string `json:"filter"`
	Reason    string            `json:"reason"`
}

// disableBatchResult extends batch.Result with the already-disabled
// bucket the idempotence law of spec.md §8 names explicitly.
type disableBatchResult struct {
	batch.Result
	AlreadyDisabled []string `json:"alreadyDisabled"`
}

// DisableBatch handles POST /api/targets/disable-batch.
func (h *TargetHandler) DisableBatch(c *gin.Context) {
	var req disableBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.BadRequest(err.Error()))
		return
	}

	registry := projectContext(c).Targets
	ids, err := batch.ResolveSelection(req.TargetIDs, req.Filter, func(f map[string]string) []string {
		items := registry.List(target.Filter{
			AgentType: v1.AgentType(f["type"]),
			Status:    v1.TargetStatus(f["status"]),
			Mechanism: f["mechanism"],
		})
		out := make([]string, len(items))
		for i, t := range items {
			out[i] = t.ID
		}
		return out
	})
	if err != nil {
		c.Error(err)
		return
	}

	var alreadyDisabled []string
	result := batch.Apply(ids, func(id string) error {
		t, ok := registry.GetByID(id)
		if !ok {
			return apperrors.NotFound("target", id)
		}
		if t.Status == v1.TargetDisabled {
			alreadyDisabled = append(alreadyDisabled, id)
			return nil
		}
		registry.Disable(id)
		return nil
	})

	c.JSON(http.StatusOK, disableBatchResult{Result: result, AlreadyDisabled: alreadyDisabled})
}
