package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loominal/weft/internal/batch"
	apperrors "github.com/loominal/weft/internal/common/errors"
	"github.com/loominal/weft/internal/cursor"
	"github.com/loominal/weft/internal/pagination"
	"github.com/loominal/weft/internal/work"
	v1 "github.com/loominal/weft/pkg/api/v1"
)

// WorkHandler holds the HTTP handlers for /api/work.
type WorkHandler struct{}

func NewWorkHandler() *WorkHandler { return &WorkHandler{} }

// SetupWorkRoutes registers the work-item routes under group.
func SetupWorkRoutes(group *gin.RouterGroup) {
	h := NewWorkHandler()
	work := group.Group("/work")
	{
		work.GET("", h.List)
		work.POST("", h.Submit)
		work.GET("/:id", h.Get)
		work.POST("/:id/cancel", h.Cancel)
		work.POST("/cancel-batch", h.CancelBatch)
	}
}

type submitWorkRequest struct {
	TaskID             string         `json:"taskId"`
	Description        string         `json:"description" binding:"required"`
	Capability         string         `json:"capability" binding:"required"`
	Boundary           string         `json:"boundary" binding:"required"`
	Priority           int            `json:"priority"`
	PreferredAgentType v1.AgentType   `json:"preferredAgentType"`
	RequiredAgentType  v1.AgentType   `json:"requiredAgentType"`
	Deadline           *time.Time     `json:"deadline"`
	ContextData        map[string]any `json:"contextData"`
}

// Submit handles POST /api/work.
func (h *WorkHandler) Submit(c *gin.Context) {
	var req submitWorkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.BadRequest(err.Error()))
		return
	}
	if err := validatePriority(req.Priority); err != nil {
		c.Error(err)
		return
	}
	if err := validateBoundary(req.Boundary); err != nil {
		c.Error(err)
		return
	}
	if !validAgentType(req.PreferredAgentType) {
		c.Error(apperrors.BadRequest("preferredAgentType must be one of copilot-cli, claude-code"))
		return
	}
	if !validAgentType(req.RequiredAgentType) {
		c.Error(apperrors.BadRequest("requiredAgentType must be one of copilot-cli, claude-code"))
		return
	}

	coordinator := projectContext(c).Work
	id := coordinator.SubmitWork(work.SubmitRequest{
		TaskID:      ensureTaskID(req.TaskID),
		Description: req.Description,
		Capability:  req.Capability,
		Boundary:    req.Boundary,
		Priority:    req.Priority,
		Deadline:    req.Deadline,
		ContextData: req.ContextData,
	})

	item, _ := coordinator.Get(id)
	c.JSON(http.StatusCreated, item)
}

// Get handles GET /api/work/:id.
func (h *WorkHandler) Get(c *gin.Context) {
	item, ok := projectContext(c).Work.Get(c.Param("id"))
	if !ok {
		c.Error(apperrors.NotFound("work item", c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, item)
}

// List handles GET /api/work.
func (h *WorkHandler) List(c *gin.Context) {
	status := c.Query("status")
	boundary := c.Query("boundary")
	classification := c.Query("classification")
	if boundary == "" && classification != "" {
		boundary = classification
		c.Header("X-Deprecated-Param", "classification (use boundary instead)")
	}

	filterHash := cursor.FilterHash(map[string]string{"status": status, "boundary": boundary})
	state, _, err := decodeListCursor(c, filterHash)
	if err != nil {
		c.Error(err)
		return
	}

	items := projectContext(c).Work.List(work.Filter{Status: v1.WorkStatus(status), Boundary: boundary})
	page := pagination.Paginate(items, state, filterHash)

	c.JSON(http.StatusOK, gin.H{
		"workItems":  page.Items,
		"count":      page.Count,
		"total":      page.Total,
		"hasMore":    page.HasMore,
		"nextCursor": page.NextCursor,
		"prevCursor": page.PrevCursor,
	})
}

// Cancel handles POST /api/work/:id/cancel.
func (h *WorkHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if !projectContext(c).Work.CancelWork(id) {
		c.Error(apperrors.Conflict("work item is not cancellable: " + id))
		return
	}
	item, _ := projectContext(c).Work.Get(id)
	c.JSON(http.StatusOK, item)
}

type cancelBatchRequest struct {
	WorkItemIDs []string          `json:"workItemIds"`
	Filter      map[string]string `json:"filter"`
	Reason      string            `json:"reason"`
	Reassign    bool              `json:"reassign"`
}

// cancelBatchResult extends batch.Result with the work-cancel-specific
// notCancellable bucket (spec.md §8, scenario 7).
type cancelBatchResult struct {
	batch.Result
	NotCancellable []string `json:"notCancellable"`
}

// CancelBatch handles POST /api/work/cancel-batch.
func (h *WorkHandler) CancelBatch(c *gin.Context) {
	var req cancelBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.BadRequest(err.Error()))
		return
	}

	coordinator := projectContext(c).Work
	ids, err := batch.ResolveSelection(req.WorkItemIDs, req.Filter, func(f map[string]string) []string {
		items := coordinator.List(work.Filter{Status: v1.WorkStatus(f["status"]), Boundary: f["boundary"]})
		out := make([]string, len(items))
		for i, item := range items {
			out[i] = item.ID
		}
		return out
	})
	if err != nil {
		c.Error(err)
		return
	}

	var notCancellable []string
	result := batch.Apply(ids, func(id string) error {
		if !coordinator.CancelWork(id) {
			notCancellable = append(notCancellable, id)
			return apperrors.Conflict("work item is not cancellable: " + id)
		}
		return nil
	})

	c.JSON(http.StatusOK, cancelBatchResult{Result: result, NotCancellable: notCancellable})
}
