package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loominal/weft/internal/etag"
	"github.com/loominal/weft/internal/project"
	v1 "github.com/loominal/weft/pkg/api/v1"
)

// StatsHandler serves the cached aggregate snapshots (spec.md §6, §8
// conditional-response law): both the current project's snapshot and
// the cross-project rollup.
type StatsHandler struct {
	manager *project.Manager
}

func NewStatsHandler(manager *project.Manager) *StatsHandler {
	return &StatsHandler{manager: manager}
}

// SetupStatsRoutes registers the stats routes under group.
func SetupStatsRoutes(group *gin.RouterGroup, manager *project.Manager) {
	h := NewStatsHandler(manager)
	group.GET("/stats", h.Current)
	group.GET("/stats/projects", h.Projects)
}

// Current handles GET /api/stats for the request's resolved project.
func (h *StatsHandler) Current(c *gin.Context) {
	etag.Respond(c, http.StatusOK, projectContext(c).Stats())
}

// Projects handles GET /api/stats/projects, rolling up every known
// project's snapshot.
func (h *StatsHandler) Projects(c *gin.Context) {
	snapshots := make(map[string]v1.StatsSnapshot)
	for _, id := range h.manager.List() {
		if ctx, ok := h.manager.Get(id); ok {
			snapshots[id] = ctx.Stats()
		}
	}
	etag.Respond(c, http.StatusOK, gin.H{"projects": snapshots})
}
