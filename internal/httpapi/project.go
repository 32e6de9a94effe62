// Package httpapi wires the external HTTP/WebSocket surface (C12):
// gin routing, the ambient middleware chain, and the per-resource
// handlers over the Work/Agent/Target registries each project owns.
package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/loominal/weft/internal/project"
)

// projectHeader names the request header resolving which tenant a
// request targets. spec.md's route table never threads a projectId
// through any path or query parameter despite the system being
// multi-tenant throughout (§2, §4.9); this header plus the "default"
// fallback is the resolution this repo settles on (DESIGN.md, open
// question 5).
const projectHeader = "X-Project-ID"

const defaultProjectID = "default"

const projectContextKey = "weft.projectContext"

// resolveProject fetches or lazily creates the tenant context named by
// the X-Project-ID header, defaulting to "default", and stashes it on
// the gin context for handlers to retrieve via projectContext.
func resolveProject(manager *project.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID := c.GetHeader(projectHeader)
		if projectID == "" {
			projectID = defaultProjectID
		}
		ctx := manager.GetOrCreate(projectID)
		c.Set(projectContextKey, ctx)
		c.Next()
	}
}

func projectContext(c *gin.Context) *project.Context {
	return c.MustGet(projectContextKey).(*project.Context)
}
