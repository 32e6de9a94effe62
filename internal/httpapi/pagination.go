package httpapi

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/loominal/weft/internal/cursor"
	"github.com/loominal/weft/internal/pagination"
)

// decodeListCursor reads the cursor/limit query parameters shared by
// every paginated list endpoint, clamps the requested limit to the
// public cap, and validates a supplied cursor's filter hash against the
// current request's filters (spec.md §4.1, §9 open question 3).
func decodeListCursor(c *gin.Context, filterHash string) (cursor.State, int, error) {
	limit := pagination.ClampPublicLimit(parseLimit(c.Query("limit")))

	encoded := c.Query("cursor")
	if encoded == "" {
		return cursor.State{Offset: 0, Limit: limit}, limit, nil
	}

	state, err := cursor.Decode(encoded)
	if err != nil {
		return cursor.State{}, 0, err
	}
	if err := cursor.Validate(state, filterHash); err != nil {
		return cursor.State{}, 0, err
	}
	if state.Limit > pagination.PublicMaxLimit {
		state.Limit = pagination.PublicMaxLimit
	}
	return state, limit, nil
}

func parseLimit(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
