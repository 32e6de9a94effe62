package etag

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeIsDeterministic(t *testing.T) {
	body := map[string]any{"b": 2, "a": 1}
	tag1, err := Compute(body)
	require.NoError(t, err)
	tag2, err := Compute(map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, tag1, tag2)
}

func TestComputeDiffersOnDifferentBody(t *testing.T) {
	tag1, _ := Compute(map[string]any{"a": 1})
	tag2, _ := Compute(map[string]any{"a": 2})
	assert.NotEqual(t, tag1, tag2)
}

func TestRespondReturns304OnMatchingETag(t *testing.T) {
	gin.SetMode(gin.TestMode)

	body := map[string]any{"stats": "ok"}
	tag, err := Compute(body)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	c.Request.Header.Set("If-None-Match", tag)

	Respond(c, http.StatusOK, body)

	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Equal(t, tag, w.Header().Get("ETag"))
	assert.Equal(t, "max-age=30, must-revalidate", w.Header().Get("Cache-Control"))
	assert.Empty(t, w.Body.String())
}

func TestRespondReturnsBodyOnMismatch(t *testing.T) {
	gin.SetMode(gin.TestMode)

	body := map[string]any{"stats": "ok"}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	c.Request.Header.Set("If-None-Match", `"deadbeef"`)

	Respond(c, http.StatusOK, body)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Body.String())
}
