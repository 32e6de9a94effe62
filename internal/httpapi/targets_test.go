package httpapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loominal/weft/internal/target"
	v1 "github.com/loominal/weft/pkg/api/v1"
)

func targetRegisterRequest(name string) target.RegisterRequest {
	return target.RegisterRequest{Name: name, AgentType: v1.AgentClaudeCode, Mechanism: "local"}
}

func TestCreateAndGetTarget(t *testing.T) {
	router, _ := testRouter(t)

	rec := doRequest(router, http.MethodPost, "/api/targets", map[string]any{
		"name":      "local-1",
		"agentType": "claude-code",
		"mechanism": "local",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var target v1.Target
	decodeBody(t, rec, &target)
	assert.Equal(t, v1.TargetAvailable, target.Status)

	rec = doRequest(router, http.MethodGet, "/api/targets/"+target.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestTargetEnableDisable(t *testing.T) {
	router, _ := testRouter(t)

	rec := doRequest(router, http.MethodPost, "/api/targets", map[string]any{
		"name": "t1", "agentType": "claude-code", "mechanism": "local",
	})
	var target v1.Target
	decodeBody(t, rec, &target)

	rec = doRequest(router, http.MethodPost, "/api/targets/"+target.ID+"/disable", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var disabled v1.Target
	decodeBody(t, rec, &disabled)
	assert.Equal(t, v1.TargetDisabled, disabled.Status)

	rec = doRequest(router, http.MethodPost, "/api/targets/"+target.ID+"/enable", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var enabled v1.Target
	decodeBody(t, rec, &enabled)
	assert.Equal(t, v1.TargetAvailable, enabled.Status)
}

func TestTargetDisableBatchIdempotence(t *testing.T) {
	router, manager := testRouter(t)
	ctx := manager.GetOrCreate("default")

	a := ctx.Targets.Register(targetRegisterRequest("a"))
	b := ctx.Targets.Register(targetRegisterRequest("b"))
	ctx.Targets.Disable(b.ID)

	rec := doRequest(router, http.MethodPost, "/api/targets/disable-batch", map[string]any{
		"targetIds": []string{a.ID, b.ID},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result disableBatchResult
	decodeBody(t, rec, &result)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, result.Success)
	assert.ElementsMatch(t, []string{b.ID}, result.AlreadyDisabled)
	assert.InDelta(t, 100.0, result.SuccessRate, 0.01)
}

func TestUpdateTargetCapabilities(t *testing.T) {
	router, manager := testRouter(t)
	ctx := manager.GetOrCreate("default")
	tgt := ctx.Targets.Register(targetRegisterRequest("d"))

	rec := doRequest(router, http.MethodPut, "/api/targets/"+tgt.ID, map[string]any{
		"capabilities": []string{"go", "typescript"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var updated v1.Target
	decodeBody(t, rec, &updated)
	assert.Equal(t, []string{"go", "typescript"}, updated.Capabilities)
}

func TestDeleteTarget(t *testing.T) {
	router, manager := testRouter(t)
	ctx := manager.GetOrCreate("default")
	tgt := ctx.Targets.Register(targetRegisterRequest("c"))

	rec := doRequest(router, http.MethodDelete, "/api/targets/"+tgt.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(router, http.MethodGet, "/api/targets/"+tgt.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
