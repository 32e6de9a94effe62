package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/loominal/weft/internal/agent"
	"github.com/loominal/weft/internal/common/config"
	"github.com/loominal/weft/internal/common/logger"
	"github.com/loominal/weft/internal/events"
	"github.com/loominal/weft/internal/project"
	"github.com/loominal/weft/internal/target"
	"github.com/loominal/weft/internal/work"
)

func testFactory() project.Factory {
	return func(projectID string, bus *events.Bus) (*work.Coordinator, *agent.Registry, *target.Registry) {
		ar := agent.New(projectID, bus)
		return work.New(projectID, bus, ar, 5 * time.Minute), ar, target.New(projectID, bus, logger.Default())
	}
}

func testRouter(t *testing.T) (*gin.Engine, *project.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.Default()
	manager := project.New(testFactory(), config.CoordinatorConfig{CleanupIntervalMs: 60_000}, log)
	t.Cleanup(manager.Shutdown)

	cfg := &config.Config{
		Server:  config.ServerConfig{RequestsPerSecond: 1000},
		Logging: config.LoggingConfig{Level: "debug"},
	}
	return NewRouter(cfg, log, manager), manager
}

func doRequest(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func doRequestWithHeader(router *gin.Engine, method, path, headerKey, headerVal string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if headerKey != "" {
		req.Header.Set(headerKey, headerVal)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}
