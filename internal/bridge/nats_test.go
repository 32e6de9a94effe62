package bridge

import (
	"encoding/json"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loominal/weft/internal/agent"
	"github.com/loominal/weft/internal/common/config"
	"github.com/loominal/weft/internal/common/logger"
	"github.com/loominal/weft/internal/events"
)

func testBridge(t *testing.T) *Bridge {
	t.Helper()
	log, err := logger.NewLogger(config.LoggingConfig{Level: "debug", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)
	return &Bridge{
		cfg:       config.NATSConfig{SubjectRoot: "weft"},
		projectID: "proj-1",
		log:       log,
	}
}

func TestSubjectNamespacing(t *testing.T) {
	b := testBridge(t)
	assert.Equal(t, "weft.proj-1.work.completed", b.subject("work.completed"))
	assert.Equal(t, "weft.proj-1.agent.register", b.subject("agent.register"))
}

func TestHandleInboundRegister(t *testing.T) {
	b := testBridge(t)
	reg := agent.New("proj-1", events.NewBus(nil))

	payload, _ := json.Marshal(registerMessage{GUID: "g1", Handle: "h1", AgentType: "claude-code"})
	b.handleInbound(reg, &nats.Msg{Subject: b.subject("agent.register"), Data: payload})

	a, ok := reg.GetByGUID("g1")
	require.True(t, ok)
	assert.Equal(t, "h1", a.Handle)
}

func TestHandleInboundHeartbeatUpdatesStatus(t *testing.T) {
	b := testBridge(t)
	bus := events.NewBus(nil)
	reg := agent.New("proj-1", bus)
	reg.Register(agent.RegisterRequest{GUID: "g1", AgentType: "claude-code"})

	payload, _ := json.Marshal(heartbeatMessage{Status: "busy", CurrentTaskCount: 2})
	b.handleInbound(reg, &nats.Msg{Subject: b.subject("agent.heartbeat.g1"), Data: payload})

	a, ok := reg.GetByGUID("g1")
	require.True(t, ok)
	assert.Equal(t, "busy", string(a.Status))
	assert.Equal(t, 2, a.CurrentTaskCount)
}

func TestHandleInboundShutdownRemovesAgent(t *testing.T) {
	b := testBridge(t)
	reg := agent.New("proj-1", events.NewBus(nil))
	reg.Register(agent.RegisterRequest{GUID: "g1", AgentType: "claude-code"})

	b.handleInbound(reg, &nats.Msg{Subject: b.subject("agent.shutdown.g1")})

	_, ok := reg.GetByGUID("g1")
	assert.False(t, ok)
}

func TestHandleInboundDeregister(t *testing.T) {
	b := testBridge(t)
	reg := agent.New("proj-1", events.NewBus(nil))
	reg.Register(agent.RegisterRequest{GUID: "g1", AgentType: "claude-code"})

	payload, _ := json.Marshal(map[string]string{"guid": "g1"})
	b.handleInbound(reg, &nats.Msg{Subject: b.subject("agent.deregister"), Data: payload})

	_, ok := reg.GetByGUID("g1")
	assert.False(t, ok)
}
