// Package bridge implements the optional NATS message-bus bridge
// (A7, spec.md §4.15 / §6): it publishes work completion/error
// notifications outward and drives the Agent Registry from inbound
// register/deregister/heartbeat/shutdown messages. The bus is not a
// consistency boundary for coordinator state — it is a best-effort
// side channel, grounded in the teacher's internal/events/bus/nats.go
// NATSEventBus.
package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/loominal/weft/internal/agent"
	"github.com/loominal/weft/internal/common/config"
	"github.com/loominal/weft/internal/common/logger"
	"github.com/loominal/weft/internal/events"
	v1 "github.com/loominal/weft/pkg/api/v1"
)

// Bridge owns one project's NATS connection and its outbound Bus
// subscription.
type Bridge struct {
	conn      *nats.Conn
	cfg       config.NATSConfig
	projectID string
	log       *logger.Logger

	sub           *nats.Subscription
	unsubscribeBus events.Unsubscribe
}

// registerMessage is the inbound payload for agent.register.
type registerMessage struct {
	GUID         string       `json:"guid"`
	Handle       string       `json:"handle"`
	AgentType    v1.AgentType `json:"agentType"`
	Hostname     string       `json:"hostname"`
	Capabilities []string     `json:"capabilities"`
	Boundaries   []string     `json:"boundaries"`
}

// heartbeatMessage is the inbound payload for agent.heartbeat.<guid>.
type heartbeatMessage struct {
	Status        v1.AgentStatus `json:"status"`
	CurrentTaskCount int         `json:"currentTaskCount"`
}

// Connect establishes the NATS connection for one project. Callers
// should check cfg.URL != "" before calling; an empty URL means the
// bridge is disabled and the core runs identically without it.
func Connect(projectID string, cfg config.NATSConfig, log *logger.Logger) (*Bridge, error) {
	log = log.WithFields(zap.String("component", "nats_bridge"), zap.String("project_id", projectID))

	opts := []nats.Option{
		nats.Name(cfg.ClientID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error("nats error", zap.Error(err))
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	return &Bridge{conn: conn, cfg: cfg, projectID: projectID, log: log}, nil
}

func (b *Bridge) subject(kind string) string {
	return b.cfg.SubjectRoot + "." + b.projectID + "." + kind
}

// AttachOutbound subscribes to the project's Event Bus and republishes
// work completion/error events to work.completed / work.errors.
func (b *Bridge) AttachOutbound(bus *events.Bus) {
	b.unsubscribeBus = bus.Subscribe(func(e *events.Event) {
		switch e.Type {
		case events.KindWorkCompleted:
			b.publish("work.completed", e)
		case events.KindWorkFailed:
			b.publish("work.errors", e)
		}
	})
}

func (b *Bridge) publish(kind string, e *events.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		b.log.Error("failed to marshal outbound event", zap.Error(err))
		return
	}
	subject := b.subject(kind)
	if err := b.conn.Publish(subject, data); err != nil {
		b.log.Error("failed to publish", zap.String("subject", subject), zap.Error(err))
	}
}

// AttachInbound subscribes to agent lifecycle subjects and drives reg.
func (b *Bridge) AttachInbound(reg *agent.Registry) error {
	sub, err := b.conn.Subscribe(b.subject("agent.>"), func(msg *nats.Msg) {
		b.handleInbound(reg, msg)
	})
	if err != nil {
		return fmt.Errorf("subscribe agent.>: %w", err)
	}
	b.sub = sub
	return nil
}

func (b *Bridge) handleInbound(reg *agent.Registry, msg *nats.Msg) {
	kind := msg.Subject[len(b.cfg.SubjectRoot)+len(b.projectID)+2:]

	switch {
	case kind == "agent.register":
		var m registerMessage
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			b.log.Error("failed to unmarshal agent.register", zap.Error(err))
			return
		}
		reg.Register(agent.RegisterRequest{
			GUID: m.GUID, Handle: m.Handle, AgentType: m.AgentType,
			Hostname: m.Hostname, Capabilities: m.Capabilities, Boundaries: m.Boundaries,
		})

	case kind == "agent.deregister":
		var m struct {
			GUID string `json:"guid"`
		}
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			b.log.Error("failed to unmarshal agent.deregister", zap.Error(err))
			return
		}
		reg.Shutdown(m.GUID)

	case hasGUIDSuffix(kind, "agent.heartbeat."):
		guid := kind[len("agent.heartbeat."):]
		var m heartbeatMessage
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			b.log.Error("failed to unmarshal agent.heartbeat", zap.Error(err))
			return
		}
		reg.UpdateStatus(guid, m.Status, m.CurrentTaskCount)

	case hasGUIDSuffix(kind, "agent.shutdown."):
		guid := kind[len("agent.shutdown."):]
		reg.Shutdown(guid)
	}
}

func hasGUIDSuffix(kind, prefix string) bool {
	return len(kind) > len(prefix) && kind[:len(prefix)] == prefix
}

// Close drains the inbound subscription and closes the connection.
func (b *Bridge) Close() {
	if b.unsubscribeBus != nil {
		b.unsubscribeBus()
	}
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	if b.conn != nil {
		if err := b.conn.Drain(); err != nil {
			b.conn.Close()
		}
	}
}
