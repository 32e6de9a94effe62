// Package project implements the Project Manager (C9): lazy,
// single-flight creation of per-project contexts bundling a Work
// Coordinator, Agent Registry, and Target Registry.
//
// Concurrent creation is de-duplicated with golang.org/x/sync/singleflight
// rather than a hand-rolled map of channels: the teacher's dependency
// graph already vendors golang.org/x/sync for exactly this shape of
// problem (collapse concurrent callers of the same key onto one
// in-flight call).
package project

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/loominal/weft/internal/agent"
	"github.com/loominal/weft/internal/common/config"
	"github.com/loominal/weft/internal/common/logger"
	"github.com/loominal/weft/internal/events"
	wsgateway "github.com/loominal/weft/internal/gateway/websocket"
	"github.com/loominal/weft/internal/subscription"
	"github.com/loominal/weft/internal/target"
	"github.com/loominal/weft/internal/work"
	v1 "github.com/loominal/weft/pkg/api/v1"
)

// Context is the per-tenant bundle owned by the Project Manager.
type Context struct {
	ProjectID      string
	Work           *work.Coordinator
	Agents         *agent.Registry
	Targets        *target.Registry
	Bus            *events.Bus
	Subscriptions  *subscription.Registry
	Hub            *wsgateway.Hub
	lastActivityAt time.Time
	mu             sync.Mutex
}

// Stats assembles the fixed-shape aggregate snapshot of spec.md §4.5/§6
// from the three registries plus the Hub's connection/subscription
// counts.
func (c *Context) Stats() v1.StatsSnapshot {
	return v1.StatsSnapshot{
		Agents:  c.Agents.Stats(),
		Work:    c.Work.Stats(),
		Targets: c.Targets.Stats(),
		WebSocket: v1.WebSocketStats{
			Connections:   c.Hub.ConnectionCount(),
			Subscriptions: c.Subscriptions.Count(),
		},
	}
}

// Touch updates lastActivityAt; called on every reference through
// GetOrCreate.
func (c *Context) Touch() {
	c.mu.Lock()
	c.lastActivityAt = time.Now().UTC()
	c.mu.Unlock()
}

func (c *Context) LastActivityAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivityAt
}

// Factory builds the three registries for a freshly created project.
// Supplied by the caller so the Project Manager stays agnostic of
// mechanism wiring, NATS, and the audit journal.
type Factory func(projectID string, bus *events.Bus) (*work.Coordinator, *agent.Registry, *target.Registry)

// Manager holds all known projects and de-duplicates concurrent
// creation of new ones.
type Manager struct {
	mu       sync.RWMutex
	projects map[string]*Context
	group    singleflight.Group
	factory  Factory
	cfg      config.CoordinatorConfig
	log      *logger.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func New(factory Factory, cfg config.CoordinatorConfig, log *logger.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{projects: make(map[string]*Context), factory: factory, cfg: cfg, log: log, ctx: ctx, cancel: cancel}
}

// GetOrCreate returns the existing context for projectId, touching its
// activity timestamp, or lazily creates one. Concurrent callers for the
// same new projectId observe exactly one context creation.
func (m *Manager) GetOrCreate(projectID string) *Context {
	m.mu.RLock()
	if ctx, ok := m.projects[projectID]; ok {
		m.mu.RUnlock()
		ctx.Touch()
		return ctx
	}
	m.mu.RUnlock()

	result, _, _ := m.group.Do(projectID, func() (any, error) {
		// Re-check: another goroutine may have installed the context
		// between our RUnlock above and acquiring the singleflight key.
		m.mu.RLock()
		if ctx, ok := m.projects[projectID]; ok {
			m.mu.RUnlock()
			return ctx, nil
		}
		m.mu.RUnlock()

		bus := events.NewBus(func(kind events.Kind, recovered any) {
			m.log.Error("event listener panicked", zap.String("kind", string(kind)), zap.Any("recovered", recovered))
		})
		wc, ar, tr := m.factory(projectID, bus)
		wc.StartReaper(m.ctx, m.cfg.CleanupInterval())

		subs := subscription.NewRegistry()
		ctx := &Context{ProjectID: projectID, Work: wc, Agents: ar, Targets: tr, Bus: bus, Subscriptions: subs, lastActivityAt: time.Now().UTC()}
		ctx.Hub = wsgateway.NewHub(projectID, bus, subs, func() any { return ctx.Stats() }, m.log)
		go ctx.Hub.Run(m.ctx)

		m.mu.Lock()
		m.projects[projectID] = ctx
		m.mu.Unlock()
		return ctx, nil
	})
	return result.(*Context)
}

// Get returns the context for projectId without creating one.
func (m *Manager) Get(projectID string) (*Context, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ctx, ok := m.projects[projectID]
	return ctx, ok
}

// List returns every known project id.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.projects))
	for id := range m.projects {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown tears down every project's reaper.
func (m *Manager) Shutdown() {
	m.cancel()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ctx := range m.projects {
		ctx.Work.StopReaper()
	}
	m.projects = make(map[string]*Context)
}
