// Package agent implements the Agent Registry (C7): a by-guid map of
// live agent records, lifecycle events, and the summary lookup the Work
// Coordinator joins onto work events.
package agent

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loominal/weft/internal/events"
	v1 "github.com/loominal/weft/pkg/api/v1"
)

// RegisterRequest is the input to Register.
type RegisterRequest struct {
	GUID         string
	Handle       string
	AgentType    v1.AgentType
	Hostname     string
	Capabilities []string
	Boundaries   []string
}

// Registry is the per-project Agent Registry.
type Registry struct {
	mu        sync.RWMutex
	agents    map[string]*v1.Agent
	projectID string
	bus       *events.Bus
}

func New(projectID string, bus *events.Bus) *Registry {
	return &Registry{agents: make(map[string]*v1.Agent), projectID: projectID, bus: bus}
}

// Register records (or re-records) an agent and emits agent:registered.
// An empty GUID is replaced with a freshly generated one.
func (r *Registry) Register(req RegisterRequest) *v1.Agent {
	if req.GUID == "" {
		req.GUID = uuid.NewString()
	}
	now := time.Now().UTC()
	a := &v1.Agent{
		GUID:         req.GUID,
		Handle:       req.Handle,
		AgentType:    req.AgentType,
		Hostname:     req.Hostname,
		Capabilities: req.Capabilities,
		Boundaries:   req.Boundaries,
		Status:       v1.AgentOnline,
		RegisteredAt: now,
		UpdatedAt:    now,
	}

	r.mu.Lock()
	r.agents[req.GUID] = a
	r.mu.Unlock()

	r.publish(events.KindAgentRegistered, a, map[string]any{"status": string(a.Status)})
	return cloneAgent(a)
}

// UpdateStatus updates an agent's status/task count and emits
// agent:updated. Returns false if the guid is unknown.
func (r *Registry) UpdateStatus(guid string, status v1.AgentStatus, taskCount int) bool {
	r.mu.Lock()
	a, ok := r.agents[guid]
	if !ok {
		r.mu.Unlock()
		return false
	}
	a.Status = status
	a.CurrentTaskCount = taskCount
	a.UpdatedAt = time.Now().UTC()
	snapshot := cloneAgent(a)
	r.mu.Unlock()

	r.publish(events.KindAgentUpdated, snapshot, map[string]any{"newStatus": string(status)})
	return true
}

// Shutdown removes an agent and emits agent:shutdown.
func (r *Registry) Shutdown(guid string) bool {
	r.mu.Lock()
	a, ok := r.agents[guid]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.agents, guid)
	r.mu.Unlock()

	r.publish(events.KindAgentShutdown, a, nil)
	return true
}

// GetByGUID returns a snapshot of the agent, if registered.
func (r *Registry) GetByGUID(guid string) (*v1.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[guid]
	if !ok {
		return nil, false
	}
	return cloneAgent(a), true
}

// Filter selects agents for List/pagination.
type Filter struct {
	AgentType  v1.AgentType
	Status     v1.AgentStatus
	Capability string
}

// List returns a snapshot of matching agents, ordered by guid for
// stable pagination.
func (r *Registry) List(f Filter) []*v1.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*v1.Agent
	for _, a := range r.agents {
		if f.AgentType != "" && a.AgentType != f.AgentType {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.Capability != "" && !contains(a.Capabilities, f.Capability) {
			continue
		}
		out = append(out, cloneAgent(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GUID < out[j].GUID })
	return out
}

// ResolveSummary satisfies work.AgentSummaryResolver: it joins a raw
// guid to a minimal AgentSummary, or reports absence.
func (r *Registry) ResolveSummary(guid string) (*v1.AgentSummary, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[guid]
	if !ok {
		return nil, false
	}
	return &v1.AgentSummary{GUID: a.GUID, Handle: a.Handle, AgentType: a.AgentType, Hostname: a.Hostname}, true
}

// Stats derives the by-type/by-status counts on demand. The maps always
// enumerate the full closed set with zeros for absent values, per
// spec.md §6.
func (r *Registry) Stats() v1.AgentStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byType := map[string]int{string(v1.AgentCopilotCLI): 0, string(v1.AgentClaudeCode): 0}
	byStatus := map[string]int{string(v1.AgentOnline): 0, string(v1.AgentBusy): 0, string(v1.AgentOffline): 0}

	for _, a := range r.agents {
		byType[string(a.AgentType)]++
		byStatus[string(a.Status)]++
	}
	return v1.AgentStats{Total: len(r.agents), ByType: byType, ByStatus: byStatus}
}

func contains(set []string, want string) bool {
	for _, v := range set {
		if v == want {
			return true
		}
	}
	return false
}

func cloneAgent(a *v1.Agent) *v1.Agent {
	cp := *a
	return &cp
}

func (r *Registry) publish(kind events.Kind, a *v1.Agent, extra map[string]any) {
	data := map[string]any{
		"guid":         a.GUID,
		"agentType":    string(a.AgentType),
		"capabilities": a.Capabilities,
		"boundaries":   a.Boundaries,
	}
	for k, v := range extra {
		data[k] = v
	}
	r.bus.Publish(events.NewEvent(kind, r.projectID, data))
}
