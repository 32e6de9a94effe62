package target

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/loominal/weft/internal/common/errors"
	"github.com/loominal/weft/internal/common/logger"
	"github.com/loominal/weft/internal/events"
	v1 "github.com/loominal/weft/pkg/api/v1"
)

// RegisterRequest is the input to Register.
type RegisterRequest struct {
	Name         string
	AgentType    v1.AgentType
	Capabilities []string
	Boundaries   []string
	Mechanism    string
}

// Registry is the per-project Target Registry.
type Registry struct {
	mu         sync.RWMutex
	byID       map[string]*v1.Target
	byName     map[string]string // name -> id
	mechanisms map[string]Mechanism
	projectID  string
	bus        *events.Bus
	log        *logger.Logger
}

func New(projectID string, bus *events.Bus, log *logger.Logger, mechanisms ...Mechanism) *Registry {
	r := &Registry{
		byID:       make(map[string]*v1.Target),
		byName:     make(map[string]string),
		mechanisms: make(map[string]Mechanism),
		projectID:  projectID,
		bus:        bus,
		log:        log,
	}
	for _, m := range mechanisms {
		r.mechanisms[m.Name()] = m
	}
	return r
}

// Register creates a new target in the "available" state.
func (r *Registry) Register(req RegisterRequest) *v1.Target {
	now := time.Now().UTC()
	t := &v1.Target{
		ID:           uuid.New().String(),
		Name:         req.Name,
		AgentType:    req.AgentType,
		Capabilities: req.Capabilities,
		Boundaries:   req.Boundaries,
		Mechanism:    req.Mechanism,
		Status:       v1.TargetAvailable,
		Health:       v1.HealthUnknown,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	r.mu.Lock()
	r.byID[t.ID] = t
	r.byName[t.Name] = t.ID
	r.mu.Unlock()

	r.publish(events.KindTargetRegistered, t, nil)
	return cloneTarget(t)
}

// GetByID returns a snapshot by id.
func (r *Registry) GetByID(id string) (*v1.Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return cloneTarget(t), true
}

// GetByName returns a snapshot by name.
func (r *Registry) GetByName(name string) (*v1.Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return cloneTarget(r.byID[id]), true
}

// resolve finds a target by id, falling back to name.
func (r *Registry) resolve(idOrName string) (*v1.Target, bool) {
	if t, ok := r.byID[idOrName]; ok {
		return t, true
	}
	if id, ok := r.byName[idOrName]; ok {
		return r.byID[id], true
	}
	return nil, false
}

// Enable/Disable toggle availability. Disabled targets are never
// selected for spin-up.
func (r *Registry) Enable(idOrName string) bool {
	return r.setStatus(idOrName, v1.TargetAvailable, events.KindTargetUpdated)
}

func (r *Registry) Disable(idOrName string) bool {
	return r.setStatus(idOrName, v1.TargetDisabled, events.KindTargetDisabled)
}

func (r *Registry) setStatus(idOrName string, status v1.TargetStatus, kind events.Kind) bool {
	r.mu.Lock()
	t, ok := r.resolve(idOrName)
	if !ok {
		r.mu.Unlock()
		return false
	}
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	snapshot := cloneTarget(t)
	r.mu.Unlock()

	extra := map[string]any{}
	if kind == events.KindTargetUpdated {
		extra["newStatus"] = string(status)
	}
	r.publish(kind, snapshot, extra)
	return true
}

// recordHealth transitions health, emitting target:health-changed only
// when the value actually differs.
func (r *Registry) recordHealth(t *v1.Target, health v1.TargetHealth) {
	if t.Health == health {
		return
	}
	t.Health = health
	t.UpdatedAt = time.Now().UTC()
	snapshot := cloneTarget(t)
	r.publish(events.KindTargetHealthChange, snapshot, map[string]any{"health": string(health)})
}

// Test runs a trial spin-up through the target's mechanism and records
// the resulting health: healthy on a successful outcome, unhealthy on
// an error or a failed outcome, unknown when no mechanism is registered.
func (r *Registry) Test(ctx context.Context, idOrName string) (v1.TargetHealth, error) {
	r.mu.Lock()
	t, ok := r.resolve(idOrName)
	if !ok {
		r.mu.Unlock()
		return "", apperrors.NotFound("target", idOrName)
	}
	mech, hasMech := r.mechanisms[t.Mechanism]
	r.mu.Unlock()

	if !hasMech {
		r.mu.Lock()
		r.recordHealth(t, v1.HealthUnknown)
		r.mu.Unlock()
		return v1.HealthUnknown, nil
	}

	result, err := mech.SpinUp(ctx, SpinUpRequest{TargetID: t.ID, TargetName: t.Name, AgentType: t.AgentType})
	health := v1.HealthHealthy
	if err != nil || result.Outcome != v1.SpinUpSuccess {
		health = v1.HealthUnhealthy
	}

	r.mu.Lock()
	r.recordHealth(t, health)
	r.mu.Unlock()
	return health, nil
}

// TriggerSpinUp emits spin-up:triggered, invokes the target's mechanism
// asynchronously, and records the outcome via RecordSpinUpOutcome when
// it reports back. Disabled targets are rejected outright.
func (r *Registry) TriggerSpinUp(ctx context.Context, idOrName string, workItemID *string) error {
	r.mu.Lock()
	t, ok := r.resolve(idOrName)
	if !ok {
		r.mu.Unlock()
		return apperrors.NotFound("target", idOrName)
	}
	if t.Status == v1.TargetDisabled {
		r.mu.Unlock()
		return apperrors.Conflict("target is disabled: " + idOrName)
	}
	mech, hasMech := r.mechanisms[t.Mechanism]
	snapshot := cloneTarget(t)
	r.mu.Unlock()

	r.publish(events.KindSpinUpTriggered, snapshot, map[string]any{"workItemId": workItemID})

	if !hasMech {
		r.RecordSpinUpOutcome(t.ID, SpinUpResult{Outcome: v1.SpinUpFailure, Error: "unknown mechanism: " + t.Mechanism}, workItemID)
		return nil
	}

	r.publish(events.KindSpinUpStarted, snapshot, map[string]any{"workItemId": workItemID})

	go func() {
		result, err := mech.SpinUp(ctx, SpinUpRequest{
			TargetID: t.ID, TargetName: t.Name, AgentType: t.AgentType,
			Capabilities: t.Capabilities, Boundaries: t.Boundaries, WorkItemID: workItemID,
		})
		if err != nil {
			result = SpinUpResult{Outcome: v1.SpinUpFailure, Error: err.Error()}
		}
		r.RecordSpinUpOutcome(t.ID, result, workItemID)
	}()
	return nil
}

// RecordSpinUpOutcome is how an external mechanism (or the goroutine
// above, standing in for one) reports a spin-up's completion back to
// the registry.
func (r *Registry) RecordSpinUpOutcome(id string, result SpinUpResult, workItemID *string) {
	r.mu.Lock()
	t, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	var errPtr *string
	if result.Error != "" {
		errPtr = &result.Error
	}
	t.LastSpinUp = &v1.LastSpinUp{Time: now, Outcome: result.Outcome, Agent: result.Agent, WorkItemID: workItemID, Error: errPtr}
	t.UpdatedAt = now
	snapshot := cloneTarget(t)
	r.mu.Unlock()

	kind := events.KindSpinUpCompleted
	if result.Outcome != v1.SpinUpSuccess {
		kind = events.KindSpinUpFailed
	}
	r.publish(kind, snapshot, map[string]any{"workItemId": workItemID})
}

// UpdateRequest carries the mutable declarative fields of a target.
// Zero values leave the corresponding field unchanged.
type UpdateRequest struct {
	Capabilities []string
	Boundaries   []string
}

// Update replaces a target's capabilities/boundaries and emits
// target:updated. Returns false if idOrName is unknown.
func (r *Registry) Update(idOrName string, req UpdateRequest) (*v1.Target, bool) {
	r.mu.Lock()
	t, ok := r.resolve(idOrName)
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	if req.Capabilities != nil {
		t.Capabilities = req.Capabilities
	}
	if req.Boundaries != nil {
		t.Boundaries = req.Boundaries
	}
	t.UpdatedAt = time.Now().UTC()
	snapshot := cloneTarget(t)
	r.mu.Unlock()

	r.publish(events.KindTargetUpdated, snapshot, map[string]any{"newStatus": string(snapshot.Status)})
	return snapshot, true
}

// Remove deletes a target and emits target:removed.
func (r *Registry) Remove(idOrName string) bool {
	r.mu.Lock()
	t, ok := r.resolve(idOrName)
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.byID, t.ID)
	delete(r.byName, t.Name)
	r.mu.Unlock()

	r.publish(events.KindTargetRemoved, t, nil)
	return true
}

// Filter selects targets for List/pagination and for batch resolution.
type Filter struct {
	AgentType v1.AgentType
	Status    v1.TargetStatus
	Mechanism string
}

func (r *Registry) List(f Filter) []*v1.Target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*v1.Target
	for _, t := range r.byID {
		if f.AgentType != "" && t.AgentType != f.AgentType {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Mechanism != "" && t.Mechanism != f.Mechanism {
			continue
		}
		out = append(out, cloneTarget(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) Stats() v1.TargetStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var s v1.TargetStats
	for _, t := range r.byID {
		s.Total++
		switch t.Status {
		case v1.TargetAvailable:
			s.Available++
		case v1.TargetInUse:
			s.InUse++
		case v1.TargetDisabled:
			s.Disabled++
		}
	}
	return s
}

func cloneTarget(t *v1.Target) *v1.Target {
	cp := *t
	return &cp
}

func (r *Registry) publish(kind events.Kind, t *v1.Target, extra map[string]any) {
	data := map[string]any{
		"targetId":     t.ID,
		"agentType":    string(t.AgentType),
		"mechanism":    t.Mechanism,
		"capabilities": t.Capabilities,
		"boundaries":   t.Boundaries,
	}
	for k, v := range extra {
		data[k] = v
	}
	r.bus.Publish(events.NewEvent(kind, r.projectID, data))
}
