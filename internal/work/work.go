// Package work implements the Work Coordinator (C6): the work item
// state machine, claim/progress/complete/fail/cancel operations, the
// stale-work reaper, and work event emission.
package work

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loominal/weft/internal/events"
	v1 "github.com/loominal/weft/pkg/api/v1"
)

// SubmitRequest is the input to SubmitWork.
type SubmitRequest struct {
	TaskID      string
	Description string
	Capability  string
	Boundary    string
	Priority    int // 0 means "use the default of 5"
	Deadline    *time.Time
	ContextData map[string]any
}

// AgentSummaryResolver joins a work event's raw assignedTo guid to an
// AgentSummary. New takes an optional resolver; cmd/weft passes the
// project's Agent Registry. Without one, a placeholder is stamped.
type AgentSummaryResolver interface {
	ResolveSummary(guid string) (*v1.AgentSummary, bool)
}

// Coordinator is the per-project Work Coordinator.
type Coordinator struct {
	mu        sync.RWMutex
	items     map[string]*v1.WorkItem
	projectID string
	bus       *events.Bus
	resolver  AgentSummaryResolver

	staleThreshold time.Duration
	evictAfter     time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Coordinator. resolver may be nil, in which case a
// fixed placeholder agentType is stamped on every event of an item that
// has an assignee; the placeholder is also used when the resolver does
// not know the guid (spec.md §9, open question 4).
func New(projectID string, bus *events.Bus, resolver AgentSummaryResolver, staleThreshold time.Duration) *Coordinator {
	return &Coordinator{
		items:          make(map[string]*v1.WorkItem),
		projectID:      projectID,
		bus:            bus,
		resolver:       resolver,
		staleThreshold: staleThreshold,
		evictAfter:     2 * staleThreshold,
		stopCh:         make(chan struct{}),
	}
}

// SubmitWork generates a fresh id, creates the item pending, and emits
// work:submitted.
func (c *Coordinator) SubmitWork(req SubmitRequest) string {
	priority := req.Priority
	if priority == 0 {
		priority = 5
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	item := &v1.WorkItem{
		ID:          id,
		TaskID:      req.TaskID,
		Description: req.Description,
		Capability:  req.Capability,
		Boundary:    req.Boundary,
		Priority:    priority,
		Deadline:    req.Deadline,
		ContextData: req.ContextData,
		Status:      v1.WorkPending,
		OfferedAt:   now,
		Attempts:    0,
		Progress:    0,
	}

	c.mu.Lock()
	c.items[id] = item
	c.mu.Unlock()

	c.publish(events.KindWorkSubmitted, item, nil)
	return id
}

// RecordClaim succeeds only if the item is pending.
func (c *Coordinator) RecordClaim(id, agentGUID string) bool {
	c.mu.Lock()
	item, ok := c.items[id]
	if !ok || item.Status != v1.WorkPending {
		c.mu.Unlock()
		return false
	}
	now := time.Now().UTC()
	item.Status = v1.WorkAssigned
	item.AssignedTo = &agentGUID
	item.AssignedAt = &now
	item.Attempts++
	snapshot := cloneItem(item)
	c.mu.Unlock()

	c.publish(events.KindWorkAssigned, snapshot, map[string]any{"assignedTo": agentGUID})
	return true
}

// StartWork requires the item be assigned.
func (c *Coordinator) StartWork(id string) bool {
	c.mu.Lock()
	item, ok := c.items[id]
	if !ok || item.Status != v1.WorkAssigned {
		c.mu.Unlock()
		return false
	}
	item.Status = v1.WorkInProgress
	snapshot := cloneItem(item)
	c.mu.Unlock()

	c.publish(events.KindWorkStarted, snapshot, nil)
	return true
}

// UpdateProgress requires the item be assigned or in-progress, and
// clamps p to [0,100].
func (c *Coordinator) UpdateProgress(id string, p int) bool {
	c.mu.Lock()
	item, ok := c.items[id]
	if !ok || (item.Status != v1.WorkAssigned && item.Status != v1.WorkInProgress) {
		c.mu.Unlock()
		return false
	}
	item.Progress = clamp(p, 0, 100)
	snapshot := cloneItem(item)
	c.mu.Unlock()

	c.publish(events.KindWorkProgress, snapshot, map[string]any{"progress": snapshot.Progress})
	return true
}

// RecordCompletion is permitted from any non-terminal state, including
// pending (spec.md §9, open question 1: preserved deliberately).
func (c *Coordinator) RecordCompletion(id string, output any, summary string) bool {
	c.mu.Lock()
	item, ok := c.items[id]
	if !ok || item.Status.Terminal() {
		c.mu.Unlock()
		return false
	}
	now := time.Now().UTC()
	item.Status = v1.WorkCompleted
	item.Progress = 100
	item.Result = &v1.WorkResult{Summary: summary, Output: output, CompletedAt: now}
	snapshot := cloneItem(item)
	c.mu.Unlock()

	c.publish(events.KindWorkCompleted, snapshot, map[string]any{"summary": summary})
	return true
}

// RecordError sets the item failed and stores the error record.
// Recoverable is a hint to higher layers; the coordinator never retries
// on its own.
func (c *Coordinator) RecordError(id, message string, recoverable bool) bool {
	c.mu.Lock()
	item, ok := c.items[id]
	if !ok || item.Status.Terminal() {
		c.mu.Unlock()
		return false
	}
	now := time.Now().UTC()
	item.Status = v1.WorkFailed
	item.Error = &v1.WorkError{Message: message, Recoverable: recoverable, OccurredAt: now}
	snapshot := cloneItem(item)
	c.mu.Unlock()

	c.publish(events.KindWorkFailed, snapshot, map[string]any{"message": message, "recoverable": recoverable})
	return true
}

// CancelWork is permitted from any non-terminal state.
func (c *Coordinator) CancelWork(id string) bool {
	c.mu.Lock()
	item, ok := c.items[id]
	if !ok || item.Status.Terminal() {
		c.mu.Unlock()
		return false
	}
	item.Status = v1.WorkCancelled
	snapshot := cloneItem(item)
	c.mu.Unlock()

	c.publish(events.KindWorkCancelled, snapshot, nil)
	return true
}

// Get returns a snapshot copy of an item by id.
func (c *Coordinator) Get(id string) (*v1.WorkItem, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[id]
	if !ok {
		return nil, false
	}
	return cloneItem(item), true
}

// GetPendingWork returns all pending items matching capability, ordered
// by (priority desc, offeredAt asc) — the same comparator the teacher's
// priority queue uses for dispatch ordering, applied here to a
// read-only listing snapshot rather than a live heap.
func (c *Coordinator) GetPendingWork(capability string) []*v1.WorkItem {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var pending []*v1.WorkItem
	for _, item := range c.items {
		if item.Status != v1.WorkPending {
			continue
		}
		if capability != "" && item.Capability != capability {
			continue
		}
		pending = append(pending, cloneItem(item))
	}

	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority > pending[j].Priority
		}
		return pending[i].OfferedAt.Before(pending[j].OfferedAt)
	})
	return pending
}

// Filter selects items for List/pagination.
type Filter struct {
	Status   v1.WorkStatus
	Boundary string
}

// List returns a snapshot of all items matching filter, ordered by
// OfferedAt ascending for stable pagination.
func (c *Coordinator) List(f Filter) []*v1.WorkItem {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*v1.WorkItem
	for _, item := range c.items {
		if f.Status != "" && item.Status != f.Status {
			continue
		}
		if f.Boundary != "" && item.Boundary != f.Boundary {
			continue
		}
		out = append(out, cloneItem(item))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OfferedAt.Before(out[j].OfferedAt) })
	return out
}

// Stats derives the fixed status-bucket counts on demand.
func (c *Coordinator) Stats() v1.WorkStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var s v1.WorkStats
	for _, item := range c.items {
		s.Total++
		switch item.Status {
		case v1.WorkPending:
			s.Pending++
		case v1.WorkAssigned, v1.WorkInProgress:
			s.Active++
		case v1.WorkCompleted:
			s.Completed++
		case v1.WorkFailed, v1.WorkCancelled:
			s.Failed++
		}
	}
	return s
}

// StartReaper launches the stale-work reaper goroutine. It runs until
// StopReaper is called or ctx is cancelled.
func (c *Coordinator) StartReaper(ctx context.Context, cleanupInterval time.Duration) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.reap()
			}
		}
	}()
}

// StopReaper stops the reaper goroutine and waits for it to exit.
func (c *Coordinator) StopReaper() {
	close(c.stopCh)
	c.wg.Wait()
}

// reap performs the two-pass stale-work policy of spec.md §4.6: reset
// stale assigned items to pending (silently, no event), then evict
// terminal items past the eviction window.
func (c *Coordinator) reap() {
	now := time.Now().UTC()

	c.mu.Lock()
	for _, item := range c.items {
		if item.Status == v1.WorkAssigned && item.AssignedAt != nil && now.Sub(*item.AssignedAt) > c.staleThreshold {
			item.Status = v1.WorkPending
			item.AssignedTo = nil
			item.AssignedAt = nil
			// Attempts is preserved. No event is emitted: the reset is
			// silent per spec.md §4.6/§9.
		}
	}

	for id, item := range c.items {
		if !item.Status.Terminal() {
			continue
		}
		completedAt := terminalTimestamp(item)
		if completedAt != nil && now.Sub(*completedAt) > c.evictAfter {
			delete(c.items, id)
		}
	}
	c.mu.Unlock()
}

func terminalTimestamp(item *v1.WorkItem) *time.Time {
	if item.Result != nil {
		return &item.Result.CompletedAt
	}
	if item.Error != nil {
		return &item.Error.OccurredAt
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func cloneItem(item *v1.WorkItem) *v1.WorkItem {
	cp := *item
	return &cp
}

// publish builds the event payload for kind from item, joining an agent
// summary when assigned and a resolver is available, stamping the
// placeholder agentType otherwise (spec.md §9, open question 4), then
// publishes it synchronously.
func (c *Coordinator) publish(kind events.Kind, item *v1.WorkItem, extra map[string]any) {
	data := map[string]any{
		"workItemId": item.ID,
		"taskId":     item.TaskID,
		"capability": item.Capability,
		"boundary":   item.Boundary,
		"status":     string(item.Status),
	}
	if item.AssignedTo != nil {
		data["assignedTo"] = *item.AssignedTo
		data["assignedToAgent"] = c.resolveSummary(*item.AssignedTo)
	}
	for k, v := range extra {
		data[k] = v
	}
	c.bus.Publish(events.NewEvent(kind, c.projectID, data))
}

func (c *Coordinator) resolveSummary(guid string) *v1.AgentSummary {
	if c.resolver != nil {
		if summary, ok := c.resolver.ResolveSummary(guid); ok {
			return summary
		}
	}
	return &v1.AgentSummary{GUID: guid, AgentType: v1.AgentClaudeCode}
}
