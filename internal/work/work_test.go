package work

import (
	"context"
	"testing"
	"time"

	"github.com/loominal/weft/internal/events"
	v1 "github.com/loominal/weft/pkg/api/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator() (*Coordinator, *events.Bus, *[]events.Kind) {
	bus := events.NewBus(nil)
	var seen []events.Kind
	bus.Subscribe(func(e *events.Event) { seen = append(seen, e.Type) })
	c := New("p1", bus, nil, 300*time.Second)
	return c, bus, &seen
}

// Scenario 1: happy path (spec.md §8).
func TestHappyPath(t *testing.T) {
	c, _, seen := newTestCoordinator()

	id := c.SubmitWork(SubmitRequest{TaskID: "T1", Capability: "typescript", Boundary: "personal", Priority: 5, Description: "d"})
	require.True(t, c.RecordClaim(id, "A1"))
	require.True(t, c.StartWork(id))
	require.True(t, c.UpdateProgress(id, 50))
	require.True(t, c.RecordCompletion(id, map[string]any{"ok": true}, "done"))

	item, ok := c.Get(id)
	require.True(t, ok)
	assert.Equal(t, v1.WorkCompleted, item.Status)
	assert.Equal(t, 1, item.Attempts)
	assert.Equal(t, 100, item.Progress)
	assert.Equal(t, "done", item.Result.Summary)

	assert.Equal(t, []events.Kind{
		events.KindWorkSubmitted,
		events.KindWorkAssigned,
		events.KindWorkStarted,
		events.KindWorkProgress,
		events.KindWorkCompleted,
	}, *seen)
}

// Scenario 2: double claim (spec.md §8).
func TestDoubleClaimFails(t *testing.T) {
	c, _, seen := newTestCoordinator()
	id := c.SubmitWork(SubmitRequest{Capability: "typescript", Boundary: "personal"})
	require.True(t, c.RecordClaim(id, "A1"))

	before := len(*seen)
	ok := c.RecordClaim(id, "A2")
	assert.False(t, ok)
	assert.Equal(t, before, len(*seen), "a failed claim must emit no event")

	item, _ := c.Get(id)
	assert.Equal(t, "A1", *item.AssignedTo)
}

// Scenario 3: stale reset (spec.md §8).
func TestStaleResetPreservesAttempts(t *testing.T) {
	bus := events.NewBus(nil)
	c := New("p1", bus, nil, 100*time.Millisecond)

	id := c.SubmitWork(SubmitRequest{Capability: "typescript", Boundary: "personal"})
	require.True(t, c.RecordClaim(id, "A3"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.StartReaper(ctx, 50*time.Millisecond)
	defer c.StopReaper()

	time.Sleep(250 * time.Millisecond)

	item, _ := c.Get(id)
	assert.Equal(t, v1.WorkPending, item.Status)
	assert.Nil(t, item.AssignedTo)
	assert.Equal(t, 1, item.Attempts)

	require.True(t, c.RecordClaim(id, "A4"))
	item, _ = c.Get(id)
	assert.Equal(t, 2, item.Attempts)
}

func TestRecordCompletionFromPendingIsAccepted(t *testing.T) {
	// Open question 1 (spec.md §9): preserved deliberately.
	c, _, _ := newTestCoordinator()
	id := c.SubmitWork(SubmitRequest{Capability: "x", Boundary: "y"})
	assert.True(t, c.RecordCompletion(id, nil, "out-of-band"))
}

func TestRecordErrorAndCancel(t *testing.T) {
	c, _, _ := newTestCoordinator()

	id1 := c.SubmitWork(SubmitRequest{Capability: "x", Boundary: "y"})
	require.True(t, c.RecordError(id1, "boom", true))
	item, _ := c.Get(id1)
	assert.Equal(t, v1.WorkFailed, item.Status)
	assert.True(t, item.Error.Recoverable)

	id2 := c.SubmitWork(SubmitRequest{Capability: "x", Boundary: "y"})
	require.True(t, c.CancelWork(id2))
	item2, _ := c.Get(id2)
	assert.Equal(t, v1.WorkCancelled, item2.Status)

	assert.False(t, c.CancelWork(id1), "cancel on a terminal item must fail")
}

func TestProgressIsClamped(t *testing.T) {
	c, _, _ := newTestCoordinator()
	id := c.SubmitWork(SubmitRequest{Capability: "x", Boundary: "y"})
	c.RecordClaim(id, "A1")

	c.UpdateProgress(id, 500)
	item, _ := c.Get(id)
	assert.Equal(t, 100, item.Progress)

	c.UpdateProgress(id, -20)
	item, _ = c.Get(id)
	assert.Equal(t, 0, item.Progress)
}

func TestGetPendingWorkOrdering(t *testing.T) {
	c, _, _ := newTestCoordinator()
	low := c.SubmitWork(SubmitRequest{Capability: "go", Priority: 1})
	time.Sleep(2 * time.Millisecond)
	high1 := c.SubmitWork(SubmitRequest{Capability: "go", Priority: 9})
	time.Sleep(2 * time.Millisecond)
	high2 := c.SubmitWork(SubmitRequest{Capability: "go", Priority: 9})

	pending := c.GetPendingWork("go")
	require.Len(t, pending, 3)
	assert.Equal(t, high1, pending[0].ID)
	assert.Equal(t, high2, pending[1].ID)
	assert.Equal(t, low, pending[2].ID)
}

func TestStats(t *testing.T) {
	c, _, _ := newTestCoordinator()
	id1 := c.SubmitWork(SubmitRequest{Capability: "x"})
	id2 := c.SubmitWork(SubmitRequest{Capability: "x"})
	c.RecordClaim(id1, "A1")
	c.RecordCompletion(id2, nil, "")

	s := c.Stats()
	assert.Equal(t, 0, s.Pending)
	assert.Equal(t, 1, s.Active)
	assert.Equal(t, 1, s.Completed)
	assert.Equal(t, 2, s.Total)
}

type fakeResolver struct{}

func (fakeResolver) ResolveSummary(guid string) (*v1.AgentSummary, bool) {
	return &v1.AgentSummary{GUID: guid, Handle: "real-agent", AgentType: v1.AgentCopilotCLI}, true
}

func TestResolverJoinsRealSummary(t *testing.T) {
	bus := events.NewBus(nil)
	var lastAgentType v1.AgentType
	bus.Subscribe(func(e *events.Event) {
		if e.Type == events.KindWorkAssigned {
			if summary, ok := e.Data["assignedToAgent"].(*v1.AgentSummary); ok {
				lastAgentType = summary.AgentType
			}
		}
	})

	c := New("p1", bus, fakeResolver{}, time.Minute)
	id := c.SubmitWork(SubmitRequest{Capability: "x"})
	c.RecordClaim(id, "A1")

	assert.Equal(t, v1.AgentCopilotCLI, lastAgentType)
}

func TestPlaceholderAgentTypeWithoutResolver(t *testing.T) {
	bus := events.NewBus(nil)
	var lastAgentType v1.AgentType
	bus.Subscribe(func(e *events.Event) {
		if e.Type == events.KindWorkAssigned {
			if summary, ok := e.Data["assignedToAgent"].(*v1.AgentSummary); ok {
				lastAgentType = summary.AgentType
			}
		}
	})

	c := New("p1", bus, nil, time.Minute)
	id := c.SubmitWork(SubmitRequest{Capability: "x"})
	c.RecordClaim(id, "A1")

	assert.Equal(t, v1.AgentClaudeCode, lastAgentType)
}
