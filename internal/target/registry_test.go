package target

import (
	"context"
	"testing"
	"time"

	"github.com/loominal/weft/internal/common/logger"
	"github.com/loominal/weft/internal/events"
	v1 "github.com/loominal/weft/pkg/api/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMechanism struct {
	name    string
	outcome v1.SpinUpOutcome
	errMsg  string
}

func (f fakeMechanism) Name() string { return f.name }

func (f fakeMechanism) SpinUp(ctx context.Context, req SpinUpRequest) (SpinUpResult, error) {
	if f.outcome == v1.SpinUpFailure {
		return SpinUpResult{Outcome: v1.SpinUpFailure, Error: f.errMsg}, nil
	}
	return SpinUpResult{Outcome: v1.SpinUpSuccess, Agent: &v1.AgentSummary{GUID: "new-agent", AgentType: req.AgentType}}, nil
}

func TestRegisterEmitsEvent(t *testing.T) {
	bus := events.NewBus(nil)
	var seen []events.Kind
	bus.Subscribe(func(e *events.Event) { seen = append(seen, e.Type) })

	r := New("p1", bus, logger.Default())
	target := r.Register(RegisterRequest{Name: "t1", Mechanism: "local"})

	assert.Equal(t, v1.TargetAvailable, target.Status)
	assert.Equal(t, []events.Kind{events.KindTargetRegistered}, seen)
}

func TestDisabledTargetRejectsSpinUp(t *testing.T) {
	bus := events.NewBus(nil)
	r := New("p1", bus, logger.Default(), fakeMechanism{name: "local", outcome: v1.SpinUpSuccess})
	tg := r.Register(RegisterRequest{Name: "t1", Mechanism: "local"})
	r.Disable(tg.ID)

	err := r.TriggerSpinUp(context.Background(), tg.ID, nil)
	assert.Error(t, err)
}

func TestSpinUpSuccessUpdatesLastSpinUp(t *testing.T) {
	bus := events.NewBus(nil)
	var seen []events.Kind
	bus.Subscribe(func(e *events.Event) { seen = append(seen, e.Type) })

	r := New("p1", bus, logger.Default(), fakeMechanism{name: "local", outcome: v1.SpinUpSuccess})
	tg := r.Register(RegisterRequest{Name: "t1", Mechanism: "local"})

	require.NoError(t, r.TriggerSpinUp(context.Background(), tg.ID, nil))

	assert.Eventually(t, func() bool {
		got, _ := r.GetByID(tg.ID)
		return got.LastSpinUp != nil && got.LastSpinUp.Outcome == v1.SpinUpSuccess
	}, time.Second, 5*time.Millisecond)

	assert.Contains(t, seen, events.KindSpinUpTriggered)
	assert.Contains(t, seen, events.KindSpinUpStarted)
}

func TestSpinUpFailureRecordsError(t *testing.T) {
	bus := events.NewBus(nil)
	r := New("p1", bus, logger.Default(), fakeMechanism{name: "local", outcome: v1.SpinUpFailure, errMsg: "boom"})
	tg := r.Register(RegisterRequest{Name: "t1", Mechanism: "local"})

	require.NoError(t, r.TriggerSpinUp(context.Background(), tg.ID, nil))

	assert.Eventually(t, func() bool {
		got, _ := r.GetByID(tg.ID)
		return got.LastSpinUp != nil && got.LastSpinUp.Outcome == v1.SpinUpFailure
	}, time.Second, 5*time.Millisecond)
}

func TestHealthChangeOnlyEmitsOnDifference(t *testing.T) {
	bus := events.NewBus(nil)
	var seen []events.Kind
	bus.Subscribe(func(e *events.Event) { seen = append(seen, e.Type) })

	r := New("p1", bus, logger.Default())
	tg := r.Register(RegisterRequest{Name: "t1", Mechanism: "local"})

	r.mu.Lock()
	item := r.byID[tg.ID]
	r.recordHealth(item, v1.HealthHealthy)
	r.recordHealth(item, v1.HealthHealthy) // no-op, same value
	r.mu.Unlock()

	count := 0
	for _, k := range seen {
		if k == events.KindTargetHealthChange {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestRemoveByName(t *testing.T) {
	r := New("p1", events.NewBus(nil), logger.Default())
	tg := r.Register(RegisterRequest{Name: "t1", Mechanism: "local"})
	assert.True(t, r.Remove(tg.Name))

	_, ok := r.GetByID(tg.ID)
	assert.False(t, ok)
}
