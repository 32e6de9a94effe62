package project

import (
	"sync"
	"testing"
	"time"

	"github.com/loominal/weft/internal/agent"
	"github.com/loominal/weft/internal/common/config"
	"github.com/loominal/weft/internal/common/logger"
	"github.com/loominal/weft/internal/events"
	"github.com/loominal/weft/internal/target"
	"github.com/loominal/weft/internal/work"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFactory(creations *int, mu *sync.Mutex) Factory {
	return func(projectID string, bus *events.Bus) (*work.Coordinator, *agent.Registry, *target.Registry) {
		mu.Lock()
		*creations++
		mu.Unlock()
		ar := agent.New(projectID, bus)
		return work.New(projectID, bus, ar, 5*time.Minute), ar, target.New(projectID, bus, logger.Default())
	}
}

func TestGetOrCreateIsLazy(t *testing.T) {
	var creations int
	var mu sync.Mutex
	m := New(testFactory(&creations, &mu), config.CoordinatorConfig{CleanupIntervalMs: 60_000}, logger.Default())
	defer m.Shutdown()

	assert.Empty(t, m.List())
	ctx := m.GetOrCreate("proj-1")
	require.NotNil(t, ctx)
	assert.Equal(t, 1, creations)
}

func TestGetOrCreateReturnsSameContext(t *testing.T) {
	var creations int
	var mu sync.Mutex
	m := New(testFactory(&creations, &mu), config.CoordinatorConfig{CleanupIntervalMs: 60_000}, logger.Default())
	defer m.Shutdown()

	a := m.GetOrCreate("proj-1")
	b := m.GetOrCreate("proj-1")
	assert.Same(t, a, b)
	assert.Equal(t, 1, creations)
}

func TestConcurrentGetOrCreateCreatesExactlyOnce(t *testing.T) {
	var creations int
	var mu sync.Mutex
	m := New(testFactory(&creations, &mu), config.CoordinatorConfig{CleanupIntervalMs: 60_000}, logger.Default())
	defer m.Shutdown()

	var wg sync.WaitGroup
	results := make([]*Context, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.GetOrCreate("shared-project")
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, creations)
	for _, ctx := range results {
		assert.Same(t, results[0], ctx)
	}
}

func TestProjectIsolation(t *testing.T) {
	var creations int
	var mu sync.Mutex
	m := New(testFactory(&creations, &mu), config.CoordinatorConfig{CleanupIntervalMs: 60_000}, logger.Default())
	defer m.Shutdown()

	ctxA := m.GetOrCreate("project-a")
	ctxB := m.GetOrCreate("project-b")

	ctxA.Work.SubmitWork(work.SubmitRequest{Capability: "go"})

	assert.Len(t, ctxA.Work.List(work.Filter{}), 1)
	assert.Empty(t, ctxB.Work.List(work.Filter{}))
}
