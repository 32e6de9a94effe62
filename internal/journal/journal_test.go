package journal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loominal/weft/internal/common/config"
	"github.com/loominal/weft/internal/common/logger"
	"github.com/loominal/weft/internal/events"
)

func testJournalLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(config.LoggingConfig{Level: "debug", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)
	return log
}

func TestJournalRecordsPublishedEvents(t *testing.T) {
	db, err := Open(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	bus := events.NewBus(nil)
	j := New(db, "proj-1", bus, testJournalLogger(t))
	t.Cleanup(j.Close)

	bus.Publish(events.NewEvent(events.KindWorkSubmitted, "proj-1", map[string]any{"workItemId": "w1"}))
	bus.Publish(events.NewEvent(events.KindWorkCompleted, "proj-1", map[string]any{"workItemId": "w1"}))

	entries, err := j.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, string(events.KindWorkCompleted), entries[0].Kind)
	require.Equal(t, string(events.KindWorkSubmitted), entries[1].Kind)
}

func TestJournalIsolatesByProject(t *testing.T) {
	db, err := Open(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	busA := events.NewBus(nil)
	busB := events.NewBus(nil)
	jA := New(db, "proj-a", busA, testJournalLogger(t))
	jB := New(db, "proj-b", busB, testJournalLogger(t))
	t.Cleanup(jA.Close)
	t.Cleanup(jB.Close)

	busA.Publish(events.NewEvent(events.KindWorkSubmitted, "proj-a", map[string]any{"workItemId": "w1"}))

	entriesA, err := jA.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entriesA, 1)

	entriesB, err := jB.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entriesB, 0)
}
