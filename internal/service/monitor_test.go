package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/mediagate/internal/domain"
)

func TestMonitor_StartStop(t *testing.T) {
	taskStore := newFakeTaskStore()
	monitor := NewMonitor(taskStore, MonitorConfig{
		StuckTaskAge:  time.Hour,
		CheckInterval: 10 * time.Millisecond,
	}, discardLogger())

	monitor.Start()
	time.Sleep(30 * time.Millisecond)
	monitor.Stop()
	// Stop waits for the sweep goroutine; returning is the assertion.
}

func TestMonitor_SweepFindsOldProcessingTasks(t *testing.T) {
	taskStore := newFakeTaskStore()

	stuck, err := domain.NewTask(uuid.New(), domain.TaskKindTranscribe, "audio.mp3")
	require.NoError(t, err)
	require.NoError(t, stuck.UpdateStatus(domain.TaskStatusProcessing))
	stuck.UpdatedAt = time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, taskStore.Create(context.Background(), stuck))

	fresh, err := domain.NewTask(uuid.New(), domain.TaskKindTranscribe, "audio2.mp3")
	require.NoError(t, err)
	require.NoError(t, fresh.UpdateStatus(domain.TaskStatusProcessing))
	require.NoError(t, taskStore.Create(context.Background(), fresh))

	found, err := taskStore.ListProcessingOlderThan(context.Background(), time.Hour)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, stuck.ID, found[0].ID)

	// The monitor never mutates stuck tasks; it only reports them.
	monitor := NewMonitor(taskStore, MonitorConfig{StuckTaskAge: time.Hour}, discardLogger())
	monitor.sweep()

	after, err := taskStore.GetByID(context.Background(), stuck.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TaskStatusProcessing, after.Status)
}
