package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/mediagate/internal/store"
)

// MonitorConfig holds configuration for the stuck-task monitor.
type MonitorConfig struct {
	// StuckTaskAge defines how long a task can sit in the processing
	// state before it is reported as stuck.
	StuckTaskAge time.Duration

	// CheckInterval defines how often to sweep for stuck tasks.
	// If zero, defaults to 5 minutes.
	CheckInterval time.Duration
}

// Monitor periodically sweeps for tasks stuck in the processing state and
// reports them. No global timeout kills a processing task automatically:
// a late webhook can still complete it, so the monitor only logs and
// leaves restarts to an operator's explicit force-restart.
type Monitor struct {
	taskStore  store.TaskStore
	config     MonitorConfig
	logger     *slog.Logger
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewMonitor creates a stuck-task Monitor.
func NewMonitor(taskStore store.TaskStore, config MonitorConfig, logger *slog.Logger) *Monitor {
	if config.CheckInterval == 0 {
		config.CheckInterval = 5 * time.Minute
	}
	if config.StuckTaskAge == 0 {
		config.StuckTaskAge = 30 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Monitor{
		taskStore:  taskStore,
		config:     config,
		logger:     logger.With("component", "stuck_task_monitor"),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start begins the periodic sweep in a background goroutine.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.run()
}

// Stop cancels the sweep and waits for it to finish.
func (m *Monitor) Stop() {
	m.cancelFunc()
	m.wg.Wait()
}

func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return

		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep reports every task that has been processing longer than the
// configured age.
func (m *Monitor) sweep() {
	ctx, cancel := context.WithTimeout(m.ctx, 30*time.Second)
	defer cancel()

	stuck, err := m.taskStore.ListProcessingOlderThan(ctx, m.config.StuckTaskAge)
	if err != nil {
		m.logger.Error("failed to check for stuck tasks", "error", err)
		return
	}

	if len(stuck) == 0 {
		return
	}

	m.logger.Warn("found tasks stuck in processing", "count", len(stuck))
	for _, task := range stuck {
		m.logger.Warn("stuck task",
			"task_id", task.ID,
			"kind", task.Kind,
			"owner_id", task.OwnerID,
			"job_handle", task.ProviderJobHandle,
			"updated_at", task.UpdatedAt)
	}
}
