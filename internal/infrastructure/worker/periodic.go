package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one run of a periodic worker
type Task func(ctx context.Context) error

// Stats reports what a periodic worker has done so far
type Stats struct {
	Runs      int
	Failures  int
	LastRun   time.Time
	LastError error
}

// PeriodicWorker runs a task on a fixed interval until stopped
type PeriodicWorker struct {
	name     string
	interval time.Duration
	task     Task
	logger   *zap.Logger

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	stats   Stats
}

// NewPeriodicWorker creates a worker that calls task every interval
func NewPeriodicWorker(name string, interval time.Duration, task Task, logger *zap.Logger) *PeriodicWorker {
	return &PeriodicWorker{
		name:     name,
		interval: interval,
		task:     task,
		logger:   logger,
	}
}

// Start begins the polling loop
func (w *PeriodicWorker) Start(ctx context.Context) error {
	if w.interval <= 0 {
		return fmt.Errorf("%s: interval must be positive", w.name)
	}

	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("%s already running", w.name)
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.running = true
	w.mu.Unlock()

	w.logger.Info("Periodic worker started",
		zap.String("worker_name", w.name),
		zap.Duration("interval", w.interval))

	go w.loop(ctx, w.done)
	return nil
}

// Stop cancels the loop and waits for the current run to finish
func (w *PeriodicWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	stats := w.Stats()
	w.logger.Info("Periodic worker stopped",
		zap.String("worker_name", w.name),
		zap.Int("runs", stats.Runs),
		zap.Int("failures", stats.Failures))
	return nil
}

// Name returns the worker name
func (w *PeriodicWorker) Name() string {
	return w.name
}

// Stats returns a snapshot of the run counters
func (w *PeriodicWorker) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// RunOnce executes the task synchronously and records the outcome
func (w *PeriodicWorker) RunOnce(ctx context.Context) error {
	err := w.task(ctx)

	w.mu.Lock()
	w.stats.Runs++
	w.stats.LastRun = time.Now()
	w.stats.LastError = err
	if err != nil {
		w.stats.Failures++
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("Periodic task failed", zap.String("worker_name", w.name), zap.Error(err))
	}
	return err
}

func (w *PeriodicWorker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = w.RunOnce(ctx)
		}
	}
}
