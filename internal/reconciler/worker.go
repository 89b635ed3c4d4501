package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/bounce-pipeline/internal/pkg/distlock"
	"github.com/ignite/bounce-pipeline/internal/pkg/logger"
)

// Worker runs the audit on a fixed interval. A distributed lock keeps the
// audit on a single host when several servers share the database.
type Worker struct {
	auditor  *Auditor
	lock     distlock.DistLock
	interval time.Duration
	window   time.Duration

	mu     sync.RWMutex
	latest *DiscrepancyReport

	stop chan struct{}
	done chan struct{}
}

// NewWorker creates a periodic audit worker. lock may be nil for
// single-host deployments.
func NewWorker(auditor *Auditor, lock distlock.DistLock, interval, window time.Duration) *Worker {
	return &Worker{
		auditor:  auditor,
		lock:     lock,
		interval: interval,
		window:   window,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the audit loop. The first audit runs one interval after
// start, not immediately, so a deploy restart doesn't stampede.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			case <-ticker.C:
				w.runOnce(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight audit to finish.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}

// Latest returns the most recent report, or nil before the first audit.
func (w *Worker) Latest() *DiscrepancyReport {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.latest
}

// RunNow triggers a single audit outside the schedule, for the manual
// reconcile endpoint. It takes the same lock as the scheduled run.
func (w *Worker) RunNow(ctx context.Context) (*DiscrepancyReport, error) {
	if w.lock != nil {
		ok, err := w.lock.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			logger.Debug("reconciliation audit already running elsewhere")
			return w.Latest(), nil
		}
		defer w.lock.Release(ctx)
	}

	report, err := w.auditor.Audit(ctx, w.window)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.latest = report
	w.mu.Unlock()
	return report, nil
}

func (w *Worker) runOnce(ctx context.Context) {
	if _, err := w.RunNow(ctx); err != nil {
		logger.Error("reconciliation audit failed", "error", err)
	}
}
