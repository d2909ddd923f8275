package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"autocron/internal/logging"
	"autocron/internal/procctl"
	"autocron/internal/store"
)

// TaskFunc is a callable task as the worker invokes it.
type TaskFunc func(args ...any) (any, error)

// Registry resolves target names to callables. The host process and every
// spawned child share one registry because they run the same binary.
type Registry interface {
	Resolve(target string) (TaskFunc, bool)
}

// Option configures optional Worker behavior.
type Option func(*Worker)

// WithAliveProbe overrides the supervisor liveness probe (used in tests).
func WithAliveProbe(probe func(pid int) bool) Option {
	return func(w *Worker) {
		w.alive = probe
	}
}

// Worker runs the claim/execute loop of one worker process.
type Worker struct {
	store         *store.Store
	registry      Registry
	logger        *slog.Logger
	supervisorPID int
	alive         func(pid int) bool
}

// New constructs a worker bound to the shared store. supervisorPID is the
// monitor pid this worker watches while idle.
func New(st *store.Store, registry Registry, supervisorPID int, logger *slog.Logger, opts ...Option) *Worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	w := &Worker{
		store:         st,
		registry:      registry,
		logger:        logger,
		supervisorPID: supervisorPID,
		alive:         procctl.Alive,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run executes the polling loop until ctx is canceled or the supervisor
// disappears. A task that is already executing always finishes; claimed but
// unstarted tasks are released back to waiting before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	settings, err := w.store.Settings(ctx)
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	w.logger.Info("worker started",
		logging.Int(logging.FieldPID, os.Getpid()),
		logging.Int("supervisor_pid", w.supervisorPID),
		logging.Duration("idle_interval", settings.WorkerIdleInterval()),
	)

	// Finalize and reschedule writes must land even when shutdown arrives
	// mid-batch.
	writeCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return nil
		default:
		}

		batch, err := w.store.ClaimDue(ctx, time.Now())
		if err != nil {
			if errors.Is(err, context.Canceled) {
				w.logger.Info("worker stopped")
				return nil
			}
			w.logger.Error("claim failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "claim_failed"),
				logging.String(logging.FieldErrorHint, "check database access"),
			)
			if !w.sleep(ctx, settings.WorkerIdleInterval()) {
				w.logger.Info("worker stopped")
				return nil
			}
			continue
		}

		if len(batch) == 0 {
			if !w.alive(w.supervisorPID) {
				w.logger.Info("supervisor gone; stopping",
					logging.Int("supervisor_pid", w.supervisorPID),
					logging.String(logging.FieldEventType, "supervisor_lost"),
				)
				return nil
			}
			if fresh, err := w.store.Settings(ctx); err == nil {
				settings = fresh
			} else if ctx.Err() == nil {
				w.logger.Warn("settings refresh failed; keeping previous values", logging.Error(err))
			}
			if !w.sleep(ctx, settings.WorkerIdleInterval()) {
				w.logger.Info("worker stopped")
				return nil
			}
			continue
		}

		w.logger.Debug("claimed batch", logging.Int("tasks", len(batch)))
		for i, task := range batch {
			if ctx.Err() != nil {
				w.releaseUnstarted(writeCtx, batch[i:])
				w.logger.Info("worker stopped")
				return nil
			}
			w.execute(writeCtx, task, settings.ResultTTLDuration())
		}
	}
}

// sleep waits out the idle interval; false means ctx was canceled.
func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (w *Worker) releaseUnstarted(ctx context.Context, batch []*store.Task) {
	if len(batch) == 0 {
		return
	}
	ids := make([]int64, 0, len(batch))
	for _, task := range batch {
		ids = append(ids, task.ID)
	}
	if err := w.store.ReleaseTasks(ctx, ids); err != nil {
		w.logger.Error("release of unstarted tasks failed; stale reclaim will recover them",
			logging.Error(err),
			logging.String(logging.FieldEventType, "release_failed"),
		)
		return
	}
	w.logger.Info("released unstarted tasks", logging.Int("tasks", len(ids)))
}
