package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"autocron/internal/cronspec"
	"autocron/internal/logging"
	"autocron/internal/store"
)

// execute runs one claimed task and disposes of its row. Failures are
// recorded on the result; nothing here may take the loop down.
func (w *Worker) execute(ctx context.Context, task *store.Task, ttl time.Duration) {
	logger := w.logger.With(
		logging.Int64(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldTarget, task.Target),
	)

	if task.IsCron() {
		w.executeCron(ctx, task, ttl, logger)
		return
	}
	w.executeDelayed(ctx, task, ttl, logger)
}

func (w *Worker) executeDelayed(ctx context.Context, task *store.Task, ttl time.Duration, logger *slog.Logger) {
	started := time.Now()
	valueJSON, errMsg := w.invoke(task, logger)
	w.logOutcome(logger, "delayed", started, errMsg)

	handle, err := uuid.Parse(task.ResultUUID)
	if err != nil {
		logger.Error("task row carries an invalid result handle; result is lost",
			logging.Error(err),
			logging.String(logging.FieldEventType, "result_handle_invalid"),
		)
	} else if err := w.store.FinalizeResult(ctx, handle, valueJSON, errMsg, ttl); err != nil {
		logger.Error("finalize result failed",
			logging.Error(err),
			logging.String(logging.FieldHandle, handle.String()),
			logging.String(logging.FieldEventType, "finalize_failed"),
			logging.String(logging.FieldErrorHint, "check database access"),
		)
	}
	if err := w.store.DeleteTask(ctx, task.ID); err != nil {
		logger.Error("delete of finished task failed; stale reclaim may rerun it",
			logging.Error(err),
			logging.String(logging.FieldEventType, "task_delete_failed"),
		)
	}
}

func (w *Worker) executeCron(ctx context.Context, task *store.Task, ttl time.Duration, logger *slog.Logger) {
	spec, err := cronspec.Parse(task.Schedule)
	if err != nil {
		// A schedule that validated at enqueue time can only fail here
		// through row corruption. Remove the row so it cannot wedge the
		// claim loop on every poll.
		logger.Error("stored schedule is unparseable; removing cron task",
			logging.Error(err),
			logging.String("schedule", task.Schedule),
			logging.String(logging.FieldEventType, "cron_schedule_corrupt"),
		)
		w.insertCronResult(ctx, task, "null", fmt.Sprintf("unparseable schedule %q: task removed", task.Schedule), ttl, logger)
		if err := w.store.DeleteTask(ctx, task.ID); err != nil {
			logger.Error("delete of corrupt cron task failed", logging.Error(err))
		}
		return
	}

	started := time.Now()
	valueJSON, errMsg := w.invoke(task, logger)
	w.logOutcome(logger, "cron", started, errMsg)
	w.insertCronResult(ctx, task, valueJSON, errMsg, ttl, logger)

	// Next occurrence strictly after now: runs missed while no worker was
	// alive collapse into the single one just executed.
	next := spec.NextAfter(time.Now())
	if err := w.store.RescheduleCron(ctx, task.ID, next); err != nil {
		logger.Error("reschedule failed; stale reclaim will recover the row",
			logging.Error(err),
			logging.String(logging.FieldEventType, "reschedule_failed"),
		)
	}
}

func (w *Worker) insertCronResult(ctx context.Context, task *store.Task, valueJSON, errMsg string, ttl time.Duration, logger *slog.Logger) {
	handle, err := w.store.InsertFinalizedResult(ctx, task.ID, task.Target, valueJSON, errMsg, ttl)
	if err != nil {
		logger.Error("record of cron run failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "cron_result_failed"),
		)
		return
	}
	logger.Debug("cron run recorded", logging.String(logging.FieldHandle, handle.String()))
}

// invoke resolves and calls the target, translating every failure mode
// (unknown target, bad arguments, returned error, panic, unencodable value)
// into an error message for the result row.
func (w *Worker) invoke(task *store.Task, logger *slog.Logger) (valueJSON, errMsg string) {
	value, err := w.call(task, logger)
	if err != nil {
		msg := err.Error()
		if msg == "" {
			msg = "task failed"
		}
		return "null", msg
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "null", fmt.Sprintf("encode result: %v", err)
	}
	return string(data), ""
}

func (w *Worker) call(task *store.Task, logger *slog.Logger) (value any, err error) {
	fn, ok := w.registry.Resolve(task.Target)
	if !ok {
		return nil, fmt.Errorf("unknown target %q", task.Target)
	}
	args, err := decodeArgs(task.Arguments)
	if err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("recovered task panic",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldEventType, "task_panic"),
			)
			value = nil
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(args...)
}

func (w *Worker) logOutcome(logger *slog.Logger, kind string, started time.Time, errMsg string) {
	if errMsg == "" {
		logger.Info("task completed",
			logging.String("kind", kind),
			logging.Duration("elapsed", time.Since(started)),
			logging.String(logging.FieldEventType, "task_completed"),
		)
		return
	}
	logger.Warn("task failed",
		logging.String("kind", kind),
		logging.Duration("elapsed", time.Since(started)),
		logging.String("error_message", errMsg),
		logging.String(logging.FieldEventType, "task_failed"),
	)
}

func decodeArgs(raw string) ([]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var args []any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}
