package autocron

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"autocron/internal/cronspec"
	"autocron/internal/logging"
	"autocron/internal/store"
)

// pendingTask is an enqueue captured before it reaches the store: buffered
// ahead of Start, queued through the registrator, or written inline.
type pendingTask struct {
	kind     store.TaskKind
	target   string
	argsJSON string
	schedule string
	dueAt    time.Time
	handle   uuid.UUID
}

// EnqueueDelayed schedules one run of target as soon as a worker is free
// and returns the handle for Result. Arguments must be JSON-serializable;
// workers hand them to the task with JSON types (numbers as float64,
// arrays as []any, objects as map[string]any).
func (e *Engine) EnqueueDelayed(target string, args ...any) (uuid.UUID, error) {
	return e.enqueueDelayedAt(time.Now(), target, args)
}

// EnqueueDelayedAfter schedules one run of target no earlier than delay
// from now.
func (e *Engine) EnqueueDelayedAfter(delay time.Duration, target string, args ...any) (uuid.UUID, error) {
	return e.enqueueDelayedAt(time.Now().Add(delay), target, args)
}

func (e *Engine) enqueueDelayedAt(dueAt time.Time, target string, args []any) (uuid.UUID, error) {
	if _, ok := e.registry.resolve(target); !ok {
		return uuid.Nil, fmt.Errorf("enqueue %q: target not registered", target)
	}
	argsJSON, err := encodeArgs(args)
	if err != nil {
		return uuid.Nil, fmt.Errorf("enqueue %q: arguments not JSON-serializable: %w", target, err)
	}
	task := pendingTask{
		kind:     store.KindDelayed,
		target:   target,
		argsJSON: argsJSON,
		dueAt:    dueAt,
		handle:   uuid.New(),
	}
	if err := e.dispatch(task); err != nil {
		return uuid.Nil, err
	}
	return task.handle, nil
}

// EnqueueCron registers a recurring run of target on a five-field cron
// schedule. Repeated registration of the same target replaces nothing and
// creates nothing; the first registration wins until the engine stops.
func (e *Engine) EnqueueCron(target, schedule string) error {
	if _, ok := e.registry.resolve(target); !ok {
		return fmt.Errorf("enqueue cron %q: target not registered", target)
	}
	spec, err := cronspec.Parse(schedule)
	if err != nil {
		return fmt.Errorf("enqueue cron %q: %w", target, err)
	}
	task := pendingTask{
		kind:     store.KindCron,
		target:   target,
		schedule: spec.String(),
		argsJSON: "[]",
		dueAt:    spec.NextAfter(time.Now()),
	}
	return e.dispatch(task)
}

// dispatch routes a task by engine mode: buffered before Start, executed
// inline in synchronous mode, handed to the registrator, or written to the
// store directly in blocking mode.
func (e *Engine) dispatch(task pendingTask) error {
	e.mu.Lock()
	switch {
	case !e.started:
		e.pending = append(e.pending, task)
		e.mu.Unlock()
		return nil
	case e.syncMode:
		e.mu.Unlock()
		// Cron targets never run in synchronous mode; accept and drop the
		// registration so hosts need no mode checks.
		if task.kind == store.KindCron {
			return nil
		}
		e.runSynchronous(task)
		return nil
	case e.reg != nil:
		reg := e.reg
		e.mu.Unlock()
		if reg.submit(task) {
			return nil
		}
		// The registrator shut down between the mode check and the
		// submit; park the task like a pre-start enqueue.
		e.mu.Lock()
		e.pending = append(e.pending, task)
		e.mu.Unlock()
		return nil
	default:
		st := e.store
		e.mu.Unlock()
		if err := writeTask(context.Background(), st, task); err != nil {
			return fmt.Errorf("enqueue %q: %w", task.target, err)
		}
		return nil
	}
}

// writeTask lands a pending task in the store. Shared by the registrator,
// the blocking path, and the pre-start buffer drain.
func writeTask(ctx context.Context, st *store.Store, task pendingTask) error {
	if task.kind == store.KindCron {
		_, err := st.EnqueueCron(ctx, task.target, task.schedule, task.dueAt)
		return err
	}
	_, err := st.EnqueueDelayed(ctx, task.target, task.argsJSON, task.dueAt, task.handle)
	return err
}

func encodeArgs(args []any) (string, error) {
	if len(args) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// runSynchronous executes the task in the calling process and parks the
// outcome in the engine-local result map. Arguments round-trip through
// JSON first so targets see the same types in every mode.
func (e *Engine) runSynchronous(task pendingTask) {
	start := time.Now()
	valueJSON, errMsg := e.invokeLocal(task)
	res := &store.Result{
		UUID:         task.handle,
		Target:       task.target,
		Value:        valueJSON,
		HasError:     errMsg != "",
		ErrorMessage: errMsg,
		IsReady:      true,
		CreatedAt:    time.Now().UTC(),
	}
	e.localMu.Lock()
	e.local[task.handle] = res
	e.localMu.Unlock()

	if errMsg != "" {
		e.logger.Warn("task failed",
			logging.String(logging.FieldTarget, task.target),
			logging.Duration("elapsed", time.Since(start)),
			logging.String(logging.FieldEventType, "task_failed"),
			logging.String("error_message", errMsg),
		)
		return
	}
	e.logger.Debug("task executed synchronously",
		logging.String(logging.FieldTarget, task.target),
		logging.Duration("elapsed", time.Since(start)),
	)
}

func (e *Engine) invokeLocal(task pendingTask) (valueJSON, errMsg string) {
	fn, ok := e.registry.resolve(task.target)
	if !ok {
		return "null", fmt.Sprintf("unknown target %q", task.target)
	}
	value, err := e.callLocal(fn, task)
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

func (e *Engine) callLocal(fn TaskFunc, task pendingTask) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("task panicked",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldTarget, task.target),
				logging.String(logging.FieldEventType, "task_panic"),
			)
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	var args []any
	if trimmed := strings.TrimSpace(task.argsJSON); trimmed != "" {
		if uerr := json.Unmarshal([]byte(trimmed), &args); uerr != nil {
			return nil, fmt.Errorf("decode arguments: %w", uerr)
		}
	}
	return fn(args...)
}
