package autocron

import (
	"context"
	"log/slog"
	"sync"

	"autocron/internal/logging"
	"autocron/internal/store"
)

const registratorBuffer = 256

// registrator decouples enqueue calls from SQLite writes so hosts in the
// default mode never block on the store. Tasks land in arrival order; stop
// drains everything already submitted.
type registrator struct {
	store  *store.Store
	logger *slog.Logger
	feed   chan pendingTask
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

func newRegistrator(st *store.Store, logger *slog.Logger) *registrator {
	return &registrator{
		store:  st,
		logger: logger,
		feed:   make(chan pendingTask, registratorBuffer),
		done:   make(chan struct{}),
	}
}

func (r *registrator) run() {
	defer close(r.done)
	for task := range r.feed {
		if err := writeTask(context.Background(), r.store, task); err != nil {
			r.logger.Error("registration write failed",
				logging.Error(err),
				logging.String(logging.FieldTarget, task.target),
				logging.String(logging.FieldEventType, "enqueue_failed"),
				logging.String(logging.FieldErrorHint, "check database access"),
			)
		}
	}
}

// submit queues a task for the store, blocking when the feed is full.
// Backpressure beats dropping registrations. Returns false once stop has
// closed the feed.
func (r *registrator) submit(task pendingTask) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.feed <- task
	return true
}

// stop closes the feed and waits until every submitted task is written.
func (r *registrator) stop() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.feed)
	r.mu.Unlock()
	<-r.done
}
