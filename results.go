package autocron

import (
	"context"

	"github.com/google/uuid"

	"autocron/internal/store"
)

// Result looks up the outcome for an enqueue handle. It returns (nil, nil)
// when no result exists yet: still executing, expired, or never enqueued.
// Callers poll until Result returns a row with IsReady set.
//
// Synchronous-mode outcomes live only in this engine and are served from
// memory; everything else comes from the store.
func (e *Engine) Result(handle uuid.UUID) (*store.Result, error) {
	e.localMu.RLock()
	res, ok := e.local[handle]
	e.localMu.RUnlock()
	if ok {
		return res, nil
	}

	e.mu.Lock()
	st := e.store
	e.mu.Unlock()
	if st == nil {
		return nil, nil
	}
	return st.Result(context.Background(), handle)
}

// Results returns every result row currently in the store, pending ones
// included, oldest first.
func (e *Engine) Results() ([]*store.Result, error) {
	e.mu.Lock()
	st := e.store
	e.mu.Unlock()
	if st == nil {
		return nil, nil
	}
	return st.Results(context.Background())
}
