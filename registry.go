package autocron

import (
	"fmt"
	"strings"
	"sync"

	"autocron/internal/worker"
)

// TaskFunc is a registered task callable. Arguments arrive as decoded JSON
// values; the returned value must be JSON-serializable.
type TaskFunc func(args ...any) (any, error)

type registry struct {
	mu  sync.RWMutex
	fns map[string]TaskFunc
}

func newRegistry() *registry {
	return &registry{fns: make(map[string]TaskFunc)}
}

func (r *registry) add(target string, fn TaskFunc) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return fmt.Errorf("register: target name is empty")
	}
	if fn == nil {
		return fmt.Errorf("register %q: function is nil", target)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.fns[target]; exists {
		return fmt.Errorf("register %q: target already registered", target)
	}
	r.fns[target] = fn
	return nil
}

func (r *registry) resolve(target string) (TaskFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.fns[target]
	return fn, ok
}

// workerRegistry adapts the engine registry to the worker's interface.
type workerRegistry struct {
	r *registry
}

func (w workerRegistry) Resolve(target string) (worker.TaskFunc, bool) {
	fn, ok := w.r.resolve(target)
	if !ok {
		return nil, false
	}
	return worker.TaskFunc(fn), true
}
