package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"autocron/internal/config"
	"autocron/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// MustEnqueueDelayed inserts a delayed task for tests and returns the stored
// row together with its result handle.
func MustEnqueueDelayed(t testing.TB, st *store.Store, target string, dueAt time.Time) (*store.Task, uuid.UUID) {
	t.Helper()

	handle := uuid.New()
	id, err := st.EnqueueDelayed(context.Background(), target, "[]", dueAt, handle)
	if err != nil {
		t.Fatalf("store.EnqueueDelayed: %v", err)
	}
	task, err := st.TaskByID(context.Background(), id)
	if err != nil {
		t.Fatalf("store.TaskByID: %v", err)
	}
	if task == nil {
		t.Fatalf("task %d not found after enqueue", id)
	}
	return task, handle
}
