package worker_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"autocron/internal/logging"
	"autocron/internal/store"
	"autocron/internal/testsupport"
	"autocron/internal/worker"
)

type fakeRegistry map[string]worker.TaskFunc

func (r fakeRegistry) Resolve(target string) (worker.TaskFunc, bool) {
	fn, ok := r[target]
	return fn, ok
}

func startWorker(t *testing.T, w *worker.Worker) (stop func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	var once sync.Once
	stop = func() {
		once.Do(func() {
			cancel()
			select {
			case err := <-done:
				if err != nil {
					t.Errorf("worker run: %v", err)
				}
			case <-time.After(5 * time.Second):
				t.Error("worker did not stop in time")
			}
		})
	}
	t.Cleanup(stop)
	return stop
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRunExecutesDelayedTaskAndFinalizes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))

	handle := uuid.New()
	if _, err := st.EnqueueDelayed(ctx, "sum", `[2, 3]`, time.Now().Add(-time.Minute), handle); err != nil {
		t.Fatalf("EnqueueDelayed: %v", err)
	}

	registry := fakeRegistry{
		"sum": func(args ...any) (any, error) {
			total := 0.0
			for _, arg := range args {
				total += arg.(float64)
			}
			return total, nil
		},
	}

	stop := startWorker(t, worker.New(st, registry, os.Getpid(), logging.NewNop()))
	waitFor(t, 5*time.Second, func() bool {
		res, err := st.Result(ctx, handle)
		if err != nil || res == nil || !res.IsReady {
			return false
		}
		tasks, err := st.Tasks(ctx, store.FilterAll)
		return err == nil && len(tasks) == 0
	})
	stop()

	res, err := st.Result(ctx, handle)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if res.Value != "5" {
		t.Fatalf("Value = %q, want 5", res.Value)
	}
	if res.HasError {
		t.Fatalf("unexpected error: %q", res.ErrorMessage)
	}
	if res.ExpiresAt == nil {
		t.Fatal("finalized result should carry an expiry")
	}
}

func TestRunRecordsTaskErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	_, handle := testsupport.MustEnqueueDelayed(t, st, "explode", time.Now().Add(-time.Minute))

	registry := fakeRegistry{
		"explode": func(args ...any) (any, error) {
			return nil, errors.New("kaboom")
		},
	}

	stop := startWorker(t, worker.New(st, registry, os.Getpid(), logging.NewNop()))
	waitFor(t, 5*time.Second, func() bool {
		res, err := st.Result(ctx, handle)
		return err == nil && res != nil && res.IsReady
	})
	stop()

	res, err := st.Result(ctx, handle)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if !res.HasError || res.ErrorMessage != "kaboom" {
		t.Fatalf("HasError=%v ErrorMessage=%q, want kaboom", res.HasError, res.ErrorMessage)
	}
	if res.Value != "null" {
		t.Fatalf("Value = %q, want null", res.Value)
	}
}

func TestRunRecoversTaskPanics(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	_, handle := testsupport.MustEnqueueDelayed(t, st, "panicky", time.Now().Add(-time.Minute))

	registry := fakeRegistry{
		"panicky": func(args ...any) (any, error) {
			panic("boom")
		},
	}

	stop := startWorker(t, worker.New(st, registry, os.Getpid(), logging.NewNop()))
	waitFor(t, 5*time.Second, func() bool {
		res, err := st.Result(ctx, handle)
		return err == nil && res != nil && res.IsReady
	})
	stop()

	res, err := st.Result(ctx, handle)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if !res.HasError || !strings.Contains(res.ErrorMessage, "task panicked: boom") {
		t.Fatalf("ErrorMessage = %q, want panic report", res.ErrorMessage)
	}

	tasks, err := st.Tasks(ctx, store.FilterAll)
	if err != nil {
		t.Fatalf("Tasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("panicking task should still be disposed, %d rows remain", len(tasks))
	}
}

func TestRunHandlesUnknownTarget(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	_, handle := testsupport.MustEnqueueDelayed(t, st, "ghost", time.Now().Add(-time.Minute))

	stop := startWorker(t, worker.New(st, fakeRegistry{}, os.Getpid(), logging.NewNop()))
	waitFor(t, 5*time.Second, func() bool {
		res, err := st.Result(ctx, handle)
		return err == nil && res != nil && res.IsReady
	})
	stop()

	res, err := st.Result(ctx, handle)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if !res.HasError || !strings.Contains(res.ErrorMessage, `unknown target "ghost"`) {
		t.Fatalf("ErrorMessage = %q", res.ErrorMessage)
	}
}

func TestRunReschedulesCronAfterRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	if _, err := st.EnqueueCron(ctx, "tick", "*/5 * * * *", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("EnqueueCron: %v", err)
	}

	registry := fakeRegistry{
		"tick": func(args ...any) (any, error) {
			return "ok", nil
		},
	}

	stop := startWorker(t, worker.New(st, registry, os.Getpid(), logging.NewNop()))
	waitFor(t, 5*time.Second, func() bool {
		tasks, err := st.Tasks(ctx, store.FilterCron)
		if err != nil || len(tasks) != 1 {
			return false
		}
		return tasks[0].Status == store.StatusWaiting && tasks[0].DueAt.After(time.Now())
	})
	stop()

	tasks, err := st.Tasks(ctx, store.FilterCron)
	if err != nil {
		t.Fatalf("Tasks: %v", err)
	}
	task := tasks[0]
	if task.ClaimToken != "" || task.ClaimedAt != nil {
		t.Fatal("reschedule should clear the claim")
	}

	results, err := st.Results(ctx)
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].TaskID != task.ID || results[0].Value != `"ok"` || !results[0].IsReady {
		t.Fatalf("cron result = %+v", results[0])
	}
}

func TestRunStopsWhenSupervisorDies(t *testing.T) {
	t.Parallel()

	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	w := worker.New(st, fakeRegistry{}, 1, logging.NewNop(),
		worker.WithAliveProbe(func(int) bool { return false }))

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not stop on dead supervisor")
	}
}

func TestRunReleasesUnstartedTasksOnShutdown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))

	slowHandle := uuid.New()
	fastHandle := uuid.New()
	if _, err := st.EnqueueDelayed(ctx, "slow", "[]", time.Now().Add(-2*time.Minute), slowHandle); err != nil {
		t.Fatalf("EnqueueDelayed slow: %v", err)
	}
	if _, err := st.EnqueueDelayed(ctx, "fast", "[]", time.Now().Add(-time.Minute), fastHandle); err != nil {
		t.Fatalf("EnqueueDelayed fast: %v", err)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	registry := fakeRegistry{
		"slow": func(args ...any) (any, error) {
			close(started)
			<-release
			return "slow done", nil
		},
		"fast": func(args ...any) (any, error) {
			return "fast done", nil
		},
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- worker.New(st, registry, os.Getpid(), logging.NewNop()).Run(runCtx) }()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("slow task never started")
	}
	// Shutdown lands while slow is executing and fast is claimed but
	// unstarted; slow must finish, fast must go back to waiting.
	cancel()
	close(release)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	slowRes, err := st.Result(ctx, slowHandle)
	if err != nil {
		t.Fatalf("Result slow: %v", err)
	}
	if !slowRes.IsReady || slowRes.Value != `"slow done"` {
		t.Fatalf("slow result = %+v", slowRes)
	}

	fastRes, err := st.Result(ctx, fastHandle)
	if err != nil {
		t.Fatalf("Result fast: %v", err)
	}
	if fastRes.IsReady {
		t.Fatal("fast result should still be pending")
	}

	tasks, err := st.Tasks(ctx, store.FilterAll)
	if err != nil {
		t.Fatalf("Tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Target != "fast" {
		t.Fatalf("remaining tasks = %+v", tasks)
	}
	if tasks[0].Status != store.StatusWaiting || tasks[0].ClaimToken != "" {
		t.Fatalf("fast task not released: %+v", tasks[0])
	}
}

func TestRunRemovesCronTaskWithCorruptSchedule(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	if _, err := st.EnqueueCron(ctx, "bad", "every now and then", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("EnqueueCron: %v", err)
	}

	stop := startWorker(t, worker.New(st, fakeRegistry{}, os.Getpid(), logging.NewNop()))
	waitFor(t, 5*time.Second, func() bool {
		tasks, err := st.Tasks(ctx, store.FilterAll)
		return err == nil && len(tasks) == 0
	})
	stop()

	results, err := st.Results(ctx)
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if !results[0].HasError || !strings.Contains(results[0].ErrorMessage, "unparseable schedule") {
		t.Fatalf("corrupt-schedule result = %+v", results[0])
	}
}
