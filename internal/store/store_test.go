package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"autocron/internal/store"
	"autocron/internal/testsupport"
)

func TestOpenCreatesSchemaAndDefaultSettings(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	settings, err := st.Settings(ctx)
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if settings.MaxWorkers != store.DefaultMaxWorkers {
		t.Fatalf("expected max_workers %d, got %d", store.DefaultMaxWorkers, settings.MaxWorkers)
	}
	if settings.WorkerIdleTime != 0 || settings.MonitorIdleTime != store.DefaultMonitorIdleTime {
		t.Fatalf("unexpected idle defaults: %+v", settings)
	}
	if settings.ResultTTL != store.DefaultResultTTL {
		t.Fatalf("expected result_ttl %d, got %d", store.DefaultResultTTL, settings.ResultTTL)
	}
	if settings.AutocronLock || settings.MonitorLock || settings.BlockingMode {
		t.Fatalf("expected all flags unset, got %+v", settings)
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalTasks() != 0 || stats.ResultsTotal != 0 {
		t.Fatalf("expected empty store, got %+v", stats)
	}
}

func TestEnqueueDelayedCreatesPendingResult(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	due := time.Now().Add(time.Minute)
	task, handle := testsupport.MustEnqueueDelayed(t, st, "report.Build", due)

	if task.Kind != store.KindDelayed || task.Status != store.StatusWaiting {
		t.Fatalf("unexpected task state: %+v", task)
	}
	if task.ResultUUID != handle.String() {
		t.Fatalf("expected result uuid %s, got %s", handle, task.ResultUUID)
	}
	if task.DueAt.Sub(due).Abs() > time.Second {
		t.Fatalf("due time drifted: want %v, got %v", due, task.DueAt)
	}

	result, err := st.Result(ctx, handle)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if result == nil {
		t.Fatal("expected pending result row")
	}
	if result.IsReady || result.HasError {
		t.Fatalf("pending result should not be ready: %+v", result)
	}
	if result.ExpiresAt != nil {
		t.Fatalf("pending result must not expire, got %v", result.ExpiresAt)
	}
	if result.TaskID != task.ID || result.Target != "report.Build" {
		t.Fatalf("result row fields wrong: %+v", result)
	}
}

func TestEnqueueCronIsIdempotentPerTarget(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	firstDue := time.Now().Add(time.Hour)

	first, err := st.EnqueueCron(ctx, "report.Nightly", "30 2 * * *", firstDue)
	if err != nil {
		t.Fatalf("EnqueueCron: %v", err)
	}
	second, err := st.EnqueueCron(ctx, "report.Nightly", "30 2 * * *", firstDue.Add(time.Hour))
	if err != nil {
		t.Fatalf("EnqueueCron repeat: %v", err)
	}
	if first != second {
		t.Fatalf("expected same row id on re-registration, got %d and %d", first, second)
	}

	other, err := st.EnqueueCron(ctx, "cache.Sweep", "*/5 * * * *", firstDue)
	if err != nil {
		t.Fatalf("EnqueueCron other: %v", err)
	}
	if other == first {
		t.Fatal("distinct targets must get distinct rows")
	}

	crons, err := st.Tasks(ctx, store.FilterCron)
	if err != nil {
		t.Fatalf("Tasks cron filter: %v", err)
	}
	if len(crons) != 2 {
		t.Fatalf("expected 2 cron rows, got %d", len(crons))
	}
}

func TestClaimDueClaimsOnlyEligibleTasks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	now := time.Now()
	due, _ := testsupport.MustEnqueueDelayed(t, st, "due.Task", now.Add(-time.Minute))
	future, _ := testsupport.MustEnqueueDelayed(t, st, "future.Task", now.Add(time.Hour))

	claimed, err := st.ClaimDue(ctx, now)
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != due.ID {
		t.Fatalf("expected only the due task, got %+v", claimed)
	}
	if claimed[0].Status != store.StatusProcessing {
		t.Fatalf("claimed task should be processing, got %s", claimed[0].Status)
	}
	if claimed[0].ClaimToken == "" || claimed[0].ClaimedAt == nil {
		t.Fatalf("claim fields not stamped: %+v", claimed[0])
	}

	again, err := st.ClaimDue(ctx, now)
	if err != nil {
		t.Fatalf("second ClaimDue: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second claim must be empty, got %d tasks", len(again))
	}

	untouched, err := st.TaskByID(ctx, future.ID)
	if err != nil {
		t.Fatalf("TaskByID: %v", err)
	}
	if untouched.Status != store.StatusWaiting {
		t.Fatalf("future task must stay waiting, got %s", untouched.Status)
	}
}

func TestClaimDueConcurrentClaimersNeverShareTasks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	now := time.Now()
	const taskCount = 20
	expected := make(map[int64]struct{}, taskCount)
	for i := 0; i < taskCount; i++ {
		task, _ := testsupport.MustEnqueueDelayed(t, st, fmt.Sprintf("bulk.Task%d", i), now.Add(-time.Minute))
		expected[task.ID] = struct{}{}
	}

	const claimers = 8
	var (
		mu      sync.Mutex
		claimed []int64
		wg      sync.WaitGroup
	)
	wg.Add(claimers)
	for i := 0; i < claimers; i++ {
		go func() {
			defer wg.Done()
			tasks, err := st.ClaimDue(ctx, now)
			if err != nil {
				t.Errorf("ClaimDue: %v", err)
				return
			}
			mu.Lock()
			for _, task := range tasks {
				claimed = append(claimed, task.ID)
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(claimed) != taskCount {
		t.Fatalf("expected %d claims total, got %d", taskCount, len(claimed))
	}
	seen := make(map[int64]struct{}, len(claimed))
	for _, id := range claimed {
		if _, dup := seen[id]; dup {
			t.Fatalf("task %d claimed twice", id)
		}
		seen[id] = struct{}{}
		if _, ok := expected[id]; !ok {
			t.Fatalf("claimed unknown task %d", id)
		}
	}
}

func TestClaimDueSingleTaskSingleWinner(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	now := time.Now()
	testsupport.MustEnqueueDelayed(t, st, "solo.Task", now.Add(-time.Minute))

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		counts []int
	)
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			tasks, err := st.ClaimDue(ctx, now)
			if err != nil {
				t.Errorf("ClaimDue: %v", err)
				return
			}
			mu.Lock()
			counts = append(counts, len(tasks))
			mu.Unlock()
		}()
	}
	wg.Wait()

	total := 0
	for _, c := range counts {
		total += c
	}
	if total != 1 {
		t.Fatalf("exactly one claimer must win, got claim counts %v", counts)
	}
}

func TestReleaseTasksReturnsUnstartedClaims(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	now := time.Now()
	for i := 0; i < 3; i++ {
		testsupport.MustEnqueueDelayed(t, st, fmt.Sprintf("batch.Task%d", i), now.Add(-time.Minute))
	}

	claimed, err := st.ClaimDue(ctx, now)
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if len(claimed) != 3 {
		t.Fatalf("expected 3 claims, got %d", len(claimed))
	}

	if err := st.ReleaseTasks(ctx, []int64{claimed[1].ID, claimed[2].ID}); err != nil {
		t.Fatalf("ReleaseTasks: %v", err)
	}

	kept, err := st.TaskByID(ctx, claimed[0].ID)
	if err != nil {
		t.Fatalf("TaskByID: %v", err)
	}
	if kept.Status != store.StatusProcessing {
		t.Fatalf("unreleased task must stay processing, got %s", kept.Status)
	}
	for _, id := range []int64{claimed[1].ID, claimed[2].ID} {
		released, err := st.TaskByID(ctx, id)
		if err != nil {
			t.Fatalf("TaskByID: %v", err)
		}
		if released.Status != store.StatusWaiting {
			t.Fatalf("released task %d must be waiting, got %s", id, released.Status)
		}
		if released.ClaimToken != "" || released.ClaimedAt != nil {
			t.Fatalf("released task %d keeps claim fields: %+v", id, released)
		}
	}
}

func TestResetProcessingClearsEveryClaim(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	now := time.Now()
	for i := 0; i < 2; i++ {
		testsupport.MustEnqueueDelayed(t, st, fmt.Sprintf("crash.Task%d", i), now.Add(-time.Minute))
	}
	if _, err := st.ClaimDue(ctx, now); err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}

	count, err := st.ResetProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetProcessing: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 resets, got %d", count)
	}

	waiting, err := st.Tasks(ctx, store.FilterWaiting)
	if err != nil {
		t.Fatalf("Tasks: %v", err)
	}
	if len(waiting) != 2 {
		t.Fatalf("expected 2 waiting tasks after reset, got %d", len(waiting))
	}
}

func TestReclaimStaleLeavesFreshClaimsAlone(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	now := time.Now()

	stale, _ := testsupport.MustEnqueueDelayed(t, st, "stale.Task", now.Add(-3*time.Hour))
	if claimed, err := st.ClaimDue(ctx, now.Add(-2*time.Hour)); err != nil || len(claimed) != 1 {
		t.Fatalf("claim stale task: %v (%d claimed)", err, len(claimed))
	}

	fresh, _ := testsupport.MustEnqueueDelayed(t, st, "fresh.Task", now.Add(-time.Minute))
	if claimed, err := st.ClaimDue(ctx, now); err != nil || len(claimed) != 1 {
		t.Fatalf("claim fresh task: %v (%d claimed)", err, len(claimed))
	}

	count, err := st.ReclaimStale(ctx, now.Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 reclaim, got %d", count)
	}

	reclaimed, err := st.TaskByID(ctx, stale.ID)
	if err != nil {
		t.Fatalf("TaskByID stale: %v", err)
	}
	if reclaimed.Status != store.StatusWaiting {
		t.Fatalf("stale task must be waiting again, got %s", reclaimed.Status)
	}

	inFlight, err := st.TaskByID(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("TaskByID fresh: %v", err)
	}
	if inFlight.Status != store.StatusProcessing {
		t.Fatalf("fresh claim must stay processing, got %s", inFlight.Status)
	}
}

func TestRescheduleCronResetsClaimFields(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	now := time.Now()
	id, err := st.EnqueueCron(ctx, "tick.Every", "* * * * *", now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("EnqueueCron: %v", err)
	}

	claimed, err := st.ClaimDue(ctx, now)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("ClaimDue: %v (%d claimed)", err, len(claimed))
	}

	nextDue := now.Add(time.Minute).Truncate(time.Minute)
	if err := st.RescheduleCron(ctx, id, nextDue); err != nil {
		t.Fatalf("RescheduleCron: %v", err)
	}

	task, err := st.TaskByID(ctx, id)
	if err != nil {
		t.Fatalf("TaskByID: %v", err)
	}
	if task.Status != store.StatusWaiting {
		t.Fatalf("rescheduled cron must be waiting, got %s", task.Status)
	}
	if task.ClaimToken != "" || task.ClaimedAt != nil {
		t.Fatalf("claim fields must be cleared: %+v", task)
	}
	if !task.DueAt.Equal(nextDue.UTC()) {
		t.Fatalf("due time not updated: want %v, got %v", nextDue.UTC(), task.DueAt)
	}
}

func TestDeleteCronTasksKeepsDelayedRows(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	now := time.Now()
	testsupport.MustEnqueueDelayed(t, st, "keep.Me", now.Add(time.Hour))
	if _, err := st.EnqueueCron(ctx, "drop.Me", "* * * * *", now.Add(time.Minute)); err != nil {
		t.Fatalf("EnqueueCron: %v", err)
	}
	if _, err := st.EnqueueCron(ctx, "drop.MeToo", "*/5 * * * *", now.Add(time.Minute)); err != nil {
		t.Fatalf("EnqueueCron: %v", err)
	}

	count, err := st.DeleteCronTasks(ctx)
	if err != nil {
		t.Fatalf("DeleteCronTasks: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 cron deletions, got %d", count)
	}

	remaining, err := st.Tasks(ctx, store.FilterAll)
	if err != nil {
		t.Fatalf("Tasks: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Kind != store.KindDelayed {
		t.Fatalf("expected only the delayed task to remain, got %+v", remaining)
	}
}

func TestTasksFilters(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	now := time.Now()
	testsupport.MustEnqueueDelayed(t, st, "past.Task", now.Add(-time.Minute))
	testsupport.MustEnqueueDelayed(t, st, "future.Task", now.Add(time.Hour))
	if _, err := st.EnqueueCron(ctx, "cron.Task", "0 0 * * *", now.Add(12*time.Hour)); err != nil {
		t.Fatalf("EnqueueCron: %v", err)
	}

	all, err := st.Tasks(ctx, store.FilterAll)
	if err != nil {
		t.Fatalf("FilterAll: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(all))
	}

	due, err := st.Tasks(ctx, store.FilterDue)
	if err != nil {
		t.Fatalf("FilterDue: %v", err)
	}
	if len(due) != 1 || due[0].Target != "past.Task" {
		t.Fatalf("expected only the past task to be due, got %+v", due)
	}

	if _, err := st.ClaimDue(ctx, now); err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	waiting, err := st.Tasks(ctx, store.FilterWaiting)
	if err != nil {
		t.Fatalf("FilterWaiting: %v", err)
	}
	if len(waiting) != 2 {
		t.Fatalf("expected 2 waiting tasks after claim, got %d", len(waiting))
	}

	if _, err := st.Tasks(ctx, store.TaskFilter("bogus")); err == nil {
		t.Fatal("expected error for unknown filter")
	}
}

func TestTaskByIDMissingReturnsNil(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	task, err := st.TaskByID(context.Background(), 9999)
	if err != nil {
		t.Fatalf("TaskByID: %v", err)
	}
	if task != nil {
		t.Fatalf("expected nil for missing task, got %+v", task)
	}
}

func TestDeleteTask(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	task, _ := testsupport.MustEnqueueDelayed(t, st, "gone.Soon", time.Now())
	if err := st.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	missing, err := st.TaskByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("TaskByID: %v", err)
	}
	if missing != nil {
		t.Fatalf("task should be gone, got %+v", missing)
	}
}

func TestStatsCountsTasksAndResults(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	now := time.Now()
	_, handle := testsupport.MustEnqueueDelayed(t, st, "counted.Task", now.Add(-time.Minute))
	testsupport.MustEnqueueDelayed(t, st, "counted.Later", now.Add(time.Hour))
	if _, err := st.EnqueueCron(ctx, "counted.Cron", "* * * * *", now.Add(time.Minute)); err != nil {
		t.Fatalf("EnqueueCron: %v", err)
	}

	if _, err := st.ClaimDue(ctx, now); err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if err := st.FinalizeResult(ctx, handle, `"ok"`, "", time.Hour); err != nil {
		t.Fatalf("FinalizeResult: %v", err)
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TasksByStatus[store.StatusProcessing] != 1 {
		t.Fatalf("expected 1 processing task, got %+v", stats.TasksByStatus)
	}
	if stats.TasksByStatus[store.StatusWaiting] != 2 {
		t.Fatalf("expected 2 waiting tasks, got %+v", stats.TasksByStatus)
	}
	if stats.DelayedTasks != 2 || stats.CronTasks != 1 {
		t.Fatalf("unexpected kind counts: %+v", stats)
	}
	if stats.ResultsTotal != 2 || stats.ResultsReady != 1 || stats.ResultsPending != 1 {
		t.Fatalf("unexpected result counts: %+v", stats)
	}
}

func TestArgumentsRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	handle := uuid.New()
	argsJSON := `[2026,"Q3",true]`
	id, err := st.EnqueueDelayed(ctx, "report.Build", argsJSON, time.Now(), handle)
	if err != nil {
		t.Fatalf("EnqueueDelayed: %v", err)
	}

	task, err := st.TaskByID(ctx, id)
	if err != nil {
		t.Fatalf("TaskByID: %v", err)
	}
	if task.Arguments != argsJSON {
		t.Fatalf("arguments altered: want %s, got %s", argsJSON, task.Arguments)
	}
}
