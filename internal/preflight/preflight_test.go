package preflight

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"autocron/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDatabaseAccess_OK(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	result := CheckDatabaseAccess(context.Background(), st)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result.Detail != st.Path() {
		t.Errorf("detail = %q, want database path", result.Detail)
	}
}

func TestCheckDatabaseAccess_Closed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}

	result := CheckDatabaseAccess(context.Background(), st)
	if result.Passed {
		t.Fatal("expected failure for closed store")
	}
}

func TestCheckMonitorProcess_NotRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	result := CheckMonitorProcess(context.Background(), st, func(int) bool { return false })
	if !result.Passed {
		t.Fatalf("expected pass when no monitor is registered, got: %s", result.Detail)
	}
}

func TestCheckMonitorProcess_Running(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	if _, err := st.AcquireMonitorLock(ctx); err != nil {
		t.Fatal(err)
	}
	if err := st.SetMonitorPID(ctx, 4242); err != nil {
		t.Fatal(err)
	}

	result := CheckMonitorProcess(ctx, st, func(pid int) bool { return pid == 4242 })
	if !result.Passed {
		t.Fatalf("expected pass for live monitor, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "4242") {
		t.Errorf("detail %q does not name the pid", result.Detail)
	}
}

func TestCheckMonitorProcess_StaleLock(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	if _, err := st.AcquireMonitorLock(ctx); err != nil {
		t.Fatal(err)
	}
	if err := st.SetMonitorPID(ctx, 4242); err != nil {
		t.Fatal(err)
	}

	result := CheckMonitorProcess(ctx, st, func(int) bool { return false })
	if result.Passed {
		t.Fatal("expected failure for stale monitor lock")
	}
	if !strings.Contains(result.Detail, "monitor_lock false") {
		t.Errorf("detail %q does not name the operator fix", result.Detail)
	}
}

func TestCheckMonitorProcess_Disabled(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	if err := st.SetSetting(ctx, "autocron_lock", "true"); err != nil {
		t.Fatal(err)
	}

	result := CheckMonitorProcess(ctx, st, func(int) bool { return true })
	if !result.Passed {
		t.Fatalf("expected pass when background execution is disabled, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "disabled") {
		t.Errorf("detail %q does not mention the disabled state", result.Detail)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil, nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_ChecksDirectoriesAndDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	results := RunAll(context.Background(), cfg, st)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
}
