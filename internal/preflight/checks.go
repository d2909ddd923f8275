package preflight

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"autocron/internal/store"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDatabaseAccess verifies the settings row is readable, which exercises
// the same read path every process depends on.
func CheckDatabaseAccess(ctx context.Context, st *store.Store) Result {
	const name = "Database"
	if _, err := st.Settings(ctx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", st.Path(), err)}
	}
	return Result{Name: name, Passed: true, Detail: st.Path()}
}

// CheckMonitorProcess reports whether the monitor the settings row claims is
// actually running. A held lock with a dead pid is the one state operators
// must repair by hand, so it fails the check and names the fix.
func CheckMonitorProcess(ctx context.Context, st *store.Store, alive func(pid int) bool) Result {
	const name = "Monitor"

	settings, err := st.Settings(ctx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("settings unreadable: %v", err)}
	}
	if settings.AutocronLock {
		return Result{Name: name, Passed: true, Detail: "disabled (autocron_lock is set)"}
	}
	if !settings.MonitorLock {
		return Result{Name: name, Passed: true, Detail: "not running"}
	}
	if settings.MonitorPID > 0 && alive(settings.MonitorPID) {
		return Result{
			Name:   name,
			Passed: true,
			Detail: fmt.Sprintf("running (pid %d, %d workers)", settings.MonitorPID, settings.RunningWorkers),
		}
	}
	return Result{
		Name: name,
		Detail: fmt.Sprintf(
			"lock held but pid %d is not running; clear with: autocron settings set monitor_lock false",
			settings.MonitorPID,
		),
	}
}
