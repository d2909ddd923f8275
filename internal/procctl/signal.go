package procctl

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

const exitPollInterval = 200 * time.Millisecond

// Alive reports whether pid refers to a live process. Exited children of
// this process are reaped here first: a zombie still accepts signal 0, so
// probing without the wait would report dead workers as alive forever.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	var status unix.WaitStatus
	if wpid, err := unix.Wait4(pid, &status, unix.WNOHANG, nil); err == nil && wpid == pid {
		return false
	}
	err := unix.Kill(pid, 0)
	// EPERM means the process exists but belongs to another user.
	return err == nil || errors.Is(err, unix.EPERM)
}

// Terminate sends SIGTERM to pid. A process that is already gone counts as
// terminated.
func Terminate(pid int) error {
	return signalProcess(pid, unix.SIGTERM, "terminate")
}

// ForceKill sends SIGKILL to pid.
func ForceKill(pid int) error {
	return signalProcess(pid, unix.SIGKILL, "kill")
}

func signalProcess(pid int, sig unix.Signal, verb string) error {
	if pid <= 0 {
		return fmt.Errorf("%s: invalid pid %d", verb, pid)
	}
	if pid == os.Getpid() {
		return fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	if err := unix.Kill(pid, sig); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return fmt.Errorf("%s process %d: %w", verb, pid, err)
	}
	return nil
}

// WaitForExit polls until pid is gone or the timeout elapses.
func WaitForExit(pid int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if !Alive(pid) {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("process %d still running after %s", pid, timeout)
		}
		time.Sleep(exitPollInterval)
	}
}
