// Package procctl provides the process primitives behind autocron's
// multi-process layout: detached re-exec of the current binary as a child
// role, pid liveness probes, and signal-based termination with a grace
// window. Children receive their role and wiring through environment
// variables only; no pipes or sockets connect the processes.
package procctl

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Environment variables forming the child-role contract.
const (
	EnvRole      = "AUTOCRON_ROLE"
	EnvDatabase  = "AUTOCRON_DB"
	EnvParentPID = "AUTOCRON_PARENT_PID"
	EnvConfig    = "AUTOCRON_CONFIG"
)

// Child roles a spawned process can assume.
const (
	RoleMonitor = "monitor"
	RoleWorker  = "worker"
)

// LaunchSpec describes one child role process.
type LaunchSpec struct {
	Role       string
	Database   string
	ParentPID  int // pid the child watches; defaults to the calling process
	ConfigPath string
}

// Launch re-executes the current binary as a detached child carrying the
// role environment. The child is released immediately; callers track it by
// the returned pid.
func Launch(spec LaunchSpec) (int, error) {
	if spec.Role != RoleMonitor && spec.Role != RoleWorker {
		return 0, fmt.Errorf("launch child: unknown role %q", spec.Role)
	}
	if strings.TrimSpace(spec.Database) == "" {
		return 0, fmt.Errorf("launch %s: database path is empty", spec.Role)
	}
	if spec.ParentPID <= 0 {
		spec.ParentPID = os.Getpid()
	}
	executable, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("resolve executable: %w", err)
	}

	proc := exec.Command(executable)
	proc.Env = append(os.Environ(),
		EnvRole+"="+spec.Role,
		EnvDatabase+"="+spec.Database,
		EnvParentPID+"="+strconv.Itoa(spec.ParentPID),
		EnvConfig+"="+spec.ConfigPath,
	)
	if err := proc.Start(); err != nil {
		return 0, fmt.Errorf("launch %s: %w", spec.Role, err)
	}
	pid := proc.Process.Pid
	if err := proc.Process.Release(); err != nil {
		return 0, fmt.Errorf("release %s process: %w", spec.Role, err)
	}
	return pid, nil
}

// ChildEnv is the contract read back by a spawned role.
type ChildEnv struct {
	Role       string
	Database   string
	ParentPID  int
	ConfigPath string
}

// ReadChildEnv reports the child contract when the current process was
// spawned as a role child. ok is false in ordinary host processes.
func ReadChildEnv() (ChildEnv, bool) {
	role := strings.TrimSpace(os.Getenv(EnvRole))
	if role == "" {
		return ChildEnv{}, false
	}
	env := ChildEnv{
		Role:       role,
		Database:   strings.TrimSpace(os.Getenv(EnvDatabase)),
		ConfigPath: strings.TrimSpace(os.Getenv(EnvConfig)),
	}
	if raw := strings.TrimSpace(os.Getenv(EnvParentPID)); raw != "" {
		if pid, err := strconv.Atoi(raw); err == nil && pid > 0 {
			env.ParentPID = pid
		}
	}
	return env, true
}
