package autocron

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"autocron/internal/logging"
	"autocron/internal/monitor"
	"autocron/internal/procctl"
	"autocron/internal/store"
	"autocron/internal/worker"
)

// Bootstrap inspects the environment and, when this process was spawned as
// a monitor or worker, runs that role to completion. It returns true when
// a role ran, meaning main should return without starting application
// code, and false in ordinary host processes.
//
// Hosts call Bootstrap after Register and before Start; children re-exec
// the host binary, so the registrations made up to this point are exactly
// what workers can execute.
func (e *Engine) Bootstrap() bool {
	env, ok := procctl.ReadChildEnv()
	if !ok {
		return false
	}
	if err := e.runRole(env); err != nil {
		fmt.Fprintf(os.Stderr, "autocron %s: %v\n", env.Role, err)
		os.Exit(1)
	}
	return true
}

func (e *Engine) runRole(env procctl.ChildEnv) error {
	if env.Database == "" {
		return fmt.Errorf("%s environment carries no database path", env.Role)
	}

	// The store location always comes from the spawning process; config
	// drift between host and child must not fork the coordination channel.
	childCfg := *e.cfg
	childCfg.DatabaseFile = env.Database

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := logging.NewProcessLogger(&childCfg, env.Role)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	st, err := store.Open(&childCfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	switch env.Role {
	case procctl.RoleMonitor:
		return monitor.New(&childCfg, st, env.ParentPID, env.ConfigPath, logger).Run(ctx)
	case procctl.RoleWorker:
		return worker.New(st, workerRegistry{e.registry}, env.ParentPID, logger).Run(ctx)
	default:
		return fmt.Errorf("unknown role %q", env.Role)
	}
}
