package autocron

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"autocron/internal/config"
	"autocron/internal/logging"
	"autocron/internal/procctl"
	"autocron/internal/store"
)

// Config is the engine configuration. Hosts outside this module use it
// through the alias; zero-value fields fall back to defaults when the
// engine is constructed.
type Config = config.Config

// DefaultConfig returns the built-in configuration rooted at ~/.autocron.
func DefaultConfig() Config { return config.Default() }

// LoadConfig reads the TOML configuration at path. An empty path falls back
// to $AUTOCRON_CONFIG, the user config dir, then a project-local
// autocron.toml; a missing file yields defaults. It reports the resolved
// path and whether a file was found.
func LoadConfig(path string) (*Config, string, bool, error) { return config.Load(path) }

const monitorPollInterval = 200 * time.Millisecond

// processControl narrows the procctl surface the engine needs so tests can
// substitute a fake process table.
type processControl interface {
	Spawn(spec procctl.LaunchSpec) (int, error)
	Alive(pid int) bool
	Terminate(pid int) error
	ForceKill(pid int) error
}

type osProcControl struct{}

func (osProcControl) Spawn(spec procctl.LaunchSpec) (int, error) { return procctl.Launch(spec) }
func (osProcControl) Alive(pid int) bool                         { return procctl.Alive(pid) }
func (osProcControl) Terminate(pid int) error                    { return procctl.Terminate(pid) }
func (osProcControl) ForceKill(pid int) error                    { return procctl.ForceKill(pid) }

// Option configures optional Engine behavior.
type Option func(*Engine)

// WithConfigPath records the config file spawned children should load so
// their logging and tuning match the host's.
func WithConfigPath(path string) Option {
	return func(e *Engine) {
		e.configPath = strings.TrimSpace(path)
	}
}

// Engine is the in-process façade over the task store and the background
// process tree. An Engine value owns at most one spawned monitor.
type Engine struct {
	cfg        *config.Config
	configPath string
	registry   *registry
	proc       processControl

	mu         sync.Mutex
	logger     *slog.Logger
	started    bool
	syncMode   bool
	blocking   bool
	store      *store.Store
	reg        *registrator
	monitorPID int
	pending    []pendingTask

	localMu sync.RWMutex
	local   map[uuid.UUID]*store.Result
}

// New constructs an engine. nil cfg means DefaultConfig. The config is
// normalized and validated here; no I/O happens before Start.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		def := config.Default()
		cfg = &def
	} else {
		clone := *cfg
		cfg = &clone
	}
	if err := cfg.Normalize(); err != nil {
		return nil, fmt.Errorf("normalize config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	e := &Engine{
		cfg:        cfg,
		configPath: strings.TrimSpace(os.Getenv(config.EnvConfigPath)),
		registry:   newRegistry(),
		proc:       osProcControl{},
		local:      make(map[uuid.UUID]*store.Result),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Register adds a task target. Registration must precede Start and, in the
// host's main, Bootstrap, so spawned workers see the same registry.
func (e *Engine) Register(target string, fn TaskFunc) error {
	e.mu.Lock()
	started := e.started
	e.mu.Unlock()
	if started {
		return fmt.Errorf("register %q: engine already started", target)
	}
	return e.registry.add(target, fn)
}

// Start opens the store and brings up background processing. It is
// idempotent: a second call on a started engine returns nil. When the
// autocron_lock setting is set the engine stays in synchronous mode and no
// processes are spawned; when another host already holds the monitor lock
// this engine joins as a client of that monitor.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}

	if e.logger == nil {
		logger, err := logging.NewProcessLogger(e.cfg, "engine")
		if err != nil {
			return fmt.Errorf("init logging: %w", err)
		}
		e.logger = logger
	}

	st, err := store.Open(e.cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	if e.cfg.MaxWorkers > 0 {
		if err := st.SetMaxWorkers(ctx, e.cfg.MaxWorkers); err != nil {
			st.Close()
			return fmt.Errorf("apply max_workers override: %w", err)
		}
	}
	settings, err := st.Settings(ctx)
	if err != nil {
		st.Close()
		return fmt.Errorf("read settings: %w", err)
	}

	// Enqueues that arrived before Start land in the store now, in order.
	for _, task := range e.pending {
		if err := writeTask(ctx, st, task); err != nil {
			e.logger.Error("buffered registration write failed",
				logging.Error(err),
				logging.String(logging.FieldTarget, task.target),
				logging.String(logging.FieldEventType, "enqueue_failed"),
			)
		}
	}
	if n := len(e.pending); n > 0 {
		e.logger.Debug("buffered registrations drained", logging.Int("tasks", n))
	}
	e.pending = nil

	if settings.AutocronLock {
		e.store = st
		e.syncMode = true
		e.started = true
		e.logger.Info("engine started in synchronous mode; background processing disabled",
			logging.String(logging.FieldEventType, "engine_started"))
		return nil
	}

	won, err := st.AcquireMonitorLock(ctx)
	if err != nil {
		st.Close()
		return fmt.Errorf("acquire monitor lock: %w", err)
	}
	if won {
		pid, err := e.proc.Spawn(procctl.LaunchSpec{
			Role:       procctl.RoleMonitor,
			Database:   st.Path(),
			ParentPID:  os.Getpid(),
			ConfigPath: e.configPath,
		})
		if err != nil {
			_ = st.ReleaseMonitorLock(ctx)
			st.Close()
			return fmt.Errorf("spawn monitor: %w", err)
		}
		e.monitorPID = pid
	}

	if !settings.BlockingMode {
		e.reg = newRegistrator(st, e.logger)
		go e.reg.run()
	}

	e.store = st
	e.blocking = settings.BlockingMode
	e.started = true
	e.logger.Info("engine started",
		logging.String(logging.FieldEventType, "engine_started"),
		logging.Bool("blocking", e.blocking),
		logging.Bool("spawned_monitor", e.monitorPID > 0),
		logging.Int("monitor_pid", e.monitorPID),
	)
	return nil
}

// Stop flushes buffered registrations, brings down a monitor this engine
// spawned, removes cron rows (they re-register on the next start), and
// closes the store. Idempotent and safe without a prior Start. Never
// calling Stop is also safe: the monitor drains on its own when the host
// pid disappears.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = false
	e.syncMode = false
	e.blocking = false
	reg := e.reg
	e.reg = nil
	st := e.store
	e.store = nil
	monitorPID := e.monitorPID
	e.monitorPID = 0
	logger := e.logger
	e.mu.Unlock()

	if reg != nil {
		reg.stop()
	}

	ctx := context.Background()
	if monitorPID > 0 {
		if err := e.proc.Terminate(monitorPID); err != nil {
			logger.Warn("monitor terminate failed",
				logging.Error(err),
				logging.Int(logging.FieldPID, monitorPID),
			)
		}
		if !e.awaitExit(monitorPID, e.stopGrace()) {
			logger.Warn("monitor ignored termination; force-killing",
				logging.Int(logging.FieldPID, monitorPID),
				logging.String(logging.FieldEventType, "monitor_force_killed"),
			)
			if err := e.proc.ForceKill(monitorPID); err != nil {
				logger.Error("monitor force kill failed", logging.Error(err))
			}
			// The monitor could not clean up after itself.
			if err := st.ReleaseMonitorLock(ctx); err != nil {
				logger.Error("monitor lock release failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "clear it with: autocron settings set monitor_lock false"),
				)
			}
		}
	}

	if _, err := st.DeleteCronTasks(ctx); err != nil {
		logger.Warn("cron row cleanup failed", logging.Error(err))
	}
	if err := st.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	logger.Info("engine stopped", logging.String(logging.FieldEventType, "engine_stopped"))
	return nil
}

// stopGrace bounds how long Stop waits for the monitor: the monitor itself
// needs the worker grace period to drain, plus a margin.
func (e *Engine) stopGrace() time.Duration {
	grace := e.cfg.WorkerGraceSeconds
	if grace <= 0 {
		grace = 10
	}
	return time.Duration(grace)*time.Second + 2*time.Second
}

func (e *Engine) awaitExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if !e.proc.Alive(pid) {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(monitorPollInterval)
	}
}
