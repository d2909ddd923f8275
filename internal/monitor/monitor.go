package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"autocron/internal/config"
	"autocron/internal/logging"
	"autocron/internal/procctl"
	"autocron/internal/store"
)

const (
	workerSpawnStagger = 20 * time.Millisecond
	drainPollInterval  = 200 * time.Millisecond
	forceKillWait      = 2 * time.Second

	// Claims older than this belong to workers that died mid-task; the
	// monitor moves them back to waiting each tick.
	staleClaimCutoff = 30 * time.Minute

	defaultGraceSeconds = 10
)

// ProcessControl abstracts the process primitives so tests can supervise
// fake workers.
type ProcessControl interface {
	Spawn(spec procctl.LaunchSpec) (int, error)
	Alive(pid int) bool
	Terminate(pid int) error
	ForceKill(pid int) error
}

type osProcessControl struct{}

func (osProcessControl) Spawn(spec procctl.LaunchSpec) (int, error) { return procctl.Launch(spec) }
func (osProcessControl) Alive(pid int) bool                         { return procctl.Alive(pid) }
func (osProcessControl) Terminate(pid int) error                    { return procctl.Terminate(pid) }
func (osProcessControl) ForceKill(pid int) error                    { return procctl.ForceKill(pid) }

// Option configures optional Monitor behavior.
type Option func(*Monitor)

// WithProcessControl overrides the process primitives (used in tests).
func WithProcessControl(pc ProcessControl) Option {
	return func(m *Monitor) {
		m.proc = pc
	}
}

// Monitor supervises the worker pool of one database.
type Monitor struct {
	store      *store.Store
	logger     *slog.Logger
	hostPID    int
	configPath string
	grace      time.Duration
	proc       ProcessControl

	poolSize int
	workers  []int
}

// New constructs a monitor. hostPID is the process that called Engine.Start;
// configPath is forwarded to spawned workers so their logging matches the
// host's.
func New(cfg *config.Config, st *store.Store, hostPID int, configPath string, logger *slog.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	graceSeconds := defaultGraceSeconds
	if cfg != nil && cfg.WorkerGraceSeconds > 0 {
		graceSeconds = cfg.WorkerGraceSeconds
	}
	m := &Monitor{
		store:      st,
		logger:     logger,
		hostPID:    hostPID,
		configPath: configPath,
		grace:      time.Duration(graceSeconds) * time.Second,
		proc:       osProcessControl{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run drives the monitor through its lifetime: spawn the pool, supervise it
// tick by tick, and drain on cancellation or host death. It returns once
// every worker is gone and the monitor lock is released.
func (m *Monitor) Run(ctx context.Context) error {
	// Drain writes must land even though drain usually starts with a
	// canceled context.
	writeCtx := context.WithoutCancel(ctx)

	settings, err := m.startup(ctx)
	if err != nil {
		return err
	}
	m.logger.Info("monitor supervising",
		logging.Int(logging.FieldPID, os.Getpid()),
		logging.Int("host_pid", m.hostPID),
		logging.Int("workers", len(m.workers)),
		logging.Duration("tick", settings.MonitorIdleInterval()),
	)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("shutdown requested; draining")
			m.drain(writeCtx)
			return nil
		case <-time.After(settings.MonitorIdleInterval()):
		}

		if !m.proc.Alive(m.hostPID) {
			m.logger.Info("host gone; draining",
				logging.Int("host_pid", m.hostPID),
				logging.String(logging.FieldEventType, "host_lost"),
			)
			m.drain(writeCtx)
			return nil
		}

		m.respawnDead(ctx)
		m.housekeeping(ctx)

		if fresh, err := m.store.Settings(ctx); err == nil {
			settings = fresh
		} else if ctx.Err() == nil {
			m.logger.Warn("settings refresh failed; keeping previous values", logging.Error(err))
		}
	}
}

// startup records the monitor pid, recovers rows left behind by the
// previous run, and brings up the worker pool.
func (m *Monitor) startup(ctx context.Context) (*store.Settings, error) {
	if err := m.store.SetMonitorPID(ctx, os.Getpid()); err != nil {
		return nil, fmt.Errorf("record monitor pid: %w", err)
	}
	// No worker can be alive before the pool exists, so every processing
	// row is a leftover from an earlier run.
	reset, err := m.store.ResetProcessing(ctx)
	if err != nil {
		return nil, fmt.Errorf("reset processing rows: %w", err)
	}
	if reset > 0 {
		m.logger.Info("reset leftover processing rows", logging.Int64("tasks", reset))
	}

	settings, err := m.store.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	m.poolSize = settings.MaxWorkers
	m.workers = make([]int, 0, m.poolSize)
	for i := 0; i < m.poolSize; i++ {
		if i > 0 {
			time.Sleep(workerSpawnStagger)
		}
		pid, err := m.proc.Spawn(m.launchSpec())
		if err != nil {
			m.logger.Error("worker spawn failed; next tick retries",
				logging.Error(err),
				logging.String(logging.FieldEventType, "worker_spawn_failed"),
			)
			continue
		}
		m.workers = append(m.workers, pid)
		m.logger.Debug("worker spawned", logging.Int(logging.FieldPID, pid))
	}
	m.mirror(ctx)
	return settings, nil
}

func (m *Monitor) launchSpec() procctl.LaunchSpec {
	return procctl.LaunchSpec{
		Role:       procctl.RoleWorker,
		Database:   m.store.Path(),
		ParentPID:  os.Getpid(),
		ConfigPath: m.configPath,
	}
}

// respawnDead replaces workers whose pids no longer probe alive. Each dead
// slot is respawned at most once per tick; the tick interval is the backoff.
func (m *Monitor) respawnDead(ctx context.Context) {
	live := make([]int, 0, m.poolSize)
	for _, pid := range m.workers {
		if m.proc.Alive(pid) {
			live = append(live, pid)
			continue
		}
		m.logger.Warn("worker died",
			logging.Int(logging.FieldPID, pid),
			logging.String(logging.FieldEventType, "worker_died"),
		)
	}

	changed := len(live) != len(m.workers)
	spawned := 0
	for len(live) < m.poolSize {
		if spawned > 0 {
			time.Sleep(workerSpawnStagger)
		}
		pid, err := m.proc.Spawn(m.launchSpec())
		if err != nil {
			m.logger.Error("worker respawn failed; next tick retries",
				logging.Error(err),
				logging.String(logging.FieldEventType, "worker_spawn_failed"),
			)
			break
		}
		changed = true
		spawned++
		live = append(live, pid)
		m.logger.Info("worker respawned",
			logging.Int(logging.FieldPID, pid),
			logging.String(logging.FieldEventType, "worker_respawned"),
		)
	}

	m.workers = live
	if changed {
		m.mirror(ctx)
	}
}

// housekeeping expires finished results past their TTL and returns claims
// of dead workers to waiting.
func (m *Monitor) housekeeping(ctx context.Context) {
	now := time.Now()
	if removed, err := m.store.CleanupExpiredResults(ctx, now); err != nil {
		m.logger.Warn("result cleanup failed", logging.Error(err))
	} else if removed > 0 {
		m.logger.Debug("expired results removed", logging.Int64("results", removed))
	}

	if reclaimed, err := m.store.ReclaimStale(ctx, now.Add(-staleClaimCutoff)); err != nil {
		m.logger.Warn("stale claim reclaim failed", logging.Error(err))
	} else if reclaimed > 0 {
		m.logger.Warn("reclaimed stale claims; a worker likely died mid-task",
			logging.Int64("tasks", reclaimed),
			logging.String(logging.FieldEventType, "stale_claims_reclaimed"),
		)
	}
}

func (m *Monitor) mirror(ctx context.Context) {
	if err := m.store.SetWorkerPIDs(ctx, m.workers); err != nil {
		m.logger.Warn("worker pid mirror update failed", logging.Error(err))
	}
}

// drain terminates the pool, waits out the grace period, force-kills
// stragglers, and releases the monitor lock.
func (m *Monitor) drain(ctx context.Context) {
	m.logger.Info("draining workers", logging.Int("workers", len(m.workers)))
	for _, pid := range m.workers {
		if err := m.proc.Terminate(pid); err != nil {
			m.logger.Warn("terminate failed", logging.Int(logging.FieldPID, pid), logging.Error(err))
		}
	}

	remaining := m.awaitExits(m.workers, m.grace)
	for _, pid := range remaining {
		m.logger.Warn("worker ignored termination; force-killing",
			logging.Int(logging.FieldPID, pid),
			logging.String(logging.FieldEventType, "worker_force_killed"),
		)
		if err := m.proc.ForceKill(pid); err != nil {
			m.logger.Error("force kill failed", logging.Int(logging.FieldPID, pid), logging.Error(err))
		}
	}
	if len(remaining) > 0 {
		m.awaitExits(remaining, forceKillWait)
	}
	m.workers = nil

	if err := m.store.ReleaseMonitorLock(ctx); err != nil {
		m.logger.Error("monitor lock release failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "clear it with: autocron settings set monitor_lock false"),
		)
	}
	m.logger.Info("monitor stopped")
}

// awaitExits polls until the given pids are gone or the timeout elapses and
// returns the survivors.
func (m *Monitor) awaitExits(pids []int, timeout time.Duration) []int {
	deadline := time.Now().Add(timeout)
	remaining := pids
	for len(remaining) > 0 && time.Now().Before(deadline) {
		time.Sleep(drainPollInterval)
		alive := make([]int, 0, len(remaining))
		for _, pid := range remaining {
			if m.proc.Alive(pid) {
				alive = append(alive, pid)
			}
		}
		remaining = alive
	}
	return remaining
}
