package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Default values for a fresh settings row.
const (
	DefaultMaxWorkers      = 1
	DefaultWorkerIdleTime  = 0
	DefaultMonitorIdleTime = 5
	DefaultResultTTL       = 1800
)

const settingsColumns = "max_workers, worker_idle_time, monitor_idle_time, result_ttl, autocron_lock, monitor_lock, blocking_mode, monitor_pid, worker_pids, running_workers"

const insertDefaultSettingsSQL = `INSERT OR IGNORE INTO settings
    (id, max_workers, worker_idle_time, monitor_idle_time, result_ttl, autocron_lock, monitor_lock, blocking_mode, monitor_pid, worker_pids, running_workers)
    VALUES (1, ?, ?, ?, ?, 0, 0, 0, 0, '', 0)`

func defaultSettingsArgs() []any {
	return []any{DefaultMaxWorkers, DefaultWorkerIdleTime, DefaultMonitorIdleTime, DefaultResultTTL}
}

// Settings reads the coordination row.
func (s *Store) Settings(ctx context.Context) (*Settings, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+settingsColumns+` FROM settings WHERE id = 1`,
	)

	var (
		settings Settings
		autoLock int
		monLock  int
		blocking int
		pidsRaw  string
	)
	if err := row.Scan(
		&settings.MaxWorkers,
		&settings.WorkerIdleTime,
		&settings.MonitorIdleTime,
		&settings.ResultTTL,
		&autoLock,
		&monLock,
		&blocking,
		&settings.MonitorPID,
		&pidsRaw,
		&settings.RunningWorkers,
	); err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	settings.AutocronLock = autoLock != 0
	settings.MonitorLock = monLock != 0
	settings.BlockingMode = blocking != 0
	settings.WorkerPIDs = parsePIDs(pidsRaw)
	return &settings, nil
}

// SetSetting applies one admin mutation with per-key validation. The mirror
// columns the monitor maintains (monitor_pid, worker_pids, running_workers)
// are rejected; everything else is settable, including the coordination
// flags, which is the operator escape hatch for a stale monitor_lock.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	value = strings.TrimSpace(value)

	switch key {
	case "max_workers":
		n, err := parseSettingInt(key, value, 1)
		if err != nil {
			return err
		}
		return s.writeSetting(ctx, key, n)
	case "worker_idle_time", "result_ttl":
		n, err := parseSettingInt(key, value, 0)
		if err != nil {
			return err
		}
		return s.writeSetting(ctx, key, n)
	case "monitor_idle_time":
		n, err := parseSettingInt(key, value, 1)
		if err != nil {
			return err
		}
		return s.writeSetting(ctx, key, n)
	case "autocron_lock", "monitor_lock", "blocking_mode":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: %s requires a boolean, got %q", ErrInvalidSetting, key, value)
		}
		return s.writeSetting(ctx, key, boolToInt(b))
	case "monitor_pid", "worker_pids", "running_workers":
		return fmt.Errorf("%w: %s is maintained by the monitor", ErrInvalidSetting, key)
	default:
		return fmt.Errorf("%w: unknown key %q", ErrInvalidSetting, key)
	}
}

func parseSettingInt(key, value string, min int) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s requires an integer, got %q", ErrInvalidSetting, key, value)
	}
	if n < min {
		return 0, fmt.Errorf("%w: %s must be >= %d, got %d", ErrInvalidSetting, key, min, n)
	}
	return n, nil
}

// writeSetting's key is validated by SetSetting before it reaches the query.
func (s *Store) writeSetting(ctx context.Context, key string, value any) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE settings SET `+key+` = ? WHERE id = 1`,
		value,
	); err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}
	return nil
}

// AcquireMonitorLock attempts the compare-and-set that elects the single
// monitor owner. Returns true when this caller won the lock. Concurrent
// callers race on a one-statement UPDATE, so SQLite's write serialization
// guarantees at most one winner.
func (s *Store) AcquireMonitorLock(ctx context.Context) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE settings SET monitor_lock = 1 WHERE id = 1 AND monitor_lock = 0`,
	)
	if err != nil {
		return false, fmt.Errorf("acquire monitor lock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ReleaseMonitorLock clears the lock and the pid mirror in one statement.
func (s *Store) ReleaseMonitorLock(ctx context.Context) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE settings SET monitor_lock = 0, monitor_pid = 0, worker_pids = '', running_workers = 0 WHERE id = 1`,
	); err != nil {
		return fmt.Errorf("release monitor lock: %w", err)
	}
	return nil
}

// SetMonitorPID records the active monitor's pid for the admin surface.
func (s *Store) SetMonitorPID(ctx context.Context, pid int) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE settings SET monitor_pid = ? WHERE id = 1`,
		pid,
	); err != nil {
		return fmt.Errorf("set monitor pid: %w", err)
	}
	return nil
}

// SetWorkerPIDs mirrors the live worker pids and their count.
func (s *Store) SetWorkerPIDs(ctx context.Context, pids []int) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE settings SET worker_pids = ?, running_workers = ? WHERE id = 1`,
		joinPIDs(pids),
		len(pids),
	); err != nil {
		return fmt.Errorf("set worker pids: %w", err)
	}
	return nil
}

// SetMaxWorkers applies the host's start-time worker count override.
func (s *Store) SetMaxWorkers(ctx context.Context, n int) error {
	if n < 1 {
		return fmt.Errorf("%w: max_workers must be >= 1, got %d", ErrInvalidSetting, n)
	}
	return s.writeSetting(ctx, "max_workers", n)
}

// ResetSettings restores the defaults, dropping locks and the pid mirror.
func (s *Store) ResetSettings(ctx context.Context) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE settings
         SET max_workers = ?, worker_idle_time = ?, monitor_idle_time = ?, result_ttl = ?,
             autocron_lock = 0, monitor_lock = 0, blocking_mode = 0,
             monitor_pid = 0, worker_pids = '', running_workers = 0
         WHERE id = 1`,
		defaultSettingsArgs()...,
	); err != nil {
		return fmt.Errorf("reset settings: %w", err)
	}
	return nil
}

// Stats aggregates task and result counts for the status view.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx = ensureContext(ctx)
	stats := Stats{TasksByStatus: make(map[TaskStatus]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM tasks GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status TaskStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, err
		}
		stats.TasksByStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}

	kindRows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(1) FROM tasks GROUP BY kind`)
	if err != nil {
		return Stats{}, fmt.Errorf("task kind stats: %w", err)
	}
	defer kindRows.Close()
	for kindRows.Next() {
		var kind TaskKind
		var count int
		if err := kindRows.Scan(&kind, &count); err != nil {
			return Stats{}, err
		}
		switch kind {
		case KindDelayed:
			stats.DelayedTasks = count
		case KindCron:
			stats.CronTasks = count
		}
	}
	if err := kindRows.Err(); err != nil {
		return Stats{}, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1), COALESCE(SUM(is_ready), 0) FROM results`)
	var total, ready int
	if err := row.Scan(&total, &ready); err != nil {
		return Stats{}, fmt.Errorf("result stats: %w", err)
	}
	stats.ResultsTotal = total
	stats.ResultsReady = ready
	stats.ResultsPending = total - ready

	return stats, nil
}

func joinPIDs(pids []int) string {
	if len(pids) == 0 {
		return ""
	}
	parts := make([]string, len(pids))
	for i, pid := range pids {
		parts[i] = strconv.Itoa(pid)
	}
	return strings.Join(parts, ",")
}

func parsePIDs(raw string) []int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	pids := make([]int, 0, len(parts))
	for _, part := range parts {
		pid, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		pids = append(pids, pid)
	}
	return pids
}
