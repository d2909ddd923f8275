package store

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskKind distinguishes one-shot work from recurring schedules.
type TaskKind string

const (
	KindDelayed TaskKind = "delayed"
	KindCron    TaskKind = "cron"
)

// TaskStatus represents the lifecycle of a task row.
type TaskStatus string

const (
	StatusWaiting    TaskStatus = "waiting"
	StatusProcessing TaskStatus = "processing"
	StatusDone       TaskStatus = "done"
)

var allStatuses = []TaskStatus{
	StatusWaiting,
	StatusProcessing,
	StatusDone,
}

var statusSet = func() map[TaskStatus]struct{} {
	set := make(map[TaskStatus]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []TaskStatus {
	cp := make([]TaskStatus, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known TaskStatus.
func ParseStatus(value string) (TaskStatus, bool) {
	normalized := TaskStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Task represents a unit of deferred or recurring work persisted in SQLite.
type Task struct {
	ID         int64
	Kind       TaskKind
	Target     string
	Arguments  string // JSON array of positional arguments
	Schedule   string // canonical five-field cron line, empty for delayed tasks
	Status     TaskStatus
	DueAt      time.Time
	ClaimToken string
	ClaimedAt  *time.Time
	ResultUUID string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsCron reports whether the task reschedules itself after each run.
func (t Task) IsCron() bool {
	return t.Kind == KindCron
}

// Result captures the outcome of a task execution, addressed by a uuid handle.
// A pending row exists from enqueue time so callers can distinguish "not ready
// yet" from "never existed / expired".
type Result struct {
	UUID         uuid.UUID
	TaskID       int64
	Target       string
	Value        string // JSON-encoded return value, empty until ready
	HasError     bool
	ErrorMessage string
	IsReady      bool
	CreatedAt    time.Time
	ExpiresAt    *time.Time
}

// Settings is the single coordination row shared by every process using the
// store. Tunables and flags live here rather than in per-process config so
// the host, monitor, and workers cannot disagree.
type Settings struct {
	MaxWorkers      int
	WorkerIdleTime  int // seconds between worker polls; 0 derives from MaxWorkers
	MonitorIdleTime int // seconds between supervision ticks
	ResultTTL       int // seconds a finalized result stays readable

	AutocronLock bool // disables background execution entirely
	MonitorLock  bool // held by the single active monitor
	BlockingMode bool // disables the asynchronous registrator

	// Bookkeeping mirror maintained by the monitor for the admin surface.
	MonitorPID     int
	WorkerPIDs     []int
	RunningWorkers int
}

// ResultTTLDuration returns the result retention window.
func (s Settings) ResultTTLDuration() time.Duration {
	return time.Duration(s.ResultTTL) * time.Second
}

// MonitorIdleInterval returns the supervision tick interval.
func (s Settings) MonitorIdleInterval() time.Duration {
	return time.Duration(s.MonitorIdleTime) * time.Second
}

// WorkerIdleInterval returns the pause between empty polls. When the stored
// value is zero the interval derives from the worker count: one second up to
// eight workers, then the binary log of the count, so large fleets do not
// hammer the database.
func (s Settings) WorkerIdleInterval() time.Duration {
	if s.WorkerIdleTime > 0 {
		return time.Duration(s.WorkerIdleTime) * time.Second
	}
	if s.MaxWorkers <= 8 {
		return time.Second
	}
	seconds := 0
	for n := s.MaxWorkers; n > 1; n >>= 1 {
		seconds++
	}
	return time.Duration(seconds) * time.Second
}

// TaskFilter selects which tasks a listing query returns.
type TaskFilter string

const (
	FilterAll     TaskFilter = "all"
	FilterWaiting TaskFilter = "waiting"
	FilterDue     TaskFilter = "due"
	FilterCron    TaskFilter = "cron"
)

// Stats aggregates row counts for the status view.
type Stats struct {
	TasksByStatus  map[TaskStatus]int
	DelayedTasks   int
	CronTasks      int
	ResultsTotal   int
	ResultsReady   int
	ResultsPending int
}

// TotalTasks sums the per-status counts.
func (s Stats) TotalTasks() int {
	total := 0
	for _, count := range s.TasksByStatus {
		total += count
	}
	return total
}
