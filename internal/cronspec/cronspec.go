package cronspec

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrBadSchedule marks schedule expressions that cannot be parsed. Callers
// classify registration failures with errors.Is.
var ErrBadSchedule = errors.New("invalid cron schedule")

// parser accepts exactly the five classic crontab fields. Descriptors
// (@daily and friends) and a seconds column are not enabled.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Spec is a parsed, immutable schedule.
type Spec struct {
	expr     string
	schedule cron.Schedule
}

// Parse validates a five-field crontab expression and returns the spec.
func Parse(expr string) (Spec, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return Spec{}, fmt.Errorf("%w: empty expression", ErrBadSchedule)
	}
	schedule, err := parser.Parse(trimmed)
	if err != nil {
		return Spec{}, fmt.Errorf("%w: %q: %v", ErrBadSchedule, trimmed, err)
	}
	return Spec{expr: trimmed, schedule: schedule}, nil
}

// FromFields assembles a spec from explicit field value sets. Nil or empty
// slices mean "every value" for that field. Day-of-week runs 0-6.
func FromFields(minutes, hours, dom, months, dow []int) (Spec, error) {
	fields := []struct {
		name   string
		values []int
		min    int
		max    int
	}{
		{"minute", minutes, 0, 59},
		{"hour", hours, 0, 23},
		{"day-of-month", dom, 1, 31},
		{"month", months, 1, 12},
		{"day-of-week", dow, 0, 6},
	}

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		part, err := renderField(field.name, field.values, field.min, field.max)
		if err != nil {
			return Spec{}, err
		}
		parts = append(parts, part)
	}
	return Parse(strings.Join(parts, " "))
}

func renderField(name string, values []int, min, max int) (string, error) {
	if len(values) == 0 {
		return "*", nil
	}
	sorted := make([]int, 0, len(values))
	seen := make(map[int]struct{}, len(values))
	for _, v := range values {
		if v < min || v > max {
			return "", fmt.Errorf("%w: %s value %d out of range [%d, %d]", ErrBadSchedule, name, v, min, max)
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		sorted = append(sorted, v)
	}
	sort.Ints(sorted)
	rendered := make([]string, len(sorted))
	for i, v := range sorted {
		rendered[i] = strconv.Itoa(v)
	}
	return strings.Join(rendered, ","), nil
}

// String returns the canonical five-field expression.
func (s Spec) String() string {
	return s.expr
}

// IsZero reports whether the spec was never parsed.
func (s Spec) IsZero() bool {
	return s.schedule == nil
}

// IsDue reports whether the wall-clock minute of at matches the schedule.
// Seconds and finer resolution are ignored.
func (s Spec) IsDue(at time.Time) bool {
	if s.schedule == nil {
		return false
	}
	minute := at.Truncate(time.Minute)
	return s.schedule.Next(minute.Add(-time.Second)).Equal(minute)
}

// NextAfter returns the earliest matching minute strictly after last.
// Computing the next occurrence from the current instant, rather than from
// the last planned tick, is what collapses a backlog of missed occurrences
// into a single catch-up run.
func (s Spec) NextAfter(last time.Time) time.Time {
	if s.schedule == nil {
		return time.Time{}
	}
	return s.schedule.Next(last)
}
