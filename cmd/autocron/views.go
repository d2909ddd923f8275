package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"autocron/internal/store"
)

const displayTimeLayout = "2006-01-02 15:04:05"

func buildTaskRows(tasks []*store.Task) [][]string {
	rows := make([][]string, 0, len(tasks))
	for _, task := range tasks {
		schedule := strings.TrimSpace(task.Schedule)
		if schedule == "" {
			schedule = "-"
		}
		rows = append(rows, []string{
			strconv.FormatInt(task.ID, 10),
			string(task.Kind),
			task.Target,
			formatStatusLabel(string(task.Status)),
			formatDisplayTime(task.DueAt),
			schedule,
			truncateValue(task.Arguments, 32),
		})
	}
	return rows
}

func buildResultRows(results []*store.Result) [][]string {
	rows := make([][]string, 0, len(results))
	for _, res := range results {
		value := "-"
		errText := "-"
		if res.IsReady {
			if res.HasError {
				errText = truncateValue(res.ErrorMessage, 40)
			} else {
				value = truncateValue(res.Value, 40)
			}
		}
		expires := "-"
		if res.ExpiresAt != nil {
			expires = formatDisplayTime(*res.ExpiresAt)
		}
		rows = append(rows, []string{
			res.UUID.String(),
			res.Target,
			yesNo(res.IsReady),
			value,
			errText,
			expires,
		})
	}
	return rows
}

func buildTaskStatusRows(stats store.Stats) [][]string {
	rows := make([][]string, 0, len(stats.TasksByStatus))
	for _, status := range store.AllStatuses() {
		count, ok := stats.TasksByStatus[status]
		if !ok || count == 0 {
			continue
		}
		rows = append(rows, []string{formatStatusLabel(string(status)), strconv.Itoa(count)})
	}
	return rows
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	parts := strings.Split(status, "_")
	for i, part := range parts {
		lower := strings.ToLower(part)
		if lower == "" {
			continue
		}
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}

func formatDisplayTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(displayTimeLayout)
}

func truncateValue(value string, max int) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	if len(value) <= max {
		return value
	}
	if max <= 3 {
		return value[:max]
	}
	return value[:max-3] + "..."
}

func formatPIDs(pids []int) string {
	if len(pids) == 0 {
		return "-"
	}
	parts := make([]string, len(pids))
	for i, pid := range pids {
		parts[i] = strconv.Itoa(pid)
	}
	return strings.Join(parts, ", ")
}

func executionModeLabel(settings *store.Settings) string {
	switch {
	case settings.AutocronLock:
		return "synchronous (autocron_lock is set)"
	case settings.BlockingMode:
		return "blocking writes (no registrator)"
	default:
		return "asynchronous"
	}
}

func formatSeconds(n int) string {
	return fmt.Sprintf("%ds", n)
}
