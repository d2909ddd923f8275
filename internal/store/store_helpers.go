package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const taskColumns = "id, kind, target, arguments, schedule, status, due_at, claim_token, claimed_at, result_uuid, created_at, updated_at"

const resultColumns = "uuid, task_id, target, value, has_error, error_message, is_ready, created_at, expires_at"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id         int64
		kind       string
		target     string
		arguments  sql.NullString
		schedule   sql.NullString
		statusStr  string
		dueRaw     string
		claimToken sql.NullString
		claimedRaw sql.NullString
		resultUUID sql.NullString
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&kind,
		&target,
		&arguments,
		&schedule,
		&statusStr,
		&dueRaw,
		&claimToken,
		&claimedRaw,
		&resultUUID,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	task := &Task{
		ID:         id,
		Kind:       TaskKind(kind),
		Target:     target,
		Arguments:  arguments.String,
		Schedule:   schedule.String,
		Status:     TaskStatus(statusStr),
		ClaimToken: claimToken.String,
		ResultUUID: resultUUID.String,
	}

	if due, err := parseTimeString(dueRaw); err == nil {
		task.DueAt = due
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		task.UpdatedAt = updated
	}
	if claimedRaw.Valid {
		if claimed, err := parseTimeString(claimedRaw.String); err == nil {
			task.ClaimedAt = &claimed
		}
	}
	return task, nil
}

func scanResult(scanner interface{ Scan(dest ...any) error }) (*Result, error) {
	var (
		uuidStr    string
		taskID     int64
		target     string
		value      sql.NullString
		hasError   sql.NullInt64
		errMessage sql.NullString
		isReady    sql.NullInt64
		createdRaw sql.NullString
		expiresRaw sql.NullString
	)

	if err := scanner.Scan(
		&uuidStr,
		&taskID,
		&target,
		&value,
		&hasError,
		&errMessage,
		&isReady,
		&createdRaw,
		&expiresRaw,
	); err != nil {
		return nil, err
	}

	handle, err := uuid.Parse(uuidStr)
	if err != nil {
		return nil, fmt.Errorf("parse result uuid %q: %w", uuidStr, err)
	}

	result := &Result{
		UUID:         handle,
		TaskID:       taskID,
		Target:       target,
		Value:        value.String,
		ErrorMessage: errMessage.String,
	}
	if hasError.Valid {
		result.HasError = hasError.Int64 != 0
	}
	if isReady.Valid {
		result.IsReady = isReady.Int64 != 0
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		result.CreatedAt = created
	}
	if expiresRaw.Valid {
		if expires, err := parseTimeString(expiresRaw.String); err == nil {
			result.ExpiresAt = &expires
		}
	}
	return result, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
