package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FinalizeResult marks a pending result ready with the execution outcome and
// starts its retention clock. Exactly one of valueJSON / errMsg is expected
// to carry meaning; an error execution stores no value.
func (s *Store) FinalizeResult(ctx context.Context, handle uuid.UUID, valueJSON, errMsg string, ttl time.Duration) error {
	now := time.Now()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE results
         SET value = ?, has_error = ?, error_message = ?, is_ready = 1, expires_at = ?
         WHERE uuid = ? AND is_ready = 0`,
		nullableString(valueJSON),
		boolToInt(errMsg != ""),
		nullableString(errMsg),
		formatTime(now.Add(ttl)),
		handle.String(),
	)
	if err != nil {
		return fmt.Errorf("finalize result: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("finalize result %s: no pending row", handle)
	}
	return nil
}

// InsertFinalizedResult records the outcome of a cron run under a fresh
// handle. Cron tasks have no caller waiting on a known handle, so the row
// exists purely for the admin surface and ages out by TTL.
func (s *Store) InsertFinalizedResult(ctx context.Context, taskID int64, target, valueJSON, errMsg string, ttl time.Duration) (uuid.UUID, error) {
	handle := uuid.New()
	now := time.Now()
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO results (uuid, task_id, target, value, has_error, error_message, is_ready, created_at, expires_at)
         VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		handle.String(),
		taskID,
		target,
		nullableString(valueJSON),
		boolToInt(errMsg != ""),
		nullableString(errMsg),
		formatTime(now),
		formatTime(now.Add(ttl)),
	); err != nil {
		return uuid.Nil, fmt.Errorf("insert finalized result: %w", err)
	}
	return handle, nil
}

// Result fetches a result by handle, returning (nil, nil) when the row does
// not exist (never created, or already expired and cleaned up).
func (s *Store) Result(ctx context.Context, handle uuid.UUID) (*Result, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+resultColumns+` FROM results WHERE uuid = ?`,
		handle.String(),
	)
	result, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	return result, nil
}

// Results lists every result row, oldest first.
func (s *Store) Results(ctx context.Context) ([]*Result, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+resultColumns+` FROM results ORDER BY created_at, uuid`,
	)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var results []*Result
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// CleanupExpiredResults deletes finalized results past their retention time.
// Pending rows carry a NULL expires_at and are never touched here; a
// finalized result nobody read within the TTL is gone.
func (s *Store) CleanupExpiredResults(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM results WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		formatTime(now),
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired results: %w", err)
	}
	return res.RowsAffected()
}
