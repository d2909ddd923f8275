package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnqueueDelayed inserts a waiting one-shot task and its pending result row
// in a single transaction, so a handle the caller already holds can never
// observe a task without a result placeholder. The caller supplies the
// handle because enqueueing may happen asynchronously after the handle was
// returned to application code.
func (s *Store) EnqueueDelayed(ctx context.Context, target, argsJSON string, dueAt time.Time, handle uuid.UUID) (int64, error) {
	if argsJSON == "" {
		argsJSON = "[]"
	}
	now := formatTime(time.Now())

	var taskID int64
	err := s.txWithRetry(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(
			ctx,
			`INSERT INTO tasks (kind, target, arguments, schedule, status, due_at, result_uuid, created_at, updated_at)
             VALUES (?, ?, ?, '', ?, ?, ?, ?, ?)`,
			KindDelayed,
			target,
			argsJSON,
			StatusWaiting,
			formatTime(dueAt),
			handle.String(),
			now,
			now,
		)
		if err != nil {
			return fmt.Errorf("insert delayed task: %w", err)
		}
		taskID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}

		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO results (uuid, task_id, target, value, has_error, error_message, is_ready, created_at, expires_at)
             VALUES (?, ?, ?, NULL, 0, NULL, 0, ?, NULL)`,
			handle.String(),
			taskID,
			target,
			now,
		); err != nil {
			return fmt.Errorf("insert pending result: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return taskID, nil
}

// EnqueueCron inserts a waiting cron task, or returns the id of the existing
// row when the target is already registered. Re-registration is the normal
// path on every host start, so it must be a cheap no-op.
func (s *Store) EnqueueCron(ctx context.Context, target, schedule string, firstDue time.Time) (int64, error) {
	now := formatTime(time.Now())

	var taskID int64
	err := s.txWithRetry(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(
			ctx,
			`SELECT id FROM tasks WHERE kind = ? AND target = ? LIMIT 1`,
			KindCron,
			target,
		)
		switch err := row.Scan(&taskID); {
		case err == nil:
			return nil
		case errors.Is(err, sql.ErrNoRows):
		default:
			return fmt.Errorf("check cron target: %w", err)
		}

		res, err := tx.ExecContext(
			ctx,
			`INSERT INTO tasks (kind, target, arguments, schedule, status, due_at, created_at, updated_at)
             VALUES (?, ?, '[]', ?, ?, ?, ?, ?)`,
			KindCron,
			target,
			schedule,
			StatusWaiting,
			formatTime(firstDue),
			now,
			now,
		)
		if err != nil {
			return fmt.Errorf("insert cron task: %w", err)
		}
		taskID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return taskID, nil
}

// ClaimDue atomically claims every waiting task whose due time has passed
// and returns the claimed rows. The claim is a single UPDATE stamping a
// fresh token; SQLite serializes write transactions, so two concurrent
// claimers can never both mark the same row. The subsequent read selects by
// token only, making the batch immune to claims landing in between.
func (s *Store) ClaimDue(ctx context.Context, now time.Time) ([]*Task, error) {
	ctx = ensureContext(ctx)
	token := uuid.NewString()
	stamp := formatTime(now)

	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks
         SET status = ?, claim_token = ?, claimed_at = ?, updated_at = ?
         WHERE status = ? AND due_at <= ?`,
		StatusProcessing,
		token,
		stamp,
		stamp,
		StatusWaiting,
		stamp,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due tasks: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE claim_token = ? ORDER BY due_at, id`,
		token,
	)
	if err != nil {
		return nil, fmt.Errorf("read claimed tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// RescheduleCron returns a finished cron task to the waiting pool with its
// next due time, clearing the claim fields.
func (s *Store) RescheduleCron(ctx context.Context, id int64, nextDue time.Time) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE tasks
         SET status = ?, due_at = ?, claim_token = NULL, claimed_at = NULL, updated_at = ?
         WHERE id = ?`,
		StatusWaiting,
		formatTime(nextDue),
		formatTime(time.Now()),
		id,
	); err != nil {
		return fmt.Errorf("reschedule cron task: %w", err)
	}
	return nil
}

// DeleteTask removes a task row by id.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	if err := s.execWithoutResultRetry(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// DeleteCronTasks removes every cron row. The engine calls this on teardown
// so targets removed from the application cannot fire again; live targets
// re-register on the next start.
func (s *Store) DeleteCronTasks(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM tasks WHERE kind = ?`, KindCron)
	if err != nil {
		return 0, fmt.Errorf("delete cron tasks: %w", err)
	}
	return res.RowsAffected()
}

// ReleaseTasks returns claimed-but-unstarted tasks to the waiting pool. A
// worker shutting down mid-batch calls this so the remainder of its claim
// becomes available immediately instead of waiting for stale reclaim.
func (s *Store) ReleaseTasks(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+2)
	args = append(args, StatusWaiting, formatTime(time.Now()))
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE tasks
        SET status = ?, claim_token = NULL, claimed_at = NULL, updated_at = ?
        WHERE id IN (` + placeholders + `) AND status = '` + string(StatusProcessing) + `'`
	if err := s.execWithoutResultRetry(ctx, query, args...); err != nil {
		return fmt.Errorf("release tasks: %w", err)
	}
	return nil
}

// ResetProcessing returns every processing task to waiting. Only safe when
// no worker can be alive, which is exactly the monitor's startup condition.
func (s *Store) ResetProcessing(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks
         SET status = ?, claim_token = NULL, claimed_at = NULL, updated_at = ?
         WHERE status = ?`,
		StatusWaiting,
		formatTime(time.Now()),
		StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset processing tasks: %w", err)
	}
	return res.RowsAffected()
}

// ReclaimStale returns processing tasks whose claim predates the cutoff to
// the waiting pool. Covers workers that died mid-execution; the cutoff must
// be generous enough that slow tasks are not double-executed.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks
         SET status = ?, claim_token = NULL, claimed_at = NULL, updated_at = ?
         WHERE status = ? AND claimed_at IS NOT NULL AND claimed_at < ?`,
		StatusWaiting,
		formatTime(time.Now()),
		StatusProcessing,
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale tasks: %w", err)
	}
	return res.RowsAffected()
}

// TaskByID fetches a task by id, returning (nil, nil) when absent.
func (s *Store) TaskByID(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// Tasks lists tasks for the admin surface, newest-created last.
func (s *Store) Tasks(ctx context.Context, filter TaskFilter) ([]*Task, error) {
	ctx = ensureContext(ctx)
	baseQuery := `SELECT ` + taskColumns + ` FROM tasks`
	orderClause := ` ORDER BY created_at, id`

	var (
		rows *sql.Rows
		err  error
	)
	switch filter {
	case FilterAll, "":
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	case FilterWaiting:
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status = ?`+orderClause, StatusWaiting)
	case FilterDue:
		rows, err = s.db.QueryContext(
			ctx,
			baseQuery+` WHERE status = ? AND due_at <= ?`+orderClause,
			StatusWaiting,
			formatTime(time.Now()),
		)
	case FilterCron:
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE kind = ?`+orderClause, KindCron)
	default:
		return nil, fmt.Errorf("unknown task filter %q", filter)
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}
