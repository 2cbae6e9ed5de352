package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/sakif/taskboard/internal/apperror"
	"github.com/sakif/taskboard/internal/model"
	"github.com/sakif/taskboard/internal/repository"
)

var _ repository.TaskRepository = (*TaskStore)(nil)

const taskColumns = `id, user_id, title, description, completed, created_at, updated_at`

// TaskStore is the owner-scoped task repository.
//
// Every statement that touches an existing row filters on id AND user_id in
// the same WHERE clause. A task that exists but belongs to someone else is
// indistinguishable from one that does not exist.
type TaskStore struct {
	db *DB
}

// List returns all of userID's tasks, newest first. The id tiebreak keeps
// the order stable for tasks created within the same timestamp.
func (s *TaskStore) List(ctx context.Context, userID string) ([]model.Task, error) {
	rows, err := s.db.conn.QueryContext(ctx, s.db.rebind(
		`SELECT `+taskColumns+`
		 FROM tasks
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC`),
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]model.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scanning task row: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterating tasks: %w", err)
	}

	return tasks, nil
}

// Create inserts task for task.UserID. The store assigns ID and both
// timestamps; Completed is forced to false.
func (s *TaskStore) Create(ctx context.Context, task *model.Task) error {
	now := s.db.timestamp()
	task.Completed = false
	task.CreatedAt = now
	task.UpdatedAt = now

	err := s.db.conn.QueryRowContext(ctx, s.db.rebind(
		`INSERT INTO tasks (user_id, title, description, completed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 RETURNING id`),
		task.UserID,
		task.Title,
		task.Description,
		task.Completed,
		task.CreatedAt,
		task.UpdatedAt,
	).Scan(&task.ID)
	if err != nil {
		return fmt.Errorf("sqlstore: creating task: %w", err)
	}

	return nil
}

// Get returns one of userID's tasks.
func (s *TaskStore) Get(ctx context.Context, userID string, taskID int64) (*model.Task, error) {
	row := s.db.conn.QueryRowContext(ctx, s.db.rebind(
		`SELECT `+taskColumns+`
		 FROM tasks
		 WHERE id = ? AND user_id = ?`),
		taskID, userID,
	)

	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, taskNotFound(taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: getting task %d: %w", taskID, err)
	}

	return t, nil
}

// Update replaces title and description. Completion state is untouched.
func (s *TaskStore) Update(ctx context.Context, userID string, taskID int64, title string, description *string) (*model.Task, error) {
	err := s.exec(ctx, taskID,
		`UPDATE tasks
		 SET title = ?, description = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		title, description, s.db.timestamp(), taskID, userID,
	)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, userID, taskID)
}

// SetCompleted sets the completion flag. Setting the value it already has
// still counts as a modification and bumps updated_at.
func (s *TaskStore) SetCompleted(ctx context.Context, userID string, taskID int64, completed bool) (*model.Task, error) {
	err := s.exec(ctx, taskID,
		`UPDATE tasks
		 SET completed = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		completed, s.db.timestamp(), taskID, userID,
	)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, userID, taskID)
}

// Delete removes one of userID's tasks.
func (s *TaskStore) Delete(ctx context.Context, userID string, taskID int64) error {
	return s.exec(ctx, taskID,
		`DELETE FROM tasks WHERE id = ? AND user_id = ?`,
		taskID, userID,
	)
}

// exec runs a single-row write and turns "no row matched" into NotFound.
func (s *TaskStore) exec(ctx context.Context, taskID int64, query string, args ...any) error {
	result, err := s.db.conn.ExecContext(ctx, s.db.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("sqlstore: writing task %d: %w", taskID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: checking rows affected: %w", err)
	}
	if n == 0 {
		return taskNotFound(taskID)
	}

	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*model.Task, error) {
	var (
		t    model.Task
		desc sql.NullString
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Title, &desc, &t.Completed, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}

	if desc.Valid {
		t.Description = &desc.String
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

func taskNotFound(taskID int64) error {
	return apperror.NotFound("task", strconv.FormatInt(taskID, 10))
}
