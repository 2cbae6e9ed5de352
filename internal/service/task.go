package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/taskboard/internal/apperror"
	"github.com/sakif/taskboard/internal/model"
	"github.com/sakif/taskboard/internal/repository"
)

// Task field limits, counted in characters after trimming.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 1000
)

// TaskService validates task input and delegates to the repository.
//
// Ownership is not checked here: by the time a call arrives the auth gate
// has already matched the path user against the token, and the repository
// scopes every query by userID.
type TaskService struct {
	repo   repository.TaskRepository
	logger *slog.Logger
}

// NewTaskService creates a TaskService.
func NewTaskService(repo repository.TaskRepository, logger *slog.Logger) *TaskService {
	return &TaskService{
		repo:   repo,
		logger: logger,
	}
}

// List returns userID's tasks, newest first.
func (s *TaskService) List(ctx context.Context, userID string) ([]model.Task, error) {
	tasks, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	return tasks, nil
}

// Create validates and stores a new task for userID.
func (s *TaskService) Create(ctx context.Context, userID, title string, description *string) (*model.Task, error) {
	title, description, err := validateTask(title, description)
	if err != nil {
		return nil, err
	}

	task := &model.Task{
		UserID:      userID,
		Title:       title,
		Description: description,
	}
	if err := s.repo.Create(ctx, task); err != nil {
		s.logger.Error("failed to create task",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating task: %w", err)
	}

	s.logger.Info("task created",
		slog.Int64("id", task.ID),
		slog.String("userID", userID),
	)

	return task, nil
}

// Get returns one of userID's tasks.
func (s *TaskService) Get(ctx context.Context, userID string, taskID int64) (*model.Task, error) {
	task, err := s.repo.Get(ctx, userID, taskID)
	if err != nil {
		return nil, passThrough("getting task", err)
	}
	return task, nil
}

// Update replaces a task's title and description.
func (s *TaskService) Update(ctx context.Context, userID string, taskID int64, title string, description *string) (*model.Task, error) {
	title, description, err := validateTask(title, description)
	if err != nil {
		return nil, err
	}

	task, err := s.repo.Update(ctx, userID, taskID, title, description)
	if err != nil {
		return nil, passThrough("updating task", err)
	}

	s.logger.Info("task updated", slog.Int64("id", taskID))
	return task, nil
}

// SetCompleted marks a task done or not done.
func (s *TaskService) SetCompleted(ctx context.Context, userID string, taskID int64, completed bool) (*model.Task, error) {
	task, err := s.repo.SetCompleted(ctx, userID, taskID, completed)
	if err != nil {
		return nil, passThrough("completing task", err)
	}

	s.logger.Info("task completion changed",
		slog.Int64("id", taskID),
		slog.Bool("completed", completed),
	)
	return task, nil
}

// Delete removes a task.
func (s *TaskService) Delete(ctx context.Context, userID string, taskID int64) error {
	if err := s.repo.Delete(ctx, userID, taskID); err != nil {
		return passThrough("deleting task", err)
	}

	s.logger.Info("task deleted", slog.Int64("id", taskID))
	return nil
}

// validateTask trims and checks title and description. An empty description
// is normalised to nil so "" and absent store the same way.
func validateTask(title string, description *string) (string, *string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", nil, apperror.ValidationFailed("title", "title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", nil, apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}

	if description == nil {
		return title, nil, nil
	}
	desc := strings.TrimSpace(*description)
	if desc == "" {
		return title, nil, nil
	}
	if utf8.RuneCountInString(desc) > MaxDescriptionLength {
		return "", nil, apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}
	return title, &desc, nil
}

// passThrough returns NotFound untouched (it is an expected outcome, not a
// failure) and wraps anything else with op.
func passThrough(op string, err error) error {
	if errors.Is(err, apperror.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
