// Package repository declares the storage contracts the services depend on.
// Implementations live in subpackages (see sqlstore).
package repository

import (
	"context"

	"github.com/sakif/taskboard/internal/model"
)

// UserRepository is the credential store.
//
// Lookups that find nothing return an apperror.ErrNotFound; Create returns
// apperror.ErrConflict when the email is already registered.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
	Delete(ctx context.Context, id string) error
}

// TaskRepository stores tasks scoped to their owner.
//
// Every method takes the owner's id and only ever sees that owner's rows:
// another user's task is reported as apperror.ErrNotFound, exactly as if it
// did not exist.
type TaskRepository interface {
	List(ctx context.Context, userID string) ([]model.Task, error)
	Create(ctx context.Context, task *model.Task) error
	Get(ctx context.Context, userID string, taskID int64) (*model.Task, error)
	Update(ctx context.Context, userID string, taskID int64, title string, description *string) (*model.Task, error)
	SetCompleted(ctx context.Context, userID string, taskID int64, completed bool) (*model.Task, error)
	Delete(ctx context.Context, userID string, taskID int64) error
}
