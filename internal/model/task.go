package model

import "time"

// Task is a single to-do item owned by exactly one user.
//
// UserID is set once at creation and never changes. Every store lookup
// filters on (ID, UserID) together, so a task is only reachable through
// its owner's identity.
type Task struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"` // nil when absent
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
