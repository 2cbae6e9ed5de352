package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sakif/taskboard/internal/apperror"
	"github.com/sakif/taskboard/internal/model"
	"github.com/sakif/taskboard/internal/repository"
)

var _ repository.UserRepository = (*UserStore)(nil)

// UserStore is the credential store backed by the users table.
type UserStore struct {
	db *DB
}

// Create inserts a new user, assigning its id and timestamps.
//
// There is no "does this email exist?" pre-check: two concurrent signups
// for the same address race to the UNIQUE index and the loser gets a
// Conflict.
func (s *UserStore) Create(ctx context.Context, user *model.User) error {
	now := s.db.timestamp()
	user.ID = uuid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := s.db.conn.ExecContext(ctx, s.db.rebind(
		`INSERT INTO users (id, email, name, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		user.ID,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("Email already registered")
		}
		return fmt.Errorf("sqlstore: creating user: %w", err)
	}

	return nil
}

// FindByEmail looks a user up by exact (case-sensitive) email.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := s.scanOne(ctx, `WHERE email = ?`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", email)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: finding user by email: %w", err)
	}
	return u, nil
}

// FindByID looks a user up by id.
func (s *UserStore) FindByID(ctx context.Context, id string) (*model.User, error) {
	u, err := s.scanOne(ctx, `WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: finding user %s: %w", id, err)
	}
	return u, nil
}

// Delete removes a user. Their tasks go with them (ON DELETE CASCADE).
func (s *UserStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.conn.ExecContext(ctx, s.db.rebind(`DELETE FROM users WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("sqlstore: deleting user %s: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", id)
	}

	return nil
}

func (s *UserStore) scanOne(ctx context.Context, where string, arg any) (*model.User, error) {
	var (
		u    model.User
		name sql.NullString
	)
	err := s.db.conn.QueryRowContext(ctx, s.db.rebind(
		`SELECT id, email, name, password_hash, created_at, updated_at
		 FROM users `+where),
		arg,
	).Scan(&u.ID, &u.Email, &name, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if name.Valid {
		u.Name = &name.String
	}
	return &u, nil
}
