// Package service contains the business logic layer of the application.
//
//	Handler (HTTP)  → parses requests, writes responses
//	Service         → validates, enforces rules, orchestrates
//	Repository      → reads/writes the database
//
// Services take repository interfaces, not concrete stores, so tests run
// against in-memory fakes and never touch SQL.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/asaskevich/govalidator"

	"github.com/sakif/taskboard/internal/apperror"
	"github.com/sakif/taskboard/internal/auth"
	"github.com/sakif/taskboard/internal/model"
	"github.com/sakif/taskboard/internal/repository"
)

// Credential constraints.
const (
	MinPasswordLength = 8
	MaxNameLength     = 100
	MaxEmailLength    = 255
)

// invalidCredentials is the single signin failure message. Unknown email and
// wrong password must be indistinguishable.
const invalidCredentials = "Invalid email or password"

// AuthService handles signup, signin and session lookup.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger

	// dummyHash is compared against when the email is unknown so a signin
	// for a missing account costs the same bcrypt work as a real one.
	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user and a freshly issued token so the handler can
// set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// Signup registers a new account and signs it in.
//
// The email is stored exactly as given (no case folding). A taken email is
// reported by the store's uniqueness constraint as apperror.ErrConflict,
// whatever the password.
func (s *AuthService) Signup(ctx context.Context, email, password string, name *string) (*AuthResult, error) {
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			s.logger.Info("signup rejected: email already registered")
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user signed up", slog.String("userID", user.ID))

	return s.issue(user)
}

// Signin verifies credentials and issues a token.
func (s *AuthService) Signin(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.burnPasswordCheck(password)
			return nil, apperror.Unauthenticated(invalidCredentials)
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperror.Unauthenticated(invalidCredentials)
		}
		return nil, fmt.Errorf("service/auth: verifying password for user %s: %w", user.ID, err)
	}

	s.logger.Info("user signed in", slog.String("userID", user.ID))

	return s.issue(user)
}

// CurrentUser loads the account behind an authenticated identity.
//
// A valid token whose user has since been deleted is treated as
// unauthenticated rather than "not found".
func (s *AuthService) CurrentUser(ctx context.Context, identity *auth.Identity) (*model.User, error) {
	if identity == nil || identity.UserID == "" {
		return nil, apperror.Unauthenticated("User not found")
	}

	user, err := s.users.FindByID(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthenticated("User not found")
		}
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", identity.UserID, err)
	}

	return user, nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

func (s *AuthService) burnPasswordCheck(password string) {
	s.dummyOnce.Do(func() {
		h, err := s.passwords.Hash("dummy-password-for-timing")
		if err != nil {
			s.logger.Warn("could not build dummy password hash", slog.String("error", err.Error()))
			return
		}
		s.dummyHash = h
	})
	if s.dummyHash != "" {
		_ = s.passwords.Verify(s.dummyHash, password)
	}
}

func validateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return apperror.ValidationFailed("email", "email is required")
	}
	if len(email) > MaxEmailLength || !govalidator.IsEmail(email) {
		return apperror.ValidationFailed("email", "email must be a valid email address")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > auth.MaxPasswordBytes {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes))
	}
	return nil
}

// normalizeName trims the optional display name; blank becomes nil.
func normalizeName(name *string) (*string, error) {
	if name == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*name)
	if trimmed == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(trimmed) > MaxNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("name must be %d characters or less", MaxNameLength))
	}
	return &trimmed, nil
}
