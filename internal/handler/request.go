// Package handler maps HTTP requests onto the services and their results
// back onto JSON responses. Handlers hold no business rules.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/taskboard/internal/apperror"
	"github.com/sakif/taskboard/internal/auth"
)

// maxBodyBytes caps request bodies; the largest legitimate one is a task
// with a 1000-character description.
const maxBodyBytes = 64 << 10

// decodeJSON reads a single JSON object from the body into dst.
// Malformed, empty and oversized bodies become a 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return apperror.BadRequest("Request body too large")
		case errors.Is(err, io.EOF):
			return apperror.BadRequest("Request body is required")
		default:
			return apperror.BadRequest("Invalid JSON body")
		}
	}
	return nil
}

// taskIDParam parses the {taskID} path segment. A non-integer id is a
// validation failure, not a 404.
func taskIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "taskID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperror.ValidationFailed("task_id", "task id must be an integer")
	}
	return id, nil
}

// ownerID returns the authenticated caller's id. Task routes sit behind
// RequireAuth and RequireOwner, so this equals the {userID} path segment.
func ownerID(r *http.Request) (string, error) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return "", apperror.Unauthenticated("Invalid or missing authentication credentials")
	}
	return identity.UserID, nil
}
