package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sakif/taskboard/internal/apperror"
	"github.com/sakif/taskboard/internal/model"
)

// These tests run the stores in Postgres mode against go-sqlmock, checking
// the rebound $n placeholders and SQLSTATE mapping without a live server.

var fixedNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func newPostgresMock(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		conn.Close()
	})

	db := New(conn, Postgres)
	db.now = func() time.Time { return fixedNow }
	return db, mock
}

var taskRowColumns = []string{"id", "user_id", "title", "description", "completed", "created_at", "updated_at"}

func TestPostgres_UserCreate_RebindsPlaceholders(t *testing.T) {
	db, mock := newPostgresMock(t)

	q := `(?s)^INSERT\s+INTO\s+users\s*\(id,\s*email,\s*name,\s*password_hash,\s*created_at,\s*updated_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6\)$`
	mock.ExpectExec(q).
		WithArgs(sqlmock.AnyArg(), "a@x.io", nil, "hash", fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u := &model.User{Email: "a@x.io", PasswordHash: "hash"}
	if err := db.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if u.ID == "" {
		t.Error("Create did not assign an id")
	}
}

func TestPostgres_UserCreate_UniqueViolationIsConflict(t *testing.T) {
	db, mock := newPostgresMock(t)

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "ix_users_email"})

	err := db.Users().Create(context.Background(), &model.User{Email: "a@x.io", PasswordHash: "hash"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
}

func TestPostgres_UserCreate_OtherErrorsAreWrapped(t *testing.T) {
	db, mock := newPostgresMock(t)

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pgconn.PgError{Code: "23502"})

	err := db.Users().Create(context.Background(), &model.User{Email: "a@x.io", PasswordHash: "hash"})
	if err == nil || errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("not-null violation must not map to Conflict, got %v", err)
	}
	if !regexp.MustCompile(`sqlstore: creating user: `).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestPostgres_UserFindByEmail_NotFound(t *testing.T) {
	db, mock := newPostgresMock(t)

	q := `(?s)^SELECT\s+id,\s*email,\s*name,\s*password_hash,\s*created_at,\s*updated_at\s+FROM\s+users\s+WHERE\s+email\s*=\s*\$1$`
	mock.ExpectQuery(q).
		WithArgs("ghost@x.io").
		WillReturnError(sql.ErrNoRows)

	_, err := db.Users().FindByEmail(context.Background(), "ghost@x.io")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestPostgres_TaskCreate_UsesReturningID(t *testing.T) {
	db, mock := newPostgresMock(t)

	q := `(?s)^INSERT\s+INTO\s+tasks\s*\(.*\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6\)\s*RETURNING\s+id$`
	mock.ExpectQuery(q).
		WithArgs("user-1", "Buy milk", nil, false, fixedNow, fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(17)))

	task := &model.Task{UserID: "user-1", Title: "Buy milk"}
	if err := db.Tasks().Create(context.Background(), task); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if task.ID != 17 {
		t.Errorf("ID = %d, want 17", task.ID)
	}
}

func TestPostgres_TaskGet_FiltersOnIDAndOwner(t *testing.T) {
	db, mock := newPostgresMock(t)

	q := `(?s)WHERE\s+id\s*=\s*\$1\s+AND\s+user_id\s*=\s*\$2$`
	mock.ExpectQuery(q).
		WithArgs(int64(5), "user-1").
		WillReturnRows(sqlmock.NewRows(taskRowColumns).
			AddRow(int64(5), "user-1", "Buy milk", "2%", true, fixedNow, fixedNow))

	got, err := db.Tasks().Get(context.Background(), "user-1", 5)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Description == nil || *got.Description != "2%" || !got.Completed {
		t.Errorf("unexpected task: %+v", got)
	}
}

func TestPostgres_TaskSetCompleted_NoRowIsNotFound(t *testing.T) {
	db, mock := newPostgresMock(t)

	q := `(?s)^UPDATE\s+tasks\s+SET\s+completed\s*=\s*\$1,\s*updated_at\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$3\s+AND\s+user_id\s*=\s*\$4$`
	mock.ExpectExec(q).
		WithArgs(true, fixedNow, int64(5), "intruder").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := db.Tasks().SetCompleted(context.Background(), "intruder", 5, true)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestPostgres_TaskList_Ordering(t *testing.T) {
	db, mock := newPostgresMock(t)

	q := `(?s)WHERE\s+user_id\s*=\s*\$1\s+ORDER\s+BY\s+created_at\s+DESC,\s*id\s+DESC$`
	mock.ExpectQuery(q).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(taskRowColumns).
			AddRow(int64(2), "user-1", "b", nil, false, fixedNow, fixedNow).
			AddRow(int64(1), "user-1", "a", nil, false, fixedNow, fixedNow))

	tasks, err := db.Tasks().List(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(tasks) != 2 || tasks[0].ID != 2 || tasks[1].Description != nil {
		t.Errorf("unexpected tasks: %+v", tasks)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if isUniqueViolation(errors.New("UNIQUE constraint failed")) {
		t.Error("plain errors must not be treated as unique violations")
	}
	if !isUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Error("SQLSTATE 23505 is a unique violation")
	}
}
