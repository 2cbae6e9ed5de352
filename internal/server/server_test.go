package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/taskboard/internal/auth"
	"github.com/sakif/taskboard/internal/config"
	"github.com/sakif/taskboard/internal/ratelimit"
	"github.com/sakif/taskboard/internal/server"
)

const testSecret = "server-test-secret-0123456789abcdef"

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Port = 0
	cfg.DatabaseURL = ":memory:"
	cfg.AuthSecret = testSecret
	cfg.BcryptCost = bcrypt.MinCost
	cfg.ShutdownTimeout = time.Second
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestServer(t *testing.T, opts ...server.Option) *server.Server {
	t.Helper()
	srv, err := server.New(context.Background(), testConfig(), testLogger(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv
}

// client drives the router in-process, authenticating with a bearer token.
type client struct {
	t *testing.T
	h http.Handler
}

func (c client) do(method, path, body, token string) *httptest.ResponseRecorder {
	c.t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	c.h.ServeHTTP(rr, req)
	return rr
}

type account struct {
	id    string
	token string
}

func (c client) signup(email, password string) account {
	c.t.Helper()
	rr := c.do(http.MethodPost, "/api/auth/signup", `{"email":"`+email+`","password":"`+password+`"}`, "")
	require.Equal(c.t, http.StatusCreated, rr.Code, rr.Body.String())
	return account{id: userID(c.t, rr), token: cookieToken(c.t, rr)}
}

func userID(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body.User.ID
}

func cookieToken(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c.Value
		}
	}
	t.Fatal("no auth cookie in response")
	return ""
}

type taskBody struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func decodeTask(t *testing.T, rr *httptest.ResponseRecorder) taskBody {
	t.Helper()
	var task taskBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &task), rr.Body.String())
	return task
}

// =============================================================================
// End-to-end flows
// =============================================================================

func TestSignupThenSignin_TokenSubjectIsUserID(t *testing.T) {
	srv := newTestServer(t)
	c := client{t: t, h: srv.Handler()}

	acct := c.signup("alice@example.com", "password123")

	rr := c.do(http.MethodPost, "/api/auth/signin", `{"email":"alice@example.com","password":"password123"}`, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, acct.id, userID(t, rr))

	tokens, err := auth.NewTokenService(testSecret)
	require.NoError(t, err)
	claims, ok := tokens.Verify(cookieToken(t, rr))
	require.True(t, ok)
	assert.Equal(t, acct.id, claims.UserID())
	assert.Equal(t, "alice@example.com", claims.Email)

	rr = c.do(http.MethodGet, "/api/auth/session", "", acct.token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, acct.id, userID(t, rr))
}

func TestSignup_DuplicateEmailIsConflict(t *testing.T) {
	srv := newTestServer(t)
	c := client{t: t, h: srv.Handler()}

	c.signup("alice@example.com", "password123")

	rr := c.do(http.MethodPost, "/api/auth/signup", `{"email":"alice@example.com","password":"different99"}`, "")
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestTaskLifecycle(t *testing.T) {
	srv := newTestServer(t)
	c := client{t: t, h: srv.Handler()}
	a := c.signup("alice@example.com", "password123")
	base := "/api/" + a.id + "/tasks"

	rr := c.do(http.MethodPost, base, `{"title":"Buy milk"}`, a.token)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decodeTask(t, rr)
	assert.Equal(t, "Buy milk", created.Title)
	assert.Nil(t, created.Description)
	assert.False(t, created.Completed)
	assert.Equal(t, a.id, created.UserID)

	taskPath := base + "/" + jsonID(created.ID)

	rr = c.do(http.MethodPatch, taskPath+"/complete", `{"completed":true}`, a.token)
	require.Equal(t, http.StatusOK, rr.Code)
	done := decodeTask(t, rr)
	assert.True(t, done.Completed)
	assert.False(t, done.UpdatedAt.Before(created.UpdatedAt))

	rr = c.do(http.MethodPatch, taskPath+"/complete", `{"completed":false}`, a.token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, decodeTask(t, rr).Completed)

	rr = c.do(http.MethodPut, taskPath, `{"title":"Buy oat milk","description":"2 litres"}`, a.token)
	require.Equal(t, http.StatusOK, rr.Code)
	updated := decodeTask(t, rr)
	assert.Equal(t, "Buy oat milk", updated.Title)
	require.NotNil(t, updated.Description)
	assert.Equal(t, "2 litres", *updated.Description)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	rr = c.do(http.MethodGet, base, "", a.token)
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Tasks []taskBody `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Tasks, 1)
	assert.Equal(t, created.ID, list.Tasks[0].ID)

	rr = c.do(http.MethodDelete, taskPath, "", a.token)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = c.do(http.MethodGet, taskPath, "", a.token)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestTasks_OwnershipIsEnforced(t *testing.T) {
	srv := newTestServer(t)
	c := client{t: t, h: srv.Handler()}
	a := c.signup("alice@example.com", "password123")
	b := c.signup("bob@example.com", "password456")

	rr := c.do(http.MethodPost, "/api/"+a.id+"/tasks", `{"title":"private"}`, a.token)
	require.Equal(t, http.StatusCreated, rr.Code)
	aTask := decodeTask(t, rr)

	// A's token on B's path is rejected before any handler runs.
	rr = c.do(http.MethodGet, "/api/"+b.id+"/tasks", "", a.token)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	// B on B's own path cannot see A's task id.
	rr = c.do(http.MethodGet, "/api/"+b.id+"/tasks/"+jsonID(aTask.ID), "", b.token)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = c.do(http.MethodDelete, "/api/"+b.id+"/tasks/"+jsonID(aTask.ID), "", b.token)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = c.do(http.MethodGet, "/api/"+a.id+"/tasks/"+jsonID(aTask.ID), "", a.token)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestExpiredTokenIsRejectedLikeGarbage(t *testing.T) {
	srv := newTestServer(t)
	c := client{t: t, h: srv.Handler()}
	a := c.signup("alice@example.com", "password123")

	past := time.Now().Add(-auth.TokenTTL - time.Hour)
	stale, err := auth.NewTokenService(testSecret, auth.WithClock(func() time.Time { return past }))
	require.NoError(t, err)
	expired, err := stale.Issue(a.id, "alice@example.com")
	require.NoError(t, err)

	path := "/api/" + a.id + "/tasks"
	expiredResp := c.do(http.MethodGet, path, "", expired)
	garbageResp := c.do(http.MethodGet, path, "", "not-a-token")
	missingResp := c.do(http.MethodGet, path, "", "")

	for _, rr := range []*httptest.ResponseRecorder{expiredResp, garbageResp, missingResp} {
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	}
	assert.Equal(t, garbageResp.Body.String(), expiredResp.Body.String())
	assert.Equal(t, missingResp.Body.String(), expiredResp.Body.String())
}

// =============================================================================
// Cross-cutting middleware
// =============================================================================

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	c := client{t: t, h: srv.Handler()}

	rr := c.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rr.Body.String())
}

func TestCORS_AllowsConfiguredOriginWithCredentials(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/signin", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodOptions, "/api/auth/signin", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

// denyAll rejects every request.
type denyAll struct{}

func (denyAll) Allow(_ context.Context, _ string, limit int, window time.Duration) (*ratelimit.Result, error) {
	return &ratelimit.Result{Allowed: false, ResetAt: time.Now().Add(window), Limit: limit}, nil
}

func TestRateLimiter_GuardsCredentialRoutesOnly(t *testing.T) {
	srv := newTestServer(t, server.WithLimiter(denyAll{}))
	c := client{t: t, h: srv.Handler()}

	rr := c.do(http.MethodPost, "/api/auth/signin", `{"email":"a@example.com","password":"password123"}`, "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	rr = c.do(http.MethodPost, "/api/auth/signup", `{"email":"a@example.com","password":"password123"}`, "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	rr = c.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestNew_RejectsShortSecret(t *testing.T) {
	cfg := testConfig()
	cfg.AuthSecret = "short"

	_, err := server.New(context.Background(), cfg, testLogger())
	assert.Error(t, err)
}

func TestRun_StopsWhenContextCancelled(t *testing.T) {
	srv, err := server.New(context.Background(), testConfig(), testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
