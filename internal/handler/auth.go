package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/taskboard/internal/auth"
	"github.com/sakif/taskboard/internal/model"
	"github.com/sakif/taskboard/internal/respond"
	"github.com/sakif/taskboard/internal/service"
)

// AuthHandler serves /api/auth: signup, signin, signout and session.
//
// Successful signup/signin set the token as an HttpOnly cookie. The token
// is not echoed in the body; API clients that prefer the Authorization
// header read it from the Set-Cookie response.
type AuthHandler struct {
	auth         *service.AuthService
	secureCookie bool
	logger       *slog.Logger
}

// NewAuthHandler creates an AuthHandler. secureCookie sets the cookie's
// Secure attribute and should be true whenever the API is served over HTTPS.
func NewAuthHandler(authService *service.AuthService, secureCookie bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:         authService,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

type credentialsRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Name     *string `json:"name,omitempty"`
}

type userResponse struct {
	ID    string  `json:"id"`
	Email string  `json:"email"`
	Name  *string `json:"name"`
}

type authResponse struct {
	User userResponse `json:"user"`
}

func newAuthResponse(u *model.User) authResponse {
	return authResponse{User: userResponse{ID: u.ID, Email: u.Email, Name: u.Name}}
}

// HandleSignup creates an account and signs it in.
//
// HTTP: POST /api/auth/signup → 201 {"user": {...}}
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	result, err := h.auth.Signup(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	h.setTokenCookie(w, result.Token)
	respond.JSON(w, http.StatusCreated, newAuthResponse(result.User))
}

// HandleSignin exchanges email and password for a token cookie.
//
// HTTP: POST /api/auth/signin → 200 {"user": {...}}
func (h *AuthHandler) HandleSignin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	result, err := h.auth.Signin(r.Context(), req.Email, req.Password)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	h.setTokenCookie(w, result.Token)
	respond.JSON(w, http.StatusOK, newAuthResponse(result.User))
}

// HandleSignout clears the token cookie.
//
// HTTP: POST /api/auth/signout (authenticated)
//
// Tokens are stateless, so this only removes the client's copy. The token
// itself stays valid until it expires.
func (h *AuthHandler) HandleSignout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	respond.JSON(w, http.StatusOK, map[string]string{"message": "Signed out successfully"})
}

// HandleSession returns the signed-in user.
//
// HTTP: GET /api/auth/session (authenticated) → 200 {"user": {...}}
func (h *AuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	user, err := h.auth.CurrentUser(r.Context(), identity)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, newAuthResponse(user))
}

func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(auth.TokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
