package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/taskboard/internal/apperror"
	"github.com/sakif/taskboard/internal/respond"
)

// CookieName is the HttpOnly cookie that carries the token in browsers.
const CookieName = "auth_token"

// unauthenticatedMessage is shared by every authentication failure so the
// response never hints at why a credential was rejected.
const unauthenticatedMessage = "Invalid or missing authentication credentials"

// contextKey is an unexported type used for context keys in this package,
// so no other package can read or shadow the identity value.
type contextKey string

const identityKey contextKey = "identity"

// Identity is what a verified token proves about the caller.
type Identity struct {
	UserID string
	Email  string
}

// TokenExtractor pulls a candidate token out of a request.
// It reports false when its source holds no (non-empty) token.
type TokenExtractor func(r *http.Request) (string, bool)

// FromCookie reads the token from the named cookie.
func FromCookie(name string) TokenExtractor {
	return func(r *http.Request) (string, bool) {
		c, err := r.Cookie(name)
		if err != nil || c.Value == "" {
			return "", false
		}
		return c.Value, true
	}
}

// FromBearerHeader reads "Authorization: Bearer <token>". The scheme name is
// matched case-insensitively.
func FromBearerHeader() TokenExtractor {
	return func(r *http.Request) (string, bool) {
		scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return "", false
		}
		token = strings.TrimSpace(token)
		return token, token != ""
	}
}

// DefaultExtractors is the lookup order used when NewGate is given none:
// cookie first, then the Authorization header.
func DefaultExtractors() []TokenExtractor {
	return []TokenExtractor{FromCookie(CookieName), FromBearerHeader()}
}

// Gate authenticates requests and enforces path ownership.
type Gate struct {
	tokens     *TokenService
	extractors []TokenExtractor
}

// NewGate builds a Gate that tries extractors in order. With no extractors
// it uses DefaultExtractors.
func NewGate(tokens *TokenService, extractors ...TokenExtractor) *Gate {
	if len(extractors) == 0 {
		extractors = DefaultExtractors()
	}
	return &Gate{tokens: tokens, extractors: extractors}
}

// Authenticate finds the first token the extractors yield and verifies it.
//
// Only the first candidate is verified: a bad cookie does not fall through
// to the header. Missing and invalid tokens produce the same error.
func (g *Gate) Authenticate(r *http.Request) (*Identity, error) {
	token, found := g.extract(r)
	if !found {
		return nil, apperror.Unauthenticated(unauthenticatedMessage)
	}

	claims, ok := g.tokens.Verify(token)
	if !ok {
		return nil, apperror.Unauthenticated(unauthenticatedMessage)
	}

	return &Identity{UserID: claims.UserID(), Email: claims.Email}, nil
}

func (g *Gate) extract(r *http.Request) (string, bool) {
	for _, extract := range g.extractors {
		if token, ok := extract(r); ok {
			return token, true
		}
	}
	return "", false
}

// AuthorizeOwner is the only authorization rule: the caller may act on a
// /api/{user_id}/... path only when user_id equals their token subject.
// Comparison is exact, with no case folding or trimming.
func AuthorizeOwner(identity *Identity, pathUserID string) error {
	if identity == nil {
		return apperror.Unauthenticated(unauthenticatedMessage)
	}
	if identity.UserID != pathUserID {
		return apperror.Forbidden("Access denied: user ID mismatch")
	}
	return nil
}

// RequireAuth rejects unauthenticated requests with 401 and stores the
// Identity in the context for everything downstream.
func (g *Gate) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := g.Authenticate(r)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// RequireOwner enforces AuthorizeOwner against the chi URL parameter param.
// It must be mounted after RequireAuth; without an identity in the context
// it answers 401 rather than evaluating ownership.
func RequireOwner(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, _ := IdentityFromContext(r.Context())
			if err := AuthorizeOwner(identity, chi.URLParam(r, param)); err != nil {
				respond.Error(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext retrieves the authenticated caller.
// Returns (nil, false) outside a RequireAuth-protected route.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok && id != nil
}
