// Package auth provides token issuance/verification, password hashing and the
// request gate that turns an incoming credential into an authenticated Identity.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. User signs up or signs in with email + password
//  2. Server issues a signed JWT and stores it in the HttpOnly "auth_token" cookie
//  3. On later requests the Gate pulls the token from the cookie (or, failing
//     that, from an "Authorization: Bearer" header), verifies it, and puts the
//     Identity into the request context
//  4. Routes under /api/{user_id}/... additionally require that the path user id
//     equals the token subject
//
// The server keeps no session table. A token is valid from issue until its
// fixed 7-day expiry; signout only deletes the client's cookie. Rotating the
// secret invalidates every outstanding token at once.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"<user id>","email":"...","iat":...,"exp":...,"jti":"..."}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

// TokenTTL is the fixed lifetime of every issued token.
const TokenTTL = 7 * 24 * time.Hour

// minSecretLength guards against obviously weak HMAC keys.
const minSecretLength = 16

// Claims is the JWT payload. Subject ("sub") holds the user id.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// UserID returns the token subject.
func (c *Claims) UserID() string {
	return c.Subject
}

// TokenService issues and verifies HS256 tokens.
//
// It is stateless: nothing about issued tokens is remembered, so verification
// is a pure function of (token, secret, clock).
type TokenService struct {
	secret []byte
	now    func() time.Time
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithClock replaces the wall clock used for both issuing and verifying.
// Tests use it to move time past a token's expiry.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		s.now = now
	}
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
// Example: AUTH_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, opts ...TokenOption) (*TokenService, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("auth: token secret must be at least %d characters", minSecretLength)
	}
	s := &TokenService{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue creates and signs a token for the given user.
//
// The jti claim is a fresh xid so two tokens minted for the same user within
// the same second are still distinct strings.
func (s *TokenService) Issue(userID, email string) (string, error) {
	if userID == "" {
		return "", errors.New("auth: cannot issue token without a subject")
	}

	now := s.now()
	c := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
			ID:        xid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Verify checks the signature and expiry of a token and returns its claims.
//
// Every failure (garbage input, tampered payload, wrong key, wrong algorithm,
// missing or past expiry) yields (nil, false). The reason is deliberately not
// reported: callers map all of them to the same 401.
//
// Expiry is compared exactly against the service clock, no leeway.
func (s *TokenService) Verify(tokenStr string) (*Claims, bool) {
	if tokenStr == "" {
		return nil, false
	}

	c := &Claims{}
	token, err := jwt.ParseWithClaims(
		tokenStr,
		c,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, false
	}

	if c.Subject == "" {
		return nil, false
	}

	return c, true
}
