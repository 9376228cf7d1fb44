// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements bearer-token authentication for the admin API. A
// request must carry "Authorization: Bearer <jwt>" signed with HS256 using the
// configured secret. The token's subject and email claims are handed to a
// Resolve callback that maps them to an application user; the user and its ID
// are then stored in the Gin context for handlers, the rate limiter and the
// access logger.
//
// Failure modes:
//   - missing or malformed header, bad signature, expired token, wrong issuer
//     -> 401 {"code":"unauthorized"}
//   - Resolve returns ErrUnauthenticated -> 401
//   - Resolve returns any other error -> 500 {"code":"internal_error"}
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/tbourn/go-survey-backend/internal/domain"
)

// Context keys under which the authenticated identity is stored.
const (
	ctxKeyUserID = "userID"
	ctxKeyUser   = "user"
)

// ErrUnauthenticated is returned by a Resolve callback to reject an identity
// without treating it as a server failure.
var ErrUnauthenticated = errors.New("unauthenticated")

// Claims is the accepted token payload.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// AuthOptions configures Auth.
type AuthOptions struct {
	// Secret is the HS256 signing key. Required.
	Secret []byte
	// Issuer, when set, must match the token's iss claim.
	Issuer string
	// Leeway tolerates clock skew on exp/nbf/iat.
	Leeway time.Duration
	// Resolve maps a verified (subject, email) to a user.
	Resolve func(ctx context.Context, subject, email string) (*domain.User, error)
}

// SignToken issues an HS256 token for subject. It is used by tests and local
// tooling; production tokens come from the identity provider.
func SignToken(secret []byte, issuer, subject, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken verifies raw and returns its claims.
func ParseToken(raw string, opts AuthOptions) (*Claims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(opts.Leeway),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	t, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return opts.Secret, nil
	}, parserOpts...)
	if err != nil {
		return nil, err
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid || strings.TrimSpace(c.Subject) == "" {
		return nil, errors.New("invalid token")
	}
	return c, nil
}

// Auth returns middleware that authenticates every request it guards.
func Auth(opts AuthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") || len(opts.Secret) == 0 {
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return
		}
		claims, err := ParseToken(strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")), opts)
		if err != nil {
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return
		}

		u, err := opts.Resolve(c.Request.Context(), claims.Subject, claims.Email)
		switch {
		case errors.Is(err, ErrUnauthenticated):
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "unknown identity")
			return
		case err != nil:
			LoggerFrom(c).Error().Err(err).Msg("resolve user failed")
			abortAuth(c, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}

		c.Set(ctxKeyUser, u)
		c.Set(ctxKeyUserID, u.ID)
		c.Next()
	}
}

// UserFrom returns the authenticated user, or nil on unauthenticated routes.
func UserFrom(c *gin.Context) *domain.User {
	if v, ok := c.Get(ctxKeyUser); ok {
		if u, ok := v.(*domain.User); ok {
			return u
		}
	}
	return nil
}

func abortAuth(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.Writer.Header().Get("X-Request-ID"),
		"code":       code,
		"message":    msg,
	})
}
