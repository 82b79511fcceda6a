package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/phrazzld/prep-api/internal/api/shared"
	"github.com/phrazzld/prep-api/internal/platform/logger"
	"github.com/phrazzld/prep-api/internal/redact"
)

// Token verification errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrNoSubject    = errors.New("token has no subject")
)

// DefaultClockSkew is the leeway applied to exp/nbf/iat checks.
const DefaultClockSkew = 30 * time.Second

// AuthMiddleware verifies HS256 bearer tokens issued by the upstream
// authentication service and puts the token subject in the request context
// as the requester identity.
type AuthMiddleware struct {
	secret    []byte
	clockSkew time.Duration
	now       func() time.Time
}

// AuthOption customizes an AuthMiddleware.
type AuthOption func(*AuthMiddleware)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) AuthOption {
	return func(m *AuthMiddleware) { m.now = now }
}

// WithClockSkew overrides DefaultClockSkew.
func WithClockSkew(d time.Duration) AuthOption {
	return func(m *AuthMiddleware) { m.clockSkew = d }
}

// NewAuthMiddleware creates an AuthMiddleware for the shared signing secret.
func NewAuthMiddleware(secret string, opts ...AuthOption) (*AuthMiddleware, error) {
	if secret == "" {
		return nil, errors.New("jwt secret cannot be empty")
	}
	m := &AuthMiddleware{
		secret:    []byte(secret),
		clockSkew: DefaultClockSkew,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Verify parses and validates token and returns its subject.
func (m *AuthMiddleware) Verify(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(m.clockSkew),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return "", ErrNoSubject
	}
	return sub, nil
}

// Authenticate rejects requests without a valid bearer token and adds the
// identity to the context of those that have one.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			unauthorized(w, r, "Authorization header required", nil)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			unauthorized(w, r, "Invalid authorization format", nil)
			return
		}

		identity, err := m.Verify(strings.TrimSpace(parts[1]))
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, ErrExpiredToken) {
				msg = "Token expired"
			}
			logger.FromContext(r.Context()).Debug("bearer token rejected", "error", redact.Error(err))
			unauthorized(w, r, msg, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(shared.WithIdentity(r.Context(), identity)))
	})
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string, err error) {
	shared.RespondWithFailure(w, r, shared.Failure{
		Status:  http.StatusUnauthorized,
		Code:    shared.CodeUnauthorized,
		Message: msg,
		Err:     err,
	})
}
