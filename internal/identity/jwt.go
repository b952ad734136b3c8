package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"quiz-proctor-service/internal/app"
	"quiz-proctor-service/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "quiz-proctor-service"

// Authenticator issues and verifies HMAC-signed user tokens.
type Authenticator struct {
	hmac []byte
	ttl  time.Duration
}

func NewAuthenticator(secret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Authenticator{hmac: []byte(secret), ttl: ttl}
}

// Issue signs a token for userID.
func (a *Authenticator) Issue(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.hmac)
}

// Parse verifies raw and returns its subject.
func (a *Authenticator) Parse(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return a.hmac, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", domain.ErrUnauthenticated
	}
	return claims.Subject, nil
}

// Token returns an IdentityProvider that verifies raw each time it is asked,
// so an expired or missing token resolves to no user.
func (a *Authenticator) Token(raw string) app.IdentityProvider {
	return app.IdentityFunc(func(context.Context) (string, bool) {
		if raw == "" {
			return "", false
		}
		userID, err := a.Parse(raw)
		if err != nil {
			return "", false
		}
		return userID, true
	})
}

type ctxKey struct{}

// WithUser stores a verified user id on ctx.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserFromContext returns the user id stored by Middleware, if any.
func UserFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(ctxKey{}).(string)
	return userID, ok && userID != ""
}

// FromContext is an IdentityProvider backed by the request context.
var FromContext app.IdentityProvider = app.IdentityFunc(UserFromContext)

// Middleware rejects requests without a valid bearer token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := BearerToken(r)
		if err != nil {
			http.Error(w, "missing bearer", http.StatusUnauthorized)
			return
		}
		userID, err := a.Parse(raw)
		if err != nil {
			http.Error(w, "bad token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
	})
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", errors.New("missing bearer token")
	}
	return strings.TrimPrefix(h, "Bearer "), nil
}
