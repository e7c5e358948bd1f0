package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iago/obra-back/internal/domain"
)

const actorContextKey contextKey = "actor"

// Claims is the bearer token payload. The subject is the user id.
type Claims struct {
	Name string      `json:"name,omitempty"`
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// DevActor is attached to every request when no signing secret is set.
var DevActor = domain.Actor{UID: "dev-admin", Name: "Developer", Role: domain.RoleAdmin}

// Auth verifies HS256 bearer tokens on /v1/ routes and stores the caller in
// the request context. An empty secret disables verification.
func Auth(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/v1/") {
				next.ServeHTTP(w, r)
				return
			}

			if secret == "" {
				next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), DevActor)))
				return
			}

			authorization := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(authorization, prefix) {
				writeUnauthorized(w, r)
				return
			}

			actor, err := ParseToken(key, strings.TrimSpace(strings.TrimPrefix(authorization, prefix)))
			if err != nil {
				writeUnauthorized(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// ParseToken validates a signed token and returns the actor it names.
func ParseToken(key []byte, raw string) (domain.Actor, error) {
	if raw == "" {
		return domain.Actor{}, errors.New("empty token")
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return domain.Actor{}, err
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return domain.Actor{}, errors.New("token missing subject or role")
	}
	return domain.Actor{UID: claims.Subject, Name: claims.Name, Role: claims.Role}, nil
}

// SignToken issues an HS256 token for the given claims.
func SignToken(key []byte, claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

func GetActor(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(domain.Actor)
	return actor, ok
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"unauthorized","message":"authentication required"},"request_id":"` + GetRequestID(r.Context()) + `"}`))
}
