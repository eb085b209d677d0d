// Package tenant carries the authenticated tenant id through a request.
package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type ctxKey struct{}

// Identity is what the middleware learned from the bearer token.
type Identity struct {
	TenantID string
	// Actor is the token subject, recorded as created_by/updated_by.
	Actor string
}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by the middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// IDFromContext returns the tenant id, or "" when the request carries none.
func IDFromContext(ctx context.Context) string {
	id, _ := FromContext(ctx)
	return id.TenantID
}

// Claims are the JWT claims we read. TenantID falls back to the subject.
type Claims struct {
	TenantID string `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}

// AuthConfig holds the configuration for JWT authentication.
type AuthConfig struct {
	Secret    string
	Issuer    string
	SkipPaths []string
}

// IssueToken signs an HS256 token for tenantID. Used by the CLI and tests.
func IssueToken(secret, tenantID, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	now := time.Now()
	claims := Claims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Parse verifies tokenString and returns the identity it names.
func Parse(cfg AuthConfig, tokenString string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Identity{}, errors.New("invalid token claims")
	}
	if cfg.Issuer != "" && claims.Issuer != cfg.Issuer {
		return Identity{}, errors.New("invalid token issuer")
	}
	id := Identity{TenantID: claims.TenantID, Actor: claims.Subject}
	if id.TenantID == "" {
		id.TenantID = claims.Subject
	}
	if id.TenantID == "" {
		return Identity{}, errors.New("token missing tenant_id and sub claims")
	}
	return id, nil
}

// Middleware authenticates "Authorization: Bearer <token>" and stores the
// identity in the request context.
func Middleware(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, path := range cfg.SkipPaths {
				if r.URL.Path == path {
					next.ServeHTTP(w, r)
					return
				}
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "Authorization header is required")
				return
			}
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				unauthorized(w, "Invalid authorization header format. Expected: Bearer <token>")
				return
			}

			id, err := Parse(cfg, tokenString)
			if err != nil {
				zap.L().Debug("rejected bearer token", zap.String("path", r.URL.Path), zap.Error(err))
				unauthorized(w, fmt.Sprintf("Invalid token: %v", err))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
