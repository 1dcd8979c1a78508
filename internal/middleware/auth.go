package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/benvon/todo-digest/internal/logger"
	"github.com/benvon/todo-digest/internal/models"
	"github.com/benvon/todo-digest/internal/request"
)

// TokenVerifier validates a bearer token and returns its claims
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*models.JWTClaims, error)
}

// UserProvisioner maps verified claims onto a local user, creating it on first sign-in
type UserProvisioner interface {
	EnsureBySubject(ctx context.Context, subject, email string, name *string) (*models.User, error)
}

// UserFromContext extracts the authenticated user from the request context
func UserFromContext(r *http.Request) *models.User {
	return request.UserFromContext(r)
}

// Auth rejects requests without a valid bearer token and attaches the caller's user to the context.
// GET requests may pass the token as access_token because EventSource cannot set headers.
func Auth(verifier TokenVerifier, users UserProvisioner, log *zap.Logger) func(http.Handler) http.Handler {
	log = logger.OrNop(log)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				respondError(w, http.StatusUnauthorized, "Missing or invalid Authorization header")
				return
			}

			ctx := r.Context()
			claims, err := verifier.Verify(ctx, token)
			if err != nil {
				log.Debug("token_verification_failed", zap.String("error", logger.SanitizeError(err)))
				respondError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			var name *string
			if claims.Name != "" {
				name = &claims.Name
			}
			user, err := users.EnsureBySubject(ctx, claims.Sub, claims.Email, name)
			if err != nil {
				log.Error("user_provision_failed",
					zap.String("subject", claims.Sub),
					zap.String("error", logger.SanitizeError(err)))
				respondError(w, http.StatusInternalServerError, "Database error")
				return
			}

			next.ServeHTTP(w, r.WithContext(request.WithUser(ctx, user)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", false
		}
		return strings.TrimSpace(token), true
	}
	if r.Method == http.MethodGet {
		if token := r.URL.Query().Get("access_token"); token != "" {
			return token, true
		}
	}
	return "", false
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   message,
	})
}
