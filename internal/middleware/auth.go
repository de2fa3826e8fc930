package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/phonegate/phonegate/internal/token"
	"github.com/sirupsen/logrus"
)

type contextKey string

const phoneContextKey contextKey = "phone"

// VerifiedPhone returns the phone number the request's token proves, if any.
func VerifiedPhone(ctx context.Context) (string, bool) {
	phone, ok := ctx.Value(phoneContextKey).(string)
	return phone, ok
}

type AuthMiddleware struct {
	issuer *token.Issuer
	logger *logrus.Logger
}

func NewAuthMiddleware(issuer *token.Issuer, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		issuer: issuer,
		logger: logger,
	}
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.respondUnauthorized(w, "Missing authorization header")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.respondUnauthorized(w, "Invalid authorization header format")
			return
		}

		claims, err := m.issuer.Verify(parts[1])
		if err != nil {
			m.logger.WithError(err).Debug("Token verification failed")
			m.respondUnauthorized(w, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), phoneContextKey, claims.Phone)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) respondUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"ok":false,"reason":"UNAUTHORIZED","message":"` + message + `"}`))
}
