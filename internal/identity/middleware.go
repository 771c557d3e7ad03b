package identity

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Config is read from the environment at startup.
type Config struct {
	JWTSecret string `env:"AUTH_JWT_SECRET,required"`
}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Middleware verifies the bearer token issued by the identity provider and
// places the verified identity in the request context. Requests without a
// valid token are rejected with 401 before reaching any handler.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	keyFunc := func(t *jwt.Token) (any, error) {
		return []byte(cfg.JWTSecret), nil
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if raw == "" || raw == r.Header.Get("Authorization") {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			var c claims
			token, err := jwt.ParseWithClaims(raw, &c, keyFunc,
				jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			accountID, err := uuid.Parse(c.Subject)
			if err != nil {
				http.Error(w, "invalid token subject", http.StatusUnauthorized)
				return
			}

			ctx := WithIdentity(r.Context(), Identity{AccountID: accountID, Email: c.Email})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
