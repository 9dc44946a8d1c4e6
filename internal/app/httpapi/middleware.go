package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"

	"github.com/CryptoStream-Network/stream_layer/pkg/logger"
)

// requireAuth validates an HMAC-signed bearer token on mutating endpoints.
// An empty secret disables auth; local deployments drive the lifecycle
// without tokens.
func requireAuth(secret string, log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeError(w, http.StatusUnauthorized, fmt.Errorf("bearer token required"))
				return
			}
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")

			token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				log.WithError(err).Warn("admin token rejected")
				writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid token"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
