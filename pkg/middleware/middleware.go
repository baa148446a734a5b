package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/realvista/backend/pkg/composables"
	"github.com/realvista/backend/pkg/types"
)

// ProvideDB attaches the connection pool to every request context.
func ProvideDB(pool *pgxpool.Pool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(composables.WithPool(r.Context(), pool)))
		})
	}
}

// ProvideLogger attaches a request-scoped logger entry.
func ProvideLogger(logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			entry := logger.WithFields(logrus.Fields{
				"method": r.Method,
				"path":   r.URL.Path,
			})
			next.ServeHTTP(w, r.WithContext(composables.WithLogger(r.Context(), entry)))
		})
	}
}

// ProvideActor reads the identity assertion forwarded by the authentication
// collaborator. The backend trusts these headers; it never authenticates.
func ProvideActor() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := uuid.Parse(r.Header.Get("X-User-ID"))
			if err != nil {
				http.Error(w, "missing or malformed X-User-ID header", http.StatusUnauthorized)
				return
			}
			role := types.Role(r.Header.Get("X-User-Role"))
			if role != types.RoleSubmitter && role != types.RoleReviewer {
				http.Error(w, "missing or unknown X-User-Role header", http.StatusUnauthorized)
				return
			}
			actor := types.Actor{ID: id, Role: role}
			next.ServeHTTP(w, r.WithContext(composables.WithActor(r.Context(), actor)))
		})
	}
}
