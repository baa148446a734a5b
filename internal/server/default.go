package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/realvista/backend/pkg/application"
	"github.com/realvista/backend/pkg/configuration"
	"github.com/realvista/backend/pkg/middleware"
	"github.com/realvista/backend/pkg/server"
)

type DefaultOptions struct {
	Logger        *logrus.Logger
	Configuration *configuration.Configuration
	Application   application.Application
	Pool          *pgxpool.Pool
}

// Default assembles the shared middleware stack and the JSON fallback
// handlers. Every request gets a pool, a scoped logger and the forwarded
// identity before it reaches a controller.
func Default(options *DefaultOptions) (*server.HTTPServer, error) {
	app := options.Application

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{options.Configuration.Origin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", "X-User-ID", "X-User-Role"},
	})

	app.RegisterMiddleware(
		mux.MiddlewareFunc(corsHandler.Handler),
		middleware.ProvideLogger(options.Logger),
		middleware.ProvideDB(options.Pool),
		middleware.ProvideActor(),
	)

	return server.NewHTTPServer(
		app,
		jsonError(http.StatusNotFound, "no such route"),
		jsonError(http.StatusMethodNotAllowed, "method not allowed"),
	), nil
}

func jsonError(status int, message string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"message":"` + message + `"}}`))
	})
}
