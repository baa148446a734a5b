package server

import (
	"net/http"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/gorilla/mux"

	"github.com/realvista/backend/pkg/application"
)

const readHeaderTimeout = 10 * time.Second

// HTTPServer mounts every registered controller on one gzip-wrapped mux
// router. Fallback handlers run through the same middleware chain, so even a
// 404 carries a request logger and CORS headers.
type HTTPServer struct {
	controllers             []application.Controller
	middlewares             []mux.MiddlewareFunc
	notFoundHandler         http.Handler
	methodNotAllowedHandler http.Handler
}

func NewHTTPServer(
	app application.Application,
	notFoundHandler, methodNotAllowedHandler http.Handler,
) *HTTPServer {
	return &HTTPServer{
		controllers:             app.Controllers(),
		middlewares:             app.Middleware(),
		notFoundHandler:         notFoundHandler,
		methodNotAllowedHandler: methodNotAllowedHandler,
	}
}

func (s *HTTPServer) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.middlewares...)
	for _, controller := range s.controllers {
		controller.Register(r)
	}
	r.NotFoundHandler = s.chain(s.notFoundHandler)
	r.MethodNotAllowedHandler = s.chain(s.methodNotAllowedHandler)
	return r
}

// chain threads a fallback handler through the middleware stack, which mux
// applies only to routes it matched itself.
func (s *HTTPServer) chain(h http.Handler) http.Handler {
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		h = s.middlewares[i](h)
	}
	return h
}

func (s *HTTPServer) Handler() http.Handler {
	return gziphandler.GzipHandler(s.Router())
}

func (s *HTTPServer) Start(socketAddress string) error {
	srv := &http.Server{
		Addr:              socketAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return srv.ListenAndServe()
}
