package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/bookstore/apiserver/internal/handlers"
	"github.com/bookstore/apiserver/internal/metrics"
)

// Dependencies are the services the router dispatches to.
type Dependencies struct {
	DB        handlers.Pinger
	Tokens    handlers.TokenVerifier
	Users     handlers.UserService
	Books     handlers.BookService
	Purchases handlers.PurchaseService
}

// NewRouter builds the HTTP routing tree with logging, metrics and recovery
// middleware.
func NewRouter(log zerolog.Logger, deps Dependencies) *chi.Mux {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		hlog.NewHandler(log),
		requestIDLogger,
		accessLogger(),
		middleware.Recoverer,
		metrics.Middleware,
		middleware.Timeout(60*time.Second),
	)
	router.NotFound(handlers.NotFound)
	router.MethodNotAllowed(handlers.MethodNotAllowed)

	router.Get("/healthz", handlers.Healthz)
	router.Get("/readyz", handlers.Readyz(deps.DB))
	router.Handle("/metrics", promhttp.Handler())

	authMiddleware := handlers.RequireAuth(deps.Tokens)
	router.Route("/api", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			handlers.UserRouter(r, deps.Users, authMiddleware)
		})
		r.Route("/books", func(r chi.Router) {
			handlers.BookRouter(r, deps.Books, authMiddleware)
		})
		r.Route("/purchases", func(r chi.Router) {
			handlers.PurchaseRouter(r, deps.Purchases, authMiddleware)
		})
	})
	return router
}

// requestIDLogger adds chi's request id to the request logger.
func requestIDLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("request_id", id)
			})
		}
		next.ServeHTTP(w, r)
	})
}

func accessLogger() func(http.Handler) http.Handler {
	return hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		event := hlog.FromRequest(r).Info()
		if status >= http.StatusInternalServerError {
			event = hlog.FromRequest(r).Error()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	})
}
