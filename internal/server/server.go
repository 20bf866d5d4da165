package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/bookstore/apiserver/config"
	"github.com/bookstore/apiserver/internal/auth"
	"github.com/bookstore/apiserver/internal/db"
	"github.com/bookstore/apiserver/internal/mq"
	"github.com/bookstore/apiserver/internal/services"
	"github.com/bookstore/apiserver/internal/storage"
	"github.com/bookstore/apiserver/internal/store"
)

// Server owns the HTTP listener and the connections behind it.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	covers     *storage.Storage
	broker     *mq.MQ
	log        zerolog.Logger
}

// New connects to the database and the optional storage and broker
// backends, then wires the services and routes.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Server, error) {
	jwtSecret := strings.TrimSpace(cfg.JWTSecret)
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	covers, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	broker, err := mq.New(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		if covers != nil {
			_ = covers.Close()
		}
		return nil, err
	}

	tokens := auth.NewTokenService(jwtSecret, cfg.TokenTTL)

	userService := services.NewUserService(store.NewUserRepository(dbConn), tokens)

	var coverStorage services.CoverStorage
	if covers != nil {
		coverStorage = covers
	}
	bookService := services.NewBookService(store.NewBookRepository(dbConn), userService, coverStorage)

	var events services.EventPublisher
	if broker != nil {
		events = services.NewBrokerEvents(broker, cfg.MQ.Channel)
	}
	purchaseService := services.NewPurchaseService(
		services.NewSQLTxRunner(dbConn),
		store.NewPurchaseRepository(dbConn),
		events,
	)

	router := NewRouter(log, Dependencies{
		DB:        dbConn,
		Tokens:    tokens,
		Users:     userService,
		Books:     bookService,
		Purchases: purchaseService,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 75 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().
		Str("storage", cfg.Storage.Backend).
		Str("mq", cfg.MQ.Backend).
		Dur("token_ttl", cfg.TokenTTL).
		Msg("server configured")

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		covers:     covers,
		broker:     broker,
		log:        log,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start serves until Shutdown is called. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then closes the broker, storage and
// database connections.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	if s.broker != nil {
		if cerr := s.broker.Close(); cerr != nil {
			s.log.Warn().Err(cerr).Msg("closing message broker")
		}
	}
	if s.covers != nil {
		if cerr := s.covers.Close(); cerr != nil {
			s.log.Warn().Err(cerr).Msg("closing object storage")
		}
	}
	if s.db != nil {
		if cerr := s.db.Close(); cerr != nil {
			s.log.Warn().Err(cerr).Msg("closing database")
		}
	}
	return err
}
