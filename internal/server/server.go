package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/itemsrv/apiserver/config"
	"github.com/itemsrv/apiserver/internal/auth"
	"github.com/itemsrv/apiserver/internal/db"
	"github.com/itemsrv/apiserver/internal/handlers"
	"github.com/itemsrv/apiserver/internal/logging"
	"github.com/itemsrv/apiserver/internal/mq"
	"github.com/itemsrv/apiserver/internal/services"
	"github.com/itemsrv/apiserver/internal/storage"
	"github.com/itemsrv/apiserver/internal/store"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	mq         *mq.MQ
	logger     *slog.Logger
}

// New opens the database and optional storage and broker clients, then
// wires the HTTP routes.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.Auth.SecretKey, cfg.Auth.Algorithm, cfg.Auth.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("token service: %w", err)
	}

	dbConn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("object storage: %w", err)
	}

	broker, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("message queue: %w", err)
	}

	userRepo := store.NewUserRepository(dbConn)
	itemRepo := store.NewItemRepository(dbConn)
	timeout := cfg.Database.QueryTimeout

	userService, err := services.NewUserService(userRepo, auth.NewBcryptHasher(cfg.Auth.BcryptCost), tokens, timeout)
	if err != nil {
		_ = dbConn.Close()
		if broker != nil {
			_ = broker.Close()
		}
		return nil, fmt.Errorf("user service: %w", err)
	}

	var itemOpts []services.ItemServiceOption
	if broker != nil {
		itemOpts = append(itemOpts, services.WithEventPublisher(broker, cfg.MQ.ItemEventsChannel))
		logger.Info("item events enabled", "backend", cfg.MQ.Backend, "channel", cfg.MQ.ItemEventsChannel)
	}
	itemService := services.NewItemService(itemRepo, timeout, logger, itemOpts...)

	var exportService *services.ExportService
	if objects != nil {
		exportService = services.NewExportService(itemRepo, objects, timeout)
		logger.Info("item exports enabled", "backend", cfg.Storage.Backend, "bucket", objects.Bucket())
	}

	router := NewRouter(userService, itemService, exportService, logger)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		mq:         broker,
		logger:     logger,
	}, nil
}

// NewRouter builds the HTTP routes. exportService may be nil.
func NewRouter(
	userService *services.UserService,
	itemService *services.ItemService,
	exportService *services.ExportService,
	logger *slog.Logger,
) *chi.Mux {
	authMiddleware := handlers.RequireAuth(userService, logger)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.RequestLogger(logger),
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	handlers.AuthRouter(router, userService, logger)
	router.Route("/items", func(r chi.Router) {
		handlers.ItemRouter(r, itemService, exportService, authMiddleware, logger)
	})
	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Run starts the server and shuts it down gracefully once ctx is done.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	select {
	case err := <-errCh:
		_ = s.close()
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", "timeout", shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown drains in-flight requests, then releases the broker and
// database connections.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if closeErr := s.close(); err == nil {
		err = closeErr
	}
	return err
}

func (s *Server) close() error {
	var errs []error
	if s.mq != nil {
		errs = append(errs, s.mq.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}
