package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/homefinder/apiserver/config"
	"github.com/homefinder/apiserver/internal/db"
	"github.com/homefinder/apiserver/internal/handlers"
	"github.com/homefinder/apiserver/internal/mq"
	"github.com/homefinder/apiserver/internal/notify"
	"github.com/homefinder/apiserver/internal/services"
	"github.com/homefinder/apiserver/internal/storage"
	"github.com/homefinder/apiserver/internal/store"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	broker     mq.Backend
	logger     *slog.Logger
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	jwtSecret := strings.TrimSpace(cfg.JWTSecret)
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	images, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}

	broker, err := mq.Open(ctx, cfg.Notify)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("init notify backend: %w", err)
	}
	if broker == nil {
		logger.Warn("notifications disabled; account links are only logged")
	}

	listingRepo := store.NewListingRepository(dbConn)
	catalogRepo := store.NewCatalogRepository(dbConn)
	messageRepo := store.NewMessageRepository(dbConn)
	userRepo := store.NewUserRepository(dbConn)

	notifier := notify.New(broker, cfg.Notify.Channel, cfg.AppURL, logger)

	listingService := services.NewListingService(listingRepo, catalogRepo, images, logger)
	listingService.SetMaxImageBytes(cfg.MaxImageBytes)
	messageService := services.NewMessageService(listingRepo, messageRepo, logger)
	userService := services.NewUserService(userRepo, notifier, logger)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	handlers.Routes(router, handlers.Handlers{
		Auth:     handlers.NewAuthHandler(userService, jwtSecret, cfg.AppURL, logger),
		Listings: handlers.NewListingHandler(listingService, logger),
		Messages: handlers.NewMessageHandler(messageService, logger),
		Images:   handlers.NewImageHandler(images, logger),
	}, jwtSecret)

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
		broker:     broker,
		logger:     logger,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests, then releases the broker and pool.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.broker != nil {
		if cerr := s.broker.Close(); cerr != nil {
			s.logger.Error("close notify backend failed", "err", cerr)
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
