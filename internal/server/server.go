package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sweetshop/apiserver/config"
	"github.com/sweetshop/apiserver/internal/auth"
	"github.com/sweetshop/apiserver/internal/cache"
	"github.com/sweetshop/apiserver/internal/db"
	"github.com/sweetshop/apiserver/internal/handlers"
	"github.com/sweetshop/apiserver/internal/logging"
	"github.com/sweetshop/apiserver/internal/mq"
	"github.com/sweetshop/apiserver/internal/services"
	"github.com/sweetshop/apiserver/internal/storage"
	"github.com/sweetshop/apiserver/internal/store"
)

// Server wraps the HTTP server, router and the connections it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	mq         *mq.MQ
	closers    []io.Closer
	log        *slog.Logger
}

// New constructs a Server with its middleware, backends and routes.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*Server, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	hasher, err := auth.NewHasher(cfg.Auth.Hasher)
	if err != nil {
		return nil, err
	}

	s := &Server{log: log}
	ok := false
	defer func() {
		if !ok {
			s.closeBackends()
		}
	}()

	s.db, err = db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var catalogue cache.Catalogue = cache.Noop{}
	if cfg.Redis.Addr != "" {
		redisCatalogue, err := cache.NewRedisCatalogue(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, redisCatalogue)
		catalogue = redisCatalogue
	}

	s.mq, err = mq.Open(ctx, cfg.MQ)
	if err != nil {
		return nil, err
	}

	images, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, images)

	userRepo := store.NewUserRepository(s.db)
	sweetRepo := store.NewSweetRepository(s.db)
	purchaseRepo := store.NewPurchaseRepository(s.db)

	tokens := auth.NewTokenCodec(cfg.Auth.JWTSecret)
	authService := services.NewAuthService(userRepo, hasher, tokens, cfg.Auth.TokenTTL)
	userService := services.NewUserService(userRepo)
	sweetService := services.NewSweetService(services.SweetDeps{
		Repo:          sweetRepo,
		Catalogue:     catalogue,
		Events:        s.mq,
		Images:        images,
		PurchaseTopic: cfg.MQ.PurchaseTopic,
		Logger:        log.With("component", "sweets"),
	})
	purchaseService := services.NewPurchaseService(purchaseRepo)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		logging.Middleware(log),
		middleware.Timeout(60*time.Second),
		cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, authService, userService, log)
		})
		r.Route("/sweets", func(r chi.Router) {
			handlers.SweetRouter(r, sweetService, authService, log)
		})
		r.Route("/purchases", func(r chi.Router) {
			handlers.PurchaseRouter(r, purchaseService, authService, log)
		})
		r.Route("/admin", func(r chi.Router) {
			handlers.AdminRouter(r, purchaseService, authService, log)
		})
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.router = router
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	ok = true
	return s, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.log.Info("listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then closes the backends.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.closeBackends()
	return err
}

func (s *Server) closeBackends() {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.log.Warn("close backend", "error", err)
		}
	}
	if s.mq != nil {
		if err := s.mq.Close(); err != nil {
			s.log.Warn("close message queue", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Warn("close database", "error", err)
		}
	}
}
