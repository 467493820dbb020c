// Package server is the composition root: it builds the store, services
// and handlers, mounts routes and runs the HTTP server.
//
// DEPENDENCY FLOW:
//
//	config.Config → sqlite.DB → services → handlers → chi router
//
// Each layer only receives what it needs. Handlers get services, services
// get repository interfaces, and nothing below the server knows about
// configuration.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"github.com/compopedia/compopedia/internal/auth"
	"github.com/compopedia/compopedia/internal/config"
	"github.com/compopedia/compopedia/internal/handler"
	"github.com/compopedia/compopedia/internal/imaging"
	"github.com/compopedia/compopedia/internal/middleware"
	"github.com/compopedia/compopedia/internal/render"
	sqliteRepo "github.com/compopedia/compopedia/internal/repository/sqlite"
	"github.com/compopedia/compopedia/internal/service"
	"github.com/compopedia/compopedia/web"
)

const shutdownTimeout = 30 * time.Second

// Server owns the database connection and the router.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	images *service.ImageService
}

// Open creates the database directory if needed, opens and migrates the
// database, and builds the server around it.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqliteRepo.New(ctx, cfg.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s, err := New(cfg, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wires services and routes around an already migrated database. The
// server takes ownership of db and closes it in Close.
func New(cfg config.Config, db *sqliteRepo.DB, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}
	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

func (s *Server) tokenService() (*auth.TokenService, error) {
	secret := s.config.JWTSecret
	if secret == "" {
		generated, err := auth.RandomSecret()
		if err != nil {
			return nil, err
		}
		s.logger.Warn("JWT_SECRET not set; using a random secret, sessions end on restart")
		secret = generated
	}
	return auth.NewTokenService(secret, s.config.SessionTTL)
}

// setupRoutes mounts every route.
//
// ROUTE STRUCTURE:
//
//	GET  /, /components, /components/{id}  → server-rendered pages
//	GET  /static/*                         → embedded CSS
//	GET  /uploads/*                        → legacy image files
//	GET  /images/{id}                      → stored images
//	     /auth/github/*                    → GitHub login (when configured)
//	     /api/...                          → JSON API
//
// MIDDLEWARE ORDER:
// RequestID runs first so the logger can include it; Recoverer sits inside
// the logger so a panic is still logged as a 500.
func (s *Server) setupRoutes() error {
	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)

	if len(s.config.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	tokens, err := s.tokenService()
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	// === Services ===
	s.images = service.NewImageService(s.db, imaging.NewPool(imaging.NewProcessor(), s.config.ImageWorkers, s.logger), s.logger)
	accounts := service.NewAuthService(s.db, tokens, auth.NewPasswordService(), s.logger)
	catalog := service.NewCatalogService(s.db, s.db, s.logger)
	components := service.NewComponentService(s.db, service.NewUploadDir(s.config.UploadDir), s.logger)

	// === Handlers ===
	var github handler.GitHubAuthenticator
	if s.config.GitHubEnabled() {
		github = auth.NewGitHubProvider(s.config.GitHubClientID, s.config.GitHubClientSecret, s.config.GitHubCallbackURL)
	}
	authHandler := handler.NewAuthHandler(accounts, github, s.config.SecureCookies, s.logger)
	componentHandler := handler.NewComponentHandler(catalog, components, s.logger)
	imageHandler := handler.NewImageHandler(s.images, s.logger)
	pageHandler, err := handler.NewPageHandler(catalog, render.New(s.logger), web.Templates, s.logger)
	if err != nil {
		return fmt.Errorf("creating page handler: %w", err)
	}

	// === Static and image routes ===
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(web.Static())))
	r.Handle("/uploads/*", http.StripPrefix("/uploads/", noListing(http.FileServer(http.Dir(s.config.UploadDir)))))
	r.Get("/images/{id}", imageHandler.HandleGet)
	r.Head("/images/{id}", imageHandler.HandleGet)

	// === Pages ===
	r.Group(func(r chi.Router) {
		r.Use(auth.OptionalAuth(tokens))

		r.Get("/", pageHandler.HandleList)
		r.Get("/components", pageHandler.HandleList)
		r.Get("/components/{id}", pageHandler.HandleDetail)
	})

	if github != nil {
		r.Get("/auth/github/login", authHandler.HandleGitHubLogin)
		r.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
	} else {
		s.logger.Info("GitHub login disabled: GITHUB_CLIENT_ID or GITHUB_CLIENT_SECRET not set")
	}

	// === API ===
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/auth/register", authHandler.HandleRegister)
		r.Post("/auth/login", authHandler.HandleLogin)
		r.Post("/auth/logout", authHandler.HandleLogout)

		r.Get("/components", componentHandler.HandleList)
		r.Get("/components/{id}", componentHandler.HandleGet)
		r.Get("/categories", componentHandler.HandleCategories)
		r.Get("/images/{id}", imageHandler.HandleGet)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))

			r.Post("/components", componentHandler.HandleCreate)
			r.Put("/components/{id}", componentHandler.HandleUpdate)
			r.Delete("/components/{id}", componentHandler.HandleDelete)
			r.Post("/upload", imageHandler.HandleUpload)

			r.Get("/me", authHandler.HandleMe)
			r.Put("/me/profile", authHandler.HandleUpdateProfile)
			r.Get("/me/components", componentHandler.HandleMine)
		})
	})

	return nil
}

// noListing hides directory indexes of the upload directory.
func noListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.db.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.Write([]byte(`{"status":"ok"}`))
}

// Run listens on the configured port and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("listening on port %d: %w", s.config.Port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln next to the orphan-image pruner. When
// ctx is cancelled the server stops accepting connections and waits up to
// shutdownTimeout for in-flight requests. The first failure of either
// goroutine stops both.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server starting",
			slog.String("addr", ln.Addr().String()),
			slog.String("database", s.config.DBPath),
		)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	})

	g.Go(func() error {
		s.pruneLoop(gctx)
		return nil
	})

	return g.Wait()
}

// pruneLoop deletes stale unattached uploads every PruneInterval until ctx
// is done. Failures are logged and retried on the next tick.
func (s *Server) pruneLoop(ctx context.Context) {
	if s.config.PruneInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.config.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.images.PruneOrphans(ctx, s.config.OrphanImageTTL); err != nil && ctx.Err() == nil {
				s.logger.Error("orphan image pruning failed", slog.String("error", err.Error()))
			}
		}
	}
}
