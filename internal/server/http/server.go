// Package httpserver provides the HTTP REST API for ScholarVault.
package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scholarvault/scholarvault-service/internal/auth"
	"github.com/scholarvault/scholarvault-service/internal/database"
	"github.com/scholarvault/scholarvault-service/internal/events"
	"github.com/scholarvault/scholarvault-service/internal/metadata"
	"github.com/scholarvault/scholarvault-service/internal/observability"
	"github.com/scholarvault/scholarvault-service/internal/pdf"
	"github.com/scholarvault/scholarvault-service/internal/repository"
)

// Enricher runs the metadata pipeline on PDF bytes.
type Enricher interface {
	Enrich(ctx context.Context, data []byte) (*metadata.Result, error)
}

// PDFFetcher downloads a PDF for URL imports.
type PDFFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*pdf.Fetched, error)
}

// FileStore keeps uploaded files.
type FileStore interface {
	SavePDF(name string, data []byte) (string, error)
	SaveProfileImage(userID uuid.UUID, ext string, data []byte) (string, error)
	Read(stored string) ([]byte, error)
	Remove(stored string) error
	Root() string
	PublicPrefix() string
}

// TokenService issues and verifies bearer tokens.
type TokenService interface {
	Issue(userID uuid.UUID, email string) (string, error)
	Verify(raw string) (*auth.Claims, error)
}

// PasswordService hashes and checks passwords.
type PasswordService interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// HealthChecker reports database health.
type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

// Config holds HTTP server configuration.
type Config struct {
	Address              string
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	MaxBodyBytes         int64
	CORSAllowedOrigins   []string
	MaxProfileImageBytes int64
}

// Deps are the collaborators the handlers use. Fetcher, Publisher and
// Metrics may be nil.
type Deps struct {
	Users       repository.UserRepository
	Documents   repository.DocumentRepository
	Collections repository.CollectionRepository
	Enricher    Enricher
	Fetcher     PDFFetcher
	Files       FileStore
	Tokens      TokenService
	Passwords   PasswordService
	Health      HealthChecker
	Publisher   events.Publisher
	Metrics     *observability.Metrics
}

// Server is the HTTP REST API server.
type Server struct {
	cfg        Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	validate   *validator.Validate
	logger     zerolog.Logger
}

// NewServer creates a new HTTP server with all dependencies.
func NewServer(cfg Config, deps Deps, logger zerolog.Logger) *Server {
	if cfg.MaxProfileImageBytes <= 0 {
		cfg.MaxProfileImageBytes = 5 << 20
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NoopPublisher{}
	}

	s := &Server{
		cfg:      cfg,
		deps:     deps,
		validate: newValidator(),
		logger:   logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(corsMiddleware(s.cfg.CORSAllowedOrigins))
	r.Use(bodyLimitMiddleware(s.cfg.MaxBodyBytes))
	if s.deps.Metrics != nil {
		r.Use(metricsMiddleware(s.deps.Metrics))
	}

	// Stored paths are {prefix}/{relative path}, so they double as URLs.
	if s.deps.Files != nil {
		prefix := "/" + s.deps.Files.PublicPrefix()
		r.Handle(prefix+"/*", http.StripPrefix(prefix, noDirListing(http.FileServer(http.Dir(s.deps.Files.Root())))))
	}

	r.Group(func(r chi.Router) {
		r.Use(jsonContentTypeMiddleware)

		r.Get("/health", s.healthHandler)
		r.Get("/ready", s.readinessHandler)

		r.Post("/api/auth/register", s.register)
		r.Post("/api/auth/login", s.login)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(s.deps.Tokens))

			r.Get("/api/user/me", s.currentUser)
			r.Put("/api/user/profile", s.updateProfile)
			r.Post("/api/user/profile-image", s.uploadProfileImage)
			r.Delete("/api/user/profile-image", s.deleteProfileImage)

			r.Get("/api/documents", s.listDocuments)
			r.Post("/api/documents", s.createDocument)
			r.Post("/api/documents/upload", s.uploadDocument)
			r.Post("/api/documents/import", s.importDocument)
			r.Get("/api/documents/{id}", s.getDocument)
			r.Put("/api/documents/{id}", s.updateDocument)
			r.Delete("/api/documents/{id}", s.deleteDocument)
			r.Post("/api/documents/{id}/enrich", s.enrichDocument)

			r.Get("/api/collections", s.listCollections)
			r.Post("/api/collections", s.createCollection)
			r.Put("/api/collections/{id}", s.updateCollection)
			r.Delete("/api/collections/{id}", s.deleteCollection)
			r.Get("/api/collections/{id}/documents", s.listCollectionDocuments)
			r.Post("/api/collections/{id}/documents/{documentID}", s.addDocumentToCollection)
			r.Delete("/api/collections/{id}/documents/{documentID}", s.removeDocumentFromCollection)
		})
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler reports liveness.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "ScholarVault API",
	})
}

// readinessHandler reports whether the database is reachable.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}

	health := s.deps.Health.Health(r.Context())
	if !health.Healthy() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": health.Status,
	})
}

// noDirListing answers 404 for directory paths instead of listing them.
func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
