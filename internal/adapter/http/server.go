// Package adapthttp implements the HTTP adapter for the application.
package adapthttp

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"hydration/internal/app"
)

// Server is the driving HTTP adapter that routes requests to the water
// service.
type Server struct {
	water          *app.WaterService
	logger         *slog.Logger
	webDir         string
	passwordHash   []byte
	allowedOrigins []string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the access and error logger.
func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.logger = l } }

// WithPasswordHash requires HTTP basic auth whose password matches the bcrypt
// hash. An empty hash leaves the API open.
func WithPasswordHash(hash string) Option {
	return func(s *Server) {
		if hash != "" {
			s.passwordHash = []byte(hash)
		}
	}
}

// WithAllowedOrigins enables CORS for the given origins.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.allowedOrigins = origins }
}

// New creates a Server wired to the water service. The series endpoints
// serve whatever the service's current series subscription publishes.
func New(water *app.WaterService, webDir string, opts ...Option) *Server {
	s := &Server{water: water, webDir: webDir}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

// Handler returns the root http.Handler for the application.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	if len(s.allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.allowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
		}))
	}
	r.Use(withNoCache)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		})

		r.Route("/water", func(r chi.Router) {
			r.Use(s.basicAuth)
			r.Get("/status", s.handleWaterStatus)
			r.Post("/authorize", s.handleWaterAuthorize)
			r.Get("/today", s.handleWaterToday)
			r.Post("/event", s.handleWaterEvent)
			r.Get("/week", s.handleWaterWeek)
			r.Get("/week/stream", s.handleWaterWeekStream)
		})
	})

	if s.webDir != "" {
		r.Handle("/*", spaFromDisk(s.webDir))
	}
	return r
}
