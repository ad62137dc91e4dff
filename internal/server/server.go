// Package server provides the HTTP API for umekomi.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/umekomi/internal/config"
	"github.com/hyperjump/umekomi/internal/embedding"
	"github.com/hyperjump/umekomi/internal/source"
)

// Server is the HTTP server for the embedding API. The embedder and resolver
// are constructed once at startup and shared read-only by all requests.
type Server struct {
	embedder embedding.Embedder
	resolver *source.Resolver
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies. A nil resolver
// gets a default one.
func NewServer(
	embedder embedding.Embedder,
	resolver *source.Resolver,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	if resolver == nil {
		resolver = source.NewResolver(nil)
	}
	return &Server{
		embedder: embedder,
		resolver: resolver,
		config:   cfg,
		logger:   logger,
	}
}

// Router builds the chi router with all routes and middleware.
// No request timeout is installed: a slow fetch or forward pass blocks its
// own request only.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Post("/embed", s.handleEmbedImage)
	r.Post("/embed_text", s.handleEmbedText)
	r.Get("/health", s.handleHealth)
	r.Get("/api/v1/status", s.handleStatus)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server",
		zap.String("addr", addr),
		zap.String("model", s.config.ModelName),
		zap.Int("dimensions", s.embedder.Dimensions()),
		zap.String("backend", s.embedder.Backend()),
	)
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

type contextKey string

const requestIDKey contextKey = "request_id"

// requestID assigns each request a UUID, echoed in the X-Request-ID header
// and available to handlers for log correlation.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// reqID returns the request ID from ctx, or "" when the middleware did not run.
func reqID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
