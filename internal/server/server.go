package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/gkobilansky/moment-meter/internal/engine"
	"github.com/gkobilansky/moment-meter/internal/metrics"
	"github.com/gkobilansky/moment-meter/internal/store"
)

type Options struct {
	Port      int
	TokenFile string
	// Token is generated when empty.
	Token   string
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

type Server struct {
	engine    *engine.Engine
	store     *store.SQLiteStore
	port      int
	token     string
	tokenFile string
	router    chi.Router
	log       *zap.Logger
	metrics   *metrics.Metrics
	startTime time.Time
}

// New builds the HTTP API over e. s is optional and only used for health
// reporting; persistence happens through the engine's subscribers.
func New(e *engine.Engine, s *store.SQLiteStore, opts Options) *Server {
	srv := &Server{
		engine:    e,
		store:     s,
		port:      opts.Port,
		token:     opts.Token,
		tokenFile: opts.TokenFile,
		router:    chi.NewRouter(),
		log:       opts.Logger,
		metrics:   opts.Metrics,
		startTime: time.Now(),
	}
	if srv.token == "" {
		srv.token = generateToken()
	}
	if srv.log == nil {
		srv.log = zap.NewNop()
	}
	if srv.metrics == nil {
		srv.metrics = metrics.New()
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestLogger)

	// Public endpoints
	s.router.Get("/health", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	s.router.Route("/v1", func(r chi.Router) {
		// Ingestion is public, like a tracking beacon
		r.Group(func(r chi.Router) {
			r.Use(cors)
			r.Options("/interactions", noContent)
			r.Options("/outcomes", noContent)
			r.Post("/interactions", s.handleInteractions)
			r.Post("/outcomes", s.handleOutcomes)
		})

		// Queries (protected)
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/moments", s.handleMoments)
			r.Get("/moments/{id}/effectiveness", s.handleEffectiveness)

			r.Get("/funnels", s.handleListFunnels)
			r.Put("/funnels/{id}", s.handleDefineFunnel)
			r.Get("/funnels/{id}", s.handleGetFunnel)
			r.Post("/funnels/{id}/analyze", s.handleAnalyzeFunnel)

			r.Post("/abtests", s.handleSetupTest)
			r.Get("/abtests", s.handleListTests)
			r.Get("/abtests/{id}", s.handleGetTest)
			r.Post("/abtests/{id}/analyze", s.handleAnalyzeTest)

			r.Get("/users/{id}/journey", s.handleJourney)
			r.Get("/users/{id}/personalization", s.handlePersonalization)

			r.Get("/cohorts", s.handleCohorts)
		})
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, printMessages bool) error {
	// Write token to file for OTP command
	if s.tokenFile != "" {
		if err := os.WriteFile(s.tokenFile, []byte(s.token), 0600); err != nil {
			s.log.Warn("failed to write token file", zap.String("path", s.tokenFile), zap.Error(err))
		}
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if printMessages {
		fmt.Println()
		fmt.Printf("moment-meter running on http://localhost:%d\n", s.port)
		fmt.Printf("API token: %s (send as ?token=, cookie, or Authorization: Bearer)\n", s.token)
		fmt.Println()
		fmt.Println("Press Ctrl+C to stop")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) Engine() *engine.Engine {
	return s.engine
}

func (s *Server) StartTime() time.Time {
	return s.startTime
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func generateToken() string {
	bytes := make([]byte, 4)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a simple token if crypto/rand fails
		return "a1b2c3d4"
	}
	return hex.EncodeToString(bytes)
}
