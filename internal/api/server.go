package api

import (
	"log/slog"
	"net/http"

	"github.com/dgallion1/talkturns/internal/config"
	"github.com/dgallion1/talkturns/internal/metrics"
	"github.com/dgallion1/talkturns/internal/pipeline"
	"github.com/dgallion1/talkturns/internal/sink"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP API server for talkturns.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	metrics      *metrics.Metrics
	store        *sink.Pathstore // nil when no pathstore is configured
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server. m and store may be nil.
func NewServer(orch *pipeline.Orchestrator, m *metrics.Metrics, store *sink.Pathstore, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		metrics:      m,
		store:        store,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Get("/api/languages", s.handleLanguages)
		r.Post("/api/segment", s.handleSegment)

		r.Post("/api/jobs", s.handleSubmitJob)
		r.Get("/api/jobs/{jobID}/status", s.handleJobStatus)
		r.Get("/api/stats/segment", s.handleSegmentStats)

		r.Get("/api/turns/{lang}/{pageID}", s.handleGetPageTurns)
		r.Delete("/api/turns/{lang}", s.handleResetLanguage)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
