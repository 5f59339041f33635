// Package httpapi is the engine's control surface: load/unload/switch,
// batched generation, status and hardware introspection, the SSE event
// stream and Prometheus metrics. It holds no engine state of its own;
// everything routes through the router, the batch processor and the
// registry.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"inferd/internal/backend"
	"inferd/internal/batch"
	"inferd/internal/events"
	"inferd/internal/router"
)

// Config tunes the HTTP layer.
type Config struct {
	// MaxBodyBytes caps JSON request bodies. Defaults to 1 MiB.
	MaxBodyBytes int64
	// ResultWait is the default wait in GET /results/{id} when the request
	// carries no timeout. Defaults to 30s.
	ResultWait time.Duration
	// CORSOrigins enables CORS for the listed origins; empty disables the
	// middleware entirely.
	CORSOrigins []string
}

func (c Config) withDefaults() Config {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.ResultWait <= 0 {
		c.ResultWait = 30 * time.Second
	}
	return c
}

// Deps are the engine components the handlers call into.
type Deps struct {
	Router   *router.Router
	Batch    *batch.Processor
	Registry *backend.Registry
	// Events feeds the SSE stream; nil disables /events.
	Events *events.Fanout
	// ModelsDir is scanned by GET /models.
	ModelsDir string
}

// Server carries the handler set.
type Server struct {
	cfg       Config
	rt        *router.Router
	batch     *batch.Processor
	reg       *backend.Registry
	fanout    *events.Fanout
	modelsDir string
	log       zerolog.Logger
	startedAt time.Time
}

// New builds the HTTP layer.
func New(cfg Config, deps Deps, log zerolog.Logger) *Server {
	return &Server{
		cfg:       cfg.withDefaults(),
		rt:        deps.Router,
		batch:     deps.Batch,
		reg:       deps.Registry,
		fanout:    deps.Events,
		modelsDir: deps.ModelsDir,
		log:       log.With().Str("component", "http").Logger(),
		startedAt: time.Now(),
	}
}

// Routes assembles the chi router with the full middleware stack.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, req)
		})
	})
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}
	r.Use(MetricsMiddleware)
	r.Use(s.accessLog)

	r.Post("/load", s.handleLoad)
	r.Post("/unload", s.handleUnload)
	r.Post("/switch", s.handleSwitch)
	r.Post("/generate", s.handleGenerate)
	r.Get("/results/{id}", s.handleResult)
	r.Delete("/requests/{id}", s.handleCancel)
	r.Get("/status", s.handleStatus)
	r.Get("/hardware", s.handleHardware)
	r.Get("/recommendation", s.handleRecommendation)
	r.Get("/models", s.handleModels)
	if s.fanout != nil {
		r.Get("/events", s.handleEvents)
	}

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)

	return r
}

// accessLog writes one structured line per request. Probe and scrape paths
// drop to debug so steady-state logs stay readable.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sr, r)

		ev := s.log.Info()
		switch r.URL.Path {
		case "/healthz", "/readyz", "/metrics":
			ev = s.log.Debug()
		}
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			ev = ev.Str("request_id", rid)
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sr.status).
			Dur("dur", time.Since(start)).
			Msg("request")
	})
}
