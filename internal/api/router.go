// Package api exposes the eager loader over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eagerload/internal/eager"
	"eagerload/internal/relation"
	"eagerload/pkg/fastjson"
	"eagerload/pkg/logger"
	"eagerload/pkg/metrics"
	"eagerload/pkg/middleware"
)

const defaultMaxIDs = 1000

type Options struct {
	JWTSecret         string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	AllowedOrigins    []string
	BlockedIPs        []string
	Compress          bool
	MaxIDs            int
}

// Service is what the handlers need: the engine, the schema it resolves
// against, the store roots are read from and an optional health probe.
type Service struct {
	Engine *eager.Engine
	Schema *relation.Schema
	Exec   eager.Executor
	Ping   func(ctx context.Context) error
}

type LoadRequest struct {
	Type string        `json:"type"`
	Key  string        `json:"key,omitempty"`
	IDs  []interface{} `json:"ids"`
	With WithSpec      `json:"with"`
}

type LoadResponse struct {
	Type  string         `json:"type"`
	Count int            `json:"count"`
	Data  []eager.Entity `json:"data"`
}

type errorResponse struct {
	Error string `json:"error"`
	Alias string `json:"alias,omitempty"`
	Field string `json:"field,omitempty"`
}

func NewRouter(svc *Service, opts Options) *chi.Mux {
	if opts.MaxIDs <= 0 {
		opts.MaxIDs = defaultMaxIDs
	}

	r := chi.NewRouter()
	r.Use(logger.Middleware)
	r.Use(metrics.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SecurityHeaders)
	if len(opts.BlockedIPs) > 0 {
		r.Use(middleware.IPBlocker(middleware.NewIPBlockList(opts.BlockedIPs)))
	}

	if opts.RateLimitRequests > 0 {
		window := opts.RateLimitWindow
		if window <= 0 {
			window = time.Minute
		}
		r.Use(httprate.LimitByIP(opts.RateLimitRequests, window))
	} else {
		logger.Log.Info("rate limiting disabled (RATE_LIMIT_REQUESTS not set)")
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if svc.Ping != nil {
			if err := svc.Ping(req.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte("DOWN: Database Error"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		if opts.JWTSecret != "" {
			r.Use(middleware.BearerAuth(opts.JWTSecret))
		}
		if opts.Compress {
			r.Use(middleware.Brotli)
		}
		r.Get("/schema", svc.handleSchema)
		r.Post("/load", svc.handleLoad(opts.MaxIDs))
	})

	return r
}

func (s *Service) handleSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Schema)
}

func (s *Service) handleLoad(maxIDs int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoadRequest
		if err := fastjson.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
			return
		}
		if req.Type == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "type is required"})
			return
		}
		if !identRe.MatchString(req.Type) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid type"})
			return
		}
		if s.Schema == nil || !s.Schema.HasType(req.Type) {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "unknown type " + req.Type})
			return
		}
		if len(req.IDs) == 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "ids are required"})
			return
		}
		if len(req.IDs) > maxIDs {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "too many ids"})
			return
		}
		if req.Key == "" {
			req.Key = "id"
		}
		if !identRe.MatchString(req.Key) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid key column"})
			return
		}
		if err := req.With.Validate(); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}

		q := s.Exec.Query(req.Type)
		q.WhereIn(req.Key, req.IDs)
		roots, err := q.Fetch(r.Context())
		if err != nil {
			logger.Log.Error("load roots failed", "type", req.Type, "error", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to load " + req.Type})
			return
		}

		if len(req.With) > 0 {
			if _, err := s.Engine.Load(r.Context(), eager.Many(roots), req.Type, req.With.Relations()); err != nil {
				writeLoadError(w, err)
				return
			}
		}

		if roots == nil {
			roots = []eager.Entity{}
		}
		writeJSON(w, http.StatusOK, LoadResponse{Type: req.Type, Count: len(roots), Data: roots})
	}
}

func writeLoadError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	var le *eager.LoadError
	if errors.As(err, &le) {
		resp.Alias = le.Alias
		resp.Field = le.Field
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, eager.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, eager.ErrRelationNotFound),
		errors.Is(err, eager.ErrUnsupportedRelation),
		errors.Is(err, eager.ErrCompositeKey):
		status = http.StatusUnprocessableEntity
	default:
		logger.Log.Error("eager load failed", "error", err)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := fastjson.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Error("encode response", "error", err)
	}
}
