// Package server is the HTTP surface of the launch gateway: the exchange
// endpoint, the scope-gated ingestion endpoints, the key set, and metrics.
package server

import (
	"net/http"

	"github.com/coursebridge/launchgate/launch"
	"github.com/coursebridge/launchgate/outcomes"
	"github.com/coursebridge/launchgate/runtimeauth"
	"github.com/coursebridge/launchgate/token"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server routes API traffic to the exchange and ingestion components.
type Server struct {
	router     chi.Router
	exchanger  *launch.Exchanger
	authorizer *runtimeauth.Authorizer
	outcomes   *outcomes.Service
	jwksSigner *token.KeyPairSigner
	metrics    prometheus.Gatherer
	logger     zerolog.Logger
}

// ServerOption modifies a Server.
type ServerOption func(*Server)

// WithJWKSSigner publishes the runtime token's public key set at the
// well-known endpoint. Only meaningful for asymmetric runtime signers.
func WithJWKSSigner(signer *token.KeyPairSigner) ServerOption {
	return func(s *Server) { s.jwksSigner = signer }
}

// WithMetrics exposes the gatherer at /metrics.
func WithMetrics(g prometheus.Gatherer) ServerOption {
	return func(s *Server) { s.metrics = g }
}

// WithServerLogger sets the component logger.
func WithServerLogger(logger zerolog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// New wires the HTTP surface.
func New(exchanger *launch.Exchanger, authorizer *runtimeauth.Authorizer, svc *outcomes.Service, options ...ServerOption) (*Server, error) {
	if exchanger == nil {
		return nil, errors.New("[server.New] exchanger is required")
	}
	if authorizer == nil {
		return nil, errors.New("[server.New] authorizer is required")
	}
	if svc == nil {
		return nil, errors.New("[server.New] outcomes service is required")
	}

	s := &Server{
		exchanger:  exchanger,
		authorizer: authorizer,
		outcomes:   svc,
		logger:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	s.initRoutes()
	return s, nil
}

func (s *Server) initRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.HealthHandler())
	r.Post("/v1/launch/exchange", s.ExchangeHandler())

	// Authentication happens here; each operation enforces its own scope so
	// a valid token with the wrong grant gets Forbidden, not Unauthenticated.
	r.Group(func(r chi.Router) {
		r.Use(s.authorizer.RequireToken(s.writeError))
		r.Post("/v1/progress", s.ProgressHandler())
		r.Post("/v1/attempts", s.AttemptsHandler())
		r.Post("/v1/events", s.EventsHandler())
		r.Post("/v1/checkpoint", s.CheckpointSaveHandler())
		r.Get("/v1/checkpoint", s.CheckpointLoadHandler())
		r.Get("/v1/assets/url", s.AssetURLHandler())
	})

	if s.jwksSigner != nil {
		r.Get("/.well-known/jwks.json", s.JWKSHandler())
	}
	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
	}

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}
