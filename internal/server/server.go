package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shamanic-technologies/reply-qualification-service/internal/keyvault"
	"github.com/shamanic-technologies/reply-qualification-service/internal/llm"
	"github.com/shamanic-technologies/reply-qualification-service/internal/otel"
	"github.com/shamanic-technologies/reply-qualification-service/internal/qualify"
	"github.com/shamanic-technologies/reply-qualification-service/internal/runs"
	"github.com/shamanic-technologies/reply-qualification-service/internal/store"
)

const defaultTimeout = 60 * time.Second

// Server holds all dependencies for the HTTP API.
type Server struct {
	router      *chi.Mux
	store       *store.Store
	resolver    *keyvault.Resolver
	invoker     *qualify.Invoker
	recorder    *runs.Recorder
	providers   *llm.ProviderCache
	newProvider func(providerName, apiKey string) (llm.Provider, error)
	apiKeys     map[string]string
	corsOrigins []string
	rateLimiter *RateLimiter
	startTime   time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithCORSOrigins sets allowed CORS origins (e.g. ["*"]).
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithRateLimiter sets the per-org rate limiter (optional).
func WithRateLimiter(rl *RateLimiter) Option {
	return func(s *Server) { s.rateLimiter = rl }
}

// WithProviderFactory overrides how upstream providers are constructed,
// for both the memoized platform tier and per-request tiers.
func WithProviderFactory(f func(providerName, apiKey string) (llm.Provider, error)) Option {
	return func(s *Server) {
		s.newProvider = f
		s.providers.New = f
	}
}

// NewServer builds a Server with the required dependencies and optional
// Option(s). apiKeys maps inbound service key -> source service name.
func NewServer(
	st *store.Store,
	resolver *keyvault.Resolver,
	invoker *qualify.Invoker,
	recorder *runs.Recorder,
	apiKeys map[string]string,
	opts ...Option,
) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		store:       st,
		resolver:    resolver,
		invoker:     invoker,
		recorder:    recorder,
		providers:   &llm.ProviderCache{},
		newProvider: llm.NewProviderWithKey,
		apiKeys:     apiKeys,
		corsOrigins: []string{"*"},
		startTime:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.apiKeys == nil {
		s.apiKeys = make(map[string]string)
	}
	return s
}

// Routes returns the configured http.Handler.
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(otel.Middleware())
	r.Use(CORSMiddleware(s.corsOrigins))

	// Unauthenticated
	r.Get("/health", s.handleHealth)
	r.Get("/v1/health", s.handleHealth)

	// Authenticated API group
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.apiKeys))
		r.Use(RateLimitMiddleware(s.rateLimiter))

		// Qualification issues up to three upstream round trips; no chi
		// timeout here so the LLM-call deadline governs.
		r.Post("/v1/qualify", s.handleQualify)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(defaultTimeout))
			r.Get("/v1/qualifications", s.handleQualificationsList)
			r.Get("/v1/qualifications/{id}", s.handleQualificationGet)
			r.Get("/v1/stats", s.handleStats)
		})
	})

	return r
}
