package http

import (
	stdhttp "net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"markwiki/app/internal/wiki"
)

// Options configures the HTTP server wiring.
type Options struct {
	Store          *wiki.Store
	Renderer       *wiki.Renderer
	Database       *gorm.DB
	Logger         *logrus.Logger
	SentryHub      *sentry.Hub
	HomePageName   string
	MaxUploadBytes int64
	RateLimiter    RateLimiterSettings
}

// RateLimiterSettings configures the HTTP rate limiter behaviour.
type RateLimiterSettings struct {
	RequestsPerSecond float64
	Burst             int
	ClientTTL         time.Duration
}

// Server wires the HTTP transport layer via Huma and templ components.
type Server struct {
	api         huma.API
	mux         *stdhttp.ServeMux
	store       *wiki.Store
	renderer    *wiki.Renderer
	logger      *logrus.Logger
	sentry      *sentry.Hub
	db          *gorm.DB
	homePage    string
	maxUpload   int64
	rateLimiter *RateLimiter
}

// NewServer constructs the HTTP server.
func NewServer(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, eris.New("wiki store is required")
	}
	if opts.Renderer == nil {
		return nil, eris.New("renderer is required")
	}
	if opts.Database == nil {
		return nil, eris.New("database is required")
	}
	if opts.HomePageName == "" {
		return nil, eris.New("home page name is required")
	}
	if opts.MaxUploadBytes <= 0 {
		return nil, eris.New("max upload bytes must be greater than zero")
	}

	mux := stdhttp.NewServeMux()
	config := huma.DefaultConfig("Markwiki", "1.0.0")

	api := humago.New(mux, config)

	srv := &Server{
		api:       api,
		mux:       mux,
		store:     opts.Store,
		renderer:  opts.Renderer,
		logger:    opts.Logger,
		sentry:    opts.SentryHub,
		db:        opts.Database,
		homePage:  opts.HomePageName,
		maxUpload: opts.MaxUploadBytes,
	}

	settings := opts.RateLimiter
	if settings.Burst <= 0 {
		return nil, eris.New("rate limiter burst must be greater than zero")
	}
	if settings.RequestsPerSecond <= 0 {
		return nil, eris.New("rate limiter requests per second must be greater than zero")
	}
	if settings.ClientTTL <= 0 {
		return nil, eris.New("rate limiter client TTL must be greater than zero")
	}

	srv.rateLimiter = NewRateLimiter(settings.Burst, settings.RequestsPerSecond, settings.ClientTTL)

	srv.registerMiddlewares()
	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the underlying HTTP handler for wiring into the application.
func (s *Server) Handler() stdhttp.Handler {
	return s.mux
}

// API exposes the underlying Huma API instance.
func (s *Server) API() huma.API {
	return s.api
}

func (s *Server) registerMiddlewares() {
	s.api.UseMiddleware(
		s.sentryMiddleware(),
		s.recoveryMiddleware(),
		s.requestIDMiddleware(),
		s.rateLimitMiddleware(),
		s.loggingMiddleware(),
	)
}

func (s *Server) registerRoutes() {
	s.registerHomeRoute()
	s.registerPageListRoute()
	s.registerPageViewRoute()
	s.registerPageEditRoute()
	s.registerPageSaveRoute()
	s.registerPageDeleteRoute()
	s.registerAttachmentDeleteRoute()
	s.registerFileRoute()
	s.registerHealthRoute()
}

func (s *Server) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	s.mux.ServeHTTP(w, r)
}
