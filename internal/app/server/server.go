package server

import (
	"context"
	"time"

	"github.com/gatekeylabs/gatekey/internal/app/repository"
	"github.com/gatekeylabs/gatekey/internal/app/service"
	inthttp "github.com/gatekeylabs/gatekey/internal/http/handler"
	"github.com/gatekeylabs/gatekey/internal/http/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Dependencies bundles infrastructure and application dependencies required
// by the HTTP server.
type Dependencies struct {
	Logger    *zap.Logger
	Postgres  *pgxpool.Pool
	Redis     *redis.Client
	NATS      *nats.Conn
	JetStream nats.JetStreamContext

	Links     repository.LinkRepository
	Attempts  repository.AttemptRepository
	Providers repository.ProviderRepository

	Arbiter         *service.GrantArbiter
	Recorder        *service.AttemptPublisher
	Dispatcher      *service.Dispatcher
	LinkService     service.LinkService
	ProviderService service.ProviderService

	AccessRateLimit int
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates a new HTTP server instance with default routes.
func New(deps Dependencies) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerRoutes()
	return s
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerRoutes() {
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Recovery(s.deps.Logger))
	s.app.Use(middleware.Logger(s.deps.Logger))
	s.app.Use(middleware.CORS())

	apiHandler := inthttp.NewAPIHandler(inthttp.APIDeps{
		Logger:          s.deps.Logger,
		LinkService:     s.deps.LinkService,
		ProviderService: s.deps.ProviderService,
		Attempts:        s.deps.Attempts,
	})
	apiHandler.Register(s.app)

	// The public surface sits behind a per-IP rate limit. It registers last
	// because /:code is a catch-all.
	public := s.app.Group("/")
	if s.deps.Redis != nil && s.deps.AccessRateLimit > 0 {
		public.Use(middleware.RateLimit(s.deps.Redis, middleware.RateLimitConfig{
			MaxRequests: s.deps.AccessRateLimit,
			Window:      time.Minute,
			KeyPrefix:   "access",
		}, s.deps.Logger))
	}

	accessHandler := inthttp.NewAccessHandler(inthttp.AccessDeps{
		Logger:     s.deps.Logger,
		Arbiter:    s.deps.Arbiter,
		Recorder:   s.deps.Recorder,
		Dispatcher: s.deps.Dispatcher,
		Links:      s.deps.Links,
	})
	accessHandler.Register(public)
}
