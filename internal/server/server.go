package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"github.com/tasktrack/apiserver/config"
	"github.com/tasktrack/apiserver/internal/auth"
	"github.com/tasktrack/apiserver/internal/db"
	"github.com/tasktrack/apiserver/internal/handlers"
	"github.com/tasktrack/apiserver/internal/logging"
	"github.com/tasktrack/apiserver/internal/mq"
	"github.com/tasktrack/apiserver/internal/ratelimit"
	"github.com/tasktrack/apiserver/internal/services"
	"github.com/tasktrack/apiserver/internal/storage"
	"github.com/tasktrack/apiserver/internal/store"
	"github.com/tasktrack/apiserver/internal/store/mongostore"
	"github.com/tasktrack/apiserver/internal/validation"
)

const maxBodyBytes = 10 << 20

// Deps are the collaborators the HTTP router is built from.
type Deps struct {
	Config   config.Config
	Logger   *log.Logger
	Users    services.UserRepository
	Tasks    services.TaskRepository
	Tokens   *auth.TokenManager
	Denylist auth.Denylist

	// Archiver, Events and Limiter are optional.
	Archiver services.Archiver
	Events   services.Publisher
	Limiter  ratelimit.Allower

	// Ping reports store health for /healthz.
	Ping func(context.Context) error
}

// Server wraps the HTTP server and the connections it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	logger     *log.Logger
	closers    []func(context.Context) error
}

// New connects every configured backend and builds the HTTP server.
func New(ctx context.Context, cfg config.Config, logger *log.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{logger: logger}
	deps := Deps{
		Config: cfg,
		Logger: logger,
		Tokens: auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.ExpiresIn),
	}

	if err := s.openStore(ctx, cfg, &deps); err != nil {
		return nil, s.abort(err)
	}

	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s.closers = append(s.closers, func(context.Context) error { return client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable at startup", "addr", cfg.Redis.Addr, "err", err)
		}
		if cfg.JWT.Revocation {
			deps.Denylist = auth.NewRedisDenylist(client)
		}
		if cfg.RateLimit.Enabled {
			deps.Limiter = ratelimit.NewLimiter(client, "ratelimit:")
		}
	}

	archives, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, s.abort(err)
	}
	if archives != nil {
		deps.Archiver = archives
		logger.Info("account archives enabled", "backend", cfg.Storage.Backend, "bucket", archives.Bucket())
	}

	broker, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		return nil, s.abort(err)
	}
	if broker != nil {
		deps.Events = broker
		s.closers = append(s.closers, func(context.Context) error { return broker.Close() })
		logger.Info("domain events enabled", "backend", cfg.MQ.Backend, "channel", cfg.MQ.Channel)
	}

	s.router = NewRouter(deps)
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

func (s *Server) openStore(ctx context.Context, cfg config.Config, deps *Deps) error {
	switch cfg.Database.Driver {
	case config.DriverMongo:
		database, err := db.OpenMongo(ctx, cfg, s.logger)
		if err != nil {
			return err
		}
		client := database.Client()
		s.closers = append(s.closers, client.Disconnect)
		if err := mongostore.EnsureIndexes(ctx, database); err != nil {
			return fmt.Errorf("ensure indexes: %w", err)
		}
		deps.Users = mongostore.NewUserRepository(database)
		deps.Tasks = mongostore.NewTaskRepository(database)
		deps.Ping = func(ctx context.Context) error { return client.Ping(ctx, nil) }
	default:
		conn, err := db.Open(ctx, cfg, s.logger)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, func(context.Context) error { return conn.Close() })
		deps.Users = store.NewUserRepository(conn)
		deps.Tasks = store.NewTaskRepository(conn)
		deps.Ping = conn.PingContext
	}
	s.logger.Info("store connected", "driver", cfg.Database.Driver)
	return nil
}

// abort releases whatever was opened before err and returns err.
func (s *Server) abort(err error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(err, s.close(ctx))
}

// NewRouter wires services and handlers onto a chi router.
func NewRouter(d Deps) *chi.Mux {
	logger := d.Logger
	if logger == nil {
		logger = log.Default()
	}

	events := services.NewEventPublisher(d.Events, d.Config.MQ.Channel, logger)
	authService := services.NewAuthService(d.Users, d.Tokens, d.Denylist)
	userService := services.NewUserService(d.Users, d.Tasks, d.Archiver, events, logger)
	taskService := services.NewTaskService(d.Tasks, events)
	v := validation.New()

	var limit func(http.Handler) http.Handler
	if d.Limiter != nil {
		limit = ratelimit.Middleware(d.Limiter, d.Config.RateLimit.Requests, d.Config.RateLimit.Window, ratelimit.ClientIP, logger)
	}
	requireAuth := handlers.RequireAuth(authService)

	timeout := d.Config.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	origins := d.Config.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(logger),
		middleware.Logger,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		middleware.RequestSize(maxBodyBytes),
		cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders: []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
			MaxAge:         300,
		}),
		handlers.WithStacks(d.Config.IsDev()),
	)
	router.NotFound(handlers.NotFound)
	router.MethodNotAllowed(handlers.MethodNotAllowed)

	router.Get("/", handlers.Root)
	router.Get("/healthz", handlers.Healthz(d.Ping))

	prefix := d.Config.Server.APIPrefix
	if prefix == "" {
		prefix = "/api"
	}
	router.Route(prefix, func(r chi.Router) {
		r.Get("/routes", handlers.RouteCatalogue(prefix))
		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, authService, userService, v, limit)
		})
		r.Route("/tasks", func(r chi.Router) {
			handlers.TaskRouter(r, taskService, v, requireAuth)
		})
		r.Route("/user", func(r chi.Router) {
			handlers.UserRouter(r, userService, v, requireAuth)
		})
	})
	return router
}

// requestLogger stores a logger tagged with the request id in the context.
func requestLogger(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scoped := logger.With("request_id", middleware.GetReqID(r.Context()))
			next.ServeHTTP(w, r.WithContext(logging.WithContext(r.Context(), scoped)))
		})
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then closes every backend connection.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.httpServer != nil {
		errs = append(errs, s.httpServer.Shutdown(ctx))
	}
	errs = append(errs, s.close(ctx))
	return errors.Join(errs...)
}

func (s *Server) close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i](ctx))
	}
	s.closers = nil
	return errors.Join(errs...)
}
