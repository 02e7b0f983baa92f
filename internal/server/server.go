package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/cors"

	"github.com/jackzampolin/hookline/internal/api"
	"github.com/jackzampolin/hookline/internal/config"
	"github.com/jackzampolin/hookline/internal/home"
	"github.com/jackzampolin/hookline/internal/hooks"
	"github.com/jackzampolin/hookline/internal/music"
	"github.com/jackzampolin/hookline/internal/prompts"
	"github.com/jackzampolin/hookline/internal/providers"
	"github.com/jackzampolin/hookline/internal/server/endpoints"
	"github.com/jackzampolin/hookline/internal/social"
	"github.com/jackzampolin/hookline/internal/svcctx"
)

// Server is the main hookline HTTP server.
// It opens the document store on start and closes it on shutdown.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	registry   *providers.Registry
	configMgr  *config.Manager
	home       *home.Dir
	logger     *slog.Logger

	backend prompts.Backend
	social  music.Backend
	store   *prompts.Store

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: server.host from config)
	Host string
	// Port is the port to listen on (default: server.port from config)
	Port string
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Home is the hookline home directory
	Home *home.Dir
	// Backend overrides the document store backend selected by config
	Backend prompts.Backend
	// Social overrides the social data client built from config
	Social music.Backend
	// SwaggerSpecPath serves a generated OpenAPI spec when set
	SwaggerSpecPath string
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.ConfigManager == nil {
		return nil, errors.New("config manager is required")
	}
	appCfg := cfg.ConfigManager.Get()
	if cfg.Host == "" {
		cfg.Host = appCfg.Server.Host
	}
	if cfg.Port == "" {
		cfg.Port = appCfg.Server.Port
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Home == nil {
		h, err := home.New("")
		if err != nil {
			return nil, err
		}
		cfg.Home = h
	}

	// Create provider registry
	registry := providers.NewRegistry()
	registry.SetLogger(cfg.Logger)
	registry.Reload(appCfg.ToProviderRegistryConfig())

	// Watch for config changes
	cfg.ConfigManager.OnChange(func(c *config.Config) {
		registry.Reload(c.ToProviderRegistryConfig())
		cfg.Logger.Info("provider registry reloaded from config")
	})

	s := &Server{
		registry:  registry,
		configMgr: cfg.ConfigManager,
		home:      cfg.Home,
		logger:    cfg.Logger,
		backend:   cfg.Backend,
		social:    cfg.Social,
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{SwaggerSpecPath: cfg.SwaggerSpecPath}) {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	var handler http.Handler = mux
	handler = s.withServices(handler)
	handler = recovery(cfg.Logger)(handler)
	handler = cors.New(cors.Options{
		AllowedOrigins: appCfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept"},
	}).Handler(handler)
	s.handler = handler

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // generation and scans hold the response open
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Init opens the document store and wires the services. Start calls it;
// tests may call it directly and serve Handler().
func (s *Server) Init(ctx context.Context) error {
	if s.services != nil {
		return nil
	}
	cfg := s.configMgr.Get()

	backend := s.backend
	if backend == nil {
		var err error
		backend, err = OpenBackend(cfg.Storage, s.home)
		if err != nil {
			return err
		}
		s.backend = backend
	}
	s.store = prompts.NewStore(backend, s.logger)

	socialBackend := s.social
	if socialBackend == nil {
		socialBackend = social.NewClient(cfg.SocialClientConfig(), s.logger)
	}

	merger := prompts.NewMerger(s.store)
	s.services = &svcctx.Services{
		Store:    s.store,
		Merger:   merger,
		Hooks:    hooks.NewService(merger, s.store, s.registry, cfg.HooksConfig(), s.logger),
		Scanner:  music.NewScanner(socialBackend, s.store, cfg.ScanConfig(), s.logger),
		Registry: s.registry,
		Config:   s.configMgr,
		Logger:   s.logger,
		Home:     s.home,
	}
	s.logger.Info("document store ready", "backend", cfg.Storage.Backend)
	return nil
}

// Start starts the server.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.Init(ctx); err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to open document store: %w", err)
	}

	// Report external edits to filesystem documents
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	if locator, ok := s.backend.(prompts.Locator); ok {
		w, err := prompts.NewWatcher(s.store, locator, s.logger)
		if err != nil {
			s.logger.Warn("document watcher disabled", "error", err)
		} else {
			go w.Run(watchCtx)
		}
	}
	s.store.Subscribe(func(ev prompts.Event) {
		s.logger.Debug("document event", "kind", ev.Kind, "document", ev.Identity.Key(ev.Scope))
	})

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown performs graceful shutdown of the HTTP server and the store.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("document store close error", "error", err)
		}
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Store returns the document store.
// Returns nil if the server hasn't been initialized yet.
func (s *Server) Store() *prompts.Store {
	return s.store
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Registry returns the provider registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable if the document store isn't open.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.services == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
