// Package api assembles the services and exposes them over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/openshelf/openshelf/internal/catalog"
	"github.com/openshelf/openshelf/internal/config"
	"github.com/openshelf/openshelf/internal/download"
	"github.com/openshelf/openshelf/internal/fetch"
	"github.com/openshelf/openshelf/internal/history"
	"github.com/openshelf/openshelf/internal/mirror"
	"github.com/openshelf/openshelf/internal/resolver"
	"github.com/openshelf/openshelf/internal/scheduler"
	"github.com/openshelf/openshelf/internal/search"
	"github.com/openshelf/openshelf/internal/websocket"
)

// Server handles HTTP requests for the OpenShelf API.
type Server struct {
	echo   *echo.Echo
	hub    *websocket.Hub
	logger zerolog.Logger
	cfg    *config.Config

	startedAt time.Time

	// Services
	fetchClient     *fetch.Client
	mirrorManager   *mirror.Manager
	resolverService *resolver.Resolver
	downloadService *download.Service
	searchService   *search.Service
	historyStore    *history.Store
	taskScheduler   *scheduler.Scheduler
}

// NewServer creates a new API server instance and wires the service graph.
func NewServer(cfg *config.Config, hub *websocket.Hub, logger zerolog.Logger) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		hub:       hub,
		logger:    logger,
		cfg:       cfg,
		startedAt: time.Now(),
	}

	s.fetchClient = fetch.NewClient(fetch.Config{
		Timeout:     cfg.Fetch.Timeout,
		Retries:     cfg.Fetch.Retries,
		MaxInFlight: cfg.Fetch.MaxInFlight,
		Cache: fetch.CacheConfig{
			TTL:      cfg.Fetch.CacheTTL,
			MaxItems: cfg.Fetch.CacheMaxItems,
		},
	}, logger)

	bases := cfg.Mirrors.Bases
	if len(bases) == 0 {
		defaults, err := mirror.DefaultMirrors()
		if err != nil {
			return nil, err
		}
		bases = defaults
	}
	s.mirrorManager = mirror.NewManager(bases, s.fetchClient, logger)

	enricher := catalog.NewBooksAPIClient(cfg.Enrich.BaseURL, s.fetchClient, logger)
	aggregator := catalog.NewAggregator(catalog.AggregatorConfig{
		PoolWidth:     cfg.Enrich.Concurrency,
		SecondaryHost: cfg.Mirrors.SecondaryHost,
		ArchiveHost:   cfg.Mirrors.ArchiveHost,
	}, enricher, logger)

	s.resolverService = resolver.NewResolver(resolver.Config{
		SecondaryHost: cfg.Mirrors.SecondaryHost,
		ArchiveHost:   cfg.Mirrors.ArchiveHost,
	}, s.fetchClient, s.mirrorManager, logger)

	historyStore, err := history.NewStore(cfg.History.Path, logger)
	if err != nil {
		return nil, err
	}
	s.historyStore = historyStore

	s.downloadService = download.NewService(download.Config{
		Dir:         cfg.Download.Dir,
		ArchiveHost: cfg.Mirrors.ArchiveHost,
	}, s.resolverService, s.fetchClient, hub, historyStore, logger)

	hub.SetCancelHandler(s.downloadService.Cancel)

	s.searchService = search.NewService(search.Config{
		SearchPath:  cfg.Mirrors.SearchPath,
		DOIBaseURL:  cfg.Enrich.DOIBaseURL,
		ArchiveHost: cfg.Mirrors.ArchiveHost,
	}, s.mirrorManager, aggregator, s.fetchClient, logger)

	taskScheduler, err := scheduler.New(logger)
	if err != nil {
		return nil, err
	}
	s.taskScheduler = taskScheduler
	for _, task := range []scheduler.TaskConfig{
		scheduler.MirrorProbeTask(s.mirrorManager),
		scheduler.CacheSweepTask(s.fetchClient.Cache()),
		scheduler.HistoryPurgeTask(historyStore, cfg.History.Retention),
	} {
		if err := taskScheduler.RegisterTask(task); err != nil {
			return nil, err
		}
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())

	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Info().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))

	s.echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			return c.Request().Header.Get("Upgrade") == "websocket"
		},
	}))
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/ws", s.hub.HandleWebSocket)

	api := s.echo.Group("/api/v1")
	api.GET("/status", s.getStatus)

	searchHandlers := search.NewHandlers(s.searchService, s.hub)
	searchHandlers.RegisterRoutes(api.Group("/search"))

	downloadHandlers := download.NewHandlers(s.downloadService)
	downloadHandlers.RegisterRoutes(api.Group("/downloads"))

	mirrorHandlers := mirror.NewHandlers(s.mirrorManager, s.hub)
	mirrorHandlers.RegisterRoutes(api.Group("/mirrors"))

	historyHandlers := history.NewHandlers(s.historyStore)
	historyHandlers.RegisterRoutes(api.Group("/history"))

	api.GET("/tasks", s.listTasks)
	api.POST("/tasks/:id/run", s.runTask)
}

// Start begins listening for HTTP requests and starts background tasks.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("starting HTTP server")

	if err := s.taskScheduler.Start(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to start scheduler")
	}

	return s.echo.Start(address)
}

// Shutdown gracefully stops the server and its background tasks.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")

	if err := s.taskScheduler.Stop(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to stop scheduler")
	}
	if err := s.historyStore.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to close history store")
	}

	return s.echo.Shutdown(ctx)
}

// Echo returns the underlying Echo instance (for serving static files).
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getStatus(c echo.Context) error {
	mirrors := s.mirrorManager.GetStatus()

	return c.JSON(http.StatusOK, map[string]interface{}{
		"version":       "0.1.0-dev",
		"startTime":     s.startedAt.Format(time.RFC3339),
		"currentMirror": mirrors.Current,
		"mirrorCount":   len(mirrors.Mirrors),
		"downloads":     len(s.downloadService.List()),
		"wsClients":     s.hub.ClientCount(),
	})
}

func (s *Server) listTasks(c echo.Context) error {
	return c.JSON(http.StatusOK, s.taskScheduler.ListTasks())
}

func (s *Server) runTask(c echo.Context) error {
	if err := s.taskScheduler.RunNow(c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "started"})
}
