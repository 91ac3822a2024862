package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/pgflex/pgflex/api/handlers"
	"github.com/pgflex/pgflex/api/middleware"
	"github.com/pgflex/pgflex/api/websocket"
	_ "github.com/pgflex/pgflex/docs"
	"github.com/pgflex/pgflex/internal/auth"
	"github.com/pgflex/pgflex/internal/decision"
	"github.com/pgflex/pgflex/internal/metrics"
	"github.com/pgflex/pgflex/pkg/config"
	"github.com/pgflex/pgflex/pkg/database"
	"github.com/pgflex/pgflex/pkg/database/queries"
)

type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	config      config.APIConfig
	db          *database.DB
	authService *auth.Service
	wsHub       *websocket.Hub
	wsBridge    *websocket.EventBridge
	directory   handlers.PoolDirectory
	engine      *decision.Engine
}

func NewServer(
	cfg config.APIConfig,
	wsCfg *config.WebSocketConfig,
	db *database.DB,
	directory handlers.PoolDirectory,
	engine *decision.Engine,
) *Server {
	if cfg.JWTSecret == "" || cfg.JWTSecret == "change-me-in-production" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	jwtDuration := cfg.JWTDuration
	if jwtDuration == 0 {
		jwtDuration = 24 * time.Hour
	}

	router := gin.New()
	authService := auth.NewService(cfg.JWTSecret, jwtDuration)
	wsHub := websocket.NewHub(wsCfg)

	s := &Server{
		router:      router,
		config:      cfg,
		db:          db,
		authService: authService,
		wsHub:       wsHub,
		directory:   directory,
		engine:      engine,
	}

	s.setupMiddleware()
	s.setupRoutes()

	// Start WebSocket hub
	go wsHub.Run()

	// Start event bridge to forward controller events to WebSocket clients
	if directory != nil {
		eventsChan := directory.SubscribeAllEvents()
		s.wsBridge = websocket.NewEventBridge(wsHub, eventsChan)
		s.wsBridge.Start()
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.SecurityHeaders())
	s.router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	s.router.Use(middleware.RequestLogger())
	s.router.Use(middleware.TraceID())
	s.router.Use(middleware.RequestSizeLimit(1 << 20))

	rateLimiter := middleware.NewRateLimiter(s.config.RateLimit, time.Minute)
	s.router.Use(middleware.RateLimit(rateLimiter))
}

func (s *Server) setupRoutes() {
	// Repositories. The database is optional: demo deployments run without
	// Postgres and lose the decision log, scale-event history and login.
	var (
		decisionRepo *queries.DecisionRepository
		eventsRepo   *queries.ScaleEventRepository
	)
	if s.db != nil {
		decisionRepo = queries.NewDecisionRepository(s.db.DB)
		eventsRepo = queries.NewScaleEventRepository(s.db.DB)
	}

	// Handlers
	healthHandler := handlers.NewHealthHandler(s.db)
	poolHandler := handlers.NewPoolHandler(s.directory, s.engine, decisionRepo, eventsRepo)

	// Public routes
	s.router.GET("/health", healthHandler.Health)
	s.router.GET("/health/ready", healthHandler.Ready)
	s.router.GET("/health/live", healthHandler.Live)

	// WebSocket route
	s.router.GET("/ws", websocket.ServeWebSocket(s.wsHub))

	// Swagger and metrics
	s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	s.router.GET("/metrics", gin.WrapH(metrics.Get().Handler()))

	protected := s.router.Group("/")
	if s.db != nil {
		userRepo := queries.NewUserRepository(s.db.DB)
		authHandler := handlers.NewAuthHandler(userRepo, s.authService)
		s.router.POST("/auth/login", middleware.AuthRateLimiter(), authHandler.Login)
		protected.Use(middleware.JWTAuth(s.authService))
	}
	{
		// Pools
		protected.GET("/pools", poolHandler.List)
		protected.GET("/pools/:id/status", poolHandler.GetStatus)
		protected.GET("/pools/:id/units", poolHandler.GetUnits)

		// Decision log
		protected.GET("/pools/:id/decisions", poolHandler.GetDecisions)
		protected.GET("/decisions/recent", poolHandler.GetRecentDecisions)

		// Scale events
		protected.GET("/pools/:id/events", poolHandler.GetScaleEvents)
		protected.GET("/pools/:id/events/stats", poolHandler.GetScaleStats)
		protected.GET("/events/recent", poolHandler.GetRecentScaleEvents)
	}
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Stop the event bridge first
	if s.wsBridge != nil {
		s.wsBridge.Stop()
	}

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) WebSocketHub() *websocket.Hub {
	return s.wsHub
}
