package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"fund-ledger/config"
	"fund-ledger/internal/auth"
	"fund-ledger/internal/cache"
	"fund-ledger/internal/closure"
	"fund-ledger/internal/database"
	"fund-ledger/internal/events"
	"fund-ledger/internal/funding"
	"fund-ledger/internal/logging"
	"fund-ledger/internal/valuation"
	"fund-ledger/internal/vault"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter hands out one token bucket per key
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	every    rate.Limit
	burst    int
}

// NewRateLimiter allows limit requests per window and key
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		every:    rate.Every(window / time.Duration(limit)),
		burst:    limit,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	limiter, ok := r.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(r.every, r.burst)
		r.limiters[key] = limiter
	}
	r.mu.Unlock()
	return limiter.Allow()
}

// Dependencies are the services the API serves
type Dependencies struct {
	Store     database.Ledger
	EventBus  *events.EventBus
	Funding   *funding.Service
	Valuation *valuation.Engine
	Closure   *closure.Engine
	Reporter  *closure.Reporter
	Cache     *cache.CacheService // nil when Redis is disabled
	Vault     *vault.Client       // nil when Vault is disabled
	JWT       *auth.JWTManager    // nil disables authentication
	Currency  string
}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	deps        Dependencies
	authEnabled bool
	hub         *WSHub
	rateLimiter *RateLimiter
	logger      *logging.Logger
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, deps Dependencies) *Server {
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(logging.GinMiddleware())

	// CORS middleware
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = allowedOrigins(cfg.AllowedOrigins)
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Trace-ID"}
	corsConfig.ExposeHeaders = []string{"Content-Length", "X-Trace-ID"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	if deps.Currency == "" {
		deps.Currency = "USD"
	}

	server := &Server{
		router:      router,
		deps:        deps,
		authEnabled: deps.JWT != nil,
		rateLimiter: NewRateLimiter(60, time.Minute), // operator writes per client and route
		logger:      logging.WithComponent("api"),
	}

	// Fan fund events out to websocket clients
	if deps.EventBus != nil {
		server.hub = InitWebSocket(deps.EventBus)
	}

	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  seconds(cfg.ReadTimeout, 15),
		WriteTimeout: seconds(cfg.WriteTimeout, 15),
		IdleTimeout:  60 * time.Second,
	}
	return server
}

func allowedOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"http://localhost:5173"}
	}
	return origins
}

// Router exposes the gin engine, mostly for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	if s.authEnabled {
		return auth.Middleware(s.deps.JWT)
	}
	return auth.Anonymous()
}

// rateLimitMiddleware limits operator writes per client and route
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP() + " " + c.FullPath()
		if !s.rateLimiter.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "RATE_LIMITED",
				"message": "too many requests, please try again later",
			})
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/api/health", s.handleHealth)
	s.router.GET("/ws", s.authMiddleware(), s.handleWebSocket)

	// Read side
	read := s.router.Group("/api", s.authMiddleware())
	{
		read.GET("/funds", s.handleListFunds)
		read.GET("/funds/:id", s.handleGetFund)
		read.GET("/funds/:id/history", s.handleFundHistory)
		read.GET("/funds/:id/positions", s.handleFundPositions)
		read.GET("/funds/:id/allocations", s.handleFundAllocations)
		read.GET("/funds/:id/distribution", s.handleDistributionSummary)
		read.GET("/funds/:id/closure", s.handleClosureSummary)
		read.GET("/funds/:id/rewards", s.handleFundRewards)
		read.GET("/clients/:id/earnings", s.handleClientEarnings)
		read.GET("/referrers/:id/commissions", s.handleReferrerCommissions)
	}

	// Operator actions
	admin := s.router.Group("/api/admin", s.authMiddleware(), auth.RequireAdmin(), s.rateLimitMiddleware())
	{
		admin.POST("/deposits", s.handleRecordDeposit)
		admin.POST("/funds", s.handleCreateFund)
		admin.POST("/funds/:id/revalue", s.handleRevalueFund)
		admin.POST("/funds/:id/close", s.handleCloseFund)
		admin.PATCH("/allocations/:id", s.handleTransitionAllocation)
	}
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "address", s.httpServer.Addr, "auth_enabled", s.authEnabled)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

func seconds(configured, fallback int) time.Duration {
	if configured <= 0 {
		configured = fallback
	}
	return time.Duration(configured) * time.Second
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// handleHealth returns server health status
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := gin.H{"status": "healthy", "database": "ok"}
	healthy := true
	if err := s.deps.Store.HealthCheck(ctx); err != nil {
		healthy = false
		body["database"] = err.Error()
	}
	if s.deps.Cache != nil {
		body["cache"] = s.deps.Cache.GetStats()
	}
	if s.deps.Vault != nil && s.deps.Vault.IsEnabled() {
		if err := s.deps.Vault.Health(ctx); err != nil {
			body["vault"] = err.Error()
		} else {
			body["vault"] = "ok"
		}
	}
	if s.hub != nil {
		body["websocket_clients"] = s.hub.GetClientCount()
	}

	if !healthy {
		body["status"] = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

// createdResponse reports a newly created resource
func createdResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    data,
	})
}
