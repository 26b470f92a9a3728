// Package api exposes a management surface over a running client:
// health, Prometheus metrics, pool/routing/queue/lock stats, and
// hot-reload config distribution through the Redis config store. Besides
// the read routes it has two that change state: PUT /config (saves a new
// config to Redis) and POST /queues/:name/bulk_finish.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clusterkit/clusterkit/internal/config"
	"github.com/clusterkit/clusterkit/internal/lock"
	"github.com/clusterkit/clusterkit/internal/logger"
	"github.com/clusterkit/clusterkit/internal/metrics"
	"github.com/clusterkit/clusterkit/internal/pool"
	"github.com/clusterkit/clusterkit/internal/queue"
	"github.com/clusterkit/clusterkit/internal/routing"
)

// Server is the management API server.
type Server struct {
	router      *gin.Engine
	config      *config.APIConfig
	configStore *config.RedisStore

	pool    *pool.Pool
	routers map[string]*routing.Router
	queues  map[string]*queue.Queue
	locks   map[string]*lock.Manager

	httpServer *http.Server
}

// NewServer builds a management API server. configStore, and any of the
// component maps, may be nil if that concern isn't wired up in the
// running process.
func NewServer(cfg *config.APIConfig, configStore *config.RedisStore, p *pool.Pool, routers map[string]*routing.Router, queues map[string]*queue.Queue, locks map[string]*lock.Manager) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.Default()

	server := &Server{
		router:      router,
		config:      cfg,
		configStore: configStore,
		pool:        p,
		routers:     routers,
		queues:      queues,
		locks:       locks,
	}

	server.setupRoutes()

	return server
}

func (s *Server) setupRoutes() {
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	v1.Use(s.authMiddleware())
	v1.Use(s.metricsMiddleware())
	v1.Use(s.loggingMiddleware())
	{
		v1.GET("/config", s.handleGetConfig)
		v1.PUT("/config", s.handleUpdateConfig)
		v1.POST("/config/reload", s.handleReloadConfig)

		v1.GET("/pool/stats", s.handlePoolStats)

		v1.GET("/routing/:name/stats", s.handleRoutingStats)

		v1.GET("/queues", s.handleListQueues)
		v1.GET("/queues/:name/stats", s.handleQueueStats)
		v1.GET("/queues/:name/size", s.handleQueueSize)
		v1.POST("/queues/:name/bulk_finish", s.handleQueueBulkFinish)

		v1.GET("/locks", s.handleListLocks)
		v1.GET("/locks/:name", s.handleLockStatus)
	}
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("Authorization")

		if apiKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing Authorization header"})
			c.Abort()
			return
		}

		if len(apiKey) > 7 && apiKey[:7] == "Bearer " {
			apiKey = apiKey[7:]
		}

		if apiKey != s.config.APIKey {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			c.Abort()
			return
		}

		c.Next()
	}
}

func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := fmt.Sprintf("%d", c.Writer.Status())
		route := c.FullPath()
		metrics.RecordAPIRequest(route, c.Request.Method, status)
		metrics.RecordAPIRequestDuration(route, duration)
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method

		if raw != "" {
			path = path + "?" + raw
		}

		fields := []any{
			"status", status,
			"method", method,
			"path", path,
			"ip", clientIP,
			"latency", duration,
			"user_agent", c.Request.UserAgent(),
		}

		switch {
		case status >= 500:
			logger.Error("API request", fields...)
		case status >= 400:
			logger.Warn("API request", fields...)
		default:
			logger.Info("API request", fields...)
		}
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	health := gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	}

	if s.configStore != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := s.configStore.Health(ctx); err != nil {
			health["redis"] = "unhealthy"
			health["status"] = "degraded"
		} else {
			health["redis"] = "healthy"
		}
	}

	if s.pool != nil {
		health["pool_size"] = s.pool.Size()
	}

	c.JSON(http.StatusOK, health)
}

func (s *Server) handleGetConfig(c *gin.Context) {
	if s.configStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "config distribution is not enabled"})
		return
	}

	cfg, err := s.configStore.LoadConfig(context.Background())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to load config: %v", err)})
		return
	}

	c.JSON(http.StatusOK, cfg)
}

func (s *Server) handleUpdateConfig(c *gin.Context) {
	if s.configStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "config distribution is not enabled"})
		return
	}

	var newConfig config.Config
	if err := c.ShouldBindJSON(&newConfig); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid config format: %v", err)})
		return
	}

	if err := newConfig.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("configuration validation failed: %v", err)})
		return
	}

	if err := s.configStore.SaveConfig(context.Background(), &newConfig); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to save config: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "configuration updated", "timestamp": time.Now().Unix()})
}

func (s *Server) handleReloadConfig(c *gin.Context) {
	if s.configStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "config distribution is not enabled"})
		return
	}

	if err := s.configStore.PublishReload(context.Background()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to publish reload: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "reload notification published", "timestamp": time.Now().Unix()})
}

func (s *Server) handlePoolStats(c *gin.Context) {
	if s.pool == nil {
		c.JSON(http.StatusOK, gin.H{"size": 0})
		return
	}
	c.JSON(http.StatusOK, gin.H{"size": s.pool.Size()})
}

func (s *Server) handleRoutingStats(c *gin.Context) {
	name := c.Param("name")
	r, ok := s.routers[name]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no routing pool named %q", name)})
		return
	}
	c.JSON(http.StatusOK, r.Stats())
}

func (s *Server) handleListQueues(c *gin.Context) {
	names := make([]string, 0, len(s.queues))
	for name := range s.queues {
		names = append(names, name)
	}
	c.JSON(http.StatusOK, gin.H{"queues": names})
}

func (s *Server) handleQueueStats(c *gin.Context) {
	name := c.Param("name")
	q, ok := s.queues[name]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no queue named %q", name)})
		return
	}
	c.JSON(http.StatusOK, q.Stats())
}

func (s *Server) handleQueueSize(c *gin.Context) {
	name := c.Param("name")
	q, ok := s.queues[name]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no queue named %q", name)})
		return
	}

	size, err := q.QSize(c.Request.Context(), nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to read queue size: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"queue": name, "size": size})
}

func (s *Server) handleQueueBulkFinish(c *gin.Context) {
	name := c.Param("name")
	q, ok := s.queues[name]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no queue named %q", name)})
		return
	}

	var req struct {
		Result string `json:"result"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	affected, err := q.BulkFinish(c.Request.Context(), req.Result, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("bulk finish failed: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"queue": name, "affected": affected})
}

func (s *Server) handleListLocks(c *gin.Context) {
	names := make([]string, 0, len(s.locks))
	for name := range s.locks {
		names = append(names, name)
	}
	c.JSON(http.StatusOK, gin.H{"locks": names})
}

// Start runs the HTTP server until it errors or is shut down.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("API server listening", "address", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
