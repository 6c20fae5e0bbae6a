package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"campusattend/internal/attendance"
	"campusattend/internal/auth"
	"campusattend/internal/binding"
	"campusattend/internal/config"
	"campusattend/internal/httpmiddleware"
	"campusattend/internal/store"
	"campusattend/internal/student"
	"campusattend/internal/user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func newLogger(cfg config.App) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Production() {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	db, err := store.Open(cfg.DatabasePath, cfg.DatabaseVerbose)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(cfg.DatabaseVerbose); err != nil {
		return err
	}

	userRepo := user.NewRepository(db.Client)
	users := user.NewService(userRepo, logger)
	gate := binding.NewService(binding.NewRepository(db.Client), logger)
	records := attendance.NewService(attendance.NewRepository(db.Client), gate, logger)
	studentRepo := student.NewRepository(db.Client)
	google := auth.NewGoogle(cfg.GoogleClientID, cfg.GoogleSecret, cfg.GoogleCallback)

	// Redis is optional; without it the rate limiter is in-memory.
	var redisClient *store.Redis
	var limiter httpmiddleware.Limiter
	if cfg.RedisAddr != "" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		limiter = httpmiddleware.NewRedisRateLimiter(redisClient.Client, cfg.RateLimitPerMin)
		logger.Info("rate limiter backed by redis", zap.String("addr", cfg.RedisAddr))
	} else {
		limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	}

	srv := &server{
		cfg:      cfg,
		log:      logger,
		users:    users,
		userRepo: userRepo,
		gate:     gate,
		records:  records,
		students: studentRepo,
		google:   google,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))
	r.Use(corsMiddleware())
	r.Use(securityHeaders(cfg))
	r.Use(httpmiddleware.RateLimit(limiter))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		resp := gin.H{"status": "ok", "db": dbHealthy}
		if redisClient != nil {
			resp["redis"] = redisClient.Healthy(c.Request.Context())
		}
		c.JSON(status, resp)
	})

	r.GET("/auth/google", srv.loginRedirect)
	r.GET("/auth/google/callback", srv.loginCallback)
	r.GET("/logout", srv.logout)

	v1 := r.Group("/v1", auth.RequireSession(cfg.AuthSecret))
	v1.GET("/me", srv.me)
	v1.GET("/binding", srv.getBinding)
	v1.POST("/binding", srv.bind)

	gated := v1.Group("", auth.RequireBinding(gate))
	gated.POST("/checkins", srv.checkIn)
	gated.GET("/checkins", srv.history)
	gated.GET("/checkins/today", srv.today)
	gated.GET("/stats", srv.stats)

	admin := v1.Group("/admin", auth.RequireAdmin())
	admin.POST("/students", srv.createStudent)
	admin.PUT("/students/:id", srv.updateStudent)
	admin.GET("/students/stats", srv.rosterStats)
	admin.GET("/users/stats", srv.userStats)
	admin.PATCH("/attendance/:id/status", srv.updateRecordStatus)
	admin.DELETE("/attendance/:id", srv.deleteRecord)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.HTTPPort))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("forced shutdown", zap.Error(err))
	}

	logger.Info("server exited")
	return nil
}

// requestLogger logs each request through zap, skipping health and metrics
// noise.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/healthz" || path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		}
		switch {
		case c.Writer.Status() >= 500:
			logger.Error("request failed", fields...)
		case c.Writer.Status() >= 400:
			logger.Warn("request rejected", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}

// CORS middleware for browser requests.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Security headers middleware.
func securityHeaders(cfg config.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if cfg.Production() {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
