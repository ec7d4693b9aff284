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

	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/attendance"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/auth"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/config"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/faceclient"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/httpapi"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/httpmiddleware"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/imagestore"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/queue"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/registration"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/schedule"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/session"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/store"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/student"
	"github.com/satianferdy/academic-attendance-system-app-sub002/internal/verification"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.Migrate(context.Background(), db.Client); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "attendance:audit")
	}

	recognizer := faceclient.New(cfg.FaceServiceURL, cfg.FaceServiceKey, cfg.FaceVerifyTimeout, cfg.FaceRegisterTimeout)
	images := imagestore.New(cfg.ImageBaseDir)

	scheduleSvc := schedule.NewService(schedule.NewRepository(db.Client))
	sessionSvc := session.NewService(
		session.NewRepository(db.Client),
		session.NewRedisIndex(redisClient.Client),
		cfg.SessionWindow,
		cfg.SessionMaxExtend,
	)
	studentRepo := student.NewRepository(db.Client)
	recordRepo := attendance.NewRepository(db.Client)

	gate := verification.NewGate(sessionSvc, studentRepo, recordRepo, recognizer, q, cfg.MaxImageBytes)
	registrar := registration.NewRegistrar(studentRepo, images, recognizer, q, cfg.MaxImageBytes)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Healthy(c.Request.Context())
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	handler := &httpapi.Handler{
		Schedules: scheduleSvc,
		Sessions:  sessionSvc,
		Gate:      gate,
		Registrar: registrar,
		Records:   recordRepo,
		Audit:     q,
	}
	verifyLimit := httpmiddleware.NewVerifyLimiter(redisClient.Client, cfg.VerifyPerMin)
	handler.Routes(r, auth.Bearer(cfg.JWTSigningKey, cfg.JWTIssuer), verifyLimit.GinMiddleware())

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	// Give outstanding requests 10 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}

	log.Println("server exited")
	return nil
}

// CORS middleware for browser requests.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
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
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
