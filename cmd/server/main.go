package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ridepool/internal/config"
	"ridepool/internal/handlers"
	"ridepool/internal/middleware"
	"ridepool/internal/repositories/mongodb"
	"ridepool/internal/services"
	"ridepool/internal/stream"
	"ridepool/pkg/cache"
	"ridepool/pkg/database"
	"ridepool/pkg/logger"
	"ridepool/pkg/push"
	"ridepool/pkg/sms"
	"ridepool/pkg/websocket"
	"ridepool/routes"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(&logger.Config{
		Level:  cfg.App.LogLevel,
		Format: cfg.App.LogFormat,
		Output: "stdout",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewMongoDB(&database.DatabaseConfig{
		URI:            cfg.Database.URI,
		Database:       cfg.Database.Database,
		MaxPoolSize:    cfg.Database.MaxPoolSize,
		MinPoolSize:    cfg.Database.MinPoolSize,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		SocketTimeout:  cfg.Database.SocketTimeout,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to connect to mongodb")
	}
	defer db.Close()

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.EnsureIndexes(indexCtx); err != nil {
		cancelIndexes()
		log.WithError(err).Fatal("failed to ensure indexes")
	}
	cancelIndexes()

	redisCache, err := cache.NewRedisCache(&cache.RedisConfig{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to connect to redis")
	}
	defer redisCache.Close()

	cacheService := services.NewCacheService(redisCache, log)

	// Repositories
	rideRepo := mongodb.NewRideRepository(db.Database, cacheService)
	bookingRepo := mongodb.NewBookingRepository(db.Database)
	locationRepo := mongodb.NewLocationRepository(db.Database)
	notificationRepo := mongodb.NewNotificationRepository(db.Database)
	auditRepo := mongodb.NewAuditLogRepository(db.Database)
	userRepo := mongodb.NewUserRepository(db.Database)

	// Delivery providers
	pushProvider := buildPushProvider(cfg.Push, log)
	smsProvider := buildSMSProvider(cfg.SMS, log)
	journal := stream.NewProducer(cfg.Stream, log)
	if journal != nil {
		defer journal.Close()
	}

	// Websocket hub
	wsHandler := websocket.NewHandler()

	// Services
	realtimeService := services.NewRealtimeService(wsHandler.GetHub(), cacheService, rideRepo, bookingRepo, locationRepo, notificationRepo, log)
	notificationService := services.NewNotificationService(notificationRepo, userRepo, cacheService, realtimeService, pushProvider, smsProvider, journal, log)
	trackingService := services.NewTrackingService(locationRepo, rideRepo, realtimeService, cfg.Tracking, log)
	defer trackingService.Shutdown()
	pickupService := services.NewPickupService(bookingRepo, rideRepo, userRepo, notificationService, realtimeService, log)
	rideService := services.NewRideService(rideRepo, bookingRepo, userRepo, auditRepo, pickupService, trackingService, notificationService, realtimeService, cacheService, log)
	bookingService := services.NewBookingService(bookingRepo, rideRepo, userRepo, auditRepo, notificationService, realtimeService, log)
	auditService := services.NewAuditService(auditRepo)

	// Handlers
	rideHandler := handlers.NewRideHandler(rideService, log)
	bookingHandler := handlers.NewBookingHandler(bookingService, pickupService, log)
	trackingHandler := handlers.NewTrackingHandler(trackingService, realtimeService, log)
	notificationHandler := handlers.NewNotificationHandler(notificationService, realtimeService, auditService, log)

	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.RequestIDMiddleware(),
		middleware.LoggingMiddleware(log),
		middleware.MetricsMiddleware(),
		middleware.CORSMiddleware(cfg.Security.CORSAllowedOrigins),
	)
	if len(cfg.Security.TrustedProxies) > 0 {
		if err := router.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
			log.WithError(err).Fatal("invalid trusted proxies")
		}
	}

	router.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		checks := gin.H{"mongodb": "up", "redis": "up"}
		if err := db.Ping(); err != nil {
			checks["mongodb"] = "down"
			status = http.StatusServiceUnavailable
		}
		if err := redisCache.Ping(c.Request.Context()); err != nil {
			checks["redis"] = "down"
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": checks, "version": cfg.App.Version})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	routes.SetupRideRoutes(api, cfg.Security.JWTSecret, rideHandler, bookingHandler, trackingHandler)
	routes.SetupBookingRoutes(api, cfg.Security.JWTSecret, bookingHandler)
	routes.SetupNotificationRoutes(api, cfg.Security.JWTSecret, notificationHandler, wsHandler)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port),
		Handler: router,
	}

	go func() {
		log.WithFields(map[string]interface{}{
			"addr":        srv.Addr,
			"environment": cfg.App.Environment,
		}).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("forced shutdown")
	}
}

func buildPushProvider(cfg *config.PushConfig, log *logger.Logger) push.Provider {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	switch cfg.Provider {
	case "apns":
		provider, err := push.NewAPNSProvider(cfg.APNSKeyFile, cfg.APNSKeyID, cfg.APNSTeamID, cfg.APNSTopic, cfg.APNSProduction)
		if err != nil {
			log.WithError(err).Error("apns provider unavailable, push disabled")
			return nil
		}
		return provider
	default:
		provider, err := push.NewFCMProvider(cfg.FCMCredentialsFile)
		if err != nil {
			log.WithError(err).Error("fcm provider unavailable, push disabled")
			return nil
		}
		return provider
	}
}

func buildSMSProvider(cfg *config.SMSConfig, log *logger.Logger) sms.Provider {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	switch cfg.Provider {
	case "sns":
		provider, err := sms.NewAWSSNSProvider(cfg.AWSRegion)
		if err != nil {
			log.WithError(err).Error("sns provider unavailable, sms disabled")
			return nil
		}
		return provider
	default:
		return sms.NewTwilioProvider(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber)
	}
}
