package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/chachabrian/fleet-booking/internal/config"
	"github.com/chachabrian/fleet-booking/internal/database"
	"github.com/chachabrian/fleet-booking/internal/handlers"
	"github.com/chachabrian/fleet-booking/internal/middleware"
	"github.com/chachabrian/fleet-booking/internal/services"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

type backend struct {
	store    services.BookingStore
	vehicles services.VehicleDirectory
	drivers  services.DriverTokens
	routes   services.RouteAssigner
}

func openBackend(cfg *config.Config) (*backend, func(), error) {
	if cfg.Store == "memory" {
		dir := database.NewMemoryDirectory()
		dir.Seed(cfg.SeedVehicles, cfg.SeedDrivers)
		log.WithFields(log.Fields{
			"vehicles": len(cfg.SeedVehicles),
			"drivers":  len(cfg.SeedDrivers),
		}).Warn("Using in-memory booking store, data is lost on restart")
		return &backend{
			store:    database.NewMemoryBookingStore(),
			vehicles: dir,
			drivers:  dir,
			routes:   dir,
		}, func() {}, nil
	}

	db, err := database.InitDB(cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	return &backend{
		store:    database.NewBookingStore(db),
		vehicles: database.NewVehicleDirectory(db),
		drivers:  database.NewDriverDirectory(db),
		routes:   database.NewRouteDirectory(db),
	}, closeDB, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	cfg.ConfigureLogging()
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, closeBackend, err := openBackend(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer closeBackend()

	// Redis is optional: without it events only reach sockets on this instance.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = services.InitRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to initialize Redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		log.Warn("REDIS_URL not set. Vehicle cache and cross-instance events are disabled.")
	}

	push, err := services.InitFirebase(ctx, cfg.FirebaseServiceAccountPath, be.drivers)
	if err != nil {
		log.Warnf("Firebase initialization failed, push notifications disabled: %v", err)
		push = services.NewDisabledPushNotifier(be.drivers)
	}

	hub := services.NewHub()
	go hub.Run(ctx)

	// Local sockets get events directly. Redis carries them to other instances,
	// and the hub drops its own events when they come back.
	publishers := services.MultiPublisher{push, hub}
	vehicles := services.NewCachedVehicleDirectory(be.vehicles, redisClient, cfg.VehicleCacheTTL)
	if redisClient != nil {
		publishers = append(publishers, services.NewRedisPublisher(redisClient, hub.InstanceID()))
		go hub.ListenRedis(ctx, redisClient)
		go vehicles.ListenVehicleUpdates(ctx)
	}

	manager := services.NewBookingManager(be.store, vehicles, be.drivers, be.routes,
		services.WithPublisher(publishers),
	)

	r := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	r.Use(cors.New(corsConfig))
	r.Use(middleware.PrometheusMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterRoutes(r, handlers.Dependencies{
		Manager:   manager,
		Hub:       hub,
		Push:      push,
		JWTSecret: cfg.JWTSecret,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("Server listening on :%s (store=%s)", cfg.Port, cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}
}
