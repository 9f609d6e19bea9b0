package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flashdeal-api/internal/cache"
	"flashdeal-api/internal/config"
	"flashdeal-api/internal/handler"
	"flashdeal-api/internal/lock"
	"flashdeal-api/internal/middleware"
	"flashdeal-api/internal/queue"
	"flashdeal-api/internal/repository"
	"flashdeal-api/internal/router"
	"flashdeal-api/internal/service"
	"flashdeal-api/pkg/snowflake"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting flashdeal API...")

	// Load configuration
	cfg := config.MustLoad()
	log.Printf("Environment: %s", cfg.App.Environment)

	// Initialize the relational store based on config
	var promotionRepo repository.PromotionRepository
	var orderRepo repository.OrderRepository
	switch cfg.Database.Type {
	case "mysql":
		db, err := sql.Open("mysql", cfg.Database.MySQLDSN())
		if err != nil {
			log.Fatalf("Failed to open MySQL: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.Ping(); err != nil {
			log.Fatalf("MySQL ping failed: %v", err)
		}
		defer db.Close()

		promotionRepo = repository.NewMySQLPromotionRepository(db)
		orderRepo = repository.NewMySQLOrderRepository(db)
		log.Println("MySQL repositories initialized")
	default: // sqlite
		db, err := repository.OpenSQLite(cfg.Database.Path)
		if err != nil {
			log.Fatalf("Failed to initialize SQLite: %v", err)
		}
		defer db.Close()

		promotionRepo = repository.NewSQLitePromotionRepository(db)
		orderRepo = repository.NewSQLiteOrderRepository(db)
		log.Println("SQLite repositories initialized")
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatalf("Redis connection failed: %v", err)
	}
	cancel()
	log.Println("Redis client initialized")

	// Concurrency-control primitives
	locker := lock.New(redisClient)
	engine := cache.New(redisClient, locker, cache.Config{
		LockTTL:        cfg.Cache.LockTTL,
		NullTTL:        cfg.Cache.NullTTL,
		RebuildWorkers: cfg.Cache.RebuildWorkers,
	})
	idgen := snowflake.New()

	// Initialize services
	promotionService := service.NewPromotionService(engine, promotionRepo, service.PromotionConfig{
		Policy:     cfg.Cache.Policy,
		TTL:        cfg.Cache.TTL,
		LogicalTTL: cfg.Cache.LogicalTTL,
	})
	seckillService := service.NewSeckillService(redisClient, promotionService, promotionRepo, idgen, cfg.Seckill.StreamKey)
	tokenService := service.NewTokenService(redisClient)

	// Order persistence worker
	orderQueue := queue.New(redisClient, cfg.Seckill.StreamKey, cfg.Seckill.Group, cfg.Seckill.Consumer)
	orderWorker := queue.NewWorker(orderQueue, locker, promotionRepo, orderRepo, queue.WorkerConfig{
		BlockTimeout:  cfg.Seckill.BlockTimeout,
		LockTTL:       cfg.Seckill.OrderLockTTL,
		MaxDeliveries: cfg.Seckill.MaxDeliveries,
	})

	startCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := orderWorker.Start(startCtx); err != nil {
		cancel()
		log.Fatalf("Failed to start order worker: %v", err)
	}
	cancel()

	// Initialize handlers
	healthHandler := handler.New(cfg.App.Version)
	seckillHandler := handler.NewSeckillHandler(seckillService)
	promotionHandler := handler.NewPromotionHandler(promotionService, seckillService)
	authHandler := handler.NewAuthHandler(tokenService)

	authMiddleware := middleware.NewAuth(tokenService)

	// Create router
	r := router.New(router.Config{
		Handler:          healthHandler,
		SeckillHandler:   seckillHandler,
		PromotionHandler: promotionHandler,
		AuthHandler:      authHandler,
		AuthMiddleware:   authMiddleware,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	// Stop consumers after the HTTP surface is drained so in-flight
	// admissions still reach the stream.
	orderWorker.Stop()
	engine.Close()

	log.Println("Server stopped")
}
