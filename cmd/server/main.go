package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/papertrade-simulator/internal/backtest"
	"github.com/papertrade-simulator/internal/batch"
	"github.com/papertrade-simulator/internal/config"
	"github.com/papertrade-simulator/internal/handler"
	"github.com/papertrade-simulator/internal/middleware"
	"github.com/papertrade-simulator/internal/models"
	"github.com/papertrade-simulator/internal/oracle"
	"github.com/papertrade-simulator/internal/repository"
	"github.com/papertrade-simulator/internal/risk"
	"github.com/papertrade-simulator/internal/service"
	"github.com/papertrade-simulator/internal/worker"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Build info (injected at build time via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize file logging with rotation
	if err := middleware.InitLogger("logs"); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// Set Gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Initialize Redis
	rdb := initRedis(cfg)

	// Auto migrate database
	if err := autoMigrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	positionRepo := repository.NewPositionRepository(db)
	orderRepo := repository.NewOrderRepository(db)

	// Initialize price oracle
	var provider oracle.QuoteProvider
	if cfg.Oracle.QuoteURL != "" {
		provider = oracle.NewHTTPProvider(cfg.Oracle.QuoteURL)
	}
	priceOracle := oracle.New(provider, rdb, time.Duration(cfg.Oracle.TTLSeconds)*time.Second)

	// Optional streaming feed keeps the oracle cache warm
	var feed *oracle.Feed
	if cfg.Oracle.FeedURL != "" {
		feed = oracle.NewFeed(cfg.Oracle.FeedURL, priceOracle)
		if err := feed.Connect(context.Background()); err != nil {
			log.Printf("Warning: price feed unavailable: %v", err)
			feed = nil
		}
	}

	// Initialize risk manager from configured defaults
	riskManager, err := risk.NewManager(risk.Parameters{
		MaxPositionSizeFraction: cfg.Risk.MaxPositionSizeFraction,
		MaxDailyLossFraction:    cfg.Risk.MaxDailyLossFraction,
		StopLossFraction:        cfg.Risk.StopLossFraction,
		TakeProfitFraction:      cfg.Risk.TakeProfitFraction,
		TrailingStopFraction:    cfg.Risk.TrailingStopFraction,
		VolatilityThreshold:     cfg.Risk.VolatilityThreshold,
		MaxConsecutiveLosses:    cfg.Risk.MaxConsecutiveLosses,
	})
	if err != nil {
		log.Fatalf("Failed to initialize risk manager: %v", err)
	}

	// Initialize services
	authService := service.NewAuthService(userRepo, cfg.JWT)
	tradingService := service.NewTradingService(
		accountRepo,
		positionRepo,
		orderRepo,
		priceOracle,
		riskManager,
		cfg.Engine,
	)

	// Batch processing and backtesting share the engine's settings
	batchRegistry := batch.NewRegistry(tradingService, 0)
	backtestEngine := backtest.NewEngine(cfg.Engine.InitialCapital, cfg.Engine.CommissionRate)

	// Start the position monitoring worker
	riskMonitor := worker.NewRiskMonitor(tradingService, positionRepo, 30*time.Second)
	go riskMonitor.Start()

	// Initialize handlers
	authHandler := handler.NewAuthHandler(authService)
	tradingHandler := handler.NewTradingHandler(tradingService, batchRegistry)
	riskHandler := handler.NewRiskHandler(tradingService, riskManager)
	analyticsHandler := handler.NewAnalyticsHandler(tradingService)
	backtestHandler := handler.NewBacktestHandler(backtestEngine)

	// Create Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLoggerMiddleware())
	router.Use(corsMiddleware())

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":        "ok",
			"version":       Version,
			"commit":        Commit,
			"build_time":    BuildTime,
			"time":          time.Now().Unix(),
			"cached_prices": len(priceOracle.Snapshot()),
		})
	})

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		authHandler.RegisterRoutes(v1)

		authMiddleware := middleware.AuthMiddleware(authService)
		tradingHandler.RegisterRoutes(v1, authMiddleware)
		riskHandler.RegisterRoutes(v1, authMiddleware)
		analyticsHandler.RegisterRoutes(v1, authMiddleware)
		backtestHandler.RegisterRoutes(v1, authMiddleware)
	}

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Starting server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	riskMonitor.Stop()
	if feed != nil {
		feed.Close()
	}

	// Graceful shutdown with 10 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	if err := rdb.Close(); err != nil {
		log.Printf("Error closing Redis connection: %v", err)
	}

	log.Println("Server exited properly")
}

func initDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormLogger := logger.Default.LogMode(logger.Info)
	if cfg.Server.Mode == "release" {
		gormLogger = logger.Default.LogMode(logger.Warn)
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Account{},
		&models.Position{},
		&models.Order{},
	)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
