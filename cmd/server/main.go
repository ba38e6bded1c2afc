package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/princeprakhar/reviewnext-backend/internal/api/routes"
	"github.com/princeprakhar/reviewnext-backend/internal/cache"
	"github.com/princeprakhar/reviewnext-backend/internal/config"
	"github.com/princeprakhar/reviewnext-backend/internal/database"
	"github.com/princeprakhar/reviewnext-backend/internal/policy"
	"github.com/princeprakhar/reviewnext-backend/internal/search"
	"github.com/princeprakhar/reviewnext-backend/internal/services"
	"github.com/princeprakhar/reviewnext-backend/internal/store"
	"github.com/princeprakhar/reviewnext-backend/internal/store/gormstore"
	"github.com/princeprakhar/reviewnext-backend/internal/store/mongostore"
	"github.com/princeprakhar/reviewnext-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize logger
	logger.Init()

	// Load configuration
	cfg := config.Load()

	// Users and tokens always live in the SQL database
	db, err := database.Init(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to initialize database", err)
	}

	var (
		contentStore store.Store
		mongo        *database.MongoDB
	)
	switch cfg.ContentStore {
	case config.ContentStoreMongo:
		mongo, err = database.NewMongoDB(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			logger.Fatal("Failed to connect to MongoDB", err)
		}
		ms := mongostore.New(mongo, mongostore.WithMaxRetries(cfg.RatingRetries))
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = ms.EnsureIndexes(ctx)
		cancel()
		if err != nil {
			logger.Fatal("Failed to create MongoDB indexes", err)
		}
		contentStore = ms
	default:
		contentStore = gormstore.New(db, gormstore.WithMaxRetries(cfg.RatingRetries))
	}

	// Redis is optional: without it the catalog is not cached and rate
	// limits are per instance.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = database.NewRedis(cfg.RedisURL, cfg.RedisPassword)
		if err != nil {
			logger.Warn("Redis unavailable, continuing without cache: ", err)
			rdb = nil
		}
	}
	catalogCache := cache.NewCatalogCache(rdb, time.Duration(cfg.CacheTTLSeconds)*time.Second, logger.Entry())

	authz := policy.New(cfg.AdminEmails)

	var images services.ImageStorage
	if cfg.S3Bucket != "" {
		images = services.NewS3Service(cfg.S3Region, cfg.S3Bucket, cfg.S3AccessKey, cfg.S3SecretKey)
	}

	var (
		notifier services.FlagNotifier
		reporter services.ImportReporter
	)
	if cfg.SMTPUsername != "" {
		emailService := services.NewEmailService(cfg)
		notifier, reporter = emailService, emailService
	}

	searchOpts := search.Options{MinScore: cfg.SearchMinScore, FallbackLimit: cfg.SearchFallback}

	deps := routes.Dependencies{
		Config:  cfg,
		Policy:  authz,
		Redis:   rdb,
		Auth:    services.NewAuthService(db, cfg.JWTSecret, authz, logger.Entry()),
		Catalog: services.NewCatalogService(contentStore, authz, catalogCache, images, searchOpts, logger.Entry()),
		Logs:    services.NewLogService(contentStore, authz, catalogCache, notifier, logger.Entry()),
		Lists:   services.NewListService(contentStore, authz),
		Admin:   services.NewAdminService(db, contentStore, authz, catalogCache, images, reporter, logger.Entry()),
	}

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize router
	router := gin.New()

	// Setup routes
	routes.SetupRoutes(router, deps)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server starting on port " + cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown: ", err)
	}
	if mongo != nil {
		if err := mongo.Close(ctx); err != nil {
			logger.Error("Failed to close MongoDB: ", err)
		}
	}
	if rdb != nil {
		rdb.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
