package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/princeprakhar/reviewnext-backend/internal/api/handlers"
	"github.com/princeprakhar/reviewnext-backend/internal/api/middleware"
	"github.com/princeprakhar/reviewnext-backend/internal/catalog"
	"github.com/princeprakhar/reviewnext-backend/internal/config"
	"github.com/princeprakhar/reviewnext-backend/internal/policy"
	"github.com/princeprakhar/reviewnext-backend/internal/services"
	"github.com/princeprakhar/reviewnext-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Dependencies are the services the HTTP layer is built on. Redis is
// optional and only backs the rate limiter here.
type Dependencies struct {
	Config  *config.Config
	Policy  *policy.AuthorizationPolicy
	Redis   *redis.Client
	Auth    *services.AuthService
	Catalog *services.CatalogService
	Logs    *services.LogService
	Lists   *services.ListService
	Admin   *services.AdminService
}

func SetupRoutes(router *gin.Engine, deps Dependencies) {
	cfg := deps.Config

	// Middleware
	router.Use(middleware.RequestLogger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	if cfg.RateLimitRPS > 0 {
		router.Use(middleware.RateLimitMiddleware(cfg.RateLimitRPS, deps.Redis))
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(deps.Auth)
	passwordHandler := handlers.NewPasswordHandler(deps.Auth)
	catalogHandler := handlers.NewCatalogHandler(deps.Catalog)
	logHandler := handlers.NewLogHandler(deps.Logs)
	listHandler := handlers.NewListHandler(deps.Lists)
	adminHandler := handlers.NewAdminHandler(deps.Admin, deps.Catalog)

	requireAuth := middleware.AuthMiddleware(cfg.JWTSecret)

	api := router.Group("/api/v1")

	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"message":    "Server is running",
			"categories": catalog.Tags(),
		})
	})

	// Auth routes
	auth := api.Group("/auth")
	{
		auth.POST("/signup", authHandler.Signup)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh-token", authHandler.RefreshToken)
		auth.POST("/logout", authHandler.Logout)
		auth.GET("/profile", requireAuth, authHandler.GetProfile)
		auth.PUT("/profile", requireAuth, authHandler.UpdateProfile)
		auth.POST("/password", requireAuth, passwordHandler.ChangePassword)
	}

	// Catalog routes (public)
	catalogGroup := api.Group("/catalog")
	{
		catalogGroup.GET("/search", catalogHandler.SearchAll)
		catalogGroup.GET("/:category", catalogHandler.ListItems)
		catalogGroup.GET("/:category/search", catalogHandler.Search)
		catalogGroup.GET("/:category/:item_id", catalogHandler.GetItem)
		catalogGroup.GET("/:category/:item_id/logs", logHandler.ItemLogs)
	}

	// Log routes
	logs := api.Group("/logs", requireAuth)
	{
		logs.GET("", logHandler.UserLogs)
		logs.POST("/:category", logHandler.SubmitLog)
		logs.PUT("/:category/:log_id", logHandler.EditLog)
		logs.DELETE("/:category/:log_id", logHandler.DeleteLog)
		logs.POST("/:category/:log_id/flag", logHandler.FlagLog)
	}

	// Game list routes
	lists := api.Group("/lists", requireAuth)
	{
		lists.GET("", listHandler.MyLists)
		lists.POST("", listHandler.CreateList)
		lists.GET("/:list_id", listHandler.GetList)
		lists.PUT("/:list_id", listHandler.UpdateList)
		lists.DELETE("/:list_id", listHandler.DeleteList)
		lists.POST("/:list_id/games", listHandler.AddGame)
		lists.DELETE("/:list_id/games/:game_id", listHandler.RemoveGame)
		lists.PUT("/:list_id/games/:game_id/position", listHandler.MoveGame)
	}

	// Admin routes
	admin := api.Group("/admin", requireAuth, middleware.AdminOnly(deps.Policy))
	{
		admin.GET("/dashboard", adminHandler.GetDashboard)

		// Catalog management
		admin.POST("/catalog/:category", adminHandler.CreateItem)
		admin.POST("/catalog/:category/import", adminHandler.ImportCSV)
		admin.PUT("/catalog/:category/:item_id", adminHandler.UpdateItem)
		admin.DELETE("/catalog/:category/:item_id", adminHandler.DeleteItem)
		admin.POST("/catalog/:category/:item_id/image", adminHandler.UploadImage)

		// Log moderation
		admin.GET("/logs/flagged", logHandler.FlaggedLogs)
		admin.POST("/logs/:category/:log_id/moderate", logHandler.ModerateLog)
	}

	logger.Info("Routes initialized successfully")
}
