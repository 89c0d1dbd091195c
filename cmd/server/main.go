package main

import (
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/walink/walink/internal/api/handlers"
	"github.com/walink/walink/internal/api/middleware"
	"github.com/walink/walink/internal/config"
	"github.com/walink/walink/internal/credentials"
	"github.com/walink/walink/internal/crypto"
	"github.com/walink/walink/internal/database"
	"github.com/walink/walink/internal/protocol"
	"github.com/walink/walink/internal/session"
	"github.com/walink/walink/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load(config.Overrides{})
	if err != nil {
		logger.Errorf("Failed to load config: %v", err)
		os.Exit(1)
	}

	if cfg.Debug {
		logger.SetLevel(logger.LevelDebug)
	}

	// Set Gin mode
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// Open database
	logger.Infof("Opening database: %s", cfg.DatabasePath)
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		logger.Errorf("Failed to open database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize JWT manager
	jwtManager, err := crypto.NewJWTManager(cfg.MasterSecret)
	if err != nil {
		logger.Errorf("Failed to create JWT manager: %v", err)
		os.Exit(1)
	}

	// Initialize the session lifecycle manager
	credStore := credentials.NewStore(db.DB, cfg.MasterSecret)
	controller := session.New(session.Config{
		MaxRetries:        cfg.Session.MaxRetries,
		RetryBaseDelay:    cfg.Session.RetryBaseDelay,
		WipeRestartDelay:  cfg.Session.WipeRestartDelay,
		ExhaustedCooldown: cfg.Session.ExhaustedCooldown,
		ConnectTimeout:    cfg.Session.ConnectTimeout,
	}, credStore, protocol.NewDialer(cfg.GatewayURL))
	defer controller.Shutdown()

	// Create Gin router
	router := gin.Default()

	// CORS middleware
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"*"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	// Logging middleware
	router.Use(middleware.LoggingMiddleware())

	// Root endpoint - returns plain text for client validation
	router.GET("/", func(c *gin.Context) {
		c.String(200, "Welcome to Walink Server!")
	})

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(cfg.AccessKey, jwtManager)
	sessionHandler := handlers.NewSessionHandler(controller, db.DB)

	// Public routes (no auth required)
	v1 := router.Group("/v1")
	{
		v1.POST("/auth", authHandler.PostAuth)
		v1.GET("/status", sessionHandler.GetStatus)
	}

	// Protected routes (auth required)
	protected := v1.Group("")
	protected.Use(middleware.AuthMiddleware(jwtManager))
	{
		protected.POST("/init", sessionHandler.PostInit)
		protected.GET("/pairing", sessionHandler.GetPairing)
		protected.POST("/send", sessionHandler.PostSend)
		protected.POST("/reconnect", sessionHandler.PostReconnect)
		protected.POST("/disconnect", sessionHandler.PostDisconnect)
		protected.POST("/auto-reconnect", sessionHandler.PostAutoReconnect)
		protected.GET("/messages", sessionHandler.ListDeliveries)
	}

	// Start HTTP server
	logger.Infof("Walink Server starting on http://localhost%s", cfg.Addr)
	logger.Infof("Database: %s", cfg.DatabasePath)
	logger.Infof("Gateway: %s", cfg.GatewayURL)

	if err := router.Run(cfg.Addr); err != nil {
		logger.Errorf("Failed to start server: %v", err)
		os.Exit(1)
	}
}
