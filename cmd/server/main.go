package main

import (
	"context"  // context package is needed for Redis operations
	"log"      // log package is needed for logging
	"net/http" // HTTP status codes

	"allowance_wallet/internal/api"        // Custom package for API handlers
	"allowance_wallet/internal/audit"      // Custom package for the audit trail
	"allowance_wallet/internal/config"     // Custom package for configuration
	"allowance_wallet/internal/middleware" // Custom package for middleware
	"allowance_wallet/internal/payment"    // Custom package for payment verification
	"allowance_wallet/internal/provider"   // Custom package for the wallet provider client
	"allowance_wallet/internal/store"      // Custom package for the policy store

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
	"gorm.io/driver/mysql"         // MySQL driver for GORM
	"gorm.io/gorm"                 // GORM ORM library
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration

	// Setup logger
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Setup the audit database when configured; the wallet endpoints work without it
	var db *gorm.DB
	if cfg.DBHost != "" {
		var err error
		db, err = gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{})
		if err != nil {
			logrus.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
		}
	} else {
		logrus.Warn("DB_HOST not set; audit trail disabled")
	}

	// Setup Redis client when configured; handlers degrade to cache misses without it
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr, // Redis server address
			Password: cfg.RedisPass, // Redis password
			DB:       cfg.RedisDB,   // Redis database number
		})
		// Test Redis connection
		if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
			logrus.Fatalf("failed to connect to Redis: %v", err)
		}
	} else {
		logrus.Warn("REDIS_ADDR not set; response caching disabled")
	}

	// Core collaborators
	policyStore := store.New(cfg.PolicyStorePath)                                      // Durable policy store
	providerClient := provider.New(cfg.ParaAPIURL, cfg.ParaAPIKey, cfg.ParaSigningKey) // Wallet provider client
	paymentVerifier := payment.New(cfg.PaymentAPIURL, cfg.PaymentAPIKey)               // Payment verifier
	recorder := audit.New(db)                                                          // Audit trail recorder

	if !providerClient.CanDelegate() {
		logrus.Warn("PARA_SIGNING_KEY not set; transaction validation runs as a local simulation")
	}

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup Gin; CustomRecovery keeps every exit path JSON, panics included
	r := gin.New() // Gin router instance
	r.Use(gin.Logger(), gin.CustomRecovery(func(c *gin.Context, err any) {
		logrus.WithField("panic", err).Error("Unhandled failure in request handler")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}))

	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	// Health check
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Wallet routes
	walletGroup := r.Group("/wallet")
	walletGroup.POST("/child", api.CreateChildWalletHandler(policyStore, providerClient, paymentVerifier, recorder, redisClient)) // Provision a child wallet
	walletGroup.POST("/validate", api.ValidateTransactionHandler(policyStore, providerClient, recorder))                          // Validate a transaction
	walletGroup.GET("/policies", api.ListParentPoliciesHandler(policyStore, redisClient))                                         // List a parent's policies
	walletGroup.DELETE("/policy/:address", api.DeletePolicyHandler(policyStore, recorder, redisClient))                           // Owner-checked delete

	// Admin routes (protected, admin only); diagnostics must never be public
	adminGroup := r.Group("/admin")
	adminGroup.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret), middleware.AdminOnlyMiddleware())
	adminGroup.GET("/policies", api.ListAllPoliciesHandler(policyStore)) // List all policy records endpoint
	adminGroup.GET("/events", api.ListEventsHandler(db, redisClient))    // List audit events endpoint

	log.Println("Server running on " + cfg.AppPort) // Log server start
	r.Run(":" + cfg.AppPort)                        // Start the server on port cfg.AppPort
}
