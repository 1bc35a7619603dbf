package config

import (
	"os"      // For environment variables
	"strconv" // For string to int conversion

	"github.com/joho/godotenv" // For loading .env files
)

// Config holds the application configuration
type Config struct {
	AppPort         string // Application port
	IsProd          bool   // Is production environment
	PolicyStorePath string // Durable policy store file path
	ParaAPIURL      string // Wallet provider API base URL
	ParaAPIKey      string // Wallet provider API key (wallet creation)
	ParaSigningKey  string // Wallet provider enforcement credential; empty enables local stopgap validation
	PaymentAPIURL   string // Payment backend verification URL; empty means unconfigured
	PaymentAPIKey   string // Payment backend credential
	JWTSecret       string // JWT secret key for the admin surface
	RedisAddr       string // Redis server address; empty disables response caching
	RedisPass       string // Redis password
	RedisDB         int    // Redis database number
	DBUser          string // Database user
	DBPassword      string // Database password
	DBHost          string // Database host; empty disables the audit trail
	DBPort          string // Database port
	DBName          string // Database name
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	_ = godotenv.Load() // Load .env file if present
	redisDB, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	storePath := os.Getenv("POLICY_STORE_PATH")
	if storePath == "" {
		storePath = "data/wallet-policies.json" // Well-known default per deployment instance
	}
	return &Config{
		AppPort:         os.Getenv("APP_PORT"),          // Application port
		IsProd:          os.Getenv("IS_PROD") == "true", // Is production environment
		PolicyStorePath: storePath,                      // Durable policy store file path
		ParaAPIURL:      os.Getenv("PARA_API_URL"),      // Wallet provider API base URL
		ParaAPIKey:      os.Getenv("PARA_API_KEY"),      // Wallet provider API key
		ParaSigningKey:  os.Getenv("PARA_SIGNING_KEY"),  // Wallet provider enforcement credential
		PaymentAPIURL:   os.Getenv("PAYMENT_API_URL"),   // Payment backend verification URL
		PaymentAPIKey:   os.Getenv("PAYMENT_API_KEY"),   // Payment backend credential
		JWTSecret:       os.Getenv("JWT_SECRET"),        // JWT secret key
		RedisAddr:       os.Getenv("REDIS_ADDR"),        // Redis server address
		RedisPass:       os.Getenv("REDIS_PASS"),        // Redis password
		RedisDB:         redisDB,                        // Redis database number
		DBUser:          os.Getenv("DB_USER"),           // Database user
		DBPassword:      os.Getenv("DB_PASSWORD"),       // Database password
		DBHost:          os.Getenv("DB_HOST"),           // Database host
		DBPort:          os.Getenv("DB_PORT"),           // Database port
		DBName:          os.Getenv("DB_NAME"),           // Database name
	}
}

// DSN builds the MySQL Data Source Name for the audit database
func (c *Config) DSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?parseTime=true"
}
