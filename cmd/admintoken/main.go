package main

import (
	"fmt" // Token output
	"os"  // Command-line arguments

	"allowance_wallet/internal/config" // Custom import path (Config)
	"allowance_wallet/internal/utils"  // JWT utility functions

	"github.com/sirupsen/logrus" // Logging library
)

// Main entry point for minting an operator token for the admin surface.
// Usage: admintoken <operator-address>
func main() {
	cfg := config.LoadConfig() // Load configuration
	if cfg.JWTSecret == "" {
		logrus.Fatal("JWT_SECRET must be set") // Cannot sign without a secret
	}
	if len(os.Args) != 2 {
		logrus.Fatal("usage: admintoken <operator-address>") // Exactly one argument
	}
	// Mint a 24h admin token for the given operator address
	token, err := utils.GenerateJWT(os.Args[1], "admin", cfg.JWTSecret)
	if err != nil {
		logrus.Fatalf("failed to generate token: %v", err)
	}
	fmt.Println(token) // Print the signed token
}
