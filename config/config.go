// Package config handles loading and managing application configuration.
package config

import (
	"os"
	"strconv"
)

// Config holds all configuration for the application.
type Config struct {
	// Server configuration
	Server ServerConfig

	// Paynet gateway configuration
	Paynet PaynetConfig

	// Persistence configuration
	Storage StorageConfig

	// Message broker configuration
	Broker BrokerConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port          string
	GinMode       string // "debug", "release", or "test"
	PublicBaseURL string // absolute base for gateway callback URLs
}

// PaynetConfig holds the gateway credentials and endpoints.
type PaynetConfig struct {
	EndpointID        string
	MerchantKey       string
	SandboxGateway    string
	ProductionGateway string
	Debug             bool // true routes requests to the sandbox gateway
}

// StorageConfig holds database configuration.
type StorageConfig struct {
	DatabaseURL string
}

// BrokerConfig holds event broker configuration. An empty URL disables
// outcome event publishing.
type BrokerConfig struct {
	AMQPURL string
	Queue   string
}

// Load reads configuration from environment variables.
// Returns a Config struct with all settings populated.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          getEnv("PORT", "8080"),
			GinMode:       getEnv("GIN_MODE", "debug"),
			PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		},
		Paynet: PaynetConfig{
			EndpointID:        getEnv("PAYNET_ENDPOINT_ID", ""),
			MerchantKey:       getEnv("PAYNET_MERCHANT_KEY", ""),
			SandboxGateway:    getEnv("PAYNET_SANDBOX_GATEWAY", "https://sandbox.payneteasy.com/paynet/api/v2"),
			ProductionGateway: getEnv("PAYNET_PRODUCTION_GATEWAY", ""),
			Debug:             getEnvBool("PAYNET_DEBUG", true),
		},
		Storage: StorageConfig{
			DatabaseURL: getEnv("DATABASE_URL", ""),
		},
		Broker: BrokerConfig{
			AMQPURL: getEnv("AMQP_URL", ""),
			Queue:   getEnv("AMQP_OUTCOME_QUEUE", "payment-outcomes"),
		},
	}
}

// getEnv retrieves an environment variable with a fallback default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool retrieves an environment variable as a boolean with a fallback.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
