// Paynet Payments Service
//
// This is the main entry point for the payment processing service.
// It wires up all dependencies and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/imenem/paynet-payments/config"
	"github.com/imenem/paynet-payments/internal/adapters/postgres"
	"github.com/imenem/paynet-payments/internal/adapters/rabbitmq"
	"github.com/imenem/paynet-payments/internal/api"
	"github.com/imenem/paynet-payments/internal/core/ports"
	"github.com/imenem/paynet-payments/internal/core/service"
	"github.com/imenem/paynet-payments/internal/paynet"
)

func main() {
	log.Println("Starting Paynet Payments Service...")

	// Load configuration
	cfg := config.Load()
	log.Printf("Configuration loaded: Port=%s, Debug=%t", cfg.Server.Port, cfg.Paynet.Debug)

	// Validate required configuration
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Wire up dependencies (manual dependency injection)
	//
	// Infrastructure Layer
	store, err := postgres.NewStore(context.Background(), cfg.Storage.DatabaseURL)
	if err != nil {
		log.Fatalf("Database error: %v", err)
	}
	defer store.Close()

	var events ports.EventPublisher
	if cfg.Broker.AMQPURL != "" {
		publisher, err := rabbitmq.NewPublisher(cfg.Broker.AMQPURL, cfg.Broker.Queue)
		if err != nil {
			log.Fatalf("Broker error: %v", err)
		}
		defer publisher.Close()
		events = publisher
	} else {
		log.Println("Warning: AMQP_URL not set, outcome events disabled")
	}

	gateway := paynet.NewClient(cfg.Paynet.EndpointID,
		cfg.Paynet.SandboxGateway, cfg.Paynet.ProductionGateway, cfg.Paynet.Debug)
	signer := paynet.NewSigner(cfg.Paynet.EndpointID, cfg.Paynet.MerchantKey)
	urls := api.NewURLBuilder(cfg.Server.PublicBaseURL)

	// Service Layer
	transitions := service.NewTransitions(store, events)
	paymentService := service.NewPaymentService(gateway, store, urls, signer, transitions)

	// API Layer
	handler := api.NewHandler(paymentService, store)
	router := api.SetupRouter(handler, cfg.Server.GinMode)

	// Start server in a goroutine
	serverAddr := fmt.Sprintf(":%s", cfg.Server.Port)
	go func() {
		log.Printf("Server listening on %s", serverAddr)
		if err := router.Run(serverAddr); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
}

// validateConfig checks that required configuration values are set.
func validateConfig(cfg *config.Config) error {
	if cfg.Paynet.EndpointID == "" {
		return fmt.Errorf("PAYNET_ENDPOINT_ID is required")
	}
	if cfg.Paynet.MerchantKey == "" {
		return fmt.Errorf("PAYNET_MERCHANT_KEY is required")
	}
	if !cfg.Paynet.Debug && cfg.Paynet.ProductionGateway == "" {
		return fmt.Errorf("PAYNET_PRODUCTION_GATEWAY is required outside debug mode")
	}
	if cfg.Storage.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}
