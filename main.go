package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lfglabs-dev/unbound.md/internal/config"
	"github.com/lfglabs-dev/unbound.md/internal/pricing"
	"github.com/lfglabs-dev/unbound.md/internal/service"
	"github.com/lfglabs-dev/unbound.md/internal/store"
	"github.com/lfglabs-dev/unbound.md/internal/webhook"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting broker...")
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Proof deadline: %s, challenge window: %s", cfg.ProofDeadline, cfg.ChallengeWindow)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Load fee table
	fees := pricing.DefaultFees()
	if cfg.FeeTablePath != "" {
		fees, err = pricing.LoadFees(cfg.FeeTablePath)
		if err != nil {
			log.Fatalf("Failed to load fee table %s: %v", cfg.FeeTablePath, err)
		}
		log.Printf("Fee table: %s", cfg.FeeTablePath)
	}

	// Initialize pricing oracle
	oracle := pricing.NewOracle(fees, db)

	// Initialize webhook dispatcher
	dispatcher := webhook.NewDispatcher(db, cfg.WebhookTimeout)

	// Initialize service
	svc := service.New(db, oracle, dispatcher, cfg)

	// Start proof deadline monitor
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.RunProofDeadlineMonitor(ctx, 30*time.Second)

	log.Printf("Broker ready")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("Shutting down...")
	cancel()
	dispatcher.Wait()
}
