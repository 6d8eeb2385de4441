// Package main is the entry point for the library reservation server.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/library-reservations/backend/internal/api"
	"github.com/library-reservations/backend/internal/app"
	"github.com/library-reservations/backend/internal/clock"
	"github.com/library-reservations/backend/internal/config"
	"github.com/library-reservations/backend/internal/storage"
	"github.com/library-reservations/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
// Defaults to "dev" when not provided.
var version = "dev"

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Health check mode for Docker HEALTHCHECK
	if cfg.HealthCheck {
		if err := runHealthCheck(cfg.Addr); err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
		os.Exit(0)
	}

	if envVer := os.Getenv("VERSION"); envVer != "" {
		version = envVer
	}

	log.Printf("Starting library reservation server (version: %s)...", version)

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("Invalid timezone: %v", err)
	}

	// Initialize database
	db, err := storage.NewDB(cfg.DBPath())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := storage.RunMigrations(context.Background(), db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations complete")

	// Initialize WebSocket hub
	hub := websocket.NewHub()
	go hub.Run()

	application := app.New(db, clock.NewSystem(loc), hub, app.Options{
		JobWorkers:     cfg.JobWorkers,
		JobMaxAttempts: cfg.JobMaxAttempts,
	})

	application.Queue.Start(context.Background())

	sweepScheduler := application.NewScheduler(loc, app.SweepSchedules(
		cfg.RetiredToExpiredSpec,
		cfg.ConfirmedToAvailableSpec,
		cfg.AvailableToWaitingPaymentSpec,
		cfg.CompletePenaltiesSpec,
	))
	if err := sweepScheduler.Start(); err != nil {
		log.Fatalf("Failed to start sweep scheduler: %v", err)
	}

	router := api.NewRouter(application, sweepScheduler)

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		log.Printf("Server listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	sweepScheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	application.Queue.Stop()
	hub.Close()

	log.Println("Server stopped")
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	url := "http://localhost" + addr + "/api/health"
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return http.ErrAbortHandler
	}
	return nil
}
