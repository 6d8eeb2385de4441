// Package config loads server settings from flags, the environment and an optional .env file.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Default sweep schedules, staggered after midnight. Specs carry a seconds field.
const (
	DefaultRetiredToExpiredSpec          = "0 0 0 * * *"
	DefaultConfirmedToAvailableSpec      = "0 10 0 * * *"
	DefaultAvailableToWaitingPaymentSpec = "0 20 0 * * *"
	DefaultCompletePenaltiesSpec         = "0 30 0 * * *"
)

// Config holds server settings.
type Config struct {
	Addr        string
	DataDir     string
	Timezone    string
	HealthCheck bool

	RetiredToExpiredSpec          string
	ConfirmedToAvailableSpec      string
	AvailableToWaitingPaymentSpec string
	CompletePenaltiesSpec         string

	JobWorkers     int
	JobMaxAttempts int
}

// DBPath returns the SQLite file path inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "library.db")
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load parses args over the defaults, then applies environment overrides.
// A .env file in the working directory is read first when present.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{}
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", ":8080", "HTTP server address")
	fs.StringVar(&cfg.DataDir, "data", "./data", "Data directory for SQLite database")
	fs.StringVar(&cfg.Timezone, "tz", "UTC", "Timezone that defines the calendar day")
	fs.BoolVar(&cfg.HealthCheck, "health-check", false, "Run health check and exit")
	fs.IntVar(&cfg.JobWorkers, "workers", 2, "Number of background job workers")
	fs.IntVar(&cfg.JobMaxAttempts, "job-attempts", 3, "Attempts per background job")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.RetiredToExpiredSpec = DefaultRetiredToExpiredSpec
	cfg.ConfirmedToAvailableSpec = DefaultConfirmedToAvailableSpec
	cfg.AvailableToWaitingPaymentSpec = DefaultAvailableToWaitingPaymentSpec
	cfg.CompletePenaltiesSpec = DefaultCompletePenaltiesSpec

	cfg.Addr = getEnv("LIBRARY_ADDR", cfg.Addr)
	cfg.DataDir = getEnv("LIBRARY_DATA_DIR", cfg.DataDir)
	cfg.Timezone = getEnv("LIBRARY_TIMEZONE", cfg.Timezone)
	cfg.RetiredToExpiredSpec = getEnv("LIBRARY_SWEEP_SCHEDULE_RETIRED_TO_EXPIRED", cfg.RetiredToExpiredSpec)
	cfg.ConfirmedToAvailableSpec = getEnv("LIBRARY_SWEEP_SCHEDULE_CONFIRMED_TO_AVAILABLE", cfg.ConfirmedToAvailableSpec)
	cfg.AvailableToWaitingPaymentSpec = getEnv("LIBRARY_SWEEP_SCHEDULE_AVAILABLE_TO_WAITING_PAYMENT", cfg.AvailableToWaitingPaymentSpec)
	cfg.CompletePenaltiesSpec = getEnv("LIBRARY_SWEEP_SCHEDULE_COMPLETE_PENALTIES", cfg.CompletePenaltiesSpec)

	var err error
	if cfg.JobWorkers, err = getEnvInt("LIBRARY_JOB_WORKERS", cfg.JobWorkers); err != nil {
		return nil, err
	}
	if cfg.JobMaxAttempts, err = getEnvInt("LIBRARY_JOB_MAX_ATTEMPTS", cfg.JobMaxAttempts); err != nil {
		return nil, err
	}

	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// getEnv returns the value of key, or fallback when unset or empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return n, nil
}
