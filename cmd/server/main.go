package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"

	"github.com/joho/godotenv"

	"conversation-chaos/internal/config"
	"conversation-chaos/internal/logging"
	"conversation-chaos/internal/server"
)

func main() {
	var (
		configPath string
		envFile    string
	)
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&envFile, "env", ".env", "Path to an optional .env file")
	flag.Usage = printUsage
	flag.Parse()

	// Variables already set in the environment win over the file.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Failed to load %s: %v", envFile, err)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	if err := srv.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// loadConfig reads configPath and then applies the CHAOS_ENV logging preset
// (development, production, staging, test or high-volume), if any.
func loadConfig(configPath string) (*config.Config, error) {
	cfg, err := config.LoadIfExists(configPath)
	if err != nil {
		return nil, err
	}
	if env := os.Getenv("CHAOS_ENV"); env != "" {
		logging.SetupEnvironmentLogging(cfg, env)
	}
	return cfg, nil
}

func printUsage() {
	fmt.Printf(`Conversation Chaos Server

Usage:
  %s [options]

Options:
  -config string
        Path to configuration file (default "config.yaml")
  -env string
        Path to an optional .env file (default ".env")
  -h, --help
        Show this help message

Environment Variables:
  Configuration can be overridden using environment variables with the
  CHAOS_ prefix, e.g. CHAOS_SERVER_PORT or CHAOS_LEDGER_BACKEND.
  CHAOS_ENV selects a logging preset (development, production, staging,
  test, high-volume) that replaces the logging section.

Examples:
  # Start with default config
  %s

  # Start with custom config file
  %s -config /path/to/config.yaml

  # Record runs in redis instead of badger
  CHAOS_LEDGER_BACKEND=redis CHAOS_LEDGER_REDIS_ADDR=localhost:6379 %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
}
