package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/joho/godotenv"

	"loottrack/internal/collector"
	"loottrack/internal/config"
	"loottrack/internal/database"
	"loottrack/internal/log"
	"loottrack/internal/pricing"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Set up global panic handler first
	defer func() {
		if r := recover(); r != nil {
			log.Error("GLOBAL PANIC recovered", "error", r, "stack", string(debug.Stack()))
			fmt.Fprintf(os.Stderr, "Application crashed. See the debug log for details.\n")
			os.Exit(1)
		}
	}()

	// .env is optional; real configuration lives in the YAML file and env.
	_ = godotenv.Load()

	configPath := "loottrack.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if err := log.SetFileOutput(cfg.DebugLogPath); err != nil {
		fmt.Printf("Warning: Could not configure debug logging to file: %v\n", err)
	}
	defer log.Close()

	log.Info("loottrack starting",
		"version", version, "commit", commit, "built", date,
		"log", cfg.LogPath, "database", cfg.DatabasePath)

	store, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.Error("Failed to open database", "error", err)
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	var syncer collector.PriceSyncer
	if cfg.PriceSync.Enabled && cfg.PriceSync.BaseURL != "" {
		client := pricing.NewClient(cfg.PriceSync.BaseURL, cfg.PriceSync.APIKey)
		defer client.Close()
		syncer = client
	}

	coll := collector.New(cfg, store, nil, syncer)
	if err := coll.Start(); err != nil {
		log.Error("Failed to start collector", "error", err)
		fmt.Fprintf(os.Stderr, "Failed to start collector: %v\n", err)
		os.Exit(1)
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-signalChan:
		log.Info("Signal received, shutting down", "signal", sig.String())
	case err := <-coll.Errors():
		log.Error("Collector escalated persistent failure", "error", err)
		fmt.Fprintf(os.Stderr, "Ingestion stopped: %v\n", err)
	}

	coll.Stop()
}
