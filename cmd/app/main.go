package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"

	"github.com/joho/godotenv"

	"Watchdog/internal/di"
	"Watchdog/pkg/config"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "config file path (empty for defaults)")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before env overrides")
	flag.Parse()

	// a missing .env is fine; real env vars still apply
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("load %s: %v", *envFile, err)
	}

	path := *configPath
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		log.Printf("config %s not found, using defaults", path)
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}
	defer cleanup()

	if err := app.Run(context.Background()); err != nil {
		log.Printf("app error: %v", err)
		cleanup()
		os.Exit(1)
	}
}
