package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"OptionsFlow/internal/di"
	"OptionsFlow/pkg/config"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	// Load config
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		// stdout belongs to the stdio transport
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	// Wire DI: Initialize all dependencies
	app, err := di.InitializeApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "app initialization failed: %v\n", err)
		os.Exit(1)
	}

	// Run application (blocks until signal or stdin EOF)
	if err := app.Run(context.Background()); err != nil {
		os.Exit(1)
	}
}
