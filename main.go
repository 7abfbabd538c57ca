package main

import (
	"log"

	"github.com/joho/godotenv"

	"docsheet/cmd"
	"docsheet/internal/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// The full configuration, config file included, is applied once the
	// command line has been parsed.
	if err := logger.Setup(logger.DefaultConfig()); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	cmd.Execute()
}
