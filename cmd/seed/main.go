package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"

	"github.com/QRollHQ/rollcall-backend/config"
	models "github.com/QRollHQ/rollcall-backend/pkg/db"
	"github.com/QRollHQ/rollcall-backend/pkg/logger"
)

func main() {

	// Initialize logger with the updated configuration
	logger.Init()

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		logger.Info(".env file not found, proceeding with environment variables")
	}

	// Force reload configuration after .env is loaded
	config.ForceReload()

	// Load configuration
	cfg := config.Get()

	// Initialise Database
	db, err := models.InitialiseDatabase(cfg.Database.Path)
	if err != nil {
		logger.Err(err)
		os.Exit(1)
	}

	if err := models.SeedDummyData(context.Background(), db); err != nil {
		logger.Err("Failed to seed dummy data:", err)
		os.Exit(1)
	}

	logger.Info("Seeded development data into", cfg.Database.Path)
}
