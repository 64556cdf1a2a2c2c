package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/QRollHQ/rollcall-backend/config"
	"github.com/QRollHQ/rollcall-backend/internal/janitor"
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

	// No session manager in a one-shot run: every open session row is an
	// orphan by definition, and the full clean closes them.
	jan := janitor.NewJanitor(cfg, db, nil, true)

	jan.RunFull()
}
