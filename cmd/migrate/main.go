package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	pgstore "github.com/dwarvesf/paywall-backend/internal/store/postgres"
	"github.com/dwarvesf/paywall-backend/internal/utils/config"
	"github.com/dwarvesf/paywall-backend/internal/utils/logger"
)

func main() {
	direction := flag.String("direction", string(pgstore.Up), "up or down")
	dir := flag.String("dir", filepath.Join("migrations", "schema"), "directory holding the SQL migrations")
	flag.Parse()

	appConfig := config.New()
	logger := logger.New(appConfig.Environment)

	db := pgstore.New(appConfig, logger)

	if err := pgstore.Migrate(db, fmt.Sprintf("file://%s", *dir), pgstore.Direction(*direction)); err != nil {
		logger.Error("[main][Migrate] failed to run migrations", map[string]string{
			"direction": *direction,
			"error":     err.Error(),
		})
		os.Exit(1)
	}

	logger.Info("Migrations completed successfully", map[string]string{
		"direction": *direction,
	})
}
