// Database migration CLI tool
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/ajitpratap0/mtfbacktest/internal/config"
	"github.com/ajitpratap0/mtfbacktest/internal/db"
)

func main() {
	command := flag.String("command", "migrate", "Command to run: migrate or status")
	dbURL := flag.String("db", os.Getenv("DATABASE_URL"), "Database connection URL")
	configPath := flag.String("config", "", "Config file to take the database settings from when -db is empty")
	flag.Parse()

	logger := config.NewLogger(config.LoggingConfig{Level: "info", Format: "console"}, os.Stderr)

	dsn := *dbURL
	if dsn == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		dsn = cfg.Database.GetDSN()
	}

	ctx := context.Background()
	database, err := db.New(ctx, dsn, 2, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	migrator := db.NewMigrator(database.Pool(), nil, logger)

	switch *command {
	case "migrate":
		applied, err := migrator.Migrate(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Applied %d migration(s)\n", applied)
	case "status":
		status, err := migrator.Status(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status check failed: %v\n", err)
			os.Exit(1)
		}
		for _, s := range status {
			state := "pending"
			if s.Applied {
				state = "applied"
			}
			fmt.Printf("%03d  %-8s  %s\n", s.Version, state, s.Description)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", *command)
		fmt.Fprintf(os.Stderr, "Usage: migrate -command=[migrate|status]\n")
		os.Exit(1)
	}
}
