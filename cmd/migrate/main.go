// Package main applies the embedded database migrations.
// Usage: migrate [-config path] up|down|version|force <version>
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"stockledger/internal/infrastructure/config"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ./config.yaml if present)")
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Postgres.DSN == "" {
		fmt.Println("postgres.dsn (LEDGER_POSTGRES_DSN) is required")
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Development: cfg.App.Development()})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	ctx := logger.WithLogger(context.Background(), log)

	mg, err := postgres.NewMigrator(cfg.Postgres.DSN)
	if err != nil {
		log.Fatalw("failed to open migrator", "error", err)
	}
	defer func() { _ = mg.Close() }()

	switch flag.Arg(0) {
	case "up":
		err = mg.Up(ctx)
	case "down":
		err = mg.Down(ctx)
	case "version":
		var (
			v     uint
			dirty bool
		)
		v, dirty, err = mg.Version()
		if err == nil {
			fmt.Printf("version %d (dirty: %t)\n", v, dirty)
		}
	case "force":
		if flag.NArg() < 2 {
			printUsage()
			os.Exit(1)
		}
		var v int
		v, err = strconv.Atoi(flag.Arg(1))
		if err == nil {
			err = mg.Force(ctx, v)
		}
	default:
		fmt.Printf("Unknown command: %s\n", flag.Arg(0))
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		log.Fatalw("migration command failed", "command", flag.Arg(0), "error", err)
	}
}

func printUsage() {
	fmt.Println(`Stock ledger migrations

Usage:
  migrate [-config path] up             apply all pending migrations
  migrate [-config path] down           roll back every migration
  migrate [-config path] version        print the current version
  migrate [-config path] force <n>      set the version without running migrations`)
}
