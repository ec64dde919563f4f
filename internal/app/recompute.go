package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/collate/internal/cli"
	"horse.fit/collate/internal/config"
	"horse.fit/collate/internal/db"
	"horse.fit/collate/internal/dedupe"
	"horse.fit/collate/internal/logging"
)

func runRecompute(args []string) int {
	fs := flag.NewFlagSet("recompute", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Minute, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("database connection failed")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	engine := dedupe.NewEngine(pool, logger)
	result, err := engine.RecomputeClusters(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Recompute failed: %v\n", err)
		return 1
	}

	fmt.Printf("orphan_members_removed=%d empty_clusters_removed=%d representatives_updated=%d\n",
		result.OrphanMembersRemoved, result.EmptyClustersRemoved, result.RepresentativesUpdated)
	return 0
}
