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

func runDedupe(args []string) int {
	fs := flag.NewFlagSet("dedupe", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Minute, "Command timeout")
	limit := fs.Int("limit", 100, "Maximum pending items to evaluate")
	itemID := fs.Int64("item-id", 0, "Evaluate a single item instead of the pending backlog")

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
	opts := engineOptions(cfg)

	if *itemID > 0 {
		result, err := engine.Evaluate(ctx, *itemID, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Dedupe failed: %v\n", err)
			return 1
		}
		fmt.Printf("item_id=%d action=%s cluster_key=%s cluster_id=%d\n", result.ItemID, result.Action, result.ClusterKey, result.ClusterID)
		for _, merged := range result.MergedClusterIDs {
			fmt.Printf("absorbed_cluster_id=%d\n", merged)
		}
		return 0
	}

	result, err := engine.ProcessPending(ctx, *limit, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Dedupe failed: %v\n", err)
		return 1
	}

	fmt.Printf("processed=%d created=%d extended=%d merged=%d noops=%d\n",
		result.Processed, result.Created, result.Extended, result.Merged, result.Noops)
	return 0
}

// engineOptions maps config knobs onto engine options.
func engineOptions(cfg *config.Config) dedupe.Options {
	return dedupe.Options{
		Horizon:             cfg.DedupeHorizon,
		SimilarityThreshold: cfg.SimilarityThreshold,
		CandidateCap:        cfg.CandidateCap,
		StrategyOrder:       cfg.StrategyOrderList(),
	}
}
