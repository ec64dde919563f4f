package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"horse.fit/collate/internal/cli"
	"horse.fit/collate/internal/config"
	"horse.fit/collate/internal/db"
	"horse.fit/collate/internal/dedupe"
	"horse.fit/collate/internal/ingest"
	"horse.fit/collate/internal/logging"
)

const maxIngestLineBytes = 4 * 1024 * 1024

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 60*time.Second, "Command timeout")
	payload := fs.String("payload", "", "Inline item payload JSON")
	payloadFile := fs.String("payload-file", "", "Path to a payload JSON file, or NDJSON with one payload per line (overrides --payload; use - for stdin)")
	evaluate := fs.Bool("evaluate", false, "Run the dedupe evaluation immediately after each ingest")

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

	payloads, err := collectPayloads(*payload, *payloadFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid payload input: %v\n", err)
		return 2
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

	svc := ingest.NewService(pool, logger)

	var engine *dedupe.Engine
	if *evaluate {
		engine = dedupe.NewEngine(pool, logger)
	}

	inserted := 0
	refreshed := 0
	for i, raw := range payloads {
		result, err := svc.IngestOne(ctx, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingest failed on payload %d: %v\n", i+1, err)
			return 1
		}
		if result.Inserted {
			inserted++
		} else {
			refreshed++
		}
		fmt.Printf("item_uuid=%s item_id=%d inserted=%t\n", result.ItemUUID, result.ItemID, result.Inserted)

		if engine != nil {
			evalResult, err := engine.Evaluate(ctx, result.ItemID, engineOptions(cfg))
			if err != nil {
				fmt.Fprintf(os.Stderr, "Dedupe failed on item %d: %v\n", result.ItemID, err)
				return 1
			}
			fmt.Printf("item_id=%d action=%s cluster_key=%s\n", evalResult.ItemID, evalResult.Action, evalResult.ClusterKey)
		}
	}

	fmt.Printf("done: inserted=%d refreshed=%d\n", inserted, refreshed)
	return 0
}

// collectPayloads resolves the payload input: a file (JSON document or
// NDJSON, - for stdin) or an inline value.
func collectPayloads(inlineValue, filePath string) ([]json.RawMessage, error) {
	path := strings.TrimSpace(filePath)
	if path == "" {
		trimmed := strings.TrimSpace(inlineValue)
		if trimmed == "" {
			return nil, fmt.Errorf("either --payload or --payload-file is required")
		}
		return []json.RawMessage{json.RawMessage(trimmed)}, nil
	}

	var reader io.Reader
	if path == "-" {
		reader = os.Stdin
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open payload file %q: %w", path, err)
		}
		defer file.Close()
		reader = file
	}

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read payload input: %w", err)
	}

	trimmed := strings.TrimSpace(string(content))
	if trimmed == "" {
		return nil, fmt.Errorf("payload input is empty")
	}

	// A single JSON document passes through whole; anything else is NDJSON.
	if json.Valid([]byte(trimmed)) {
		return []json.RawMessage{json.RawMessage(trimmed)}, nil
	}

	var payloads []json.RawMessage
	scanner := bufio.NewScanner(strings.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), maxIngestLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !json.Valid([]byte(line)) {
			return nil, fmt.Errorf("line %d is not valid JSON", lineNo)
		}
		payloads = append(payloads, json.RawMessage(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan payload lines: %w", err)
	}
	if len(payloads) == 0 {
		return nil, fmt.Errorf("payload input contains no JSON lines")
	}
	return payloads, nil
}
