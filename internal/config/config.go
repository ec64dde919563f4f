package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"COLLATE_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"COLLATE_DB_MAX_CONNS" default:"8"`

	// Dedupe engine knobs, resolved here and passed into every evaluation.
	DedupeHorizon       time.Duration `envconfig:"DEDUPE_HORIZON" default:"72h"`
	SimilarityThreshold float64       `envconfig:"DEDUPE_SIMILARITY_THRESHOLD" default:"0.92"`
	CandidateCap        int           `envconfig:"DEDUPE_CANDIDATE_CAP" default:"50"`
	StrategyOrder       string        `envconfig:"DEDUPE_STRATEGY_ORDER" default:"exact_url,content_hash,title_similarity"`

	APIHost string `envconfig:"COLLATE_API_HOST" default:"127.0.0.1"`
	APIPort int    `envconfig:"COLLATE_API_PORT" default:"8087"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("COLLATE_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("COLLATE_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("COLLATE_DB_MIN_CONNS (%d) cannot exceed COLLATE_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.DedupeHorizon <= 0 {
		return fmt.Errorf("DEDUPE_HORIZON must be > 0")
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("DEDUPE_SIMILARITY_THRESHOLD must be in (0, 1]")
	}
	if c.CandidateCap < 1 {
		return fmt.Errorf("DEDUPE_CANDIDATE_CAP must be >= 1")
	}
	if len(c.StrategyOrderList()) == 0 {
		return fmt.Errorf("DEDUPE_STRATEGY_ORDER must name at least one strategy")
	}
	if c.APIPort < 1 || c.APIPort > 65535 {
		return fmt.Errorf("COLLATE_API_PORT must be a valid port")
	}
	return nil
}

// StrategyOrderList splits the configured strategy order into trimmed,
// deduplicated names preserving order.
func (c *Config) StrategyOrderList() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.StrategyOrder, ",")
	names := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		if _, exists := seen[name]; exists {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}
