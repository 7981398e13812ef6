package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	AnthropicAPIKey  string
	AnthropicBaseURL string
	Model            string
	LogLevel         string

	ResultsDir string
	InputDir   string
	InputCSV   string

	Workers         int
	ChunkTokens     int
	ChunkOverlap    int
	MaxAttempts     int
	RetryDelay      time.Duration
	CheckpointEvery int
	BatchSize       int

	WarehouseURL   string
	WarehouseQuery string

	NatsURL    string
	NatsToken  string
	StatusPort int

	SlackBotToken string
	SlackChannel  string
}

const defaultWarehouseQuery = "SELECT submitted_form_url FROM sec_archive LIMIT 1000"

func Load() Config {
	return Config{
		AnthropicAPIKey:  envStr("ANTHROPIC_API_KEY", ""),
		AnthropicBaseURL: envStr("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
		Model:            envStr("ENRICH_MODEL", "claude-3-haiku-20240307"),
		LogLevel:         envStr("LOG_LEVEL", "info"),
		ResultsDir:       envStr("ENRICH_RESULTS_DIR", "results"),
		InputDir:         envStr("ENRICH_INPUT_DIR", "input"),
		InputCSV:         envStr("ENRICH_INPUT_CSV", "INPUT.csv"),
		Workers:          envInt("ENRICH_WORKERS", 5),
		ChunkTokens:      envInt("ENRICH_CHUNK_TOKENS", 8000),
		ChunkOverlap:     envInt("ENRICH_CHUNK_OVERLAP", 1000),
		MaxAttempts:      envInt("ENRICH_MAX_ATTEMPTS", 5),
		RetryDelay:       envDuration("ENRICH_RETRY_DELAY", 5*time.Second),
		CheckpointEvery:  envInt("ENRICH_CHECKPOINT_EVERY", 10),
		BatchSize:        envInt("ENRICH_BATCH_SIZE", 100),
		WarehouseURL:     envStr("WAREHOUSE_URL", ""),
		WarehouseQuery:   envStr("WAREHOUSE_QUERY", defaultWarehouseQuery),
		NatsURL:          envStr("NATS_URL", ""),
		NatsToken:        envStr("NATS_TOKEN", ""),
		StatusPort:       envInt("ENRICH_STATUS_PORT", 0),
		SlackBotToken:    envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:     envStr("SLACK_CHANNEL", ""),
	}
}

// Validate checks the values that would otherwise fail deep inside a run.
func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("ENRICH_WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.ChunkTokens < 1 {
		return fmt.Errorf("ENRICH_CHUNK_TOKENS must be positive, got %d", c.ChunkTokens)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkTokens {
		return fmt.Errorf("ENRICH_CHUNK_OVERLAP must be in [0, %d), got %d", c.ChunkTokens, c.ChunkOverlap)
	}
	if c.MaxAttempts < 1 || c.MaxAttempts > 10 {
		return fmt.Errorf("ENRICH_MAX_ATTEMPTS must be 1-10, got %d", c.MaxAttempts)
	}
	if c.CheckpointEvery < 1 {
		return fmt.Errorf("ENRICH_CHECKPOINT_EVERY must be at least 1, got %d", c.CheckpointEvery)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("ENRICH_BATCH_SIZE must be at least 1, got %d", c.BatchSize)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
