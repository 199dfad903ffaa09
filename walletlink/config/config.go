package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	configSubdir   = "config"
	configFileName = "pwallet_config.json"
)

//go:embed default_config.json
var defaultConfigJSON []byte

// orDefault sets *v to def when it holds the zero value
func orDefault[T comparable](v *T, def T) {
	var zero T
	if *v == zero {
		*v = def
	}
}

func applyDefaults(cfg *Config) {
	if len(cfg.RPCURLs) == 0 {
		var embedded Config
		if err := json.Unmarshal(defaultConfigJSON, &embedded); err == nil {
			cfg.RPCURLs = embedded.RPCURLs
		}
	}

	orDefault(&cfg.SubmitTimeoutSeconds, 30)
	orDefault(&cfg.DedupCacheSize, 256)
	orDefault(&cfg.DedupTTLSeconds, 120)
	orDefault(&cfg.PollIntervalMillis, 2000)
	orDefault(&cfg.ResubmitIntervalMillis, 2000)
	orDefault(&cfg.Commitment, "confirmed")
	orDefault(&cfg.BlockSubscribeIntervalMillis, 10000)
	orDefault(&cfg.QueryServerPort, 8080)
	orDefault(&cfg.DatabaseFile, "wallet_link.db")
	orDefault(&cfg.TransactionCleanupIntervalSeconds, 3600)
	orDefault(&cfg.TransactionRetentionHours, 24)

	pool := &cfg.RPCPoolConfig
	orDefault(&pool.HealthCheckIntervalSeconds, 30)
	orDefault(&pool.UnhealthyThreshold, 3)
	orDefault(&pool.RecoveryIntervalSeconds, 300)
	orDefault(&pool.MinHealthyEndpoints, 1)
	orDefault(&pool.RequestTimeoutSeconds, 10)
	orDefault(&pool.LoadBalancingStrategy, "round-robin")
}

func validateConfig(cfg *Config) error {
	if cfg.LogLevel < 0 || cfg.LogLevel > 5 {
		return fmt.Errorf("log level must be between 0 and 5")
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return fmt.Errorf("log format must be 'json' or 'console'")
	}

	applyDefaults(cfg)

	switch {
	case len(cfg.RPCURLs) == 0:
		return fmt.Errorf("at least one RPC URL is required")
	case cfg.Commitment != "confirmed" && cfg.Commitment != "finalized":
		return fmt.Errorf("commitment must be 'confirmed' or 'finalized'")
	case cfg.PollIntervalMillis < 0 || cfg.ResubmitIntervalMillis < 0:
		return fmt.Errorf("poll and resubmit intervals must be positive")
	}

	switch cfg.RPCPoolConfig.LoadBalancingStrategy {
	case "round-robin", "weighted":
		return nil
	default:
		return fmt.Errorf("load balancing strategy must be 'round-robin' or 'weighted'")
	}
}

// Validate fills defaults and checks the config in place.
func Validate(cfg *Config) error {
	return validateConfig(cfg)
}

// Save writes the given config to <NodeDir>/config/pwallet_config.json.
func Save(cfg *Config, basePath string) error {
	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	configDir := filepath.Join(basePath, configSubdir)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(configDir, configFileName)
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load reads and returns the config from <BasePath>/config/pwallet_config.json.
func Load(basePath string) (Config, error) {
	configFile := filepath.Join(basePath, configSubdir, configFileName)
	data, err := os.ReadFile(filepath.Clean(configFile))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadDefaultConfig loads the default configuration from embedded JSON
func LoadDefaultConfig() (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(defaultConfigJSON, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal default config: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid default config: %w", err)
	}
	return &cfg, nil
}
