package config

import "time"

type Config struct {
	// Log Config
	LogLevel   int    `json:"log_level"`   // e.g., 0 = debug, 1 = info, etc.
	LogFormat  string `json:"log_format"`  // "json" or "console"
	LogSampler bool   `json:"log_sampler"` // if true, samples logs (e.g., 1 in 5)

	// Node Config
	NodeHome string `json:"node_home"` // Node home directory (default: ~/.pwallet)

	// Solana RPC configuration
	RPCURLs             []string      `json:"rpc_urls"`              // RPC endpoints
	ExpectedGenesisHash string        `json:"expected_genesis_hash"` // Optional genesis hash check for every endpoint
	RPCPoolConfig       RPCPoolConfig `json:"rpc_pool"`

	// Transaction submission
	SubmitTimeoutSeconds int `json:"submit_timeout_seconds"` // Bounded wait for a broadcast acknowledgment (default: 30)
	DedupCacheSize       int `json:"dedup_cache_size"`       // Remembered submissions (default: 256)
	DedupTTLSeconds      int `json:"dedup_ttl_seconds"`      // How long a submission is remembered (default: 120)

	// Confirmation monitoring
	PollIntervalMillis     int    `json:"poll_interval_millis"`     // Signature status polling cadence (default: 2000)
	ResubmitIntervalMillis int    `json:"resubmit_interval_millis"` // Minimum gap between rebroadcasts (default: 2000)
	Commitment             string `json:"commitment"`               // "confirmed" or "finalized"

	// Block subscription
	BlockSubscribeIntervalMillis int `json:"block_subscribe_interval_millis"` // default: 10000

	// Query Server Config
	QueryServerPort int `json:"query_server_port"` // Port for HTTP query server (default: 8080)

	// Database
	DatabaseFile string `json:"database_file"` // SQLite file under <NodeHome>/data (default: wallet_link.db)

	// Transaction Cleanup
	TransactionCleanupIntervalSeconds int `json:"transaction_cleanup_interval_seconds"` // How often to prune terminal transactions (default: 3600)
	TransactionRetentionHours         int `json:"transaction_retention_hours"`          // How long terminal transactions are kept (default: 24)
}

// RPCPoolConfig controls endpoint health tracking and selection.
type RPCPoolConfig struct {
	HealthCheckIntervalSeconds int    `json:"health_check_interval_seconds"`
	UnhealthyThreshold         int    `json:"unhealthy_threshold"`
	RecoveryIntervalSeconds    int    `json:"recovery_interval_seconds"`
	MinHealthyEndpoints        int    `json:"min_healthy_endpoints"`
	RequestTimeoutSeconds      int    `json:"request_timeout_seconds"`
	LoadBalancingStrategy      string `json:"load_balancing_strategy"` // "round-robin" or "weighted"
}

// HealthCheckInterval returns the health check cadence
func (p RPCPoolConfig) HealthCheckInterval() time.Duration {
	return time.Duration(p.HealthCheckIntervalSeconds) * time.Second
}

// RecoveryInterval returns how long an excluded endpoint waits before a recovery probe
func (p RPCPoolConfig) RecoveryInterval() time.Duration {
	return time.Duration(p.RecoveryIntervalSeconds) * time.Second
}

// RequestTimeout returns the per-request timeout
func (p RPCPoolConfig) RequestTimeout() time.Duration {
	return time.Duration(p.RequestTimeoutSeconds) * time.Second
}

// PollInterval returns the confirmation polling cadence
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

// ResubmitInterval returns the minimum gap between rebroadcasts
func (c *Config) ResubmitInterval() time.Duration {
	return time.Duration(c.ResubmitIntervalMillis) * time.Millisecond
}

// SubmitTimeout returns the broadcast acknowledgment bound
func (c *Config) SubmitTimeout() time.Duration {
	return time.Duration(c.SubmitTimeoutSeconds) * time.Second
}

// DedupTTL returns how long a submission is remembered
func (c *Config) DedupTTL() time.Duration {
	return time.Duration(c.DedupTTLSeconds) * time.Second
}

// BlockSubscribeInterval returns the block notification cadence
func (c *Config) BlockSubscribeInterval() time.Duration {
	return time.Duration(c.BlockSubscribeIntervalMillis) * time.Millisecond
}

// TransactionCleanupInterval returns how often terminal transactions are pruned
func (c *Config) TransactionCleanupInterval() time.Duration {
	return time.Duration(c.TransactionCleanupIntervalSeconds) * time.Second
}

// TransactionRetention returns how long terminal transactions are kept
func (c *Config) TransactionRetention() time.Duration {
	return time.Duration(c.TransactionRetentionHours) * time.Hour
}
