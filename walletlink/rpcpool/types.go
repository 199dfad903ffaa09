package rpcpool

import (
	"context"
	"time"

	"github.com/pushchain/push-wallet-link/walletlink/config"
)

// Client is a pooled RPC connection.
type Client interface {
	// Ping performs a basic health check on the client
	Ping(ctx context.Context) error

	// Close closes the client connection
	Close() error
}

// ClientFactory creates a client for a URL
type ClientFactory func(url string) (Client, error)

// HealthChecker performs an active probe of a client
type HealthChecker interface {
	CheckHealth(ctx context.Context, client Client) error
}

// Config controls the pool
type Config struct {
	HealthCheckInterval time.Duration
	UnhealthyThreshold  int
	RecoveryInterval    time.Duration
	MinHealthyEndpoints int
	RequestTimeout      time.Duration
	Strategy            LoadBalancingStrategy
}

// ConfigFrom converts the on-disk pool settings
func ConfigFrom(c config.RPCPoolConfig) Config {
	return Config{
		HealthCheckInterval: c.HealthCheckInterval(),
		UnhealthyThreshold:  c.UnhealthyThreshold,
		RecoveryInterval:    c.RecoveryInterval(),
		MinHealthyEndpoints: c.MinHealthyEndpoints,
		RequestTimeout:      c.RequestTimeout(),
		Strategy:            LoadBalancingStrategy(c.LoadBalancingStrategy),
	}
}

// HealthStatus represents the health status of the RPC pool
type HealthStatus struct {
	TotalEndpoints int              `json:"total_endpoints"`
	HealthyCount   int              `json:"healthy_count"`
	DegradedCount  int              `json:"degraded_count"`
	ExcludedCount  int              `json:"excluded_count"`
	Strategy       string           `json:"strategy"`
	Endpoints      []EndpointStatus `json:"endpoints"`
}

// EndpointStatus represents the status of a single endpoint
type EndpointStatus struct {
	URL            string    `json:"url"`
	State          string    `json:"state"`
	HealthScore    float64   `json:"health_score"`
	AverageLatency int64     `json:"average_latency_ms"`
	RequestCount   uint64    `json:"request_count"`
	FailureCount   uint64    `json:"failure_count"`
	LastUsed       time.Time `json:"last_used"`
	LastError      string    `json:"last_error,omitempty"`
}
