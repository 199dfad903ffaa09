package svm

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go/rpc"

	"github.com/pushchain/push-wallet-link/walletlink/rpcpool"
)

// clientAdapter wraps rpc.Client to implement rpcpool.Client
type clientAdapter struct {
	client *rpc.Client
}

// Ping fetches the confirmed slot
func (a *clientAdapter) Ping(ctx context.Context) error {
	_, err := a.client.GetSlot(ctx, rpc.CommitmentConfirmed)
	return err
}

// Close drops the client; rpc.Client holds no resources needing release
func (a *clientAdapter) Close() error {
	return nil
}

// NewClientFactory returns a ClientFactory for Solana endpoints
func NewClientFactory() rpcpool.ClientFactory {
	return func(url string) (rpcpool.Client, error) {
		if url == "" {
			return nil, fmt.Errorf("empty RPC URL")
		}
		return &clientAdapter{client: rpc.New(url)}, nil
	}
}

// NewHealthChecker creates a health checker for Solana endpoints. An empty
// expectedGenesisHash skips the network check.
func NewHealthChecker(expectedGenesisHash string) rpcpool.HealthChecker {
	return &healthChecker{expectedGenesisHash: expectedGenesisHash}
}

type healthChecker struct {
	expectedGenesisHash string
}

// CheckHealth verifies node health, a non-zero slot and the genesis hash
func (h *healthChecker) CheckHealth(ctx context.Context, client rpcpool.Client) error {
	adapter, ok := client.(*clientAdapter)
	if !ok {
		return fmt.Errorf("invalid client type for SVM health check: %T", client)
	}
	rpcClient := adapter.client

	health, err := rpcClient.GetHealth(ctx)
	if err != nil {
		return fmt.Errorf("failed to get health status: %w", err)
	}
	if health != "ok" {
		return fmt.Errorf("node is not healthy: %s", health)
	}

	slot, err := rpcClient.GetSlot(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return fmt.Errorf("failed to get slot: %w", err)
	}
	if slot == 0 {
		return fmt.Errorf("slot is zero, chain may not be synced")
	}

	if h.expectedGenesisHash != "" {
		genesisHash, err := rpcClient.GetGenesisHash(ctx)
		if err != nil {
			return fmt.Errorf("failed to get genesis hash: %w", err)
		}
		if genesisHash.String() != h.expectedGenesisHash {
			return fmt.Errorf("genesis hash mismatch: expected %s, got %s",
				h.expectedGenesisHash, genesisHash.String())
		}
	}

	return nil
}
