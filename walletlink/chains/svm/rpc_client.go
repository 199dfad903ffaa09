package svm

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/rs/zerolog"

	"github.com/pushchain/push-wallet-link/walletlink/chains/common"
	wlerrors "github.com/pushchain/push-wallet-link/walletlink/errors"
	"github.com/pushchain/push-wallet-link/walletlink/rpcpool"
)

// RPCClient provides Solana RPC operations over a pool of endpoints.
type RPCClient struct {
	pool   *rpcpool.Manager
	urls   []string
	logger zerolog.Logger
}

var _ common.RPCClient = (*RPCClient)(nil)

// NewRPCClient builds the endpoint pool for rpcURLs. Health monitoring starts with Start.
func NewRPCClient(rpcURLs []string, poolConfig rpcpool.Config, expectedGenesisHash string, logger zerolog.Logger) (*RPCClient, error) {
	log := logger.With().Str("component", "svm_rpc_client").Logger()

	pool, err := rpcpool.NewManager(rpcURLs, poolConfig, NewClientFactory(), NewHealthChecker(expectedGenesisHash), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create RPC pool: %w", err)
	}

	return &RPCClient{
		pool:   pool,
		urls:   rpcURLs,
		logger: log,
	}, nil
}

// Start begins endpoint health monitoring
func (rc *RPCClient) Start(ctx context.Context) {
	rc.pool.Start(ctx)
}

// Close stops health monitoring and releases every endpoint
func (rc *RPCClient) Close() {
	rc.pool.Stop()
}

// URL returns the primary endpoint URL
func (rc *RPCClient) URL() string {
	if len(rc.urls) == 0 {
		return ""
	}
	return rc.urls[0]
}

// PoolStatus returns endpoint health for reporting
func (rc *RPCClient) PoolStatus() *rpcpool.HealthStatus {
	return rc.pool.Status()
}

// do runs fn with failover. Errors returned by the node itself are not retried
// against other endpoints and surface as *common.NodeError.
func (rc *RPCClient) do(ctx context.Context, operation string, fn func(*rpc.Client) error) error {
	err := rc.pool.Execute(ctx, operation, func(c rpcpool.Client) error {
		adapter, ok := c.(*clientAdapter)
		if !ok {
			return rpcpool.Permanent(fmt.Errorf("invalid client type: %T", c))
		}
		if err := fn(adapter.client); err != nil {
			var rpcErr *jsonrpc.RPCError
			if errors.As(err, &rpcErr) {
				return rpcpool.Permanent(&common.NodeError{
					Code:    rpcErr.Code,
					Message: rpcErr.Message,
					Data:    rpcErr.Data,
				})
			}
			return err
		}
		return nil
	})
	if err == nil {
		return nil
	}

	var nodeErr *common.NodeError
	if errors.As(err, &nodeErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return wlerrors.NewRPCError(operation, err)
}

// SendRawTransaction broadcasts already signed bytes
func (rc *RPCClient) SendRawTransaction(ctx context.Context, raw []byte, opts common.SendOptions) (solana.Signature, error) {
	maxRetries := opts.MaxRetries
	var sig solana.Signature
	err := rc.do(ctx, "send_raw_transaction", func(client *rpc.Client) error {
		var innerErr error
		sig, innerErr = client.SendRawTransactionWithOpts(ctx, raw, rpc.TransactionOpts{
			SkipPreflight:       opts.SkipPreflight,
			PreflightCommitment: rpc.CommitmentFinalized,
			MaxRetries:          &maxRetries,
		})
		return innerErr
	})
	return sig, err
}

// GetLatestBlockReference returns the latest blockhash and its validity bound
func (rc *RPCClient) GetLatestBlockReference(ctx context.Context, commitment rpc.CommitmentType) (common.BlockHeightBound, error) {
	var bound common.BlockHeightBound
	err := rc.do(ctx, "get_latest_blockhash", func(client *rpc.Client) error {
		resp, innerErr := client.GetLatestBlockhash(ctx, commitment)
		if innerErr != nil {
			return innerErr
		}
		if resp == nil || resp.Value == nil {
			return fmt.Errorf("empty latest blockhash response")
		}
		bound = common.BlockHeightBound{
			Blockhash:            resp.Value.Blockhash.String(),
			LastValidBlockHeight: resp.Value.LastValidBlockHeight,
		}
		return nil
	})
	return bound, err
}

// GetSignatureStatuses queries statuses in one batched call
func (rc *RPCClient) GetSignatureStatuses(ctx context.Context, signatures []solana.Signature) ([]*common.SignatureStatus, error) {
	var statuses []*common.SignatureStatus
	err := rc.do(ctx, "get_signature_statuses", func(client *rpc.Client) error {
		resp, innerErr := client.GetSignatureStatuses(ctx, false, signatures...)
		if innerErr != nil {
			return innerErr
		}
		if resp == nil {
			return fmt.Errorf("empty signature status response")
		}
		statuses = make([]*common.SignatureStatus, len(signatures))
		for i, v := range resp.Value {
			if i >= len(statuses) || v == nil {
				continue
			}
			statuses[i] = &common.SignatureStatus{
				Slot:               v.Slot,
				Confirmations:      v.Confirmations,
				ConfirmationStatus: v.ConfirmationStatus,
				Err:                v.Err,
			}
		}
		return nil
	})
	return statuses, err
}

// GetBlockHeight returns the current block height
func (rc *RPCClient) GetBlockHeight(ctx context.Context, commitment rpc.CommitmentType) (uint64, error) {
	var height uint64
	err := rc.do(ctx, "get_block_height", func(client *rpc.Client) error {
		var innerErr error
		height, innerErr = client.GetBlockHeight(ctx, commitment)
		return innerErr
	})
	return height, err
}

// GetFeeForMessage returns the node's base fee quote for a base64 message, nil when unknown
func (rc *RPCClient) GetFeeForMessage(ctx context.Context, messageBase64 string) (*uint64, error) {
	var fee *uint64
	err := rc.do(ctx, "get_fee_for_message", func(client *rpc.Client) error {
		resp, innerErr := client.GetFeeForMessage(ctx, messageBase64, rpc.CommitmentProcessed)
		if innerErr != nil {
			return innerErr
		}
		if resp != nil {
			fee = resp.Value
		}
		return nil
	})
	return fee, err
}

// GetRecentPrioritizationFees returns recent per-compute-unit prices in micro-lamports
func (rc *RPCClient) GetRecentPrioritizationFees(ctx context.Context, accounts []solana.PublicKey) ([]uint64, error) {
	var fees []uint64
	err := rc.do(ctx, "get_recent_prioritization_fees", func(client *rpc.Client) error {
		result, innerErr := client.GetRecentPrioritizationFees(ctx, accounts)
		if innerErr != nil {
			return innerErr
		}
		fees = make([]uint64, 0, len(result))
		for _, f := range result {
			fees = append(fees, f.PrioritizationFee)
		}
		return nil
	})
	return fees, err
}

// SimulateTransaction runs msg unsigned against the latest blockhash and
// returns the compute units it consumed.
func (rc *RPCClient) SimulateTransaction(ctx context.Context, msg *solana.Message) (uint64, error) {
	tx := &solana.Transaction{
		Signatures: make([]solana.Signature, msg.Header.NumRequiredSignatures),
		Message:    *msg,
	}

	var result *rpc.SimulateTransactionResult
	err := rc.do(ctx, "simulate_transaction", func(client *rpc.Client) error {
		resp, innerErr := client.SimulateTransactionWithOpts(ctx, tx, &rpc.SimulateTransactionOpts{
			SigVerify:              false,
			ReplaceRecentBlockhash: true,
			Commitment:             rpc.CommitmentProcessed,
		})
		if innerErr != nil {
			return innerErr
		}
		if resp != nil {
			result = resp.Value
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	// a failing program is a property of the message, not of the endpoint
	switch {
	case result == nil:
		return 0, fmt.Errorf("simulation returned no result")
	case result.Err != nil:
		return 0, fmt.Errorf("simulation failed: %v", result.Err)
	case result.UnitsConsumed == nil:
		return 0, fmt.Errorf("simulation did not report units consumed")
	}
	return *result.UnitsConsumed, nil
}

// GetMinimumBalanceForRentExemption returns the rent exempt balance for dataSize bytes
func (rc *RPCClient) GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64) (uint64, error) {
	var lamports uint64
	err := rc.do(ctx, "get_minimum_balance_for_rent_exemption", func(client *rpc.Client) error {
		var innerErr error
		lamports, innerErr = client.GetMinimumBalanceForRentExemption(ctx, dataSize, rpc.CommitmentFinalized)
		return innerErr
	})
	return lamports, err
}

// GetVersion returns the solana-core version of the node
func (rc *RPCClient) GetVersion(ctx context.Context) (string, error) {
	var version string
	err := rc.do(ctx, "get_version", func(client *rpc.Client) error {
		resp, innerErr := client.GetVersion(ctx)
		if innerErr != nil {
			return innerErr
		}
		version = resp.SolanaCore
		return nil
	})
	return version, err
}

// GetGenesisHash returns the network genesis hash
func (rc *RPCClient) GetGenesisHash(ctx context.Context) (string, error) {
	var hash string
	err := rc.do(ctx, "get_genesis_hash", func(client *rpc.Client) error {
		h, innerErr := client.GetGenesisHash(ctx)
		if innerErr != nil {
			return innerErr
		}
		hash = h.String()
		return nil
	})
	return hash, err
}
