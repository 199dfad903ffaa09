package common

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// SendOptions controls a raw broadcast.
type SendOptions struct {
	SkipPreflight bool
	MaxRetries    uint
}

// BlockHeightBound is the validity window of a signed transaction.
type BlockHeightBound struct {
	Blockhash            string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// Expired reports whether height lies past the bound. The bound itself is inclusive.
func (b BlockHeightBound) Expired(height uint64) bool {
	return height > b.LastValidBlockHeight
}

// SignatureStatus is the node's view of one signature.
type SignatureStatus struct {
	Slot               uint64
	Confirmations      *uint64
	ConfirmationStatus rpc.ConfirmationStatusType
	// Err is the on-chain execution error, nil on success.
	Err interface{}
}

// RPCClient is the chain node capability consumed by the fee collector,
// submitter and confirmation monitor. Implementations must be safe for
// concurrent use.
type RPCClient interface {
	SendRawTransaction(ctx context.Context, raw []byte, opts SendOptions) (solana.Signature, error)
	GetLatestBlockReference(ctx context.Context, commitment rpc.CommitmentType) (BlockHeightBound, error)
	// GetSignatureStatuses returns one entry per signature, nil when the node
	// has no record of it yet.
	GetSignatureStatuses(ctx context.Context, signatures []solana.Signature) ([]*SignatureStatus, error)
	GetBlockHeight(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
}
