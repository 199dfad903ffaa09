package api

import (
	"context"

	"github.com/pushchain/push-wallet-link/walletlink/rpcpool"
	"github.com/pushchain/push-wallet-link/walletlink/store"
	"github.com/pushchain/push-wallet-link/walletlink/worker"
)

// TransactionReader reads persisted submissions
type TransactionReader interface {
	Get(ctx context.Context, signature string) (*store.SubmittedTransaction, error)
	History(ctx context.Context, signature string) ([]store.StatusTransition, error)
}

// PoolStatusProvider exposes RPC pool health
type PoolStatusProvider interface {
	PoolStatus() *rpcpool.HealthStatus
}

// RequestHandler executes worker requests
type RequestHandler interface {
	Handle(ctx context.Context, req worker.Request) worker.Response
}
