package worker

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	stderrors "errors"
	"strconv"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"

	"github.com/pushchain/push-wallet-link/walletlink/chains/common"
	"github.com/pushchain/push-wallet-link/walletlink/constant"
	"github.com/pushchain/push-wallet-link/walletlink/errors"
	"github.com/pushchain/push-wallet-link/walletlink/txconfirm"
	"github.com/pushchain/push-wallet-link/walletlink/txstore"
)

const blockSubscription = "block"

// ServerInfo describes the connected network
type ServerInfo struct {
	Testnet     bool   `json:"testnet"`
	BlockHeight uint64 `json:"blockHeight"`
	BlockHash   string `json:"blockHash"`
	Shortcut    string `json:"shortcut"`
	URL         string `json:"url"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	Decimals    int    `json:"decimals"`
}

// FeeLevel is one fee estimate rendered as decimal strings
type FeeLevel struct {
	FeePerTx   string `json:"feePerTx"`
	FeePerUnit string `json:"feePerUnit"`
	FeeLimit   string `json:"feeLimit"`
}

// PushResult is the outcome of PushTransaction
type PushResult struct {
	Signature     string `json:"signature"`
	Status        string `json:"status"`
	Resubmissions int    `json:"resubmissions"`
}

// SubscribeResult answers subscription requests
type SubscribeResult struct {
	Subscribed bool   `json:"subscribed"`
	ID         string `json:"id,omitempty"`
}

// BlockNotification is posted for every block subscription tick
type BlockNotification struct {
	BlockHeight uint64 `json:"blockHeight"`
	BlockHash   string `json:"blockHash"`
}

// TransactionStatus is the persisted view of a submitted transaction
type TransactionStatus struct {
	Signature            string `json:"signature"`
	Status               string `json:"status"`
	Blockhash            string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	Resubmissions        int    `json:"resubmissions"`
	Error                string `json:"error,omitempty"`
}

func (w *Worker) getInfo(ctx context.Context) (*ServerInfo, error) {
	var bound common.BlockHeightBound
	err := errors.RetryWithConfig(ctx, func() error {
		var err error
		bound, err = w.client.GetLatestBlockReference(ctx, rpc.CommitmentFinalized)
		return err
	}, w.retry)
	if err != nil {
		return nil, err
	}

	var version string
	err = errors.RetryWithConfig(ctx, func() error {
		var err error
		version, err = w.client.GetVersion(ctx)
		return err
	}, w.retry)
	if err != nil {
		return nil, err
	}

	testnet, err := w.isTestnet(ctx)
	if err != nil {
		return nil, err
	}

	shortcut := "sol"
	if testnet {
		shortcut = "dsol"
	}
	return &ServerInfo{
		Testnet:     testnet,
		BlockHeight: bound.LastValidBlockHeight,
		BlockHash:   bound.Blockhash,
		Shortcut:    shortcut,
		URL:         w.client.URL(),
		Name:        "Solana",
		Version:     version,
		Decimals:    constant.LamportsDecimals,
	}, nil
}

// isTestnet compares the genesis hash against mainnet once per session
func (w *Worker) isTestnet(ctx context.Context) (bool, error) {
	if v, ok := w.state.cachedTestnet(); ok {
		return v, nil
	}
	var genesis string
	err := errors.RetryWithConfig(ctx, func() error {
		var err error
		genesis, err = w.client.GetGenesisHash(ctx)
		return err
	}, w.retry)
	if err != nil {
		return false, err
	}
	testnet := genesis != constant.MainnetGenesisHash
	w.state.setTestnet(testnet)
	return testnet, nil
}

func (w *Worker) estimateFee(ctx context.Context, req EstimateFee) ([]FeeLevel, error) {
	if req.Message == "" {
		return nil, errors.NewEstimationError("Could not estimate fee for transaction.", nil)
	}
	message, err := hex.DecodeString(strings.TrimPrefix(req.Message, "0x"))
	if err != nil {
		return nil, errors.NewEstimationError("Could not estimate fee for transaction.", err)
	}

	est, err := w.collector.Estimate(ctx, message, req.IsCreatingAccount)
	if err != nil {
		return nil, err
	}
	return []FeeLevel{{
		FeePerTx:   strconv.FormatUint(est.FeePerTransaction, 10),
		FeePerUnit: strconv.FormatUint(est.FeePerComputeUnit, 10),
		FeeLimit:   strconv.FormatUint(uint64(est.ComputeUnitLimit), 10),
	}}, nil
}

// pushTransaction broadcasts the payload and blocks until it lands, fails or expires.
func (w *Worker) pushTransaction(ctx context.Context, req PushTransaction) (*PushResult, error) {
	raw, err := DecodeTransactionPayload(req.Payload)
	if err != nil {
		return nil, err
	}

	sub, err := w.submitter.Submit(ctx, raw)
	if err != nil {
		return nil, err
	}

	// a duplicate push joins the running watch
	watch := w.watch(ctx, txconfirm.Target{
		Signature: sub.Signature,
		Raw:       sub.Raw,
		Bound:     sub.Bound,
	})

	res, err := watch.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return &PushResult{
		Signature:     res.Signature.String(),
		Status:        string(res.Status),
		Resubmissions: res.Resubmissions,
	}, nil
}

func (w *Worker) subscribeBlock() (*SubscribeResult, error) {
	id, _ := w.state.addSubscription(blockSubscription, func(ctx context.Context, done chan struct{}) {
		// created before the goroutine so the first tick is one interval from now
		ticker := w.clock.Ticker(w.blockInterval)
		go w.pollBlocks(ctx, ticker, done)
	})
	return &SubscribeResult{Subscribed: true, ID: id}, nil
}

func (w *Worker) unsubscribeBlock() (*SubscribeResult, error) {
	w.state.removeSubscription(blockSubscription)
	return &SubscribeResult{Subscribed: false}, nil
}

func (w *Worker) pollBlocks(ctx context.Context, ticker *clock.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bound, err := w.client.GetLatestBlockReference(ctx, rpc.CommitmentFinalized)
			if err != nil {
				if ctx.Err() == nil {
					w.logger.Warn().Err(err).Msg("block subscription poll failed")
				}
				continue
			}
			if bound.LastValidBlockHeight == 0 || w.notify == nil {
				continue
			}
			w.notify.Notify(Notification{
				Type: blockSubscription,
				Payload: BlockNotification{
					BlockHeight: bound.LastValidBlockHeight,
					BlockHash:   bound.Blockhash,
				},
			})
		}
	}
}

func (w *Worker) getTransactionStatus(ctx context.Context, req GetTransactionStatus) (*TransactionStatus, error) {
	if req.Signature == "" {
		return nil, errors.NewValidationError("signature is required")
	}
	if _, err := solana.SignatureFromBase58(req.Signature); err != nil {
		return nil, errors.NewValidationError("signature is not valid base58")
	}

	if w.store == nil {
		if watch := w.activeWatch(req.Signature); watch != nil {
			return &TransactionStatus{Signature: req.Signature, Status: string(watch.Status())}, nil
		}
		return nil, errors.NewValidationError("transaction not found")
	}

	tx, err := w.store.Get(ctx, req.Signature)
	if stderrors.Is(err, txstore.ErrNotFound) {
		return nil, errors.NewValidationError("transaction not found")
	}
	if err != nil {
		return nil, errors.NewDatabaseError("failed to load transaction", err)
	}
	return &TransactionStatus{
		Signature:            tx.Signature,
		Status:               tx.Status,
		Blockhash:            tx.Blockhash,
		LastValidBlockHeight: tx.LastValidBlockHeight,
		Resubmissions:        tx.Resubmissions,
		Error:                tx.ErrorMsg,
	}, nil
}

// DecodeTransactionPayload accepts hex (optionally 0x prefixed), base58 or base64.
func DecodeTransactionPayload(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, errors.NewValidationError("transaction payload is empty")
	}
	if b, err := hex.DecodeString(strings.TrimPrefix(payload, "0x")); err == nil {
		return b, nil
	}
	if b, err := base58.Decode(payload); err == nil && len(b) > 0 {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(payload); err == nil {
		return b, nil
	}
	return nil, errors.NewValidationError("transaction payload is not hex, base58 or base64")
}
