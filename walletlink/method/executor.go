package method

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/rs/zerolog"

	"github.com/pushchain/push-wallet-link/walletlink/device"
	"github.com/pushchain/push-wallet-link/walletlink/errors"
)

// ProgressEvent reports a finished bundle item. Progress is the 0-based index.
type ProgressEvent struct {
	Total    int `json:"total"`
	Progress int `json:"progress"`
	Response any `json:"response"`
}

// ProgressSink receives bundle progress. Implementations must not block.
type ProgressSink interface {
	OnProgress(ProgressEvent)
}

// ProgressFunc adapts a function to ProgressSink
type ProgressFunc func(ProgressEvent)

func (f ProgressFunc) OnProgress(e ProgressEvent) { f(e) }

// Address is one exported address
type Address struct {
	Path           []uint32 `json:"path"`
	SerializedPath string   `json:"serializedPath"`
	Address        string   `json:"address"`
}

// Response holds the ordered results of a batch
type Response[T any] struct {
	Bundled bool
	Items   []T
}

// Value returns the single result for an unbundled request and the slice otherwise.
func (r *Response[T]) Value() any {
	if !r.Bundled && len(r.Items) == 1 {
		return r.Items[0]
	}
	return r.Items
}

// Executor runs device methods against a session.
type Executor struct {
	session *device.Session
	logger  zerolog.Logger
}

// NewExecutor creates a new method executor.
func NewExecutor(session *device.Session, logger zerolog.Logger) *Executor {
	return &Executor{
		session: session,
		logger:  logger.With().Str("component", "method_executor").Logger(),
	}
}

// GetAddress exports one address or a bundle of addresses. Items whose
// display flag is set are first fetched silently and compared against the
// expected address. Any failure aborts the batch with no results.
func (e *Executor) GetAddress(ctx context.Context, req GetAddressRequest, sink ProgressSink) (*Response[Address], error) {
	coin, err := LookupCoin(req.Coin)
	if err != nil {
		return nil, err
	}
	items, bundled, err := req.normalize(coin)
	if err != nil {
		return nil, err
	}

	lease, err := e.session.Acquire()
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	logger := e.logger.With().Str("coin", coin.Name).Int("total", len(items)).Logger()
	logger.Debug().Bool("bundled", bundled).Msg("exporting addresses")

	results, err := runBatch(ctx, len(items), bundled, sink, func(ctx context.Context, i int) (Address, error) {
		return e.exportAddress(ctx, lease, coin, items[i])
	})
	if err != nil {
		logger.Warn().Err(err).Msg("address export aborted")
		return nil, err
	}
	return &Response[Address]{Bundled: bundled, Items: results}, nil
}

func (e *Executor) exportAddress(ctx context.Context, lease *device.Lease, coin Coin, item addressBatchItem) (Address, error) {
	expected := item.expected

	if item.showDisplay {
		silent, err := e.callAddress(ctx, lease, coin, item, false)
		if err != nil {
			return Address{}, err
		}
		if expected != "" {
			if expected != silent {
				return Address{}, errors.NewAddressNotMatchError(expected, silent)
			}
		} else {
			expected = silent
		}
	}

	confirmed, err := e.callAddress(ctx, lease, coin, item, item.showDisplay)
	if err != nil {
		return Address{}, err
	}
	if item.showDisplay && confirmed != expected {
		return Address{}, errors.NewAddressNotMatchError(expected, confirmed)
	}

	return Address{
		Path:           item.path,
		SerializedPath: item.path.String(),
		Address:        confirmed,
	}, nil
}

func (e *Executor) callAddress(ctx context.Context, lease *device.Lease, coin Coin, item addressBatchItem, show bool) (string, error) {
	msg, err := lease.TypedCall(ctx, coin.AddressCommand, coin.AddressResponse, deviceAddressParams{
		AddressN:    item.path,
		ShowDisplay: show,
		Chunkify:    item.chunkify,
	})
	if err != nil {
		return "", err
	}
	var resp struct {
		Address string `json:"address"`
	}
	if err := msg.Decode(&resp); err != nil {
		return "", errors.NewDeviceError(errors.CodeUnexpectedResponse, err.Error(), err)
	}
	return resp.Address, nil
}

// SignedTransaction is the device signature over a serialized transaction
type SignedTransaction struct {
	Signature []byte `json:"signature"`
}

// SignTransaction has the device sign a serialized Solana message.
func (e *Executor) SignTransaction(ctx context.Context, req SignTransactionRequest) (*SignedTransaction, error) {
	path, err := ValidatePath(req.Path, coins["solana"].MinPathDepth)
	if err != nil {
		return nil, err
	}
	if len(req.SerializedTx) == 0 {
		return nil, errors.NewValidationError("Transaction is empty")
	}

	lease, err := e.session.Acquire()
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	results, err := runBatch(ctx, 1, false, nil, func(ctx context.Context, _ int) (*SignedTransaction, error) {
		return e.signSolana(ctx, lease, path, req.SerializedTx)
	})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

func (e *Executor) signSolana(ctx context.Context, lease *device.Lease, path accounts.DerivationPath, tx []byte) (*SignedTransaction, error) {
	msg, err := lease.TypedCall(ctx, "SolanaSignTx", "SolanaTxSignature", struct {
		AddressN     []uint32 `json:"address_n"`
		SerializedTx string   `json:"serialized_tx"`
	}{AddressN: path, SerializedTx: hex.EncodeToString(tx)})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Signature string `json:"signature"`
	}
	if err := msg.Decode(&resp); err != nil {
		return nil, errors.NewDeviceError(errors.CodeUnexpectedResponse, err.Error(), err)
	}
	sig, err := hex.DecodeString(resp.Signature)
	if err != nil || len(sig) != 64 {
		return nil, errors.NewDeviceError(errors.CodeUnexpectedResponse,
			fmt.Sprintf("invalid signature from device: %q", resp.Signature), err)
	}
	return &SignedTransaction{Signature: sig}, nil
}

// runBatch executes step for every index in order. Cancellation is honoured
// between items; progress is reported only for bundles.
func runBatch[T any](ctx context.Context, total int, bundled bool, sink ProgressSink, step func(context.Context, int) (T, error)) ([]T, error) {
	results := make([]T, 0, total)
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewDeviceError(errors.CodeActionCancelled, "Action cancelled", err)
		}

		resp, err := step(ctx, i)
		if err != nil {
			return nil, err
		}
		results = append(results, resp)

		if bundled && sink != nil {
			sink.OnProgress(ProgressEvent{Total: total, Progress: i, Response: resp})
		}
	}
	return results, nil
}
