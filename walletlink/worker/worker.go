package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pushchain/push-wallet-link/walletlink/chains/common"
	"github.com/pushchain/push-wallet-link/walletlink/config"
	"github.com/pushchain/push-wallet-link/walletlink/errors"
	"github.com/pushchain/push-wallet-link/walletlink/fees"
	"github.com/pushchain/push-wallet-link/walletlink/metrics"
	"github.com/pushchain/push-wallet-link/walletlink/store"
	"github.com/pushchain/push-wallet-link/walletlink/txconfirm"
	"github.com/pushchain/push-wallet-link/walletlink/txsubmit"
)

const resumeBatchSize = 100

// ChainClient is the RPC surface the worker needs
type ChainClient interface {
	common.RPCClient
	fees.FeeSource
	GetVersion(ctx context.Context) (string, error)
	GetGenesisHash(ctx context.Context) (string, error)
	URL() string
}

// TxStore persists submitted transactions
type TxStore interface {
	txsubmit.Recorder
	txconfirm.Recorder
	Get(ctx context.Context, signature string) (*store.SubmittedTransaction, error)
	GetNonTerminal(ctx context.Context, limit int) ([]store.SubmittedTransaction, error)
}

// Deps are the collaborators of a worker. Store, Metrics, Clock and Notify are optional.
type Deps struct {
	Client  ChainClient
	Store   TxStore
	Metrics *metrics.Metrics
	Clock   clock.Clock
	Notify  NotificationSink
	Logger  zerolog.Logger
}

// Worker serves requests for one session against one network.
type Worker struct {
	client    ChainClient
	store     TxStore
	submitter *txsubmit.Submitter
	monitor   *txconfirm.Monitor
	collector *fees.Collector
	state     *State
	clock     clock.Clock
	notify    NotificationSink
	retry     *errors.RetryConfig

	blockInterval time.Duration
	logger        zerolog.Logger

	watchMu sync.Mutex
	watches map[string]*txconfirm.Watch
	wg      sync.WaitGroup
}

// New creates a worker from cfg
func New(cfg *config.Config, deps Deps) *Worker {
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := deps.Logger.With().Str("component", "worker").Logger()

	var submitRecorder txsubmit.Recorder
	var confirmRecorder txconfirm.Recorder
	if deps.Store != nil {
		submitRecorder = deps.Store
		confirmRecorder = deps.Store
	}

	retry := errors.DefaultRetryConfig()
	retry.InitialDelay = 250 * time.Millisecond
	retry.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.Debug().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("retrying rpc call")
	}

	return &Worker{
		client: deps.Client,
		store:  deps.Store,
		submitter: txsubmit.NewSubmitter(txsubmit.Config{
			Client:     deps.Client,
			Recorder:   submitRecorder,
			Metrics:    deps.Metrics,
			Timeout:    cfg.SubmitTimeout(),
			Commitment: rpc.CommitmentFinalized,
			DedupSize:  cfg.DedupCacheSize,
			DedupTTL:   cfg.DedupTTL(),
			Logger:     deps.Logger,
		}),
		monitor: txconfirm.NewMonitor(txconfirm.Config{
			Client:           deps.Client,
			Clock:            clk,
			PollInterval:     cfg.PollInterval(),
			ResubmitInterval: cfg.ResubmitInterval(),
			Commitment:       rpc.CommitmentType(cfg.Commitment),
			Recorder:         confirmRecorder,
			Metrics:          deps.Metrics,
			Logger:           deps.Logger,
		}),
		collector:     fees.NewCollector(deps.Client, deps.Metrics, deps.Logger),
		state:         newState(),
		clock:         clk,
		notify:        deps.Notify,
		retry:         retry,
		blockInterval: cfg.BlockSubscribeInterval(),
		logger:        logger,
		watches:       make(map[string]*txconfirm.Watch),
	}
}

// Handle dispatches req and always returns a Response. Panics are converted
// into Internal errors.
func (w *Worker) Handle(ctx context.Context, req Request) (resp Response) {
	id := ""
	if req != nil {
		id = req.requestID()
	}
	if id == "" {
		id = uuid.NewString()
	}

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().Str("request_id", id).Interface("panic", r).Msg("request handler panicked")
			resp = errorResponse(id, errors.NewInternalError(fmt.Sprintf("panic: %v", r), nil))
		}
	}()

	var (
		payload any
		typ     string
		err     error
	)
	switch r := req.(type) {
	case GetInfo:
		typ = ResponseGetInfo
		payload, err = w.getInfo(ctx)
	case EstimateFee:
		typ = ResponseEstimateFee
		payload, err = w.estimateFee(ctx, r)
	case PushTransaction:
		typ = ResponsePushTransaction
		payload, err = w.pushTransaction(ctx, r)
	case SubscribeBlock:
		typ = ResponseSubscribe
		payload, err = w.subscribeBlock()
	case UnsubscribeBlock:
		typ = ResponseUnsubscribe
		payload, err = w.unsubscribeBlock()
	case GetTransactionStatus:
		typ = ResponseGetTransactionStatus
		payload, err = w.getTransactionStatus(ctx, r)
	default:
		err = errors.New(errors.CategoryInternal, errors.CodeUnknownRequest,
			fmt.Sprintf("Unknown request %T", req), nil)
	}

	if err != nil {
		typed := errors.ToTyped(err)
		w.logger.WithLevel(severityLevel(typed.Severity)).
			Str("request_id", id).
			Str("category", string(typed.Category)).
			Str("code", typed.Code).
			Msg("request failed")
		return errorResponse(id, typed)
	}
	return Response{ID: id, Type: typ, Payload: payload}
}

// severityLevel keeps caller mistakes at debug and surfaces node or internal faults.
func severityLevel(sev errors.Severity) zerolog.Level {
	switch sev {
	case errors.SeverityCritical:
		return zerolog.ErrorLevel
	case errors.SeverityHigh:
		return zerolog.WarnLevel
	case errors.SeverityMedium:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}

func errorResponse(id string, err *errors.TypedError) Response {
	return Response{ID: id, Type: ResponseError, Error: err}
}

// Resume watches every stored transaction that has not reached a terminal
// status. Outcomes are persisted and logged.
func (w *Worker) Resume(ctx context.Context) (int, error) {
	if w.store == nil {
		return 0, nil
	}
	pending, err := w.store.GetNonTerminal(ctx, resumeBatchSize)
	if err != nil {
		return 0, errors.NewDatabaseError("failed to load pending transactions", err)
	}

	resumed := 0
	for _, tx := range pending {
		sig, err := solana.SignatureFromBase58(tx.Signature)
		if err != nil {
			w.logger.Warn().Err(err).Str("signature", tx.Signature).Msg("skipping stored transaction with invalid signature")
			continue
		}
		watch := w.watch(ctx, txconfirm.Target{
			Signature: sig,
			Raw:       tx.RawTx,
			Bound: common.BlockHeightBound{
				Blockhash:            tx.Blockhash,
				LastValidBlockHeight: tx.LastValidBlockHeight,
			},
			Status: common.ConfirmationStatus(tx.Status),
		})

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			res, err := watch.Wait(context.Background())
			if err != nil {
				w.logger.Info().Err(err).Str("signature", tx.Signature).Msg("resumed transaction did not land")
				return
			}
			w.logger.Info().Str("signature", tx.Signature).Str("status", string(res.Status)).Msg("resumed transaction landed")
		}()
		resumed++
	}

	if resumed > 0 {
		w.logger.Info().Int("count", resumed).Msg("resumed pending transactions")
	}
	return resumed, nil
}

// watch returns the running watch for target's signature, starting one when
// none is active. Lookup and registration happen under one lock so a
// signature is never monitored twice.
func (w *Worker) watch(ctx context.Context, target txconfirm.Target) *txconfirm.Watch {
	key := target.Signature.String()

	w.watchMu.Lock()
	if existing, ok := w.watches[key]; ok {
		select {
		case <-existing.Done():
		default:
			w.watchMu.Unlock()
			return existing
		}
	}
	watch := w.monitor.Watch(ctx, target)
	w.watches[key] = watch
	w.wg.Add(1)
	w.watchMu.Unlock()

	go func() {
		defer w.wg.Done()
		<-watch.Done()
		w.watchMu.Lock()
		if w.watches[key] == watch {
			delete(w.watches, key)
		}
		w.watchMu.Unlock()
	}()
	return watch
}

func (w *Worker) activeWatch(signature string) *txconfirm.Watch {
	w.watchMu.Lock()
	defer w.watchMu.Unlock()
	return w.watches[signature]
}

// Close stops subscriptions and watches and waits for them to exit.
func (w *Worker) Close() {
	w.state.removeAll()

	w.watchMu.Lock()
	for _, watch := range w.watches {
		watch.Cancel()
	}
	w.watchMu.Unlock()

	w.wg.Wait()
	w.logger.Info().Msg("worker closed")
}
