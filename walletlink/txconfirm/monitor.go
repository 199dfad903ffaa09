package txconfirm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"

	"github.com/pushchain/push-wallet-link/walletlink/chains/common"
	"github.com/pushchain/push-wallet-link/walletlink/errors"
	"github.com/pushchain/push-wallet-link/walletlink/metrics"
)

// Recorder persists the progress of monitored transactions
type Recorder interface {
	RecordTransition(ctx context.Context, signature string, to common.ConfirmationStatus, reason string) error
	RecordResubmission(ctx context.Context, signature string) error
}

// Config holds configuration for the monitor.
type Config struct {
	Client common.RPCClient
	Clock  clock.Clock
	// PollInterval is the wait before every status query
	PollInterval time.Duration
	// ResubmitInterval is the minimum gap between two broadcasts of the same bytes
	ResubmitInterval time.Duration
	// Commitment is the level at which a transaction counts as landed, confirmed or finalized
	Commitment rpc.CommitmentType
	Recorder   Recorder
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
}

// Target is a broadcast transaction to follow until a terminal outcome
type Target struct {
	Signature solana.Signature
	Raw       []byte
	Bound     common.BlockHeightBound
	// Status is the last known status, PENDING when empty
	Status common.ConfirmationStatus
}

// Result is the outcome of a watch
type Result struct {
	Signature     solana.Signature
	Status        common.ConfirmationStatus
	Slot          uint64
	Reason        string
	Polls         int
	Resubmissions int
}

// heightFailureAlert is the number of consecutive block height failures
// after which the watch logs at error level
const heightFailureAlert = 5

// Monitor polls signature statuses and rebroadcasts identical bytes until a
// transaction lands, fails on-chain, or its blockhash expires.
type Monitor struct {
	client           common.RPCClient
	clock            clock.Clock
	pollInterval     time.Duration
	resubmitInterval time.Duration
	commitment       rpc.CommitmentType
	recorder         Recorder
	metrics          *metrics.Metrics
	logger           zerolog.Logger
}

// NewMonitor creates a new confirmation monitor.
func NewMonitor(cfg Config) *Monitor {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}
	resubmit := cfg.ResubmitInterval
	if resubmit <= 0 {
		resubmit = poll
	}
	commitment := cfg.Commitment
	if commitment != rpc.CommitmentFinalized {
		commitment = rpc.CommitmentConfirmed
	}

	return &Monitor{
		client:           cfg.Client,
		clock:            clk,
		pollInterval:     poll,
		resubmitInterval: resubmit,
		commitment:       commitment,
		recorder:         cfg.Recorder,
		metrics:          cfg.Metrics,
		logger:           cfg.Logger.With().Str("component", "tx_monitor").Logger(),
	}
}

// Watch starts following target in the background. Cancelling ctx stops
// polling; an already broadcast transaction is never withdrawn.
func (m *Monitor) Watch(ctx context.Context, target Target) *Watch {
	ctx, cancel := context.WithCancel(ctx)
	status := target.Status
	if status == "" {
		status = common.StatusPending
	}

	w := &Watch{
		target: target,
		status: status,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	// created here so the first wait starts at the moment of the call
	ticker := m.clock.Ticker(m.pollInterval)
	started := m.clock.Now()

	m.metrics.AddPending(1)
	go m.run(ctx, w, ticker, started)
	return w
}

// Confirm watches target and blocks until it resolves.
func (m *Monitor) Confirm(ctx context.Context, target Target) (*Result, error) {
	return m.Watch(ctx, target).Wait(context.Background())
}

func (m *Monitor) run(ctx context.Context, w *Watch, ticker *clock.Ticker, started time.Time) {
	defer ticker.Stop()
	defer w.cancel()
	defer m.metrics.AddPending(-1)

	logger := m.logger.With().Str("signature", w.target.Signature.String()).Logger()
	lastBroadcast := started

	if w.Status() == common.StatusPending {
		m.transition(ctx, w, common.StatusPolling, "", logger)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info().Str("status", string(w.Status())).Msg("confirmation watch cancelled")
			w.finish(&Result{
				Signature:     w.target.Signature,
				Status:        w.Status(),
				Polls:         w.polls,
				Resubmissions: w.resubmissions,
			}, errors.ToTyped(ctx.Err()))
			return
		case now := <-ticker.C:
			// both cases may be ready; a cancelled watch issues no further calls
			if ctx.Err() != nil {
				continue
			}
			w.polls++
			if m.poll(ctx, w, now, &lastBroadcast, logger) {
				res := w.result
				m.metrics.ObserveOutcome(string(res.Status), m.clock.Since(started).Seconds())
				return
			}
		}
	}
}

// poll runs one iteration and reports whether the watch resolved.
func (m *Monitor) poll(ctx context.Context, w *Watch, now time.Time, lastBroadcast *time.Time, logger zerolog.Logger) bool {
	sig := w.target.Signature

	statuses, err := m.client.GetSignatureStatuses(ctx, []solana.Signature{sig})
	if err != nil {
		m.swallow(ctx, err, "signature status query failed", logger)
		return false
	}

	var st *common.SignatureStatus
	if len(statuses) > 0 {
		st = statuses[0]
	}

	if st != nil && st.Err != nil {
		reason := describeFailure(st.Err)
		m.transition(ctx, w, common.StatusFailed, reason, logger)
		w.finish(m.result(w, st), errors.NewFailedError(sig.String(), reason))
		logger.Warn().Str("reason", reason).Msg("transaction failed on-chain")
		return true
	}

	if st != nil {
		switch st.ConfirmationStatus {
		case rpc.ConfirmationStatusFinalized:
			m.transition(ctx, w, common.StatusFinalized, "", logger)
			w.finish(m.result(w, st), nil)
			logger.Info().Uint64("slot", st.Slot).Msg("transaction finalized")
			return true
		case rpc.ConfirmationStatusConfirmed:
			if w.Status() != common.StatusConfirmed {
				m.transition(ctx, w, common.StatusConfirmed, "", logger)
			}
			if m.commitment == rpc.CommitmentConfirmed {
				w.finish(m.result(w, st), nil)
				logger.Info().Uint64("slot", st.Slot).Msg("transaction confirmed")
				return true
			}
			// landed; waiting for finality needs neither expiry checks nor rebroadcasts
			return false
		}
	}

	if w.Status() == common.StatusConfirmed {
		return false
	}

	height, err := m.client.GetBlockHeight(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		m.swallow(ctx, err, "block height query failed", logger)
		w.heightFailures++
		if ctx.Err() == nil && w.heightFailures%heightFailureAlert == 0 {
			logger.Error().Err(err).
				Int("consecutive_failures", w.heightFailures).
				Uint64("last_valid_block_height", w.target.Bound.LastValidBlockHeight).
				Msg("block height unavailable, expiry cannot be evaluated")
		}
		return false
	}
	w.heightFailures = 0

	if w.target.Bound.Expired(height) {
		m.transition(ctx, w, common.StatusExpired, "", logger)
		w.finish(&Result{
			Signature:     sig,
			Status:        common.StatusExpired,
			Polls:         w.polls,
			Resubmissions: w.resubmissions,
		}, errors.NewExpiredError(sig.String(), w.target.Bound.LastValidBlockHeight))
		logger.Warn().
			Uint64("block_height", height).
			Uint64("last_valid_block_height", w.target.Bound.LastValidBlockHeight).
			Msg("transaction expired")
		return true
	}

	if now.Sub(*lastBroadcast) >= m.resubmitInterval {
		m.resubmit(ctx, w, logger)
		*lastBroadcast = now
	}
	return false
}

func (m *Monitor) resubmit(ctx context.Context, w *Watch, logger zerolog.Logger) {
	_, err := m.client.SendRawTransaction(ctx, w.target.Raw, common.SendOptions{
		SkipPreflight: true,
		MaxRetries:    0,
	})
	if err != nil {
		m.swallow(ctx, err, "resubmission failed", logger)
		return
	}

	w.resubmissions++
	m.metrics.IncResubmission()
	if m.recorder != nil {
		if err := m.recorder.RecordResubmission(ctx, w.target.Signature.String()); err != nil {
			logger.Warn().Err(err).Msg("failed to record resubmission")
		}
	}
	logger.Debug().Int("resubmissions", w.resubmissions).Msg("transaction rebroadcast")
}

func (m *Monitor) swallow(ctx context.Context, err error, msg string, logger zerolog.Logger) {
	if ctx.Err() != nil {
		return
	}
	m.metrics.IncPollError()
	logger.Warn().Err(err).Msg(msg)
}

// transition applies a forward move; anything else is logged and dropped.
func (m *Monitor) transition(ctx context.Context, w *Watch, to common.ConfirmationStatus, reason string, logger zerolog.Logger) {
	from, ok := w.advance(to)
	if !ok {
		logger.Warn().Str("from", string(from)).Str("to", string(to)).Msg("ignoring backward status transition")
		return
	}
	if m.recorder == nil {
		return
	}
	// persisted even when the watch was cancelled mid-poll
	if err := m.recorder.RecordTransition(context.WithoutCancel(ctx), w.target.Signature.String(), to, reason); err != nil {
		logger.Warn().Err(err).Str("to", string(to)).Msg("failed to record status transition")
	}
}

func (m *Monitor) result(w *Watch, st *common.SignatureStatus) *Result {
	res := &Result{
		Signature:     w.target.Signature,
		Status:        w.Status(),
		Polls:         w.polls,
		Resubmissions: w.resubmissions,
	}
	if st != nil {
		res.Slot = st.Slot
	}
	if res.Status == common.StatusFailed && st != nil {
		res.Reason = describeFailure(st.Err)
	}
	return res
}

func describeFailure(txErr interface{}) string {
	if s, ok := txErr.(string); ok {
		return s
	}
	b, err := json.Marshal(txErr)
	if err != nil {
		return fmt.Sprintf("%v", txErr)
	}
	return string(b)
}

// Watch is a handle to one monitored transaction.
type Watch struct {
	target Target
	cancel context.CancelFunc

	mu     sync.RWMutex
	status common.ConfirmationStatus

	// owned by the run goroutine until done is closed
	polls          int
	resubmissions  int
	heightFailures int

	result *Result
	err    error
	done   chan struct{}
}

// Signature returns the watched signature
func (w *Watch) Signature() solana.Signature {
	return w.target.Signature
}

// Status returns the current status
func (w *Watch) Status() common.ConfirmationStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

// Done is closed once the watch resolved or was cancelled
func (w *Watch) Done() <-chan struct{} {
	return w.done
}

// Cancel stops polling
func (w *Watch) Cancel() {
	w.cancel()
}

// Wait blocks until the watch resolves or ctx ends. Expired and Failed
// outcomes come back with both the Result and a typed error.
func (w *Watch) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-w.done:
		return w.result, w.err
	case <-ctx.Done():
		return nil, errors.ToTyped(ctx.Err())
	}
}

func (w *Watch) advance(to common.ConfirmationStatus) (common.ConfirmationStatus, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	from := w.status
	if !common.CanTransition(from, to) {
		return from, false
	}
	w.status = to
	return from, true
}

func (w *Watch) finish(res *Result, err error) {
	w.result = res
	if err != nil {
		w.err = err
	}
	close(w.done)
}
