package txsubmit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"strings"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/pushchain/push-wallet-link/walletlink/chains/common"
	"github.com/pushchain/push-wallet-link/walletlink/errors"
	"github.com/pushchain/push-wallet-link/walletlink/metrics"
)

// SignedTooLateMessage is returned when the node answers with "Internal error",
// which it does for transactions broadcast outside their blockhash window.
const SignedTooLateMessage = "Please make sure that you submit the transaction within 1 minute after signing."

// Recorder persists accepted submissions
type Recorder interface {
	Create(ctx context.Context, signature string, raw []byte, bound common.BlockHeightBound) error
}

// Submission is an accepted broadcast
type Submission struct {
	Signature   solana.Signature
	Raw         []byte
	Bound       common.BlockHeightBound
	SubmittedAt time.Time
}

// Config holds configuration for the submitter.
type Config struct {
	Client     common.RPCClient
	Recorder   Recorder
	Metrics    *metrics.Metrics
	Timeout    time.Duration
	Commitment rpc.CommitmentType
	DedupSize  int
	DedupTTL   time.Duration
	Logger     zerolog.Logger
}

// Submitter broadcasts signed transactions once. Rebroadcasting is left to
// the confirmation monitor.
type Submitter struct {
	client     common.RPCClient
	recorder   Recorder
	metrics    *metrics.Metrics
	timeout    time.Duration
	commitment rpc.CommitmentType
	seen       *expirable.LRU[string, *Submission]
	inflight   singleflight.Group
	logger     zerolog.Logger
}

// NewSubmitter creates a new submitter.
func NewSubmitter(cfg Config) *Submitter {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	commitment := cfg.Commitment
	if commitment == "" {
		commitment = rpc.CommitmentFinalized
	}
	size := cfg.DedupSize
	if size <= 0 {
		size = 256
	}
	ttl := cfg.DedupTTL
	if ttl == 0 {
		ttl = 2 * time.Minute
	}

	return &Submitter{
		client:     cfg.Client,
		recorder:   cfg.Recorder,
		metrics:    cfg.Metrics,
		timeout:    timeout,
		commitment: commitment,
		seen:       expirable.NewLRU[string, *Submission](size, nil, ttl),
		logger:     cfg.Logger.With().Str("component", "tx_submitter").Logger(),
	}
}

// Submit broadcasts signed once and returns its signature together with the
// block height bound it is valid for. Submitting bytes that were accepted
// recently returns the earlier Submission without a new broadcast.
func (s *Submitter) Submit(ctx context.Context, signed []byte) (*Submission, error) {
	expected, err := ParseSignature(signed)
	if err != nil {
		s.metrics.IncSubmission("invalid")
		return nil, err
	}

	key := dedupKey(signed)
	if prev, ok := s.seen.Get(key); ok {
		s.metrics.IncSubmission("duplicate")
		s.logger.Debug().Str("signature", prev.Signature.String()).Msg("duplicate submission suppressed")
		return prev, nil
	}

	v, err, shared := s.inflight.Do(key, func() (interface{}, error) {
		return s.broadcast(ctx, signed, expected)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.metrics.IncSubmission("duplicate")
	}
	return v.(*Submission), nil
}

func (s *Submitter) broadcast(ctx context.Context, signed []byte, expected solana.Signature) (*Submission, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	bound, err := s.client.GetLatestBlockReference(callCtx, s.commitment)
	if err != nil {
		s.metrics.IncSubmission("error")
		return nil, s.mapBoundError(ctx, callCtx, err)
	}

	sig, err := s.client.SendRawTransaction(callCtx, signed, common.SendOptions{
		SkipPreflight: true,
		MaxRetries:    0,
	})
	if err != nil {
		typed := s.mapError(ctx, callCtx, err)
		s.metrics.IncSubmission(strings.ToLower(string(typed.Category)))
		s.logger.Warn().
			Str("signature", expected.String()).
			Str("code", typed.Code).
			Err(err).
			Msg("broadcast failed")
		return nil, typed
	}

	if !sig.Equals(expected) {
		s.logger.Warn().
			Str("expected", expected.String()).
			Str("returned", sig.String()).
			Msg("node returned a different signature")
	}

	sub := &Submission{
		Signature:   sig,
		Raw:         append([]byte(nil), signed...),
		Bound:       bound,
		SubmittedAt: time.Now(),
	}
	s.seen.Add(dedupKey(signed), sub)
	s.metrics.IncSubmission("ok")

	if s.recorder != nil {
		if err := s.recorder.Create(ctx, sig.String(), sub.Raw, bound); err != nil {
			s.logger.Warn().Err(err).Str("signature", sig.String()).Msg("failed to persist submission")
		}
	}

	s.logger.Info().
		Str("signature", sig.String()).
		Str("blockhash", bound.Blockhash).
		Uint64("last_valid_block_height", bound.LastValidBlockHeight).
		Msg("transaction broadcast")

	return sub, nil
}

// mapBoundError classifies a failed blockhash fetch. Nothing was broadcast, so
// node errors are RPC failures rather than rejections.
func (s *Submitter) mapBoundError(parent, callCtx context.Context, err error) *errors.TypedError {
	switch {
	case parent.Err() != nil:
		return errors.ToTyped(parent.Err())
	case stderrors.Is(callCtx.Err(), context.DeadlineExceeded) || stderrors.Is(err, context.DeadlineExceeded):
		return errors.NewSubmissionTimeout("no blockhash from the node within "+s.timeout.String(), err)
	case errors.IsCategory(err, errors.CategoryRPC):
		return errors.ToTyped(err)
	}
	return errors.NewRPCError("failed to fetch latest blockhash", err)
}

// mapError converts a client failure into the submitter's result contract.
func (s *Submitter) mapError(parent, callCtx context.Context, err error) *errors.TypedError {
	if parent.Err() != nil {
		return errors.ToTyped(parent.Err())
	}

	var nodeErr *common.NodeError
	if stderrors.As(err, &nodeErr) {
		if strings.Contains(nodeErr.Message, "Internal error") {
			return errors.NewBroadcastError(errors.CodeSignedTooLate, SignedTooLateMessage, err)
		}
		return errors.NewBroadcastError(errors.CodeRejected, nodeErr.Message, err).
			WithContext("node_code", nodeErr.Code)
	}

	if stderrors.Is(callCtx.Err(), context.DeadlineExceeded) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewSubmissionTimeout("no acknowledgment from the node within "+s.timeout.String(), err)
	}

	// every endpoint failed before answering
	if errors.IsCategory(err, errors.CategoryRPC) {
		return errors.NewSubmissionTimeout("no acknowledgment from any RPC endpoint", err)
	}

	return errors.ToTyped(err)
}

// ParseSignature decodes signed and returns its fee payer signature.
func ParseSignature(signed []byte) (solana.Signature, error) {
	if len(signed) == 0 {
		return solana.Signature{}, errors.NewValidationError("empty transaction payload")
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(signed))
	if err != nil {
		return solana.Signature{}, errors.New(errors.CategoryValidation, errors.CodeInvalidParameter,
			"transaction payload could not be decoded", err)
	}
	if len(tx.Signatures) == 0 || tx.Signatures[0].IsZero() {
		return solana.Signature{}, errors.NewValidationError("transaction is not signed")
	}
	return tx.Signatures[0], nil
}

func dedupKey(signed []byte) string {
	sum := sha256.Sum256(signed)
	return hex.EncodeToString(sum[:])
}
