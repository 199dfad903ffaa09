package fees

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/pushchain/push-wallet-link/walletlink/constant"
	"github.com/pushchain/push-wallet-link/walletlink/errors"
	"github.com/pushchain/push-wallet-link/walletlink/metrics"
)

// DefaultLamportsPerSignature is used when the node cannot quote the message
const DefaultLamportsPerSignature uint64 = 5000

// FeeSource is the subset of the RPC client fee collection needs
type FeeSource interface {
	GetFeeForMessage(ctx context.Context, messageBase64 string) (*uint64, error)
	GetRecentPrioritizationFees(ctx context.Context, accounts []solana.PublicKey) ([]uint64, error)
	GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64) (uint64, error)
	SimulateTransaction(ctx context.Context, msg *solana.Message) (unitsConsumed uint64, err error)
}

// Collector gathers NetworkFeeParams for a message and runs Compute.
type Collector struct {
	source  FeeSource
	retry   *errors.RetryConfig
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewCollector creates a fee collector. m may be nil.
func NewCollector(source FeeSource, m *metrics.Metrics, logger zerolog.Logger) *Collector {
	retry := errors.DefaultRetryConfig()
	retry.InitialDelay = 250 * time.Millisecond
	retry.MaxDelay = 2 * time.Second

	return &Collector{
		source:  source,
		retry:   retry,
		metrics: m,
		logger:  logger.With().Str("component", "fee_collector").Logger(),
	}
}

// Estimate collects live fee parameters for message and computes its fee.
// Rent exemption for a token account is added when isCreatingAccount is set.
func (c *Collector) Estimate(ctx context.Context, message []byte, isCreatingAccount bool) (*Estimate, error) {
	est, err := c.estimate(ctx, message, isCreatingAccount)
	if err != nil {
		c.metrics.IncFeeEstimate("error")
		return nil, err
	}
	c.metrics.IncFeeEstimate("ok")
	return est, nil
}

func (c *Collector) estimate(ctx context.Context, message []byte, isCreatingAccount bool) (*Estimate, error) {
	msg, err := DecodeMessage(message)
	if err != nil {
		return nil, err
	}

	params := NetworkFeeParams{LamportsPerSignature: DefaultLamportsPerSignature}
	encoded := base64.StdEncoding.EncodeToString(message)

	err = errors.RetryWithConfig(ctx, func() error {
		fee, err := c.source.GetFeeForMessage(ctx, encoded)
		if err != nil {
			return err
		}
		params.BaseFee = fee
		return nil
	}, c.retry)
	if err != nil {
		return nil, errors.NewEstimationError("could not fetch base fee", err)
	}

	writable := writableAccounts(msg)
	err = errors.RetryWithConfig(ctx, func() error {
		samples, err := c.source.GetRecentPrioritizationFees(ctx, writable)
		if err != nil {
			return err
		}
		params.PriorityFeeSamples = samples
		return nil
	}, c.retry)
	if err != nil {
		// the default price still yields a usable estimate
		c.logger.Warn().Err(err).Msg("failed to fetch prioritization fees, using default price")
	}

	// an explicit SetComputeUnitLimit makes the simulation irrelevant
	budget, err := readComputeBudget(msg)
	if err != nil {
		return nil, err
	}
	if budget.limit == nil {
		err = errors.RetryWithConfig(ctx, func() error {
			units, err := c.source.SimulateTransaction(ctx, msg)
			if err != nil {
				return err
			}
			params.UnitsConsumed = units
			return nil
		}, c.retry)
		if err != nil {
			c.logger.Warn().Err(err).Msg("failed to simulate transaction, using default compute unit limit")
		}
	}

	if isCreatingAccount {
		err = errors.RetryWithConfig(ctx, func() error {
			rent, err := c.source.GetMinimumBalanceForRentExemption(ctx, constant.TokenAccountSize)
			if err != nil {
				return err
			}
			params.AccountCreationFee = rent
			return nil
		}, c.retry)
		if err != nil {
			return nil, errors.NewEstimationError("could not fetch rent exemption", err)
		}
	}

	est, err := ComputeForMessage(msg, params)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Uint64("fee_per_tx", est.FeePerTransaction).
		Uint64("fee_per_unit", est.FeePerComputeUnit).
		Uint32("fee_limit", est.ComputeUnitLimit).
		Int("samples", len(params.PriorityFeeSamples)).
		Uint64("units_consumed", params.UnitsConsumed).
		Msg("fee estimated")

	return est, nil
}

func writableAccounts(msg *solana.Message) []solana.PublicKey {
	accounts := make([]solana.PublicKey, 0, len(msg.AccountKeys))
	for i, key := range msg.AccountKeys {
		writable, err := msg.IsWritable(key)
		if err != nil || !writable {
			continue
		}
		accounts = append(accounts, msg.AccountKeys[i])
	}
	return accounts
}
