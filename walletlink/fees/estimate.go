package fees

import (
	"encoding/binary"
	"sort"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/pushchain/push-wallet-link/walletlink/errors"
)

const (
	// DefaultComputeUnitLimit applies when neither the message nor a simulation gives one
	DefaultComputeUnitLimit uint32 = 200_000
	// MaxComputeUnitLimit is the per-transaction ceiling enforced by the runtime
	MaxComputeUnitLimit uint32 = 1_400_000
	// DefaultComputeUnitPrice in micro-lamports, used when no samples are available
	DefaultComputeUnitPrice uint64 = 100_000

	microLamportsPerLamport = 1_000_000

	instructionSetComputeUnitLimit byte = 2
	instructionSetComputeUnitPrice byte = 3
)

// ComputeBudgetProgramID is the native compute budget program
var ComputeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

// NetworkFeeParams is the live network state an estimate is computed from.
type NetworkFeeParams struct {
	// BaseFee is the node's quote for the message; nil falls back to
	// LamportsPerSignature times the required signatures.
	BaseFee              *uint64
	LamportsPerSignature uint64
	// PriorityFeeSamples are recent prices per compute unit in micro-lamports
	PriorityFeeSamples []uint64
	// UnitsConsumed from a simulation, zero when unknown
	UnitsConsumed uint64
	// AccountCreationFee is the rent exemption for a new account, zero when none is created
	AccountCreationFee uint64
}

// Estimate is the fee for one transaction
type Estimate struct {
	FeePerTransaction uint64 `json:"feePerTx"`
	FeePerComputeUnit uint64 `json:"feePerUnit"`
	ComputeUnitLimit  uint32 `json:"feeLimit"`
	BaseFee           uint64 `json:"baseFee"`
	PriorityFee       uint64 `json:"priorityFee"`
}

// computeBudget holds the compute budget instructions found in a message
type computeBudget struct {
	limit *uint32
	price *uint64
}

// DecodeMessage decodes a serialized legacy or versioned message
func DecodeMessage(data []byte) (*solana.Message, error) {
	if len(data) == 0 {
		return nil, errors.NewEstimationError("empty message", nil)
	}
	msg := new(solana.Message)
	if err := msg.UnmarshalWithDecoder(bin.NewBinDecoder(data)); err != nil {
		return nil, errors.NewEstimationError("could not decode message", err)
	}
	return msg, nil
}

// Compute estimates the fee for a serialized message. It performs no I/O.
func Compute(message []byte, params NetworkFeeParams) (*Estimate, error) {
	msg, err := DecodeMessage(message)
	if err != nil {
		return nil, err
	}
	return ComputeForMessage(msg, params)
}

// ComputeForMessage estimates the fee for a decoded message
func ComputeForMessage(msg *solana.Message, params NetworkFeeParams) (*Estimate, error) {
	budget, err := readComputeBudget(msg)
	if err != nil {
		return nil, err
	}

	limit := computeUnitLimit(budget, params.UnitsConsumed)
	price := computeUnitPrice(budget, params.PriorityFeeSamples)
	priority := priorityFee(price, limit)

	base := uint64(msg.Header.NumRequiredSignatures) * params.LamportsPerSignature
	if params.BaseFee != nil {
		base = *params.BaseFee
	}

	return &Estimate{
		FeePerTransaction: base + params.AccountCreationFee + priority,
		FeePerComputeUnit: price,
		ComputeUnitLimit:  limit,
		BaseFee:           base,
		PriorityFee:       priority,
	}, nil
}

func readComputeBudget(msg *solana.Message) (computeBudget, error) {
	var budget computeBudget
	for _, ix := range msg.Instructions {
		if int(ix.ProgramIDIndex) >= len(msg.AccountKeys) {
			return budget, errors.NewEstimationError("instruction references unknown program", nil)
		}
		if !msg.AccountKeys[ix.ProgramIDIndex].Equals(ComputeBudgetProgramID) || len(ix.Data) == 0 {
			continue
		}

		dec := bin.NewBinDecoder(ix.Data[1:])
		switch ix.Data[0] {
		case instructionSetComputeUnitLimit:
			v, err := dec.ReadUint32(binary.LittleEndian)
			if err != nil {
				return budget, errors.NewEstimationError("malformed SetComputeUnitLimit instruction", err)
			}
			budget.limit = &v
		case instructionSetComputeUnitPrice:
			v, err := dec.ReadUint64(binary.LittleEndian)
			if err != nil {
				return budget, errors.NewEstimationError("malformed SetComputeUnitPrice instruction", err)
			}
			budget.price = &v
		}
	}
	return budget, nil
}

func computeUnitLimit(budget computeBudget, unitsConsumed uint64) uint32 {
	var limit uint64
	switch {
	case budget.limit != nil:
		limit = uint64(*budget.limit)
	case unitsConsumed > 0:
		// 20% margin over the simulation
		limit = decimal.NewFromUint64(unitsConsumed).Mul(decimal.RequireFromString("1.2")).Ceil().BigInt().Uint64()
	default:
		limit = uint64(DefaultComputeUnitLimit)
	}
	if limit > uint64(MaxComputeUnitLimit) {
		limit = uint64(MaxComputeUnitLimit)
	}
	return uint32(limit)
}

func computeUnitPrice(budget computeBudget, samples []uint64) uint64 {
	if budget.price != nil {
		return *budget.price
	}

	nonZero := make([]uint64, 0, len(samples))
	for _, s := range samples {
		if s > 0 {
			nonZero = append(nonZero, s)
		}
	}
	if len(nonZero) == 0 {
		return DefaultComputeUnitPrice
	}

	sort.Slice(nonZero, func(i, j int) bool { return nonZero[i] < nonZero[j] })
	mid := len(nonZero) / 2
	if len(nonZero)%2 == 1 {
		return nonZero[mid]
	}
	return nonZero[mid-1]/2 + nonZero[mid]/2 + (nonZero[mid-1]%2+nonZero[mid]%2)/2
}

// priorityFee returns ceil(price * limit / 1e6) lamports
func priorityFee(price uint64, limit uint32) uint64 {
	total := decimal.NewFromUint64(price).Mul(decimal.NewFromInt(int64(limit)))
	return total.Div(decimal.NewFromInt(microLamportsPerLamport)).Ceil().BigInt().Uint64()
}

// LamportsToSOL renders lamports as a SOL amount
func LamportsToSOL(lamports uint64) string {
	return decimal.NewFromUint64(lamports).Shift(-9).String()
}
